package admin

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/marklog/marklog/internal/bytesize"
	"github.com/marklog/marklog/internal/cli/output"
	"github.com/marklog/marklog/internal/cli/prompt"
	"github.com/marklog/marklog/pkg/models"
	"github.com/marklog/marklog/pkg/orchestration"
)

var (
	workspacesOutput string
	deleteForce      bool
)

var workspacesCmd = &cobra.Command{
	Use:   "workspaces",
	Short: "Inspect and manage workspaces",
}

var workspacesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all workspaces",
	Long: `List all workspaces on this server.

Examples:
  # List workspaces as table
  marklog admin workspaces list

  # List as JSON
  marklog admin workspaces list -o json`,
	RunE: runWorkspacesList,
}

var workspacesShowCmd = &cobra.Command{
	Use:   "show <workspace-id>",
	Short: "Show workspace details",
	Args:  cobra.ExactArgs(1),
	RunE:  runWorkspacesShow,
}

var workspacesStatsCmd = &cobra.Command{
	Use:   "stats <workspace-id>",
	Short: "Show workspace activity statistics",
	Args:  cobra.ExactArgs(1),
	RunE:  runWorkspacesStats,
}

var workspacesDeleteCmd = &cobra.Command{
	Use:   "delete <workspace-id>",
	Short: "Soft-delete a workspace",
	Long: `Soft-delete a workspace.

The workspace and its files stop being served immediately. Data is
retained for the purge window, after which the background maintenance
job removes it permanently.`,
	Args: cobra.ExactArgs(1),
	RunE: runWorkspacesDelete,
}

func init() {
	workspacesListCmd.Flags().StringVarP(&workspacesOutput, "output", "o", "table", "Output format (table|json|yaml)")
	workspacesShowCmd.Flags().StringVarP(&workspacesOutput, "output", "o", "table", "Output format (table|json|yaml)")
	workspacesStatsCmd.Flags().StringVarP(&workspacesOutput, "output", "o", "table", "Output format (table|json|yaml)")
	workspacesDeleteCmd.Flags().BoolVarP(&deleteForce, "force", "f", false, "Skip confirmation prompt")

	workspacesCmd.AddCommand(workspacesListCmd)
	workspacesCmd.AddCommand(workspacesShowCmd)
	workspacesCmd.AddCommand(workspacesStatsCmd)
	workspacesCmd.AddCommand(workspacesDeleteCmd)
}

// WorkspaceList is a list of workspaces for table rendering.
type WorkspaceList []*models.Workspace

// Headers implements TableRenderer.
func (wl WorkspaceList) Headers() []string {
	return []string{"ID", "NAME", "CLAIMED BY", "LAST ACTIVITY", "CREATED"}
}

// Rows implements TableRenderer.
func (wl WorkspaceList) Rows() [][]string {
	rows := make([][]string, 0, len(wl))
	for _, ws := range wl {
		rows = append(rows, []string{
			ws.ID,
			ws.Name,
			emptyOr(ws.ClaimedByEmail, "-"),
			ws.LastActivityAt.Format("2006-01-02 15:04"),
			ws.CreatedAt.Format("2006-01-02 15:04"),
		})
	}
	return rows
}

func runWorkspacesList(cmd *cobra.Command, args []string) error {
	format, err := output.ParseFormat(workspacesOutput)
	if err != nil {
		return err
	}

	st, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	ctx := context.Background()
	workspaces, err := st.ListWorkspaces(ctx)
	if err != nil {
		return fmt.Errorf("failed to list workspaces: %w", err)
	}

	switch format {
	case output.FormatJSON:
		return output.PrintJSON(os.Stdout, workspaces)
	case output.FormatYAML:
		return output.PrintYAML(os.Stdout, workspaces)
	default:
		if len(workspaces) == 0 {
			fmt.Println("No workspaces found.")
			return nil
		}
		return output.PrintTable(os.Stdout, WorkspaceList(workspaces))
	}
}

func runWorkspacesShow(cmd *cobra.Command, args []string) error {
	format, err := output.ParseFormat(workspacesOutput)
	if err != nil {
		return err
	}

	st, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	ctx := context.Background()
	ws, err := st.GetWorkspace(ctx, args[0])
	if err != nil {
		return fmt.Errorf("workspace not found: %s", args[0])
	}

	usage, err := st.WorkspaceUsage(ctx, ws.ID)
	if err != nil {
		return fmt.Errorf("failed to compute usage: %w", err)
	}
	files, err := st.CountFilesUnder(ctx, ws.ID, "/")
	if err != nil {
		return fmt.Errorf("failed to count files: %w", err)
	}

	switch format {
	case output.FormatJSON, output.FormatYAML:
		detail := struct {
			*models.Workspace
			UsageBytes int64 `json:"usageBytes" yaml:"usage_bytes"`
			Files      int64 `json:"files" yaml:"files"`
		}{ws, usage, files}
		if format == output.FormatJSON {
			return output.PrintJSON(os.Stdout, detail)
		}
		return output.PrintYAML(os.Stdout, detail)
	default:
		claimed := "no"
		if ws.IsClaimed() {
			claimed = fmt.Sprintf("%s (%s)", ws.ClaimedByEmail, ws.ClaimedAt.Format("2006-01-02 15:04"))
		}
		return output.SimpleTable(os.Stdout, [][2]string{
			{"ID", ws.ID},
			{"Name", ws.Name},
			{"Claimed", claimed},
			{"Files", fmt.Sprintf("%d", files)},
			{"Storage used", bytesize.ByteSize(usage).String()},
			{"Last activity", ws.LastActivityAt.Format(time.RFC3339)},
			{"Created", ws.CreatedAt.Format(time.RFC3339)},
		})
	}
}

func runWorkspacesStats(cmd *cobra.Command, args []string) error {
	format, err := output.ParseFormat(workspacesOutput)
	if err != nil {
		return err
	}

	st, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	ctx := context.Background()
	if _, err := st.GetWorkspace(ctx, args[0]); err != nil {
		return fmt.Errorf("workspace not found: %s", args[0])
	}

	engine := orchestration.New(st)
	stats, err := engine.Stats(ctx, args[0], models.Scope{Type: models.ScopeWorkspace, Path: "/"})
	if err != nil {
		return fmt.Errorf("failed to compute stats: %w", err)
	}

	switch format {
	case output.FormatJSON:
		return output.PrintJSON(os.Stdout, stats)
	case output.FormatYAML:
		return output.PrintYAML(os.Stdout, stats)
	default:
		lastAppend := "-"
		if stats.LastAppendAt != nil {
			lastAppend = stats.LastAppendAt.Format(time.RFC3339)
		}
		return output.SimpleTable(os.Stdout, [][2]string{
			{"Files", fmt.Sprintf("%d", stats.Files)},
			{"Appends", fmt.Sprintf("%d", stats.Appends)},
			{"Tasks", fmt.Sprintf("%d", stats.Tasks)},
			{"Active claims", fmt.Sprintf("%d", stats.Claims)},
			{"Agents", fmt.Sprintf("%d", stats.Agents)},
			{"Appends today", fmt.Sprintf("%d", stats.AppendsToday)},
			{"Appends this week", fmt.Sprintf("%d", stats.AppendsThisWeek)},
			{"Last append", lastAppend},
		})
	}
}

func runWorkspacesDelete(cmd *cobra.Command, args []string) error {
	st, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	ctx := context.Background()
	ws, err := st.GetWorkspace(ctx, args[0])
	if err != nil {
		return fmt.Errorf("workspace not found: %s", args[0])
	}

	ok, err := prompt.ConfirmWithForce(
		fmt.Sprintf("Soft-delete workspace %q (%s)?", ws.Name, ws.ID), deleteForce)
	if err != nil {
		return err
	}
	if !ok {
		fmt.Println("Aborted.")
		return nil
	}

	if err := st.SoftDeleteWorkspace(ctx, ws.ID, time.Now()); err != nil {
		return fmt.Errorf("failed to delete workspace: %w", err)
	}

	fmt.Printf("Workspace %s soft-deleted. It will be purged after the retention window.\n", ws.ID)
	return nil
}
