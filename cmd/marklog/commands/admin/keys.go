package admin

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/marklog/marklog/internal/cli/output"
	"github.com/marklog/marklog/internal/cli/prompt"
	"github.com/marklog/marklog/pkg/models"
)

var (
	keysOutput      string
	keysRevokeForce bool
)

var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Inspect and revoke credentials",
}

var keysListCmd = &cobra.Command{
	Use:   "list <workspace-id>",
	Short: "List a workspace's capability and API keys",
	Long: `List a workspace's capability keys and API keys.

Only prefixes are shown; full key material is never stored.

Examples:
  # List keys as table
  marklog admin keys list ws_abc123

  # List as JSON
  marklog admin keys list ws_abc123 -o json`,
	Args: cobra.ExactArgs(1),
	RunE: runKeysList,
}

var keysRevokeCmd = &cobra.Command{
	Use:   "revoke <workspace-id> <key-id>",
	Short: "Revoke a capability or API key",
	Long: `Revoke a single key by id.

The id is matched against the workspace's capability keys first, then
its API keys. Revocation takes effect immediately for API keys and
within the resolver cache window for capability keys.`,
	Args: cobra.ExactArgs(2),
	RunE: runKeysRevoke,
}

func init() {
	keysListCmd.Flags().StringVarP(&keysOutput, "output", "o", "table", "Output format (table|json|yaml)")
	keysRevokeCmd.Flags().BoolVarP(&keysRevokeForce, "force", "f", false, "Skip confirmation prompt")

	keysCmd.AddCommand(keysListCmd)
	keysCmd.AddCommand(keysRevokeCmd)
}

// CapabilityKeyList is a list of capability keys for table rendering.
type CapabilityKeyList []*models.CapabilityKey

// Headers implements TableRenderer.
func (kl CapabilityKeyList) Headers() []string {
	return []string{"ID", "PREFIX", "PERMISSION", "SCOPE", "AUTHOR", "STATUS", "LAST USED"}
}

// Rows implements TableRenderer.
func (kl CapabilityKeyList) Rows() [][]string {
	rows := make([][]string, 0, len(kl))
	for _, k := range kl {
		rows = append(rows, []string{
			k.ID,
			k.Prefix + "...",
			k.Permission,
			fmt.Sprintf("%s:%s", k.ScopeType, k.ScopePath),
			emptyOr(k.BoundAuthor, "-"),
			keyStatus(k.RevokedAt, k.ExpiresAt),
			formatLastUsed(k.LastUsedAt),
		})
	}
	return rows
}

// ApiKeyList is a list of API keys for table rendering.
type ApiKeyList []*models.ApiKey

// Headers implements TableRenderer.
func (kl ApiKeyList) Headers() []string {
	return []string{"ID", "NAME", "PREFIX", "MODE", "SCOPES", "STATUS", "LAST USED"}
}

// Rows implements TableRenderer.
func (kl ApiKeyList) Rows() [][]string {
	rows := make([][]string, 0, len(kl))
	for _, k := range kl {
		scopes, _ := k.GetScopes()
		rows = append(rows, []string{
			k.ID,
			k.Name,
			k.KeyPrefix,
			k.Mode,
			emptyOr(strings.Join(scopes, ","), "-"),
			keyStatus(k.RevokedAt, k.ExpiresAt),
			formatLastUsed(k.LastUsedAt),
		})
	}
	return rows
}

func keyStatus(revokedAt, expiresAt *time.Time) string {
	if revokedAt != nil {
		return "revoked"
	}
	if expiresAt != nil && expiresAt.Before(time.Now()) {
		return "expired"
	}
	return "active"
}

func formatLastUsed(t *time.Time) string {
	if t == nil {
		return "never"
	}
	return t.Format("2006-01-02 15:04")
}

func runKeysList(cmd *cobra.Command, args []string) error {
	format, err := output.ParseFormat(keysOutput)
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

	capKeys, err := st.ListCapabilityKeys(ctx, args[0])
	if err != nil {
		return fmt.Errorf("failed to list capability keys: %w", err)
	}
	apiKeys, err := st.ListApiKeys(ctx, args[0])
	if err != nil {
		return fmt.Errorf("failed to list API keys: %w", err)
	}

	switch format {
	case output.FormatJSON, output.FormatYAML:
		combined := struct {
			CapabilityKeys []*models.CapabilityKey `json:"capabilityKeys" yaml:"capability_keys"`
			APIKeys        []*models.ApiKey        `json:"apiKeys" yaml:"api_keys"`
		}{capKeys, apiKeys}
		if format == output.FormatJSON {
			return output.PrintJSON(os.Stdout, combined)
		}
		return output.PrintYAML(os.Stdout, combined)
	default:
		fmt.Println("Capability keys:")
		if len(capKeys) == 0 {
			fmt.Println("  (none)")
		} else if err := output.PrintTable(os.Stdout, CapabilityKeyList(capKeys)); err != nil {
			return err
		}
		fmt.Println()
		fmt.Println("API keys:")
		if len(apiKeys) == 0 {
			fmt.Println("  (none)")
			return nil
		}
		return output.PrintTable(os.Stdout, ApiKeyList(apiKeys))
	}
}

func runKeysRevoke(cmd *cobra.Command, args []string) error {
	st, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	ctx := context.Background()
	workspaceID, keyID := args[0], args[1]
	if _, err := st.GetWorkspace(ctx, workspaceID); err != nil {
		return fmt.Errorf("workspace not found: %s", workspaceID)
	}

	ok, err := prompt.ConfirmWithForce(fmt.Sprintf("Revoke key %s?", keyID), keysRevokeForce)
	if err != nil {
		return err
	}
	if !ok {
		fmt.Println("Aborted.")
		return nil
	}

	now := time.Now()
	if err := st.RevokeCapabilityKey(ctx, workspaceID, keyID, now); err == nil {
		fmt.Printf("Capability key %s revoked.\n", keyID)
		return nil
	} else if !errors.Is(err, models.ErrKeyNotFound) {
		return fmt.Errorf("failed to revoke key: %w", err)
	}

	if err := st.RevokeApiKey(ctx, workspaceID, keyID, now); err != nil {
		if errors.Is(err, models.ErrKeyNotFound) {
			return fmt.Errorf("no key with id %s in workspace %s", keyID, workspaceID)
		}
		return fmt.Errorf("failed to revoke key: %w", err)
	}

	fmt.Printf("API key %s revoked.\n", keyID)
	return nil
}
