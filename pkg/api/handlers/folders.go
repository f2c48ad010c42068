package handlers

import (
	"encoding/base64"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/marklog/marklog/pkg/api/middleware"
	"github.com/marklog/marklog/pkg/audit"
	"github.com/marklog/marklog/pkg/capability"
	"github.com/marklog/marklog/pkg/models"
	"github.com/marklog/marklog/pkg/store"
)

// Folder listing limits.
const (
	folderDefaultLimit = 100
	folderMaxLimit     = 1000
	folderMaxDepth     = 5
)

// FolderHandler serves folder listing and creation on capability URLs.
type FolderHandler struct {
	store store.Store
	audit *audit.Recorder
}

// NewFolderHandler creates a new FolderHandler.
func NewFolderHandler(st store.Store, recorder *audit.Recorder) *FolderHandler {
	return &FolderHandler{store: st, audit: recorder}
}

// CreateFolderRequest is the request body for POST folder routes.
type CreateFolderRequest struct {
	Name string `json:"name"`
}

// FolderEntry is one row of a folder listing. Files carry size, folders
// carry childCount. Capability listings never include per-file sub-URLs.
type FolderEntry struct {
	Name       string `json:"name"`
	Type       string `json:"type"` // folder, file
	Size       *int64 `json:"size,omitempty"`
	ChildCount *int   `json:"childCount,omitempty"`
	UpdatedAt  string `json:"updatedAt,omitempty"`
}

// folderPath extracts the folder path after the "folders" route segment.
func folderPath(r *http.Request) (string, error) {
	raw := r.URL.EscapedPath()
	parts := strings.SplitN(strings.TrimPrefix(raw, "/"), "/", 4)
	// parts: mount, key, "folders", rest?
	if len(parts) < 4 || parts[3] == "" {
		return "/", nil
	}
	return capability.DecodeResourcePath(parts[3])
}

// List handles GET /{r|a|w}/{key}/folders[/{path}] and the bare
// GET /{r|a|w}/{key}/ root listing.
//
// The listing merges explicit folders with virtual ones derived from
// file paths, folders first then files, each alphabetical and
// case-insensitive. depth > 1 flattens nested entries under relative
// paths.
func (h *FolderHandler) List(w http.ResponseWriter, r *http.Request) {
	cred := middleware.GetCredential(r.Context())

	parent, err := folderPath(r)
	if err != nil {
		WriteCapabilityError(w, err)
		return
	}
	if err := cred.AuthorizeFolder(parent); err != nil {
		WriteCapabilityError(w, err)
		return
	}

	limit, ok := queryInt(r, "limit", folderDefaultLimit)
	if !ok || limit < 1 || limit > folderMaxLimit {
		BadRequest(w, "limit must be between 1 and 1000")
		return
	}
	depth, ok := queryInt(r, "depth", 1)
	if !ok || depth < 1 || depth > folderMaxDepth {
		BadRequest(w, "depth must be between 1 and 5")
		return
	}

	if parent != "/" {
		exists, err := h.store.FolderExists(r.Context(), cred.WorkspaceID, parent)
		if err != nil {
			InternalServerError(w)
			return
		}
		if !exists {
			NotFound(w, CodeFolderNotFound, "Folder not found")
			return
		}
	}

	entries, err := h.buildListing(r, cred.WorkspaceID, parent, depth)
	if err != nil {
		InternalServerError(w)
		return
	}

	// Apply the opaque cursor, then the page limit.
	if rawCursor := r.URL.Query().Get("cursor"); rawCursor != "" {
		after, err := decodeListCursor(rawCursor)
		if err != nil {
			BadRequest(w, "Invalid cursor")
			return
		}
		for len(entries) > 0 && !entryAfter(entries[0], after) {
			entries = entries[1:]
		}
	}

	hasMore := len(entries) > limit
	if hasMore {
		entries = entries[:limit]
	}
	page := map[string]any{
		"limit":    limit,
		"returned": len(entries),
		"hasMore":  hasMore,
	}
	if hasMore && len(entries) > 0 {
		page["nextCursor"] = encodeListCursor(entries[len(entries)-1])
	}

	WritePage(w, map[string]any{"path": parent, "items": entries}, page)
}

// buildListing assembles the sorted entry list for a parent folder.
func (h *FolderHandler) buildListing(r *http.Request, workspaceID, parent string, depth int) ([]FolderEntry, error) {
	ctx := r.Context()

	files, err := h.store.ListFilesUnder(ctx, workspaceID, parent)
	if err != nil {
		return nil, err
	}
	explicit, err := h.store.ListFoldersByParent(ctx, workspaceID, parent)
	if err != nil {
		return nil, err
	}

	prefix := parent
	if prefix != "/" {
		prefix += "/"
	}

	type folderAgg struct {
		updatedAt string
		children  map[string]struct{}
	}
	folders := make(map[string]*folderAgg) // relative folder path -> agg
	var fileEntries []FolderEntry

	addFolder := func(rel string) *folderAgg {
		agg, ok := folders[rel]
		if !ok {
			agg = &folderAgg{children: make(map[string]struct{})}
			folders[rel] = agg
		}
		return agg
	}

	for _, f := range explicit {
		rel := strings.TrimPrefix(f.Path, prefix)
		agg := addFolder(rel)
		if agg.updatedAt == "" {
			agg.updatedAt = models.FormatTime(f.CreatedAt)
		}
	}

	for _, f := range files {
		rel := strings.TrimPrefix(f.Path, prefix)
		segments := strings.Split(rel, "/")
		updated := models.FormatTime(f.UpdatedAt)

		if len(segments) <= depth {
			size := f.SizeBytes
			fileEntries = append(fileEntries, FolderEntry{
				Name:      rel,
				Type:      "file",
				Size:      &size,
				UpdatedAt: updated,
			})
		}

		// Every ancestor within depth shows up as a folder; each records
		// its direct child for the childCount.
		for i := 1; i < len(segments) && i <= depth; i++ {
			folderRel := strings.Join(segments[:i], "/")
			agg := addFolder(folderRel)
			agg.children[segments[i]] = struct{}{}
			if updated > agg.updatedAt {
				agg.updatedAt = updated
			}
		}
	}

	entries := make([]FolderEntry, 0, len(folders)+len(fileEntries))
	for rel, agg := range folders {
		count := len(agg.children)
		entries = append(entries, FolderEntry{
			Name:       rel,
			Type:       "folder",
			ChildCount: &count,
			UpdatedAt:  agg.updatedAt,
		})
	}
	entries = append(entries, fileEntries...)
	sortEntries(entries)
	return entries, nil
}

// sortEntries orders folders before files, each alphabetically and
// case-insensitive.
func sortEntries(entries []FolderEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Type != entries[j].Type {
			return entries[i].Type == "folder"
		}
		li, lj := strings.ToLower(entries[i].Name), strings.ToLower(entries[j].Name)
		if li != lj {
			return li < lj
		}
		return entries[i].Name < entries[j].Name
	})
}

func encodeListCursor(e FolderEntry) string {
	return base64.RawURLEncoding.EncodeToString([]byte(e.Type + "|" + e.Name))
}

func decodeListCursor(s string) (FolderEntry, error) {
	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return FolderEntry{}, err
	}
	typ, name, ok := strings.Cut(string(raw), "|")
	if !ok {
		return FolderEntry{}, capability.ErrInvalidEncoding
	}
	return FolderEntry{Type: typ, Name: name}, nil
}

// entryAfter reports whether e sorts strictly after the cursor entry.
func entryAfter(e, after FolderEntry) bool {
	if e.Type != after.Type {
		return e.Type == "file" // folders sort first
	}
	return strings.ToLower(e.Name) > strings.ToLower(after.Name)
}

// Create handles POST /w/{key}/folders[/{path}]: materialize an explicit
// folder under the given parent.
func (h *FolderHandler) Create(w http.ResponseWriter, r *http.Request) {
	cred := middleware.GetCredential(r.Context())

	parent, err := folderPath(r)
	if err != nil {
		WriteCapabilityError(w, err)
		return
	}

	var req CreateFolderRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" || strings.Contains(name, "/") {
		BadRequest(w, "Folder name is required and must not contain '/'")
		return
	}
	if len(name) > models.MaxFolderNameLength {
		BadRequest(w, "Folder name must be at most 255 characters")
		return
	}

	path, err := models.NormalizePath(strings.TrimSuffix(parent, "/") + "/" + name)
	if err != nil {
		WriteCapabilityError(w, err)
		return
	}
	if err := cred.Authorize(models.PermissionWrite); err != nil {
		WriteCapabilityError(w, err)
		return
	}
	if err := cred.AuthorizeFolder(path); err != nil {
		WriteCapabilityError(w, err)
		return
	}

	folder := &models.Folder{
		WorkspaceID: cred.WorkspaceID,
		Path:        path,
		Name:        name,
	}
	if _, err := h.store.CreateFolder(r.Context(), folder); err != nil {
		WriteCapabilityError(w, err)
		return
	}

	if r.Context().Err() == nil {
		h.audit.Record(cred.WorkspaceID, cred.ActorType(), cred.Actor(), "folder.create", folder.ID,
			map[string]any{"path": path})
	}

	WriteCreated(w, map[string]any{
		"id":        folder.ID,
		"path":      folder.Path,
		"name":      folder.Name,
		"createdAt": models.FormatTime(folder.CreatedAt),
	})
}

// Delete handles DELETE /w/{key}/folders/{path}: soft-delete every live
// file under the folder and drop its explicit rows. Root is not
// deletable.
func (h *FolderHandler) Delete(w http.ResponseWriter, r *http.Request) {
	cred := middleware.GetCredential(r.Context())

	path, err := folderPath(r)
	if err != nil {
		WriteCapabilityError(w, err)
		return
	}
	if path == "/" {
		BadRequest(w, "Cannot delete the root folder")
		return
	}
	if err := cred.Authorize(models.PermissionWrite); err != nil {
		WriteCapabilityError(w, err)
		return
	}
	if err := cred.AuthorizeFolder(path); err != nil {
		WriteCapabilityError(w, err)
		return
	}

	deleted, err := h.store.DeleteFolder(r.Context(), cred.WorkspaceID, path, time.Now())
	if err != nil {
		WriteCapabilityError(w, err)
		return
	}

	if r.Context().Err() == nil {
		h.audit.Record(cred.WorkspaceID, cred.ActorType(), cred.Actor(), "folder.delete", path,
			map[string]any{"deletedFiles": deleted})
	}

	WriteOK(w, map[string]any{
		"path":         path,
		"deletedFiles": deleted,
	})
}
