package export

import (
	"archive/zip"
	"bytes"
	"fmt"
	"strings"

	"github.com/marklog/marklog/pkg/models"
)

// BuildArchive packs workspace files into a zip. Paths keep their tree
// layout with the leading slash stripped, so "/notes/a.md" becomes
// "notes/a.md" in the archive.
func BuildArchive(files []*models.File) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	for _, f := range files {
		name := strings.TrimPrefix(f.Path, "/")
		header := &zip.FileHeader{
			Name:     name,
			Method:   zip.Deflate,
			Modified: f.UpdatedAt,
		}
		w, err := zw.CreateHeader(header)
		if err != nil {
			return nil, fmt.Errorf("failed to add %s to archive: %w", f.Path, err)
		}
		if _, err := w.Write([]byte(f.Content)); err != nil {
			return nil, fmt.Errorf("failed to write %s to archive: %w", f.Path, err)
		}
	}

	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize archive: %w", err)
	}
	return buf.Bytes(), nil
}
