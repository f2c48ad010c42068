package store

import (
	"context"
	"strings"

	"gorm.io/gorm"

	"github.com/marklog/marklog/pkg/models"
)

// ============================================================================
// Generic GORM Helpers
// ============================================================================
//
// These helpers reduce repetitive CRUD boilerplate across store implementation
// files. They are unexported (package-internal) and operate on the raw *gorm.DB
// to avoid coupling to GORMStore. Each helper handles standard concerns like
// context propagation, not-found error conversion, and unique constraint
// detection.

// getByField retrieves a single record of type T by matching field=value.
// It converts gorm.ErrRecordNotFound to the provided notFoundErr for
// consistent domain error mapping.
//
// Example:
//
//	key, err := getByField[models.ApiKey](db, ctx, "key_hash", hash, models.ErrKeyNotFound)
func getByField[T any](db *gorm.DB, ctx context.Context, field string, value any, notFoundErr error) (*T, error) {
	var result T
	if err := db.WithContext(ctx).Where(field+" = ?", value).First(&result).Error; err != nil {
		return nil, convertNotFoundError(err, notFoundErr)
	}
	return &result, nil
}

// listByField retrieves all records of type T matching field=value with an
// optional ORDER BY clause. Returns an empty slice (not nil) on success
// with no records.
//
// Example:
//
//	hooks, err := listByField[models.Webhook](db, ctx, "workspace_id", id, "created_at DESC")
func listByField[T any](db *gorm.DB, ctx context.Context, field string, value any, order string) ([]*T, error) {
	var results []*T
	q := db.WithContext(ctx).Where(field+" = ?", value)
	if order != "" {
		q = q.Order(order)
	}
	if err := q.Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

// createWithID generates a prefixed ID for the entity if it has no ID, then
// creates it in the database. The idSetter callback sets the generated ID on
// the entity. Unique constraint violations are converted to dupErr.
//
// Example:
//
//	id, err := createWithID(db, ctx, ws, func(w *models.Workspace, id string) { w.ID = id }, ws.ID, models.PrefixWorkspace, models.ErrDuplicateFile)
func createWithID[T any](db *gorm.DB, ctx context.Context, entity *T, idSetter func(*T, string), currentID, idPrefix string, dupErr error) (string, error) {
	id := currentID
	if id == "" {
		id = models.NewID(idPrefix)
		idSetter(entity, id)
	}
	if err := db.WithContext(ctx).Create(entity).Error; err != nil {
		if isUniqueConstraintError(err) {
			return "", dupErr
		}
		return "", err
	}
	return id, nil
}

// escapeLike escapes LIKE wildcards in a literal so user-supplied paths
// and search terms cannot act as patterns. Queries using the result must
// add ESCAPE '\'.
func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `%`, `\%`)
	s = strings.ReplaceAll(s, `_`, `\_`)
	return s
}

// scopedFiles appends a WHERE clause restricting file paths to a scope.
// The path column name is passed in since files and appends store it under
// different names.
func scopedFiles(q *gorm.DB, column string, scope models.Scope) *gorm.DB {
	switch scope.Type {
	case models.ScopeFolder:
		prefix := strings.TrimSuffix(scope.Path, "/")
		return q.Where(column+` LIKE ? ESCAPE '\'`, escapeLike(prefix)+"/%")
	case models.ScopeFile:
		return q.Where(column+" = ?", scope.Path)
	default:
		return q
	}
}
