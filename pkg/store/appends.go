package store

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/marklog/marklog/pkg/models"
)

// ============================================
// APPEND OPERATIONS
// ============================================

// nextAppendSeq assigns the next local id for a file by bumping its
// transactional counter. The conditional update also guards against
// appending to tombstoned files.
func nextAppendSeq(tx *gorm.DB, fileID string) (int, error) {
	result := tx.Model(&models.File{}).
		Where("id = ? AND deleted_at IS NULL", fileID).
		UpdateColumn("append_seq", gorm.Expr("append_seq + 1"))
	if result.Error != nil {
		return 0, result.Error
	}
	if result.RowsAffected == 0 {
		var file models.File
		if err := tx.Where("id = ?", fileID).First(&file).Error; err != nil {
			return 0, convertNotFoundError(err, models.ErrFileNotFound)
		}
		return 0, models.ErrFileDeleted
	}

	var seq int
	err := tx.Model(&models.File{}).
		Where("id = ?", fileID).
		Select("append_seq").
		Scan(&seq).Error
	return seq, err
}

// insertAppendAt stamps identity for an already reserved log position
// and writes the append.
func insertAppendAt(tx *gorm.DB, a *models.Append, seq int) error {
	a.Seq = seq
	a.AppendID = models.LocalAppendID(seq)
	a.ID = models.AppendRowID(a.FileID, seq)
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	return tx.Create(a).Error
}

// insertAppend stamps identity and log position on the append and writes it.
func insertAppend(tx *gorm.DB, a *models.Append) error {
	seq, err := nextAppendSeq(tx, a.FileID)
	if err != nil {
		return err
	}
	return insertAppendAt(tx, a, seq)
}

func (s *GORMStore) CreateAppend(ctx context.Context, a *models.Append) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return insertAppend(tx, a)
	})
}

func (s *GORMStore) CreateClaimAppend(ctx context.Context, a *models.Append, guard ClaimGuard) error {
	now := time.Now()
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Reserve the log position before reading any claim state. The
		// seq bump locks the file row, so racing claimers queue here
		// and the loser's predicate reads see the winner's committed
		// claim. A rejected claim rolls the reservation back with the
		// transaction.
		seq, err := nextAppendSeq(tx, a.FileID)
		if err != nil {
			return err
		}

		var task models.Append
		err = tx.Where("file_id = ? AND append_id = ? AND type = ?",
			a.FileID, a.Ref, string(models.AppendTask)).
			First(&task).Error
		if err != nil {
			return convertNotFoundError(err, models.ErrTaskNotFound)
		}

		// Terminal events targeting the task itself: complete and response
		// finish it, cancel-of-task ends it for good. Cancel targeting a
		// claim is not terminal; it returns the task to pending.
		var terminal int64
		if err := tx.Model(&models.Append{}).
			Where("file_id = ? AND ref = ? AND type IN ?", a.FileID, a.Ref,
				[]string{string(models.AppendComplete), string(models.AppendCancel), string(models.AppendResponse)}).
			Count(&terminal).Error; err != nil {
			return err
		}
		if terminal > 0 {
			return models.ErrClaimConflict
		}

		// A claim completed via its own lineage also finishes the task.
		var completedClaims int64
		if err := tx.Model(&models.Append{}).
			Where("file_id = ? AND ref = ? AND type = ? AND status = ?",
				a.FileID, a.Ref, string(models.AppendClaim), models.ClaimStatusCompleted).
			Count(&completedClaims).Error; err != nil {
			return err
		}
		if completedClaims > 0 {
			return models.ErrClaimConflict
		}

		// First-writer-wins: no active unexpired claim may exist for
		// this task. Safe to read here because the file-row lock above
		// serializes claimers.
		var active int64
		if err := tx.Model(&models.Append{}).
			Where("file_id = ? AND ref = ? AND type = ? AND status = ? AND expires_at > ?",
				a.FileID, a.Ref, string(models.AppendClaim), models.ClaimStatusActive, now).
			Count(&active).Error; err != nil {
			return err
		}
		if active > 0 {
			return models.ErrClaimConflict
		}

		if guard.WIPLimit > 0 {
			held, err := countActiveClaimsTx(tx, a.WorkspaceID, a.Author, guard.Scope, now)
			if err != nil {
				return err
			}
			if held >= int64(guard.WIPLimit) {
				return models.ErrWIPExceeded
			}
		}

		a.Status = models.ClaimStatusActive
		return insertAppendAt(tx, a, seq)
	})
}

func (s *GORMStore) CreateRenewAppend(ctx context.Context, a *models.Append, newExpiry time.Time) error {
	now := time.Now()
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		claim, err := claimByLocalID(tx, a.FileID, a.Ref)
		if err != nil {
			return err
		}
		if claim.Author != a.Author {
			return models.ErrNotClaimOwner
		}

		result := tx.Model(&models.Append{}).
			Where("id = ? AND status = ? AND expires_at > ?", claim.ID, models.ClaimStatusActive, now).
			Update("expires_at", newExpiry)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return models.ErrClaimExpired
		}

		a.ExpiresAt = &newExpiry
		return insertAppend(tx, a)
	})
}

func (s *GORMStore) CreateClaimTransitionAppend(ctx context.Context, a *models.Append, newStatus string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		claim, err := claimByLocalID(tx, a.FileID, a.Ref)
		if err != nil {
			return err
		}

		result := tx.Model(&models.Append{}).
			Where("id = ? AND status = ?", claim.ID, models.ClaimStatusActive).
			Update("status", newStatus)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return models.ErrClaimConflict
		}

		return insertAppend(tx, a)
	})
}

func claimByLocalID(tx *gorm.DB, fileID, localID string) (*models.Append, error) {
	var claim models.Append
	err := tx.Where("file_id = ? AND append_id = ? AND type = ?",
		fileID, localID, string(models.AppendClaim)).
		First(&claim).Error
	if err != nil {
		return nil, convertNotFoundError(err, models.ErrClaimNotFound)
	}
	return &claim, nil
}

func (s *GORMStore) GetAppend(ctx context.Context, fileID, localID string) (*models.Append, error) {
	var a models.Append
	err := s.db.WithContext(ctx).
		Where("file_id = ? AND append_id = ?", fileID, localID).
		First(&a).Error
	if err != nil {
		return nil, convertNotFoundError(err, models.ErrAppendNotFound)
	}
	return &a, nil
}

func (s *GORMStore) ListAppendsByFile(ctx context.Context, fileID string) ([]*models.Append, error) {
	var appends []*models.Append
	err := s.db.WithContext(ctx).
		Where("file_id = ?", fileID).
		Order("seq ASC").
		Find(&appends).Error
	if err != nil {
		return nil, err
	}
	return appends, nil
}

func (s *GORMStore) ListAppendsByWorkspace(ctx context.Context, workspaceID string, scope models.Scope, since *time.Time) ([]*models.Append, error) {
	var appends []*models.Append
	q := s.db.WithContext(ctx).
		Where("workspace_id = ?", workspaceID).
		Where("file_id IN (?)", s.db.Model(&models.File{}).
			Select("id").
			Where("workspace_id = ? AND deleted_at IS NULL", workspaceID))
	q = scopedFiles(q, "file_path", scope)
	if since != nil {
		q = q.Where("created_at >= ?", *since)
	}
	err := q.Order("file_id ASC, seq ASC").Find(&appends).Error
	if err != nil {
		return nil, err
	}
	return appends, nil
}

func (s *GORMStore) CountActiveClaims(ctx context.Context, workspaceID, author string, scope models.Scope, now time.Time) (int64, error) {
	return countActiveClaimsTx(s.db.WithContext(ctx), workspaceID, author, scope, now)
}

func countActiveClaimsTx(tx *gorm.DB, workspaceID, author string, scope models.Scope, now time.Time) (int64, error) {
	var count int64
	q := tx.Model(&models.Append{}).
		Where("workspace_id = ? AND author = ? AND type = ? AND status = ? AND expires_at > ?",
			workspaceID, author, string(models.AppendClaim), models.ClaimStatusActive, now)
	q = scopedFiles(q, "file_path", scope)
	err := q.Count(&count).Error
	return count, err
}

func (s *GORMStore) ListExpiredClaims(ctx context.Context, now time.Time, limit int) ([]*models.Append, error) {
	var claims []*models.Append
	q := s.db.WithContext(ctx).
		Where("type = ? AND status = ? AND expires_at <= ?",
			string(models.AppendClaim), models.ClaimStatusActive, now).
		Order("expires_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&claims).Error; err != nil {
		return nil, err
	}
	return claims, nil
}
