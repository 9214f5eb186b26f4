package progress

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/topicgen-backend/internal/domain/progress"
	"github.com/yungbote/topicgen-backend/internal/platform/dbctx"
	"github.com/yungbote/topicgen-backend/internal/platform/dberr"
	"github.com/yungbote/topicgen-backend/internal/platform/logger"
)

type ProgressRepo interface {
	Get(dbc dbctx.Context, ownerID string, jobID uuid.UUID) (*types.Progress, error)
	Upsert(dbc dbctx.Context, p *types.Progress) (*types.Progress, error)
	DeleteForOwner(dbc dbctx.Context, ownerID string, jobID uuid.UUID) (bool, error)
	CountForOwnerJob(dbc dbctx.Context, ownerID string, jobID uuid.UUID) (int64, error)
}

type progressRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewProgressRepo(db *gorm.DB, baseLog *logger.Logger) ProgressRepo {
	return &progressRepo{
		db:  db,
		log: baseLog.With("repo", "ProgressRepo"),
	}
}

// Get returns nil, nil when no record exists.
func (r *progressRepo) Get(dbc dbctx.Context, ownerID string, jobID uuid.UUID) (*types.Progress, error) {
	if strings.TrimSpace(ownerID) == "" || jobID == uuid.Nil {
		return nil, nil
	}
	var p types.Progress
	err := dbc.DB(r.db).
		Where("owner_id = ? AND job_id = ?", ownerID, jobID).
		Limit(1).
		Find(&p).Error
	if err != nil {
		return nil, err
	}
	if p.ID == uuid.Nil {
		return nil, nil
	}
	return &p, nil
}

// Upsert inserts or fully replaces items_state for (owner_id, job_id). A
// unique violation that slips past ON CONFLICT falls back to a plain update.
func (r *progressRepo) Upsert(dbc dbctx.Context, p *types.Progress) (*types.Progress, error) {
	if p == nil || strings.TrimSpace(p.OwnerID) == "" || p.JobID == uuid.Nil {
		return nil, errors.New("progress requires owner_id and job_id")
	}
	now := time.Now().UTC()
	row := &types.Progress{
		ID:         p.ID,
		OwnerID:    p.OwnerID,
		JobID:      p.JobID,
		ItemsState: p.ItemsState,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if row.ID == uuid.Nil {
		row.ID = uuid.New()
	}
	if len(row.ItemsState) == 0 {
		row.ItemsState = []byte("{}")
	}

	err := dbc.DB(r.db).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "owner_id"}, {Name: "job_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"items_state", "updated_at"}),
		}).
		Create(row).Error
	if err != nil {
		if !dberr.IsUniqueViolation(err) {
			return nil, err
		}
		r.log.Warn("progress upsert conflicted, updating in place", "job_id", p.JobID)
		res := dbc.DB(r.db).
			Model(&types.Progress{}).
			Where("owner_id = ? AND job_id = ?", row.OwnerID, row.JobID).
			Updates(map[string]interface{}{
				"items_state": row.ItemsState,
				"updated_at":  now,
			})
		if res.Error != nil {
			return nil, res.Error
		}
	}

	stored, err := r.Get(dbc, row.OwnerID, row.JobID)
	if err != nil {
		return nil, err
	}
	if stored == nil {
		return nil, errors.New("progress vanished after upsert")
	}
	return stored, nil
}

func (r *progressRepo) DeleteForOwner(dbc dbctx.Context, ownerID string, jobID uuid.UUID) (bool, error) {
	if strings.TrimSpace(ownerID) == "" || jobID == uuid.Nil {
		return false, nil
	}
	res := dbc.DB(r.db).
		Where("owner_id = ? AND job_id = ?", ownerID, jobID).
		Delete(&types.Progress{})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *progressRepo) CountForOwnerJob(dbc dbctx.Context, ownerID string, jobID uuid.UUID) (int64, error) {
	var n int64
	err := dbc.DB(r.db).
		Model(&types.Progress{}).
		Where("owner_id = ? AND job_id = ?", ownerID, jobID).
		Count(&n).Error
	return n, err
}
