package repos

import (
	"github.com/yungbote/topicgen-backend/internal/data/repos/jobs"
	"github.com/yungbote/topicgen-backend/internal/data/repos/progress"
	"github.com/yungbote/topicgen-backend/internal/platform/logger"
	"gorm.io/gorm"
)

type JobRepo = jobs.JobRepo
type JobListOptions = jobs.ListOptions
type JobTransition = jobs.Transition

type ProgressRepo = progress.ProgressRepo

func NewJobRepo(db *gorm.DB, baseLog *logger.Logger) JobRepo { return jobs.NewJobRepo(db, baseLog) }
func NewProgressRepo(db *gorm.DB, baseLog *logger.Logger) ProgressRepo {
	return progress.NewProgressRepo(db, baseLog)
}
