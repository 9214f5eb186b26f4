package db

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/yungbote/topicgen-backend/internal/domain/jobs"
	"github.com/yungbote/topicgen-backend/internal/domain/progress"
)

// Models lists every table the service owns, in migration order.
func Models() []interface{} {
	return []interface{}{
		&jobs.Job{},
		&progress.Progress{},
	}
}

func AutoMigrateAll(db *gorm.DB) error {
	if err := db.AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}
