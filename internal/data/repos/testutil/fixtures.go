package testutil

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/topicgen-backend/internal/domain/jobs"
)

// OwnerID returns a fresh owner id so tests sharing a database stay isolated.
func OwnerID() string {
	return "user-" + uuid.NewString()
}

func SeedJob(tb testing.TB, ctx context.Context, tx *gorm.DB, ownerID, topic string, createdAt time.Time) *jobs.Job {
	tb.Helper()
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	j := &jobs.Job{
		ID:        uuid.New(),
		OwnerID:   ownerID,
		Topic:     topic,
		State:     jobs.StateProcessing,
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}
	if err := tx.WithContext(ctx).Create(j).Error; err != nil {
		tb.Fatalf("seed job: %v", err)
	}
	return j
}

// ContentJSON encodes a backfilled content value for a terminal write.
func ContentJSON(tb testing.TB, topic string) []byte {
	tb.Helper()
	c := &jobs.Content{Topic: topic}
	c.Backfill(jobs.DefaultLevels)
	raw, err := json.Marshal(c)
	if err != nil {
		tb.Fatalf("encode content: %v", err)
	}
	return raw
}

func ErrorInfoJSON(tb testing.TB, kind jobs.ErrorKind, reason string) []byte {
	tb.Helper()
	raw, err := json.Marshal(jobs.ErrorInfo{Kind: kind, Reason: reason})
	if err != nil {
		tb.Fatalf("encode error info: %v", err)
	}
	return raw
}
