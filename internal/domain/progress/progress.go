package progress

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	MaxCategories     = 256
	MaxCategoryLength = 128
)

// Progress is the per-(owner, job) record of consumed item indices.
type Progress struct {
	ID         uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	OwnerID    string         `gorm:"column:owner_id;type:varchar(128);not null;uniqueIndex:idx_job_progress_owner_job,priority:1" json:"owner_id"`
	JobID      uuid.UUID      `gorm:"type:uuid;column:job_id;not null;uniqueIndex:idx_job_progress_owner_job,priority:2;index" json:"job_id"`
	ItemsState datatypes.JSON `gorm:"column:items_state;not null" json:"items_state"`
	CreatedAt  time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt  time.Time      `gorm:"not null" json:"updated_at"`
}

func (Progress) TableName() string { return "job_progress" }

// Items decodes ItemsState; an empty column yields an empty map.
func (p *Progress) Items() (ItemsState, error) {
	if p == nil || len(p.ItemsState) == 0 || string(p.ItemsState) == "null" {
		return ItemsState{}, nil
	}
	var out ItemsState
	if err := json.Unmarshal(p.ItemsState, &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = ItemsState{}
	}
	return out, nil
}

// ItemsState maps an open-ended category key (e.g. "beginner_module") to the
// item indices consumed in that category.
type ItemsState map[string][]int

// Clean validates the mapping and drops duplicate indices, keeping the
// first-seen order. The receiver is not modified.
func (s ItemsState) Clean() (ItemsState, error) {
	if len(s) > MaxCategories {
		return nil, fmt.Errorf("too many categories: %d (max %d)", len(s), MaxCategories)
	}
	out := make(ItemsState, len(s))
	for key, indices := range s {
		if strings.TrimSpace(key) == "" {
			return nil, fmt.Errorf("category key must not be empty")
		}
		if len([]rune(key)) > MaxCategoryLength {
			return nil, fmt.Errorf("category key %q exceeds %d characters", key, MaxCategoryLength)
		}
		seen := make(map[int]struct{}, len(indices))
		list := make([]int, 0, len(indices))
		for _, idx := range indices {
			if idx < 0 {
				return nil, fmt.Errorf("category %q: negative index %d", key, idx)
			}
			if _, dup := seen[idx]; dup {
				continue
			}
			seen[idx] = struct{}{}
			list = append(list, idx)
		}
		out[key] = list
	}
	return out, nil
}

// Encode returns the JSON column value for s.
func (s ItemsState) Encode() (datatypes.JSON, error) {
	if s == nil {
		s = ItemsState{}
	}
	raw, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(raw), nil
}
