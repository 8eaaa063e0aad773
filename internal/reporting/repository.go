package reporting

import (
	"context"
	"time"

	"gorm.io/gorm"
)

// Repository reads recorded calls for reporting. Calls without a recording
// are never returned.
type Repository interface {
	ListRecordedCalls(ctx context.Context, from, to time.Time) ([]CallRow, error)
}

type GormRepo struct {
	db *gorm.DB
}

func NewGormRepo(db *gorm.DB) *GormRepo { return &GormRepo{db: db} }

const listRecordedCalls = `
SELECT c.id,
       COALESCE(c.team_name, a.team_name) AS team_name,
       c.user_phone,
       c.duration_seconds,
       c.analysis_status,
       c.sentiment,
       c.sentiment_score
FROM calls c
LEFT JOIN agents a ON a.phone = c.user_phone
WHERE c.recording_path IS NOT NULL
  AND c.recording_path <> ''
  AND c.created_at >= ?
  AND c.created_at < ?
ORDER BY c.id
`

func (r *GormRepo) ListRecordedCalls(ctx context.Context, from, to time.Time) ([]CallRow, error) {
	var rows []CallRow
	if err := r.db.WithContext(ctx).Raw(listRecordedCalls, from.UTC(), to.UTC()).Scan(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
