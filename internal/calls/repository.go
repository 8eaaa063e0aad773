package calls

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"
)

var (
	ErrNotFound  = errors.New("calls: not found")
	ErrDuplicate = errors.New("calls: dedup key already exists")
	ErrStorage   = errors.New("calls: storage failure")
)

// Repository is the persistence contract for call records and their analysis rows.
//
// Every mutation of a single call is one UPDATE statement (or one transaction),
// so concurrent writers never clobber columns they did not touch.
type Repository interface {
	Get(ctx context.Context, id int64) (Call, error)
	Create(ctx context.Context, c *Call) error
	Update(ctx context.Context, id int64, p Patch) error

	// ClaimStub merges p into the stub only while it still has no recording.
	// It returns ErrNotFound if another upload claimed the stub first.
	ClaimStub(ctx context.Context, id int64, p Patch) error

	FindByDedupKey(ctx context.Context, userPhone string, start time.Time) (Call, bool, error)
	FindLatestStub(ctx context.Context, phoneNumber string) (Call, bool, error)
	FindByRecording(ctx context.Context, phoneNumber, recordingPath string) (Call, bool, error)

	SaveAnalysis(ctx context.Context, callID int64, res *AnalysisResult, p Patch) error
	LatestAnalysis(ctx context.Context, callID int64) (AnalysisResult, bool, error)

	// CountRecordedSince returns recorded-call counters keyed by uploader phone.
	CountRecordedSince(ctx context.Context, since time.Time) (map[string]int, error)
}

// Patch lists the columns an update touches. Nil fields are left as they are.
type Patch struct {
	Status          *string
	Direction       *Direction
	RecordingPath   *string
	DurationSeconds *int
	UserName        *string
	UserPhone       *string
	CustomerName    *string
	TeamName        *string
	CallStartTime   *time.Time
	AnalysisStatus  *AnalysisStatus
	Summary         *string
	Sentiment       *string
	SentimentScore  *int
	Outcome         *string
}

func (p Patch) columns() map[string]any {
	m := map[string]any{}
	if p.Status != nil {
		m["status"] = *p.Status
	}
	if p.Direction != nil {
		m["direction"] = *p.Direction
	}
	if p.RecordingPath != nil {
		m["recording_path"] = *p.RecordingPath
	}
	if p.DurationSeconds != nil {
		m["duration_seconds"] = *p.DurationSeconds
	}
	if p.UserName != nil {
		m["user_name"] = *p.UserName
	}
	if p.UserPhone != nil {
		m["user_phone"] = *p.UserPhone
	}
	if p.CustomerName != nil {
		m["customer_name"] = *p.CustomerName
	}
	if p.TeamName != nil {
		m["team_name"] = *p.TeamName
	}
	if p.CallStartTime != nil {
		m["call_start_time"] = *p.CallStartTime
	}
	if p.AnalysisStatus != nil {
		m["analysis_status"] = *p.AnalysisStatus
	}
	if p.Summary != nil {
		m["summary"] = *p.Summary
	}
	if p.Sentiment != nil {
		m["sentiment"] = *p.Sentiment
	}
	if p.SentimentScore != nil {
		m["sentiment_score"] = *p.SentimentScore
	}
	if p.Outcome != nil {
		m["outcome"] = *p.Outcome
	}
	return m
}

// Migrate creates the tables and the partial dedup index. The index only
// covers rows where both halves of the key are present.
func Migrate(ctx context.Context, db *gorm.DB) error {
	if err := db.WithContext(ctx).AutoMigrate(&Call{}, &AnalysisResult{}); err != nil {
		return err
	}
	const q = `
CREATE UNIQUE INDEX IF NOT EXISTS idx_calls_dedup
ON calls (user_phone, call_start_time)
WHERE user_phone <> '' AND call_start_time IS NOT NULL
`
	return db.WithContext(ctx).Exec(q).Error
}

// GormRepo implements Repository on top of gorm (Postgres in production,
// SQLite in tests).
type GormRepo struct {
	db *gorm.DB
}

func NewGormRepo(db *gorm.DB) *GormRepo { return &GormRepo{db: db} }

func (r *GormRepo) Get(ctx context.Context, id int64) (Call, error) {
	var c Call
	if err := r.db.WithContext(ctx).Take(&c, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Call{}, ErrNotFound
		}
		return Call{}, storageErr(err)
	}
	return c, nil
}

func (r *GormRepo) Create(ctx context.Context, c *Call) error {
	if c.AnalysisStatus == "" {
		c.AnalysisStatus = AnalysisPending
	}
	if err := r.db.WithContext(ctx).Create(c).Error; err != nil {
		if isDuplicate(err) {
			return ErrDuplicate
		}
		return storageErr(err)
	}
	return nil
}

func (r *GormRepo) Update(ctx context.Context, id int64, p Patch) error {
	cols := p.columns()
	if len(cols) == 0 {
		return nil
	}
	res := r.db.WithContext(ctx).Model(&Call{}).Where("id = ?", id).Updates(cols)
	if res.Error != nil {
		if isDuplicate(res.Error) {
			return ErrDuplicate
		}
		return storageErr(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *GormRepo) ClaimStub(ctx context.Context, id int64, p Patch) error {
	cols := p.columns()
	if len(cols) == 0 {
		return nil
	}
	res := r.db.WithContext(ctx).Model(&Call{}).
		Where("id = ? AND (recording_path IS NULL OR recording_path = '')", id).
		Updates(cols)
	if res.Error != nil {
		if isDuplicate(res.Error) {
			return ErrDuplicate
		}
		return storageErr(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *GormRepo) FindByDedupKey(ctx context.Context, userPhone string, start time.Time) (Call, bool, error) {
	var c Call
	err := r.db.WithContext(ctx).
		Where("user_phone = ? AND call_start_time = ?", userPhone, start).
		Order("id DESC").
		Take(&c).Error
	return found(c, err)
}

func (r *GormRepo) FindLatestStub(ctx context.Context, phoneNumber string) (Call, bool, error) {
	var c Call
	err := r.db.WithContext(ctx).
		Where("phone_number = ? AND (recording_path IS NULL OR recording_path = '')", phoneNumber).
		Order("created_at DESC").
		Order("id DESC").
		Take(&c).Error
	return found(c, err)
}

func (r *GormRepo) FindByRecording(ctx context.Context, phoneNumber, recordingPath string) (Call, bool, error) {
	var c Call
	err := r.db.WithContext(ctx).
		Where("phone_number = ? AND recording_path = ?", phoneNumber, recordingPath).
		Order("id DESC").
		Take(&c).Error
	return found(c, err)
}

func (r *GormRepo) SaveAnalysis(ctx context.Context, callID int64, res *AnalysisResult, p Patch) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res.CallID = callID
		if err := tx.Create(res).Error; err != nil {
			return err
		}
		cols := p.columns()
		if len(cols) == 0 {
			return nil
		}
		upd := tx.Model(&Call{}).Where("id = ?", callID).Updates(cols)
		if upd.Error != nil {
			return upd.Error
		}
		if upd.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
	if err != nil && !errors.Is(err, ErrNotFound) {
		return storageErr(err)
	}
	return err
}

func (r *GormRepo) LatestAnalysis(ctx context.Context, callID int64) (AnalysisResult, bool, error) {
	var a AnalysisResult
	err := r.db.WithContext(ctx).
		Where("call_id = ?", callID).
		Order("created_at DESC").
		Order("id DESC").
		Take(&a).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return AnalysisResult{}, false, nil
		}
		return AnalysisResult{}, false, storageErr(err)
	}
	return a, true, nil
}

func (r *GormRepo) CountRecordedSince(ctx context.Context, since time.Time) (map[string]int, error) {
	var rows []struct {
		UserPhone string
		N         int
	}
	err := r.db.WithContext(ctx).Model(&Call{}).
		Select("user_phone, COUNT(*) AS n").
		Where("created_at >= ? AND recording_path IS NOT NULL AND recording_path <> ''", since).
		Group("user_phone").
		Scan(&rows).Error
	if err != nil {
		return nil, storageErr(err)
	}
	out := make(map[string]int, len(rows))
	for _, row := range rows {
		out[row.UserPhone] = row.N
	}
	return out, nil
}

func found(c Call, err error) (Call, bool, error) {
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Call{}, false, nil
		}
		return Call{}, false, storageErr(err)
	}
	return c, true, nil
}

func storageErr(err error) error {
	return errors.Join(ErrStorage, err)
}

// isDuplicate recognises unique violations from drivers that do not
// implement gorm's error translation.
func isDuplicate(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") || strings.Contains(msg, "duplicate key")
}
