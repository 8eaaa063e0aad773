package audit

import (
	"context"

	"gorm.io/gorm"
)

// Repository is the persistence contract for audit events.
// It is append-only; there is no Update or Delete.
type Repository interface {
	Append(ctx context.Context, e Event) error
}

func Migrate(ctx context.Context, db *gorm.DB) error {
	return db.WithContext(ctx).AutoMigrate(&Event{})
}

type GormRepo struct {
	db *gorm.DB
}

func NewGormRepo(db *gorm.DB) *GormRepo { return &GormRepo{db: db} }

func (r *GormRepo) Append(ctx context.Context, e Event) error {
	return r.db.WithContext(ctx).Create(&e).Error
}

// ListByCall returns a call's audit trail, oldest first.
func (r *GormRepo) ListByCall(ctx context.Context, callID int64) ([]Event, error) {
	var out []Event
	err := r.db.WithContext(ctx).Where("call_id = ?", callID).Order("created_at").Find(&out).Error
	return out, err
}
