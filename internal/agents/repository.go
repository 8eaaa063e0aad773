package agents

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"callcenter-platform/internal/phone"
)

var (
	ErrNotFound = errors.New("agents: not found")
	ErrInvalid  = errors.New("agents: invalid registration")
)

// Repository is the read side of the roster plus an upsert used for seeding.
// Roster administration lives outside this service.
type Repository interface {
	Get(ctx context.Context, phone string) (Registration, error)
	List(ctx context.Context) ([]Registration, error)
	Upsert(ctx context.Context, r Registration) error
}

func Migrate(ctx context.Context, db *gorm.DB) error {
	return db.WithContext(ctx).AutoMigrate(&Registration{})
}

type GormRepo struct {
	db *gorm.DB
}

func NewGormRepo(db *gorm.DB) *GormRepo { return &GormRepo{db: db} }

func (r *GormRepo) Get(ctx context.Context, p string) (Registration, error) {
	var reg Registration
	err := r.db.WithContext(ctx).Take(&reg, "phone = ?", phone.Normalize(p)).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Registration{}, ErrNotFound
		}
		return Registration{}, err
	}
	return reg, nil
}

func (r *GormRepo) List(ctx context.Context) ([]Registration, error) {
	var out []Registration
	if err := r.db.WithContext(ctx).Order("phone").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *GormRepo) Upsert(ctx context.Context, reg Registration) error {
	reg.Phone = phone.Normalize(reg.Phone)
	if reg.Phone == "" {
		return ErrInvalid
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "phone"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "team_name"}),
	}).Create(&reg).Error
}
