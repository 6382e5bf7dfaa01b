package settings

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/mosly/envelope-stock/internal/repo"
	"github.com/mosly/envelope-stock/pkg/db"
	"github.com/mosly/envelope-stock/pkg/db/models"
)

// KeyBaseline stores the cutoff before which orders are considered accounted for.
const KeyBaseline = "baseline_datetime"

// Repository reads and writes process-wide settings.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Baseline(ctx context.Context) (time.Time, bool, error)
	SetBaseline(ctx context.Context, at time.Time) error
}

type repository struct {
	repo.Base
	now func() time.Time
}

// NewRepository returns a settings repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{Base: repo.NewBase(db), now: time.Now}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{Base: r.Bind(tx), now: r.now}
}

func (r *repository) Get(ctx context.Context, key string) (string, bool, error) {
	var setting models.Setting
	err := r.DB(ctx).Where("key = ?", key).Take(&setting).Error
	if err != nil {
		if db.IsNotFound(err) {
			return "", false, nil
		}
		return "", false, err
	}
	return setting.Value, true, nil
}

func (r *repository) Set(ctx context.Context, key, value string) error {
	setting := models.Setting{Key: key, Value: value, UpdatedAt: r.now().UTC()}
	return r.DB(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&setting).Error
}

func (r *repository) Baseline(ctx context.Context) (time.Time, bool, error) {
	raw, ok, err := r.Get(ctx, KeyBaseline)
	if err != nil || !ok {
		return time.Time{}, false, err
	}
	at, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("parse %s %q: %w", KeyBaseline, raw, err)
	}
	return at.UTC(), true, nil
}

func (r *repository) SetBaseline(ctx context.Context, at time.Time) error {
	if at.IsZero() {
		return fmt.Errorf("baseline time is required")
	}
	return r.Set(ctx, KeyBaseline, db.Timestamp(at).Format(time.RFC3339Nano))
}
