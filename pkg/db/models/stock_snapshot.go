package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/mosly/envelope-stock/pkg/enums"
)

// StockSnapshot is one item row of a physical count. Rows sharing SnapshotID
// were recorded together and carry the same TakenAt.
type StockSnapshot struct {
	ID         int64           `gorm:"column:id;primaryKey;autoIncrement"`
	SnapshotID uuid.UUID       `gorm:"column:snapshot_id;not null"`
	TakenAt    time.Time       `gorm:"column:taken_at;not null"`
	ItemName   enums.StockItem `gorm:"column:item_name;not null"`
	Quantity   int             `gorm:"column:quantity;not null"`
	Note       string          `gorm:"column:note;not null;default:''"`
	CreatedAt  time.Time       `gorm:"column:created_at;autoCreateTime"`
}

func (StockSnapshot) TableName() string { return "stock_snapshots" }
