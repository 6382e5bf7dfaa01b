package models

import (
	"time"

	"github.com/mosly/envelope-stock/pkg/enums"
)

// StockMovement is one signed quantity change in the append-only stock ledger.
// Seq is assigned by the database and breaks ties between equal OccurredAt values.
type StockMovement struct {
	Seq        int64                `gorm:"column:seq;primaryKey;autoIncrement" json:"seq"`
	OccurredAt time.Time            `gorm:"column:occurred_at;not null" json:"occurred_at"`
	ItemName   enums.StockItem      `gorm:"column:item_name;not null" json:"item_name"`
	Change     int                  `gorm:"column:change;not null" json:"change"`
	Reason     string               `gorm:"column:reason;not null" json:"reason"`
	Source     enums.MovementSource `gorm:"column:source;not null" json:"source"`
	SourceID   string               `gorm:"column:source_id;not null;default:''" json:"source_id,omitempty"`
	CreatedAt  time.Time            `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

func (StockMovement) TableName() string { return "stock_movements" }
