package models

import (
	"time"

	"github.com/mosly/envelope-stock/pkg/enums"
)

// StockCurrent is the persisted projection of on-hand quantity per item.
type StockCurrent struct {
	ItemName  enums.StockItem `gorm:"column:item_name;primaryKey"`
	Quantity  int             `gorm:"column:quantity;not null"`
	UpdatedAt time.Time       `gorm:"column:updated_at"`
}

func (StockCurrent) TableName() string { return "stock_current" }
