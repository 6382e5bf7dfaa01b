package enums

import (
	"fmt"
	"strings"
)

// StockItem names one tracked SKU.
type StockItem string

const (
	StockItemMosolap StockItem = "mosolap"
	StockItemF16     StockItem = "F16"
	StockItemH18     StockItem = "H18"
	StockItemI19     StockItem = "I19"
	StockItemK20     StockItem = "K20"
)

// ItemType groups stock items into consumable material and envelopes.
type ItemType string

const (
	ItemTypeMaterial ItemType = "material"
	ItemTypeEnvelope ItemType = "envelope"
)

var stockItemTypes = map[StockItem]ItemType{
	StockItemMosolap: ItemTypeMaterial,
	StockItemF16:     ItemTypeEnvelope,
	StockItemH18:     ItemTypeEnvelope,
	StockItemI19:     ItemTypeEnvelope,
	StockItemK20:     ItemTypeEnvelope,
}

var orderedStockItems = []StockItem{
	StockItemMosolap,
	StockItemF16,
	StockItemH18,
	StockItemI19,
	StockItemK20,
}

// StockItems returns every tracked item in display order.
func StockItems() []StockItem {
	items := make([]StockItem, len(orderedStockItems))
	copy(items, orderedStockItems)
	return items
}

// MaterialItem is the item every order consumes per unit.
func MaterialItem() StockItem {
	return StockItemMosolap
}

// IsValid reports whether the value names a tracked item.
func (i StockItem) IsValid() bool {
	_, ok := stockItemTypes[i]
	return ok
}

// Type returns the item type; unknown items return an empty type.
func (i StockItem) Type() ItemType {
	return stockItemTypes[i]
}

func (i StockItem) String() string {
	return string(i)
}

// ParseStockItem resolves raw input case-insensitively ("f16" → F16).
func ParseStockItem(value string) (StockItem, error) {
	trimmed := strings.TrimSpace(value)
	for _, candidate := range orderedStockItems {
		if strings.EqualFold(string(candidate), trimmed) {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid stock item %q", value)
}
