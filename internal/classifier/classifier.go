// Package classifier maps incoming orders to the packaging they consume.
package classifier

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"

	"github.com/mosly/envelope-stock/pkg/enums"
	"github.com/mosly/envelope-stock/pkg/types"
)

// priorityKeywords mark shipping-upgrade line items that never go into an envelope.
var priorityKeywords = []string{
	"elsőbbségi",
	"elsobsegi",
	"priority",
	"express",
	"gyorsított",
	"gyorsitott",
}

var folder = cases.Lower(language.Und)

// Classification is the derived packaging demand of one order.
type Classification struct {
	Quantity int            `json:"quantity"`
	Category enums.Category `json:"category"`
}

// Classify returns the consumable quantity and envelope category of the order.
func Classify(order types.OrderEvent) Classification {
	qty := ConsumableQuantity(order)
	return Classification{Quantity: qty, Category: CategoryFor(qty)}
}

// ConsumableQuantity sums the quantities of all non-priority line items.
func ConsumableQuantity(order types.OrderEvent) int {
	total := 0
	for _, item := range order.LineItems {
		if item.Quantity <= 0 || IsPriorityItem(item.Title) {
			continue
		}
		total += item.Quantity
	}
	return total
}

// IsPriorityItem reports whether the line item title names a priority or express option.
func IsPriorityItem(title string) bool {
	folded := fold(title)
	if folded == "" {
		return false
	}
	for _, keyword := range priorityKeywords {
		if strings.Contains(folded, keyword) {
			return true
		}
	}
	return false
}

// CategoryFor maps a consumable quantity to its envelope size.
func CategoryFor(qty int) enums.Category {
	switch {
	case qty == 1:
		return enums.CategoryF16
	case qty == 2 || qty == 3:
		return enums.CategoryH18
	case qty == 4:
		return enums.CategoryI19
	case qty == 5 || qty == 6:
		return enums.CategoryK20
	default:
		return enums.CategoryNone
	}
}

func fold(s string) string {
	return folder.String(norm.NFC.String(strings.TrimSpace(s)))
}
