package enums

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Category is the envelope bucket an order ships in. The zero value is CategoryNone.
type Category string

const (
	CategoryNone Category = ""
	CategoryF16  Category = "F16"
	CategoryH18  Category = "H18"
	CategoryI19  Category = "I19"
	CategoryK20  Category = "K20"
)

const categoryNoneLabel = "none"

var envelopeCategories = []Category{CategoryF16, CategoryH18, CategoryI19, CategoryK20}

// EnvelopeCategories lists the categories that consume an envelope, smallest first.
func EnvelopeCategories() []Category {
	out := make([]Category, len(envelopeCategories))
	copy(out, envelopeCategories)
	return out
}

// IsValid reports whether the value is one of the closed set, None included.
func (c Category) IsValid() bool {
	if c == CategoryNone {
		return true
	}
	for _, candidate := range envelopeCategories {
		if candidate == c {
			return true
		}
	}
	return false
}

// IsNone reports whether the category consumes no envelope.
func (c Category) IsNone() bool {
	return c == CategoryNone
}

// StockItem returns the envelope item consumed by the category.
func (c Category) StockItem() (StockItem, bool) {
	if c.IsNone() || !c.IsValid() {
		return "", false
	}
	return StockItem(c), true
}

func (c Category) String() string {
	if c == CategoryNone {
		return categoryNoneLabel
	}
	return string(c)
}

func (c Category) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c *Category) UnmarshalText(text []byte) error {
	parsed, err := ParseCategory(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

func (c Category) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

// ParseCategory converts raw input into a Category; "" and "none" map to CategoryNone.
func ParseCategory(value string) (Category, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" || strings.EqualFold(trimmed, categoryNoneLabel) {
		return CategoryNone, nil
	}
	for _, candidate := range envelopeCategories {
		if strings.EqualFold(string(candidate), trimmed) {
			return candidate, nil
		}
	}
	return CategoryNone, fmt.Errorf("invalid category %q", value)
}
