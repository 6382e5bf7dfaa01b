// Package forecast summarises order ranges and estimates envelope demand.
package forecast

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mosly/envelope-stock/internal/classifier"
	"github.com/mosly/envelope-stock/pkg/enums"
	pkgerrors "github.com/mosly/envelope-stock/pkg/errors"
	"github.com/mosly/envelope-stock/pkg/logger"
	"github.com/mosly/envelope-stock/pkg/types"
)

const (
	dateLayout      = "2006-01-02"
	defaultCacheTTL = 60 * time.Second
	maxRangeDays    = 366
)

// OrderLister returns orders created inside an inclusive time range.
type OrderLister interface {
	ListOrders(ctx context.Context, from, to time.Time) ([]types.OrderEvent, error)
}

// Cache stores fetched order ranges for a short time.
type Cache interface {
	GetJSON(ctx context.Context, key string, dest any) (bool, error)
	SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error
	CacheKey(parts ...string) string
}

// OrderRow is one classified order of a summary.
type OrderRow struct {
	Name     string         `json:"name"`
	Quantity int            `json:"quantity"`
	Category enums.Category `json:"category"`
}

// CategoryCount is the share of orders falling into one category.
type CategoryCount struct {
	Category enums.Category  `json:"category"`
	Count    int             `json:"count"`
	Percent  decimal.Decimal `json:"percent"`
}

// Summary aggregates the orders of a date range.
type Summary struct {
	From            string          `json:"from"`
	To              string          `json:"to"`
	TotalOrders     int             `json:"total_orders"`
	TotalQuantity   int             `json:"total_quantity"`
	AverageQuantity decimal.Decimal `json:"average_quantity"`
	Orders          []OrderRow      `json:"orders"`
	Categories      []CategoryCount `json:"categories"`
}

// Service builds summaries from the order source.
type Service struct {
	orders OrderLister
	cache  Cache
	ttl    time.Duration
	logg   *logger.Logger
}

// NewService wires the summary service. cache may be nil.
func NewService(orders OrderLister, cache Cache, ttl time.Duration, logg *logger.Logger) (*Service, error) {
	if orders == nil {
		return nil, errors.New("order lister required")
	}
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &Service{orders: orders, cache: cache, ttl: ttl, logg: logg}, nil
}

// ParseRange parses YYYY-MM-DD bounds into an inclusive UTC day range.
func ParseRange(from, to string) (time.Time, time.Time, error) {
	start, err := time.Parse(dateLayout, from)
	if err != nil {
		return time.Time{}, time.Time{}, pkgerrors.New(pkgerrors.CodeValidation, "from must be a YYYY-MM-DD date")
	}
	end, err := time.Parse(dateLayout, to)
	if err != nil {
		return time.Time{}, time.Time{}, pkgerrors.New(pkgerrors.CodeValidation, "to must be a YYYY-MM-DD date")
	}
	if end.Before(start) {
		return time.Time{}, time.Time{}, pkgerrors.New(pkgerrors.CodeValidation, "to must not be before from")
	}
	if end.Sub(start) > maxRangeDays*24*time.Hour {
		return time.Time{}, time.Time{}, pkgerrors.New(pkgerrors.CodeValidation, "range must not exceed one year")
	}
	return start, end.Add(24*time.Hour - time.Second), nil
}

// Summary fetches and classifies the orders between the from and to dates.
func (s *Service) Summary(ctx context.Context, from, to string) (*Summary, error) {
	start, end, err := ParseRange(from, to)
	if err != nil {
		return nil, err
	}
	orders, err := s.fetch(ctx, start, end)
	if err != nil {
		return nil, err
	}
	summary := Summarize(orders)
	summary.From = start.Format(dateLayout)
	summary.To = end.Format(dateLayout)
	return summary, nil
}

func (s *Service) fetch(ctx context.Context, start, end time.Time) ([]types.OrderEvent, error) {
	var key string
	if s.cache != nil {
		key = s.cache.CacheKey("orders", start.Format(dateLayout), end.Format(dateLayout))
		var cached []types.OrderEvent
		found, err := s.cache.GetJSON(ctx, key, &cached)
		if err != nil {
			s.warn(ctx, key, "order range cache read failed", err)
		}
		if found {
			return cached, nil
		}
	}

	orders, err := s.orders.ListOrders(ctx, start, end)
	if err != nil {
		if pkgerrors.As(err) != nil {
			return nil, err
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders")
	}

	if s.cache != nil {
		if err := s.cache.SetJSON(ctx, key, orders, s.ttl); err != nil {
			s.warn(ctx, key, "order range cache write failed", err)
		}
	}
	return orders, nil
}

func (s *Service) warn(ctx context.Context, key, msg string, err error) {
	if s.logg == nil {
		return
	}
	ctx = s.logg.WithFields(ctx, map[string]any{"cache_key": key, "error": err.Error()})
	s.logg.Warn(ctx, msg)
}

// Summarize classifies orders and aggregates quantities and category shares.
// Orders without consumable items count towards the average.
func Summarize(orders []types.OrderEvent) *Summary {
	summary := &Summary{
		TotalOrders:     len(orders),
		AverageQuantity: decimal.Zero,
		Orders:          make([]OrderRow, 0, len(orders)),
		Categories:      []CategoryCount{},
	}
	counts := map[enums.Category]int{}
	for _, order := range orders {
		result := classifier.Classify(order)
		name := order.Name
		if name == "" {
			name = "#" + order.ID
		}
		summary.Orders = append(summary.Orders, OrderRow{Name: name, Quantity: result.Quantity, Category: result.Category})
		summary.TotalQuantity += result.Quantity
		counts[result.Category]++
	}
	if summary.TotalOrders == 0 {
		return summary
	}

	total := decimal.NewFromInt(int64(summary.TotalOrders))
	summary.AverageQuantity = decimal.NewFromInt(int64(summary.TotalQuantity)).Div(total).Round(2)
	for category, count := range counts {
		summary.Categories = append(summary.Categories, CategoryCount{
			Category: category,
			Count:    count,
			Percent:  decimal.NewFromInt(int64(count)).Mul(decimal.NewFromInt(100)).Div(total).Round(1),
		})
	}
	sort.Slice(summary.Categories, func(i, j int) bool {
		if summary.Categories[i].Count != summary.Categories[j].Count {
			return summary.Categories[i].Count > summary.Categories[j].Count
		}
		return summary.Categories[i].Category.String() < summary.Categories[j].Category.String()
	})
	return summary
}
