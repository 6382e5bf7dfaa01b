package forecast

import (
	"github.com/shopspring/decimal"

	"github.com/mosly/envelope-stock/pkg/enums"
	pkgerrors "github.com/mosly/envelope-stock/pkg/errors"
)

// EnvelopeNeed is the projected number of envelopes of one category.
type EnvelopeNeed struct {
	Category enums.Category `json:"category"`
	Count    int            `json:"historical_count"`
	Need     int64          `json:"need"`
}

// Estimate projects envelope demand for an incoming material quantity.
type Estimate struct {
	Incoming        int             `json:"incoming"`
	AverageQuantity decimal.Decimal `json:"average_quantity"`
	EstimatedOrders decimal.Decimal `json:"estimated_orders"`
	Envelopes       []EnvelopeNeed  `json:"envelopes"`
}

// Project splits the orders that incoming material will serve across the
// envelope categories in proportion to their historical counts. Needs are
// rounded half to even.
func Project(summary *Summary, incoming int) (*Estimate, error) {
	if incoming < 1 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "incoming must be at least 1")
	}
	if summary == nil || summary.TotalOrders == 0 || summary.TotalQuantity <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "average order quantity is zero for the selected range")
	}

	// incoming / (quantity / orders); the rounded average is display only.
	estimated := decimal.NewFromInt(int64(incoming)).
		Mul(decimal.NewFromInt(int64(summary.TotalOrders))).
		Div(decimal.NewFromInt(int64(summary.TotalQuantity)))

	counts := make(map[enums.Category]int, len(summary.Categories))
	for _, entry := range summary.Categories {
		counts[entry.Category] = entry.Count
	}
	envelopeTotal := 0
	for _, category := range enums.EnvelopeCategories() {
		envelopeTotal += counts[category]
	}
	if envelopeTotal == 0 {
		envelopeTotal = 1
	}
	denominator := decimal.NewFromInt(int64(envelopeTotal) * int64(summary.TotalQuantity))
	served := int64(incoming) * int64(summary.TotalOrders)

	out := &Estimate{
		Incoming:        incoming,
		AverageQuantity: summary.AverageQuantity,
		EstimatedOrders: estimated.Round(1),
		Envelopes:       make([]EnvelopeNeed, 0, 4),
	}
	for _, category := range enums.EnvelopeCategories() {
		count := counts[category]
		need := decimal.NewFromInt(int64(count) * served).Div(denominator).RoundBank(0)
		out.Envelopes = append(out.Envelopes, EnvelopeNeed{
			Category: category,
			Count:    count,
			Need:     need.IntPart(),
		})
	}
	return out, nil
}
