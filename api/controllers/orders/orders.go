package orders

import (
	"context"
	"net/http"
	"time"

	"github.com/mosly/envelope-stock/api/responses"
	"github.com/mosly/envelope-stock/api/validators"
	"github.com/mosly/envelope-stock/internal/forecast"
	"github.com/mosly/envelope-stock/pkg/logger"
)

const (
	defaultRangeDays = 30
	maxIncoming      = 1_000_000
)

// SummaryService summarises the orders of a date range.
type SummaryService interface {
	Summary(ctx context.Context, from, to string) (*forecast.Summary, error)
}

type forecastResponse struct {
	From        string             `json:"from"`
	To          string             `json:"to"`
	TotalOrders int                `json:"total_orders"`
	Estimate    *forecast.Estimate `json:"estimate"`
}

// Summary returns per-order rows and category shares for ?from=&to=, defaulting
// to the last 30 days.
func Summary(svc SummaryService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		from, to, err := parseRange(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		summary, err := svc.Summary(r.Context(), from, to)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, summary)
	}
}

// Forecast projects envelope needs for ?incoming= units of material using the
// order mix of the selected range.
func Forecast(svc SummaryService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		from, to, err := parseRange(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		incoming, err := validators.ParseQueryInt(r, "incoming", 0, 0, maxIncoming)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		summary, err := svc.Summary(r.Context(), from, to)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		estimate, err := forecast.Project(summary, incoming)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, forecastResponse{
			From:        summary.From,
			To:          summary.To,
			TotalOrders: summary.TotalOrders,
			Estimate:    estimate,
		})
	}
}

func parseRange(r *http.Request) (string, string, error) {
	today := time.Now().UTC()
	to, err := validators.ParseQueryDate(r, "to", today.Format(time.DateOnly))
	if err != nil {
		return "", "", err
	}
	from, err := validators.ParseQueryDate(r, "from", today.AddDate(0, 0, -defaultRangeDays).Format(time.DateOnly))
	if err != nil {
		return "", "", err
	}
	return from, to, nil
}
