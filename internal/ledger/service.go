package ledger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mosly/envelope-stock/pkg/db/models"
	"github.com/mosly/envelope-stock/pkg/enums"
	pkgerrors "github.com/mosly/envelope-stock/pkg/errors"
	"github.com/mosly/envelope-stock/pkg/pagination"
)

// Service validates and records stock movements.
type Service interface {
	RecordMovement(ctx context.Context, input RecordMovementInput) (*models.StockMovement, error)
	ListMovements(ctx context.Context, params ListParams) (*ListResult, error)
}

type service struct {
	repo Repository
}

// RecordMovementInput captures the immutable data a movement requires.
type RecordMovementInput struct {
	OccurredAt time.Time            `json:"occurred_at"`
	Item       enums.StockItem      `json:"item"`
	Change     int                  `json:"change"`
	Reason     string               `json:"reason"`
	Source     enums.MovementSource `json:"source"`
	SourceID   string               `json:"source_id"`
}

// NewService wires a ledger service with the provided repository.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) RecordMovement(ctx context.Context, input RecordMovementInput) (*models.StockMovement, error) {
	movement, err := BuildMovement(input)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Append(ctx, movement); err != nil {
		return nil, err
	}
	return movement, nil
}

func (s *service) ListMovements(ctx context.Context, params ListParams) (*ListResult, error) {
	if params.Item != "" && !params.Item.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown item %q", params.Item))
	}
	if _, err := pagination.ParseScopedCursor(params.Cursor, string(params.Item)); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	return s.repo.List(ctx, params)
}

// BuildMovement validates input and returns the model to append.
func BuildMovement(input RecordMovementInput) (*models.StockMovement, error) {
	if input.OccurredAt.IsZero() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "occurred_at is required")
	}
	if !input.Item.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown item %q", input.Item))
	}
	if input.Change == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "change must be non-zero")
	}
	reason := strings.TrimSpace(input.Reason)
	if reason == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reason is required")
	}
	if !input.Source.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid movement source %q", input.Source))
	}
	sourceID := strings.TrimSpace(input.SourceID)
	switch input.Source {
	case enums.MovementSourceExternalOrder:
		if sourceID == "" {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "source_id is required for external orders")
		}
	case enums.MovementSourceManual:
		if sourceID != "" {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "manual movements carry no source_id")
		}
	}

	return &models.StockMovement{
		OccurredAt: input.OccurredAt.UTC(),
		ItemName:   input.Item,
		Change:     input.Change,
		Reason:     reason,
		Source:     input.Source,
		SourceID:   sourceID,
	}, nil
}
