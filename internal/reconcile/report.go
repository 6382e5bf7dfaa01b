package reconcile

import (
	"time"

	"github.com/mosly/envelope-stock/internal/snapshots"
	"github.com/mosly/envelope-stock/internal/stock"
	"github.com/mosly/envelope-stock/pkg/db/models"
	"github.com/mosly/envelope-stock/pkg/enums"
)

// SyncReport summarizes one sync run. Committed and Remaining let a caller
// retry a failed run from the same baseline.
type SyncReport struct {
	RunID            string                 `json:"run_id"`
	Baseline         time.Time              `json:"baseline"`
	StartedAt        time.Time              `json:"started_at"`
	FinishedAt       time.Time              `json:"finished_at"`
	Fetched          int                    `json:"fetched"`
	NewOrders        int                    `json:"new_orders"`
	MaterialDeducted int                    `json:"material_deducted"`
	PerCategory      map[enums.Category]int `json:"per_category"`
	Duplicates       int                    `json:"duplicates"`
	Ignored          int                    `json:"ignored"`
	Invalid          int                    `json:"invalid"`
	Empty            int                    `json:"empty"`
	Committed        int                    `json:"committed"`
	Remaining        int                    `json:"remaining"`
	Orders           []IngestedOrder        `json:"orders"`
	State            stock.State            `json:"state,omitempty"`
}

// IngestedOrder is one order whose deductions were appended during the run.
type IngestedOrder struct {
	ID       string         `json:"id"`
	Name     string         `json:"name"`
	Quantity int            `json:"quantity"`
	Category enums.Category `json:"category"`
}

func newSyncReport(runID string, baseline, startedAt time.Time) *SyncReport {
	return &SyncReport{
		RunID:       runID,
		Baseline:    baseline,
		StartedAt:   startedAt,
		PerCategory: map[enums.Category]int{},
		Orders:      []IngestedOrder{},
	}
}

// AdjustInput describes one manual stock correction. A zero At means now.
type AdjustInput struct {
	Item   enums.StockItem `json:"item"`
	Delta  int             `json:"delta"`
	Reason string          `json:"reason"`
	At     time.Time       `json:"at"`
}

// AdjustReport is the appended movement, the new baseline and the follow-up sync.
// SyncError is set when the movement committed but the follow-up sync did not.
type AdjustReport struct {
	Movement  models.StockMovement `json:"movement"`
	Previous  int                  `json:"previous"`
	Baseline  time.Time            `json:"baseline"`
	Sync      *SyncReport          `json:"sync,omitempty"`
	SyncError string               `json:"sync_error,omitempty"`
}

// SnapshotInput is a full physical count. Every stock item must be present.
type SnapshotInput struct {
	At         time.Time               `json:"at"`
	Quantities map[enums.StockItem]int `json:"quantities"`
	Note       string                  `json:"note"`
}

// SnapshotReport acknowledges a recorded snapshot.
type SnapshotReport struct {
	Snapshot *snapshots.Snapshot `json:"snapshot"`
	Baseline time.Time           `json:"baseline"`
	State    stock.State         `json:"state"`
}
