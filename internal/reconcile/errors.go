package reconcile

import (
	pkgerrors "github.com/mosly/envelope-stock/pkg/errors"
)

// Persistence failure steps reported in error details.
const (
	StepDedupScan    = "dedup_scan"
	StepAppend       = "append"
	StepComputeState = "compute_state"
	StepPersistState = "persist_state"
	StepBaseline     = "set_baseline"
	StepSnapshot     = "record_snapshot"
)

// PersistenceDetails tells the caller how far a failed run got.
type PersistenceDetails struct {
	Step      string `json:"step"`
	Committed int    `json:"committed"`
	Remaining int    `json:"remaining"`
}

func fetchError(err error) error {
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "fetching orders failed; nothing was written, retry is safe")
}

func persistenceError(err error, step string, committed, remaining int) error {
	return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "stock store write failed; retry from the same baseline").
		WithDetails(PersistenceDetails{Step: step, Committed: committed, Remaining: remaining})
}

func validationError(message string) *pkgerrors.Error {
	return pkgerrors.New(pkgerrors.CodeValidation, message)
}
