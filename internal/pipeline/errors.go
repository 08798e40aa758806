package pipeline

import (
	"errors"
	"fmt"

	"github.com/gravitas-eo/urbanheat-cli/internal/model"
	"github.com/gravitas-eo/urbanheat-cli/pkg/earthengine"
)

// Kind is the machine-readable failure class of a pipeline error. Every
// failure crossing the pipeline boundary carries exactly one Kind; no stage
// raises a bare fault.
type Kind string

const (
	// KindNoImageryFound: the filtered collection was empty before
	// compositing.
	KindNoImageryFound Kind = "no_imagery_found"
	// KindStatisticsFailure: a region reduction call faulted.
	KindStatisticsFailure Kind = "statistics_failure"
	// KindReductionBudgetExceeded: a region reduction needed more pixels than
	// the configured ceiling allows.
	KindReductionBudgetExceeded Kind = "reduction_budget_exceeded"
	// KindTileGenerationFailure: the engine could not materialize a tile
	// endpoint for an index.
	KindTileGenerationFailure Kind = "tile_generation_failure"
	// KindMissingIndex: the assembler was asked to render an index absent
	// from the chain's output.
	KindMissingIndex Kind = "missing_index"
)

// Error is the tagged failure the pipeline surfaces to its caller. Reducer is
// set for statistics failures, Index for tile and missing-index failures.
type Error struct {
	Kind    Kind
	Reducer earthengine.Reducer
	Index   model.Index
	err     error
}

// Error implements error.
func (e *Error) Error() string {
	switch {
	case e.Reducer != "" && e.err != nil:
		return fmt.Sprintf("%s (%s): %v", e.Kind, e.Reducer, e.err)
	case e.Index != "" && e.err != nil:
		return fmt.Sprintf("%s (%s): %v", e.Kind, e.Index, e.err)
	case e.err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.err)
	case e.Index != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Index)
	default:
		return string(e.Kind)
	}
}

// Unwrap exposes the underlying cause for errors.Is/As.
func (e *Error) Unwrap() error { return e.err }

// KindOf extracts the failure class from any error in the chain, or "" when
// the error did not originate in the pipeline.
func KindOf(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return ""
}
