// Package executor implements the Sequential Executor (component C3):
// running an ordered plan against the triplestore, threading bindings
// from each step's first result row forward into later steps.
package executor

import (
	"context"
	"math"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/chainlens/nlquery/pkg/contracts"
	"github.com/chainlens/nlquery/pkg/injection"
	"github.com/chainlens/nlquery/pkg/shared/logging"
	"github.com/chainlens/nlquery/pkg/types"
)

// Executor runs PlanSteps in order against a TriplestoreClient.
type Executor struct {
	triplestore contracts.TriplestoreClient
	log         *logrus.Logger
}

func New(triplestore contracts.TriplestoreClient, log *logrus.Logger) *Executor {
	return &Executor{triplestore: triplestore, log: log}
}

// Result is the outcome of executing a Sequential plan.
type Result struct {
	FinalResponse types.TriplestoreResponse
	Bindings      types.Bindings
	// StepDiagnostics records non-fatal injection diagnostics encountered
	// while substituting markers, in step order. These never abort the
	// plan (spec.md §7: injection errors clamp and continue).
	StepDiagnostics []error
}

// Run executes steps in strict order: step i+1 never begins before step
// i's triplestore response has been merged into Bindings (spec.md §5
// ordering guarantees). On the first transport or protocol failure the
// plan aborts with the error; the caller (C7) handles fallback.
func (e *Executor) Run(ctx context.Context, steps []types.PlanStep) (Result, error) {
	bindings := types.Bindings{}
	var finalResponse types.TriplestoreResponse
	var diagnostics []error

	for i, step := range steps {
		sparql := substituteMarkers(step, bindings, e.log, &diagnostics)

		fields := logging.NewFields().Component("executor").Operation("execute_step").
			Custom("step_index", i).Custom("step_count", len(steps))
		e.log.WithFields(fields.ToLogrus()).Info("executing plan step")

		resp, err := e.triplestore.Execute(ctx, sparql)
		if err != nil {
			e.log.WithFields(fields.Error(err).ToLogrus()).Warn("triplestore transport failure, aborting plan")
			return Result{Bindings: bindings, StepDiagnostics: diagnostics}, err
		}

		mergeBindings(bindings, resp)
		finalResponse = resp
	}

	return Result{FinalResponse: finalResponse, Bindings: bindings, StepDiagnostics: diagnostics}, nil
}

// substituteMarkers replaces each of the step's injection markers, in
// order, with its evaluated literal. Each replacement targets the first
// remaining textual occurrence of that marker's pattern in the (possibly
// already partially substituted) body.
func substituteMarkers(step types.PlanStep, bindings types.Bindings, log *logrus.Logger, diagnostics *[]error) string {
	body := step.SPARQL
	for _, marker := range step.InjectMarkers {
		value, diag := injection.Evaluate(marker.Marker, bindings)
		if diag != nil {
			*diagnostics = append(*diagnostics, diag)
			log.WithFields(logging.NewFields().Component("injection").Operation("evaluate").
				Custom("expr", marker.Expr).Error(diag).ToLogrus()).
				Warn("injection evaluation diagnostic, clamped to safe default")
		}

		literal := strconv.FormatInt(value, 10)
		idx := strings.Index(body, marker.Marker)
		if idx < 0 {
			// Marker pattern not found (e.g. already consumed by an
			// identical earlier marker) — proceed without replacement,
			// matching spec.md §4.3 step 1.
			continue
		}
		body = body[:idx] + literal + body[idx+len(marker.Marker):]
	}
	return body
}

// mergeBindings folds resp's first row (or boolean value) into bindings,
// overwriting on name collision (spec.md invariant: later steps overwrite
// earlier bindings of the same name).
func mergeBindings(bindings types.Bindings, resp types.TriplestoreResponse) {
	if resp.IsBoolean {
		bindings["boolean"] = types.BindingValue{IsBool: true, Bool: resp.Boolean}
		return
	}
	row, ok := resp.FirstRow()
	if !ok {
		return
	}
	for _, col := range resp.Columns {
		cell, present := row[col]
		if !present {
			continue
		}
		bindings[col] = bindingFromCell(cell)
	}
}

func bindingFromCell(cell types.Cell) types.BindingValue {
	if n, err := strconv.ParseFloat(cell.Value, 64); err == nil {
		if n == math.Trunc(n) {
			return types.BindingValue{IsNumeric: true, Number: n, IsInt: true}
		}
		return types.BindingValue{IsNumeric: true, Number: n, IsInt: false}
	}
	return types.BindingValue{Text: cell.Value}
}
