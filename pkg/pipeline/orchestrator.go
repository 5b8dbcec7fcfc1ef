// Package pipeline implements the Pipeline Orchestrator (component C7):
// the per-request state machine that sequences C1-C6 and emits the
// status frames a client sees between READ_CACHE and DONE (spec.md
// §4.7).
package pipeline

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/chainlens/nlquery/pkg/cache"
	"github.com/chainlens/nlquery/pkg/contracts"
	"github.com/chainlens/nlquery/pkg/executor"
	"github.com/chainlens/nlquery/pkg/shaper"
	"github.com/chainlens/nlquery/pkg/shared/logging"
	"github.com/chainlens/nlquery/pkg/stream"
	"github.com/chainlens/nlquery/pkg/types"
)

// Stage status texts, verbatim from the original service's status
// message set (spec.md §7 Testable Properties S1/S2).
const (
	statusProcessing        = "Processing your query"
	statusGeneratingSPARQL  = "Analyzing contexts in the knowledge graph"
	statusExecutingQuery    = "Fetching contextual data from knowledge graph"
	statusNoResults         = "No context found, thinking more"
	statusProcessingResults = "Analyzing context and preparing answer"
	noDataMessage           = "I do not have this information yet."
	generationTemperature   = 0.0
)

// Orchestrator wires C1-C6 into the READ_CACHE -> GENERATE -> EXECUTE ->
// SHAPE -> CONTEXTUALIZE -> DONE state machine.
type Orchestrator struct {
	gate        *cache.Gate
	llm         contracts.LanguageModelClient
	triplestore contracts.TriplestoreClient
	multiplexer *stream.Multiplexer
	log         *logrus.Logger
}

func New(gate *cache.Gate, llm contracts.LanguageModelClient, triplestore contracts.TriplestoreClient, multiplexer *stream.Multiplexer, log *logrus.Logger) *Orchestrator {
	return &Orchestrator{gate: gate, llm: llm, triplestore: triplestore, multiplexer: multiplexer, log: log}
}

// Run drives one request end to end, pushing every frame (status,
// heartbeat, answer chunk, error, done) onto out. Run owns out: it
// always closes it before returning, and a stage failure always
// produces an error or no-data frame followed by Done rather than a Go
// error crossing into the HTTP surface (spec.md §4.7 "never raises into
// the HTTP surface").
func (o *Orchestrator) Run(ctx context.Context, req types.NLRequest, out chan<- types.PipelineEvent) {
	defer close(out)

	fields := logging.NewFields().Component("pipeline").Operation("run")
	effective := req.EffectiveQuery()

	o.emit(ctx, out, types.Status(statusProcessing))

	// READ_CACHE
	payload, hit := o.gate.Lookup(ctx, effective)
	cacheMiss := !hit

	if !hit {
		o.emit(ctx, out, types.Status(statusGeneratingSPARQL))

		// GENERATE
		raw, err := o.llm.GenerateComplete(ctx, effective, o.llm.NLToSparqlPrompt(), generationTemperature)
		if err != nil {
			o.log.WithFields(fields.Error(err).ToLogrus()).Warn("language model generation failed")
			o.finishNoData(ctx, out)
			return
		}
		payload = o.llm.DetectAndParseSparql(raw)
		if payload.IsEmpty() {
			o.finishNoData(ctx, out)
			return
		}
	}

	// EXECUTE
	o.emit(ctx, out, types.Status(statusExecutingQuery))
	finalResponse, err := o.execute(ctx, payload)
	if err != nil {
		o.log.WithFields(fields.Error(err).ToLogrus()).Warn("triplestore execution failed")
		o.finishNoData(ctx, out)
		return
	}

	if finalResponse.RowCount() == 0 {
		o.emit(ctx, out, types.Status(statusNoResults))
	} else if cacheMiss {
		// On first successful execution of a cache-miss payload, persist it.
		if err := o.gate.Store(ctx, effective, payload); err != nil {
			o.log.WithFields(fields.Error(err).ToLogrus()).Warn("cache store failed, continuing without caching")
		}
	}

	// SHAPE
	shaped := shaper.Shape(finalResponse)

	// CONTEXTUALIZE
	o.emit(ctx, out, types.Status(statusProcessingResults))
	answerStream, err := o.llm.ContextualizeAnswer(ctx, req.Query, payloadSPARQLForPrompt(payload), shaped, o.llm.NLToSparqlPrompt())
	if err != nil {
		o.log.WithFields(fields.Error(err).ToLogrus()).Warn("contextualize call failed")
		o.finishNoData(ctx, out)
		return
	}

	if err := o.multiplexer.Run(ctx, answerStream, out); err != nil {
		o.log.WithFields(fields.Error(err).ToLogrus()).Info("stream terminated by cancellation")
		return
	}
	o.emit(ctx, out, types.Done())
}

// execute dispatches Single payloads as one triplestore call and
// Sequential payloads through the Sequential Executor (C3).
func (o *Orchestrator) execute(ctx context.Context, payload types.SparqlPayload) (types.TriplestoreResponse, error) {
	if payload.Kind == types.PayloadSequential {
		result, err := executor.New(o.triplestore, o.log).Run(ctx, payload.Steps)
		return result.FinalResponse, err
	}
	return o.triplestore.Execute(ctx, payload.Single)
}

// finishNoData emits the fixed "no data" answer chunk followed by Done,
// the short-circuit path for every DONE(no-data) transition in the
// state machine (spec.md §4.7).
func (o *Orchestrator) finishNoData(ctx context.Context, out chan<- types.PipelineEvent) {
	o.emit(ctx, out, types.AnswerChunk(noDataMessage))
	o.emit(ctx, out, types.Done())
}

func (o *Orchestrator) emit(ctx context.Context, out chan<- types.PipelineEvent, event types.PipelineEvent) {
	select {
	case out <- event:
	case <-ctx.Done():
	}
}

// payloadSPARQLForPrompt renders the executed query text for the
// contextualize prompt: the single query, or the last step of a
// sequential plan (the one whose result grounds the final answer).
func payloadSPARQLForPrompt(payload types.SparqlPayload) string {
	if payload.Kind == types.PayloadSequential && len(payload.Steps) > 0 {
		return payload.Steps[len(payload.Steps)-1].SPARQL
	}
	return payload.Single
}
