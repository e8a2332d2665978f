// Package orchestrator drives a fuzzing run: every operation first replays its
// known regressions, then generates fresh test cases until its budget runs
// out or it stops producing anything unexpected.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/pyneda/apifuzz/pkg/api/core"
	"github.com/pyneda/apifuzz/pkg/api/openapi"
	"github.com/pyneda/apifuzz/pkg/corpus"
	"github.com/pyneda/apifuzz/pkg/fuzz"
	"github.com/pyneda/apifuzz/pkg/http_utils"
	"github.com/pyneda/apifuzz/pkg/report"
	"github.com/pyneda/apifuzz/pkg/scan/control"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc/pool"
	"golang.org/x/sync/errgroup"
)

// OperationState is where an operation is in its lifecycle.
type OperationState string

const (
	StatePending              OperationState = "Pending"
	StateReplayingRegressions OperationState = "ReplayingRegressions"
	StateGenerating           OperationState = "Generating"
	StateSaturated            OperationState = "Saturated"
	StateBudgetExhausted      OperationState = "BudgetExhausted"
	StateUnreachable          OperationState = "Unreachable"
	StateStopped              OperationState = "Stopped"
)

// Summary is the result of a run.
type Summary = report.Summary

// SeedFunc supplies fresh seeds.
type SeedFunc func() uint64

// Sender delivers a materialized request to the target.
type Sender interface {
	Send(ctx context.Context, req *core.Request, timeout time.Duration) (*http_utils.Response, error)
}

// Config holds orchestrator configuration
type Config struct {
	// BaseURL is the target the findings point at.
	BaseURL string
	// Budget is the maximum number of fresh test cases per operation.
	Budget int
	// SaturationWindow ends an operation early after that many consecutive
	// expected responses. Zero disables it.
	SaturationWindow int
	// Concurrency is how many operations are fuzzed at once.
	Concurrency int
	// MaxTransportRetries is how many times a failed send is retried.
	MaxTransportRetries int
	// MaxSkippedIterations ends an operation once that many consecutive
	// iterations got no response at all. Defaults to Budget.
	MaxSkippedIterations int
	RequestTimeout       time.Duration
	RetryBackoff         time.Duration
	RunID                string
	StatsDir             string

	Generator  *fuzz.Generator
	Builder    *openapi.RequestBuilder
	Classifier *fuzz.Classifier
	Transport  Sender
	Findings   *report.FindingStore
	Corpus     corpus.Store
	Timings    *report.Timings
	Control    *control.RunControl
	Seeds      SeedFunc
}

// DefaultConfig returns default orchestrator configuration
func DefaultConfig() Config {
	return Config{
		Budget:              256,
		SaturationWindow:    64,
		Concurrency:         4,
		MaxTransportRetries: 3,
		RequestTimeout:      10 * time.Second,
		RetryBackoff:        250 * time.Millisecond,
	}
}

type Orchestrator struct {
	config Config
}

// New fills unset fields of config with defaults. The transport and the
// finding store have no default and are checked by Run.
func New(config Config) *Orchestrator {
	defaults := DefaultConfig()
	if config.Budget <= 0 {
		config.Budget = defaults.Budget
	}
	if config.SaturationWindow < 0 {
		config.SaturationWindow = 0
	}
	if config.Concurrency <= 0 {
		config.Concurrency = defaults.Concurrency
	}
	if config.MaxTransportRetries < 0 {
		config.MaxTransportRetries = 0
	}
	if config.MaxSkippedIterations <= 0 {
		config.MaxSkippedIterations = config.Budget
	}
	if config.RequestTimeout <= 0 {
		config.RequestTimeout = defaults.RequestTimeout
	}
	if config.RetryBackoff < 0 {
		config.RetryBackoff = 0
	}
	if config.RunID == "" {
		config.RunID = uuid.NewString()
	}
	if config.Generator == nil {
		config.Generator = fuzz.NewGenerator(fuzz.DefaultOptions())
	}
	if config.Builder == nil {
		config.Builder = openapi.NewRequestBuilder()
	}
	if config.Classifier == nil {
		config.Classifier = fuzz.NewClassifier(nil, false)
	}
	if config.Corpus == nil {
		config.Corpus = corpus.NewMemory()
	}
	if config.Seeds == nil {
		config.Seeds = rand.Uint64
	}
	return &Orchestrator{config: config}
}

func (o *Orchestrator) Config() Config {
	return o.config
}

type operationResult struct {
	index   int
	summary report.OperationSummary
}

// Run fuzzes every operation and returns once all of them reached a final
// state or the run was stopped. Stores are flushed before returning.
func (o *Orchestrator) Run(ctx context.Context, ops []core.Operation) (*Summary, error) {
	if o.config.Transport == nil {
		return nil, errors.New("orchestrator has no transport")
	}
	if o.config.Findings == nil {
		return nil, errors.New("orchestrator has no finding store")
	}

	rc := o.config.Control
	if rc == nil {
		rc = control.New(ctx)
		defer rc.Close()
	} else {
		unwatch := context.AfterFunc(ctx, func() {
			rc.Stop("context cancelled")
		})
		defer unwatch()
	}

	summary := &Summary{
		RunID:     o.config.RunID,
		BaseURL:   o.config.BaseURL,
		OutputDir: o.config.Findings.Dir(),
		StartedAt: time.Now().UTC(),
	}
	log.Info().Str("run", o.config.RunID).Int("operations", len(ops)).Int("budget", o.config.Budget).Int("concurrency", o.config.Concurrency).Msg("Starting fuzzing run")

	p := pool.NewWithResults[operationResult]().WithContext(rc.Context()).WithMaxGoroutines(o.config.Concurrency)
	for i, op := range ops {
		index, operation := i, op
		p.Go(func(ctx context.Context) (operationResult, error) {
			return operationResult{index: index, summary: o.runOperation(ctx, rc, operation)}, nil
		})
	}
	results, err := p.Wait()
	if err != nil {
		log.Error().Err(err).Msg("Fuzzing pool returned an error")
	}

	sort.Slice(results, func(i, j int) bool { return results[i].index < results[j].index })
	for _, r := range results {
		summary.Operations = append(summary.Operations, r.summary)
		if r.summary.State == string(StateStopped) {
			summary.Stopped = true
		}
	}

	if err := o.flush(); err != nil {
		return summary, err
	}
	if o.config.Timings != nil {
		summary.Timings = o.config.Timings.Stats()
	}
	summary.CorpusEntries = o.config.Corpus.Len()
	summary.FinishedAt = time.Now().UTC()

	log.Info().
		Str("run", o.config.RunID).
		Int("test_cases", summary.TotalTestCases()).
		Int("findings", summary.TotalFindings()).
		Int("new_findings", summary.NewFindings()).
		Bool("stopped", summary.Stopped).
		Str("output", summary.OutputDir).
		Dur("elapsed", summary.FinishedAt.Sub(summary.StartedAt)).
		Msg("Fuzzing run finished")
	return summary, nil
}

// flush persists the corpus, the findings and the timing stats in parallel.
func (o *Orchestrator) flush() error {
	var g errgroup.Group
	g.Go(func() error {
		if err := o.config.Corpus.Flush(); err != nil {
			return fmt.Errorf("flushing corpus: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		if err := o.config.Findings.Flush(); err != nil {
			return fmt.Errorf("flushing findings: %w", err)
		}
		return nil
	})
	if o.config.Timings != nil && o.config.StatsDir != "" {
		g.Go(func() error {
			if err := o.config.Timings.Write(o.config.StatsDir); err != nil {
				return fmt.Errorf("writing stats: %w", err)
			}
			return nil
		})
	}
	return g.Wait()
}

type iterationResult int

const (
	iterationExpected iterationResult = iota
	iterationFinding
	iterationTransportFailure
	iterationGenerationError
)

// progressInterval is how often, in test cases, a running summary is logged.
const progressInterval = 50

func (o *Orchestrator) runOperation(ctx context.Context, rc *control.RunControl, op core.Operation) report.OperationSummary {
	id := op.Identity()
	logger := log.With().Str("run", o.config.RunID).Str("operation", id).Logger()
	s := report.OperationSummary{Operation: id, State: string(StatePending)}

	finish := func(state OperationState) report.OperationSummary {
		s.State = string(state)
		logger.Info().
			Str("state", s.State).
			Int("test_cases", s.TestCases).
			Int("regressions", s.Regressions).
			Int("reproduced", s.Reproduced).
			Int("expected", s.Expected).
			Int("findings", s.Findings).
			Int("transport_failures", s.TransportFailures).
			Interface("failure_categories", s.FailureCategories).
			Int("generation_errors", s.GenerationErrors).
			Msg("Operation finished")
		return s
	}

	s.State = string(StateReplayingRegressions)
	for _, entry := range o.config.Corpus.Entries(id) {
		if !rc.Checkpoint(ctx) {
			return finish(StateStopped)
		}
		s.Regressions++
		switch o.iterate(ctx, rc, logger, op, entry.Seed, &s) {
		case iterationFinding:
			s.Reproduced++
		default:
			logger.Info().Uint64("seed", entry.Seed).Msg("Regression did not reproduce")
		}
	}

	s.State = string(StateGenerating)
	fresh, consecutiveExpected, skipped := 0, 0, 0
	for fresh < o.config.Budget {
		if !rc.Checkpoint(ctx) {
			return finish(StateStopped)
		}
		seed := o.config.Seeds()
		switch o.iterate(ctx, rc, logger, op, seed, &s) {
		case iterationTransportFailure:
			skipped++
			if skipped >= o.config.MaxSkippedIterations {
				logger.Error().Int("skipped", skipped).Str("cause", s.MainFailureCategory()).Msg("Target keeps failing, giving up on operation")
				return finish(StateUnreachable)
			}
			continue
		case iterationGenerationError:
			fresh++
		case iterationFinding:
			fresh++
			consecutiveExpected = 0
		case iterationExpected:
			fresh++
			consecutiveExpected++
			if o.config.SaturationWindow > 0 && consecutiveExpected >= o.config.SaturationWindow {
				return finish(StateSaturated)
			}
		}
		skipped = 0
		if s.TestCases%progressInterval == 0 {
			logger.Debug().Int("test_cases", s.TestCases).Int("findings", s.Findings).Int("budget_left", o.config.Budget-fresh).Msg("Fuzzing progress")
		}
	}
	return finish(StateBudgetExhausted)
}

// iterate generates, sends and classifies the test case for seed.
func (o *Orchestrator) iterate(ctx context.Context, rc *control.RunControl, logger zerolog.Logger, op core.Operation, seed uint64, s *report.OperationSummary) iterationResult {
	tc, err := o.config.Generator.GenerateTestCase(op, seed)
	if err != nil {
		s.GenerationErrors++
		logger.Warn().Err(err).Uint64("seed", seed).Msg("Could not generate test case")
		return iterationGenerationError
	}
	req, err := o.config.Builder.Materialize(op, tc.Values, tc.Body)
	if err != nil {
		s.GenerationErrors++
		logger.Warn().Err(err).Uint64("seed", seed).Msg("Could not materialize test case")
		return iterationGenerationError
	}
	s.TestCases++

	resp, err := o.send(ctx, rc, op, req)
	status := 0
	if resp != nil {
		status = resp.StatusCode
	}
	switch o.config.Classifier.ClassifyResult(op, status, err) {
	case fuzz.OutcomeTransportFailure:
		category := http_utils.FailureUnknown
		var transportErr *core.TransportError
		if errors.As(err, &transportErr) && transportErr.Category != "" {
			category = transportErr.Category
		}
		s.RecordTransportFailure(category)
		logger.Warn().Err(err).Str("category", category).Uint64("seed", seed).Msg("Skipping test case, target did not answer")
		return iterationTransportFailure
	case fuzz.OutcomeFinding:
		if o.config.Timings != nil {
			o.config.Timings.Observe(op, resp.Duration)
		}
		s.Findings++
		finding := report.NewFinding(op, seed, req, o.config.BaseURL, status, resp.Body)
		written, err := o.config.Findings.Record(finding)
		if err != nil {
			logger.Error().Err(err).Uint64("seed", seed).Msg("Could not record finding")
		} else if written {
			s.NewFindings++
		}
		return iterationFinding
	default:
		if o.config.Timings != nil {
			o.config.Timings.Observe(op, resp.Duration)
		}
		s.Expected++
		return iterationExpected
	}
}

// send retries failed deliveries. The request itself is never cut short by
// a stop; only further attempts are skipped.
func (o *Orchestrator) send(ctx context.Context, rc *control.RunControl, op core.Operation, req *core.Request) (*http_utils.Response, error) {
	sendCtx := context.WithoutCancel(ctx)
	attempts := 0
	var lastErr error
	for attempts <= o.config.MaxTransportRetries {
		if attempts > 0 {
			if !sleepContext(ctx, o.config.RetryBackoff*time.Duration(attempts)) || rc.IsStopped() {
				break
			}
		}
		attempts++
		resp, err := o.config.Transport.Send(sendCtx, req, o.config.RequestTimeout)
		if err == nil {
			return resp, nil
		}
		lastErr = err
	}

	transportErr := &core.TransportError{Operation: op.Identity(), Attempts: attempts, Err: lastErr}
	var inner *core.TransportError
	if errors.As(lastErr, &inner) {
		transportErr.TimedOut = inner.TimedOut
		transportErr.Category = inner.Category
		transportErr.Err = inner.Err
	}
	if transportErr.Category == "" {
		transportErr.Category = http_utils.CategorizeRequestError(lastErr)
	}
	return nil, transportErr
}

func sleepContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
