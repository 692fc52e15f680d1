package report

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/Skufu/cardioscore/internal/classifier"
	"github.com/Skufu/cardioscore/internal/features"
	"github.com/Skufu/cardioscore/internal/metrics"
	"github.com/Skufu/cardioscore/internal/risk"
)

// ErrHistoryAppend marks a prediction that was scored but could not be
// recorded in the caller's history. The returned Outcome is still valid.
var ErrHistoryAppend = errors.New("append history")

// Request carries the caller-owned collaborators for one prediction.
type Request struct {
	Patient string
	History History
}

// DefaultLoggerTimeout bounds each prediction logger call.
const DefaultLoggerTimeout = 2 * time.Second

type Builder struct {
	schema        *features.Schema
	adapter       *classifier.Adapter
	policy        *risk.Policy
	loggers       []PredictionLogger
	loggerTimeout time.Duration
	log           logrus.FieldLogger
	now           func() time.Time
	newID         func() string
}

type Option func(*Builder)

func WithPredictionLoggers(loggers ...PredictionLogger) Option {
	return func(b *Builder) {
		for _, l := range loggers {
			if l != nil {
				b.loggers = append(b.loggers, l)
			}
		}
	}
}

// WithLoggerTimeout sets how long a single prediction logger may run before
// its context is cancelled and the request moves on.
func WithLoggerTimeout(d time.Duration) Option {
	return func(b *Builder) {
		if d > 0 {
			b.loggerTimeout = d
		}
	}
}

func WithLogger(log logrus.FieldLogger) Option {
	return func(b *Builder) { b.log = log }
}

func WithClock(now func() time.Time) Option {
	return func(b *Builder) { b.now = now }
}

func WithIDs(newID func() string) Option {
	return func(b *Builder) { b.newID = newID }
}

func NewBuilder(schema *features.Schema, adapter *classifier.Adapter, policy *risk.Policy, opts ...Option) *Builder {
	if policy == nil {
		policy = risk.DefaultPolicy()
	}
	b := &Builder{
		schema:        schema,
		adapter:       adapter,
		policy:        policy,
		loggerTimeout: DefaultLoggerTimeout,
		now:           time.Now,
		newID:         uuid.NewString,
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		b.log = l
	}
	return b
}

func (b *Builder) Schema() *features.Schema { return b.schema }

func (b *Builder) Policy() *risk.Policy { return b.policy }

// Build validates raw input and, when it passes, scores it. Rejected input
// returns a *features.ValidationError and has no side effects.
func (b *Builder) Build(ctx context.Context, raw features.Raw, req Request) (Outcome, error) {
	res := b.schema.Validate(raw)
	if !res.Valid() {
		metrics.ObserveValidationFailure()
		return Outcome{}, res.Err()
	}
	return b.BuildFeatures(ctx, res.Features, req)
}

// BuildFeatures scores features that already passed validation.
func (b *Builder) BuildFeatures(ctx context.Context, f *features.PatientFeatures, req Request) (Outcome, error) {
	start := time.Now()

	score, err := b.adapter.Score(f)
	if err != nil {
		return Outcome{}, fmt.Errorf("score features: %w", err)
	}

	outcome := Outcome{
		ID:                 b.newID(),
		CreatedAt:          b.now().UTC(),
		Label:              score.Label,
		ProbabilityDisease: score.ProbDisease,
		ProbabilitySafe:    score.ProbSafe,
		RiskTier:           b.policy.Tier(score.ProbDisease),
		HealthScore:        risk.HealthScore(score.ProbDisease),
		Recommendations:    b.policy.Recommend(f, score.Label),
		Features:           f.Map(),
	}
	if score.SumValid {
		c := math.Max(score.ProbDisease, score.ProbSafe)
		outcome.Confidence = &c
		outcome.ConfidenceBand = risk.ConfidenceBand(c)
	} else {
		metrics.ObserveContractViolation()
	}

	entry := b.log.WithFields(logrus.Fields{
		"prediction_id": outcome.ID,
		"label":         outcome.Label,
		"probability":   outcome.ProbabilityDisease,
		"risk_tier":     outcome.RiskTier,
		"fired_rules":   b.policy.FiredRules(f),
	})

	b.logPrediction(ctx, f, outcome, entry)

	metrics.ObservePrediction(time.Since(start), string(outcome.RiskTier), outcome.Label)
	entry.Debug("prediction completed")

	if req.History != nil {
		if err := req.History.Append(ctx, Entry{Patient: req.Patient, Outcome: outcome.Clone()}); err != nil {
			return outcome, fmt.Errorf("%w: %v", ErrHistoryAppend, err)
		}
	}
	return outcome, nil
}

// logPrediction fans the outcome out to every logger concurrently. Each call
// gets its own copy and a context bounded by loggerTimeout; a logger that
// ignores cancellation is abandoned once the deadline passes.
func (b *Builder) logPrediction(ctx context.Context, f *features.PatientFeatures, o Outcome, entry *logrus.Entry) {
	if len(b.loggers) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, b.loggerTimeout)
	defer cancel()

	var wg sync.WaitGroup
	done := make(chan struct{})
	for _, l := range b.loggers {
		wg.Add(1)
		go func(l PredictionLogger, o Outcome) {
			defer wg.Done()
			if err := l.LogPrediction(ctx, f, o); err != nil {
				entry.WithError(err).Warn("prediction logger failed")
			}
		}(l, o.Clone())
	}
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		entry.WithError(ctx.Err()).Warn("prediction logger timed out")
	}
}
