// Package compliance wires retrieval and verdict synthesis into the
// single operation the rest of the system calls: facts in, validated
// verdict out.
package compliance

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/complianced/internal/retrieval"
	"github.com/fyrsmithlabs/complianced/internal/verdict"
)

var complianceTracer = otel.Tracer("complianced.compliance")

// ErrNoPassages indicates retrieval produced no rule passages to
// ground the verdict on. Surfaced rather than synthesizing against an
// empty context.
var ErrNoPassages = errors.New("no rule passages retrieved")

// Service runs the full compliance check for one product's facts.
type Service struct {
	orchestrator *retrieval.Orchestrator
	synthesizer  *verdict.Synthesizer
	normalizer   *verdict.Normalizer
	sink         Sink
	logger       *zap.Logger
}

// NewService creates a Service. sink may be nil when the caller
// handles persistence itself.
func NewService(orch *retrieval.Orchestrator, synth *verdict.Synthesizer, norm *verdict.Normalizer, sink Sink, logger *zap.Logger) (*Service, error) {
	if orch == nil || synth == nil || norm == nil {
		return nil, errors.New("orchestrator, synthesizer and normalizer are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		orchestrator: orch,
		synthesizer:  synth,
		normalizer:   norm,
		sink:         sink,
		logger:       logger,
	}, nil
}

// Check validates one product's facts against the rule corpus.
//
// Either a full, validated verdict is returned or an error; never a
// partial verdict dressed up as a complete one.
func (s *Service) Check(ctx context.Context, facts verdict.Facts) (verdict.Verdict, error) {
	ctx, span := complianceTracer.Start(ctx, "Service.Check")
	defer span.End()
	span.SetAttributes(attribute.Int("fact_count", len(facts)))

	queries := DeriveQueries(facts)
	passages, err := s.orchestrator.RetrieveAll(ctx, queries, 0)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return verdict.Verdict{}, fmt.Errorf("retrieving rule passages: %w", err)
	}
	if len(passages) == 0 {
		span.SetStatus(codes.Error, ErrNoPassages.Error())
		return verdict.Verdict{}, ErrNoPassages
	}

	raw, err := s.synthesizer.Synthesize(ctx, facts, passages)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return verdict.Verdict{}, err
	}

	v, err := s.normalizer.Normalize(raw, passages)
	if err != nil {
		// Unsalvageable output ranks as a synthesis failure for
		// callers; they retry or surface, never store.
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return verdict.Verdict{}, fmt.Errorf("%w: %v", verdict.ErrSynthesis, err)
	}

	v = s.mergePrechecks(facts, v)

	if s.sink != nil {
		if err := s.sink.Store(ctx, v); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return verdict.Verdict{}, fmt.Errorf("storing verdict %s: %w", v.ID, err)
		}
	}

	span.SetAttributes(
		attribute.String("status", string(v.Status)),
		attribute.Int("score", v.Score),
		attribute.Int("violations", len(v.Violations)),
	)
	span.SetStatus(codes.Ok, "success")
	s.logger.Info("compliance check complete",
		zap.String("verdict_id", v.ID),
		zap.String("status", string(v.Status)),
		zap.Int("score", v.Score),
		zap.Int("violations", len(v.Violations)),
	)
	return v, nil
}

// mergePrechecks prepends deterministic findings to the model's
// violations, skipping fields the model already flagged with the same
// issue class, and re-derives status so the non-empty-violations
// invariant holds.
func (s *Service) mergePrechecks(facts verdict.Facts, v verdict.Verdict) verdict.Verdict {
	pre := prechecks(facts)
	if len(pre) == 0 {
		return v
	}

	flagged := make(map[string]bool, len(v.Violations))
	for _, existing := range v.Violations {
		flagged[existing.Field] = true
	}

	merged := make([]verdict.Violation, 0, len(pre)+len(v.Violations))
	for _, p := range pre {
		if flagged[p.Field] {
			continue
		}
		merged = append(merged, p)
	}
	merged = append(merged, v.Violations...)

	v.Violations = merged
	if len(v.Violations) > 0 {
		v.Status = verdict.StatusNonCompliant
		if v.Score >= s.normalizer.Threshold() {
			v.Score = s.normalizer.Threshold() - 1
		}
	}
	return v
}
