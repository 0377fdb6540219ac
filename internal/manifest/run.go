package manifest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/zjrosen/depscope/internal/cachemanager"
	"github.com/zjrosen/depscope/internal/component"
	"github.com/zjrosen/depscope/internal/dependency"
	"github.com/zjrosen/depscope/internal/flags"
	"github.com/zjrosen/depscope/internal/log"
	"github.com/zjrosen/depscope/internal/pubsub"
	"github.com/zjrosen/depscope/internal/scope"
	"github.com/zjrosen/depscope/internal/tracing"
)

// Outcome is the result of one step.
type Outcome string

const (
	OutcomeRegistered Outcome = "registered"
	OutcomeDuplicate  Outcome = "duplicate"
	OutcomeRemoved    Outcome = "removed"
	OutcomeAbsent     Outcome = "absent"
	OutcomeRefused    Outcome = "refused"
	OutcomeCleared    Outcome = "cleared"
)

// StepResult records what a step did.
type StepResult struct {
	Index   int     `json:"index"`
	Action  Action  `json:"action"`
	Target  string  `json:"target,omitempty"`
	Outcome Outcome `json:"outcome"`
	// Count is the number of components added by register_tree or dropped
	// by clear.
	Count int    `json:"count,omitempty"`
	Error string `json:"error,omitempty"`
	// Holder is the key of the dependent that blocked a refused removal.
	Holder string `json:"holder,omitempty"`
}

// ComponentReport is the final state of one manifest component.
type ComponentReport struct {
	Handle    string      `json:"handle"`
	Key       string      `json:"key"`
	Present   bool        `json:"present"`
	Satisfied bool        `json:"satisfied"`
	Slots     []SlotState `json:"slots,omitempty"`
	Seen      []string    `json:"seen,omitempty"`
}

// EventRecord is a published membership change.
type EventRecord struct {
	Type      string `json:"type"`
	Component string `json:"component,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Report is the result of a manifest run.
type Report struct {
	RunID      string            `json:"run_id"`
	Manifest   string            `json:"manifest"`
	StartedAt  time.Time         `json:"started_at"`
	Duration   time.Duration     `json:"duration"`
	Steps      []StepResult      `json:"steps"`
	Members    []string          `json:"members"`
	Components []ComponentReport `json:"components"`
	Events     []EventRecord     `json:"events,omitempty"`
}

// Refused returns the steps whose removal was refused.
func (r *Report) Refused() []StepResult {
	var out []StepResult
	for _, s := range r.Steps {
		if s.Outcome == OutcomeRefused {
			out = append(out, s)
		}
	}
	return out
}

// Options configures a run.
type Options struct {
	Flags  *flags.Registry
	Tracer trace.Tracer
	// CacheTTL bounds cached lookups when the query-cache flag is on.
	CacheTTL time.Duration
	// Now is used for the report timestamp; defaults to time.Now.
	Now func() time.Time
}

// Run builds the manifest's components, applies its steps in order to a
// fresh scope and reports the outcome. It stops early when ctx is done.
func Run(ctx context.Context, m *Manifest, opts Options) (*Report, error) {
	if opts.Tracer == nil {
		opts.Tracer = tracing.NoopTracer()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	instances, err := Build(m)
	if err != nil {
		return nil, err
	}

	runID := tracing.NewRunID()
	ctx = tracing.ContextWithRunID(ctx, runID)
	ctx, span := opts.Tracer.Start(ctx, tracing.SpanManifestRun, trace.WithAttributes(
		attribute.String(tracing.AttrRunID, runID),
		attribute.String(tracing.AttrManifest, m.Name),
	))
	defer span.End()

	scopeOpts := []scope.Option{
		scope.WithName(m.Name),
		scope.WithTracer(opts.Tracer),
		scope.WithVetLogging(opts.Flags.Enabled(flags.FlagVetLogging)),
	}
	if opts.Flags.Enabled(flags.FlagQueryCache) {
		cache := cachemanager.NewInMemoryCacheManager[string, []component.Component]("scope-lookups", opts.CacheTTL, time.Minute)
		scopeOpts = append(scopeOpts, scope.WithQueryCache(cache, opts.CacheTTL))
	}
	var changes <-chan pubsub.Event[scope.Change]
	if opts.Flags.Enabled(flags.FlagPublishEvents) {
		broker := pubsub.NewBrokerWithBuffer[scope.Change](len(m.Steps) + len(m.Components) + 16)
		defer broker.Close()
		subCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		changes = broker.Subscribe(subCtx)
		scopeOpts = append(scopeOpts, scope.WithPublisher(broker))
	}
	s := scope.New(scopeOpts...)

	report := &Report{
		RunID:     runID,
		Manifest:  m.Name,
		StartedAt: now(),
		Steps:     make([]StepResult, 0, len(m.Steps)),
		Members:   []string{},
	}
	log.Info(log.CatManifest, "run started", "run_id", runID, "manifest", m.Name, "steps", len(m.Steps))

	for i, step := range m.Steps {
		if err := ctx.Err(); err != nil {
			tracing.RecordOutcome(span, "cancelled", err)
			return nil, fmt.Errorf("run %s cancelled at step %d: %w", runID, i, err)
		}
		res := runStep(ctx, opts.Tracer, s, instances, i, step)
		if changes != nil {
			report.Events = append(report.Events, records(pubsub.Drain(changes))...)
		}
		report.Steps = append(report.Steps, res)
	}

	for _, c := range s.Components() {
		report.Members = append(report.Members, component.KeyString(c))
	}
	for _, spec := range m.Components {
		inst := instances[spec.Name]
		report.Components = append(report.Components, ComponentReport{
			Handle:    spec.Name,
			Key:       component.KeyString(inst),
			Present:   s.Contains(inst),
			Satisfied: inst.Dependencies().Satisfied(),
			Slots:     inst.Wiring(),
			Seen:      inst.Seen(),
		})
	}
	report.Duration = now().Sub(report.StartedAt)

	refused := len(report.Refused())
	span.SetAttributes(attribute.Int(tracing.AttrScopeSize, s.Len()))
	tracing.RecordOutcome(span, "completed", nil)
	log.Info(log.CatManifest, "run finished", "run_id", runID, "members", s.Len(), "refused", refused)
	return report, nil
}

func runStep(ctx context.Context, tracer trace.Tracer, s *scope.Scope, instances map[string]Instance, i int, step Step) StepResult {
	action, target := step.Action()
	ctx, span := tracer.Start(ctx, tracing.SpanManifestStep, trace.WithAttributes(
		attribute.Int(tracing.AttrStepIndex, i),
		attribute.String(tracing.AttrStepAction, string(action)),
	))
	defer span.End()

	res := StepResult{Index: i, Action: action, Target: target}
	switch action {
	case ActionRegister:
		if s.RegisterContext(ctx, instances[target]) {
			res.Outcome = OutcomeRegistered
		} else {
			res.Outcome = OutcomeDuplicate
		}

	case ActionRegisterTree:
		node := instances[target].(component.Node)
		res.Count = s.RegisterTree(node)
		res.Outcome = OutcomeRegistered
		if res.Count == 0 {
			res.Outcome = OutcomeDuplicate
		}

	case ActionUnregister:
		removed, err := s.UnregisterContext(ctx, instances[target])
		switch {
		case err != nil:
			res.Outcome = OutcomeRefused
			res.Error = err.Error()
			var removal *dependency.StructuralRemovalError
			if errors.As(err, &removal) && removal.Holder != nil {
				res.Holder = component.KeyString(removal.Holder)
			}
		case removed:
			res.Outcome = OutcomeRemoved
		default:
			res.Outcome = OutcomeAbsent
		}

	case ActionClear:
		res.Count = s.ClearContext(ctx)
		res.Outcome = OutcomeCleared
	}

	log.Debug(log.CatManifest, "step applied", "index", i, "action", action, "target", target, "outcome", res.Outcome)
	tracing.RecordOutcome(span, string(res.Outcome), nil)
	return res
}

func records(events []pubsub.Event[scope.Change]) []EventRecord {
	out := make([]EventRecord, 0, len(events))
	for _, ev := range events {
		rec := EventRecord{Type: string(ev.Type)}
		if ev.Payload.Component != nil {
			rec.Component = component.KeyString(ev.Payload.Component)
		}
		if ev.Payload.Err != nil {
			rec.Error = ev.Payload.Err.Error()
		}
		out = append(out, rec)
	}
	return out
}
