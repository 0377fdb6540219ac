package manifest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/zjrosen/depscope/internal/flags"
	"github.com/zjrosen/depscope/internal/tracing"
)

func mustParse(t *testing.T, src string) *Manifest {
	t.Helper()
	m, err := Parse([]byte(src))
	require.NoError(t, err)
	return m
}

func outcomes(r *Report) []Outcome {
	out := make([]Outcome, len(r.Steps))
	for i, s := range r.Steps {
		out[i] = s.Outcome
	}
	return out
}

func TestRun_Scenario(t *testing.T) {
	m := mustParse(t, scenarioYAML)

	report, err := Run(context.Background(), m, Options{Flags: flags.New(flags.Defaults())})
	require.NoError(t, err)

	require.NotEmpty(t, report.RunID)
	assert.Equal(t, "scenario", report.Manifest)
	assert.Equal(t, []Outcome{
		OutcomeRegistered, OutcomeRegistered, OutcomeRegistered,
		OutcomeRefused, OutcomeRemoved, OutcomeRemoved,
	}, outcomes(report))
	assert.Equal(t, []string{"x/a2"}, report.Members)

	b := report.Components[2]
	assert.Equal(t, "b", b.Handle)
	assert.False(t, b.Present)
	assert.True(t, b.Satisfied)
	require.Len(t, b.Slots, 1)
	assert.Equal(t, "x", b.Slots[0].Descriptor)
	assert.True(t, b.Slots[0].Strict)
	assert.Equal(t, "x/a1", b.Slots[0].Occupant, "strict slot keeps its first match")
	assert.Equal(t, []string{"arrived(x/a1)", "arrived(x/a2)"}, b.Seen)

	assert.Empty(t, report.Components[0].Seen, "observe not set")
}

func TestRun_RefusedRemoval(t *testing.T) {
	m := mustParse(t, `
name: refused
components:
  - {name: a1, category: x}
  - name: b
    category: consumer
    depends: [{category: x, strict: true}]
steps:
  - register: a1
  - register: b
  - unregister: a1
  - unregister: b
  - unregister: a1
`)
	report, err := Run(context.Background(), m, Options{Flags: flags.New(flags.Defaults())})
	require.NoError(t, err)

	assert.Equal(t, []Outcome{
		OutcomeRegistered, OutcomeRegistered, OutcomeRefused, OutcomeRemoved, OutcomeRemoved,
	}, outcomes(report))

	refused := report.Refused()
	require.Len(t, refused, 1)
	assert.Equal(t, 2, refused[0].Index)
	assert.Equal(t, "consumer/b", refused[0].Holder)
	assert.Contains(t, refused[0].Error, "cannot remove x/a1")
	assert.Empty(t, report.Members)
}

func TestRun_WeakDependencyAndNames(t *testing.T) {
	m := mustParse(t, `
components:
  - {name: y1, category: y}
  - {name: y2, category: y}
  - {name: m1, category: motor, label: left}
  - {name: m2, category: motor, label: right}
  - name: c
    category: consumer
    depends:
      - {category: y, strict: false}
      - {category: motor, strict: true, named: right}
steps:
  - register: c
  - register: m1
  - register: y1
  - register: y2
  - unregister: y1
  - register: m2
`)
	report, err := Run(context.Background(), m, Options{Flags: flags.New(flags.Defaults())})
	require.NoError(t, err)

	c := report.Components[4]
	require.Len(t, c.Slots, 2)
	assert.False(t, c.Slots[0].Strict)
	assert.Empty(t, c.Slots[0].Occupant, "cleared weak slot is not refilled by a peer already present")
	assert.Equal(t, "right", c.Slots[1].Named)
	assert.Equal(t, "motor/right", c.Slots[1].Occupant)
	assert.True(t, c.Satisfied)
}

func TestRun_DuplicatesAndClear(t *testing.T) {
	m := mustParse(t, `
components:
  - {name: u1, category: clock, identity: unique}
  - {name: u2, category: clock, identity: unique}
  - {name: p1, category: probe, identity: none}
steps:
  - register: u1
  - register: u2
  - register: p1
  - clear: true
  - unregister: u1
`)
	report, err := Run(context.Background(), m, Options{Flags: flags.New(flags.Defaults())})
	require.NoError(t, err)

	assert.Equal(t, []Outcome{
		OutcomeRegistered, OutcomeDuplicate, OutcomeRegistered, OutcomeCleared, OutcomeAbsent,
	}, outcomes(report))
	assert.Equal(t, 2, report.Steps[3].Count)
	assert.Empty(t, report.Members)
}

func TestRun_RegisterTree(t *testing.T) {
	m := mustParse(t, `
components:
  - {name: root, category: body, identity: tree}
  - {name: arm, category: body, identity: tree, parent: root}
  - {name: hand, category: body, identity: tree, parent: arm}
  - name: brain
    category: controller
    depends: [{category: body, strict: true, named: hand}]
steps:
  - register: brain
  - register_tree: root
  - register_tree: root
`)
	report, err := Run(context.Background(), m, Options{Flags: flags.New(flags.Defaults())})
	require.NoError(t, err)

	require.Len(t, report.Steps, 3)
	assert.Equal(t, 3, report.Steps[1].Count)
	assert.Equal(t, OutcomeDuplicate, report.Steps[2].Outcome)
	assert.Equal(t, []string{"controller/brain", "root", "root/arm", "root/arm/hand"}, report.Members)
	assert.Equal(t, "root/arm/hand", report.Components[3].Slots[0].Occupant)
}

func TestRun_PublishesEvents(t *testing.T) {
	m := mustParse(t, `
components:
  - {name: a1, category: x}
  - name: b
    category: consumer
    depends: [{category: x, strict: true}]
steps:
  - register: a1
  - register: b
  - unregister: a1
  - clear: true
`)

	report, err := Run(context.Background(), m, Options{Flags: flags.New(flags.Defaults())})
	require.NoError(t, err)
	require.Len(t, report.Events, 4)
	assert.Equal(t, EventRecord{Type: "registered", Component: "x/a1"}, report.Events[0])
	assert.Equal(t, "refused", report.Events[2].Type)
	assert.Contains(t, report.Events[2].Error, "still holds it")
	assert.Equal(t, EventRecord{Type: "cleared"}, report.Events[3])

	quiet, err := Run(context.Background(), m, Options{
		Flags: flags.New(flags.Defaults()).With(flags.FlagPublishEvents, false),
	})
	require.NoError(t, err)
	assert.Empty(t, quiet.Events)
}

func TestRun_QueryCacheFlagKeepsOutcomes(t *testing.T) {
	m := mustParse(t, scenarioYAML)
	plain, err := Run(context.Background(), m, Options{Flags: flags.New(flags.Defaults())})
	require.NoError(t, err)

	cached, err := Run(context.Background(), m, Options{
		Flags:    flags.New(flags.Defaults()).With(flags.FlagQueryCache, true).With(flags.FlagVetLogging, true),
		CacheTTL: time.Minute,
	})
	require.NoError(t, err)
	assert.Equal(t, outcomes(plain), outcomes(cached))
	assert.NotEqual(t, plain.RunID, cached.RunID)
}

func TestRun_Spans(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	defer func() { _ = tp.Shutdown(context.Background()) }()

	m := mustParse(t, scenarioYAML)
	report, err := Run(context.Background(), m, Options{Tracer: tp.Tracer("test")})
	require.NoError(t, err)

	var runSpans, stepSpans, scopeSpans int
	for _, s := range recorder.Ended() {
		switch s.Name() {
		case tracing.SpanManifestRun:
			runSpans++
			assert.Contains(t, s.Attributes(), attribute.String(tracing.AttrRunID, report.RunID))
		case tracing.SpanManifestStep:
			stepSpans++
		case tracing.SpanScopeRegister, tracing.SpanScopeUnregister:
			scopeSpans++
			assert.Contains(t, s.Attributes(), attribute.String(tracing.AttrRunID, report.RunID))
		}
	}
	assert.Equal(t, 1, runSpans)
	assert.Equal(t, len(m.Steps), stepSpans)
	assert.Equal(t, len(m.Steps), scopeSpans)
}

func TestRun_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Run(ctx, mustParse(t, scenarioYAML), Options{})
	require.ErrorIs(t, err, context.Canceled)
}

func TestRun_FixedClock(t *testing.T) {
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	report, err := Run(context.Background(), mustParse(t, scenarioYAML), Options{Now: func() time.Time { return at }})
	require.NoError(t, err)
	assert.Equal(t, at, report.StartedAt)
}

func TestRun_DurationUsesInjectedClock(t *testing.T) {
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	calls := 0
	clock := func() time.Time {
		calls++
		return at.Add(time.Duration(calls-1) * 250 * time.Millisecond)
	}

	report, err := Run(context.Background(), mustParse(t, scenarioYAML), Options{Now: clock})
	require.NoError(t, err)
	assert.Equal(t, at, report.StartedAt)
	assert.Equal(t, 250*time.Millisecond, report.Duration)
	assert.Equal(t, 2, calls)
}
