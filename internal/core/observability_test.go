package core

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"expvar"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"spherecore/internal/infra/persistence/memory"
	"spherecore/pkg/domain"
)

type captureAuditRecorder struct {
	entries []AuditEntry
}

func (c *captureAuditRecorder) Record(_ context.Context, entry AuditEntry) {
	c.entries = append(c.entries, entry)
}

func (c *captureAuditRecorder) has(op string, status AuditStatus, predicate func(AuditEntry) bool) bool {
	for _, entry := range c.entries {
		if entry.Operation == op && entry.Status == status {
			if predicate == nil || predicate(entry) {
				return true
			}
		}
	}
	return false
}

type metricsCall struct {
	op      string
	success bool
}

type captureMetricsRecorder struct {
	calls []metricsCall
}

func (c *captureMetricsRecorder) Observe(_ context.Context, op string, success bool, _ time.Duration) {
	c.calls = append(c.calls, metricsCall{op: op, success: success})
}

func (c *captureMetricsRecorder) has(op string, success bool) bool {
	for _, call := range c.calls {
		if call.op == op && call.success == success {
			return true
		}
	}
	return false
}

type spanRecord struct {
	op  string
	err error
}

type captureTracer struct {
	ended []spanRecord
}

func (c *captureTracer) Start(ctx context.Context, op string) (context.Context, TraceSpan) {
	return ctx, &captureSpan{tracer: c, op: op}
}

func (c *captureTracer) has(op string, success bool) bool {
	for _, record := range c.ended {
		if record.op == op && (record.err == nil) == success {
			return true
		}
	}
	return false
}

type captureSpan struct {
	tracer *captureTracer
	op     string
}

func (s *captureSpan) End(err error) {
	s.tracer.ended = append(s.tracer.ended, spanRecord{op: s.op, err: err})
}

type captureLogger struct{ calls []string }

func (c *captureLogger) Debug(msg string, _ ...any) { c.calls = append(c.calls, "d:"+msg) }
func (c *captureLogger) Info(msg string, _ ...any)  { c.calls = append(c.calls, "i:"+msg) }
func (c *captureLogger) Warn(msg string, _ ...any)  { c.calls = append(c.calls, "w:"+msg) }
func (c *captureLogger) Error(msg string, _ ...any) { c.calls = append(c.calls, "e:"+msg) }

func (c *captureLogger) count(prefix string) int {
	n := 0
	for _, call := range c.calls {
		if strings.HasPrefix(call, prefix) {
			n++
		}
	}
	return n
}

func TestServiceObservability(t *testing.T) {
	ctx := context.Background()
	audit := &captureAuditRecorder{}
	metrics := &captureMetricsRecorder{}
	tracer := &captureTracer{}
	log := &captureLogger{}
	svc := newTestService(t, WithAuditRecorder(audit), WithMetricsRecorder(metrics), WithTracer(tracer), WithLogger(log))

	earth := createEarth(t, svc)
	if !audit.has("create_body", AuditStatusSuccess, func(e AuditEntry) bool {
		return e.EntityID == earth.ID && e.Entity == EntityCelestialBody && e.Action == ActionCreate
	}) {
		t.Fatalf("expected audit entry for create_body")
	}
	if !audit.has("add_gas", AuditStatusSuccess, nil) || !metrics.has("add_gas", true) || !tracer.has("add_gas", true) {
		t.Fatalf("expected add_gas to be observed")
	}

	if _, err := svc.DeleteBody(ctx, "missing"); err == nil {
		t.Fatalf("expected delete error")
	}
	if !audit.has("delete_body", AuditStatusError, func(e AuditEntry) bool { return e.EntityID == "missing" && e.Error != "" }) {
		t.Fatalf("expected audit error entry for delete_body")
	}
	if !metrics.has("delete_body", false) || !tracer.has("delete_body", false) {
		t.Fatalf("expected failed delete_body metrics and span")
	}
	if log.count("e:") == 0 || log.count("d:") == 0 {
		t.Fatalf("expected error and debug logs, got %v", log.calls)
	}

	biome, _, err := svc.CreateBiome(ctx, Biome{Name: "Forest"})
	if err != nil {
		t.Fatalf("create biome: %v", err)
	}
	if !audit.has("create_biome", AuditStatusSuccess, func(e AuditEntry) bool { return e.Entity == EntityBiome && e.EntityID == biome.ID }) {
		t.Fatalf("expected biome audit entry")
	}
}

func TestRecordAuditSuccessUsesMetadata(t *testing.T) {
	fixed := time.Date(2024, 10, 1, 8, 30, 0, 0, time.UTC)
	recorder := &captureAuditRecorder{}
	svc := NewService(memory.NewStore(nil),
		WithAuditRecorder(recorder),
		WithClock(ClockFunc(func() time.Time { return fixed })),
	)
	svc.recordAuditSuccess(context.Background(), "reset_body", "body-1", 42*time.Millisecond)
	if len(recorder.entries) != 1 {
		t.Fatalf("expected one entry, got %d", len(recorder.entries))
	}
	entry := recorder.entries[0]
	if entry.Entity != EntityCelestialBody || entry.Action != ActionUpdate || entry.EntityID != "body-1" {
		t.Fatalf("unexpected entry %+v", entry)
	}
	if entry.Duration != 42*time.Millisecond || !entry.Timestamp.Equal(fixed) || entry.Status != AuditStatusSuccess {
		t.Fatalf("unexpected entry %+v", entry)
	}

	svc.recordAuditSuccess(context.Background(), "unknown_operation", "x", time.Second)
	if len(recorder.entries) != 1 {
		t.Fatalf("unknown operations must not be audited")
	}
}

type providerStore struct {
	*memory.Store
	now func() time.Time
}

func (p providerStore) NowFunc() func() time.Time { return p.now }

func TestSelectNowFunc(t *testing.T) {
	storeTime := time.Date(2025, 1, 2, 3, 4, 5, 0, time.FixedZone("cet", 3600))
	clockTime := time.Date(2030, 5, 6, 7, 8, 9, 0, time.UTC)
	clock := ClockFunc(func() time.Time { return clockTime })

	if got := selectNowFunc(providerStore{Store: memory.NewStore(nil), now: func() time.Time { return storeTime }}, nil)(); !got.Equal(storeTime) || got.Location() != time.UTC {
		t.Fatalf("expected store time in UTC, got %s", got)
	}
	if got := selectNowFunc(providerStore{Store: memory.NewStore(nil), now: func() time.Time { return storeTime }}, clock)(); !got.Equal(clockTime) {
		t.Fatalf("explicit clock must win, got %s", got)
	}
	if got := selectNowFunc(providerStore{Store: memory.NewStore(nil)}, nil)(); got.Location() != time.UTC || time.Since(got) > time.Second {
		t.Fatalf("expected current UTC time, got %s", got)
	}
	var nilClock ClockFunc
	if got := nilClock.Now(); got.Location() != time.UTC {
		t.Fatalf("nil ClockFunc must report UTC")
	}
}

func TestExtractRulesEngine(t *testing.T) {
	engine := domain.NewRulesEngine()
	if got := extractRulesEngine(memory.NewStore(engine)); got != engine {
		t.Fatalf("expected engine pointer")
	}
	if svc := NewInMemoryService(engine); svc.RulesEngine() != engine {
		t.Fatalf("service did not expose the store engine")
	}
}

func TestExpvarMetricsRecorder(t *testing.T) {
	rec := NewExpvarMetricsRecorder("")
	if !strings.HasPrefix(rec.Name(), "spherecore_service_metrics_") {
		t.Fatalf("unexpected name %s", rec.Name())
	}
	svc := newTestService(t, WithMetricsRecorder(rec))
	createAirless(t, svc, "Luna")
	if _, err := svc.DeleteBody(context.Background(), "missing"); err == nil {
		t.Fatalf("expected error")
	}
	rec.Observe(context.Background(), "", true, time.Second)

	snap := rec.Snapshot()
	if snap.Results["create_body"]["success"] != 1 || snap.Results["delete_body"]["error"] != 1 {
		t.Fatalf("unexpected results %+v", snap.Results)
	}
	if _, ok := snap.Results[""]; ok {
		t.Fatalf("empty operation must be ignored")
	}
	v := expvar.Get(rec.Name())
	if v == nil || !strings.Contains(v.String(), "create_body") {
		t.Fatalf("expvar not published")
	}
}

func TestJSONTracer(t *testing.T) {
	var buf bytes.Buffer
	tracer := NewJSONTracer(&buf)
	svc := newTestService(t, WithTracer(tracer))
	createAirless(t, svc, "Luna")
	if _, err := svc.DeleteBody(context.Background(), "missing"); err == nil {
		t.Fatalf("expected error")
	}

	entries := tracer.Entries()
	if len(entries) != 2 || entries[0].Status != "success" || entries[1].Status != "error" || entries[1].Error == "" {
		t.Fatalf("unexpected entries %+v", entries)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected two JSON lines, got %d", len(lines))
	}
	var decoded JSONTraceEntry
	if err := json.Unmarshal([]byte(lines[1]), &decoded); err != nil || decoded.Operation != "delete_body" {
		t.Fatalf("unexpected line %q: %v", lines[1], err)
	}
	NewJSONTracer(nil).Start(context.Background(), "noop")
}

func TestPrometheusMetricsRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec, err := NewPrometheusMetricsRecorder(reg)
	if err != nil {
		t.Fatalf("recorder: %v", err)
	}
	svc := newTestService(t, WithMetricsRecorder(rec))
	createAirless(t, svc, "Luna")
	createAirless(t, svc, "Phobos")
	if _, err := svc.DeleteBody(context.Background(), "missing"); err == nil {
		t.Fatalf("expected error")
	}

	if got := testutil.ToFloat64(rec.operations.WithLabelValues("create_body", "success")); got != 2 {
		t.Fatalf("expected two successful creates, got %v", got)
	}
	if got := testutil.ToFloat64(rec.operations.WithLabelValues("delete_body", "error")); got != 1 {
		t.Fatalf("expected one failed delete, got %v", got)
	}
	if n := testutil.CollectAndCount(rec.durations, "spherecore_operation_duration_seconds"); n != 2 {
		t.Fatalf("expected two histogram series, got %d", n)
	}

	again, err := NewPrometheusMetricsRecorder(reg)
	if err != nil {
		t.Fatalf("re-register: %v", err)
	}
	again.Observe(context.Background(), "create_body", true, time.Millisecond)
	if got := testutil.ToFloat64(rec.operations.WithLabelValues("create_body", "success")); got != 3 {
		t.Fatalf("second recorder must share collectors, got %v", got)
	}
}

func TestMultiMetricsRecorderFansOut(t *testing.T) {
	first := &captureMetricsRecorder{}
	second := NewExpvarMetricsRecorder("")
	svc := newTestService(t, WithMetricsRecorder(MultiMetricsRecorder{first, nil, second}))
	createAirless(t, svc, "Luna")
	if !first.has("create_body", true) {
		t.Fatalf("first recorder missed the operation")
	}
	snap := second.Snapshot()
	if snap.Results["create_body"]["success"] != 1 {
		t.Fatalf("second recorder missed the operation: %+v", snap)
	}
	if _, ok := snap.DurationsMS["create_body"]; !ok {
		t.Fatalf("duration total not published: %+v", snap.DurationsMS)
	}
}

func TestJSONTraceSpanEndsOnce(t *testing.T) {
	tracer := NewJSONTracer(nil)
	_, span := tracer.Start(context.Background(), "tick_all")
	span.End(nil)
	span.End(errors.New("late"))
	entries := tracer.Entries()
	if len(entries) != 1 || entries[0].Status != "success" || entries[0].SpanID == "" {
		t.Fatalf("unexpected entries %+v", entries)
	}
}
