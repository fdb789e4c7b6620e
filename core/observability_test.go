package core

import (
	"context"
	"sync"
	"testing"
)

type captureMetricsRecorder struct {
	mu         sync.Mutex
	counters   map[string]int64
	histograms map[string][]float64
	tags       []map[string]string
}

func (m *captureMetricsRecorder) IncCounter(_ context.Context, name string, value int64, tags map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.counters == nil {
		m.counters = map[string]int64{}
	}
	m.counters[name] += value
	m.tags = append(m.tags, tags)
}

func (m *captureMetricsRecorder) ObserveHistogram(_ context.Context, name string, value float64, _ map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.histograms == nil {
		m.histograms = map[string][]float64{}
	}
	m.histograms[name] = append(m.histograms[name], value)
}

type capturedLog struct {
	level  string
	msg    string
	fields map[string]any
}

type captureLogger struct {
	mu       *sync.Mutex
	records  *[]capturedLog
	defaults map[string]any
}

func newCaptureLogger() *captureLogger {
	records := []capturedLog{}
	return &captureLogger{mu: &sync.Mutex{}, records: &records, defaults: map[string]any{}}
}

func (l *captureLogger) WithFields(fields map[string]any) Logger {
	merged := CloneFields(l.defaults)
	for key, value := range fields {
		merged[key] = value
	}
	return &captureLogger{mu: l.mu, records: l.records, defaults: merged}
}

func (l *captureLogger) Trace(msg string, args ...any) { l.record("trace", msg) }
func (l *captureLogger) Debug(msg string, args ...any) { l.record("debug", msg) }
func (l *captureLogger) Info(msg string, args ...any)  { l.record("info", msg) }
func (l *captureLogger) Warn(msg string, args ...any)  { l.record("warn", msg) }
func (l *captureLogger) Error(msg string, args ...any) { l.record("error", msg) }
func (l *captureLogger) Fatal(msg string, args ...any) { l.record("fatal", msg) }

func (l *captureLogger) WithContext(context.Context) Logger {
	return l
}

func (l *captureLogger) record(level string, msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	*l.records = append(*l.records, capturedLog{level: level, msg: msg, fields: CloneFields(l.defaults)})
}

func (l *captureLogger) entries() []capturedLog {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]capturedLog(nil), (*l.records)...)
}

func TestObserverLog_UsesFieldsLogger(t *testing.T) {
	logger := newCaptureLogger()
	observer := NewObserver(logger, nil)

	observer.Log(context.Background(), LogLevelWarn, "signature bypassed", map[string]any{"event_key": "k"})

	entries := logger.entries()
	if len(entries) != 1 {
		t.Fatalf("expected one log entry, got %d", len(entries))
	}
	if entries[0].level != "warn" || entries[0].msg != "signature bypassed" {
		t.Fatalf("unexpected entry %+v", entries[0])
	}
	if entries[0].fields["event_key"] != "k" {
		t.Fatalf("expected structured fields, got %#v", entries[0].fields)
	}
}

func TestObserver_ZeroValueIsSilent(t *testing.T) {
	var observer Observer
	observer.Log(context.Background(), LogLevelError, "ignored", nil)
	observer.Count(context.Background(), MetricPipelineTotal, 1, nil)
	observer.Observe(context.Background(), MetricPipelineDurationMS, 1, nil)
}

func TestObserverMetrics_CopiesTags(t *testing.T) {
	recorder := &captureMetricsRecorder{}
	observer := NewObserver(nil, recorder)
	tags := map[string]string{"status": "success"}

	observer.Count(context.Background(), " "+MetricPipelineTotal+" ", 1, tags)
	observer.Observe(context.Background(), MetricPipelineDurationMS, 12, tags)
	tags["status"] = "mutated"

	if recorder.counters[MetricPipelineTotal] != 1 {
		t.Fatalf("expected trimmed counter name, got %#v", recorder.counters)
	}
	if recorder.tags[0]["status"] != "success" {
		t.Fatalf("expected tags to be copied, got %#v", recorder.tags[0])
	}
	if len(recorder.histograms[MetricPipelineDurationMS]) != 1 {
		t.Fatalf("expected one histogram sample")
	}
}

func TestFlattenFields_SortedPairs(t *testing.T) {
	args := FlattenFields(map[string]any{"b": 2, "a": 1})
	if len(args) != 4 || args[0] != "a" || args[2] != "b" {
		t.Fatalf("unexpected flattened args %#v", args)
	}
	if FlattenFields(nil) != nil {
		t.Fatalf("expected nil for empty fields")
	}
}
