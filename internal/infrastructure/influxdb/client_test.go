package influxdb

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/device-orchestra/internal/infrastructure/config"
)

// ─── Mock Dependencies ──────────────────────────────────────────────

type fakeWriter struct {
	mu      sync.Mutex
	points  []*write.Point
	flushes int
}

func (f *fakeWriter) WritePoint(p *write.Point) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.points = append(f.points, p)
}

func (f *fakeWriter) Flush() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.flushes++
}

func (f *fakeWriter) lines() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.points))
	for i, p := range f.points {
		out[i] = write.PointToLineProtocol(p, time.Nanosecond)
	}
	return out
}

func connectedClient() (*Client, *fakeWriter) {
	w := &fakeWriter{}
	return &Client{writeAPI: w, connected: true}, w
}

// ─── Tests ──────────────────────────────────────────────────────────

func TestConnect_Disabled(t *testing.T) {
	_, err := Connect(config.InfluxDBConfig{Enabled: false})
	if !errors.Is(err, ErrDisabled) {
		t.Errorf("Connect() error = %v, want ErrDisabled", err)
	}
}

func TestBatchSettings(t *testing.T) {
	tests := []struct {
		name              string
		batch, flush      int
		wantBatch, wantFl int
	}{
		{"explicit", 50, 2, 50, 2},
		{"zero uses defaults", 0, 0, defaultBatchSize, defaultFlushSeconds},
		{"negative uses defaults", -5, -1, defaultBatchSize, defaultFlushSeconds},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, f := batchSettings(config.InfluxDBConfig{BatchSize: tt.batch, FlushInterval: tt.flush})
			if b != tt.wantBatch || f != tt.wantFl {
				t.Errorf("batchSettings() = (%d, %d), want (%d, %d)", b, f, tt.wantBatch, tt.wantFl)
			}
		})
	}
}

func TestWriteDeviceReading(t *testing.T) {
	c, w := connectedClient()
	ts := time.Unix(1700000000, 0)

	c.WriteDeviceReading("thermo-1", "virtual-thermometer", map[string]any{"temperature": 27.5}, ts)

	lines := w.lines()
	if len(lines) != 1 {
		t.Fatalf("points = %d, want 1", len(lines))
	}
	line := lines[0]
	for _, want := range []string{
		"device_metrics,",
		"device_id=thermo-1",
		"device_type=virtual-thermometer",
		"temperature=27.5",
		"1700000000000000000",
	} {
		if !strings.Contains(line, want) {
			t.Errorf("line %q missing %q", line, want)
		}
	}
}

func TestWriteDeviceReading_EmptyFieldsSkipped(t *testing.T) {
	c, w := connectedClient()
	c.WriteDeviceReading("cam", "", nil, time.Now())
	if len(w.lines()) != 0 {
		t.Error("point written with no fields")
	}
}

func TestWriteStepSample(t *testing.T) {
	c, w := connectedClient()
	c.WriteStepSample("inspection", "fake_cam", "capture", "succeeded", 12, time.Unix(1, 0))

	lines := w.lines()
	if len(lines) != 1 {
		t.Fatalf("points = %d, want 1", len(lines))
	}
	for _, want := range []string{"pipeline_steps,", "action=capture", "device_id=fake_cam", "status=succeeded", "duration_ms=12i"} {
		if !strings.Contains(lines[0], want) {
			t.Errorf("line %q missing %q", lines[0], want)
		}
	}
}

func TestWrites_Disconnected(t *testing.T) {
	w := &fakeWriter{}
	c := &Client{writeAPI: w}

	c.WriteDeviceReading("x", "", map[string]any{"v": 1.0}, time.Now())
	c.WriteStepSample("p", "", "wait", "succeeded", 1, time.Now())
	c.Flush()

	if len(w.lines()) != 0 || w.flushes != 0 {
		t.Error("disconnected client wrote or flushed")
	}
}

func TestClose(t *testing.T) {
	c, w := connectedClient()

	if err := c.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if w.flushes != 1 {
		t.Errorf("flushes = %d, want 1", w.flushes)
	}
	if c.IsConnected() {
		t.Error("IsConnected() = true after Close()")
	}
	if err := c.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() error = %v, want ErrNotConnected", err)
	}

	// Second close does not flush again.
	_ = c.Close()
	if w.flushes != 1 {
		t.Errorf("flushes after second Close = %d, want 1", w.flushes)
	}
}

func TestClose_Nil(t *testing.T) {
	var c *Client
	if err := c.Close(); err != nil {
		t.Errorf("Close() on nil error = %v", err)
	}
}

func TestHandleWriteErrors(t *testing.T) {
	c, _ := connectedClient()

	got := make(chan error, 1)
	c.SetOnError(func(err error) { got <- err })

	ch := make(chan error, 1)
	ch <- errors.New("bucket not found")
	close(ch)
	c.handleWriteErrors(ch)

	select {
	case err := <-got:
		if !errors.Is(err, ErrWriteFailed) {
			t.Errorf("callback error = %v, want ErrWriteFailed", err)
		}
	default:
		t.Fatal("callback not invoked")
	}
}
