package alerts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
)

// ============================================================================
// Store Tests
// ============================================================================

func TestStore_KeepsLastN(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "api_alerts.json")
	store := NewStore(path, 3, nil)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if err := store.Send(ctx, New(TypeHighCost, SeverityHigh, "santiment", fmt.Sprintf("alert %d", i))); err != nil {
			t.Fatalf("Send failed: %v", err)
		}
	}

	recent := store.Recent(0)
	if len(recent) != 3 {
		t.Fatalf("expected 3 alerts, got %d", len(recent))
	}
	if recent[0].Message != "alert 2" || recent[2].Message != "alert 4" {
		t.Errorf("expected alerts 2..4 oldest first, got %q..%q", recent[0].Message, recent[2].Message)
	}

	// The file mirrors memory
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read alert file: %v", err)
	}
	var onDisk []Alert
	if err := json.Unmarshal(data, &onDisk); err != nil {
		t.Fatalf("alert file is not a JSON array: %v", err)
	}
	if len(onDisk) != 3 {
		t.Errorf("expected 3 alerts on disk, got %d", len(onDisk))
	}
}

func TestStore_ReloadsExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "alerts.json")
	ctx := context.Background()

	first := NewStore(path, 10, nil)
	cost := decimal.RequireFromString("0.06")
	if err := first.Send(ctx, New(TypeHighCost, SeverityHigh, "whale_alert", "expensive").WithCost(cost)); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	second := NewStore(path, 10, nil)
	recent := second.Recent(1)
	if len(recent) != 1 {
		t.Fatalf("expected reloaded alert, got %d", len(recent))
	}
	if recent[0].Cost == nil || !recent[0].Cost.Equal(cost) {
		t.Errorf("expected cost 0.06 after reload, got %v", recent[0].Cost)
	}
	if recent[0].ID == "" {
		t.Error("expected alert id to survive reload")
	}
}

func TestStore_CorruptFileStartsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "alerts.json")
	if err := os.WriteFile(path, []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}

	store := NewStore(path, 10, nil)
	if store.Len() != 0 {
		t.Errorf("expected empty store, got %d", store.Len())
	}
	if err := store.Send(context.Background(), New(TypeRestart, SeverityMedium, "", "restarted")); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if NewStore(path, 10, nil).Len() != 1 {
		t.Error("expected corrupt file to be replaced")
	}
}

func TestStore_RecentBounds(t *testing.T) {
	store := NewStore("", 10, nil)
	ctx := context.Background()
	for i := 0; i < 4; i++ {
		store.Send(ctx, New(TypeDegraded, SeverityMedium, "", fmt.Sprint(i)))
	}

	if got := store.Recent(2); len(got) != 2 || got[1].Message != "3" {
		t.Errorf("unexpected Recent(2): %+v", got)
	}
	if got := store.Recent(50); len(got) != 4 {
		t.Errorf("expected all 4, got %d", len(got))
	}
}

// ============================================================================
// Kafka Sink Tests
// ============================================================================

type fakeWriter struct {
	messages []kafka.Message
	err      error
	closed   bool
}

func (f *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	if _, ok := ctx.Deadline(); !ok {
		return errors.New("expected a deadline")
	}
	f.messages = append(f.messages, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func TestKafkaSink_Send(t *testing.T) {
	w := &fakeWriter{}
	sink := NewKafkaSinkWithWriter(w, time.Second)

	alert := New(TypeSourceCritical, SeverityCritical, "binance", "binance at 95% rpm")
	if err := sink.Send(context.Background(), alert); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	if len(w.messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(w.messages))
	}
	msg := w.messages[0]
	if string(msg.Key) != "binance" {
		t.Errorf("expected key binance, got %q", msg.Key)
	}

	var decoded Alert
	if err := json.Unmarshal(msg.Value, &decoded); err != nil {
		t.Fatalf("message is not an alert: %v", err)
	}
	if decoded.ID != alert.ID || decoded.Type != TypeSourceCritical {
		t.Errorf("unexpected decoded alert: %+v", decoded)
	}

	// Alerts without a source are keyed by type
	sink.Send(context.Background(), New(TypeEmergencyStop, SeverityCritical, "", "stop"))
	if string(w.messages[1].Key) != string(TypeEmergencyStop) {
		t.Errorf("expected type key, got %q", w.messages[1].Key)
	}

	sink.Close()
	if !w.closed {
		t.Error("expected writer to be closed")
	}
}

func TestKafkaSink_Error(t *testing.T) {
	sink := NewKafkaSinkWithWriter(&fakeWriter{err: errors.New("broker down")}, time.Second)
	if err := sink.Send(context.Background(), New(TypeShutdown, SeverityCritical, "", "x")); err == nil {
		t.Error("expected publish error")
	}
}

// ============================================================================
// AsyncSink Tests
// ============================================================================

func TestAsyncSink_SendDoesNotWaitOnSlowSink(t *testing.T) {
	release := make(chan struct{})
	delivered := make(chan string, 4)
	slow := SinkFunc(func(_ context.Context, a Alert) error {
		<-release
		delivered <- a.Message
		return nil
	})
	sink := NewAsyncSink(slow, 4, nil)

	start := time.Now()
	for _, msg := range []string{"a", "b"} {
		if err := sink.Send(context.Background(), New(TypeHighCost, SeverityHigh, "santiment", msg)); err != nil {
			t.Fatalf("Send(%s): %v", msg, err)
		}
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Send blocked for %s", elapsed)
	}

	close(release)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := sink.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if len(delivered) != 2 || <-delivered != "a" || <-delivered != "b" {
		t.Error("queued alerts not delivered in order before Close returned")
	}
	if err := sink.Send(context.Background(), New(TypeHighCost, SeverityHigh, "", "late")); !errors.Is(err, ErrSinkClosed) {
		t.Errorf("Send after Close: got %v, want ErrSinkClosed", err)
	}
}

func TestAsyncSink_DropsWhenFull(t *testing.T) {
	block := make(chan struct{})
	started := make(chan struct{}, 1)
	sink := NewAsyncSink(SinkFunc(func(context.Context, Alert) error {
		select {
		case started <- struct{}{}:
		default:
		}
		<-block
		return nil
	}), 1, nil)
	defer func() {
		close(block)
		_ = sink.Close(context.Background())
	}()

	// first alert is taken by the worker, second fills the buffer
	_ = sink.Send(context.Background(), New(TypeHighCost, SeverityHigh, "", "1"))
	<-started
	if err := sink.Send(context.Background(), New(TypeHighCost, SeverityHigh, "", "2")); err != nil {
		t.Fatalf("Send into free buffer: %v", err)
	}
	if err := sink.Send(context.Background(), New(TypeHighCost, SeverityHigh, "", "3")); !errors.Is(err, ErrQueueFull) {
		t.Errorf("Send into full buffer: got %v, want ErrQueueFull", err)
	}
}

// ============================================================================
// Fanout Tests
// ============================================================================

func TestFanout_DeliversToAllAndJoinsErrors(t *testing.T) {
	var got []string
	ok := SinkFunc(func(_ context.Context, a Alert) error {
		got = append(got, a.Message)
		return nil
	})
	failing := SinkFunc(func(context.Context, Alert) error { return errors.New("sink failed") })

	f := NewFanout(nil, failing, nil, ok)
	err := f.Send(context.Background(), New(TypeHighUsage, SeverityHigh, "", "80% used"))

	if err == nil {
		t.Error("expected joined error from failing sink")
	}
	if len(got) != 1 || got[0] != "80% used" {
		t.Errorf("expected healthy sink to receive the alert, got %v", got)
	}
}

func TestAlert_Builders(t *testing.T) {
	ts := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	a := New(TypeHighCost, SeverityHigh, "santiment", "m").At(ts).WithCost(decimal.RequireFromString("0.1"))

	if !a.Timestamp.Equal(ts) || a.Cost == nil || a.Cost.String() != "0.1" {
		t.Errorf("unexpected alert: %+v", a)
	}
	if err := Discard.Send(context.Background(), a); err != nil {
		t.Errorf("Discard returned %v", err)
	}
}
