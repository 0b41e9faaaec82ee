package alerts

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/usagegate/usagegate/internal/config"
)

type fakeNotifier struct {
	mu       sync.Mutex
	messages []string
	err      error
}

func (f *fakeNotifier) Notify(message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.messages = append(f.messages, message)
	return nil
}

func (f *fakeNotifier) sent() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.messages...)
}

func TestFireDelivers(t *testing.T) {
	notifier := &fakeNotifier{}
	m := NewManager(config.AlertsConfig{MinInterval: time.Minute}, notifier, nil)

	m.Fire(EventContention, "user-1", "5 attempts")

	msgs := notifier.sent()
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}
	if !strings.Contains(msgs[0], "contention") || !strings.Contains(msgs[0], "user-1") {
		t.Errorf("unexpected message: %s", msgs[0])
	}
}

func TestFireDedup(t *testing.T) {
	notifier := &fakeNotifier{}
	m := NewManager(config.AlertsConfig{MinInterval: time.Hour}, notifier, nil)

	// Same kind and subject within the interval: only the first goes out.
	m.Fire(EventContention, "user-1", "first")
	m.Fire(EventContention, "user-1", "second")
	if len(notifier.sent()) != 1 {
		t.Fatalf("expected dedup to drop the repeat, got %d messages", len(notifier.sent()))
	}

	// A different subject or kind is not deduped.
	m.Fire(EventContention, "user-2", "other user")
	m.Fire(EventStoreUnavailable, "user-1", "other kind")
	if len(notifier.sent()) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(notifier.sent()))
	}
}

func TestFireNilManagerAndNotifier(t *testing.T) {
	// A nil manager is safe to fire on.
	var m *Manager
	m.Fire(EventContention, "user-1", "detail")

	// A manager without a notifier only logs.
	m = NewManager(config.AlertsConfig{}, nil, nil)
	m.Fire(EventInvalidRecord, "user-1", "detail")
}

func TestFireDeliveryErrorIsSwallowed(t *testing.T) {
	notifier := &fakeNotifier{err: errors.New("telegram down")}
	m := NewManager(config.AlertsConfig{MinInterval: time.Minute}, notifier, nil)

	// Must not panic or propagate.
	m.Fire(EventStoreUnavailable, "user-1", "disk on fire")
}
