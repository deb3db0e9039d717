package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
)

type fakeNotifier struct {
	calls int
	err   error
}

func (f *fakeNotifier) OrganizationProvisioned(context.Context, OrganizationProvisioned) error {
	f.calls++
	return f.err
}

func TestProtectedNotifier_OpensAndRecovers(t *testing.T) {
	inner := &fakeNotifier{err: errors.New("broker down")}
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	n := NewProtectedNotifier(inner, ProtectedNotifierConfig{FailureThreshold: 2, Cooldown: time.Minute})
	n.now = func() time.Time { return now }

	ctx := context.Background()
	evt := OrganizationProvisioned{Kind: "institution", OrganizationID: 1}

	_ = n.OrganizationProvisioned(ctx, evt)
	_ = n.OrganizationProvisioned(ctx, evt)
	if n.State() != "open" {
		t.Fatalf("state = %s, want open", n.State())
	}

	if err := n.OrganizationProvisioned(ctx, evt); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("got %v, want ErrCircuitOpen", err)
	}
	if inner.calls != 2 {
		t.Fatalf("inner called %d times while open", inner.calls)
	}

	now = now.Add(2 * time.Minute)
	inner.err = nil
	if err := n.OrganizationProvisioned(ctx, evt); err != nil {
		t.Fatalf("half-open trial: %v", err)
	}
	if n.State() != "closed" {
		t.Fatalf("state = %s, want closed", n.State())
	}
}

type fakeWriter struct {
	msgs []kafka.Message
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

func TestKafkaNotifier_KeysByOrganization(t *testing.T) {
	w := &fakeWriter{}
	n := &KafkaNotifier{w: w}

	uid := int64(9)
	err := n.OrganizationProvisioned(context.Background(), OrganizationProvisioned{
		Kind:           "provider",
		OrganizationID: 4,
		Name:           "Acme Reagents",
		AdminUserID:    &uid,
		Role:           "provider_admin",
	})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if len(w.msgs) != 1 {
		t.Fatalf("messages = %d, want 1", len(w.msgs))
	}

	msg := w.msgs[0]
	if string(msg.Key) != "provider:4" {
		t.Fatalf("key = %q", msg.Key)
	}

	var got OrganizationProvisioned
	if err := json.Unmarshal(msg.Value, &got); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if got.Event != EventOrganizationProvisioned || got.AdminUserID == nil || *got.AdminUserID != 9 {
		t.Fatalf("unexpected payload %+v", got)
	}
}

func TestLogNotifier_WritesEvent(t *testing.T) {
	var buf bytes.Buffer
	n := NewLogNotifier(slog.New(slog.NewJSONHandler(&buf, nil)))

	if err := n.OrganizationProvisioned(context.Background(), OrganizationProvisioned{Kind: "institution", OrganizationID: 3}); err != nil {
		t.Fatalf("log notifier: %v", err)
	}
	if !strings.Contains(buf.String(), `"organization_id":3`) {
		t.Fatalf("log line missing organization id: %s", buf.String())
	}
}
