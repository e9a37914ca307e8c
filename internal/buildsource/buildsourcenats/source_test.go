package buildsourcenats

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/k11v/brickview/internal/app"
	"github.com/k11v/brickview/internal/build"
	"github.com/k11v/brickview/internal/containertest"
)

type stubEntry struct {
	key   string
	value string
	op    jetstream.KeyValueOp
}

func (e stubEntry) Bucket() string                  { return "builds" }
func (e stubEntry) Key() string                     { return e.key }
func (e stubEntry) Value() []byte                   { return []byte(e.value) }
func (e stubEntry) Revision() uint64                { return 1 }
func (e stubEntry) Created() time.Time              { return time.Time{} }
func (e stubEntry) Delta() uint64                   { return 0 }
func (e stubEntry) Operation() jetstream.KeyValueOp { return e.op }

func put(key, value string) jetstream.KeyValueEntry {
	return stubEntry{key: key, value: value, op: jetstream.KeyValuePut}
}

type spyHandler struct {
	mu          sync.Mutex
	collections []build.Collection
	errs        []error
	changed     chan struct{}
}

func newSpyHandler() *spyHandler {
	return &spyHandler{changed: make(chan struct{}, 1)}
}

func (h *spyHandler) HandleCollection(ctx context.Context, c build.Collection) {
	h.mu.Lock()
	h.collections = append(h.collections, c)
	h.mu.Unlock()
	h.notify()
}

func (h *spyHandler) HandleError(ctx context.Context, err error) {
	h.mu.Lock()
	h.errs = append(h.errs, err)
	h.mu.Unlock()
	h.notify()
}

func (h *spyHandler) notify() {
	select {
	case h.changed <- struct{}{}:
	default:
	}
}

func (h *spyHandler) last() build.Collection {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.collections) == 0 {
		return nil
	}
	return h.collections[len(h.collections)-1]
}

const (
	runningB1   = `{"id": "b1", "startTime": "2025-01-01T12:00:00Z", "result": null}`
	succeededB1 = `{"id": "b1", "startTime": "2025-01-01T12:00:00Z", "result": {"ok": true, "value": {"pdfUrl": "out/1.pdf"}, "finishTime": "2025-01-01T12:01:00Z", "stdout": "", "stderr": ""}}`
	runningB2   = `{"id": "b2", "startTime": "2025-01-01T12:05:00Z", "result": null}`
)

func TestMirrorApply(t *testing.T) {
	ctx := context.Background()
	h := newSpyHandler()
	m := newMirror()

	m.apply(ctx, h, put("b1", runningB1))
	m.apply(ctx, h, put("b2", runningB2))
	if len(h.collections) != 0 {
		t.Fatalf("got %d collections before the initial values ended, want none", len(h.collections))
	}

	m.apply(ctx, h, nil)
	if got, want := len(h.last()), 2; got != want {
		t.Fatalf("got %d builds, want %d", got, want)
	}

	m.apply(ctx, h, put("b1", succeededB1))
	if !h.last()["b1"].Succeeded() {
		t.Fatalf("got %+v, want b1 succeeded", h.last()["b1"])
	}

	m.apply(ctx, h, stubEntry{key: "b2", op: jetstream.KeyValueDelete})
	if _, ok := h.last()["b2"]; ok {
		t.Fatal("got deleted b2, want it gone")
	}

	n := len(h.collections)
	m.apply(ctx, h, put("b3", runningB1))
	if got, want := len(h.collections), n; got != want {
		t.Fatalf("got %d collections after a malformed entry, want %d", got, want)
	}
	if got, want := len(h.errs), 1; got != want {
		t.Fatalf("got %d errors, want %d", got, want)
	}
	if !errors.Is(h.errs[0], build.ErrMalformedCollection) {
		t.Fatalf("got %v, want %v", h.errs[0], build.ErrMalformedCollection)
	}
}

func TestMirrorApplyMalformedInitialValue(t *testing.T) {
	ctx := context.Background()
	h := newSpyHandler()
	m := newMirror()

	m.apply(ctx, h, put("b1", runningB1))
	m.apply(ctx, h, put("b2", `{"id": "b2"}`))
	m.apply(ctx, h, nil)

	if got, want := len(h.last()), 1; got != want {
		t.Fatalf("got %d builds, want %d", got, want)
	}
	if got, want := len(h.errs), 1; got != want {
		t.Fatalf("got %d errors, want %d", got, want)
	}
}

func TestSource(t *testing.T) {
	ctx := context.Background()
	url := containertest.NATS(t, ctx)

	conn, kv, err := app.NewNATSKeyValue(ctx, url, "")
	if err != nil {
		t.Fatalf("didn't want %q", err)
	}
	defer conn.Close()

	if _, err = kv.Put(ctx, "b1", []byte(runningB1)); err != nil {
		t.Fatalf("didn't want %q", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	h := newSpyHandler()
	done := make(chan error, 1)
	go func() {
		done <- New(kv, nil).Watch(ctx, h)
	}()

	waitFor := func(desc string, cond func(build.Collection) bool) {
		t.Helper()
		timeout := time.After(30 * time.Second)
		for {
			if c := h.last(); c != nil && cond(c) {
				return
			}
			select {
			case <-h.changed:
			case <-timeout:
				t.Fatalf("timed out waiting for %s", desc)
			}
		}
	}

	waitFor("the initial values", func(c build.Collection) bool { return c["b1"] != nil })

	if _, err = kv.Put(ctx, "b1", []byte(succeededB1)); err != nil {
		t.Fatalf("didn't want %q", err)
	}
	waitFor("b1 to succeed", func(c build.Collection) bool { return c["b1"] != nil && c["b1"].Succeeded() })

	if err = kv.Delete(ctx, "b1"); err != nil {
		t.Fatalf("didn't want %q", err)
	}
	waitFor("b1 to be deleted", func(c build.Collection) bool { return c["b1"] == nil })

	cancel()
	if err = <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("got %v, want %v", err, context.Canceled)
	}
}
