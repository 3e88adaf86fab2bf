package editor

import (
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

// fakeSurface parses __invoke scripts and answers them synchronously
// from a per-op result table (defaulting to null), recording every
// operation it sees.
type fakeSurface struct {
	mu      sync.Mutex
	ch      *Channel
	ops     []invocation
	results map[string]string
	silent  map[string]bool // ops the surface never answers
}

func newFakeSurface() *fakeSurface {
	return &fakeSurface{
		results: make(map[string]string),
		silent:  make(map[string]bool),
	}
}

func (f *fakeSurface) Execute(script string) error {
	payload := strings.TrimSuffix(strings.TrimPrefix(script, "__invoke("), ")")
	var inv invocation
	if err := json.Unmarshal([]byte(payload), &inv); err != nil {
		return err
	}
	f.mu.Lock()
	f.ops = append(f.ops, inv)
	result, ok := f.results[inv.Op]
	silent := f.silent[inv.Op]
	f.mu.Unlock()

	if inv.ID != "" && !silent {
		if !ok {
			result = "null"
		}
		f.ch.Resolve(inv.ID, json.RawMessage(result))
	}
	return nil
}

func (f *fakeSurface) calls(op string) []invocation {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []invocation
	for _, inv := range f.ops {
		if inv.Op == op {
			out = append(out, inv)
		}
	}
	return out
}

func (f *fakeSurface) lastArgs(t *testing.T, op string, v any) {
	t.Helper()
	calls := f.calls(op)
	if len(calls) == 0 {
		t.Fatalf("no %s invocation recorded", op)
	}
	raw, err := json.Marshal(calls[len(calls)-1].Args)
	if err != nil {
		t.Fatalf("re-encode %s args: %v", op, err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		t.Fatalf("decode %s args: %v", op, err)
	}
}

func newTestChannel() (*Channel, *fakeSurface) {
	surface := newFakeSurface()
	ch := NewChannel(surface, nil)
	surface.ch = ch
	return ch, surface
}

func TestInvoke_Resolves(t *testing.T) {
	ch, surface := newTestChannel()
	surface.results["tableOfContents"] = `[{"title":"Intro","level":1,"anchor":"intro"}]`

	result, err := ch.Invoke("tableOfContents", nil, time.Second)
	if err != nil {
		t.Fatalf("Invoke() failed: %v", err)
	}
	var toc []TOCEntry
	if err := json.Unmarshal(result, &toc); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if len(toc) != 1 || toc[0].Anchor != "intro" {
		t.Errorf("result = %+v", toc)
	}
}

func TestInvoke_Timeout(t *testing.T) {
	ch, surface := newTestChannel()
	surface.silent["focus"] = true

	_, err := ch.Invoke("focus", nil, 20*time.Millisecond)
	if !errors.Is(err, ErrTimeout) {
		t.Errorf("Invoke() = %v, want ErrTimeout", err)
	}
}

func TestResolve_LateResultDropped(t *testing.T) {
	ch, _ := newTestChannel()
	ch.Resolve("never-registered", json.RawMessage(`1`)) // must not panic
}

func TestInvoke_DistinctResolverIDs(t *testing.T) {
	ch, surface := newTestChannel()

	ch.Invoke("focus", nil, time.Second)
	ch.Invoke("focus", nil, time.Second)

	calls := surface.calls("focus")
	if len(calls) != 2 {
		t.Fatalf("calls = %d, want 2", len(calls))
	}
	if calls[0].ID == calls[1].ID {
		t.Error("resolver ids not unique across invocations")
	}
}
