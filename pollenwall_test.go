package pollenwall

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// recordingApplier satisfies Applier through the facade alias.
type recordingApplier struct {
	mu    sync.Mutex
	paths []string
}

func (a *recordingApplier) Apply(_ context.Context, path string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.paths = append(a.paths, path)
	return nil
}

func (a *recordingApplier) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.paths)
}

// newScriptedGateway serves /pollens from a list of canned responses, the
// last repeating, and every /ipfs/ ref as fixed bytes.
func newScriptedGateway(t *testing.T, lists []string) *httptest.Server {
	t.Helper()
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/pollens" {
			n := int(calls.Add(1)) - 1
			if n >= len(lists) {
				n = len(lists) - 1
			}
			_, _ = w.Write([]byte(lists[n]))
			return
		}
		if strings.HasPrefix(r.URL.Path, "/ipfs/") {
			_, _ = w.Write([]byte("artifact-bytes"))
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestEngineFacadeAppliesCompletedPollen(t *testing.T) {
	gw := newScriptedGateway(t, []string{
		`[{"id":"p1","status":"processing","model":"flux","text_input":"a meadow"}]`,
		`[{"id":"p1","status":"done","output":"QmAbc"}]`,
	})

	applier := &recordingApplier{}
	var events []EventType
	e, err := New(Options{
		Address:  gw.URL,
		CacheDir: t.TempDir(),
		Applier:  applier,
		OnEvent:  func(ev Event) { events = append(events, ev.Type) },
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer func() { _ = e.Close() }()

	if e.Mode() != ModeDefault {
		t.Fatalf("mode = %s, want %s", e.Mode(), ModeDefault)
	}
	for i := 0; i < 2; i++ {
		done, err := e.PollOnce(context.Background())
		if err != nil {
			t.Fatalf("poll %d: %v", i+1, err)
		}
		if done {
			t.Fatal("default mode never reports done")
		}
	}

	if applier.count() != 1 {
		t.Fatalf("applied %d times, want 1", applier.count())
	}
	st := e.Status()
	if st.Polls != 2 {
		t.Fatalf("polls = %d, want 2", st.Polls)
	}
	if st.LastApplied == nil || st.LastApplied.ID != "p1" {
		t.Fatalf("unexpected last applied: %+v", st.LastApplied)
	}
	p, ok := e.Pollen("p1")
	if !ok || !p.Applied {
		t.Fatalf("pollen p1 not marked applied: %+v", p)
	}
	if len(e.Pollens()) != 1 {
		t.Fatalf("tracked %d pollens, want 1", len(e.Pollens()))
	}

	sawDiscovered, sawApplied := false, false
	for _, et := range events {
		switch et {
		case EventDiscovered:
			sawDiscovered = true
		case EventApplied:
			sawApplied = true
		}
	}
	if !sawDiscovered || !sawApplied {
		t.Fatalf("events = %v, want discovered and applied", events)
	}
}

func TestEngineFacadeAttachRunsToCompletion(t *testing.T) {
	gw := newScriptedGateway(t, []string{
		`[{"id":"p1","status":"processing"}]`,
		`[{"id":"p1","status":"done","output":"QmFinal"}]`,
	})

	applier := &recordingApplier{}
	e, err := New(Options{
		Address:  gw.URL,
		CacheDir: t.TempDir(),
		Interval: 10 * time.Millisecond,
		Attach:   true,
		Applier:  applier,
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer func() { _ = e.Close() }()

	if e.Mode() != ModeAttach {
		t.Fatalf("mode = %s, want %s", e.Mode(), ModeAttach)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.Run(ctx); err != nil {
		t.Fatalf("run: %v", err)
	}
	if applier.count() != 1 {
		t.Fatalf("applied %d times, want 1", applier.count())
	}
}

func TestNewHTTPServerStartsAndCloses(t *testing.T) {
	gw := newScriptedGateway(t, []string{`[]`})
	e, err := New(Options{Address: gw.URL, CacheDir: t.TempDir(), Applier: &recordingApplier{}})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer func() { _ = e.Close() }()

	srv, err := NewHTTPServer("127.0.0.1:0", "/api", e)
	if err != nil {
		t.Fatalf("server: %v", err)
	}
	_ = srv.Close()
}

func TestLoadConfigDefaultsValidate(t *testing.T) {
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Address == "" {
		t.Fatal("default address should be set")
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}
}

func TestCleanCacheMissingDir(t *testing.T) {
	n, err := CleanCache(filepath.Join(t.TempDir(), "nope"))
	if err != nil {
		t.Fatalf("clean: %v", err)
	}
	if n != 0 {
		t.Fatalf("removed %d from missing dir, want 0", n)
	}
}

func TestPublicURL(t *testing.T) {
	want := "https://ipfs.io/ipfs/QmX"
	if got := PublicURL("/ipfs/QmX"); got != want {
		t.Fatalf("got %q", got)
	}
	if got := PublicURL("QmX"); got != want {
		t.Fatalf("got %q", got)
	}
}

func TestGenerateServiceFacade(t *testing.T) {
	text, err := GenerateService(ServiceOptions{Platform: "linux", Executable: "/usr/local/bin/pollenwall"})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if !strings.Contains(text, "[Unit]") || !strings.Contains(text, "/usr/local/bin/pollenwall") {
		t.Fatalf("unexpected descriptor:\n%s", text)
	}
}

func TestRegisterMetricsFacade(t *testing.T) {
	if err := RegisterMetrics(prometheus.NewRegistry()); err != nil {
		t.Fatalf("register: %v", err)
	}
}
