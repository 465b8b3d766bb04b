package client

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/pollinations/pollenwall/internal/engine"
	"github.com/pollinations/pollenwall/internal/pollen"
	"github.com/pollinations/pollenwall/internal/server"
)

type fakeSource struct {
	status  engine.Status
	pollens []pollen.Pollen
}

func (f *fakeSource) Status() engine.Status    { return f.status }
func (f *fakeSource) Pollens() []pollen.Pollen { return f.pollens }

func (f *fakeSource) Pollen(id string) (pollen.Pollen, bool) {
	for _, p := range f.pollens {
		if p.ID == id {
			return p, true
		}
	}
	return pollen.Pollen{}, false
}

func newTestClient(t *testing.T) *Client {
	t.Helper()
	gin.SetMode(gin.TestMode)
	src := &fakeSource{
		status: engine.Status{
			Mode:       engine.ModeAttach,
			StartedAt:  time.Now(),
			Polls:      3,
			Tracked:    2,
			Processing: 1,
			SelectedID: "p2",
		},
		pollens: []pollen.Pollen{
			{ID: "p1", Status: pollen.StatusDone, ArtifactRef: "r1", Revision: 1, Applied: true},
			{ID: "p2", Status: pollen.StatusProcessing},
		},
	}
	ts := httptest.NewServer(server.NewRouter(src, "/api").Handler())
	t.Cleanup(ts.Close)
	return New(Config{BaseURL: ts.URL + "/api"})
}

func TestClientStatus(t *testing.T) {
	c := newTestClient(t)
	st, err := c.Status(context.Background())
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if st.Mode != "attach" || st.Polls != 3 || st.SelectedID != "p2" {
		t.Fatalf("unexpected status: %+v", st)
	}
}

func TestClientPollens(t *testing.T) {
	c := newTestClient(t)
	got, err := c.Pollens(context.Background())
	if err != nil {
		t.Fatalf("pollens: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 pollens, got %d", len(got))
	}
	if got[0].ID != "p1" || !got[0].Applied || got[0].Revision != 1 {
		t.Fatalf("unexpected pollen: %+v", got[0])
	}
}

func TestClientPollenByID(t *testing.T) {
	c := newTestClient(t)
	p, err := c.Pollen(context.Background(), "p2")
	if err != nil {
		t.Fatalf("pollen: %v", err)
	}
	if p.ID != "p2" || p.Status != "processing" {
		t.Fatalf("unexpected pollen: %+v", p)
	}
}

func TestClientPollenUnknown(t *testing.T) {
	c := newTestClient(t)
	_, err := c.Pollen(context.Background(), "nope")
	if err == nil {
		t.Fatal("expected error for unknown pollen")
	}
	if !strings.Contains(err.Error(), "unknown pollen") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestClientIsReachable(t *testing.T) {
	c := newTestClient(t)
	if !c.IsReachable(context.Background()) {
		t.Fatal("expected server to be reachable")
	}
	down := New(Config{BaseURL: "http://127.0.0.1:1/api", Timeout: 200 * time.Millisecond})
	if down.IsReachable(context.Background()) {
		t.Fatal("expected closed port to be unreachable")
	}
}
