package tracker

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pollinations/pollenwall/internal/pollen"
)

// fixedRand always picks the same index.
type fixedRand struct{ n int }

func (f fixedRand) IntN(n int) int {
	if f.n >= n {
		return n - 1
	}
	return f.n
}

func TestReconcileDiscoverThenDone(t *testing.T) {
	tr := New(0, nil)

	res := tr.Reconcile([]pollen.Summary{{ID: "p1", Status: pollen.StatusProcessing}})
	require.Len(t, res.Discovered, 1)
	assert.Empty(t, res.BecameDone)
	assert.Equal(t, 1, res.Processing)
	assert.Equal(t, uint64(1), res.Seq)

	res = tr.Reconcile([]pollen.Summary{{ID: "p1", Status: pollen.StatusDone, ArtifactRef: "r1"}})
	require.Len(t, res.BecameDone, 1)
	assert.Empty(t, res.Discovered)
	got := res.BecameDone[0]
	assert.Equal(t, "p1", got.ID)
	assert.Equal(t, pollen.StatusDone, got.Status)
	assert.Equal(t, "r1", got.ArtifactRef)
	assert.Equal(t, 1, got.Revision)
	assert.Equal(t, 0, res.Processing)
}

func TestStatusNeverRegresses(t *testing.T) {
	tr := New(0, nil)
	tr.Reconcile([]pollen.Summary{{ID: "p1", Status: pollen.StatusProcessing}})
	tr.Reconcile([]pollen.Summary{{ID: "p1", Status: pollen.StatusDone, ArtifactRef: "r1"}})

	res := tr.Reconcile([]pollen.Summary{{ID: "p1", Status: pollen.StatusProcessing}})
	assert.True(t, res.Empty())

	p, ok := tr.Get("p1")
	require.True(t, ok)
	if p.Status != pollen.StatusDone {
		t.Fatalf("status regressed to %s", p.Status)
	}
	assert.Equal(t, "r1", p.ArtifactRef)
}

func TestReconcileIdempotent(t *testing.T) {
	tr := New(0, nil)
	snap := []pollen.Summary{
		{ID: "p1", Status: pollen.StatusDone, ArtifactRef: "r1"},
		{ID: "p2", Status: pollen.StatusProcessing, ArtifactRef: "q1"},
	}
	tr.Reconcile(snap)
	res := tr.Reconcile(snap)
	assert.Empty(t, res.Discovered)
	assert.Empty(t, res.BecameDone)
	assert.Empty(t, res.PreviewChanged)
}

func TestPreviewRevisions(t *testing.T) {
	tr := New(0, nil)
	tr.Reconcile([]pollen.Summary{{ID: "p1", Status: pollen.StatusProcessing}})

	res := tr.Reconcile([]pollen.Summary{{ID: "p1", Status: pollen.StatusProcessing, ArtifactRef: "r1"}})
	require.Len(t, res.PreviewChanged, 1)
	assert.Equal(t, 1, res.PreviewChanged[0].Revision)

	res = tr.Reconcile([]pollen.Summary{{ID: "p1", Status: pollen.StatusProcessing, ArtifactRef: "r2"}})
	require.Len(t, res.PreviewChanged, 1)
	assert.Equal(t, 2, res.PreviewChanged[0].Revision)

	// Same ref again is not a change.
	res = tr.Reconcile([]pollen.Summary{{ID: "p1", Status: pollen.StatusProcessing, ArtifactRef: "r2"}})
	assert.Empty(t, res.PreviewChanged)
}

func TestDiscoveredAlreadyDoneIsNotBecameDone(t *testing.T) {
	tr := New(0, nil)
	res := tr.Reconcile([]pollen.Summary{{ID: "p1", Status: pollen.StatusDone, ArtifactRef: "r1"}})
	require.Len(t, res.Discovered, 1)
	assert.Empty(t, res.BecameDone, "lists must stay disjoint")
}

func TestDoneRefMutationIgnored(t *testing.T) {
	tr := New(0, nil)
	tr.Reconcile([]pollen.Summary{{ID: "p1", Status: pollen.StatusDone, ArtifactRef: "r1"}})
	res := tr.Reconcile([]pollen.Summary{{ID: "p1", Status: pollen.StatusDone, ArtifactRef: "r9"}})
	assert.True(t, res.Empty())
	p, _ := tr.Get("p1")
	assert.Equal(t, "r1", p.ArtifactRef)
	assert.Equal(t, 1, p.Revision)
}

func TestPruneStaleEntries(t *testing.T) {
	tr := New(2, nil)
	tr.Reconcile([]pollen.Summary{{ID: "p1", Status: pollen.StatusProcessing}})

	res := tr.Reconcile(nil)
	assert.Empty(t, res.Pruned)
	require.Equal(t, 1, tr.Len())

	res = tr.Reconcile(nil)
	assert.Equal(t, []string{"p1"}, res.Pruned)
	assert.Equal(t, 0, tr.Len())
}

func TestSelectedNeverPruned(t *testing.T) {
	tr := New(1, fixedRand{0})
	tr.Reconcile([]pollen.Summary{{ID: "p1", Status: pollen.StatusProcessing}})
	id, err := tr.SelectForAttach("")
	require.NoError(t, err)
	require.Equal(t, "p1", id)

	for i := 0; i < 5; i++ {
		res := tr.Reconcile(nil)
		assert.Empty(t, res.Pruned)
	}
	_, ok := tr.Selected()
	assert.True(t, ok)
}

func TestSelectForAttach(t *testing.T) {
	tr := New(0, fixedRand{1})
	tr.Reconcile([]pollen.Summary{
		{ID: "b", Status: pollen.StatusProcessing},
		{ID: "a", Status: pollen.StatusProcessing},
		{ID: "c", Status: pollen.StatusDone, ArtifactRef: "r"},
	})

	// Random pick indexes the sorted processing ids: ["a" "b"][1] == "b".
	id, err := tr.SelectForAttach("")
	require.NoError(t, err)
	assert.Equal(t, "b", id)
	assert.Equal(t, "b", tr.SelectedID())

	// Explicit processing target wins.
	id, err = tr.SelectForAttach("a")
	require.NoError(t, err)
	assert.Equal(t, "a", id)

	// A done target falls back to a random processing pollen.
	id, err = tr.SelectForAttach("c")
	require.NoError(t, err)
	assert.Equal(t, "b", id)
}

func TestSelectForAttachNoProcessing(t *testing.T) {
	tr := New(0, nil)
	tr.Reconcile([]pollen.Summary{{ID: "c", Status: pollen.StatusDone, ArtifactRef: "r"}})
	_, err := tr.SelectForAttach("")
	if !errors.Is(err, ErrNoProcessingPollens) {
		t.Fatalf("want ErrNoProcessingPollens, got %v", err)
	}
}

func TestMarkApplied(t *testing.T) {
	tr := New(0, nil)
	tr.Reconcile([]pollen.Summary{{ID: "p1", Status: pollen.StatusProcessing, ArtifactRef: "r1"}})
	tr.MarkApplied("p1")
	p, ok := tr.Get("p1")
	require.True(t, ok)
	assert.True(t, p.Applied)
	assert.Equal(t, 1, p.AppliedRevision)

	// Unknown ids are ignored.
	tr.MarkApplied("nope")
}

func TestSnapshotOrderedByDiscovery(t *testing.T) {
	tr := New(0, nil)
	tr.Reconcile([]pollen.Summary{{ID: "z", Status: pollen.StatusProcessing}})
	tr.Reconcile([]pollen.Summary{
		{ID: "z", Status: pollen.StatusProcessing},
		{ID: "a", Status: pollen.StatusProcessing},
	})
	snap := tr.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, "z", snap[0].ID)
	assert.Equal(t, "a", snap[1].ID)
}
