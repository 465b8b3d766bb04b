package tracker

import (
	"errors"
	"log/slog"
	"math/rand/v2"
	"sort"
	"sync"

	"github.com/pollinations/pollenwall/internal/pollen"
)

// ErrNoProcessingPollens is returned by SelectForAttach when no tracked
// pollen is currently processing.
var ErrNoProcessingPollens = errors.New("no processing pollens")

// DefaultStaleCycles is the number of consecutive polls a pollen may be
// absent from the feed before it is pruned.
const DefaultStaleCycles = 12

// Rand supplies the randomness used to pick an attach target. It matches
// math/rand/v2.Rand so tests can inject a deterministic pick.
type Rand interface {
	IntN(n int) int
}

type stdRand struct{}

func (stdRand) IntN(n int) int { return rand.IntN(n) }

// Tracker owns the in-memory lifecycle state of every pollen observed during
// a run. All methods are safe for concurrent use.
type Tracker struct {
	mu          sync.RWMutex
	pollens     map[string]*pollen.Pollen
	seq         uint64
	selectedID  string
	staleCycles uint64
	rng         Rand
}

// New returns a Tracker pruning entries after staleCycles missed polls.
// A zero staleCycles selects DefaultStaleCycles; a nil rng selects the
// shared math/rand/v2 source.
func New(staleCycles uint64, rng Rand) *Tracker {
	if staleCycles == 0 {
		staleCycles = DefaultStaleCycles
	}
	if rng == nil {
		rng = stdRand{}
	}
	return &Tracker{
		pollens:     make(map[string]*pollen.Pollen),
		staleCycles: staleCycles,
		rng:         rng,
	}
}

// Reconcile folds one feed snapshot into the tracker and reports what
// changed. Each call advances the poll sequence by one. Status only moves
// processing -> done; a done pollen reporting processing again is ignored
// with a warning, since ids are immutable content keys. Pollens absent from
// the snapshot are retained until they miss staleCycles consecutive polls,
// except the attach-selected pollen, which is never pruned.
func (t *Tracker) Reconcile(observed []pollen.Summary) pollen.ReconcileResult {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.seq++
	res := pollen.ReconcileResult{Seq: t.seq}

	for _, s := range observed {
		if s.ID == "" {
			continue
		}
		p, ok := t.pollens[s.ID]
		if !ok {
			np := &pollen.Pollen{
				ID:          s.ID,
				Status:      s.Status,
				Model:       s.Model,
				TextInput:   s.TextInput,
				FirstSeenAt: t.seq,
				LastSeenAt:  t.seq,
			}
			if s.ArtifactRef != "" {
				np.ArtifactRef = s.ArtifactRef
				np.Revision = 1
			}
			t.pollens[s.ID] = np
			res.Discovered = append(res.Discovered, *np)
			continue
		}

		p.LastSeenAt = t.seq
		if s.Model != "" {
			p.Model = s.Model
		}
		if s.TextInput != "" {
			p.TextInput = s.TextInput
		}

		if p.Status == pollen.StatusDone {
			if s.Status == pollen.StatusProcessing {
				slog.Warn("pollen reported processing after done, ignoring", "id", p.ID)
			} else if s.ArtifactRef != "" && s.ArtifactRef != p.ArtifactRef {
				// A new generation must arrive under a new id, never as a
				// mutated ref on a finished one.
				slog.Warn("artifact ref changed after done, ignoring", "id", p.ID, "ref", s.ArtifactRef)
			}
			continue
		}

		refChanged := s.ArtifactRef != "" && s.ArtifactRef != p.ArtifactRef
		if refChanged {
			p.ArtifactRef = s.ArtifactRef
			p.Revision++
		}
		switch {
		case s.Status == pollen.StatusDone:
			p.Status = pollen.StatusDone
			res.BecameDone = append(res.BecameDone, *p)
		case refChanged:
			res.PreviewChanged = append(res.PreviewChanged, *p)
		}
	}

	for id, p := range t.pollens {
		if id == t.selectedID {
			continue
		}
		if t.seq-p.LastSeenAt >= t.staleCycles {
			delete(t.pollens, id)
			res.Pruned = append(res.Pruned, id)
		}
	}
	sort.Strings(res.Pruned)

	for _, p := range t.pollens {
		if p.Status == pollen.StatusProcessing {
			res.Processing++
		}
	}
	return res
}

// SelectForAttach picks the pollen to follow in attach mode and remembers it.
// A target id is honored when it is tracked and still processing; otherwise a
// uniformly random processing pollen is chosen. With nothing processing it
// returns ErrNoProcessingPollens.
func (t *Tracker) SelectForAttach(target string) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if target != "" {
		if p, ok := t.pollens[target]; ok && p.Status == pollen.StatusProcessing {
			t.selectedID = target
			return target, nil
		}
		slog.Warn("attach target not processing, picking a random pollen", "id", target)
	}
	ids := make([]string, 0, len(t.pollens))
	for id, p := range t.pollens {
		if p.Status == pollen.StatusProcessing {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return "", ErrNoProcessingPollens
	}
	// Map order is randomized per run; sort first so an injected Rand yields
	// a reproducible pick.
	sort.Strings(ids)
	t.selectedID = ids[t.rng.IntN(len(ids))]
	return t.selectedID, nil
}

// MarkApplied records that the pollen's current artifact revision has been
// set as wallpaper. Unknown ids are ignored.
func (t *Tracker) MarkApplied(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if p, ok := t.pollens[id]; ok {
		p.Applied = true
		p.AppliedRevision = p.Revision
	}
}

// Get returns a copy of the tracked pollen with the given id.
func (t *Tracker) Get(id string) (pollen.Pollen, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	p, ok := t.pollens[id]
	if !ok {
		return pollen.Pollen{}, false
	}
	return *p, true
}

// Selected returns a copy of the attach-selected pollen, if any.
func (t *Tracker) Selected() (pollen.Pollen, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.selectedID == "" {
		return pollen.Pollen{}, false
	}
	p, ok := t.pollens[t.selectedID]
	if !ok {
		return pollen.Pollen{}, false
	}
	return *p, true
}

// SelectedID returns the attach-selected id, or "" when none is selected.
func (t *Tracker) SelectedID() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.selectedID
}

// Snapshot returns copies of all tracked pollens ordered by discovery.
func (t *Tracker) Snapshot() []pollen.Pollen {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]pollen.Pollen, 0, len(t.pollens))
	for _, p := range t.pollens {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].FirstSeenAt != out[j].FirstSeenAt {
			return out[i].FirstSeenAt < out[j].FirstSeenAt
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// ProcessingCount returns the number of tracked pollens still processing.
func (t *Tracker) ProcessingCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n := 0
	for _, p := range t.pollens {
		if p.Status == pollen.StatusProcessing {
			n++
		}
	}
	return n
}

// Len returns the number of tracked pollens.
func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.pollens)
}

// Seq returns the sequence number of the most recent reconcile.
func (t *Tracker) Seq() uint64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.seq
}
