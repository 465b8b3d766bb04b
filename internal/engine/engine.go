package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/pollinations/pollenwall/internal/cache"
	"github.com/pollinations/pollenwall/internal/feed"
	"github.com/pollinations/pollenwall/internal/metrics"
	"github.com/pollinations/pollenwall/internal/pollen"
	"github.com/pollinations/pollenwall/internal/tracker"
	"github.com/pollinations/pollenwall/internal/wallpaper"
)

// DefaultInterval is the pause between poll cycles when none is configured.
const DefaultInterval = 5 * time.Second

// Mode is the operating mode of the polling loop.
type Mode string

const (
	// ModeDefault applies every pollen that completes.
	ModeDefault Mode = "default"
	// ModeAttach follows one pollen's evolution until it completes.
	ModeAttach Mode = "attach"
)

// EventType tags engine events delivered to OnEvent observers.
type EventType string

const (
	EventDiscovered     EventType = "discovered"
	EventApplied        EventType = "applied"
	EventAttachSelected EventType = "attach_selected"
	EventAttachDone     EventType = "attach_done"
)

// Event is a notification about engine progress, consumed by the console
// output layer. Observers must not block.
type Event struct {
	Type       EventType
	Pollen     pollen.Pollen
	Path       string
	Link       string
	Processing int
}

// AppliedArtifact describes the artifact most recently set as wallpaper.
type AppliedArtifact struct {
	ID   string    `json:"id"`
	Path string    `json:"path"`
	Ref  string    `json:"ref"`
	At   time.Time `json:"at"`
}

// Status is a point-in-time snapshot of the engine, served by the status API.
type Status struct {
	Mode        Mode             `json:"mode"`
	StartedAt   time.Time        `json:"started_at"`
	Polls       uint64           `json:"polls"`
	Tracked     int              `json:"tracked"`
	Processing  int              `json:"processing"`
	SelectedID  string           `json:"selected_id,omitempty"`
	LastApplied *AppliedArtifact `json:"last_applied,omitempty"`
}

// Config assembles an Engine. Feed, Cache and Applier are required.
type Config struct {
	Feed     feed.Client
	Cache    *cache.Store
	Applier  wallpaper.Applier
	Interval time.Duration
	// StaleCycles is how many consecutive polls a pollen may be absent
	// before the tracker prunes it. Zero selects the tracker default.
	StaleCycles uint64
	// Attach switches the loop to attach mode; AttachTarget optionally
	// names the pollen to follow instead of a random pick.
	Attach       bool
	AttachTarget string
	// TrimCache removes older cached artifacts once a cycle's applies have
	// run, keeping only the visible one on disk.
	TrimCache bool
	// Rand overrides the randomness used for attach selection in tests.
	Rand tracker.Rand
	// OnEvent, when set, receives progress notifications.
	OnEvent func(Event)
}

// Engine is the polling loop: it periodically reads the feed, reconciles the
// tracker, downloads completed (or, in attach mode, evolving) artifacts into
// the cache, and applies them as wallpaper. A single logical loop drives
// everything; downloads within one cycle may run concurrently but wallpaper
// applications are strictly serialized.
type Engine struct {
	feed         feed.Client
	cache        *cache.Store
	applier      wallpaper.Applier
	tracker      *tracker.Tracker
	interval     time.Duration
	attach       bool
	attachTarget string
	trim         bool
	onEvent      func(Event)

	mu          sync.Mutex
	startedAt   time.Time
	polls       uint64
	lastApplied *AppliedArtifact
}

// New validates cfg and builds an Engine.
func New(cfg Config) (*Engine, error) {
	if cfg.Feed == nil {
		return nil, errors.New("engine: feed client is required")
	}
	if cfg.Cache == nil {
		return nil, errors.New("engine: cache store is required")
	}
	if cfg.Applier == nil {
		return nil, errors.New("engine: wallpaper applier is required")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	return &Engine{
		feed:         cfg.Feed,
		cache:        cfg.Cache,
		applier:      cfg.Applier,
		tracker:      tracker.New(cfg.StaleCycles, cfg.Rand),
		interval:     cfg.Interval,
		attach:       cfg.Attach,
		attachTarget: cfg.AttachTarget,
		trim:         cfg.TrimCache,
		onEvent:      cfg.OnEvent,
	}, nil
}

// Mode returns the engine's operating mode.
func (e *Engine) Mode() Mode {
	if e.attach {
		return ModeAttach
	}
	return ModeDefault
}

// Run polls until ctx is cancelled or, in attach mode, until the followed
// pollen completes and its final artifact has been applied. Transient feed
// failures skip the cycle and are retried on the next tick; a non-transient
// feed error and attach selection finding nothing to attach to are fatal.
func (e *Engine) Run(ctx context.Context) error {
	e.mu.Lock()
	if e.startedAt.IsZero() {
		e.startedAt = time.Now()
	}
	e.mu.Unlock()

	t := time.NewTicker(e.interval)
	defer t.Stop()
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		done, err := e.PollOnce(ctx)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
}

// PollOnce runs a single poll cycle. It returns done=true when attach mode
// has applied the followed pollen's final artifact. Exposed for embedding
// and tests; Run drives it on a ticker.
func (e *Engine) PollOnce(ctx context.Context) (done bool, err error) {
	summaries, err := e.feed.ListPollens(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		if !feed.IsTransient(err) {
			return false, fmt.Errorf("list pollens: %w", err)
		}
		metrics.IncPollFailure()
		slog.Warn("poll failed, retrying next interval", "err", err)
		return false, nil
	}

	res := e.tracker.Reconcile(summaries)
	metrics.IncPoll()
	metrics.AddDiscovered(len(res.Discovered))
	metrics.SetTracked(e.tracker.Len())
	metrics.SetProcessing(res.Processing)
	e.mu.Lock()
	e.polls++
	e.mu.Unlock()

	for _, p := range res.Discovered {
		slog.Info("pollen discovered", "id", p.ID, "status", p.Status, "model", p.Model)
		e.emit(Event{Type: EventDiscovered, Pollen: p, Processing: res.Processing})
	}
	if len(res.Pruned) > 0 {
		slog.Debug("pruned stale pollens", "count", len(res.Pruned))
	}

	if e.attach {
		return e.attachCycle(ctx, res)
	}
	e.defaultCycle(ctx, res)
	return false, nil
}

// defaultCycle downloads and applies every pollen that completed this cycle,
// oldest discovery first, so the newest completion ends up as the visible
// wallpaper. The cache is trimmed once after the whole batch, keeping the
// last successfully applied artifact.
func (e *Engine) defaultCycle(ctx context.Context, res pollen.ReconcileResult) {
	completed := res.BecameDone
	if len(completed) == 0 {
		return
	}
	sort.SliceStable(completed, func(i, j int) bool {
		return completed[i].FirstSeenAt < completed[j].FirstSeenAt
	})

	paths := e.download(ctx, completed)
	visible := ""
	for i, p := range completed {
		if paths[i] == "" {
			continue
		}
		if e.apply(ctx, p, paths[i], res.Processing) == nil {
			visible = paths[i]
		}
	}
	e.trimTo(visible)
}

// attachCycle advances attach mode by one cycle: select on the first
// successful poll, then re-apply whenever the followed pollen grows a new
// artifact revision, and finish once its final artifact has been applied.
// The done transition is an applicable event of its own even when the final
// ref equals the last applied preview; that apply is served from the cache.
func (e *Engine) attachCycle(ctx context.Context, res pollen.ReconcileResult) (bool, error) {
	if e.tracker.SelectedID() == "" {
		id, err := e.tracker.SelectForAttach(e.attachTarget)
		if err != nil {
			return false, fmt.Errorf("select pollen to attach: %w", err)
		}
		p, _ := e.tracker.Get(id)
		slog.Info("attached to pollen", "id", id, "model", p.Model, "text", p.TextInput)
		e.emit(Event{Type: EventAttachSelected, Pollen: p, Processing: res.Processing})
	}

	p, ok := e.tracker.Selected()
	if !ok {
		return false, errors.New("attached pollen vanished from tracker")
	}

	if p.Status == pollen.StatusDone {
		if !p.HasArtifact() {
			slog.Warn("attached pollen finished without an artifact", "id", p.ID)
			return true, nil
		}
		path, err := e.fetchArtifact(ctx, p)
		if err != nil {
			if ctx.Err() != nil {
				return false, ctx.Err()
			}
			if errors.Is(err, feed.ErrNotFound) {
				// Content-addressed: a vanished final artifact will not come
				// back, so there is nothing left to wait for.
				slog.Error("final artifact unavailable, giving up", "id", p.ID, "ref", p.ArtifactRef, "err", err)
				return true, nil
			}
			slog.Warn("final artifact fetch failed, retrying next interval", "id", p.ID, "err", err)
			return false, nil
		}
		if err := e.apply(ctx, p, path, res.Processing); err != nil {
			return false, nil
		}
		e.trimTo(path)
		slog.Info("attached pollen done", "id", p.ID)
		e.emit(Event{Type: EventAttachDone, Pollen: p, Path: path, Link: feed.PublicURL(p.ArtifactRef), Processing: res.Processing})
		return true, nil
	}

	if p.HasArtifact() && p.Revision > p.AppliedRevision {
		path, err := e.fetchArtifact(ctx, p)
		if err != nil {
			if ctx.Err() != nil {
				return false, ctx.Err()
			}
			slog.Warn("preview fetch failed, skipping this cycle", "id", p.ID, "err", err)
			return false, nil
		}
		if e.apply(ctx, p, path, res.Processing) == nil {
			e.trimTo(path)
		}
	}
	return false, nil
}

// download fetches artifacts for the given pollens concurrently, returning
// paths aligned with the input order. Failed downloads leave an empty path
// and are logged; the apply stage skips them.
func (e *Engine) download(ctx context.Context, pollens []pollen.Pollen) []string {
	paths := make([]string, len(pollens))
	var wg sync.WaitGroup
	for i, p := range pollens {
		wg.Add(1)
		go func(i int, p pollen.Pollen) {
			defer wg.Done()
			path, err := e.fetchArtifact(ctx, p)
			if err != nil {
				metrics.IncDownloadFailure()
				slog.Warn("artifact fetch failed, skipping pollen", "id", p.ID, "ref", p.ArtifactRef, "err", err)
				return
			}
			paths[i] = path
		}(i, p)
	}
	wg.Wait()
	return paths
}

// fetchArtifact returns a local path for the pollen's current artifact,
// downloading into the cache unless the same id+revision is already there.
func (e *Engine) fetchArtifact(ctx context.Context, p pollen.Pollen) (string, error) {
	if !p.HasArtifact() {
		return "", fmt.Errorf("pollen %s has no artifact ref", p.ID)
	}
	if path, ok := e.cache.PathFor(p.ID, p.Revision); ok {
		return path, nil
	}
	data, err := e.feed.FetchArtifact(ctx, p.ArtifactRef)
	if err != nil {
		return "", err
	}
	path, err := e.cache.Put(p.ID, p.Revision, p.ArtifactRef, data)
	if err != nil {
		return "", err
	}
	metrics.IncDownload()
	metrics.ObserveArtifactBytes(len(data))
	return path, nil
}

// apply sets the artifact as wallpaper and records the application. Failures
// are logged and reported to metrics but never abort the loop.
func (e *Engine) apply(ctx context.Context, p pollen.Pollen, path string, processing int) error {
	if err := e.applier.Apply(ctx, path); err != nil {
		metrics.IncApplyFailure()
		slog.Warn("wallpaper apply failed", "id", p.ID, "path", path, "err", err)
		return err
	}
	e.tracker.MarkApplied(p.ID)
	metrics.IncApply()

	link := feed.PublicURL(p.ArtifactRef)
	e.mu.Lock()
	e.lastApplied = &AppliedArtifact{ID: p.ID, Path: path, Ref: p.ArtifactRef, At: time.Now()}
	e.mu.Unlock()
	slog.Info("wallpaper applied", "id", p.ID, "path", path, "link", link, "processing", processing)

	e.emit(Event{Type: EventApplied, Pollen: p, Path: path, Link: link, Processing: processing})
	return nil
}

// trimTo drops every cached artifact except the one at path when trimming is
// enabled. Callers invoke it only once a cycle's applies have all run: an
// artifact awaiting its own apply must never be deleted by an earlier one.
// An empty path means nothing was applied and nothing is trimmed.
func (e *Engine) trimTo(path string) {
	if !e.trim || path == "" {
		return
	}
	if n, err := e.cache.TrimExcept(path); err != nil {
		slog.Warn("cache trim failed", "err", err)
	} else if n > 0 {
		slog.Debug("trimmed cached artifacts", "count", n)
	}
}

func (e *Engine) emit(ev Event) {
	if e.onEvent != nil {
		e.onEvent(ev)
	}
}

// Status returns a snapshot for the status API and console output.
func (e *Engine) Status() Status {
	e.mu.Lock()
	st := Status{
		Mode:      e.Mode(),
		StartedAt: e.startedAt,
		Polls:     e.polls,
	}
	if e.lastApplied != nil {
		la := *e.lastApplied
		st.LastApplied = &la
	}
	e.mu.Unlock()
	st.Tracked = e.tracker.Len()
	st.Processing = e.tracker.ProcessingCount()
	st.SelectedID = e.tracker.SelectedID()
	return st
}

// Pollens returns copies of all tracked pollens ordered by discovery.
func (e *Engine) Pollens() []pollen.Pollen {
	return e.tracker.Snapshot()
}

// Pollen returns a copy of one tracked pollen by id.
func (e *Engine) Pollen(id string) (pollen.Pollen, bool) {
	return e.tracker.Get(id)
}
