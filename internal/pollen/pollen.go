package pollen

// Status is the lifecycle state the generation service reports for a pollen.
// Transitions are monotonic: once an id is done it never returns to processing.
type Status string

const (
	StatusProcessing Status = "processing"
	StatusDone       Status = "done"
)

// String returns the string representation of the status.
func (s Status) String() string { return string(s) }

// Valid reports whether s is a status this client understands.
func (s Status) Valid() bool {
	switch s {
	case StatusProcessing, StatusDone:
		return true
	default:
		return false
	}
}

// Summary is one pollen as reported by a single feed poll. It is the raw
// observation the tracker reconciles; it carries no local state.
type Summary struct {
	ID          string `json:"id"`
	Status      Status `json:"status"`
	ArtifactRef string `json:"artifact_ref,omitempty"`
	Model       string `json:"model,omitempty"`
	TextInput   string `json:"text_input,omitempty"`
}

// Pollen is the tracked lifecycle state for one id. Timestamps are logical:
// they are poll sequence numbers, not wall-clock times.
type Pollen struct {
	ID          string `json:"id"`
	Status      Status `json:"status"`
	ArtifactRef string `json:"artifact_ref,omitempty"`
	// Revision counts artifact ref changes for this id. 0 means no artifact
	// has been observed yet; each new ref bumps it by one.
	Revision  int    `json:"revision"`
	Model     string `json:"model,omitempty"`
	TextInput string `json:"text_input,omitempty"`
	// FirstSeenAt is the poll sequence that discovered this pollen;
	// LastSeenAt the most recent sequence that observed it.
	FirstSeenAt uint64 `json:"first_seen_at"`
	LastSeenAt  uint64 `json:"last_seen_at"`
	// Applied records that an artifact of this pollen has been set as
	// wallpaper; AppliedRevision is the revision that was applied.
	Applied         bool `json:"applied"`
	AppliedRevision int  `json:"applied_revision,omitempty"`
}

// HasArtifact reports whether any artifact ref has been observed for p.
func (p Pollen) HasArtifact() bool { return p.ArtifactRef != "" }

// ReconcileResult is the outcome of folding one feed snapshot into the
// tracker. The three pollen lists are disjoint: a pollen discovered this
// cycle appears only in Discovered even if it arrived already done.
type ReconcileResult struct {
	// Discovered holds pollens seen for the first time this cycle.
	Discovered []Pollen
	// BecameDone holds previously tracked pollens whose status moved from
	// processing to done this cycle.
	BecameDone []Pollen
	// PreviewChanged holds still-processing pollens whose artifact ref
	// changed this cycle.
	PreviewChanged []Pollen
	// Pruned lists ids evicted for staleness this cycle.
	Pruned []string
	// Processing is the number of tracked pollens still processing after
	// this cycle.
	Processing int
	// Seq is the poll sequence this result belongs to.
	Seq uint64
}

// Empty reports whether the cycle produced no actionable changes.
func (r ReconcileResult) Empty() bool {
	return len(r.Discovered) == 0 && len(r.BecameDone) == 0 && len(r.PreviewChanged) == 0
}
