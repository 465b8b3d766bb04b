package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pollinations/pollenwall/internal/pollen"
)

const (
	defaultTimeout = 30 * time.Second
	userAgent      = "pollenwall"

	// maxListBody and maxArtifactSize bound reads from the gateway so a
	// misbehaving node cannot exhaust memory.
	maxListBody     = 8 << 20
	maxArtifactSize = 64 << 20

	// heartbeatID is the keep-alive entry some gateway nodes interleave
	// with real pollens; it carries no job.
	heartbeatID = "HEARTBEAT"
)

// HTTP implements Client against a pollinations gateway node. The snapshot
// endpoint is GET {address}/pollens; artifacts resolve relative to the same
// node.
type HTTP struct {
	address string
	client  *http.Client
}

// NewHTTP validates the gateway address and returns a client for it.
func NewHTTP(address string) (*HTTP, error) {
	addr, err := NormalizeAddress(address)
	if err != nil {
		return nil, err
	}
	return &HTTP{
		address: addr,
		client:  &http.Client{Timeout: defaultTimeout},
	}, nil
}

// NormalizeAddress validates that address is an absolute http(s) URL and
// strips any trailing slash. Rejecting a malformed address here keeps the
// failure at startup instead of on the first poll.
func NormalizeAddress(address string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(address))
	if err != nil {
		return "", fmt.Errorf("invalid gateway address %q: %w", address, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", fmt.Errorf("invalid gateway address %q: must be an absolute http(s) URL", address)
	}
	return strings.TrimRight(u.String(), "/"), nil
}

// Address returns the normalized gateway address.
func (h *HTTP) Address() string { return h.address }

// wireSummary is the gateway's JSON shape for one pollen.
type wireSummary struct {
	ID        string `json:"id"`
	Status    string `json:"status"`
	Output    string `json:"output"`
	Model     string `json:"model"`
	TextInput string `json:"text_input"`
}

func (h *HTTP) ListPollens(ctx context.Context) ([]pollen.Summary, error) {
	u := h.address + "/pollens"
	body, err := h.get(ctx, "list pollens", u, maxListBody)
	if err != nil {
		return nil, err
	}
	var wire []wireSummary
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, &ParseError{URL: u, Err: err}
	}
	out := make([]pollen.Summary, 0, len(wire))
	for _, w := range wire {
		if w.ID == "" || w.ID == heartbeatID {
			continue
		}
		st := pollen.Status(strings.ToLower(w.Status))
		if !st.Valid() {
			slog.Debug("skipping pollen with unknown status", "id", w.ID, "status", w.Status)
			continue
		}
		out = append(out, pollen.Summary{
			ID:          w.ID,
			Status:      st,
			ArtifactRef: w.Output,
			Model:       w.Model,
			TextInput:   w.TextInput,
		})
	}
	return out, nil
}

func (h *HTTP) FetchArtifact(ctx context.Context, ref string) ([]byte, error) {
	if strings.TrimSpace(ref) == "" {
		return nil, fmt.Errorf("empty artifact ref")
	}
	return h.get(ctx, "fetch artifact", h.artifactURL(ref), maxArtifactSize)
}

// artifactURL resolves a ref against the gateway: absolute paths as-is,
// bare hashes under /ipfs/.
func (h *HTTP) artifactURL(ref string) string {
	if strings.HasPrefix(ref, "/") {
		return h.address + ref
	}
	return h.address + "/ipfs/" + ref
}

func (h *HTTP) get(ctx context.Context, op, u string, limit int64) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, &NetworkError{Op: op, URL: u, Err: err}
	}
	req.Header.Set("User-Agent", userAgent)
	resp, err := h.client.Do(req)
	if err != nil {
		return nil, &NetworkError{Op: op, URL: u, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%s: %w", u, ErrNotFound)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &NetworkError{Op: op, URL: u, Err: fmt.Errorf("unexpected status %s", resp.Status)}
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, &NetworkError{Op: op, URL: u, Err: err}
	}
	if int64(len(body)) > limit {
		return nil, fmt.Errorf("%s: response exceeds %d bytes", u, limit)
	}
	return body, nil
}
