package cache

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// manifestName is the sqlite file recording cache contents. It lives inside
// the volatile directory and is disposable together with the artifacts.
const manifestName = "manifest.db"

// Entry is one cached artifact as recorded in the manifest.
type Entry struct {
	ID        string    `json:"id"`
	Revision  int       `json:"revision"`
	Ref       string    `json:"ref"`
	SHA256    string    `json:"sha256"`
	Size      int64     `json:"size"`
	Path      string    `json:"path"`
	CreatedAt time.Time `json:"created_at"`
}

// Store owns the volatile cache directory holding downloaded pollen
// artifacts. The directory and the manifest are created lazily on the first
// write (or eagerly via Ensure), so constructing a Store performs no I/O and
// Clean on a missing directory is not an error. Methods are safe for
// concurrent use.
type Store struct {
	mu  sync.Mutex
	dir string
	db  *sql.DB
}

// New returns a Store over dir without touching the filesystem.
func New(dir string) *Store {
	return &Store{dir: dir}
}

// Dir returns the cache directory path.
func (s *Store) Dir() string { return s.dir }

const schema = `CREATE TABLE IF NOT EXISTS artifacts(
	id TEXT NOT NULL,
	revision INTEGER NOT NULL,
	ref TEXT NOT NULL,
	sha256 TEXT NOT NULL,
	size INTEGER NOT NULL,
	path TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL,
	PRIMARY KEY(id, revision)
);`

// Ensure eagerly creates the directory and opens the manifest. Startup calls
// it so an unusable cache directory fails the process up front instead of
// surfacing later as per-artifact write errors.
func (s *Store) Ensure() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ensure()
}

// ensure creates the directory and opens the manifest. Caller holds s.mu.
func (s *Store) ensure() error {
	if s.db != nil {
		return nil
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}
	db, err := sql.Open("sqlite", filepath.Join(s.dir, manifestName))
	if err != nil {
		return fmt.Errorf("open manifest: %w", err)
	}
	// busy timeout helps with short concurrent locks
	_, _ = db.Exec("PRAGMA busy_timeout=3000;")
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return fmt.Errorf("ensure manifest schema: %w", err)
	}
	s.db = db
	return nil
}

// Put writes artifact bytes for (id, revision) and records them in the
// manifest. The write is atomic: bytes land in a temp file that is renamed
// into place, and the manifest row is only inserted after the rename, so a
// failure never leaves a recorded-but-missing artifact. Returns the final
// path.
func (s *Store) Put(id string, revision int, ref string, data []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensure(); err != nil {
		return "", err
	}

	path := filepath.Join(s.dir, artifactName(id, revision))
	tmp := filepath.Join(s.dir, "tmp-"+uuid.NewString())
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", fmt.Errorf("write artifact: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("rename artifact: %w", err)
	}

	sum := sha256.Sum256(data)
	_, err := s.db.Exec(`
		INSERT INTO artifacts(id, revision, ref, sha256, size, path, created_at)
		VALUES(?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id, revision) DO UPDATE SET
			ref=excluded.ref,
			sha256=excluded.sha256,
			size=excluded.size,
			path=excluded.path,
			created_at=excluded.created_at;`,
		id, revision, ref, hex.EncodeToString(sum[:]), int64(len(data)), path, time.Now().UTC())
	if err != nil {
		_ = os.Remove(path)
		return "", fmt.Errorf("record artifact: %w", err)
	}
	return path, nil
}

// PathFor returns the on-disk path for (id, revision) if the artifact is
// already cached. Same ref means same bytes, so callers use this to skip
// re-downloading.
func (s *Store) PathFor(id string, revision int) (string, bool) {
	path := filepath.Join(s.dir, artifactName(id, revision))
	if _, err := os.Stat(path); err != nil {
		return "", false
	}
	return path, true
}

// Entries enumerates the manifest, oldest first.
func (s *Store) Entries() ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := os.Stat(s.dir); err != nil {
		return nil, nil
	}
	if err := s.ensure(); err != nil {
		return nil, err
	}
	rows, err := s.db.Query(`
		SELECT id, revision, ref, sha256, size, path, created_at
		FROM artifacts
		ORDER BY created_at ASC, id ASC, revision ASC;`)
	if err != nil {
		return nil, fmt.Errorf("list artifacts: %w", err)
	}
	defer func() { _ = rows.Close() }()
	out := make([]Entry, 0)
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.Revision, &e.Ref, &e.SHA256, &e.Size, &e.Path, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Clean deletes every file under the cache directory and returns how many
// artifacts were removed. The manifest itself is deleted but not counted.
// A missing or empty directory yields 0 without error.
func (s *Store) Clean() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db != nil {
		_ = s.db.Close()
		s.db = nil
	}
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("read cache dir: %w", err)
	}
	removed := 0
	for _, de := range entries {
		name := de.Name()
		if err := os.RemoveAll(filepath.Join(s.dir, name)); err != nil {
			return removed, fmt.Errorf("remove %s: %w", name, err)
		}
		if !isManifestFile(name) {
			removed++
		}
	}
	return removed, nil
}

// TrimExcept deletes all cached artifacts except the one at keepPath,
// dropping their manifest rows as well. Used once a cycle's wallpaper
// applications have run, to keep only the visible artifact on disk.
func (s *Store) TrimExcept(keepPath string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("read cache dir: %w", err)
	}
	if err := s.ensure(); err != nil {
		return 0, err
	}
	removed := 0
	for _, de := range entries {
		name := de.Name()
		if isManifestFile(name) {
			continue
		}
		path := filepath.Join(s.dir, name)
		if path == keepPath {
			continue
		}
		if err := os.Remove(path); err != nil {
			return removed, fmt.Errorf("remove %s: %w", name, err)
		}
		if _, err := s.db.Exec(`DELETE FROM artifacts WHERE path=?;`, path); err != nil {
			return removed, fmt.Errorf("drop artifact row: %w", err)
		}
		removed++
	}
	return removed, nil
}

// Close releases the manifest handle if it was opened.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func isManifestFile(name string) bool {
	return name == manifestName || strings.HasPrefix(name, manifestName+"-")
}

// artifactName builds the deterministic file name for (id, revision).
// Ids are content hashes; anything path-unfriendly is mapped to '-'.
func artifactName(id string, revision int) string {
	return fmt.Sprintf("%s_r%d.png", sanitizeID(id), revision)
}

func sanitizeID(id string) string {
	var b strings.Builder
	b.Grow(len(id))
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteRune('-')
		}
	}
	s := strings.ReplaceAll(b.String(), "..", "--")
	if s == "" {
		s = "pollen"
	}
	return s
}
