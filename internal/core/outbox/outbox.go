// Package outbox manages the directory of forms waiting for radio
// dispatch. The router and the coordinator share this directory, and
// external tools may drop files into it, so claiming a message is an
// atomic rename out of the scan path: a form can be dispatched at most
// once no matter how many scanners race.
package outbox

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"github.com/radiogate/radiogate/internal/core/forms"
	"github.com/radiogate/radiogate/internal/core/logger"
)

const (
	claimedDir = "claimed"
	heldDir    = "held"
	formExt    = ".yaml"
)

// Pending describes one queued form found during a scan
type Pending struct {
	// Path is the form file location inside the outbox
	Path string
	// Destination is the declared target station or address
	Destination string
	// QueuedAt is the file modification time, used for scan ordering
	QueuedAt time.Time
}

// Box is a filesystem-backed outbound queue
type Box struct {
	dir  string
	lock *flock.Flock
	log  logger.Logger
}

// Option configures a Box
type Option func(*Box)

// WithLogger sets the logger for the Box
func WithLogger(log logger.Logger) Option {
	return func(b *Box) {
		b.log = log
	}
}

// New opens (creating if necessary) the outbox rooted at dir
func New(dir string, opts ...Option) (*Box, error) {
	for _, sub := range []string{dir, filepath.Join(dir, claimedDir), filepath.Join(dir, heldDir)} {
		if err := os.MkdirAll(sub, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create outbox directory: %w", err)
		}
	}

	b := &Box{
		dir:  dir,
		lock: flock.New(filepath.Join(dir, ".outbox.lock")),
		log:  logger.Nop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// Dir returns the outbox root directory
func (b *Box) Dir() string {
	return b.dir
}

// Put writes form into the outbox under a fresh unique name and
// returns the stored path
func (b *Box) Put(form *forms.Form) (string, error) {
	name := fmt.Sprintf("%d-%s%s", time.Now().Unix(), uuid.New().String()[:8], formExt)
	path := filepath.Join(b.dir, name)
	if err := forms.Save(path, form); err != nil {
		return "", err
	}
	return path, nil
}

// Scan lists the queued forms, oldest first. Files that cannot be read
// or declare no destination are skipped with a log line; they stay in
// place for the operator to inspect.
func (b *Box) Scan() ([]Pending, error) {
	entries, err := os.ReadDir(b.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read outbox directory: %w", err)
	}

	var pending []Pending
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), formExt) {
			continue
		}
		path := filepath.Join(b.dir, entry.Name())

		form, err := forms.Load(path)
		if err != nil {
			b.log.Warn("skipping unreadable outbox entry", "path", path, "error", err)
			continue
		}
		dest := form.Destination()
		if dest == "" {
			b.log.Warn("skipping outbox entry without destination", "path", path)
			continue
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}

		pending = append(pending, Pending{
			Path:        path,
			Destination: dest,
			QueuedAt:    info.ModTime(),
		})
	}

	sort.Slice(pending, func(i, j int) bool {
		if pending[i].QueuedAt.Equal(pending[j].QueuedAt) {
			return pending[i].Path < pending[j].Path
		}
		return pending[i].QueuedAt.Before(pending[j].QueuedAt)
	})

	return pending, nil
}

// GroupByDestination scans the outbox and buckets the result by
// declared destination, preserving queue order within each bucket
func (b *Box) GroupByDestination() (map[string][]Pending, error) {
	pending, err := b.Scan()
	if err != nil {
		return nil, err
	}
	groups := make(map[string][]Pending)
	for _, p := range pending {
		groups[p.Destination] = append(groups[p.Destination], p)
	}
	return groups, nil
}

// Claim atomically moves the form at path out of the scan path and
// returns its new location. A second claim of the same path fails,
// which is how concurrent routers avoid double-dispatch.
func (b *Box) Claim(path string) (string, error) {
	locked, err := b.lock.TryLock()
	if err != nil {
		return "", fmt.Errorf("failed to lock outbox: %w", err)
	}
	if !locked {
		return "", fmt.Errorf("outbox is locked by another process")
	}
	defer func() { _ = b.lock.Unlock() }()

	dest := filepath.Join(b.dir, claimedDir,
		fmt.Sprintf("%s-%s", uuid.New().String()[:8], filepath.Base(path)))
	if err := os.Rename(path, dest); err != nil {
		return "", fmt.Errorf("failed to claim outbox entry: %w", err)
	}
	return dest, nil
}

// Hold moves the form at path into the held directory for manual
// operator review and returns its new location
func (b *Box) Hold(path string) (string, error) {
	dest := filepath.Join(b.dir, heldDir,
		fmt.Sprintf("%s-%s", uuid.New().String()[:8], filepath.Base(path)))
	if err := os.Rename(path, dest); err != nil {
		return "", fmt.Errorf("failed to hold outbox entry: %w", err)
	}
	return dest, nil
}

// HeldDir returns the manual-review directory
func (b *Box) HeldDir() string {
	return filepath.Join(b.dir, heldDir)
}
