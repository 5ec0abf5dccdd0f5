package supervisor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"time"

	"github.com/mitchellh/go-ps"
	"gopkg.in/yaml.v3"

	"github.com/paperward/paperward/internal/logger"
)

// MarkerFilename marks a server directory as managed by a live supervisor.
const MarkerFilename = "paperward-marker.yaml"

// markerFileMode restricts the marker to its owner.
const markerFileMode os.FileMode = 0o600

// ErrAlreadyRunning is returned when the server directory is held by
// another live supervisor process.
var ErrAlreadyRunning = errors.New("another supervisor is already running")

// marker records which process claimed a server directory, so a second
// supervisor can tell a live owner from a crash leftover.
type marker struct {
	// PID is the process id of the owning supervisor.
	PID int `yaml:"pid"`
	// Executable is the owner's process name as seen by the OS.
	Executable string `yaml:"executable"`
	// Hostname is the machine the owner was started on.
	Hostname string `yaml:"hostname"`
	// Username is the system user who started the owner.
	Username string `yaml:"username"`
	// StartedAt is when the directory was claimed.
	StartedAt time.Time `yaml:"started_at"`
}

// newMarker records the current process as owner. Host and user details
// are best effort; the PID is what the liveness check runs on.
func newMarker() *marker {
	m := &marker{
		PID:       os.Getpid(),
		StartedAt: time.Now().UTC(),
	}

	if executable, err := os.Executable(); err == nil {
		m.Executable = filepath.Base(executable)
	}

	if hostname, err := os.Hostname(); err == nil {
		m.Hostname = hostname
	}

	if currentUser, err := user.Current(); err == nil {
		m.Username = currentUser.Username
	}

	return m
}

// Guard keeps two supervisors from managing the same server directory by
// way of a marker file naming the owning process. The protection is
// advisory: it catches the common operator mistake, not a hostile race.
type Guard struct {
	// markerPath is the marker location inside the guarded directory.
	markerPath string
	// acquired reports whether this process holds the marker.
	acquired bool

	// findProcess resolves a pid to a live process, nil when none runs.
	// Swapped in tests.
	findProcess func(pid int) (ps.Process, error)
}

// NewGuard returns a guard for the given server directory.
func NewGuard(dir string) *Guard {
	if dir == "" {
		dir = "."
	}

	return &Guard{
		markerPath:  filepath.Join(dir, MarkerFilename),
		findProcess: ps.FindProcess,
	}
}

// Acquire claims the server directory for this process. It fails with
// ErrAlreadyRunning when the marker names a process that is still alive;
// markers left behind by crashed supervisors are removed.
func (g *Guard) Acquire(ctx context.Context) error {
	owner, err := g.readMarker(ctx)
	if err != nil {
		return err
	}

	if owner != nil && owner.PID != os.Getpid() {
		var alive bool

		alive, err = g.ownerAlive(owner)
		if err != nil {
			return err
		}

		if alive {
			return fmt.Errorf("pid %d (%s@%s) holds %s: %w",
				owner.PID, owner.Username, owner.Hostname, g.markerPath, ErrAlreadyRunning)
		}

		logger.WarnKV(ctx, "Removing marker left behind by a dead supervisor",
			"path", g.markerPath,
			"pid", owner.PID)

		if err = os.Remove(g.markerPath); err != nil {
			return fmt.Errorf("remove stale marker: %w", err)
		}
	}

	contents, err := yaml.Marshal(newMarker())
	if err != nil {
		return fmt.Errorf("marshal marker: %w", err)
	}

	if err = os.WriteFile(g.markerPath, contents, markerFileMode); err != nil {
		return fmt.Errorf("write marker: %w", err)
	}

	g.acquired = true

	return nil
}

// Release gives the directory up. It only removes the marker this
// process wrote, so calling it after a failed Acquire is safe.
func (g *Guard) Release(ctx context.Context) {
	if !g.acquired {
		return
	}

	g.acquired = false

	if err := os.Remove(g.markerPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.WarnKV(ctx, "Could not remove marker", "path", g.markerPath, "error", err)
	}
}

// readMarker loads the current marker, nil when none exists. A marker
// that cannot be parsed is treated as left behind by a dead owner.
func (g *Guard) readMarker(ctx context.Context) (*marker, error) {
	contents, err := os.ReadFile(g.markerPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}

		return nil, fmt.Errorf("read marker: %w", err)
	}

	var m marker
	if err = yaml.Unmarshal(contents, &m); err != nil || m.PID <= 0 {
		logger.WarnKV(ctx, "Ignoring unreadable marker", "path", g.markerPath, "error", err)

		return nil, nil
	}

	return &m, nil
}

// ownerAlive reports whether the marker's process still runs. A pid that
// has been reused by a different executable counts as dead; an owner
// recorded without an executable name counts as alive whenever its pid is.
func (g *Guard) ownerAlive(owner *marker) (bool, error) {
	process, err := g.findProcess(owner.PID)
	if err != nil {
		return false, fmt.Errorf("look up pid %d: %w", owner.PID, err)
	}

	if process == nil {
		return false, nil
	}

	if owner.Executable == "" {
		return true, nil
	}

	return process.Executable() == owner.Executable, nil
}
