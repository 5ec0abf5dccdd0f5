package supervisor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/paperward/paperward/internal/artifact"
	"github.com/paperward/paperward/internal/logger"
	"github.com/paperward/paperward/internal/registry"
)

var (
	// ErrNoArtifact is the dead end of a cycle: nothing is installed and
	// nothing could be downloaded, so there is no server to launch.
	ErrNoArtifact = errors.New("no server artifact installed and none could be downloaded")

	// errOptionsIncomplete is returned when a required collaborator is missing.
	errOptionsIncomplete = errors.New("supervisor options are incomplete")
)

// BuildRegistry resolves build metadata from the remote registry.
type BuildRegistry interface {
	LatestBuild(ctx context.Context) (int, error)
	DownloadInfo(ctx context.Context, build int) (registry.Download, error)
	DownloadURL(ctx context.Context, build int, name string) (string, error)
}

// Store locates installed artifacts and commits downloaded ones.
type Store interface {
	FindCurrent(ctx context.Context) (*artifact.Artifact, error)
	InstallPath(build int) string
	IsUpToDate(current *artifact.Artifact, latest int) bool
	Commit(downloadedPath, finalPath string, checksum []byte) error
	Remove(a *artifact.Artifact) error
}

// Fetcher downloads an artifact to a temporary file and returns its path.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// Recorder receives operational events from the loop. The metrics
// package satisfies it; leaving Options.Metrics nil disables recording.
type Recorder interface {
	RecordUpdateCheck()
	RecordUpdateApplied(build int)
	RecordUpdateFailure()
	RecordServerStart(build int)
	RecordRestart()
	RecordDownload(bytes int64, elapsed time.Duration)
}

// noopRecorder drops every event.
type noopRecorder struct{}

func (noopRecorder) RecordUpdateCheck()                  {}
func (noopRecorder) RecordUpdateApplied(int)             {}
func (noopRecorder) RecordUpdateFailure()                {}
func (noopRecorder) RecordServerStart(int)               {}
func (noopRecorder) RecordRestart()                      {}
func (noopRecorder) RecordDownload(int64, time.Duration) {}

// Options are the collaborators and tuning the supervisor loop runs with.
type Options struct {
	// Registry resolves the latest build and its download location.
	Registry BuildRegistry
	// Store manages artifacts in the server directory.
	Store Store
	// Fetcher streams artifacts to temporary files.
	Fetcher Fetcher
	// Runner launches the server and blocks until it exits.
	Runner Runner
	// Prompter asks the operator for the restart decision.
	Prompter Prompter
	// Metrics records operational events; nil disables recording.
	Metrics Recorder
	// Guard claims the server directory; nil skips instance protection.
	Guard *Guard
	// PromptTimeout bounds the operator decision wait.
	PromptTimeout time.Duration
}

// supervisor holds the loop's collaborators. It is intentionally
// unexported; callers go through Run.
type supervisor struct {
	registry      BuildRegistry
	store         Store
	fetcher       Fetcher
	runner        Runner
	prompter      Prompter
	metrics       Recorder
	guard         *Guard
	promptTimeout time.Duration
}

// Run drives update-and-supervise cycles until the operator stops the
// loop or ctx is canceled. It returns ErrNoArtifact (wrapped) when a
// cycle ends with nothing to launch, and nil on an operator stop.
func Run(ctx context.Context, opts *Options) error {
	// Set context with logger name for tracking.
	ctx = logger.WithName(ctx, "supervisor")

	s, err := newSupervisor(opts)
	if err != nil {
		return err
	}

	return s.run(ctx)
}

// newSupervisor validates the options and assembles the loop state.
func newSupervisor(opts *Options) (*supervisor, error) {
	if opts == nil {
		return nil, errOptionsIncomplete
	}

	var missing string

	switch {
	case opts.Registry == nil:
		missing = "registry"
	case opts.Store == nil:
		missing = "store"
	case opts.Fetcher == nil:
		missing = "fetcher"
	case opts.Runner == nil:
		missing = "runner"
	case opts.Prompter == nil:
		missing = "prompter"
	}

	if missing != "" {
		return nil, fmt.Errorf("%s is not set: %w", missing, errOptionsIncomplete)
	}

	s := &supervisor{
		registry:      opts.Registry,
		store:         opts.Store,
		fetcher:       opts.Fetcher,
		runner:        opts.Runner,
		prompter:      opts.Prompter,
		metrics:       opts.Metrics,
		guard:         opts.Guard,
		promptTimeout: opts.PromptTimeout,
	}

	if s.metrics == nil {
		s.metrics = noopRecorder{}
	}

	if s.promptTimeout <= 0 {
		s.promptTimeout = DefaultPromptTimeout
	}

	return s, nil
}

// run executes cycles until an operator stop, a canceled context, or the
// no-artifact dead end. The phases of a cycle are strictly sequential:
// scan, update, launch, wait, prompt.
func (s *supervisor) run(ctx context.Context) error {
	if s.guard != nil {
		if err := s.guard.Acquire(ctx); err != nil {
			return err
		}

		defer s.guard.Release(ctx)
	}

	for {
		current := s.update(ctx)

		if ctx.Err() != nil {
			logger.Info(ctx, "Shutdown requested, exiting")
			return nil
		}

		if current == nil {
			return fmt.Errorf("cannot start server: %w", ErrNoArtifact)
		}

		logger.InfoKV(ctx, "Starting server...", "build", current.Build, "path", current.Path)
		s.metrics.RecordServerStart(current.Build)

		if err := s.runner.Run(ctx, current.Path); err != nil {
			// A crashed server is restarted like a cleanly stopped one;
			// the exit error only matters to whoever reads the log.
			logger.WarnKV(ctx, "Server exited with error", "error", err)
		} else {
			logger.Info(ctx, "Server exited")
		}

		if ctx.Err() != nil {
			logger.Info(ctx, "Shutdown requested, exiting")
			return nil
		}

		decision, err := s.prompter.Await(ctx, s.promptTimeout)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				logger.Info(ctx, "Shutdown requested, exiting")
				return nil
			}

			return fmt.Errorf("await operator decision: %w", err)
		}

		logger.InfoKV(ctx, "Operator decision received", "decision", decision.String())

		if decision == DecisionStop {
			return nil
		}

		s.metrics.RecordRestart()
	}
}

// update runs the updating phase of one cycle and returns the artifact to
// launch, nil when nothing is installed and nothing could be fetched.
// Update failures of any kind are logged and degrade to the artifact
// already on disk; they never end the loop.
func (s *supervisor) update(ctx context.Context) *artifact.Artifact {
	logger.Info(ctx, "Updating server...")

	current, err := s.store.FindCurrent(ctx)
	if err != nil {
		// Treated as "nothing installed"; the update below may still
		// produce an artifact to launch.
		logger.WarnKV(ctx, "Scan for installed build failed", "error", err)

		current = nil
	}

	installed, err := s.install(ctx, current)
	if err != nil {
		s.metrics.RecordUpdateFailure()
		logger.WarnKV(ctx, "An error occurred while updating server. Skipping update step.",
			"error", err)

		return current
	}

	return installed
}

// install asks the registry for the latest build and commits it when the
// installed one differs, returning the artifact to launch. The superseded
// jar is removed only after the new one is fully in place.
func (s *supervisor) install(ctx context.Context, current *artifact.Artifact) (*artifact.Artifact, error) {
	s.metrics.RecordUpdateCheck()

	latest, err := s.registry.LatestBuild(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolve latest build: %w", err)
	}

	if s.store.IsUpToDate(current, latest) {
		logger.InfoKV(ctx, "Server already up-to-date.", "build", latest)

		return current, nil
	}

	download, err := s.registry.DownloadInfo(ctx, latest)
	if err != nil {
		return nil, fmt.Errorf("resolve download for build %d: %w", latest, err)
	}

	checksum, err := download.Checksum()
	if err != nil {
		return nil, fmt.Errorf("build %d: %w", latest, err)
	}

	url, err := s.registry.DownloadURL(ctx, latest, download.Name)
	if err != nil {
		return nil, fmt.Errorf("compose download URL for build %d: %w", latest, err)
	}

	logger.InfoKV(ctx, "Downloading new build", "build", latest, "name", download.Name)

	started := time.Now()

	tempPath, err := s.fetcher.Fetch(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("fetch build %d: %w", latest, err)
	}

	// The staged copy is disposable once committed (or abandoned).
	defer func() {
		_ = os.Remove(tempPath)
	}()

	if info, statErr := os.Stat(tempPath); statErr == nil {
		s.metrics.RecordDownload(info.Size(), time.Since(started))
	}

	finalPath := s.store.InstallPath(latest)
	if err = s.store.Commit(tempPath, finalPath, checksum); err != nil {
		return nil, fmt.Errorf("install build %d: %w", latest, err)
	}

	installed := &artifact.Artifact{
		Build: latest,
		Path:  finalPath,
	}

	if current != nil && current.Path != finalPath {
		if err = s.store.Remove(current); err != nil {
			logger.WarnKV(ctx, "Could not remove superseded build",
				"path", current.Path,
				"error", err)
		}
	}

	s.metrics.RecordUpdateApplied(latest)
	logger.InfoKV(ctx, "Server successfully updated.", "build", latest, "path", finalPath)

	return installed, nil
}
