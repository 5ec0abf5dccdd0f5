package artifact

import (
	"bytes"
	"context"
	"crypto"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"

	goupdate "github.com/doitdistributed/go-update"

	"github.com/paperward/paperward/internal/logger"

	// Ensure SHA256 is available for checksum verification.
	_ "crypto/sha256"
)

// Artifact is a server build installed in the server directory.
type Artifact struct {
	// Build is the build number encoded in the filename.
	Build int
	// Path is the location of the installed jar.
	Path string
}

// ErrInstall is returned when a downloaded build cannot be committed
// to its final path.
var ErrInstall = errors.New("artifact install failed")

const (
	// artifactNameFormat renders an install filename from a build number.
	artifactNameFormat = "papermc-server_%d.jar"

	// DefaultFileMode is the permission set on installed artifacts.
	DefaultFileMode os.FileMode = 0o644

	// checksumFunction verifies downloaded artifacts before the swap.
	checksumFunction crypto.Hash = crypto.SHA256
)

var (
	// artifactPattern matches filenames produced by artifactNameFormat.
	artifactPattern = regexp.MustCompile(`^papermc-server_\d+\.jar$`)
	// buildPattern extracts the build number encoded in a filename.
	buildPattern = regexp.MustCompile(`\d+`)
)

// Store manages installed server artifacts in a single directory.
type Store struct {
	// dir is the server directory holding the artifacts.
	dir string
}

// NewStore returns a store over the given server directory.
func NewStore(dir string) *Store {
	if dir == "" {
		dir = "."
	}

	return &Store{dir: dir}
}

// Dir returns the server directory the store manages.
func (s *Store) Dir() string {
	return s.dir
}

// FindCurrent scans the server directory for installed artifacts and
// returns the one with the highest build number, or nil when none is
// installed. Files are matched by name only and never opened.
func (s *Store) FindCurrent(ctx context.Context) (*Artifact, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("scan server directory: %w", err)
	}

	var (
		current *Artifact
		matches int
	)

	for _, entry := range entries {
		if entry.IsDir() || !artifactPattern.MatchString(entry.Name()) {
			continue
		}

		build, ok := ParseBuildNumber(entry.Name())
		if !ok {
			continue
		}

		matches++

		if current == nil || build > current.Build {
			current = &Artifact{
				Build: build,
				Path:  filepath.Join(s.dir, entry.Name()),
			}
		}
	}

	if matches > 1 {
		logger.WarnKV(ctx, "Several artifacts found, using the newest",
			"count", matches,
			"build", current.Build)
	}

	return current, nil
}

// ParseBuildNumber extracts the build number encoded in an artifact filename.
// It returns false when the name carries no usable number.
func ParseBuildNumber(filename string) (int, bool) {
	digits := buildPattern.FindString(filename)
	if digits == "" {
		return 0, false
	}

	build, err := strconv.Atoi(digits)
	if err != nil {
		return 0, false
	}

	return build, true
}

// InstallPath returns the path a given build installs to.
func (s *Store) InstallPath(build int) string {
	return filepath.Join(s.dir, fmt.Sprintf(artifactNameFormat, build))
}

// IsUpToDate reports whether the installed artifact already is the latest build.
func (s *Store) IsUpToDate(current *Artifact, latest int) bool {
	return current != nil && current.Build == latest
}

// Commit installs a downloaded build at finalPath by writing a sibling
// file and swapping it in with a rename, so finalPath never holds a
// partially written artifact. A non-empty checksum is verified against
// the downloaded contents before any file is touched; on any failure the
// previously installed artifact stays in place and ErrInstall is wrapped
// into the returned error.
func (s *Store) Commit(downloadedPath, finalPath string, checksum []byte) error {
	data, err := os.ReadFile(filepath.Clean(downloadedPath))
	if err != nil {
		return fmt.Errorf("read downloaded artifact: %w: %w", err, ErrInstall)
	}

	// The swap renames finalPath aside, so the target has to exist.
	// Remember whether we created it to avoid leaving an empty jar
	// behind when the commit fails.
	var createdPlaceholder bool

	if _, err = os.Stat(finalPath); err != nil && os.IsNotExist(err) {
		placeholder, createErr := os.Create(filepath.Clean(finalPath))
		if createErr != nil {
			return fmt.Errorf("create install target: %w: %w", createErr, ErrInstall)
		}

		_ = placeholder.Close()

		createdPlaceholder = true
	}

	options := goupdate.Options{
		TargetPath: finalPath,
		TargetMode: DefaultFileMode,
	}

	if len(checksum) > 0 {
		options.Checksum = checksum
		options.Hash = checksumFunction
	}

	if err = goupdate.Apply(bytes.NewReader(data), options); err != nil {
		if createdPlaceholder {
			_ = os.Remove(finalPath)
		}

		return fmt.Errorf("apply %s: %w: %w", finalPath, err, ErrInstall)
	}

	oldFileName := finalPath + ".old"
	if _, err = os.Stat(oldFileName); err == nil {
		_ = os.Remove(oldFileName)
	}

	return nil
}

// Remove deletes a superseded artifact. A nil artifact or an already
// missing file is not an error.
func (s *Store) Remove(a *Artifact) error {
	if a == nil {
		return nil
	}

	if err := os.Remove(a.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove artifact %s: %w", a.Path, err)
	}

	return nil
}
