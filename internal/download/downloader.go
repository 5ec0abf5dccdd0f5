package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/paperward/paperward/internal/version"
)

// ErrFailed is returned when an artifact could not be fetched in full.
// The temporary file is removed, so no partial bytes survive a failure.
var ErrFailed = errors.New("download failed")

// DefaultChunkSize is the transfer buffer size. It tunes progress
// reporting granularity and never affects the downloaded contents.
const DefaultChunkSize = 32 * 1024

// tempFilePattern names the temporary files downloads are staged in.
const tempFilePattern = "paperward-*.jar"

// ProgressFunc receives the cumulative number of downloaded bytes after
// every chunk. total is -1 when the server does not announce a length.
type ProgressFunc func(done, total int64)

// Downloader fetches artifacts over HTTP into temporary files.
type Downloader struct {
	// httpClient performs the requests.
	httpClient *http.Client
	// progress, when set, is invoked after every chunk.
	progress ProgressFunc
	// chunkSize is the transfer buffer size in bytes.
	chunkSize int
	// stagingDir holds in-flight downloads; empty means the system temp dir.
	stagingDir string
}

// Option customizes the downloader.
type Option func(*Downloader)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(d *Downloader) {
		d.httpClient = httpClient
	}
}

// WithProgress registers a callback reporting download progress.
func WithProgress(progress ProgressFunc) Option {
	return func(d *Downloader) {
		d.progress = progress
	}
}

// WithChunkSize overrides the transfer buffer size.
func WithChunkSize(size int) Option {
	return func(d *Downloader) {
		if size > 0 {
			d.chunkSize = size
		}
	}
}

// WithStagingDir stages in-flight downloads in the given directory
// instead of the system temp dir.
func WithStagingDir(dir string) Option {
	return func(d *Downloader) {
		d.stagingDir = dir
	}
}

// NewDownloader returns a downloader with the default HTTP client and
// chunk size.
func NewDownloader(opts ...Option) *Downloader {
	downloader := &Downloader{
		httpClient: http.DefaultClient,
		chunkSize:  DefaultChunkSize,
	}

	for _, opt := range opts {
		opt(downloader)
	}

	return downloader
}

// Fetch streams the artifact at url into a fresh temporary file and
// returns its path once the stream is fully consumed. Any failure,
// including a body shorter than the announced length, removes the
// temporary file and wraps ErrFailed. Downloads run without a deadline
// of their own; cancel the context to abort.
func (d *Downloader) Fetch(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}

	req.Header.Set("User-Agent", "paperward/"+version.Short())

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("request %s: %w: %w", url, err, ErrFailed)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("request %s responded %s: %w", url, resp.Status, ErrFailed)
	}

	tmp, err := os.CreateTemp(d.stagingDir, tempFilePattern)
	if err != nil {
		return "", fmt.Errorf("create temporary file: %w: %w", err, ErrFailed)
	}

	path := tmp.Name()

	written, copyErr := d.copyChunks(tmp, resp.Body, resp.ContentLength)
	closeErr := tmp.Close()

	switch {
	case copyErr != nil:
		_ = os.Remove(path)

		return "", copyErr
	case closeErr != nil:
		_ = os.Remove(path)

		return "", fmt.Errorf("close temporary file: %w: %w", closeErr, ErrFailed)
	case resp.ContentLength >= 0 && written != resp.ContentLength:
		_ = os.Remove(path)

		return "", fmt.Errorf("received %d of %d bytes: %w", written, resp.ContentLength, ErrFailed)
	}

	return path, nil
}

// copyChunks transfers src to dst in chunkSize pieces, reporting
// cumulative progress after each piece.
func (d *Downloader) copyChunks(dst io.Writer, src io.Reader, total int64) (int64, error) {
	var done int64

	buf := make([]byte, d.chunkSize)

	for {
		n, readErr := src.Read(buf)
		if n > 0 {
			if _, writeErr := dst.Write(buf[:n]); writeErr != nil {
				return done, fmt.Errorf("write chunk: %w: %w", writeErr, ErrFailed)
			}

			done += int64(n)

			if d.progress != nil {
				d.progress(done, total)
			}
		}

		if errors.Is(readErr, io.EOF) {
			return done, nil
		}

		if readErr != nil {
			return done, fmt.Errorf("read stream: %w: %w", readErr, ErrFailed)
		}
	}
}
