package registry

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/Masterminds/semver/v3"
	json "github.com/goccy/go-json"

	"github.com/paperward/paperward/internal/version"
)

// Download describes the artifact attached to a build.
type Download struct {
	// Name is the filename the registry serves the artifact under.
	Name string `json:"name"`
	// SHA256 is the hex-encoded checksum of the artifact.
	SHA256 string `json:"sha256"`
}

// Checksum returns the advertised SHA-256 as raw bytes. It returns nil
// when the registry advertises no checksum for the artifact.
func (d Download) Checksum() ([]byte, error) {
	if d.SHA256 == "" {
		return nil, nil
	}

	sum, err := hex.DecodeString(d.SHA256)
	if err != nil {
		return nil, fmt.Errorf("decode checksum %q: %w: %w", d.SHA256, err, ErrMalformed)
	}

	return sum, nil
}

var (
	// ErrUnavailable is returned when the registry cannot be reached
	// or responds with a non-success status.
	ErrUnavailable = errors.New("registry unavailable")
	// ErrMalformed is returned when the registry responds with a body
	// the client cannot make sense of.
	ErrMalformed = errors.New("malformed registry response")
)

// LatestGameVersion requests resolution of the newest released game version.
const LatestGameVersion = "latest"

// applicationDownload is the download slot holding the server artifact.
const applicationDownload = "application"

// Client talks to a build registry speaking the PaperMC v2 API.
type Client struct {
	// endpoint is the parsed base URL of the registry API.
	endpoint *url.URL
	// project is the registry project whose builds are tracked.
	project string
	// gameVersion is the requested game version, possibly "latest".
	gameVersion string
	// httpClient performs the requests.
	httpClient *http.Client

	// mu guards resolved.
	mu sync.Mutex
	// resolved caches the outcome of resolving "latest" to a concrete version.
	resolved string
}

// Option customizes the registry client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithTimeout bounds every metadata request made by the client.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		client := *c.httpClient
		client.Timeout = timeout
		c.httpClient = &client
	}
}

// NewClient returns a registry client for the given project and game version.
// Pass LatestGameVersion (or an empty string) to follow the newest released
// version.
func NewClient(endpoint, project, gameVersion string, opts ...Option) (*Client, error) {
	parsed, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse endpoint %q: %w", endpoint, err)
	}

	if gameVersion == "" {
		gameVersion = LatestGameVersion
	}

	client := &Client{
		endpoint:    parsed,
		project:     project,
		gameVersion: gameVersion,
		httpClient:  http.DefaultClient,
	}

	for _, opt := range opts {
		opt(client)
	}

	return client, nil
}

// resourceURL composes the URL of an API resource below the endpoint.
// path.Join normalizes duplicate slashes along the way.
func (c *Client) resourceURL(parts ...string) string {
	resource := *c.endpoint
	resource.Path = path.Join(append([]string{resource.Path}, parts...)...)

	return resource.String()
}

// Versions returns every game version the project has builds for,
// oldest first, as reported by the registry.
func (c *Client) Versions(ctx context.Context) ([]string, error) {
	var payload struct {
		Versions []string `json:"versions"`
	}

	if err := c.getJSON(ctx, c.resourceURL("projects", c.project), &payload); err != nil {
		return nil, err
	}

	if len(payload.Versions) == 0 {
		return nil, fmt.Errorf("project %q lists no versions: %w", c.project, ErrMalformed)
	}

	return payload.Versions, nil
}

// GameVersion returns the concrete game version the client tracks,
// resolving "latest" through the registry on first use.
func (c *Client) GameVersion(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.resolved != "" {
		return c.resolved, nil
	}

	if c.gameVersion != LatestGameVersion {
		c.resolved = c.gameVersion

		return c.resolved, nil
	}

	versions, err := c.Versions(ctx)
	if err != nil {
		return "", err
	}

	newest, err := newestRelease(versions)
	if err != nil {
		return "", err
	}

	c.resolved = newest

	return c.resolved, nil
}

// LatestBuild returns the highest build number published for the tracked
// game version.
func (c *Client) LatestBuild(ctx context.Context) (int, error) {
	gameVersion, err := c.GameVersion(ctx)
	if err != nil {
		return 0, err
	}

	var payload struct {
		Builds []int `json:"builds"`
	}

	if err := c.getJSON(ctx, c.resourceURL("projects", c.project, "versions", gameVersion), &payload); err != nil {
		return 0, err
	}

	if len(payload.Builds) == 0 {
		return 0, fmt.Errorf("version %q has no builds: %w", gameVersion, ErrMalformed)
	}

	latest := payload.Builds[0]
	for _, build := range payload.Builds[1:] {
		if build > latest {
			latest = build
		}
	}

	return latest, nil
}

// DownloadInfo returns the artifact attached to the given build.
func (c *Client) DownloadInfo(ctx context.Context, build int) (Download, error) {
	gameVersion, err := c.GameVersion(ctx)
	if err != nil {
		return Download{}, err
	}

	var payload struct {
		Downloads map[string]Download `json:"downloads"`
	}

	buildURL := c.resourceURL("projects", c.project, "versions", gameVersion, "builds", strconv.Itoa(build))
	if err := c.getJSON(ctx, buildURL, &payload); err != nil {
		return Download{}, err
	}

	download, ok := payload.Downloads[applicationDownload]
	if !ok || download.Name == "" {
		return Download{}, fmt.Errorf("build %d carries no application download: %w", build, ErrMalformed)
	}

	return download, nil
}

// DownloadURL returns the URL the artifact with the given name is served
// from for the given build.
func (c *Client) DownloadURL(ctx context.Context, build int, name string) (string, error) {
	gameVersion, err := c.GameVersion(ctx)
	if err != nil {
		return "", err
	}

	return c.resourceURL("projects", c.project, "versions", gameVersion,
		"builds", strconv.Itoa(build), "downloads", name), nil
}

// getJSON performs a GET request and decodes the JSON response into out.
func (c *Client) getJSON(ctx context.Context, requestURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "paperward/"+version.Short())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request %s: %w: %w", requestURL, err, ErrUnavailable)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("request %s responded %s: %w", requestURL, resp.Status, ErrUnavailable)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w: %w", requestURL, err, ErrMalformed)
	}

	return nil
}

// newestRelease picks the highest released version from the registry's list.
// Versions that do not parse as semantic versions (snapshots, release
// candidates with odd naming) are skipped, as are pre-release versions.
func newestRelease(versions []string) (string, error) {
	parsed := make([]*semver.Version, 0, len(versions))

	for _, raw := range versions {
		v, err := semver.NewVersion(raw)
		if err != nil || v.Prerelease() != "" {
			continue
		}

		parsed = append(parsed, v)
	}

	if len(parsed) == 0 {
		return "", fmt.Errorf("no released versions found: %w", ErrMalformed)
	}

	sort.Sort(semver.Collection(parsed))

	return parsed[len(parsed)-1].Original(), nil
}
