// Package client is the CLI-side HTTP client for a depot registry.
// It satisfies the resolver's Source and the installer's Fetcher, so
// the install pipeline runs against a remote registry exactly as it
// does against local fixtures.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"depot/internal/digest"
	"depot/internal/resolve"
)

// Client talks to one registry.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	verbose    bool
}

// New creates a registry client. An empty token is fine for
// read-only use.
func New(baseURL, token string, verbose bool) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		verbose: verbose,
	}
}

// VersionInfo is one published version as the API reports it.
type VersionInfo struct {
	Package      string            `json:"package"`
	Version      string            `json:"version"`
	Digest       string            `json:"digest"`
	SizeBytes    int64             `json:"size_bytes"`
	Publisher    string            `json:"publisher"`
	Dependencies map[string]string `json:"dependencies"`
}

// PackageInfo is a package with its version list, highest precedence
// first.
type PackageInfo struct {
	Name        string        `json:"name"`
	Description string        `json:"description"`
	Versions    []VersionInfo `json:"versions"`
}

// SearchResult is one row of a package search.
type SearchResult struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Latest      string `json:"latest"`
}

// Receipt is the server's acknowledgement of a publish.
type Receipt struct {
	Name      string `json:"name"`
	Version   string `json:"version"`
	Digest    string `json:"digest"`
	Size      int64  `json:"size"`
	Published string `json:"published_at"`
}

// Health checks if the registry is healthy
func (c *Client) Health(ctx context.Context) error {
	resp, err := c.get(ctx, "/health")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return NewRegistryError(ErrServer,
			fmt.Sprintf("registry health check failed (status %d)", resp.StatusCode))
	}
	return nil
}

// Search queries packages by name or description.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]SearchResult, error) {
	params := url.Values{}
	if query != "" {
		params.Add("q", query)
	}
	if limit > 0 {
		params.Add("limit", strconv.Itoa(limit))
	}

	path := "/v1/search"
	if len(params) > 0 {
		path += "?" + params.Encode()
	}

	var results []SearchResult
	if err := c.getJSON(ctx, path, &results); err != nil {
		return nil, err
	}
	return results, nil
}

// GetPackage gets a package and its version list.
func (c *Client) GetPackage(ctx context.Context, name string) (*PackageInfo, error) {
	var info PackageInfo
	if err := c.getJSON(ctx, "/v1/packages/"+url.PathEscape(name), &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// GetVersion gets one published version record.
func (c *Client) GetVersion(ctx context.Context, name, version string) (*VersionInfo, error) {
	path := fmt.Sprintf("/v1/packages/%s/versions/%s", url.PathEscape(name), url.PathEscape(version))

	var v VersionInfo
	if err := c.getJSON(ctx, path, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// ListVersions adapts the package endpoint to the resolver's
// candidate source. Unknown packages yield an empty list, matching
// server-side resolution semantics.
func (c *Client) ListVersions(ctx context.Context, name string) ([]resolve.Candidate, error) {
	info, err := c.GetPackage(ctx, name)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}

	out := make([]resolve.Candidate, 0, len(info.Versions))
	for _, v := range info.Versions {
		d, err := digest.Parse(v.Digest)
		if err != nil {
			return nil, fmt.Errorf("registry returned malformed digest for %s@%s: %w", name, v.Version, err)
		}
		out = append(out, resolve.Candidate{
			Version:      v.Version,
			Digest:       d,
			Dependencies: v.Dependencies,
		})
	}
	return out, nil
}

// Fetch downloads archive bytes by digest and verifies them before
// returning, so a tampering registry cannot slip bad bytes into an
// install.
func (c *Client) Fetch(ctx context.Context, d digest.Digest) ([]byte, error) {
	resp, err := c.get(ctx, "/v1/blobs/"+d.String())
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, errorFromResponse(resp.StatusCode, body)
	}

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, normalizeTransportError(ctx, err)
	}

	if got := digest.Sum(b); got != d {
		return nil, NewRegistryError(ErrValidation,
			fmt.Sprintf("downloaded blob hashes to %s, want %s", got, d))
	}

	return b, nil
}

// Publish uploads an archive. When withChecksum is set the client
// sends the locally computed digest so the server can reject
// transfers corrupted in flight.
func (c *Client) Publish(ctx context.Context, archiveBytes []byte, withChecksum bool) (*Receipt, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	part, err := writer.CreateFormFile("archive", "package.tgz")
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(archiveBytes); err != nil {
		return nil, err
	}

	if withChecksum {
		if err := writer.WriteField("checksum", digest.Sum(archiveBytes).String()); err != nil {
			return nil, err
		}
	}
	writer.Close()

	resp, err := c.do(ctx, "POST", "/v1/packages", &buf, writer.FormDataContentType())
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusCreated {
		return nil, errorFromResponse(resp.StatusCode, body)
	}

	var receipt Receipt
	if err := json.Unmarshal(body, &receipt); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &receipt, nil
}

// Resolve asks the registry to resolve a requirement set.
func (c *Client) Resolve(ctx context.Context, requirements map[string]string) (map[string]resolve.Selection, error) {
	payload, err := json.Marshal(map[string]interface{}{"requirements": requirements})
	if err != nil {
		return nil, err
	}

	resp, err := c.do(ctx, "POST", "/v1/resolve", bytes.NewReader(payload), "application/json")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return nil, errorFromResponse(resp.StatusCode, body)
	}

	var result struct {
		Packages map[string]resolve.Selection `json:"packages"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return result.Packages, nil
}

// Register creates a user account.
func (c *Client) Register(ctx context.Context, username, password string) error {
	return c.postJSON(ctx, "/v1/auth/register", map[string]string{
		"username": username,
		"password": password,
	}, nil)
}

// Login verifies credentials and returns a session JWT.
func (c *Client) Login(ctx context.Context, username, password string) (string, error) {
	var result struct {
		Token string `json:"token"`
	}
	err := c.postJSON(ctx, "/v1/auth/login", map[string]string{
		"username": username,
		"password": password,
	}, &result)
	if err != nil {
		return "", err
	}
	return result.Token, nil
}

// CreateToken mints an opaque registry token. Requires a JWT on the
// client; the returned plaintext is shown once.
func (c *Client) CreateToken(ctx context.Context, name string) (string, error) {
	var result struct {
		Token string `json:"token"`
	}
	err := c.postJSON(ctx, "/v1/tokens", map[string]string{"name": name}, &result)
	if err != nil {
		return "", err
	}
	return result.Token, nil
}

func (c *Client) get(ctx context.Context, path string) (*http.Response, error) {
	return c.do(ctx, "GET", path, nil, "")
}

func (c *Client) getJSON(ctx context.Context, path string, out interface{}) error {
	resp, err := c.get(ctx, path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return errorFromResponse(resp.StatusCode, body)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func (c *Client) postJSON(ctx context.Context, path string, in, out interface{}) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return err
	}

	resp, err := c.do(ctx, "POST", path, bytes.NewReader(payload), "application/json")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return errorFromResponse(resp.StatusCode, body)
	}

	if out != nil {
		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

// do makes an HTTP request with authentication and context
func (c *Client) do(ctx context.Context, method, path string, body io.Reader, contentType string) (*http.Response, error) {
	url := c.baseURL + path

	if c.verbose {
		fmt.Printf("🌐 %s %s\n", method, url)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, normalizeTransportError(ctx, err)
	}

	if c.verbose {
		fmt.Printf("🔍 HTTP Response: %d %s\n", resp.StatusCode, resp.Status)
	}

	return resp, nil
}
