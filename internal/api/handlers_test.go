package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gorilla/mux"

	"depot/internal/archive"
	"depot/internal/blob"
	"depot/internal/config"
	"depot/internal/db"
	"depot/internal/manifest"
	"depot/internal/registry"
)

// newTestStack wires a full API stack against an in-memory index
// and a temp-dir blob store, returning the store for tests that
// reach under it.
func newTestStack(t *testing.T) (*httptest.Server, *blob.FilesystemStore) {
	t.Helper()

	database, err := db.Connect(":memory:")
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	t.Cleanup(func() { database.Close() })

	store, err := blob.NewFilesystemStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFilesystemStore() error = %v", err)
	}

	cfg := config.Config{
		TokenSalt: "test-salt",
		JWTSecret: "test-secret",
	}

	router := mux.NewRouter()
	RegisterRoutes(router, database, registry.New(store, database), cfg)

	ts := httptest.NewServer(router)
	t.Cleanup(ts.Close)
	return ts, store
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	ts, _ := newTestStack(t)
	return ts
}

func buildArchive(t *testing.T, name, ver string, deps map[string]string) []byte {
	t.Helper()

	m := &manifest.Manifest{Name: name, Version: ver, Dependencies: deps}
	b, err := archive.Encode(m, archive.FileTree{"rules/base.txt": []byte("content\n")})
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	return b
}

// registerAndLogin creates a user and returns a session JWT.
func registerAndLogin(t *testing.T, ts *httptest.Server) string {
	t.Helper()

	creds := `{"username": "alice", "password": "correct horse"}`

	resp, err := http.Post(ts.URL+"/v1/auth/register", "application/json", bytes.NewBufferString(creds))
	if err != nil {
		t.Fatalf("register request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusConflict {
		t.Fatalf("register status = %d", resp.StatusCode)
	}

	resp, err = http.Post(ts.URL+"/v1/auth/login", "application/json", bytes.NewBufferString(creds))
	if err != nil {
		t.Fatalf("login request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login status = %d, want 200", resp.StatusCode)
	}

	var body struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decoding login response: %v", err)
	}
	if body.Token == "" {
		t.Fatal("login returned empty token")
	}
	return body.Token
}

// publish uploads an archive through the multipart endpoint.
func publish(t *testing.T, ts *httptest.Server, token string, archiveBytes []byte, checksum string) *http.Response {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("archive", "pkg.tgz")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := fw.Write(archiveBytes); err != nil {
		t.Fatal(err)
	}
	if checksum != "" {
		if err := mw.WriteField("checksum", checksum); err != nil {
			t.Fatal(err)
		}
	}
	mw.Close()

	req, err := http.NewRequest("POST", ts.URL+"/v1/packages", &buf)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("publish request failed: %v", err)
	}
	return resp
}

func decodeJSON(t *testing.T, resp *http.Response, out interface{}) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
}

func TestHealthEndpoint(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("health request failed: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("health status = %d, want 200", resp.StatusCode)
	}

	var body map[string]interface{}
	decodeJSON(t, resp, &body)
	if body["status"] != "ok" {
		t.Errorf("status = %v, want ok", body["status"])
	}
}

func TestPublishRequiresAuth(t *testing.T) {
	ts := newTestServer(t)

	resp := publish(t, ts, "", buildArchive(t, "pkg-a", "1.0.0", nil), "")
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("unauthenticated publish status = %d, want 401", resp.StatusCode)
	}
}

func TestPublishAndFetchVersion(t *testing.T) {
	ts := newTestServer(t)
	token := registerAndLogin(t, ts)

	resp := publish(t, ts, token, buildArchive(t, "pkg-a", "1.0.0", map[string]string{"pkg-b": "^1.0"}), "")
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("publish status = %d, want 201", resp.StatusCode)
	}

	var receipt struct {
		Name    string `json:"name"`
		Version string `json:"version"`
		Digest  string `json:"digest"`
	}
	decodeJSON(t, resp, &receipt)
	if receipt.Name != "pkg-a" || receipt.Version != "1.0.0" {
		t.Errorf("receipt = %s@%s, want pkg-a@1.0.0", receipt.Name, receipt.Version)
	}
	if len(receipt.Digest) != 64 {
		t.Errorf("receipt digest = %q, want 64 hex chars", receipt.Digest)
	}

	// The version record is readable without auth.
	vresp, err := http.Get(ts.URL + "/v1/packages/pkg-a/versions/1.0.0")
	if err != nil {
		t.Fatal(err)
	}
	if vresp.StatusCode != http.StatusOK {
		t.Fatalf("get version status = %d, want 200", vresp.StatusCode)
	}

	var version struct {
		Digest       string            `json:"digest"`
		Publisher    string            `json:"publisher"`
		Dependencies map[string]string `json:"dependencies"`
	}
	decodeJSON(t, vresp, &version)
	if version.Digest != receipt.Digest {
		t.Errorf("version digest = %s, want %s", version.Digest, receipt.Digest)
	}
	if version.Publisher != "alice" {
		t.Errorf("publisher = %q, want alice", version.Publisher)
	}
	if version.Dependencies["pkg-b"] != "^1.0" {
		t.Errorf("dependencies = %v, want pkg-b ^1.0", version.Dependencies)
	}
}

func TestPublishConflict(t *testing.T) {
	ts := newTestServer(t)
	token := registerAndLogin(t, ts)

	first := publish(t, ts, token, buildArchive(t, "pkg-a", "1.0.0", nil), "")
	first.Body.Close()
	if first.StatusCode != http.StatusCreated {
		t.Fatalf("first publish status = %d, want 201", first.StatusCode)
	}

	second := publish(t, ts, token, buildArchive(t, "pkg-a", "1.0.0", map[string]string{"pkg-x": "^1.0"}), "")
	if second.StatusCode != http.StatusConflict {
		t.Fatalf("second publish status = %d, want 409", second.StatusCode)
	}

	var body map[string]string
	decodeJSON(t, second, &body)
	if body["kind"] != "version-exists" {
		t.Errorf("conflict kind = %q, want version-exists", body["kind"])
	}
}

func TestPublishInvalidArchive(t *testing.T) {
	ts := newTestServer(t)
	token := registerAndLogin(t, ts)

	resp := publish(t, ts, token, []byte("not a gzip archive"), "")
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("invalid publish status = %d, want 422", resp.StatusCode)
	}

	var body map[string]string
	decodeJSON(t, resp, &body)
	if body["kind"] != archive.KindMalformed {
		t.Errorf("kind = %q, want %q", body["kind"], archive.KindMalformed)
	}
}

func TestPublishChecksumMismatch(t *testing.T) {
	ts := newTestServer(t)
	token := registerAndLogin(t, ts)

	wrong := fmt.Sprintf("%064d", 1)
	resp := publish(t, ts, token, buildArchive(t, "pkg-a", "1.0.0", nil), wrong)
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("checksum mismatch status = %d, want 422", resp.StatusCode)
	}

	var body map[string]string
	decodeJSON(t, resp, &body)
	if body["kind"] != archive.KindChecksum {
		t.Errorf("kind = %q, want %q", body["kind"], archive.KindChecksum)
	}
}

func TestDownloadBlobRoundTrip(t *testing.T) {
	ts := newTestServer(t)
	token := registerAndLogin(t, ts)

	archiveBytes := buildArchive(t, "pkg-a", "1.0.0", nil)
	resp := publish(t, ts, token, archiveBytes, "")
	var receipt struct {
		Digest string `json:"digest"`
	}
	decodeJSON(t, resp, &receipt)

	dresp, err := http.Get(ts.URL + "/v1/blobs/" + receipt.Digest)
	if err != nil {
		t.Fatal(err)
	}
	defer dresp.Body.Close()

	if dresp.StatusCode != http.StatusOK {
		t.Fatalf("download status = %d, want 200", dresp.StatusCode)
	}
	if ct := dresp.Header.Get("Content-Type"); ct != "application/gzip" {
		t.Errorf("Content-Type = %q, want application/gzip", ct)
	}

	var got bytes.Buffer
	if _, err := got.ReadFrom(dresp.Body); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got.Bytes(), archiveBytes) {
		t.Error("downloaded bytes differ from published archive")
	}
}

func TestDownloadBlobCorrupt(t *testing.T) {
	ts, store := newTestStack(t)
	token := registerAndLogin(t, ts)

	archiveBytes := buildArchive(t, "pkg-a", "1.0.0", nil)
	resp := publish(t, ts, token, archiveBytes, "")
	var receipt struct {
		Digest string `json:"digest"`
	}
	decodeJSON(t, resp, &receipt)

	// Flip the stored bytes under the blob's content address.
	blobPath := filepath.Join(store.Root(), receipt.Digest[:2], receipt.Digest)
	if err := os.WriteFile(blobPath, []byte("tampered"), 0o644); err != nil {
		t.Fatalf("tampering with blob: %v", err)
	}

	var logged bytes.Buffer
	log.SetOutput(&logged)
	t.Cleanup(func() { log.SetOutput(os.Stderr) })

	dresp, err := http.Get(ts.URL + "/v1/blobs/" + receipt.Digest)
	if err != nil {
		t.Fatal(err)
	}
	dresp.Body.Close()

	if dresp.StatusCode != http.StatusInternalServerError {
		t.Errorf("corrupt blob status = %d, want 500", dresp.StatusCode)
	}
	if !strings.Contains(logged.String(), "CORRUPT") {
		t.Errorf("corruption was not logged, got: %q", logged.String())
	}
	if !strings.Contains(logged.String(), receipt.Digest) {
		t.Errorf("corruption log does not name the digest, got: %q", logged.String())
	}
}

func TestDownloadBlobNotFound(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/v1/blobs/" + fmt.Sprintf("%064d", 7))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown blob status = %d, want 404", resp.StatusCode)
	}
}

func TestGetPackageListsVersions(t *testing.T) {
	ts := newTestServer(t)
	token := registerAndLogin(t, ts)

	for _, ver := range []string{"1.0.0", "1.2.0", "2.0.0-rc.1"} {
		resp := publish(t, ts, token, buildArchive(t, "pkg-a", ver, nil), "")
		resp.Body.Close()
		if resp.StatusCode != http.StatusCreated {
			t.Fatalf("publish %s status = %d", ver, resp.StatusCode)
		}
	}

	resp, err := http.Get(ts.URL + "/v1/packages/pkg-a")
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get package status = %d, want 200", resp.StatusCode)
	}

	var info struct {
		Name     string `json:"name"`
		Versions []struct {
			Version string `json:"version"`
		} `json:"versions"`
	}
	decodeJSON(t, resp, &info)

	if info.Name != "pkg-a" {
		t.Errorf("name = %q, want pkg-a", info.Name)
	}
	got := make([]string, 0, len(info.Versions))
	for _, v := range info.Versions {
		got = append(got, v.Version)
	}
	want := []string{"2.0.0-rc.1", "1.2.0", "1.0.0"}
	if len(got) != len(want) {
		t.Fatalf("versions = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("versions = %v, want %v", got, want)
			break
		}
	}
}

func TestGetPackageNotFound(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/v1/packages/no-such-package")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestResolveEndpoint(t *testing.T) {
	ts := newTestServer(t)
	token := registerAndLogin(t, ts)

	for _, pub := range []struct {
		name, ver string
		deps      map[string]string
	}{
		{"pkg-b", "1.2.0", nil},
		{"pkg-b", "2.0.0", nil},
		{"pkg-a", "1.0.0", map[string]string{"pkg-b": "^1.0"}},
	} {
		resp := publish(t, ts, token, buildArchive(t, pub.name, pub.ver, pub.deps), "")
		resp.Body.Close()
		if resp.StatusCode != http.StatusCreated {
			t.Fatalf("publish %s@%s status = %d", pub.name, pub.ver, resp.StatusCode)
		}
	}

	body := `{"requirements": {"pkg-a": "^1.0"}}`
	resp, err := http.Post(ts.URL+"/v1/resolve", "application/json", bytes.NewBufferString(body))
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("resolve status = %d, want 200", resp.StatusCode)
	}

	var result struct {
		Packages map[string]struct {
			Version string `json:"version"`
		} `json:"packages"`
	}
	decodeJSON(t, resp, &result)

	if result.Packages["pkg-a"].Version != "1.0.0" {
		t.Errorf("pkg-a = %q, want 1.0.0", result.Packages["pkg-a"].Version)
	}
	if result.Packages["pkg-b"].Version != "1.2.0" {
		t.Errorf("pkg-b = %q, want 1.2.0 (not 2.0.0)", result.Packages["pkg-b"].Version)
	}
}

func TestResolveUnsatisfiable(t *testing.T) {
	ts := newTestServer(t)
	token := registerAndLogin(t, ts)

	resp := publish(t, ts, token, buildArchive(t, "pkg-a", "1.0.0", nil), "")
	resp.Body.Close()

	body := `{"requirements": {"pkg-a": "^9.0"}}`
	rresp, err := http.Post(ts.URL+"/v1/resolve", "application/json", bytes.NewBufferString(body))
	if err != nil {
		t.Fatal(err)
	}
	if rresp.StatusCode != http.StatusConflict {
		t.Fatalf("unsatisfiable resolve status = %d, want 409", rresp.StatusCode)
	}

	var conflict struct {
		Kind string `json:"kind"`
		Name string `json:"name"`
	}
	decodeJSON(t, rresp, &conflict)
	if conflict.Kind != "unsatisfiable" || conflict.Name != "pkg-a" {
		t.Errorf("conflict = %+v, want unsatisfiable on pkg-a", conflict)
	}
}

func TestSearchEndpoint(t *testing.T) {
	ts := newTestServer(t)
	token := registerAndLogin(t, ts)

	resp := publish(t, ts, token, buildArchive(t, "web-helpers", "1.0.0", nil), "")
	resp.Body.Close()
	resp = publish(t, ts, token, buildArchive(t, "cli-tools", "1.0.0", nil), "")
	resp.Body.Close()

	sresp, err := http.Get(ts.URL + "/v1/search?q=web")
	if err != nil {
		t.Fatal(err)
	}
	if sresp.StatusCode != http.StatusOK {
		t.Fatalf("search status = %d, want 200", sresp.StatusCode)
	}

	var results []struct {
		Name string `json:"name"`
	}
	decodeJSON(t, sresp, &results)
	if len(results) != 1 || results[0].Name != "web-helpers" {
		t.Errorf("search results = %v, want just web-helpers", results)
	}
}

func TestOpaqueTokenPublish(t *testing.T) {
	ts := newTestServer(t)
	jwt := registerAndLogin(t, ts)

	req, err := http.NewRequest("POST", ts.URL+"/v1/tokens", bytes.NewBufferString(`{"name": "ci"}`))
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+jwt)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create token status = %d, want 201", resp.StatusCode)
	}

	var minted struct {
		Token string `json:"token"`
	}
	decodeJSON(t, resp, &minted)
	if minted.Token == "" {
		t.Fatal("minted token is empty")
	}

	// The opaque token authenticates a publish on its own.
	presp := publish(t, ts, minted.Token, buildArchive(t, "pkg-ci", "1.0.0", nil), "")
	presp.Body.Close()
	if presp.StatusCode != http.StatusCreated {
		t.Errorf("publish with opaque token status = %d, want 201", presp.StatusCode)
	}
}

func TestRegisterDuplicateUsername(t *testing.T) {
	ts := newTestServer(t)
	registerAndLogin(t, ts)

	resp, err := http.Post(ts.URL+"/v1/auth/register", "application/json",
		bytes.NewBufferString(`{"username": "alice", "password": "another pass"}`))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("duplicate register status = %d, want 409", resp.StatusCode)
	}
}

func TestLoginWrongPassword(t *testing.T) {
	ts := newTestServer(t)
	registerAndLogin(t, ts)

	resp, err := http.Post(ts.URL+"/v1/auth/login", "application/json",
		bytes.NewBufferString(`{"username": "alice", "password": "wrong"}`))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("wrong password login status = %d, want 401", resp.StatusCode)
	}
}
