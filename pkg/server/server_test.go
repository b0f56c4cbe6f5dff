package server

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/dd0wney/cluso-lobstore/pkg/auth"
	"github.com/dd0wney/cluso-lobstore/pkg/lob"
	"github.com/dd0wney/cluso-lobstore/pkg/memstore"
	"github.com/dd0wney/cluso-lobstore/pkg/metrics"
)

func newTestServer(t *testing.T, gate lob.Authorizer) (*Server, http.Handler) {
	t.Helper()
	srv := New(memstore.New(), Options{
		Gate:     gate,
		Registry: metrics.NewRegistry(),
		Backend:  "memory",
	})
	return srv, srv.Handler()
}

// doJSON posts body to path and decodes the response into out (if non-nil).
func doJSON(t *testing.T, h http.Handler, method, path string, body, out any, headers ...string) int {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encoding request: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if out != nil && rec.Code < 300 {
		if err := json.NewDecoder(rec.Body).Decode(out); err != nil {
			t.Fatalf("decoding response from %s: %v", path, err)
		}
	}
	return rec.Code
}

func beginSession(t *testing.T, h http.Handler) string {
	t.Helper()
	var resp BeginSessionResponse
	if code := doJSON(t, h, http.MethodPost, "/v1/sessions", nil, &resp); code != http.StatusCreated {
		t.Fatalf("begin session: status %d", code)
	}
	if resp.SessionID == "" {
		t.Fatal("begin session: empty id")
	}
	return resp.SessionID
}

func TestHealth(t *testing.T) {
	_, h := newTestServer(t, nil)

	var resp HealthResponse
	if code := doJSON(t, h, http.MethodGet, "/health", nil, &resp); code != http.StatusOK {
		t.Fatalf("health: status %d", code)
	}
	if resp.Status != "healthy" || resp.Backend != "memory" {
		t.Errorf("health = %+v", resp)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	_, h := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics: status %d", rec.Code)
	}
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "lobstore_") {
		t.Error("metrics output missing lobstore_ series")
	}
}

func TestSessionLifecycle(t *testing.T) {
	_, h := newTestServer(t, nil)
	sid := beginSession(t, h)
	base := "/v1/sessions/" + sid

	var created ObjectResponse
	if code := doJSON(t, h, http.MethodPost, base+"/create", CreateRequest{}, &created); code != http.StatusCreated {
		t.Fatalf("create: status %d", code)
	}

	var opened OpenResponse
	code := doJSON(t, h, http.MethodPost, base+"/open",
		OpenRequest{ObjectID: created.ObjectID, Mode: lob.ModeReadWrite}, &opened)
	if code != http.StatusOK {
		t.Fatalf("open: status %d", code)
	}
	if opened.Handle != 0 {
		t.Errorf("first handle = %d, want 0", opened.Handle)
	}

	var wrote WriteResponse
	code = doJSON(t, h, http.MethodPost, base+"/write",
		WriteRequest{Handle: opened.Handle, Data: []byte("hello")}, &wrote)
	if code != http.StatusOK || wrote.Written != 5 {
		t.Fatalf("write: status %d, written %d", code, wrote.Written)
	}

	var pos PositionResponse
	code = doJSON(t, h, http.MethodPost, base+"/tell", HandleRequest{Handle: opened.Handle}, &pos)
	if code != http.StatusOK || pos.Position != 5 {
		t.Fatalf("tell: status %d, position %d", code, pos.Position)
	}

	code = doJSON(t, h, http.MethodPost, base+"/seek",
		SeekRequest{Handle: opened.Handle, Offset: 0, Whence: io.SeekStart}, &pos)
	if code != http.StatusOK || pos.Position != 0 {
		t.Fatalf("seek: status %d, position %d", code, pos.Position)
	}

	var read ReadResponse
	code = doJSON(t, h, http.MethodPost, base+"/read",
		ReadRequest{Handle: opened.Handle, Length: 5}, &read)
	if code != http.StatusOK || string(read.Data) != "hello" {
		t.Fatalf("read: status %d, data %q", code, read.Data)
	}

	if code := doJSON(t, h, http.MethodPost, base+"/close", HandleRequest{Handle: opened.Handle}, nil); code != http.StatusOK {
		t.Fatalf("close: status %d", code)
	}
	if code := doJSON(t, h, http.MethodPost, base+"/commit", nil, nil); code != http.StatusOK {
		t.Fatalf("commit: status %d", code)
	}

	// The session is gone after commit.
	if code := doJSON(t, h, http.MethodPost, base+"/tell", HandleRequest{}, nil); code != http.StatusNotFound {
		t.Errorf("op after commit: status %d, want 404", code)
	}

	// The object survives the transaction.
	sid2 := beginSession(t, h)
	base2 := "/v1/sessions/" + sid2
	code = doJSON(t, h, http.MethodPost, base2+"/open",
		OpenRequest{ObjectID: created.ObjectID, Mode: lob.ModeRead}, &opened)
	if code != http.StatusOK {
		t.Fatalf("reopen in new session: status %d", code)
	}
	code = doJSON(t, h, http.MethodPost, base2+"/read",
		ReadRequest{Handle: opened.Handle, Length: 5}, &read)
	if code != http.StatusOK || string(read.Data) != "hello" {
		t.Fatalf("read in new session: status %d, data %q", code, read.Data)
	}
}

func TestUnknownSession(t *testing.T) {
	_, h := newTestServer(t, nil)
	code := doJSON(t, h, http.MethodPost, "/v1/sessions/nope/tell", HandleRequest{}, nil)
	if code != http.StatusNotFound {
		t.Errorf("unknown session: status %d, want 404", code)
	}
}

func TestErrorStatuses(t *testing.T) {
	_, h := newTestServer(t, nil)
	sid := beginSession(t, h)
	base := "/v1/sessions/" + sid

	// Empty slot.
	code := doJSON(t, h, http.MethodPost, base+"/tell", HandleRequest{Handle: 3}, nil)
	if code != http.StatusBadRequest {
		t.Errorf("empty slot: status %d, want 400", code)
	}

	// Out of range.
	code = doJSON(t, h, http.MethodPost, base+"/tell", HandleRequest{Handle: 4096}, nil)
	if code != http.StatusBadRequest {
		t.Errorf("out of range: status %d, want 400", code)
	}

	// Unknown object.
	code = doJSON(t, h, http.MethodPost, base+"/open",
		OpenRequest{ObjectID: 999999, Mode: lob.ModeRead}, nil)
	if code != http.StatusNotFound {
		t.Errorf("unknown object: status %d, want 404", code)
	}

	// Negative read length.
	code = doJSON(t, h, http.MethodPost, base+"/read", ReadRequest{Handle: 0, Length: -1}, nil)
	if code != http.StatusBadRequest {
		t.Errorf("negative length: status %d, want 400", code)
	}
}

func TestAbortRemovesSession(t *testing.T) {
	srv, h := newTestServer(t, nil)
	sid := beginSession(t, h)
	base := "/v1/sessions/" + sid

	var created ObjectResponse
	doJSON(t, h, http.MethodPost, base+"/create", CreateRequest{}, &created)
	doJSON(t, h, http.MethodPost, base+"/open", OpenRequest{ObjectID: created.ObjectID, Mode: lob.ModeWrite}, nil)

	if code := doJSON(t, h, http.MethodPost, base+"/abort", nil, nil); code != http.StatusOK {
		t.Fatalf("abort: status %d", code)
	}
	if srv.SessionCount() != 0 {
		t.Errorf("sessions after abort = %d, want 0", srv.SessionCount())
	}
}

func TestImportExportDeniedWithoutGate(t *testing.T) {
	_, h := newTestServer(t, nil)
	sid := beginSession(t, h)
	base := "/v1/sessions/" + sid

	code := doJSON(t, h, http.MethodPost, base+"/import", ImportRequest{Path: "/etc/hosts"}, nil)
	if code != http.StatusForbidden {
		t.Errorf("ungated import: status %d, want 403", code)
	}
	code = doJSON(t, h, http.MethodPost, base+"/export", ExportRequest{ObjectID: 1, Path: "/tmp/out"}, nil)
	if code != http.StatusForbidden {
		t.Errorf("ungated export: status %d, want 403", code)
	}
}

func TestImportExportWithJWTGate(t *testing.T) {
	gate, err := auth.NewJWTGate("0123456789abcdef0123456789abcdef", time.Hour)
	if err != nil {
		t.Fatalf("NewJWTGate: %v", err)
	}
	_, h := newTestServer(t, gate)

	dir := t.TempDir()
	source := filepath.Join(dir, "in.bin")
	payload := bytes.Repeat([]byte("x"), 3000)
	if err := os.WriteFile(source, payload, 0o600); err != nil {
		t.Fatalf("writing source: %v", err)
	}

	sid := beginSession(t, h)
	base := "/v1/sessions/" + sid

	// No token: denied.
	code := doJSON(t, h, http.MethodPost, base+"/import", ImportRequest{Path: source}, nil)
	if code != http.StatusForbidden {
		t.Fatalf("import without token: status %d, want 403", code)
	}

	// Client role: denied.
	clientToken, _ := gate.GenerateToken("bob", auth.RoleClient)
	code = doJSON(t, h, http.MethodPost, base+"/import", ImportRequest{Path: source}, nil,
		"Authorization", "Bearer "+clientToken)
	if code != http.StatusForbidden {
		t.Fatalf("import as client: status %d, want 403", code)
	}

	// Admin: import then export round-trips.
	adminToken, _ := gate.GenerateToken("alice", auth.RoleAdmin)
	var imported ObjectResponse
	code = doJSON(t, h, http.MethodPost, base+"/import", ImportRequest{Path: source}, &imported,
		"Authorization", "Bearer "+adminToken)
	if code != http.StatusCreated {
		t.Fatalf("import as admin: status %d", code)
	}

	dest := filepath.Join(dir, "out.bin")
	code = doJSON(t, h, http.MethodPost, base+"/export",
		ExportRequest{ObjectID: imported.ObjectID, Path: dest}, nil,
		"Authorization", "Bearer "+adminToken)
	if code != http.StatusOK {
		t.Fatalf("export as admin: status %d", code)
	}

	got, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("reading export: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("export mismatch: got %d bytes, want %d", len(got), len(payload))
	}
}

func TestShutdownAbortsSessions(t *testing.T) {
	srv, h := newTestServer(t, nil)
	beginSession(t, h)
	beginSession(t, h)

	if err := srv.Shutdown(t.Context()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if srv.SessionCount() != 0 {
		t.Errorf("sessions after shutdown = %d, want 0", srv.SessionCount())
	}
}
