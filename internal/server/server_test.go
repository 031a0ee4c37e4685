package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"hseb5/internal/domain"
	"hseb5/internal/metrics"
	"hseb5/internal/repo"
	"hseb5/internal/repo/httprepo"
	"hseb5/internal/repo/memory"
	hsesdk "hseb5/sdk/go"
)

type testServer struct {
	URL     string
	Storage string
	client  *http.Client
	close   func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T) (*testServer, func()) {
	return newTestServerWith(t, nil)
}

// newTestServerWith lets a test adjust the Config before the handler is built.
func newTestServerWith(t *testing.T, adjust func(*Config)) (*testServer, func()) {
	t.Helper()
	store := memory.New(memory.Options{PasswordCost: bcrypt.MinCost})
	storage := filepath.Join(t.TempDir(), "storage")
	cfg := Config{
		Repos:      store.Repositories(),
		StorageDir: storage,
		Metrics:    metrics.New(),
	}
	if adjust != nil {
		adjust(&cfg)
	}
	handler, err := New(cfg)
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:     "http://" + ln.Addr().String(),
		Storage: storage,
		client:  &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, token string) (*http.Response, []byte) {
	t.Helper()
	reader := bytes.NewReader(nil)
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return do(t, client, req)
}

func do(t *testing.T, client *http.Client, req *http.Request) (*http.Response, []byte) {
	t.Helper()
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func login(t *testing.T, srv *testServer, email, password string) string {
	t.Helper()
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/api/auth/login", map[string]any{
		"email":    email,
		"password": password,
	}, "")
	if res.StatusCode != http.StatusOK {
		t.Fatalf("login status %d: %s", res.StatusCode, string(data))
	}
	var sess domain.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		t.Fatalf("unmarshal session: %v", err)
	}
	if sess.Token == "" {
		t.Fatalf("empty token in %s", string(data))
	}
	return sess.Token
}

type envelope struct {
	Error struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details"`
	} `json:"error"`
}

func decodeEnvelope(t *testing.T, data []byte) envelope {
	t.Helper()
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("unmarshal error envelope: %v (%s)", err, string(data))
	}
	return env
}

func TestHealthAndMetricsArePublic(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/api/health", nil, "")
	if res.StatusCode != http.StatusOK || !strings.Contains(string(data), `"ok"`) {
		t.Fatalf("health: %d %s", res.StatusCode, string(data))
	}
	if res.Header.Get("X-Request-Id") == "" {
		t.Fatalf("missing request id header")
	}

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/metrics", nil, "")
	if res.StatusCode != http.StatusOK {
		t.Fatalf("metrics status %d", res.StatusCode)
	}
	if !strings.Contains(string(data), "hseb5_http_requests_total") {
		t.Fatalf("request counter not exported:\n%s", string(data))
	}
}

func TestAuthRequired(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/api/companies", nil, "")
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d %s", res.StatusCode, string(data))
	}
	if env := decodeEnvelope(t, data); env.Error.Code != "unauthorized" {
		t.Fatalf("unexpected code %q", env.Error.Code)
	}

	res, _ = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/api/companies", nil, "not-a-jwt")
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for a forged token, got %d", res.StatusCode)
	}

	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/api/auth/login", map[string]any{
		"email":    memory.DemoAdminEmail,
		"password": "sbagliata",
	}, "")
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for a wrong password, got %d %s", res.StatusCode, string(data))
	}

	token := login(t, srv, memory.DemoAdminEmail, memory.DemoAdminPassword)
	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/api/auth/me", nil, token)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("me: %d %s", res.StatusCode, string(data))
	}
	var me domain.User
	_ = json.Unmarshal(data, &me)
	if me.Email != memory.DemoAdminEmail || me.Role != domain.RoleAdmin {
		t.Fatalf("unexpected user %+v", me)
	}
}

func TestUserManagementIsAdminOnly(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	token := login(t, srv, memory.DemoUserEmail, memory.DemoUserPassword)

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/api/users", map[string]any{
		"name":     "Nuovo",
		"email":    "nuovo@hseb5.it",
		"password": "segreta1",
	}, token)
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d %s", res.StatusCode, string(data))
	}
	if env := decodeEnvelope(t, data); env.Error.Code != "forbidden" {
		t.Fatalf("unexpected code %q", env.Error.Code)
	}

	// reads stay open to every role
	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/api/users", nil, token)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list users: %d %s", res.StatusCode, string(data))
	}

	admin := login(t, srv, memory.DemoAdminEmail, memory.DemoAdminPassword)
	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/api/users", map[string]any{
		"name":     "Nuovo",
		"email":    "nuovo@hseb5.it",
		"password": "segreta1",
		"role":     "user",
	}, admin)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create user: %d %s", res.StatusCode, string(data))
	}
	var created domain.User
	_ = json.Unmarshal(data, &created)
	if !created.Active || created.Role != domain.RoleUser {
		t.Fatalf("unexpected user %+v", created)
	}
	if strings.Contains(string(data), "segreta1") {
		t.Fatalf("password leaked in response")
	}
}

func TestErrorEnvelope(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	token := login(t, srv, memory.DemoAdminEmail, memory.DemoAdminPassword)

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/api/companies/999", nil, token)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d %s", res.StatusCode, string(data))
	}
	if env := decodeEnvelope(t, data); env.Error.Code != "not_found" || env.Error.Message == "" {
		t.Fatalf("unexpected envelope %+v", env)
	}

	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/api/companies", map[string]any{"id": 0, "name": "  "}, token)
	if res.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d %s", res.StatusCode, string(data))
	}
	if env := decodeEnvelope(t, data); env.Error.Code != "validation_failed" || env.Error.Details["field"] != "name" {
		t.Fatalf("unexpected envelope %+v", env)
	}

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/api/deadlines?status=boh", nil, token)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for a bad filter, got %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/api/companies", map[string]any{"id": 0, "name": "X", "colore": "blu"}, token)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for an unknown property, got %d %s", res.StatusCode, string(data))
	}
}

func TestClientRoundTrip(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	ctx := context.Background()

	client := hsesdk.New(srv.URL+"/api", 5*time.Second)
	repos := httprepo.New(client)
	sess, err := repos.Auth.Login(ctx, memory.DemoAdminEmail, memory.DemoAdminPassword)
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	client.Tokens = hsesdk.TokenFunc(func() string { return sess.Token })

	companies, err := repos.Companies.List(ctx)
	if err != nil || len(companies) != 2 {
		t.Fatalf("companies: %v %d", err, len(companies))
	}
	created, err := repos.Companies.Create(ctx, domain.Company{Name: "Bianchi Costruzioni"})
	if err != nil {
		t.Fatalf("create company: %v", err)
	}
	if _, err := repos.Companies.Get(ctx, created.ID); err != nil {
		t.Fatalf("get company: %v", err)
	}
	if err := repos.Companies.Delete(ctx, created.ID); err != nil {
		t.Fatalf("delete company: %v", err)
	}
	if _, err := repos.Companies.Get(ctx, created.ID); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected not found after delete, got %v", err)
	}

	dvr, err := repos.DVRs.Get(ctx, 1)
	if err != nil {
		t.Fatalf("get dvr: %v", err)
	}
	if dvr.Stato != domain.DVRInLavorazione || len(dvr.Files) != 2 {
		t.Fatalf("unexpected dvr %+v", dvr)
	}

	files, err := repos.DVRs.UploadFiles(ctx, 1, []repo.UploadFile{{FileName: "misure.txt", Data: []byte("85 dB")}})
	if err != nil || len(files) != 1 {
		t.Fatalf("upload: %v %d", err, len(files))
	}
	all, err := repos.DVRs.ListFiles(ctx, 1)
	if err != nil || len(all) != 3 {
		t.Fatalf("list files: %v %d", err, len(all))
	}

	v, err := repos.DVRs.SaveRevision(ctx, 1, "prima revisione")
	if err != nil || v.Note != "prima revisione" {
		t.Fatalf("save revision: %v %+v", err, v)
	}
}

func TestDocumentIsSanitizedAndPublished(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	token := login(t, srv, memory.DemoAdminEmail, memory.DemoAdminPassword)

	req, _ := http.NewRequest(http.MethodPut, srv.URL+"/api/dvr/1/document",
		strings.NewReader(`<h1 onclick="x()">Valutazione</h1><script>alert(1)</script><table><tr><td>Rumore</td></tr></table>`))
	req.Header.Set("Content-Type", "text/html")
	req.Header.Set("Authorization", "Bearer "+token)
	res, data := do(t, srv.Client(), req)
	if res.StatusCode != http.StatusNoContent {
		t.Fatalf("save document: %d %s", res.StatusCode, string(data))
	}

	req, _ = http.NewRequest(http.MethodGet, srv.URL+"/api/dvr/1/document", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	res, data = do(t, srv.Client(), req)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("get document: %d %s", res.StatusCode, string(data))
	}
	html := string(data)
	if strings.Contains(html, "script") || strings.Contains(html, "onclick") {
		t.Fatalf("document not sanitized: %s", html)
	}
	if !strings.Contains(html, "Valutazione") || !strings.Contains(html, "<td>Rumore</td>") {
		t.Fatalf("document lost content: %s", html)
	}

	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/api/dvr/1/document/publish", nil, token)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("publish: %d %s", res.StatusCode, string(data))
	}
	var pub PublishedDocument
	_ = json.Unmarshal(data, &pub)
	if !strings.HasPrefix(pub.URL, "/storage/dvr-1-") {
		t.Fatalf("unexpected url %q", pub.URL)
	}
	if _, err := os.Stat(filepath.Join(srv.Storage, pub.FileName)); err != nil {
		t.Fatalf("published file missing: %v", err)
	}
	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+pub.URL, nil, "")
	if res.StatusCode != http.StatusOK || !strings.Contains(string(data), "Valutazione") {
		t.Fatalf("static document: %d %s", res.StatusCode, string(data))
	}
}

func TestElaborationUploadAndExport(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	token := login(t, srv, memory.DemoAdminEmail, memory.DemoAdminPassword)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	_ = mw.WriteField("mansione", "Saldatore")
	_ = mw.WriteField("reparto", "Carpenteria")
	part, _ := mw.CreateFormFile("files", "scheda.txt")
	_, _ = part.Write([]byte("Prodotto: Diluente"))
	_ = mw.Close()

	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/api/elaborations/1/uploads", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	res, data := do(t, srv.Client(), req)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("upload: %d %s", res.StatusCode, string(data))
	}
	var up domain.ElaborationUpload
	if err := json.Unmarshal(data, &up); err != nil {
		t.Fatalf("unmarshal upload: %v", err)
	}
	if up.Mansione != "Saldatore" {
		t.Fatalf("unexpected upload %+v", up)
	}

	buf.Reset()
	mw = multipart.NewWriter(&buf)
	part, _ = mw.CreateFormFile("files", "foto.png")
	_, _ = part.Write([]byte("x"))
	_ = mw.Close()
	req, _ = http.NewRequest(http.MethodPost, srv.URL+"/api/elaborations/1/uploads", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	res, data = do(t, srv.Client(), req)
	if res.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for an unsupported file, got %d %s", res.StatusCode, string(data))
	}

	req, _ = http.NewRequest(http.MethodGet, srv.URL+"/api/elaborations/1/export", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	res, data = do(t, srv.Client(), req)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("export: %d %s", res.StatusCode, string(data))
	}
	if res.Header.Get("Content-Type") != xlsxType {
		t.Fatalf("unexpected content type %q", res.Header.Get("Content-Type"))
	}
	if !bytes.HasPrefix(data, []byte("PK")) {
		t.Fatalf("export is not a zip container")
	}
}

func TestCompleteDeadline(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	token := login(t, srv, memory.DemoAdminEmail, memory.DemoAdminPassword)

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/api/deadlines", nil, token)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list deadlines: %d %s", res.StatusCode, string(data))
	}
	var deadlines []domain.Deadline
	_ = json.Unmarshal(data, &deadlines)
	if len(deadlines) == 0 {
		t.Fatalf("no seeded deadlines")
	}
	id := deadlines[0].ID

	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/api/deadlines/"+strconv.FormatInt(id, 10)+"/complete", nil, token)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("complete: %d %s", res.StatusCode, string(data))
	}
	var done domain.Deadline
	_ = json.Unmarshal(data, &done)
	today := time.Now().Format("2006-01-02")
	if done.LastVisitDate != today {
		t.Fatalf("last visit not set to today: %+v", done)
	}
}

func TestUploadBodyIsCapped(t *testing.T) {
	srv, cleanup := newTestServerWith(t, func(c *Config) { c.MaxUploadBytes = 1 << 10 })
	defer cleanup()
	token := login(t, srv, memory.DemoAdminEmail, memory.DemoAdminPassword)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, _ := mw.CreateFormFile("files", "relazione.txt")
	_, _ = part.Write(bytes.Repeat([]byte("rumore 85 dB\n"), 512))
	_ = mw.Close()

	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/api/dvr/1/files", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	res, data := do(t, srv.Client(), req)
	if res.StatusCode != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d %s", res.StatusCode, string(data))
	}
	env := decodeEnvelope(t, data)
	if env.Error.Code != "payload_too_large" {
		t.Fatalf("unexpected envelope %+v", env)
	}

	buf.Reset()
	mw = multipart.NewWriter(&buf)
	part, _ = mw.CreateFormFile("files", "breve.txt")
	_, _ = part.Write([]byte("ok"))
	_ = mw.Close()
	req, _ = http.NewRequest(http.MethodPost, srv.URL+"/api/dvr/1/files", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	res, data = do(t, srv.Client(), req)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("small upload: %d %s", res.StatusCode, string(data))
	}
}
