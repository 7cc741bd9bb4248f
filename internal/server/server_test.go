package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"testing"

	"faultline/internal/config"
	"faultline/internal/db"
	"faultline/internal/domain"
	"faultline/internal/engine"
	"faultline/internal/gateway"
	"faultline/internal/migrate"
)

type testServer struct {
	URL    string
	Engine engine.Engine
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T) (*testServer, func()) {
	t.Helper()
	workspace := t.TempDir()
	if _, err := db.EnsureWorkspace(workspace); err != nil {
		t.Fatalf("ensure workspace: %v", err)
	}
	cfg := config.Default("site-1")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := engine.New(conn, cfg)
	ctx := context.Background()
	if _, err := e.InitSite(ctx, "site-1", "Test Site", "", "admin-1"); err != nil {
		t.Fatalf("init site: %v", err)
	}
	for actor, role := range map[string]domain.Role{
		"admin-1": domain.RoleAdmin,
		"maint-1": domain.RoleMaintenance,
		"svc-1":   domain.RoleServiceCompany,
	} {
		if _, err := e.GrantRole(ctx, actor, role, "site-1", "admin-1"); err != nil {
			t.Fatalf("grant %s: %v", actor, err)
		}
	}
	handler, err := New(Config{
		Engine:   e,
		BasePath: "/v1",
		Auth:     AuthConfig{JWTSecret: "test-secret", AllowLegacyActorHeader: true},
	})
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
		URL:    "http://" + ln.Addr().String(),
		Engine: e,
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
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

func asActor(actorID string) map[string]string {
	return map[string]string{"X-Actor-Id": actorID}
}

func createTestReport(t *testing.T, srv *testServer, actorID string) domain.FaultReport {
	t.Helper()
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/sites/site-1/reports", map[string]any{
		"title":   "Broken elevator",
		"urgency": "high",
	}, asActor(actorID))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create report: %d %s", res.StatusCode, string(data))
	}
	var rep domain.FaultReport
	if err := json.Unmarshal(data, &rep); err != nil {
		t.Fatalf("unmarshal report: %v", err)
	}
	return rep
}

func errorCode(t *testing.T, data []byte) string {
	t.Helper()
	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		t.Fatalf("unmarshal error envelope: %v (%s)", err, string(data))
	}
	return envelope.Error.Code
}

func TestReportLifecycleOverHTTP(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	rep := createTestReport(t, srv, "res-1")
	if rep.Status != domain.StatusCreated {
		t.Fatalf("expected created, got %s", rep.Status)
	}

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/reports/"+rep.ID+"/status", map[string]any{
		"target": "open",
	}, asActor("maint-1"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("acknowledge: %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/reports/"+rep.ID+"/status", map[string]any{
		"target": "in_progress",
	}, asActor("svc-1"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("start: %d %s", res.StatusCode, string(data))
	}
	var updated domain.FaultReport
	_ = json.Unmarshal(data, &updated)
	if updated.Status != domain.StatusInProgress {
		t.Fatalf("expected in_progress, got %s", updated.Status)
	}
}

func TestForbiddenAndConflictMapping(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	rep := createTestReport(t, srv, "res-1")

	// edge exists (created -> open) but residents may not traverse it
	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/reports/"+rep.ID+"/status", map[string]any{
		"target": "open",
	}, asActor("res-1"))
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d %s", res.StatusCode, string(data))
	}
	if code := errorCode(t, data); code != "forbidden" {
		t.Fatalf("expected forbidden code, got %s", code)
	}

	// no edge at all (created -> closed), even for admin
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/reports/"+rep.ID+"/status", map[string]any{
		"target": "closed",
	}, asActor("admin-1"))
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d %s", res.StatusCode, string(data))
	}
	if code := errorCode(t, data); code != "invalid_transition" {
		t.Fatalf("expected invalid_transition code, got %s", code)
	}

	// unknown report
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/reports/nope", nil, asActor("res-1"))
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d %s", res.StatusCode, string(data))
	}
}

func TestActionsEndpointResolvesLabels(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	rep := createTestReport(t, srv, "res-1")
	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/reports/"+rep.ID+"/status", map[string]any{
		"target": "open",
	}, asActor("maint-1"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("acknowledge: %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/reports/"+rep.ID+"/actions", nil, asActor("svc-1"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("actions: %d %s", res.StatusCode, string(data))
	}
	var actions []ActionResponse
	if err := json.Unmarshal(data, &actions); err != nil {
		t.Fatalf("unmarshal actions: %v", err)
	}
	if len(actions) != 1 || actions[0].Target != "in_progress" {
		t.Fatalf("unexpected actions %+v", actions)
	}
	if actions[0].Label != "Start work" {
		t.Fatalf("expected resolved label, got %q", actions[0].Label)
	}
}

func TestAuthRequired(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/me", nil, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d %s", res.StatusCode, string(data))
	}
}

func TestMalformedAPIKeyRejected(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/me", nil, map[string]string{
		"X-Api-Key": "not-a-faultline-key",
	})
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d %s", res.StatusCode, string(data))
	}
	if code := errorCode(t, data); code != "invalid_credentials" {
		t.Fatalf("expected invalid_credentials, got %s", code)
	}
}

func TestDevLoginAndMe(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/auth/dev/login", map[string]any{
		"actor_id": "svc-1",
	}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("dev login: %d %s", res.StatusCode, string(data))
	}
	var login DevLoginResponse
	if err := json.Unmarshal(data, &login); err != nil || login.Token == "" {
		t.Fatalf("expected token: %v %s", err, string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/me", nil, map[string]string{
		"Authorization": "Bearer " + login.Token,
	})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("me: %d %s", res.StatusCode, string(data))
	}
	var who WhoAmIResponse
	_ = json.Unmarshal(data, &who)
	if who.ID != "svc-1" || who.Role != "service_company" {
		t.Fatalf("unexpected identity %+v", who)
	}
}

func TestGatewayClientRoundTrip(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	key, plaintext, err := srv.Engine.CreateAPIKey(context.Background(), "svc-1", "test")
	if err != nil {
		t.Fatalf("mint key: %v", err)
	}
	if key.KeyHash == plaintext {
		t.Fatalf("expected hashed storage")
	}
	rep := createTestReport(t, srv, "res-1")
	if _, err := srv.Engine.SetStatus(context.Background(), rep.ID, domain.StatusOpen, "maint-1"); err != nil {
		t.Fatal(err)
	}

	gw := gateway.NewClient(srv.URL)
	gw.APIKey = plaintext

	actor, err := gw.FetchActor(context.Background())
	if err != nil {
		t.Fatalf("fetch actor: %v", err)
	}
	if actor.ID != "svc-1" || actor.Role != domain.RoleServiceCompany {
		t.Fatalf("unexpected actor %+v", actor)
	}

	fetched, err := gw.FetchReport(context.Background(), rep.ID)
	if err != nil {
		t.Fatalf("fetch report: %v", err)
	}
	if fetched.Status != domain.StatusOpen {
		t.Fatalf("expected open, got %s", fetched.Status)
	}

	if err := gw.MutateStatus(context.Background(), rep.ID, domain.StatusInProgress); err != nil {
		t.Fatalf("mutate: %v", err)
	}

	// a stale transition classifies as failed_precondition
	err = gw.MutateStatus(context.Background(), rep.ID, domain.StatusOpen)
	gwErr, ok := err.(*gateway.Error)
	if !ok || gwErr.Code != gateway.CodeFailedPrecondition {
		t.Fatalf("expected failed_precondition, got %v", err)
	}
}
