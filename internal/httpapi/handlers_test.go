package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"ostiary.org/internal/auth"
	"ostiary.org/internal/cluster"
	"ostiary.org/internal/store/mem"
)

const (
	testSuperKey   = "supertest"
	testStorageURL = "http://storage.test/v1"
)

// upstreamRecorder stands in for the storage cluster behind the gateway and
// records the last forwarded request.
type upstreamRecorder struct {
	mu     sync.Mutex
	calls  int
	header http.Header
}

func (u *upstreamRecorder) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	u.mu.Lock()
	u.calls++
	u.header = r.Header.Clone()
	u.mu.Unlock()
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "upstream ok")
}

func (u *upstreamRecorder) lastHeader() http.Header {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.header
}

// env is a complete API over in-memory backends behind a test server.
type env struct {
	t        *testing.T
	svc      *auth.Service
	cluster  *cluster.Memory
	upstream *upstreamRecorder
	srv      *httptest.Server
}

func newEnv(t *testing.T, mutate func(*Options)) *env {
	t.Helper()
	cl := cluster.NewMemory()
	svc, err := auth.NewService(mem.New(), cl,
		auth.WithSuperAdminKey(testSuperKey),
		auth.WithStorageURL(testStorageURL),
	)
	if err != nil {
		t.Fatalf("build service: %v", err)
	}
	if err := svc.Prep(context.Background()); err != nil {
		t.Fatalf("prep store: %v", err)
	}
	up := &upstreamRecorder{}
	opts := Options{
		Service:  svc,
		Upstream: up,
		Version:  "test",
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	if mutate != nil {
		mutate(&opts)
	}
	api, err := New(opts)
	if err != nil {
		t.Fatalf("build api: %v", err)
	}
	srv := httptest.NewServer(api.Handler())
	t.Cleanup(srv.Close)
	return &env{t: t, svc: svc, cluster: cl, upstream: up, srv: srv}
}

func (e *env) do(method, path string, headers map[string]string, body []byte) *http.Response {
	e.t.Helper()
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequest(method, e.srv.URL+path, rd)
	if err != nil {
		e.t.Fatalf("build request: %v", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := e.srv.Client().Do(req)
	if err != nil {
		e.t.Fatalf("%s %s: %v", method, path, err)
	}
	return resp
}

// status performs a request and returns only the response code.
func (e *env) status(method, path string, headers map[string]string, body []byte) int {
	e.t.Helper()
	resp := e.do(method, path, headers, body)
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func superAuth() map[string]string {
	return map[string]string{
		"X-Auth-Admin-User": auth.SuperAdminUser,
		"X-Auth-Admin-Key":  testSuperKey,
	}
}

func adminAuth(account, user, key string) map[string]string {
	return map[string]string{
		"X-Auth-Admin-User": account + ":" + user,
		"X-Auth-Admin-Key":  key,
	}
}

func (e *env) createAccount(account, suffix string) {
	e.t.Helper()
	h := superAuth()
	if suffix != "" {
		h["X-Account-Suffix"] = suffix
	}
	if got := e.status(http.MethodPut, "/auth/v2/"+account, h, nil); got != http.StatusCreated {
		e.t.Fatalf("create account %s: status %d", account, got)
	}
}

func (e *env) createUser(account, user, key string, admin, reseller bool) {
	e.t.Helper()
	h := superAuth()
	h["X-Auth-User-Key"] = key
	if admin {
		h["X-Auth-User-Admin"] = "true"
	}
	if reseller {
		h["X-Auth-User-Reseller-Admin"] = "true"
	}
	if got := e.status(http.MethodPut, "/auth/v2/"+account+"/"+user, h, nil); got != http.StatusCreated {
		e.t.Fatalf("create user %s:%s: status %d", account, user, got)
	}
}

func (e *env) token(account, user, key string) string {
	e.t.Helper()
	resp := e.do(http.MethodGet, "/auth/v1.0", map[string]string{
		"X-Auth-User": account + ":" + user,
		"X-Auth-Key":  key,
	}, nil)
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		e.t.Fatalf("token for %s:%s: status %d", account, user, resp.StatusCode)
	}
	value := resp.Header.Get("X-Auth-Token")
	if value == "" {
		e.t.Fatalf("no token issued for %s:%s", account, user)
	}
	return value
}

func TestHealthz(t *testing.T) {
	e := newEnv(t, nil)
	resp := e.do(http.MethodGet, "/healthz", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
		t.Fatalf("unexpected content type %q", ct)
	}
	body := decode[map[string]string](t, resp)
	if body["status"] != "ok" || body["service"] != "ostiary" || body["version"] != "test" {
		t.Fatalf("unexpected health payload: %v", body)
	}
}

func TestReadyz(t *testing.T) {
	e := newEnv(t, nil)
	if got := e.status(http.MethodGet, "/readyz", nil, nil); got != http.StatusOK {
		t.Fatalf("unexpected status: %d", got)
	}

	failing := newEnv(t, func(o *Options) {
		o.Ready = func(context.Context) error { return errors.New("store down") }
	})
	resp := failing.do(http.MethodGet, "/readyz", nil, nil)
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}
	body := decode[map[string]string](t, resp)
	if body["status"] != "not_ready" || body["error"] != "store down" {
		t.Fatalf("unexpected readyz payload: %v", body)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	e := newEnv(t, nil)
	resp := e.do(http.MethodGet, "/metrics", nil, nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if !strings.Contains(string(body), "go_goroutines") {
		t.Fatalf("metrics exposition missing runtime collectors")
	}
}

func TestRequestIDOnResponses(t *testing.T) {
	e := newEnv(t, nil)
	resp := e.do(http.MethodGet, "/auth/v2/acme", nil, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}
	rid := resp.Header.Get("X-Trans-Id")
	if rid == "" {
		t.Fatalf("missing X-Trans-Id header")
	}
	body := decode[map[string]string](t, resp)
	if body["error"] != "unauthorized" {
		t.Fatalf("unexpected error body: %v", body)
	}
	if body["request_id"] != rid {
		t.Fatalf("request id mismatch: header %q, body %q", rid, body["request_id"])
	}

	other := e.do(http.MethodGet, "/healthz", nil, nil)
	defer other.Body.Close()
	if got := other.Header.Get("X-Trans-Id"); got == "" || got == rid {
		t.Fatalf("expected a fresh id per request, got %q after %q", got, rid)
	}
}

func TestAuthPrefixRedirect(t *testing.T) {
	e := newEnv(t, nil)
	client := &http.Client{
		CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse },
	}
	resp, err := client.Get(e.srv.URL + "/auth")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusMovedPermanently {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}
	if loc := resp.Header.Get("Location"); loc != "/auth/" {
		t.Fatalf("unexpected location %q", loc)
	}
}

func TestAuthRouting(t *testing.T) {
	e := newEnv(t, nil)
	e.createAccount("acme", "")
	cases := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/auth/v3"},
		{http.MethodGet, "/auth/"},
		{http.MethodPost, "/auth/v1.0"},
		{http.MethodPut, "/auth/auth"},
		{http.MethodDelete, "/auth/v1/acme/auth"},
		{http.MethodGet, "/auth/v1"},
		{http.MethodGet, "/auth/v1/acme/authx"},
		{http.MethodPatch, "/auth/v2/acme"},
		{http.MethodGet, "/auth/v2/acme/"},
		{http.MethodGet, "/auth/v2/.hidden"},
		{http.MethodGet, "/auth/v2/acme/a/b"},
	}
	for _, tc := range cases {
		if got := e.status(tc.method, tc.path, superAuth(), nil); got != http.StatusBadRequest {
			t.Fatalf("%s %s: got %d, want %d", tc.method, tc.path, got, http.StatusBadRequest)
		}
	}
}

func TestPrepRequiresSuperAdmin(t *testing.T) {
	e := newEnv(t, nil)
	if got := e.status(http.MethodPost, "/auth/v2/.prep", nil, nil); got != http.StatusUnauthorized {
		t.Fatalf("anonymous prep: status %d", got)
	}
	bad := map[string]string{"X-Auth-Admin-User": auth.SuperAdminUser, "X-Auth-Admin-Key": "wrong"}
	if got := e.status(http.MethodPost, "/auth/v2/.prep", bad, nil); got != http.StatusUnauthorized {
		t.Fatalf("wrong key prep: status %d", got)
	}

	e.createAccount("ops", "")
	e.createUser("ops", "boss", "bosskey", false, true)
	if got := e.status(http.MethodPost, "/auth/v2/.prep", adminAuth("ops", "boss", "bosskey"), nil); got != http.StatusForbidden {
		t.Fatalf("reseller prep: status %d", got)
	}

	// Repeat runs are safe.
	if got := e.status(http.MethodPost, "/auth/v2/.prep", superAuth(), nil); got != http.StatusNoContent {
		t.Fatalf("super prep: status %d", got)
	}
	if got := e.status(http.MethodPost, "/auth/v2/.prep", superAuth(), nil); got != http.StatusNoContent {
		t.Fatalf("second prep: status %d", got)
	}
}

func TestAccountLifecycle(t *testing.T) {
	e := newEnv(t, nil)
	e.createAccount("acme", "acmeid")

	// Creating it again reports the existing account without touching it.
	if got := e.status(http.MethodPut, "/auth/v2/acme", superAuth(), nil); got != http.StatusAccepted {
		t.Fatalf("repeat create: status %d", got)
	}
	if !e.cluster.HasTenant("AUTH_acmeid") {
		t.Fatalf("storage tenant was not created")
	}

	resp := e.do(http.MethodGet, "/auth/v2/acme", superAuth(), nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get account: status %d", resp.StatusCode)
	}
	detail := decode[auth.AccountDetail](t, resp)
	if detail.AccountID != "AUTH_acmeid" {
		t.Fatalf("unexpected account id %q", detail.AccountID)
	}
	if got := detail.Services["storage"]["local"]; got != testStorageURL+"/AUTH_acmeid" {
		t.Fatalf("unexpected storage endpoint %q", got)
	}
	if len(detail.Users) != 0 {
		t.Fatalf("expected no users, got %v", detail.Users)
	}

	resp = e.do(http.MethodGet, "/auth/v2", superAuth(), nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list accounts: status %d", resp.StatusCode)
	}
	listing := decode[auth.ResellerDetail](t, resp)
	if len(listing.Accounts) != 1 || listing.Accounts[0].Name != "acme" {
		t.Fatalf("unexpected account listing %v", listing.Accounts)
	}

	// An account with users refuses deletion.
	e.createUser("acme", "alice", "alicekey", false, false)
	resp = e.do(http.MethodGet, "/auth/v2/acme", superAuth(), nil)
	detail = decode[auth.AccountDetail](t, resp)
	if len(detail.Users) != 1 || detail.Users[0].Name != "alice" {
		t.Fatalf("unexpected user listing %v", detail.Users)
	}
	if got := e.status(http.MethodDelete, "/auth/v2/acme", superAuth(), nil); got != http.StatusConflict {
		t.Fatalf("delete with users: status %d", got)
	}

	if got := e.status(http.MethodDelete, "/auth/v2/acme/alice", superAuth(), nil); got != http.StatusNoContent {
		t.Fatalf("delete user: status %d", got)
	}
	if got := e.status(http.MethodDelete, "/auth/v2/acme", superAuth(), nil); got != http.StatusNoContent {
		t.Fatalf("delete account: status %d", got)
	}
	if e.cluster.HasTenant("AUTH_acmeid") {
		t.Fatalf("storage tenant survived account deletion")
	}
	if got := e.status(http.MethodGet, "/auth/v2/acme", superAuth(), nil); got != http.StatusNotFound {
		t.Fatalf("get deleted account: status %d", got)
	}
	if got := e.status(http.MethodDelete, "/auth/v2/acme", superAuth(), nil); got != http.StatusNotFound {
		t.Fatalf("delete missing account: status %d", got)
	}
}

func TestAccountPermissions(t *testing.T) {
	e := newEnv(t, nil)
	e.createAccount("acme", "")
	e.createUser("acme", "admin", "adminkey", true, false)
	e.createUser("acme", "boss", "bosskey", false, true)
	e.createUser("acme", "bob", "bobkey", false, false)

	// Creating and deleting accounts is reseller work.
	if got := e.status(http.MethodPut, "/auth/v2/widgets", adminAuth("acme", "admin", "adminkey"), nil); got != http.StatusForbidden {
		t.Fatalf("account admin create: status %d", got)
	}
	if got := e.status(http.MethodPut, "/auth/v2/widgets", nil, nil); got != http.StatusUnauthorized {
		t.Fatalf("anonymous create: status %d", got)
	}
	if got := e.status(http.MethodPut, "/auth/v2/widgets", adminAuth("acme", "boss", "bosskey"), nil); got != http.StatusCreated {
		t.Fatalf("reseller create: status %d", got)
	}
	if got := e.status(http.MethodDelete, "/auth/v2/widgets", adminAuth("acme", "admin", "adminkey"), nil); got != http.StatusForbidden {
		t.Fatalf("account admin delete: status %d", got)
	}

	// Reserved names stay reserved.
	if got := e.status(http.MethodPut, "/auth/v2/.internal", superAuth(), nil); got != http.StatusBadRequest {
		t.Fatalf("reserved name: status %d", got)
	}

	// Listing every account is reseller work too.
	if got := e.status(http.MethodGet, "/auth/v2", adminAuth("acme", "admin", "adminkey"), nil); got != http.StatusForbidden {
		t.Fatalf("account admin listing: status %d", got)
	}

	// Account admins see their own account, nobody else's.
	if got := e.status(http.MethodGet, "/auth/v2/acme", adminAuth("acme", "admin", "adminkey"), nil); got != http.StatusOK {
		t.Fatalf("own account: status %d", got)
	}
	if got := e.status(http.MethodGet, "/auth/v2/widgets", adminAuth("acme", "admin", "adminkey"), nil); got != http.StatusForbidden {
		t.Fatalf("foreign account: status %d", got)
	}
	// A valid user without admin rights sees nothing.
	if got := e.status(http.MethodGet, "/auth/v2/acme", adminAuth("acme", "bob", "bobkey"), nil); got != http.StatusForbidden {
		t.Fatalf("plain user: status %d", got)
	}
}

func TestUserLifecycle(t *testing.T) {
	e := newEnv(t, nil)
	e.createAccount("acme", "acmeid")

	h := superAuth()
	h["X-Auth-User-Key"] = "secret"
	if got := e.status(http.MethodPut, "/auth/v2/acme/alice", h, nil); got != http.StatusCreated {
		t.Fatalf("create user: status %d", got)
	}

	resp := e.do(http.MethodGet, "/auth/v2/acme/alice", superAuth(), nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get user: status %d", resp.StatusCode)
	}
	rec := decode[auth.UserRecord](t, resp)
	if !strings.HasPrefix(rec.Auth, "sha512:") {
		t.Fatalf("unexpected credential encoding %q", rec.Auth)
	}
	if got := auth.GroupNames(rec.Groups); len(got) != 2 || got[0] != "acme:alice" || got[1] != "acme" {
		t.Fatalf("unexpected groups %v", got)
	}

	// Key rotation revokes the live token.
	tok := e.token("acme", "alice", "secret")
	h["X-Auth-User-Key"] = "rotated"
	if got := e.status(http.MethodPut, "/auth/v2/acme/alice", h, nil); got != http.StatusCreated {
		t.Fatalf("rotate key: status %d", got)
	}
	if got := e.status(http.MethodGet, "/auth/v2/.token/"+tok, nil, nil); got != http.StatusNotFound {
		t.Fatalf("old token after rotation: status %d", got)
	}
	e.token("acme", "alice", "rotated")

	// Granting admin keeps the record and adds the marker.
	h["X-Auth-User-Admin"] = "true"
	if got := e.status(http.MethodPut, "/auth/v2/acme/alice", h, nil); got != http.StatusCreated {
		t.Fatalf("grant admin: status %d", got)
	}
	resp = e.do(http.MethodGet, "/auth/v2/acme/alice", superAuth(), nil)
	rec = decode[auth.UserRecord](t, resp)
	if !rec.Admin() {
		t.Fatalf("expected the admin marker, got %v", rec.Groups)
	}

	// Unknown users and accounts are not found.
	if got := e.status(http.MethodGet, "/auth/v2/acme/ghost", superAuth(), nil); got != http.StatusNotFound {
		t.Fatalf("missing user: status %d", got)
	}
	if got := e.status(http.MethodPut, "/auth/v2/ghost/alice", h, nil); got != http.StatusNotFound {
		t.Fatalf("user in missing account: status %d", got)
	}

	if got := e.status(http.MethodDelete, "/auth/v2/acme/alice", superAuth(), nil); got != http.StatusNoContent {
		t.Fatalf("delete user: status %d", got)
	}
	// The missing target is reported before credentials are looked at.
	if got := e.status(http.MethodDelete, "/auth/v2/acme/alice", nil, nil); got != http.StatusNotFound {
		t.Fatalf("delete missing user: status %d", got)
	}
}

func TestPutUserPermissions(t *testing.T) {
	e := newEnv(t, nil)
	e.createAccount("acme", "")
	e.createAccount("rivals", "")
	e.createUser("acme", "admin", "adminkey", true, false)
	e.createUser("acme", "bob", "bobkey", false, false)

	put := func(h map[string]string, account, user string) int {
		t.Helper()
		return e.status(http.MethodPut, "/auth/v2/"+account+"/"+user, h, nil)
	}
	withKey := func(h map[string]string, key string) map[string]string {
		h["X-Auth-User-Key"] = key
		return h
	}

	// Key material is mandatory.
	if got := put(superAuth(), "acme", "carol"); got != http.StatusBadRequest {
		t.Fatalf("missing key: status %d", got)
	}
	// Pre-hashed credentials must carry a known scheme.
	h := superAuth()
	h["X-Auth-User-Key-Hash"] = "deadbeef"
	if got := put(h, "acme", "carol"); got != http.StatusBadRequest {
		t.Fatalf("bad hash scheme: status %d", got)
	}
	// A recognized hash is stored verbatim and the key it encodes works.
	h = superAuth()
	h["X-Auth-User-Key-Hash"] = "plaintext:hashedkey"
	if got := put(h, "acme", "carol"); got != http.StatusCreated {
		t.Fatalf("hash create: status %d", got)
	}
	resp := e.do(http.MethodGet, "/auth/v2/acme/carol", superAuth(), nil)
	if rec := decode[auth.UserRecord](t, resp); rec.Auth != "plaintext:hashedkey" {
		t.Fatalf("hash not stored verbatim: %q", rec.Auth)
	}
	e.token("acme", "carol", "hashedkey")

	// Account admins manage their own account only.
	if got := put(withKey(adminAuth("acme", "admin", "adminkey"), "k"), "acme", "dave"); got != http.StatusCreated {
		t.Fatalf("admin create: status %d", got)
	}
	if got := put(withKey(adminAuth("acme", "admin", "adminkey"), "k"), "rivals", "eve"); got != http.StatusForbidden {
		t.Fatalf("cross account create: status %d", got)
	}
	if got := put(map[string]string{"X-Auth-User-Key": "k"}, "acme", "eve"); got != http.StatusUnauthorized {
		t.Fatalf("anonymous create: status %d", got)
	}

	// Only the super admin hands out reseller rights.
	h = withKey(adminAuth("acme", "admin", "adminkey"), "k")
	h["X-Auth-User-Reseller-Admin"] = "true"
	if got := put(h, "acme", "eve"); got != http.StatusForbidden {
		t.Fatalf("admin granting reseller: status %d", got)
	}
	h = withKey(superAuth(), "bosskey")
	h["X-Auth-User-Reseller-Admin"] = "true"
	if got := put(h, "acme", "boss"); got != http.StatusCreated {
		t.Fatalf("super granting reseller: status %d", got)
	}
	// The reseller marker implies the admin marker.
	resp = e.do(http.MethodGet, "/auth/v2/acme/boss", superAuth(), nil)
	rec := decode[auth.UserRecord](t, resp)
	if !rec.Admin() || !rec.ResellerAdmin() {
		t.Fatalf("unexpected markers %v", rec.Groups)
	}

	// Users may rotate their own key, but not escalate while doing it.
	if got := put(withKey(adminAuth("acme", "bob", "bobkey"), "better"), "acme", "bob"); got != http.StatusCreated {
		t.Fatalf("own key change: status %d", got)
	}
	e.token("acme", "bob", "better")
	h = withKey(adminAuth("acme", "bob", "better"), "better")
	h["X-Auth-User-Admin"] = "true"
	if got := put(h, "acme", "bob"); got != http.StatusForbidden {
		t.Fatalf("self escalation: status %d", got)
	}
	if got := put(withKey(adminAuth("acme", "bob", "better"), "k"), "acme", "dave"); got != http.StatusForbidden {
		t.Fatalf("plain user writing a peer: status %d", got)
	}

	// A reseller admin keeps their own flags across a rotation.
	h = withKey(adminAuth("acme", "boss", "bosskey"), "bossrotated")
	h["X-Auth-User-Reseller-Admin"] = "true"
	if got := put(h, "acme", "boss"); got != http.StatusCreated {
		t.Fatalf("reseller rotating own key: status %d", got)
	}
	e.token("acme", "boss", "bossrotated")
}

func TestGetUserVisibility(t *testing.T) {
	e := newEnv(t, nil)
	e.createAccount("acme", "")
	e.createUser("acme", "admin", "adminkey", true, false)
	e.createUser("acme", "boss", "bosskey", false, true)
	e.createUser("acme", "bob", "bobkey", false, false)

	// Plain users hold no administrative view.
	if got := e.status(http.MethodGet, "/auth/v2/acme/bob", adminAuth("acme", "bob", "bobkey"), nil); got != http.StatusForbidden {
		t.Fatalf("plain user: status %d", got)
	}
	// Account admins see plain users but no other admins, themselves included.
	if got := e.status(http.MethodGet, "/auth/v2/acme/bob", adminAuth("acme", "admin", "adminkey"), nil); got != http.StatusOK {
		t.Fatalf("admin viewing user: status %d", got)
	}
	if got := e.status(http.MethodGet, "/auth/v2/acme/admin", adminAuth("acme", "admin", "adminkey"), nil); got != http.StatusForbidden {
		t.Fatalf("admin viewing admin: status %d", got)
	}
	// Reseller admins see admins but not their peers.
	if got := e.status(http.MethodGet, "/auth/v2/acme/admin", adminAuth("acme", "boss", "bosskey"), nil); got != http.StatusOK {
		t.Fatalf("reseller viewing admin: status %d", got)
	}
	if got := e.status(http.MethodGet, "/auth/v2/acme/boss", adminAuth("acme", "boss", "bosskey"), nil); got != http.StatusForbidden {
		t.Fatalf("reseller viewing reseller: status %d", got)
	}
	// The super admin sees everything.
	resp := e.do(http.MethodGet, "/auth/v2/acme/boss", superAuth(), nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("super viewing reseller: status %d", resp.StatusCode)
	}
	if rec := decode[auth.UserRecord](t, resp); !rec.ResellerAdmin() {
		t.Fatalf("expected the reseller marker, got %v", rec.Groups)
	}
}

func TestAccountGroups(t *testing.T) {
	e := newEnv(t, nil)
	e.createAccount("acme", "")
	e.createUser("acme", "admin", "adminkey", true, false)
	e.createUser("acme", "bob", "bobkey", false, false)

	resp := e.do(http.MethodGet, "/auth/v2/acme/.groups", superAuth(), nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}
	detail := decode[auth.GroupsDetail](t, resp)
	var names []string
	for _, g := range detail.Groups {
		names = append(names, g.Name)
	}
	want := []string{".admin", "acme", "acme:admin", "acme:bob"}
	if len(names) != len(want) {
		t.Fatalf("unexpected groups %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("unexpected groups %v, want %v", names, want)
		}
	}
}

func TestDeleteUserGuards(t *testing.T) {
	e := newEnv(t, nil)
	e.createAccount("acme", "")
	e.createUser("acme", "admin", "adminkey", true, false)
	e.createUser("acme", "boss", "bosskey", false, true)
	e.createUser("acme", "carol", "carolkey", false, false)

	// Deleting a reseller admin takes the super admin.
	if got := e.status(http.MethodDelete, "/auth/v2/acme/boss", adminAuth("acme", "admin", "adminkey"), nil); got != http.StatusForbidden {
		t.Fatalf("account admin deleting reseller: status %d", got)
	}
	if got := e.status(http.MethodDelete, "/auth/v2/acme/boss", superAuth(), nil); got != http.StatusNoContent {
		t.Fatalf("super deleting reseller: status %d", got)
	}

	// Deleting a user kills their live token.
	tok := e.token("acme", "carol", "carolkey")
	if got := e.status(http.MethodGet, "/auth/v2/.token/"+tok, nil, nil); got != http.StatusNoContent {
		t.Fatalf("token before delete: status %d", got)
	}
	if got := e.status(http.MethodDelete, "/auth/v2/acme/carol", adminAuth("acme", "admin", "adminkey"), nil); got != http.StatusNoContent {
		t.Fatalf("admin deleting user: status %d", got)
	}
	if got := e.status(http.MethodGet, "/auth/v2/.token/"+tok, nil, nil); got != http.StatusNotFound {
		t.Fatalf("token after delete: status %d", got)
	}
}

func TestSetServices(t *testing.T) {
	e := newEnv(t, nil)
	e.createAccount("acme", "acmeid")
	e.createUser("acme", "admin", "adminkey", true, false)

	body := []byte(`{"storage": {"cdn": "http://cdn.test/v1/AUTH_acmeid"}}`)
	resp := e.do(http.MethodPost, "/auth/v2/acme/.services", superAuth(), body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("set services: status %d", resp.StatusCode)
	}
	merged := decode[auth.Services](t, resp)
	if merged["storage"]["cdn"] != "http://cdn.test/v1/AUTH_acmeid" {
		t.Fatalf("missing new endpoint: %v", merged)
	}
	if merged["storage"]["local"] != testStorageURL+"/AUTH_acmeid" || merged["storage"]["default"] != "local" {
		t.Fatalf("merge lost existing endpoints: %v", merged)
	}

	// The merge is durable.
	resp = e.do(http.MethodGet, "/auth/v2/acme", superAuth(), nil)
	if detail := decode[auth.AccountDetail](t, resp); detail.Services["storage"]["cdn"] == "" {
		t.Fatalf("services not persisted: %v", detail.Services)
	}

	// Account admins cannot touch service records.
	if got := e.status(http.MethodPost, "/auth/v2/acme/.services", adminAuth("acme", "admin", "adminkey"), body); got != http.StatusForbidden {
		t.Fatalf("account admin: status %d", got)
	}
	// Malformed, absent and empty bodies are rejected.
	if got := e.status(http.MethodPost, "/auth/v2/acme/.services", superAuth(), []byte("{")); got != http.StatusBadRequest {
		t.Fatalf("malformed body: status %d", got)
	}
	if got := e.status(http.MethodPost, "/auth/v2/acme/.services", superAuth(), nil); got != http.StatusBadRequest {
		t.Fatalf("missing body: status %d", got)
	}
	if got := e.status(http.MethodPost, "/auth/v2/acme/.services", superAuth(), []byte("{}")); got != http.StatusBadRequest {
		t.Fatalf("empty body: status %d", got)
	}
	if got := e.status(http.MethodPost, "/auth/v2/ghost/.services", superAuth(), body); got != http.StatusNotFound {
		t.Fatalf("unknown account: status %d", got)
	}
}
