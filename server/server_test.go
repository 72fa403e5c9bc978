package server_test

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jrsteele09/device-console/auth"
	"github.com/jrsteele09/device-console/gateway"
	"github.com/jrsteele09/device-console/guard"
	"github.com/jrsteele09/device-console/internal/config"
	"github.com/jrsteele09/device-console/server"
	"github.com/jrsteele09/device-console/sessions/memstore"
	"github.com/jrsteele09/device-console/token"
	"github.com/stretchr/testify/require"
)

const validSerial = "202505AMP123456B"

// backend fakes the device registration API. Requests are authorised when
// their access_token cookie equals validAccess.
type backend struct {
	mu           sync.Mutex
	validAccess  string
	refreshFails bool
	calls        []string

	refreshes atomic.Int32
	logouts   atomic.Int32
}

func newBackend(t *testing.T) (*backend, *httptest.Server) {
	b := &backend{validAccess: "access-1"}
	srv := httptest.NewServer(b.handler())
	t.Cleanup(srv.Close)
	return b, srv
}

func (b *backend) setAccess(token string, refreshFails bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.validAccess = token
	b.refreshFails = refreshFails
}

func (b *backend) called(call string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, c := range b.calls {
		if c == call {
			return true
		}
	}
	return false
}

func (b *backend) authorised(w http.ResponseWriter, r *http.Request) bool {
	b.mu.Lock()
	b.calls = append(b.calls, r.Method+" "+r.URL.Path)
	valid := b.validAccess
	b.mu.Unlock()

	c, err := r.Cookie("access_token")
	if err != nil || c.Value != valid {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"detail": "Authentication credentials were not provided."})
		return false
	}
	return true
}

func (b *backend) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/login/", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["password"] != "correct-horse" {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "Invalid credentials"})
			return
		}
		b.mu.Lock()
		access := b.validAccess
		b.mu.Unlock()
		http.SetCookie(w, &http.Cookie{Name: "access_token", Value: access, Path: "/", MaxAge: 3600})
		http.SetCookie(w, &http.Cookie{Name: "refresh_token", Value: "refresh-1", Path: "/", MaxAge: 604800})
		writeJSON(w, http.StatusOK, map[string]any{"message": "Login Successful", "user": map[string]any{"username": body["username"]}})
	})
	mux.HandleFunc("POST /api/signup/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusCreated, map[string]any{"message": "Account created successfully."})
	})
	mux.HandleFunc("POST /api/logout/", func(w http.ResponseWriter, r *http.Request) {
		b.logouts.Add(1)
		writeJSON(w, http.StatusOK, map[string]any{"message": "Logged out successfully"})
	})
	mux.HandleFunc("POST /api/token/refresh/", func(w http.ResponseWriter, r *http.Request) {
		b.refreshes.Add(1)
		b.mu.Lock()
		access, fails := b.validAccess, b.refreshFails
		b.mu.Unlock()
		if fails {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "Invalid or expired refresh token"})
			return
		}
		http.SetCookie(w, &http.Cookie{Name: "access_token", Value: access, Path: "/", MaxAge: 3600})
		writeJSON(w, http.StatusOK, map[string]any{"message": "Token refreshed successfully"})
	})
	mux.HandleFunc("GET /api/verify-auth/", func(w http.ResponseWriter, r *http.Request) {
		if !b.authorised(w, r) {
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"authenticated": true, "user": map[string]any{"username": "a"}})
	})
	mux.HandleFunc("GET /api/get_serial_numbers/", func(w http.ResponseWriter, r *http.Request) {
		if !b.authorised(w, r) {
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "success", "data": []map[string]any{
			{"serialnumber": validSerial, "isapproved": 0, "isallocated": 0, "imsi": nil, "imei": nil, "deviceid": nil},
			{"serialnumber": "202505API000001B", "isapproved": "1", "isallocated": 2, "imsi": "404", "imei": "3550", "deviceid": "dev-1"},
		}})
	})
	mux.HandleFunc("POST /api/add_serial_number/", func(w http.ResponseWriter, r *http.Request) {
		if !b.authorised(w, r) {
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"status": "success", "message": "Serial number added"})
	})
	mux.HandleFunc("PATCH /api/approve_serial_number/", func(w http.ResponseWriter, r *http.Request) {
		if !b.authorised(w, r) {
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "success"})
	})
	mux.HandleFunc("GET /api/get_customer_mappings/", func(w http.ResponseWriter, r *http.Request) {
		if !b.authorised(w, r) {
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "success", "totalCount": 1, "data": []map[string]any{
			{"upiDeviceSerialNumber": validSerial, "customerName": "Acme Retail", "customerCode": "C-1", "isApproved": 1},
		}})
	})
	mux.HandleFunc("DELETE /api/delete_customer_mapping/{serial}/", func(w http.ResponseWriter, r *http.Request) {
		if !b.authorised(w, r) {
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "success"})
	})
	return mux
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

type console struct {
	url     string
	store   *memstore.Store
	browser *http.Client
}

type consoleOption func(*auth.Service) []guard.Option

func withVerifyMode(ttl time.Duration) consoleOption {
	return func(svc *auth.Service) []guard.Option {
		return []guard.Option{guard.WithVerifier(svc, ttl)}
	}
}

func newConsole(t *testing.T, backendURL string, opts ...consoleOption) *console {
	t.Helper()
	t.Setenv("ENV", "TEST")
	if _, ok := os.LookupEnv("LOGIN_RATE_LIMIT"); !ok {
		t.Setenv("LOGIN_RATE_LIMIT", "false")
	}

	gw, err := gateway.New(backendURL + "/api")
	require.NoError(t, err)
	store := memstore.New()
	authSvc, err := auth.NewService(gw, store)
	require.NoError(t, err)

	var guardOpts []guard.Option
	for _, opt := range opts {
		guardOpts = append(guardOpts, opt(authSvc)...)
	}
	signer, err := token.NewHMACSigner("test-session-secret")
	require.NoError(t, err)

	srv, err := server.New(config.New(), server.Deps{
		Gateway: gw,
		Store:   store,
		Auth:    authSvc,
		Guard:   guard.New(store, guardOpts...),
		Signer:  signer,
	})
	require.NoError(t, err)
	t.Cleanup(srv.Close)

	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &console{
		url:   ts.URL,
		store: store,
		browser: &http.Client{
			Jar: jar,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

func (c *console) get(t *testing.T, path string, header ...string) (*http.Response, string) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, c.url+path, nil)
	require.NoError(t, err)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	return c.do(t, req)
}

func (c *console) post(t *testing.T, path string, form url.Values) (*http.Response, string) {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, c.url+path, strings.NewReader(form.Encode()))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.do(t, req)
}

func (c *console) do(t *testing.T, req *http.Request) (*http.Response, string) {
	t.Helper()
	resp, err := c.browser.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(body)
}

func (c *console) login(t *testing.T, username string) {
	t.Helper()
	resp, _ := c.post(t, server.RouteLogin, url.Values{"username": {username}, "password": {"correct-horse"}})
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	require.Equal(t, server.RouteDashboard, resp.Header.Get("Location"))
}

func requireRedirect(t *testing.T, resp *http.Response, prefix string) *url.URL {
	t.Helper()
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	loc, err := url.Parse(resp.Header.Get("Location"))
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(loc.Path, prefix), "redirected to %s", loc)
	return loc
}

func TestNew_RequiresDependencies(t *testing.T) {
	_, err := server.New(config.New(), server.Deps{})
	require.Error(t, err)
}

func TestDashboard_WithoutSessionRedirectsToLogin(t *testing.T) {
	_, api := newBackend(t)
	c := newConsole(t, api.URL)

	resp, body := c.get(t, server.RouteDashboard)
	requireRedirect(t, resp, server.RouteLogin)
	require.NotContains(t, body, "Welcome")

	t.Run("htmx request gets HX-Redirect", func(t *testing.T) {
		resp, _ := c.get(t, server.RouteSerials, "HX-Request", "true")
		require.Equal(t, http.StatusNoContent, resp.StatusCode)
		require.Equal(t, server.RouteLogin, resp.Header.Get("HX-Redirect"))
	})

	t.Run("forged cookie is rejected", func(t *testing.T) {
		u, _ := url.Parse(c.url)
		c.browser.Jar.SetCookies(u, []*http.Cookie{{Name: "console_session", Value: "not-a-jwt", Path: "/"}})
		resp, _ := c.get(t, server.RouteDashboard)
		requireRedirect(t, resp, server.RouteLogin)
	})
}

func TestLogin_StoresMarkerAndOpensDashboard(t *testing.T) {
	_, api := newBackend(t)
	c := newConsole(t, api.URL)

	c.login(t, "a")
	require.Equal(t, 1, c.store.Len())

	resp, body := c.get(t, server.RouteDashboard)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, body, "Welcome, a")
	require.Contains(t, body, "Add Serial Numbers")
	require.Contains(t, body, "Map Devices")
}

func TestLogin_RejectedCredentials(t *testing.T) {
	_, api := newBackend(t)
	c := newConsole(t, api.URL)

	resp, _ := c.post(t, server.RouteLogin, url.Values{"username": {"a"}, "password": {"wrong"}})
	loc := requireRedirect(t, resp, server.RouteLogin)
	require.Equal(t, "Invalid credentials", loc.Query().Get("error"))
	require.Equal(t, "a", loc.Query().Get("username"))
	require.Zero(t, c.store.Len())

	resp, body := c.get(t, loc.RequestURI())
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, body, "Invalid credentials")
}

func TestSignup_RedirectsToLoginWithMessage(t *testing.T) {
	_, api := newBackend(t)
	c := newConsole(t, api.URL)

	t.Run("validation failure stays on signup", func(t *testing.T) {
		resp, _ := c.post(t, server.RouteSignup, url.Values{"username": {"bob"}, "email": {"b@example.com"}, "password": {"short"}, "cpassword": {"short"}})
		loc := requireRedirect(t, resp, server.RouteSignup)
		require.Equal(t, auth.PasswordTooShortErr.Error(), loc.Query().Get("error"))
		require.Equal(t, "bob", loc.Query().Get("username"))
	})

	t.Run("success", func(t *testing.T) {
		resp, _ := c.post(t, server.RouteSignup, url.Values{"username": {"bob"}, "email": {"b@example.com"}, "password": {"long-enough"}, "cpassword": {"long-enough"}})
		loc := requireRedirect(t, resp, server.RouteLogin)
		require.Equal(t, "Account created successfully.", loc.Query().Get("message"))
	})
}

func TestSerials_RenewsAndReplaysAfterExpiredAccessToken(t *testing.T) {
	be, api := newBackend(t)
	c := newConsole(t, api.URL)
	c.login(t, "a")

	// The backend rotates the access token, the stored one now gets a 401
	be.setAccess("access-2", false)

	resp, body := c.get(t, server.RouteSerials)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, body, validSerial)
	require.Contains(t, body, "Approve")
	require.EqualValues(t, 1, be.refreshes.Load())

	// The renewed credential was written back, so the next page needs no renewal
	resp, _ = c.get(t, server.RouteSerials)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.EqualValues(t, 1, be.refreshes.Load())
}

func TestSerials_RenewalFailureEndsSession(t *testing.T) {
	be, api := newBackend(t)
	c := newConsole(t, api.URL)
	c.login(t, "a")

	be.setAccess("access-2", true)

	resp, _ := c.get(t, server.RouteSerials)
	loc := requireRedirect(t, resp, server.RouteLogin)
	require.NotEmpty(t, loc.Query().Get("error"))
	require.Zero(t, c.store.Len())

	resp, _ = c.get(t, server.RouteDashboard)
	requireRedirect(t, resp, server.RouteLogin)
}

func TestSerials_AddAndApprove(t *testing.T) {
	be, api := newBackend(t)
	c := newConsole(t, api.URL)
	c.login(t, "a")

	t.Run("invalid pattern", func(t *testing.T) {
		resp, _ := c.post(t, server.RouteSerials, url.Values{"serialnumber": {"nope"}, "return": {"approval=unapproved&page=1"}})
		loc := requireRedirect(t, resp, server.RouteSerials)
		require.Contains(t, loc.Query().Get("error"), "Serial number must follow pattern")
		require.Equal(t, "unapproved", loc.Query().Get("approval"))
		require.False(t, be.called("POST /api/add_serial_number/"))
	})

	t.Run("already listed", func(t *testing.T) {
		resp, _ := c.post(t, server.RouteSerials, url.Values{"serialnumber": {validSerial}})
		loc := requireRedirect(t, resp, server.RouteSerials)
		require.Equal(t, "Serial number already exists in the list!", loc.Query().Get("error"))
	})

	t.Run("added", func(t *testing.T) {
		resp, _ := c.post(t, server.RouteSerials, url.Values{"serialnumber": {"202506AMP654321B"}})
		loc := requireRedirect(t, resp, server.RouteSerials)
		require.Equal(t, "Serial number added successfully!", loc.Query().Get("message"))
		require.True(t, be.called("POST /api/add_serial_number/"))
	})

	t.Run("approve", func(t *testing.T) {
		resp, _ := c.post(t, "/dashboard/add-serialnum/"+validSerial+"/approve", url.Values{})
		loc := requireRedirect(t, resp, server.RouteSerials)
		require.Equal(t, "Serial number approved successfully!", loc.Query().Get("message"))
		require.True(t, be.called("PATCH /api/approve_serial_number/"))
	})

	t.Run("unknown action", func(t *testing.T) {
		resp, _ := c.post(t, "/dashboard/add-serialnum/"+validSerial+"/explode", url.Values{})
		require.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}

func TestSerials_FilterAndPaging(t *testing.T) {
	_, api := newBackend(t)
	c := newConsole(t, api.URL)
	c.login(t, "a")

	resp, body := c.get(t, server.RouteSerials+"?approval=approved")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, body, "202505API000001B")
	require.NotContains(t, body, validSerial)
	require.Contains(t, body, "Allocated")
}

func TestMappings_ListAndDelete(t *testing.T) {
	be, api := newBackend(t)
	c := newConsole(t, api.URL)
	c.login(t, "a")

	resp, body := c.get(t, server.RouteMappings)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, body, "Acme Retail")
	require.Contains(t, body, "1 mappings")

	resp, _ = c.post(t, "/dashboard/listing-page/"+validSerial+"/delete", url.Values{})
	loc := requireRedirect(t, resp, server.RouteMappings)
	require.Equal(t, "Mapping deleted successfully", loc.Query().Get("message"))
	require.True(t, be.called("DELETE /api/delete_customer_mapping/"+validSerial+"/"))

	t.Run("create with missing fields", func(t *testing.T) {
		resp, _ := c.post(t, server.RouteMappings, url.Values{"serialnumber": {validSerial}})
		loc := requireRedirect(t, resp, server.RouteMappings)
		require.True(t, strings.HasPrefix(loc.Query().Get("error"), "Missing values in input"))
		require.Equal(t, validSerial, loc.Query().Get("serialnumber"))
	})
}

func TestLogout_ClearsSession(t *testing.T) {
	be, api := newBackend(t)
	c := newConsole(t, api.URL)
	c.login(t, "a")

	resp, _ := c.post(t, server.RouteLogout, url.Values{})
	requireRedirect(t, resp, server.RouteLogin)
	require.Zero(t, c.store.Len())
	require.EqualValues(t, 1, be.logouts.Load())

	resp, _ = c.get(t, server.RouteDashboard)
	requireRedirect(t, resp, server.RouteLogin)
}

func TestVerifyMode_DeadRefreshTokenEndsSession(t *testing.T) {
	be, api := newBackend(t)
	// A zero ttl re-verifies on every navigation
	c := newConsole(t, api.URL, withVerifyMode(0))
	c.login(t, "a")

	resp, _ := c.get(t, server.RouteDashboard)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	be.setAccess("access-2", true)

	resp, body := c.get(t, server.RouteDashboard)
	loc := requireRedirect(t, resp, server.RouteLogin)
	require.NotEmpty(t, loc.Query().Get("error"))
	require.NotContains(t, body, "Welcome")
	require.Zero(t, c.store.Len())
	require.EqualValues(t, 1, be.refreshes.Load())
}

func TestLoginRateLimit(t *testing.T) {
	t.Setenv("LOGIN_RATE_LIMIT", "true")
	t.Setenv("LOGIN_RATE_PER_MINUTE", "1")
	t.Setenv("LOGIN_BURST", "1")
	_, api := newBackend(t)
	c := newConsole(t, api.URL)

	form := url.Values{"username": {"a"}, "password": {"wrong"}}
	resp, _ := c.post(t, server.RouteLogin, form)
	loc := requireRedirect(t, resp, server.RouteLogin)
	require.Equal(t, "Invalid credentials", loc.Query().Get("error"))

	resp, _ = c.post(t, server.RouteLogin, form)
	loc = requireRedirect(t, resp, server.RouteLogin)
	require.Contains(t, loc.Query().Get("error"), "Too many attempts")
}

func TestHealthAndStatic(t *testing.T) {
	_, api := newBackend(t)
	c := newConsole(t, api.URL)

	resp, body := c.get(t, server.RouteHealth)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.JSONEq(t, `{"status":"ok","guard_mode":"local"}`, body)

	resp, body = c.get(t, "/css/console.css")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, resp.Header.Get("Content-Type"), "text/css")
	require.Contains(t, body, ".sidebar")

	resp, _ = c.get(t, "/css/missing.css")
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}
