package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"coursehub.org/internal/academics"
	"coursehub.org/internal/auth"
	"coursehub.org/internal/ids"
	"coursehub.org/internal/store/lite"
)

const testSecret = "api-test-secret-0123456789abcdef01234567"

type apiClient struct {
	baseURL string
	client  *http.Client
	t       *testing.T
}

func newTestAPI(t *testing.T) *apiClient {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	store, err := lite.Open("file:api_" + name + "?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	tokens, err := auth.NewTokenService(testSecret, "coursehub", "coursehub-clients", time.Hour)
	if err != nil {
		t.Fatalf("token service: %v", err)
	}
	authSvc, err := auth.NewService(store, tokens, auth.WithBcryptCost(bcrypt.MinCost))
	if err != nil {
		t.Fatalf("auth service: %v", err)
	}
	acad, err := academics.NewService(store)
	if err != nil {
		t.Fatalf("academics service: %v", err)
	}
	api, err := New(authSvc, acad, store, Options{
		Version:      "test",
		CORSOrigins:  []string{"http://localhost:3000"},
		RateBurst:    1000,
		RatePerSec:   1000,
		MaxBodyBytes: 1 << 16,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	srv := httptest.NewServer(api.Handler())
	t.Cleanup(srv.Close)

	return &apiClient{baseURL: srv.URL, client: srv.Client(), t: t}
}

func (c *apiClient) do(method, path, token string, body any) *http.Response {
	c.t.Helper()
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			c.t.Fatalf("marshal body: %v", err)
		}
	}
	req, err := http.NewRequest(method, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		c.t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.t.Fatalf("do request: %v", err)
	}
	c.t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func expectStatus(t *testing.T, resp *http.Response, want int) {
	t.Helper()
	if resp.StatusCode != want {
		var body bytes.Buffer
		_, _ = body.ReadFrom(resp.Body)
		t.Fatalf("%s %s: status %d, want %d; body=%s", resp.Request.Method, resp.Request.URL.Path, resp.StatusCode, want, body.String())
	}
}

// registerAndLogin returns the new user's id and a bearer token.
func (c *apiClient) registerAndLogin(name, email, role string) (string, string) {
	c.t.Helper()
	resp := c.do(http.MethodPost, "/v1/auth/register", "", map[string]string{
		"name": name, "email": email, "password": "pw-" + name, "role": role,
	})
	expectStatus(c.t, resp, http.StatusOK)
	reg := decode[map[string]any](c.t, resp)

	resp = c.do(http.MethodPost, "/v1/auth/login", "", map[string]string{"email": email, "password": "pw-" + name})
	expectStatus(c.t, resp, http.StatusOK)
	login := decode[map[string]any](c.t, resp)
	return reg["userId"].(string), login["token"].(string)
}

func TestRegisterLoginScenario(t *testing.T) {
	c := newTestAPI(t)

	resp := c.do(http.MethodPost, "/v1/auth/register", "", map[string]string{
		"name": "Ana", "email": "A@x.com", "password": "p1", "role": "Student",
	})
	expectStatus(t, resp, http.StatusOK)
	reg := decode[map[string]any](t, resp)
	if reg["role"] != "Student" || reg["email"] != "a@x.com" || reg["userId"] == "" {
		t.Fatalf("unexpected register body: %v", reg)
	}
	if _, leaked := reg["password_hash"]; leaked {
		t.Fatalf("hash leaked")
	}

	resp = c.do(http.MethodPost, "/v1/auth/register", "", map[string]string{
		"name": "Ana", "email": "a@x.com", "password": "p1", "role": "Student",
	})
	expectStatus(t, resp, http.StatusBadRequest)
	dup := decode[errorBody](t, resp)
	if dup.Details["email"] != "email_taken" || dup.RequestID == "" {
		t.Fatalf("unexpected duplicate body: %+v", dup)
	}

	resp = c.do(http.MethodPost, "/v1/auth/login", "", map[string]string{"email": "A@x.com", "password": "p1"})
	expectStatus(t, resp, http.StatusOK)
	login := decode[struct {
		Token     string    `json:"token"`
		ExpiresAt time.Time `json:"expires_at"`
		User      auth.User `json:"user"`
	}](t, resp)
	if login.Token == "" || login.User.Role != auth.RoleStudent {
		t.Fatalf("unexpected login body: %+v", login)
	}

	resp = c.do(http.MethodGet, "/v1/auth/me", login.Token, nil)
	expectStatus(t, resp, http.StatusOK)
	me := decode[auth.User](t, resp)
	if me.Role != auth.RoleStudent || me.Email != "a@x.com" {
		t.Fatalf("unexpected me: %+v", me)
	}

	wrong := c.do(http.MethodPost, "/v1/auth/login", "", map[string]string{"email": "A@x.com", "password": "wrong"})
	expectStatus(t, wrong, http.StatusUnauthorized)
	unknown := c.do(http.MethodPost, "/v1/auth/login", "", map[string]string{"email": "nobody@x.com", "password": "p1"})
	expectStatus(t, unknown, http.StatusUnauthorized)
	if w, u := decode[errorBody](t, wrong), decode[errorBody](t, unknown); w.Error != u.Error || w.Details != nil || u.Details != nil {
		t.Fatalf("login failures differ: %+v vs %+v", w, u)
	}
}

func TestRegisterValidation(t *testing.T) {
	c := newTestAPI(t)

	resp := c.do(http.MethodPost, "/v1/auth/register", "", map[string]string{"email": "x@y.com"})
	expectStatus(t, resp, http.StatusBadRequest)
	body := decode[errorBody](t, resp)
	for _, f := range []string{"name", "password", "role"} {
		if body.Details[f] != "required" {
			t.Fatalf("expected %s required, got %v", f, body.Details)
		}
	}

	resp = c.do(http.MethodPost, "/v1/auth/register", "", map[string]string{
		"name": "B", "email": "b@x.com", "password": "pw", "role": "Janitor",
	})
	expectStatus(t, resp, http.StatusBadRequest)

	resp = c.do(http.MethodPost, "/v1/auth/register", "", map[string]any{"name": "B", "extra": true})
	expectStatus(t, resp, http.StatusBadRequest)
}

func TestRoleGate(t *testing.T) {
	c := newTestAPI(t)
	_, student := c.registerAndLogin("stu", "stu@x.com", "Student")
	_, instructor := c.registerAndLogin("tea", "tea@x.com", "Instructor")
	_, admin := c.registerAndLogin("adm", "adm@x.com", "Admin")
	course := map[string]any{"title": "Algebra"}

	resp := c.do(http.MethodPost, "/v1/courses", "", course)
	expectStatus(t, resp, http.StatusUnauthorized)
	if !strings.HasPrefix(resp.Header.Get("WWW-Authenticate"), "Bearer") {
		t.Fatalf("missing challenge header")
	}

	resp = c.do(http.MethodPost, "/v1/courses", "garbage.token.value", course)
	expectStatus(t, resp, http.StatusUnauthorized)
	if !strings.Contains(resp.Header.Get("WWW-Authenticate"), "invalid_token") {
		t.Fatalf("expected invalid_token challenge")
	}

	resp = c.do(http.MethodPost, "/v1/courses", student, course)
	expectStatus(t, resp, http.StatusForbidden)

	resp = c.do(http.MethodPost, "/v1/courses", instructor, course)
	expectStatus(t, resp, http.StatusCreated)
	created := decode[academics.Course](t, resp)
	if resp.Header.Get("Location") != "/v1/courses/"+created.ID {
		t.Fatalf("unexpected Location: %q", resp.Header.Get("Location"))
	}

	resp = c.do(http.MethodGet, "/v1/courses/"+created.ID, student, nil)
	expectStatus(t, resp, http.StatusOK)

	resp = c.do(http.MethodDelete, "/v1/courses/"+created.ID, instructor, nil)
	expectStatus(t, resp, http.StatusForbidden)
	resp = c.do(http.MethodDelete, "/v1/courses/"+created.ID, admin, nil)
	expectStatus(t, resp, http.StatusNoContent)

	resp = c.do(http.MethodGet, "/v1/users", instructor, nil)
	expectStatus(t, resp, http.StatusForbidden)
	resp = c.do(http.MethodGet, "/v1/users", admin, nil)
	expectStatus(t, resp, http.StatusOK)
	users := decode[listResponse[auth.User]](t, resp)
	if len(users.Items) != 3 {
		t.Fatalf("expected 3 users, got %d", len(users.Items))
	}
}

func TestReferentialIntegrity(t *testing.T) {
	c := newTestAPI(t)
	studentID, student := c.registerAndLogin("stu", "stu@x.com", "Student")
	_, instructor := c.registerAndLogin("tea", "tea@x.com", "Instructor")
	_, admin := c.registerAndLogin("adm", "adm@x.com", "Admin")

	resp := c.do(http.MethodPost, "/v1/results", instructor, map[string]any{
		"assessment_id": ids.New(), "student_id": studentID, "score": 3,
	})
	expectStatus(t, resp, http.StatusConflict)

	resp = c.do(http.MethodPost, "/v1/assessments", admin, map[string]any{
		"course_id": "no-such-course", "title": "Orphan", "max_score": 10,
	})
	expectStatus(t, resp, http.StatusConflict)

	resp = c.do(http.MethodGet, "/v1/results", instructor, nil)
	expectStatus(t, resp, http.StatusOK)
	if got := decode[listResponse[academics.Result]](t, resp); len(got.Items) != 0 {
		t.Fatalf("result persisted despite missing assessment")
	}

	resp = c.do(http.MethodPost, "/v1/courses", instructor, map[string]any{"title": "Chem"})
	expectStatus(t, resp, http.StatusCreated)
	course := decode[academics.Course](t, resp)

	resp = c.do(http.MethodPost, "/v1/assessments", instructor, map[string]any{
		"course_id": course.ID, "title": "Quiz 1", "max_score": 10,
	})
	expectStatus(t, resp, http.StatusCreated)
	quiz := decode[academics.Assessment](t, resp)

	resp = c.do(http.MethodPost, "/v1/results", instructor, map[string]any{
		"assessment_id": quiz.ID, "student_id": studentID, "score": 11,
	})
	expectStatus(t, resp, http.StatusBadRequest)

	resp = c.do(http.MethodPost, "/v1/results", instructor, map[string]any{
		"assessment_id": quiz.ID, "student_id": studentID, "score": 9, "feedback": "well done",
	})
	expectStatus(t, resp, http.StatusCreated)
	result := decode[academics.Result](t, resp)

	resp = c.do(http.MethodGet, "/v1/results/"+result.ID, student, nil)
	expectStatus(t, resp, http.StatusOK)
	resp = c.do(http.MethodGet, "/v1/results?student_id="+studentID, student, nil)
	expectStatus(t, resp, http.StatusForbidden)

	resp = c.do(http.MethodDelete, "/v1/courses/"+course.ID, admin, nil)
	expectStatus(t, resp, http.StatusConflict)
	resp = c.do(http.MethodDelete, "/v1/users/"+studentID, admin, nil)
	expectStatus(t, resp, http.StatusConflict)

	resp = c.do(http.MethodPut, "/v1/results/"+result.ID, instructor, map[string]any{
		"assessment_id": quiz.ID, "student_id": studentID, "score": 10,
	})
	expectStatus(t, resp, http.StatusOK)

	resp = c.do(http.MethodGet, "/v1/assessments/"+ids.New(), student, nil)
	expectStatus(t, resp, http.StatusNotFound)

	resp = c.do(http.MethodDelete, "/v1/results/"+result.ID, admin, nil)
	expectStatus(t, resp, http.StatusNoContent)
	resp = c.do(http.MethodDelete, "/v1/assessments/"+quiz.ID, instructor, nil)
	expectStatus(t, resp, http.StatusNoContent)
	resp = c.do(http.MethodDelete, "/v1/courses/"+course.ID, admin, nil)
	expectStatus(t, resp, http.StatusNoContent)
}

func TestUserAdministration(t *testing.T) {
	c := newTestAPI(t)
	studentID, student := c.registerAndLogin("stu", "stu@x.com", "Student")
	_, admin := c.registerAndLogin("adm", "adm@x.com", "Admin")

	resp := c.do(http.MethodPut, "/v1/users/"+studentID, student, map[string]string{"name": "x", "email": "x@x.com", "role": "Admin"})
	expectStatus(t, resp, http.StatusForbidden)

	resp = c.do(http.MethodPut, "/v1/users/"+studentID, admin, map[string]string{"name": "Stu", "email": "adm@x.com", "role": "Student"})
	expectStatus(t, resp, http.StatusConflict)

	resp = c.do(http.MethodPut, "/v1/users/"+studentID, admin, map[string]string{"name": "Stu", "email": "stu@x.com", "role": "Instructor"})
	expectStatus(t, resp, http.StatusOK)
	if u := decode[auth.User](t, resp); u.Role != auth.RoleInstructor {
		t.Fatalf("role not updated: %+v", u)
	}

	resp = c.do(http.MethodGet, "/v1/users/"+studentID, student, nil)
	expectStatus(t, resp, http.StatusOK)

	resp = c.do(http.MethodDelete, "/v1/users/"+studentID, admin, nil)
	expectStatus(t, resp, http.StatusNoContent)
	resp = c.do(http.MethodGet, "/v1/auth/me", student, nil)
	expectStatus(t, resp, http.StatusNotFound)
}

func TestPublicEndpoints(t *testing.T) {
	c := newTestAPI(t)
	for _, path := range []string{"/healthz", "/readyz", "/v1/info", "/metrics"} {
		resp := c.do(http.MethodGet, path, "", nil)
		expectStatus(t, resp, http.StatusOK)
		if resp.Header.Get("X-Request-ID") == "" {
			t.Fatalf("%s: missing request id", path)
		}
	}
	resp := c.do(http.MethodGet, "/nowhere", "", nil)
	expectStatus(t, resp, http.StatusNotFound)
}

func TestWrongMethodOnKnownPath(t *testing.T) {
	c := newTestAPI(t)

	resp := c.do(http.MethodPatch, "/v1/courses", "", map[string]string{"title": "x"})
	expectStatus(t, resp, http.StatusMethodNotAllowed)
	if got := resp.Header.Get("Allow"); got != "GET, POST" {
		t.Fatalf("Allow = %q", got)
	}
	body := decode[errorBody](t, resp)
	if body.Error != "method not allowed" || body.RequestID == "" {
		t.Fatalf("unexpected body: %+v", body)
	}

	resp = c.do(http.MethodPost, "/v1/courses/"+ids.New(), "", nil)
	expectStatus(t, resp, http.StatusMethodNotAllowed)
	if got := resp.Header.Get("Allow"); got != "GET, PUT, DELETE" {
		t.Fatalf("Allow = %q", got)
	}

	resp = c.do(http.MethodPatch, "/v1/nowhere", "", nil)
	expectStatus(t, resp, http.StatusNotFound)
}

func TestNewRejectsRouteWithoutRule(t *testing.T) {
	tokens, _ := auth.NewTokenService(testSecret, "i", "a", time.Hour)
	store, err := lite.Open("file:policy_gap?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer store.Close()
	authSvc, _ := auth.NewService(store, tokens)
	acad, _ := academics.NewService(store)

	partial := auth.NewPolicy(map[string]auth.Rule{"GET /healthz": auth.Public()})
	if _, err := New(authSvc, acad, store, Options{Policy: partial}); err == nil {
		t.Fatal("expected error for routes without access rules")
	}
}

func TestAccessPolicyCoversEveryOperation(t *testing.T) {
	ops := AccessPolicy().Operations()
	if len(ops) != 26 {
		t.Fatalf("expected 26 operations, got %d: %v", len(ops), ops)
	}
}
