package server_test

import (
	"bytes"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/taskmanager/internal/config"
	"github.com/sakif/taskmanager/internal/server"
)

// ============================================================
// HARNESS
// ============================================================

type testAPI struct {
	t   *testing.T
	srv *httptest.Server
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()

	cfg := &config.Config{
		Server:   config.ServerConfig{Port: 8080, LogLevel: "error"},
		Database: config.DatabaseConfig{Path: ":memory:"},
		Auth: config.AuthConfig{
			JWTSecret:  "test-secret-0123456789abcdef",
			BcryptCost: 4,
		},
		Mail: config.MailConfig{From: "noreply@example.com"},
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	s, err := server.New(cfg, logger)
	require.NoError(t, err)

	ts := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		ts.Close()
		_ = s.Close()
	})
	return &testAPI{t: t, srv: ts}
}

type response struct {
	Status int
	Body   []byte
	Header http.Header
}

func (r response) decode(t *testing.T, dst any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(r.Body, dst), "body: %s", r.Body)
}

func (a *testAPI) do(method, path, token string, body any) response {
	a.t.Helper()

	var reader io.Reader
	if body != nil {
		switch b := body.(type) {
		case string:
			reader = bytes.NewBufferString(b)
		default:
			data, err := json.Marshal(b)
			require.NoError(a.t, err)
			reader = bytes.NewReader(data)
		}
	}

	req, err := http.NewRequest(method, a.srv.URL+path, reader)
	require.NoError(a.t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return a.send(req)
}

func (a *testAPI) send(req *http.Request) response {
	a.t.Helper()

	res, err := a.srv.Client().Do(req)
	require.NoError(a.t, err)
	defer res.Body.Close()

	data, err := io.ReadAll(res.Body)
	require.NoError(a.t, err)
	return response{Status: res.StatusCode, Body: data, Header: res.Header}
}

type userJSON struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Age   int    `json:"age"`
}

type authJSON struct {
	User  userJSON `json:"user"`
	Token string   `json:"token"`
}

type taskJSON struct {
	ID          string `json:"id"`
	Description string `json:"description"`
	Completed   bool   `json:"completed"`
	Owner       string `json:"owner"`
}

const testPassword = "Str0ngSecret!"

func (a *testAPI) signup(email string) authJSON {
	a.t.Helper()
	res := a.do(http.MethodPost, "/users", "", map[string]any{
		"name":     "Test User",
		"email":    email,
		"password": testPassword,
		"age":      30,
	})
	require.Equal(a.t, http.StatusCreated, res.Status, "body: %s", res.Body)

	var out authJSON
	res.decode(a.t, &out)
	return out
}

func (a *testAPI) createTask(token, description string, completed bool) taskJSON {
	a.t.Helper()
	res := a.do(http.MethodPost, "/tasks", token, map[string]any{
		"description": description,
		"completed":   completed,
	})
	require.Equal(a.t, http.StatusCreated, res.Status, "body: %s", res.Body)

	var out taskJSON
	res.decode(a.t, &out)
	return out
}

// ============================================================
// ACCOUNTS AND SESSIONS
// ============================================================

func TestSignup_ResponseNeverContainsPassword(t *testing.T) {
	api := newTestAPI(t)

	res := api.do(http.MethodPost, "/users", "", map[string]any{
		"name": "Ann", "email": "  Ann@Example.com ", "password": testPassword, "age": 27,
	})
	require.Equal(t, http.StatusCreated, res.Status)
	assert.NotContains(t, string(res.Body), testPassword)
	assert.NotContains(t, string(res.Body), "password")

	var out authJSON
	res.decode(t, &out)
	assert.Equal(t, "ann@example.com", out.User.Email)
	assert.NotEmpty(t, out.Token)

	me := api.do(http.MethodGet, "/users/me", out.Token, nil)
	require.Equal(t, http.StatusOK, me.Status)
	assert.NotContains(t, string(me.Body), "password")
}

func TestSignup_DuplicateEmail(t *testing.T) {
	api := newTestAPI(t)
	api.signup("dup@example.com")

	res := api.do(http.MethodPost, "/users", "", map[string]any{
		"name": "Other", "email": "DUP@example.com", "password": testPassword,
	})
	assert.Equal(t, http.StatusBadRequest, res.Status)
}

func TestSignup_RejectsWeakPassword(t *testing.T) {
	api := newTestAPI(t)

	for _, pw := range []string{"short", "mypassword123"} {
		res := api.do(http.MethodPost, "/users", "", map[string]any{
			"name": "Ann", "email": "ann@example.com", "password": pw,
		})
		assert.Equal(t, http.StatusBadRequest, res.Status, "password %q", pw)
	}
}

func TestLogin_IssuesDistinctTokens(t *testing.T) {
	api := newTestAPI(t)
	signup := api.signup("multi@example.com")

	res := api.do(http.MethodPost, "/users/login", "", map[string]string{
		"email": "multi@example.com", "password": testPassword,
	})
	require.Equal(t, http.StatusOK, res.Status)

	var login authJSON
	res.decode(t, &login)
	assert.NotEqual(t, signup.Token, login.Token)

	// Both sessions are live.
	assert.Equal(t, http.StatusOK, api.do(http.MethodGet, "/users/me", signup.Token, nil).Status)
	assert.Equal(t, http.StatusOK, api.do(http.MethodGet, "/users/me", login.Token, nil).Status)
}

func TestLogin_FailuresLookTheSame(t *testing.T) {
	api := newTestAPI(t)
	api.signup("known@example.com")

	wrongPassword := api.do(http.MethodPost, "/users/login", "", map[string]string{
		"email": "known@example.com", "password": "Wr0ngSecret!",
	})
	unknownEmail := api.do(http.MethodPost, "/users/login", "", map[string]string{
		"email": "nobody@example.com", "password": testPassword,
	})

	assert.Equal(t, http.StatusBadRequest, wrongPassword.Status)
	assert.Equal(t, wrongPassword.Status, unknownEmail.Status)
	assert.JSONEq(t, string(wrongPassword.Body), string(unknownEmail.Body))
}

func TestLogout_RevokesOnlyThatSession(t *testing.T) {
	api := newTestAPI(t)
	first := api.signup("logout@example.com")

	var second authJSON
	api.do(http.MethodPost, "/users/login", "", map[string]string{
		"email": "logout@example.com", "password": testPassword,
	}).decode(t, &second)

	require.Equal(t, http.StatusOK, api.do(http.MethodPost, "/users/logout", first.Token, nil).Status)

	assert.Equal(t, http.StatusUnauthorized, api.do(http.MethodGet, "/users/me", first.Token, nil).Status)
	assert.Equal(t, http.StatusOK, api.do(http.MethodGet, "/users/me", second.Token, nil).Status)
}

func TestLogoutAll_RevokesEverySession(t *testing.T) {
	api := newTestAPI(t)
	first := api.signup("all@example.com")

	var second authJSON
	api.do(http.MethodPost, "/users/login", "", map[string]string{
		"email": "all@example.com", "password": testPassword,
	}).decode(t, &second)

	require.Equal(t, http.StatusOK, api.do(http.MethodPost, "/users/logoutAll", second.Token, nil).Status)

	assert.Equal(t, http.StatusUnauthorized, api.do(http.MethodGet, "/users/me", first.Token, nil).Status)
	assert.Equal(t, http.StatusUnauthorized, api.do(http.MethodGet, "/users/me", second.Token, nil).Status)
}

func TestUnauthorized_Body(t *testing.T) {
	api := newTestAPI(t)

	for _, token := range []string{"", "garbage", "eyJhbGciOiJIUzI1NiJ9.e30.bad"} {
		res := api.do(http.MethodGet, "/tasks", token, nil)
		assert.Equal(t, http.StatusUnauthorized, res.Status, "token %q", token)
		assert.JSONEq(t, `{"error":"unauthorized","message":"please authenticate"}`, string(res.Body))
	}
}

// ============================================================
// PROFILE
// ============================================================

func TestUpdateMe(t *testing.T) {
	api := newTestAPI(t)
	a := api.signup("me@example.com")

	res := api.do(http.MethodPatch, "/users/me", a.Token, map[string]any{"name": "Renamed", "age": 31})
	require.Equal(t, http.StatusOK, res.Status, "body: %s", res.Body)

	var u userJSON
	res.decode(t, &u)
	assert.Equal(t, "Renamed", u.Name)
	assert.Equal(t, 31, u.Age)
}

func TestUpdateMe_UnknownFieldChangesNothing(t *testing.T) {
	api := newTestAPI(t)
	a := api.signup("strict@example.com")

	res := api.do(http.MethodPatch, "/users/me", a.Token, `{"name":"Hacker","id":"other"}`)
	assert.Equal(t, http.StatusBadRequest, res.Status)
	assert.Contains(t, string(res.Body), "invalid update")

	var u userJSON
	api.do(http.MethodGet, "/users/me", a.Token, nil).decode(t, &u)
	assert.Equal(t, "Test User", u.Name)
}

func TestUpdateMe_KeysMatchExactly(t *testing.T) {
	api := newTestAPI(t)
	a := api.signup("case@example.com")

	for _, body := range []string{`{"NAME":"Mallory","Age":7}`, `{"name":null}`, `{"age":null}`} {
		res := api.do(http.MethodPatch, "/users/me", a.Token, body)
		assert.Equal(t, http.StatusBadRequest, res.Status, "body %s", body)
	}

	var u userJSON
	api.do(http.MethodGet, "/users/me", a.Token, nil).decode(t, &u)
	assert.Equal(t, "Test User", u.Name)
	assert.Equal(t, 30, u.Age)
}

func TestUpdateMe_NewPasswordWorksForLogin(t *testing.T) {
	api := newTestAPI(t)
	a := api.signup("pw@example.com")

	res := api.do(http.MethodPatch, "/users/me", a.Token, map[string]string{"password": "An0therSecret"})
	require.Equal(t, http.StatusOK, res.Status)

	oldLogin := api.do(http.MethodPost, "/users/login", "", map[string]string{
		"email": "pw@example.com", "password": testPassword,
	})
	newLogin := api.do(http.MethodPost, "/users/login", "", map[string]string{
		"email": "pw@example.com", "password": "An0therSecret",
	})
	assert.Equal(t, http.StatusBadRequest, oldLogin.Status)
	assert.Equal(t, http.StatusOK, newLogin.Status)
}

func TestDeleteMe_CascadesAndRevokes(t *testing.T) {
	api := newTestAPI(t)
	doomed := api.signup("doomed@example.com")
	other := api.signup("other@example.com")

	api.createTask(doomed.Token, "one", false)
	api.createTask(doomed.Token, "two", true)
	kept := api.createTask(other.Token, "survivor", false)

	res := api.do(http.MethodDelete, "/users/me", doomed.Token, nil)
	require.Equal(t, http.StatusOK, res.Status)

	var deleted userJSON
	res.decode(t, &deleted)
	assert.Equal(t, doomed.User.ID, deleted.ID)

	assert.Equal(t, http.StatusUnauthorized, api.do(http.MethodGet, "/tasks", doomed.Token, nil).Status)

	login := api.do(http.MethodPost, "/users/login", "", map[string]string{
		"email": "doomed@example.com", "password": testPassword,
	})
	assert.Equal(t, http.StatusBadRequest, login.Status)

	// The email is free again, and the new account starts with no tasks.
	again := api.signup("doomed@example.com")
	var tasks []taskJSON
	api.do(http.MethodGet, "/tasks", again.Token, nil).decode(t, &tasks)
	assert.Empty(t, tasks)

	var otherTasks []taskJSON
	api.do(http.MethodGet, "/tasks", other.Token, nil).decode(t, &otherTasks)
	require.Len(t, otherTasks, 1)
	assert.Equal(t, kept.ID, otherTasks[0].ID)
}

// ============================================================
// AVATAR
// ============================================================

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.Set(x, 0, color.RGBA{R: 255, A: 255})
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func (a *testAPI) uploadAvatar(token, filename string, content []byte) response {
	a.t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("upload", filename)
	require.NoError(a.t, err)
	_, err = fw.Write(content)
	require.NoError(a.t, err)
	require.NoError(a.t, mw.Close())

	req, err := http.NewRequest(http.MethodPost, a.srv.URL+"/users/me/avatar", &buf)
	require.NoError(a.t, err)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	return a.send(req)
}

func TestAvatar_Lifecycle(t *testing.T) {
	api := newTestAPI(t)
	a := api.signup("avatar@example.com")
	path := "/users/" + a.User.ID + "/avatar"

	assert.Equal(t, http.StatusNotFound, api.do(http.MethodGet, path, "", nil).Status)

	res := api.uploadAvatar(a.Token, "me.png", pngBytes(t, 40, 20))
	require.Equal(t, http.StatusOK, res.Status, "body: %s", res.Body)

	got := api.do(http.MethodGet, path, "", nil)
	require.Equal(t, http.StatusOK, got.Status)
	assert.Equal(t, "image/png", got.Header.Get("Content-Type"))

	img, err := png.Decode(bytes.NewReader(got.Body))
	require.NoError(t, err)
	assert.Equal(t, 250, img.Bounds().Dx())
	assert.Equal(t, 250, img.Bounds().Dy())

	require.Equal(t, http.StatusOK, api.do(http.MethodDelete, "/users/me/avatar", a.Token, nil).Status)
	assert.Equal(t, http.StatusNotFound, api.do(http.MethodGet, path, "", nil).Status)
}

func TestAvatar_RejectsBadUploads(t *testing.T) {
	api := newTestAPI(t)
	a := api.signup("bad-avatar@example.com")

	res := api.uploadAvatar(a.Token, "notes.pdf", pngBytes(t, 10, 10))
	assert.Equal(t, http.StatusBadRequest, res.Status)
	assert.Contains(t, string(res.Body), "please upload an image")

	res = api.uploadAvatar(a.Token, "fake.png", []byte("not an image"))
	assert.Equal(t, http.StatusBadRequest, res.Status)

	assert.Equal(t, http.StatusNotFound, api.do(http.MethodGet, "/users/"+a.User.ID+"/avatar", "", nil).Status)
}

// ============================================================
// TASKS
// ============================================================

func TestTasks_EmptyListIsArray(t *testing.T) {
	api := newTestAPI(t)
	a := api.signup("empty@example.com")

	res := api.do(http.MethodGet, "/tasks", a.Token, nil)
	require.Equal(t, http.StatusOK, res.Status)
	assert.JSONEq(t, `[]`, string(res.Body))
}

func TestTasks_OwnerIsAlwaysTheCaller(t *testing.T) {
	api := newTestAPI(t)
	a := api.signup("owner@example.com")
	b := api.signup("victim@example.com")

	res := api.do(http.MethodPost, "/tasks", a.Token, map[string]any{
		"description": "sneaky", "owner": b.User.ID,
	})
	require.Equal(t, http.StatusCreated, res.Status)

	var task taskJSON
	res.decode(t, &task)
	assert.Equal(t, a.User.ID, task.Owner)

	var bTasks []taskJSON
	api.do(http.MethodGet, "/tasks", b.Token, nil).decode(t, &bTasks)
	assert.Empty(t, bTasks)
}

func TestTasks_CrossUserAccessIsNotFound(t *testing.T) {
	api := newTestAPI(t)
	alice := api.signup("alice@example.com")
	mallory := api.signup("mallory@example.com")
	task := api.createTask(alice.Token, "private", false)

	path := "/tasks/" + task.ID
	assert.Equal(t, http.StatusNotFound, api.do(http.MethodGet, path, mallory.Token, nil).Status)
	assert.Equal(t, http.StatusNotFound, api.do(http.MethodPatch, path, mallory.Token, map[string]bool{"completed": true}).Status)
	assert.Equal(t, http.StatusNotFound, api.do(http.MethodDelete, path, mallory.Token, nil).Status)

	var got taskJSON
	res := api.do(http.MethodGet, path, alice.Token, nil)
	require.Equal(t, http.StatusOK, res.Status)
	res.decode(t, &got)
	assert.False(t, got.Completed)
}

func TestTasks_UpdateAndDelete(t *testing.T) {
	api := newTestAPI(t)
	a := api.signup("crud@example.com")
	task := api.createTask(a.Token, "draft", false)
	path := "/tasks/" + task.ID

	res := api.do(http.MethodPatch, path, a.Token, map[string]bool{"completed": true})
	require.Equal(t, http.StatusOK, res.Status)
	var updated taskJSON
	res.decode(t, &updated)
	assert.True(t, updated.Completed)
	assert.Equal(t, "draft", updated.Description)

	res = api.do(http.MethodPatch, path, a.Token, `{"completed":false,"owner":"x"}`)
	assert.Equal(t, http.StatusBadRequest, res.Status)
	assert.Contains(t, string(res.Body), "invalid update")

	res = api.do(http.MethodDelete, path, a.Token, nil)
	require.Equal(t, http.StatusOK, res.Status)
	var deleted taskJSON
	res.decode(t, &deleted)
	assert.Equal(t, task.ID, deleted.ID)
	assert.True(t, deleted.Completed, "the partial update above was rejected")

	assert.Equal(t, http.StatusNotFound, api.do(http.MethodGet, path, a.Token, nil).Status)
	assert.Equal(t, http.StatusNotFound, api.do(http.MethodDelete, path, a.Token, nil).Status)
}

func TestTasks_UpdateKeysMatchExactly(t *testing.T) {
	api := newTestAPI(t)
	a := api.signup("task-case@example.com")
	task := api.createTask(a.Token, "original", false)
	path := "/tasks/" + task.ID

	for _, body := range []string{
		`{"DESCRIPTION":"smuggled","Completed":true}`,
		`{"Description":"smuggled"}`,
		`{"description":null}`,
		`{"completed":null}`,
	} {
		res := api.do(http.MethodPatch, path, a.Token, body)
		assert.Equal(t, http.StatusBadRequest, res.Status, "body %s", body)
	}

	var got taskJSON
	api.do(http.MethodGet, path, a.Token, nil).decode(t, &got)
	assert.Equal(t, "original", got.Description)
	assert.False(t, got.Completed)
}

func TestTasks_ListQuery(t *testing.T) {
	api := newTestAPI(t)
	a := api.signup("list@example.com")

	api.createTask(a.Token, "b", false)
	api.createTask(a.Token, "a", true)
	api.createTask(a.Token, "c", true)

	list := func(query string) []string {
		t.Helper()
		res := api.do(http.MethodGet, "/tasks"+query, a.Token, nil)
		require.Equal(t, http.StatusOK, res.Status, "query %s", query)
		var tasks []taskJSON
		res.decode(t, &tasks)
		out := make([]string, 0, len(tasks))
		for _, task := range tasks {
			out = append(out, task.Description)
		}
		return out
	}

	assert.Equal(t, []string{"b", "a", "c"}, list(""))
	assert.Equal(t, []string{"a", "c"}, list("?completed=true"))
	assert.Equal(t, []string{"b"}, list("?completed=false"))
	assert.Equal(t, []string{"a", "b", "c"}, list("?sortBy=description"))
	assert.Equal(t, []string{"c", "b", "a"}, list("?sortBy=description_desc"))
	assert.Equal(t, []string{"b", "a"}, list("?limit=2"))
	assert.Equal(t, []string{"a", "c"}, list("?skip=1"))
	assert.Equal(t, []string{"b", "a", "c"}, list("?limit=abc&skip=xyz"))
	assert.Equal(t, []string{"b", "a", "c"}, list("?sortBy=nonsense"))
}

func TestHealthz(t *testing.T) {
	api := newTestAPI(t)

	res := api.do(http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, res.Status)
	assert.JSONEq(t, `{"status":"ok"}`, string(res.Body))
}
