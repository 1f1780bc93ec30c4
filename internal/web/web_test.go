package web

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"confprog/internal/accounts"
	"confprog/internal/auth"
	"confprog/internal/config"
	"confprog/internal/metrics"
	"confprog/internal/model"
	"confprog/internal/schedule"
	"confprog/internal/source"
)

var talkSession = model.Session{
	Time: "9:00–10:30", Title: "Vorträge 1", Type: "Vortragssession",
	Presentations: []model.Presentation{
		{Title: "Talk Zero", Author: "Anna Berg"},
		{Title: "Talk One", Author: "Carl Dorn"},
	},
}

var panelSession = model.Session{
	Time: "14:00–15:30", Title: "Panel", Type: "Panel",
	Authors: []model.Author{{Name: "Eva Frei"}},
}

func testProgram() *model.Program {
	return &model.Program{Days: []model.Day{
		{Date: "2026-02-24", DayLabel: "Dienstag", Sessions: []model.Session{
			{Time: "9:00–12:30", Title: "Workshop", Type: "Workshop"},
		}},
		{Date: "2026-02-25", DayLabel: "Mittwoch", Sessions: []model.Session{panelSession, talkSession}},
	}}
}

type testEnv struct {
	srv     *httptest.Server
	client  *http.Client
	catalog *source.Catalog
	metrics *metrics.Collector
}

func newEnv(t *testing.T, loaded bool) *testEnv {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Timezone = "UTC"

	db, err := accounts.Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	tokens, err := auth.NewIssuer("test-secret", time.Hour)
	require.NoError(t, err)

	catalog := source.NewCatalog(source.NewFetcher(t.TempDir()), "unused.json", schedule.DefaultTypes(), "de")
	if loaded {
		require.NoError(t, catalog.Set(testProgram()))
	}

	m := metrics.NewCollector("test")
	srv := httptest.NewServer(NewServer(cfg, catalog, db, tokens, m).Handler())
	t.Cleanup(srv.Close)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &testEnv{srv: srv, client: &http.Client{Jar: jar}, catalog: catalog, metrics: m}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) (int, map[string]any) {
	t.Helper()
	status, raw := e.raw(t, method, path, body)
	var out map[string]any
	if len(raw) > 0 && strings.HasPrefix(strings.TrimSpace(string(raw)), "{") {
		require.NoError(t, json.Unmarshal(raw, &out))
	}
	return status, out
}

func (e *testEnv) raw(t *testing.T, method, path string, body any) (int, []byte) {
	t.Helper()
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, e.srv.URL+path, r)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := e.client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, data
}

func creds(u, p string) map[string]string {
	return map[string]string{"username": u, "password": p}
}

func (e *testEnv) login(t *testing.T) {
	t.Helper()
	status, _ := e.do(t, http.MethodPost, "/api/register", creds("anna", "password1"))
	require.Equal(t, http.StatusCreated, status)
	status, _ = e.do(t, http.MethodPost, "/api/login", creds("anna", "password1"))
	require.Equal(t, http.StatusOK, status)
}

func TestHealth(t *testing.T) {
	e := newEnv(t, false)
	status, body := e.raw(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "OK", string(body))
}

func TestNoDataState(t *testing.T) {
	e := newEnv(t, false)

	for _, path := range []string{"/program.json", "/api/schedule", "/api/persons"} {
		status, body := e.do(t, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusServiceUnavailable, status, path)
		assert.Equal(t, schedule.MsgNoData, body["error"], path)
	}
}

func TestRegisterValidation(t *testing.T) {
	e := newEnv(t, true)

	cases := []struct {
		name   string
		body   any
		status int
		msg    string
	}{
		{"missing password", map[string]string{"username": "anna"}, http.StatusBadRequest, msgCredentialsRequired},
		{"blank username", creds("   ", "password1"), http.StatusBadRequest, msgCredentialsRequired},
		{"short username", creds("an", "password1"), http.StatusBadRequest, msgUsernameLength},
		{"long username", creds(strings.Repeat("a", 31), "password1"), http.StatusBadRequest, msgUsernameLength},
		{"short password", creds("anna", "short"), http.StatusBadRequest, msgPasswordLength},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, body := e.do(t, http.MethodPost, "/api/register", tc.body)
			assert.Equal(t, tc.status, status)
			assert.Equal(t, tc.msg, body["error"])
		})
	}
}

func TestRegisterAndDuplicate(t *testing.T) {
	e := newEnv(t, true)

	status, body := e.do(t, http.MethodPost, "/api/register", creds(" anna ", "password1"))
	assert.Equal(t, http.StatusCreated, status)
	assert.Equal(t, msgRegistered, body["message"])

	status, body = e.do(t, http.MethodPost, "/api/register", creds("anna", "password2"))
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, msgUsernameTaken, body["error"])
}

func TestLoginFailure(t *testing.T) {
	e := newEnv(t, true)
	status, body := e.do(t, http.MethodPost, "/api/login", creds("ghost", "password1"))
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, msgInvalidCredentials, body["error"])

	status, body = e.do(t, http.MethodGet, "/api/me", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, msgNotLoggedIn, body["error"])
}

func TestSessionLifecycle(t *testing.T) {
	e := newEnv(t, true)
	e.login(t)

	status, body := e.do(t, http.MethodGet, "/api/me", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "anna", body["username"])
	assert.Equal(t, []any{}, body["saved_sessions"])

	talkID := schedule.TalkID(talkSession, "2026-02-25", 1)
	panelID := schedule.SessionID(panelSession, "2026-02-25")
	status, body = e.do(t, http.MethodPost, "/api/save_program", map[string]any{
		"sessions": []string{panelID},
		"talks":    []string{talkID},
	})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, msgProgramSaved, body["message"])

	status, body = e.do(t, http.MethodGet, "/api/me", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, []any{panelID}, body["saved_sessions"])
	assert.Equal(t, []any{}, body["saved_posters"])
	assert.Equal(t, []any{talkID}, body["saved_talks"])

	status, body = e.do(t, http.MethodPost, "/api/logout", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, msgLoggedOut, body["message"])

	status, _ = e.do(t, http.MethodGet, "/api/me", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestSaveProgramRequiresSessions(t *testing.T) {
	e := newEnv(t, true)
	e.login(t)

	status, body := e.do(t, http.MethodPost, "/api/save_program", map[string]any{"talks": []string{}})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, msgInvalidData, body["error"])
}

func TestSaveProgramRequiresLogin(t *testing.T) {
	e := newEnv(t, true)
	status, body := e.do(t, http.MethodPost, "/api/save_program", map[string]any{"sessions": []string{}})
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, msgNotLoggedIn, body["error"])
}

type scheduleBody struct {
	Tab    string   `json:"tab"`
	Slots  []string `json:"slots"`
	Msg    string   `json:"message"`
	Groups []struct {
		Date     string `json:"date"`
		Sessions []struct {
			ID      string `json:"id"`
			Saved   bool   `json:"saved"`
			Session struct {
				Title string `json:"title"`
			} `json:"session"`
		} `json:"sessions"`
		Items []struct {
			Kind       string `json:"kind"`
			BookmarkID string `json:"bookmark_id"`
		} `json:"items"`
	} `json:"groups"`
}

func (e *testEnv) schedule(t *testing.T, query string) (int, scheduleBody) {
	t.Helper()
	status, raw := e.raw(t, http.MethodGet, "/api/schedule"+query, nil)
	var out scheduleBody
	if status == http.StatusOK {
		require.NoError(t, json.Unmarshal(raw, &out))
	}
	return status, out
}

func TestScheduleAllTab(t *testing.T) {
	e := newEnv(t, true)

	status, v := e.schedule(t, "?day=1&slot="+url.QueryEscape("9:00–10:30"))
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "all", v.Tab)
	assert.Equal(t, config.DefaultTimeSlots()["2026-02-25"], v.Slots)
	require.Len(t, v.Groups, 1)
	require.Len(t, v.Groups[0].Sessions, 1)
	assert.Equal(t, "Vorträge 1", v.Groups[0].Sessions[0].Session.Title)
	assert.False(t, v.Groups[0].Sessions[0].Saved)

	status, v = e.schedule(t, "?day=1&slot=ab%2020:00")
	require.Equal(t, http.StatusOK, status)
	assert.Empty(t, v.Groups)
	assert.Equal(t, schedule.MsgNoMatches, v.Msg)

	status, _ = e.schedule(t, "?tab=bogus")
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestScheduleMineTab(t *testing.T) {
	e := newEnv(t, true)

	status, _ := e.schedule(t, "?tab=mine")
	assert.Equal(t, http.StatusUnauthorized, status)

	e.login(t)
	status, v := e.schedule(t, "?tab=mine")
	require.Equal(t, http.StatusOK, status)
	assert.Empty(t, v.Groups)
	assert.Equal(t, schedule.MsgEmptyProgram, v.Msg)

	talkID := schedule.TalkID(talkSession, "2026-02-25", 0)
	panelID := schedule.SessionID(panelSession, "2026-02-25")
	status, _ = e.do(t, http.MethodPost, "/api/save_program", map[string]any{
		"sessions": []string{panelID},
		"talks":    []string{talkID},
	})
	require.Equal(t, http.StatusOK, status)

	status, v = e.schedule(t, "?tab=mine")
	require.Equal(t, http.StatusOK, status)
	require.Len(t, v.Groups, 1)
	require.Len(t, v.Groups[0].Items, 2)
	assert.Equal(t, talkID, v.Groups[0].Items[0].BookmarkID, "sorted by start time")
	assert.Equal(t, panelID, v.Groups[0].Items[1].BookmarkID)
	assert.Empty(t, v.Msg)
}

func TestFiltersEndpoint(t *testing.T) {
	e := newEnv(t, false)
	status, body := e.do(t, http.MethodGet, "/api/filters", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, []any{"2026-02-24"}, body["exact_match_days"])
	assert.Equal(t, "UTC", body["timezone"])
	assert.Contains(t, body["time_slots"], "2026-02-25")
}

func TestPersons(t *testing.T) {
	e := newEnv(t, true)

	status, body := e.do(t, http.MethodGet, "/api/persons?q=berg", nil)
	require.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 3, body["total"])
	persons, ok := body["persons"].([]any)
	require.True(t, ok)
	require.Len(t, persons, 1)
	assert.Equal(t, "Anna Berg", persons[0].(map[string]any)["name"])

	status, body = e.do(t, http.MethodGet, "/api/persons?q=nobody", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, []any{}, body["persons"])
}

func TestProgramJSON(t *testing.T) {
	e := newEnv(t, true)
	status, raw := e.raw(t, http.MethodGet, "/program.json", nil)
	require.Equal(t, http.StatusOK, status)

	p, err := source.Decode(raw)
	require.NoError(t, err)
	assert.Len(t, p.Days, 2)
}

func TestCalendarExport(t *testing.T) {
	e := newEnv(t, true)

	status, _ := e.raw(t, http.MethodGet, "/api/program.ics", nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	e.login(t)
	panelID := schedule.SessionID(panelSession, "2026-02-25")
	status, _ = e.do(t, http.MethodPost, "/api/save_program", map[string]any{"sessions": []string{panelID}})
	require.Equal(t, http.StatusOK, status)

	status, raw := e.raw(t, http.MethodGet, "/api/program.ics", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(raw), "BEGIN:VCALENDAR")
	assert.Contains(t, string(raw), "SUMMARY:Panel")
	assert.Contains(t, string(raw), "X-WR-CALNAME:Mein Programm")
}

func TestUnknownAPIRoute(t *testing.T) {
	e := newEnv(t, true)
	status, body := e.do(t, http.MethodGet, "/api/nope", nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "Nicht gefunden.", body["error"])
}

func TestStaticIndex(t *testing.T) {
	e := newEnv(t, false)
	status, raw := e.raw(t, http.MethodGet, "/", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(raw), "<html")
}

func TestStaticIndexKeepsLocalBookmarks(t *testing.T) {
	e := newEnv(t, false)
	status, raw := e.raw(t, http.MethodGet, "/", nil)
	require.Equal(t, http.StatusOK, status)
	page := string(raw)

	for _, key := range []string{"dhd2026_saved_sessions", "dhd2026_saved_posters", "dhd2026_saved_talks"} {
		assert.Contains(t, page, key)
	}
	assert.Contains(t, page, "localStorage.setItem")
	assert.Contains(t, page, `id="sync-toast"`)
	assert.Contains(t, page, "Synchronisation fehlgeschlagen")
	assert.Contains(t, page, "Ein Fehler ist aufgetreten.")
	assert.NotContains(t, page, "An error occurred.")
}

func TestMetricsEndpoint(t *testing.T) {
	e := newEnv(t, true)
	e.login(t)

	status, raw := e.raw(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(raw), `test_logins_total{outcome="ok"} 1`)
	assert.Contains(t, string(raw), `test_registrations_total{outcome="ok"} 1`)
}
