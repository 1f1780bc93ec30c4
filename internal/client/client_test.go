package client

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"confprog/internal/bookmark"
)

type memTokens struct{ tok string }

func (m *memTokens) SessionToken() (string, error)  { return m.tok, nil }
func (m *memTokens) SetSessionToken(t string) error { m.tok = t; return nil }

func TestNewRejectsRelativeURL(t *testing.T) {
	_, err := New("/api")
	assert.Error(t, err)
}

func TestLoginCapturesCookieAndSendsItBack(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/login", func(w http.ResponseWriter, r *http.Request) {
		var in credentials
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		assert.Equal(t, "anna", in.Username)
		http.SetCookie(w, &http.Cookie{Name: DefaultCookieName, Value: "tok-1", Path: "/"})
		_, _ = io.WriteString(w, `{"message":"Login erfolgreich.","username":"anna","saved_sessions":["s1"],"saved_posters":null,"saved_talks":["t1"]}`)
	})
	mux.HandleFunc("/api/me", func(w http.ResponseWriter, r *http.Request) {
		ck, err := r.Cookie(DefaultCookieName)
		if err != nil || ck.Value != "tok-1" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = io.WriteString(w, `{"error":"Nicht eingeloggt."}`)
			return
		}
		_, _ = io.WriteString(w, `{"username":"anna","saved_sessions":[],"saved_posters":["p1"],"saved_talks":[]}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	tokens := &memTokens{}
	c, err := New(srv.URL, WithTokenStore(tokens))
	require.NoError(t, err)

	snap, err := c.Login(context.Background(), "anna", "password1")
	require.NoError(t, err)
	assert.Equal(t, bookmark.Snapshot{
		Sessions: []string{"s1"},
		Posters:  []string{},
		Talks:    []string{"t1"},
	}, snap)
	assert.Equal(t, "tok-1", tokens.tok)

	// A second client picks the token up from the store.
	again, err := New(srv.URL, WithTokenStore(tokens))
	require.NoError(t, err)
	acct, err := again.Me(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "anna", acct.Username)
	assert.Equal(t, []string{"p1"}, acct.Saved.Posters)
}

func TestAPIErrorCarriesServerMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"error":"Ungültige Anmeldedaten."}`)
	}))
	defer srv.Close()

	c, err := New(srv.URL)
	require.NoError(t, err)

	_, err = c.Login(context.Background(), "anna", "nope")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnauthorized)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
	assert.Equal(t, "Ungültige Anmeldedaten.", apiErr.UserMessage())
}

func TestNonJSONErrorBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	defer srv.Close()

	c, err := New(srv.URL)
	require.NoError(t, err)

	err = c.Register(context.Background(), "anna", "password1")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadGateway, apiErr.Status)
	assert.Empty(t, apiErr.Message)
	assert.NotErrorIs(t, err, ErrUnauthorized)
}

func TestSaveProgramSendsEmptyListsNotNull(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/save_program", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = io.WriteString(w, `{"message":"Programm gespeichert."}`)
	}))
	defer srv.Close()

	c, err := New(srv.URL)
	require.NoError(t, err)
	require.NoError(t, c.SaveProgram(context.Background(), bookmark.Snapshot{Talks: []string{"t1"}}))

	assert.Equal(t, []any{}, got["sessions"])
	assert.Equal(t, []any{}, got["posters"])
	assert.Equal(t, []any{"t1"}, got["talks"])
}

func TestLogoutClearsTokenEvenOnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	tokens := &memTokens{tok: "stale"}
	c, err := New(srv.URL, WithTokenStore(tokens))
	require.NoError(t, err)

	assert.Error(t, c.Logout(context.Background()))
	assert.Empty(t, tokens.tok)
}

func TestDeletedCookieClearsToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: DefaultCookieName, Value: "", Path: "/", MaxAge: -1})
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"error":"Benutzer nicht gefunden."}`)
	}))
	defer srv.Close()

	tokens := &memTokens{tok: "tok-1"}
	c, err := New(srv.URL, WithTokenStore(tokens))
	require.NoError(t, err)

	_, err = c.Me(context.Background())
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.Empty(t, tokens.tok)
}

func TestFilters(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"time_slots":{"2026-02-25":["9:00–10:30"]},"exact_match_days":["2026-02-24"],"talk_types":["Vortragssession"],"poster_types":["Poster"],"timezone":"Europe/Berlin"}`)
	}))
	defer srv.Close()

	c, err := New(srv.URL + "/")
	require.NoError(t, err)
	f, err := c.Filters(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"2026-02-24"}, f.ExactMatchDays)
	assert.Equal(t, "Europe/Berlin", f.Timezone)
	assert.Equal(t, []string{"9:00–10:30"}, f.TimeSlots["2026-02-25"])
}
