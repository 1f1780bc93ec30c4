package web

import (
	"net/http"
	"strconv"
	"time"

	"confprog/internal/bookmark"
	"confprog/internal/ics"
	appLog "confprog/internal/log"
	"confprog/internal/people"
	"confprog/internal/schedule"
	"confprog/internal/source"
)

// snapshotOr503 returns the loaded program or writes the no-data state.
func (s *Server) snapshotOr503(w http.ResponseWriter) (*source.Snapshot, bool) {
	snap, err := s.catalog.Current()
	if err != nil {
		appLog.Debug("program requested but not loaded", "err", err)
		writeError(w, http.StatusServiceUnavailable, schedule.MsgNoData)
		return nil, false
	}
	return snap, true
}

func (s *Server) handleProgram(w http.ResponseWriter, _ *http.Request) {
	snap, ok := s.snapshotOr503(w)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Last-Modified", snap.LoadedAt.UTC().Format(http.TimeFormat))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(snap.Raw)
}

type filtersResponse struct {
	TimeSlots      map[string][]string `json:"time_slots"`
	ExactMatchDays []string            `json:"exact_match_days"`
	TalkTypes      []string            `json:"talk_types"`
	PosterTypes    []string            `json:"poster_types"`
	Timezone       string              `json:"timezone"`
}

func (s *Server) handleFilters(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, filtersResponse{
		TimeSlots:      s.cfg.Filters.TimeSlots,
		ExactMatchDays: s.cfg.Filters.ExactMatchDays,
		TalkTypes:      s.cfg.Types.Talk,
		PosterTypes:    s.cfg.Types.Poster,
		Timezone:       s.cfg.Timezone,
	})
}

type scheduleResponse struct {
	schedule.View
	// Slots are the slot labels offered for the selected day.
	Slots   []string `json:"slots"`
	Message string   `json:"message,omitempty"`
}

// parseFilter reads tab, day and slot from the query. A missing or
// non-numeric day selects all days.
func parseFilter(r *http.Request) (schedule.Filter, error) {
	q := r.URL.Query()
	tab, err := schedule.ParseTab(q.Get("tab"))
	if err != nil {
		return schedule.Filter{}, err
	}
	day := -1
	if v := q.Get("day"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			day = n
		}
	}
	return schedule.FilterFor(tab, day, q.Get("slot")), nil
}

func (s *Server) handleSchedule(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, msgInvalidData)
		return
	}

	var saved schedule.Bookmarks
	if f.Tab() == schedule.TabMine {
		lookup, ok := s.savedFor(w, r)
		if !ok {
			return
		}
		saved = lookup
	}

	snap, ok := s.snapshotOr503(w)
	if !ok {
		return
	}

	v := s.builder.Build(snap.Program, f, saved)
	resp := scheduleResponse{View: v, Slots: []string{}, Message: v.EmptyMessage()}
	if idx, ok := f.Day(); ok {
		if slots := schedule.SlotsFor(snap.Program, s.cfg.Filters.TimeSlots, idx); slots != nil {
			resp.Slots = slots
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// savedFor loads the logged-in account's bookmarks, writing 401 when there
// is no valid session.
func (s *Server) savedFor(w http.ResponseWriter, r *http.Request) (bookmark.Lookup, bool) {
	username := s.sessionUser(r)
	if username == "" {
		writeError(w, http.StatusUnauthorized, msgNotLoggedIn)
		return nil, false
	}
	u, err := s.accounts.Get(r.Context(), username)
	if err != nil {
		appLog.Debug("bookmarks unavailable for session", "user", username, "err", err)
		writeError(w, http.StatusUnauthorized, msgUserNotFound)
		return nil, false
	}
	return u.Saved.Lookup(), true
}

type personsResponse struct {
	Query   string          `json:"query"`
	Total   int             `json:"total"`
	Persons []people.Person `json:"persons"`
}

func (s *Server) handlePersons(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.snapshotOr503(w)
	if !ok {
		return
	}
	q := r.URL.Query().Get("q")
	ix := snap.People()
	found := ix.Lookup(q)
	if found == nil {
		found = []people.Person{}
	}
	writeJSON(w, http.StatusOK, personsResponse{Query: q, Total: ix.Len(), Persons: found})
}

// handleCalendar exports the account's saved program for calendar apps.
func (s *Server) handleCalendar(w http.ResponseWriter, r *http.Request) {
	lookup, ok := s.savedFor(w, r)
	if !ok {
		return
	}
	snap, ok := s.snapshotOr503(w)
	if !ok {
		return
	}

	v := s.builder.Build(snap.Program, schedule.FilterFor(schedule.TabMine, -1, ""), lookup)
	body, err := ics.Serialize(v, ics.Options{
		Name:     "Mein Programm",
		Timezone: s.cfg.Timezone,
		Now:      time.Now(),
	})
	if err != nil {
		appLog.Error("calendar export failed", err)
		writeError(w, http.StatusInternalServerError, msgInternal)
		return
	}

	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="program.ics"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}
