package model

// Program is the full conference schedule document as published by the organizers.
// It is loaded once and treated as immutable afterwards.
type Program struct {
	Days []Day `json:"days"`
}

// Day groups the sessions held on one conference date.
// Sessions are kept in display order, which is not necessarily time order.
type Day struct {
	Date     string    `json:"date"` // YYYY-MM-DD
	DayLabel string    `json:"day_label"`
	Sessions []Session `json:"sessions"`
}

// Author is a session-level contributor.
type Author struct {
	Name        string `json:"name"`
	Affiliation string `json:"affiliation,omitempty"`
}

// Session is a scheduled program block occupying one time slot on one day.
type Session struct {
	Time  string `json:"time"` // "9:00–10:30" or a single point "19:00"
	Title string `json:"title"`
	Type  string `json:"type"`

	// SessionID is organizer-assigned and stable when present.
	SessionID string `json:"session_id,omitempty"`

	Location      string         `json:"location,omitempty"`
	Chair         string         `json:"chair,omitempty"`
	Authors       []Author       `json:"authors,omitempty"`
	Abstract      string         `json:"abstract,omitempty"`
	Presentations []Presentation `json:"presentations,omitempty"`
}

// Presentation is an individually addressable talk or poster inside a session,
// addressed by its 0-based position in Session.Presentations.
type Presentation struct {
	Title       string   `json:"title"`
	Author      string   `json:"author,omitempty"`
	Authors     []string `json:"authors,omitempty"`
	Affiliation string   `json:"affiliation,omitempty"`
	Abstract    string   `json:"abstract,omitempty"`
}

// HasAbstract reports whether the session or any of its presentations
// carries an abstract.
func (s Session) HasAbstract() bool {
	if s.Abstract != "" {
		return true
	}
	for _, p := range s.Presentations {
		if p.Abstract != "" {
			return true
		}
	}
	return false
}

// AuthorNames returns the presentation's contributors, preferring the
// Authors list over the single Author field.
func (p Presentation) AuthorNames() []string {
	if len(p.Authors) > 0 {
		return p.Authors
	}
	if p.Author != "" {
		return []string{p.Author}
	}
	return nil
}
