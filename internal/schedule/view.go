package schedule

import (
	"sort"

	"confprog/internal/bookmark"
	"confprog/internal/model"
)

// Bookmarks answers membership questions for the three bookmark sets.
// *bookmark.Store and bookmark.Lookup both satisfy it.
type Bookmarks interface {
	IsSaved(kind bookmark.Kind, id string) bool
}

// Types names the session types whose presentations are bookmarked one by one.
type Types struct {
	Talk   []string
	Poster []string
}

// DefaultTypes matches the DHD program vocabulary.
func DefaultTypes() Types {
	return Types{
		Talk:   []string{"Vortragssession", "Doctoral Consortium"},
		Poster: []string{"Poster Session"},
	}
}

// PresentationKind reports the bookmark kind used for presentations of a
// session type, and false when presentations are not individually addressable.
func (t Types) PresentationKind(sessionType string) (bookmark.Kind, bool) {
	for _, tt := range t.Talk {
		if tt == sessionType {
			return bookmark.KindTalk, true
		}
	}
	for _, pt := range t.Poster {
		if pt == sessionType {
			return bookmark.KindPoster, true
		}
	}
	return "", false
}

// PresentationEntry annotates one addressable presentation in the "all" view.
type PresentationEntry struct {
	Index int           `json:"index"`
	Kind  bookmark.Kind `json:"kind"`
	ID    string        `json:"id"`
	Saved bool          `json:"saved"`
}

// SessionEntry is one session in the "all" view.
type SessionEntry struct {
	Session       *model.Session      `json:"session"`
	ID            string              `json:"id"`
	Saved         bool                `json:"saved"`
	Presentations []PresentationEntry `json:"presentations,omitempty"`
}

// Item is one bookmarked entry in the "mine" view: a whole session, or a
// single talk or poster of a session.
type Item struct {
	Kind         bookmark.Kind       `json:"kind"`
	BookmarkID   string              `json:"bookmark_id"`
	Session      *model.Session      `json:"session"`
	Presentation *model.Presentation `json:"presentation,omitempty"`
	PresIndex    int                 `json:"pres_index"`
	SortTime     int                 `json:"sort_time"`
}

// Group holds the rendered entries of one day. Exactly one of Sessions
// (tab "all") or Items (tab "mine") is populated.
type Group struct {
	DayIndex int            `json:"day_index"`
	Date     string         `json:"date"`
	DayLabel string         `json:"day_label"`
	Sessions []SessionEntry `json:"sessions,omitempty"`
	Items    []Item         `json:"items,omitempty"`
}

// View is the projection of program x filter x bookmarks.
type View struct {
	Tab  Tab    `json:"tab"`
	Slot string `json:"slot,omitempty"`
	// DaysInScope counts the days considered, before filtering.
	DaysInScope int     `json:"days_in_scope"`
	Groups      []Group `json:"groups"`
}

// HasContent reports whether at least one group was produced.
func (v View) HasContent() bool { return len(v.Groups) > 0 }

// Empty-state texts.
const (
	MsgNoData       = "Fehler beim Laden der Daten."
	MsgNoMatches    = "Keine Programmpunkte gefunden."
	MsgEmptyProgram = "Dein Programm ist noch leer."
)

// EmptyMessage is the text shown in place of a view without content, or ""
// when there is content.
func (v View) EmptyMessage() string {
	if v.HasContent() {
		return ""
	}
	if v.Tab == TabMine {
		return MsgEmptyProgram
	}
	return MsgNoMatches
}

// Builder produces Views.
type Builder struct {
	matcher *Matcher
	types   Types
}

func NewBuilder(m *Matcher, t Types) *Builder {
	return &Builder{matcher: m, types: t}
}

// Matcher returns the slot matcher the builder filters with.
func (b *Builder) Matcher() *Matcher { return b.matcher }

// Types returns the addressable session types.
func (b *Builder) Types() Types { return b.types }

// Build projects p through f. saved may be nil for the "all" tab.
func (b *Builder) Build(p *model.Program, f Filter, saved Bookmarks) View {
	v := View{Tab: f.Tab(), Slot: f.Slot(), Groups: []Group{}}
	if p == nil {
		return v
	}

	for _, idx := range daysInScope(p, f) {
		v.DaysInScope++
		day := &p.Days[idx]

		g := Group{DayIndex: idx, Date: day.Date, DayLabel: day.DayLabel}
		if f.Tab() == TabMine {
			g.Items = b.mineItems(day, f.Slot(), saved)
			if len(g.Items) == 0 {
				continue
			}
		} else {
			g.Sessions = b.allSessions(day, f.Slot(), saved)
			if len(g.Sessions) == 0 {
				continue
			}
		}
		v.Groups = append(v.Groups, g)
	}
	return v
}

func daysInScope(p *model.Program, f Filter) []int {
	if idx, ok := f.Day(); ok {
		if idx < 0 || idx >= len(p.Days) {
			return nil
		}
		return []int{idx}
	}
	out := make([]int, len(p.Days))
	for i := range p.Days {
		out[i] = i
	}
	return out
}

func (b *Builder) allSessions(day *model.Day, slot string, saved Bookmarks) []SessionEntry {
	var out []SessionEntry
	for i := range day.Sessions {
		s := &day.Sessions[i]
		if !b.matcher.Matches(*s, slot, day.Date) {
			continue
		}
		e := SessionEntry{Session: s, ID: SessionID(*s, day.Date)}
		if saved != nil {
			e.Saved = saved.IsSaved(bookmark.KindSession, e.ID)
		}
		if kind, ok := b.types.PresentationKind(s.Type); ok {
			for pi := range s.Presentations {
				pe := PresentationEntry{Index: pi, Kind: kind, ID: PresentationID(*s, day.Date, kind, pi)}
				if saved != nil {
					pe.Saved = saved.IsSaved(kind, pe.ID)
				}
				e.Presentations = append(e.Presentations, pe)
			}
		}
		out = append(out, e)
	}
	return out
}

func (b *Builder) mineItems(day *model.Day, slot string, saved Bookmarks) []Item {
	if saved == nil {
		return nil
	}
	var items []Item
	for i := range day.Sessions {
		s := &day.Sessions[i]
		if !b.matcher.Matches(*s, slot, day.Date) {
			continue
		}
		start := StartMinutes(s.Time)

		kind, addressable := b.types.PresentationKind(s.Type)
		if addressable && len(s.Presentations) > 0 {
			for pi := range s.Presentations {
				id := PresentationID(*s, day.Date, kind, pi)
				if !saved.IsSaved(kind, id) {
					continue
				}
				items = append(items, Item{
					Kind:         kind,
					BookmarkID:   id,
					Session:      s,
					Presentation: &s.Presentations[pi],
					PresIndex:    pi,
					SortTime:     start,
				})
			}
			continue
		}

		id := SessionID(*s, day.Date)
		if saved.IsSaved(bookmark.KindSession, id) {
			items = append(items, Item{
				Kind:       bookmark.KindSession,
				BookmarkID: id,
				Session:    s,
				PresIndex:  -1,
				SortTime:   start,
			})
		}
	}

	sort.SliceStable(items, func(i, j int) bool {
		return items[i].SortTime < items[j].SortTime
	})
	return items
}

// SlotsFor returns the configured slot labels for the day at idx.
func SlotsFor(p *model.Program, slots map[string][]string, idx int) []string {
	if p == nil || idx < 0 || idx >= len(p.Days) {
		return nil
	}
	return slots[p.Days[idx].Date]
}
