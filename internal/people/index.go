package people

import (
	"sort"
	"strings"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"confprog/internal/model"
	"confprog/internal/schedule"
)

// Reference points from a person to a session, or to one presentation of it.
type Reference struct {
	Title      string `json:"title"`
	DayLabel   string `json:"day_label"`
	Time       string `json:"time"`
	SessionID  string `json:"session_id,omitempty"`
	BookmarkID string `json:"bookmark_id"`
	Type       string `json:"type"`

	// Set only for presentation-scoped references.
	PresTitle string `json:"pres_title,omitempty"`
	PresIndex *int   `json:"pres_index,omitempty"`
}

// dedupKey identifies a reference for duplicate suppression.
func (r Reference) dedupKey() string {
	return r.DayLabel + "|" + r.Time + "|" + r.Title + "|" + r.PresTitle
}

// Person is one entry of the index.
type Person struct {
	Name        string      `json:"name"`
	Affiliation string      `json:"affiliation"`
	Sessions    []Reference `json:"sessions"`
}

// Index is the sorted person list built from one program document.
type Index struct {
	persons []Person
}

type entry struct {
	name         string
	affiliations []string
	seenAff      map[string]struct{}
	refs         []Reference
	seenRefs     map[string]struct{}
}

type builder struct {
	byKey map[string]*entry
	order []string
}

func (b *builder) add(name, affiliation string, ref Reference) {
	name = strings.TrimSpace(name)
	if name == "" {
		return
	}
	key := strings.ToLower(name)
	e, ok := b.byKey[key]
	if !ok {
		e = &entry{
			name:     name,
			seenAff:  map[string]struct{}{},
			seenRefs: map[string]struct{}{},
		}
		b.byKey[key] = e
		b.order = append(b.order, key)
	}
	if aff := strings.TrimSpace(affiliation); aff != "" {
		if _, dup := e.seenAff[aff]; !dup {
			e.seenAff[aff] = struct{}{}
			e.affiliations = append(e.affiliations, aff)
		}
	}
	rk := ref.dedupKey()
	if _, dup := e.seenRefs[rk]; dup {
		return
	}
	e.seenRefs[rk] = struct{}{}
	e.refs = append(e.refs, ref)
}

// Build indexes every session author, chair and presentation author of p.
// Presentations of types listed in types get presentation-scoped references;
// all others attach the plain session reference. Entries are sorted by
// surname, then full name, collated for locale (e.g. "de").
func Build(p *model.Program, types schedule.Types, locale string) *Index {
	b := &builder{byKey: map[string]*entry{}}
	if p != nil {
		for _, day := range p.Days {
			for _, s := range day.Sessions {
				addSession(b, day, s, types)
			}
		}
	}

	persons := make([]Person, 0, len(b.order))
	for _, key := range b.order {
		e := b.byKey[key]
		persons = append(persons, Person{
			Name:        e.name,
			Affiliation: strings.Join(e.affiliations, "; "),
			Sessions:    e.refs,
		})
	}

	col := collate.New(resolveTag(locale))
	sort.SliceStable(persons, func(i, j int) bool {
		if c := col.CompareString(surname(persons[i].Name), surname(persons[j].Name)); c != 0 {
			return c < 0
		}
		return col.CompareString(persons[i].Name, persons[j].Name) < 0
	})

	return &Index{persons: persons}
}

func addSession(b *builder, day model.Day, s model.Session, types schedule.Types) {
	sessionRef := Reference{
		Title:      s.Title,
		DayLabel:   day.DayLabel,
		Time:       s.Time,
		SessionID:  s.SessionID,
		BookmarkID: schedule.SessionID(s, day.Date),
		Type:       s.Type,
	}

	for _, a := range s.Authors {
		b.add(a.Name, a.Affiliation, sessionRef)
	}
	if s.Chair != "" {
		b.add(s.Chair, "", sessionRef)
	}

	kind, addressable := types.PresentationKind(s.Type)
	for i, pres := range s.Presentations {
		ref := sessionRef
		if addressable && pres.Title != "" {
			idx := i
			ref.PresTitle = pres.Title
			ref.PresIndex = &idx
			ref.BookmarkID = schedule.PresentationID(s, day.Date, kind, i)
		}
		for _, name := range pres.AuthorNames() {
			b.add(name, pres.Affiliation, ref)
		}
	}
}

func resolveTag(locale string) language.Tag {
	tag, err := language.Parse(locale)
	if err != nil {
		return language.Und
	}
	return tag
}

// surname is the last whitespace-delimited token of a display name.
func surname(name string) string {
	fields := strings.Fields(name)
	if len(fields) == 0 {
		return name
	}
	return fields[len(fields)-1]
}

// All returns the full sorted index.
func (ix *Index) All() []Person {
	return ix.persons
}

// Len returns the number of persons.
func (ix *Index) Len() int { return len(ix.persons) }

// Lookup filters by case-insensitive substring on the display name.
// An empty (or blank) query returns the full index.
func (ix *Index) Lookup(query string) []Person {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return ix.persons
	}
	out := make([]Person, 0)
	for _, p := range ix.persons {
		if strings.Contains(strings.ToLower(p.Name), q) {
			out = append(out, p)
		}
	}
	return out
}
