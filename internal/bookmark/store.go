package bookmark

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Kind selects one of the three independent bookmark sets.
type Kind string

const (
	KindSession Kind = "session"
	KindTalk    Kind = "talk"
	KindPoster  Kind = "poster"
)

// ErrUnknownKind is returned for a Kind outside the three sets.
var ErrUnknownKind = errors.New("unknown bookmark kind")

// Kinds lists every bookmark set in persistence order.
var Kinds = []Kind{KindSession, KindPoster, KindTalk}

// ParseKind maps user input to a Kind.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindSession, KindTalk, KindPoster:
		return Kind(s), nil
	default:
		return "", fmt.Errorf("%w %q", ErrUnknownKind, s)
	}
}

// Persistence loads and saves one id list per Kind.
type Persistence interface {
	LoadIDs(kind Kind) ([]string, error)
	SaveIDs(kind Kind, ids []string) error
}

// Snapshot is the full state of all three sets. Its JSON shape is the
// save_program request body.
type Snapshot struct {
	Sessions []string `json:"sessions"`
	Posters  []string `json:"posters"`
	Talks    []string `json:"talks"`
}

// IDs returns the list held for kind.
func (s Snapshot) IDs(kind Kind) []string {
	switch kind {
	case KindSession:
		return s.Sessions
	case KindPoster:
		return s.Posters
	case KindTalk:
		return s.Talks
	}
	return nil
}

// Lookup indexes the snapshot for membership checks.
func (s Snapshot) Lookup() Lookup {
	l := Lookup{}
	for _, kind := range Kinds {
		set := make(map[string]struct{}, len(s.IDs(kind)))
		for _, id := range s.IDs(kind) {
			set[id] = struct{}{}
		}
		l[kind] = set
	}
	return l
}

// Lookup is a read-only membership index over the three sets.
type Lookup map[Kind]map[string]struct{}

func (l Lookup) IsSaved(kind Kind, id string) bool {
	_, ok := l[kind][id]
	return ok
}

// Store holds the three bookmark sets and writes each set through to its
// Persistence on every mutation.
type Store struct {
	mu   sync.RWMutex
	sets map[Kind]map[string]struct{}
	p    Persistence
}

// NewStore loads all three sets from p.
func NewStore(p Persistence) (*Store, error) {
	s := &Store{
		sets: make(map[Kind]map[string]struct{}, len(Kinds)),
		p:    p,
	}
	for _, kind := range Kinds {
		ids, err := p.LoadIDs(kind)
		if err != nil {
			return nil, fmt.Errorf("load %s bookmarks: %w", kind, err)
		}
		set := make(map[string]struct{}, len(ids))
		for _, id := range ids {
			set[id] = struct{}{}
		}
		s.sets[kind] = set
	}
	return s, nil
}

// Toggle flips membership of id in the kind set, persists that set, and
// reports whether id is saved afterwards. Other sets are not touched.
func (s *Store) Toggle(kind Kind, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	set, ok := s.sets[kind]
	if !ok {
		return false, fmt.Errorf("%w %q", ErrUnknownKind, kind)
	}
	_, saved := set[id]
	if saved {
		delete(set, id)
	} else {
		set[id] = struct{}{}
	}
	if err := s.p.SaveIDs(kind, sortedIDs(set)); err != nil {
		return !saved, fmt.Errorf("persist %s bookmarks: %w", kind, err)
	}
	return !saved, nil
}

func (s *Store) IsSaved(kind Kind, id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.sets[kind][id]
	return ok
}

// Count returns the size of the kind set.
func (s *Store) Count(kind Kind) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sets[kind])
}

// Snapshot copies the current state with ids sorted per set.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		Sessions: sortedIDs(s.sets[KindSession]),
		Posters:  sortedIDs(s.sets[KindPoster]),
		Talks:    sortedIDs(s.sets[KindTalk]),
	}
}

// Union adds every id of other into the local sets, persists all three and
// returns the merged snapshot. Nothing is ever removed.
func (s *Store) Union(other Snapshot) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, kind := range Kinds {
		set := s.sets[kind]
		for _, id := range other.IDs(kind) {
			set[id] = struct{}{}
		}
		if err := s.p.SaveIDs(kind, sortedIDs(set)); err != nil {
			return Snapshot{}, fmt.Errorf("persist %s bookmarks: %w", kind, err)
		}
	}
	return Snapshot{
		Sessions: sortedIDs(s.sets[KindSession]),
		Posters:  sortedIDs(s.sets[KindPoster]),
		Talks:    sortedIDs(s.sets[KindTalk]),
	}, nil
}

func sortedIDs(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
