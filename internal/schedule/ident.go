package schedule

import (
	"strconv"
	"strings"
	"unicode"

	"confprog/internal/bookmark"
	"confprog/internal/model"
)

// idDelimiter joins the id parts and replaces whitespace runs.
const idDelimiter = "-"

// SessionID returns the organizer-assigned session_id when present. Otherwise
// it derives "<date>-<time>-<title>" with every whitespace run collapsed to the
// delimiter, lower-cased.
//
// Two sessions on the same day with identical time and title yield the same
// id; they are not disambiguated.
func SessionID(s model.Session, dayDate string) string {
	if s.SessionID != "" {
		return s.SessionID
	}
	raw := dayDate + idDelimiter + s.Time + idDelimiter + s.Title
	return strings.ToLower(collapseSpace(raw, idDelimiter))
}

// PresentationID extends the session id with the kind and 0-based index of a
// presentation: "<session-id>::talk-3" or "<session-id>::poster-0".
func PresentationID(s model.Session, dayDate string, kind bookmark.Kind, index int) string {
	return SessionID(s, dayDate) + "::" + string(kind) + "-" + strconv.Itoa(index)
}

func TalkID(s model.Session, dayDate string, index int) string {
	return PresentationID(s, dayDate, bookmark.KindTalk, index)
}

func PosterID(s model.Session, dayDate string, index int) string {
	return PresentationID(s, dayDate, bookmark.KindPoster, index)
}

// collapseSpace replaces each maximal run of Unicode whitespace with sep.
// Leading and trailing runs are replaced too, not trimmed.
func collapseSpace(s, sep string) string {
	var b strings.Builder
	b.Grow(len(s))
	inSpace := false
	for _, r := range s {
		if unicode.IsSpace(r) {
			if !inSpace {
				b.WriteString(sep)
				inSpace = true
			}
			continue
		}
		inSpace = false
		b.WriteRune(r)
	}
	return b.String()
}
