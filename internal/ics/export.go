// Package ics renders a personal program as an iCalendar feed.
package ics

import (
	"fmt"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	appLog "confprog/internal/log"
	"confprog/internal/schedule"
)

const productID = "-//confprog//personal program//DE"

// pointDuration is the assumed length of a session given only a start time.
const pointDuration = time.Hour

// Options controls calendar metadata.
type Options struct {
	Name     string
	Timezone string
	Now      time.Time
}

// Export turns the groups of a "mine" view into a calendar. Items whose
// time cannot be parsed are skipped.
func Export(v schedule.View, opts Options) (*ical.Calendar, error) {
	loc := resolveLocationOrLocal(opts.Timezone)
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}

	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(productID)
	if opts.Name != "" {
		cal.SetXWRCalName(opts.Name)
	}
	if opts.Timezone != "" {
		cal.SetXWRTimezone(opts.Timezone)
	}

	skipped := 0
	for _, g := range v.Groups {
		date, err := time.ParseInLocation("2006-01-02", g.Date, loc)
		if err != nil {
			skipped += len(g.Items)
			continue
		}
		for _, it := range g.Items {
			start, end, ok := itemBounds(date, it.Session.Time)
			if !ok {
				skipped++
				continue
			}

			ev := cal.AddEvent(it.BookmarkID + "@confprog")
			ev.SetDtStampTime(now.UTC())
			ev.SetStartAt(start)
			ev.SetEndAt(end)
			ev.SetSummary(summary(it))
			if it.Session.Location != "" {
				ev.SetLocation(it.Session.Location)
			}
			if desc := description(it); desc != "" {
				ev.SetDescription(desc)
			}
			if it.Session.Type != "" {
				ev.SetProperty(ical.ComponentPropertyCategories, it.Session.Type)
			}
		}
	}
	if skipped > 0 {
		appLog.Debug("ics export skipped items without usable time", "count", skipped)
	}
	return cal, nil
}

// Serialize is Export followed by iCalendar text encoding.
func Serialize(v schedule.View, opts Options) ([]byte, error) {
	cal, err := Export(v, opts)
	if err != nil {
		return nil, err
	}
	return []byte(cal.Serialize()), nil
}

func itemBounds(date time.Time, sessionTime string) (time.Time, time.Time, bool) {
	r, ok := schedule.ParseSessionTime(sessionTime)
	if !ok {
		return time.Time{}, time.Time{}, false
	}
	// Wall-clock construction keeps the local time right on DST change days.
	start := atMinute(date, r.Start)
	end := atMinute(date, r.End)
	if !end.After(start) {
		end = start.Add(pointDuration)
	}
	return start, end, true
}

func summary(it schedule.Item) string {
	if it.Presentation != nil && it.Presentation.Title != "" {
		return it.Presentation.Title
	}
	return it.Session.Title
}

func description(it schedule.Item) string {
	var b strings.Builder
	line := func(format string, args ...any) {
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, format, args...)
	}

	if it.Presentation != nil {
		line("%s: %s", it.Session.Type, it.Session.Title)
		if names := it.Presentation.AuthorNames(); len(names) > 0 {
			line("%s", strings.Join(names, ", "))
		}
		if it.Presentation.Abstract != "" {
			line("%s", it.Presentation.Abstract)
		}
		return b.String()
	}

	if it.Session.Chair != "" {
		line("Chair: %s", it.Session.Chair)
	}
	if len(it.Session.Authors) > 0 {
		names := make([]string, 0, len(it.Session.Authors))
		for _, a := range it.Session.Authors {
			names = append(names, a.Name)
		}
		line("%s", strings.Join(names, ", "))
	}
	if it.Session.Abstract != "" {
		line("%s", it.Session.Abstract)
	}
	return b.String()
}

// resolveLocationOrLocal loads tz, falling back to time.Local.
func resolveLocationOrLocal(tz string) *time.Location {
	if tz == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		appLog.Error("invalid timezone; using local", err, "tz", tz)
		return time.Local
	}
	return loc
}

func atMinute(date time.Time, minute int) time.Time {
	return time.Date(date.Year(), date.Month(), date.Day(), minute/60, minute%60, 0, 0, date.Location())
}
