package schedule

import "fmt"

// Tab is the display mode.
type Tab string

const (
	TabAll  Tab = "all"
	TabMine Tab = "mine"
)

// ParseTab accepts "all", "mine" and the legacy "my".
func ParseTab(s string) (Tab, error) {
	switch s {
	case "", string(TabAll):
		return TabAll, nil
	case string(TabMine), "my":
		return TabMine, nil
	}
	return "", fmt.Errorf("unknown tab %q", s)
}

// Filter is the complete user filter selection. It is a value: every
// With* method returns a new Filter and leaves the receiver unchanged.
type Filter struct {
	tab    Tab
	day    int
	hasDay bool
	slot   string
}

// NewFilter returns the initial state: all days, no slot, the "all" tab.
func NewFilter() Filter {
	return Filter{tab: TabAll}
}

// FilterFor builds a Filter directly. day < 0 selects all days; slot is
// dropped when no day is selected.
func FilterFor(tab Tab, day int, slot string) Filter {
	f := Filter{tab: tab}
	if f.tab == "" {
		f.tab = TabAll
	}
	if day >= 0 {
		f.day = day
		f.hasDay = true
		f.slot = slot
	}
	return f
}

func (f Filter) Tab() Tab { return f.tab }

// Day returns the selected day index and whether one is selected.
func (f Filter) Day() (int, bool) { return f.day, f.hasDay }

// Slot returns the selected slot label, "" if none.
func (f Filter) Slot() string { return f.slot }

// WithTab switches the display mode; day and slot are kept.
func (f Filter) WithTab(t Tab) Filter {
	f.tab = t
	return f
}

// WithDay selects day idx, or clears the day when idx is already selected.
// The slot is reset either way.
func (f Filter) WithDay(idx int) Filter {
	if f.hasDay && f.day == idx {
		f.hasDay = false
		f.day = 0
	} else {
		f.hasDay = true
		f.day = idx
	}
	f.slot = ""
	return f
}

// WithSlot selects slot, or clears it when it is already selected. Without
// a selected day the filter is returned unchanged.
func (f Filter) WithSlot(slot string) Filter {
	if !f.hasDay {
		return f
	}
	if f.slot == slot {
		f.slot = ""
	} else {
		f.slot = slot
	}
	return f
}
