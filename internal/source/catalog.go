// Package source loads the conference program document and keeps the last
// good copy in memory for the web layer.
package source

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	json "github.com/goccy/go-json"

	appLog "confprog/internal/log"
	"confprog/internal/model"
	"confprog/internal/people"
	"confprog/internal/schedule"
)

// ErrNoData is returned while no program document has been loaded yet.
var ErrNoData = errors.New("program data not available")

// Decode parses a program document. A document without a days array is rejected.
func Decode(body []byte) (*model.Program, error) {
	body = bytes.TrimPrefix(body, []byte("\xef\xbb\xbf"))
	var p model.Program
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("decode program: %w", err)
	}
	if p.Days == nil {
		return nil, errors.New("decode program: missing days")
	}
	return &p, nil
}

// Snapshot is one loaded program document. It is never mutated after load.
type Snapshot struct {
	Program  *model.Program
	Raw      []byte
	LoadedAt time.Time

	types  schedule.Types
	locale string

	peopleOnce sync.Once
	people     *people.Index
}

// People builds the person index on first use.
func (s *Snapshot) People() *people.Index {
	s.peopleOnce.Do(func() {
		s.people = people.Build(s.Program, s.types, s.locale)
	})
	return s.people
}

// Catalog owns the current Snapshot. A failed reload keeps the previous one.
type Catalog struct {
	fetcher *Fetcher
	src     string
	types   schedule.Types
	locale  string

	mu      sync.RWMutex
	current *Snapshot
	lastErr error

	onLoad func(*Snapshot)
}

// NewCatalog creates an empty catalog reading from src.
func NewCatalog(fetcher *Fetcher, src string, types schedule.Types, locale string) *Catalog {
	return &Catalog{
		fetcher: fetcher,
		src:     src,
		types:   types,
		locale:  locale,
	}
}

// OnLoad registers a callback run after every successful reload.
func (c *Catalog) OnLoad(fn func(*Snapshot)) {
	c.mu.Lock()
	c.onLoad = fn
	c.mu.Unlock()
}

// Source returns the configured document location.
func (c *Catalog) Source() string { return c.src }

// Reload fetches and decodes the document and swaps it in on success.
func (c *Catalog) Reload(ctx context.Context) error {
	res, err := c.fetcher.Fetch(ctx, c.src)
	if err == nil {
		var p *model.Program
		p, err = Decode(res.Body)
		if err == nil {
			return c.install(p, res.Body)
		}
	}

	c.mu.Lock()
	c.lastErr = err
	hasData := c.current != nil
	c.mu.Unlock()

	if hasData {
		appLog.Error("program reload failed; keeping previous document", err)
	}
	return err
}

// Set installs an already-decoded program.
func (c *Catalog) Set(p *model.Program) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return c.install(p, raw)
}

func (c *Catalog) install(p *model.Program, raw []byte) error {
	snap := &Snapshot{
		Program:  p,
		Raw:      raw,
		LoadedAt: time.Now(),
		types:    c.types,
		locale:   c.locale,
	}

	c.mu.Lock()
	c.current = snap
	c.lastErr = nil
	onLoad := c.onLoad
	c.mu.Unlock()

	sessions := 0
	for _, d := range p.Days {
		sessions += len(d.Sessions)
	}
	appLog.Info("program loaded", "days", len(p.Days), "sessions", sessions)

	if onLoad != nil {
		onLoad(snap)
	}
	return nil
}

// Current returns the loaded snapshot or ErrNoData.
func (c *Catalog) Current() (*Snapshot, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.current == nil {
		if c.lastErr != nil {
			return nil, fmt.Errorf("%w: %v", ErrNoData, c.lastErr)
		}
		return nil, ErrNoData
	}
	return c.current, nil
}

// LastError is the error of the most recent failed reload, nil after a success.
func (c *Catalog) LastError() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastErr
}
