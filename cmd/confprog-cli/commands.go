package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"confprog/internal/bookmark"
	"confprog/internal/client"
	"confprog/internal/config"
	"confprog/internal/ics"
	"confprog/internal/model"
	"confprog/internal/people"
	"confprog/internal/schedule"
	"confprog/internal/syncer"
)

func (a *app) flagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(a.errOut)
	return fs
}

func (a *app) cmdRestore(ctx context.Context) error {
	if a.restore(ctx) {
		fmt.Fprintf(a.out, "logged in as %s\n", a.engine.User())
		return nil
	}
	fmt.Fprintln(a.out, "not logged in; bookmarks are kept locally")
	return nil
}

func (a *app) credentials(name string, args []string) (string, string, error) {
	fs := a.flagSet(name)
	user := fs.String("u", "", "Username")
	pass := fs.String("p", envOr("CONFPROG_PASSWORD", ""), "Password (or CONFPROG_PASSWORD)")
	if err := fs.Parse(args); err != nil {
		return "", "", err
	}
	return *user, *pass, nil
}

// printAuthError shows the inline message of a login or registration failure.
func (a *app) printAuthError(err error) error {
	var ae *syncer.AuthError
	if errors.As(err, &ae) {
		fmt.Fprintln(a.errOut, ae.Message)
		return errors.New("authentication failed")
	}
	return err
}

func (a *app) cmdLogin(ctx context.Context, args []string) error {
	user, pass, err := a.credentials("login", args)
	if err != nil {
		return err
	}
	task, err := a.engine.Login(ctx, user, pass)
	if err != nil {
		return a.printAuthError(err)
	}
	a.report(task)
	fmt.Fprintf(a.out, "logged in as %s (%d sessions, %d talks, %d posters saved)\n",
		user,
		a.store.Count(bookmark.KindSession),
		a.store.Count(bookmark.KindTalk),
		a.store.Count(bookmark.KindPoster),
	)
	return nil
}

func (a *app) cmdRegister(ctx context.Context, args []string) error {
	user, pass, err := a.credentials("register", args)
	if err != nil {
		return err
	}
	if err := a.engine.Register(ctx, user, pass); err != nil {
		return a.printAuthError(err)
	}
	fmt.Fprintln(a.out, "registered; log in with: confprog-cli login -u", user)
	return nil
}

func (a *app) cmdLogout(ctx context.Context) error {
	a.engine.Logout(ctx)
	fmt.Fprintln(a.out, "logged out; local bookmarks kept")
	return nil
}

func (a *app) cmdToggle(ctx context.Context, args []string) error {
	fs := a.flagSet("toggle")
	kindFlag := fs.String("kind", "session", "Bookmark kind: session, talk or poster")
	id := fs.String("id", "", "Bookmark id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	kind, err := bookmark.ParseKind(*kindFlag)
	if err != nil {
		return err
	}
	if *id == "" {
		return errors.New("toggle: -id is required")
	}

	a.restore(ctx)
	saved, task, err := a.engine.Toggle(ctx, kind, *id)
	if errors.Is(err, bookmark.ErrUnknownKind) {
		return err
	}
	if err != nil {
		fmt.Fprintln(a.errOut, "warning: could not write local state:", err)
	}
	a.report(task)

	state := "removed"
	if saved {
		state = "saved"
	}
	fmt.Fprintf(a.out, "%s %s %s\n", state, kind, *id)
	return nil
}

// loadProgram fetches the document and the server's filter settings. On
// failure the single no-data message is printed.
func (a *app) loadProgram(ctx context.Context) (*model.Program, client.Filters, error) {
	p, err := a.api.Program(ctx)
	if err != nil {
		fmt.Fprintln(a.out, schedule.MsgNoData)
		return nil, client.Filters{}, fmt.Errorf("load program: %w", err)
	}
	f, err := a.api.Filters(ctx)
	if err != nil {
		def := config.DefaultConfig()
		f = client.Filters{
			TimeSlots:      def.Filters.TimeSlots,
			ExactMatchDays: def.Filters.ExactMatchDays,
			TalkTypes:      def.Types.Talk,
			PosterTypes:    def.Types.Poster,
			Timezone:       def.Timezone,
		}
	}
	return p, f, nil
}

func builderFor(f client.Filters) *schedule.Builder {
	return schedule.NewBuilder(
		schedule.NewMatcher(f.ExactMatchDays),
		schedule.Types{Talk: f.TalkTypes, Poster: f.PosterTypes},
	)
}

func (a *app) cmdProgram(ctx context.Context, args []string) error {
	fs := a.flagSet("program")
	tabFlag := fs.String("tab", "all", "Tab: all or mine")
	day := fs.Int("day", -1, "Day index (0-based); -1 for all days")
	slot := fs.String("slot", "", "Time slot label, requires -day")
	if err := fs.Parse(args); err != nil {
		return err
	}
	tab, err := schedule.ParseTab(*tabFlag)
	if err != nil {
		return err
	}

	a.restore(ctx)
	p, filters, err := a.loadProgram(ctx)
	if err != nil {
		return err
	}

	v := builderFor(filters).Build(p, schedule.FilterFor(tab, *day, *slot), a.store)
	if !v.HasContent() {
		fmt.Fprintln(a.out, v.EmptyMessage())
		return nil
	}
	printView(a, v)
	return nil
}

func printView(a *app, v schedule.View) {
	for _, g := range v.Groups {
		fmt.Fprintf(a.out, "== %s ==\n", g.DayLabel)
		for _, e := range g.Sessions {
			fmt.Fprintf(a.out, "%s %-12s %s  [%s]\n", mark(e.Saved), e.Session.Time, e.Session.Title, e.ID)
			for _, pe := range e.Presentations {
				pres := e.Session.Presentations[pe.Index]
				fmt.Fprintf(a.out, "    %s %-6s %s  [%s]\n", mark(pe.Saved), pe.Kind, pres.Title, pe.ID)
			}
		}
		for _, it := range g.Items {
			title := it.Session.Title
			if it.Presentation != nil {
				title = it.Presentation.Title + " (" + it.Session.Title + ")"
			}
			fmt.Fprintf(a.out, "%s %-12s %-7s %s  [%s]\n", mark(true), it.Session.Time, it.Kind, title, it.BookmarkID)
		}
	}
}

func mark(saved bool) string {
	if saved {
		return "[*]"
	}
	return "[ ]"
}

func (a *app) cmdPersons(ctx context.Context, args []string) error {
	fs := a.flagSet("persons")
	q := fs.String("q", "", "Name substring")
	locale := fs.String("locale", "de", "Collation locale")
	if err := fs.Parse(args); err != nil {
		return err
	}
	p, filters, err := a.loadProgram(ctx)
	if err != nil {
		return err
	}

	ix := people.Build(p, schedule.Types{Talk: filters.TalkTypes, Poster: filters.PosterTypes}, *locale)
	found := ix.Lookup(*q)
	if len(found) == 0 {
		fmt.Fprintln(a.out, "no persons found")
		return nil
	}
	for _, person := range found {
		line := person.Name
		if person.Affiliation != "" {
			line += " (" + person.Affiliation + ")"
		}
		fmt.Fprintln(a.out, line)
		for _, ref := range person.Sessions {
			title := ref.Title
			if ref.PresTitle != "" {
				title = ref.PresTitle + " / " + ref.Title
			}
			fmt.Fprintf(a.out, "    %s %s  %s  [%s]\n", ref.DayLabel, ref.Time, title, ref.BookmarkID)
		}
	}
	return nil
}

func (a *app) cmdSlots(ctx context.Context, args []string) error {
	fs := a.flagSet("slots")
	day := fs.Int("day", 0, "Day index (0-based)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	p, filters, err := a.loadProgram(ctx)
	if err != nil {
		return err
	}
	if *day < 0 || *day >= len(p.Days) {
		return fmt.Errorf("day %d out of range (0-%d)", *day, len(p.Days)-1)
	}

	m := schedule.NewMatcher(filters.ExactMatchDays)
	d := p.Days[*day]
	fmt.Fprintf(a.out, "%s (%s)", d.DayLabel, d.Date)
	if m.IsExactDay(d.Date) {
		fmt.Fprint(a.out, "  exact match")
	}
	fmt.Fprintln(a.out)
	for _, label := range schedule.SlotsFor(p, filters.TimeSlots, *day) {
		fmt.Fprintln(a.out, "  "+label)
	}
	return nil
}

func (a *app) cmdExport(ctx context.Context, args []string) error {
	fs := a.flagSet("export")
	outPath := fs.String("o", "program.ics", "Output file; - for stdout")
	if err := fs.Parse(args); err != nil {
		return err
	}

	a.restore(ctx)
	p, filters, err := a.loadProgram(ctx)
	if err != nil {
		return err
	}
	v := builderFor(filters).Build(p, schedule.FilterFor(schedule.TabMine, -1, ""), a.store)
	if !v.HasContent() {
		fmt.Fprintln(a.out, v.EmptyMessage())
		return nil
	}

	body, err := ics.Serialize(v, ics.Options{
		Name:     "Mein Programm",
		Timezone: filters.Timezone,
		Now:      time.Now(),
	})
	if err != nil {
		return err
	}
	if *outPath == "-" {
		_, err = a.out.Write(body)
		return err
	}
	if err := os.WriteFile(*outPath, body, 0o644); err != nil {
		return err
	}
	n := 0
	for _, g := range v.Groups {
		n += len(g.Items)
	}
	fmt.Fprintf(a.out, "wrote %d entries to %s\n", n, strings.TrimSpace(*outPath))
	return nil
}
