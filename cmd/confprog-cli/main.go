// Command confprog-cli browses the conference program and manages a personal
// program from the terminal. Bookmarks live in a local state file and are
// synchronized with the server when logged in.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"

	"confprog/internal/bookmark"
	"confprog/internal/client"
	"confprog/internal/localstore"
	appLog "confprog/internal/log"
	"confprog/internal/syncer"
)

const statePrefix = "dhd2026"

type globalFlags struct {
	server string
	state  string
	debug  bool
}

func main() {
	_ = godotenv.Load()
	os.Exit(run(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("confprog-cli", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var g globalFlags
	fs.StringVar(&g.server, "server", envOr("CONFPROG_SERVER", "http://127.0.0.1:8080"), "Server base URL")
	fs.StringVar(&g.state, "state", envOr("CONFPROG_STATE", defaultStatePath()), "Local state file")
	fs.BoolVar(&g.debug, "debug", false, "Enable debug logging")
	fs.Usage = func() {
		fmt.Fprintln(stderr, "usage: confprog-cli [flags] <command> [args]")
		fmt.Fprintln(stderr, "commands: restore, login, register, logout, toggle, program, persons, slots, export")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if g.debug {
		appLog.SetLevel(appLog.LevelDebug)
	} else {
		appLog.SetLevel(appLog.LevelError)
	}
	defer appLog.Sync()

	rest := fs.Args()
	if len(rest) == 0 {
		fs.Usage()
		return 2
	}

	a, err := newApp(g, stdout, stderr)
	if err != nil {
		fmt.Fprintln(stderr, "error:", err)
		return 1
	}

	cmd, cmdArgs := rest[0], rest[1:]
	switch cmd {
	case "restore":
		err = a.cmdRestore(ctx)
	case "login":
		err = a.cmdLogin(ctx, cmdArgs)
	case "register":
		err = a.cmdRegister(ctx, cmdArgs)
	case "logout":
		err = a.cmdLogout(ctx)
	case "toggle":
		err = a.cmdToggle(ctx, cmdArgs)
	case "program":
		err = a.cmdProgram(ctx, cmdArgs)
	case "persons":
		err = a.cmdPersons(ctx, cmdArgs)
	case "slots":
		err = a.cmdSlots(ctx, cmdArgs)
	case "export":
		err = a.cmdExport(ctx, cmdArgs)
	default:
		fmt.Fprintf(stderr, "unknown command %q\n", cmd)
		fs.Usage()
		return 2
	}

	a.engine.Wait()
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 2
		}
		fmt.Fprintln(stderr, "error:", err)
		return 1
	}
	return 0
}

// app wires local state, the API client and the sync engine for one run.
type app struct {
	out, errOut io.Writer

	local  *localstore.Store
	store  *bookmark.Store
	api    *client.Client
	engine *syncer.Engine
}

func newApp(g globalFlags, stdout, stderr io.Writer) (*app, error) {
	local, err := localstore.Open(g.state, statePrefix)
	if err != nil {
		return nil, fmt.Errorf("open state: %w", err)
	}
	store, err := bookmark.NewStore(local)
	if err != nil {
		return nil, err
	}
	api, err := client.New(g.server, client.WithTokenStore(local))
	if err != nil {
		return nil, err
	}
	return &app{
		out:    stdout,
		errOut: stderr,
		local:  local,
		store:  store,
		api:    api,
		engine: syncer.New(store, api, local),
	}, nil
}

// restore re-establishes a remembered login before commands that read or
// change bookmarks.
func (a *app) restore(ctx context.Context) bool {
	ok, task := a.engine.Restore(ctx)
	a.report(task)
	return ok
}

// report waits for a push and warns when it failed.
func (a *app) report(task *syncer.Task) {
	if task == nil {
		return
	}
	if res := task.Wait(); !res.OK() {
		fmt.Fprintln(a.errOut, "warning: saved locally only; server sync failed:", res.Err)
	}
}

func defaultStatePath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "./confprog-state.json"
	}
	return filepath.Join(dir, "confprog", "state.json")
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}
