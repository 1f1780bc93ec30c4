// Package syncer reconciles the local bookmark store with the remembered
// account's server-side copy.
//
// Local state is authoritative between syncs. Merges only ever add ids,
// and every push sends the full snapshot, so concurrent pushes settle on
// the last one written.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"confprog/internal/bookmark"
	appLog "confprog/internal/log"
)

// GenericAuthMessage is shown when the server gives no reason for a failure.
const GenericAuthMessage = "Ein Fehler ist aufgetreten."

// Account is what the server knows about the logged-in user.
type Account struct {
	Username string
	Saved    bookmark.Snapshot
}

// Remote is the server-side bookmark record and session.
type Remote interface {
	Me(ctx context.Context) (Account, error)
	Login(ctx context.Context, username, password string) (bookmark.Snapshot, error)
	Register(ctx context.Context, username, password string) error
	Logout(ctx context.Context) error
	SaveProgram(ctx context.Context, snap bookmark.Snapshot) error
}

// Identity persists the remembered username locally.
type Identity interface {
	Username() (string, error)
	SetUsername(username string) error
	ClearUsername() error
}

// AuthError is a login or registration failure ready for inline display.
type AuthError struct {
	Message string
	Err     error
}

func (e *AuthError) Error() string { return e.Message }
func (e *AuthError) Unwrap() error { return e.Err }

// userMessage is implemented by remote errors that carry a server-provided reason.
type userMessage interface {
	UserMessage() string
}

func newAuthError(err error) *AuthError {
	var um userMessage
	if errors.As(err, &um) && um.UserMessage() != "" {
		return &AuthError{Message: um.UserMessage(), Err: err}
	}
	return &AuthError{Message: GenericAuthMessage, Err: err}
}

// Engine owns the login state and drives pushes after merges and toggles.
type Engine struct {
	store  *bookmark.Store
	remote Remote
	ident  Identity

	mu   sync.Mutex
	user string

	inflight sync.WaitGroup
}

func New(store *bookmark.Store, remote Remote, ident Identity) *Engine {
	return &Engine{store: store, remote: remote, ident: ident}
}

// User returns the logged-in username, "" when local-only.
func (e *Engine) User() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.user
}

func (e *Engine) setUser(u string) {
	e.mu.Lock()
	e.user = u
	e.mu.Unlock()
}

// Restore re-establishes a remembered login. With no remembered username
// nothing happens. If the server does not confirm the session, the
// remembered username is dropped silently and the engine stays local-only.
// On success the server lists are merged in and the union is pushed back.
func (e *Engine) Restore(ctx context.Context) (bool, *Task) {
	remembered, err := e.ident.Username()
	if err != nil {
		appLog.Error("read remembered user failed", err)
		return false, nil
	}
	if remembered == "" {
		return false, nil
	}

	acct, err := e.remote.Me(ctx)
	if err != nil {
		appLog.Debug("session restore failed; continuing local-only", "user", remembered, "err", err)
		if cerr := e.ident.ClearUsername(); cerr != nil {
			appLog.Error("clear remembered user failed", cerr)
		}
		return false, nil
	}

	user := acct.Username
	if user == "" {
		user = remembered
	}
	e.setUser(user)
	return true, e.merge(ctx, acct.Saved)
}

// Login authenticates, remembers the username, merges the server lists into
// the local sets and pushes the union. Failures come back as *AuthError.
func (e *Engine) Login(ctx context.Context, username, password string) (*Task, error) {
	saved, err := e.remote.Login(ctx, username, password)
	if err != nil {
		return nil, newAuthError(err)
	}

	e.setUser(username)
	if err := e.ident.SetUsername(username); err != nil {
		appLog.Error("remember user failed", err, "user", username)
	}
	return e.merge(ctx, saved), nil
}

// Register creates an account. It does not log in.
func (e *Engine) Register(ctx context.Context, username, password string) error {
	if err := e.remote.Register(ctx, username, password); err != nil {
		return newAuthError(err)
	}
	return nil
}

// Logout invalidates the server session (best effort) and forgets the
// username. Bookmarks stay as they are.
func (e *Engine) Logout(ctx context.Context) {
	if err := e.remote.Logout(ctx); err != nil {
		appLog.Debug("logout request failed; ignoring", "err", err)
	}
	e.setUser("")
	if err := e.ident.ClearUsername(); err != nil {
		appLog.Error("clear remembered user failed", err)
	}
}

// Toggle flips a bookmark locally and, when logged in, starts a push of the
// full snapshot. The returned task is nil when local-only. A local
// persistence error is returned alongside the task: the in-memory state has
// changed, so the push still goes out.
func (e *Engine) Toggle(ctx context.Context, kind bookmark.Kind, id string) (bool, *Task, error) {
	saved, err := e.store.Toggle(kind, id)
	if errors.Is(err, bookmark.ErrUnknownKind) {
		return false, nil, err
	}
	if err != nil {
		appLog.Error("persist bookmark failed", err, "kind", kind, "id", id)
	}
	return saved, e.Push(ctx), err
}

// Push uploads the current snapshot if a user is logged in.
func (e *Engine) Push(ctx context.Context) *Task {
	if e.User() == "" {
		return nil
	}
	return e.start(ctx, e.store.Snapshot())
}

// merge unions the server lists into the store and pushes the result.
func (e *Engine) merge(ctx context.Context, server bookmark.Snapshot) *Task {
	merged, err := e.store.Union(server)
	if err != nil {
		appLog.Error("persist merged bookmarks failed", err)
		merged = e.store.Snapshot()
	}
	appLog.Info("bookmarks merged",
		"sessions", len(merged.Sessions),
		"talks", len(merged.Talks),
		"posters", len(merged.Posters),
	)
	return e.start(ctx, merged)
}

func (e *Engine) start(ctx context.Context, snap bookmark.Snapshot) *Task {
	t := &Task{done: make(chan struct{})}
	ctx = context.WithoutCancel(ctx)

	e.inflight.Add(1)
	go func() {
		defer e.inflight.Done()
		defer close(t.done)

		t.res.Snapshot = snap
		if err := e.remote.SaveProgram(ctx, snap); err != nil {
			t.res.Err = fmt.Errorf("save program: %w", err)
			appLog.Error("bookmark sync failed; change kept locally", err)
		}
	}()
	return t
}

// Wait blocks until every push started so far has completed.
func (e *Engine) Wait() {
	e.inflight.Wait()
}

// Result is the outcome of one push.
type Result struct {
	Snapshot bookmark.Snapshot
	Err      error
}

// OK reports whether the server accepted the snapshot.
func (r Result) OK() bool { return r.Err == nil }

// Task is a running push. It is never cancelled.
type Task struct {
	done chan struct{}
	res  Result
}

// Done is closed once the push has completed.
func (t *Task) Done() <-chan struct{} { return t.done }

// Wait blocks for the push and returns its result.
func (t *Task) Wait() Result {
	<-t.done
	return t.res
}
