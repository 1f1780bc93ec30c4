package accounts

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"confprog/internal/bookmark"
)

func openTemp(t *testing.T) *DB {
	t.Helper()
	d, err := Open(context.Background(), filepath.Join(t.TempDir(), "data", "users.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })
	return d
}

func TestCreateAndAuthenticate(t *testing.T) {
	ctx := context.Background()
	d := openTemp(t)
	fixed := time.Date(2026, 2, 24, 9, 0, 0, 0, time.UTC)
	d.now = func() time.Time { return fixed }

	require.NoError(t, d.Create(ctx, "anna", "password1"))

	u, err := d.Authenticate(ctx, "anna", "password1")
	require.NoError(t, err)
	assert.Equal(t, "anna", u.Username)
	assert.Equal(t, bookmark.Snapshot{Sessions: []string{}, Posters: []string{}, Talks: []string{}}, u.Saved)
	assert.True(t, fixed.Equal(u.CreatedAt))
	assert.True(t, fixed.Equal(u.LastLoginAt))

	_, err = d.Authenticate(ctx, "anna", "password2")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = d.Authenticate(ctx, "bert", "password1")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	n, err := d.LoginCount(ctx, "anna")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestCreateDuplicate(t *testing.T) {
	ctx := context.Background()
	d := openTemp(t)

	require.NoError(t, d.Create(ctx, "anna", "password1"))
	assert.ErrorIs(t, d.Create(ctx, "anna", "other-password"), ErrUserExists)
}

func TestSaveProgramReplacesLists(t *testing.T) {
	ctx := context.Background()
	d := openTemp(t)
	require.NoError(t, d.Create(ctx, "anna", "password1"))

	require.NoError(t, d.SaveProgram(ctx, "anna", bookmark.Snapshot{
		Sessions: []string{"s1", "s2"},
		Talks:    []string{"s1::talk-0"},
	}))
	require.NoError(t, d.SaveProgram(ctx, "anna", bookmark.Snapshot{
		Sessions: []string{"s2"},
		Posters:  []string{"p1"},
	}))

	u, err := d.Get(ctx, "anna")
	require.NoError(t, err)
	assert.Equal(t, []string{"s2"}, u.Saved.Sessions)
	assert.Equal(t, []string{"p1"}, u.Saved.Posters)
	assert.Equal(t, []string{}, u.Saved.Talks)
}

func TestUnknownUser(t *testing.T) {
	ctx := context.Background()
	d := openTemp(t)

	_, err := d.Get(ctx, "ghost")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, d.SaveProgram(ctx, "ghost", bookmark.Snapshot{}), ErrNotFound)
}

func TestOpenMigratesOldSchema(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "users.db")

	raw, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	_, err = raw.ExecContext(ctx, `
		CREATE TABLE users (
			username TEXT PRIMARY KEY,
			password_hash TEXT NOT NULL,
			saved_sessions TEXT DEFAULT '[]'
		);
		INSERT INTO users (username, password_hash, saved_sessions) VALUES ('old', 'x', '["s9"]');
	`)
	require.NoError(t, err)
	require.NoError(t, raw.Close())

	d, err := Open(ctx, path)
	require.NoError(t, err)
	defer d.Close()

	u, err := d.Get(ctx, "old")
	require.NoError(t, err)
	assert.Equal(t, []string{"s9"}, u.Saved.Sessions)
	assert.Equal(t, []string{}, u.Saved.Posters)
	assert.Equal(t, []string{}, u.Saved.Talks)
	assert.True(t, u.CreatedAt.IsZero())

	cols, err := d.columns(ctx, "users")
	require.NoError(t, err)
	for _, c := range []string{"created_at", "last_login_at", "saved_posters", "saved_talks"} {
		assert.Contains(t, cols, c)
	}
}

func TestOpenMemory(t *testing.T) {
	d, err := Open(context.Background(), ":memory:")
	require.NoError(t, err)
	defer d.Close()

	require.NoError(t, d.Create(context.Background(), "anna", "password1"))
	_, err = d.Get(context.Background(), "anna")
	assert.NoError(t, err)
}
