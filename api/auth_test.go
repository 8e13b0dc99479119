package api

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/shuttle-admin/backup"
	"github.com/warp/shuttle-admin/store/sqlite"
)

func newAuthStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	require.NoError(t, EnsureDefaultUsers(context.Background(), store))
	return store
}

func TestEnsureDefaultUsers_SeedsOnce(t *testing.T) {
	store := newAuthStore(t)
	require.NoError(t, EnsureDefaultUsers(context.Background(), store))

	n, err := store.CountUsers(context.Background())
	require.NoError(t, err)
	assert.Equal(t, len(defaultUsers), n)
}

func TestAuthenticator_IssueAndParse(t *testing.T) {
	store := newAuthStore(t)
	auth := NewAuthenticator(store, "first-secret-0123456", time.Hour)

	u, err := auth.Login(context.Background(), " kullanici1 ", DefaultPassword)
	require.NoError(t, err)

	token, expires, err := auth.Issue(*u)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expires, time.Minute)

	claims, err := auth.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, u.ID, claims.UserID)
	assert.Equal(t, "kullanici1", claims.Username)
	assert.NotEmpty(t, claims.ID)

	other := NewAuthenticator(store, "second-secret-012345", time.Hour)
	_, err = other.Parse(token)
	assert.ErrorIs(t, err, ErrInvalidSession)

	_, err = auth.Login(context.Background(), "nobody", DefaultPassword)
	assert.ErrorIs(t, err, ErrInvalidSession)
}

func TestAuthenticator_RejectsExpiredAndUnsigned(t *testing.T) {
	store := newAuthStore(t)
	auth := NewAuthenticator(store, "first-secret-0123456", -time.Minute)
	u, err := auth.Login(context.Background(), "admin", DefaultPassword)
	require.NoError(t, err)

	expired, _, err := auth.Issue(*u)
	require.NoError(t, err)
	_, err = auth.Parse(expired)
	assert.ErrorIs(t, err, ErrInvalidSession)

	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, SessionClaims{Username: "admin"}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = auth.Parse(unsigned)
	assert.ErrorIs(t, err, ErrInvalidSession)
}

// =============================================================================
// SCHEDULER
// =============================================================================

func TestBackupScheduler_InvalidSchedule(t *testing.T) {
	_, err := NewBackupScheduler(nil, "every day")
	assert.Error(t, err)
}

func TestBackupScheduler_CatchesUpOnStart(t *testing.T) {
	store := newAuthStore(t)
	dir := t.TempDir()
	day := time.Date(2024, time.November, 20, 8, 0, 0, 0, time.UTC)

	logger, hook := test.NewNullLogger()
	manager := backup.NewManager(store, dir, nil)
	manager.Now = func() time.Time { return day }
	manager.Logger = logger

	scheduler, err := NewBackupScheduler(manager, "5 0 * * *")
	require.NoError(t, err)
	scheduler.Logger = logger

	require.NoError(t, scheduler.Start())
	require.NoError(t, scheduler.Start(), "second start is a no-op")
	scheduler.Stop()

	_, err = os.Stat(filepath.Join(dir, backup.FileName(day)))
	assert.NoError(t, err)

	last, ok, err := store.MetaValue(context.Background(), backup.MetaLastBackupDate)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "2024-11-20", last)
	assert.NotEmpty(t, hook.AllEntries())

	// Same day again: nothing new.
	scheduler.RunOnce()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
