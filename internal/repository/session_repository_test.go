package repository

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-registration-api/internal/models"
)

func TestMemorySessionRepositoryRoundTrip(t *testing.T) {
	repo := NewMemorySessionRepository()
	ctx := context.Background()

	session := &models.RegistrationSession{
		ID:           "sess-1",
		Step:         models.StepStudentNames,
		ChildCount:   2,
		StudentNames: []string{"Luca", ""},
		ExpiresAt:    time.Now().Add(time.Hour),
	}
	require.NoError(t, repo.Save(ctx, session))

	// mutations after Save must not leak into the stored copy
	session.StudentNames[1] = "Giulia"

	loaded, err := repo.Get(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, models.StepStudentNames, loaded.Step)
	assert.Equal(t, []string{"Luca", ""}, loaded.StudentNames)

	require.NoError(t, repo.Delete(ctx, "sess-1"))
	_, err = repo.Get(ctx, "sess-1")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestMemorySessionRepositoryExpiry(t *testing.T) {
	repo := NewMemorySessionRepository()
	now := time.Date(2024, 9, 1, 10, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { return now }

	require.NoError(t, repo.Save(context.Background(), &models.RegistrationSession{ID: "s", ExpiresAt: now.Add(time.Minute)}))

	_, err := repo.Get(context.Background(), "s")
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	_, err = repo.Get(context.Background(), "s")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func newRedisSessionRepo(t *testing.T) (*RedisSessionRepository, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisSessionRepository(client, "registration:session:", nil), mr
}

func TestRedisSessionRepositoryRoundTrip(t *testing.T) {
	repo, mr := newRedisSessionRepo(t)
	ctx := context.Background()

	session := &models.RegistrationSession{
		ID:             "sess-1",
		Step:           models.StepEnrollmentType,
		AttendanceMode: models.AttendanceInPresence,
		ChildCount:     2,
		StudentNames:   []string{"Marco", "Luca"},
		ExpiresAt:      time.Now().Add(time.Hour),
	}
	require.NoError(t, repo.Save(ctx, session))

	assert.True(t, mr.Exists("registration:session:sess-1"))
	ttl := mr.TTL("registration:session:sess-1")
	assert.True(t, ttl > 59*time.Minute && ttl <= time.Hour, "unexpected ttl %s", ttl)

	loaded, err := repo.Get(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, models.StepEnrollmentType, loaded.Step)
	assert.Equal(t, models.AttendanceInPresence, loaded.AttendanceMode)
	assert.Equal(t, []string{"Marco", "Luca"}, loaded.StudentNames)

	require.NoError(t, repo.Delete(ctx, "sess-1"))
	_, err = repo.Get(ctx, "sess-1")
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.NoError(t, repo.Delete(ctx, "sess-1"))
}

func TestRedisSessionRepositoryExpiry(t *testing.T) {
	repo, mr := newRedisSessionRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Save(ctx, &models.RegistrationSession{ID: "s", ExpiresAt: time.Now().Add(time.Minute)}))
	_, err := repo.Get(ctx, "s")
	require.NoError(t, err)

	mr.FastForward(2 * time.Minute)
	_, err = repo.Get(ctx, "s")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestRedisSessionRepositorySaveExpiredDeletes(t *testing.T) {
	repo, mr := newRedisSessionRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Save(ctx, &models.RegistrationSession{ID: "s", ExpiresAt: time.Now().Add(time.Minute)}))
	require.NoError(t, repo.Save(ctx, &models.RegistrationSession{ID: "s", ExpiresAt: time.Now().Add(-time.Second)}))

	assert.False(t, mr.Exists("registration:session:s"))
}

func TestRedisSessionRepositoryErrors(t *testing.T) {
	repo, mr := newRedisSessionRepo(t)
	ctx := context.Background()

	require.NoError(t, mr.Set("registration:session:broken", "{not json"))
	_, err := repo.Get(ctx, "broken")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrSessionNotFound)

	mr.Close()
	_, err = repo.Get(ctx, "sess-1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrSessionNotFound)
}
