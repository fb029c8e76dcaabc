package room

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/immxrtalbeast/speeddating/internal/repository"
	"github.com/immxrtalbeast/speeddating/lib/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newProvisioner(t *testing.T, rooms *repository.InMemoryRoomRepository) *Provisioner {
	t.Helper()
	p, err := NewProvisioner(rooms, Options{
		BaseURL:         "https://dates.example/",
		TokenSecret:     "secret",
		TokenTTL:        time.Minute,
		SessionDuration: 90 * time.Second,
		STUNServers:     []string{"stun:stun.example:3478"},
	}, clock.Real{}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	return p
}

func TestProvisioner_CreateRoomPersistsAndBuildsURL(t *testing.T) {
	rooms := repository.NewInMemoryRoomRepository()
	p := newProvisioner(t, rooms)
	sessionID := uuid.New()

	ref, err := p.CreateRoom(context.Background(), sessionID)
	require.NoError(t, err)

	stored, err := rooms.GetByID(context.Background(), ref.RoomID)
	require.NoError(t, err)
	assert.Equal(t, sessionID, stored.SessionID)
	assert.Equal(t, "https://dates.example/room/"+stored.Link, ref.JoinURL)
	require.Len(t, ref.ICEServers, 1)
	assert.Equal(t, []string{"stun:stun.example:3478"}, ref.ICEServers[0].URLs)
	assert.True(t, stored.ExpiresAt.After(stored.CreatedAt.Add(90*time.Second)))
}

func TestProvisioner_TokenRoundTrip(t *testing.T) {
	rooms := repository.NewInMemoryRoomRepository()
	p := newProvisioner(t, rooms)

	ref, err := p.CreateRoom(context.Background(), uuid.New())
	require.NoError(t, err)

	token, err := p.IssueToken(context.Background(), ref.RoomID, "alice", "Alice")
	require.NoError(t, err)

	claims, err := p.VerifyToken(token)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.Subject)
	assert.Equal(t, ref.RoomID.String(), claims.RoomID)
	assert.Equal(t, "Alice", claims.Name)

	_, err = p.VerifyToken(token + "x")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestProvisioner_IssueTokenUnknownRoom(t *testing.T) {
	p := newProvisioner(t, repository.NewInMemoryRoomRepository())

	_, err := p.IssueToken(context.Background(), uuid.New(), "alice", "")
	assert.ErrorIs(t, err, repository.ErrRoomNotFound)
}

func TestNewProvisioner_RequiresSecret(t *testing.T) {
	_, err := NewProvisioner(repository.NewInMemoryRoomRepository(), Options{}, nil, nil)
	assert.Error(t, err)
}
