package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/immxrtalbeast/speeddating/internal/client"
	"github.com/immxrtalbeast/speeddating/internal/domain"
	"github.com/immxrtalbeast/speeddating/internal/notify"
	"github.com/immxrtalbeast/speeddating/internal/repository"
	"github.com/immxrtalbeast/speeddating/internal/room"
	"github.com/immxrtalbeast/speeddating/internal/service"
	"github.com/immxrtalbeast/speeddating/lib/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type apiEnv struct {
	router   *gin.Engine
	hub      *notify.Hub
	sessions *repository.InMemorySessionRepository
}

func newAPIEnv(t *testing.T) *apiEnv {
	t.Helper()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	c := clock.NewFake(time.Date(2026, time.March, 14, 19, 0, 0, 0, time.UTC))
	queue := repository.NewInMemoryQueueStore()
	actions := repository.NewInMemoryActionRepository()
	sessions := repository.NewInMemorySessionRepository(actions)
	rooms := repository.NewInMemoryRoomRepository()
	hub := notify.NewHub(32, log)

	provisioner, err := room.NewProvisioner(rooms, room.Options{
		BaseURL:         "https://video.test",
		TokenSecret:     "test-secret",
		TokenTTL:        5 * time.Minute,
		SessionDuration: 90 * time.Second,
	}, c, log)
	require.NoError(t, err)

	engine := service.NewMatchingEngine(service.MatchingDeps{
		Queue:       queue,
		Pairings:    repository.NewInMemoryPairingStore(c),
		Locker:      repository.NewInMemoryMatchLocker(c),
		Sessions:    sessions,
		Icebreakers: repository.NewInMemoryIcebreakerRepository("Favourite city?"),
		Rooms:       provisioner,
		Publisher:   hub,
		Clock:       c,
		Log:         log,
	}, service.MatchingOptions{})

	svc := service.NewEventService(service.EventDeps{
		Queue:     queue,
		Sessions:  sessions,
		Actions:   actions,
		Matches:   repository.NewInMemoryMatchRepository(),
		Profiles:  repository.NewInMemoryProfileRepository(),
		Matcher:   engine,
		Publisher: hub,
		Points:    domain.DefaultPointsPolicy(),
		Clock:     c,
		Log:       log,
	})

	router := SetupRouter(
		NewQueueController(svc),
		NewSessionController(svc),
		NewEventsController(hub, svc, log),
		[]string{"http://localhost:3000"},
	)
	return &apiEnv{router: router, hub: hub, sessions: sessions}
}

func (e *apiEnv) do(t *testing.T, method, path, userID string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if userID != "" {
		req.Header.Set(userIDHeader, userID)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func joinBody(name string) gin.H {
	return gin.H{
		"preferences": gin.H{"age_min": 18, "age_max": 30, "interests": []string{"music"}},
		"display":     gin.H{"name": name},
	}
}

// startSession queues alice and bob through the API and returns their session.
func (e *apiEnv) startSession(t *testing.T) *domain.Session {
	t.Helper()
	require.Equal(t, http.StatusCreated, e.do(t, http.MethodPost, "/api/queue/join", "alice", joinBody("Alice")).Code)
	require.Equal(t, http.StatusCreated, e.do(t, http.MethodPost, "/api/queue/join", "bob", joinBody("Bob")).Code)

	session, err := e.sessions.ActiveForUser(context.Background(), "alice")
	require.NoError(t, err)
	return session
}

func TestHealthz(t *testing.T) {
	env := newAPIEnv(t)
	rec := env.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestQueueEndpoints(t *testing.T) {
	env := newAPIEnv(t)

	rec := env.do(t, http.MethodPost, "/api/queue/join", "alice", joinBody("Alice"))
	require.Equal(t, http.StatusCreated, rec.Code)
	event := decode(t, rec)["event"].(map[string]any)
	assert.Equal(t, string(domain.EventQueueJoined), event["type"])
	assert.EqualValues(t, 1, event["position"])

	rec = env.do(t, http.MethodPost, "/api/queue/join", "alice", joinBody("Alice"))
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "already_queued", decode(t, rec)["error"])

	rec = env.do(t, http.MethodGet, "/api/queue/status", "alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	queue := decode(t, rec)["queue"].(map[string]any)
	assert.EqualValues(t, 1, queue["position"])
	assert.EqualValues(t, 1, queue["queue_size"])

	rec = env.do(t, http.MethodPost, "/api/queue/heartbeat", "alice", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/queue/leave", "alice", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/queue/leave", "alice", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_queued", decode(t, rec)["error"])
}

func TestQueueJoin_Rejections(t *testing.T) {
	env := newAPIEnv(t)

	tests := []struct {
		name   string
		userID string
		body   any
		want   int
	}{
		{name: "missing identity", body: joinBody("Alice"), want: http.StatusUnauthorized},
		{name: "inverted age range", userID: "alice", body: gin.H{
			"preferences": gin.H{"age_min": 40, "age_max": 20},
		}, want: http.StatusBadRequest},
		{name: "malformed body", userID: "alice", body: "not an object", want: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, "/api/queue/join", tt.userID, tt.body)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestQueueJoin_WithoutBody(t *testing.T) {
	env := newAPIEnv(t)

	rec := env.do(t, http.MethodPost, "/api/queue/join", "alice", nil)
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestSessionEndpoints_MutualVibe(t *testing.T) {
	env := newAPIEnv(t)
	session := env.startSession(t)
	base := "/api/sessions/" + session.ID.String()

	rec := env.do(t, http.MethodPost, "/api/queue/join", "alice", nil)
	assert.Equal(t, http.StatusConflict, rec.Code, "already in a session")

	rec = env.do(t, http.MethodPost, base+"/connected", "alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode(t, rec)["session"].(map[string]any)
	assert.Equal(t, string(domain.SessionStatusActive), got["status"])
	assert.Equal(t, "Favourite city?", got["icebreaker"])

	rec = env.do(t, http.MethodPost, base+"/actions", "alice", gin.H{"action": "vibe"})
	require.Equal(t, http.StatusOK, rec.Code)
	result := decode(t, rec)["result"].(map[string]any)
	assert.Equal(t, false, result["mutual"])
	assert.EqualValues(t, 25, result["points"])

	rec = env.do(t, http.MethodPost, base+"/actions", "bob", gin.H{"action": "vibe"})
	require.Equal(t, http.StatusOK, rec.Code)
	result = decode(t, rec)["result"].(map[string]any)
	assert.Equal(t, true, result["mutual"])
	assert.EqualValues(t, 50, result["points"])
	assert.NotEmpty(t, result["match_id"])

	rec = env.do(t, http.MethodPost, base+"/actions", "bob", gin.H{"action": "vibe"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decode(t, rec)["result"].(map[string]any)["duplicate"])

	rec = env.do(t, http.MethodPost, base+"/actions", "alice", gin.H{"action": "skip"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "session_ended", decode(t, rec)["error"])

	rec = env.do(t, http.MethodGet, base, "bob", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, string(domain.SessionStatusCompletedMatched), decode(t, rec)["session"].(map[string]any)["status"])
}

func TestSessionEndpoints_Rejections(t *testing.T) {
	env := newAPIEnv(t)
	session := env.startSession(t)
	base := "/api/sessions/" + session.ID.String()

	tests := []struct {
		name   string
		method string
		path   string
		userID string
		body   any
		want   int
	}{
		{name: "non participant", method: http.MethodPost, path: base + "/actions", userID: "mallory", body: gin.H{"action": "vibe"}, want: http.StatusForbidden},
		{name: "unknown session", method: http.MethodGet, path: "/api/sessions/" + uuid.NewString(), userID: "alice", want: http.StatusNotFound},
		{name: "invalid session id", method: http.MethodGet, path: "/api/sessions/nope", userID: "alice", want: http.StatusBadRequest},
		{name: "unknown action", method: http.MethodPost, path: base + "/actions", userID: "alice", body: gin.H{"action": "wink"}, want: http.StatusBadRequest},
		{name: "missing action", method: http.MethodPost, path: base + "/actions", userID: "alice", body: gin.H{}, want: http.StatusBadRequest},
		{name: "missing identity", method: http.MethodGet, path: base, want: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, tt.method, tt.path, tt.userID, tt.body)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestSessionEndpoints_ReportEndsSession(t *testing.T) {
	env := newAPIEnv(t)
	session := env.startSession(t)
	base := "/api/sessions/" + session.ID.String()

	rec := env.do(t, http.MethodPost, base+"/actions", "bob", gin.H{"action": "report", "reason": "rude"})
	require.Equal(t, http.StatusOK, rec.Code)
	result := decode(t, rec)["result"].(map[string]any)
	assert.Equal(t, string(domain.SessionStatusCompleted), result["status"])

	rec = env.do(t, http.MethodGet, base, "alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.EndReasonReport, decode(t, rec)["session"].(map[string]any)["end_reason"])
}

func dial(t *testing.T, srv *httptest.Server, userID string) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/events/ws?user_id=" + userID
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) domain.Event {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var ev domain.Event
	require.NoError(t, conn.ReadJSON(&ev))
	return ev
}

func TestEventsStream_DeliversOwnTopic(t *testing.T) {
	env := newAPIEnv(t)
	srv := httptest.NewServer(env.router)
	defer srv.Close()

	alice := dial(t, srv, "alice")
	bob := dial(t, srv, "bob")
	require.Eventually(t, func() bool {
		return env.hub.Subscribers("alice") == 1 && env.hub.Subscribers("bob") == 1
	}, 2*time.Second, 10*time.Millisecond)

	machine := client.NewMachine("alice", slog.New(slog.NewTextHandler(io.Discard, nil)))

	require.Equal(t, http.StatusCreated, env.do(t, http.MethodPost, "/api/queue/join", "alice", joinBody("Alice")).Code)
	ev := readEvent(t, alice)
	assert.Equal(t, domain.EventQueueJoined, ev.Type)
	assert.Equal(t, "alice", ev.UserID)
	view, _ := machine.Apply(ev)
	assert.Equal(t, client.StateQueued, view.State)

	require.Equal(t, http.StatusCreated, env.do(t, http.MethodPost, "/api/queue/join", "bob", joinBody("Bob")).Code)

	ev = readEvent(t, alice)
	assert.Equal(t, domain.EventMatchFound, ev.Type)
	assert.Equal(t, "bob", ev.CounterpartID)
	assert.NotEmpty(t, ev.RoomToken)
	view, _ = machine.Apply(ev)
	assert.Equal(t, client.StateConnecting, view.State)
	assert.Equal(t, "Bob", view.CounterpartName)

	types := []domain.EventType{readEvent(t, bob).Type, readEvent(t, bob).Type}
	assert.ElementsMatch(t, []domain.EventType{domain.EventQueueJoined, domain.EventMatchFound}, types)
}

func TestEventsStream_HeartbeatAndClose(t *testing.T) {
	env := newAPIEnv(t)
	srv := httptest.NewServer(env.router)
	defer srv.Close()

	conn := dial(t, srv, "alice")
	require.Eventually(t, func() bool { return env.hub.Subscribers("alice") == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, conn.WriteJSON(gin.H{"type": "heartbeat"}))
	require.NoError(t, conn.WriteJSON(gin.H{"type": "unknown"}))

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return env.hub.Subscribers("alice") == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestEventsStream_RequiresIdentity(t *testing.T) {
	env := newAPIEnv(t)
	srv := httptest.NewServer(env.router)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/events/ws"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
