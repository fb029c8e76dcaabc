package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/immxrtalbeast/speeddating/internal/domain"
	"github.com/immxrtalbeast/speeddating/internal/notify"
	"github.com/immxrtalbeast/speeddating/internal/service"
	"github.com/immxrtalbeast/speeddating/lib/logger/sl"
)

const writeWait = 10 * time.Second

type Subscriber interface {
	Subscribe(userID string) *notify.Subscription
}

// EventsController streams a participant's notifications over a websocket.
// Clients resubscribe on reconnect; nothing is replayed.
type EventsController struct {
	hub      Subscriber
	queue    service.QueueInteractor
	upgrader websocket.Upgrader
	log      *slog.Logger
}

type clientMessage struct {
	Type string `json:"type"`
}

func NewEventsController(hub Subscriber, queue service.QueueInteractor, log *slog.Logger) *EventsController {
	if log == nil {
		log = slog.Default()
	}
	return &EventsController{
		hub:   hub,
		queue: queue,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		log: log,
	}
}

func (c *EventsController) Stream(ctx *gin.Context) {
	const op = "api.http.events.stream"

	userID, ok := requireUser(ctx)
	if !ok {
		return
	}
	log := c.log.With(slog.String("op", op), slog.String("user_id", userID))

	conn, err := c.upgrader.Upgrade(ctx.Writer, ctx.Request, nil)
	if err != nil {
		log.Warn("websocket upgrade failed", sl.Err(err))
		return
	}
	defer conn.Close()

	sub := c.hub.Subscribe(userID)
	defer sub.Close()

	streamCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var writeMu sync.Mutex
	write := func(v any) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		return conn.WriteJSON(v)
	}

	go forwardEvents(streamCtx, sub, write, func() { _ = conn.Close() })

	log.Debug("event stream opened")

	for {
		var msg clientMessage
		if err := conn.ReadJSON(&msg); err != nil {
			log.Debug("event stream closed", sl.Err(err))
			return
		}

		switch msg.Type {
		case "heartbeat":
			if _, err := c.queue.Heartbeat(streamCtx, userID); err != nil && !errors.Is(err, domain.ErrNotQueued) {
				ev := domain.NewEvent(domain.EventError, userID, time.Now().UTC())
				ev.Message = errorCode(err)
				if err := write(ev); err != nil {
					return
				}
			}
		default:
			log.Debug("ignoring client message", slog.String("type", msg.Type))
		}
	}
}

func forwardEvents(ctx context.Context, sub *notify.Subscription, write func(any) error, abort func()) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.Events:
			if !ok {
				return
			}
			if err := write(ev); err != nil {
				abort()
				return
			}
		}
	}
}
