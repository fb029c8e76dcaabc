package room

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/google/uuid"
	"github.com/immxrtalbeast/speeddating/internal/domain"
	"github.com/immxrtalbeast/speeddating/internal/repository"
	"github.com/immxrtalbeast/speeddating/lib/clock"
	"github.com/immxrtalbeast/speeddating/lib/logger/sl"
	"github.com/pion/webrtc/v3"
)

// roomGrace keeps a room alive a little past the session timer so late joiners
// see a proper session-ended rather than a dead link.
const roomGrace = 2 * time.Minute

var ErrInvalidToken = errors.New("invalid room token")

type Options struct {
	BaseURL         string
	TokenSecret     string
	TokenTTL        time.Duration
	SessionDuration time.Duration
	STUNServers     []string
}

type Claims struct {
	RoomID string `json:"room"`
	Name   string `json:"name,omitempty"`
	jwt.StandardClaims
}

// Provisioner creates per-session video rooms and signs participant access tokens.
type Provisioner struct {
	rooms      repository.RoomRepository
	opts       Options
	iceServers []webrtc.ICEServer
	clock      clock.Clock
	log        *slog.Logger
}

func NewProvisioner(rooms repository.RoomRepository, opts Options, c clock.Clock, log *slog.Logger) (*Provisioner, error) {
	if opts.TokenSecret == "" {
		return nil, errors.New("room token secret is required")
	}
	if opts.TokenTTL <= 0 {
		opts.TokenTTL = 5 * time.Minute
	}
	if c == nil {
		c = clock.Real{}
	}
	if log == nil {
		log = slog.Default()
	}

	var ice []webrtc.ICEServer
	if len(opts.STUNServers) > 0 {
		ice = []webrtc.ICEServer{{URLs: append([]string(nil), opts.STUNServers...)}}
	}

	return &Provisioner{
		rooms:      rooms,
		opts:       opts,
		iceServers: ice,
		clock:      c,
		log:        log,
	}, nil
}

func (p *Provisioner) CreateRoom(ctx context.Context, sessionID uuid.UUID) (*domain.RoomRef, error) {
	const op = "room.provisioner.create"
	log := p.log.With(
		slog.String("op", op),
		slog.String("session_id", sessionID.String()),
	)

	room := domain.NewRoom(sessionID, p.opts.SessionDuration+roomGrace, p.clock.Now())
	if err := p.rooms.Create(ctx, room); err != nil {
		log.Error("failed to persist room", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	log.Debug("room provisioned", slog.String("room_id", room.ID.String()), slog.String("link", room.Link))

	return &domain.RoomRef{
		RoomID:     room.ID,
		JoinURL:    p.joinURL(room.Link),
		ICEServers: p.iceServers,
	}, nil
}

// IssueToken signs a short-lived token granting userID access to the room.
// An empty displayName keeps the participant anonymous inside the room.
func (p *Provisioner) IssueToken(ctx context.Context, roomID uuid.UUID, userID string, displayName string) (string, error) {
	const op = "room.provisioner.issueToken"

	if _, err := p.rooms.GetByID(ctx, roomID); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	now := p.clock.Now()
	claims := Claims{
		RoomID: roomID.String(),
		Name:   displayName,
		StandardClaims: jwt.StandardClaims{
			Id:        uuid.NewString(),
			Subject:   userID,
			IssuedAt:  now.Unix(),
			ExpiresAt: now.Add(p.opts.TokenTTL).Unix(),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(p.opts.TokenSecret))
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return token, nil
}

// VerifyToken is used by the video gateway to admit participants.
func (p *Provisioner) VerifyToken(raw string) (*Claims, error) {
	var claims Claims
	token, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(p.opts.TokenSecret), nil
	})
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	return &claims, nil
}

func (p *Provisioner) joinURL(link string) string {
	return strings.TrimRight(p.opts.BaseURL, "/") + "/room/" + link
}
