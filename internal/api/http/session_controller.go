package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/immxrtalbeast/speeddating/internal/api/http/converter"
	"github.com/immxrtalbeast/speeddating/internal/domain"
	"github.com/immxrtalbeast/speeddating/internal/service"
)

type SessionController struct {
	sessions service.SessionInteractor
}

func NewSessionController(sessions service.SessionInteractor) *SessionController {
	return &SessionController{sessions: sessions}
}

func (c *SessionController) Action(ctx *gin.Context) {
	type request struct {
		Action string `json:"action" binding:"required"`
		Reason string `json:"reason"`
	}

	userID, ok := requireUser(ctx)
	if !ok {
		return
	}
	sessionID, ok := sessionParam(ctx)
	if !ok {
		return
	}

	var req request
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}
	action, err := domain.ParseAction(req.Action)
	if err != nil {
		respondError(ctx, err)
		return
	}

	result, err := c.sessions.SessionAction(ctx.Request.Context(), userID, sessionID, action, req.Reason)
	if err != nil {
		respondError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"result": converter.ActionResultToApi(result)})
}

func (c *SessionController) Connected(ctx *gin.Context) {
	userID, ok := requireUser(ctx)
	if !ok {
		return
	}
	sessionID, ok := sessionParam(ctx)
	if !ok {
		return
	}

	session, err := c.sessions.MarkConnected(ctx.Request.Context(), userID, sessionID)
	if err != nil {
		respondError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"session": converter.SessionToApi(session)})
}

func (c *SessionController) Get(ctx *gin.Context) {
	userID, ok := requireUser(ctx)
	if !ok {
		return
	}
	sessionID, ok := sessionParam(ctx)
	if !ok {
		return
	}

	session, err := c.sessions.GetSession(ctx.Request.Context(), userID, sessionID)
	if err != nil {
		respondError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"session": converter.SessionToApi(session)})
}

func sessionParam(ctx *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(ctx.Param("sessionID"))
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid session id"})
		return uuid.Nil, false
	}
	return id, true
}
