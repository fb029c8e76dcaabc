package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/immxrtalbeast/speeddating/internal/api/http/converter"
	"github.com/immxrtalbeast/speeddating/internal/service"
)

type QueueController struct {
	queue service.QueueInteractor
}

func NewQueueController(queue service.QueueInteractor) *QueueController {
	return &QueueController{queue: queue}
}

func (c *QueueController) Join(ctx *gin.Context) {
	type request struct {
		Preferences converter.PreferencesRequest `json:"preferences"`
		Display     converter.DisplayRequest     `json:"display"`
	}

	userID, ok := requireUser(ctx)
	if !ok {
		return
	}

	var req request
	if ctx.Request.ContentLength != 0 {
		if err := ctx.ShouldBindJSON(&req); err != nil {
			ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
			return
		}
	}

	ev, err := c.queue.JoinQueue(ctx.Request.Context(), userID,
		converter.PreferencesFromApi(req.Preferences),
		converter.DisplayFromApi(req.Display),
	)
	if err != nil {
		respondError(ctx, err)
		return
	}

	ctx.JSON(http.StatusCreated, gin.H{"event": ev})
}

func (c *QueueController) Leave(ctx *gin.Context) {
	userID, ok := requireUser(ctx)
	if !ok {
		return
	}

	ev, err := c.queue.LeaveQueue(ctx.Request.Context(), userID)
	if err != nil {
		respondError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"event": ev})
}

func (c *QueueController) Heartbeat(ctx *gin.Context) {
	userID, ok := requireUser(ctx)
	if !ok {
		return
	}

	pos, err := c.queue.Heartbeat(ctx.Request.Context(), userID)
	if err != nil {
		respondError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"queue": converter.QueuePositionToApi(pos)})
}

func (c *QueueController) Status(ctx *gin.Context) {
	userID, ok := requireUser(ctx)
	if !ok {
		return
	}

	pos, err := c.queue.QueueStatus(ctx.Request.Context(), userID)
	if err != nil {
		respondError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"queue": converter.QueuePositionToApi(pos)})
}
