package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"grpc-queue-service/internal/adapter/identity"
	"grpc-queue-service/internal/adapter/presenter"
	"grpc-queue-service/internal/usecase/queue"
	apperrors "grpc-queue-service/pkg/errors"
	"grpc-queue-service/pkg/logger"
)

// QueueHandler handles HTTP requests for queue operations
type QueueHandler struct {
	uc  queue.Service
	log *zap.Logger
}

// NewQueueHandler creates a new QueueHandler instance
func NewQueueHandler(uc queue.Service, log *zap.Logger) *QueueHandler {
	return &QueueHandler{
		uc:  uc,
		log: log,
	}
}

// CreateQueue handles POST /v1/queues
func (h *QueueHandler) CreateQueue(c *gin.Context) {
	var body presenter.CreateQueueBody
	if err := c.ShouldBindJSON(&body); err != nil {
		h.log.Warn("Invalid create queue request", zap.Error(err))
		c.JSON(http.StatusBadRequest, presenter.ErrorBody{
			Error:   "validation_error",
			Message: err.Error(),
		})
		return
	}

	resp, err := h.uc.CreateQueue(c.Request.Context(), body.ToCreateRequest())
	if err != nil {
		h.handleError(c, "CreateQueue", err)
		return
	}

	c.JSON(http.StatusCreated, presenter.FromQueue(resp.Queue))
}

// ListQueues handles GET /v1/queues
func (h *QueueHandler) ListQueues(c *gin.Context) {
	resp, err := h.uc.ListQueues(c.Request.Context(), queue.ListQueuesRequest{})
	if err != nil {
		h.handleError(c, "ListQueues", err)
		return
	}

	c.JSON(http.StatusOK, presenter.FromQueues(resp))
}

// GetQueue handles GET /v1/queues/:id
func (h *QueueHandler) GetQueue(c *gin.Context) {
	resp, err := h.uc.GetQueue(c.Request.Context(), queue.GetQueueRequest{QueueID: c.Param("id")})
	if err != nil {
		h.handleError(c, "GetQueue", err)
		return
	}

	c.JSON(http.StatusOK, presenter.FromQueue(resp.Queue))
}

// JoinQueue handles POST /v1/queues/:id/entries
func (h *QueueHandler) JoinQueue(c *gin.Context) {
	caller, ok := identity.FromContext(c.Request.Context())
	if !ok {
		h.handleError(c, "JoinQueue", apperrors.ErrUnauthenticated)
		return
	}

	resp, err := h.uc.JoinQueue(c.Request.Context(), queue.JoinQueueRequest{
		QueueID:  c.Param("id"),
		UserID:   caller.UserID,
		UserName: caller.UserName,
	})
	if err != nil {
		h.handleError(c, "JoinQueue", err)
		return
	}

	c.JSON(http.StatusCreated, presenter.FromJoin(resp))
}

// ListWaiting handles GET /v1/queues/:id/entries
func (h *QueueHandler) ListWaiting(c *gin.Context) {
	resp, err := h.uc.ListWaiting(c.Request.Context(), queue.ListWaitingRequest{QueueID: c.Param("id")})
	if err != nil {
		h.handleError(c, "ListWaiting", err)
		return
	}

	c.JSON(http.StatusOK, presenter.FromWaiting(resp))
}

// LeaveQueue handles DELETE /v1/queues/:id/entries/:entryId
func (h *QueueHandler) LeaveQueue(c *gin.Context) {
	caller, ok := identity.FromContext(c.Request.Context())
	if !ok {
		h.handleError(c, "LeaveQueue", apperrors.ErrUnauthenticated)
		return
	}

	resp, err := h.uc.LeaveQueue(c.Request.Context(), queue.LeaveQueueRequest{
		QueueID: c.Param("id"),
		EntryID: c.Param("entryId"),
		UserID:  caller.UserID,
	})
	if err != nil {
		h.handleError(c, "LeaveQueue", err)
		return
	}

	c.JSON(http.StatusOK, presenter.FromLeave(resp))
}

// AdvanceQueue handles POST /v1/queues/:id/advance
func (h *QueueHandler) AdvanceQueue(c *gin.Context) {
	resp, err := h.uc.AdvanceQueue(c.Request.Context(), queue.AdvanceQueueRequest{QueueID: c.Param("id")})
	if err != nil {
		h.handleError(c, "AdvanceQueue", err)
		return
	}

	c.JSON(http.StatusOK, presenter.FromAdvance(resp))
}

// ListMyTickets handles GET /v1/me/tickets
func (h *QueueHandler) ListMyTickets(c *gin.Context) {
	caller, ok := identity.FromContext(c.Request.Context())
	if !ok {
		h.handleError(c, "ListMyTickets", apperrors.ErrUnauthenticated)
		return
	}

	resp, err := h.uc.ListMyTickets(c.Request.Context(), queue.ListMyTicketsRequest{UserID: caller.UserID})
	if err != nil {
		h.handleError(c, "ListMyTickets", err)
		return
	}

	c.JSON(http.StatusOK, presenter.FromTickets(resp))
}

// handleError converts usecase errors to appropriate HTTP responses
func (h *QueueHandler) handleError(c *gin.Context, op string, err error) {
	status, body := presenter.Error(err)

	log := logger.WithContext(c.Request.Context(), h.log)
	if status >= http.StatusInternalServerError {
		log.Error("Gin "+op+" failed", zap.Error(err))
	} else {
		log.Warn("Gin "+op+" rejected", zap.Int("status", status), zap.Error(err))
	}

	c.JSON(status, body)
}
