package gateway

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"bubbles/internal/logger"
	"bubbles/internal/unified"
	apperrors "bubbles/pkg/errors"
)

// Processor is the part of the unified processor the transports need.
type Processor interface {
	ProcessRequest(ctx context.Context, raw unified.RawRequest) *unified.UnifiedResponse
	IsReady() bool
	GetMetrics() unified.Metrics
	GetSystemHealth() unified.SystemHealth
}

type Handler struct {
	processor Processor
	logger    logger.Logger
}

func NewHandler(processor Processor, log logger.Logger) *Handler {
	return &Handler{
		processor: processor,
		logger:    log,
	}
}

func (h *Handler) RegisterRoutes(router gin.IRouter) {
	v1 := router.Group("/api/v1")
	{
		v1.POST("/commands", h.SubmitCommand)
		v1.GET("/metrics", h.GetMetrics)
		v1.GET("/health/protocols", h.GetProtocolHealth)
	}
}

// SubmitCommand godoc
// @Summary      Submit a command
// @Description  Runs a command through the unified processor and waits for its result
// @Tags         commands
// @Accept       json
// @Produce      json
// @Param        command  body      unified.RawRequest  true  "Command"
// @Success      200      {object}  unified.UnifiedResponse
// @Failure      400      {object}  unified.UnifiedResponse
// @Failure      502      {object}  unified.UnifiedResponse
// @Failure      503      {object}  unified.UnifiedResponse
// @Router       /commands [post]
func (h *Handler) SubmitCommand(c *gin.Context) {
	var raw unified.RawRequest
	if err := c.ShouldBindJSON(&raw); err != nil {
		c.JSON(http.StatusBadRequest, apperrors.ToErrorResponse(apperrors.ErrValidation.WithCause(err).WithMessage("invalid command body")))
		return
	}
	raw.Source = unified.SourceREST

	// A client that disconnects does not abandon a command it already submitted.
	resp := process(context.WithoutCancel(c.Request.Context()), h.processor, raw)
	c.JSON(statusFor(resp), resp)
}

// process runs raw unless the processor has stopped, in which case the
// caller gets a SERVICE_UNAVAILABLE result.
func process(ctx context.Context, p Processor, raw unified.RawRequest) (resp *unified.UnifiedResponse) {
	if !p.IsReady() {
		return unavailable(raw)
	}
	// Shutdown may still win the race after the check above.
	defer func() {
		if r := recover(); r != nil {
			if r != unified.ErrNotInitialized {
				panic(r)
			}
			resp = unavailable(raw)
		}
	}()
	return p.ProcessRequest(ctx, raw)
}

func unavailable(raw unified.RawRequest) *unified.UnifiedResponse {
	appErr := apperrors.ErrServiceUnavailable.WithMessage("command processor is not accepting requests")
	return &unified.UnifiedResponse{
		Success:   false,
		RequestID: raw.ID,
		Error:     appErr.Error(),
		ErrorCode: appErr.Code,
		Method:    unified.MethodDirect,
		Timestamp: time.Now(),
	}
}
