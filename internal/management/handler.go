package management

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"bubbles/internal/config"
	"bubbles/internal/logger"
	"bubbles/pkg/errors"
)

// ChangedByHeader names the operator recorded on rule change events.
const ChangedByHeader = "X-Changed-By"

type Handler struct {
	service *Service
	logger  logger.Logger
}

func NewHandler(service *Service, log logger.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  log,
	}
}

func (h *Handler) RegisterRoutes(router gin.IRouter) {
	v1 := router.Group("/api/v1")
	{
		rules := v1.Group("/routing/hint-rules")
		{
			rules.GET("", h.ListHintRules)
			rules.PUT("", h.ReplaceHintRules)
			rules.POST("/reload", h.ReloadHintRules)
		}
	}
}

func (h *Handler) handleError(c *gin.Context, err error) {
	h.logger.ErrorwCtx(c.Request.Context(), "Request error", "error", err, "path", c.Request.URL.Path)
	c.JSON(errors.ToHTTPStatus(err), errors.ToErrorResponse(err))
}

type HintRulesResponse struct {
	Rules []config.HintRuleConfig `json:"rules"`
}

type ReplaceHintRulesRequest struct {
	Rules []config.HintRuleConfig `json:"rules"`
}

// ListHintRules godoc
// @Summary      List routing hint rules
// @Description  Returns the hint rules active on this gateway instance
// @Tags         routing
// @Produce      json
// @Success      200  {object}  HintRulesResponse
// @Router       /routing/hint-rules [get]
func (h *Handler) ListHintRules(c *gin.Context) {
	rules := h.service.ListHintRules(c.Request.Context())
	if rules == nil {
		rules = []config.HintRuleConfig{}
	}
	c.JSON(http.StatusOK, HintRulesResponse{Rules: rules})
}

// ReplaceHintRules godoc
// @Summary      Replace routing hint rules
// @Description  Validates and activates a complete hint rule set, then broadcasts it to other instances
// @Tags         routing
// @Accept       json
// @Produce      json
// @Param        X-Changed-By  header    string                   false  "Operator making the change"
// @Param        rules         body      ReplaceHintRulesRequest  true   "Replacement rule set"
// @Success      200           {object}  HintRulesResponse
// @Failure      400           {object}  map[string]interface{}
// @Failure      503           {object}  map[string]interface{}
// @Router       /routing/hint-rules [put]
func (h *Handler) ReplaceHintRules(c *gin.Context) {
	var req ReplaceHintRulesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errors.ToErrorResponse(errors.ErrValidation.WithCause(err)))
		return
	}

	rules, err := h.service.ReplaceHintRules(c.Request.Context(), req.Rules, changedBy(c))
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, HintRulesResponse{Rules: rules})
}

// ReloadHintRules godoc
// @Summary      Rebroadcast routing hint rules
// @Description  Publishes this instance's hint rules so every instance converges on them
// @Tags         routing
// @Param        X-Changed-By  header  string  false  "Operator making the change"
// @Success      202
// @Failure      503  {object}  map[string]interface{}
// @Router       /routing/hint-rules/reload [post]
func (h *Handler) ReloadHintRules(c *gin.Context) {
	if err := h.service.ReloadHintRules(c.Request.Context(), changedBy(c)); err != nil {
		h.handleError(c, err)
		return
	}
	c.Status(http.StatusAccepted)
}

func changedBy(c *gin.Context) string {
	if v := c.GetHeader(ChangedByHeader); v != "" {
		return v
	}
	return "unknown"
}
