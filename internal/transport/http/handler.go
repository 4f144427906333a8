package http

import (
	"errors"
	"net/http"

	"log/slog"

	retrievalapp "github.com/astro-web3/permission-filter/internal/app/retrieval"
	"github.com/astro-web3/permission-filter/internal/app/tools"
	"github.com/astro-web3/permission-filter/internal/domain/access"
	"github.com/astro-web3/permission-filter/internal/domain/retrieval"
	"github.com/astro-web3/permission-filter/internal/domain/token"
	"github.com/astro-web3/permission-filter/internal/infra/jwks"
	"github.com/astro-web3/permission-filter/internal/infra/pdp"
	"github.com/astro-web3/permission-filter/pkg/logger"
	"github.com/astro-web3/permission-filter/pkg/tracer"
	"github.com/gin-gonic/gin"
)

type Handler struct {
	toolsService tools.Service
	queryService retrievalapp.QueryService
}

func NewHandler(toolsService tools.Service, queryService retrievalapp.QueryService) *Handler {
	return &Handler{
		toolsService: toolsService,
		queryService: queryService,
	}
}

func (h *Handler) ValidateToken(c *gin.Context) {
	ctx, span := tracer.Start(c.Request.Context(), "transport.http.ValidateToken")
	defer span.End()

	var req tools.ValidateTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	claims, err := h.toolsService.ValidateToken(ctx, req)
	if err != nil {
		span.RecordError(err)
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"claims": claims.Raw})
}

func (h *Handler) CheckPermission(c *gin.Context) {
	ctx, span := tracer.Start(c.Request.Context(), "transport.http.CheckPermission")
	defer span.End()

	var req tools.CheckPermissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	allowed, err := h.toolsService.CheckPermission(ctx, req)
	if err != nil {
		span.RecordError(err)
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"allow": allowed})
}

func (h *Handler) Query(c *gin.Context) {
	ctx, span := tracer.Start(c.Request.Context(), "transport.http.Query")
	defer span.End()

	var req retrievalapp.QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	docs, err := h.queryService.Query(ctx, req)
	if err != nil {
		span.RecordError(err)
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"documents": toDocResponses(docs)})
}

func (h *Handler) ListPermitted(c *gin.Context) {
	ctx, span := tracer.Start(c.Request.Context(), "transport.http.ListPermitted")
	defer span.End()

	var req retrievalapp.QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	docs, err := h.queryService.ListPermitted(ctx, req)
	if err != nil {
		span.RecordError(err)
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"documents": toDocResponses(docs)})
}

type docResponse struct {
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata"`
}

func toDocResponses(docs []retrieval.Document) []docResponse {
	out := make([]docResponse, 0, len(docs))
	for _, doc := range docs {
		out = append(out, docResponse{
			Content:  doc.Content,
			Metadata: doc.Metadata,
		})
	}
	return out
}

// writeError maps the error taxonomy onto HTTP statuses, preserving the
// concrete reason in the response body.
func (h *Handler) writeError(c *gin.Context, err error) {
	status := statusForError(err)
	if status >= http.StatusInternalServerError {
		logger.ErrorContext(c.Request.Context(), "request failed",
			slog.String("error", err.Error()))
	} else {
		logger.WarnContext(c.Request.Context(), "request rejected",
			slog.String("error", err.Error()))
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, tools.ErrMissingToken),
		errors.Is(err, tools.ErrMissingAction),
		errors.Is(err, access.ErrInvalidUserShape),
		errors.Is(err, access.ErrInvalidResourceShape):
		return http.StatusBadRequest
	case errors.Is(err, token.ErrMissingKeyID),
		errors.Is(err, token.ErrKeyNotFound),
		errors.Is(err, token.ErrMalformedToken),
		errors.Is(err, token.ErrSignatureInvalid),
		errors.Is(err, token.ErrTokenExpired):
		return http.StatusUnauthorized
	case errors.Is(err, pdp.ErrTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, jwks.ErrSourceUnreachable),
		errors.Is(err, pdp.ErrServiceUnavailable):
		return http.StatusBadGateway
	case errors.Is(err, retrieval.ErrNoRetrieverConfigured):
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}
