package rag

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/SuperSchedules/superschedules/internal/api"
	"github.com/SuperSchedules/superschedules/internal/api/embedding"
	"github.com/SuperSchedules/superschedules/internal/types"
)

type HandlerImpl struct {
	service Service
	logger  *slog.Logger
}

func NewHandlerImpl(service Service, logger *slog.Logger) *HandlerImpl {
	return &HandlerImpl{
		service: service,
		logger:  logger,
	}
}

func (h *HandlerImpl) Routes(r chi.Router) {
	r.Post("/events", h.GetContextEvents)
}

// GetContextEvents handles POST /rag/events.
func (h *HandlerImpl) GetContextEvents(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("RAGHandler").Start(r.Context(), "GetContextEvents", trace.WithAttributes(
		semconv.HTTPRequestMethodKey.String(r.Method),
		semconv.HTTPRouteKey.String("/rag/events"),
	))
	defer span.End()

	l := h.logger.With(slog.String("handler", "GetContextEvents"))

	var req types.RetrievalRequest
	if err := api.DecodeJSONBody(w, r, &req); err != nil {
		span.SetStatus(codes.Error, "invalid body")
		api.ErrorResponse(w, r, http.StatusBadRequest, err.Error())
		return
	}
	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		span.SetStatus(codes.Error, "missing query")
		api.ErrorResponse(w, r, http.StatusBadRequest, "query is required")
		return
	}
	span.SetAttributes(attribute.String("retrieval.query", req.Query))

	result, err := h.service.GetContextEventsTiered(ctx, req)
	switch {
	case errors.Is(err, ErrInvalidRequest):
		span.SetStatus(codes.Error, err.Error())
		api.ErrorResponse(w, r, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, embedding.ErrDimensionMismatch):
		l.ErrorContext(ctx, "Embedding dimension mismatch", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "dimension mismatch")
		api.ErrorResponse(w, r, http.StatusInternalServerError, "embedding index is misconfigured")
		return
	case err != nil:
		l.ErrorContext(ctx, "Failed to retrieve events", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "retrieval failed")
		api.ErrorResponse(w, r, http.StatusInternalServerError, "failed to retrieve events")
		return
	}

	span.SetStatus(codes.Ok, "")
	api.WriteJSONResponse(w, r, http.StatusOK, result)
}
