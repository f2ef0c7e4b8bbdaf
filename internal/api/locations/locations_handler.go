package locations

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/SuperSchedules/superschedules/internal/api"
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

// Routes mounts the location endpoints under the caller's prefix.
func (h *HandlerImpl) Routes(r chi.Router) {
	r.Get("/resolve", h.Resolve)
	r.Get("/suggest", h.Suggest)
	r.Get("/{locationID}", h.GetLocation)
}

// Resolve handles GET /locations/resolve?q=Newton, MA[&default_state=MA].
func (h *HandlerImpl) Resolve(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("LocationsHandler").Start(r.Context(), "Resolve", trace.WithAttributes(
		semconv.HTTPRequestMethodKey.String(r.Method),
		semconv.HTTPRouteKey.String("/locations/resolve"),
	))
	defer span.End()

	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		span.SetStatus(codes.Error, "missing query")
		api.ErrorResponse(w, r, http.StatusBadRequest, "query parameter q is required")
		return
	}

	res := h.service.ResolveWithDefaultState(ctx, q, r.URL.Query().Get("default_state"))
	span.SetStatus(codes.Ok, "")
	api.WriteJSONResponse(w, r, http.StatusOK, res)
}

// Suggest handles GET /locations/suggest?q=new&country=US,CA&admin1=MA&limit=10.
func (h *HandlerImpl) Suggest(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("LocationsHandler").Start(r.Context(), "Suggest", trace.WithAttributes(
		semconv.HTTPRequestMethodKey.String(r.Method),
		semconv.HTTPRouteKey.String("/locations/suggest"),
	))
	defer span.End()

	l := h.logger.With(slog.String("handler", "Suggest"))
	params := r.URL.Query()

	opts := types.SuggestOptions{State: params.Get("admin1")}
	if country := params.Get("country"); country != "" {
		opts.Countries = strings.Split(country, ",")
	}
	if limit := params.Get("limit"); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil {
			span.SetStatus(codes.Error, "invalid limit")
			api.ErrorResponse(w, r, http.StatusBadRequest, "limit must be an integer")
			return
		}
		opts.Limit = n
	}

	results, err := h.service.Suggest(ctx, params.Get("q"), opts)
	switch {
	case errors.Is(err, ErrQueryTooShort):
		span.SetStatus(codes.Error, err.Error())
		api.ErrorResponse(w, r, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		l.ErrorContext(ctx, "Failed to suggest locations", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "suggest failed")
		api.ErrorResponse(w, r, http.StatusServiceUnavailable, "location index unavailable")
		return
	}

	span.SetStatus(codes.Ok, "")
	api.WriteJSONResponse(w, r, http.StatusOK, map[string]any{"results": results})
}

// GetLocation handles GET /locations/{locationID}.
func (h *HandlerImpl) GetLocation(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("LocationsHandler").Start(r.Context(), "GetLocation", trace.WithAttributes(
		semconv.HTTPRequestMethodKey.String(r.Method),
		semconv.HTTPRouteKey.String("/locations/{locationID}"),
	))
	defer span.End()

	id, err := uuid.Parse(chi.URLParam(r, "locationID"))
	if err != nil {
		span.SetStatus(codes.Error, "invalid location id")
		api.ErrorResponse(w, r, http.StatusBadRequest, "invalid location id")
		return
	}

	res, ok := h.service.GetByID(ctx, id)
	if !ok {
		span.SetStatus(codes.Error, "location not found")
		api.ErrorResponse(w, r, http.StatusNotFound, "location not found")
		return
	}
	span.SetStatus(codes.Ok, "")
	api.WriteJSONResponse(w, r, http.StatusOK, res.Location)
}
