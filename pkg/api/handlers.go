package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"mime"
	"net/http"

	"go.uber.org/zap"

	"github.com/azybler/chroute/pkg/routing"
	"github.com/azybler/chroute/pkg/store"
)

// maxMatrixPoints bounds each side of a matrix request.
const maxMatrixPoints = 100

// StatsProvider reports graph statistics for GET /api/v1/stats.
type StatsProvider interface {
	Stats() (store.Stats, error)
}

// Handlers holds the HTTP handlers and their dependencies.
type Handlers struct {
	svc   routing.Service
	stats StatsProvider
	log   *zap.Logger
}

// NewHandlers creates handlers with the given routing service.
func NewHandlers(svc routing.Service, stats StatsProvider, log *zap.Logger) *Handlers {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handlers{
		svc:   svc,
		stats: stats,
		log:   log,
	}
}

// HandleRoute handles POST /api/v1/route.
func (h *Handlers) HandleRoute(w http.ResponseWriter, r *http.Request) {
	var req RouteRequest
	if !decodeJSON(w, r, 1024, &req) {
		return
	}

	// Validate coordinates.
	if err := validateCoord(req.Start); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_coordinates", "start")
		return
	}
	if err := validateCoord(req.End); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_coordinates", "end")
		return
	}

	// Route.
	result, err := h.svc.Route(r.Context(), req.Start.latLng(), req.End.latLng())
	if err != nil {
		h.writeQueryError(w, r, err)
		return
	}

	// Build response.
	resp := RouteResponse{
		TotalDistanceMeters: result.TotalDistanceMeters,
	}
	for _, seg := range result.Segments {
		geom := make([]LatLngJSON, len(seg.Geometry))
		for i, ll := range seg.Geometry {
			geom[i] = LatLngJSON{Lat: ll.Lat, Lng: ll.Lng}
		}
		resp.Segments = append(resp.Segments, SegmentJSON{
			DistanceMeters: seg.DistanceMeters,
			Geometry:       geom,
		})
	}

	writeJSON(w, resp)
}

// HandleMatrix handles POST /api/v1/matrix.
func (h *Handlers) HandleMatrix(w http.ResponseWriter, r *http.Request) {
	var req MatrixRequest
	if !decodeJSON(w, r, 64<<10, &req) {
		return
	}

	sources, field := convertAll(req.Sources, "sources")
	if field != "" {
		writeError(w, http.StatusBadRequest, "invalid_coordinates", field)
		return
	}
	targets, field := convertAll(req.Targets, "targets")
	if field != "" {
		writeError(w, http.StatusBadRequest, "invalid_coordinates", field)
		return
	}

	weights, err := h.svc.Matrix(r.Context(), sources, targets)
	if err != nil {
		h.writeQueryError(w, r, err)
		return
	}

	resp := MatrixResponse{DistancesMeters: make([][]*float64, len(weights))}
	for i, row := range weights {
		resp.DistancesMeters[i] = make([]*float64, len(row))
		for j, d := range row {
			if !math.IsInf(d, 1) {
				resp.DistancesMeters[i][j] = &d
			}
		}
	}
	writeJSON(w, resp)
}

// HandleConnectivity handles POST /api/v1/connectivity.
func (h *Handlers) HandleConnectivity(w http.ResponseWriter, r *http.Request) {
	var req ConnectivityRequest
	if !decodeJSON(w, r, 1024, &req) {
		return
	}
	if err := validateCoord(req.Point); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_coordinates", "point")
		return
	}
	maxWeight := math.Inf(1)
	if req.MaxDistanceMeters != nil {
		maxWeight = *req.MaxDistanceMeters
	}

	ok, err := h.svc.Connected(r.Context(), req.Point.latLng(), maxWeight)
	if err != nil {
		h.writeQueryError(w, r, err)
		return
	}
	writeJSON(w, ConnectivityResponse{Connected: ok})
}

// HandleHealth handles GET /api/v1/health.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, HealthResponse{Status: "ok"})
}

// HandleStats handles GET /api/v1/stats.
func (h *Handlers) HandleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.stats.Stats()
	if err != nil {
		h.log.Error("stats", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal_error", "")
		return
	}
	writeJSON(w, stats)
}

// writeQueryError maps routing errors onto HTTP statuses.
func (h *Handlers) writeQueryError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, routing.ErrPointTooFar):
		writeError(w, http.StatusUnprocessableEntity, "point_too_far_from_road", "")
	case errors.Is(err, routing.ErrNoRoute):
		writeError(w, http.StatusNotFound, "no_route_found", "")
	case errors.Is(err, routing.ErrInvalidQuery):
		writeError(w, http.StatusBadRequest, "invalid_request", "")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusServiceUnavailable, "request_timeout", "")
	default:
		h.log.Error("query failed", zap.String("path", r.URL.Path), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal_error", "")
	}
}

// decodeJSON enforces the JSON content type and decodes a bounded body into
// v. It writes the error response and returns false on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, limit int64, v any) bool {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "application/json" {
		writeError(w, http.StatusBadRequest, "invalid_request", "")
		return false
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, limit)).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "")
		return false
	}
	return true
}

func (ll LatLngJSON) latLng() routing.LatLng {
	return routing.LatLng{Lat: ll.Lat, Lng: ll.Lng}
}

// convertAll validates a point list and returns the offending field name on
// failure.
func convertAll(points []LatLngJSON, name string) ([]routing.LatLng, string) {
	if len(points) == 0 || len(points) > maxMatrixPoints {
		return nil, name
	}
	out := make([]routing.LatLng, len(points))
	for i, p := range points {
		if err := validateCoord(p); err != nil {
			return nil, fmt.Sprintf("%s[%d]", name, i)
		}
		out[i] = p.latLng()
	}
	return out, ""
}

func validateCoord(ll LatLngJSON) error {
	if math.IsNaN(ll.Lat) || math.IsNaN(ll.Lng) || math.IsInf(ll.Lat, 0) || math.IsInf(ll.Lng, 0) {
		return errors.New("coordinates must be finite numbers")
	}
	if ll.Lat < -90 || ll.Lat > 90 || ll.Lng < -180 || ll.Lng > 180 {
		return errors.New("coordinates out of range")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, field string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{Error: code, Field: field})
}
