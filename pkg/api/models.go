package api

// RouteRequest is the JSON body for POST /api/v1/route.
type RouteRequest struct {
	Start LatLngJSON `json:"start"`
	End   LatLngJSON `json:"end"`
}

// LatLngJSON represents a lat/lng pair in JSON.
type LatLngJSON struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// RouteResponse is the JSON response for a successful route query.
type RouteResponse struct {
	TotalDistanceMeters float64       `json:"total_distance_meters"`
	Segments            []SegmentJSON `json:"segments"`
}

// SegmentJSON represents a road segment in the response.
type SegmentJSON struct {
	DistanceMeters float64      `json:"distance_meters"`
	Geometry       []LatLngJSON `json:"geometry"`
}

// MatrixRequest is the JSON body for POST /api/v1/matrix.
type MatrixRequest struct {
	Sources []LatLngJSON `json:"sources"`
	Targets []LatLngJSON `json:"targets"`
}

// MatrixResponse holds one row per source. Unreachable pairs are null.
type MatrixResponse struct {
	DistancesMeters [][]*float64 `json:"distances_meters"`
}

// ConnectivityRequest is the JSON body for POST /api/v1/connectivity.
// A missing max_distance_meters checks for any connection at all.
type ConnectivityRequest struct {
	Point             LatLngJSON `json:"point"`
	MaxDistanceMeters *float64   `json:"max_distance_meters,omitempty"`
}

// ConnectivityResponse is the JSON response for a connectivity check.
type ConnectivityResponse struct {
	Connected bool `json:"connected"`
}

// ErrorResponse is the JSON response for errors.
type ErrorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

// HealthResponse is the JSON response for GET /api/v1/health.
type HealthResponse struct {
	Status string `json:"status"`
}
