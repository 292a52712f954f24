package openrouteservice

// matrixRequest is the ORS matrix API request body.
type matrixRequest struct {
	Locations    [][]float64 `json:"locations"`
	Sources      []int       `json:"sources"`
	Destinations []int       `json:"destinations"`
	Metrics      []string    `json:"metrics"`
	Units        string      `json:"units"`
}

// matrixResponse is the ORS matrix API response. Unroutable cells are null.
type matrixResponse struct {
	Durations [][]*float64 `json:"durations"`
	Distances [][]*float64 `json:"distances"`
}

// directionsRequest is the ORS directions API request body.
type directionsRequest struct {
	Coordinates  [][]float64 `json:"coordinates"`
	Instructions bool        `json:"instructions"`
	Geometry     bool        `json:"geometry"`
	Units        string      `json:"units"`
}

// directionsResponse is the ORS directions API response.
type directionsResponse struct {
	Routes []route `json:"routes"`
}

type route struct {
	Summary  routeSummary `json:"summary"`
	Geometry string       `json:"geometry"`
}

type routeSummary struct {
	Distance float64 `json:"distance"` // meters
	Duration float64 `json:"duration"` // seconds
}

// errorResponse is an error body from ORS.
type errorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// errorCodeRouteNotFound is returned with HTTP 404 or 400 when no route exists.
const errorCodeRouteNotFound = 2009
