package mapbox

// apiStatus is the status envelope present on every Mapbox navigation response.
type apiStatus struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type matrixResponse struct {
	Durations [][]*float64 `json:"durations"`
	Distances [][]*float64 `json:"distances"`
}

type directionsResponse struct {
	Routes []route `json:"routes"`
}

type route struct {
	Geometry string  `json:"geometry"`
	Duration float64 `json:"duration"`
	Distance float64 `json:"distance"`
}
