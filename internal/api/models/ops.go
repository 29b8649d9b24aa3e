package models

// Health represents the health status of the service.
type Health struct {
	Status  HealthStatus           `json:"status"`
	Time    Timestamp              `json:"time"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// SystemStatus represents the overall system status.
type SystemStatus struct {
	Status     HealthStatus      `json:"status"`
	Time       Timestamp         `json:"time"`
	Graph      *GraphStatus      `json:"graph,omitempty"`
	Subsystems []SubsystemStatus `json:"subsystems"`
	RouteCache *RouteCacheStatus `json:"routeCache,omitempty"`
}

// GraphStatus describes the loaded road graph.
type GraphStatus struct {
	Source          string    `json:"source"`
	Version         string    `json:"version,omitempty"`
	Points          int       `json:"points"`
	Ways            int       `json:"ways"`
	SkippedWays     int       `json:"skippedWays"`
	Nodes           int       `json:"nodes"`
	Edges           int       `json:"edges"`
	BuiltAt         Timestamp `json:"builtAt"`
	BuildDurationMs int64     `json:"buildDurationMs"`
}

// SubsystemStatus represents the status of a subsystem.
type SubsystemStatus struct {
	Name   string       `json:"name"`
	Status HealthStatus `json:"status"`
	Detail *string      `json:"detail,omitempty"`
}

// RouteCacheStatus reports result cache occupancy.
type RouteCacheStatus struct {
	Entries  int `json:"entries"`
	Capacity int `json:"capacity"`
}

// GraphReloadResponse is returned by the admin reload endpoint.
type GraphReloadResponse struct {
	Graph GraphStatus `json:"graph"`
}
