package service

import (
	"time"

	"github.com/viant/sqlite-kd/geo"
)

// PointJSON is the wire form of a point.
type PointJSON struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

func toJSON(p geo.Point) PointJSON { return PointJSON{X: p.X, Y: p.Y} }

func toJSONs(ps []geo.Point) []PointJSON {
	out := make([]PointJSON, len(ps))
	for i, p := range ps {
		out[i] = toJSON(p)
	}
	return out
}

// RecordJSON is one point submitted for insertion.
type RecordJSON struct {
	ID    string  `json:"id,omitempty"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Label string  `json:"label,omitempty"`
}

// AddRequest is the body of POST .../points.
type AddRequest struct {
	Points []RecordJSON `json:"points"`
}

// AddResponse lists the identifiers of inserted points in request order.
type AddResponse struct {
	IDs []string `json:"ids"`
}

// NeighborJSON is a point with its distance to the query point.
type NeighborJSON struct {
	Point    PointJSON `json:"point"`
	Distance float64   `json:"distance"`
}

// NearestResponse answers a nearest query. Found is false for an empty
// dataset; Neighbors is set instead of Point when k was requested.
type NearestResponse struct {
	Found     bool           `json:"found"`
	Point     *PointJSON     `json:"point,omitempty"`
	Distance  float64        `json:"distance,omitempty"`
	Neighbors []NeighborJSON `json:"neighbors,omitempty"`
}

// RangeResponse lists the points inside the query rectangle.
type RangeResponse struct {
	Points []PointJSON `json:"points"`
}

// ContainsResponse answers a membership query.
type ContainsResponse struct {
	Contains bool `json:"contains"`
}

// SizeResponse reports the number of distinct indexed points.
type SizeResponse struct {
	Size int `json:"size"`
}

// InvalidateResponse reports how many in-memory indexes were dropped.
type InvalidateResponse struct {
	Dropped int `json:"dropped"`
}

// ChangeJSON is one change log entry.
type ChangeJSON struct {
	SCN       int64      `json:"scn"`
	Op        string     `json:"op"`
	ID        string     `json:"id"`
	Point     *PointJSON `json:"point,omitempty"`
	Label     string     `json:"label,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
}

// ChangesResponse pages through the change log of a dataset.
type ChangesResponse struct {
	Changes []ChangeJSON `json:"changes"`
	Next    int64        `json:"next"`
}

type errorResponse struct {
	Error string `json:"error"`
}
