package changelog

import (
	"encoding/json"
	"time"

	"github.com/viant/sqlite-kd/geo"
	"github.com/viant/sqlite-kd/store"
)

// Operations recorded in the log.
const (
	OpInsert = "insert"
	OpUpdate = "update"
	OpDelete = "delete"
)

// Entry mirrors a single row in kd_point_log.
type Entry struct {
	DatasetID string    `json:"datasetId"`
	Table     string    `json:"table"`
	SCN       int64     `json:"scn"`
	Op        string    `json:"op"`
	PointID   string    `json:"pointId"`
	Payload   []byte    `json:"payload"`
	CreatedAt time.Time `json:"createdAt"`
}

type payload struct {
	DatasetID string  `json:"dataset_id"`
	ID        string  `json:"id"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Label     *string `json:"label"`
}

// Record decodes the row image carried by the entry.
func (e *Entry) Record() (store.Record, error) {
	var p payload
	if err := json.Unmarshal(e.Payload, &p); err != nil {
		return store.Record{}, err
	}
	r := store.Record{ID: p.ID, Dataset: p.DatasetID, Point: geo.Point{X: p.X, Y: p.Y}}
	if p.Label != nil {
		r.Label = *p.Label
	}
	return r, nil
}

// SyncState describes the latest SCN applied locally for a dataset/table pair.
type SyncState struct {
	DatasetID string
	Table     string
	LastSCN   int64
	UpdatedAt time.Time
}
