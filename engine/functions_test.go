package engine

import (
	"database/sql"
	"math"
	"testing"
)

func TestRegisterFunctionsAndUse(t *testing.T) {
	// Register globally before first connection so functions are available.
	if err := RegisterFunctions(nil); err != nil {
		t.Fatalf("RegisterFunctions failed: %v", err)
	}
	db, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	defer db.Close()

	// Registration is idempotent.
	if err := RegisterFunctions(db); err != nil {
		t.Fatalf("RegisterFunctions failed: %v", err)
	}

	var dist float64
	if err := db.QueryRow(`SELECT kd_distance(0, 0, 3, 4)`).Scan(&dist); err != nil {
		t.Fatalf("kd_distance query failed: %v", err)
	}
	if math.Abs(dist-5) > 1e-9 {
		t.Fatalf("kd_distance = %v, want 5", dist)
	}

	var inside, onEdge, outside int
	if err := db.QueryRow(`SELECT kd_rect_contains(0, 0, 0.6, 0.6, 0.5, 0.5),
		kd_rect_contains(0, 0, 0.6, 0.6, 0.6, 0.0),
		kd_rect_contains(0, 0, 0.6, 0.6, 0.75, 0.25)`).Scan(&inside, &onEdge, &outside); err != nil {
		t.Fatalf("kd_rect_contains query failed: %v", err)
	}
	if inside != 1 || onEdge != 1 || outside != 0 {
		t.Fatalf("kd_rect_contains = %d,%d,%d; want 1,1,0", inside, onEdge, outside)
	}

	var null sql.NullFloat64
	if err := db.QueryRow(`SELECT kd_distance(NULL, 0, 1, 1)`).Scan(&null); err != nil {
		t.Fatalf("kd_distance(NULL) query failed: %v", err)
	}
	if null.Valid {
		t.Fatalf("kd_distance(NULL) = %v, want NULL", null.Float64)
	}
}
