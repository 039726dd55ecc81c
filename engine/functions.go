package engine

import (
	"database/sql"
	"database/sql/driver"
	"fmt"
	"math"
	"strconv"
	"sync"

	sqlite "modernc.org/sqlite"

	"github.com/viant/sqlite-kd/geo"
)

var registerOnce sync.Once

// RegisterFunctions registers kd_distance and kd_rect_contains with the
// driver so they are available on new connections opened after this call.
// Note: existing open connections will not see new functions.
func RegisterFunctions(_ *sql.DB) error {
	var err error
	registerOnce.Do(func() {
		if err = sqlite.RegisterDeterministicScalarFunction("kd_distance", 4, kdDistanceImpl); err != nil {
			return
		}
		err = sqlite.RegisterDeterministicScalarFunction("kd_rect_contains", 6, kdRectContainsImpl)
	})
	return err
}

// asFloats converts SQL arguments to float64; ok is false when any is NULL.
func asFloats(name string, args []driver.Value) ([]float64, bool, error) {
	out := make([]float64, len(args))
	for i, arg := range args {
		switch v := arg.(type) {
		case nil:
			return nil, false, nil
		case float64:
			out[i] = v
		case int64:
			out[i] = float64(v)
		case string:
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return nil, false, fmt.Errorf("%s: argument %d: %w", name, i+1, err)
			}
			out[i] = f
		case []byte:
			f, err := strconv.ParseFloat(string(v), 64)
			if err != nil {
				return nil, false, fmt.Errorf("%s: argument %d: %w", name, i+1, err)
			}
			out[i] = f
		default:
			return nil, false, fmt.Errorf("%s: unsupported argument type %T", name, arg)
		}
	}
	return out, true, nil
}

// kd_distance(x1, y1, x2, y2) → REAL
func kdDistanceImpl(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
	if len(args) != 4 {
		return nil, fmt.Errorf("kd_distance: expected 4 arguments, got %d", len(args))
	}
	v, ok, err := asFloats("kd_distance", args)
	if err != nil || !ok {
		return nil, err
	}
	return math.Hypot(v[0]-v[2], v[1]-v[3]), nil
}

// kd_rect_contains(xmin, ymin, xmax, ymax, x, y) → INTEGER
func kdRectContainsImpl(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
	if len(args) != 6 {
		return nil, fmt.Errorf("kd_rect_contains: expected 6 arguments, got %d", len(args))
	}
	v, ok, err := asFloats("kd_rect_contains", args)
	if err != nil || !ok {
		return nil, err
	}
	r := geo.Rect{XMin: v[0], YMin: v[1], XMax: v[2], YMax: v[3]}
	if r.Contains(geo.Point{X: v[4], Y: v[5]}) {
		return int64(1), nil
	}
	return int64(0), nil
}
