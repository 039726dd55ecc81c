package kd

import (
	"database/sql"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/viant/sqlite-kd/geo"
	"github.com/viant/sqlite-kd/store"
)

// QueryKind names a MATCH operation.
type QueryKind string

const (
	QueryNearest QueryKind = "nearest"
	QueryKNN     QueryKind = "knn"
	QueryWithin  QueryKind = "within"
	QueryRange   QueryKind = "range"
)

// Query is a parsed MATCH argument.
type Query struct {
	Kind   QueryKind
	Point  geo.Point
	K      int
	Radius float64
	Rect   geo.Rect
}

// String formats q as a MATCH argument.
func (q Query) String() string {
	f := func(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }
	switch q.Kind {
	case QueryKNN:
		return fmt.Sprintf("knn:%d:%s,%s", q.K, f(q.Point.X), f(q.Point.Y))
	case QueryWithin:
		return fmt.Sprintf("within:%s:%s,%s", f(q.Radius), f(q.Point.X), f(q.Point.Y))
	case QueryRange:
		return fmt.Sprintf("range:%s,%s,%s,%s", f(q.Rect.XMin), f(q.Rect.YMin), f(q.Rect.XMax), f(q.Rect.YMax))
	}
	return fmt.Sprintf("nearest:%s,%s", f(q.Point.X), f(q.Point.Y))
}

func decodeMatchArg(v interface{}) (Query, error) {
	switch val := v.(type) {
	case []byte:
		if len(val) == store.PointBlobSize {
			p, err := store.DecodePoint(val)
			if err != nil {
				return Query{}, err
			}
			return Query{Kind: QueryNearest, Point: p}, nil
		}
		return ParseQuery(string(val))
	case string:
		return ParseQuery(val)
	default:
		return Query{}, fmt.Errorf("kd: expected MATCH arg as BLOB or string, got %T", v)
	}
}

// ParseQuery parses a MATCH string. A bare "x,y" is a nearest query.
func ParseQuery(raw string) (Query, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return Query{}, fmt.Errorf("kd: MATCH string is empty")
	}
	op, rest := "nearest", s
	if i := strings.IndexByte(s, ':'); i >= 0 {
		op, rest = strings.ToLower(strings.TrimSpace(s[:i])), s[i+1:]
	}
	switch QueryKind(op) {
	case QueryNearest:
		p, err := parsePoint(rest)
		if err != nil {
			return Query{}, err
		}
		return Query{Kind: QueryNearest, Point: p}, nil
	case QueryKNN:
		head, tail, ok := strings.Cut(rest, ":")
		if !ok {
			return Query{}, fmt.Errorf("kd: knn expects 'knn:k:x,y', got %q", raw)
		}
		k, err := strconv.Atoi(strings.TrimSpace(head))
		if err != nil || k < 0 {
			return Query{}, fmt.Errorf("kd: invalid knn count %q", head)
		}
		p, err := parsePoint(tail)
		if err != nil {
			return Query{}, err
		}
		return Query{Kind: QueryKNN, Point: p, K: k}, nil
	case QueryWithin:
		head, tail, ok := strings.Cut(rest, ":")
		if !ok {
			return Query{}, fmt.Errorf("kd: within expects 'within:r:x,y', got %q", raw)
		}
		r, err := parseFloat(head)
		if err != nil || r < 0 {
			return Query{}, fmt.Errorf("kd: invalid radius %q", head)
		}
		p, err := parsePoint(tail)
		if err != nil {
			return Query{}, err
		}
		return Query{Kind: QueryWithin, Point: p, Radius: r}, nil
	case QueryRange:
		v, err := parseFloats(rest, 4)
		if err != nil {
			return Query{}, err
		}
		r, err := geo.NewRect(v[0], v[1], v[2], v[3])
		if err != nil {
			return Query{}, fmt.Errorf("kd: %w", err)
		}
		return Query{Kind: QueryRange, Rect: r}, nil
	}
	return Query{}, fmt.Errorf("kd: unsupported MATCH operation %q", op)
}

func parsePoint(s string) (geo.Point, error) {
	v, err := parseFloats(s, 2)
	if err != nil {
		return geo.Point{}, err
	}
	return geo.Point{X: v[0], Y: v[1]}, nil
}

func parseFloats(s string, n int) ([]float64, error) {
	parts := strings.Split(s, ",")
	if len(parts) != n {
		return nil, fmt.Errorf("kd: expected %d comma separated numbers, got %q", n, s)
	}
	out := make([]float64, n)
	for i, p := range parts {
		f, err := parseFloat(p)
		if err != nil {
			return nil, err
		}
		out[i] = f
	}
	return out, nil
}

func parseFloat(s string) (float64, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("kd: invalid MATCH number %q: %w", strings.TrimSpace(s), err)
	}
	return f, nil
}

func nanIfNull(v sql.NullFloat64) float64 {
	if !v.Valid {
		return math.NaN()
	}
	return v.Float64
}
