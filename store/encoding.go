package store

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/viant/sqlite-kd/geo"
)

// PointBlobSize is the length of an encoded point.
const PointBlobSize = 16

// EncodePoint encodes p into a BLOB: x then y as little-endian IEEE 754
// float64 values.
func EncodePoint(p geo.Point) []byte {
	b := make([]byte, PointBlobSize)
	binary.LittleEndian.PutUint64(b[0:], math.Float64bits(p.X))
	binary.LittleEndian.PutUint64(b[8:], math.Float64bits(p.Y))
	return b
}

// DecodePoint decodes a BLOB produced by EncodePoint.
func DecodePoint(b []byte) (geo.Point, error) {
	if len(b) != PointBlobSize {
		return geo.Point{}, fmt.Errorf("store: invalid point blob length %d (want %d)", len(b), PointBlobSize)
	}
	return geo.Point{
		X: math.Float64frombits(binary.LittleEndian.Uint64(b[0:])),
		Y: math.Float64frombits(binary.LittleEndian.Uint64(b[8:])),
	}, nil
}
