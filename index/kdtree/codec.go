package kdtree

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/viant/sqlite-kd/geo"
)

// Magic prefixes every serialized tree.
const Magic = "KDT1"

const headerSize = len(Magic) + 4*8 + 4

// IsTreeBlob reports whether blob carries the tree encoding.
func IsTreeBlob(blob []byte) bool {
	return len(blob) >= len(Magic) && string(blob[:len(Magic)]) == Magic
}

// MarshalBinary stores: magic, bounds(float64[4]), n(uint32), then n points
// (x, y float64) in pre-order.
func (t *Tree) MarshalBinary() ([]byte, error) {
	points := t.Points()
	out := make([]byte, 0, headerSize+16*len(points))
	putF64 := func(v float64) { out = binary.LittleEndian.AppendUint64(out, math.Float64bits(v)) }
	out = append(out, Magic...)
	putF64(t.bounds.XMin)
	putF64(t.bounds.YMin)
	putF64(t.bounds.XMax)
	putF64(t.bounds.YMax)
	out = binary.LittleEndian.AppendUint32(out, uint32(len(points)))
	for _, p := range points {
		putF64(p.X)
		putF64(p.Y)
	}
	return out, nil
}

// UnmarshalBinary restores the tree from bytes, replacing its content.
func (t *Tree) UnmarshalBinary(data []byte) error {
	if !IsTreeBlob(data) {
		return errors.New("kdtree: invalid data")
	}
	if len(data) < headerSize {
		return errors.New("kdtree: truncated header")
	}
	off := len(Magic)
	getF64 := func() float64 {
		v := math.Float64frombits(binary.LittleEndian.Uint64(data[off : off+8]))
		off += 8
		return v
	}
	bounds := geo.Rect{XMin: getF64(), YMin: getF64(), XMax: getF64(), YMax: getF64()}
	if !bounds.Valid() {
		return fmt.Errorf("kdtree: invalid bounds %v", bounds)
	}
	n := int(binary.LittleEndian.Uint32(data[off : off+4]))
	off += 4
	if len(data)-off != 16*n {
		return fmt.Errorf("kdtree: expected %d points, got %d bytes", n, len(data)-off)
	}
	restored := New(WithBounds(bounds))
	restored.nodes = make([]node, 0, n)
	for i := 0; i < n; i++ {
		p := geo.Point{X: getF64(), Y: getF64()}
		if err := restored.Insert(&p); err != nil {
			return err
		}
	}
	*t = *restored
	return nil
}
