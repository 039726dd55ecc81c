// Package render draws a k-d tree as SVG: every node contributes its
// partition segment (red for x splits, blue for y splits) and its point.
package render

import (
	"bufio"
	"errors"
	"fmt"
	"io"

	"github.com/viant/sqlite-kd/geo"
	"github.com/viant/sqlite-kd/index/kdtree"
)

// Options controls the drawing.
type Options struct {
	// Width and Height of the canvas in pixels; default 512 each.
	Width  int
	Height int
	// PointRadius in pixels; default 3. Negative hides points.
	PointRadius float64
	// Title is emitted as the SVG <title> when set.
	Title string
}

const (
	colorXSplit = "red"
	colorYSplit = "blue"
	colorPoint  = "black"
)

// SVG writes tree to w. The tree bounds map onto the canvas with y pointing up.
func SVG(w io.Writer, tree *kdtree.Tree, opts Options) error {
	if tree == nil {
		return errors.New("render: tree is nil")
	}
	if opts.Width <= 0 {
		opts.Width = 512
	}
	if opts.Height <= 0 {
		opts.Height = 512
	}
	if opts.PointRadius == 0 {
		opts.PointRadius = 3
	}
	c := canvas{bounds: tree.Bounds(), width: float64(opts.Width), height: float64(opts.Height)}
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, `<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 %d %d">`+"\n",
		opts.Width, opts.Height, opts.Width, opts.Height)
	if opts.Title != "" {
		fmt.Fprintf(bw, "<title>%s</title>\n", escape(opts.Title))
	}
	fmt.Fprintf(bw, `<rect x="0" y="0" width="%d" height="%d" fill="white" stroke="%s"/>`+"\n",
		opts.Width, opts.Height, colorPoint)

	var points []geo.Point
	tree.Walk(func(n kdtree.NodeView) bool {
		var from, to geo.Point
		color := colorXSplit
		if n.Axis == kdtree.AxisX {
			from, to = geo.Point{X: n.Point.X, Y: n.Rect.YMin}, geo.Point{X: n.Point.X, Y: n.Rect.YMax}
		} else {
			color = colorYSplit
			from, to = geo.Point{X: n.Rect.XMin, Y: n.Point.Y}, geo.Point{X: n.Rect.XMax, Y: n.Point.Y}
		}
		x1, y1 := c.project(from)
		x2, y2 := c.project(to)
		fmt.Fprintf(bw, `<line x1="%s" y1="%s" x2="%s" y2="%s" stroke="%s" stroke-width="1"/>`+"\n",
			num(x1), num(y1), num(x2), num(y2), color)
		points = append(points, n.Point)
		return true
	})
	if opts.PointRadius > 0 {
		for _, p := range points {
			x, y := c.project(p)
			fmt.Fprintf(bw, `<circle cx="%s" cy="%s" r="%s" fill="%s"/>`+"\n", num(x), num(y), num(opts.PointRadius), colorPoint)
		}
	}
	fmt.Fprintln(bw, "</svg>")
	return bw.Flush()
}

type canvas struct {
	bounds        geo.Rect
	width, height float64
}

func (c canvas) project(p geo.Point) (float64, float64) {
	x, y := 0.0, 0.0
	if w := c.bounds.Width(); w > 0 {
		x = (p.X - c.bounds.XMin) / w * c.width
	}
	if h := c.bounds.Height(); h > 0 {
		y = c.height - (p.Y-c.bounds.YMin)/h*c.height
	}
	return x, y
}

func num(v float64) string { return fmt.Sprintf("%.2f", v) }

func escape(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '<':
			out = append(out, "&lt;"...)
		case '>':
			out = append(out, "&gt;"...)
		case '&':
			out = append(out, "&amp;"...)
		default:
			out = append(out, s[i])
		}
	}
	return string(out)
}
