// Command kdtree loads "x y" points from a file or stdin into a dataset index
// and answers one query against it.
//
//	kdtree -query 'knn:3:0.5,0.5' points.txt
//	kdtree -db kd.sqlite -dataset eu -svg eu.svg < points.txt
package main

import (
	"bufio"
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"

	"github.com/viant/sqlite-kd/catalog"
	"github.com/viant/sqlite-kd/engine"
	"github.com/viant/sqlite-kd/geo"
	"github.com/viant/sqlite-kd/kd"
	"github.com/viant/sqlite-kd/render"
	"github.com/viant/sqlite-kd/store"
)

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdin, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "kdtree:", err)
		os.Exit(1)
	}
}

type options struct {
	query   string
	bounds  string
	svg     string
	db      string
	dataset string
	index   string
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout io.Writer) error {
	fs := flag.NewFlagSet("kdtree", flag.ContinueOnError)
	var o options
	fs.StringVar(&o.query, "query", "", "nearest:x,y | knn:k:x,y | within:r:x,y | range:xmin,ymin,xmax,ymax")
	fs.StringVar(&o.bounds, "bounds", "0,0,1,1", "index bounds xmin,ymin,xmax,ymax")
	fs.StringVar(&o.svg, "svg", "", "write the partition drawing to this file")
	fs.StringVar(&o.db, "db", "", "SQLite file to persist points and snapshots in")
	fs.StringVar(&o.dataset, "dataset", "default", "dataset identifier")
	fs.StringVar(&o.index, "index", "kd", "index kind: kd or brute")
	if err := fs.Parse(args); err != nil {
		return err
	}

	bq, err := kd.ParseQuery("range:" + o.bounds)
	if err != nil {
		return fmt.Errorf("invalid -bounds: %w", err)
	}
	kind, err := catalog.ParseKind(o.index)
	if err != nil {
		return err
	}

	in := stdin
	if fs.NArg() > 0 {
		f, err := os.Open(fs.Arg(0))
		if err != nil {
			return err
		}
		defer f.Close()
		in = f
	}
	points, err := readPoints(in)
	if err != nil {
		return err
	}

	db, err := openDB(o.db)
	if err != nil {
		return err
	}
	defer db.Close()
	st, err := store.NewSQLiteStore(db)
	if err != nil {
		return err
	}
	opts := []catalog.Option{catalog.WithKind(kind), catalog.WithBounds(bq.Rect)}
	if o.db != "" {
		snaps, err := store.NewSQLiteSnapshots(db, st.Table())
		if err != nil {
			return err
		}
		opts = append(opts, catalog.WithSnapshots(snaps))
	}
	cat, err := catalog.New(st, opts...)
	if err != nil {
		return err
	}
	defer cat.Close()

	if len(points) > 0 {
		records := make([]store.Record, len(points))
		for i, p := range points {
			records[i] = store.Record{Point: p}
		}
		if _, err := cat.Add(ctx, o.dataset, records); err != nil {
			return err
		}
	}

	if o.svg != "" {
		if err := writeSVG(ctx, cat, o.dataset, o.svg); err != nil {
			return err
		}
	}
	if o.query == "" {
		n, err := cat.Size(ctx, o.dataset)
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "size %d\n", n)
		return nil
	}
	q, err := kd.ParseQuery(o.query)
	if err != nil {
		return err
	}
	return answer(ctx, cat, o.dataset, q, stdout)
}

func openDB(path string) (*sql.DB, error) {
	if err := engine.RegisterFunctions(nil); err != nil {
		return nil, err
	}
	if path != "" {
		return engine.OpenFile(path)
	}
	db, err := engine.Open(":memory:")
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	return db, nil
}

// readPoints reads whitespace separated coordinate pairs.
func readPoints(r io.Reader) ([]geo.Point, error) {
	sc := bufio.NewScanner(r)
	sc.Split(bufio.ScanWords)
	var (
		out    []geo.Point
		coords [2]float64
		n      int
	)
	for sc.Scan() {
		v, err := strconv.ParseFloat(sc.Text(), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid coordinate %q", sc.Text())
		}
		coords[n%2] = v
		n++
		if n%2 == 0 {
			out = append(out, geo.Point{X: coords[0], Y: coords[1]})
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if n%2 != 0 {
		return nil, errors.New("odd number of coordinates")
	}
	return out, nil
}

func answer(ctx context.Context, cat *catalog.Catalog, dataset string, q kd.Query, w io.Writer) error {
	f := func(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }
	switch q.Kind {
	case kd.QueryNearest:
		p, ok, err := cat.Nearest(ctx, dataset, q.Point)
		if err != nil || !ok {
			return err
		}
		fmt.Fprintln(w, f(p.X), f(p.Y), f(p.DistanceTo(q.Point)))
	case kd.QueryKNN:
		found, err := cat.KNearest(ctx, dataset, q.Point, q.K)
		if err != nil {
			return err
		}
		for _, n := range found {
			fmt.Fprintln(w, f(n.Point.X), f(n.Point.Y), f(n.Distance))
		}
	case kd.QueryWithin:
		box := geo.Rect{XMin: q.Point.X - q.Radius, YMin: q.Point.Y - q.Radius, XMax: q.Point.X + q.Radius, YMax: q.Point.Y + q.Radius}
		candidates, err := cat.Range(ctx, dataset, box)
		if err != nil {
			return err
		}
		sort.SliceStable(candidates, func(i, j int) bool {
			return candidates[i].DistanceSquaredTo(q.Point) < candidates[j].DistanceSquaredTo(q.Point)
		})
		for _, p := range candidates {
			if d := p.DistanceTo(q.Point); d <= q.Radius {
				fmt.Fprintln(w, f(p.X), f(p.Y), f(d))
			}
		}
	case kd.QueryRange:
		found, err := cat.Range(ctx, dataset, q.Rect)
		if err != nil {
			return err
		}
		sort.Slice(found, func(i, j int) bool { return found[i].Less(found[j]) })
		for _, p := range found {
			fmt.Fprintln(w, f(p.X), f(p.Y))
		}
	}
	return nil
}

func writeSVG(ctx context.Context, cat *catalog.Catalog, dataset, path string) error {
	tree, ok, err := cat.Tree(ctx, dataset)
	if err != nil {
		return err
	}
	if !ok {
		return errors.New("-svg requires -index kd")
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := render.SVG(f, tree, render.Options{Title: dataset}); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
