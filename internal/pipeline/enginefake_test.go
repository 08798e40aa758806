package pipeline

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"sort"
	"sync/atomic"
	"time"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"

	"github.com/gravitas-eo/urbanheat-cli/pkg/earthengine"
)

// fakeScene is one in-memory acquisition: named band grids plus a date.
// NaN marks no-data.
type fakeScene struct {
	date  time.Time
	bands map[string][][]float64
}

// gridEngine is an in-process Engine that eagerly evaluates expression
// graphs over small pixel grids, so the index math can be checked with real
// numbers. It also counts calls and supports fault injection.
type gridEngine struct {
	scenes []fakeScene

	reduceErr    map[earthengine.Reducer]error
	failTileBand string

	// Call counters are hit from the errgroup goroutines the reducer pairs
	// and the layer assembler spawn.
	filterCalls atomic.Int32
	sizeCalls   atomic.Int32
	reduceCalls atomic.Int32
	tileCalls   atomic.Int32
}

var _ earthengine.Engine = (*gridEngine)(nil)

func (e *gridEngine) FilterCollection(ctx context.Context, id string, region *geom.Polygon, start, end time.Time) (earthengine.Collection, error) {
	e.filterCalls.Add(1)
	return earthengine.NewCollection(id, region, start, end), nil
}

func (e *gridEngine) Size(ctx context.Context, c earthengine.Collection) (int, error) {
	e.sizeCalls.Add(1)
	scenes, err := e.evalCollection(c.Op())
	if err != nil {
		return 0, err
	}
	return len(scenes), nil
}

func (e *gridEngine) ReduceRegion(ctx context.Context, img earthengine.Image, region *geom.Polygon, r earthengine.Reducer, scale float64, maxPixels int64) (float64, error) {
	e.reduceCalls.Add(1)
	if err := e.reduceErr[r]; err != nil {
		return 0, err
	}

	grid, err := e.eval(img)
	if err != nil {
		return 0, err
	}
	band := grid.first()

	var pixels int64
	for _, row := range band {
		pixels += int64(len(row))
	}
	if pixels > maxPixels {
		return 0, earthengine.ErrBudgetExceeded
	}

	var valid []float64
	for _, row := range band {
		for _, v := range row {
			if !math.IsNaN(v) {
				valid = append(valid, v)
			}
		}
	}
	if len(valid) == 0 {
		return math.NaN(), nil
	}

	switch r {
	case earthengine.ReducerMin:
		min := valid[0]
		for _, v := range valid[1:] {
			min = math.Min(min, v)
		}
		return min, nil
	case earthengine.ReducerMax:
		max := valid[0]
		for _, v := range valid[1:] {
			max = math.Max(max, v)
		}
		return max, nil
	case earthengine.ReducerMean:
		return mean(valid), nil
	case earthengine.ReducerStdDev:
		m := mean(valid)
		var sq float64
		for _, v := range valid {
			sq += (v - m) * (v - m)
		}
		return math.Sqrt(sq / float64(len(valid))), nil
	default:
		return 0, eris.Errorf("gridEngine: unknown reducer %q", r)
	}
}

func (e *gridEngine) MapTiles(ctx context.Context, img earthengine.Image, vis earthengine.VisParams) (string, error) {
	e.tileCalls.Add(1)
	grid, err := e.eval(img)
	if err != nil {
		return "", err
	}
	name := grid.order[0]
	if e.failTileBand != "" && name == e.failTileBand {
		return "", eris.Errorf("gridEngine: tile backend down for %s", name)
	}
	return fmt.Sprintf("https://tiles.invalid/%s/{z}/{x}/{y}", name), nil
}

func mean(vs []float64) float64 {
	var sum float64
	for _, v := range vs {
		sum += v
	}
	return sum / float64(len(vs))
}

// gridImage is an evaluated image: ordered named band grids, or a bare
// scalar for constant images awaiting broadcast.
type gridImage struct {
	order  []string
	bands  map[string][][]float64
	scalar *float64
}

func (g *gridImage) first() [][]float64 {
	if g.scalar != nil {
		return [][]float64{{*g.scalar}}
	}
	return g.bands[g.order[0]]
}

func (g *gridImage) band(name string) ([][]float64, error) {
	b, ok := g.bands[name]
	if !ok {
		return nil, eris.Errorf("gridEngine: no band %q", name)
	}
	return b, nil
}

func scalarImage(v float64) *gridImage {
	return &gridImage{scalar: &v}
}

func singleBand(name string, grid [][]float64) *gridImage {
	return &gridImage{order: []string{name}, bands: map[string][][]float64{name: grid}}
}

// eval evaluates an image expression against the engine's scenes.
func (e *gridEngine) eval(img earthengine.Image) (*gridImage, error) {
	return e.evalImage(img.Op(), nil)
}

func (e *gridEngine) evalImage(op *earthengine.Op, arg *gridImage) (*gridImage, error) {
	switch op.Kind {
	case earthengine.OpArg:
		if arg == nil {
			return nil, eris.New("gridEngine: arg outside map")
		}
		return arg, nil

	case earthengine.OpConstant:
		return scalarImage(op.Value), nil

	case earthengine.OpSelect:
		src, err := e.evalImage(op.Args[0], arg)
		if err != nil {
			return nil, err
		}
		re, err := regexp.Compile("^" + op.Pattern + "$")
		if err != nil {
			return nil, eris.Wrap(err, "gridEngine: band pattern")
		}
		out := &gridImage{bands: map[string][][]float64{}}
		for _, name := range src.order {
			if re.MatchString(name) {
				out.order = append(out.order, name)
				out.bands[name] = src.bands[name]
			}
		}
		if len(out.order) == 0 {
			return nil, eris.Errorf("gridEngine: select %q matched no bands", op.Pattern)
		}
		return out, nil

	case earthengine.OpRename:
		src, err := e.evalImage(op.Args[0], arg)
		if err != nil {
			return nil, err
		}
		return singleBand(op.Name, src.first()), nil

	case earthengine.OpAddBands:
		dst, err := e.evalImage(op.Args[0], arg)
		if err != nil {
			return nil, err
		}
		add, err := e.evalImage(op.Args[1], arg)
		if err != nil {
			return nil, err
		}
		out := &gridImage{bands: map[string][][]float64{}}
		out.order = append(out.order, dst.order...)
		for name, b := range dst.bands {
			out.bands[name] = b
		}
		for _, name := range add.order {
			if _, exists := out.bands[name]; exists && op.Overwrite {
				out.bands[name] = add.bands[name]
				continue
			}
			if _, exists := out.bands[name]; !exists {
				out.order = append(out.order, name)
				out.bands[name] = add.bands[name]
			}
		}
		return out, nil

	case earthengine.OpNormDiff:
		src, err := e.evalImage(op.Args[0], arg)
		if err != nil {
			return nil, err
		}
		b1, err := src.band(op.Bands[0])
		if err != nil {
			return nil, err
		}
		b2, err := src.band(op.Bands[1])
		if err != nil {
			return nil, err
		}
		grid := combine(b1, b2, func(x, y float64) float64 {
			if x+y == 0 {
				return math.NaN()
			}
			return (x - y) / (x + y)
		})
		return singleBand("nd", grid), nil

	case earthengine.OpAdd, earthengine.OpSubtract, earthengine.OpMultiply,
		earthengine.OpDivide, earthengine.OpPow, earthengine.OpBitwiseAnd,
		earthengine.OpEq, earthengine.OpAnd:
		left, err := e.evalImage(op.Args[0], arg)
		if err != nil {
			return nil, err
		}
		right, err := e.evalImage(op.Args[1], arg)
		if err != nil {
			return nil, err
		}
		return applyBinary(op.Kind, left, right)

	case earthengine.OpLog:
		src, err := e.evalImage(op.Args[0], arg)
		if err != nil {
			return nil, err
		}
		return mapUnary(src, func(v float64) float64 {
			if v <= 0 {
				return math.NaN()
			}
			return math.Log(v)
		}), nil

	case earthengine.OpUpdateMask:
		src, err := e.evalImage(op.Args[0], arg)
		if err != nil {
			return nil, err
		}
		mask, err := e.evalImage(op.Args[1], arg)
		if err != nil {
			return nil, err
		}
		maskGrid := mask.first()
		out := &gridImage{bands: map[string][][]float64{}}
		for _, name := range src.order {
			out.order = append(out.order, name)
			out.bands[name] = combine(src.bands[name], maskGrid, func(v, m float64) float64 {
				if m == 0 || math.IsNaN(m) {
					return math.NaN()
				}
				return v
			})
		}
		return out, nil

	case earthengine.OpMedian:
		scenes, err := e.evalCollection(op.Args[0])
		if err != nil {
			return nil, err
		}
		if len(scenes) == 0 {
			return nil, eris.New("gridEngine: median of empty collection")
		}
		out := &gridImage{bands: map[string][][]float64{}}
		for _, name := range scenes[0].order {
			out.order = append(out.order, name)
			out.bands[name] = medianStack(scenes, name)
		}
		return out, nil

	default:
		return nil, eris.Errorf("gridEngine: unknown image op %q", op.Kind)
	}
}

func (e *gridEngine) evalCollection(op *earthengine.Op) ([]*gridImage, error) {
	switch op.Kind {
	case earthengine.OpCollection:
		start, err := time.Parse("2006-01-02", op.Start)
		if err != nil {
			return nil, eris.Wrap(err, "gridEngine: collection start")
		}
		end, err := time.Parse("2006-01-02", op.End)
		if err != nil {
			return nil, eris.Wrap(err, "gridEngine: collection end")
		}
		var out []*gridImage
		for _, s := range e.scenes {
			if s.date.Before(start) || !s.date.Before(end) {
				continue
			}
			img := &gridImage{bands: map[string][][]float64{}}
			names := make([]string, 0, len(s.bands))
			for name := range s.bands {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				img.order = append(img.order, name)
				img.bands[name] = s.bands[name]
			}
			out = append(out, img)
		}
		return out, nil

	case earthengine.OpMap:
		scenes, err := e.evalCollection(op.Args[0])
		if err != nil {
			return nil, err
		}
		out := make([]*gridImage, 0, len(scenes))
		for _, s := range scenes {
			mapped, err := e.evalImage(op.Body, s)
			if err != nil {
				return nil, err
			}
			out = append(out, mapped)
		}
		return out, nil

	default:
		return nil, eris.Errorf("gridEngine: unknown collection op %q", op.Kind)
	}
}

func applyBinary(kind earthengine.OpKind, left, right *gridImage) (*gridImage, error) {
	fn := binaryFn(kind)
	switch {
	case left.scalar != nil && right.scalar != nil:
		return scalarImage(fn(*left.scalar, *right.scalar)), nil
	case right.scalar != nil:
		return mapUnary(left, func(v float64) float64 { return fn(v, *right.scalar) }), nil
	case left.scalar != nil:
		return mapUnary(right, func(v float64) float64 { return fn(*left.scalar, v) }), nil
	default:
		// Image-image ops pair first bands; the pipeline only combines
		// single-band images.
		grid := combine(left.first(), right.first(), fn)
		return singleBand(left.order[0], grid), nil
	}
}

func binaryFn(kind earthengine.OpKind) func(x, y float64) float64 {
	switch kind {
	case earthengine.OpAdd:
		return func(x, y float64) float64 { return x + y }
	case earthengine.OpSubtract:
		return func(x, y float64) float64 { return x - y }
	case earthengine.OpMultiply:
		return func(x, y float64) float64 { return x * y }
	case earthengine.OpDivide:
		return func(x, y float64) float64 {
			if y == 0 {
				return math.NaN()
			}
			return x / y
		}
	case earthengine.OpPow:
		return math.Pow
	case earthengine.OpBitwiseAnd:
		return func(x, y float64) float64 { return float64(int64(x) & int64(y)) }
	case earthengine.OpEq:
		return func(x, y float64) float64 {
			if math.IsNaN(x) || math.IsNaN(y) {
				return math.NaN()
			}
			if x == y {
				return 1
			}
			return 0
		}
	case earthengine.OpAnd:
		return func(x, y float64) float64 {
			if math.IsNaN(x) || math.IsNaN(y) {
				return math.NaN()
			}
			if x != 0 && y != 0 {
				return 1
			}
			return 0
		}
	default:
		return func(x, y float64) float64 { return math.NaN() }
	}
}

func mapUnary(src *gridImage, fn func(float64) float64) *gridImage {
	if src.scalar != nil {
		return scalarImage(fn(*src.scalar))
	}
	out := &gridImage{bands: map[string][][]float64{}}
	for _, name := range src.order {
		out.order = append(out.order, name)
		out.bands[name] = mapGrid(src.bands[name], fn)
	}
	return out
}

func mapGrid(grid [][]float64, fn func(float64) float64) [][]float64 {
	out := make([][]float64, len(grid))
	for i, row := range grid {
		out[i] = make([]float64, len(row))
		for j, v := range row {
			if math.IsNaN(v) {
				out[i][j] = math.NaN()
				continue
			}
			out[i][j] = fn(v)
		}
	}
	return out
}

func combine(a, b [][]float64, fn func(x, y float64) float64) [][]float64 {
	out := make([][]float64, len(a))
	for i := range a {
		out[i] = make([]float64, len(a[i]))
		for j := range a[i] {
			x, y := a[i][j], b[i][j]
			if math.IsNaN(x) || math.IsNaN(y) {
				out[i][j] = math.NaN()
				continue
			}
			out[i][j] = fn(x, y)
		}
	}
	return out
}

// medianStack takes the per-pixel median of one band across scenes, skipping
// no-data observations. Zero valid observations leave no-data.
func medianStack(scenes []*gridImage, band string) [][]float64 {
	ref := scenes[0].bands[band]
	out := make([][]float64, len(ref))
	for i := range ref {
		out[i] = make([]float64, len(ref[i]))
		for j := range ref[i] {
			var valid []float64
			for _, s := range scenes {
				v := s.bands[band][i][j]
				if !math.IsNaN(v) {
					valid = append(valid, v)
				}
			}
			if len(valid) == 0 {
				out[i][j] = math.NaN()
				continue
			}
			sort.Float64s(valid)
			mid := len(valid) / 2
			if len(valid)%2 == 1 {
				out[i][j] = valid[mid]
			} else {
				out[i][j] = (valid[mid-1] + valid[mid]) / 2
			}
		}
	}
	return out
}
