package earthengine

import (
	"encoding/json"
	"time"

	"github.com/twpayne/go-geom"
)

// OpKind identifies one node type in the expression graph.
type OpKind string

const (
	OpCollection OpKind = "collection"
	OpMap        OpKind = "map"
	OpArg        OpKind = "arg"
	OpMedian     OpKind = "median"

	OpConstant   OpKind = "constant"
	OpSelect     OpKind = "select"
	OpRename     OpKind = "rename"
	OpAddBands   OpKind = "addBands"
	OpNormDiff   OpKind = "normalizedDifference"
	OpAdd        OpKind = "add"
	OpSubtract   OpKind = "subtract"
	OpMultiply   OpKind = "multiply"
	OpDivide     OpKind = "divide"
	OpPow        OpKind = "pow"
	OpLog        OpKind = "log"
	OpBitwiseAnd OpKind = "bitwiseAnd"
	OpEq         OpKind = "eq"
	OpAnd        OpKind = "and"
	OpUpdateMask OpKind = "updateMask"
)

// Op is one node of a raster expression graph. Fields are exported so Engine
// implementations (the REST client, test interpreters) can walk and encode
// the graph; pipeline code never constructs nodes directly.
type Op struct {
	Kind OpKind `json:"op"`
	Args []*Op  `json:"args,omitempty"`

	// Map lambda body; OpArg leaves inside refer to the mapped scene.
	Body *Op `json:"body,omitempty"`

	Value     float64  `json:"value,omitempty"`
	Name      string   `json:"name,omitempty"`
	Pattern   string   `json:"pattern,omitempty"`
	Bands     []string `json:"bands,omitempty"`
	Overwrite bool     `json:"overwrite,omitempty"`

	// Collection leaf.
	ID     string        `json:"id,omitempty"`
	Start  string        `json:"start,omitempty"`
	End    string        `json:"end,omitempty"`
	Region *geom.Polygon `json:"-"`
}

// MarshalJSON encodes the node, flattening the region polygon into GeoJSON
// coordinate arrays.
func (o *Op) MarshalJSON() ([]byte, error) {
	type alias Op
	wire := struct {
		*alias
		Region [][][]float64 `json:"region,omitempty"`
	}{alias: (*alias)(o)}
	if o.Region != nil {
		wire.Region = PolygonCoordinates(o.Region)
	}
	return json.Marshal(wire)
}

// Image is an opaque, immutable handle to a multi-band raster expression.
// Every method is a pure transform returning a new handle; nothing is
// evaluated until an Engine call consumes the graph.
type Image struct {
	op *Op
}

// Op exposes the root expression node for Engine implementations.
func (img Image) Op() *Op { return img.op }

// IsZero reports whether the handle was never assigned an expression.
func (img Image) IsZero() bool { return img.op == nil }

func newImage(kind OpKind, args ...Image) Image {
	nodes := make([]*Op, len(args))
	for i, a := range args {
		nodes[i] = a.op
	}
	return Image{op: &Op{Kind: kind, Args: nodes}}
}

// Constant returns a single-band image holding v at every pixel.
func Constant(v float64) Image {
	return Image{op: &Op{Kind: OpConstant, Value: v}}
}

// Select keeps only the bands whose names match pattern (exact name or an
// engine-style band regex such as "SR_B.*").
func (img Image) Select(pattern string) Image {
	return Image{op: &Op{Kind: OpSelect, Pattern: pattern, Args: []*Op{img.op}}}
}

// Rename renames the image's single band.
func (img Image) Rename(name string) Image {
	return Image{op: &Op{Kind: OpRename, Name: name, Args: []*Op{img.op}}}
}

// AddBands merges other's bands into img. With overwrite, bands sharing a
// name are replaced in place; otherwise they are appended.
func (img Image) AddBands(other Image, overwrite bool) Image {
	return Image{op: &Op{Kind: OpAddBands, Overwrite: overwrite, Args: []*Op{img.op, other.op}}}
}

// NormalizedDifference computes (b1 - b2) / (b1 + b2) per pixel. Pixels where
// b1 + b2 is zero become no-data.
func (img Image) NormalizedDifference(b1, b2 string) Image {
	return Image{op: &Op{Kind: OpNormDiff, Bands: []string{b1, b2}, Args: []*Op{img.op}}}
}

// Add returns img + other per pixel.
func (img Image) Add(other Image) Image { return newImage(OpAdd, img, other) }

// Subtract returns img - other per pixel.
func (img Image) Subtract(other Image) Image { return newImage(OpSubtract, img, other) }

// Multiply returns img * other per pixel.
func (img Image) Multiply(other Image) Image { return newImage(OpMultiply, img, other) }

// Divide returns img / other per pixel. Division by zero yields no-data.
func (img Image) Divide(other Image) Image { return newImage(OpDivide, img, other) }

// Pow raises img to the other'th power per pixel.
func (img Image) Pow(other Image) Image { return newImage(OpPow, img, other) }

// Log returns the natural logarithm per pixel; non-positive inputs become
// no-data.
func (img Image) Log() Image { return newImage(OpLog, img) }

// BitwiseAnd masks img's integer pixel values with other.
func (img Image) BitwiseAnd(other Image) Image { return newImage(OpBitwiseAnd, img, other) }

// Eq returns 1 where img equals other, 0 elsewhere.
func (img Image) Eq(other Image) Image { return newImage(OpEq, img, other) }

// And returns 1 where both img and other are non-zero, 0 elsewhere.
func (img Image) And(other Image) Image { return newImage(OpAnd, img, other) }

// UpdateMask marks pixels as no-data in every band of img wherever mask is
// zero or itself no-data.
func (img Image) UpdateMask(mask Image) Image { return newImage(OpUpdateMask, img, mask) }

// Collection is an opaque handle to a filtered stack of scenes.
type Collection struct {
	op *Op
}

// NewCollection builds a filtered-collection leaf. Engine implementations use
// it from FilterCollection; pipeline code receives the handle ready-made.
func NewCollection(id string, region *geom.Polygon, start, end time.Time) Collection {
	return Collection{op: &Op{
		Kind:   OpCollection,
		ID:     id,
		Start:  start.Format("2006-01-02"),
		End:    end.Format("2006-01-02"),
		Region: region,
	}}
}

// Op exposes the root expression node for Engine implementations.
func (c Collection) Op() *Op { return c.op }

// IsZero reports whether the handle was never assigned an expression.
func (c Collection) IsZero() bool { return c.op == nil }

// Map applies fn to every scene in the collection. fn must be pure: it is
// traced once over a symbolic scene and the resulting subgraph is replayed by
// the engine per scene.
func (c Collection) Map(fn func(Image) Image) Collection {
	body := fn(Image{op: &Op{Kind: OpArg}})
	return Collection{op: &Op{Kind: OpMap, Body: body.op, Args: []*Op{c.op}}}
}

// Median collapses the collection to one image by taking the per-pixel,
// per-band median over all scenes with valid data at that pixel.
func (c Collection) Median() Image {
	return Image{op: &Op{Kind: OpMedian, Args: []*Op{c.op}}}
}
