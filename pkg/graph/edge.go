// Package graph defines the vertex and arc model shared by every graph
// backend, and the mutable in-memory backend used to build and test graphs.
package graph

import (
	"errors"
	"fmt"
	"math"

	"github.com/azybler/chroute/pkg/geo"
)

// VertexID is a dense 1-based vertex identifier. Zero is reserved.
type VertexID uint32

// NoVertex is the reserved invalid vertex id. As a contracted id it marks a
// base (non-shortcut) arc.
const NoVertex VertexID = 0

// NoWeight marks a direction in which an arc cannot be traversed.
const NoWeight float32 = math.MaxFloat32

// MaxTagsRef is the largest tag reference that fits the packed value word.
const MaxTagsRef = 1<<29 - 1

var (
	// ErrNegativeWeight is returned for arcs with a negative or NaN weight.
	ErrNegativeWeight = errors.New("negative or NaN arc weight")
	// ErrInvalidVertex is returned for vertex ids outside the graph.
	ErrInvalidVertex = errors.New("invalid vertex id")
)

// Direction records how an arc relates to the contraction order of its
// endpoints.
type Direction uint8

const (
	// Uncontracted arcs connect vertices outside the hierarchy.
	Uncontracted Direction = iota
	// ToHigher arcs point to a vertex of higher rank.
	ToHigher
	// ToLower arcs point to a vertex of lower rank.
	ToLower
)

// Reverse swaps ToHigher and ToLower.
func (d Direction) Reverse() Direction {
	switch d {
	case ToHigher:
		return ToLower
	case ToLower:
		return ToHigher
	}
	return d
}

// Upward reports whether a hierarchy search may traverse arcs with this
// direction.
func (d Direction) Upward() bool {
	return d == Uncontracted || d == ToHigher
}

func (d Direction) String() string {
	switch d {
	case Uncontracted:
		return "uncontracted"
	case ToHigher:
		return "to-higher"
	case ToLower:
		return "to-lower"
	}
	return fmt.Sprintf("direction(%d)", uint8(d))
}

// EdgeData is the payload of one stored arc.
type EdgeData struct {
	ForwardWeight  float32 // NoWeight when the arc cannot be traversed source to target
	BackwardWeight float32 // NoWeight when the arc cannot be traversed target to source
	ContractedID   VertexID
	TagsRef        uint32
	TagsForward    bool // tags apply in the stored direction
	Direction      Direction
	Meta           uint8
}

// Forward reports whether the arc can be traversed from source to target.
func (e EdgeData) Forward() bool { return e.ForwardWeight != NoWeight }

// Backward reports whether the arc can be traversed from target to source.
func (e EdgeData) Backward() bool { return e.BackwardWeight != NoWeight }

// Weight returns the cheaper of the valid directional weights, or NoWeight.
func (e EdgeData) Weight() float32 {
	return min(e.ForwardWeight, e.BackwardWeight)
}

// DirectionalWeight returns the weight for traversal in the stored direction
// (forward) or against it.
func (e EdgeData) DirectionalWeight(forward bool) (float32, bool) {
	w := e.BackwardWeight
	if forward {
		w = e.ForwardWeight
	}
	return w, w != NoWeight
}

// IsShortcut reports whether the arc stands for a two-hop path through
// ContractedID.
func (e EdgeData) IsShortcut() bool { return e.ContractedID != NoVertex }

// RepresentsNeighbourRelations reports whether the arc belongs in the reverse
// neighbour index. Only base arcs do.
func (e EdgeData) RepresentsNeighbourRelations() bool { return e.ContractedID == NoVertex }

// Reverse returns the same arc as seen from its target.
func (e EdgeData) Reverse() EdgeData {
	return EdgeData{
		ForwardWeight:  e.BackwardWeight,
		BackwardWeight: e.ForwardWeight,
		ContractedID:   e.ContractedID,
		TagsRef:        e.TagsRef,
		TagsForward:    !e.TagsForward,
		Direction:      e.Direction.Reverse(),
		Meta:           e.Meta,
	}
}

// Validate checks the invariants the search relies on.
func (e EdgeData) Validate() error {
	for _, w := range []float32{e.ForwardWeight, e.BackwardWeight} {
		if w < 0 || w != w {
			return fmt.Errorf("%w: %v", ErrNegativeWeight, w)
		}
	}
	if !e.Forward() && !e.Backward() {
		return errors.New("arc is not traversable in either direction")
	}
	if e.TagsRef > MaxTagsRef {
		return fmt.Errorf("tags reference %d exceeds %d", e.TagsRef, MaxTagsRef)
	}
	if e.Direction > ToLower {
		return fmt.Errorf("unknown %s", e.Direction)
	}
	return nil
}

// ShapeFunc fetches the intermediate geometry of an arc on demand.
type ShapeFunc func() ([]geo.Coord, error)

// Arc is one stored arc as returned by a graph backend.
type Arc struct {
	Target VertexID
	Data   EdgeData
	shape  ShapeFunc
}

// NewArc builds an arc whose geometry is produced by shape. A nil shape means
// the arc is a straight line between its endpoints.
func NewArc(target VertexID, data EdgeData, shape ShapeFunc) Arc {
	return Arc{Target: target, Data: data, shape: shape}
}

// Shape returns the intermediate points of the arc, ordered from source to
// target. The lookup happens only when Shape is called.
func (a Arc) Shape() ([]geo.Coord, error) {
	if a.shape == nil {
		return nil, nil
	}
	return a.shape()
}

// BoxEdge is an arc returned by a bounding box query together with its
// source vertex.
type BoxEdge struct {
	Vertex VertexID
	Arc
}

// Reader is the read-only graph contract consumed by the router.
type Reader interface {
	VertexCount() (uint32, error)
	// GetVertex returns false when the vertex does not exist.
	GetVertex(id VertexID) (geo.Coord, bool, error)
	// GetEdges returns the arcs stored at the vertex, empty when it does not
	// exist.
	GetEdges(id VertexID) ([]Arc, error)
	// GetReverseNeighbours returns the vertices storing a base arc that
	// targets id.
	GetReverseNeighbours(id VertexID) ([]VertexID, error)
}

// BoxReader is a Reader that can enumerate the arcs around an area.
type BoxReader interface {
	Reader
	// GetEdgesInBox returns the arcs of every vertex inside box, plus the
	// base arcs stored elsewhere that end at such a vertex. Vertices slightly
	// outside the box may be included.
	GetEdgesInBox(box geo.Box) ([]BoxEdge, error)
}
