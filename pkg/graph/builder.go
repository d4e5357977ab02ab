package graph

import (
	"fmt"
	"slices"

	"github.com/paulmach/osm"

	"github.com/azybler/chroute/pkg/geo"
	osmparser "github.com/azybler/chroute/pkg/osm"
	"github.com/azybler/chroute/pkg/tags"
)

// Build creates an uncontracted graph from parsed OSM edges. Every directed
// edge is stored at both endpoints, so the result can be searched in either
// direction. Tag sets are interned into table.
func Build(result *osmparser.ParseResult, table *tags.Table) (*MemoryGraph, error) {
	g := NewMemoryGraph()

	// Step 1: Assign dense vertex ids in order of first appearance.
	ids := make(map[osm.NodeID]VertexID, len(result.Nodes))
	vertex := func(id osm.NodeID) (VertexID, error) {
		if v, ok := ids[id]; ok {
			return v, nil
		}
		c, ok := result.Nodes[id]
		if !ok {
			return NoVertex, fmt.Errorf("node %d has no coordinate", id)
		}
		v := g.AddVertex(c)
		ids[id] = v
		return v, nil
	}

	// Step 2: Store each edge at its source and, reversed, at its target.
	// Opposite directions of the same way fold into one arc per endpoint.
	for i := range result.Edges {
		e := &result.Edges[i]
		from, err := vertex(e.FromNodeID)
		if err != nil {
			return nil, err
		}
		to, err := vertex(e.ToNodeID)
		if err != nil {
			return nil, err
		}
		if from == to {
			continue
		}

		data := EdgeData{
			ForwardWeight:  float32(e.Meters),
			BackwardWeight: NoWeight,
			TagsRef:        table.Add(e.Tags),
			TagsForward:    !e.AgainstWay,
			Direction:      Uncontracted,
			Meta:           e.Class,
		}
		if err := g.MergeArc(from, to, data, e.Shape); err != nil {
			return nil, fmt.Errorf("edge %d: %w", i, err)
		}
		if err := g.MergeArc(to, from, data.Reverse(), reversedShape(e.Shape)); err != nil {
			return nil, fmt.Errorf("edge %d: %w", i, err)
		}
	}

	return g, nil
}

func reversedShape(shape []geo.Coord) []geo.Coord {
	if len(shape) == 0 {
		return nil
	}
	out := slices.Clone(shape)
	slices.Reverse(out)
	return out
}
