// Package osm extracts a car-routable road network from OpenStreetMap PBF
// extracts.
package osm

import (
	"cmp"
	"context"
	"fmt"
	"io"
	"slices"

	"github.com/paulmach/osm"
	"github.com/paulmach/osm/osmpbf"
	"go.uber.org/zap"

	"github.com/azybler/chroute/pkg/geo"
)

// minWeightMeters keeps coincident nodes from producing zero-weight edges.
const minWeightMeters = 0.001

// RawEdge is a directed road segment between two intersections.
type RawEdge struct {
	FromNodeID osm.NodeID
	ToNodeID   osm.NodeID
	Meters     float64
	Shape      []geo.Coord // intermediate nodes, excluding from/to
	Tags       osm.Tags    // routing relevant subset of the way tags
	AgainstWay bool        // travels opposite to the way's node order
	Class      uint8       // see HighwayClass
}

// ParseResult holds the output of parsing an OSM PBF file.
type ParseResult struct {
	Edges []RawEdge
	Nodes map[osm.NodeID]geo.Coord
}

// carHighways lists highway tag values accessible by car, ordered from the
// most to the least important class.
var carHighways = []string{
	"motorway",
	"motorway_link",
	"trunk",
	"trunk_link",
	"primary",
	"primary_link",
	"secondary",
	"secondary_link",
	"tertiary",
	"tertiary_link",
	"unclassified",
	"residential",
	"living_street",
	"service",
}

// keptTags are copied from ways onto edges and end up in the tag table.
var keptTags = []string{"highway", "name", "ref", "maxspeed", "oneway", "junction", "lanes", "surface"}

// HighwayClass returns a 1-based class for car accessible highway values, 0
// for anything else.
func HighwayClass(hw string) uint8 {
	i := slices.Index(carHighways, hw)
	return uint8(i + 1)
}

// HighwayName is the inverse of HighwayClass.
func HighwayName(class uint8) string {
	if class == 0 || int(class) > len(carHighways) {
		return ""
	}
	return carHighways[class-1]
}

// isCarAccessible returns true if the way is drivable by car.
func isCarAccessible(tags osm.Tags) bool {
	if HighwayClass(tags.Find("highway")) == 0 {
		return false
	}

	// Skip area highways (pedestrian plazas).
	if tags.Find("area") == "yes" {
		return false
	}

	// Skip restricted access.
	access := tags.Find("access")
	if access == "no" || access == "private" {
		return false
	}
	if tags.Find("motor_vehicle") == "no" {
		return false
	}

	return true
}

// directionFlags returns (forward, backward) based on highway type and oneway tags.
func directionFlags(tags osm.Tags) (forward, backward bool) {
	// Default: bidirectional.
	forward = true
	backward = true

	hw := tags.Find("highway")

	// Implied oneway for motorways and roundabouts.
	if hw == "motorway" || hw == "motorway_link" || tags.Find("junction") == "roundabout" {
		backward = false
	}

	// Explicit oneway tag overrides.
	switch tags.Find("oneway") {
	case "yes", "true", "1":
		forward = true
		backward = false
	case "-1", "reverse":
		forward = false
		backward = true
	case "no":
		forward = true
		backward = true
	case "reversible":
		// Time-dependent, skip entirely.
		forward = false
		backward = false
	}

	return forward, backward
}

func routingTags(tags osm.Tags) osm.Tags {
	var out osm.Tags
	for _, t := range tags {
		if slices.Contains(keptTags, t.Key) {
			out = append(out, t)
		}
	}
	slices.SortFunc(out, func(a, b osm.Tag) int { return cmp.Compare(a.Key, b.Key) })
	return out
}

// wayInfo holds parsed way data collected during Pass 1.
type wayInfo struct {
	NodeIDs  []osm.NodeID
	Forward  bool
	Backward bool
	Tags     osm.Tags
	Class    uint8
}

// BBox defines a geographic bounding box for filtering.
// If non-zero, only edges with every node inside the box are kept.
type BBox struct {
	MinLat, MaxLat float64
	MinLng, MaxLng float64
}

// IsZero returns true if the bbox is unset.
func (b BBox) IsZero() bool {
	return b.MinLat == 0 && b.MaxLat == 0 && b.MinLng == 0 && b.MaxLng == 0
}

// Contains returns true if the point is inside the bounding box.
func (b BBox) Contains(c geo.Coord) bool {
	lat, lng := float64(c.Lat), float64(c.Lon)
	return lat >= b.MinLat && lat <= b.MaxLat && lng >= b.MinLng && lng <= b.MaxLng
}

// ParseOptions configures the OSM parser.
type ParseOptions struct {
	BBox   BBox        // if non-zero, filter edges to this bounding box
	Logger *zap.Logger // defaults to a no-op logger
}

// Parse reads an OSM PBF file and returns directed edges for car routing.
// The reader is consumed twice (seeks back to start for the second pass),
// so it must implement io.ReadSeeker.
func Parse(ctx context.Context, rs io.ReadSeeker, opts ...ParseOptions) (*ParseResult, error) {
	var opt ParseOptions
	if len(opts) > 0 {
		opt = opts[0]
	}
	log := opt.Logger
	if log == nil {
		log = zap.NewNop()
	}

	// Pass 1: Scan ways to collect referenced node IDs and way info.
	refs := make(map[osm.NodeID]int)
	var ways []wayInfo

	scanner := osmpbf.New(ctx, rs, 1)
	scanner.SkipNodes = true
	scanner.SkipRelations = true

	for scanner.Scan() {
		w, ok := scanner.Object().(*osm.Way)
		if !ok {
			continue
		}
		if !isCarAccessible(w.Tags) || len(w.Nodes) < 2 {
			continue
		}
		fwd, bwd := directionFlags(w.Tags)
		if !fwd && !bwd {
			continue
		}

		nodeIDs := make([]osm.NodeID, len(w.Nodes))
		for i, wn := range w.Nodes {
			nodeIDs[i] = wn.ID
		}
		for i, id := range nodeIDs {
			refs[id]++
			// Way endpoints always become vertices.
			if i == 0 || i == len(nodeIDs)-1 {
				refs[id]++
			}
		}

		ways = append(ways, wayInfo{
			NodeIDs:  nodeIDs,
			Forward:  fwd,
			Backward: bwd,
			Tags:     routingTags(w.Tags),
			Class:    HighwayClass(w.Tags.Find("highway")),
		})
	}
	if err := scanner.Err(); err != nil {
		scanner.Close()
		return nil, fmt.Errorf("pass 1 (ways): %w", err)
	}
	scanner.Close()

	log.Info("pass 1 complete", zap.Int("ways", len(ways)), zap.Int("referenced_nodes", len(refs)))

	// Pass 2: Scan nodes to collect coordinates for referenced nodes only.
	if _, err := rs.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("seek for pass 2: %w", err)
	}

	nodes := make(map[osm.NodeID]geo.Coord, len(refs))

	scanner = osmpbf.New(ctx, rs, 1)
	scanner.SkipWays = true
	scanner.SkipRelations = true

	for scanner.Scan() {
		n, ok := scanner.Object().(*osm.Node)
		if !ok {
			continue
		}
		if _, needed := refs[n.ID]; !needed {
			continue
		}
		nodes[n.ID] = geo.NewCoord(n.Lat, n.Lon)
	}
	if err := scanner.Err(); err != nil {
		scanner.Close()
		return nil, fmt.Errorf("pass 2 (nodes): %w", err)
	}
	scanner.Close()

	log.Info("pass 2 complete", zap.Int("coordinates", len(nodes)))

	return buildEdges(ways, refs, nodes, opt.BBox, log), nil
}

// buildEdges splits every way at intersections and emits one edge per
// direction for each piece. Nodes referenced once are folded into the shape.
func buildEdges(ways []wayInfo, refs map[osm.NodeID]int, nodes map[osm.NodeID]geo.Coord, bbox BBox, log *zap.Logger) *ParseResult {
	useBBox := !bbox.IsZero()
	used := make(map[osm.NodeID]geo.Coord)
	var edges []RawEdge
	var broken int

	for _, w := range ways {
		emit := func(from, to osm.NodeID, meters float64, shape []geo.Coord) {
			meters = max(meters, minWeightMeters)
			used[from] = nodes[from]
			used[to] = nodes[to]
			if w.Forward {
				edges = append(edges, RawEdge{
					FromNodeID: from,
					ToNodeID:   to,
					Meters:     meters,
					Shape:      shape,
					Tags:       w.Tags,
					Class:      w.Class,
				})
			}
			if w.Backward {
				reversed := slices.Clone(shape)
				slices.Reverse(reversed)
				edges = append(edges, RawEdge{
					FromNodeID: to,
					ToNodeID:   from,
					Meters:     meters,
					Shape:      reversed,
					Tags:       w.Tags,
					AgainstWay: true,
					Class:      w.Class,
				})
			}
		}

		var (
			start   osm.NodeID
			prev    geo.Coord
			started bool
			meters  float64
			shape   []geo.Coord
		)
		for i, id := range w.NodeIDs {
			c, ok := nodes[id]
			if !ok || (useBBox && !bbox.Contains(c)) {
				if started {
					broken++
				}
				started = false
				continue
			}
			if !started {
				start, prev, started = id, c, true
				meters, shape = 0, nil
				continue
			}
			meters += geo.Distance(prev, c)
			prev = c
			if refs[id] < 2 && i < len(w.NodeIDs)-1 {
				shape = append(shape, c)
				continue
			}
			if id != start {
				emit(start, id, meters, shape)
			}
			start, meters, shape = id, 0, nil
		}
	}

	if broken > 0 {
		log.Warn("split ways at missing or filtered nodes", zap.Int("breaks", broken))
	}
	log.Info("built directed edges", zap.Int("edges", len(edges)), zap.Int("vertices", len(used)))

	return &ParseResult{Edges: edges, Nodes: used}
}
