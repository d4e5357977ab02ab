// Command preprocess turns an OSM PBF extract into a contracted block graph
// file for the route server.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/azybler/chroute/pkg/ch"
	"github.com/azybler/chroute/pkg/graph"
	"github.com/azybler/chroute/pkg/logger"
	osmparser "github.com/azybler/chroute/pkg/osm"
	"github.com/azybler/chroute/pkg/store"
	"github.com/azybler/chroute/pkg/tags"
)

// Named bounding boxes for the --region shortcut.
var regions = map[string]osmparser.BBox{
	"singapore": {MinLat: 1.15, MaxLat: 1.48, MinLng: 103.6, MaxLng: 104.1},
	"kl":        {MinLat: 2.75, MaxLat: 3.5, MinLng: 101.2, MaxLng: 102.0},
}

var (
	flagInput     string
	flagOutput    string
	flagBBox      string
	flagRegion    string
	flagCoreSize  int
	flagShortcuts int
	flagBlockSize uint32
	flagTagsBlock uint32
	flagLogLevel  string
)

var rootCmd = &cobra.Command{
	Use:          "preprocess",
	Short:        "Build a contracted block graph from an OSM PBF extract",
	SilenceUsage: true,
	RunE:         run,
}

func init() {
	f := rootCmd.Flags()
	f.StringVarP(&flagInput, "input", "i", "", "path to .osm.pbf file")
	f.StringVarP(&flagOutput, "output", "o", "graph.chb", "output graph file")
	f.StringVar(&flagBBox, "bbox", "", "bounding box filter: minLat,minLng,maxLat,maxLng")
	f.StringVar(&flagRegion, "region", "", "named bounding box (singapore, kl)")
	f.IntVar(&flagCoreSize, "core-size", 0, "leave this many vertices uncontracted")
	f.IntVar(&flagShortcuts, "max-shortcuts", 0, "stop contracting when a vertex needs more shortcuts (0 = 1000)")
	f.Uint32Var(&flagBlockSize, "block-size", store.DefaultBlockSize, "vertices per block")
	f.Uint32Var(&flagTagsBlock, "tags-per-block", store.DefaultTagsPerBlock, "tag sets per tag block")
	f.StringVar(&flagLogLevel, "log-level", "info", "log level")
	_ = rootCmd.MarkFlagRequired("input")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func parseBBox() (osmparser.BBox, error) {
	if flagRegion != "" {
		b, ok := regions[flagRegion]
		if !ok {
			return osmparser.BBox{}, fmt.Errorf("unknown region %q", flagRegion)
		}
		return b, nil
	}
	if flagBBox == "" {
		return osmparser.BBox{}, nil
	}
	var b osmparser.BBox
	if _, err := fmt.Sscanf(flagBBox, "%f,%f,%f,%f", &b.MinLat, &b.MinLng, &b.MaxLat, &b.MaxLng); err != nil {
		return osmparser.BBox{}, fmt.Errorf("invalid bbox (expected minLat,minLng,maxLat,maxLng): %w", err)
	}
	if b.MinLat >= b.MaxLat || b.MinLng >= b.MaxLng {
		return osmparser.BBox{}, fmt.Errorf("invalid bbox %q: min must be below max", flagBBox)
	}
	return b, nil
}

func run(cmd *cobra.Command, _ []string) error {
	log, err := logger.New(flagLogLevel, false)
	if err != nil {
		return err
	}
	defer log.Sync() //nolint:errcheck

	bbox, err := parseBBox()
	if err != nil {
		return err
	}
	if !bbox.IsZero() {
		log.Info("bounding box filter",
			zap.Float64("min_lat", bbox.MinLat), zap.Float64("max_lat", bbox.MaxLat),
			zap.Float64("min_lng", bbox.MinLng), zap.Float64("max_lng", bbox.MaxLng))
	}

	start := time.Now()

	// Step 1: Parse OSM data.
	f, err := os.Open(flagInput)
	if err != nil {
		return fmt.Errorf("open input: %w", err)
	}
	defer f.Close()

	parsed, err := osmparser.Parse(cmd.Context(), f, osmparser.ParseOptions{BBox: bbox, Logger: log})
	if err != nil {
		return fmt.Errorf("parse osm: %w", err)
	}
	log.Info("parsed", zap.Int("edges", len(parsed.Edges)), zap.Int("nodes", len(parsed.Nodes)))

	// Step 2: Build the uncontracted graph and intern tags.
	table := tags.NewTable()
	g, err := graph.Build(parsed, table)
	if err != nil {
		return fmt.Errorf("build graph: %w", err)
	}
	log.Info("graph built", zap.Uint32("vertices", g.NumVertices()), zap.Int("arcs", g.NumArcs()),
		zap.Int("tag_sets", table.Len()))

	// Step 3: Keep the largest connected component.
	component := graph.LargestComponent(g)
	if g.NumVertices() > 0 {
		log.Info("largest component", zap.Int("vertices", len(component)),
			zap.Float64("percent", float64(len(component))/float64(g.NumVertices())*100))
	}
	g, err = graph.FilterToComponent(g, component)
	if err != nil {
		return fmt.Errorf("filter component: %w", err)
	}

	// Step 4: Contract.
	contracted, stats, err := ch.Contract(g, ch.Options{
		MaxShortcutsPerNode: flagShortcuts,
		CoreSize:            flagCoreSize,
		Logger:              log,
	})
	if err != nil {
		return fmt.Errorf("contract: %w", err)
	}
	log.Info("contraction complete",
		zap.Int("shortcuts", stats.Shortcuts),
		zap.Int("contracted", stats.Contracted),
		zap.Int("core", stats.Core))

	// Step 5: Write the block file.
	err = store.WriteFile(flagOutput, contracted, table, store.WriteOptions{
		BlockSize:    flagBlockSize,
		TagsPerBlock: flagTagsBlock,
	})
	if err != nil {
		return fmt.Errorf("write graph: %w", err)
	}

	info, err := os.Stat(flagOutput)
	if err != nil {
		return err
	}
	log.Info("done",
		zap.String("output", flagOutput),
		zap.Float64("size_mb", float64(info.Size())/(1024*1024)),
		zap.Duration("elapsed", time.Since(start).Round(time.Second)))
	return nil
}
