// Command server serves route, matrix and connectivity queries over HTTP from
// a graph file written by preprocess.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/azybler/chroute/pkg/api"
	"github.com/azybler/chroute/pkg/config"
	"github.com/azybler/chroute/pkg/logger"
	"github.com/azybler/chroute/pkg/routing"
	"github.com/azybler/chroute/pkg/store"
)

var (
	flagConfig     string
	flagGraph      string
	flagAddr       string
	flagCORSOrigin string
)

var rootCmd = &cobra.Command{
	Use:          "server",
	Short:        "Serve routing queries over a contracted block graph",
	SilenceUsage: true,
	RunE:         run,
}

func init() {
	f := rootCmd.Flags()
	f.StringVarP(&flagConfig, "config", "c", "", "YAML config file")
	f.StringVarP(&flagGraph, "graph", "g", "", "graph file (overrides config)")
	f.StringVar(&flagAddr, "addr", "", "listen address (overrides config)")
	f.StringVar(&flagCORSOrigin, "cors-origin", "", "CORS allowed origin (overrides config)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("graph") {
		cfg.Graph = flagGraph
	}
	if cmd.Flags().Changed("addr") {
		cfg.Server.Addr = flagAddr
	}
	if cmd.Flags().Changed("cors-origin") {
		cfg.Server.CORSOrigin = flagCORSOrigin
	}

	log, err := logger.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		return err
	}
	defer log.Sync() //nolint:errcheck

	start := time.Now()

	log.Info("opening graph", zap.String("path", cfg.Graph))
	s, err := store.OpenFile(cfg.Graph, store.Options{
		BlockCache:   cfg.Cache.Blocks,
		ShapeCache:   cfg.Cache.Shapes,
		ReverseCache: cfg.Cache.Reverse,
		RegionCache:  cfg.Cache.Regions,
		TagCache:     cfg.Cache.Tags,
		Logger:       log,
	})
	if err != nil {
		return fmt.Errorf("open graph: %w", err)
	}
	defer s.Close()

	stats, err := s.Stats()
	if err != nil {
		return fmt.Errorf("graph stats: %w", err)
	}
	log.Info("graph loaded",
		zap.Uint32("vertices", stats.Vertices),
		zap.Int("blocks", stats.Blocks),
		zap.Int("regions", stats.Regions),
		zap.Duration("elapsed", time.Since(start).Round(time.Millisecond)))

	engine := routing.NewEngine(s, routing.EngineOptions{
		Router: routing.Options{
			MaxSettles: cfg.Search.MaxSettles,
			Logger:     log,
		},
		MaxSnapMeters: cfg.Search.MaxSnapMeters,
		Logger:        log,
	})

	srvCfg := api.DefaultConfig(cfg.Server.Addr)
	srvCfg.ReadTimeout = cfg.Server.ReadTimeout
	srvCfg.WriteTimeout = cfg.Server.WriteTimeout
	srvCfg.RequestTimeout = cfg.Server.RequestTimeout
	srvCfg.CORSOrigin = cfg.Server.CORSOrigin
	if cfg.Server.MaxConcurrent > 0 {
		srvCfg.MaxConcurrent = cfg.Server.MaxConcurrent
	}

	handlers := api.NewHandlers(engine, s, log)
	srv := api.NewServer(srvCfg, handlers, log)
	return api.ListenAndServe(srv, log)
}
