// Command icemet-server runs the ICEMET holographic particle-measurement
// pipeline: watches an input directory (or rehydrates persisted particles
// in stats-only mode), reconstructs and measures particles, and writes
// per-particle records plus time-windowed icing statistics to SQLite.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	"github.com/icemet/icemet-server/internal/analysis"
	"github.com/icemet/icemet-server/internal/config"
	"github.com/icemet/icemet-server/internal/model"
	"github.com/icemet/icemet-server/internal/monitoring"
	"github.com/icemet/icemet-server/internal/preproc"
	"github.com/icemet/icemet-server/internal/queue"
	"github.com/icemet/icemet-server/internal/recon"
	"github.com/icemet/icemet-server/internal/saver"
	"github.com/icemet/icemet-server/internal/source"
	"github.com/icemet/icemet-server/internal/statsagg"
	"github.com/icemet/icemet-server/internal/storage"
	"github.com/icemet/icemet-server/internal/version"
)

// queueCapacity bounds every inter-stage queue, per spec.md §4.1's
// "bounded FIFO" contract.
const queueCapacity = 64

func main() {
	app := &cli.App{
		Name:  "icemet-server",
		Usage: "reconstruct and measure holographic icing particles",
		UsageText: "icemet-server [options] <config.yaml>",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "V", Usage: "print version and exit"},
			&cli.BoolFlag{Name: "t", Usage: "validate config and exit"},
			&cli.BoolFlag{Name: "p", Usage: "particles only (no stats sink)"},
			&cli.BoolFlag{Name: "s", Usage: "stats only (rehydrate persisted particles, no source watch)"},
			&cli.BoolFlag{Name: "Q", Usage: "drain existing inputs and exit"},
			&cli.BoolFlag{Name: "d", Usage: "debug logging"},
		},
		Action: run,
	}
	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func run(c *cli.Context) error {
	if c.Bool("V") {
		fmt.Println("icemet-server", version.Version, version.GitSHA)
		return nil
	}

	configPath := c.Args().First()
	if configPath == "" {
		return cli.Exit("missing required <config.yaml> argument", 2)
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return cli.Exit(err, 2)
	}
	if cfg.OCLDevice != "" {
		os.Setenv("ICEMET_COMPUTE_DEVICE", cfg.OCLDevice)
	}
	if c.Bool("t") {
		fmt.Println("config OK")
		return nil
	}

	monitoring.Debug = c.Bool("d")
	if c.Bool("p") && c.Bool("s") {
		return cli.Exit("-p and -s are mutually exclusive", 2)
	}

	db, err := storage.Open(cfg.DB.Database, cfg.DB.TableParticles, cfg.DB.TableStats, cfg.DB.TableMeta)
	if err != nil {
		return cli.Exit(err, 3)
	}
	defer db.Close()

	configYAML, err := os.ReadFile(configPath)
	if err != nil {
		return cli.Exit(err, 2)
	}
	runID := uuid.NewString()
	if err := db.WriteMeta(runID, model.Now(), version.Version, string(configYAML)); err != nil {
		return cli.Exit(err, 3)
	}

	pipeline := buildPipeline(cfg, db, runID, c.Bool("p"), c.Bool("s"), c.Bool("Q"))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := pipeline.Run(ctx); err != nil {
		return cli.Exit(err, 1)
	}
	return nil
}

// buildPipeline wires the stage graph per the -p/-s/-Q mode flags, per
// spec.md §6's CLI table. Queue fan-out follows the fixed order documented
// on analysis.Stage: outs[0]=saver, outs[1]=stats.
func buildPipeline(cfg *config.Config, db *storage.DB, runID string, particlesOnly, statsOnly, nonWaiting bool) *queue.Pipeline {
	p := queue.NewPipeline()

	if statsOnly {
		statsIn := queue.Connect(queueCapacity)
		rehydrate := source.NewRehydrate(db, runID, statsIn)
		stats := statsagg.New(cfg, statsIn, nil, db, runID)
		p.Add(rehydrate)
		p.Add(stats)
		return p
	}

	sourceOut := queue.Connect(queueCapacity)
	preprocOut := queue.Connect(queueCapacity)
	reconOut := queue.Connect(queueCapacity)

	src := source.New(cfg, sourceOut, nonWaiting)
	pre, err := preproc.New(cfg, sourceOut, []*queue.Queue{preprocOut})
	if err != nil {
		monitoring.Stage("main").Critical(err)
	}
	rec := recon.New(cfg, preprocOut, []*queue.Queue{reconOut})

	saverIn := queue.Connect(queueCapacity)
	analysisOuts := []*queue.Queue{saverIn}
	var statsIn *queue.Queue
	if !particlesOnly {
		statsIn = queue.Connect(queueCapacity)
		analysisOuts = append(analysisOuts, statsIn)
	}
	ana := analysis.New(cfg, reconOut, analysisOuts)
	sav := saver.New(cfg, saverIn, nil, db, runID)

	p.Add(src)
	p.Add(pre)
	p.Add(rec)
	p.Add(ana)
	p.Add(sav)
	if !particlesOnly {
		stats := statsagg.New(cfg, statsIn, nil, db, runID)
		p.Add(stats)
	}
	return p
}
