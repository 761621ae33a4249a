// Command spherectl seeds, advances, inspects, and checkpoints a world of
// celestial bodies.
//
// Usage:
//
//	spherectl [flags] seed
//	spherectl [flags] tick [-n N]
//	spherectl [flags] report [body-id...]
//	spherectl [flags] discover body-id
//	spherectl [flags] volatiles body-id delta-kelvin
//	spherectl [flags] reset body-id
//	spherectl [flags] export name
//	spherectl [flags] import name
//	spherectl [flags] checkpoints
//
// Every flag falls back to an environment variable; run with -h for the list.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"math/rand/v2"
	"os"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/prometheus/client_golang/prometheus"

	"spherecore/internal/blob"
	"spherecore/internal/core"
)

var exitFunc = os.Exit

var errUsage = errors.New("usage")

func main() {
	code := cli(os.Args[1:], os.Stdout, os.Stderr)
	exitFunc(code)
}

func cli(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("spherectl", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprintln(stderr, "usage: spherectl [flags] seed|tick|report|discover|volatiles|reset|export|import|checkpoints")
		fs.PrintDefaults()
	}
	cfg, err := loadConfig(fs, args, os.Getenv)
	if err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			fmt.Fprintln(stderr, err)
		}
		return 2
	}
	rest := fs.Args()
	cmd := "report"
	if len(rest) > 0 {
		cmd, rest = rest[0], rest[1:]
	}
	logger := newLogger(cfg, stderr)
	if err := run(context.Background(), cfg, cmd, rest, stdout, logger); err != nil {
		if errors.Is(err, errUsage) {
			fmt.Fprintln(stderr, err)
			fs.Usage()
			return 2
		}
		logger.Error("spherectl failed", "command", cmd, "error", err)
		return 1
	}
	return 0
}

func run(ctx context.Context, cfg config, cmd string, args []string, stdout io.Writer, logger core.Logger) (err error) {
	engine := core.NewDefaultRulesEngine()
	store, err := core.OpenStorage(ctx, cfg.Storage, engine)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer func() {
		if cerr := core.CloseStore(store); cerr != nil && err == nil {
			err = cerr
		}
	}()

	opts, err := core.OptionsFromEnv()
	if err != nil {
		return err
	}
	opts = append(opts, core.WithLogger(logger))
	registry := prometheus.NewRegistry()
	recorder, err := core.NewPrometheusMetricsRecorder(registry)
	if err != nil {
		return err
	}
	stats := core.NewExpvarMetricsRecorder("")
	opts = append(opts, core.WithMetricsRecorder(core.MultiMetricsRecorder{recorder, stats}))
	if cfg.TraceFile != "" {
		f, err := os.OpenFile(cfg.TraceFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("open trace file: %w", err)
		}
		defer f.Close()
		opts = append(opts, core.WithTracer(core.NewJSONTracer(f)))
	}
	if cfg.Seed != 0 {
		opts = append(opts, core.WithRandomSource(rand.New(rand.NewPCG(cfg.Seed, cfg.Seed))))
	}
	svc := core.NewService(store, opts...)

	err = dispatch(ctx, svc, cfg, cmd, args, stdout)
	logger.Debug("operation totals", "results", stats.Snapshot().Results)
	if err != nil {
		return err
	}
	if cfg.MetricsFile != "" {
		if err := prometheus.WriteToTextfile(cfg.MetricsFile, registry); err != nil {
			return fmt.Errorf("write metrics: %w", err)
		}
	}
	return nil
}

func dispatch(ctx context.Context, svc *core.Service, cfg config, cmd string, args []string, stdout io.Writer) error {
	switch cmd {
	case "seed":
		created, err := seedReferenceSystem(ctx, svc)
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "seeded %d bodies\n", len(created))
		for _, id := range created {
			if b, ok := svc.GetBody(id); ok {
				writeBodySummary(stdout, b)
			}
		}
		return nil
	case "tick":
		return runTicks(ctx, svc, args, stdout)
	case "report":
		return report(svc, args, stdout)
	case "discover":
		if len(args) != 1 {
			return fmt.Errorf("%w: discover body-id", errUsage)
		}
		found, _, err := svc.DiscoverLife(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "discovered %d life forms on %s\n", len(found), args[0])
		for _, lf := range found {
			fmt.Fprintf(stdout, "  %s (%s, %s): population %s\n", lf.Name, lf.Domain, lf.Complexity, humanize.Comma(lf.Population))
		}
		return nil
	case "volatiles":
		if len(args) != 2 {
			return fmt.Errorf("%w: volatiles body-id delta-kelvin", errUsage)
		}
		dT, err := strconv.ParseFloat(args[1], 64)
		if err != nil {
			return fmt.Errorf("%w: invalid temperature increase %q", errUsage, args[1])
		}
		released, _, err := svc.ExtractVolatiles(ctx, args[0], dT)
		if err != nil {
			return err
		}
		for _, id := range sortedKeys(released) {
			fmt.Fprintf(stdout, "released %s %s\n", kg(released[id]), id)
		}
		return nil
	case "reset":
		if len(args) != 1 {
			return fmt.Errorf("%w: reset body-id", errUsage)
		}
		restored, _, err := svc.ResetBody(ctx, args[0])
		if err != nil {
			return err
		}
		if !restored {
			fmt.Fprintf(stdout, "%s has no captured base values\n", args[0])
			return nil
		}
		fmt.Fprintf(stdout, "reset %s\n", args[0])
		return nil
	case "export", "import", "checkpoints":
		return checkpoint(ctx, svc, cfg, cmd, args, stdout)
	default:
		return fmt.Errorf("%w: unknown command %q", errUsage, cmd)
	}
}

func runTicks(ctx context.Context, svc *core.Service, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("tick", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	n := fs.Int("n", 1, "number of ticks")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: tick [-n N]: %v", errUsage, err)
	}
	if *n < 1 {
		return fmt.Errorf("%w: tick count must be positive", errUsage)
	}
	for i := 1; i <= *n; i++ {
		reports, _, err := svc.TickAll(ctx)
		if err != nil {
			return fmt.Errorf("tick %d: %w", i, err)
		}
		if len(reports) == 0 {
			fmt.Fprintln(stdout, "no bodies to tick")
			return nil
		}
		writeTickReports(stdout, i, reports)
	}
	return nil
}

func report(svc *core.Service, ids []string, stdout io.Writer) error {
	if len(ids) == 0 {
		bodies := svc.ListBodies()
		if len(bodies) == 0 {
			fmt.Fprintln(stdout, "no bodies")
		}
		for _, b := range bodies {
			writeBodySummary(stdout, b)
		}
		return nil
	}
	for _, id := range ids {
		b, ok := svc.GetBody(id)
		if !ok {
			return core.ErrNotFound{Entity: core.EntityCelestialBody, ID: id}
		}
		writeBodySummary(stdout, b)
	}
	return nil
}

func checkpoint(ctx context.Context, svc *core.Service, cfg config, cmd string, args []string, stdout io.Writer) error {
	archive, err := blob.OpenConfig(ctx, cfg.Blob)
	if err != nil {
		return fmt.Errorf("open checkpoint archive: %w", err)
	}
	switch cmd {
	case "checkpoints":
		names, err := core.ListCheckpoints(ctx, archive)
		if err != nil {
			return err
		}
		for _, name := range names {
			fmt.Fprintln(stdout, name)
		}
		return nil
	case "export":
		if len(args) != 1 {
			return fmt.Errorf("%w: export name", errUsage)
		}
		manifest, err := svc.ExportCheckpoint(ctx, archive, args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "exported %s: %d bodies, %d biomes\n", manifest.Name, len(manifest.Bodies), len(manifest.Biomes))
		return nil
	default:
		if len(args) != 1 {
			return fmt.Errorf("%w: import name", errUsage)
		}
		manifest, _, err := svc.ImportCheckpoint(ctx, archive, args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "imported %s from %s: %d bodies, %d biomes\n",
			manifest.Name, humanize.Time(manifest.CreatedAt), len(manifest.Bodies), len(manifest.Biomes))
		return nil
	}
}
