package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"backend-slopetrack/internal/config"
	"backend-slopetrack/internal/export"
	"backend-slopetrack/internal/logging"
	"backend-slopetrack/internal/pipeline"
	"backend-slopetrack/internal/replay"
	"backend-slopetrack/internal/runs"

	"github.com/google/uuid"
)

var errUsage = errors.New("usage")

var loadConfig = config.Load

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, errUsage) {
			os.Exit(2)
		}
		fmt.Fprintf(os.Stderr, "replay failed: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("replay", flag.ContinueOnError)
	fs.SetOutput(out)
	var (
		fitPath    = fs.String("fit", "", "Path to input .fit file")
		vehicle    = fs.Bool("vehicle", false, "Use the vehicle testing thresholds")
		sessionID  = fs.String("session", "", "Session id to record runs under (default: random)")
		sqlitePath = fs.String("sqlite", "", "SQLite file to store finalized runs in")
		routesOut  = fs.String("routes", "", "Write route points as Parquet to this path")
		runsOut    = fs.String("runs", "", "Write run summaries as Parquet to this path")
	)
	fs.Usage = func() {
		fmt.Fprintf(out, "Usage: %s --fit input.fit [--vehicle] [--sqlite runs.db] [--routes routes.parquet] [--runs runs.parquet]\n", filepath.Base(os.Args[0]))
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	if *fitPath == "" {
		fs.Usage()
		return errUsage
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	tracking := cfg.Pipeline()
	if *vehicle {
		v := pipeline.VehicleTestingConfig()
		tracking.Detection = v.Detection
		tracking.Filtering.MaxDistanceJump = v.Filtering.MaxDistanceJump
	}

	readings, err := replay.DecodeFile(*fitPath, replay.DefaultDecodeOptions())
	if err != nil {
		return err
	}

	id := *sessionID
	if id == "" {
		id = uuid.NewString()
	}
	log := logging.New(cfg.LogLevel)
	tr := pipeline.NewTracker(id, tracking, nil, log)
	res := replay.Run(tr, readings)

	fmt.Fprintf(out, "readings: %d accepted, %d rejected\n", res.Accepted, res.Rejected)
	for reason, n := range res.Rejections {
		fmt.Fprintf(out, "  rejected %-32s %d\n", reason, n)
	}
	for i, r := range res.Runs {
		fmt.Fprintf(out, "run %d: %s  %s  %.0f m  -%.0f m  top %.1f km/h  avg %.1f km/h  max slope %.1f°\n",
			i+1, r.StartTime.Format("15:04:05"), r.Duration().Round(1e9), r.Distance, r.VerticalDescent,
			r.TopSpeed*3.6, r.AverageSpeed*3.6, r.MaxSlope)
	}
	for _, d := range res.Discarded {
		fmt.Fprintf(out, "discarded: %v\n", d)
	}

	if *sqlitePath != "" {
		if err := store(*sqlitePath, res.Runs); err != nil {
			return err
		}
		fmt.Fprintf(out, "stored %d runs in %s\n", len(res.Runs), *sqlitePath)
	}
	if *routesOut != "" {
		if err := export.WriteRoutes(*routesOut, res.Runs); err != nil {
			return fmt.Errorf("write routes: %w", err)
		}
	}
	if *runsOut != "" {
		if err := export.WriteRuns(*runsOut, res.Runs); err != nil {
			return fmt.Errorf("write runs: %w", err)
		}
	}
	return nil
}

func store(path string, all []runs.Run) error {
	s, err := runs.OpenSQLite(path)
	if err != nil {
		return err
	}
	defer s.Close()
	for _, r := range all {
		if err := s.Save(context.Background(), r); err != nil {
			return err
		}
	}
	return nil
}
