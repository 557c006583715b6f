// Command ls-sunfix estimates where on Earth a sun sighting was taken.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/term"

	"github.com/litescript/ls-sunfix/internal/geo"
	"github.com/litescript/ls-sunfix/internal/locate"
	"github.com/litescript/ls-sunfix/internal/logging"
	"github.com/litescript/ls-sunfix/internal/metrics"
	"github.com/litescript/ls-sunfix/internal/report"
	"github.com/litescript/ls-sunfix/internal/sensor"
	"github.com/litescript/ls-sunfix/internal/state"
	"github.com/litescript/ls-sunfix/internal/ui"
	"github.com/litescript/ls-sunfix/internal/version"
)

// CLI flags for headless mode
var (
	summaryMode bool
	streamMode  bool
	jsonPath    string
)

func main() {
	stateDefaults := state.DefaultConfig()

	// Observation
	az := flag.Float64("az", 0, "Observed true azimuth of the sun in degrees")
	el := flag.Float64("el", 0, "Observed elevation of the sun in degrees")
	heading := flag.Float64("heading", 0, "Magnetic heading of the device in degrees")
	pitch := flag.Float64("pitch", 0, "Device pitch from horizontal in degrees")
	declination := flag.Float64("declination", sensor.DefaultDeclinationDeg, "Magnetic declination in degrees")
	timeStr := flag.String("time", "", "Observation time, RFC3339 (default now)")

	// Search
	lat := flag.Float64("lat", stateDefaults.Guess.LatDeg, "Initial guess latitude")
	lon := flag.Float64("lon", stateDefaults.Guess.LonDeg, "Initial guess longitude")
	legacyFine := flag.Bool("legacy-fine", false, "Report the fine stage center instead of the extra-fine one")
	polish := flag.Bool("polish", false, "Refine the grid result with Nelder-Mead")
	weight := flag.Float64("weight", locate.DefaultConfig().ElevationWeight, "Elevation weight in the error score")
	wrapAz := flag.Bool("wrap-azimuth", false, "Score the azimuth residual as the shortest angle")
	tz := flag.Float64("tz", locate.DefaultConfig().TZOffsetHours, "Reference zone offset in hours for solar-time arithmetic")

	// Output
	flag.BoolVar(&summaryMode, "summary", false, "Print text summary with the stage trace")
	flag.StringVar(&jsonPath, "json", "", "Export JSON result to file (use - for stdout)")
	flag.BoolVar(&streamMode, "stream", false, "Read a sensor log (H/P/R/A records) from stdin and estimate each observation")
	feedPath := flag.String("feed", "", "Replay a sensor log file into the interactive view")
	metricsAddr := flag.String("metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9090)")
	logLevel := flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println("ls-sunfix", version.Version)
		return
	}

	set := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })

	// Set up logging
	logger := logging.New(logging.ParseLevel(*logLevel))

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	cfg := locate.DefaultConfig()
	cfg.ElevationWeight = *weight
	cfg.WrapAzimuth = *wrapAz
	cfg.TZOffsetHours = *tz
	cfg.Polish = *polish
	if *legacyFine {
		cfg.Return = locate.ReturnLegacyFine
	}

	opts := []locate.Option{locate.WithLogger(logger)}
	if *metricsAddr != "" {
		collector, err := metrics.NewCollector(prometheus.NewRegistry())
		if err != nil {
			fatal(err)
		}
		opts = append(opts, locate.WithRecorder(collector))
		srv := serveMetrics(*metricsAddr, collector.Handler(), logger)
		defer shutdown(srv)
	}

	estimator, err := locate.New(cfg, opts...)
	if err != nil {
		fatal(err)
	}

	// Initialize components
	stateCfg := stateDefaults
	stateCfg.Guess = geo.GeoPosition{LatDeg: *lat, LonDeg: *lon}
	if err := stateCfg.Guess.Validate(); err != nil {
		fatal(fmt.Errorf("initial guess: %w", err))
	}
	stateMgr := state.NewManager(stateCfg)

	builder := sensor.DefaultBuilderConfig()
	builder.DeclinationDeg = *declination

	direct := set["az"] || set["el"]
	fromSensor := set["heading"] || set["pitch"]

	switch {
	case direct && fromSensor:
		usage("use either -az/-el or -heading/-pitch, not both")

	case streamMode:
		if err := runStream(ctx, os.Stdin, estimator, stateMgr, builder, logger); err != nil {
			fatal(err)
		}

	case direct || fromSensor:
		t, err := observationTime(*timeStr)
		if err != nil {
			fatal(err)
		}
		var obs sensor.Observation
		if direct {
			if !set["az"] || !set["el"] {
				usage("-az and -el must be given together")
			}
			obs = sensor.Observation{AzimuthDeg: *az, ElevationDeg: *el, Time: t}
		} else {
			if !set["heading"] || !set["pitch"] {
				usage("-heading and -pitch must be given together")
			}
			obs, err = sensor.Build(sensor.Reading{MagneticHeadingDeg: *heading, PitchDeg: *pitch, Time: t}, builder)
			if err != nil {
				fatal(err)
			}
		}
		if err := runOnce(estimator, stateMgr, obs); err != nil {
			fatal(err)
		}

	case term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd())):
		// Create TUI model
		model := ui.New(stateMgr, estimator, builder, time.Now)

		// Estimator logging would tear the alt screen
		logger.SetOutput(io.Discard)

		p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))

		if *feedPath != "" {
			f, err := os.Open(*feedPath)
			if err != nil {
				fatal(err)
			}
			defer f.Close()
			go runFeed(ctx, f, builder, logger, p.Send)
		}

		if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
			fmt.Fprintf(os.Stderr, "Error running TUI: %v\n", err)
			os.Exit(1)
		}

	default:
		usage("no observation given: use -az/-el, -heading/-pitch or -stream")
	}
}

// observationTime parses -time, defaulting to the current time.
func observationTime(s string) (time.Time, error) {
	if s == "" {
		return time.Now().UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse -time: %w", err)
	}
	return t, nil
}

// runOnce estimates a single observation and writes the requested outputs.
func runOnce(estimator *locate.Estimator, stateMgr *state.Manager, obs sensor.Observation) error {
	stateMgr.SetObservation(obs)
	est, err := estimate(estimator, stateMgr, obs)
	if err != nil {
		return err
	}
	return output(est)
}

// runStream feeds a sensor log through the fusion loop and estimates each
// observation it emits.
func runStream(ctx context.Context, r io.Reader, estimator *locate.Estimator, stateMgr *state.Manager, builder sensor.BuilderConfig, logger *logging.Logger) error {
	feed := sensor.NewFeed(builder, 16, logger)

	runErr := make(chan error, 1)
	go func() { runErr <- feed.Run(ctx) }()

	readErr := make(chan error, 1)
	go func() { readErr <- sensor.ReadLog(ctx, r, feed) }()

	var (
		last  sensor.Observation
		count int
	)
	handle := func(obs sensor.Observation) error {
		stateMgr.SetObservation(obs)
		est, err := estimate(estimator, stateMgr, obs)
		if err != nil {
			logger.Warn("estimate at %s failed: %v", obs.Time.Format(time.RFC3339), err)
			return nil
		}
		last = obs
		count++
		return output(est)
	}

	for obs := range feed.Observations() {
		if err := handle(obs); err != nil {
			return err
		}
	}

	// A newer observation may have replaced one still pending when the
	// input ended.
	if latest, ok := feed.Latest(); ok && latest != last {
		if err := handle(latest); err != nil {
			return err
		}
	}

	if err := <-readErr; err != nil {
		return err
	}
	if err := <-runErr; err != nil {
		return err
	}
	logger.Info("stream done: %d estimates", count)
	if count > 0 && stateMgr.DriftKmPerHour() > 0 {
		logger.Info("last drift %.1f km/h", stateMgr.DriftKmPerHour())
	}
	return nil
}

// runFeed replays a sensor log through the fusion loop and hands each
// observation to the interactive view.
func runFeed(ctx context.Context, r io.Reader, builder sensor.BuilderConfig, logger *logging.Logger, send func(tea.Msg)) {
	feed := sensor.NewFeed(builder, 16, logger)
	go func() {
		if err := feed.Run(ctx); err != nil {
			logger.Warn("sensor feed: %v", err)
		}
	}()
	go func() {
		if err := sensor.ReadLog(ctx, r, feed); err != nil {
			logger.Warn("sensor log: %v", err)
		}
	}()
	ui.ForwardObservations(ctx, feed.Observations(), send)
}

func estimate(estimator *locate.Estimator, stateMgr *state.Manager, obs sensor.Observation) (state.Estimate, error) {
	guess := stateMgr.Guess()
	start := time.Now()
	res, err := estimator.Estimate(obs, guess)
	est := state.Estimate{Observation: obs, Guess: guess, Result: res, Took: time.Since(start)}
	stateMgr.Record(est, err)
	return est, err
}

// output writes one estimate in every requested format.
func output(est state.Estimate) error {
	day, dayErr := report.Daylight(est.Result.Position, est.Observation.Time)

	if jsonPath != "" {
		export := report.ExportEstimate(est.Observation, est.Guess, est.Result)
		if dayErr == nil {
			export.WithDaylight(day)
		}
		if jsonPath == "-" {
			if err := export.WriteJSON(os.Stdout); err != nil {
				return fmt.Errorf("write JSON to stdout: %w", err)
			}
		} else {
			f, err := os.Create(jsonPath)
			if err != nil {
				return fmt.Errorf("create JSON file: %w", err)
			}
			defer f.Close()
			if err := export.WriteJSON(f); err != nil {
				return fmt.Errorf("write JSON to file: %w", err)
			}
		}
	}

	// Print summary table if requested
	if summaryMode {
		report.WriteSummaryTable(os.Stdout, est.Observation, est.Guess, est.Result)
		if dayErr == nil {
			report.WriteDaylight(os.Stdout, day)
		}
		fmt.Println()
		return nil
	}

	if jsonPath != "-" {
		fmt.Println(report.Headline(est.Result))
	}
	return nil
}

func serveMetrics(addr string, handler http.Handler, logger *logging.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		logger.Info("serving metrics on %s/metrics", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server: %v", err)
		}
	}()
	return srv
}

func shutdown(srv *http.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
}

func usage(msg string) {
	fmt.Fprintf(os.Stderr, "ls-sunfix: %s\n\n", msg)
	flag.Usage()
	os.Exit(2)
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
