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
	"text/tabwriter"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"

	"github.com/signalsfoundry/barge-simulator/core"
	"github.com/signalsfoundry/barge-simulator/internal/logging"
	"github.com/signalsfoundry/barge-simulator/internal/observability"
	"github.com/signalsfoundry/barge-simulator/internal/sim"
	"github.com/signalsfoundry/barge-simulator/internal/sim/state"
	"github.com/signalsfoundry/barge-simulator/model"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stdout, logging.NewFromEnv()))
}

type options struct {
	scenario    string
	until       float64
	recheck     float64
	stats       float64
	metricsAddr string
	events      bool
	hold        bool
}

func parseFlags(args []string, stderr io.Writer) (options, error) {
	cfg := sim.DefaultConfig()
	var o options
	fs := flag.NewFlagSet("simulator", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&o.scenario, "scenario", "configs/cycle_scenario.yaml", "Path to a JSON or YAML scenario file")
	fs.Float64Var(&o.until, "until", 100, "Simulated time (hours) at which the run ends")
	fs.Float64Var(&o.recheck, "recheck", cfg.RecheckInterval, "Hours between periodic assignment rechecks (0 disables)")
	fs.Float64Var(&o.stats, "stats", cfg.StatsInterval, "Hours between statistics samples (0 disables)")
	fs.StringVar(&o.metricsAddr, "metrics-addr", "", "HTTP address for Prometheus /metrics; empty disables")
	fs.BoolVar(&o.events, "events", false, "Print every processed event")
	fs.BoolVar(&o.hold, "hold", false, "Keep serving /metrics after the run until interrupted")
	if err := fs.Parse(args); err != nil {
		return o, err
	}
	if o.scenario == "" {
		return o, errors.New("-scenario is required")
	}
	return o, nil
}

// run executes one simulation and returns the process exit code.
func run(ctx context.Context, args []string, stdout io.Writer, log logging.Logger) int {
	opts, err := parseFlags(args, stdout)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		log.Error(ctx, "invalid flags", logging.Err(err))
		return 2
	}

	shutdownTracing, err := observability.InitTracing(ctx, observability.TracingConfigFromEnv(), log)
	if err != nil {
		log.Error(ctx, "failed to initialise tracing", logging.Err(err))
		return 1
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdownTracing, log)

	reg := prometheus.NewRegistry()
	collector, err := observability.NewSimCollector(reg)
	if err != nil {
		log.Error(ctx, "failed to initialise metrics collector", logging.Err(err))
		return 1
	}
	assignCollector, err := observability.NewAssignmentCollector(reg)
	if err != nil {
		log.Error(ctx, "failed to initialise assignment metrics", logging.Err(err))
		return 1
	}

	var metricsSrv *http.Server
	if opts.metricsAddr != "" {
		metricsSrv = serveMetrics(opts.metricsAddr, collector, log)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = metricsSrv.Shutdown(shutdownCtx)
		}()
	}

	st := state.NewScenarioState(nil, nil, log, state.WithMetricsRecorder(collector))
	cfg := sim.DefaultConfig()
	cfg.RecheckInterval = opts.recheck
	cfg.StatsInterval = opts.stats
	s := sim.New(st, cfg,
		sim.WithLogger(log),
		sim.WithMetrics(collector),
		sim.WithAssignmentMetrics(assignCollector),
		sim.WithTracer(otel.Tracer(observability.TracerName)),
	)

	scenario, err := core.LoadScenarioFile(s, opts.scenario)
	if err != nil {
		log.Error(ctx, "failed to load scenario", logging.String("path", opts.scenario), logging.Err(err))
		return 1
	}
	log.Info(ctx, "loaded scenario",
		logging.String("name", scenario.Name),
		logging.Int("terminals", len(scenario.TerminalIDs)),
		logging.Int("connections", scenario.Connections),
		logging.Int("services", len(scenario.ServiceIDs)),
		logging.Int("barges", len(scenario.BargeIDs)),
		logging.Int("demands", len(scenario.DemandIDs)),
	)

	res, err := s.Run(ctx, opts.until)
	if res == nil {
		log.Error(ctx, "simulation failed", logging.Err(err))
		return 1
	}
	if err != nil {
		log.Warn(ctx, "simulation interrupted", logging.Float64("sim_time", res.EndTime), logging.Err(err))
	}

	if opts.events {
		printEvents(stdout, res)
	}
	printSummary(stdout, res)

	if opts.hold && metricsSrv != nil && err == nil {
		log.Info(ctx, "run complete; serving metrics until interrupted", logging.String("addr", opts.metricsAddr))
		<-ctx.Done()
	}
	if err != nil {
		return 1
	}
	return 0
}

func serveMetrics(addr string, collector *observability.SimCollector, log logging.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Warn(context.Background(), "metrics server exited", logging.Err(err))
		}
	}()

	log.Info(context.Background(), "serving Prometheus metrics", logging.String("addr", addr))
	return srv
}

func printEvents(w io.Writer, res *sim.Result) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tEVENT\tRESOURCE\tFROM\tTO\tQUANTITY\tDROPPED")
	for _, ev := range res.Events {
		fmt.Fprintf(tw, "%g\t%s\t%s\t%s\t%s\t%g\t%v\n",
			ev.Time, ev.Type, ev.ResourceID, ev.From, ev.To, ev.Quantity, ev.Dropped)
	}
	tw.Flush()
	fmt.Fprintln(w)
}

func printSummary(w io.Writer, res *sim.Result) {
	fmt.Fprintf(w, "Run %s ended at t=%g after %d events\n", res.RunID, res.EndTime, res.EventsProcessed)
	fmt.Fprintf(w, "Demands: %d completed (%d on time, %.0f%%), %d failed, %d in progress, %d assigned, %d pending\n",
		res.Counts[model.DemandCompleted],
		res.OnTime,
		100*res.OnTimeRate(),
		res.Counts[model.DemandFailed],
		res.Counts[model.DemandInProgress],
		res.Counts[model.DemandAssigned],
		res.Counts[model.DemandPending],
	)
	fmt.Fprintf(w, "Total distance: %g\n", res.TotalDistance)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "DEMAND\tSTATUS\tBARGE\tCOMPLETED\tDUE\tREASON")
	for _, d := range res.Demands {
		completed := "-"
		if d.CompletionTime != nil {
			completed = fmt.Sprintf("%g", *d.CompletionTime)
		}
		barge := d.AssignedBarge
		if barge == "" {
			barge = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%g\t%s\n", d.ID, d.Status, barge, completed, d.DueDate, d.FailureReason)
	}
	tw.Flush()

	tw = tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "BARGE\tPOSITION\tSTATUS\tLOAD\tDISTANCE")
	for _, b := range res.Barges {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%g/%g\t%g\n", b.ID, b.Position, b.Status, b.CurrentLoad, b.Capacity, b.DistanceTraveled)
	}
	tw.Flush()
}
