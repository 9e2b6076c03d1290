package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"google.golang.org/grpc"

	"github.com/signalsfoundry/doppler-simulator/internal/config"
	"github.com/signalsfoundry/doppler-simulator/internal/logging"
	"github.com/signalsfoundry/doppler-simulator/internal/observability"
	"github.com/signalsfoundry/doppler-simulator/internal/rpc"
	"github.com/signalsfoundry/doppler-simulator/internal/sim"
	"github.com/signalsfoundry/doppler-simulator/timectrl"
)

func main() {
	log := logging.NewFromEnv()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	err := run(ctx, os.Args[1:], os.Stdout, log)
	stop()
	if err != nil && !errors.Is(err, flag.ErrHelp) {
		log.Error(context.Background(), "simulator failed", logging.Err(err))
		os.Exit(1)
	}
}

type options struct {
	configPath    string
	duration      time.Duration
	tick          time.Duration
	accelerated   bool
	snapshotEvery int
	metricsAddr   string
	grpcAddr      string

	// Initial inputs, applied only when the flag was given.
	speed     *float64
	frequency *float64
	observer  *float64
}

func parseFlags(args []string, stderr io.Writer) (options, error) {
	var opts options
	fs := flag.NewFlagSet("simulator", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&opts.configPath, "config", "", "optional JSON file overriding simulation constants")
	fs.DurationVar(&opts.duration, "duration", 30*time.Second, "total simulated time; 0 runs until interrupted")
	fs.DurationVar(&opts.tick, "tick", 16*time.Millisecond, "tick interval")
	fs.BoolVar(&opts.accelerated, "accelerated", false, "run in accelerated mode (vs real-time)")
	fs.IntVar(&opts.snapshotEvery, "snapshot-every", 1, "write a JSON snapshot every N ticks; 0 disables")
	fs.StringVar(&opts.metricsAddr, "metrics-addr", "", "HTTP address for Prometheus /metrics; empty disables")
	fs.StringVar(&opts.grpcAddr, "grpc-addr", "", "TCP address for the control gRPC server; empty disables")
	speed := fs.Float64("speed", 0, "initial source speed in m/s")
	frequency := fs.Float64("frequency", 0, "initial source frequency in Hz (sets the manual override)")
	observer := fs.Float64("observer", 0, "initial observer position in track percent")

	if err := fs.Parse(args); err != nil {
		return opts, err
	}
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "speed":
			opts.speed = speed
		case "frequency":
			opts.frequency = frequency
		case "observer":
			opts.observer = observer
		}
	})

	if opts.tick <= 0 {
		return opts, fmt.Errorf("-tick must be positive, got %s", opts.tick)
	}
	if opts.duration < 0 {
		return opts, fmt.Errorf("-duration must not be negative, got %s", opts.duration)
	}
	if opts.accelerated && opts.duration == 0 {
		return opts, errors.New("-accelerated requires a finite -duration")
	}
	if opts.snapshotEvery < 0 {
		return opts, fmt.Errorf("-snapshot-every must not be negative, got %d", opts.snapshotEvery)
	}
	return opts, nil
}

func (o options) initialInputs() []sim.InputEvent {
	var events []sim.InputEvent
	if o.speed != nil {
		events = append(events, sim.SetSpeed(*o.speed))
	}
	if o.frequency != nil {
		events = append(events, sim.SetFrequency(*o.frequency))
	}
	if o.observer != nil {
		events = append(events, sim.DragObserver(*o.observer))
	}
	return events
}

func run(ctx context.Context, args []string, stdout io.Writer, log logging.Logger) error {
	opts, err := parseFlags(args, os.Stderr)
	if err != nil {
		return err
	}

	cfg := config.Default()
	if opts.configPath != "" {
		if cfg, err = config.Load(opts.configPath); err != nil {
			return err
		}
		log.Info(ctx, "loaded config", logging.String("path", opts.configPath))
	}

	shutdownTracing, err := observability.InitTracing(ctx, observability.TracingConfigFromEnv(), log)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdownTracing, log)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics, err := observability.NewSimCollector(reg)
	if err != nil {
		return fmt.Errorf("init metrics: %w", err)
	}

	out := newSnapshotWriter(stdout, opts.snapshotEvery)
	engine := sim.NewEngine(cfg,
		sim.WithLogger(log),
		sim.WithMetrics(metrics),
		sim.WithRenderer(out),
		sim.WithCuePlayer(logCuePlayer{log: log}),
	)
	runner := sim.NewRunner(engine)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	runDone := make(chan error, 1)
	go func() { runDone <- runner.Run(runCtx) }()

	for _, ev := range opts.initialInputs() {
		if err := runner.Submit(ctx, ev); err != nil {
			cancel()
			<-runDone
			return fmt.Errorf("apply initial %s: %w", ev.Kind, err)
		}
	}

	var metricsSrv *http.Server
	if opts.metricsAddr != "" {
		metricsSrv = serveMetrics(opts.metricsAddr, metrics.Handler(), log)
	}

	var grpcSrv *grpc.Server
	if opts.grpcAddr != "" {
		lis, err := net.Listen("tcp", opts.grpcAddr)
		if err != nil {
			cancel()
			<-runDone
			return fmt.Errorf("listen for gRPC on %s: %w", opts.grpcAddr, err)
		}
		grpcSrv = rpc.NewGRPCServer(rpc.NewServer(runner, log), log, metrics.UnaryServerInterceptor())
		log.Info(ctx, "starting control gRPC server", logging.String("addr", lis.Addr().String()))
		go func() {
			if err := grpcSrv.Serve(lis); err != nil {
				log.Error(ctx, "gRPC server exited", logging.Err(err))
			}
		}()
	}

	mode := timectrl.RealTime
	if opts.accelerated {
		mode = timectrl.Accelerated
	}
	tc := timectrl.NewTimeController(time.Unix(0, 0).UTC(), opts.tick, mode)
	tc.AddListener(runner.Tick)

	log.Info(ctx, "starting simulation",
		logging.Duration("duration", opts.duration),
		logging.Duration("tick", opts.tick),
		logging.String("mode", mode.String()),
	)
	done := tc.Start(runCtx, opts.duration)
	select {
	case <-done:
	case <-ctx.Done():
		<-done
	}

	if grpcSrv != nil {
		grpcSrv.GracefulStop()
	}
	if metricsSrv != nil {
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
		_ = metricsSrv.Shutdown(shutdownCtx)
		cancelShutdown()
	}
	cancel()
	<-runDone

	final := runner.Snapshot()
	log.Info(ctx, "simulation complete",
		logging.Int("ticks", int(final.Tick)),
		logging.Float64("sim_time", final.SimTime),
		logging.String("vehicle_class", final.VehicleClass.String()),
	)
	return out.Err()
}

func serveMetrics(addr string, handler http.Handler, log logging.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)
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

// snapshotWriter renders every nth snapshot as one JSON line. After the
// first write error it stops writing and reports the error from Err.
type snapshotWriter struct {
	enc   *json.Encoder
	every int
	seen  int
	err   error
}

func newSnapshotWriter(w io.Writer, every int) *snapshotWriter {
	return &snapshotWriter{enc: json.NewEncoder(w), every: every}
}

func (s *snapshotWriter) Render(_ context.Context, snap sim.Snapshot) error {
	if s.every == 0 || s.err != nil {
		return s.err
	}
	s.seen++
	if s.seen%s.every != 0 {
		return nil
	}
	if err := s.enc.Encode(snap); err != nil {
		s.err = fmt.Errorf("write snapshot: %w", err)
	}
	return s.err
}

// Err is only safe to call after the runner has stopped.
func (s *snapshotWriter) Err() error { return s.err }

type logCuePlayer struct {
	log logging.Logger
}

func (p logCuePlayer) Play(ctx context.Context, cue sim.Cue) error {
	p.log.Info(ctx, "cue", logging.String("cue", string(cue)))
	return nil
}
