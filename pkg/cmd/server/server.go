package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	_ "net/http/pprof" //nolint:gosec // only served on profiling port
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/rs/cors"
	"github.com/spf13/cobra"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
	"golang.org/x/sync/errgroup"

	"github.com/mpapenbr/iracelog-strategy-service-go/log"
	"github.com/mpapenbr/iracelog-strategy-service-go/pkg/config"
	"github.com/mpapenbr/iracelog-strategy-service-go/pkg/generation"
	"github.com/mpapenbr/iracelog-strategy-service-go/pkg/generation/gemini"
	"github.com/mpapenbr/iracelog-strategy-service-go/pkg/publish"
	"github.com/mpapenbr/iracelog-strategy-service-go/pkg/service"
	"github.com/mpapenbr/iracelog-strategy-service-go/pkg/session"
	"github.com/mpapenbr/iracelog-strategy-service-go/pkg/strategy"
)

var appConfig config.Config // holds processed config values

//nolint:funlen // flag definitions
func NewServerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "starts the enrichment and strategy server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return startServer(cmd.Context())
		},
	}
	cmd.Flags().StringVarP(&config.ServerAddr,
		"addr",
		"a",
		"localhost:9000",
		"HTTP server listen address")
	cmd.Flags().StringVar(&config.SQLLogLevel,
		"sql-log-level",
		"debug",
		"controls the log level for sql methods")
	cmd.Flags().BoolVar(&config.EnableTelemetry,
		"enable-telemetry",
		false,
		"enables telemetry")
	cmd.Flags().StringVar(&config.TelemetryEndpoint,
		"telemetry-endpoint",
		"localhost:4317",
		"Endpoint that receives open telemetry data (stdout if empty)")
	cmd.Flags().IntVar(&config.ProfilingPort,
		"profiling-port",
		0,
		"port to use for providing profiling data")

	cmd.Flags().StringVar(&appConfig.GeminiAPIKey,
		"gemini-api-key",
		"",
		"API key for the generative backend")
	cmd.Flags().StringVar(&appConfig.GeminiModel,
		"gemini-model",
		gemini.DefaultModel,
		"model of the generative backend")
	cmd.Flags().IntVar(&appConfig.StrategyCount,
		"strategy-count",
		strategy.DefaultCount,
		"number of strategies to request")
	cmd.Flags().Float64Var(&appConfig.Temperature,
		"temperature",
		strategy.DefaultTemperature,
		"sampling temperature for strategy generation")
	cmd.Flags().DurationVar(&appConfig.GenerateTimeout,
		"generate-timeout",
		generation.DefaultTimeout,
		"timeout per generation attempt")
	cmd.Flags().IntVar(&appConfig.MaxAttempts,
		"max-attempts",
		generation.DefaultMaxAttempts,
		"max attempts per generation")
	cmd.Flags().BoolVar(&appConfig.DemoMode,
		"demo-mode",
		false,
		"cache generated responses for identical prompts")
	cmd.Flags().DurationVar(&appConfig.DemoCacheTTL,
		"demo-cache-ttl",
		time.Hour,
		"lifetime of cached responses in demo mode")

	cmd.Flags().StringVar(&appConfig.EnrichmentURL,
		"enrichment-service-url",
		"",
		"base URL of a remote enrichment service (in-process if empty)")
	cmd.Flags().IntVar(&appConfig.FetchLimit,
		"fetch-limit",
		service.DefaultFetchLimit,
		"number of records pulled from the enrichment service")
	cmd.Flags().StringVar(&appConfig.CallbackURL,
		"callback-url",
		"",
		"enriched laps are posted to this URL")
	cmd.Flags().StringVar(&appConfig.NatsURL,
		"nats-url",
		"",
		"enriched laps are published to this NATS server")
	cmd.Flags().StringVar(&appConfig.NatsPrefix,
		"nats-prefix",
		"enriched",
		"subject prefix for enriched laps")
	cmd.Flags().DurationVar(&appConfig.PublishTimeout,
		"publish-timeout",
		publish.DefaultTimeout,
		"timeout per forwarded lap")

	cmd.Flags().IntVar(&appConfig.Window,
		"window",
		service.DefaultWindow,
		"number of records used for strategy generation")
	cmd.Flags().IntVar(&appConfig.Threshold,
		"threshold",
		service.DefaultThreshold,
		"number of records required before strategies are generated")
	cmd.Flags().DurationVar(&appConfig.LapDeadline,
		"lap-deadline",
		session.DefaultLapDeadline,
		"max processing time per lap on the vehicle channel")
	cmd.Flags().IntVar(&appConfig.SessionQueueSize,
		"session-queue-size",
		session.DefaultQueueSize,
		"pending laps per vehicle channel")
	cmd.Flags().StringSliceVar(&appConfig.AllowedWSOrigins,
		"allowed-ws-origins",
		nil,
		"origins allowed on the vehicle channel (all if empty)")
	cmd.Flags().DurationVar(&appConfig.ShutdownTimeout,
		"shutdown-timeout",
		10*time.Second,
		"max duration for graceful shutdown")
	return cmd
}

func startServer(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Debug("Config:",
		log.String("db", config.DB),
		log.String("addr", config.ServerAddr),
		log.Any("config", appConfig.Redacted()))

	if config.ProfilingPort > 0 {
		log.Info("Starting profiling server on port", log.Int("port", config.ProfilingPort))
		go func() {
			//nolint:gosec // no timeouts needed for profiling
			err := http.ListenAndServe(
				fmt.Sprintf("localhost:%d", config.ProfilingPort),
				nil)
			if err != nil {
				log.Error("Profiling server stopped", log.ErrorField(err))
			}
		}()
	}

	var telemetry *config.Telemetry
	if config.EnableTelemetry {
		log.Info("Enabling telemetry")
		var err error
		if telemetry, err = config.SetupTelemetry(ctx); err != nil {
			log.Warn("Could not setup telemetry", log.ErrorField(err))
		} else {
			defer telemetry.Shutdown()
		}
	}

	if err := waitForRequiredServices(ctx); err != nil {
		log.Error("required services not ready", log.ErrorField(err))
		return err
	}

	// sessions use hijacked connections which are not covered by Shutdown
	sessionCtx, cancelSessions := context.WithCancel(context.Background())
	defer cancelSessions()
	app, err := setupApp(ctx, sessionCtx, telemetry != nil)
	if err != nil {
		log.Error("server could not be started", log.ErrorField(err))
		return err
	}
	defer app.Close()

	//nolint:gosec // websocket sessions are long lived
	server := &http.Server{
		Addr:    config.ServerAddr,
		Handler: h2c.NewHandler(newCORS().Handler(app.mux), &http2.Server{}),
	}
	setupGoRoutinesDump()

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("Starting HTTP server", log.String("addr", config.ServerAddr))
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gCtx.Done()
		log.Info("Shutting down server")
		cancelSessions()
		shutdownCtx, cancel := context.WithTimeout(context.Background(),
			appConfig.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	if err := g.Wait(); err != nil {
		log.Error("server stopped with error", log.ErrorField(err))
		return err
	}
	log.Info("Server terminated")
	return nil
}

func setupGoRoutinesDump() {
	go func() {
		sigs := make(chan os.Signal, 1)
		signal.Notify(sigs, syscall.SIGQUIT)
		buf := make([]byte, 1<<20)
		for {
			<-sigs
			stacklen := runtime.Stack(buf, true)
			fmt.Printf("=== received SIGQUIT ===\n*** goroutine dump...\n%s\n*** end\n",
				buf[:stacklen])
		}
	}()
}

func newCORS() *cors.Cors {
	// Dashboards and simulators call the API from browsers, so the CORS setup
	// is very permissive.
	return cors.New(cors.Options{
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
			http.MethodPost,
		},
		AllowOriginFunc: func(origin string) bool {
			return true
		},
		AllowedHeaders: []string{"*"},
		ExposedHeaders: []string{
			"Accept",
			"Accept-Encoding",
			"Content-Encoding",
		},
		// Let browsers cache CORS information for longer, which reduces the number
		// of preflight requests.
		MaxAge: int(2 * time.Hour / time.Second),
	})
}
