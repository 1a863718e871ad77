package server

import (
	"context"
	"net/http"
	"os"
	"slices"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	natsgo "github.com/nats-io/nats.go"
	"golang.org/x/sync/errgroup"

	"github.com/mpapenbr/iracelog-strategy-service-go/log"
	"github.com/mpapenbr/iracelog-strategy-service-go/pkg/archive"
	"github.com/mpapenbr/iracelog-strategy-service-go/pkg/config"
	"github.com/mpapenbr/iracelog-strategy-service-go/pkg/db/postgres"
	enrichmentEP "github.com/mpapenbr/iracelog-strategy-service-go/pkg/endpoints/enrichment"
	strategyEP "github.com/mpapenbr/iracelog-strategy-service-go/pkg/endpoints/strategy"
	"github.com/mpapenbr/iracelog-strategy-service-go/pkg/generation"
	"github.com/mpapenbr/iracelog-strategy-service-go/pkg/generation/gemini"
	"github.com/mpapenbr/iracelog-strategy-service-go/pkg/publish"
	"github.com/mpapenbr/iracelog-strategy-service-go/pkg/publish/nats"
	"github.com/mpapenbr/iracelog-strategy-service-go/pkg/publish/webhook"
	"github.com/mpapenbr/iracelog-strategy-service-go/pkg/racecontext"
	"github.com/mpapenbr/iracelog-strategy-service-go/pkg/service"
	"github.com/mpapenbr/iracelog-strategy-service-go/pkg/session"
	"github.com/mpapenbr/iracelog-strategy-service-go/pkg/strategy"
	"github.com/mpapenbr/iracelog-strategy-service-go/pkg/utils"
	"github.com/mpapenbr/iracelog-strategy-service-go/pkg/utils/cache/loadercache"
	"github.com/mpapenbr/iracelog-strategy-service-go/version"
)

type app struct {
	mux       *http.ServeMux
	pool      *pgxpool.Pool
	natsConn  *natsgo.Conn
	publisher *publish.Publisher
}

func (a *app) Close() {
	if a.publisher != nil {
		a.publisher.Close()
	}
	if a.natsConn != nil {
		if err := a.natsConn.Drain(); err != nil {
			log.Warn("nats drain", log.ErrorField(err))
		}
	}
	if a.pool != nil {
		a.pool.Close()
	}
}

//nolint:funlen // wiring
func setupApp(ctx, sessionCtx context.Context, otlp bool) (_ *app, err error) {
	ret := &app{mux: http.NewServeMux()}
	defer func() {
		if err != nil {
			ret.Close()
		}
	}()

	arch, err := setupArchive(ctx, ret, otlp)
	if err != nil {
		return nil, err
	}
	strategist, err := setupStrategist(ctx)
	if err != nil {
		return nil, err
	}
	if err = setupPublisher(ret); err != nil {
		return nil, err
	}

	store := racecontext.NewStore()
	enrichOpts := []service.EnrichmentOption{
		service.WithArchive(arch),
		service.WithEnrichmentStore(store),
	}
	if ret.publisher != nil {
		enrichOpts = append(enrichOpts, service.WithPublisher(ret.publisher))
	}
	enrichSvc := service.NewEnrichmentService(enrichOpts...)

	var source service.TelemetrySource = enrichSvc
	if appConfig.EnrichmentURL != "" {
		source = service.NewTelemetryClient(appConfig.EnrichmentURL,
			service.WithFetchLimit(appConfig.FetchLimit))
	}
	strategySvc := service.NewStrategyService(strategist,
		service.WithTelemetrySource(source),
		service.WithStrategyStore(store),
		service.WithWindow(appConfig.Window))

	manager := session.NewManager()
	wsOpts := []session.HandlerOption{
		session.WithBaseContext(sessionCtx),
		session.WithSessionOptions(
			session.WithWindow(appConfig.Window),
			session.WithThreshold(appConfig.Threshold),
			session.WithLapDeadline(appConfig.LapDeadline),
			session.WithQueueSize(appConfig.SessionQueueSize),
			session.WithRaceContextStore(store),
			session.WithCommandRecorder(arch),
		),
	}
	if len(appConfig.AllowedWSOrigins) > 0 {
		wsOpts = append(wsOpts, session.WithCheckOrigin(checkOrigin(appConfig.AllowedWSOrigins)))
	}

	enrichmentEP.NewEndpoints(enrichSvc).Register(ret.mux)
	strategyEP.NewEndpoints(strategySvc,
		strategyEP.WithSessions(manager),
		strategyEP.WithVersion(version.Version),
		strategyEP.WithDemoMode(appConfig.DemoMode),
		strategyEP.WithEnrichmentURL(appConfig.EnrichmentURL),
	).Register(ret.mux)
	ret.mux.Handle("GET /ws/pi", session.NewHandler(manager, strategist, wsOpts...))
	return ret, nil
}

func setupArchive(ctx context.Context, a *app, otlp bool) (archive.Archive, error) {
	if config.DB == "" {
		log.Info("No database configured, archive disabled")
		return archive.Noop{}, nil
	}
	traceOpt := postgres.WithTracer(sqlLogger(), log.DebugLevel)
	if otlp {
		traceOpt = postgres.WithOtlpTracer()
	}
	pool, err := postgres.InitWithURL(ctx, config.DB, traceOpt)
	if err != nil {
		return nil, err
	}
	a.pool = pool
	return archive.NewPostgres(pool), nil
}

func setupStrategist(ctx context.Context) (*strategy.Generator, error) {
	backend, err := gemini.New(ctx, appConfig.GeminiAPIKey,
		gemini.WithModel(appConfig.GeminiModel))
	if err != nil {
		return nil, err
	}
	genOpts := []generation.Option{
		generation.WithMaxAttempts(appConfig.MaxAttempts),
		generation.WithTimeout(appConfig.GenerateTimeout),
	}
	if appConfig.DemoMode {
		log.Info("Demo mode enabled, responses are cached",
			log.Duration("ttl", appConfig.DemoCacheTTL))
		genOpts = append(genOpts, generation.WithCache(
			loadercache.New[string, generation.Result](
				loadercache.WithExpiration[string, generation.Result](appConfig.DemoCacheTTL))))
	}
	return strategy.NewGenerator(
		generation.NewClient(backend, genOpts...),
		strategy.WithCount(appConfig.StrategyCount),
		strategy.WithTemperature(float32(appConfig.Temperature)),
		strategy.WithTimeout(appConfig.GenerateTimeout),
	), nil
}

func setupPublisher(a *app) error {
	var sinks []publish.Sink
	if appConfig.CallbackURL != "" {
		log.Info("Forwarding enriched laps", log.String("url", appConfig.CallbackURL))
		sinks = append(sinks, webhook.New(appConfig.CallbackURL))
	}
	if appConfig.NatsURL != "" {
		conn, err := nats.Connect(appConfig.NatsURL, log.Default().Named("nats"))
		if err != nil {
			return err
		}
		a.natsConn = conn
		log.Info("Publishing enriched laps to nats", log.String("url", appConfig.NatsURL))
		sinks = append(sinks, nats.New(conn, nats.WithPrefix(appConfig.NatsPrefix)))
	}
	if len(sinks) > 0 {
		a.publisher = publish.NewPublisher(sinks,
			publish.WithTimeout(appConfig.PublishTimeout))
	}
	return nil
}

func checkOrigin(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		// non-browser clients don't send an origin
		return origin == "" || slices.Contains(allowed, origin)
	}
}

func sqlLogger() *log.Logger {
	level, err := log.ParseLevel(config.SQLLogLevel)
	if err != nil {
		level = log.DebugLevel
	}
	if config.LogFormat == "json" {
		return log.New(os.Stderr, level, log.WithCaller(true), log.AddCallerSkip(1))
	}
	return log.DevLogger(os.Stderr, level, log.WithCaller(true), log.AddCallerSkip(1))
}

func waitForRequiredServices(ctx context.Context) error {
	timeout, err := time.ParseDuration(config.WaitForServices)
	if err != nil {
		log.Warn("Invalid duration value. Setting default 60s", log.ErrorField(err))
		timeout = 60 * time.Second
	}

	g, gCtx := errgroup.WithContext(ctx)
	checkTCP := func(addr string) {
		g.Go(func() error {
			return utils.WaitForTCP(gCtx, addr, timeout)
		})
	}
	if postgresAddr := utils.ExtractFromDBURL(config.DB); postgresAddr != "" {
		checkTCP(postgresAddr)
	}
	if natsAddr := utils.ExtractFromNatsURL(appConfig.NatsURL); natsAddr != "" {
		checkTCP(natsAddr)
	}
	log.Debug("Waiting for connection checks to return")
	if err := g.Wait(); err != nil {
		return err
	}
	log.Debug("Required services are available")
	return nil
}
