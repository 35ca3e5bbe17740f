package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"

	"github.com/bwmarrin/discordgo"
	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.mongodb.org/mongo-driver/mongo"
	"golang.org/x/sync/errgroup"

	"bubbles/internal/audit"
	"bubbles/internal/backend"
	"bubbles/internal/botlink"
	"bubbles/internal/commands"
	"bubbles/internal/config"
	"bubbles/internal/config_handler"
	"bubbles/internal/constants"
	"bubbles/internal/dedup"
	"bubbles/internal/gateway"
	"bubbles/internal/jobqueue"
	"bubbles/internal/logger"
	"bubbles/internal/management"
	"bubbles/internal/protocolhealth"
	"bubbles/internal/routing"
	"bubbles/internal/unified"
	"bubbles/pkg/bootstrap"
	"bubbles/pkg/cel"
	"bubbles/pkg/health"
	"bubbles/pkg/logging"
	"bubbles/pkg/metrics"
	"bubbles/pkg/middleware"
	"bubbles/pkg/models"
	"bubbles/pkg/ratelimit"
	"bubbles/pkg/tracing"
)

const gatewayService = "bubbles-gateway"

type GatewayApp struct {
	*bootstrap.Base
	dbConnector *bootstrap.DatabaseConnector

	redis       redis.UniversalClient
	db          *sql.DB
	mongoClient *mongo.Client

	link      *botlink.Client
	queues    *jobqueue.Manager
	session   *discordgo.Session
	hints     *routing.HintRules
	evaluator *cel.Evaluator
	auditLog  *audit.Writer
	processor *unified.Processor

	healthRegistry *health.CheckerRegistry
	tracerProvider *tracing.TracerProvider
	server         *http.Server
	wsHandler      *gateway.WebSocketHandler
}

func NewGatewayApp(cfg *config.Config, log logger.Logger) *GatewayApp {
	if sugaredLogger, ok := log.(*logger.SugaredLogger); ok {
		sugaredLogger.SetServiceName(gatewayService)
	}
	return &GatewayApp{
		Base:           bootstrap.NewBase(cfg, log),
		dbConnector:    bootstrap.NewDatabaseConnector(cfg, log),
		healthRegistry: health.NewCheckerRegistry(),
	}
}

func (a *GatewayApp) Initialize(ctx context.Context) error {
	tp, err := tracing.Init(a.Config.Tracing, gatewayService)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	a.tracerProvider = tp

	metrics.RegisterGatewayMetrics()

	if err := a.initDatabases(ctx); err != nil {
		return fmt.Errorf("failed to initialize databases: %w", err)
	}

	if err := a.initProcessor(ctx); err != nil {
		return fmt.Errorf("failed to initialize processor: %w", err)
	}

	if a.Config.Broker.Type != "" {
		if err := a.InitBroker(gatewayService); err != nil {
			return fmt.Errorf("failed to initialize broker: %w", err)
		}
	}

	a.initHTTPServer(ctx)
	return nil
}

func (a *GatewayApp) initDatabases(ctx context.Context) error {
	rdb, err := a.dbConnector.InitRedis(ctx)
	if err != nil {
		return err
	}
	a.redis = rdb
	a.healthRegistry.Register(health.NewRedisChecker(rdb))

	db, err := a.dbConnector.InitPostgreSQL(ctx)
	if err != nil {
		return err
	}
	if db != nil {
		a.db = db
		a.healthRegistry.Register(health.NewPostgreSQLChecker(db))
	}

	mongoClient, err := a.dbConnector.InitMongoDB(ctx)
	if err != nil {
		a.Logger.WarnwCtx(ctx, "MongoDB connection failed, guild config commands disabled for direct execution", "error", err)
		return nil
	}
	if mongoClient != nil {
		a.mongoClient = mongoClient
		a.healthRegistry.RegisterOptional(health.NewMongoDBChecker(mongoClient))
	}
	return nil
}

func (a *GatewayApp) initProcessor(ctx context.Context) error {
	store, err := dedup.NewStoreFromConfig(a.Config, a.redis)
	if err != nil {
		return err
	}
	dedupSvc := dedup.NewService(store, a.Config.Dedup, a.Logger.Named("dedup"))

	a.link = botlink.NewClient(a.Config.BotLink, a.Logger.Named("botlink"))
	if a.Config.BotLink.URL != "" {
		a.link.Start()
	} else {
		a.Logger.WarnwCtx(ctx, "No bot link URL configured, websocket backend stays unhealthy")
	}
	a.healthRegistry.RegisterOptional(health.NewFuncChecker("botlink", a.link.Probe))

	a.queues = jobqueue.NewManager(a.redis, a.Config.Queue, a.Logger.Named("jobqueue"))
	a.queues.Start(ctx)
	queueStrategy := backend.NewQueue(a.queues, a.Config.Queue, a.redis)
	a.healthRegistry.RegisterOptional(health.NewFuncChecker("jobqueue", queueStrategy.Probe))

	direct, err := a.directStrategy(ctx)
	if err != nil {
		return err
	}
	wsStrategy := backend.NewWebSocket(a.link)

	monitor := protocolhealth.NewMonitor(a.Config.Health, a.Logger.Named("health"),
		protocolhealth.NewProber(unified.MethodWebSocket, wsStrategy.Probe),
		protocolhealth.NewProber(unified.MethodQueue, queueStrategy.Probe),
		protocolhealth.NewProber(unified.MethodDirect, direct.Probe),
	)

	evaluator, err := cel.NewEvaluator()
	if err != nil {
		return fmt.Errorf("failed to create CEL evaluator: %w", err)
	}
	hints, err := routing.NewHintRules(evaluator, a.Config.Routing.HintRules, a.Logger.Named("routing"))
	if err != nil {
		return err
	}
	a.hints = hints
	a.evaluator = evaluator

	opts := []unified.Option{
		unified.WithStrategy(wsStrategy),
		unified.WithStrategy(queueStrategy),
		unified.WithStrategy(direct),
		unified.WithHintEvaluator(hints),
		unified.WithDefaultTimeout(a.Config.Processor.DefaultTimeout),
		unified.WithMetricsLogInterval(a.Config.Processor.MetricsLogInterval),
	}
	if a.db != nil {
		a.auditLog = audit.NewWriter(a.db, audit.DefaultBufferSize, a.Logger.Named("audit"))
		opts = append(opts, unified.WithRecorder(a.auditLog))
	}

	a.processor = unified.NewProcessor(dedupSvc, monitor, a.Logger.Named("processor"), opts...)
	return a.processor.Initialize(ctx)
}

// directStrategy builds the in-process backend. Without a Discord token or
// with direct execution disabled it is registered but never healthy.
func (a *GatewayApp) directStrategy(ctx context.Context) (*backend.Direct, error) {
	if !a.Config.Processor.DirectEnabled || a.Config.Discord.Token == "" {
		return backend.NewDirect(nil), nil
	}

	session, err := discordgo.New("Bot " + a.Config.Discord.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to create discord session: %w", err)
	}
	a.session = session

	deps := commands.Dependencies{Session: session, Redis: a.redis}
	if a.mongoClient != nil {
		db, err := a.dbConnector.MongoDatabase(ctx, a.mongoClient)
		if err != nil {
			return nil, err
		}
		deps.Configs = commands.NewGuildConfigStore(db)
	}
	return backend.NewDirect(commands.NewFactory(deps, a.Logger.Named("commands"))), nil
}

func (a *GatewayApp) initHTTPServer(ctx context.Context) {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	if a.Config.Tracing.Enabled {
		router.Use(tracing.GinMiddleware(gatewayService))
	}
	router.Use(middleware.RecoveryMiddleware(a.Logger))
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.LoggerMiddleware(a.Logger))

	api := router.Group("")
	if a.Config.RateLimit.Enabled {
		rateLimitConfig := ratelimit.FromConfig(a.Config.RateLimit)
		api.Use(ratelimit.RateLimitMiddleware(ctx, rateLimitConfig))
		a.Logger.InfowCtx(ctx, "Rate limiting enabled", "rps", rateLimitConfig.RPS, "burst", rateLimitConfig.Burst)
	}

	gateway.NewHandler(a.processor, a.Logger).RegisterRoutes(api)
	a.ruleHandler().RegisterRoutes(api)
	a.wsHandler = gateway.NewWebSocketHandler(a.processor, a.Logger.Named("ws"))
	a.wsHandler.RegisterRoutes(router)

	router.GET("/health", a.healthRegistry.Handler())
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	a.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", a.Config.Server.Port),
		Handler:      router,
		ReadTimeout:  a.Config.Server.ReadTimeout,
		WriteTimeout: a.Config.Server.WriteTimeout,
	}
}

// ruleHandler serves the hint rule API. Changes are broadcast on the config
// update topic when a broker is configured.
func (a *GatewayApp) ruleHandler() *management.Handler {
	var events *management.ConfigEventProducer
	if topic := a.Config.Broker.Kafka.ConfigUpdateTopic; a.Producer != nil && topic != "" {
		events = management.NewConfigEventProducer(a.Producer, topic)
	}
	svc := management.NewService(a.hints, a.evaluator, events, a.Logger.Named("management"))
	return management.NewHandler(svc, a.Logger)
}

func (a *GatewayApp) Run(ctx context.Context) error {
	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.Logger.InfowCtx(ctx, "HTTP server starting", "port", a.Config.Server.Port)
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	if a.Consumer != nil {
		a.runConsumers(g, gCtx)
	}

	g.Go(func() error {
		<-gCtx.Done()
		return a.Shutdown(context.WithoutCancel(ctx))
	})

	return g.Wait()
}

func (a *GatewayApp) runConsumers(g *errgroup.Group, ctx context.Context) {
	kafkaCfg := a.Config.Broker.Kafka

	inputTopic := kafkaCfg.InputTopic
	if inputTopic == "" {
		inputTopic = constants.DefaultInputTopic
	}
	commandConsumer := gateway.NewCommandConsumer(a.processor, a.Producer, kafkaCfg.OutputTopic, a.Logger.Named("kafka"))
	g.Go(func() error {
		return a.Consumer.Consume(ctx, inputTopic, commandConsumer.HandleMessage)
	})

	if kafkaCfg.ConfigUpdateTopic == "" {
		return
	}
	configEventHandler := config_handler.NewHandler(a.hints, a.Logger)
	g.Go(func() error {
		configCtx := logging.WithServiceName(ctx, gatewayService)
		a.Logger.InfowCtx(configCtx, "Starting config update event consumer",
			"topic", kafkaCfg.ConfigUpdateTopic,
		)
		return a.Consumer.Consume(ctx, kafkaCfg.ConfigUpdateTopic, func(cCtx context.Context, msg models.MessageEnvelope) error {
			return configEventHandler.HandleConfigUpdateEvent(cCtx, msg)
		})
	})
}

func (a *GatewayApp) Shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, constants.ShutdownTimeout)
	defer cancel()

	additionalShutdown := func(ctx context.Context) []error {
		var errs []error

		if a.server != nil {
			if err := a.server.Shutdown(ctx); err != nil {
				errs = append(errs, fmt.Errorf("HTTP server shutdown error: %w", err))
			}
		}

		if a.wsHandler != nil {
			if err := a.wsHandler.Close(ctx); err != nil {
				errs = append(errs, fmt.Errorf("websocket connections close error: %w", err))
			}
		}

		if a.processor != nil {
			if err := a.processor.Shutdown(ctx); err != nil {
				errs = append(errs, fmt.Errorf("processor shutdown error: %w", err))
			}
		}
		if a.link != nil {
			_ = a.link.Close()
		}
		if a.queues != nil {
			a.queues.Close()
		}
		if a.auditLog != nil {
			if err := a.auditLog.Close(ctx); err != nil {
				errs = append(errs, fmt.Errorf("audit writer close error: %w", err))
			}
		}

		if a.tracerProvider != nil {
			if err := a.tracerProvider.Shutdown(ctx); err != nil {
				errs = append(errs, fmt.Errorf("tracer provider shutdown error: %w", err))
			}
		}

		errs = append(errs, a.dbConnector.ShutdownDatabases(ctx, a.redis, a.db, a.mongoClient)...)
		return errs
	}

	return a.Base.Shutdown(shutdownCtx, additionalShutdown)
}
