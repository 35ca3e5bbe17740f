package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"

	"github.com/bwmarrin/discordgo"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"golang.org/x/sync/errgroup"

	"bubbles/internal/backend"
	"bubbles/internal/botlink"
	"bubbles/internal/commands"
	"bubbles/internal/config"
	"bubbles/internal/constants"
	"bubbles/internal/jobqueue"
	"bubbles/internal/logger"
	"bubbles/pkg/bootstrap"
	"bubbles/pkg/health"
	"bubbles/pkg/metrics"
	"bubbles/pkg/middleware"
	"bubbles/pkg/tracing"
)

const botService = "bubbles-bot"

var errNoDiscordToken = errors.New("discord.token is required to run the bot")

// BotApp owns the Discord session. It serves the bot link and drains the job
// queue, executing both through the same command factory.
type BotApp struct {
	config      *config.Config
	logger      logger.Logger
	dbConnector *bootstrap.DatabaseConnector

	redis       redis.UniversalClient
	mongoClient *mongo.Client
	session     *discordgo.Session
	ready       atomic.Bool

	queues *jobqueue.Manager
	worker *jobqueue.Worker

	tracerProvider *tracing.TracerProvider
	server         *http.Server
}

func NewBotApp(cfg *config.Config, log logger.Logger) *BotApp {
	if sugaredLogger, ok := log.(*logger.SugaredLogger); ok {
		sugaredLogger.SetServiceName(botService)
	}
	return &BotApp{
		config:      cfg,
		logger:      log,
		dbConnector: bootstrap.NewDatabaseConnector(cfg, log),
	}
}

func (a *BotApp) Initialize(ctx context.Context) error {
	if a.config.Discord.Token == "" {
		return errNoDiscordToken
	}

	tp, err := tracing.Init(a.config.Tracing, botService)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	a.tracerProvider = tp

	metrics.RegisterBotMetrics()

	rdb, err := a.dbConnector.InitRedis(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize redis: %w", err)
	}
	a.redis = rdb

	deps := commands.Dependencies{Redis: rdb}
	mongoClient, err := a.dbConnector.InitMongoDB(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize mongodb: %w", err)
	}
	if mongoClient != nil {
		a.mongoClient = mongoClient
		db, err := a.dbConnector.MongoDatabase(ctx, mongoClient)
		if err != nil {
			return err
		}
		deps.Configs = commands.NewGuildConfigStore(db)
	}

	if err := a.openSession(); err != nil {
		return err
	}
	deps.Session = a.session

	factory := commands.NewFactory(deps, a.logger.Named("commands"))
	exec := backend.NewLocalExecutor(factory, a.ready.Load)

	a.queues = jobqueue.NewManager(rdb, a.config.Queue, a.logger.Named("jobqueue"))
	a.queues.Start(ctx)
	a.worker = jobqueue.NewWorker(a.queues.DefaultQueue(), backend.JobHandler(exec), a.config.Queue.WorkerConcurrency, a.logger.Named("worker"))

	linkServer := botlink.NewServer(a.config.BotLink, botlink.Handler(exec), a.logger.Named("botlink"))
	a.initHTTPServer(linkServer)
	return nil
}

func (a *BotApp) openSession() error {
	session, err := discordgo.New("Bot " + a.config.Discord.Token)
	if err != nil {
		return fmt.Errorf("failed to create discord session: %w", err)
	}

	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsGuildMembers |
		discordgo.IntentsGuildBans |
		discordgo.IntentsGuildVoiceStates

	session.AddHandler(a.onReady)
	session.AddHandler(a.onResumed)
	session.AddHandler(a.onDisconnect)

	if err := session.Open(); err != nil {
		return fmt.Errorf("failed to open discord session: %w", err)
	}
	a.session = session
	return nil
}

func (a *BotApp) onReady(session *discordgo.Session, event *discordgo.Ready) {
	a.ready.Store(true)
	a.logger.Infow("Discord session ready", "user", event.User.Username, "guilds", len(event.Guilds))
}

func (a *BotApp) onResumed(*discordgo.Session, *discordgo.Resumed) {
	a.ready.Store(true)
	a.logger.Infow("Discord session resumed")
}

func (a *BotApp) onDisconnect(*discordgo.Session, *discordgo.Disconnect) {
	a.ready.Store(false)
	a.logger.Warnw("Discord session disconnected")
}

func (a *BotApp) initHTTPServer(linkServer *botlink.Server) {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	if a.config.Tracing.Enabled {
		router.Use(tracing.GinMiddleware(botService))
	}
	router.Use(middleware.RecoveryMiddleware(a.logger))
	router.Use(middleware.RequestIDMiddleware())

	linkServer.RegisterRoutes(router)

	healthRegistry := health.NewCheckerRegistry()
	healthRegistry.Register(health.NewRedisChecker(a.redis))
	healthRegistry.Register(health.NewFuncChecker("discord", func(context.Context) error {
		if !a.ready.Load() {
			return backend.ErrBotNotReady
		}
		return nil
	}))
	if a.mongoClient != nil {
		healthRegistry.RegisterOptional(health.NewMongoDBChecker(a.mongoClient))
	}
	healthRegistry.RegisterOptional(health.NewFuncChecker("gateway_link", func(context.Context) error {
		if !linkServer.Connected() {
			return botlink.ErrNotConnected
		}
		return nil
	}))

	router.GET("/health", healthRegistry.Handler())
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	a.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", a.config.Server.Port),
		Handler: router,
	}
}

func (a *BotApp) Run(ctx context.Context) error {
	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.logger.InfowCtx(ctx, "HTTP server starting", "port", a.config.Server.Port)
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		return a.worker.Run(gCtx)
	})

	g.Go(func() error {
		<-gCtx.Done()
		return a.Shutdown(context.WithoutCancel(ctx))
	})

	return g.Wait()
}

func (a *BotApp) Shutdown(ctx context.Context) error {
	a.logger.InfowCtx(ctx, "Shutting down bot")

	shutdownCtx, cancel := context.WithTimeout(ctx, constants.ShutdownTimeout)
	defer cancel()

	var errs []error

	if a.server != nil {
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("HTTP server shutdown error: %w", err))
		}
	}
	if a.queues != nil {
		a.queues.Close()
	}
	if a.session != nil {
		if err := a.session.Close(); err != nil {
			errs = append(errs, fmt.Errorf("discord session close error: %w", err))
		}
	}
	if a.tracerProvider != nil {
		if err := a.tracerProvider.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("tracer provider shutdown error: %w", err))
		}
	}

	errs = append(errs, a.dbConnector.ShutdownDatabases(shutdownCtx, a.redis, nil, a.mongoClient)...)

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}
	a.logger.InfowCtx(ctx, "Bot exited successfully")
	return nil
}
