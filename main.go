package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/mymmrac/telego"

	appbot "github.com/realmrv/raidlink-bot/bot"
	"github.com/realmrv/raidlink-bot/internal/auth"
	"github.com/realmrv/raidlink-bot/internal/config"
	"github.com/realmrv/raidlink-bot/internal/database"
	"github.com/realmrv/raidlink-bot/internal/dedup"
	"github.com/realmrv/raidlink-bot/internal/handlers"
	"github.com/realmrv/raidlink-bot/internal/locales"
	"github.com/realmrv/raidlink-bot/internal/observability"
	"github.com/realmrv/raidlink-bot/internal/registry"
	"github.com/realmrv/raidlink-bot/internal/topics"
)

const messageCacheSize = 4096

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Configuration error: %v", err)
	}

	locales.Init(cfg.DefaultLanguage)

	err = sentry.Init(sentry.ClientOptions{
		Dsn:              cfg.SentryDSN,
		Environment:      cfg.AppEnv,
		Release:          cfg.Version,
		EnableTracing:    true,
		TracesSampleRate: 1.0,
		Debug:            cfg.Debug,
	})
	if err != nil {
		log.Fatalf("sentry.Init: %s", err)
	}
	defer sentry.Flush(2 * time.Second)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Persistent state: the sqlite store plus its repositories.
	db, err := database.Open(cfg.DatabasePath)
	if err != nil {
		sentry.CaptureException(err)
		log.Fatalf("Failed to open database: %v", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Printf("Error closing database: %v", err)
		}
	}()

	postRepo := database.NewSQLitePostRepository(db)
	topicRepo := database.NewSQLiteTopicRepository(db)
	raidTopicRepo := database.NewSQLiteRaidTopicRepository(db)
	chatLinkRepo := database.NewSQLiteChatLinkRepository(db)

	reg, err := registry.Load(ctx, raidTopicRepo, chatLinkRepo)
	if err != nil {
		sentry.CaptureException(err)
		log.Fatalf("Failed to load registry: %v", err)
	}

	// Optional audit log backend.
	var eventLogger database.EventLogger = database.NoopEventLogger{}
	if cfg.MongoDBURI != "" {
		client, mongoDB, err := database.ConnectMongo(ctx, cfg.MongoDBURI, cfg.MongoDBDatabase)
		if err != nil {
			sentry.CaptureException(err)
			log.Fatalf("Failed to connect to MongoDB: %v", err)
		}
		defer func() {
			if err := client.Disconnect(context.Background()); err != nil {
				log.Printf("Error disconnecting from MongoDB: %v", err)
			}
		}()
		eventLogger = database.NewMongoEventLogger(mongoDB)
	}

	var bot *telego.Bot
	if cfg.Debug {
		bot, err = telego.NewBot(cfg.BotToken, telego.WithDefaultDebugLogger())
	} else {
		bot, err = telego.NewBot(cfg.BotToken, telego.WithDefaultLogger(false, false))
	}
	if err != nil {
		sentry.CaptureException(err)
		log.Fatalf("Failed to create telego bot: %v", err)
	}

	me, err := bot.GetMe(ctx)
	if err != nil {
		sentry.CaptureException(err)
		log.Fatalf("Failed to get bot identity: %v", err)
	}

	updates, err := bot.UpdatesViaLongPolling(ctx, nil)
	if err != nil {
		sentry.CaptureException(err)
		log.Fatalf("Failed to start long polling: %v", err)
	}

	reporter := observability.New(bot, cfg.LogChannelID)
	msgCache := appbot.NewMessageCache(messageCacheSize)
	resolver := topics.NewResolver(bot, topicRepo, msgCache, reporter)
	if err := resolver.WarmCache(ctx); err != nil {
		sentry.CaptureException(err)
		log.Fatalf("Failed to warm topic cache: %v", err)
	}
	checker := auth.NewChecker(bot, cfg.PermissionTTL)

	engine := dedup.New(dedup.Config{
		Bot:               bot,
		Posts:             postRepo,
		Registry:          reg,
		Resolver:          resolver,
		Reporter:          reporter,
		Events:            eventLogger,
		BotUsername:       me.Username,
		SelfDestructDelay: cfg.SelfDestructDelay,
	})

	handler := handlers.NewCommandHandler(handlers.Deps{
		Bot:               bot,
		Engine:            engine,
		Resolver:          resolver,
		Checker:           checker,
		Registry:          reg,
		Reporter:          reporter,
		RaidTopics:        raidTopicRepo,
		ChatLinks:         chatLinkRepo,
		Events:            eventLogger,
		BotID:             me.ID,
		BotUsername:       me.Username,
		SelfDestructDelay: cfg.SelfDestructDelay,
	})

	application, err := appbot.New(appbot.Deps{
		Bot:         bot,
		UpdatesChan: updates,
		Handler:     handler,
		Engine:      engine,
		Resolver:    resolver,
		Cache:       msgCache,
		Reporter:    reporter,
		BotUsername: me.Username,
		Debug:       cfg.Debug,
	})
	if err != nil {
		sentry.CaptureException(err)
		log.Fatal(err)
	}

	go application.Start(ctx)

	reporter.Logf(ctx, "%s", locales.GetMessage(locales.NewLocalizer(), "MsgConnectedAs",
		map[string]interface{}{"Username": me.Username}, nil))

	<-ctx.Done()
	log.Println("Shutting down bot...")
}
