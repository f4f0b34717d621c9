package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	redisCache "campaign-engine/internal/cache/redis"
	"campaign-engine/internal/domain"
	"campaign-engine/internal/gateway"
	httpHandler "campaign-engine/internal/handler/http"
	"campaign-engine/internal/persistant/postgresql"
	"campaign-engine/internal/ratelimit"
	"campaign-engine/internal/repository/schedule"
	"campaign-engine/internal/service"

	"gorm.io/gorm"
)

var (
	configFile = flag.String("config", "config.json", "config file path")
)

func main() {
	// create root context
	appCtx, appCtxCancel := context.WithCancel(context.Background())
	defer appCtxCancel()

	// listen for terminate signal
	notifyCtx, stop := signal.NotifyContext(appCtx, syscall.SIGTERM)
	defer stop()

	// parse flags
	flag.Parse()

	// parse config
	config, err := ReadConfigJson(*configFile)
	if err != nil {
		log.Fatalf("failed to read config file: %v", err)
	}

	// initialize external dependencies
	db, rClient, err := initExternalDependencies(notifyCtx, config)
	if err != nil {
		log.Fatalf("failed to initialize external dependencies: %v", err)
	}

	// setup logger
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// init schedule repository
	repo := schedule.NewScheduleRepository(db, rClient)

	// init messaging gateway and shared rate limiter
	gw := gateway.NewWebhookGateway(config.GatewayUrl, config.GatewayTimeout)
	limiter := ratelimit.New(config.RatePerHour, config.RateBurst, config.RateMaxWait)

	// init dispatch executor
	executor := service.NewExecutor(
		gw,
		limiter,
		service.RetryPolicy{
			MaxRetries: config.MaxRetries,
			BaseDelay:  config.RetryBaseDelay,
			MaxDelay:   config.RetryMaxDelay,
		},
		config.FanOut,
		logger.With(slog.String("component", "dispatcher")),
		func(ctx context.Context, deliveryID string) {
			if err := repo.CacheDelivery(ctx, deliveryID, time.Now().UTC()); err != nil {
				logger.Error("failed to cache delivery id", "deliveryId", deliveryID, "error", err.Error())
			}
		},
	)

	// init dispatch engine
	engine := service.NewEngine(
		repo,
		executor,
		service.Config{
			TickInterval: config.TickInterval,
			Workers:      config.Workers,
			StaleAfter:   config.StaleAfter,
			RecentLogs:   config.RecentLogs,
		},
		logger.With(slog.String("component", "scheduler")),
	)

	// populate database with dummy data
	if err := populateDatabase(db); err != nil {
		log.Fatalf("failed to populate db: %v", err)
	}

	// init http handler
	handler := httpHandler.NewHttpHandler(
		fmt.Sprintf(":%d", config.HttpPort),
		engine,
	)

	// Start the engine automatically on deployment
	engine.Start()

	wg := sync.WaitGroup{}
	// run http handler
	wg.Go(func() {
		if err := handler.Run(); err != nil {
			logger.Error("http server encountered with an error and closed", "error", err.Error())
		}
		// cancel app context if http handler fails
		appCtxCancel()
	})

	// graceful shutdown
	wg.Go(func() {
		<-notifyCtx.Done()
		logger.Info("application shutting down...")

		shutDownCtx, cancel := context.WithTimeout(context.Background(), time.Second*5)
		defer cancel()

		engine.Stop()
		handler.Shutdown(shutDownCtx)
		postgresql.Close(db)
	})

	wg.Wait()
	os.Exit(0)
}

func initExternalDependencies(ctx context.Context, config *Config) (db *gorm.DB, rCache *redisCache.RedisCache, err error) {
	// initialize database
	db, err = postgresql.Initialize(ctx, config.DbConnString, []any{
		&domain.Campaign{},
		&domain.ScheduledMessage{},
		&domain.ExecutionLog{},
	})
	if err != nil {
		return
	}

	// initialize cache
	rCache, err = redisCache.NewRedisCache(ctx, config.RedisAddr)

	return
}

func populateDatabase(db *gorm.DB) error {
	var campaignCount int64
	if err := db.Model(&domain.Campaign{}).Count(&campaignCount).Error; err != nil {
		return err
	}
	if campaignCount == 0 {
		now := time.Now().UTC()
		campaign := domain.Campaign{
			Name:            "Welcome Campaign",
			Description:     "Demo campaign created on first boot",
			TargetAudience:  domain.StringList{"+905549998877", "+905549998876", "+905549998875"},
			StartDate:       now,
			EndDate:         now.Add(7 * 24 * time.Hour),
			Status:          domain.CampaignScheduled,
			MessageTemplate: "Hello {{name}}, welcome to {{company}}!",
			Variables:       domain.StringMap{"name": "there", "company": "Acme"},
		}
		if err := db.Create(&campaign).Error; err != nil {
			return err
		}

		message := domain.ScheduledMessage{
			Body:       "Daily digest for {{recipient}}",
			Recipients: domain.StringList{"+905549998874", "+905549998873"},
			SendAt:     now.Add(time.Minute),
			RepeatType: domain.RepeatDaily,
			Status:     domain.MessageScheduled,
		}
		if err := db.Create(&message).Error; err != nil {
			return err
		}
	}

	return nil
}
