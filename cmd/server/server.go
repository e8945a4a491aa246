package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ardanlabs/conf/v3"
	"github.com/irsalhamdi/course-progress/api"
	"github.com/irsalhamdi/course-progress/config"
	"github.com/irsalhamdi/course-progress/core/auth"
	"github.com/irsalhamdi/course-progress/core/enrollment"
	"github.com/irsalhamdi/course-progress/core/player"
	"github.com/irsalhamdi/course-progress/core/progress"
	"github.com/irsalhamdi/course-progress/database"
	"github.com/irsalhamdi/course-progress/notify"
	"github.com/irsalhamdi/course-progress/rate"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

func main() {
	log := logrus.New()
	log.SetOutput(os.Stdout)

	if err := Run(log); err != nil {
		log.Error(err)
		os.Exit(1)
	}
}

func Run(logger *logrus.Logger) error {
	logger.Infof("starting server")
	defer logger.Info("shutdown complete")

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("loading .env: %w", err)
	}

	const prefix = "PROGRESS"
	var cfg config.Config
	help, err := conf.Parse(prefix, &cfg)
	if err != nil {
		if errors.Is(err, conf.ErrHelpWanted) {
			fmt.Println(help)
			return nil
		}
		return fmt.Errorf("parsing config: %w", err)
	}

	lw := logger.Writer()
	defer lw.Close()
	errLog := log.New(lw, "", 0)

	db, err := database.Open(cfg.DB)
	if err != nil {
		return fmt.Errorf("failed to open db connection: %w", err)
	}
	defer db.Close()

	if err := database.StatusCheck(context.Background(), db); err != nil {
		return err
	}
	if err := database.Migrate(db); err != nil {
		return fmt.Errorf("failed to migrate db: %w", err)
	}

	var channel notify.Channel = notify.NewMemory()
	if cfg.Redis.Addr != "" {
		channel, err = notify.NewRedis(notify.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Prefix:   cfg.Redis.Prefix,
		}, logger)
		if err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
	}
	defer channel.Close()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Oidc.DiscoveryTimeout)
	defer cancel()
	verifier, err := auth.NewOIDCVerifier(ctx, cfg.Oidc.Issuer, cfg.Oidc.ClientID, cfg.Oidc.RoleClaim)
	if err != nil {
		return fmt.Errorf("failed to discover oidc provider: %w", err)
	}

	limiter := rate.NewLimiter(cfg.Rate.Burst, time.Duration(cfg.Rate.ExpiryMinutes)*time.Minute, cfg.Rate.EventsPerSecond)
	defer limiter.Stop()

	registry, err := player.NewRegistry(player.Deps{
		Progress:    progress.NewStore(db),
		Enrollments: enrollment.NewStore(db),
		Channel:     channel,
		Clock:       player.SystemClock(),
		Log:         logger,
	}, player.Config{
		DebounceWindow:   cfg.Player.DebounceWindow,
		MinAdvance:       cfg.Player.MinAdvance,
		Rewind:           cfg.Player.Rewind,
		AutoRestoreRatio: cfg.Player.AutoRestoreRatio,
	}, cfg.Player.FlushInterval, cfg.Player.IdleTimeout)
	if err != nil {
		return fmt.Errorf("failed to start player registry: %w", err)
	}

	mux := api.APIMux(api.APIConfig{
		CorsOrigin: cfg.Cors.Origin,
		Log:        logger,
		DB:         db,
		Verifier:   verifier,
		Registry:   registry,
		Channel:    channel,
		Limiter:    limiter,
		StreamFor:  streamFor(cfg.Web.WriteTimeout),
	})

	api := http.Server{
		Handler:      mux,
		Addr:         cfg.Web.Address,
		ReadTimeout:  cfg.Web.ReadTimeout,
		WriteTimeout: cfg.Web.WriteTimeout,
		IdleTimeout:  cfg.Web.IdleTimeout,
		ErrorLog:     errLog,
	}

	serverErrors := make(chan error, 1)

	go func() {
		logger.Infof("starting api router at %s", api.Addr)
		serverErrors <- api.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		registry.Shutdown(context.Background())
		return fmt.Errorf("server error: %w", err)

	case sig := <-shutdown:
		logger.Infof("shutting down: signal %s", sig)

		ctx, cancel := context.WithTimeout(context.Background(), cfg.Web.ShutdownTimeout)
		defer cancel()

		if err := api.Shutdown(ctx); err != nil {
			api.Close()
			registry.Shutdown(ctx)
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}

		// Sessions still open flush their checkpoints and dwell time.
		registry.Shutdown(ctx)
	}
	return nil
}

// streamFor keeps event streams a second short of the write timeout.
func streamFor(writeTimeout time.Duration) time.Duration {
	if writeTimeout > 2*time.Second {
		return writeTimeout - time.Second
	}
	return writeTimeout / 2
}
