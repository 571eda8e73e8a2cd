package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"repair_shop_backend/internal/config"
	"repair_shop_backend/internal/database"
	"repair_shop_backend/internal/handlers"
	"repair_shop_backend/internal/metrics"
	"repair_shop_backend/internal/middleware"
	"repair_shop_backend/internal/notifications"
	"repair_shop_backend/internal/router"
	"repair_shop_backend/internal/ticketcode"
	"repair_shop_backend/pkg/utils"

	"github.com/bsm/redislock"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/pflag"
)

func main() {
	if err := run(); err != nil {
		utils.LogError(err, "Server exited with error")
		os.Exit(1)
	}
}

func run() error {
	var (
		port       string
		schemaPath string
		envFile    string
		skipSchema bool
	)
	flagSet := pflag.NewFlagSet("repair-shop-server", pflag.ContinueOnError)
	flagSet.StringVar(&port, "port", "", "HTTP port (overrides PORT)")
	flagSet.StringVar(&schemaPath, "schema", "", "schema file to apply at start (default: built-in schema)")
	flagSet.StringVar(&envFile, "env-file", "", "dotenv file to load (default: .env when present)")
	flagSet.BoolVar(&skipSchema, "skip-schema", false, "do not apply the schema at start")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	cfg, err := config.Load(envFile)
	if err != nil {
		return err
	}
	if port != "" {
		cfg.Port = port
	}
	if schemaPath != "" {
		cfg.SchemaPath = schemaPath
	}

	utils.InitLogger(cfg.LogLevel)
	if cfg.JWTSecret == "" {
		utils.LogWarn(nil, "JWT_SECRET not set; using the development secret")
	}
	utils.ConfigureJWT(cfg.JWTSecret, cfg.JWTTTL)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.InitDB(ctx, cfg.DB)
	if err != nil {
		return err
	}
	defer db.Close()
	if !skipSchema {
		if err := database.ApplySchema(ctx, db, cfg.SchemaPath); err != nil {
			return err
		}
	}

	m := metrics.New()

	deps := router.Deps{
		DB:             db,
		Metrics:        m,
		TicketPrefix:   cfg.TicketPrefix,
		PurchasePrefix: cfg.PurchasePrefix,
		TicketLockTTL:  cfg.TicketLockTTL,
		LockTimeout:    cfg.LockTimeout,

		RefreshTokenTTL: cfg.JWTRefreshTTL,
	}

	if cfg.RedisEnabled() {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			PoolSize: 50,
		})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			if cfg.SequenceBackend == config.SequenceRedis {
				return fmt.Errorf("redis required by SEQUENCE_BACKEND is unreachable: %w", err)
			}
			utils.LogWarn(err, "Redis unreachable; ticket request lock disabled", map[string]interface{}{"addr": cfg.RedisAddr})
		} else {
			deps.Locker = redislock.New(rdb)
			utils.LogInfo("Redis connected", map[string]interface{}{"addr": cfg.RedisAddr})
		}
		if cfg.SequenceBackend == config.SequenceRedis {
			deps.Counter = ticketcode.NewRedisCounter(rdb, "repair-shop", 48*time.Hour)
		}
	}

	var sender notifications.Notifier = notifications.LogNotifier{}
	if cfg.SMTPEnabled() {
		sender = notifications.NewEmailNotifier(cfg.SMTP)
		utils.LogInfo("SMTP notifications enabled", map[string]interface{}{"host": cfg.SMTP.Host})
	}
	async := notifications.NewAsyncNotifier(sender, cfg.NotifyQueueSize, m)
	defer async.Close()
	deps.Notifier = async

	if err := handlers.RegisterValidators(); err != nil {
		return err
	}

	gin.SetMode(utils.Getenv("GIN_MODE", gin.ReleaseMode))
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(middleware.RequestID())
	engine.Use(utils.GinLogger())
	engine.Use(m.GinMiddleware())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.CORSOrigins
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization", middleware.RequestIDHeader}
	corsConfig.ExposeHeaders = []string{middleware.RequestIDHeader, "Retry-After", "Content-Disposition"}
	corsConfig.AllowCredentials = true
	engine.Use(cors.New(corsConfig))

	if err := router.Setup(engine, deps); err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		utils.LogInfo("Server starting", map[string]interface{}{"port": cfg.Port, "sequence_backend": cfg.SequenceBackend})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	utils.LogInfo("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
