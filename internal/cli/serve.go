package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"

	"chatmakere/internal/auth"
	"chatmakere/internal/cache"
	"chatmakere/internal/config"
	"chatmakere/internal/db"
	grpcclient "chatmakere/internal/grpc"
	"chatmakere/internal/handlers"
	"chatmakere/internal/observability"
	"chatmakere/internal/rabbitmq"
	"chatmakere/internal/ratelimit"
	"chatmakere/internal/realtime"
	"chatmakere/internal/repositories"
	"chatmakere/internal/telemetry"
	"chatmakere/internal/ws"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP and WebSocket server",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	shutdownTracer, err := telemetry.InitTracer(ctx, cfg.Service, cfg.Telemetry.Environment, cfg.Telemetry.OTLPEndpoint)
	if err != nil {
		return err
	}

	database, err := db.Connect(ctx, cfg.Database.DSN, db.Options{
		MaxOpenConns: cfg.Database.MaxOpenConns,
		MaxIdleConns: cfg.Database.MaxIdleConns,
	})
	if err != nil {
		return err
	}
	if err := db.Migrate(ctx, database); err != nil {
		return err
	}

	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		rdb, err = cache.Connect(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			logger.Warn().Err(err).Msg("redis unavailable, profile cache and send limiter disabled")
			rdb = nil
		}
	}

	validator, closeAuth, err := buildValidator(cfg)
	if err != nil {
		return err
	}

	publisher := rabbitmq.NewPublisher(cfg.AMQP.URL, cfg.AMQP.Exchange)
	observability.SetPublisher(publisher)
	audit := telemetry.NewAuditEmitter(publisher, telemetry.AuditRoutingKey, cfg.Service, cfg.Telemetry.Environment)

	users := repositories.NewUserRepo(database)
	rooms := repositories.NewRoomRepo(database)
	messages := repositories.NewMessageRepo(database)
	profiles := cache.NewProfileCache(rdb, users, cfg.Redis.ProfileTTL)

	opts := realtime.Options{Logger: logger, Validator: validator}
	if rdb != nil && cfg.Realtime.SendLimit > 0 {
		opts.Limiter = ratelimit.NewSendLimiter(rdb, cfg.Realtime.SendLimit, cfg.Realtime.SendWindow)
	}
	core := realtime.NewCore(repositories.NewGateway(users, rooms, messages), opts)

	router := newRouter(cfg, routerDeps{
		validator: validator,
		core:      core,
		audit:     audit,
		wsHandler: ws.NewHandler(core, profiles, ws.Options{
			SendBuffer:     cfg.Realtime.SendBuffer,
			AllowedOrigins: cfg.Realtime.AllowedOrigins,
			Logger:         logger,
		}),
		profiles: handlers.NewProfileHandler(users, profiles),
		users:    handlers.NewUserHandler(users, profiles, core.Presence()),
		rooms:    handlers.NewRoomHandler(rooms, messages, audit),
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTP.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info().
			Str("addr", srv.Addr).
			Str("auth_mode", cfg.Auth.Mode).
			Str("publisher", rabbitmq.PublisherMode(publisher)).
			Bool("redis", rdb != nil).
			Msg("chat service listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	// Operations run concurrently, so each one closes its dependencies in order.
	wait := gfshutdown.GracefulShutdown(context.Background(), cfg.HTTP.ShutdownTimeout, map[string]gfshutdown.Operation{
		"server": func(ctx context.Context) error {
			var errs []error
			errs = append(errs, srv.Shutdown(ctx))
			errs = append(errs, core.Shutdown(ctx))
			errs = append(errs, publisher.Close())
			errs = append(errs, closeAuth())
			if rdb != nil {
				errs = append(errs, rdb.Close())
			}
			errs = append(errs, database.Close())
			return errors.Join(errs...)
		},
		"tracer": func(ctx context.Context) error {
			return shutdownTracer(ctx)
		},
	})

	if code := <-wait; code != 0 {
		return fmt.Errorf("shutdown finished with exit code %d", code)
	}
	logger.Info().Msg("chat service stopped")
	return nil
}

// buildValidator selects the token validator for auth.mode and returns the
// function that releases it.
func buildValidator(cfg *config.Config) (auth.TokenValidator, func() error, error) {
	switch cfg.Auth.Mode {
	case "grpc":
		conn, err := grpcclient.Dial(cfg.Auth.GRPCAddr,
			grpc.WithChainUnaryInterceptor(observability.GRPCClientMetricsUnaryInterceptor()))
		if err != nil {
			return nil, nil, fmt.Errorf("dial auth grpc: %w", err)
		}
		return grpcclient.NewAuthClient(conn, cfg.Auth.GRPCMethod), conn.Close, nil
	default:
		return auth.NewJWTValidator(cfg.Auth.JWTSecret, cfg.Auth.JWTAudience), func() error { return nil }, nil
	}
}
