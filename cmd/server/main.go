// Command server runs the sealed-chat service: the REST API, the
// WebSocket broker, and the background archival worker, all sharing one
// Postgres pool, blob client, and connection registry.
package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"sealedchat/internal/adminpanel"
	"sealedchat/internal/archival"
	"sealedchat/internal/auth"
	"sealedchat/internal/blob"
	"sealedchat/internal/broker"
	"sealedchat/internal/config"
	"sealedchat/internal/cryptoutil"
	"sealedchat/internal/device"
	"sealedchat/internal/httpapi"
	"sealedchat/internal/lifecycle"
	"sealedchat/internal/names"
	"sealedchat/internal/ratelimit"
	"sealedchat/internal/registry"
	"sealedchat/internal/store"
)

func main() {
	log, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("failed to load configuration", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := store.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal("failed to connect to database", zap.Error(err))
	}
	defer st.Close()

	kernel, err := cryptoutil.NewKernel(cfg.MasterKey)
	if err != nil {
		log.Fatal("failed to init crypto kernel", zap.Error(err))
	}

	blobStore, err := blob.New(ctx, blob.Config{
		Endpoint:          cfg.MinioEndpoint,
		AccessKey:         cfg.MinioAccessKey,
		SecretKey:         cfg.MinioSecretKey,
		UseSSL:            cfg.MinioUseSSL,
		AttachmentsBucket: cfg.BucketAttach,
		ArchivesBucket:    cfg.BucketArchive,
	})
	if err != nil {
		log.Fatal("failed to init blob store", zap.Error(err))
	}

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		log.Fatal("failed to parse REDIS_URL", zap.Error(err))
	}
	redisClient := redis.NewClient(redisOpts)
	defer redisClient.Close()

	reg := registry.New()
	issuer := auth.NewIssuer(cfg.JWTSigningSecret)
	deviceStore := device.NewStore(redisClient, cfg.SessionCookieLifetime)
	nameGen := names.NewGenerator()
	lc := lifecycle.New(st, kernel)

	api := httpapi.New(st, lc, blobStore, reg, issuer, deviceStore, nameGen, log, httpapi.Config{
		EnableInternalStats: cfg.EnableInternalStats,
		InternalStatsToken:  cfg.InternalStatsToken,
	})

	br := broker.New(st, lc, reg, issuer, nameGen, log)
	adminAllowlist := ratelimit.ParseBypassList(cfg.AdminAllowCIDRs)
	admin := adminpanel.New(st, blobStore)

	mux := http.NewServeMux()
	api.Routes(mux)
	mux.HandleFunc("/ws", br.ServeWS)
	mux.HandleFunc("/admin/rooms/", adminpanel.AllowlistMiddleware(adminAllowlist, admin.ServeRoom))

	limiter := ratelimit.NewIPLimiter(cfg.RateLimitPerSecond, cfg.RateLimitBurst)
	bypass := ratelimit.ParseBypassList(cfg.RateLimitBypassIPs)

	var handler http.Handler = mux
	handler = rateLimitWrap(limiter, bypass, log, handler)

	server := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	worker := archival.New(st, lc, blobStore, reg, log, cfg.ArchivalInterval)
	go worker.Run(ctx)

	go func() {
		log.Info("listening", zap.String("addr", cfg.ListenAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", zap.Error(err))
	}
}

func rateLimitWrap(limiter *ratelimit.IPLimiter, bypass ratelimit.BypassList, log *zap.Logger, next http.Handler) http.Handler {
	return ratelimit.Middleware(limiter, bypass, log, next.ServeHTTP)
}
