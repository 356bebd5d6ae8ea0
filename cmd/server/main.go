package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/edulink/classchat/internal/api"
	"github.com/edulink/classchat/internal/config"
	"github.com/edulink/classchat/internal/database"
	"github.com/edulink/classchat/internal/notify"
	"github.com/edulink/classchat/internal/server"
	"github.com/edulink/classchat/internal/stats"
)

type stringSliceFlag []string

func (s *stringSliceFlag) String() string {
	return strings.Join(*s, ",")
}

func (s *stringSliceFlag) Set(value string) error {
	*s = append(*s, strings.Split(value, ",")...)
	return nil
}

var (
	addr           string
	signingKey     string
	tenantsFile    string
	pushWebhook    string
	allowedOrigins stringSliceFlag
)

func main() {
	flag.StringVar(&addr, "addr", "localhost:8000", "server address")
	flag.StringVar(&signingKey, "signing-key", "", "base64 encoded signing key")
	flag.StringVar(&tenantsFile, "tenants-file", "tenants.json", "path to the tenant descriptor file (tenant id -> DSN)")
	flag.StringVar(&pushWebhook, "push-webhook", "", "URL of the push notification webhook (optional)")
	flag.Var(&allowedOrigins, "allowed-origins", "comma-separated list of allowed origins for CORS")
	flag.Parse()

	logger := log.New(os.Stderr, "[classchat] ", log.LstdFlags)

	cfg, err := config.NewConfig(addr, signingKey, tenantsFile, pushWebhook, allowedOrigins)
	if err != nil {
		logger.Fatal("config: ", err)
	}

	tenants := database.NewRegistry(logger, cfg.Tenants, database.OpenPostgres)

	mux := http.NewServeMux()

	statsUpdater := stats.NewStatsUpdater(mux)
	tenants.SetConnectHook(func() { statsUpdater.Incr(stats.TenantConnects) })

	limits := server.DefaultLimits()
	limits[server.OpMessage] = server.LimitConfig{
		Ceiling: cfg.MessageRateCeiling,
		Window:  cfg.MessageRateWindow,
	}
	limiter := server.NewRateLimiter(limits)

	var notifier notify.Notifier = notify.NopNotifier{}
	if cfg.PushWebhookURL != "" {
		notifier = notify.NewWebhookNotifier(logger, cfg.PushWebhookURL)
	}

	chatServer, err := server.NewChatServer(logger, tenants, limiter, notifier, statsUpdater)
	if err != nil {
		logger.Fatal("new chat server: ", err)
	}

	verifier := api.NewJwtVerifier(cfg.SigningKey)
	srv := api.NewClassChatApp(mux, logger, chatServer, verifier, cfg)

	statsUpdater.Run()
	defer statsUpdater.Stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigs:
		logger.Printf("received signal: %s\n", sig)
	case err := <-errCh:
		logger.Println("server: ", err)
	}

	shutDownCtx, cancel := context.WithTimeout(
		context.Background(),
		10*time.Second,
	)
	defer cancel()

	if err := srv.Shutdown(shutDownCtx); err != nil {
		logger.Fatalln("HTTP server shutdown: ", err)
	}

	chatServer.Shutdown()

	logger.Println("shutdown complete")
}
