package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"connectrpc.com/connect"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/mmynk/payouts/internal/auth"
	"github.com/mmynk/payouts/internal/config"
	"github.com/mmynk/payouts/internal/engine"
	"github.com/mmynk/payouts/internal/ledger"
	"github.com/mmynk/payouts/internal/metrics"
	"github.com/mmynk/payouts/internal/middleware"
	"github.com/mmynk/payouts/internal/service"
	"github.com/mmynk/payouts/internal/storage/sqlite"
	"github.com/mmynk/payouts/pkg/logging"
)

func main() {
	issueToken := flag.String("issue-token", "", "print a token for this subject and exit")
	role := flag.String("role", string(auth.RoleAdmin), "role of the issued token (admin or beneficiary)")
	mint := flag.String("mint", "", "credit ledger balances before serving, as asset/holder=amount[,...]")
	flag.Parse()

	logger := logging.Setup()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	jwtManager := auth.NewJWTManager(cfg.JWTSecret, cfg.JWTTTL)
	if *issueToken != "" {
		token, err := jwtManager.Generate(auth.Principal{Subject: *issueToken, Role: auth.Role(*role)})
		if err != nil {
			slog.Error("Failed to issue token", "error", err)
			os.Exit(1)
		}
		fmt.Println(token)
		return
	}

	// Initialize SQLite storage
	store, err := sqlite.New(cfg.DBPath)
	if err != nil {
		slog.Error("Failed to initialize storage", "error", err)
		os.Exit(1)
	}
	defer store.Close()
	slog.Info("Storage initialized", "database", cfg.DBPath)

	book, err := ledger.Open(cfg.LedgerPath)
	if err != nil {
		slog.Error("Failed to open ledger", "error", err)
		os.Exit(1)
	}
	defer book.Close()
	slog.Info("Ledger opened", "path", cfg.LedgerPath, "funding_account", cfg.FundingAccount)

	if err := applyMints(context.Background(), book, *mint); err != nil {
		slog.Error("Failed to credit balances", "error", err)
		os.Exit(1)
	}

	collector := metrics.NewCollector("payouts")
	fees := engine.NewStaticFeePolicy(cfg.PlatformFeeBPS, cfg.MaintenanceFeeBPS, cfg.FeeReceiver)
	eng := engine.New(store, book, book.Payer(cfg.FundingAccount), fees, engine.Options{
		ClaimsAfterCompletion: cfg.ClaimsAfterCompletion,
		Logger:                logger,
		Metrics:               collector,
	})
	slog.Info("Engine ready",
		"platform_fee_bps", cfg.PlatformFeeBPS,
		"maintenance_fee_bps", cfg.MaintenanceFeeBPS,
		"fee_receiver", cfg.FeeReceiver,
		"claims_after_completion", cfg.ClaimsAfterCompletion,
	)

	mux := http.NewServeMux()

	// Register Connect service
	interceptors := connect.WithInterceptors(
		middleware.LoggingInterceptor(collector),
		middleware.RequireAuth(jwtManager),
	)
	path, handler := service.NewDistributionServiceHandler(service.NewDistributionService(eng, auth.Policy{}), interceptors)
	mux.Handle(path, handler)

	mux.Handle("/metrics", collector.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})

	// Add logging and CORS middleware
	loggedHandler := loggingMiddleware(corsMiddleware(mux))

	// Wrap with h2c for HTTP/2 without TLS (required for Connect)
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           h2c.NewHandler(loggedHandler, &http2.Server{}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Shutdown failed", "error", err)
		}
	}()

	slog.Info("Connect server starting", "address", cfg.HTTPAddr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Server failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Server stopped")
}

// applyMints credits balances given as asset/holder=amount pairs.
func applyMints(ctx context.Context, book *ledger.Book, mints string) error {
	for _, item := range strings.Split(mints, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		target, rawAmount, ok := strings.Cut(item, "=")
		asset, holder, ok2 := strings.Cut(target, "/")
		if !ok || !ok2 || asset == "" || holder == "" {
			return fmt.Errorf("malformed mint %q, want asset/holder=amount", item)
		}
		amount, err := strconv.ParseUint(rawAmount, 10, 63)
		if err != nil {
			return fmt.Errorf("malformed amount in %q: %w", item, err)
		}
		if err := book.Mint(ctx, asset, holder, amount); err != nil {
			return fmt.Errorf("mint %q: %w", item, err)
		}
		slog.Info("Credited balance", "asset", asset, "holder", holder, "amount", amount)
	}
	return nil
}

// loggingMiddleware logs all incoming requests
func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		slog.Debug("Request received",
			"method", r.Method,
			"path", r.URL.Path,
			"remote_addr", r.RemoteAddr,
			"user_agent", r.UserAgent(),
		)

		next.ServeHTTP(w, r)

		slog.Debug("Request completed",
			"method", r.Method,
			"path", r.URL.Path,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

// corsMiddleware adds CORS headers for browser access
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type, Connect-Protocol-Version, Connect-Timeout-Ms")
		w.Header().Set("Access-Control-Expose-Headers", "Connect-Protocol-Version, Connect-Timeout-Ms")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
