package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spendwise/moneytalk/internal/api/handlers"
	"github.com/spendwise/moneytalk/internal/api/middleware"
	"github.com/spendwise/moneytalk/internal/bank"
	"github.com/spendwise/moneytalk/internal/logger"
	"github.com/spendwise/moneytalk/internal/notify"
	notifyinmem "github.com/spendwise/moneytalk/internal/notify/inmemory"
	"github.com/spendwise/moneytalk/internal/syncer"
	"github.com/spendwise/moneytalk/internal/users"
)

func main() {
	// Parse command-line flags, with env-var defaults
	var (
		port          = flag.String("port", envOr("APP_PORT", "5000"), "HTTP server port")
		allowedOrigin = flag.String("allowed-origin", envOr("ALLOWED_ORIGIN", "*"), "CORS allowed origin for the frontend")
		projectID     = flag.String("firestore-project", os.Getenv("FIRESTORE_PROJECT_ID"), "Firestore project ID (or set FIRESTORE_PROJECT_ID env)")
		credsFile     = flag.String("firestore-credentials", os.Getenv("FIRESTORE_CREDENTIALS_FILE"), "Service account credentials file (optional)")
		syncBackoff   = flag.Duration("sync-backoff", syncer.DefaultNotReadyBackoff, "Wait between retries while upstream transactions are not ready")
		syncRetries   = flag.Int("sync-retries", syncer.DefaultMaxNotReadyRetries, "Maximum not-ready retries before a sync times out")
	)
	flag.Parse()

	// Initialize logger
	log := logger.New("api")

	ctx := context.Background()

	// Initialize the user store: Firestore when a project is configured,
	// in-memory otherwise (local development only).
	var userRepo users.Repository
	if *projectID != "" {
		repo, err := users.NewFirestoreRepository(ctx, *projectID, *credsFile)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create Firestore user repository")
		}
		defer repo.Close()
		userRepo = repo
	} else {
		log.Warn().Msg("No Firestore project configured - using in-memory user store, data will not survive restarts")
		userRepo = users.NewInMemoryRepository()
	}

	// Initialize the Plaid client
	bankClient := bank.NewPlaidClient(bank.Config{
		Environment:  envOr("PLAID_ENV", "sandbox"),
		ClientID:     os.Getenv("PLAID_CLIENT_ID"),
		Secret:       os.Getenv("PLAID_SECRET"),
		ClientName:   "MoneyTalk",
		Products:     splitCSV(envOr("PLAID_PRODUCTS", "transactions")),
		CountryCodes: splitCSV(envOr("PLAID_COUNTRY_CODES", "US")),
	})

	fetcher := syncer.NewFetcher(bankClient, *syncBackoff, *syncRetries, log)

	// Initialize the notification dispatcher
	sender := notify.NewTwilioSender(
		os.Getenv("TWILIO_ACCOUNT_SID"),
		os.Getenv("TWILIO_AUTH_TOKEN"),
		os.Getenv("TWILIO_PHONE_NUMBER"),
	)

	jobStore := notifyinmem.NewStore()
	queue := notifyinmem.NewQueue(100, 2, jobStore)

	dispatchCtx, cancelDispatch := context.WithCancel(ctx)
	defer cancelDispatch()

	if err := queue.Start(dispatchCtx, notify.SendHandler(sender, log)); err != nil {
		log.Fatal().Err(err).Msg("Failed to start dispatch workers")
	}

	// Initialize handlers
	linkHandler := handlers.NewLinkHandler(bankClient, userRepo, log)
	transactionsHandler := handlers.NewTransactionsHandler(userRepo, fetcher, queue, log)
	usersHandler := handlers.NewUsersHandler(userRepo, log)

	// Create router
	mux := http.NewServeMux()

	post := func(handler http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
				return
			}
			handler(w, r)
		}
	}

	mux.HandleFunc("/api/create_link_token", post(linkHandler.CreateLinkToken))
	mux.HandleFunc("/api/set_access_token", post(linkHandler.SetAccessToken))
	mux.HandleFunc("/api/transactions", post(transactionsHandler.Sync))
	mux.HandleFunc("/api/login", post(usersHandler.Login))
	mux.HandleFunc("/api/unsubscribe", post(usersHandler.Unsubscribe))
	mux.HandleFunc("/api/updateNotifications", post(usersHandler.UpdateNotifications))

	// Health check endpoint
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteJSON(w, http.StatusOK, map[string]string{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
		})
	})

	// Apply middleware
	handler := middleware.Recovery(log)(
		middleware.Logger(log)(
			middleware.RequestID(
				middleware.CORS(*allowedOrigin)(mux),
			),
		),
	)

	// The write timeout must cover a full sync, including not-ready
	// backoff waits inside the fetch loop.
	writeTimeout := time.Duration(*syncRetries+1)*(*syncBackoff) + 30*time.Second

	server := &http.Server{
		Addr:         ":" + *port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: writeTimeout,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Info().Str("port", *port).Msg("Starting API server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	// Stop the dispatch queue and wait for in-flight messages
	if err := queue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error stopping dispatch queue")
	}

	log.Info().Msg("Server exited")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func splitCSV(s string) []string {
	var result []string
	for _, part := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
