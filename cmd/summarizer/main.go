// The summarizer is the scheduled counterpart of the API server: run daily
// (cron, Cloud Scheduler), it walks every registered user whose notification
// preference is due today, syncs their transactions and sends the summary SMS.
package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spendwise/moneytalk/internal/bank"
	"github.com/spendwise/moneytalk/internal/logger"
	"github.com/spendwise/moneytalk/internal/notify"
	"github.com/spendwise/moneytalk/internal/summary"
	"github.com/spendwise/moneytalk/internal/syncer"
	"github.com/spendwise/moneytalk/internal/users"
)

func main() {
	var (
		projectID   = flag.String("firestore-project", os.Getenv("FIRESTORE_PROJECT_ID"), "Firestore project ID (or set FIRESTORE_PROJECT_ID env)")
		credsFile   = flag.String("firestore-credentials", os.Getenv("FIRESTORE_CREDENTIALS_FILE"), "Service account credentials file (optional)")
		syncBackoff = flag.Duration("sync-backoff", syncer.DefaultNotReadyBackoff, "Wait between retries while upstream transactions are not ready")
		syncRetries = flag.Int("sync-retries", syncer.DefaultMaxNotReadyRetries, "Maximum not-ready retries before a sync times out")
		force       = flag.Bool("force", false, "Send to every linked user regardless of preference schedule")
		dryRun      = flag.Bool("dry-run", false, "Render summaries but do not send SMS")
	)
	flag.Parse()

	log := logger.New("summarizer")

	if *projectID == "" {
		log.Fatal().Msg("A Firestore project is required (set FIRESTORE_PROJECT_ID or -firestore-project)")
	}

	ctx := context.Background()

	userRepo, err := users.NewFirestoreRepository(ctx, *projectID, *credsFile)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create Firestore user repository")
	}
	defer userRepo.Close()

	bankClient := bank.NewPlaidClient(bank.Config{
		Environment:  envOr("PLAID_ENV", "sandbox"),
		ClientID:     os.Getenv("PLAID_CLIENT_ID"),
		Secret:       os.Getenv("PLAID_SECRET"),
		ClientName:   "MoneyTalk",
		Products:     []string{"transactions"},
		CountryCodes: []string{"US"},
	})

	fetcher := syncer.NewFetcher(bankClient, *syncBackoff, *syncRetries, log)

	sender := notify.NewTwilioSender(
		os.Getenv("TWILIO_ACCOUNT_SID"),
		os.Getenv("TWILIO_AUTH_TOKEN"),
		os.Getenv("TWILIO_PHONE_NUMBER"),
	)
	send := notify.SendHandler(sender, log)

	all, err := userRepo.List(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to list users")
	}

	today := time.Now()
	sent, skipped, failed := 0, 0, 0

	for _, user := range all {
		userLog := log.With().Str("phone_number", user.PhoneNumber).Logger()

		if user.AccessToken == "" {
			userLog.Debug().Msg("Skipping user without a linked bank account")
			skipped++
			continue
		}
		if !*force && !dueToday(user.Preference, today) {
			skipped++
			continue
		}

		if err := summarizeUser(ctx, user, fetcher, send, *dryRun, userLog); err != nil {
			userLog.Error().Err(err).Msg("Failed to summarize user")
			failed++
			continue
		}
		sent++
	}

	log.Info().
		Int("sent", sent).
		Int("skipped", skipped).
		Int("failed", failed).
		Msg("Summarizer run complete")

	if failed > 0 {
		os.Exit(1)
	}
}

// dueToday reports whether a user with the given preference should receive a
// summary on the given day: daily users always, weekly users on Mondays,
// monthly users on the first of the month.
func dueToday(pref users.Preference, day time.Time) bool {
	switch pref {
	case users.PreferenceWeekly:
		return day.Weekday() == time.Monday
	case users.PreferenceMonthly:
		return day.Day() == 1
	default:
		return true
	}
}

func summarizeUser(ctx context.Context, user *users.User, fetcher *syncer.Fetcher, send notify.Handler, dryRun bool, log zerolog.Logger) error {
	result, err := fetcher.FetchAll(ctx, user.AccessToken, "")
	if err != nil {
		return err
	}

	recent := syncer.Recent(result.Added, syncer.RecentLimit)
	digest := summary.Render(recent)

	if dryRun {
		log.Info().Str("digest", digest).Msg("Dry run, not sending")
		return nil
	}

	return send(ctx, &notify.SummaryJob{
		PhoneNumber: user.PhoneNumber,
		Body:        digest,
	})
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
