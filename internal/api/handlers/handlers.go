package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spendwise/moneytalk/internal/api/middleware"
	"github.com/spendwise/moneytalk/internal/bank"
	"github.com/spendwise/moneytalk/internal/notify"
	"github.com/spendwise/moneytalk/internal/summary"
	"github.com/spendwise/moneytalk/internal/syncer"
	"github.com/spendwise/moneytalk/internal/users"
)

// LinkHandler handles the account-linking endpoints.
type LinkHandler struct {
	bank  bank.Client
	users users.Repository
	log   zerolog.Logger
}

// NewLinkHandler creates a new link handler.
func NewLinkHandler(bankClient bank.Client, repo users.Repository, log zerolog.Logger) *LinkHandler {
	return &LinkHandler{
		bank:  bankClient,
		users: repo,
		log:   log,
	}
}

// CreateLinkToken handles POST /api/create_link_token
func (h *LinkHandler) CreateLinkToken(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PhoneNumber string `json:"phoneNumber"`
	}
	// The body is optional for this endpoint.
	_ = json.NewDecoder(r.Body).Decode(&req)

	clientUserID := req.PhoneNumber
	if clientUserID == "" {
		clientUserID = uuid.New().String()
	}

	token, err := h.bank.CreateLinkToken(r.Context(), clientUserID)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to create link token")
		middleware.WriteError(w, http.StatusInternalServerError, "Unable to create link token")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"link_token": token.Token,
		"expiration": token.Expiration.Format(time.RFC3339),
		"request_id": token.RequestID,
	})
}

// SetAccessToken handles POST /api/set_access_token
// It exchanges the public token from a completed link session and persists
// the resulting credential on the user's record, keyed by phone number. The
// credential is never held in process-wide state.
func (h *LinkHandler) SetAccessToken(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PublicToken string `json:"public_token"`
		PhoneNumber string `json:"phoneNumber"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.PublicToken == "" || req.PhoneNumber == "" {
		middleware.WriteError(w, http.StatusBadRequest, "public_token and phoneNumber are required")
		return
	}

	ctx := r.Context()

	result, err := h.bank.ExchangePublicToken(ctx, req.PublicToken)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to exchange public token")
		middleware.WriteError(w, http.StatusInternalServerError, "Unable to exchange public token")
		return
	}

	if err := h.users.SetCredential(ctx, req.PhoneNumber, result.AccessToken, result.ItemID); err != nil {
		if errors.Is(err, users.ErrNotFound) {
			middleware.WriteError(w, http.StatusNotFound, "Phone number not found")
			return
		}
		h.log.Error().Err(err).Str("phone_number", req.PhoneNumber).Msg("Failed to store credential")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to store credential")
		return
	}

	h.log.Info().Str("phone_number", req.PhoneNumber).Str("item_id", result.ItemID).Msg("Bank account linked")

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"item_id": result.ItemID,
		"error":   nil,
	})
}

// TransactionsHandler runs the sync → select → render → dispatch pipeline.
type TransactionsHandler struct {
	users     users.Repository
	fetcher   *syncer.Fetcher
	publisher notify.Publisher
	log       zerolog.Logger
}

// NewTransactionsHandler creates a new transactions handler.
func NewTransactionsHandler(repo users.Repository, fetcher *syncer.Fetcher, publisher notify.Publisher, log zerolog.Logger) *TransactionsHandler {
	return &TransactionsHandler{
		users:     repo,
		fetcher:   fetcher,
		publisher: publisher,
		log:       log,
	}
}

// Sync handles POST /api/transactions
func (h *TransactionsHandler) Sync(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PhoneNumber string `json:"phoneNumber"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.PhoneNumber == "" {
		middleware.WriteError(w, http.StatusBadRequest, "Phone number is required")
		return
	}

	ctx := r.Context()

	user, err := h.users.Get(ctx, req.PhoneNumber)
	if err != nil {
		if errors.Is(err, users.ErrNotFound) {
			middleware.WriteError(w, http.StatusNotFound, "Phone number not found")
			return
		}
		h.log.Error().Err(err).Str("phone_number", req.PhoneNumber).Msg("Failed to load user")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to load user")
		return
	}

	if user.AccessToken == "" {
		middleware.WriteError(w, http.StatusBadRequest, "No linked bank account for this phone number")
		return
	}

	// Each request restarts from the beginning of the delta stream; the
	// final cursor is not persisted per user yet.
	result, err := h.fetcher.FetchAll(ctx, user.AccessToken, "")
	if err != nil {
		if errors.Is(err, syncer.ErrSyncTimeout) {
			h.log.Error().Err(err).Str("phone_number", req.PhoneNumber).Msg("Sync timed out")
			middleware.WriteError(w, http.StatusGatewayTimeout, "Transaction sync timed out")
			return
		}
		h.log.Error().Err(err).Str("phone_number", req.PhoneNumber).Msg("Transaction sync failed")
		middleware.WriteError(w, http.StatusInternalServerError, "Unable to fetch transactions")
		return
	}

	recent := syncer.Recent(result.Added, syncer.RecentLimit)
	digest := summary.Render(recent)

	// Dispatch is fire-and-forget: a queue failure is logged, the caller
	// still gets their transactions.
	job := &notify.SummaryJob{
		PhoneNumber: user.PhoneNumber,
		Body:        digest,
	}
	if err := h.publisher.PublishSummary(ctx, job); err != nil {
		h.log.Error().Err(err).Str("phone_number", user.PhoneNumber).Msg("Failed to enqueue summary dispatch")
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"latest_transactions": recent,
	})
}

// UsersHandler handles registration and preference endpoints.
type UsersHandler struct {
	users users.Repository
	log   zerolog.Logger
}

// NewUsersHandler creates a new users handler.
func NewUsersHandler(repo users.Repository, log zerolog.Logger) *UsersHandler {
	return &UsersHandler{
		users: repo,
		log:   log,
	}
}

// Login handles POST /api/login
// First login creates the record with the default preference; repeating it
// is a no-op that still reports success.
func (h *UsersHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PhoneNumber      string `json:"phoneNumber"`
		VerificationCode string `json:"verificationCode"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.PhoneNumber == "" {
		middleware.WriteError(w, http.StatusBadRequest, "Phone number is required")
		return
	}

	ctx := r.Context()

	_, err := h.users.Get(ctx, req.PhoneNumber)
	if errors.Is(err, users.ErrNotFound) {
		user := &users.User{
			PhoneNumber: req.PhoneNumber,
			Preference:  users.DefaultPreference,
		}
		if err := h.users.Create(ctx, user); err != nil {
			h.log.Error().Err(err).Str("phone_number", req.PhoneNumber).Msg("Failed to create user")
			middleware.WriteError(w, http.StatusInternalServerError, "Failed to log in")
			return
		}
		h.log.Info().Str("phone_number", req.PhoneNumber).Msg("User registered")
	} else if err != nil {
		h.log.Error().Err(err).Str("phone_number", req.PhoneNumber).Msg("Failed to load user")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to log in")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]string{
		"message": "User logged in successfully.",
	})
}

// Unsubscribe handles POST /api/unsubscribe
// The record is deleted entirely; there is no soft unsubscribe flag.
func (h *UsersHandler) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PhoneNumber string `json:"phoneNumber"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.PhoneNumber == "" {
		middleware.WriteError(w, http.StatusBadRequest, "Phone number is required")
		return
	}

	if err := h.users.Delete(r.Context(), req.PhoneNumber); err != nil {
		if errors.Is(err, users.ErrNotFound) {
			middleware.WriteError(w, http.StatusNotFound, "Phone number not found")
			return
		}
		h.log.Error().Err(err).Str("phone_number", req.PhoneNumber).Msg("Failed to unsubscribe")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to unsubscribe")
		return
	}

	h.log.Info().Str("phone_number", req.PhoneNumber).Msg("User unsubscribed")

	middleware.WriteJSON(w, http.StatusOK, map[string]string{
		"message": "User unsubscribed successfully.",
	})
}

// UpdateNotifications handles POST /api/updateNotifications
func (h *UsersHandler) UpdateNotifications(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PhoneNumber            string `json:"phoneNumber"`
		NotificationPreference string `json:"notificationPreference"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.PhoneNumber == "" {
		middleware.WriteError(w, http.StatusBadRequest, "Phone number is required")
		return
	}

	pref, err := users.ParsePreference(req.NotificationPreference)
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.users.SetPreference(r.Context(), req.PhoneNumber, pref); err != nil {
		if errors.Is(err, users.ErrNotFound) {
			middleware.WriteError(w, http.StatusNotFound, "Phone number not found")
			return
		}
		h.log.Error().Err(err).Str("phone_number", req.PhoneNumber).Msg("Failed to update preference")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to update notification preference")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]string{
		"message": "Notification preference updated successfully.",
	})
}
