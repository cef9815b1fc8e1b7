package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/spendwise/moneytalk/internal/bank"
	"github.com/spendwise/moneytalk/internal/logger"
	"github.com/spendwise/moneytalk/internal/notify"
	"github.com/spendwise/moneytalk/internal/syncer"
	"github.com/spendwise/moneytalk/internal/users"
)

const testPhone = "+15551234567"

// fakeBank is a scripted bank.Client.
type fakeBank struct {
	linkToken   *bank.LinkToken
	exchange    *bank.ExchangeResult
	pages       []*bank.SyncPage
	syncErr     error
	syncCalls   int
	lastToken   string
	lastCursors []string
}

func (f *fakeBank) CreateLinkToken(ctx context.Context, clientUserID string) (*bank.LinkToken, error) {
	if f.linkToken == nil {
		return nil, errors.New("link token unavailable")
	}
	return f.linkToken, nil
}

func (f *fakeBank) ExchangePublicToken(ctx context.Context, publicToken string) (*bank.ExchangeResult, error) {
	if f.exchange == nil {
		return nil, errors.New("exchange failed")
	}
	return f.exchange, nil
}

func (f *fakeBank) SyncTransactions(ctx context.Context, accessToken, cursor string) (*bank.SyncPage, error) {
	f.lastToken = accessToken
	f.lastCursors = append(f.lastCursors, cursor)
	call := f.syncCalls
	f.syncCalls++

	if f.syncErr != nil {
		return nil, f.syncErr
	}
	if call >= len(f.pages) {
		return &bank.SyncPage{NextCursor: "end", HasMore: false}, nil
	}
	return f.pages[call], nil
}

// fakePublisher records published summary jobs.
type fakePublisher struct {
	jobs []*notify.SummaryJob
	err  error
}

func (f *fakePublisher) PublishSummary(ctx context.Context, job *notify.SummaryJob) error {
	if f.err != nil {
		return f.err
	}
	f.jobs = append(f.jobs, job)
	return nil
}

func (f *fakePublisher) Close() error { return nil }

func testLog() zerolog.Logger {
	return logger.NewWithWriter(io.Discard)
}

func postJSON(t *testing.T, handler http.HandlerFunc, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler(rec, req)
	return rec
}

func registeredRepo(t *testing.T, accessToken string) *users.InMemoryRepository {
	t.Helper()
	repo := users.NewInMemoryRepository()
	user := &users.User{PhoneNumber: testPhone, Preference: users.DefaultPreference, AccessToken: accessToken}
	if err := repo.Create(context.Background(), user); err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return repo
}

func TestLogin_CreatesUser(t *testing.T) {
	repo := users.NewInMemoryRepository()
	h := NewUsersHandler(repo, testLog())

	rec := postJSON(t, h.Login, `{"phoneNumber":"`+testPhone+`"}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "User logged in successfully.") {
		t.Errorf("body = %s", rec.Body.String())
	}

	user, err := repo.Get(context.Background(), testPhone)
	if err != nil {
		t.Fatalf("user not created: %v", err)
	}
	if user.Preference != users.PreferenceDaily {
		t.Errorf("Preference = %q, want daily default", user.Preference)
	}
}

func TestLogin_IsIdempotent(t *testing.T) {
	repo := registeredRepo(t, "")
	if err := repo.SetPreference(context.Background(), testPhone, users.PreferenceWeekly); err != nil {
		t.Fatal(err)
	}
	h := NewUsersHandler(repo, testLog())

	rec := postJSON(t, h.Login, `{"phoneNumber":"`+testPhone+`"}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	user, _ := repo.Get(context.Background(), testPhone)
	if user.Preference != users.PreferenceWeekly {
		t.Errorf("repeat login changed preference to %q", user.Preference)
	}
}

func TestLogin_MissingPhone(t *testing.T) {
	h := NewUsersHandler(users.NewInMemoryRepository(), testLog())

	rec := postJSON(t, h.Login, `{}`)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestUnsubscribe_DeletesUser(t *testing.T) {
	repo := registeredRepo(t, "")
	h := NewUsersHandler(repo, testLog())

	rec := postJSON(t, h.Unsubscribe, `{"phoneNumber":"`+testPhone+`"}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "User unsubscribed successfully.") {
		t.Errorf("body = %s", rec.Body.String())
	}
	if _, err := repo.Get(context.Background(), testPhone); !errors.Is(err, users.ErrNotFound) {
		t.Error("record still present after unsubscribe")
	}
}

func TestUnsubscribe_UnknownPhoneIs404(t *testing.T) {
	repo := registeredRepo(t, "")
	h := NewUsersHandler(repo, testLog())

	rec := postJSON(t, h.Unsubscribe, `{"phoneNumber":"+10000000000"}`)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	// Store unchanged.
	if _, err := repo.Get(context.Background(), testPhone); err != nil {
		t.Error("existing record should be untouched")
	}
}

func TestUpdateNotifications(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantStatus int
	}{
		{
			name:       "valid update",
			body:       `{"phoneNumber":"` + testPhone + `","notificationPreference":"weekly"}`,
			wantStatus: http.StatusOK,
		},
		{
			name:       "unknown phone",
			body:       `{"phoneNumber":"+10000000000","notificationPreference":"weekly"}`,
			wantStatus: http.StatusNotFound,
		},
		{
			name:       "invalid preference",
			body:       `{"phoneNumber":"` + testPhone + `","notificationPreference":"hourly"}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "missing phone",
			body:       `{"notificationPreference":"weekly"}`,
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := registeredRepo(t, "")
			h := NewUsersHandler(repo, testLog())

			rec := postJSON(t, h.UpdateNotifications, tt.body)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d (body %s)", rec.Code, tt.wantStatus, rec.Body.String())
			}
		})
	}
}

func TestUpdateNotifications_NoWriteOnUnknownPhone(t *testing.T) {
	repo := registeredRepo(t, "")
	h := NewUsersHandler(repo, testLog())

	postJSON(t, h.UpdateNotifications, `{"phoneNumber":"+10000000000","notificationPreference":"weekly"}`)

	all, _ := repo.List(context.Background())
	if len(all) != 1 || all[0].Preference != users.PreferenceDaily {
		t.Errorf("store changed by failed update: %+v", all)
	}
}

func TestCreateLinkToken(t *testing.T) {
	expiry := time.Now().Add(30 * time.Minute)
	client := &fakeBank{linkToken: &bank.LinkToken{Token: "link-sandbox-123", Expiration: expiry, RequestID: "req-1"}}
	h := NewLinkHandler(client, users.NewInMemoryRepository(), testLog())

	rec := postJSON(t, h.CreateLinkToken, `{"phoneNumber":"`+testPhone+`"}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["link_token"] != "link-sandbox-123" || resp["request_id"] != "req-1" {
		t.Errorf("response = %v", resp)
	}
}

func TestCreateLinkToken_UpstreamError(t *testing.T) {
	h := NewLinkHandler(&fakeBank{}, users.NewInMemoryRepository(), testLog())

	rec := postJSON(t, h.CreateLinkToken, `{}`)

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}

func TestSetAccessToken_PersistsCredential(t *testing.T) {
	repo := registeredRepo(t, "")
	client := &fakeBank{exchange: &bank.ExchangeResult{AccessToken: "access-123", ItemID: "item-456"}}
	h := NewLinkHandler(client, repo, testLog())

	rec := postJSON(t, h.SetAccessToken, `{"public_token":"public-abc","phoneNumber":"`+testPhone+`"}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body %s)", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "item-456") {
		t.Errorf("body = %s", rec.Body.String())
	}

	user, _ := repo.Get(context.Background(), testPhone)
	if user.AccessToken != "access-123" {
		t.Errorf("credential not persisted: %+v", user)
	}
}

func TestSetAccessToken_Validation(t *testing.T) {
	h := NewLinkHandler(&fakeBank{}, users.NewInMemoryRepository(), testLog())

	rec := postJSON(t, h.SetAccessToken, `{"phoneNumber":"`+testPhone+`"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing public_token: status = %d, want 400", rec.Code)
	}

	rec = postJSON(t, h.SetAccessToken, `{"public_token":"public-abc"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing phoneNumber: status = %d, want 400", rec.Code)
	}
}

func TestSetAccessToken_UnknownUser(t *testing.T) {
	client := &fakeBank{exchange: &bank.ExchangeResult{AccessToken: "access-123", ItemID: "item-456"}}
	h := NewLinkHandler(client, users.NewInMemoryRepository(), testLog())

	rec := postJSON(t, h.SetAccessToken, `{"public_token":"public-abc","phoneNumber":"`+testPhone+`"}`)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func newTransactionsHandler(client *fakeBank, repo users.Repository, publisher notify.Publisher) *TransactionsHandler {
	fetcher := syncer.NewFetcher(client, time.Millisecond, 3, testLog())
	return NewTransactionsHandler(repo, fetcher, publisher, testLog())
}

func TestSync_EndToEnd(t *testing.T) {
	client := &fakeBank{
		pages: []*bank.SyncPage{
			{
				Added:      []bank.Transaction{{ID: "1", Amount: 12.50, Date: "2024-01-01", Name: "Coffee Co"}},
				NextCursor: "c1",
				HasMore:    true,
			},
			{
				Added:      []bank.Transaction{{ID: "2", Amount: 40.00, Date: "2024-01-02", MerchantName: "Grocery"}},
				NextCursor: "c2",
				HasMore:    false,
			},
		},
	}
	repo := registeredRepo(t, "access-123")
	publisher := &fakePublisher{}
	h := newTransactionsHandler(client, repo, publisher)

	rec := postJSON(t, h.Sync, `{"phoneNumber":"`+testPhone+`"}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body %s)", rec.Code, rec.Body.String())
	}
	if client.lastToken != "access-123" {
		t.Errorf("sync used token %q, want the user's stored credential", client.lastToken)
	}

	var resp struct {
		LatestTransactions []bank.Transaction `json:"latest_transactions"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.LatestTransactions) != 2 {
		t.Fatalf("latest_transactions has %d records, want 2", len(resp.LatestTransactions))
	}
	if resp.LatestTransactions[0].ID != "1" || resp.LatestTransactions[1].ID != "2" {
		t.Errorf("transactions out of order: %+v", resp.LatestTransactions)
	}

	if len(publisher.jobs) != 1 {
		t.Fatalf("published %d jobs, want 1", len(publisher.jobs))
	}
	job := publisher.jobs[0]
	if job.PhoneNumber != testPhone {
		t.Errorf("job destination = %q", job.PhoneNumber)
	}
	if !strings.Contains(job.Body, "$52.50") {
		t.Errorf("summary body missing total $52.50:\n%s", job.Body)
	}
}

func TestSync_NotReadyThenEmpty(t *testing.T) {
	client := &fakeBank{
		pages: []*bank.SyncPage{
			{NextCursor: "", HasMore: true},
			{NextCursor: "c1", HasMore: false},
		},
	}
	repo := registeredRepo(t, "access-123")
	publisher := &fakePublisher{}
	h := newTransactionsHandler(client, repo, publisher)

	rec := postJSON(t, h.Sync, `{"phoneNumber":"`+testPhone+`"}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body %s)", rec.Code, rec.Body.String())
	}

	var resp struct {
		LatestTransactions []bank.Transaction `json:"latest_transactions"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.LatestTransactions) != 0 {
		t.Errorf("latest_transactions = %+v, want empty", resp.LatestTransactions)
	}

	if len(publisher.jobs) != 1 {
		t.Fatalf("published %d jobs, want 1", len(publisher.jobs))
	}
	if !strings.Contains(publisher.jobs[0].Body, "$0.00") {
		t.Errorf("summary body missing $0.00 total:\n%s", publisher.jobs[0].Body)
	}
}

func TestSync_Validation(t *testing.T) {
	h := newTransactionsHandler(&fakeBank{}, users.NewInMemoryRepository(), &fakePublisher{})

	rec := postJSON(t, h.Sync, `{}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing phone: status = %d, want 400", rec.Code)
	}

	rec = postJSON(t, h.Sync, `{"phoneNumber":"+10000000000"}`)
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown phone: status = %d, want 404", rec.Code)
	}
}

func TestSync_UnlinkedAccount(t *testing.T) {
	repo := registeredRepo(t, "")
	h := newTransactionsHandler(&fakeBank{}, repo, &fakePublisher{})

	rec := postJSON(t, h.Sync, `{"phoneNumber":"`+testPhone+`"}`)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestSync_UpstreamErrorNoDispatch(t *testing.T) {
	client := &fakeBank{syncErr: errors.New("ITEM_LOGIN_REQUIRED")}
	repo := registeredRepo(t, "access-123")
	publisher := &fakePublisher{}
	h := newTransactionsHandler(client, repo, publisher)

	rec := postJSON(t, h.Sync, `{"phoneNumber":"`+testPhone+`"}`)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	if len(publisher.jobs) != 0 {
		t.Error("no summary should be dispatched when the sync fails")
	}
}

func TestSync_DispatchFailureDoesNotFailRequest(t *testing.T) {
	client := &fakeBank{
		pages: []*bank.SyncPage{{
			Added:      []bank.Transaction{{ID: "1", Amount: 5, Date: "2024-01-01", Name: "Coffee Co"}},
			NextCursor: "c1",
			HasMore:    false,
		}},
	}
	repo := registeredRepo(t, "access-123")
	publisher := &fakePublisher{err: errors.New("queue is closed")}
	h := newTransactionsHandler(client, repo, publisher)

	rec := postJSON(t, h.Sync, `{"phoneNumber":"`+testPhone+`"}`)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200 even when dispatch fails", rec.Code)
	}
}
