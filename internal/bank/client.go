package bank

import "context"

// Client defines the operations the service needs from the bank-data
// aggregation API. This abstraction keeps the Plaid SDK at the boundary and
// allows handlers and the sync pipeline to be tested against fakes.
type Client interface {
	// CreateLinkToken issues a short-lived link token for the given user.
	CreateLinkToken(ctx context.Context, clientUserID string) (*LinkToken, error)

	// ExchangePublicToken exchanges a public token from a completed link
	// session for a long-lived access credential.
	ExchangePublicToken(ctx context.Context, publicToken string) (*ExchangeResult, error)

	// SyncTransactions fetches one page of the transactions delta stream.
	// An empty cursor requests the start of history.
	SyncTransactions(ctx context.Context, accessToken, cursor string) (*SyncPage, error)
}
