package bank

import (
	"context"
	"fmt"

	"github.com/plaid/plaid-go/v27/plaid"
)

// Config holds the Plaid API configuration.
type Config struct {
	// Environment selects the Plaid environment: "sandbox" or "production".
	Environment string

	ClientID string
	Secret   string

	// ClientName is shown to the user inside the Link flow.
	ClientName string

	// Products to request, e.g. ["transactions"].
	Products []string

	// CountryCodes for institution selection, e.g. ["US"].
	CountryCodes []string

	// Language for the Link flow. Defaults to "en".
	Language string
}

// PlaidClient is the concrete implementation of Client using the official
// Plaid SDK.
type PlaidClient struct {
	api *plaid.APIClient
	cfg Config
}

// NewPlaidClient creates a new PlaidClient with the provided configuration.
func NewPlaidClient(cfg Config) *PlaidClient {
	configuration := plaid.NewConfiguration()
	configuration.AddDefaultHeader("PLAID-CLIENT-ID", cfg.ClientID)
	configuration.AddDefaultHeader("PLAID-SECRET", cfg.Secret)
	configuration.UseEnvironment(environment(cfg.Environment))

	if cfg.Language == "" {
		cfg.Language = "en"
	}

	return &PlaidClient{
		api: plaid.NewAPIClient(configuration),
		cfg: cfg,
	}
}

func environment(name string) plaid.Environment {
	if name == "production" {
		return plaid.Production
	}
	return plaid.Sandbox
}

// CreateLinkToken issues a link token for the given user.
func (c *PlaidClient) CreateLinkToken(ctx context.Context, clientUserID string) (*LinkToken, error) {
	user := plaid.LinkTokenCreateRequestUser{ClientUserId: clientUserID}

	countryCodes := make([]plaid.CountryCode, 0, len(c.cfg.CountryCodes))
	for _, code := range c.cfg.CountryCodes {
		countryCodes = append(countryCodes, plaid.CountryCode(code))
	}

	products := make([]plaid.Products, 0, len(c.cfg.Products))
	for _, product := range c.cfg.Products {
		products = append(products, plaid.Products(product))
	}

	request := plaid.NewLinkTokenCreateRequest(c.cfg.ClientName, c.cfg.Language, countryCodes, user)
	request.SetProducts(products)

	resp, _, err := c.api.PlaidApi.LinkTokenCreate(ctx).LinkTokenCreateRequest(*request).Execute()
	if err != nil {
		return nil, fmt.Errorf("CreateLinkToken: %w", err)
	}

	return &LinkToken{
		Token:      resp.GetLinkToken(),
		Expiration: resp.GetExpiration(),
		RequestID:  resp.GetRequestId(),
	}, nil
}

// ExchangePublicToken exchanges a public token for an access credential.
func (c *PlaidClient) ExchangePublicToken(ctx context.Context, publicToken string) (*ExchangeResult, error) {
	request := plaid.NewItemPublicTokenExchangeRequest(publicToken)

	resp, _, err := c.api.PlaidApi.ItemPublicTokenExchange(ctx).ItemPublicTokenExchangeRequest(*request).Execute()
	if err != nil {
		return nil, fmt.Errorf("ExchangePublicToken: %w", err)
	}

	return &ExchangeResult{
		AccessToken: resp.GetAccessToken(),
		ItemID:      resp.GetItemId(),
	}, nil
}

// SyncTransactions fetches one page of transaction deltas.
func (c *PlaidClient) SyncTransactions(ctx context.Context, accessToken, cursor string) (*SyncPage, error) {
	request := plaid.NewTransactionsSyncRequest(accessToken)
	if cursor != "" {
		request.SetCursor(cursor)
	}

	resp, _, err := c.api.PlaidApi.TransactionsSync(ctx).TransactionsSyncRequest(*request).Execute()
	if err != nil {
		return nil, fmt.Errorf("SyncTransactions: %w", err)
	}

	page := &SyncPage{
		Added:      convertTransactions(resp.GetAdded()),
		Modified:   convertTransactions(resp.GetModified()),
		NextCursor: resp.GetNextCursor(),
		HasMore:    resp.GetHasMore(),
	}
	for _, removed := range resp.GetRemoved() {
		page.Removed = append(page.Removed, removed.GetTransactionId())
	}

	return page, nil
}

func convertTransactions(txns []plaid.Transaction) []Transaction {
	result := make([]Transaction, 0, len(txns))
	for _, txn := range txns {
		result = append(result, Transaction{
			ID:           txn.GetTransactionId(),
			Amount:       txn.GetAmount(),
			Date:         txn.GetDate(),
			Name:         txn.GetName(),
			MerchantName: txn.GetMerchantName(),
			Category:     txn.GetCategory(),
		})
	}
	return result
}

// Ensure PlaidClient implements the Client interface.
var _ Client = (*PlaidClient)(nil)
