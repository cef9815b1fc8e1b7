package bank

import "time"

// Transaction is the normalized view of one aggregator transaction.
// Fields beyond ID, Amount and Date are optional in the upstream contract;
// consumers must apply the documented fallbacks instead of assuming presence.
type Transaction struct {
	// ID is the aggregator-assigned unique transaction identifier.
	ID string `json:"transaction_id"`

	// Amount is the signed transaction amount. Positive means money moving
	// out of the account in this domain.
	Amount float64 `json:"amount"`

	// Date is the ISO calendar date (YYYY-MM-DD) with no time component.
	Date string `json:"date"`

	// Name is the payee name as reported by the institution. May be empty.
	Name string `json:"name,omitempty"`

	// MerchantName is the cleaned merchant label. May be empty; when both
	// MerchantName and Name are empty the record renders as "unknown source".
	MerchantName string `json:"merchant_name,omitempty"`

	// Category is the aggregator's category path, broadest first.
	// May be nil or empty, in which case the record is "uncategorized".
	Category []string `json:"category,omitempty"`
}

// SyncPage is one page of the transactions delta-sync stream.
type SyncPage struct {
	Added    []Transaction
	Modified []Transaction

	// Removed holds the IDs of transactions deleted upstream.
	Removed []string

	// NextCursor is the pagination token for the next page. An empty string
	// means the upstream has not finished indexing yet and the same cursor
	// must be re-issued after a backoff.
	NextCursor string

	HasMore bool
}

// LinkToken is the short-lived token handed to the frontend to start an
// account-linking session.
type LinkToken struct {
	Token      string
	Expiration time.Time
	RequestID  string
}

// ExchangeResult is the outcome of exchanging a public token for a long-lived
// access credential.
type ExchangeResult struct {
	AccessToken string
	ItemID      string
}
