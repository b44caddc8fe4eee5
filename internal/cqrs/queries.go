package cqrs

// ---------- User queries ----------

// GetUserQuery fetches a single user by ID, subject to ownership check.
type GetUserQuery struct {
	UserID           string
	RequestingUserID string
}

// ---------- Account queries ----------

// GetAccountQuery fetches a single account owned by the requesting user.
type GetAccountQuery struct {
	AccountID        string
	RequestingUserID string
}

// ListAccountsQuery fetches the accounts belonging to a user.
type ListAccountsQuery struct {
	UserID     string
	ActiveOnly bool
}

// ---------- Transaction queries ----------

// GetTransactionQuery fetches a single transaction.
type GetTransactionQuery struct {
	TransactionID string
	UserID        string
}

// ListTransactionsQuery fetches the user's transactions, optionally narrowed
// to one account.
type ListTransactionsQuery struct {
	UserID    string
	AccountID string
}
