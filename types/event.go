package types

import "time"

// Event channels published after a successful commit.
const (
	ChannelUserRegistered    = "users.registered"
	ChannelTransactionPosted = "transactions.posted"
)

// UserRegisteredEvent is published when a new user signs up.
type UserRegisteredEvent struct {
	UserID     int64     `json:"user_id"`
	Email      string    `json:"email"`
	OccurredAt time.Time `json:"occurred_at"`
}

// TransactionPostedEvent is published when a transaction has been recorded
// and the account balance adjusted.
type TransactionPostedEvent struct {
	Transaction Transaction `json:"transaction"`
	Balance     string      `json:"balance"`
	OccurredAt  time.Time   `json:"occurred_at"`
}
