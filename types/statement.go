package types

import "time"

// Statement describes an exported account statement in object storage.
type Statement struct {
	ID        string    `json:"id"`
	AccountID int64     `json:"account_id"`
	Bucket    string    `json:"bucket"`
	Key       string    `json:"key"`
	Rows      int       `json:"rows"`
	CreatedAt time.Time `json:"created_at"`
}
