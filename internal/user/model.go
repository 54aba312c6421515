package user

import "time"

// Profile is the ledger's view of a user. Accounts, credentials and referral
// codes live in the identity service, which syncs profiles here.
type Profile struct {
	UserID       string    `db:"user_id" json:"user_id"`
	Email        string    `db:"email" json:"email"`
	ReferrerID   *string   `db:"referrer_id" json:"referrer_id,omitempty"`
	FirstDeposit bool      `db:"first_deposit" json:"first_deposit"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

type UpsertRequest struct {
	Email      string  `json:"email" validate:"omitempty,email,max=254"`
	ReferrerID *string `json:"referrer_id" validate:"omitempty,min=1,max=64"`
}
