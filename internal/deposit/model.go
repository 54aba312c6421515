package deposit

import "time"

// Address is a user's deposit address on one chain. The provider credits
// anything sent to it through the deposit webhook.
type Address struct {
	UserID    string    `db:"user_id" json:"user_id"`
	Chain     string    `db:"chain" json:"chain"`
	Address   string    `db:"address" json:"address"`
	Memo      string    `db:"memo" json:"memo,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

type AddressRequest struct {
	Chain string `json:"chain" validate:"required,max=32"`
}
