package domain

import "time"

// Field names a single input of the investment form.
type Field string

const (
	FieldFullName             Field = "name"
	FieldPhoneNumber          Field = "phone"
	FieldInvestmentAmount     Field = "amount"
	FieldTransactionReference Field = "utr"
)

// Fields lists every form field in display order.
var Fields = []Field{
	FieldFullName,
	FieldPhoneNumber,
	FieldInvestmentAmount,
	FieldTransactionReference,
}

// Draft is the in-progress, unsent investment submission held by a form.
type Draft struct {
	FullName             string `json:"name"`
	PhoneNumber          string `json:"phone"`
	InvestmentAmount     string `json:"amount"`
	TransactionReference string `json:"utr"`
}

// IsEmpty reports whether every field of the draft is blank.
func (d Draft) IsEmpty() bool {
	return d == Draft{}
}

// PaymentRecord is the row written to the payments table once a draft is sent.
// Verification happens manually, out of band, so there is no status column.
type PaymentRecord struct {
	ID        string    `json:"id,omitempty" db:"id"`
	Name      string    `json:"name" db:"name"`
	Phone     string    `json:"phone" db:"phone"`
	Amount    string    `json:"amount" db:"amount"`
	UTR       string    `json:"utr" db:"utr"`
	Email     string    `json:"email" db:"email"`
	UserID    string    `json:"user_id" db:"user_id"`
	CreatedAt time.Time `json:"created_at,omitempty" db:"created_at"`
}

// NewPaymentRecord combines a draft with the identity that submitted it.
func NewPaymentRecord(d Draft, who Identity) PaymentRecord {
	return PaymentRecord{
		Name:   d.FullName,
		Phone:  d.PhoneNumber,
		Amount: d.InvestmentAmount,
		UTR:    d.TransactionReference,
		Email:  who.Email,
		UserID: who.UserID,
	}
}
