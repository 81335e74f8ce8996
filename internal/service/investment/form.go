package investment

import (
	"fmt"
	"sync"

	"github.com/ignite/investwise/internal/domain"
)

// Form holds the draft for one dashboard session.
type Form struct {
	mu    sync.RWMutex
	draft domain.Draft
}

// NewForm returns a form with an empty draft.
func NewForm() *Form { return &Form{} }

// SetField replaces a single field and keeps the others. The previous draft
// value is never mutated; a new one is swapped in.
func (f *Form) SetField(name domain.Field, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	next, err := withField(f.draft, name, value)
	if err != nil {
		return err
	}
	f.draft = next
	return nil
}

// Draft returns a copy of the current draft.
func (f *Form) Draft() domain.Draft {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.draft
}

// Reset clears every field to the empty string.
func (f *Form) Reset() {
	f.mu.Lock()
	f.draft = domain.Draft{}
	f.mu.Unlock()
}

func withField(d domain.Draft, name domain.Field, value string) (domain.Draft, error) {
	switch name {
	case domain.FieldFullName:
		d.FullName = value
	case domain.FieldPhoneNumber:
		d.PhoneNumber = value
	case domain.FieldInvestmentAmount:
		d.InvestmentAmount = value
	case domain.FieldTransactionReference:
		d.TransactionReference = value
	default:
		return d, fmt.Errorf("%w: %q", ErrUnknownField, name)
	}
	return d, nil
}
