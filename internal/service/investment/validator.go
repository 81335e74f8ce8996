package investment

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/ignite/investwise/internal/domain"
)

// ValidatePhone reports whether s is exactly 10 decimal digits.
func ValidatePhone(s string) bool { return isDigits(s, 10) }

// ValidateTransactionReference reports whether s is exactly 12 decimal digits.
func ValidateTransactionReference(s string) bool { return isDigits(s, 12) }

func isDigits(s string, n int) bool {
	if len(s) != n {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// AmountRange bounds the investment amount. The zero value disables the check.
type AmountRange struct {
	Min float64
	Max float64
}

// Enabled reports whether any bound is set.
func (r AmountRange) Enabled() bool { return r.Min > 0 || r.Max > 0 }

// ValidateAmount reports whether s is a finite number inside r.
func ValidateAmount(s string, r AmountRange) bool {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return false
	}
	if r.Min > 0 && v < r.Min {
		return false
	}
	if r.Max > 0 && v > r.Max {
		return false
	}
	return true
}

// validateDraft runs the checks in order and returns the first failure.
// Phone and transaction reference come first.
func validateDraft(d domain.Draft, r AmountRange) *ValidationError {
	if !ValidatePhone(d.PhoneNumber) {
		return &ValidationError{
			Field:   domain.FieldPhoneNumber,
			Message: "Invalid phone number! Please enter a 10-digit number.",
		}
	}
	if !ValidateTransactionReference(d.TransactionReference) {
		return &ValidationError{
			Field:   domain.FieldTransactionReference,
			Message: "Invalid UTR! The transaction reference must be exactly 12 digits.",
		}
	}
	if strings.TrimSpace(d.FullName) == "" {
		return &ValidationError{
			Field:   domain.FieldFullName,
			Message: "Please enter your full name.",
		}
	}
	if !ValidateAmount(d.InvestmentAmount, r) {
		msg := "Please enter a valid investment amount."
		if r.Enabled() {
			msg = amountRangeMessage(r)
		}
		return &ValidationError{Field: domain.FieldInvestmentAmount, Message: msg}
	}
	return nil
}

func amountRangeMessage(r AmountRange) string {
	switch {
	case r.Min > 0 && r.Max > 0:
		return fmt.Sprintf("Investment amount must be between ₹%g and ₹%g.", r.Min, r.Max)
	case r.Min > 0:
		return fmt.Sprintf("Investment amount must be at least ₹%g.", r.Min)
	default:
		return fmt.Sprintf("Investment amount must be at most ₹%g.", r.Max)
	}
}
