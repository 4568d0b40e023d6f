package domain

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	currencyRegex = regexp.MustCompile(`^[A-Z]{3,4}$`)
	txnIDRegex    = regexp.MustCompile(`^[A-Za-z0-9_.:\-]{1,64}$`)
)

// ValidateCurrency checks that a currency code is 3-4 upper-case letters.
// Four letters covers the provider-scaled codes such as IDR2.
func ValidateCurrency(currency string) error {
	if !currencyRegex.MatchString(currency) {
		return ErrValidation(fmt.Sprintf("invalid currency code: %s", currency))
	}
	return nil
}

// ValidateRequired rejects blank values.
func ValidateRequired(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return ErrValidation(fmt.Sprintf("%s is required", field))
	}
	return nil
}

// ValidatePositiveAmount checks that an amount is strictly positive.
func ValidatePositiveAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ErrValidation(fmt.Sprintf("amount must be positive, got %s", amount))
	}
	return nil
}

// ValidateNonNegativeAmount allows zero, used for losing payouts.
func ValidateNonNegativeAmount(amount decimal.Decimal) error {
	if amount.IsNegative() {
		return ErrValidation(fmt.Sprintf("amount must not be negative, got %s", amount))
	}
	return nil
}

// ValidateTxnID checks a provider transaction id can safely be embedded in an ext id.
func ValidateTxnID(id string) error {
	if !txnIDRegex.MatchString(id) {
		return ErrValidation(fmt.Sprintf("invalid transaction id: %q", id))
	}
	return nil
}
