package shared

import "github.com/shopspring/decimal"

// MoneyScale is the number of fractional digits kept for amounts and balances
const MoneyScale = 2

// ValidateAmount checks that amount is a positive value in whole cents.
func ValidateAmount(field string, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return NewValidationError(field, "must be greater than zero")
	}
	if !amount.Equal(amount.Round(MoneyScale)) {
		return NewValidationError(field, "must not have more than two decimal places")
	}
	return nil
}
