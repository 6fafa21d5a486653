// Package cards validates card payment input: Luhn checksum, brand
// detection, MM/YY expiry and CVV shape. Nothing here performs I/O.
package cards

import (
	"strconv"
	"strings"
	"time"

	"github.com/farmachelo/pharmacy-backend/pkg/enums"
)

// Rejection reasons returned to callers.
const (
	ReasonInvalidNumber = "Número de tarjeta inválido"
	ReasonInvalidExpiry = "Fecha de expiración inválida o tarjeta expirada"
	ReasonInvalidCVV    = "CVV inválido"
)

// Card is the raw card input submitted with a payment.
type Card struct {
	Number         string
	Expiry         string
	CVV            string
	CardholderName string
	Country        string
}

// Result reports the outcome of validating a card.
type Result struct {
	Valid  bool
	Brand  enums.CardBrand
	Reason string
}

// Validator checks cards against an injectable clock.
type Validator struct {
	now func() time.Time
}

// NewValidator returns a validator using now as its clock; nil means time.Now.
func NewValidator(now func() time.Time) *Validator {
	if now == nil {
		now = time.Now
	}
	return &Validator{now: now}
}

// Validate runs number, expiry and CVV checks in that order and stops at the
// first failure.
func (v *Validator) Validate(card Card) Result {
	brand := ClassifyBrand(card.Number)
	if !ValidNumber(card.Number) {
		return Result{Brand: brand, Reason: ReasonInvalidNumber}
	}
	if !ValidExpiry(card.Expiry, v.now()) {
		return Result{Brand: brand, Reason: ReasonInvalidExpiry}
	}
	if !ValidCVV(card.CVV) {
		return Result{Brand: brand, Reason: ReasonInvalidCVV}
	}
	return Result{Valid: true, Brand: brand}
}

// Normalize strips the spaces customers type between digit groups.
func Normalize(number string) string {
	return strings.ReplaceAll(number, " ", "")
}

// ValidNumber applies the Luhn checksum to the digits of number.
func ValidNumber(number string) bool {
	digits := Normalize(number)
	if digits == "" || !allDigits(digits) {
		return false
	}
	sum := 0
	for i := 0; i < len(digits); i++ {
		n := int(digits[len(digits)-1-i] - '0')
		if i%2 == 1 {
			n *= 2
			if n > 9 {
				n -= 9
			}
		}
		sum += n
	}
	return sum%10 == 0
}

var brandRules = []struct {
	brand    enums.CardBrand
	prefixes []string
}{
	{enums.CardBrandVisa, []string{"4"}},
	{enums.CardBrandMastercard, []string{"51", "52", "53", "54", "55"}},
	{enums.CardBrandAmex, []string{"34", "37"}},
	{enums.CardBrandDiners, []string{"300", "301", "302", "303", "304", "305", "36", "38"}},
	{enums.CardBrandDiscover, []string{"6011", "65"}},
}

// ClassifyBrand maps the number prefix onto a card network. Rules are
// evaluated in order and the first match wins.
func ClassifyBrand(number string) enums.CardBrand {
	digits := Normalize(number)
	for _, rule := range brandRules {
		for _, prefix := range rule.prefixes {
			if strings.HasPrefix(digits, prefix) {
				return rule.brand
			}
		}
	}
	return enums.CardBrandUnknown
}

// ExpiryInstant parses MM/YY and returns 00:00 UTC on the first day of that
// month, with the year read as 2000+YY.
func ExpiryInstant(expiry string) (time.Time, bool) {
	monthPart, yearPart, ok := strings.Cut(expiry, "/")
	if !ok {
		return time.Time{}, false
	}
	month, err := strconv.Atoi(strings.TrimSpace(monthPart))
	if err != nil || month < 1 || month > 12 {
		return time.Time{}, false
	}
	year, err := strconv.Atoi(strings.TrimSpace(yearPart))
	if err != nil || year < 0 || year > 99 {
		return time.Time{}, false
	}
	return time.Date(2000+year, time.Month(month), 1, 0, 0, 0, 0, time.UTC), true
}

// ValidExpiry reports whether the expiry instant is strictly after now. A card
// stops being valid once its expiry month begins.
func ValidExpiry(expiry string, now time.Time) bool {
	instant, ok := ExpiryInstant(expiry)
	if !ok {
		return false
	}
	return instant.After(now.UTC())
}

// ValidCVV accepts three or four digits.
func ValidCVV(cvv string) bool {
	return (len(cvv) == 3 || len(cvv) == 4) && allDigits(cvv)
}

// LastFour returns the trailing four digits of the normalized number.
func LastFour(number string) string {
	digits := Normalize(number)
	if len(digits) <= 4 {
		return digits
	}
	return digits[len(digits)-4:]
}

func allDigits(value string) bool {
	for _, r := range value {
		if r < '0' || r > '9' {
			return false
		}
	}
	return value != ""
}
