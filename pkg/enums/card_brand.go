package enums

// CardBrand identifies the card network derived from the card number prefix.
type CardBrand string

const (
	CardBrandVisa       CardBrand = "Visa"
	CardBrandMastercard CardBrand = "Mastercard"
	CardBrandAmex       CardBrand = "Amex"
	CardBrandDiners     CardBrand = "Diners Club"
	CardBrandDiscover   CardBrand = "Discover"
	CardBrandUnknown    CardBrand = "Unknown"
)

// String implements fmt.Stringer.
func (b CardBrand) String() string {
	return string(b)
}

// IsKnown reports whether the brand maps to a recognised network.
func (b CardBrand) IsKnown() bool {
	switch b {
	case CardBrandVisa, CardBrandMastercard, CardBrandAmex, CardBrandDiners, CardBrandDiscover:
		return true
	default:
		return false
	}
}
