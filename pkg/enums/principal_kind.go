package enums

import "fmt"

// PrincipalKind distinguishes storefront customers from back-office admins.
type PrincipalKind string

const (
	PrincipalCustomer PrincipalKind = "customer"
	PrincipalAdmin    PrincipalKind = "admin"
)

// String implements fmt.Stringer.
func (k PrincipalKind) String() string {
	return string(k)
}

// IsValid reports whether the value is a known PrincipalKind.
func (k PrincipalKind) IsValid() bool {
	return k == PrincipalCustomer || k == PrincipalAdmin
}

// ParsePrincipalKind converts raw input into a PrincipalKind.
func ParsePrincipalKind(value string) (PrincipalKind, error) {
	kind := PrincipalKind(value)
	if !kind.IsValid() {
		return "", fmt.Errorf("invalid principal kind %q", value)
	}
	return kind, nil
}
