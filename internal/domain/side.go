// Package domain defines the value types shared by the sandbox components.
package domain

// Side selects one leg of the pool: the token or ETH.
type Side int

const (
	// SideToken the pool token.
	SideToken Side = iota
	// SideEth the ETH leg.
	SideEth
)

// String returns the string representation.
func (s Side) String() string {
	switch s {
	case SideToken:
		return "token"
	case SideEth:
		return "eth"
	default:
		return "unknown"
	}
}

// IsValid checks if the Side value is valid.
func (s Side) IsValid() bool {
	return s == SideToken || s == SideEth
}
