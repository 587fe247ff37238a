package custodial

import "strings"

// Direction is the settlement direction of a trading order.
type Direction string

// Order directions.
const (
	// OnChain trades between two non-custodial accounts through the backend.
	OnChain Direction = "ON_CHAIN"
	// FromUserKey deposits from a non-custodial account into a trading account.
	FromUserKey Direction = "FROM_USERKEY"
	// ToUserKey withdraws from a trading account to a non-custodial account.
	ToUserKey Direction = "TO_USERKEY"
	// Internal moves funds between trading accounts.
	Internal Direction = "INTERNAL"
)

// RequiresDestinationAddress reports whether the backend needs an on-chain
// address to pay the order out to.
func (d Direction) RequiresDestinationAddress() bool {
	return d == OnChain || d == ToUserKey
}

// RequiresRefundAddress reports whether the backend needs an on-chain address
// to refund a failed deposit to.
func (d Direction) RequiresRefundAddress() bool {
	return d == OnChain || d == FromUserKey
}

// Valid reports whether d is a known direction.
func (d Direction) Valid() bool {
	switch d {
	case OnChain, FromUserKey, ToUserKey, Internal:
		return true
	default:
		return false
	}
}

// ParseDirection parses a direction name, case-insensitively.
func ParseDirection(s string) (Direction, bool) {
	d := Direction(strings.ToUpper(strings.TrimSpace(s)))
	return d, d.Valid()
}
