package eth

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"

	coreerr "github.com/mrz1836/coincore/pkg/errors"
)

// IsValidAddress checks the 0x-prefixed 40 hex character format. Checksums are not checked.
func IsValidAddress(address string) bool {
	return strings.HasPrefix(address, "0x") && common.IsHexAddress(address)
}

// ParseAddress validates an address and enforces EIP-55 when the input is mixed case.
func ParseAddress(address string) (common.Address, error) {
	if !IsValidAddress(address) {
		return common.Address{}, coreerr.WithDetails(coreerr.ErrInvalidAddress, map[string]string{
			"chain":   "eth",
			"address": address,
		})
	}

	addr := common.HexToAddress(address)
	hexPart := address[2:]
	mixed := hexPart != strings.ToLower(hexPart) && hexPart != strings.ToUpper(hexPart)
	if mixed && addr.Hex() != address {
		return common.Address{}, coreerr.WithDetails(coreerr.ErrInvalidAddress, map[string]string{
			"chain":    "eth",
			"address":  address,
			"expected": addr.Hex(),
			"reason":   "checksum mismatch",
		})
	}
	return addr, nil
}

// ChecksumAddress returns the EIP-55 form of a valid address, or the input unchanged.
func ChecksumAddress(address string) string {
	if !IsValidAddress(address) {
		return address
	}
	return common.HexToAddress(address).Hex()
}
