package btc

import (
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"

	coreerr "github.com/mrz1836/coincore/pkg/errors"
)

// DecodeAddress parses an address and checks it belongs to params' network.
func DecodeAddress(address string, params *chaincfg.Params) (btcutil.Address, error) {
	addr, err := btcutil.DecodeAddress(address, params)
	if err != nil || !addr.IsForNet(params) {
		return nil, coreerr.WithDetails(coreerr.ErrInvalidAddress, map[string]string{
			"chain":   "btc",
			"address": address,
		})
	}
	return addr, nil
}

// IsValidAddress reports whether address decodes for params' network.
func IsValidAddress(address string, params *chaincfg.Params) bool {
	_, err := DecodeAddress(address, params)
	return err == nil
}
