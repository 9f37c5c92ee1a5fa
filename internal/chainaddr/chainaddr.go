// Package chainaddr validates and normalizes receive addresses before they enter the pool.
package chainaddr

import (
	"errors"
	"fmt"
	"strings"

	"github.com/btcsuite/btcutil/base58"
	"github.com/ethereum/go-ethereum/common"
	"github.com/tonkeeper/tongo/ton"
)

const (
	NetworkTron     = "tron"
	NetworkEthereum = "ethereum"
	NetworkBsc      = "bsc"
	NetworkPolygon  = "polygon"
	NetworkTon      = "ton"
)

// tronVersion is the leading byte of every mainnet Tron address payload.
const tronVersion = 0x41

var ErrInvalidAddress = errors.New("invalid address")

// Normalize checks address against the rules of network and returns its canonical form.
// Unknown networks pass through trimmed, so custom pools keep working.
func Normalize(network, address string) (string, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidAddress)
	}

	switch strings.ToLower(network) {
	case NetworkTron, "trc20":
		return normalizeTron(address)
	case NetworkEthereum, NetworkBsc, NetworkPolygon, "erc20", "bep20":
		return normalizeEvm(address)
	case NetworkTon:
		return normalizeTon(address)
	}
	return address, nil
}

// Validate reports whether address is acceptable on network.
func Validate(network, address string) error {
	_, err := Normalize(network, address)
	return err
}

func normalizeTron(address string) (string, error) {
	payload, version, err := base58.CheckDecode(address)
	if err != nil {
		return "", fmt.Errorf("%w: tron %s: %v", ErrInvalidAddress, address, err)
	}
	if version != tronVersion || len(payload) != 20 {
		return "", fmt.Errorf("%w: tron %s: unexpected prefix or length", ErrInvalidAddress, address)
	}
	return address, nil
}

func normalizeEvm(address string) (string, error) {
	if !common.IsHexAddress(address) {
		return "", fmt.Errorf("%w: evm %s", ErrInvalidAddress, address)
	}
	// EIP-55 checksum casing
	return common.HexToAddress(address).Hex(), nil
}

func normalizeTon(address string) (string, error) {
	acc, err := ton.ParseAccountID(address)
	if err != nil {
		return "", fmt.Errorf("%w: ton %s: %v", ErrInvalidAddress, address, err)
	}
	return acc.ToHuman(true, false), nil
}
