package auth

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// WalletSigner signs login messages with an EVM wallet key.
type WalletSigner struct {
	privKey *ecdsa.PrivateKey
	address common.Address
}

func NewWalletSigner(hexKey string) (*WalletSigner, error) {
	clean := strings.TrimSpace(hexKey)
	if clean == "" {
		return nil, errors.New("private key is required")
	}
	clean = strings.TrimPrefix(clean, "0x")
	key, err := crypto.HexToECDSA(clean)
	if err != nil {
		return nil, fmt.Errorf("parse wallet key: %w", err)
	}
	return &WalletSigner{privKey: key, address: crypto.PubkeyToAddress(key.PublicKey)}, nil
}

func (s *WalletSigner) Address() common.Address {
	return s.address
}

// SignMessage produces an EIP-191 personal_sign signature with V in {27, 28}.
func (s *WalletSigner) SignMessage(message string) (string, error) {
	digest := accounts.TextHash([]byte(message))
	sig, err := crypto.Sign(digest, s.privKey)
	if err != nil {
		return "", err
	}
	if len(sig) != 65 {
		return "", fmt.Errorf("unexpected signature length %d", len(sig))
	}
	sig[64] += 27
	return hexutil.Encode(sig), nil
}
