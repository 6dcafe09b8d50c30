package actor

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// Signer signs transactions of a single account.
type Signer interface {
	// Address returns address of the signing account.
	Address() common.Address

	// SignTx returns tx signed for the chain with the given ID.
	SignTx(tx *types.Transaction, chainID *big.Int) (*types.Transaction, error)
}

// KeySigner is a Signer holding the private key in memory.
type KeySigner struct {
	key  *ecdsa.PrivateKey
	addr common.Address
}

// NewKeySigner returns KeySigner for the given private key.
func NewKeySigner(key *ecdsa.PrivateKey) *KeySigner {
	return &KeySigner{
		key:  key,
		addr: crypto.PubkeyToAddress(key.PublicKey),
	}
}

// KeySignerFromHex decodes hex-encoded (optionally 0x-prefixed) secp256k1
// private key.
func KeySignerFromHex(s string) (*KeySigner, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(s), "0x"))
	if err != nil {
		return nil, fmt.Errorf("decode private key: %w", err)
	}
	return NewKeySigner(key), nil
}

// KeySignerFromKeystore decrypts Web3 Secret Storage file located at path.
func KeySignerFromKeystore(path, password string) (*KeySigner, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read keystore file: %w", err)
	}

	key, err := keystore.DecryptKey(b, password)
	if err != nil {
		return nil, fmt.Errorf("decrypt keystore file: %w", err)
	}

	return NewKeySigner(key.PrivateKey), nil
}

// Address implements Signer.
func (x *KeySigner) Address() common.Address {
	return x.addr
}

// SignTx implements Signer.
func (x *KeySigner) SignTx(tx *types.Transaction, chainID *big.Int) (*types.Transaction, error) {
	return types.SignTx(tx, types.LatestSignerForChainID(chainID), x.key)
}
