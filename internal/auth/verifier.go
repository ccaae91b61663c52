package auth

import (
	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"LendLedger/internal/errs"
)

// Verifier recovers the signer address from a 32-byte message hash and a
// 65-byte [R || S || V] signature.
type Verifier interface {
	Recover(hash []byte, sig []byte) (common.Address, error)
}

// SecpVerifier recovers signers via secp256k1 public key recovery.
type SecpVerifier struct{}

func NewSecpVerifier() SecpVerifier { return SecpVerifier{} }

func (SecpVerifier) Recover(hash []byte, sig []byte) (common.Address, error) {
	if len(hash) != 32 {
		return common.Address{}, errs.Authorizationf("message hash must be 32 bytes, got %d", len(hash))
	}
	if len(sig) != 65 {
		return common.Address{}, errs.Authorizationf("signature must be 65 bytes, got %d", len(sig))
	}
	pub, err := ethcrypto.SigToPub(hash, sig)
	if err != nil {
		return common.Address{}, errs.Authorizationf("signature recovery failed: %v", err)
	}
	return ethcrypto.PubkeyToAddress(*pub), nil
}
