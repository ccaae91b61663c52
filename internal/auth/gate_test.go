package auth_test

import (
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"LendLedger/internal/auth"
	"LendLedger/internal/errs"
)

type fixedClock struct {
	now time.Time
}

func (c fixedClock) Now() time.Time { return c.now }

func TestMessageHash_Deterministic(t *testing.T) {
	user := common.HexToAddress("0x00000000000000000000000000000000000000a1")
	h1 := auth.MessageHash("deposit", "USDC", 100, user, 0, 1_700_000_000)
	h2 := auth.MessageHash("deposit", "USDC", 100, user, 0, 1_700_000_000)
	if string(h1) != string(h2) {
		t.Error("identical inputs must hash identically")
	}

	h3 := auth.MessageHash("deposit", "USDC", 100, user, 1, 1_700_000_000)
	if string(h1) == string(h3) {
		t.Error("changing the nonce must change the hash")
	}
}

// ============================================================================
// Test: Authorize
// ============================================================================

func TestAuthorize_ValidSignature(t *testing.T) {
	key, err := ethcrypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	user := ethcrypto.PubkeyToAddress(key.PublicKey)
	clock := fixedClock{now: time.Unix(1_000, 0)}
	gate := auth.NewGate(auth.NewSecpVerifier(), clock)

	req := auth.Request{
		Op:       "deposit",
		Asset:    "USDC",
		Amount:   500,
		User:     user,
		Nonce:    0,
		Deadline: 2_000,
	}
	sig, err := ethcrypto.Sign(auth.MessageHash(req.Op, req.Asset, req.Amount, req.User, req.Nonce, req.Deadline), key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	req.Sig = sig

	if err := gate.Authorize(req, 0); err != nil {
		t.Errorf("valid request rejected: %v", err)
	}
}

func TestAuthorize_ExpiredDeadline(t *testing.T) {
	key, _ := ethcrypto.GenerateKey()
	user := ethcrypto.PubkeyToAddress(key.PublicKey)
	clock := fixedClock{now: time.Unix(3_000, 0)}
	gate := auth.NewGate(auth.NewSecpVerifier(), clock)

	req := auth.Request{Op: "deposit", Asset: "USDC", Amount: 500, User: user, Nonce: 0, Deadline: 2_000}
	sig, _ := ethcrypto.Sign(auth.MessageHash(req.Op, req.Asset, req.Amount, req.User, req.Nonce, req.Deadline), key)
	req.Sig = sig

	err := gate.Authorize(req, 0)
	if !errs.IsAuthorization(err) {
		t.Errorf("expired deadline should be an authorization error, got %v", err)
	}
}

func TestAuthorize_DeadlineBoundary(t *testing.T) {
	key, _ := ethcrypto.GenerateKey()
	user := ethcrypto.PubkeyToAddress(key.PublicKey)
	// Now exactly equals the deadline: still valid.
	clock := fixedClock{now: time.Unix(2_000, 0)}
	gate := auth.NewGate(auth.NewSecpVerifier(), clock)

	req := auth.Request{Op: "deposit", Asset: "USDC", Amount: 500, User: user, Nonce: 0, Deadline: 2_000}
	sig, _ := ethcrypto.Sign(auth.MessageHash(req.Op, req.Asset, req.Amount, req.User, req.Nonce, req.Deadline), key)
	req.Sig = sig

	if err := gate.Authorize(req, 0); err != nil {
		t.Errorf("request at the deadline instant should pass: %v", err)
	}
}

func TestAuthorize_NonceMismatch(t *testing.T) {
	key, _ := ethcrypto.GenerateKey()
	user := ethcrypto.PubkeyToAddress(key.PublicKey)
	gate := auth.NewGate(auth.NewSecpVerifier(), fixedClock{now: time.Unix(1_000, 0)})

	req := auth.Request{Op: "deposit", Asset: "USDC", Amount: 500, User: user, Nonce: 5, Deadline: 2_000}
	sig, _ := ethcrypto.Sign(auth.MessageHash(req.Op, req.Asset, req.Amount, req.User, req.Nonce, req.Deadline), key)
	req.Sig = sig

	// Expected nonce is 4: both stale and future nonces are rejected.
	err := gate.Authorize(req, 4)
	if !errs.IsAuthorization(err) {
		t.Errorf("nonce mismatch should be an authorization error, got %v", err)
	}
	err = gate.Authorize(req, 6)
	if !errs.IsAuthorization(err) {
		t.Errorf("nonce mismatch should be an authorization error, got %v", err)
	}
}

func TestAuthorize_WrongSigner(t *testing.T) {
	userKey, _ := ethcrypto.GenerateKey()
	attackerKey, _ := ethcrypto.GenerateKey()
	user := ethcrypto.PubkeyToAddress(userKey.PublicKey)
	gate := auth.NewGate(auth.NewSecpVerifier(), fixedClock{now: time.Unix(1_000, 0)})

	req := auth.Request{Op: "deposit", Asset: "USDC", Amount: 500, User: user, Nonce: 0, Deadline: 2_000}
	sig, _ := ethcrypto.Sign(auth.MessageHash(req.Op, req.Asset, req.Amount, req.User, req.Nonce, req.Deadline), attackerKey)
	req.Sig = sig

	err := gate.Authorize(req, 0)
	if !errs.IsAuthorization(err) {
		t.Errorf("signature by another key should be an authorization error, got %v", err)
	}
}

func TestAuthorize_TamperedField(t *testing.T) {
	key, _ := ethcrypto.GenerateKey()
	user := ethcrypto.PubkeyToAddress(key.PublicKey)
	gate := auth.NewGate(auth.NewSecpVerifier(), fixedClock{now: time.Unix(1_000, 0)})

	req := auth.Request{Op: "deposit", Asset: "USDC", Amount: 500, User: user, Nonce: 0, Deadline: 2_000}
	sig, _ := ethcrypto.Sign(auth.MessageHash(req.Op, req.Asset, req.Amount, req.User, req.Nonce, req.Deadline), key)
	req.Sig = sig

	// Bumping the amount after signing recovers a different address.
	req.Amount = 5_000
	err := gate.Authorize(req, 0)
	if !errs.IsAuthorization(err) {
		t.Errorf("tampered amount should be an authorization error, got %v", err)
	}
}

// ============================================================================
// Test: SecpVerifier
// ============================================================================

func TestSecpVerifier_MalformedInputs(t *testing.T) {
	v := auth.NewSecpVerifier()

	if _, err := v.Recover(make([]byte, 31), make([]byte, 65)); !errs.IsAuthorization(err) {
		t.Errorf("short hash should fail, got %v", err)
	}
	if _, err := v.Recover(make([]byte, 32), make([]byte, 64)); !errs.IsAuthorization(err) {
		t.Errorf("short signature should fail, got %v", err)
	}
	if _, err := v.Recover(make([]byte, 32), nil); !errs.IsAuthorization(err) {
		t.Errorf("nil signature should fail, got %v", err)
	}
}
