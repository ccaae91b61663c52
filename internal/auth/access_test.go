package auth_test

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"LendLedger/internal/auth"
	"LendLedger/internal/errs"
)

func TestAccessControl_RequireOwner(t *testing.T) {
	owner := common.HexToAddress("0x00000000000000000000000000000000000000ee")
	other := common.HexToAddress("0x00000000000000000000000000000000000000ff")
	ac := auth.NewAccessControl(owner)

	if err := ac.RequireOwner(owner); err != nil {
		t.Errorf("owner should pass: %v", err)
	}
	if err := ac.RequireOwner(other); !errs.IsAuthorization(err) {
		t.Errorf("non-owner should be an authorization error, got %v", err)
	}
	if ac.Owner() != owner {
		t.Errorf("Owner: got %s, want %s", ac.Owner().Hex(), owner.Hex())
	}
}
