package auth

import (
	"github.com/ethereum/go-ethereum/common"

	"LendLedger/internal/errs"
)

// AccessControl gates administrative operations to a single owner address
// fixed at construction.
type AccessControl struct {
	owner common.Address
}

func NewAccessControl(owner common.Address) *AccessControl {
	return &AccessControl{owner: owner}
}

func (a *AccessControl) Owner() common.Address { return a.owner }

// RequireOwner rejects any caller other than the owner.
func (a *AccessControl) RequireOwner(caller common.Address) error {
	if caller != a.owner {
		return errs.Authorizationf("caller %s is not the owner", caller.Hex())
	}
	return nil
}
