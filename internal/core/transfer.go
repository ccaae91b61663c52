package core

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
)

// TokenTransfer moves asset units between users and the protocol's custody.
// TransferIn pulls funds from the user; TransferOut pushes funds to them.
// Implementations may call out to external systems and fail.
type TokenTransfer interface {
	TransferIn(ctx context.Context, asset string, from common.Address, amount int64) error
	TransferOut(ctx context.Context, asset string, to common.Address, amount int64) error
}
