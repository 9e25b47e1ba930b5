package domain

import (
	"errors"

	"kittycore/pkg/pow"
)

// Sentinel errors returned by registry and breeding operations. Callers wrap
// them with context and match with errors.Is.
var (
	ErrInvalidKittyID      = errors.New("invalid kitty id")
	ErrSameGender          = errors.New("same gender")
	ErrNotOwner            = errors.New("not owner")
	ErrNoPermission        = errors.New("no permission")
	ErrNotForSale          = errors.New("not for sale")
	ErrPriceTooLow         = errors.New("price too low")
	ErrBuyFromSelf         = errors.New("buy from self")
	ErrNoAvailableKittyID  = errors.New("no available kitty id")
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrBadProof aliases pow.ErrBadProof so admission callers need a single import.
	ErrBadProof = pow.ErrBadProof
)
