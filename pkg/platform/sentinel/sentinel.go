package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores, gateways, and other
// infrastructure layers return these (optionally wrapped) so services can
// translate them into coded domain errors.
//
// These represent factual states about resources, not validation failures:
// - ErrNotFound: entity does not exist in store
// - ErrConflict: write collided with an existing record
// - ErrAlreadyCompleted: request was finalized before; the operation already ran
// - ErrInsufficientFunds: a balance cannot cover the requested movement
// - ErrInsufficientLiquidity: the allocator destination refused a recall
// - ErrInvalidState: entity in wrong state for requested operation
// - ErrUnavailable: collaborator or resource temporarily unavailable
//
// For validation errors (bad input, missing fields), use pkg/domain-errors
// directly.
var (
	ErrNotFound              = errors.New("not found")
	ErrConflict              = errors.New("conflict")
	ErrAlreadyCompleted      = errors.New("already completed")
	ErrInsufficientFunds     = errors.New("insufficient funds")
	ErrInsufficientLiquidity = errors.New("insufficient liquidity")
	ErrInvalidState          = errors.New("invalid state")
	ErrUnavailable           = errors.New("unavailable")
)
