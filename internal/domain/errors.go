package domain

import "errors"

var (
	ErrNotFound        = errors.New("not found")
	ErrAlreadyExists   = errors.New("already exists")
	ErrMarketClosed    = errors.New("market closed for betting")
	ErrDuplicateBet    = errors.New("bet already placed on this market")
	ErrAlreadyResolved = errors.New("market already resolved")
	ErrInvalidStake    = errors.New("invalid stake amount")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrLockHeld        = errors.New("lock already held")
	ErrTxConflict      = errors.New("transaction conflict, retries exhausted")
)
