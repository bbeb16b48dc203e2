package strategy

import "errors"

var (
	ErrAlreadyInitialized = errors.New("strategy already initialized")
	ErrNotInitialized     = errors.New("strategy not initialized")
	ErrCloneOfClone       = errors.New("cannot clone a clone")
	ErrProtectedToken     = errors.New("token is protected")
	ErrPermissionDenied   = errors.New("permission denied")
	ErrNoTradeFacility    = errors.New("no trade facility configured")
	ErrInvalidAmount      = errors.New("invalid amount")
	ErrUnknownInstance    = errors.New("unknown strategy instance")
	ErrInvalidTemplate    = errors.New("invalid strategy template")
)
