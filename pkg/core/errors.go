package core

import "errors"

var ErrEntityNotFound = errors.New("entity not found")

// ErrStaleNonce means the chain nonce has moved past the nonce a proposal was signed for.
var ErrStaleNonce = errors.New("nonce already used")

// ErrFutureNonce means earlier proposals have to be executed first.
var ErrFutureNonce = errors.New("nonce not reached yet")

// ErrNotAuthorized is returned when a proposal lacks threshold signatures.
var ErrNotAuthorized = errors.New("not enough signatures")

// ErrInvalidTransition is returned when a proposal cannot move to the requested status.
var ErrInvalidTransition = errors.New("invalid proposal status transition")
