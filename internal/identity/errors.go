package identity

import "errors"

var (
	ErrAuthFailed   = errors.New("identity: authentication failed")
	ErrInvalidToken = errors.New("identity: invalid token")
	ErrThrottled    = errors.New("identity: too many attempts")
)
