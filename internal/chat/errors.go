package chat

import "errors"

var (
	ErrEmptyContent     = errors.New("message content is empty")
	ErrUnknownKind      = errors.New("unrecognized message kind")
	ErrBadTarget        = errors.New("malformed target reference")
	ErrNotAMember       = errors.New("user is not a group member")
	ErrUnknownRecipient = errors.New("recipient does not exist")
	ErrNotConnected     = errors.New("user has no live connection")
)
