package apperrors

import (
	"errors"
)

var (
	ErrShutdown = errors.New("shutdown error")

	ErrMentorNotFound         = errors.New("mentor does not exist")
	ErrExternalRecordConflict = errors.New("external record id already linked to another mentor")

	ErrOutboxItemNotFound  = errors.New("outbox item does not exist")
	ErrOutboxItemNotFailed = errors.New("outbox item is not in failed state")
	ErrOutboxItemNotOwned  = errors.New("outbox item is no longer owned by this claim")

	ErrInvalidSignature = errors.New("invalid webhook signature")
	ErrMissingSecret    = errors.New("secret is not configured")
	ErrMissingToken     = errors.New("crm api token is not configured")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrEmptyPatch       = errors.New("patch has no fields")
	ErrPayloadTooLarge  = errors.New("payload too large")
	ErrInvalidPayload   = errors.New("invalid payload")
	ErrInvalidStatus    = errors.New("invalid outbox status")
)
