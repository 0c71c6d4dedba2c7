package service

import "errors"

var (
	ErrValidation          = errors.New("invalid payment intent")
	ErrProviderUnsupported = errors.New("provider is not supported")
	ErrAuthFailed          = errors.New("payment gateway configuration error")
	ErrOrderFailed         = errors.New("payment could not be initiated")
	ErrPersistence         = errors.New("notification could not be recorded")
	ErrOrderNotFound       = errors.New("order not found")
)
