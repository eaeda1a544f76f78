package payment

import "errors"

// Payment errors.
var (
	// ErrGatewayNotConfigured indicates missing gateway credentials.
	ErrGatewayNotConfigured = errors.New("payment gateway not configured")
	// ErrGatewayDisabled indicates checkout is switched off by an administrator.
	ErrGatewayDisabled = errors.New("payment gateway disabled")
	// ErrUnknownPackage indicates a package id outside the catalog.
	ErrUnknownPackage = errors.New("unknown package")
	// ErrUserNotFound indicates the purchasing user does not exist.
	ErrUserNotFound = errors.New("user not found")
	// ErrOrderNotFound indicates no order matches the id for this user.
	ErrOrderNotFound = errors.New("order not found")
)
