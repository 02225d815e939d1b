package model

import (
	"errors"
	"fmt"
)

// ErrAddressNotFound is returned when an address has no row in the
// address column.
var ErrAddressNotFound = errors.New("address not found in sheet")

// ConfigError is fatal: the run stops before anything is sent.
type ConfigError struct {
	Message string
	Err     error
}

func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("configuration error: %s: %v", e.Message, e.Err)
	}
	return "configuration error: " + e.Message
}

func (e *ConfigError) Unwrap() error { return e.Err }

// IsConfigError reports whether err (or any error in its chain) is a
// ConfigError.
func IsConfigError(err error) bool {
	var cfgErr *ConfigError
	return errors.As(err, &cfgErr)
}

// MailboxError means the bounce mailbox could not be read. The run
// continues without reconciliation.
type MailboxError struct {
	// Op is the IMAP step that failed, e.g. "login" or "search".
	Op  string
	Err error
}

func (e *MailboxError) Error() string {
	return fmt.Sprintf("mailbox %s: %v", e.Op, e.Err)
}

func (e *MailboxError) Unwrap() error { return e.Err }

// DeliveryError records why one recipient could not be completed.
type DeliveryError struct {
	Row     int
	Address string
	Err     error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("delivery to %s (row %d): %v", e.Address, e.Row, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }
