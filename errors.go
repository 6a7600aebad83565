// Copyright (C) 2026 Michael J. Fromberger. All Rights Reserved.

package utpdrv

import (
	"errors"
	"fmt"

	"github.com/creachadair/jrpc2"
	"github.com/creachadair/utpdrv/internal/sock"
)

// Error codes reported for channel failures.
const (
	NotConnected jrpc2.Code = -29010 // the channel has no peer
	ActiveMode   jrpc2.Code = -29011 // a pull read on a channel in active mode
	Closed       jrpc2.Code = -29012 // the channel has been torn down
)

type codedError struct {
	code jrpc2.Code
	msg  string
}

func (e codedError) Error() string      { return e.msg }
func (e codedError) ErrCode() jrpc2.Code { return e.code }

var (
	// ErrNotConnected is reported by operations that require a peer on a
	// channel that does not have one, such as a read from a listener.
	ErrNotConnected error = codedError{NotConnected, "not connected"}

	// ErrActive is reported by a pull read on a channel in active mode.
	ErrActive error = codedError{ActiveMode, "channel is in active mode"}

	// ErrClosed is reported by operations on a channel that has been torn
	// down.
	ErrClosed error = codedError{Closed, "channel is closed"}

	// ErrInvalidAddress is reported (wrapped) when a peer address cannot be
	// parsed.
	ErrInvalidAddress error = codedError{jrpc2.InvalidParams, "invalid address"}

	// ErrInvalidLength is reported when a read requests a negative length.
	ErrInvalidLength error = codedError{jrpc2.InvalidParams, "invalid read length"}
)

var (
	_ jrpc2.ErrCoder = codedError{}
	_ jrpc2.ErrCoder = (*SystemError)(nil)
)

// SystemError reports the failure of an underlying socket operation.
type SystemError struct {
	Op  string // the operation that failed, e.g., "bind"
	Err error  // the underlying error
}

func (e *SystemError) Error() string { return fmt.Sprintf("%s: %v", e.Op, e.Err) }

// Unwrap supports error wrapping.
func (e *SystemError) Unwrap() error { return e.Err }

// ErrCode satisfies jrpc2.ErrCoder.
func (*SystemError) ErrCode() jrpc2.Code { return jrpc2.SystemError }

// ID returns the symbolic name of the system error, e.g., "eaddrinuse".
func (e *SystemError) ID() string { return sock.ErrnoID(e.Err) }

// sysError converts an error from the sock package to a *SystemError.
// Other errors are returned unchanged.
func sysError(err error) error {
	var se *sock.Error
	if errors.As(err, &se) {
		return &SystemError{Op: se.Op, Err: se.Err}
	}
	return err
}
