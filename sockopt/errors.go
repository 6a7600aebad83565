// Copyright (C) 2026 Michael J. Fromberger. All Rights Reserved.

package sockopt

import (
	"errors"
	"fmt"

	"github.com/creachadair/jrpc2"
)

// Error codes reported for option failures.
const (
	InvalidOption jrpc2.Code = -29001 // an option may not be changed
	UnknownField  jrpc2.Code = -29002 // an option may not be queried
)

// ErrMalformed is reported (possibly wrapped) when an option list cannot be
// parsed. Its code is jrpc2.InvalidParams.
var ErrMalformed = malformedError{}

type malformedError struct{}

func (malformedError) Error() string      { return "malformed option list" }
func (malformedError) ErrCode() jrpc2.Code { return jrpc2.InvalidParams }

func malformed(msg string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformed, fmt.Sprintf(msg, args...))
}

// OptionError reports an attempt to change an option that is fixed when the
// channel is created.
type OptionError struct {
	Name string // the name of the option, e.g., "address"
}

func (e *OptionError) Error() string { return fmt.Sprintf("invalid option %q", e.Name) }

// ErrCode satisfies jrpc2.ErrCoder.
func (*OptionError) ErrCode() jrpc2.Code { return InvalidOption }

// UnknownFieldError reports a query for an option that cannot be queried.
type UnknownFieldError struct {
	Tag Tag
}

func (e *UnknownFieldError) Error() string { return fmt.Sprintf("unknown option field %v", e.Tag) }

// ErrCode satisfies jrpc2.ErrCoder.
func (*UnknownFieldError) ErrCode() jrpc2.Code { return UnknownField }

// IsInvalidOption reports whether err is an *OptionError, and if so returns
// the name of the option.
func IsInvalidOption(err error) (string, bool) {
	var oe *OptionError
	if errors.As(err, &oe) {
		return oe.Name, true
	}
	return "", false
}
