// Copyright (C) 2026 Michael J. Fromberger. All Rights Reserved.

//go:build !linux

// Package poll reports read readiness of file descriptors using epoll.
// It is only supported on Linux.
package poll

import (
	"errors"
	"time"
)

// A Poller watches a set of descriptors for read readiness.
type Poller struct{}

// Open reports errors.ErrUnsupported on this platform.
func Open() (*Poller, error) { return nil, errors.ErrUnsupported }

func (*Poller) Add(int) error { return errors.ErrUnsupported }
func (*Poller) Remove(int) error { return errors.ErrUnsupported }
func (*Poller) Wake() error { return errors.ErrUnsupported }
func (*Poller) Wait(time.Duration) ([]int, error) { return nil, errors.ErrUnsupported }
func (*Poller) Close() error { return nil }
