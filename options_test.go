// SPDX-FileCopyrightText: 2019 Kent Gibson <warthog618@gmail.com>
//
// SPDX-License-Identifier: MIT

package gpiodbus_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/stretchr/testify/assert"
	"github.com/warthog618/go-gpiodbus"
)

// hungBus is a bus whose daemon never replies.
type hungBus struct{}

func (b hungBus) Object(dest string, path dbus.ObjectPath) gpiodbus.Object {
	return hungObject{}
}

func (b hungBus) Close() error {
	return nil
}

type hungObject struct{}

func (o hungObject) CallWithContext(ctx context.Context, method string, flags dbus.Flags, args ...interface{}) *dbus.Call {
	<-ctx.Done()
	return &dbus.Call{Method: method, Args: args, Err: ctx.Err()}
}

func TestWithTimeout(t *testing.T) {
	c := gpiodbus.NewClientFromBus(hungBus{}, gpiodbus.WithTimeout(10*time.Millisecond))
	defer c.Close()
	start := time.Now()
	_, err := c.ManagedObjects(context.Background())
	assert.True(t, errors.Is(err, context.DeadlineExceeded), err)
	assert.Less(t, int64(time.Since(start)), int64(time.Second))

	_, err = c.Chip(gpiodbus.ChipPath("gpiochip0")).Label(context.Background())
	assert.True(t, errors.Is(err, context.DeadlineExceeded), err)

	// caller deadline still applies when no timeout is set
	c = gpiodbus.NewClientFromBus(hungBus{}, gpiodbus.WithTimeout(0))
	defer c.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = c.ManagedObjects(ctx)
	assert.True(t, errors.Is(err, context.DeadlineExceeded), err)
}

func TestWithBusAddress(t *testing.T) {
	// address overrides session bus
	c, err := gpiodbus.NewClient(
		gpiodbus.WithSessionBus(),
		gpiodbus.WithBusAddress("unix:path=/nonexistent/gpiodbus_test_socket"))
	assert.True(t, errors.Is(err, gpiodbus.ErrBusUnavailable), err)
	assert.Nil(t, c)
}
