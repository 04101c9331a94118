// SPDX-FileCopyrightText: 2019 Kent Gibson <warthog618@gmail.com>
//
// SPDX-License-Identifier: MIT

package gpiodbus

import "time"

// ClientOption defines the interface required to provide a Client option.
type ClientOption interface {
	applyClientOption(*ClientOptions)
}

// ClientOptions contains the options for a Client.
type ClientOptions struct {
	sessionBus   bool
	address      string
	timeout      time.Duration
	skipVanished bool
}

// SessionBusOption indicates the client should connect to the session bus
// rather than the system bus.
type SessionBusOption struct{}

// WithSessionBus indicates that the client connect to the session bus.
//
// This is intended for testing against a daemon run as an unprivileged user.
func WithSessionBus() SessionBusOption {
	return SessionBusOption{}
}

func (o SessionBusOption) applyClientOption(c *ClientOptions) {
	c.sessionBus = true
}

// BusAddressOption specifies the address of the bus to connect to.
type BusAddressOption string

// WithBusAddress indicates that the client connect to the bus at the given
// address, e.g. "unix:path=/run/dbus/system_bus_socket".
// This option overrides WithSessionBus.
func WithBusAddress(address string) BusAddressOption {
	return BusAddressOption(address)
}

func (o BusAddressOption) applyClientOption(c *ClientOptions) {
	c.address = string(o)
}

// TimeoutOption limits the duration of each remote call.
type TimeoutOption time.Duration

// WithTimeout limits the duration of each remote call made by the client.
//
// A zero or negative timeout disables the limit, which is the default.
func WithTimeout(d time.Duration) TimeoutOption {
	return TimeoutOption(d)
}

func (o TimeoutOption) applyClientOption(c *ClientOptions) {
	c.timeout = time.Duration(o)
}

// SkipVanishedOption indicates chips that disappear between enumeration and
// reading their properties should be skipped rather than treated as an error.
type SkipVanishedOption struct{}

// WithSkipVanished indicates that chips removed from the daemon after being
// enumerated, such as by hot-unplug, be omitted from reports.
// Other errors are still returned.
func WithSkipVanished() SkipVanishedOption {
	return SkipVanishedOption{}
}

func (o SkipVanishedOption) applyClientOption(c *ClientOptions) {
	c.skipVanished = true
}
