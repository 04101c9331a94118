// SPDX-FileCopyrightText: 2019 Kent Gibson <warthog618@gmail.com>
//
// SPDX-License-Identifier: MIT

// Package gpiodbus is a client for the libgpiod GPIO daemon, which publishes
// the GPIO chips of the host on the system D-Bus.
//
// The daemon owns the well-known name org.gpiod and exports an
// org.freedesktop.DBus.ObjectManager at /org/gpiod, with one object per chip
// implementing the org.gpiod.Chip interface.
//
// Example of use:
//
//	c, err := gpiodbus.NewClient()
//	if err != nil {
//		panic(err)
//	}
//	defer c.Close()
//	if err := c.Detect(context.Background(), os.Stdout); err != nil {
//		panic(err)
//	}
package gpiodbus

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/godbus/dbus/v5"
)

const (
	// ServiceName is the well-known bus name of the GPIO daemon.
	ServiceName = "org.gpiod"

	// RootPath is the path of the daemon's object manager.
	RootPath = dbus.ObjectPath("/org/gpiod")

	// ChipInterface is the interface implemented by chip objects.
	ChipInterface = "org.gpiod.Chip"

	objectManagerInterface = "org.freedesktop.DBus.ObjectManager"
	propertiesInterface    = "org.freedesktop.DBus.Properties"
)

// ChipPath returns the object path the daemon uses for the named chip, e.g.
// gpiochip0.
func ChipPath(name string) dbus.ObjectPath {
	return RootPath + "/" + dbus.ObjectPath(name)
}

// Object is a proxy for a remote object.
//
// It is satisfied by dbus.BusObject.
type Object interface {
	CallWithContext(ctx context.Context, method string, flags dbus.Flags, args ...interface{}) *dbus.Call
}

// Bus provides proxies to objects on a message bus.
type Bus interface {
	Object(dest string, path dbus.ObjectPath) Object
	Close() error
}

// SignalBus is a Bus that can also deliver signals.
type SignalBus interface {
	Bus
	AddMatchSignal(options ...dbus.MatchOption) error
	RemoveMatchSignal(options ...dbus.MatchOption) error
	Signal(ch chan<- *dbus.Signal)
	RemoveSignal(ch chan<- *dbus.Signal)
}

// ConnBus adapts a dbus.Conn to the SignalBus interface.
type ConnBus struct {
	*dbus.Conn
}

// Object returns a proxy for the object at path owned by dest.
func (b ConnBus) Object(dest string, path dbus.ObjectPath) Object {
	return b.Conn.Object(dest, path)
}

// ChipInfo describes a single GPIO chip managed by the daemon.
type ChipInfo struct {
	// The object path of the chip.
	Path dbus.ObjectPath `yaml:"path"`

	// The system name for this chip.
	Name string `yaml:"name"`

	// A more individual label for the chip.
	Label string `yaml:"label"`

	// The number of GPIO lines on this chip.
	NumLines int `yaml:"lines"`
}

// String returns the chip summary in the form "Name [Label] (NumLines lines)".
func (ci ChipInfo) String() string {
	return fmt.Sprintf("%s [%s] (%d lines)", ci.Name, ci.Label, ci.NumLines)
}

// ManagedObjects is the result of the daemon's object enumeration, mapping
// object path to the properties of each interface on that object.
type ManagedObjects map[dbus.ObjectPath]map[string]map[string]dbus.Variant

// Client is a connection to the GPIO daemon.
type Client struct {
	bus Bus

	// options applied to all calls.
	options ClientOptions

	// mutex covers the attributes below it.
	mu sync.Mutex

	// watchers of chip additions and removals.
	watchers map[*ChipWatcher]struct{}

	// indicates the client has been closed.
	closed bool
}

// NewClient connects to the bus and returns a client for the GPIO daemon.
//
// The system bus is used unless overridden by options.
func NewClient(options ...ClientOption) (*Client, error) {
	co := ClientOptions{}
	for _, option := range options {
		option.applyClientOption(&co)
	}
	conn, err := dial(co)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBusUnavailable, err)
	}
	return newClient(ConnBus{conn}, co), nil
}

// NewClientFromBus returns a client for the GPIO daemon using an existing bus.
//
// The client takes ownership of the bus and closes it when the client is
// closed.
func NewClientFromBus(bus Bus, options ...ClientOption) *Client {
	co := ClientOptions{}
	for _, option := range options {
		option.applyClientOption(&co)
	}
	return newClient(bus, co)
}

func newClient(bus Bus, co ClientOptions) *Client {
	return &Client{
		bus:      bus,
		options:  co,
		watchers: map[*ChipWatcher]struct{}{},
	}
}

func dial(co ClientOptions) (*dbus.Conn, error) {
	switch {
	case len(co.address) > 0:
		return dbus.Connect(co.address)
	case co.sessionBus:
		return dbus.ConnectSessionBus()
	default:
		return dbus.ConnectSystemBus()
	}
}

// Close releases the client, any watchers it has created and the underlying
// bus connection.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.closed = true
	ww := c.watchers
	c.watchers = nil
	c.mu.Unlock()
	for w := range ww {
		w.close()
	}
	return c.bus.Close()
}

func (c *Client) checkOpen() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	return nil
}

func (c *Client) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.options.timeout > 0 {
		return context.WithTimeout(ctx, c.options.timeout)
	}
	return context.WithCancel(ctx)
}

// ManagedObjects returns all objects currently managed by the daemon.
func (c *Client) ManagedObjects(ctx context.Context) (ManagedObjects, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	ctx, cancel := c.callContext(ctx)
	defer cancel()
	var mo map[dbus.ObjectPath]map[string]map[string]dbus.Variant
	err := c.bus.Object(ServiceName, RootPath).
		CallWithContext(ctx, objectManagerInterface+".GetManagedObjects", 0).
		Store(&mo)
	if err != nil {
		return nil, daemonError(err)
	}
	return ManagedObjects(mo), nil
}

// Chips returns the paths of all chips currently managed by the daemon.
func (c *Client) Chips(ctx context.Context) ([]dbus.ObjectPath, error) {
	mo, err := c.ManagedObjects(ctx)
	if err != nil {
		return nil, err
	}
	pp := make([]dbus.ObjectPath, 0, len(mo))
	for path := range mo {
		pp = append(pp, path)
	}
	sort.Slice(pp, func(i, j int) bool { return pp[i] < pp[j] })
	return pp, nil
}

// Chip returns a proxy to the chip at path.
//
// No remote call is made until a property is read.
func (c *Client) Chip(path dbus.ObjectPath) *Chip {
	return &Chip{
		c:    c,
		path: path,
		obj:  c.bus.Object(ServiceName, path),
	}
}

// ChipInfos reads the info of every chip currently managed by the daemon.
//
// The properties of each chip are read from the chip itself after the
// enumeration, so this costs one round trip for the enumeration plus one per
// property per chip.
func (c *Client) ChipInfos(ctx context.Context) ([]ChipInfo, error) {
	pp, err := c.Chips(ctx)
	if err != nil {
		return nil, err
	}
	ii := make([]ChipInfo, 0, len(pp))
	for _, path := range pp {
		info, err := c.Chip(path).Info(ctx)
		if err != nil {
			if c.options.skipVanished && errors.Is(err, ErrChipNotFound) {
				continue
			}
			return nil, err
		}
		ii = append(ii, info)
	}
	return ii, nil
}

// Snapshot returns the info of every chip using only the properties included
// in the enumeration, in a single round trip.
//
// Objects that do not implement the chip interface are ignored.
func (c *Client) Snapshot(ctx context.Context) ([]ChipInfo, error) {
	mo, err := c.ManagedObjects(ctx)
	if err != nil {
		return nil, err
	}
	ii := make([]ChipInfo, 0, len(mo))
	for path, ifaces := range mo {
		props, ok := ifaces[ChipInterface]
		if !ok {
			continue
		}
		info, err := chipInfoFromProperties(path, props)
		if err != nil {
			return nil, err
		}
		ii = append(ii, info)
	}
	sort.Slice(ii, func(i, j int) bool { return ii[i].Path < ii[j].Path })
	return ii, nil
}

// Detect writes a line describing each chip currently managed by the daemon
// to w, in the form "Name [Label] (NumLines lines)".
//
// The chips are reported in the order returned by the daemon.
// Each chip is read fresh after the enumeration and the first failure aborts
// the report, unless the client was created WithSkipVanished, in which case
// chips that disappear after the enumeration are omitted.
func (c *Client) Detect(ctx context.Context, w io.Writer) error {
	mo, err := c.ManagedObjects(ctx)
	if err != nil {
		return err
	}
	for path := range mo {
		info, err := c.Chip(path).Info(ctx)
		if err != nil {
			if c.options.skipVanished && errors.Is(err, ErrChipNotFound) {
				continue
			}
			return err
		}
		if _, err = fmt.Fprintln(w, info); err != nil {
			return err
		}
	}
	return nil
}

// Chip is a proxy for a single chip object on the daemon.
//
// Properties are read from the daemon on each call and are never cached.
type Chip struct {
	c    *Client
	path dbus.ObjectPath
	obj  Object
}

// Path returns the object path of the chip.
func (ch *Chip) Path() dbus.ObjectPath {
	return ch.path
}

// Name reads the system name of the chip.
func (ch *Chip) Name(ctx context.Context) (string, error) {
	v, err := ch.property(ctx, "Name")
	if err != nil {
		return "", err
	}
	return stringValue("Name", v)
}

// Label reads the label of the chip.
func (ch *Chip) Label(ctx context.Context) (string, error) {
	v, err := ch.property(ctx, "Label")
	if err != nil {
		return "", err
	}
	return stringValue("Label", v)
}

// NumLines reads the number of lines on the chip.
func (ch *Chip) NumLines(ctx context.Context) (int, error) {
	v, err := ch.property(ctx, "NumLines")
	if err != nil {
		return 0, err
	}
	return numLinesValue(v)
}

// Info reads the name, label and number of lines of the chip.
func (ch *Chip) Info(ctx context.Context) (info ChipInfo, err error) {
	info.Path = ch.path
	if info.Name, err = ch.Name(ctx); err != nil {
		return
	}
	if info.Label, err = ch.Label(ctx); err != nil {
		return
	}
	info.NumLines, err = ch.NumLines(ctx)
	return
}

func (ch *Chip) property(ctx context.Context, name string) (v dbus.Variant, err error) {
	if err = ch.c.checkOpen(); err != nil {
		return
	}
	ctx, cancel := ch.c.callContext(ctx)
	defer cancel()
	err = ch.obj.CallWithContext(ctx, propertiesInterface+".Get", 0, ChipInterface, name).
		Store(&v)
	if err != nil {
		err = fmt.Errorf("%s %s: %w", ch.path, name, remoteError(err))
	}
	return
}

func chipInfoFromProperties(path dbus.ObjectPath, props map[string]dbus.Variant) (info ChipInfo, err error) {
	info.Path = path
	for _, name := range []string{"Name", "Label", "NumLines"} {
		if _, ok := props[name]; !ok {
			err = ErrMissingProperty{Path: path, Name: name}
			return
		}
	}
	if info.Name, err = stringValue("Name", props["Name"]); err != nil {
		return
	}
	if info.Label, err = stringValue("Label", props["Label"]); err != nil {
		return
	}
	info.NumLines, err = numLinesValue(props["NumLines"])
	return
}

func stringValue(name string, v dbus.Variant) (string, error) {
	s, ok := v.Value().(string)
	if !ok {
		return "", ErrPropertyType{Name: name, Value: v}
	}
	return s, nil
}

func numLinesValue(v dbus.Variant) (int, error) {
	var n int64
	switch x := v.Value().(type) {
	case uint32:
		n = int64(x)
	case int32:
		n = int64(x)
	case uint64:
		n = int64(x)
	case int64:
		n = x
	case uint16:
		n = int64(x)
	case int16:
		n = int64(x)
	case byte:
		n = int64(x)
	default:
		return 0, ErrPropertyType{Name: "NumLines", Value: v}
	}
	if n < 0 {
		return 0, ErrInvalidNumLines{Value: n}
	}
	return int(n), nil
}

var (
	// ErrClosed indicates the client or watcher has already been closed.
	ErrClosed = errors.New("already closed")

	// ErrBusUnavailable indicates the message bus could not be reached.
	ErrBusUnavailable = errors.New("bus unavailable")

	// ErrDaemonNotFound indicates the GPIO daemon is not registered on the bus.
	ErrDaemonNotFound = errors.New("GPIO daemon not found")

	// ErrChipNotFound indicates the chip object no longer exists on the daemon.
	ErrChipNotFound = errors.New("chip not found")
)

// ErrPropertyType indicates a property had an unexpected type.
type ErrPropertyType struct {
	// The name of the property.
	Name string

	// The value read.
	Value dbus.Variant
}

func (e ErrPropertyType) Error() string {
	return fmt.Sprintf("property %s has unexpected type %s", e.Name, e.Value.Signature())
}

// ErrMissingProperty indicates a chip property was not included in the
// enumeration.
type ErrMissingProperty struct {
	Path dbus.ObjectPath
	Name string
}

func (e ErrMissingProperty) Error() string {
	return fmt.Sprintf("%s: missing property %s", e.Path, e.Name)
}

// ErrInvalidNumLines indicates the daemon reported a negative number of lines.
type ErrInvalidNumLines struct {
	Value int64
}

func (e ErrInvalidNumLines) Error() string {
	return fmt.Sprintf("invalid number of lines: %d", e.Value)
}

// daemonError maps the D-Bus errors indicating the daemon is absent onto
// ErrDaemonNotFound.
func daemonError(err error) error {
	switch errorName(err) {
	case "org.freedesktop.DBus.Error.ServiceUnknown",
		"org.freedesktop.DBus.Error.NameHasNoOwner":
		return fmt.Errorf("%w: %w", ErrDaemonNotFound, err)
	}
	return err
}

// remoteError maps the well known D-Bus errors for a chip object onto the
// package errors.
func remoteError(err error) error {
	switch errorName(err) {
	case "org.freedesktop.DBus.Error.UnknownObject",
		"org.freedesktop.DBus.Error.UnknownInterface",
		"org.freedesktop.DBus.Error.UnknownMethod",
		"org.freedesktop.DBus.Error.UnknownProperty":
		return fmt.Errorf("%w: %w", ErrChipNotFound, err)
	}
	return daemonError(err)
}

func errorName(err error) string {
	var de dbus.Error
	if errors.As(err, &de) {
		return de.Name
	}
	var pde *dbus.Error
	if errors.As(err, &pde) && pde != nil {
		return pde.Name
	}
	return ""
}
