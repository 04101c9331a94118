// SPDX-FileCopyrightText: 2019 Kent Gibson <warthog618@gmail.com>
//
// SPDX-License-Identifier: MIT

// Package mockup provides an in-memory mock of the GPIO daemon.
//
// This is intended for testing of gpiodbus, but could also be used for
// testing by users of their own code that uses gpiodbus.
package mockup

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/godbus/dbus/v5"
	"github.com/warthog618/go-gpiodbus"
)

// D-Bus error names returned by the mock.
const (
	ErrNameServiceUnknown   = "org.freedesktop.DBus.Error.ServiceUnknown"
	ErrNameUnknownObject    = "org.freedesktop.DBus.Error.UnknownObject"
	ErrNameUnknownInterface = "org.freedesktop.DBus.Error.UnknownInterface"
	ErrNameUnknownMethod    = "org.freedesktop.DBus.Error.UnknownMethod"
	ErrNameUnknownProperty  = "org.freedesktop.DBus.Error.UnknownProperty"
	ErrNameInvalidArgs      = "org.freedesktop.DBus.Error.InvalidArgs"
)

// Mockup represents a GPIO daemon managing a number of mocked chips.
type Mockup struct {
	mu sync.Mutex

	// chips keyed by object path.
	cc map[dbus.ObjectPath]*Chip

	// paths of chips that are still enumerated but can no longer be read.
	vanished map[dbus.ObjectPath]bool

	// the daemon is not registered on the bus.
	unreachable bool

	// channels receiving signals.
	sigChs []chan<- *dbus.Signal

	// number of active signal matches.
	matches int

	// number of remote calls made.
	calls int

	closed bool
}

// Chip represents a single mocked GPIO chip.
type Chip struct {
	Name  string
	Label string
	Lines int
}

// Path returns the object path of the chip on the daemon.
func (c Chip) Path() dbus.ObjectPath {
	return gpiodbus.ChipPath(c.Name)
}

// New creates a new Mockup.
// A number of GPIO chips can be mocked, with the number of lines on each
// specified in lines. e.g. []int{4,6} would create two chips, gpiochip0 with
// 4 lines and gpiochip1 with 6.
func New(lines []int) *Mockup {
	m := &Mockup{
		cc:       map[dbus.ObjectPath]*Chip{},
		vanished: map[dbus.ObjectPath]bool{},
	}
	for i, l := range lines {
		c := Chip{
			Name:  fmt.Sprintf("gpiochip%d", i),
			Label: fmt.Sprintf("gpio-mockup-%c", 'A'+i),
			Lines: l,
		}
		m.cc[c.Path()] = &c
	}
	return m
}

// Chip returns the mocked chip with the given name.
func (m *Mockup) Chip(name string) (*Chip, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.cc[gpiodbus.ChipPath(name)]
	if !ok {
		return nil, ErrorUnknownChip{name}
	}
	cc := *c
	return &cc, nil
}

// Chips returns the names of the mocked chips.
func (m *Mockup) Chips() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	nn := make([]string, 0, len(m.cc))
	for _, c := range m.cc {
		nn = append(nn, c.Name)
	}
	sort.Strings(nn)
	return nn
}

// AddChip adds a chip to the daemon, announcing it to any watchers.
func (m *Mockup) AddChip(c Chip) {
	m.mu.Lock()
	cc := c
	m.cc[c.Path()] = &cc
	delete(m.vanished, c.Path())
	sig := &dbus.Signal{
		Sender: ServiceOwner,
		Path:   gpiodbus.RootPath,
		Name:   "org.freedesktop.DBus.ObjectManager.InterfacesAdded",
		Body: []interface{}{
			c.Path(),
			map[string]map[string]dbus.Variant{
				gpiodbus.ChipInterface: c.properties(),
			},
		},
	}
	m.mu.Unlock()
	m.emit(sig)
}

// RemoveChip removes a chip from the daemon, announcing the removal to any
// watchers.
func (m *Mockup) RemoveChip(name string) error {
	path := gpiodbus.ChipPath(name)
	m.mu.Lock()
	if _, ok := m.cc[path]; !ok {
		m.mu.Unlock()
		return ErrorUnknownChip{name}
	}
	delete(m.cc, path)
	delete(m.vanished, path)
	sig := &dbus.Signal{
		Sender: ServiceOwner,
		Path:   gpiodbus.RootPath,
		Name:   "org.freedesktop.DBus.ObjectManager.InterfacesRemoved",
		Body:   []interface{}{path, []string{gpiodbus.ChipInterface}},
	}
	m.mu.Unlock()
	m.emit(sig)
	return nil
}

// Vanish leaves the chip in the enumeration, but makes reads of the chip
// object fail as if the chip were removed immediately after being enumerated.
func (m *Mockup) Vanish(name string) error {
	path := gpiodbus.ChipPath(name)
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.cc[path]; !ok {
		return ErrorUnknownChip{name}
	}
	m.vanished[path] = true
	return nil
}

// SetUnreachable sets whether the daemon is absent from the bus.
func (m *Mockup) SetUnreachable(unreachable bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unreachable = unreachable
}

// Calls returns the number of remote calls made to the daemon.
func (m *Mockup) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Matches returns the number of signal matches currently registered.
func (m *Mockup) Matches() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.matches
}

// Closed returns true if the bus has been closed.
func (m *Mockup) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// ServiceOwner is the unique bus name of the mocked daemon.
const ServiceOwner = ":1.42"

// Object returns a proxy for the object at path owned by dest.
func (m *Mockup) Object(dest string, path dbus.ObjectPath) gpiodbus.Object {
	return &object{m: m, dest: dest, path: path}
}

// Close releases the bus.
func (m *Mockup) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.sigChs = nil
	return nil
}

// AddMatchSignal registers interest in a set of signals.
func (m *Mockup) AddMatchSignal(options ...dbus.MatchOption) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return dbus.ErrClosed
	}
	m.matches++
	return nil
}

// RemoveMatchSignal removes interest in a set of signals.
func (m *Mockup) RemoveMatchSignal(options ...dbus.MatchOption) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.matches > 0 {
		m.matches--
	}
	return nil
}

// Signal registers ch to receive signals.
func (m *Mockup) Signal(ch chan<- *dbus.Signal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sigChs = append(m.sigChs, ch)
}

// RemoveSignal unregisters ch.
func (m *Mockup) RemoveSignal(ch chan<- *dbus.Signal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, c := range m.sigChs {
		if c == ch {
			m.sigChs = append(m.sigChs[:i], m.sigChs[i+1:]...)
			return
		}
	}
}

func (m *Mockup) emit(sig *dbus.Signal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.matches == 0 {
		return
	}
	for _, ch := range m.sigChs {
		select {
		case ch <- sig:
		default:
		}
	}
}

func (c Chip) properties() map[string]dbus.Variant {
	return map[string]dbus.Variant{
		"Name":     dbus.MakeVariant(c.Name),
		"Label":    dbus.MakeVariant(c.Label),
		"NumLines": dbus.MakeVariant(uint32(c.Lines)),
	}
}

type object struct {
	m    *Mockup
	dest string
	path dbus.ObjectPath
}

func (o *object) CallWithContext(ctx context.Context, method string, flags dbus.Flags, args ...interface{}) *dbus.Call {
	call := &dbus.Call{
		Destination: o.dest,
		Path:        o.path,
		Method:      method,
		Args:        args,
	}
	if err := ctx.Err(); err != nil {
		call.Err = err
		return call
	}
	call.Body, call.Err = o.m.call(o.dest, o.path, method, args)
	return call
}

func (m *Mockup) call(dest string, path dbus.ObjectPath, method string, args []interface{}) ([]interface{}, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, dbus.ErrClosed
	}
	m.calls++
	if m.unreachable || dest != gpiodbus.ServiceName {
		return nil, newError(ErrNameServiceUnknown,
			"The name %s was not provided by any .service files", dest)
	}
	if path == gpiodbus.RootPath {
		if method != "org.freedesktop.DBus.ObjectManager.GetManagedObjects" {
			return nil, newError(ErrNameUnknownMethod, "No such method %s", method)
		}
		mo := map[dbus.ObjectPath]map[string]map[string]dbus.Variant{}
		for p, c := range m.cc {
			mo[p] = map[string]map[string]dbus.Variant{
				gpiodbus.ChipInterface: c.properties(),
			}
		}
		return []interface{}{mo}, nil
	}
	c, ok := m.cc[path]
	if !ok || m.vanished[path] {
		return nil, newError(ErrNameUnknownObject, "No such object path '%s'", path)
	}
	if method != "org.freedesktop.DBus.Properties.Get" {
		return nil, newError(ErrNameUnknownMethod, "No such method %s", method)
	}
	if len(args) != 2 {
		return nil, newError(ErrNameInvalidArgs, "Expected interface and property names")
	}
	iface, _ := args[0].(string)
	name, _ := args[1].(string)
	if iface != gpiodbus.ChipInterface {
		return nil, newError(ErrNameUnknownInterface, "No such interface '%s'", iface)
	}
	v, ok := c.properties()[name]
	if !ok {
		return nil, newError(ErrNameUnknownProperty, "No such property '%s'", name)
	}
	return []interface{}{v}, nil
}

func newError(name, format string, args ...interface{}) dbus.Error {
	return dbus.Error{
		Name: name,
		Body: []interface{}{fmt.Sprintf(format, args...)},
	}
}

// ErrorUnknownChip indicates the requested chip is not mocked.
type ErrorUnknownChip struct {
	Name string
}

func (e ErrorUnknownChip) Error() string {
	return fmt.Sprintf("unknown chip %s", e.Name)
}
