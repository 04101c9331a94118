// SPDX-FileCopyrightText: 2019 Kent Gibson <warthog618@gmail.com>
//
// SPDX-License-Identifier: MIT

package gpiodbus

import (
	"errors"
	"sync"

	"github.com/godbus/dbus/v5"
)

const (
	interfacesAdded   = "InterfacesAdded"
	interfacesRemoved = "InterfacesRemoved"
)

// ErrSignalsNotSupported indicates the bus used by the client cannot deliver
// signals.
var ErrSignalsNotSupported = errors.New("bus does not support signals")

// ChipChangeType indicates the type of change to the set of chips.
type ChipChangeType int

const (
	_ ChipChangeType = iota

	// ChipAdded indicates a chip has been added to the daemon.
	ChipAdded

	// ChipRemoved indicates a chip has been removed from the daemon.
	ChipRemoved
)

func (t ChipChangeType) String() string {
	switch t {
	case ChipAdded:
		return "added"
	case ChipRemoved:
		return "removed"
	}
	return "unknown"
}

// ChipChangeEvent represents a change to the set of chips managed by the
// daemon.
type ChipChangeEvent struct {
	// The type of change.
	Type ChipChangeType

	// The path of the chip object.
	Path dbus.ObjectPath

	// The chip info for an added chip, as announced by the daemon.
	//
	// Nil for removed chips or if the announcement was incomplete.
	Info *ChipInfo
}

// ChipChangeHandler is a receiver for chip change events.
type ChipChangeHandler func(ChipChangeEvent)

// ChipWatcher delivers chip change events to a handler until closed.
type ChipWatcher struct {
	c  *Client
	sb SignalBus

	// the handler for detected events
	ch ChipChangeHandler

	// channel signals are delivered on by the bus
	sigCh chan *dbus.Signal

	// closed to signal the watcher to shutdown
	donech chan struct{}

	// closed once watcher exits
	doneCh chan struct{}

	closeOnce sync.Once
}

func matchOptions(member string) []dbus.MatchOption {
	return []dbus.MatchOption{
		dbus.WithMatchSender(ServiceName),
		dbus.WithMatchObjectPath(RootPath),
		dbus.WithMatchInterface(objectManagerInterface),
		dbus.WithMatchMember(member),
	}
}

// WatchChips starts watching the daemon for chips being added or removed.
//
// The handler is called from a goroutine owned by the watcher, and so must
// not block for long.
// The watcher is closed when the client is closed, or can be closed
// independently.
func (c *Client) WatchChips(ch ChipChangeHandler) (*ChipWatcher, error) {
	sb, ok := c.bus.(SignalBus)
	if !ok {
		return nil, ErrSignalsNotSupported
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClosed
	}
	w, err := newChipWatcher(c, sb, ch)
	if err != nil {
		return nil, err
	}
	c.watchers[w] = struct{}{}
	return w, nil
}

func newChipWatcher(c *Client, sb SignalBus, ch ChipChangeHandler) (w *ChipWatcher, err error) {
	if err = sb.AddMatchSignal(matchOptions(interfacesAdded)...); err != nil {
		return
	}
	if err = sb.AddMatchSignal(matchOptions(interfacesRemoved)...); err != nil {
		sb.RemoveMatchSignal(matchOptions(interfacesAdded)...)
		return
	}
	w = &ChipWatcher{
		c:      c,
		sb:     sb,
		ch:     ch,
		sigCh:  make(chan *dbus.Signal, 16),
		donech: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
	sb.Signal(w.sigCh)
	go w.watch()
	return
}

// Close stops the watcher.
//
// No events are delivered after Close returns.
func (w *ChipWatcher) Close() error {
	w.c.mu.Lock()
	if _, ok := w.c.watchers[w]; !ok {
		w.c.mu.Unlock()
		return ErrClosed
	}
	delete(w.c.watchers, w)
	w.c.mu.Unlock()
	w.close()
	return nil
}

func (w *ChipWatcher) close() {
	w.closeOnce.Do(func() {
		w.sb.RemoveSignal(w.sigCh)
		w.sb.RemoveMatchSignal(matchOptions(interfacesAdded)...)
		w.sb.RemoveMatchSignal(matchOptions(interfacesRemoved)...)
		close(w.donech)
		<-w.doneCh
	})
}

func (w *ChipWatcher) watch() {
	defer close(w.doneCh)
	for {
		select {
		case <-w.donech:
			return
		case sig := <-w.sigCh:
			if evt, ok := chipChangeEvent(sig); ok {
				w.ch(evt)
			}
		}
	}
}

func chipChangeEvent(sig *dbus.Signal) (evt ChipChangeEvent, ok bool) {
	if sig == nil || sig.Path != RootPath || len(sig.Body) < 2 {
		return
	}
	evt.Path, ok = sig.Body[0].(dbus.ObjectPath)
	if !ok {
		return
	}
	ok = false
	switch sig.Name {
	case objectManagerInterface + "." + interfacesAdded:
		ifaces, isMap := sig.Body[1].(map[string]map[string]dbus.Variant)
		if !isMap {
			return
		}
		props, hasChip := ifaces[ChipInterface]
		if !hasChip {
			return
		}
		evt.Type = ChipAdded
		if info, err := chipInfoFromProperties(evt.Path, props); err == nil {
			evt.Info = &info
		}
		ok = true
	case objectManagerInterface + "." + interfacesRemoved:
		ifaces, isSlice := sig.Body[1].([]string)
		if !isSlice {
			return
		}
		for _, iface := range ifaces {
			if iface == ChipInterface {
				evt.Type = ChipRemoved
				ok = true
				return
			}
		}
	}
	return
}
