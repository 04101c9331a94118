// SPDX-FileCopyrightText: 2019 Kent Gibson <warthog618@gmail.com>
//
// SPDX-License-Identifier: MIT

package mockup_test

import (
	"context"
	"errors"
	"testing"

	"github.com/godbus/dbus/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warthog618/go-gpiodbus"
	"github.com/warthog618/go-gpiodbus/mockup"
)

func callError(t *testing.T, err error) string {
	t.Helper()
	var de dbus.Error
	require.True(t, errors.As(err, &de), err)
	return de.Name
}

func TestNew(t *testing.T) {
	m := mockup.New([]int{4, 8})
	assert.Equal(t, []string{"gpiochip0", "gpiochip1"}, m.Chips())

	c, err := m.Chip("gpiochip1")
	assert.Nil(t, err)
	require.NotNil(t, c)
	assert.Equal(t, "gpio-mockup-B", c.Label)
	assert.Equal(t, 8, c.Lines)
	assert.Equal(t, dbus.ObjectPath("/org/gpiod/gpiochip1"), c.Path())

	c, err = m.Chip("gpiochip2")
	assert.Equal(t, mockup.ErrorUnknownChip{Name: "gpiochip2"}, err)
	assert.Nil(t, c)

	m = mockup.New(nil)
	assert.Empty(t, m.Chips())
}

func TestGetManagedObjects(t *testing.T) {
	ctx := context.Background()
	m := mockup.New([]int{4})
	call := m.Object(gpiodbus.ServiceName, gpiodbus.RootPath).
		CallWithContext(ctx, "org.freedesktop.DBus.ObjectManager.GetManagedObjects", 0)
	require.Nil(t, call.Err)
	var mo map[dbus.ObjectPath]map[string]map[string]dbus.Variant
	err := call.Store(&mo)
	require.Nil(t, err)
	require.Contains(t, mo, dbus.ObjectPath("/org/gpiod/gpiochip0"))
	props := mo["/org/gpiod/gpiochip0"][gpiodbus.ChipInterface]
	assert.Equal(t, "gpio-mockup-A", props["Label"].Value())
	assert.Equal(t, 1, m.Calls())

	// wrong method
	call = m.Object(gpiodbus.ServiceName, gpiodbus.RootPath).
		CallWithContext(ctx, "org.freedesktop.DBus.Properties.Get", 0)
	assert.Equal(t, mockup.ErrNameUnknownMethod, callError(t, call.Err))

	// wrong service
	call = m.Object("org.other", gpiodbus.RootPath).
		CallWithContext(ctx, "org.freedesktop.DBus.ObjectManager.GetManagedObjects", 0)
	assert.Equal(t, mockup.ErrNameServiceUnknown, callError(t, call.Err))

	// unreachable
	m.SetUnreachable(true)
	call = m.Object(gpiodbus.ServiceName, gpiodbus.RootPath).
		CallWithContext(ctx, "org.freedesktop.DBus.ObjectManager.GetManagedObjects", 0)
	assert.Equal(t, mockup.ErrNameServiceUnknown, callError(t, call.Err))

	// closed
	m.Close()
	call = m.Object(gpiodbus.ServiceName, gpiodbus.RootPath).
		CallWithContext(ctx, "org.freedesktop.DBus.ObjectManager.GetManagedObjects", 0)
	assert.Equal(t, dbus.ErrClosed, call.Err)
}

func TestPropertiesGet(t *testing.T) {
	ctx := context.Background()
	m := mockup.New([]int{4})
	obj := m.Object(gpiodbus.ServiceName, gpiodbus.ChipPath("gpiochip0"))
	call := obj.CallWithContext(ctx, "org.freedesktop.DBus.Properties.Get", 0,
		gpiodbus.ChipInterface, "NumLines")
	require.Nil(t, call.Err)
	var v dbus.Variant
	err := call.Store(&v)
	require.Nil(t, err)
	assert.Equal(t, uint32(4), v.Value())

	call = obj.CallWithContext(ctx, "org.freedesktop.DBus.Properties.Get", 0,
		"org.gpiod.Line", "NumLines")
	assert.Equal(t, mockup.ErrNameUnknownInterface, callError(t, call.Err))

	call = obj.CallWithContext(ctx, "org.freedesktop.DBus.Properties.Get", 0,
		gpiodbus.ChipInterface, "Lines")
	assert.Equal(t, mockup.ErrNameUnknownProperty, callError(t, call.Err))

	call = obj.CallWithContext(ctx, "org.freedesktop.DBus.Properties.Get", 0)
	assert.Equal(t, mockup.ErrNameInvalidArgs, callError(t, call.Err))

	call = obj.CallWithContext(ctx, "org.freedesktop.DBus.Properties.Set", 0)
	assert.Equal(t, mockup.ErrNameUnknownMethod, callError(t, call.Err))

	err = m.Vanish("gpiochip0")
	require.Nil(t, err)
	call = obj.CallWithContext(ctx, "org.freedesktop.DBus.Properties.Get", 0,
		gpiodbus.ChipInterface, "NumLines")
	assert.Equal(t, mockup.ErrNameUnknownObject, callError(t, call.Err))

	err = m.Vanish("gpiochip1")
	assert.Equal(t, mockup.ErrorUnknownChip{Name: "gpiochip1"}, err)

	ctx, cancel := context.WithCancel(ctx)
	cancel()
	call = obj.CallWithContext(ctx, "org.freedesktop.DBus.Properties.Get", 0,
		gpiodbus.ChipInterface, "NumLines")
	assert.Equal(t, context.Canceled, call.Err)
}

func TestSignals(t *testing.T) {
	m := mockup.New(nil)
	ch := make(chan *dbus.Signal, 2)
	m.Signal(ch)

	// no matches, so nothing delivered
	m.AddChip(mockup.Chip{Name: "gpiochip0", Label: "a", Lines: 4})
	assert.Len(t, ch, 0)

	err := m.AddMatchSignal()
	require.Nil(t, err)
	m.AddChip(mockup.Chip{Name: "gpiochip1", Label: "b", Lines: 4})
	require.Len(t, ch, 1)
	sig := <-ch
	assert.Equal(t, "org.freedesktop.DBus.ObjectManager.InterfacesAdded", sig.Name)
	assert.Equal(t, gpiodbus.RootPath, sig.Path)
	assert.Equal(t, gpiodbus.ChipPath("gpiochip1"), sig.Body[0])

	err = m.RemoveChip("gpiochip0")
	require.Nil(t, err)
	require.Len(t, ch, 1)
	sig = <-ch
	assert.Equal(t, "org.freedesktop.DBus.ObjectManager.InterfacesRemoved", sig.Name)
	assert.Equal(t, []string{gpiodbus.ChipInterface}, sig.Body[1])

	err = m.RemoveChip("gpiochip0")
	assert.Equal(t, mockup.ErrorUnknownChip{Name: "gpiochip0"}, err)

	m.RemoveSignal(ch)
	m.AddChip(mockup.Chip{Name: "gpiochip2", Label: "c", Lines: 4})
	assert.Len(t, ch, 0)

	err = m.RemoveMatchSignal()
	assert.Nil(t, err)
	assert.Zero(t, m.Matches())
}
