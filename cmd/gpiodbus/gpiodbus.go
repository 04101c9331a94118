// SPDX-FileCopyrightText: 2019 Kent Gibson <warthog618@gmail.com>
//
// SPDX-License-Identifier: MIT

//go:build linux
// +build linux

// A utility to query the GPIO daemon over D-Bus.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/warthog618/go-gpiodbus"
)

var rootCmd = &cobra.Command{
	Use:   "gpiodbus",
	Short: "gpiodbus is a utility to query the GPIO daemon",
	Long:  "gpiodbus is a utility to query the GPIO chips published by the libgpiod daemon on D-Bus",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
	Version: version,
}

var rootOpts = struct {
	Session bool
	Address string
	Timeout time.Duration
}{}

func init() {
	rootCmd.PersistentFlags().BoolVar(&rootOpts.Session, "session", false, "connect to the session bus instead of the system bus")
	rootCmd.PersistentFlags().StringVar(&rootOpts.Address, "address", "", "connect to the bus at the given address")
	rootCmd.PersistentFlags().DurationVarP(&rootOpts.Timeout, "timeout", "t", 0, "limit the duration of each call to the daemon")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func newClient(extra ...gpiodbus.ClientOption) (*gpiodbus.Client, error) {
	opts := []gpiodbus.ClientOption{}
	if rootOpts.Session {
		opts = append(opts, gpiodbus.WithSessionBus())
	}
	if len(rootOpts.Address) > 0 {
		opts = append(opts, gpiodbus.WithBusAddress(rootOpts.Address))
	}
	if rootOpts.Timeout > 0 {
		opts = append(opts, gpiodbus.WithTimeout(rootOpts.Timeout))
	}
	return gpiodbus.NewClient(append(opts, extra...)...)
}

func logErr(cmd *cobra.Command, err error) {
	fmt.Fprintf(os.Stderr, "gpiodbus %s: %s\n", cmd.Name(), err)
}
