// SPDX-FileCopyrightText: 2019 Kent Gibson <warthog618@gmail.com>
//
// SPDX-License-Identifier: MIT

//go:build linux
// +build linux

package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/godbus/dbus/v5"
	"github.com/spf13/cobra"
	"github.com/warthog618/go-gpiodbus"
)

func init() {
	rootCmd.AddCommand(infoCmd)
}

var infoCmd = &cobra.Command{
	Use:                   "info <chip>...",
	Short:                 "Info about GPIO chips",
	Long:                  `Print the name, label and number of lines of the specified GPIO chip(s), identified by name or object path.`,
	Args:                  cobra.MinimumNArgs(1),
	Run:                   info,
	DisableFlagsInUseLine: true,
}

func info(cmd *cobra.Command, args []string) {
	c, err := newClient()
	if err != nil {
		logErr(cmd, err)
		os.Exit(1)
	}
	rc := 0
	ctx := context.Background()
	for _, arg := range args {
		ci, err := c.Chip(chipPath(arg)).Info(ctx)
		if err != nil {
			logErr(cmd, err)
			rc = 1
			continue
		}
		fmt.Printf("%s: %s\n", ci.Path, ci)
	}
	c.Close()
	os.Exit(rc)
}

func chipPath(arg string) dbus.ObjectPath {
	if strings.HasPrefix(arg, "/") {
		return dbus.ObjectPath(arg)
	}
	return gpiodbus.ChipPath(arg)
}
