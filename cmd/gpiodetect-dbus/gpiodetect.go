// SPDX-FileCopyrightText: 2019 Kent Gibson <warthog618@gmail.com>
//
// SPDX-License-Identifier: MIT

//go:build linux
// +build linux

// A clone of libgpiod gpiodetect that queries the GPIO daemon over D-Bus.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/warthog618/config"
	"github.com/warthog618/config/pflag"
	"github.com/warthog618/go-gpiodbus"
)

var version = "undefined"

func main() {
	loadConfig()
	if err := detect(); err != nil {
		logErr(err)
		os.Exit(1)
	}
}

func detect() error {
	c, err := gpiodbus.NewClient()
	if err != nil {
		return err
	}
	defer c.Close()
	return c.Detect(context.Background(), os.Stdout)
}

func loadConfig() {
	ff := []pflag.Flag{
		{Short: 'h', Name: "help", Options: pflag.IsBool},
		{Short: 'v', Name: "version", Options: pflag.IsBool},
	}
	cfg := config.New(pflag.New(pflag.WithFlags(ff)))
	if v, err := cfg.Get("help"); err == nil && v.Bool() {
		printHelp()
		os.Exit(0)
	}
	if v, err := cfg.Get("version"); err == nil && v.Bool() {
		printVersion()
		os.Exit(0)
	}
}

func logErr(err error) {
	fmt.Fprintln(os.Stderr, "gpiodetect-dbus:", err)
}

func printHelp() {
	fmt.Printf("Usage: %s [OPTIONS]\n", os.Args[0])
	fmt.Println("List all GPIO chips managed by the GPIO daemon, print their labels and number of GPIO lines.")
	fmt.Println("")
	fmt.Println("Options:")
	fmt.Println("  -h, --help:\t\tdisplay this message and exit")
	fmt.Println("  -v, --version:\tdisplay the version and exit")
}

func printVersion() {
	fmt.Printf("%s (gpiodbus) %s\n", os.Args[0], version)
}
