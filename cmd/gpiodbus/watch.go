// SPDX-FileCopyrightText: 2019 Kent Gibson <warthog618@gmail.com>
//
// SPDX-License-Identifier: MIT

//go:build linux
// +build linux

package main

import (
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"
	"github.com/warthog618/go-gpiodbus"
	"golang.org/x/sys/unix"
)

func init() {
	watchCmd.Flags().UintVarP(&watchOpts.NumEvents, "num-events", "n", 0, "exit after n events")
	rootCmd.AddCommand(watchCmd)
}

var (
	watchCmd = &cobra.Command{
		Use:   "watch",
		Short: "Watch for GPIO chips being added or removed",
		Long:  `Wait for GPIO chips to be added to or removed from the daemon and print the changes to standard output.`,
		Args:  cobra.NoArgs,
		RunE:  watch,
	}
	watchOpts = struct {
		NumEvents uint
	}{}
)

func watch(cmd *cobra.Command, args []string) error {
	c, err := newClient()
	if err != nil {
		return err
	}
	defer c.Close()
	evtchan := make(chan gpiodbus.ChipChangeEvent)
	done := make(chan struct{})
	w, err := c.WatchChips(func(evt gpiodbus.ChipChangeEvent) {
		select {
		case evtchan <- evt:
		case <-done:
		}
	})
	if err != nil {
		return fmt.Errorf("error watching chips: %w", err)
	}
	defer w.Close()
	defer close(done)
	watchWait(evtchan)
	return nil
}

func watchWait(evtchan <-chan gpiodbus.ChipChangeEvent) {
	sigdone := make(chan os.Signal, 1)
	signal.Notify(sigdone, unix.SIGINT, unix.SIGTERM)
	defer signal.Stop(sigdone)
	count := uint(0)
	for {
		select {
		case evt := <-evtchan:
			t := time.Now().Format(time.RFC3339Nano)
			if evt.Info != nil {
				fmt.Printf("%-7s %s %s (%s)\n", evt.Type, evt.Path, t, evt.Info)
			} else {
				fmt.Printf("%-7s %s %s\n", evt.Type, evt.Path, t)
			}
			count++
			if watchOpts.NumEvents > 0 && count >= watchOpts.NumEvents {
				return
			}
		case <-sigdone:
			return
		}
	}
}
