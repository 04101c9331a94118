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

	"github.com/spf13/cobra"
	"github.com/warthog618/go-gpiodbus"
	"gopkg.in/yaml.v3"
)

func init() {
	detectCmd.Flags().StringVarP(&detectOpts.Format, "format", "f", "text", "output format (text or yaml)")
	detectCmd.Flags().BoolVarP(&detectOpts.SkipVanished, "skip-vanished", "s", false, "skip chips removed while being read")
	rootCmd.AddCommand(detectCmd)
}

var (
	detectCmd = &cobra.Command{
		Use:   "detect",
		Short: "Detect GPIO chips managed by the daemon",
		Long:  `List all GPIO chips managed by the GPIO daemon, print their labels and number of GPIO lines.`,
		Args:  cobra.NoArgs,
		RunE:  detect,
	}
	detectOpts = struct {
		Format       string
		SkipVanished bool
	}{}
)

func detect(cmd *cobra.Command, args []string) error {
	format := strings.ToLower(detectOpts.Format)
	if format != "text" && format != "yaml" {
		return fmt.Errorf("unsupported format: %s", detectOpts.Format)
	}
	opts := []gpiodbus.ClientOption{}
	if detectOpts.SkipVanished {
		opts = append(opts, gpiodbus.WithSkipVanished())
	}
	c, err := newClient(opts...)
	if err != nil {
		return err
	}
	defer c.Close()
	ctx := context.Background()
	if format == "text" {
		return c.Detect(ctx, os.Stdout)
	}
	ii, err := c.ChipInfos(ctx)
	if err != nil {
		return err
	}
	enc := yaml.NewEncoder(os.Stdout)
	defer enc.Close()
	return enc.Encode(ii)
}
