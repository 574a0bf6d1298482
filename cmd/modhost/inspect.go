// inspect.go: show discovered modules and their load order without loading
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	modhost "github.com/agilira/go-modhost"
)

func newInspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect [modules-dir...]",
		Short: "Parse manifests and print the dependency-first load order",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cfgFile)
			if err != nil {
				return err
			}
			if len(args) > 0 {
				cfg.ModulesDirs = args
			}
			return inspect(cmd, cfg)
		},
	}
}

func inspect(cmd *cobra.Command, cfg modhost.HostConfig) error {
	source, err := modhost.NewDirectorySource(cfg.DirectorySourceConfig(), nil)
	if err != nil {
		return err
	}
	candidates, err := source.Candidates(cmd.Context())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	var descriptors []*modhost.Descriptor
	for _, c := range candidates {
		d, err := modhost.NewDescriptor(c.Metadata)
		if err != nil {
			fmt.Fprintf(out, "%s %s: %v\n", ErrorStyle.Render("invalid"), c.ManifestPath, err)
			continue
		}
		descriptors = append(descriptors, d)
	}

	var opts []modhost.GraphOption
	if cfg.OrderSoftDependencies {
		opts = append(opts, modhost.WithSoftOrdering())
	}
	order, err := modhost.BuildGraph(descriptors, opts...).TopologicalSort()
	if err != nil {
		if cycle, ok := modhost.CyclePath(err); ok {
			return fmt.Errorf("dependency cycle: %s", strings.Join(cycle, " -> "))
		}
		return err
	}

	printOrder(out, order, descriptors)
	return nil
}

func printOrder(w io.Writer, order []string, descriptors []*modhost.Descriptor) {
	byID := make(map[string]*modhost.Descriptor, len(descriptors))
	for _, d := range descriptors {
		if _, ok := byID[d.ID()]; !ok {
			byID[d.ID()] = d
		}
	}

	fmt.Fprintln(w, HeaderStyle.Render("Load order"))
	for i, id := range order {
		d := byID[id]
		line := fmt.Sprintf("%3d. %s %s", i+1, d.DisplayName(), MutedStyle.Render(d.Version()))
		if deps := d.Dependencies(); len(deps) > 0 {
			line += MutedStyle.Render("  needs " + strings.Join(deps, ", "))
		}
		fmt.Fprintln(w, line)
	}
}
