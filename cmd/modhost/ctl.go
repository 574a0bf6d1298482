// ctl.go: control a running host over its admin endpoint
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package main

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	modhost "github.com/agilira/go-modhost"
)

var (
	adminAddress string
	ctlTimeout   time.Duration
)

func newCtlCmd() *cobra.Command {
	ctl := &cobra.Command{
		Use:   "ctl",
		Short: "Manage modules of a running host",
	}
	ctl.PersistentFlags().StringVar(&adminAddress, "admin", "", "admin endpoint (defaults to admin.address from config)")
	ctl.PersistentFlags().DurationVar(&ctlTimeout, "timeout", 30*time.Second, "request timeout")

	ctl.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List loaded modules",
		Args:  cobra.NoArgs,
		RunE: withClient(func(ctx context.Context, cmd *cobra.Command, c *modhost.AdminClient, _ []string) error {
			modules, err := c.List(ctx)
			if err != nil {
				return err
			}
			printModules(cmd.OutOrStdout(), modules)
			return nil
		}),
	})

	ctl.AddCommand(&cobra.Command{
		Use:   "info <module>",
		Short: "Show one module",
		Args:  cobra.ExactArgs(1),
		RunE: withClient(func(ctx context.Context, cmd *cobra.Command, c *modhost.AdminClient, args []string) error {
			m, err := c.Get(ctx, args[0])
			if err != nil {
				return err
			}
			printModule(cmd.OutOrStdout(), m)
			return nil
		}),
	})

	for _, op := range []string{"enable", "disable", "reload", "unload"} {
		ctl.AddCommand(&cobra.Command{
			Use:   op + " <module>",
			Short: strings.ToUpper(op[:1]) + op[1:] + " a module",
			Args:  cobra.ExactArgs(1),
			RunE: withClient(func(ctx context.Context, cmd *cobra.Command, c *modhost.AdminClient, args []string) error {
				state, err := c.Do(ctx, op, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s is now %s\n", args[0], stateStyle(state).Render(state))
				return nil
			}),
		})
	}

	ctl.AddCommand(&cobra.Command{
		Use:   "load-all",
		Short: "Run a load pass over the host's modules directories",
		Args:  cobra.NoArgs,
		RunE: withClient(func(ctx context.Context, cmd *cobra.Command, c *modhost.AdminClient, _ []string) error {
			loaded, failed, err := c.LoadAll(ctx)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s %s\n", SuccessStyle.Render("loaded"), strings.Join(loaded, ", "))
			ids := make([]string, 0, len(failed))
			for id := range failed {
				ids = append(ids, id)
			}
			sort.Strings(ids)
			for _, id := range ids {
				fmt.Fprintf(out, "%s %s: %s\n", ErrorStyle.Render("failed"), id, failed[id])
			}
			return nil
		}),
	})

	bulk := map[string]func(*modhost.AdminClient, context.Context) (int, int, error){
		"enable-all":  (*modhost.AdminClient).EnableAll,
		"disable-all": (*modhost.AdminClient).DisableAll,
	}
	for _, use := range []string{"enable-all", "disable-all"} {
		call := bulk[use]
		ctl.AddCommand(&cobra.Command{
			Use:   use,
			Short: strings.Replace(strings.ToUpper(use[:1])+use[1:], "-all", " every module", 1),
			Args:  cobra.NoArgs,
			RunE: withClient(func(ctx context.Context, cmd *cobra.Command, c *modhost.AdminClient, _ []string) error {
				ok, failed, err := call(c, ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%d succeeded, %d failed\n", ok, failed)
				if failed > 0 {
					return fmt.Errorf("%d modules failed", failed)
				}
				return nil
			}),
		})
	}

	return ctl
}

type clientFunc func(ctx context.Context, cmd *cobra.Command, c *modhost.AdminClient, args []string) error

func withClient(fn clientFunc) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		address := adminAddress
		if address == "" {
			cfg, err := loadConfig(cfgFile)
			if err != nil {
				return err
			}
			address = cfg.Admin.Address
		}

		conn, err := grpc.NewClient(address, grpc.WithTransportCredentials(insecure.NewCredentials()))
		if err != nil {
			return fmt.Errorf("connect to %s: %w", address, err)
		}
		defer func() { _ = conn.Close() }()

		ctx, cancel := context.WithTimeout(cmd.Context(), ctlTimeout)
		defer cancel()
		return fn(ctx, cmd, modhost.NewAdminClient(conn), args)
	}
}

func printModules(w io.Writer, modules []modhost.ModuleSummary) {
	if len(modules) == 0 {
		fmt.Fprintln(w, MutedStyle.Render("no modules loaded"))
		return
	}
	fmt.Fprintf(w, "%s\n", HeaderStyle.Render(fmt.Sprintf("%-20s %-10s %-10s %s", "MODULE", "VERSION", "STATE", "DEPENDS ON")))
	for _, m := range modules {
		fmt.Fprintf(w, "%-20s %-10s %s %s\n", m.ID, m.Version,
			stateStyle(m.State).Render(fmt.Sprintf("%-10s", m.State)),
			strings.Join(m.Dependencies, ", "))
	}
}

func printModule(w io.Writer, m modhost.ModuleSummary) {
	fmt.Fprintln(w, TitleStyle.Render(m.Name)+" "+MutedStyle.Render(m.Version))
	fmt.Fprintf(w, "  id:           %s\n", m.ID)
	fmt.Fprintf(w, "  state:        %s\n", stateStyle(m.State).Render(m.State))
	fmt.Fprintf(w, "  location:     %s\n", m.Location)
	fmt.Fprintf(w, "  dependencies: %s\n", strings.Join(m.Dependencies, ", "))
	fmt.Fprintf(w, "  commands:     %s\n", strings.Join(m.Commands, ", "))
	fmt.Fprintf(w, "  listeners:    %s\n", strings.Join(m.Listeners, ", "))
}
