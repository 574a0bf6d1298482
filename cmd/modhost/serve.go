// serve.go: run a module host until interrupted
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package main

import (
	"context"
	"os"
	"time"

	"github.com/spf13/cobra"

	modhost "github.com/agilira/go-modhost"
	"github.com/agilira/go-modhost/discord"
)

const shutdownTimeout = 30 * time.Second

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Load and enable modules, then keep the host running",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	cfg, err := loadConfig(cfgFile)
	if err != nil {
		return err
	}
	logger, err := newLogger(os.Stderr, logLevel)
	if err != nil {
		return err
	}

	source, err := modhost.NewDirectorySource(cfg.DirectorySourceConfig(), logger)
	if err != nil {
		return err
	}

	managerConfig := modhost.Config{
		Loader:                modhost.NewSharedObjectLoader(),
		Source:                source,
		Logger:                logger,
		DataDir:               cfg.DataDir,
		ConfigFileName:        cfg.ConfigFileName,
		OrderSoftDependencies: cfg.OrderSoftDependencies,
	}

	if cfg.Discord.Enabled() {
		session, err := discord.Open(cfg.Discord.Token)
		if err != nil {
			return err
		}
		defer func() { _ = session.Close() }()

		commands := discord.NewCommandRegistry(session, discord.ApplicationID(session), cfg.Discord.GuildID,
			func(_, userID string, roles []string) modhost.PermissionSet {
				return cfg.Discord.PermissionsFor(userID, roles...)
			},
			logger.With("component", "discord"))
		commands.Attach()
		defer commands.Detach()

		events := discord.NewEventRegistry(session, logger.With("component", "discord"))
		events.Attach()
		defer events.Detach()

		managerConfig.Commands = commands
		managerConfig.Events = events
		logger.Info("Discord bot connected", "guild", cfg.Discord.GuildID)
	}

	manager, err := modhost.NewManager(managerConfig)
	if err != nil {
		return err
	}

	if cfg.Audit.Enabled {
		trail, err := modhost.NewAuditTrail(modhost.AuditOptions{OutputFile: cfg.Audit.OutputFile}, logger)
		if err != nil {
			return err
		}
		trail.Attach(manager)
		defer func() { _ = trail.Close() }()
	}

	report, err := manager.LoadAll(ctx)
	if err != nil {
		return err
	}
	for _, f := range report.Failed {
		logger.Warn("Module not loaded", "module", f.ID, "location", f.Location, "error", f.Err)
	}
	logger.Info("Load pass finished", "loaded", len(report.Loaded), "failed", len(report.Failed))

	if cfg.EnableOnStart {
		result := manager.EnableAll(ctx)
		logger.Info("Modules enabled", "succeeded", result.Succeeded, "failed", result.Failed)
	}

	if cfg.HotReload.Enabled {
		reloader := modhost.NewHotReloader(manager, modhost.HotReloadOptions{
			PollInterval: cfg.HotReload.PollInterval,
		}, logger)
		if err := reloader.Start(); err != nil {
			return err
		}
		defer func() { _ = reloader.Stop() }()
	}

	adminErr := make(chan error, 1)
	if cfg.Admin.Enabled {
		go func() { adminErr <- modhost.ServeAdmin(ctx, cfg.Admin.Address, manager, logger) }()
	}

	select {
	case <-ctx.Done():
	case err = <-adminErr:
		if err != nil {
			logger.Error("Admin service failed", "error", err)
		}
	}

	logger.Info("Shutting down module host")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	result := manager.UnloadAll(shutdownCtx)
	if result.Failed > 0 {
		return result.Err()
	}
	return err
}
