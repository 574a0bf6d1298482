// commands.go: module commands as guild slash commands
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package discord

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/bwmarrin/discordgo"

	"github.com/agilira/go-modhost"
)

// ArgsOption is the free-text option every slash command carries; its
// value is split on whitespace into the invocation's Args.
const ArgsOption = "args"

// Slash command limits enforced by Discord.
const (
	MaxCommandNameLength = 32
	MaxDescriptionLength = 100
)

// PermissionResolver returns the permission nodes granted to a user
// holding roles in guildID. roles is empty in direct messages.
type PermissionResolver func(guildID, userID string, roles []string) modhost.PermissionSet

type slashCommand struct {
	id    string
	owner string
	cmd   modhost.Command
}

// CommandRegistry creates a guild slash command for every module command
// and routes interactions to the command handlers.
type CommandRegistry struct {
	session     Session
	appID       string
	guildID     string
	logger      modhost.Logger
	permissions PermissionResolver
	timeout     time.Duration

	mu       sync.RWMutex
	commands map[string]slashCommand
	detach   func()
}

// NewCommandRegistry creates a registry for one guild. A nil resolver
// grants nothing, so commands with a Permission are refused.
func NewCommandRegistry(session Session, appID, guildID string, permissions PermissionResolver, logger any) *CommandRegistry {
	return &CommandRegistry{
		session:     session,
		appID:       appID,
		guildID:     guildID,
		logger:      modhost.NewLogger(logger),
		permissions: permissions,
		timeout:     15 * time.Second,
		commands:    make(map[string]slashCommand),
	}
}

// Attach starts routing interactions. Call the returned function, or
// Detach, to stop.
func (r *CommandRegistry) Attach() {
	r.detach = r.session.AddHandler(func(_ *discordgo.Session, i *discordgo.InteractionCreate) {
		r.HandleInteraction(i)
	})
}

// Detach stops routing interactions.
func (r *CommandRegistry) Detach() {
	if r.detach != nil {
		r.detach()
		r.detach = nil
	}
}

func (r *CommandRegistry) RegisterCommand(owner string, cmd modhost.Command) error {
	name := strings.ToLower(strings.TrimSpace(cmd.Name))
	if err := validateName(name); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.commands[name]; ok {
		return fmt.Errorf("discord: command %q already registered by %s", name, existing.owner)
	}

	description := cmd.Description
	if description == "" {
		description = "Provided by " + owner
	}
	created, err := r.session.ApplicationCommandCreate(r.appID, r.guildID, &discordgo.ApplicationCommand{
		Name:        name,
		Description: truncate(description, MaxDescriptionLength),
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        ArgsOption,
				Description: usageOf(cmd),
				Required:    false,
			},
		},
	})
	if err != nil {
		return fmt.Errorf("discord: create slash command %q: %w", name, err)
	}

	r.commands[name] = slashCommand{id: created.ID, owner: owner, cmd: cmd}
	r.logger.Debug("Slash command registered", "command", name, "module", owner, "id", created.ID)
	return nil
}

func (r *CommandRegistry) UnregisterCommand(owner string, cmd modhost.Command) error {
	name := strings.ToLower(strings.TrimSpace(cmd.Name))

	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.commands[name]
	if !ok || entry.owner != owner {
		return fmt.Errorf("discord: command %q is not registered by %s", name, owner)
	}
	if err := r.session.ApplicationCommandDelete(r.appID, r.guildID, entry.id); err != nil {
		return fmt.Errorf("discord: delete slash command %q: %w", name, err)
	}
	delete(r.commands, name)
	r.logger.Debug("Slash command removed", "command", name, "module", owner)
	return nil
}

// Registered returns the names of the live slash commands.
func (r *CommandRegistry) Registered() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.commands))
	for name := range r.commands {
		out = append(out, name)
	}
	return out
}

// HandleInteraction runs the command behind a slash interaction and
// replies ephemerally with the outcome.
func (r *CommandRegistry) HandleInteraction(i *discordgo.InteractionCreate) {
	if i == nil || i.Interaction == nil || i.Type != discordgo.InteractionApplicationCommand {
		return
	}
	data := i.ApplicationCommandData()

	r.mu.RLock()
	entry, ok := r.commands[strings.ToLower(data.Name)]
	r.mu.RUnlock()
	if !ok {
		return
	}

	userID := interactionUser(i)
	if entry.cmd.Permission != "" && !r.granted(i, userID, entry.cmd.Permission) {
		r.reply(i, "You don't have permission to use this command.")
		return
	}

	inv := modhost.Invocation{
		Command: data.Name,
		Sender:  userID,
		Options: make(map[string]string),
	}
	for _, opt := range data.Options {
		if opt.Type != discordgo.ApplicationCommandOptionString {
			continue
		}
		value := strings.TrimSpace(opt.StringValue())
		inv.Options[opt.Name] = value
		if opt.Name == ArgsOption {
			inv.Args = strings.Fields(value)
		}
	}

	if entry.cmd.Handler == nil {
		r.reply(i, "Done.")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	err := modhost.CallRecovered(func() error { return entry.cmd.Handler(ctx, inv) })
	if err != nil {
		r.logger.Warn("Slash command failed", "command", data.Name, "module", entry.owner, "user", userID, "error", err)
		r.reply(i, "Command failed: "+err.Error())
		return
	}
	r.reply(i, "Done.")
}

func (r *CommandRegistry) granted(i *discordgo.InteractionCreate, userID, permission string) bool {
	if r.permissions == nil {
		return false
	}
	var roles []string
	if i.Member != nil {
		roles = i.Member.Roles
	}
	return r.permissions(i.GuildID, userID, roles).Grants(permission)
}

func (r *CommandRegistry) reply(i *discordgo.InteractionCreate, content string) {
	err := r.session.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: content,
			Flags:   discordgo.MessageFlagsEphemeral,
		},
	})
	if err != nil {
		r.logger.Warn("Failed to answer interaction", "error", err)
	}
}

func interactionUser(i *discordgo.InteractionCreate) string {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User.ID
	}
	if i.User != nil {
		return i.User.ID
	}
	return ""
}

func usageOf(cmd modhost.Command) string {
	usage := cmd.Usage
	if usage == "" {
		usage = "Arguments"
	}
	return truncate(usage, MaxDescriptionLength)
}

// validateName applies Discord's chat input naming rules: 1 to 32
// lowercase letters, digits, dashes or underscores.
func validateName(name string) error {
	if name == "" {
		return fmt.Errorf("discord: command name is required")
	}
	if n := utf8.RuneCountInString(name); n > MaxCommandNameLength {
		return fmt.Errorf("discord: command name %q is %d characters, limit is %d", name, n, MaxCommandNameLength)
	}
	for _, c := range name {
		if c != '-' && c != '_' && !unicode.IsLetter(c) && !unicode.IsDigit(c) {
			return fmt.Errorf("discord: command name %q contains %q", name, c)
		}
	}
	return nil
}

// truncate cuts s to at most n runes.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}
