// session.go: Discord session contract and bot connection helper
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

// Package discord exposes a Discord bot as the command and event host
// services of a module host: module commands become guild slash commands
// and module listeners receive gateway events.
package discord

import (
	"fmt"

	"github.com/bwmarrin/discordgo"
)

// Session is the part of *discordgo.Session the adapters use.
type Session interface {
	ApplicationCommandCreate(appID, guildID string, cmd *discordgo.ApplicationCommand, options ...discordgo.RequestOption) (*discordgo.ApplicationCommand, error)
	ApplicationCommandDelete(appID, guildID, cmdID string, options ...discordgo.RequestOption) error
	InteractionRespond(interaction *discordgo.Interaction, resp *discordgo.InteractionResponse, options ...discordgo.RequestOption) error
	AddHandler(handler interface{}) func()
}

var _ Session = (*discordgo.Session)(nil)

// Open connects a bot session with the intents needed for guild
// messages, members and slash commands.
func Open(token string) (*discordgo.Session, error) {
	if token == "" {
		return nil, fmt.Errorf("discord: bot token is required")
	}
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("discord: create session: %w", err)
	}
	s.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsGuildMembers |
		discordgo.IntentsMessageContent
	if err := s.Open(); err != nil {
		return nil, fmt.Errorf("discord: open gateway: %w", err)
	}
	return s, nil
}

// ApplicationID returns the bot user id of an open session.
func ApplicationID(s *discordgo.Session) string {
	if s.State == nil || s.State.User == nil {
		return ""
	}
	return s.State.User.ID
}
