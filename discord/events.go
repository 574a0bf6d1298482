// events.go: gateway events delivered to module listeners
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package discord

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"

	"github.com/agilira/go-modhost"
)

// Gateway event names modules can listen to. The payload is the
// corresponding discordgo event pointer.
const (
	EventReady             = "ready"
	EventMessageCreate     = "message_create"
	EventMessageDelete     = "message_delete"
	EventGuildMemberAdd    = "guild_member_add"
	EventGuildMemberRemove = "guild_member_remove"
	EventInteractionCreate = "interaction_create"
)

var knownEvents = map[string]struct{}{
	EventReady:             {},
	EventMessageCreate:     {},
	EventMessageDelete:     {},
	EventGuildMemberAdd:    {},
	EventGuildMemberRemove: {},
	EventInteractionCreate: {},
}

// EventRegistry fans gateway events out to module listeners through a
// modhost EventBus.
type EventRegistry struct {
	bus     *modhost.EventBus
	session Session
	logger  modhost.Logger
	detach  []func()
}

// NewEventRegistry creates a registry on session.
func NewEventRegistry(session Session, logger any) *EventRegistry {
	log := modhost.NewLogger(logger)
	return &EventRegistry{bus: modhost.NewEventBus(log), session: session, logger: log}
}

func (r *EventRegistry) RegisterListener(owner string, l modhost.Listener) error {
	if _, ok := knownEvents[l.Event]; !ok {
		return fmt.Errorf("discord: unknown event %q", l.Event)
	}
	return r.bus.RegisterListener(owner, l)
}

func (r *EventRegistry) UnregisterListener(owner string, l modhost.Listener) error {
	return r.bus.UnregisterListener(owner, l)
}

// Bus exposes the underlying bus, mainly for tests and for publishing
// host-originated events.
func (r *EventRegistry) Bus() *modhost.EventBus { return r.bus }

// Attach subscribes to the gateway events.
func (r *EventRegistry) Attach() {
	r.detach = append(r.detach,
		r.session.AddHandler(func(_ *discordgo.Session, e *discordgo.Ready) {
			r.publish(EventReady, e)
		}),
		r.session.AddHandler(func(_ *discordgo.Session, e *discordgo.MessageCreate) {
			if e.Author != nil && e.Author.Bot {
				return
			}
			r.publish(EventMessageCreate, e)
		}),
		r.session.AddHandler(func(_ *discordgo.Session, e *discordgo.MessageDelete) {
			r.publish(EventMessageDelete, e)
		}),
		r.session.AddHandler(func(_ *discordgo.Session, e *discordgo.GuildMemberAdd) {
			r.publish(EventGuildMemberAdd, e)
		}),
		r.session.AddHandler(func(_ *discordgo.Session, e *discordgo.GuildMemberRemove) {
			r.publish(EventGuildMemberRemove, e)
		}),
		r.session.AddHandler(func(_ *discordgo.Session, e *discordgo.InteractionCreate) {
			r.publish(EventInteractionCreate, e)
		}),
	)
}

// Detach removes the gateway handlers.
func (r *EventRegistry) Detach() {
	for _, remove := range r.detach {
		remove()
	}
	r.detach = nil
}

func (r *EventRegistry) publish(event string, payload any) {
	if failed := r.bus.Publish(context.Background(), event, payload); failed > 0 {
		r.logger.Debug("Gateway event had failing listeners", "event", event, "failed", failed)
	}
}
