// Package discord delivers sync events to a Discord channel.
package discord

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"
	"github.com/zulandar/deskmirror/internal/notify"
)

// discordSession abstracts the discordgo methods we use, enabling test mocks.
type discordSession interface {
	ChannelMessageSend(channelID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// Sink sends one message per event to a fixed channel. Outbound-only: no
// gateway connection is opened, plain REST calls suffice.
type Sink struct {
	session   discordSession
	channelID string
}

// Opts holds parameters for creating a Discord Sink.
type Opts struct {
	BotToken  string
	ChannelID string
	// For testing: inject a mock session instead of the real Discord API.
	Session discordSession
}

// New creates a Discord Sink.
func New(opts Opts) (*Sink, error) {
	if opts.ChannelID == "" {
		return nil, fmt.Errorf("discord: channel id is required")
	}
	session := opts.Session
	if session == nil {
		if opts.BotToken == "" {
			return nil, fmt.Errorf("discord: bot token is required")
		}
		s, err := discordgo.New("Bot " + opts.BotToken)
		if err != nil {
			return nil, fmt.Errorf("discord: create session: %w", err)
		}
		session = s
	}
	return &Sink{session: session, channelID: opts.ChannelID}, nil
}

// Deliver sends the event text to the channel.
func (s *Sink) Deliver(ctx context.Context, ev notify.Event) error {
	_, err := s.session.ChannelMessageSend(s.channelID, ev.Text(),
		discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("discord: send event %s: %w", ev.ID, err)
	}
	return nil
}
