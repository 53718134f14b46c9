package command

import (
	"context"
	"errors"
)

// ErrInteractionExpired is returned by Respond or Defer once the
// acknowledgement deadline has passed.
var ErrInteractionExpired = errors.New("command: interaction expired")

// Interaction is one command invocation awaiting a reply. It must be
// acknowledged once, either with Respond or with Defer followed by
// Followup.
type Interaction interface {
	// GuildID returns false when the command was invoked outside a guild.
	GuildID() (int64, bool)
	UserID() int64
	ChannelID() int64

	Respond(ctx context.Context, text string) error
	Defer(ctx context.Context) error
	Followup(ctx context.Context, text string) error
}

// Notifier sends messages outside an interaction's reply.
type Notifier interface {
	SendChannel(ctx context.Context, channelID int64, text string) error
	SendDirect(ctx context.Context, userID int64, text string) error
}
