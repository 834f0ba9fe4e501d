// Package discord provides the Discord bot layer for atlasbot. It owns
// the discordgo.Session lifecycle, routes slash command interactions to
// registered handlers, and checks the nickname editor role.
package discord

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/bwmarrin/discordgo"
)

// Config holds Discord bot configuration.
type Config struct {
	// Token is the Discord bot token without the "Bot " prefix.
	Token string

	// GuildID scopes command registration. Empty registers globally.
	GuildID string

	// EditorRoleID is the role allowed to add nicknames.
	EditorRoleID string
}

// Bot is atlasbot's Discord presence: one gateway session with the Guilds
// intent only, serving the lookup commands (/servant, /nps) and the
// nickname commands (/names, /addname) through its [CommandRouter].
type Bot struct {
	mu        sync.RWMutex
	session   *discordgo.Session
	router    *CommandRouter
	perms     *PermissionChecker
	guildID   string
	commands  []*discordgo.ApplicationCommand
	closeOnce sync.Once
}

// New opens the gateway session. Commands are registered with Discord later,
// by [Bot.Run], once every handler is on the router.
func New(_ context.Context, cfg Config) (*Bot, error) {
	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("discord: create session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuilds

	if err := session.Open(); err != nil {
		return nil, fmt.Errorf("discord: open session: %w", err)
	}

	b := &Bot{
		session: session,
		router:  NewCommandRouter(),
		perms:   NewPermissionChecker(cfg.EditorRoleID),
		guildID: cfg.GuildID,
	}

	session.AddHandler(func(s *discordgo.Session, i *discordgo.InteractionCreate) {
		b.router.Handle(s, i)
	})

	return b, nil
}

// Router returns the router the command groups register on.
func (b *Bot) Router() *CommandRouter {
	return b.router
}

// Permissions returns the checker /addname uses to gate nickname edits.
func (b *Bot) Permissions() *PermissionChecker {
	return b.perms
}

// Run publishes the router's commands in one bulk overwrite (guild-scoped
// when a guild ID is configured, global otherwise) and blocks until ctx is
// cancelled.
func (b *Bot) Run(ctx context.Context) error {
	b.mu.RLock()
	appID := b.session.State.User.ID
	b.mu.RUnlock()

	cmds := b.router.ApplicationCommands()
	if len(cmds) > 0 {
		registered, err := b.session.ApplicationCommandBulkOverwrite(appID, b.guildID, cmds)
		if err != nil {
			return fmt.Errorf("discord: register commands: %w", err)
		}
		b.mu.Lock()
		b.commands = registered
		b.mu.Unlock()
		slog.Info("discord commands registered", "count", len(registered))
	}

	<-ctx.Done()
	return ctx.Err()
}

// Close disconnects from Discord. Guild-scoped commands are unregistered;
// global commands are left in place since they take long to propagate.
func (b *Bot) Close() error {
	var closeErr error
	b.closeOnce.Do(func() {
		b.mu.Lock()
		defer b.mu.Unlock()

		if b.session != nil && b.guildID != "" {
			appID := b.session.State.User.ID
			for _, cmd := range b.commands {
				if err := b.session.ApplicationCommandDelete(appID, b.guildID, cmd.ID); err != nil {
					slog.Warn("discord: failed to delete command", "name", cmd.Name, "err", err)
				}
			}
		}

		if b.session != nil {
			if err := b.session.Close(); err != nil {
				closeErr = fmt.Errorf("discord: close session: %w", err)
			}
		}

		slog.Info("discord bot closed")
	})
	return closeErr
}
