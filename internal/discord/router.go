package discord

import (
	"log/slog"
	"sync"

	"github.com/bwmarrin/discordgo"
)

// HandlerFunc is the signature for slash command handlers.
type HandlerFunc func(s *discordgo.Session, i *discordgo.InteractionCreate)

// AutocompleteFunc is the signature for autocomplete handlers.
type AutocompleteFunc func(s *discordgo.Session, i *discordgo.InteractionCreate)

type commandEntry struct {
	command *discordgo.ApplicationCommand
	handler HandlerFunc
}

// CommandRouter maps slash command names to handlers and autocomplete
// callbacks. Keys are the command name ("servant", "addname") or
// "command/subcommand". Commands are published to Discord in the order they
// were first registered.
type CommandRouter struct {
	mu           sync.RWMutex
	order        []string
	commands     map[string]commandEntry     // "command" or "command/subcommand" → entry
	autocomplete map[string]AutocompleteFunc // "command" or "command/subcommand" → handler
}

// NewCommandRouter creates an empty router.
func NewCommandRouter() *CommandRouter {
	return &CommandRouter{
		commands:     make(map[string]commandEntry),
		autocomplete: make(map[string]AutocompleteFunc),
	}
}

// RegisterCommand binds key to handler. cmd is the definition published by
// [Bot.Run]; registering a key again replaces its handler but keeps its
// position.
func (r *CommandRouter) RegisterCommand(key string, cmd *discordgo.ApplicationCommand, handler HandlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.commands[key]; !ok {
		r.order = append(r.order, key)
	}
	r.commands[key] = commandEntry{command: cmd, handler: handler}
}

// RegisterAutocomplete binds key to the handler answering its autocomplete
// requests, such as the servant name suggestions of /servant.
func (r *CommandRouter) RegisterAutocomplete(key string, handler AutocompleteFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.autocomplete[key] = handler
}

// ApplicationCommands returns the deduplicated top-level command definitions
// in registration order.
func (r *CommandRouter) ApplicationCommands() []*discordgo.ApplicationCommand {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]bool)
	var cmds []*discordgo.ApplicationCommand
	for _, key := range r.order {
		entry := r.commands[key]
		if entry.command != nil && !seen[entry.command.Name] {
			seen[entry.command.Name] = true
			cmds = append(cmds, entry.command)
		}
	}
	return cmds
}

// Handle routes slash commands and autocomplete requests. Unknown commands
// get an ephemeral reply; unknown autocomplete requests an empty choice list.
func (r *CommandRouter) Handle(s *discordgo.Session, i *discordgo.InteractionCreate) {
	switch i.Type {
	case discordgo.InteractionApplicationCommand:
		r.handleApplicationCommand(s, i)
	case discordgo.InteractionApplicationCommandAutocomplete:
		r.handleAutocomplete(s, i)
	default:
		slog.Debug("discord: unhandled interaction type", "type", i.Type)
	}
}

func interactionKey(data discordgo.ApplicationCommandInteractionData) string {
	key := data.Name
	if len(data.Options) > 0 && data.Options[0].Type == discordgo.ApplicationCommandOptionSubCommand {
		key += "/" + data.Options[0].Name
	}
	return key
}

func (r *CommandRouter) handleApplicationCommand(s *discordgo.Session, i *discordgo.InteractionCreate) {
	key := interactionKey(i.ApplicationCommandData())

	r.mu.RLock()
	entry, ok := r.commands[key]
	r.mu.RUnlock()

	if !ok {
		slog.Warn("discord: unknown command", "key", key)
		RespondEphemeral(s, i, "Unknown command.")
		return
	}
	entry.handler(s, i)
}

func (r *CommandRouter) handleAutocomplete(s *discordgo.Session, i *discordgo.InteractionCreate) {
	key := interactionKey(i.ApplicationCommandData())

	r.mu.RLock()
	handler, ok := r.autocomplete[key]
	r.mu.RUnlock()

	if !ok {
		slog.Debug("discord: no autocomplete handler", "key", key)
		RespondChoices(s, i, nil)
		return
	}
	handler(s, i)
}
