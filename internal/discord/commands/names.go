package commands

import (
	"context"
	"errors"
	"log/slog"
	"strconv"

	"github.com/bwmarrin/discordgo"

	"github.com/MrWong99/atlasbot/internal/discord"
	"github.com/MrWong99/atlasbot/internal/nickname"
	"github.com/MrWong99/atlasbot/internal/observe"
)

// NicknameLister lists the aliases behind a key or alias.
type NicknameLister interface {
	Nicknames(token string) (key string, aliases []string, ok bool)
}

// NicknameWriter appends an alias under a key.
type NicknameWriter interface {
	Add(key, alias string) error
}

// NameCommands holds the dependencies for /names and /addname.
type NameCommands struct {
	perms   *discord.PermissionChecker
	lister  NicknameLister
	writer  NicknameWriter
	metrics *observe.Metrics
}

// NewNameCommands creates a NameCommands. A nil metrics falls back to
// [observe.DefaultMetrics].
func NewNameCommands(perms *discord.PermissionChecker, lister NicknameLister, writer NicknameWriter, metrics *observe.Metrics) *NameCommands {
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	return &NameCommands{perms: perms, lister: lister, writer: writer, metrics: metrics}
}

// Register registers /names and /addname with the router.
func (nc *NameCommands) Register(router *discord.CommandRouter) {
	router.RegisterCommand("names", nc.Definition(), nc.handleNames)
	router.RegisterCommand("addname", nc.AddDefinition(), nc.handleAdd)
}

// Definition returns the /names ApplicationCommand.
func (nc *NameCommands) Definition() *discordgo.ApplicationCommand {
	return &discordgo.ApplicationCommand{
		Name:        "names",
		Description: "List the nicknames of a servant",
		Options: []*discordgo.ApplicationCommandOption{{
			Type:        discordgo.ApplicationCommandOptionString,
			Name:        tokenOptionKey,
			Description: "Collection number or a known nickname",
			Required:    true,
		}},
	}
}

// AddDefinition returns the /addname ApplicationCommand.
func (nc *NameCommands) AddDefinition() *discordgo.ApplicationCommand {
	return &discordgo.ApplicationCommand{
		Name:        "addname",
		Description: "Add a nickname for a servant",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionInteger,
				Name:        "id",
				Description: "Collection number",
				Required:    true,
			},
			{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        "alias",
				Description: "The nickname",
				Required:    true,
				MaxLength:   100,
			},
		},
	}
}

func (nc *NameCommands) handleNames(s *discordgo.Session, i *discordgo.InteractionCreate) {
	token := stringOption(i.ApplicationCommandData().Options, tokenOptionKey)
	key, aliases, ok := nc.lister.Nicknames(token)
	discord.RespondEmbed(s, i, namesEmbed(token, key, aliases, ok))
}

func (nc *NameCommands) handleAdd(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if !nc.perms.IsEditor(i) {
		discord.RespondEphemeral(s, i, "You need the editor role to add nicknames.")
		return
	}

	var key, alias string
	for _, o := range i.ApplicationCommandData().Options {
		switch o.Name {
		case "id":
			key = strconv.FormatInt(o.IntValue(), 10)
		case "alias":
			alias = o.StringValue()
		}
	}
	discord.RespondEphemeral(s, i, nc.add(context.Background(), key, alias))
}

// add appends the alias and returns the user-facing reply.
func (nc *NameCommands) add(ctx context.Context, key, alias string) string {
	err := nc.writer.Add(key, alias)
	status := observe.StatusOK
	switch {
	case err == nil:
		slog.Info("nickname added", "key", key, "alias", alias)
	case errors.Is(err, nickname.ErrDuplicate):
		status = "duplicate"
	case errors.Is(err, nickname.ErrInvalidKey), errors.Is(err, nickname.ErrEmptyAlias):
		status = "invalid"
	default:
		status = observe.StatusError
		slog.Error("nickname add failed", "key", key, "alias", alias, "err", err)
	}
	nc.metrics.RecordNicknameAppend(ctx, status)
	return addNameReply(key, alias, err)
}
