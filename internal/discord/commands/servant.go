// Package commands implements the atlasbot slash commands.
package commands

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/MrWong99/atlasbot/internal/discord"
	"github.com/MrWong99/atlasbot/internal/entity"
	"github.com/MrWong99/atlasbot/internal/fuzzy"
	"github.com/MrWong99/atlasbot/internal/resolver"
)

const (
	// resolveTimeout bounds one command's remote fallbacks.
	resolveTimeout = 20 * time.Second

	maxChoices     = 25
	maxChoiceName  = 100
	tokenOptionKey = "token"
)

// Resolver is the subset of [resolver.Resolver] used by the lookup commands.
type Resolver interface {
	Resolve(ctx context.Context, token string) (entity.Entity, error)
	Suggest(token string, limit int) []fuzzy.Hit
}

// ServantCommands holds the dependencies for /servant and /nps.
type ServantCommands struct {
	resolver Resolver
}

// NewServantCommands creates a ServantCommands.
func NewServantCommands(r Resolver) *ServantCommands {
	return &ServantCommands{resolver: r}
}

// Register registers /servant and /nps with the router.
func (sc *ServantCommands) Register(router *discord.CommandRouter) {
	router.RegisterCommand("servant", sc.Definition(), sc.handleServant)
	router.RegisterCommand("nps", sc.NPDefinition(), sc.handleNPs)
	router.RegisterAutocomplete("servant", sc.autocomplete)
	router.RegisterAutocomplete("nps", sc.autocomplete)
}

func tokenOption() *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{
		Type:         discordgo.ApplicationCommandOptionString,
		Name:         tokenOptionKey,
		Description:  "Collection number, nickname or name",
		Required:     true,
		Autocomplete: true,
	}
}

// Definition returns the /servant ApplicationCommand.
func (sc *ServantCommands) Definition() *discordgo.ApplicationCommand {
	return &discordgo.ApplicationCommand{
		Name:        "servant",
		Description: "Look up a servant or enemy",
		Options:     []*discordgo.ApplicationCommandOption{tokenOption()},
	}
}

// NPDefinition returns the /nps ApplicationCommand.
func (sc *ServantCommands) NPDefinition() *discordgo.ApplicationCommand {
	return &discordgo.ApplicationCommand{
		Name:        "nps",
		Description: "List the noble phantasms of a servant or enemy",
		Options:     []*discordgo.ApplicationCommandOption{tokenOption()},
	}
}

func (sc *ServantCommands) handleServant(s *discordgo.Session, i *discordgo.InteractionCreate) {
	sc.answer(s, i, entityEmbed)
}

func (sc *ServantCommands) handleNPs(s *discordgo.Session, i *discordgo.InteractionCreate) {
	sc.answer(s, i, npEmbed)
}

// answer resolves the token option and replies with render's embed. The
// reply is deferred because the resolution may need remote calls.
func (sc *ServantCommands) answer(s *discordgo.Session, i *discordgo.InteractionCreate, render func(entity.Entity) *discordgo.MessageEmbed) {
	token := stringOption(i.ApplicationCommandData().Options, tokenOptionKey)
	discord.DeferReply(s, i)

	ctx, cancel := context.WithTimeout(context.Background(), resolveTimeout)
	defer cancel()

	embed, msg := sc.lookup(ctx, token, render)
	if embed != nil {
		discord.FollowUpEmbed(s, i, embed)
		return
	}
	discord.FollowUp(s, i, msg)
}

// lookup returns either an embed or a plain message for token.
func (sc *ServantCommands) lookup(ctx context.Context, token string, render func(entity.Entity) *discordgo.MessageEmbed) (*discordgo.MessageEmbed, string) {
	e, err := sc.resolver.Resolve(ctx, token)
	switch {
	case err == nil:
		return render(e), ""
	case errors.Is(err, resolver.ErrEntityNotFound):
		return nil, notFoundMessage(token)
	default:
		slog.Error("discord: resolve failed", "token", token, "err", err)
		return nil, genericFailure
	}
}

func (sc *ServantCommands) autocomplete(s *discordgo.Session, i *discordgo.InteractionCreate) {
	token := stringOption(i.ApplicationCommandData().Options, tokenOptionKey)
	discord.RespondChoices(s, i, sc.choices(token))
}

// choices builds autocomplete entries from the fuzzy index. The value is
// the collection number so the command resolves exactly what was picked.
func (sc *ServantCommands) choices(token string) []*discordgo.ApplicationCommandOptionChoice {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil
	}
	hits := sc.resolver.Suggest(token, maxChoices)
	choices := make([]*discordgo.ApplicationCommandOptionChoice, 0, len(hits))
	for _, h := range hits {
		if !h.Entity.HasCollectionNo() {
			continue
		}
		name := entityTitle(h.Entity)
		if r := []rune(name); len(r) > maxChoiceName {
			name = string(r[:maxChoiceName])
		}
		choices = append(choices, &discordgo.ApplicationCommandOptionChoice{Name: name, Value: strconv.Itoa(h.Entity.CollectionNo)})
	}
	return choices
}

// stringOption returns the string value of the named option, or "".
func stringOption(opts []*discordgo.ApplicationCommandInteractionDataOption, name string) string {
	for _, o := range opts {
		if o.Name == name && o.Type == discordgo.ApplicationCommandOptionString {
			return o.StringValue()
		}
	}
	return ""
}
