package commands

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/MrWong99/atlasbot/internal/entity"
	"github.com/MrWong99/atlasbot/internal/nickname"
	"github.com/MrWong99/atlasbot/internal/resolver"
)

const (
	embedColor = 0x1f6feb

	// genericFailure is shown for every error that is not a miss.
	genericFailure = "Something went wrong while looking that up. Please try again later."
)

// entityTitle names e with its player-facing number when it has one.
func entityTitle(e entity.Entity) string {
	if e.HasCollectionNo() {
		return fmt.Sprintf("%s (#%d)", e.Name, e.CollectionNo)
	}
	return fmt.Sprintf("%s (ID %d)", e.Name, e.ID)
}

func titleCase(s string) string {
	if s == "" {
		return "Unknown"
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// entityEmbed renders the summary card for e.
func entityEmbed(e entity.Entity) *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{
		Title: entityTitle(e),
		Color: embedColor,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Class", Value: titleCase(e.ClassName), Inline: true},
			{Name: "Rarity", Value: rarity(e.Rarity), Inline: true},
			{Name: "ID", Value: strconv.Itoa(e.ID), Inline: true},
			{Name: "ATK", Value: strconv.Itoa(e.AtkMax), Inline: true},
			{Name: "HP", Value: strconv.Itoa(e.HpMax), Inline: true},
		},
	}
	if e.OriginalName != "" && e.OriginalName != e.Name {
		embed.Description = e.OriginalName
	}
	if e.Face != "" {
		embed.Thumbnail = &discordgo.MessageEmbedThumbnail{URL: e.Face}
	}
	if len(e.NoblePhantasms) > 0 {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:  "Noble Phantasms",
			Value: npList(e.NoblePhantasms),
		})
	}
	if e.IsEnemy() {
		embed.Footer = &discordgo.MessageEmbedFooter{Text: "enemy"}
	}
	return embed
}

// npEmbed lists the noble phantasms of e in detail.
func npEmbed(e entity.Entity) *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{
		Title: "Noble Phantasms of " + entityTitle(e),
		Color: embedColor,
	}
	if len(e.NoblePhantasms) == 0 {
		embed.Description = "No noble phantasms listed."
		return embed
	}
	for _, np := range e.NoblePhantasms {
		value := np.Detail
		if value == "" {
			value = "-"
		}
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:  npHeading(np),
			Value: value,
		})
	}
	return embed
}

func npList(nps []entity.NoblePhantasm) string {
	lines := make([]string, len(nps))
	for i, np := range nps {
		lines[i] = npHeading(np)
	}
	return strings.Join(lines, "\n")
}

func npHeading(np entity.NoblePhantasm) string {
	var b strings.Builder
	b.WriteString(np.Name)
	if np.Rank != "" {
		b.WriteString(" [" + np.Rank + "]")
	}
	if np.Card != "" {
		b.WriteString(" (" + titleCase(np.Card) + ")")
	}
	return b.String()
}

func rarity(n int) string {
	if n <= 0 {
		return "-"
	}
	return strings.Repeat("★", n)
}

// namesEmbed lists the aliases for the token a user asked about.
func namesEmbed(token, key string, aliases []string, ok bool) *discordgo.MessageEmbed {
	if !ok {
		return &discordgo.MessageEmbed{Title: fmt.Sprintf("No matches found for %s!", token)}
	}
	title := fmt.Sprintf("Nicknames for Servant #%s:", key)
	if _, isNum := resolver.ParseNumber(token); !isNum {
		title = fmt.Sprintf("Nicknames for %s (ID #%s):", token, key)
	}
	return &discordgo.MessageEmbed{
		Title:       title,
		Description: strings.Join(aliases, "\n"),
		Color:       embedColor,
	}
}

// notFoundMessage is the reply for a token nothing resolved to.
func notFoundMessage(token string) string {
	return fmt.Sprintf("No match found for `%s`.", token)
}

// addNameReply renders the outcome of a nickname append.
func addNameReply(key, alias string, err error) string {
	switch {
	case err == nil:
		return fmt.Sprintf("Set %s: %s", key, alias)
	case errors.Is(err, nickname.ErrDuplicate):
		return fmt.Sprintf("[%s: %q] already exists!", key, alias)
	case errors.Is(err, nickname.ErrInvalidKey), errors.Is(err, nickname.ErrEmptyAlias):
		return "Usage: `/addname id:<number> alias:<nickname>`."
	default:
		return "Could not save the nickname. Please try again later."
	}
}
