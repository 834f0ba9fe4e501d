package discord

import (
	"log/slog"

	"github.com/bwmarrin/discordgo"
)

// RespondEmbed sends a public embed response to an interaction.
func RespondEmbed(s *discordgo.Session, i *discordgo.InteractionCreate, embed *discordgo.MessageEmbed) {
	respond(s, i, &discordgo.InteractionResponseData{Embeds: []*discordgo.MessageEmbed{embed}})
}

// RespondEphemeral sends an ephemeral text response to an interaction.
func RespondEphemeral(s *discordgo.Session, i *discordgo.InteractionCreate, content string) {
	respond(s, i, &discordgo.InteractionResponseData{
		Content: content,
		Flags:   discordgo.MessageFlagsEphemeral,
	})
}

// RespondChoices answers an autocomplete interaction.
func RespondChoices(s *discordgo.Session, i *discordgo.InteractionCreate, choices []*discordgo.ApplicationCommandOptionChoice) {
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionApplicationCommandAutocompleteResult,
		Data: &discordgo.InteractionResponseData{Choices: choices},
	})
	if err != nil {
		slog.Warn("discord: failed to send autocomplete choices", "err", err)
	}
}

func respond(s *discordgo.Session, i *discordgo.InteractionCreate, data *discordgo.InteractionResponseData) {
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: data,
	})
	if err != nil {
		slog.Warn("discord: failed to send response", "err", err)
	}
}

// DeferReply acknowledges an interaction whose answer needs a remote call.
func DeferReply(s *discordgo.Session, i *discordgo.InteractionCreate) {
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
	})
	if err != nil {
		slog.Warn("discord: failed to defer reply", "err", err)
	}
}

// FollowUp sends a follow-up message after a deferred response.
func FollowUp(s *discordgo.Session, i *discordgo.InteractionCreate, content string) {
	_, err := s.FollowupMessageCreate(i.Interaction, true, &discordgo.WebhookParams{
		Content: content,
	})
	if err != nil {
		slog.Warn("discord: failed to send follow-up", "err", err)
	}
}

// FollowUpEmbed sends an embed follow-up message after a deferred response.
func FollowUpEmbed(s *discordgo.Session, i *discordgo.InteractionCreate, embed *discordgo.MessageEmbed) {
	_, err := s.FollowupMessageCreate(i.Interaction, true, &discordgo.WebhookParams{
		Embeds: []*discordgo.MessageEmbed{embed},
	})
	if err != nil {
		slog.Warn("discord: failed to send embed follow-up", "err", err)
	}
}
