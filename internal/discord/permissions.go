package discord

import (
	"slices"

	"github.com/bwmarrin/discordgo"
)

// PermissionChecker validates that a Discord user holds the editor role
// before executing privileged slash commands.
type PermissionChecker struct {
	editorRoleID string
}

// NewPermissionChecker creates a PermissionChecker with the given role ID.
func NewPermissionChecker(editorRoleID string) *PermissionChecker {
	return &PermissionChecker{editorRoleID: editorRoleID}
}

// IsEditor checks whether the interaction author holds the editor role.
// An empty role ID lets everyone edit. Interactions without a Member (direct
// messages) are never editors when a role is configured.
func (p *PermissionChecker) IsEditor(i *discordgo.InteractionCreate) bool {
	if p.editorRoleID == "" {
		return true
	}
	if i.Member == nil {
		return false
	}
	return slices.Contains(i.Member.Roles, p.editorRoleID)
}
