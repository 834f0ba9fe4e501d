package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/MrWong99/atlasbot/internal/app"
	"github.com/MrWong99/atlasbot/internal/entity"
	"github.com/MrWong99/atlasbot/internal/nickname"
	"github.com/MrWong99/atlasbot/internal/resolver"
)

func (c *cli) newSyncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Run the dataset freshness check",
		Long:  "Compares the remote dataset fingerprint with the stored one and downloads the servant catalog when it changed.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withApp(cmd.Context(), func(a *app.App) error {
				res, err := a.Sync(cmd.Context())
				if err != nil {
					return err
				}
				action := "loaded"
				if res.Refreshed {
					action = "refreshed"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Catalog %s: %d records (fingerprint %s)\n", action, res.Count, res.Fingerprint)
				return nil
			})
		},
	}
}

func (c *cli) newResolveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <token...>",
		Short: "Resolve a token to a servant or enemy",
		Long: `Resolves a collection number, enemy ID, nickname or name.

Examples:
  atlasctl resolve 336
  atlasctl resolve bazett
  atlasctl resolve "altria caster"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			token := strings.Join(args, " ")
			return c.withApp(cmd.Context(), func(a *app.App) error {
				if _, err := a.Sync(cmd.Context()); err != nil {
					return err
				}
				e, err := a.Resolver().Resolve(cmd.Context(), token)
				if errors.Is(err, resolver.ErrEntityNotFound) {
					fmt.Fprintf(cmd.OutOrStdout(), "No match found for %q.\n", token)
					return nil
				}
				if err != nil {
					return err
				}
				printEntity(cmd.OutOrStdout(), e)
				return nil
			})
		},
	}
}

func (c *cli) newNamesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "names <id|alias>",
		Short: "List the nicknames for an ID or for the owner of an alias",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd.Context(), func(a *app.App) error {
				key, aliases, ok := a.Resolver().Nicknames(args[0])
				if !ok {
					fmt.Fprintf(cmd.OutOrStdout(), "No matches found for %s!\n", args[0])
					return nil
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Nicknames for #%s:\n", key)
				for _, alias := range aliases {
					fmt.Fprintf(cmd.OutOrStdout(), "  %s\n", alias)
				}
				return nil
			})
		},
	}
}

func (c *cli) newAddNameCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "addname <id> <alias...>",
		Short: "Add a nickname and rewrite the nickname file",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, alias := args[0], strings.Join(args[1:], " ")
			return c.withApp(cmd.Context(), func(a *app.App) error {
				err := a.Nicknames().Add(key, alias)
				switch {
				case errors.Is(err, nickname.ErrDuplicate):
					fmt.Fprintf(cmd.OutOrStdout(), "[%s: %q] already exists!\n", key, alias)
					return nil
				case err != nil:
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Set %s: %s\n", key, alias)
				return nil
			})
		},
	}
}

// printEntity writes a short human-readable summary of e.
func printEntity(w io.Writer, e entity.Entity) {
	fmt.Fprintf(w, "%s\n", e.Name)
	fmt.Fprintf(w, "  kind:          %s\n", e.Kind)
	fmt.Fprintf(w, "  id:            %d\n", e.ID)
	if e.HasCollectionNo() {
		fmt.Fprintf(w, "  collection no: %d\n", e.CollectionNo)
	}
	fmt.Fprintf(w, "  class:         %s\n", e.ClassName)
	fmt.Fprintf(w, "  rarity:        %d\n", e.Rarity)
	for _, np := range e.NoblePhantasms {
		fmt.Fprintf(w, "  np:            %s (%d)\n", np.Name, np.ID)
	}
}
