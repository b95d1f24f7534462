package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"arc-go/internal/app"
	"arc-go/internal/arc"

	"github.com/spf13/cobra"
)

// collection command
var collectionCmd = &cobra.Command{
	Use:     "collection",
	Aliases: []string{"col"},
	Short:   "Manage collections",
}

var collectionCreateCmd = &cobra.Command{
	Use:   "create NAME",
	Short: "Create a collection",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		archive, archivist, err := scope(cmd)
		if err != nil {
			return err
		}
		return runApp(cmd, "CreateCollection", archive, true, func(ctx context.Context, a *app.App) error {
			col, err := a.Engine().CreateCollection(ctx, archive, archivist, args[0])
			if err != nil {
				return fmt.Errorf("creating collection: %w", err)
			}
			return emit(cmd, col, func(w io.Writer) {
				fmt.Fprintf(w, "Created collection %s (%s)\n", col.Name, col.ID)
			})
		})
	},
}

var collectionShowCmd = &cobra.Command{
	Use:   "show ID",
	Short: "Show a collection",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		archive, err := archiveFlag(cmd)
		if err != nil {
			return err
		}
		return runApp(cmd, "GetCollection", archive, false, func(ctx context.Context, a *app.App) error {
			col, err := a.Engine().GetCollection(archive, args[0])
			if err != nil {
				return err
			}
			return emit(cmd, col, func(w io.Writer) {
				fmt.Fprintf(w, "ID:          %s\n", col.ID)
				fmt.Fprintf(w, "Name:        %s\n", col.Name)
				fmt.Fprintf(w, "Creator:     %s\n", col.Creator)
				fmt.Fprintf(w, "Maintainers: %s\n", strings.Join(col.Maintainers, ", "))
				fmt.Fprintf(w, "Tags:        %s\n", strings.Join(col.Tags, ", "))
				fmt.Fprintf(w, "Updated:     %s\n", col.Updated.Format("2006-01-02 15:04:05"))
				for i, h := range col.Documents {
					fmt.Fprintf(w, "%4d  %s\n", i, h)
				}
			})
		})
	},
}

var collectionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List or search collections",
	RunE: func(cmd *cobra.Command, args []string) error {
		name, _ := cmd.Flags().GetString("name")
		anyTags, _ := cmd.Flags().GetStringSlice("any")
		allTags, _ := cmd.Flags().GetStringSlice("all")
		noneTags, _ := cmd.Flags().GetStringSlice("none")
		archive, err := archiveFlag(cmd)
		if err != nil {
			return err
		}
		q := arc.CollectionQuery{NameContains: name, AnyTags: anyTags, AllTags: allTags, NoneTags: noneTags}
		return runApp(cmd, "FindCollections", archive, false, func(ctx context.Context, a *app.App) error {
			cols, err := a.Engine().FindCollections(archive, q)
			if err != nil {
				return err
			}
			return emit(cmd, cols, func(w io.Writer) {
				if len(cols) == 0 {
					fmt.Fprintln(w, "No collections.")
				}
				for _, c := range cols {
					fmt.Fprintf(w, "%s  %-24s  %3d docs  %s\n", c.ID, c.Name, len(c.Documents), strings.Join(c.Tags, ","))
				}
			})
		})
	},
}

// collectionMutation builds a subcommand that takes ID plus extra
// positional arguments and reports whether anything changed.
func collectionMutation(use, short, command string, nargs int, fn func(ctx context.Context, a *app.App, archive, archivist string, args []string) (bool, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(nargs),
		RunE: func(cmd *cobra.Command, args []string) error {
			archive, archivist, err := scope(cmd)
			if err != nil {
				return err
			}
			return runApp(cmd, command, archive, true, func(ctx context.Context, a *app.App) error {
				changed, err := fn(ctx, a, archive, archivist, args)
				if err != nil {
					return err
				}
				if !changed {
					fmt.Fprintln(cmd.OutOrStdout(), "Nothing to change.")
				}
				return nil
			})
		},
	}
}

var collectionRenameCmd = collectionMutation("rename ID NAME", "Rename a collection", "RenameCollection", 2,
	func(ctx context.Context, a *app.App, archive, archivist string, args []string) (bool, error) {
		return true, a.Engine().RenameCollection(ctx, archive, archivist, args[0], args[1])
	})

var collectionAddCmd = collectionMutation("add ID HASH", "Append a document to a collection", "AddDocumentToCollection", 2,
	func(ctx context.Context, a *app.App, archive, archivist string, args []string) (bool, error) {
		return a.Engine().AddDocumentToCollection(ctx, archive, archivist, args[0], args[1])
	})

var collectionRemoveCmd = collectionMutation("remove ID HASH", "Remove a document from a collection", "RemoveDocumentFromCollection", 2,
	func(ctx context.Context, a *app.App, archive, archivist string, args []string) (bool, error) {
		return a.Engine().RemoveDocumentFromCollection(ctx, archive, archivist, args[0], args[1])
	})

var collectionMoveCmd = collectionMutation("move ID HASH INDEX", "Move a document to a position in a collection", "ReorderDocument", 3,
	func(ctx context.Context, a *app.App, archive, archivist string, args []string) (bool, error) {
		index, err := strconv.Atoi(args[2])
		if err != nil {
			return false, arc.Malformed("index %q is not a number", args[2])
		}
		return true, a.Engine().ReorderDocument(ctx, archive, archivist, args[0], args[1], index)
	})

var collectionMaintainerCmd = collectionMutation("maintainer ID USERNAME", "Add a maintainer to a collection", "AddMaintainer", 2,
	func(ctx context.Context, a *app.App, archive, archivist string, args []string) (bool, error) {
		return a.Engine().AddMaintainer(ctx, archive, archivist, args[0], args[1])
	})

var collectionTagCmd = collectionMutation("tag ID TAG", "Tag a collection", "AddCollectionTag", 2,
	func(ctx context.Context, a *app.App, archive, archivist string, args []string) (bool, error) {
		return a.Engine().AddCollectionTag(ctx, archive, archivist, args[0], args[1])
	})

var collectionUntagCmd = collectionMutation("untag ID TAG", "Remove a tag from a collection", "RemoveCollectionTag", 2,
	func(ctx context.Context, a *app.App, archive, archivist string, args []string) (bool, error) {
		return a.Engine().RemoveCollectionTag(ctx, archive, archivist, args[0], args[1])
	})

func init() {
	collectionCmd.AddCommand(collectionCreateCmd)
	collectionCmd.AddCommand(collectionShowCmd)
	collectionCmd.AddCommand(collectionListCmd)
	collectionListCmd.Flags().String("name", "", "Name contains (case-insensitive)")
	collectionListCmd.Flags().StringSlice("any", nil, "Has at least one of these tags")
	collectionListCmd.Flags().StringSlice("all", nil, "Has all of these tags")
	collectionListCmd.Flags().StringSlice("none", nil, "Has none of these tags")
	collectionCmd.AddCommand(collectionRenameCmd)
	collectionCmd.AddCommand(collectionAddCmd)
	collectionCmd.AddCommand(collectionRemoveCmd)
	collectionCmd.AddCommand(collectionMoveCmd)
	collectionCmd.AddCommand(collectionMaintainerCmd)
	collectionCmd.AddCommand(collectionTagCmd)
	collectionCmd.AddCommand(collectionUntagCmd)
	rootCmd.AddCommand(collectionCmd)
}
