package main

import (
	"context"
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"

	"arc-go/internal/app"
	"arc-go/internal/arc"

	"github.com/spf13/cobra"
)

// tag command
var tagCmd = &cobra.Command{
	Use:   "tag",
	Short: "Inspect and rename tags",
}

var tagListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every tag in use",
	RunE: func(cmd *cobra.Command, args []string) error {
		archive, err := archiveFlag(cmd)
		if err != nil {
			return err
		}
		return runApp(cmd, "ListTags", archive, false, func(ctx context.Context, a *app.App) error {
			tags, err := a.Engine().ListTags(archive)
			if err != nil {
				return err
			}
			return emit(cmd, tags, func(w io.Writer) {
				for _, t := range tags {
					fmt.Fprintln(w, t)
				}
			})
		})
	},
}

var tagShowCmd = &cobra.Command{
	Use:   "show TAG",
	Short: "List the documents and collections carrying a tag",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		space, _ := cmd.Flags().GetString("space")
		archive, err := archiveFlag(cmd)
		if err != nil {
			return err
		}
		spaces := arc.Spaces
		if space != "" {
			if !slices.Contains(arc.Spaces, arc.Space(space)) {
				return fmt.Errorf("unknown space %q: want documents or collections", space)
			}
			spaces = []arc.Space{arc.Space(space)}
		}
		return runApp(cmd, "TagReferents", archive, false, func(ctx context.Context, a *app.App) error {
			referents := make(map[arc.Space][]string, len(spaces))
			for _, s := range spaces {
				ids, err := a.Engine().TagReferents(archive, s, args[0])
				if err != nil {
					return err
				}
				referents[s] = ids
			}
			return emit(cmd, referents, func(w io.Writer) {
				for _, s := range spaces {
					fmt.Fprintf(w, "%s:\n", s)
					for _, id := range referents[s] {
						fmt.Fprintf(w, "  %s\n", id)
					}
				}
			})
		})
	},
}

var tagRenameCmd = &cobra.Command{
	Use:   "rename OLD NEW",
	Short: "Rename a tag everywhere, merging into NEW if it exists",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		archive, archivist, err := scope(cmd)
		if err != nil {
			return err
		}
		return runApp(cmd, "RenameTag", archive, true, func(ctx context.Context, a *app.App) error {
			moved, err := a.Engine().RenameTag(ctx, archive, archivist, args[0], args[1])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Moved %d referent(s) from %s to %s\n", moved, args[0], args[1])
			return nil
		})
	},
}

// log command
var logCmd = &cobra.Command{
	Use:   "log",
	Short: "View the commit history",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		archive, err := archiveFlag(cmd)
		if err != nil {
			return err
		}
		return runApp(cmd, "History", archive, false, func(ctx context.Context, a *app.App) error {
			commits, err := a.Engine().History(archive, limit)
			if err != nil {
				return err
			}
			return emit(cmd, commits, func(w io.Writer) {
				if len(commits) == 0 {
					fmt.Fprintln(w, "No commits.")
				}
				for _, c := range commits {
					printCommit(w, c)
				}
			})
		})
	},
}

var commitCmd = &cobra.Command{
	Use:   "commit HASH",
	Short: "Show one commit",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		archive, err := archiveFlag(cmd)
		if err != nil {
			return err
		}
		return runApp(cmd, "GetCommit", archive, false, func(ctx context.Context, a *app.App) error {
			c, err := a.Engine().GetCommit(archive, args[0])
			if err != nil {
				return err
			}
			return emit(cmd, c, func(w io.Writer) { printCommit(w, c) })
		})
	},
}

func printCommit(w io.Writer, c *arc.Commit) {
	fmt.Fprintf(w, "%s  %s\n", short(c.Hash), c.Timestamp.Format("2006-01-02 15:04:05"))
	for _, ch := range c.Changes {
		var params []string
		for _, k := range slices.Sorted(maps.Keys(ch.Params)) {
			params = append(params, k+"="+ch.Params[k])
		}
		fmt.Fprintf(w, "    %-28s %-16s %s %s\n", ch.Op, short(ch.Subject), ch.Archivist, strings.Join(params, " "))
	}
}

func init() {
	tagCmd.AddCommand(tagListCmd)
	tagCmd.AddCommand(tagShowCmd)
	tagShowCmd.Flags().String("space", "", "Only this space: documents or collections")
	tagCmd.AddCommand(tagRenameCmd)
	rootCmd.AddCommand(tagCmd)

	rootCmd.AddCommand(logCmd)
	logCmd.Flags().IntP("limit", "n", 50, "Maximum number of commits to show (negative for all)")
	rootCmd.AddCommand(commitCmd)
}
