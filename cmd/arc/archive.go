package main

import (
	"context"
	"fmt"
	"io"

	"arc-go/internal/app"
	"arc-go/internal/arc"

	"github.com/spf13/cobra"
)

// archive command
var archiveCmd = &cobra.Command{
	Use:   "archive",
	Short: "Manage archives",
}

var archiveCreateCmd = &cobra.Command{
	Use:   "create NAME",
	Short: "Create an archive",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runApp(cmd, "CreateArchive", args[0], true, func(ctx context.Context, a *app.App) error {
			meta, err := a.Engine().CreateArchive(ctx, args[0])
			if err != nil {
				return fmt.Errorf("creating archive: %w", err)
			}
			return emit(cmd, meta, func(w io.Writer) {
				fmt.Fprintf(w, "Created archive %s\n", meta.Name)
			})
		})
	},
}

var archiveListCmd = &cobra.Command{
	Use:   "list",
	Short: "List archives",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runApp(cmd, "ListArchives", "", false, func(ctx context.Context, a *app.App) error {
			names, err := a.Engine().ListArchives()
			if err != nil {
				return err
			}
			return emit(cmd, names, func(w io.Writer) {
				if len(names) == 0 {
					fmt.Fprintln(w, "No archives.")
				}
				for _, n := range names {
					fmt.Fprintln(w, n)
				}
			})
		})
	},
}

var archiveShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show an archive's counts and archivists",
	RunE: func(cmd *cobra.Command, args []string) error {
		archive, err := archiveFlag(cmd)
		if err != nil {
			return err
		}
		return runApp(cmd, "DescribeArchive", archive, false, func(ctx context.Context, a *app.App) error {
			sum, err := a.DescribeArchive(archive)
			if err != nil {
				return err
			}
			return emit(cmd, sum, func(w io.Writer) {
				fmt.Fprintf(w, "Archive:     %s\n", sum.Archive.Name)
				fmt.Fprintf(w, "Created:     %s\n", sum.Archive.Created.Format("2006-01-02 15:04:05"))
				fmt.Fprintf(w, "Updated:     %s\n", sum.Archive.Updated.Format("2006-01-02 15:04:05"))
				fmt.Fprintf(w, "Head:        %s\n", short(sum.Head))
				fmt.Fprintf(w, "Documents:   %d\n", sum.Documents)
				fmt.Fprintf(w, "Collections: %d\n", sum.Collections)
				fmt.Fprintf(w, "Tags:        %d\n", sum.Tags)
				for _, ar := range sum.Archivists {
					printArchivist(w, ar)
				}
			})
		})
	},
}

var archiveCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Verify that the tag index agrees with every entity",
	RunE: func(cmd *cobra.Command, args []string) error {
		archive, err := archiveFlag(cmd)
		if err != nil {
			return err
		}
		return runApp(cmd, "CheckIntegrity", archive, false, func(ctx context.Context, a *app.App) error {
			if err := a.Engine().CheckIntegrity(archive); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Archive %s is consistent\n", archive)
			return nil
		})
	},
}

// archivist command
var archivistCmd = &cobra.Command{
	Use:   "archivist",
	Short: "Manage archivists",
}

var archivistRegisterCmd = &cobra.Command{
	Use:   "register USERNAME",
	Short: "Register an archivist",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		displayName, _ := cmd.Flags().GetString("display-name")
		archive, err := archiveFlag(cmd)
		if err != nil {
			return err
		}
		return runApp(cmd, "RegisterArchivist", archive, true, func(ctx context.Context, a *app.App) error {
			ar, err := a.Engine().RegisterArchivist(ctx, archive, args[0], displayName)
			if err != nil {
				return fmt.Errorf("registering archivist: %w", err)
			}
			return emit(cmd, ar, func(w io.Writer) {
				fmt.Fprintf(w, "Registered %s (%s)\n", ar.Username, ar.DisplayName)
			})
		})
	},
}

var archivistListCmd = &cobra.Command{
	Use:   "list",
	Short: "List archivists and their activity",
	RunE: func(cmd *cobra.Command, args []string) error {
		archive, err := archiveFlag(cmd)
		if err != nil {
			return err
		}
		return runApp(cmd, "ListArchivists", archive, false, func(ctx context.Context, a *app.App) error {
			list, err := a.Engine().ListArchivists(archive)
			if err != nil {
				return err
			}
			return emit(cmd, list, func(w io.Writer) {
				for _, ar := range list {
					printArchivist(w, ar)
				}
			})
		})
	},
}

var archivistShowCmd = &cobra.Command{
	Use:   "show USERNAME",
	Short: "Show one archivist",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		archive, err := archiveFlag(cmd)
		if err != nil {
			return err
		}
		return runApp(cmd, "GetArchivist", archive, false, func(ctx context.Context, a *app.App) error {
			ar, err := a.Engine().GetArchivist(archive, args[0])
			if err != nil {
				return err
			}
			return emit(cmd, ar, func(w io.Writer) { printArchivist(w, ar) })
		})
	},
}

func printArchivist(w io.Writer, ar *arc.Archivist) {
	s := ar.Stats
	fmt.Fprintf(w, "%-16s %-24s docs +%d ~%d  collections +%d ~%d\n",
		ar.Username, ar.DisplayName,
		s.DocumentsCreated, s.DocumentsUpdated,
		s.CollectionsCreated, s.CollectionsUpdated,
	)
}

// tree command
var treeCmd = &cobra.Command{
	Use:   "tree",
	Short: "Draw collections and their documents",
	RunE: func(cmd *cobra.Command, args []string) error {
		archive, err := archiveFlag(cmd)
		if err != nil {
			return err
		}
		return runApp(cmd, "Tree", archive, false, func(ctx context.Context, a *app.App) error {
			e := a.Engine()
			cols, err := e.ListCollections(archive)
			if err != nil {
				return err
			}
			unsorted, err := e.ListUnsorted(archive)
			if err != nil {
				return err
			}

			names := make(map[string]string)
			for _, c := range cols {
				for _, h := range c.Documents {
					names[h] = ""
				}
			}
			for _, h := range unsorted {
				names[h] = ""
			}
			for h := range names {
				doc, err := e.GetDocument(archive, h)
				if err != nil {
					return err
				}
				names[h] = doc.Meta.Name
			}

			fmt.Fprint(cmd.OutOrStdout(), renderTree(archive, cols, unsorted, names))
			return nil
		})
	},
}

func init() {
	archiveCmd.AddCommand(archiveCreateCmd)
	archiveCmd.AddCommand(archiveListCmd)
	archiveCmd.AddCommand(archiveShowCmd)
	archiveCmd.AddCommand(archiveCheckCmd)
	rootCmd.AddCommand(archiveCmd)

	archivistCmd.AddCommand(archivistRegisterCmd)
	archivistRegisterCmd.Flags().String("display-name", "", "Display name (defaults to the username)")
	archivistCmd.AddCommand(archivistListCmd)
	archivistCmd.AddCommand(archivistShowCmd)
	rootCmd.AddCommand(archivistCmd)

	rootCmd.AddCommand(treeCmd)
}
