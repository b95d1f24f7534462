package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"arc-go/internal/app"
	"arc-go/internal/arc"

	"github.com/spf13/cobra"
)

// documentInput builds the metadata shared by `doc add` and `upload stage`.
func documentInput(cmd *cobra.Command) arc.DocumentInput {
	name, _ := cmd.Flags().GetString("name")
	fileType, _ := cmd.Flags().GetString("type")
	tags, _ := cmd.Flags().GetStringSlice("tag")
	return arc.DocumentInput{Name: name, FileType: fileType, Tags: tags}
}

func addDocumentFlags(cmd *cobra.Command) {
	cmd.Flags().String("name", "", "Document name (defaults to the file name)")
	cmd.Flags().String("type", "", "MIME type (inferred from the name when empty)")
	cmd.Flags().StringSliceP("tag", "t", nil, "Tag to attach; repeatable")
}

// doc command
var docCmd = &cobra.Command{
	Use:   "doc",
	Short: "Manage documents",
}

var docAddCmd = &cobra.Command{
	Use:   "add PATH...",
	Short: "Store files as documents",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		archive, archivist, err := scope(cmd)
		if err != nil {
			return err
		}
		input := documentInput(cmd)
		if input.Name != "" && len(args) > 1 {
			return fmt.Errorf("--name applies to a single file")
		}
		return runApp(cmd, "CreateDocument", archive, true, func(ctx context.Context, a *app.App) error {
			results := make([]arc.UploadResult, 0, len(args))
			for _, p := range args {
				hash, isNew, err := a.CreateDocumentFromFile(ctx, archive, archivist, p, input)
				if err != nil {
					return fmt.Errorf("adding %s: %w", p, err)
				}
				results = append(results, arc.UploadResult{Hash: hash, Name: p, IsNew: isNew})
			}
			return emit(cmd, results, func(w io.Writer) { printResults(w, results) })
		})
	},
}

func printResults(w io.Writer, results []arc.UploadResult) {
	for _, r := range results {
		state := "new"
		if !r.IsNew {
			state = "existing"
		}
		fmt.Fprintf(w, "%s  %-8s  %s\n", r.Hash, state, r.Name)
	}
}

var docGetCmd = &cobra.Command{
	Use:   "get HASH",
	Short: "Write a document's payload to a file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		out, _ := cmd.Flags().GetString("out")
		archive, err := archiveFlag(cmd)
		if err != nil {
			return err
		}
		return runApp(cmd, "GetDocument", archive, false, func(ctx context.Context, a *app.App) error {
			p, err := a.ExportDocument(archive, args[0], out)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", p)
			return nil
		})
	},
}

// documentView is a document without its payload.
type documentView struct {
	Hash string           `json:"hash" yaml:"hash"`
	Size int              `json:"size" yaml:"size"`
	Meta arc.DocumentMeta `json:"meta" yaml:"meta"`
}

var docShowCmd = &cobra.Command{
	Use:   "show HASH",
	Short: "Show a document's metadata",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		archive, err := archiveFlag(cmd)
		if err != nil {
			return err
		}
		return runApp(cmd, "GetDocument", archive, false, func(ctx context.Context, a *app.App) error {
			doc, err := a.Engine().GetDocument(archive, args[0])
			if err != nil {
				return err
			}
			view := documentView{Hash: doc.Hash, Size: len(doc.Payload), Meta: doc.Meta}
			return emit(cmd, view, func(w io.Writer) {
				m := doc.Meta
				fmt.Fprintf(w, "Hash:      %s\n", doc.Hash)
				fmt.Fprintf(w, "Name:      %s\n", m.Name)
				fmt.Fprintf(w, "Type:      %s\n", m.FileType)
				fmt.Fprintf(w, "Size:      %d\n", len(doc.Payload))
				fmt.Fprintf(w, "Archivist: %s\n", m.Archivist)
				fmt.Fprintf(w, "Tags:      %s\n", strings.Join(m.Tags, ", "))
				fmt.Fprintf(w, "Created:   %s\n", m.Created.Format("2006-01-02 15:04:05"))
				fmt.Fprintf(w, "Updated:   %s\n", m.Updated.Format("2006-01-02 15:04:05"))
			})
		})
	},
}

var docListCmd = &cobra.Command{
	Use:   "list",
	Short: "List document hashes",
	RunE: func(cmd *cobra.Command, args []string) error {
		unsorted, _ := cmd.Flags().GetBool("unsorted")
		tag, _ := cmd.Flags().GetString("tag")
		archive, err := archiveFlag(cmd)
		if err != nil {
			return err
		}
		if unsorted && tag != "" {
			return fmt.Errorf("--unsorted and --tag are exclusive")
		}
		return runApp(cmd, "ListDocuments", archive, false, func(ctx context.Context, a *app.App) error {
			var hashes []string
			switch {
			case unsorted:
				hashes, err = a.Engine().ListUnsorted(archive)
			case tag != "":
				hashes, err = a.Engine().DocumentsByTag(archive, tag)
			default:
				hashes, err = a.Engine().ListDocuments(archive)
			}
			if err != nil {
				return err
			}
			return emit(cmd, hashes, func(w io.Writer) {
				for _, h := range hashes {
					fmt.Fprintln(w, h)
				}
			})
		})
	},
}

var docRemoveCmd = &cobra.Command{
	Use:   "rm HASH",
	Short: "Delete a document and every reference to it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		archive, archivist, err := scope(cmd)
		if err != nil {
			return err
		}
		return runApp(cmd, "DeleteDocument", archive, true, func(ctx context.Context, a *app.App) error {
			if err := a.Engine().DeleteDocument(ctx, archive, archivist, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", short(args[0]))
			return nil
		})
	},
}

var docRenameCmd = &cobra.Command{
	Use:   "rename HASH NAME",
	Short: "Rename a document",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		archive, archivist, err := scope(cmd)
		if err != nil {
			return err
		}
		return runApp(cmd, "RenameDocument", archive, true, func(ctx context.Context, a *app.App) error {
			return a.Engine().RenameDocument(ctx, archive, archivist, args[0], args[1])
		})
	},
}

var docTypeCmd = &cobra.Command{
	Use:   "type HASH MIME",
	Short: "Set a document's file type",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		archive, archivist, err := scope(cmd)
		if err != nil {
			return err
		}
		return runApp(cmd, "SetFileType", archive, true, func(ctx context.Context, a *app.App) error {
			return a.Engine().SetFileType(ctx, archive, archivist, args[0], args[1])
		})
	},
}

var docTagCmd = &cobra.Command{
	Use:   "tag HASH TAG",
	Short: "Tag a document",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		archive, archivist, err := scope(cmd)
		if err != nil {
			return err
		}
		return runApp(cmd, "AddDocumentTag", archive, true, func(ctx context.Context, a *app.App) error {
			added, err := a.Engine().AddDocumentTag(ctx, archive, archivist, args[0], args[1])
			if err != nil {
				return err
			}
			if !added {
				fmt.Fprintf(cmd.OutOrStdout(), "%s already tagged %s\n", short(args[0]), args[1])
			}
			return nil
		})
	},
}

var docUntagCmd = &cobra.Command{
	Use:   "untag HASH TAG",
	Short: "Remove a tag from a document",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		archive, archivist, err := scope(cmd)
		if err != nil {
			return err
		}
		return runApp(cmd, "RemoveDocumentTag", archive, true, func(ctx context.Context, a *app.App) error {
			return a.Engine().RemoveDocumentTag(ctx, archive, archivist, args[0], args[1])
		})
	},
}

func init() {
	docCmd.AddCommand(docAddCmd)
	addDocumentFlags(docAddCmd)
	docCmd.AddCommand(docGetCmd)
	docGetCmd.Flags().String("out", "", "Destination file (defaults to the document name)")
	docCmd.AddCommand(docShowCmd)
	docCmd.AddCommand(docListCmd)
	docListCmd.Flags().Bool("unsorted", false, "Only documents in no collection")
	docListCmd.Flags().String("tag", "", "Only documents with this tag")
	docCmd.AddCommand(docRemoveCmd)
	docCmd.AddCommand(docRenameCmd)
	docCmd.AddCommand(docTypeCmd)
	docCmd.AddCommand(docTagCmd)
	docCmd.AddCommand(docUntagCmd)
	rootCmd.AddCommand(docCmd)
}
