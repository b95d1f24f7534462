package main

import (
	"context"
	"fmt"
	"io"

	"arc-go/internal/app"
	"arc-go/internal/arc"

	"github.com/spf13/cobra"
)

// upload command
var uploadCmd = &cobra.Command{
	Use:   "upload",
	Short: "Stage several documents and commit them together",
}

var uploadBeginCmd = &cobra.Command{
	Use:   "begin",
	Short: "Open an upload session",
	RunE: func(cmd *cobra.Command, args []string) error {
		archive, archivist, err := scope(cmd)
		if err != nil {
			return err
		}
		return runApp(cmd, "BeginUpload", archive, false, func(ctx context.Context, a *app.App) error {
			sess, err := a.Engine().BeginUpload(ctx, archive, archivist)
			if err != nil {
				return err
			}
			return emit(cmd, sess, func(w io.Writer) { fmt.Fprintln(w, sess.ID) })
		})
	},
}

var uploadStageCmd = &cobra.Command{
	Use:   "stage SESSION PATH...",
	Short: "Add files to an upload session",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		input := documentInput(cmd)
		if input.Name != "" && len(args) > 2 {
			return fmt.Errorf("--name applies to a single file")
		}
		return runApp(cmd, "StageUpload", "", false, func(ctx context.Context, a *app.App) error {
			for _, p := range args[1:] {
				if err := a.StageFile(args[0], p, input); err != nil {
					return fmt.Errorf("staging %s: %w", p, err)
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Staged %d file(s)\n", len(args)-1)
			return nil
		})
	},
}

// stagedView lists a session's staged uploads without their payloads.
type stagedView struct {
	Session *arc.UploadSession `json:"session" yaml:"session"`
	Uploads []stagedItem       `json:"uploads" yaml:"uploads"`
}

type stagedItem struct {
	Name     string   `json:"name" yaml:"name"`
	FileType string   `json:"fileType,omitempty" yaml:"fileType,omitempty"`
	Tags     []string `json:"tags,omitempty" yaml:"tags,omitempty"`
	Size     int      `json:"size" yaml:"size"`
}

var uploadShowCmd = &cobra.Command{
	Use:   "show SESSION",
	Short: "List the files staged in a session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runApp(cmd, "GetUpload", "", false, func(ctx context.Context, a *app.App) error {
			sess, uploads, err := a.Engine().GetUpload(args[0])
			if err != nil {
				return err
			}
			view := stagedView{Session: sess}
			for _, u := range uploads {
				view.Uploads = append(view.Uploads, stagedItem{
					Name:     u.Input.Name,
					FileType: u.Input.FileType,
					Tags:     u.Input.Tags,
					Size:     len(u.Payload),
				})
			}
			return emit(cmd, view, func(w io.Writer) {
				fmt.Fprintf(w, "Session %s in %s by %s, last active %s\n",
					sess.ID, sess.Archive, sess.Archivist, sess.LastActivity.Format("2006-01-02 15:04:05"))
				for _, it := range view.Uploads {
					fmt.Fprintf(w, "  %-32s %8d\n", it.Name, it.Size)
				}
			})
		})
	},
}

var uploadCommitCmd = &cobra.Command{
	Use:   "commit SESSION",
	Short: "Store every staged file under one commit",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		// The session knows its archive; look it up first so the operation
		// is scoped for snapshot-on-change.
		var archive string
		err := runApp(cmd, "GetUpload", "", false, func(ctx context.Context, a *app.App) error {
			sess, _, err := a.Engine().GetUpload(args[0])
			if err != nil {
				return err
			}
			archive = sess.Archive
			return nil
		})
		if err != nil {
			return err
		}

		return runApp(cmd, "CommitUpload", archive, true, func(ctx context.Context, a *app.App) error {
			results, commit, err := a.Engine().CommitUpload(ctx, args[0])
			if err != nil {
				return err
			}
			view := struct {
				Results []arc.UploadResult `json:"results" yaml:"results"`
				Commit  *arc.Commit        `json:"commit,omitempty" yaml:"commit,omitempty"`
			}{results, commit}
			return emit(cmd, view, func(w io.Writer) {
				printResults(w, results)
				if commit != nil {
					fmt.Fprintf(w, "Commit %s\n", commit.Hash)
				}
			})
		})
	},
}

var uploadAbortCmd = &cobra.Command{
	Use:   "abort SESSION",
	Short: "Discard an upload session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runApp(cmd, "AbortUpload", "", false, func(ctx context.Context, a *app.App) error {
			return a.Engine().AbortUpload(args[0])
		})
	},
}

var uploadSweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Discard expired upload sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runApp(cmd, "SweepSessions", "", false, func(ctx context.Context, a *app.App) error {
			n, err := a.Engine().SweepSessions()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d expired session(s)\n", n)
			return nil
		})
	},
}

// snapshot command
var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Copy archives to the vault and back",
}

var snapshotCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Snapshot an archive into the vault",
	RunE: func(cmd *cobra.Command, args []string) error {
		archive, err := archiveFlag(cmd)
		if err != nil {
			return err
		}
		return runApp(cmd, "Snapshot", archive, false, func(ctx context.Context, a *app.App) error {
			info, err := a.Snapshot(ctx, archive)
			if err != nil {
				return err
			}
			return emit(cmd, info, func(w io.Writer) {
				fmt.Fprintf(w, "Stored %s (%d files, %d bytes)\n", info.Name, info.Files, info.Size)
			})
		})
	},
}

var snapshotListCmd = &cobra.Command{
	Use:   "list",
	Short: "List an archive's snapshots",
	RunE: func(cmd *cobra.Command, args []string) error {
		archive, err := archiveFlag(cmd)
		if err != nil {
			return err
		}
		return runApp(cmd, "ListSnapshots", archive, false, func(ctx context.Context, a *app.App) error {
			names, err := a.ListSnapshots(ctx, archive)
			if err != nil {
				return err
			}
			return emit(cmd, names, func(w io.Writer) {
				if len(names) == 0 {
					fmt.Fprintln(w, "No snapshots.")
				}
				for _, n := range names {
					fmt.Fprintln(w, n)
				}
			})
		})
	},
}

var snapshotRestoreCmd = &cobra.Command{
	Use:   "restore [NAME]",
	Short: "Restore a snapshot (the newest by default) as a new archive",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		target, _ := cmd.Flags().GetString("into")
		archive, err := archiveFlag(cmd)
		if err != nil {
			return err
		}
		var name string
		if len(args) > 0 {
			name = args[0]
		}

		return runApp(cmd, "RestoreSnapshot", archive, false, func(ctx context.Context, a *app.App) error {
			var passphrase string
			if a.Config().Encryption.Type != "none" && a.Config().Encryption.Type != "" {
				var err error
				if passphrase, err = readPassphrase(cmd, "Passphrase: "); err != nil {
					return err
				}
			}
			info, err := a.RestoreSnapshot(ctx, archive, name, target, passphrase)
			if info != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "Restored %s as %s (%d files)\n", info.Name, info.Archive, info.Files)
			}
			return err
		})
	},
}

func init() {
	uploadCmd.AddCommand(uploadBeginCmd)
	uploadCmd.AddCommand(uploadStageCmd)
	addDocumentFlags(uploadStageCmd)
	uploadCmd.AddCommand(uploadShowCmd)
	uploadCmd.AddCommand(uploadCommitCmd)
	uploadCmd.AddCommand(uploadAbortCmd)
	uploadCmd.AddCommand(uploadSweepCmd)
	rootCmd.AddCommand(uploadCmd)

	snapshotCmd.AddCommand(snapshotCreateCmd)
	snapshotCmd.AddCommand(snapshotListCmd)
	snapshotCmd.AddCommand(snapshotRestoreCmd)
	snapshotRestoreCmd.Flags().String("into", "", "Name of the restored archive (defaults to the original name)")
	rootCmd.AddCommand(snapshotCmd)
}
