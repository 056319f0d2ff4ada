package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/nickyhof/AdOrchDB/db"
	"github.com/nickyhof/AdOrchDB/ps"
	"github.com/spf13/cobra"
)

func NewSnapshotsCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "snapshots",
		Aliases: []string{"snapshot", "snap"},
		Short:   "Inspect, tag, restore and mirror store snapshots",
	}

	cmd.AddCommand(newSnapshotLogCommand(rootOpts))
	cmd.AddCommand(newSnapshotTagCommand(rootOpts))
	cmd.AddCommand(newSnapshotListCommand(rootOpts))
	cmd.AddCommand(newSnapshotRestoreCommand(rootOpts))
	cmd.AddCommand(newSnapshotRecoverCommand(rootOpts))
	cmd.AddCommand(newSnapshotExportCommand(rootOpts))
	cmd.AddCommand(newSnapshotImportCommand(rootOpts))
	cmd.AddCommand(newSnapshotPushCommand(rootOpts))
	cmd.AddCommand(newRemoteCommand(rootOpts))

	return cmd
}

func newSnapshotLogCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		since time.Duration
		limit int
	)

	cmd := &cobra.Command{
		Use:   "log",
		Short: "List saves, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := rootOpts.open()
			if err != nil {
				return err
			}
			defer s.close()

			var asof time.Time
			if since > 0 {
				asof = time.Now().Add(-since)
			}
			history, err := s.instance.Persistence.TransactionsSince(asof)
			if err != nil {
				return err
			}
			if limit > 0 && len(history) > limit {
				history = history[:limit]
			}

			return output(cmd.OutOrStdout(), rootOpts.Format, history, func(w io.Writer) {
				table := db.NewTable(w)
				table.Header([]string{"commit", "when", "author", "message"})
				for _, txn := range history {
					table.Row([]string{shortHash(txn.Id), txn.When.Format(time.DateTime), txn.Author, txn.Message})
				}
				table.Render()
			})
		},
	}

	cmd.Flags().DurationVar(&since, "since", 0, "only saves within this window")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum number of saves, 0 for all")
	return cmd
}

func newSnapshotTagCommand(rootOpts *RootOptions) *cobra.Command {
	var commit string

	cmd := &cobra.Command{
		Use:   "tag <name>",
		Short: "Name the latest save, or --commit, as a snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := rootOpts.open()
			if err != nil {
				return err
			}
			defer s.close()

			var asof *ps.Transaction
			if commit != "" {
				asof = &ps.Transaction{Id: commit}
			}
			if err := s.instance.Persistence.Snapshot(args[0], asof); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s✓ Created snapshot %s%s\n", SuccessColor, args[0], ResetColor)
			return nil
		},
	}

	cmd.Flags().StringVar(&commit, "commit", "", "commit hash to tag")
	return cmd
}

func newSnapshotListCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List snapshot names",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := rootOpts.open()
			if err != nil {
				return err
			}
			defer s.close()

			names, err := s.instance.Persistence.Snapshots()
			if err != nil {
				return err
			}

			return output(cmd.OutOrStdout(), rootOpts.Format, names, func(w io.Writer) {
				if len(names) == 0 {
					fmt.Fprintln(w, "No snapshots")
					return
				}
				for _, name := range names {
					fmt.Fprintln(w, name)
				}
			})
		},
	}
}

func newSnapshotRestoreCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "restore <commit>",
		Short: "Write an earlier save back as the current state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := rootOpts.open()
			if err != nil {
				return err
			}
			defer s.close()

			txn, err := s.db.Restore(ps.Transaction{Id: args[0]})
			if err != nil {
				return err
			}
			return printRewind(cmd.OutOrStdout(), rootOpts.Format, txn)
		},
	}
}

func newSnapshotRecoverCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "recover <name>",
		Short: "Restore the save a snapshot name points at",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := rootOpts.open()
			if err != nil {
				return err
			}
			defer s.close()

			txn, err := s.db.Recover(args[0])
			if err != nil {
				return err
			}
			return printRewind(cmd.OutOrStdout(), rootOpts.Format, txn)
		},
	}
}

func printRewind(w io.Writer, format string, txn ps.Transaction) error {
	return output(w, format, txn, func(w io.Writer) {
		fmt.Fprintf(w, "%s✓ Restored as %s%s\n", SuccessColor, shortHash(txn.Id), ResetColor)
	})
}

func newSnapshotExportCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "export [location]",
		Short: "Copy the current snapshot to a path or s3:// URL",
		Long: `Copy the current snapshot to a local path, file:// or s3:// URL, by default
ADORCH_MIRROR_URL. S3 credentials come from ADORCH_S3_ACCESS_KEY and
ADORCH_S3_SECRET_KEY when set, otherwise from the default AWS credential chain.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := rootOpts.open()
			if err != nil {
				return err
			}
			defer s.close()

			location, err := s.mirrorLocation(args)
			if err != nil {
				return err
			}

			data, err := s.db.Export()
			if err != nil {
				return err
			}
			if err := ps.PublishSnapshot(cmd.Context(), location, data, s.s3Config()); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s✓ Exported %d bytes to %s%s\n", SuccessColor, len(data), location, ResetColor)
			return nil
		},
	}
}

func newSnapshotImportCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "import [location]",
		Short: "Replace the store with a snapshot from a path, http(s):// or s3:// URL",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := rootOpts.open()
			if err != nil {
				return err
			}
			defer s.close()

			location, err := s.mirrorLocation(args)
			if err != nil {
				return err
			}

			data, err := ps.FetchSnapshot(cmd.Context(), location, s.s3Config())
			if err != nil {
				return err
			}
			txn, err := s.db.Import(data, fmt.Sprintf("import %s", location))
			if err != nil {
				return err
			}

			return output(cmd.OutOrStdout(), rootOpts.Format, txn, func(w io.Writer) {
				fmt.Fprintf(w, "%s✓ Imported %s%s\n", SuccessColor, location, ResetColor)
			})
		},
	}
}

func newSnapshotPushCommand(rootOpts *RootOptions) *cobra.Command {
	var auth ps.RemoteAuth
	var authType string

	cmd := &cobra.Command{
		Use:   "push [remote]",
		Short: "Push the snapshot history and tags to a Git remote",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := rootOpts.open()
			if err != nil {
				return err
			}
			defer s.close()

			remote := "origin"
			if len(args) == 1 {
				remote = args[0]
			}
			auth.Type = ps.AuthType(authType)
			if auth.Token == "" {
				auth.Token = os.Getenv("ADORCH_GIT_TOKEN")
			}

			if err := s.instance.Persistence.Push(remote, &auth); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s✓ Pushed to %s%s\n", SuccessColor, remote, ResetColor)
			return nil
		},
	}

	cmd.Flags().StringVar(&authType, "auth", "none", "auth type (none|token|ssh|basic)")
	cmd.Flags().StringVar(&auth.Token, "token", "", "access token (or ADORCH_GIT_TOKEN)")
	cmd.Flags().StringVar(&auth.KeyPath, "key", "", "SSH private key path")
	cmd.Flags().StringVar(&auth.Username, "username", "", "basic auth username")
	cmd.Flags().StringVar(&auth.Password, "password", "", "basic auth password")
	return cmd
}

func newRemoteCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "remote",
		Short: "Manage Git remotes for snapshot history",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "add <name> <url>",
		Short: "Add a remote",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := rootOpts.open()
			if err != nil {
				return err
			}
			defer s.close()

			if err := s.instance.Persistence.AddRemote(args[0], args[1]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s✓ Added remote %s%s\n", SuccessColor, args[0], ResetColor)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List remotes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := rootOpts.open()
			if err != nil {
				return err
			}
			defer s.close()

			remotes, err := s.instance.Persistence.ListRemotes()
			if err != nil {
				return err
			}
			return output(cmd.OutOrStdout(), rootOpts.Format, remotes, func(w io.Writer) {
				for _, remote := range remotes {
					for _, url := range remote.URLs {
						fmt.Fprintf(w, "%s\t%s\n", remote.Name, url)
					}
				}
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "remove <name>",
		Short: "Remove a remote",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := rootOpts.open()
			if err != nil {
				return err
			}
			defer s.close()

			return s.instance.Persistence.RemoveRemote(args[0])
		},
	})

	return cmd
}

func (s *session) mirrorLocation(args []string) (string, error) {
	if len(args) == 1 {
		return args[0], nil
	}
	if s.cfg.MirrorURL == "" {
		return "", fmt.Errorf("a location or ADORCH_MIRROR_URL is required")
	}
	return s.cfg.MirrorURL, nil
}

func (s *session) s3Config() *ps.S3Config {
	return &ps.S3Config{
		AccessKey: os.Getenv("ADORCH_S3_ACCESS_KEY"),
		SecretKey: os.Getenv("ADORCH_S3_SECRET_KEY"),
		Region:    s.cfg.AWSRegion,
		Endpoint:  s.cfg.S3Endpoint,
	}
}

func shortHash(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
