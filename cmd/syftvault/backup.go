package main

import (
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/openmined/syftvault/internal/vault"
	"github.com/spf13/cobra"
)

func newBackupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup SOURCE... --to URL",
		Short: "Mirror files and directories to a remote root",
		Long: `Mirror files and directories to a remote root.

Sources may be glob patterns. Only files whose content changed since the
last backup are uploaded, and files deleted locally are removed remotely.

Supported roots: file, mem, ftp, sftp, s3, dav and davs URLs, or a plain path.`,
		Example: `  syftvault backup ~/Documents --to sftp://me@nas/backups
  syftvault backup '~/src/**/*.go' --to s3://bucket/prefix -x vendor`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := runConfig(cmd)
			if err != nil {
				return err
			}

			var opts []vault.Option
			if p := retryPolicy(); p != nil {
				opts = append(opts, vault.WithRetryPolicy(p))
			}

			v, err := vault.New(cmd.Context(), cfg, opts...)
			if err != nil {
				return err
			}
			defer v.Close()

			rep, err := v.Backup(cmd.Context(), args)
			if err != nil {
				return err
			}
			printBackupReport(cmd.OutOrStdout(), rep)
			return nil
		},
	}

	f := cmd.Flags()
	f.SortFlags = false
	f.StringP("to", "t", "", "destination root URL")
	f.StringArrayP("exclude", "x", nil, "glob of paths or names to skip, repeatable")
	f.String("ignore-file", "", "gitignore-style file of paths to skip")
	f.BoolP("dry-run", "n", false, "show what would change without touching the remote")
	f.Bool("hash-cache", false, "reuse content hashes of unchanged files")
	return cmd
}

func printBackupReport(w io.Writer, rep *vault.Report) {
	verb := ""
	if rep.DryRun {
		verb = "would "
	}

	for _, p := range rep.Removed {
		fmt.Fprintln(w, red.Render("- "+p))
	}
	for _, p := range rep.Updated {
		fmt.Fprintln(w, green.Render("+ "+p))
	}

	if !rep.Changed() {
		fmt.Fprintln(w, cyan.Render("Remote is up to date"))
	} else {
		fmt.Fprintf(w, "%s%s %s, %s %s, %s %s\n",
			bold.Render("Backup: "),
			verb+"update", humanize.Comma(int64(len(rep.Updated))),
			verb+"remove", humanize.Comma(int64(len(rep.Removed))),
			"uploaded", humanize.Bytes(uint64(rep.BytesUploaded)),
		)
	}
	if !rep.DryRun && !rep.IndexSaved && rep.Changed() {
		fmt.Fprintln(w, yellow.Render("Remote index was not updated"))
	}
	fmt.Fprintln(w, gray.Render(fmt.Sprintf("run %s took %s", rep.RunID, rep.Duration.Round(time.Millisecond))))
}
