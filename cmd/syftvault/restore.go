package main

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/openmined/syftvault/internal/vault"
	"github.com/spf13/cobra"
)

func newRestoreCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "restore [PATH...] --from URL --dest DIR",
		Short: "Recreate backed up paths under a destination directory",
		Long: `Recreate backed up paths under a destination directory.

Each PATH is an absolute path or glob, matched against full paths and base
names in the remote index. A matching directory brings its whole subtree.
Original paths are recreated below --dest, so /home/me/a.txt restored to
/tmp/r lands in /tmp/r/home/me/a.txt.`,
		Example: `  syftvault restore --all --from s3://bucket/prefix --dest /tmp/r
  syftvault restore '*.pdf' --from sftp://me@nas/backups --dest .`,
		RunE: func(cmd *cobra.Command, args []string) error {
			all, _ := cmd.Flags().GetBool("all")
			dest, _ := cmd.Flags().GetString("dest")
			overwrite, _ := cmd.Flags().GetBool("overwrite")
			if all && len(args) > 0 {
				return errors.New("pass either --all or paths, not both")
			}
			if !all && len(args) == 0 {
				return errors.New("nothing to restore: pass paths or --all")
			}

			cfg, err := runConfig(cmd)
			if err != nil {
				return err
			}
			v, err := vault.New(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer v.Close()

			rep, err := v.Restore(cmd.Context(), vault.RestoreOptions{
				Dest:      dest,
				All:       all,
				Selectors: args,
				Overwrite: overwrite,
			})
			if err != nil {
				return err
			}
			printRestoreReport(cmd.OutOrStdout(), rep, dest)
			return nil
		},
	}

	f := cmd.Flags()
	f.SortFlags = false
	f.StringP("from", "f", "", "root URL to restore from")
	f.StringP("dest", "d", ".", "directory to restore into")
	f.BoolP("all", "a", false, "restore everything in the index")
	f.Bool("overwrite", false, "replace existing files at the destination")
	return cmd
}

func printRestoreReport(w io.Writer, rep *vault.Report, dest string) {
	for _, p := range rep.Restored {
		fmt.Fprintln(w, green.Render("> "+p))
	}
	fmt.Fprintf(w, "%srestored %s into %s, downloaded %s\n",
		bold.Render("Restore: "),
		humanize.Comma(int64(len(rep.Restored))),
		dest,
		humanize.Bytes(uint64(rep.BytesDownloaded)),
	)
	fmt.Fprintln(w, gray.Render(fmt.Sprintf("run %s took %s", rep.RunID, rep.Duration.Round(time.Millisecond))))
}
