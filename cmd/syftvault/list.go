package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/goccy/go-json"
	"github.com/openmined/syftvault/internal/fsobject"
	"github.com/openmined/syftvault/internal/vault"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// listEntry is one flattened index entry.
type listEntry struct {
	Path   string `json:"path" yaml:"path"`
	Kind   string `json:"kind" yaml:"kind"`
	Size   int64  `json:"size,omitempty" yaml:"size,omitempty"`
	Hash   string `json:"hash,omitempty" yaml:"hash,omitempty"`
	Target string `json:"target,omitempty" yaml:"target,omitempty"`
}

func newListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list --from URL",
		Short: "Show the remote index",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, _ := cmd.Flags().GetString("format")
			switch format {
			case "text", "json", "yaml":
			default:
				return fmt.Errorf("unknown format %q, want text, json or yaml", format)
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

			tree, err := v.List(cmd.Context())
			if err != nil {
				return err
			}
			return writeList(cmd.OutOrStdout(), tree, format)
		},
	}

	cmd.Flags().StringP("from", "f", "", "root URL to list")
	cmd.Flags().StringP("format", "o", "text", "output format: text, json or yaml")
	return cmd
}

func flatten(tree fsobject.Tree) []listEntry {
	var entries []listEntry
	_ = fsobject.Walk(tree, func(o fsobject.Object) error {
		e := listEntry{Path: o.Path(), Kind: o.Kind().String()}
		switch x := o.(type) {
		case *fsobject.File:
			e.Size = x.Size()
			e.Hash = x.ContentHash()
		case *fsobject.Symlink:
			e.Target = x.Target()
		}
		entries = append(entries, e)
		return nil
	})
	return entries
}

func writeList(w io.Writer, tree fsobject.Tree, format string) error {
	entries := flatten(tree)
	if entries == nil {
		entries = []listEntry{}
	}

	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	case "yaml":
		enc := yaml.NewEncoder(w)
		defer enc.Close()
		enc.SetIndent(2)
		return enc.Encode(entries)
	}

	for _, e := range entries {
		switch e.Kind {
		case fsobject.KindDirectory.String():
			fmt.Fprintln(w, cyan.Render(strings.TrimSuffix(e.Path, "/")+"/"))
		case fsobject.KindSymlink.String():
			fmt.Fprintf(w, "%s %s\n", e.Path, gray.Render("-> "+e.Target))
		default:
			fmt.Fprintf(w, "%s %s\n", e.Path, gray.Render(humanize.Bytes(uint64(e.Size))))
		}
	}
	s := fsobject.Count(tree)
	fmt.Fprintf(w, "%s%d files, %d directories, %d symlinks, %s\n",
		bold.Render("Index: "), s.Files, s.Directories, s.Symlinks, humanize.Bytes(uint64(s.Bytes)))
	return nil
}
