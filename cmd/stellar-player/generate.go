package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/edumarques81/stellar-player/internal/domain/catalog"
	"github.com/edumarques81/stellar-player/internal/infra/manifest"
)

func newGenerateCmd() *cobra.Command {
	var out, baseURL string

	cmd := &cobra.Command{
		Use:   "generate <albums-dir>",
		Short: "Write a library.json manifest from a directory of album folders",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			albums, err := manifest.Generate(args[0], baseURL)
			if err != nil {
				return err
			}
			if err := manifest.Write(out, albums); err != nil {
				return err
			}

			tracks := lo.SumBy(albums, func(a catalog.AlbumManifest) int { return len(a.Tracks) })
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s: %s albums, %s tracks\n",
				out, humanize.Comma(int64(len(albums))), humanize.Comma(int64(tracks)))
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", manifest.FileName, "Manifest output path")
	cmd.Flags().StringVar(&baseURL, "base-url", "", "Prefix for track URLs, e.g. https://cdn.example.com/albums/")
	return cmd
}
