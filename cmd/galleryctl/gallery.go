package main

import (
	"context"
	"fmt"
	"os"
	"path"
	"strconv"
	"time"

	"github.com/danmuck/urigallery/internal/gallery"
	"github.com/danmuck/urigallery/internal/protocol/session"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

func (a *app) versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Connect and print the peer's protocol version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withGallery(cmd.Context(), func(s *session.Session, _ *gallery.Client) error {
				fmt.Fprintf(a.out, "peer version %d (%s)\n", s.Version(), a.cfg.Transport)
				return nil
			})
		},
	}
}

func (a *app) listCmd() *cobra.Command {
	var byDay bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the images on the peer",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withGallery(cmd.Context(), func(_ *session.Session, g *gallery.Client) error {
				images, err := g.ListImages(cmd.Context())
				if err != nil {
					return err
				}
				if len(images) == 0 {
					fmt.Fprint(a.out, pterm.Info.Sprintln("no images"))
					return nil
				}
				if !byDay {
					return a.renderImages(images)
				}
				for _, day := range gallery.GroupByDay(images, time.Local) {
					fmt.Fprint(a.out, pterm.DefaultSection.Sprintln(day.Title()))
					if err := a.renderImages(day.Images); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&byDay, "by-day", false, "group images by the day they were taken")
	return cmd
}

func (a *app) renderImages(images []gallery.Image) error {
	now := time.Now()
	rows := [][]string{{"Name", "Path", "Size", "Created", "Preview"}}
	for _, img := range images {
		rows = append(rows, []string{
			img.Name,
			img.Path,
			humanBytes(img.Size),
			img.Created().Local().Format(time.DateTime),
			strconv.Itoa(img.PreviewResize(now)),
		})
	}
	table, err := pterm.DefaultTable.WithHasHeader().WithData(rows).Srender()
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(a.out, table)
	return err
}

func (a *app) downloadCmd() *cobra.Command {
	var (
		output string
		resize int
	)
	cmd := &cobra.Command{
		Use:   "download PATH",
		Short: "Download an image",
		Long: `Downloads the image at PATH. Without -o the file is written to the current
directory under its base name; "-o -" writes to stdout.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			src := args[0]
			if output == "" {
				output = path.Base(src)
			}
			return a.withGallery(cmd.Context(), func(_ *session.Session, g *gallery.Client) error {
				if output == "-" {
					_, err := g.DownloadImage(cmd.Context(), src, resize, cmd.OutOrStdout())
					return err
				}
				n, err := downloadFile(cmd.Context(), g, src, resize, output)
				if err != nil {
					return err
				}
				fmt.Fprint(a.out, pterm.Success.Sprintfln("%s -> %s (%s)", src, output, humanBytes(n)))
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "destination file, - for stdout")
	cmd.Flags().IntVar(&resize, "resize", 0, "longest edge in pixels, 0 for the original")
	return cmd
}

// downloadFile writes to a temp file and renames it over dst on success.
func downloadFile(ctx context.Context, g *gallery.Client, src string, resize int, dst string) (int64, error) {
	tmp := dst + ".part"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return 0, err
	}
	n, err := g.DownloadImage(ctx, src, resize, f)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(tmp)
		return n, err
	}
	return n, os.Rename(tmp, dst)
}

func humanBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
