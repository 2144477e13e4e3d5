package main

import (
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/jonwraymond/dhivatar/avatar"
	"github.com/jonwraymond/dhivatar/server"
)

func newRenderCmd(configFile *string) *cobra.Command {
	var (
		size       int
		background string
		color      string
		out        string
	)
	cmd := &cobra.Command{
		Use:   "render NAME",
		Short: "Render one avatar to a PNG file",
		Args:  cobra.ExactArgs(1),
	}
	cmd.Flags().IntVar(&size, "size", 0, "edge length in pixels (default server.default_size)")
	cmd.Flags().StringVar(&background, "background", "", "background hex color, e.g. 7e6b5c")
	cmd.Flags().StringVar(&color, "color", "", "foreground hex color")
	cmd.Flags().StringVarP(&out, "out", "o", "avatar.png", "output file")
	cmd.Flags().String("font", "", "TrueType or OpenType font (render.font_path)")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig(cmd.Context(), *configFile, map[string]*pflag.Flag{
			"render.font_path": cmd.Flags().Lookup("font"),
		})
		if err != nil {
			return err
		}
		if size < 0 || size > avatar.MaxRenderSize {
			return fmt.Errorf("size must be within [1, %d]", avatar.MaxRenderSize)
		}

		bg, err := avatar.ResolveColor(background)
		if err != nil {
			return err
		}
		fg, err := avatar.ResolveColor(color)
		if err != nil {
			return err
		}

		renderer, err := server.NewRenderer(cfg)
		if err != nil {
			return err
		}
		data, err := renderer.Render(cmd.Context(), args[0], size, bg, fg)
		if err != nil {
			return err
		}
		if err := os.WriteFile(out, data, 0o644); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%s)\n", out, humanize.Bytes(uint64(len(data))))
		return nil
	}
	return cmd
}
