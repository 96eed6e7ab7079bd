package main

import (
	"fmt"
	"os"

	"github.com/nfnt/resize"
	"github.com/spf13/cobra"

	"imgcruncher/cruncher"
)

var (
	crunchQuality       float64
	crunchMaxWidth      int
	crunchMaxHeight     int
	crunchInterpolation int
	crunchOutput        string
)

var crunchCmd = &cobra.Command{
	Use:   "crunch [file]",
	Short: "Downscale and re-encode a base64 image",
	Long: `Fit the image into the bounding box and re-encode it: PNG data URIs stay
PNG, everything else becomes JPEG at the given quality. When the image
cannot be processed the input is written back unchanged and the reason is
reported on stderr.

Examples:
  imgcrunch crunch photo.b64 -o small.b64
  imgcrunch crunch -q 0.8 -W 800 -H 600 < photo.b64`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		input, err := readInput(cmd, argOrEmpty(args))
		if err != nil {
			return err
		}

		logger := newLogger()
		defer logger.Sync()

		c := cruncher.New(logger, cruncher.DefaultConfig(), nil, nil)
		result := c.Crunch(cmd.Context(), input,
			cruncher.WithQuality(crunchQuality),
			cruncher.WithMaxSize(crunchMaxWidth, crunchMaxHeight),
			cruncher.WithInterpolation(resize.InterpolationFunction(crunchInterpolation)),
		)

		if result.Crunched {
			fmt.Fprintf(cmd.ErrOrStderr(), "%dx%d -> %dx%d %s, %g kb -> %g kb\n",
				result.SourceWidth, result.SourceHeight, result.Width, result.Height, result.MIMEType,
				cruncher.Base64Size(input, cruncher.UnitKB), cruncher.Base64Size(result.Data, cruncher.UnitKB))
		} else {
			fmt.Fprintf(cmd.ErrOrStderr(), "not crunched: %s\n", result.Fallback)
		}

		if crunchOutput == "" || crunchOutput == "-" {
			_, err = fmt.Fprintln(cmd.OutOrStdout(), result.Data)
			return err
		}

		return os.WriteFile(crunchOutput, []byte(result.Data), 0o644)
	},
}

func init() {
	rootCmd.AddCommand(crunchCmd)
	crunchCmd.Flags().Float64VarP(&crunchQuality, "quality", "q", 0.6, "JPEG quality between 0 and 1")
	crunchCmd.Flags().IntVarP(&crunchMaxWidth, "max-width", "W", 1920, "maximum output width")
	crunchCmd.Flags().IntVarP(&crunchMaxHeight, "max-height", "H", 1080, "maximum output height")
	crunchCmd.Flags().IntVarP(&crunchInterpolation, "interpolation", "i", int(resize.Lanczos3), "resampling filter 0-5")
	crunchCmd.Flags().StringVarP(&crunchOutput, "output", "o", "", "output file (default stdout)")
}
