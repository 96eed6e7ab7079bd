package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"imgcruncher/cruncher"
)

var sizeUnit string

var sizeCmd = &cobra.Command{
	Use:   "size [file]",
	Short: "Print the decoded size of a base64 image",
	Long: `Print the decoded payload size. Units are bytes, kb (default) or mb;
unknown units are answered in mb.

Examples:
  imgcrunch size photo.b64
  imgcrunch size --unit bytes < photo.b64`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		input, err := readInput(cmd, argOrEmpty(args))
		if err != nil {
			return err
		}

		size := cruncher.Base64Size(input, sizeUnit)
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", strconv.FormatFloat(size, 'f', -1, 64), cruncher.NormalizeUnit(sizeUnit))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(sizeCmd)
	sizeCmd.Flags().StringVarP(&sizeUnit, "unit", "u", cruncher.UnitKB, "unit: bytes, kb, mb")
}
