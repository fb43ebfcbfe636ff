package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"fyrc/internal/buildpipeline"
)

var irCmd = &cobra.Command{
	Use:   "ir <input>",
	Short: "Print the IR of every function after every phase",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		cleanup, err := setupTracing(cmd)
		if err != nil {
			return err
		}
		defer func() { cleanup(err != nil) }()

		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		ir, err := buildpipeline.DumpIR(cmd.Context(), args[0], cfg)
		if err != nil {
			return err
		}
		_, err = fmt.Fprint(cmd.OutOrStdout(), ir)
		return err
	},
}
