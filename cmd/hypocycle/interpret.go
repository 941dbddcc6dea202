package main

import (
	"encoding/json"

	"hypocycle/internal/container"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var interpretCmd = &cobra.Command{
	Use:   "interpret <hypothesis>",
	Short: "Print the sample specifications a hypothesis produces",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := container.New(cmd.Context(), cfg, zap.L())
		if err != nil {
			return err
		}
		defer c.Close()

		batch, err := c.Interpreter.Interpret(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(batch)
	},
}

func init() {
	rootCmd.AddCommand(interpretCmd)
}
