package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/aretw0/tendril/pkg/domain"
	"github.com/aretw0/tendril/pkg/stream"
	"github.com/spf13/cobra"
)

var invokeCmd = &cobra.Command{
	Use:   "invoke [file]",
	Short: "Decide one orchestration step",
	Long: `Reads an invocation (state, input and context) as JSON from the file or
stdin and writes the resulting envelopes to stdout, one JSON object per line.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := loadApp(cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		inv, err := readInvocation(cmd, args)
		if err != nil {
			return err
		}
		return app.Engine.Invoke(cmd.Context(), inv, stream.NewWriterChannel(cmd.OutOrStdout()))
	},
}

var historyCmd = &cobra.Command{
	Use:   "history [file]",
	Short: "Print the conversation the model would see for an invocation",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := loadApp(cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		inv, err := readInvocation(cmd, args)
		if err != nil {
			return err
		}
		msgs, err := app.Engine.Reconstruct(inv)
		if err != nil {
			return err
		}
		if msgs == nil {
			msgs = []domain.Message{}
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		enc.SetEscapeHTML(false)
		return enc.Encode(msgs)
	},
}

func readInvocation(cmd *cobra.Command, args []string) (domain.Invocation, error) {
	var (
		r   io.Reader = cmd.InOrStdin()
		inv domain.Invocation
	)
	if len(args) == 1 && args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			return inv, err
		}
		defer f.Close()
		r = f
	}
	if err := json.NewDecoder(r).Decode(&inv); err != nil {
		return inv, fmt.Errorf("failed to decode invocation: %w", err)
	}
	return inv, nil
}

func init() {
	rootCmd.AddCommand(invokeCmd)
	rootCmd.AddCommand(historyCmd)
}
