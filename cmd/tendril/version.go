package main

import (
	"fmt"
	"strings"

	"github.com/aretw0/tendril"
	"github.com/aretw0/tendril/pkg/domain"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of tendril",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "tendril version %s (protocol %s)\n", strings.TrimSpace(tendril.Version), domain.ProtocolVersion)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
