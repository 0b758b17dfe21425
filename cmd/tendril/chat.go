package main

import (
	"os"

	"github.com/aretw0/tendril"
	"github.com/aretw0/tendril/internal/presentation/tui"
	"github.com/aretw0/tendril/pkg/runner"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/spf13/cobra"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat with the configured agent in the terminal",
	Long: `Runs turns against the configured model with the tools of agent.toolsFile.
Answers are rendered as markdown when stdout is a terminal.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := loadApp(cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		sessionID, _ := cmd.Flags().GetString("session")
		if sessionID == "" {
			if sessionID, err = gonanoid.New(); err != nil {
				return err
			}
		}

		console := runner.NewConsole(cmd.InOrStdin(), cmd.OutOrStdout(), tui.NewRenderer(os.Stdout))
		opts := []runner.Option{}
		if confirm, _ := cmd.Flags().GetBool("confirm"); confirm {
			opts = append(opts, runner.WithInterceptor(runner.ConfirmationMiddleware(console)))
		}
		r := app.NewRunner(app.NewModel(), opts...)

		if quiet, _ := cmd.Flags().GetBool("quiet"); !quiet {
			tui.PrintBanner(cmd.ErrOrStderr(), tendril.Version, sessionID)
		}
		return r.Chat(cmd.Context(), sessionID, console)
	},
}

func init() {
	rootCmd.AddCommand(chatCmd)
	chatCmd.Flags().StringP("session", "s", "", "Session to continue (a new one is started when empty)")
	chatCmd.Flags().Bool("confirm", false, "Ask before running each tool")
	chatCmd.Flags().BoolP("quiet", "q", false, "Do not print the banner")
}
