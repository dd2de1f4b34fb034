package cli

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "reverie",
	Short: "Background reliability pipelines for chat with memory",
	Long: "Reverie scores assistant responses with a judge model and keeps a secondary\n" +
		"graph of chat state in sync through a transactional outbox. Single Go binary.",
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(scoreCmd)
	rootCmd.AddCommand(outboxCmd)
}
