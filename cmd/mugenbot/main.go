package main

import (
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

var noColor bool

var rootCmd = &cobra.Command{
	Use:     "mugenbot",
	Short:   "WhatsApp sales assistant for the MUGEN store",
	Version: version,
	Long: `mugenbot answers WhatsApp messages for the MUGEN sleeper-PC store.

It receives inbound messages via webhook, folds the business knowledge base
and the customer's chat history into a prompt, asks Gemini for a reply, and
sends it back. Contacts, history, and knowledge live in a Google Sheet (or a
local SQLite database).`,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")

	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(knowledgeCmd)
	rootCmd.AddCommand(teachCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
