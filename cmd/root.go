package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "go-auth-api",
	Short: "Session-based authentication API",
	Long:  `An authentication backend providing signup, login, refresh token rotation, session management and a per-user product catalog over HTTP.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
