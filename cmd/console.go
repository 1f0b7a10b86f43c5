package cmd

import (
	"github.com/spf13/cobra"
)

var consoleCmd = &cobra.Command{
	Use:   "console",
	Short: "Interactive terminal views over QC flags",
}

func init() {
	rootCmd.AddCommand(consoleCmd)
}
