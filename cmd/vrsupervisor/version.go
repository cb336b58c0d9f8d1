package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/exolab/vrsupervisor"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of vrsupervisor",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("vrsupervisor version %s\n", strings.TrimSpace(vrsupervisor.Version))
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
