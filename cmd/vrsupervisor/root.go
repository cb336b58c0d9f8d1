package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "vrsupervisor",
	Short: "vrsupervisor runs VR behavioral experiment sessions",
	Long: `vrsupervisor is the control server for VR behavioral experiments:
it generates balanced condition orders, drives the timed session protocol
and broadcasts scene commands to the VR client over UDP.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("config-dir", "config", "Directory holding the supervisor configuration")
	rootCmd.PersistentFlags().String("redis", "", "Redis address for the order store (empty = in-memory)")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
}

func logLevel(cmd *cobra.Command) slog.Level {
	raw, _ := cmd.Flags().GetString("log-level")
	switch strings.ToLower(raw) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
