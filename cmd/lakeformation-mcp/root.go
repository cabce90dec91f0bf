package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var (
	transportFlag  string
	listenAddrFlag string
	modeFlag       string
	logLevelFlag   string
)

// Execute builds the command tree and runs it.
func Execute(version, commit, date string) {
	rootCmd := &cobra.Command{
		Use:   "lakeformation-mcp",
		Short: "MCP tool server for AWS Lake Formation grants and revokes",
		Long: "lakeformation-mcp exposes grant and revoke of Lake Formation permissions on tables,\n" +
			"table columns, databases and LF-tags as MCP tools. Running it without a subcommand serves.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), version, commit, date)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&transportFlag, "transport", "", "transport: stdio|http|sse (overrides LAKEFORMATION_MCP_TRANSPORT)")
	rootCmd.PersistentFlags().StringVar(&listenAddrFlag, "listen-addr", "", "HTTP listen address (overrides LAKEFORMATION_MCP_LISTEN_ADDR)")
	rootCmd.PersistentFlags().StringVar(&modeFlag, "mode", "", "grant-revoke|revoke-only (overrides LAKEFORMATION_MCP_MODE)")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "", "log level (overrides LAKEFORMATION_MCP_LOG_LEVEL)")

	rootCmd.AddCommand(newServeCmd(version, commit, date))
	rootCmd.AddCommand(newToolsCmd())
	rootCmd.AddCommand(newVersionCmd(version, commit, date))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
