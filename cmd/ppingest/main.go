// CLAUDE:SUMMARY Offline CLI over the spreadsheet parser: parse to JSON, detect format, serve the parser over MCP stdio.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"

	"github.com/hazyhaar/ppadmin/spreadsheet"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		cancel()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var maxSize int64
	newParser := func(cmd *cobra.Command) *spreadsheet.Parser {
		// Diagnostics go to stderr so that stdout carries only results.
		logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: slog.LevelWarn}))
		return spreadsheet.New(spreadsheet.Config{MaxFileSize: maxSize, Logger: logger})
	}

	rootCmd := &cobra.Command{
		Use:   "ppingest",
		Short: "Parse spreadsheets the way the admin upload does",
		Long: `ppingest reads CSV, TSV, XLS, XLSX and ODS files and prints their
records as JSON, keyed by the header row.`,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().Int64Var(&maxSize, "max-size", 0, "Largest file accepted, in bytes (default 10 MB)")

	var tsv, pretty bool
	parseCmd := &cobra.Command{
		Use:   "parse <file>",
		Short: "Print the records of a spreadsheet as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var opts spreadsheet.Options
			if tsv {
				opts.Comma = '\t'
			}
			res, err := newParser(cmd).ParseFile(cmd.Context(), args[0], opts)
			if err != nil {
				return fmt.Errorf("parse %s: %w", args[0], err)
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			if pretty {
				enc.SetIndent("", "  ")
			}
			return enc.Encode(res)
		},
	}
	parseCmd.Flags().BoolVar(&tsv, "tsv", false, "Treat delimited text as tab-separated")
	parseCmd.Flags().BoolVar(&pretty, "pretty", false, "Pretty-print JSON output")

	detectCmd := &cobra.Command{
		Use:   "detect <file>",
		Short: "Print the detected format of a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := newParser(cmd).DetectFile(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), format)
			return nil
		},
	}

	mcpCmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve the parser as MCP tools over stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			srv := mcp.NewServer(&mcp.Implementation{Name: "ppingest", Version: "1.0.0"}, nil)
			newParser(cmd).RegisterMCP(srv)
			return srv.Run(cmd.Context(), &mcp.StdioTransport{})
		},
	}

	rootCmd.AddCommand(parseCmd, detectCmd, mcpCmd)
	return rootCmd
}
