package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/architech/spanav/internal/errors"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// globalFlags are shared by every command.
type globalFlags struct {
	configPath string
	dir        string
	logLevel   string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		errors.Fprint(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}

	rootCmd := &cobra.Command{
		Use:   "spanav",
		Short: "Client-side page navigation for static sites",
		Long: `spanav turns a multi-page static site into a single-page experience.

It intercepts internal link clicks, fetches the target page, swaps the
content container in place and keeps the address bar, history and
scroll position in sync. Features include:

  • Page cache with FIFO or LRU eviction
  • Hover and viewport preloading
  • Pages served over HTTP or from an S3 bucket
  • Preview server driving every open tab over WebSocket
  • Headless walks through a site with Chrome`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "", "Configuration file (default: spanav.json, spanav.yaml)")
	rootCmd.PersistentFlags().StringVarP(&flags.dir, "dir", "C", ".", "Project directory")
	rootCmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "Log level: debug, info, warn, error")

	rootCmd.AddCommand(
		serveCmd(flags),
		walkCmd(flags),
		versionCmd(),
	)
	return rootCmd
}

// success prints a success message.
func success(format string, args ...any) {
	fmt.Printf("\033[32m✓\033[0m %s\n", fmt.Sprintf(format, args...))
}

// info prints an info message.
func info(format string, args ...any) {
	fmt.Printf("  %s\n", fmt.Sprintf(format, args...))
}
