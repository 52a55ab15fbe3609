// Package main is the gophspend command line client. It keeps users and
// expenses in a local store and syncs them with the document store server
// whenever it is reachable.
package main

import (
	"cmp"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version   string
	buildDate string
)

func main() {
	root, cleanup := newRootCmd()
	err := root.Execute()
	cleanup()
	if err != nil {
		os.Exit(1)
	}
}

// newRootCmd builds the command tree. cleanup stops whatever the executed
// command started.
func newRootCmd() (root *cobra.Command, cleanup func()) {
	e := newEnv()

	root = &cobra.Command{
		Use:          "gophspend",
		Short:        "Track shared expenses offline and sync them when online",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return e.load(cmd)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&e.cfg.ServerURL, "url", e.cfg.ServerURL, "document store base URL")
	flags.StringVar(&e.cfg.StorePath, "store", e.cfg.StorePath, "local store file")
	flags.StringVar(&e.cfg.Backend, "backend", e.cfg.Backend, "local store backend: file or sqlite")
	flags.StringVar(&e.cfg.SessionPath, "session", e.cfg.SessionPath, "where the login session is kept")
	flags.StringVar(&e.cfg.CACert, "ca", e.cfg.CACert, "extra CA certificate (PEM) for an https server")
	flags.StringVar(&e.cfg.LogFile, "log-file", e.cfg.LogFile, "write logs to this file instead of stderr")
	flags.StringVar(&e.cfg.LogLevel, "log-level", e.cfg.LogLevel, "log level")
	flags.StringVar(&e.cfg.Config, "config", e.cfg.Config, "path to config file")

	root.AddCommand(
		newVersionCmd(),
		newRegisterCmd(e),
		newLoginCmd(e),
		newUsersCmd(e),
		newExpensesCmd(e),
		newSyncCmd(e),
		newSummaryCmd(e),
		newShellCmd(e),
	)
	return root, e.close
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show build version and date",
		// Skip config loading.
		PersistentPreRun: func(*cobra.Command, []string) {},
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "GophSpend Client\nVersion: %s\nBuild Date: %s\n",
				cmp.Or(version, "N/A"), cmp.Or(buildDate, "N/A"))
		},
	}
}
