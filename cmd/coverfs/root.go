// Command coverfs creates, mounts, and checks CoverFS containers. Its
// subcommand wiring follows
// _examples/deploymenttheory-go-apfs/cmd/root.go's cobra.Command tree plus
// internal/cliconfig's viper-backed layered configuration.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/coverfs/coverfs/internal/logging"
)

var verbose bool

var rootCmd = &cobra.Command{
	Use:     "coverfs",
	Short:   "Encrypted user-space virtual filesystem in a single container file",
	Version: "0.1.0-dev",
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	cobra.OnInitialize(func() {
		logging.Configure(verbose)
	})

	rootCmd.AddCommand(createCmd, mountCmd, checkCmd, statCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "coverfs: %v\n", err)
		os.Exit(1)
	}
}
