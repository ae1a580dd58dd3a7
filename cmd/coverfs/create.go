package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/coverfs/coverfs"
	"github.com/coverfs/coverfs/internal/blockdev"
	"github.com/coverfs/coverfs/internal/cliconfig"
)

var (
	createTotalBlocks uint64
	createCryptCache  bool
)

var createCmd = &cobra.Command{
	Use:   "create <container-path>",
	Short: "Initialize a new CoverFS container",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := cliconfig.Load()
		if err != nil {
			return err
		}

		passphrase, err := promptPassphrase(true)
		if err != nil {
			return err
		}

		dev, err := blockdev.OpenFile(args[0], cfg.BlockSize, createTotalBlocks)
		if err != nil {
			return fmt.Errorf("open container: %w", err)
		}

		v, err := coverfs.Mount(dev, coverfs.Options{
			Passphrase:    passphrase,
			CryptCache:    createCryptCache || cfg.CryptCache,
			KDFIterations: cfg.KDFIters,
		})
		if err != nil {
			return fmt.Errorf("initialize container: %w", err)
		}
		defer v.Unmount()

		uuid := v.UUID()
		fmt.Printf("created %s (uuid=%x, blocks=%d x %d bytes)\n", args[0], uuid, createTotalBlocks, cfg.BlockSize)
		return nil
	},
}

func init() {
	createCmd.Flags().Uint64Var(&createTotalBlocks, "blocks", 65536, "container size in blocks")
	createCmd.Flags().BoolVar(&createCryptCache, "crypt-cache", false, "keep cached blocks encrypted at rest")
}
