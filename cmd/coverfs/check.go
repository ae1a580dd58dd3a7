package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/coverfs/coverfs"
	"github.com/coverfs/coverfs/internal/blockdev"
	"github.com/coverfs/coverfs/internal/cliconfig"
)

var checkCmd = &cobra.Command{
	Use:   "check <container-path>",
	Short: "Verify a container's fragment table invariants",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := cliconfig.Load()
		if err != nil {
			return err
		}
		passphrase, err := promptPassphrase(false)
		if err != nil {
			return err
		}
		dev, err := blockdev.OpenFile(args[0], cfg.BlockSize, 0)
		if err != nil {
			return fmt.Errorf("open container: %w", err)
		}
		v, err := coverfs.Mount(dev, coverfs.Options{Passphrase: passphrase})
		if err != nil {
			return fmt.Errorf("mount container: %w", err)
		}
		defer v.Unmount()

		if err := v.Check(); err != nil {
			return fmt.Errorf("consistency check failed: %w", err)
		}
		fmt.Println("ok")
		return nil
	},
}
