package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/coverfs/coverfs"
	"github.com/coverfs/coverfs/internal/blockdev"
	"github.com/coverfs/coverfs/internal/cliconfig"
)

var statCmd = &cobra.Command{
	Use:   "stat <container-path>",
	Short: "Report a container's geometry and space usage",
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

		s := v.StatVolume()
		fmt.Printf("uuid:         %x\n", s.UUID)
		fmt.Printf("block size:   %d\n", s.BlockSize)
		fmt.Printf("total blocks: %d\n", s.TotalBlocks)
		fmt.Printf("free blocks:  %d\n", s.FreeBlocks)
		fmt.Printf("live inodes:  %d\n", s.LiveInodes)
		return nil
	},
}
