package main

import (
	"context"
	"fmt"

	"github.com/jacobsa/fuse"
	"github.com/jacobsa/fuse/fuseutil"
	"github.com/spf13/cobra"

	"github.com/coverfs/coverfs"
	"github.com/coverfs/coverfs/internal/blockdev"
	"github.com/coverfs/coverfs/internal/cliconfig"
	"github.com/coverfs/coverfs/internal/fuseglue"
)

var mountCryptCache bool

var mountCmd = &cobra.Command{
	Use:   "mount <container-path> <mountpoint>",
	Short: "Mount a CoverFS container onto a directory via FUSE",
	Args:  cobra.ExactArgs(2),
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

		v, err := coverfs.Mount(dev, coverfs.Options{
			Passphrase: passphrase,
			CryptCache: mountCryptCache || cfg.CryptCache,
		})
		if err != nil {
			return fmt.Errorf("mount container: %w", err)
		}
		defer v.Unmount()

		server := fuseutil.NewFileSystemServer(fuseglue.New(v))
		mfs, err := fuse.Mount(args[1], server, &fuse.MountConfig{
			FSName:   "coverfs",
			ReadOnly: false,
		})
		if err != nil {
			return fmt.Errorf("fuse.Mount: %w", err)
		}

		return mfs.Join(context.Background())
	},
}

func init() {
	mountCmd.Flags().BoolVar(&mountCryptCache, "crypt-cache", false, "keep cached blocks encrypted at rest")
}
