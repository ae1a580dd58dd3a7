package coverfs

// VolumeStats summarizes a mounted volume's geometry and usage, the
// information a `stat`/`statfs`-style call or the CLI's `coverfs stat`
// subcommand needs.
type VolumeStats struct {
	UUID        [16]byte
	BlockSize   uint32
	TotalBlocks uint64
	FreeBlocks  uint64
	LiveInodes  uint64
}

// StatVolume reports the mounted volume's geometry and current usage.
func (v *Volume) StatVolume() VolumeStats {
	free, live := v.store.FreeBlocks()
	return VolumeStats{
		UUID:        v.uuid,
		BlockSize:   v.dev.BlockSize(),
		TotalBlocks: v.dev.TotalBlocks(),
		FreeBlocks:  free,
		LiveInodes:  live,
	}
}
