package fragstore

// readBytes copies len(dst) bytes starting at the absolute container byte
// offset byteOfs into dst, borrowing each block it spans from the cache in
// turn.
func (s *Store) readBytes(byteOfs uint64, dst []byte) error {
	if len(dst) == 0 {
		return nil
	}
	blockSize := uint64(s.blockSize)
	done := 0
	for done < len(dst) {
		block := byteOfs / blockSize
		within := byteOfs % blockSize
		n := int(blockSize - within)
		if n > len(dst)-done {
			n = len(dst) - done
		}

		br, err := s.c.ReadBorrow(block)
		if err != nil {
			return err
		}
		copy(dst[done:done+n], br.Bytes()[within:within+uint64(n)])
		if err := br.Release(); err != nil {
			return err
		}

		byteOfs += uint64(n)
		done += n
	}
	return nil
}

// writeBytes copies src into the container starting at the absolute byte
// offset byteOfs, borrowing each block it spans from the cache in turn.
// Partial-block writes first pull the existing contents in via ReadBorrow
// so the untouched portion of the block survives.
func (s *Store) writeBytes(byteOfs uint64, src []byte) error {
	if len(src) == 0 {
		return nil
	}
	blockSize := uint64(s.blockSize)
	done := 0
	for done < len(src) {
		block := byteOfs / blockSize
		within := byteOfs % blockSize
		n := int(blockSize - within)
		if n > len(src)-done {
			n = len(src) - done
		}

		if within != 0 || uint64(n) != blockSize {
			br, err := s.c.ReadBorrow(block)
			if err != nil {
				return err
			}
			if err := br.Release(); err != nil {
				return err
			}
		}

		bw, err := s.c.WriteBorrow(block)
		if err != nil {
			return err
		}
		copy(bw.Bytes()[within:within+uint64(n)], src[done:done+n])
		if err := bw.Release(); err != nil {
			return err
		}

		byteOfs += uint64(n)
		done += n
	}
	return nil
}

// zeroBytes clears size bytes starting at the absolute byte offset byteOfs.
// Like writeBytes, it loads partially covered blocks first so the bytes it
// does not clear survive.
func (s *Store) zeroBytes(byteOfs uint64, size int64) error {
	if size <= 0 {
		return nil
	}
	blockSize := uint64(s.blockSize)
	remaining := size
	for remaining > 0 {
		block := byteOfs / blockSize
		within := byteOfs % blockSize
		n := int64(blockSize - within)
		if n > remaining {
			n = remaining
		}

		if within != 0 || uint64(n) != blockSize {
			br, err := s.c.ReadBorrow(block)
			if err != nil {
				return err
			}
			if err := br.Release(); err != nil {
				return err
			}
		}

		bw, err := s.c.WriteBorrow(block)
		if err != nil {
			return err
		}
		buf := bw.Bytes()
		for i := int64(0); i < n; i++ {
			buf[within+uint64(i)] = 0
		}
		if err := bw.Release(); err != nil {
			return err
		}

		byteOfs += uint64(n)
		remaining -= n
	}
	return nil
}
