package spiflash

import "io"

// completeIO calls f until buf is consumed. f handles a prefix of what it is
// given, starting at offset, and returns how much it handled.
func completeIO(offset uint32, buf []byte, f func(offset uint32, buf []byte) (int, error)) (int, error) {
	done := 0

	for done < len(buf) {
		n, err := f(offset+uint32(done), buf[done:])
		done += n
		if err != nil {
			return done, err
		}
		if n <= 0 {
			return done, io.ErrNoProgress
		}
	}

	return done, nil
}

// pageCrossLength is the number of bytes from offset to the end of its page.
func pageCrossLength(offset uint32, pageSize uint32) int {
	return int(pageSize - offset%pageSize)
}
