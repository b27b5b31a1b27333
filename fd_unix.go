// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

//go:build unix

package stream

import (
	"io"

	"code.hybscloud.com/iox"
	"golang.org/x/sys/unix"
)

// fdPrepare validates and configures a descriptor for stream use.
// Only pipe-, socket-, and terminal-like descriptors are accepted:
// a regular file always polls ready, which would starve the reactor.
func fdPrepare(fd int) error {
	var st unix.Stat_t
	if err := unix.Fstat(fd, &st); err != nil {
		return newFailure("fstat", err)
	}
	switch st.Mode & unix.S_IFMT {
	case unix.S_IFIFO, unix.S_IFSOCK, unix.S_IFCHR:
	default:
		return ErrInvalidArgument
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		return newFailure("set nonblock", err)
	}
	return nil
}

// fdRead performs one non-blocking read of up to len(p) bytes.
// Would-block surfaces as iox.ErrWouldBlock, end of stream as io.EOF.
func fdRead(fd int, p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	for {
		n, err := unix.Read(fd, p)
		if err == unix.EINTR {
			continue
		}
		if err == unix.EAGAIN {
			return 0, iox.ErrWouldBlock
		}
		if err != nil {
			return 0, newFailure("read", err)
		}
		if n == 0 {
			return 0, io.EOF
		}
		return n, nil
	}
}

// fdWrite performs one non-blocking write. A short count with a nil
// error is a partial write; the caller keeps the remainder queued.
func fdWrite(fd int, p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	for {
		n, err := unix.Write(fd, p)
		if err == unix.EINTR {
			continue
		}
		if err == unix.EAGAIN {
			return 0, iox.ErrWouldBlock
		}
		if err != nil {
			return 0, newFailure("write", err)
		}
		return n, nil
	}
}

func fdClose(fd int) error {
	if err := unix.Close(fd); err != nil {
		return newFailure("close", err)
	}
	return nil
}
