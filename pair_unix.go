// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

//go:build unix

package stream

import "golang.org/x/sys/unix"

// Pair returns two connected AF_UNIX stream descriptors, configured
// non-blocking and close-on-exec. Failures surface the OS error as a
// FailureError.
func Pair() ([2]int, error) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		return [2]int{}, newFailure("socketpair", err)
	}
	for _, fd := range fds {
		unix.CloseOnExec(fd)
		if err := unix.SetNonblock(fd, true); err != nil {
			_ = unix.Close(fds[0])
			_ = unix.Close(fds[1])
			return [2]int{}, newFailure("set nonblock", err)
		}
	}
	return fds, nil
}

// NewPipePair returns two duplex pipe streams connected back to back,
// ready for in-process full-duplex transport.
func NewPipePair(opts ...Option) (*DuplexPipe, *DuplexPipe, error) {
	fds, err := Pair()
	if err != nil {
		return nil, nil, err
	}
	a, err := NewDuplexPipe(fds[0], opts...)
	if err != nil {
		_ = unix.Close(fds[0])
		_ = unix.Close(fds[1])
		return nil, nil, err
	}
	b, err := NewDuplexPipe(fds[1], opts...)
	if err != nil {
		_ = a.Close()
		_ = unix.Close(fds[1])
		return nil, nil, err
	}
	return a, b, nil
}
