//go:build linux

package connection

import (
	"io"

	"golang.org/x/sys/unix"
)

// fdSocket is a Socket over a raw non-blocking file descriptor.
type fdSocket struct {
	fd int
}

// NewFDSocket puts fd into non-blocking mode and wraps it as a Socket.
func NewFDSocket(fd int) (Socket, error) {
	if err := unix.SetNonblock(fd, true); err != nil {
		return nil, &IOError{Op: "setnonblock", Err: err}
	}
	return &fdSocket{fd: fd}, nil
}

func (s *fdSocket) Read(p []byte) (int, error) {
	for {
		n, err := unix.Read(s.fd, p)
		switch {
		case err == unix.EINTR:
			continue
		case err == unix.EAGAIN:
			return 0, ErrWouldBlock
		case err != nil:
			return 0, err
		case n == 0 && len(p) > 0:
			return 0, io.EOF
		}
		return n, nil
	}
}

func (s *fdSocket) Write(p []byte) (int, error) {
	for {
		n, err := unix.Write(s.fd, p)
		if n < 0 {
			n = 0
		}
		switch {
		case err == unix.EINTR:
			continue
		case err == unix.EAGAIN:
			return n, ErrWouldBlock
		}
		return n, err
	}
}

// CloseWrite shuts down the sending side so the peer sees end of stream.
func (s *fdSocket) CloseWrite() error {
	return unix.Shutdown(s.fd, unix.SHUT_WR)
}

func (s *fdSocket) Close() error {
	return unix.Close(s.fd)
}

func (s *fdSocket) Fd() int {
	return s.fd
}
