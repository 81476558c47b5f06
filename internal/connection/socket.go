package connection

// Socket is the non-blocking byte stream under a connection.
// Read and Write return ErrWouldBlock when the kernel has no data or no buffer space;
// Read returns io.EOF when the peer has closed its side.
type Socket interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Close() error
	Fd() int
}
