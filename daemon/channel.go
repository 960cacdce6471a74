package daemon

import (
	"io"
	"os"
)

// Channel is the shared byte stream between server and controller. In
// production it is a virtual channel handle inherited from the remote
// desktop host process; for local development it can instead be a
// UNIX socket or (on Windows) a named pipe, dialed by the CLI's
// --channel flag.
type Channel io.ReadWriteCloser

type stdioChannel struct {
	in  *os.File
	out *os.File
}

func (c stdioChannel) Read(p []byte) (int, error)  { return c.in.Read(p) }
func (c stdioChannel) Write(p []byte) (int, error) { return c.out.Write(p) }
func (c stdioChannel) Close() error {
	inErr := c.in.Close()
	outErr := c.out.Close()
	if inErr != nil {
		return inErr
	}
	return outErr
}

// InheritedChannel wraps the process's own stdin/stdout as the shared
// channel, the default inherited from its host process.
func InheritedChannel() Channel {
	return stdioChannel{in: os.Stdin, out: os.Stdout}
}
