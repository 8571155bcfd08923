package sshutil

import "io"

// RemoteClient is the connection handle used by the execution layer. Both
// the real Client and test fakes satisfy this interface, so operations can
// be exercised without a live SSH server.
type RemoteClient interface {
	// Start begins executing a command on the remote host and returns a
	// handle to its standard streams. The caller must drain stdout and
	// stderr and then call Wait.
	Start(cmd string) (Process, error)

	// OpenTransfer opens a file-transfer channel on the connection.
	OpenTransfer() (FileTransfer, error)

	// Close tears down the connection. Closing an already-closed client
	// is not an error.
	Close() error
}

// Process represents one in-flight remote command.
type Process interface {
	// Stdin is the remote process input stream.
	Stdin() io.WriteCloser
	// Stdout is the remote process output stream, exhausted at EOF.
	Stdout() io.Reader
	// Stderr is the remote process error stream, exhausted at EOF.
	Stderr() io.Reader
	// Wait blocks until the command finishes and returns its exit code.
	// A non-zero remote exit is reported through the code, not the error.
	Wait() (int, error)
}

// FileTransfer is a file-copy channel over an established connection.
type FileTransfer interface {
	// Create opens the remote path for writing, truncating it if present.
	Create(path string) (io.WriteCloser, error)
	// Close releases the transfer channel.
	Close() error
}
