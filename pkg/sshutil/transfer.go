package sshutil

import (
	"io"

	"github.com/fabworks/fab/internal/errors"
	"github.com/pkg/sftp"
)

// OpenTransfer opens an SFTP channel on the connection.
func (c *Client) OpenTransfer() (FileTransfer, error) {
	ftp, err := sftp.NewClient(c.conn)
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrTransfer,
			"Failed to open SFTP channel to "+c.Host,
			"Check that the remote sshd has the sftp subsystem enabled.")
	}
	return &sftpTransfer{client: ftp}, nil
}

// sftpTransfer adapts an *sftp.Client to the FileTransfer interface.
type sftpTransfer struct {
	client *sftp.Client
}

func (t *sftpTransfer) Create(path string) (io.WriteCloser, error) {
	f, err := t.client.Create(path)
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrTransfer,
			"Failed to create remote file "+path,
			"Check the remote directory exists and is writable.")
	}
	return f, nil
}

func (t *sftpTransfer) Close() error {
	return t.client.Close()
}
