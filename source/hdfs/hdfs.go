// Package hdfs reads and writes files stored in HDFS.
package hdfs

import (
	"github.com/colinmarc/hdfs/v2"
	"github.com/hexbee-net/errors"
)

type file struct {
	FilePath string

	client         *hdfs.Client
	externalClient bool
}

func newFile(client *hdfs.Client, hosts []string, user, name string) (file, error) {
	f := file{
		FilePath:       name,
		client:         client,
		externalClient: client != nil,
	}

	if client != nil {
		return f, nil
	}

	c, err := hdfs.NewClient(hdfs.ClientOptions{
		Addresses: hosts,
		User:      user,
	})
	if err != nil {
		return f, errors.WithFields(
			errors.Wrap(err, "failed to create HDFS client"),
			errors.Fields{
				"hosts": hosts,
			})
	}

	f.client = c

	return f, nil
}

func (f *file) Close() error {
	if f.client != nil && !f.externalClient {
		err := f.client.Close()
		f.client = nil

		if err != nil {
			return errors.Wrap(err, "failed to close HDFS client")
		}
	}

	return nil
}
