package sink

import (
	"context"
	"os"
	"path/filepath"
)

// Filesystem writes every report into a directory, which is created on demand.
type Filesystem struct {
	directory string
}

func NewFilesystem(directory string) Filesystem {
	return Filesystem{directory: directory}
}

func (s Filesystem) String() string {
	return s.directory
}

func (s Filesystem) Save(ctx context.Context, fileName string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return &SinkError{Sink: s.String(), Op: "save", Err: err}
	}

	err := os.MkdirAll(s.directory, 0755)
	if err != nil {
		return &SinkError{Sink: s.String(), Op: "create directory", Err: err}
	}
	err = os.WriteFile(filepath.Join(s.directory, filepath.Base(fileName)), data, 0644)
	if err != nil {
		return &SinkError{Sink: s.String(), Op: "write file", Err: err}
	}
	return nil
}
