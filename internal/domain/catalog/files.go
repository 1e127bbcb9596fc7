package catalog

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"time"
)

// diskFile is a LocalFile stored on the server's filesystem.
type diskFile struct {
	display   string // path as presented by the client
	abs       string // where the bytes live
	mediaType string
	modTime   time.Time
}

// NewDiskFile returns a LocalFile for the file at abs, presented as display.
func NewDiskFile(display, abs, mediaType string, modTime time.Time) LocalFile {
	return diskFile{display: display, abs: abs, mediaType: mediaType, modTime: modTime}
}

func (f diskFile) Path() string       { return f.display }
func (f diskFile) MediaType() string  { return f.mediaType }
func (f diskFile) ModTime() time.Time { return f.modTime }

func (f diskFile) Open() (io.ReadSeekCloser, error) {
	file, err := os.Open(f.abs)
	if err != nil {
		return nil, err
	}
	return file, nil
}

// fsFile is a LocalFile inside an fs.FS.
type fsFile struct {
	fsys    fs.FS
	name    string
	modTime time.Time
}

func (f fsFile) Path() string       { return f.name }
func (f fsFile) MediaType() string  { return "" }
func (f fsFile) ModTime() time.Time { return f.modTime }

func (f fsFile) Open() (io.ReadSeekCloser, error) {
	file, err := f.fsys.Open(f.name)
	if err != nil {
		return nil, err
	}
	rsc, ok := file.(io.ReadSeekCloser)
	if !ok {
		file.Close()
		return nil, fmt.Errorf("%s: file is not seekable", f.name)
	}
	return rsc, nil
}
