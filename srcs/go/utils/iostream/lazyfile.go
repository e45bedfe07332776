package iostream

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

type lazyFile struct {
	name string
	f    *os.File
}

// NewLazyFile returns a writer that creates filename on first write.
func NewLazyFile(filename string) io.WriteCloser {
	return &lazyFile{name: filename}
}

func (f *lazyFile) Write(bs []byte) (int, error) {
	if f.f == nil {
		if err := f.create(); err != nil {
			fmt.Fprintf(os.Stderr, "failed to create log file %s: %v\n", f.name, err)
			os.Stderr.Write(bs)
			return 0, err
		}
	}
	return f.f.Write(bs)
}

func (f *lazyFile) Close() error {
	if f.f != nil {
		return f.f.Close()
	}
	return nil
}

func (f *lazyFile) create() error {
	if err := os.MkdirAll(filepath.Dir(f.name), os.ModePerm); err != nil {
		return err
	}
	var err error
	f.f, err = os.Create(f.name)
	return err
}

// NewFileRedirector writes to name.stdout.log and name.stderr.log.
func NewFileRedirector(name string) *StdWriters {
	return &StdWriters{
		Stdout: NewLazyFile(name + ".stdout.log"),
		Stderr: NewLazyFile(name + ".stderr.log"),
	}
}
