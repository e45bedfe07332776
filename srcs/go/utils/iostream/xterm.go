package iostream

import (
	"fmt"
	"io"
	"os"

	"github.com/lsds/paramserver/srcs/go/utils/xterm"
)

type prefixWriter struct {
	prefix string
	w      io.Writer
}

func (x prefixWriter) Write(bs []byte) (int, error) {
	fmt.Fprintf(x.w, "[%s] %s", x.prefix, string(bs))
	return len(bs), nil
}

// NewXTermRedirector prefixes every line with the coloured name of its process.
func NewXTermRedirector(name string, c xterm.Color) *StdWriters {
	if c == nil {
		c = xterm.NoColor
	}
	return &StdWriters{
		Stdout: prefixWriter{prefix: c.S(name) + "::stdout", w: os.Stdout},
		Stderr: prefixWriter{prefix: c.S(name) + "::" + xterm.Warn.S("stderr"), w: os.Stderr},
	}
}
