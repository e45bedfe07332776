package iostream

import (
	"bufio"
	"fmt"
	"io"
)

// Tee copies r line by line to every w.
func Tee(r io.Reader, ws ...io.Writer) error {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 64*1024), 1<<20)
	for s.Scan() {
		for _, w := range ws {
			fmt.Fprintln(w, s.Text())
		}
	}
	return s.Err()
}
