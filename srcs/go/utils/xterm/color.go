package xterm

import (
	"fmt"
	"os"
)

type Color interface {
	B(text string) []byte
	S(text string) string
}

type ColorSet []Color

// Choose picks a colour for the i-th process of a run.
func (cs ColorSet) Choose(i int) Color {
	return cs[i%len(cs)]
}

type color uint8

// Standard XTerm Colors
const (
	Red       color = 31
	Green     color = 32
	Yellow    color = 33
	Blue      color = 34
	Magenta   color = 35
	LightBlue color = 36
	Grey      color = 37
)

var (
	BasicColors = ColorSet{Green, Blue, Yellow, LightBlue, Magenta}

	Warn Color = Red
)

func (c color) S(text string) string {
	return fmt.Sprintf("\x1b[1;%dm%s\x1b[m", uint8(c), text)
}

func (c color) B(text string) []byte {
	return []byte(c.S(text))
}

var NoColor = noColor{}

type noColor struct{}

func (noColor) B(text string) []byte { return []byte(text) }

func (noColor) S(text string) string { return text }

// Auto returns c unless NO_COLOR is set.
func Auto(c Color) Color {
	if len(os.Getenv("NO_COLOR")) > 0 {
		return NoColor
	}
	return c
}
