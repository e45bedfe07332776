package xterm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func Test_Color(t *testing.T) {
	assert.Equal(t, "\x1b[1;31mE\x1b[m", Red.S("E"))
	assert.Equal(t, []byte("x"), NoColor.B("x"))
	assert.Equal(t, BasicColors[1], BasicColors.Choose(len(BasicColors)+1))
}

func Test_Auto(t *testing.T) {
	t.Setenv("NO_COLOR", "1")
	assert.Equal(t, "x", Auto(Green).S("x"))
}
