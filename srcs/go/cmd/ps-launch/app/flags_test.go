package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_Parse(t *testing.T) {
	var f FlagSet
	require.NoError(t, f.Parse([]string{"ps-launch", "-cluster", "c.yaml", "-model", "m.yaml", "-remote", "-u", "ps", "-timeout", "1m", "-self", "10.0.0.2"}))
	assert.True(t, f.Remote)
	assert.Equal(t, "ps", f.User)
	assert.Equal(t, "10.0.0.2", f.Self)
	assert.Equal(t, time.Minute, f.Timeout)
	assert.Equal(t, "ps-run", f.Prog)
	assert.Empty(t, f.Args)
}

func Test_ParseProg(t *testing.T) {
	var f FlagSet
	require.NoError(t, f.Parse([]string{"ps-launch", "-cluster", "c.yaml", "-model", "m.yaml", "./bin/ps-run", "-q"}))
	assert.Equal(t, "./bin/ps-run", f.Prog)
	assert.Equal(t, []string{"-q"}, f.Args)
}
