package hostfile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/lsds/paramserver/srcs/go/plan"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_Parse(t *testing.T) {
	text := `
	# ...
	127.0.0.1 slots=4 # ...
	# ...
   	192.168.1.2 slots=8 public_addr=node2
	`
	hl, err := Parse(text)
	require.NoError(t, err)
	require.Len(t, hl, 2)
	assert.Equal(t, 4, hl[0].Slots)
	assert.Equal(t, "127.0.0.1", hl[0].PublicAddr)
	assert.Equal(t, 8, hl[1].Slots)
	assert.Equal(t, "node2", hl[1].PublicAddr)

	pl, err := hl.GenPeerList(6, plan.DefaultPortRange)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:10003", pl[3].String())
	assert.Equal(t, "192.168.1.2:10001", pl[5].String())
}

func Test_ParseInvalid(t *testing.T) {
	_, err := Parse("127.0.0.1 slots=x")
	assert.Error(t, err)
	_, err = Parse("127.0.0.1 cpus=4")
	assert.Error(t, err)
}

func Test_ParseLineNumber(t *testing.T) {
	_, err := Parse("127.0.0.1\n\n10.0.0.300 slots=2\n")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 3")
}

func Test_ParseFile(t *testing.T) {
	f := filepath.Join(t.TempDir(), "hostfile")
	require.NoError(t, os.WriteFile(f, []byte("10.0.0.1 slots=2\n10.0.0.2\n"), 0o644))
	hl, err := ParseFile(f)
	require.NoError(t, err)
	assert.Equal(t, 3, hl.Cap())
}
