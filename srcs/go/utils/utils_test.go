package utils

import (
	"bytes"
	"context"
	"errors"
	"os"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_Poll_OK(t *testing.T) {
	var n int
	f := func() bool {
		n++
		return n > 3
	}
	failed, ok := Poll(context.TODO(), f)
	assert.True(t, ok)
	assert.Equal(t, 3, failed)
}

func Test_Poll_Fail(t *testing.T) {
	ctx, cancel := context.WithCancel(context.TODO())
	var n int
	f := func() bool {
		n++
		if n == 2 {
			cancel()
		}
		return n > 3
	}
	failed, ok := Poll(ctx, f)
	assert.False(t, ok)
	assert.Equal(t, 2, failed)
}

func Test_MergeErrors(t *testing.T) {
	assert.NoError(t, MergeErrors([]error{nil, nil}, "launch"))
	err := MergeErrors([]error{errors.New("a"), nil, errors.New("b")}, "launch")
	assert.EqualError(t, err, "launch failed with 2 errors: a; b")
}

func Test_Pluralize(t *testing.T) {
	assert.Equal(t, "1 split", Pluralize(1, "split", "splits"))
	assert.Equal(t, "3 splits", Pluralize(3, "split", "splits"))
}

func Test_StallDetector(t *testing.T) {
	var b bytes.Buffer
	s := installStallDetector("collect", 5*time.Millisecond, &b)
	time.Sleep(30 * time.Millisecond)
	s.Stop()
	out := b.String()
	assert.True(t, strings.Contains(out, "collect stalled for"))
	assert.True(t, strings.Contains(out, "collect recovered after"))
}

func Test_Trap(t *testing.T) {
	got := make(chan os.Signal, 1)
	stop := Trap(func(sig os.Signal) { got <- sig })
	defer stop()
	require.NoError(t, syscall.Kill(os.Getpid(), syscall.SIGTERM))
	select {
	case sig := <-got:
		assert.Equal(t, syscall.SIGTERM, sig)
	case <-time.After(time.Second):
		t.Fatal("signal not trapped")
	}
}

func Test_ShowRate(t *testing.T) {
	assert.Equal(t, "512.00 B/s", ShowRate(512))
	assert.Equal(t, "1.50 KiB/s", ShowRate(1536))
	assert.Equal(t, "2.00 MiB/s", ShowRate(2<<20+1))
	assert.Equal(t, "3.00 GiB/s", ShowRate(3<<30))
}
