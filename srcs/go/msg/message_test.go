package msg

import (
	"bytes"
	"encoding/binary"
	"math/rand/v2"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_AddrRoundTrip(t *testing.T) {
	groups := []int{0, 1, 7, 255, MaxGroup}
	ids := []int{0, 1, 15, 1000, MaxID}
	roles := []Role{RoleServer, RoleWorkerParam, RoleWorkerLayer, RoleStub, MaxRole}
	for _, g := range groups {
		for _, id := range ids {
			for _, r := range roles {
				a := Addr{Group: g, ID: id, Role: r}
				x, err := PackAddr(a)
				require.NoError(t, err)
				assert.Equal(t, a, UnpackAddr(x))
			}
		}
	}
}

func Test_AddrLayout(t *testing.T) {
	x, err := PackAddr(Addr{Group: 3, ID: 5, Role: RoleWorkerParam})
	require.NoError(t, err)
	assert.Equal(t, uint32(3<<16|5<<4|1), x)
}

func Test_AddrOverflow(t *testing.T) {
	cases := []Addr{
		{Group: MaxGroup + 1},
		{ID: MaxID + 1},
		{Role: MaxRole + 1},
		{Group: -1},
	}
	for _, a := range cases {
		_, err := PackAddr(a)
		assert.True(t, errors.Is(err, ErrFieldOverflow), "%v", a)
	}
}

func Test_ControlRoundTrip(t *testing.T) {
	r := rand.New(rand.NewPCG(1, 2))
	for i := 0; i < 1000; i++ {
		ty := Type(r.IntN(256))
		target := r.IntN(MaxTarget + 1)
		x, err := PackControl(ty, target)
		require.NoError(t, err)
		gotType, gotTarget := UnpackControl(x)
		assert.Equal(t, ty, gotType)
		assert.Equal(t, target, gotTarget)
	}
	x, err := PackControl(Update, 7)
	require.NoError(t, err)
	assert.Equal(t, uint32(3<<24|7), x)

	_, err = PackControl(Get, MaxTarget+1)
	assert.True(t, errors.Is(err, ErrFieldOverflow))
}

func Test_Frames(t *testing.T) {
	m := New(Addr{Group: 0, ID: 1, Role: RoleWorkerParam}, Addr{Group: 0, ID: 0, Role: RoleServer}, Put, 7)
	m.AddString("w0")
	m.AddFloats([]float32{1, 2, 3})
	m.AddUint32(42)
	assert.Equal(t, 3, m.NumFrames())
	assert.Equal(t, 2+12+4, m.Size())

	s, err := m.NextString()
	require.NoError(t, err)
	assert.Equal(t, "w0", s)
	xs, err := m.NextFloats()
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2, 3}, xs)
	n, err := m.NextUint32()
	require.NoError(t, err)
	assert.Equal(t, uint32(42), n)
	_, err = m.Next()
	assert.Error(t, err)

	m.Rewind()
	s, err = m.NextString()
	require.NoError(t, err)
	assert.Equal(t, "w0", s)
}

func Test_Reply(t *testing.T) {
	src := Addr{Group: 1, ID: 2, Role: RoleWorkerParam}
	dst := Addr{Group: 0, ID: 3, Role: RoleServer}
	r := New(src, dst, Get, 9).Reply(Data)
	assert.Equal(t, dst, r.Src)
	assert.Equal(t, src, r.Dst)
	assert.Equal(t, 9, r.Target)
	assert.Equal(t, Data, r.Type)
}

func Test_WireRoundTrip(t *testing.T) {
	m := New(Addr{Group: 2, ID: 1, Role: RoleWorkerParam}, Addr{Group: 0, ID: 4, Role: RoleServer}, Update, 701)
	m.AddFloats([]float32{0.1, -0.2})
	m.AddFrame(nil)
	m.AddString("hello")

	var b bytes.Buffer
	require.NoError(t, m.Encode(&b))
	var got Message
	require.NoError(t, got.Decode(&b))
	assert.Equal(t, m.Src, got.Src)
	assert.Equal(t, m.Dst, got.Dst)
	assert.Equal(t, m.Type, got.Type)
	assert.Equal(t, m.Target, got.Target)
	require.Equal(t, 3, got.NumFrames())
	xs, err := got.NextFloats()
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, -0.2}, xs)
	assert.Len(t, got.Frame(1), 0)
	assert.Equal(t, "hello", string(got.Frame(2)))
}

func Test_WireRejectsOversizedFrame(t *testing.T) {
	var b bytes.Buffer
	require.NoError(t, binary.Write(&b, endian, &wireHeader{NFrames: 1}))
	require.NoError(t, binary.Write(&b, endian, uint32(MaxFrameSize+1)))
	var got Message
	err := got.Decode(&b)
	assert.True(t, errors.Is(err, ErrFrameTooLarge))
}

func Test_WireRejectsInvalidHeader(t *testing.T) {
	m := New(Addr{Group: MaxGroup + 1}, Stub, Get, 0)
	var b bytes.Buffer
	assert.True(t, errors.Is(m.Encode(&b), ErrFieldOverflow))
	assert.Equal(t, 0, b.Len())
}

func Test_DecodeFloatsBadLength(t *testing.T) {
	_, err := DecodeFloats([]byte{1, 2, 3})
	assert.Error(t, err)
}

func Test_ControlFrames(t *testing.T) {
	s := FormatSeedCount(12345, 40)
	assert.Equal(t, "12345-40", s)
	seed, count, err := ParseSeedCount(s)
	require.NoError(t, err)
	assert.Equal(t, uint64(12345), seed)
	assert.Equal(t, 40, count)

	s = FormatAlphaCount(0.5, 100)
	assert.Equal(t, "0.5-100", s)
	alpha, count, err := ParseAlphaCount(s)
	require.NoError(t, err)
	assert.Equal(t, float32(0.5), alpha)
	assert.Equal(t, 100, count)

	for _, a := range []float32{1e-7, 3.25e-9, 0.3} {
		alpha, count, err := ParseAlphaCount(FormatAlphaCount(a, 7))
		require.NoError(t, err)
		assert.Equal(t, a, alpha)
		assert.Equal(t, 7, count)
	}

	for _, bad := range []string{"", "12", "-3", "3-", "a-b"} {
		_, _, err := ParseSeedCount(bad)
		assert.Error(t, err, bad)
	}
}
