package model

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/lsds/paramserver/srcs/go/syncer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testConfig = `
params:
  - name: fc1
    size: 8
  - name: fc2
    size: 3
    lr_scale: 0.5
    split_threshold: 2
updater:
  type: sgd
  base_lr: 0.5
  schedule:
    type: step
    gamma: 0.1
    step_size: 100
sync:
  strategy: elastic
  rate: 0.25
  frequency: 5
steps: 20
seed: 42
`

func Test_LoadConfig(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "model.yaml")
	require.NoError(t, os.WriteFile(filename, []byte(testConfig), 0o644))
	c, err := LoadConfig(filename)
	require.NoError(t, err)
	require.Len(t, c.Params, 2)
	assert.Equal(t, float32(1), c.Params[0].LRScale)
	assert.Equal(t, float32(0.5), c.Params[1].LRScale)
	assert.Equal(t, float32(1), c.Params[1].WDScale)
	assert.Equal(t, 2, c.Params[1].SplitThreshold)
	assert.Equal(t, float32(0.5), c.Updater.BaseLR)
	assert.Equal(t, 100, c.Updater.Schedule.StepSize)
	assert.Equal(t, syncer.ElasticAverage, c.SyncKind())
	assert.Equal(t, 5, c.Sync.Frequency)
	assert.Equal(t, 20, c.Steps)
	assert.Equal(t, uint64(42), c.Seed)
}

func Test_InvalidConfigs(t *testing.T) {
	for _, doc := range []string{
		`params: []`,
		`params: [{name: a, size: 0}]`,
		`params: [{name: a, size: 1}, {name: a, size: 2}]`,
		`{params: [{name: a, size: 1}], sync: {strategy: gossip}}`,
		`{params: [{name: a, size: 1}], sync: {strategy: random, rate: 2}}`,
		`{params: [{name: a, size: 1}], updater: {type: adam}}`,
	} {
		_, err := ParseConfig([]byte(doc))
		assert.Error(t, err, doc)
	}
}

func Test_QuadraticIsDeterministic(t *testing.T) {
	c, err := ParseConfig([]byte(testConfig))
	require.NoError(t, err)
	a, b := New(c), New(c)
	require.Len(t, a.Params(), 2)
	for i, p := range a.Params() {
		assert.Equal(t, i, p.ID)
		assert.Equal(t, p.Data, b.Params()[i].Data)
		assert.Equal(t, c.Params[i].Size, p.Size())
	}
	assert.Equal(t, 2, a.Params()[1].SplitThreshold)
}

func Test_QuadraticDescends(t *testing.T) {
	c, err := ParseConfig([]byte(testConfig))
	require.NoError(t, err)
	m := New(c)
	before := m.Loss()
	require.NoError(t, m.Gradients(0))
	for _, p := range m.Params() {
		for i := range p.Data {
			p.Data[i] -= 0.5 * p.Grad[i]
		}
	}
	assert.InDelta(t, before/4, m.Loss(), 1e-4)
}

func Test_LoadExample(t *testing.T) {
	c, err := LoadConfig("../../../examples/model.yaml")
	require.NoError(t, err)
	require.Len(t, c.Params, 2)
	assert.Equal(t, float32(1), c.Params[0].LRScale)
	assert.Equal(t, float32(2), c.Params[1].LRScale)
	assert.Equal(t, syncer.ElasticAverage, c.SyncKind())
	assert.Equal(t, 200, c.Steps)
}
