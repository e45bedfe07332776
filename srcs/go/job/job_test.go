package job

import (
	"testing"

	"github.com/lsds/paramserver/srcs/go/config"
	"github.com/lsds/paramserver/srcs/go/plan"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const clusterYAML = `
server_groups: 1
servers_per_group: 2
servers_per_procs: 1
worker_groups: 1
workers_per_group: 2
workers_per_procs: 1
hosts: 10.0.0.1:1:node1,10.0.0.2:1
port_range: 20000-20010
`

func Test_CreateProcs(t *testing.T) {
	t.Setenv(config.LogLevelEnvKey, "DEBUG")
	c, err := plan.ParseCluster([]byte(clusterYAML))
	require.NoError(t, err)
	j := Job{
		Cluster:     c,
		ClusterFile: "cluster.yaml",
		ModelFile:   "model.yaml",
		RunID:       "run",
		Prog:        "ps-run",
		LogDir:      "logs",
	}
	ps := j.CreateAllProcs()
	require.Len(t, ps, 2)
	assert.Equal(t, "00.10.0.0.1.20000", ps[0].Name)
	assert.Equal(t, []string{"-procs-id", "1", "-cluster", "cluster.yaml", "-model", "model.yaml"}, ps[1].Args)
	assert.Equal(t, "run", ps[0].Envs[config.RunIDEnvKey])
	assert.Equal(t, "DEBUG", ps[0].Envs[config.LogLevelEnvKey])
	assert.Equal(t, "node1", ps[0].PubAddr)
	assert.Equal(t, "10.0.0.2", ps[1].PubAddr)

	on2 := j.CreateProcs(plan.MustParseIPv4("10.0.0.2"))
	require.Len(t, on2, 1)
	assert.Equal(t, ps[1].Name, on2[0].Name)
}
