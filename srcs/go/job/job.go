package job

import (
	"fmt"
	"os"
	"strconv"

	"github.com/lsds/paramserver/srcs/go/config"
	"github.com/lsds/paramserver/srcs/go/plan"
	"github.com/lsds/paramserver/srcs/go/proc"
)

// Job describes the processes of one run: every process runs Prog with the
// same cluster and model files and its own procs id.
type Job struct {
	Cluster     *plan.Cluster
	ClusterFile string
	ModelFile   string
	RunID       string
	Prog        string
	Args        []string
	LogDir      string
}

func (j Job) NewProc(pid int) proc.Proc {
	peer, _ := j.Cluster.Peer(pid)
	envs := proc.Merge(getConfigEnvs(), proc.Envs{
		config.RunIDEnvKey: j.RunID,
	})
	args := append([]string{}, j.Args...)
	args = append(args,
		"-procs-id", strconv.Itoa(pid),
		"-cluster", j.ClusterFile,
		"-model", j.ModelFile,
	)
	var pubAddr string
	if hl, err := plan.ParseHostList(j.Cluster.Hosts); err == nil {
		pubAddr, _ = hl.LookupPublicAddr(peer.IPv4)
	}
	return proc.Proc{
		Name:    fmt.Sprintf("%02d.%s.%d", pid, plan.FormatIPv4(peer.IPv4), peer.Port),
		Prog:    j.Prog,
		Args:    args,
		Envs:    envs,
		IPv4:    peer.IPv4,
		PubAddr: pubAddr,
		LogDir:  j.LogDir,
	}
}

func (j Job) CreateAllProcs() []proc.Proc {
	var ps []proc.Proc
	for pid := 0; pid < j.Cluster.NumProcs(); pid++ {
		ps = append(ps, j.NewProc(pid))
	}
	return ps
}

// CreateProcs returns the processes to start on host.
func (j Job) CreateProcs(host uint32) []proc.Proc {
	var ps []proc.Proc
	for _, p := range j.Cluster.Peers.On(host) {
		pid, _ := j.Cluster.Peers.Rank(p)
		ps = append(ps, j.NewProc(pid))
	}
	return ps
}

func getConfigEnvs() proc.Envs {
	envs := make(proc.Envs)
	for _, k := range config.ConfigEnvKeys {
		if val := os.Getenv(k); len(val) > 0 {
			envs[k] = val
		}
	}
	return envs
}
