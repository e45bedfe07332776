package app

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/lsds/paramserver/srcs/go/job"
	"github.com/lsds/paramserver/srcs/go/log"
	"github.com/lsds/paramserver/srcs/go/model"
	"github.com/lsds/paramserver/srcs/go/plan"
	"github.com/lsds/paramserver/srcs/go/plan/hostfile"
	"github.com/lsds/paramserver/srcs/go/rchannel"
	"github.com/lsds/paramserver/srcs/go/rchannel/client"
	"github.com/lsds/paramserver/srcs/go/trainer"
	"github.com/lsds/paramserver/srcs/go/utils"
	"github.com/lsds/paramserver/srcs/go/utils/runner/local"
	"github.com/lsds/paramserver/srcs/go/utils/runner/remote"
	"github.com/pkg/errors"
)

func Main(args []string) {
	var f FlagSet
	if err := f.Parse(args); err != nil {
		utils.ExitErr(err)
	}
	utils.LogArgs()
	t0 := time.Now()
	defer func(prog string) { log.Infof("%s took %s", prog, time.Since(t0)) }(utils.ProgName())
	c, err := plan.LoadCluster(f.ClusterFile)
	if err != nil {
		utils.ExitErr(err)
	}
	if len(f.HostFile) > 0 {
		hl, err := hostfile.ParseFile(f.HostFile)
		if err != nil {
			utils.ExitErr(err)
		}
		if err := c.ResolvePeers(hl, f.PortRange); err != nil {
			utils.ExitErr(err)
		}
		f.Args = append(f.Args, "-hostfile", f.HostFile, "-port-range", f.PortRange.String())
	}
	if len(c.Peers) != c.NumProcs() {
		utils.ExitErr(errNoPeers(c))
	}
	if _, err := model.LoadConfig(f.ModelFile); err != nil {
		utils.ExitErr(err)
	}
	runID := uuid.New().String()
	j := job.Job{
		Cluster:     c,
		ClusterFile: f.ClusterFile,
		ModelFile:   f.ModelFile,
		RunID:       runID,
		Prog:        f.Prog,
		Args:        f.Args,
		LogDir:      filepath.Join(f.LogDir, runID),
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if f.Timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, f.Timeout)
		defer cancel()
	}
	defer utils.Trap(func(sig os.Signal) {
		log.Warnf("%s received, stopping %s", sig, runID)
		cancel()
	})()
	if f.Wait {
		go waitAll(ctx, c, runID)
	}
	ps := j.CreateAllProcs()
	if len(f.Self) > 0 {
		host, err := plan.ParseIPv4(f.Self)
		if err != nil {
			utils.ExitErr(errors.Wrapf(err, "-self %q", f.Self))
		}
		ps = j.CreateProcs(host)
	}
	log.Infof("run %s: %s of %s, logs in %s", runID, utils.Pluralize(len(ps), "process", "processes"), c, j.LogDir)
	d, err := utils.Measure(func() error {
		if f.Remote {
			return remote.RunAll(ctx, f.User, ps, f.VerboseLog, j.LogDir)
		}
		return local.RunAll(ctx, ps, f.VerboseLog)
	})
	log.Infof("all %d processes finished, took %s", len(ps), d)
	if err != nil {
		utils.ExitErr(err)
	}
}

func waitAll(ctx context.Context, c *plan.Cluster, runID string) {
	token, _ := trainer.TokenOf(runID)
	cl := client.New(rchannel.NewContext(plan.PeerID{}, token, nil), c.Peers)
	defer cl.Close()
	d, err := utils.Measure(func() error { return cl.WaitAll(ctx) })
	if err != nil {
		log.Warnf("%v", err)
		return
	}
	log.Infof("all %d processes are up after %s", len(c.Peers), d)
}

func errNoPeers(c *plan.Cluster) error {
	return errors.Errorf("%s needs %d procs addresses, %d given by procs, hosts or -hostfile", c, c.NumProcs(), len(c.Peers))
}
