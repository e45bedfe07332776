package app

import (
	"context"
	"os"
	"time"

	"github.com/lsds/paramserver/srcs/go/config"
	"github.com/lsds/paramserver/srcs/go/log"
	"github.com/lsds/paramserver/srcs/go/model"
	"github.com/lsds/paramserver/srcs/go/monitor"
	"github.com/lsds/paramserver/srcs/go/plan"
	"github.com/lsds/paramserver/srcs/go/plan/hostfile"
	"github.com/lsds/paramserver/srcs/go/trainer"
	"github.com/lsds/paramserver/srcs/go/utils"
	"github.com/pkg/errors"
)

func Main(args []string) {
	var f FlagSet
	if err := f.Parse(args); err != nil {
		utils.ExitErr(err)
	}
	if !f.Quiet {
		utils.LogArgs()
		utils.LogPSEnv()
	}
	if f.Verbose {
		utils.LogAllEnvs()
		if err := utils.LogNICInfo(); err != nil {
			log.Warnf("list network interfaces: %v", err)
		}
	}
	if len(f.Logfile) > 0 {
		lf, err := os.Create(f.Logfile)
		if err != nil {
			utils.ExitErr(err)
		}
		defer lf.Close()
		log.SetOutput(lf)
	}
	t0 := time.Now()
	defer func(prog string) { log.Infof("%s took %s", prog, time.Since(t0)) }(utils.ProgName())
	c, err := loadCluster(f)
	if err != nil {
		utils.ExitErr(err)
	}
	mc, err := model.LoadConfig(f.ModelFile)
	if err != nil {
		utils.ExitErr(err)
	}
	token, err := trainer.TokenOf(os.Getenv(config.RunIDEnvKey))
	if err != nil {
		utils.ExitErr(err)
	}
	m := monitor.FromConfig()
	defer m.Stop()
	if config.EnableMonitoring {
		port := config.MonitoringPort
		if self, ok := c.Peer(f.ProcsID); ok && port == 0 {
			port = int(self.Port) + 10000
		}
		srv := monitor.StartServer(port, m)
		defer srv.Stop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	defer utils.Trap(func(sig os.Signal) {
		log.Warnf("%s received, stopping", sig)
		cancel()
	})()
	tr := trainer.New(f.ProcsID, c, mc, token, m)
	if err := tr.Run(ctx); err != nil {
		utils.ExitErr(err)
	}
	for name, loss := range tr.Losses() {
		log.Infof("%s: loss %f after %d steps", name, loss, mc.Steps)
	}
	if config.EnableMonitoring {
		logEgressRates(f.ProcsID, c.Peers, m)
	}
}

func logEgressRates(self int, peers plan.PeerList, m monitor.Monitor) {
	var addrs []plan.NetAddr
	for _, p := range peers {
		addrs = append(addrs, plan.NetAddr(p))
	}
	for i, r := range m.GetEgressRates(addrs) {
		if i != self {
			log.Infof("egress to procs %d (%s): %s", i, peers[i], utils.ShowRate(r))
		}
	}
}

func loadCluster(f FlagSet) (*plan.Cluster, error) {
	c, err := plan.LoadCluster(f.ClusterFile)
	if err != nil {
		return nil, err
	}
	if len(f.HostFile) > 0 {
		hl, err := hostfile.ParseFile(f.HostFile)
		if err != nil {
			return nil, err
		}
		if err := c.ResolvePeers(hl, f.PortRange); err != nil {
			return nil, errors.Wrapf(err, "hosts of %s", f.HostFile)
		}
	}
	if f.ProcsID < 0 || f.ProcsID >= c.NumProcs() {
		return nil, errors.Errorf("-procs-id %d out of %d procs", f.ProcsID, c.NumProcs())
	}
	return c, nil
}
