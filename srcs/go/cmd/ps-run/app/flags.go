package app

import (
	"flag"

	"github.com/lsds/paramserver/srcs/go/plan"
	"github.com/pkg/errors"
)

type FlagSet struct {
	ProcsID     int
	ClusterFile string
	HostFile    string
	ModelFile   string

	portRange string
	PortRange plan.PortRange

	Logfile string
	Quiet   bool
	Verbose bool
}

func (f *FlagSet) Register(flag *flag.FlagSet) {
	flag.IntVar(&f.ProcsID, "procs-id", 0, "id of this process in the cluster")
	flag.StringVar(&f.ClusterFile, "cluster", "", "path to the cluster YAML")
	flag.StringVar(&f.HostFile, "hostfile", "", "hostfile overriding the hosts of the cluster")
	flag.StringVar(&f.ModelFile, "model", "", "path to the model YAML")
	flag.StringVar(&f.portRange, "port-range", plan.DefaultPortRange.String(), "port range used with -hostfile")
	flag.StringVar(&f.Logfile, "logfile", "", "path to log file")
	flag.BoolVar(&f.Quiet, "q", false, "don't log debug info")
	flag.BoolVar(&f.Verbose, "v", false, "log every env and network interface at startup")
}

var errMissingFile = errors.New("missing -cluster or -model")

func (f *FlagSet) Parse(args []string) error {
	flag := flag.NewFlagSet(args[0], flag.ExitOnError)
	f.Register(flag)
	if err := flag.Parse(args[1:]); err != nil {
		return err
	}
	if len(f.ClusterFile) == 0 || len(f.ModelFile) == 0 {
		return errMissingFile
	}
	pr, err := plan.ParsePortRange(f.portRange)
	if err != nil {
		return errors.Wrap(err, "-port-range")
	}
	f.PortRange = *pr
	return nil
}
