package app

import (
	"flag"
	"time"

	"github.com/lsds/paramserver/srcs/go/plan"
	"github.com/pkg/errors"
)

type FlagSet struct {
	ClusterFile string
	HostFile    string
	ModelFile   string

	portRange string
	PortRange plan.PortRange

	Self       string
	Remote     bool
	User       string
	LogDir     string
	VerboseLog bool
	Timeout    time.Duration
	Wait       bool

	Prog string
	Args []string
}

func (f *FlagSet) Register(flag *flag.FlagSet) {
	flag.StringVar(&f.ClusterFile, "cluster", "", "path to the cluster YAML")
	flag.StringVar(&f.HostFile, "hostfile", "", "hostfile overriding the hosts of the cluster")
	flag.StringVar(&f.ModelFile, "model", "", "path to the model YAML")
	flag.StringVar(&f.portRange, "port-range", plan.DefaultPortRange.String(), "port range used with -hostfile")

	flag.StringVar(&f.Self, "self", "", "only start the processes of this host IPv4")
	flag.BoolVar(&f.Remote, "remote", false, "start the processes over ssh")
	flag.StringVar(&f.User, "u", "", "user name for ssh")
	flag.StringVar(&f.LogDir, "logdir", "logs", "directory of the process logs")
	flag.BoolVar(&f.VerboseLog, "v", true, "show process logs")
	flag.DurationVar(&f.Timeout, "timeout", 0, "timeout")
	flag.BoolVar(&f.Wait, "wait", false, "report when every process accepts connections")
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
	f.Prog = "ps-run"
	if rest := flag.Args(); len(rest) > 0 {
		f.Prog = rest[0]
		f.Args = rest[1:]
	}
	return nil
}
