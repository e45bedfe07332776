package plan

import (
	"fmt"
	"os"

	"github.com/lsds/paramserver/srcs/go/msg"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

var (
	errInvalidCluster = errors.New("invalid cluster")
	errNotRoutable    = errors.New("address is not routable")
)

// Cluster is the static topology of a run.
// Worker processes take procs ids [0, NumWorkerProcs). Servers are hosted by
// the same processes unless SeparateServers is set, in which case they follow.
type Cluster struct {
	ServerGroups    int  `yaml:"server_groups"`
	ServersPerGroup int  `yaml:"servers_per_group"`
	ServersPerProcs int  `yaml:"servers_per_procs"`
	WorkerGroups    int  `yaml:"worker_groups"`
	WorkersPerGroup int  `yaml:"workers_per_group"`
	WorkersPerProcs int  `yaml:"workers_per_procs"`
	SeparateServers bool `yaml:"server_worker_separate"`

	// SyncFrequency is the number of updates between two inter-server syncs.
	// Zero disables them.
	SyncFrequency int `yaml:"sync_frequency"`

	Procs     []string `yaml:"procs"`
	Hosts     string   `yaml:"hosts"`
	PortRange string   `yaml:"port_range"`

	Peers PeerList `yaml:"-"`
}

// LoadCluster reads a YAML cluster description and resolves the peer table.
func LoadCluster(filename string) (*Cluster, error) {
	bs, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	return ParseCluster(bs)
}

func ParseCluster(bs []byte) (*Cluster, error) {
	var c Cluster
	if err := yaml.Unmarshal(bs, &c); err != nil {
		return nil, errors.Wrap(err, "parse cluster")
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	switch {
	case len(c.Procs) > 0:
		for _, p := range c.Procs {
			id, err := ParsePeerID(p)
			if err != nil {
				return nil, errors.Wrapf(err, "procs %q", p)
			}
			c.Peers = append(c.Peers, *id)
		}
	case len(c.Hosts) > 0:
		hl, err := ParseHostList(c.Hosts)
		if err != nil {
			return nil, err
		}
		pr := DefaultPortRange
		if len(c.PortRange) > 0 {
			p, err := ParsePortRange(c.PortRange)
			if err != nil {
				return nil, err
			}
			pr = *p
		}
		if err := c.ResolvePeers(hl, pr); err != nil {
			return nil, err
		}
	}
	if len(c.Peers) > 0 && len(c.Peers) != c.NumProcs() {
		return nil, errors.Wrapf(errInvalidCluster, "%d procs listed, %d required", len(c.Peers), c.NumProcs())
	}
	return &c, nil
}

// ResolvePeers fills the peer table from a host list, as for hostfiles.
func (c *Cluster) ResolvePeers(hl HostList, pr PortRange) error {
	pl, err := hl.GenPeerList(c.NumProcs(), pr)
	if err != nil {
		return err
	}
	c.Peers = pl
	return nil
}

func (c *Cluster) Validate() error {
	if c.ServerGroups <= 0 || c.ServersPerGroup <= 0 || c.ServersPerProcs <= 0 {
		return errors.Wrapf(errInvalidCluster, "servers: %d groups of %d, %d per procs", c.ServerGroups, c.ServersPerGroup, c.ServersPerProcs)
	}
	if c.WorkerGroups <= 0 || c.WorkersPerGroup <= 0 || c.WorkersPerProcs <= 0 {
		return errors.Wrapf(errInvalidCluster, "workers: %d groups of %d, %d per procs", c.WorkerGroups, c.WorkersPerGroup, c.WorkersPerProcs)
	}
	if c.ServersPerGroup%c.ServersPerProcs != 0 {
		return errors.Wrapf(errInvalidCluster, "servers_per_group %d not divisible by servers_per_procs %d", c.ServersPerGroup, c.ServersPerProcs)
	}
	if c.WorkersPerGroup > c.WorkersPerProcs {
		if c.WorkersPerGroup%c.WorkersPerProcs != 0 {
			return errors.Wrapf(errInvalidCluster, "workers_per_group %d not divisible by workers_per_procs %d", c.WorkersPerGroup, c.WorkersPerProcs)
		}
	} else {
		if c.WorkersPerProcs%c.WorkersPerGroup != 0 {
			return errors.Wrapf(errInvalidCluster, "workers_per_procs %d not divisible by workers_per_group %d", c.WorkersPerProcs, c.WorkersPerGroup)
		}
		if c.WorkerGroups%(c.WorkersPerProcs/c.WorkersPerGroup) != 0 {
			return errors.Wrapf(errInvalidCluster, "%d worker groups can't be packed %d per procs", c.WorkerGroups, c.WorkersPerProcs/c.WorkersPerGroup)
		}
	}
	if c.WorkerGroups < c.ServerGroups {
		return errors.Wrapf(errInvalidCluster, "%d worker groups can't serve %d server groups", c.WorkerGroups, c.ServerGroups)
	}
	if c.ServerGroups > msg.MaxGroup+1 || c.WorkerGroups > msg.MaxGroup+1 {
		return errors.Wrapf(errInvalidCluster, "too many groups")
	}
	if c.ServersPerGroup > msg.MaxID+1 || c.WorkersPerGroup > msg.MaxID+1 {
		return errors.Wrapf(errInvalidCluster, "too many members per group")
	}
	return nil
}

// ServerGroupOf is the server group a worker group talks to.
func (c *Cluster) ServerGroupOf(workerGroup int) int {
	return workerGroup % c.ServerGroups
}

// NumClients is the number of workers talking to each server of group g.
func (c *Cluster) NumClients(g int) int {
	var n int
	for wg := 0; wg < c.WorkerGroups; wg++ {
		if c.ServerGroupOf(wg) == g {
			n += c.WorkersPerGroup
		}
	}
	return n
}

func (c *Cluster) NumWorkerProcs() int {
	return c.WorkerGroups * c.WorkersPerGroup / c.WorkersPerProcs
}

func (c *Cluster) NumServerProcs() int {
	return c.ServerGroups * c.ServersPerGroup / c.ServersPerProcs
}

func (c *Cluster) NumProcs() int {
	if c.SeparateServers {
		return c.NumWorkerProcs() + c.NumServerProcs()
	}
	return max(c.NumWorkerProcs(), c.NumServerProcs())
}

func (c *Cluster) serverProcsBase() int {
	if c.SeparateServers {
		return c.NumWorkerProcs()
	}
	return 0
}

func (c *Cluster) HasServer(pid int) bool {
	i := pid - c.serverProcsBase()
	return 0 <= i && i < c.NumServerProcs()
}

func (c *Cluster) HasWorker(pid int) bool {
	return 0 <= pid && pid < c.NumWorkerProcs()
}

// ProcsIDOf maps a server or worker address to the process hosting it.
func (c *Cluster) ProcsIDOf(a msg.Addr) (int, error) {
	switch {
	case a.Role == msg.RoleServer:
		if a.Group >= c.ServerGroups || a.ID >= c.ServersPerGroup {
			return -1, errors.Wrapf(errNotRoutable, "%s", a)
		}
		procsPerGroup := c.ServersPerGroup / c.ServersPerProcs
		return c.serverProcsBase() + a.Group*procsPerGroup + a.ID/c.ServersPerProcs, nil
	case a.Role.IsWorker():
		if a.Group >= c.WorkerGroups || a.ID >= c.WorkersPerGroup {
			return -1, errors.Wrapf(errNotRoutable, "%s", a)
		}
		return (a.Group*c.WorkersPerGroup + a.ID) / c.WorkersPerProcs, nil
	default:
		return -1, errors.Wrapf(errNotRoutable, "%s", a)
	}
}

// Range is a half-open interval [Begin, End).
type Range struct {
	Begin int
	End   int
}

func (r Range) Len() int {
	return r.End - r.Begin
}

func (r Range) String() string {
	return fmt.Sprintf("[%d, %d)", r.Begin, r.End)
}

// LocalServers returns the server group and the server ids hosted by pid.
func (c *Cluster) LocalServers(pid int) (int, Range, bool) {
	if !c.HasServer(pid) {
		return 0, Range{}, false
	}
	i := pid - c.serverProcsBase()
	group := i * c.ServersPerProcs / c.ServersPerGroup
	start := i * c.ServersPerProcs % c.ServersPerGroup
	return group, Range{Begin: start, End: start + c.ServersPerProcs}, true
}

// LocalWorkers returns the worker groups and the worker ids within each group hosted by pid.
func (c *Cluster) LocalWorkers(pid int) (Range, Range, bool) {
	if !c.HasWorker(pid) {
		return Range{}, Range{}, false
	}
	if c.WorkersPerGroup > c.WorkersPerProcs {
		g := pid * c.WorkersPerProcs / c.WorkersPerGroup
		w := pid * c.WorkersPerProcs % c.WorkersPerGroup
		return Range{g, g + 1}, Range{w, w + c.WorkersPerProcs}, true
	}
	groupsPerProcs := c.WorkersPerProcs / c.WorkersPerGroup
	return Range{pid * groupsPerProcs, (pid + 1) * groupsPerProcs}, Range{0, c.WorkersPerGroup}, true
}

func (c *Cluster) Peer(pid int) (PeerID, bool) {
	if pid < 0 || pid >= len(c.Peers) {
		return PeerID{}, false
	}
	return c.Peers[pid], true
}

func (c *Cluster) String() string {
	return fmt.Sprintf("Cluster{servers=%dx%d/%d, workers=%dx%d/%d, separate=%v, procs=%d}",
		c.ServerGroups, c.ServersPerGroup, c.ServersPerProcs,
		c.WorkerGroups, c.WorkersPerGroup, c.WorkersPerProcs,
		c.SeparateServers, c.NumProcs())
}
