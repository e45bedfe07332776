package monitor

import (
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/lsds/paramserver/srcs/go/config"
	"github.com/lsds/paramserver/srcs/go/log"
	"github.com/lsds/paramserver/srcs/go/plan"
)

// Names of the event counters and timers.
const (
	Requeues          = `ps_requeues`
	DroppedSync       = `ps_dropped_sync_responses`
	ServerHandleSync  = `ps_handle_sync`
	WorkerGenSync     = `worker_gen_sync`
	WorkerHandleSync  = `worker_handle_sync`
	CollectWait       = `worker_collect_wait`
	RouterBuffered    = `router_buffered_messages`
	DispatchForwarded = `dispatch_forwarded_messages`
	DispatchDropped   = `dispatch_dropped_messages`
)

type netMonitor interface {
	Egress(n int64, a plan.NetAddr)
	Ingress(n int64, a plan.NetAddr)

	GetEgressRates(addrs []plan.NetAddr) []float64
}

type Monitor interface {
	http.Handler

	netMonitor

	Count(name string, n int64)
	Time(name string, d time.Duration)

	WriteTo(w io.Writer)
	Stop()
}

// FromConfig returns a live monitor if monitoring is enabled, a no-op one otherwise.
func FromConfig() Monitor {
	if !config.EnableMonitoring {
		return Noop()
	}
	return New(config.MonitoringPeriod)
}

func Noop() Monitor {
	return &noopMonitor{}
}

type noopMonitor struct{}

func (m *noopMonitor) Egress(n int64, a plan.NetAddr) {}

func (m *noopMonitor) Ingress(n int64, a plan.NetAddr) {}

func (m *noopMonitor) GetEgressRates(addrs []plan.NetAddr) []float64 {
	log.Warnf("monitoring is not enabled")
	rates := make([]float64, len(addrs))
	return rates
}

func (m *noopMonitor) Count(name string, n int64) {}

func (m *noopMonitor) Time(name string, d time.Duration) {}

func (m *noopMonitor) ServeHTTP(w http.ResponseWriter, req *http.Request) {}

func (m *noopMonitor) WriteTo(w io.Writer) {}

func (m *noopMonitor) Stop() {}

type metrics struct {
	egressCounters  *rateAccumulatorGroup
	ingressCounters *rateAccumulatorGroup
	counters        *namedGroup[*accumulator]
	timers          *namedGroup[*timer]

	stopOnce sync.Once
	stopped  chan struct{}
}

// New creates a monitor updating its rates every p, or never if p is 0.
func New(p time.Duration) Monitor {
	m := &metrics{
		egressCounters:  newRateAccumulatorGroup("egress"),
		ingressCounters: newRateAccumulatorGroup("ingress"),
		counters:        newNamedGroup(newAccumulator),
		timers:          newNamedGroup(newTimer),
		stopped:         make(chan struct{}),
	}
	if p > 0 {
		go m.start(p)
	}
	return m
}

func (m *metrics) start(p time.Duration) {
	tk := time.NewTicker(p)
	defer tk.Stop()
	for {
		select {
		case <-tk.C:
			m.egressCounters.update(p)
			m.ingressCounters.update(p)
		case <-m.stopped:
			return
		}
	}
}

func (m *metrics) Stop() {
	m.stopOnce.Do(func() { close(m.stopped) })
}

func (m *metrics) Egress(n int64, a plan.NetAddr) {
	ra := m.egressCounters.getOrCreate(a)
	ra.a.Add(n)
}

func (m *metrics) Ingress(n int64, a plan.NetAddr) {
	ra := m.ingressCounters.getOrCreate(a)
	ra.a.Add(n)
}

func (m *metrics) GetEgressRates(addrs []plan.NetAddr) []float64 {
	return m.egressCounters.GetRates(addrs)
}

func (m *metrics) Count(name string, n int64) {
	m.counters.getOrCreate(name).Add(n)
}

func (m *metrics) Time(name string, d time.Duration) {
	m.timers.getOrCreate(name).Add(d)
}

func (m *metrics) WriteTo(w io.Writer) {
	m.egressCounters.WriteTo(w)
	m.ingressCounters.WriteTo(w)
	m.counters.WriteTo(w)
	m.timers.WriteTo(w)
}

func (m *metrics) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	m.WriteTo(w)
}
