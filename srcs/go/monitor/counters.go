package monitor

import (
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lsds/paramserver/srcs/go/plan"
	"golang.org/x/exp/slices"
)

type accumulator struct {
	name  string
	value int64
}

func newAccumulator(name string) *accumulator {
	return &accumulator{
		name: name,
	}
}

func (a *accumulator) Add(n int64) int64 {
	return atomic.AddInt64(&a.value, n)
}

func (a *accumulator) Get() int64 {
	return atomic.LoadInt64(&a.value)
}

func (a *accumulator) WriteTo(w io.Writer) {
	val := atomic.LoadInt64(&a.value)
	fmt.Fprintf(w, "%s %d\n", a.name, val)
}

type rate struct {
	sync.Mutex

	name   string
	prev   int64
	target *accumulator
	value  float64
}

func newRate(a *accumulator, name string) *rate {
	r := &rate{
		name:   name,
		target: a,
	}
	return r
}

const (
	totalUnitSuffix = `bytes`
	rateUnitSuffix  = `bytes_per_sec`
	rateTimeUnit    = float64(time.Second)
)

func (r *rate) getValue() float64 {
	r.Lock()
	defer r.Unlock()
	return r.value
}

func (r *rate) update(p time.Duration) {
	now := r.target.Get()
	r.Lock()
	defer r.Unlock()
	r.value = float64(now-r.prev) / (float64(p) / rateTimeUnit)
	r.prev = now
}

func (r *rate) WriteTo(w io.Writer) {
	r.Lock()
	defer r.Unlock()
	fmt.Fprintf(w, "%s %f\n", r.name, r.value)
}

type rateAccumulator struct {
	a *accumulator
	r *rate
}

func newRateAccumulator(prefix string, labels string) *rateAccumulator {
	a := newAccumulator(prefix + "_total_" + totalUnitSuffix + labels)
	r := newRate(a, prefix+"_rate_"+rateUnitSuffix+labels)
	return &rateAccumulator{
		a: a,
		r: r,
	}
}

func (c *rateAccumulator) WriteTo(w io.Writer) {
	c.a.WriteTo(w)
	c.r.WriteTo(w)
}

type rateAccumulatorGroup struct {
	sync.Mutex

	prefix           string
	rateAccumulators map[string]*rateAccumulator
}

func newRateAccumulatorGroup(prefix string) *rateAccumulatorGroup {
	return &rateAccumulatorGroup{
		prefix:           prefix,
		rateAccumulators: make(map[string]*rateAccumulator),
	}
}

func key(a plan.NetAddr) string {
	return fmt.Sprintf(`{peer="%s"}`, a)
}

func (g *rateAccumulatorGroup) getOrCreate(a plan.NetAddr) *rateAccumulator {
	labels := key(a)
	g.Lock()
	defer g.Unlock()
	if ra, ok := g.rateAccumulators[labels]; ok {
		return ra
	}
	ra := newRateAccumulator(g.prefix, labels)
	g.rateAccumulators[labels] = ra
	return ra
}

func (g *rateAccumulatorGroup) update(p time.Duration) {
	g.Lock()
	defer g.Unlock()
	for _, ra := range g.rateAccumulators {
		ra.r.update(p)
	}
}

func (g *rateAccumulatorGroup) WriteTo(w io.Writer) {
	g.Lock()
	defer g.Unlock()
	for _, k := range sortedKeys(g.rateAccumulators) {
		g.rateAccumulators[k].WriteTo(w)
	}
}

func (g *rateAccumulatorGroup) GetRates(addrs []plan.NetAddr) []float64 {
	g.Lock()
	defer g.Unlock()
	rates := make([]float64, len(addrs))
	for i, a := range addrs {
		if ra, ok := g.rateAccumulators[key(a)]; ok {
			rates[i] = ra.r.getValue()
		}
	}
	return rates
}

// timer accumulates the number and total duration of timed events.
type timer struct {
	count *accumulator
	total *accumulator
}

func newTimer(name string) *timer {
	return &timer{
		count: newAccumulator(name + "_count"),
		total: newAccumulator(name + "_nanoseconds_total"),
	}
}

func (t *timer) Add(d time.Duration) {
	t.count.Add(1)
	t.total.Add(int64(d))
}

func (t *timer) WriteTo(w io.Writer) {
	t.count.WriteTo(w)
	t.total.WriteTo(w)
}

type writerTo interface {
	WriteTo(w io.Writer)
}

type namedGroup[T writerTo] struct {
	sync.Mutex
	items  map[string]T
	create func(string) T
}

func newNamedGroup[T writerTo](create func(string) T) *namedGroup[T] {
	return &namedGroup[T]{
		items:  make(map[string]T),
		create: create,
	}
}

func (g *namedGroup[T]) getOrCreate(name string) T {
	g.Lock()
	defer g.Unlock()
	if x, ok := g.items[name]; ok {
		return x
	}
	x := g.create(name)
	g.items[name] = x
	return x
}

func (g *namedGroup[T]) WriteTo(w io.Writer) {
	g.Lock()
	defer g.Unlock()
	for _, k := range sortedKeys(g.items) {
		g.items[k].WriteTo(w)
	}
}

func sortedKeys[T any](m map[string]T) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
