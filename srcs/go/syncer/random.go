package syncer

import (
	"math/rand/v2"
	"time"

	"github.com/lsds/paramserver/srcs/go/monitor"
	"github.com/lsds/paramserver/srcs/go/msg"
	"github.com/lsds/paramserver/srcs/go/param"
	"github.com/pkg/errors"
)

// Sample chooses exactly m of the indices [0, n) in increasing order.
// Index i is taken with probability (m-k)/(n-i), k being the number taken so
// far, so the result depends on seed only.
func Sample(seed uint64, m, n int) []int {
	if m > n {
		m = n
	}
	r := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	samples := make([]int, 0, m)
	for i, k := 0, 0; i < n && k < m; i++ {
		if float32(m-k)/float32(n-i) > r.Float32() {
			samples = append(samples, i)
			k++
		}
	}
	return samples
}

type randomSample struct {
	ratio   float32
	seed    func() uint64
	monitor monitor.Monitor
}

func (s *randomSample) Kind() Kind { return RandomSample }

func (s *randomSample) indices(seed uint64, count, n int) []int {
	if count == n {
		idx := make([]int, n)
		for i := range idx {
			idx[i] = i
		}
		return idx
	}
	return Sample(seed, count, n)
}

// Generate sends the change of each sampled element since the last sync.
// Only the seed and the count are sent, the receiver regenerates the indices.
func (s *randomSample) Generate(p *param.Param, m *msg.Message) (bool, error) {
	defer s.timeSince(monitor.WorkerGenSync, time.Now())
	n := p.Size()
	count := min(int(float32(n)*s.ratio), n)
	if count <= 0 {
		return false, nil
	}
	seed := s.seed()
	delta := make([]float32, 0, count)
	for _, i := range s.indices(seed, count, n) {
		delta = append(delta, p.Data[i]-p.Snapshot[i])
	}
	m.AddString(msg.FormatSeedCount(seed, count))
	m.AddFloats(delta)
	return true, nil
}

// Handle adds the deltas and answers with the values held before adding them.
func (s *randomSample) Handle(p *param.Param, req *msg.Message, reply *msg.Message) error {
	defer s.timeSince(monitor.ServerHandleSync, time.Now())
	seed, count, xs, err := s.parse(p, req)
	if err != nil {
		return err
	}
	for k, i := range s.indices(seed, count, p.Size()) {
		old := p.Data[i]
		p.Data[i] += xs[k]
		xs[k] = old
	}
	reply.AddString(msg.FormatSeedCount(seed, count))
	reply.AddFloats(xs)
	return nil
}

// Apply rebases the sampled elements on the values returned by the server.
func (s *randomSample) Apply(p *param.Param, m *msg.Message) error {
	defer s.timeSince(monitor.WorkerHandleSync, time.Now())
	seed, count, xs, err := s.parse(p, m)
	if err != nil {
		return err
	}
	for k, i := range s.indices(seed, count, p.Size()) {
		p.Data[i] += xs[k] - p.Snapshot[i]
		p.Snapshot[i] = p.Data[i]
	}
	return nil
}

func (s *randomSample) parse(p *param.Param, m *msg.Message) (uint64, int, []float32, error) {
	control, err := m.NextString()
	if err != nil {
		return 0, 0, nil, err
	}
	seed, count, err := msg.ParseSeedCount(control)
	if err != nil {
		return 0, 0, nil, err
	}
	xs, err := m.NextFloats()
	if err != nil {
		return 0, 0, nil, err
	}
	if count > p.Size() || len(xs) != count {
		return 0, 0, nil, errors.Wrapf(ErrLengthMismatch, "%s: count %d, payload %d, param %d", m, count, len(xs), p.Size())
	}
	return seed, count, xs, nil
}

func (s *randomSample) timeSince(name string, t0 time.Time) {
	s.monitor.Time(name, time.Since(t0))
}
