package syncer

import (
	"math/rand/v2"
	"strings"
	"time"

	"github.com/lsds/paramserver/srcs/go/monitor"
	"github.com/lsds/paramserver/srcs/go/msg"
	"github.com/lsds/paramserver/srcs/go/param"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/blas/blas32"
)

var (
	ErrLengthMismatch = errors.New("sync payload length mismatch")
	errUnknownKind    = errors.New("unknown sync strategy")
)

type Kind int

const (
	Plain          Kind = iota
	RandomSample   Kind = iota
	ElasticAverage Kind = iota
)

func (k Kind) String() string {
	switch k {
	case Plain:
		return "plain"
	case RandomSample:
		return "random"
	case ElasticAverage:
		return "elastic"
	default:
		return "unknown"
	}
}

func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(s) {
	case "", "plain":
		return Plain, nil
	case "random", "random_sample":
		return RandomSample, nil
	case "elastic", "elastic_average":
		return ElasticAverage, nil
	}
	return Plain, errors.Wrapf(errUnknownKind, "%q", s)
}

// Strategy reconciles two replicas of a parameter.
//
// Generate runs at the side that starts a sync and appends the control and
// payload frames to m, it reports false if there is nothing to send.
// Handle runs at the side that owns the reference replica, it updates p and
// writes the answer frames into reply. Apply folds the answer back into the
// replica that started the sync.
type Strategy interface {
	Kind() Kind
	Generate(p *param.Param, m *msg.Message) (bool, error)
	Handle(p *param.Param, req *msg.Message, reply *msg.Message) error
	Apply(p *param.Param, m *msg.Message) error
}

// New returns the strategy of the given kind. rate is the sample ratio of a
// random-subset sync and the moving rate alpha of elastic averaging.
func New(kind Kind, rate float32, m monitor.Monitor) (Strategy, error) {
	if m == nil {
		m = monitor.Noop()
	}
	switch kind {
	case Plain:
		return plain{}, nil
	case RandomSample:
		return &randomSample{ratio: rate, seed: rand.Uint64, monitor: m}, nil
	case ElasticAverage:
		return &elasticAverage{alpha: rate, monitor: m}, nil
	}
	return nil, errors.Wrapf(errUnknownKind, "%d", kind)
}

type plain struct{}

func (plain) Kind() Kind { return Plain }

func (plain) Generate(p *param.Param, m *msg.Message) (bool, error) { return false, nil }

func (plain) Handle(p *param.Param, req *msg.Message, reply *msg.Message) error { return nil }

func (plain) Apply(p *param.Param, m *msg.Message) error { return nil }

func vec(xs []float32) blas32.Vector {
	return blas32.Vector{N: len(xs), Data: xs, Inc: 1}
}

type elasticAverage struct {
	alpha   float32
	monitor monitor.Monitor
}

func (s *elasticAverage) Kind() Kind { return ElasticAverage }

func (s *elasticAverage) Generate(p *param.Param, m *msg.Message) (bool, error) {
	defer s.timeSince(monitor.WorkerGenSync, time.Now())
	m.AddString(msg.FormatAlphaCount(s.alpha, p.Size()))
	m.AddFloats(p.Data)
	return true, nil
}

// Handle moves the server replica by alpha towards the worker one and answers
// with the increment it applied.
func (s *elasticAverage) Handle(p *param.Param, req *msg.Message, reply *msg.Message) error {
	defer s.timeSince(monitor.ServerHandleSync, time.Now())
	alpha, count, worker, err := s.parse(p, req)
	if err != nil {
		return err
	}
	inc := worker
	blas32.Axpy(-1, vec(p.Data), vec(inc))
	blas32.Scal(alpha, vec(inc))
	blas32.Axpy(1, vec(inc), vec(p.Data))
	reply.AddString(msg.FormatAlphaCount(alpha, count))
	reply.AddFloats(inc)
	return nil
}

func (s *elasticAverage) Apply(p *param.Param, m *msg.Message) error {
	defer s.timeSince(monitor.WorkerHandleSync, time.Now())
	_, _, diff, err := s.parse(p, m)
	if err != nil {
		return err
	}
	blas32.Axpy(-1, vec(diff), vec(p.Data))
	return nil
}

func (s *elasticAverage) parse(p *param.Param, m *msg.Message) (float32, int, []float32, error) {
	control, err := m.NextString()
	if err != nil {
		return 0, 0, nil, err
	}
	alpha, count, err := msg.ParseAlphaCount(control)
	if err != nil {
		return 0, 0, nil, err
	}
	xs, err := m.NextFloats()
	if err != nil {
		return 0, 0, nil, err
	}
	if count != p.Size() || len(xs) != count {
		return 0, 0, nil, errors.Wrapf(ErrLengthMismatch, "%s: count %d, payload %d, param %d", m, count, len(xs), p.Size())
	}
	return alpha, count, xs, nil
}

func (s *elasticAverage) timeSince(name string, t0 time.Time) {
	s.monitor.Time(name, time.Since(t0))
}
