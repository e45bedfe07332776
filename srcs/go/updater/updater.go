package updater

import (
	"math"
	"strings"

	"github.com/lsds/paramserver/srcs/go/param"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/blas/blas32"
)

var errUnknownUpdater = errors.New("unknown updater")

// Config is the updater section of a model description.
type Config struct {
	Type        string  `yaml:"type"`
	BaseLR      float32 `yaml:"base_lr"`
	Momentum    float32 `yaml:"momentum"`
	WeightDecay float32 `yaml:"weight_decay"`
	Delta       float32 `yaml:"delta"`

	Schedule Schedule `yaml:"schedule"`
}

// Updater applies p.Grad to p.Data.
type Updater interface {
	Update(step int, p *param.Param)
}

func New(c Config) (Updater, error) {
	if err := c.Schedule.validate(); err != nil {
		return nil, err
	}
	switch strings.ToLower(c.Type) {
	case "", "sgd":
		return &sgd{c: c}, nil
	case "adagrad":
		if c.Delta <= 0 {
			c.Delta = 1e-8
		}
		return &adaGrad{c: c}, nil
	}
	return nil, errors.Wrapf(errUnknownUpdater, "%q", c.Type)
}

func vec(xs []float32) blas32.Vector {
	return blas32.Vector{N: len(xs), Data: xs, Inc: 1}
}

// decay adds the weight decay term to the gradient.
func decay(wd float32, p *param.Param) {
	if wd != 0 {
		blas32.Axpy(wd, vec(p.Data), vec(p.Grad))
	}
}

type sgd struct {
	c Config
}

func (u *sgd) Update(step int, p *param.Param) {
	lr := u.c.Schedule.Rate(u.c.BaseLR, step) * p.LRScale
	decay(u.c.WeightDecay*p.WDScale, p)
	if u.c.Momentum == 0 {
		blas32.Axpy(-lr, vec(p.Grad), vec(p.Data))
		return
	}
	h := vec(p.History)
	blas32.Scal(u.c.Momentum, h)
	blas32.Axpy(-lr, vec(p.Grad), h)
	blas32.Axpy(1, h, vec(p.Data))
}

type adaGrad struct {
	c Config
}

func (u *adaGrad) Update(step int, p *param.Param) {
	lr := u.c.Schedule.Rate(u.c.BaseLR, step) * p.LRScale
	decay(u.c.WeightDecay*p.WDScale, p)
	for i, g := range p.Grad {
		p.History[i] += g * g
		p.Data[i] -= lr * g / (float32(math.Sqrt(float64(p.History[i]))) + u.c.Delta)
	}
}
