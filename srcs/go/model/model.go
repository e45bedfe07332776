package model

import (
	"math/rand/v2"

	"github.com/lsds/paramserver/srcs/go/param"
	"gonum.org/v1/gonum/blas/blas32"
	"gonum.org/v1/gonum/stat/distuv"
)

// Quadratic is a toy model whose loss is half the squared distance of its
// params to a fixed random target. Two models built from the same config
// share the target and the initial values.
type Quadratic struct {
	params  []*param.Param
	targets [][]float32
}

func New(c *Config) *Quadratic {
	shapes := make([]param.Shape, len(c.Params))
	for i, pc := range c.Params {
		shapes[i] = param.Shape{Name: pc.Name, Size: pc.Size}
	}
	ps := param.Alloc(0, shapes)
	init := distuv.Normal{Mu: 0, Sigma: 1, Src: rand.NewPCG(c.Seed, 1)}
	target := distuv.Uniform{Min: -1, Max: 1, Src: rand.NewPCG(c.Seed, 2)}
	targets := make([][]float32, len(ps))
	for i, p := range ps {
		pc := c.Params[i]
		p.LRScale, p.WDScale, p.SplitThreshold = pc.LRScale, pc.WDScale, pc.SplitThreshold
		targets[i] = make([]float32, p.Size())
		for j := range p.Data {
			p.Data[j] = float32(init.Rand())
			targets[i][j] = float32(target.Rand())
		}
	}
	return &Quadratic{params: ps, targets: targets}
}

func (m *Quadratic) Params() []*param.Param {
	return m.params
}

// Gradients sets the gradient of every param to its distance to the target.
func (m *Quadratic) Gradients(step int) error {
	for i, p := range m.params {
		copy(p.Grad, p.Data)
		blas32.Axpy(-1, vec(m.targets[i]), vec(p.Grad))
	}
	return nil
}

func (m *Quadratic) Loss() float32 {
	var loss float32
	for i, p := range m.params {
		d := make([]float32, p.Size())
		copy(d, p.Data)
		blas32.Axpy(-1, vec(m.targets[i]), vec(d))
		loss += blas32.Dot(vec(d), vec(d)) / 2
	}
	return loss
}

func vec(xs []float32) blas32.Vector {
	return blas32.Vector{N: len(xs), Data: xs, Inc: 1}
}
