package updater

import (
	"math"
	"strings"

	"github.com/pkg/errors"
)

// Schedule changes the learning rate with the step.
//
//	fixed: base
//	step:  base * gamma^(step / step_size)
//	exp:   base * gamma^step
type Schedule struct {
	Type     string  `yaml:"type"`
	Gamma    float32 `yaml:"gamma"`
	StepSize int     `yaml:"step_size"`
}

var errBadSchedule = errors.New("invalid learning rate schedule")

func (s Schedule) validate() error {
	switch strings.ToLower(s.Type) {
	case "", "fixed", "exp", "exponential":
		return nil
	case "step":
		if s.StepSize <= 0 {
			return errors.Wrapf(errBadSchedule, "step_size %d", s.StepSize)
		}
		return nil
	}
	return errors.Wrapf(errBadSchedule, "%q", s.Type)
}

func (s Schedule) Rate(base float32, step int) float32 {
	switch strings.ToLower(s.Type) {
	case "step":
		return base * pow(s.Gamma, step/s.StepSize)
	case "exp", "exponential":
		return base * pow(s.Gamma, step)
	default:
		return base
	}
}

func pow(x float32, n int) float32 {
	return float32(math.Pow(float64(x), float64(n)))
}
