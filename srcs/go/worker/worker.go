package worker

import (
	"context"

	"github.com/lsds/paramserver/srcs/go/log"
	"github.com/lsds/paramserver/srcs/go/param"
	"github.com/lsds/paramserver/srcs/go/syncer"
	"github.com/lsds/paramserver/srcs/go/utils"
)

// Model is the part of a model graph a worker drives.
type Model interface {
	param.Net
	// Gradients fills the Grad buffers of the params for the given step.
	Gradients(step int) error
}

type Config struct {
	Steps int
	// SyncFrequency is the number of steps between two syncs, 0 disables them.
	SyncFrequency int
	// Put makes this worker initialise the servers with its params.
	Put bool
}

// Worker trains a model against the servers reached through its table.
type Worker struct {
	table *Table
	model Model
	cfg   Config
}

func New(t *Table, m Model, cfg Config) *Worker {
	return &Worker{table: t, model: m, cfg: cfg}
}

func (w *Worker) Run(ctx context.Context) error {
	t := w.table
	if err := t.Start(); err != nil {
		return err
	}
	params := w.model.Params()
	if err := t.Register(params...); err != nil {
		return err
	}
	if w.cfg.Put {
		if err := w.each(params, t.Put); err != nil {
			return err
		}
	}
	if err := w.each(params, t.AsyncGet); err != nil {
		return err
	}
	if err := w.each(params, t.AsyncCollect); err != nil {
		return err
	}
	log.Debugf("worker %s got %s", t.self, utils.Pluralize(len(params), "param", "params"))
	sync := w.cfg.SyncFrequency > 0 && t.strategy.Kind() != syncer.Plain
	for step := 0; step < w.cfg.Steps; step++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := w.model.Gradients(step); err != nil {
			return err
		}
		for _, p := range params {
			if err := t.AsyncUpdate(p, step); err != nil {
				return err
			}
		}
		if err := w.each(params, t.AsyncCollect); err != nil {
			return err
		}
		if sync && (step+1)%w.cfg.SyncFrequency == 0 {
			if err := w.each(params, t.AsyncSync); err != nil {
				return err
			}
			if err := w.each(params, t.AsyncCollect); err != nil {
				return err
			}
		}
	}
	log.Debugf("worker %s finished %d steps", t.self, w.cfg.Steps)
	return t.Finish()
}

func (w *Worker) each(params []*param.Param, f func(*param.Param) error) error {
	for _, p := range params {
		if err := f(p); err != nil {
			return err
		}
	}
	return nil
}
