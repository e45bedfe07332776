package local

import (
	"context"
	"os/exec"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/lsds/paramserver/srcs/go/log"
	"github.com/lsds/paramserver/srcs/go/proc"
	"github.com/lsds/paramserver/srcs/go/utils/iostream"
	"github.com/lsds/paramserver/srcs/go/utils/xterm"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

type Runner struct {
	Name          string
	Color         xterm.Color
	LogDir        string
	LogFilePrefix string
	VerboseLog    bool
}

func (r Runner) redirectors() []*iostream.StdWriters {
	var redirectors []*iostream.StdWriters
	if r.VerboseLog {
		redirectors = append(redirectors, iostream.NewXTermRedirector(r.Name, r.Color))
	}
	if len(r.LogFilePrefix) > 0 {
		redirectors = append(redirectors, iostream.NewFileRedirector(filepath.Join(r.LogDir, r.LogFilePrefix)))
	}
	return redirectors
}

// Run runs cmd until it exits or ctx is done.
func (r Runner) Run(ctx context.Context, cmd *exec.Cmd) error {
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return err
	}
	redirectors := r.redirectors()
	defer func() {
		for _, w := range redirectors {
			w.Close()
		}
	}()
	results := iostream.StdReaders{Stdout: stdout, Stderr: stderr}
	ioDone := results.Stream(redirectors...)
	if err := cmd.Start(); err != nil {
		return err
	}
	done := make(chan error, 1)
	go func() {
		ioDone.Wait() // before cmd.Wait
		done <- cmd.Wait()
	}()
	select {
	case <-ctx.Done():
		cmd.Process.Kill()
		<-done
		return ctx.Err()
	case err := <-done:
		return err
	}
}

// RunAll runs every process and stops the others as soon as one fails.
func RunAll(ctx context.Context, ps []proc.Proc, verboseLog bool) error {
	g, ctx := errgroup.WithContext(ctx)
	var fail int32
	for i, p := range ps {
		g.Go(func() error {
			t0 := time.Now()
			r := Runner{
				Name:          p.Name,
				Color:         xterm.Auto(xterm.BasicColors.Choose(i)),
				VerboseLog:    verboseLog,
				LogFilePrefix: strings.ReplaceAll(p.Name, "/", "-"),
				LogDir:        p.LogDir,
			}
			if err := r.Run(ctx, p.Cmd()); err != nil {
				log.Errorf("#<%s> exited with error: %v, took %s", p.Name, err, time.Since(t0))
				atomic.AddInt32(&fail, 1)
				return errors.Wrap(err, p.Name)
			}
			log.Debugf("#<%s> finished successfully, took %s", p.Name, time.Since(t0))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return errors.Wrapf(err, "%d of %d tasks failed", atomic.LoadInt32(&fail), len(ps))
	}
	return nil
}
