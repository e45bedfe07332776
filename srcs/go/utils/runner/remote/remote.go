package remote

import (
	"context"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lsds/paramserver/srcs/go/log"
	"github.com/lsds/paramserver/srcs/go/plan"
	"github.com/lsds/paramserver/srcs/go/proc"
	"github.com/lsds/paramserver/srcs/go/utils/iostream"
	"github.com/lsds/paramserver/srcs/go/utils/ssh"
	"github.com/lsds/paramserver/srcs/go/utils/xterm"
	"github.com/pkg/errors"
)

// Host is where p is reached over SSH.
func Host(p proc.Proc) string {
	if len(p.PubAddr) > 0 {
		return p.PubAddr
	}
	return plan.FormatIPv4(p.IPv4)
}

// RunAll runs every process on its host, logs are kept in logDir on this host.
func RunAll(ctx context.Context, user string, ps []proc.Proc, verboseLog bool, logDir string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	var wg sync.WaitGroup
	var fail int32
	for i, p := range ps {
		wg.Add(1)
		go func() {
			defer wg.Done()
			t0 := time.Now()
			config := ssh.Config{Host: Host(p), User: user}
			client, err := ssh.New(config)
			if err != nil {
				log.Errorf("#<%s> failed to connect %s: %v", p.Name, config, err)
				atomic.AddInt32(&fail, 1)
				cancel()
				return
			}
			defer client.Close()
			var redirectors []*iostream.StdWriters
			if verboseLog {
				redirectors = append(redirectors, iostream.NewXTermRedirector(p.Name, xterm.Auto(xterm.BasicColors.Choose(i))))
			}
			files := iostream.NewFileRedirector(filepath.Join(logDir, p.Name))
			defer files.Close()
			redirectors = append(redirectors, files)
			if err := client.Watch(ctx, p.Script(), redirectors); err != nil {
				log.Errorf("#<%s> exited with error: %v, took %s", p.Name, err, time.Since(t0))
				atomic.AddInt32(&fail, 1)
				cancel()
				return
			}
			log.Debugf("#<%s> finished successfully, took %s", p.Name, time.Since(t0))
		}()
	}
	wg.Wait()
	if fail != 0 {
		return errors.Errorf("%d tasks failed", fail)
	}
	return nil
}
