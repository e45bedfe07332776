package utils

import (
	"os"
	"os/signal"
	"syscall"
)

// Trap calls cancel once on the first SIGINT or SIGTERM.
// The returned function stops trapping.
func Trap(cancel func(os.Signal)) func() {
	ch := make(chan os.Signal, 1)
	done := make(chan struct{})
	signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-ch:
			cancel(sig)
		case <-done:
		}
	}()
	return func() {
		signal.Stop(ch)
		close(done)
	}
}
