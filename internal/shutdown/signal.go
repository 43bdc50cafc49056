package shutdown

import (
	"os"
	"os/signal"
)

// Notify returns a channel that receives the first of sigs. The handler is
// removed as soon as that signal arrives, so repeating it while shutdown is
// still in progress terminates the process the default way.
func Notify(sigs ...os.Signal) <-chan os.Signal {
	raw := make(chan os.Signal, 1)
	first := make(chan os.Signal, 1)

	signal.Notify(raw, sigs...)
	go func() {
		sig := <-raw
		signal.Stop(raw)
		first <- sig
	}()

	return first
}
