//go:build unix

package shutdown

import (
	"os"
	"os/signal"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotifyDeliversFirstSignalOnly(t *testing.T) {
	// Keeps SIGUSR1 handled after Notify lets go of it.
	observer := make(chan os.Signal, 2)
	signal.Notify(observer, syscall.SIGUSR1)
	defer signal.Stop(observer)

	first := Notify(syscall.SIGUSR1)

	require.NoError(t, syscall.Kill(os.Getpid(), syscall.SIGUSR1))
	select {
	case sig := <-first:
		assert.Equal(t, syscall.SIGUSR1, sig)
	case <-time.After(5 * time.Second):
		t.Fatal("first signal not delivered")
	}
	<-observer

	require.NoError(t, syscall.Kill(os.Getpid(), syscall.SIGUSR1))
	select {
	case <-observer:
	case <-time.After(5 * time.Second):
		t.Fatal("second signal not observed")
	}

	select {
	case sig := <-first:
		t.Fatalf("repeated signal %v was captured", sig)
	case <-time.After(50 * time.Millisecond):
	}
}
