package platform

import (
	"os"
	"os/signal"
	"sync"
	"syscall"
)

// CrashReporter notifies a handler when the process is about to die
// from a fatal condition, giving the pipeline one chance to spool a
// critical error event. Implementations must never suppress the crash,
// only delay it long enough to report.
type CrashReporter interface {
	OnFatal(handler func(description string))
}

// SignalCrashReporter reports fatal POSIX signals. After the handler
// returns, the signal's default disposition is restored and the signal
// re-raised so the process still dies the way it would have.
type SignalCrashReporter struct {
	once sync.Once
}

func NewSignalCrashReporter() *SignalCrashReporter {
	return &SignalCrashReporter{}
}

func (r *SignalCrashReporter) OnFatal(handler func(description string)) {
	r.once.Do(func() {
		ch := make(chan os.Signal, 1)
		signals := []os.Signal{syscall.SIGSEGV, syscall.SIGBUS, syscall.SIGABRT, syscall.SIGFPE, syscall.SIGILL}
		signal.Notify(ch, signals...)
		go func() {
			sig := <-ch
			handler("fatal signal: " + sig.String())
			signal.Reset(signals...)
			if s, okSig := sig.(syscall.Signal); okSig {
				syscall.Kill(os.Getpid(), s)
			}
		}()
	})
}

// NoopCrashReporter is used where the embedding engine installs its own
// handlers.
type NoopCrashReporter struct{}

func (NoopCrashReporter) OnFatal(func(string)) {}
