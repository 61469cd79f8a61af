package ringio

import (
	"runtime"
	"sync"

	"github.com/brickingsoft/rxp"
)

var (
	executors     rxp.Executors = nil
	executorsOnce sync.Once
)

// Startup configures the shared executors. Rings run their unbound work on
// rxp.Executors; one default instance is provided, call Startup at program
// start to customize it.
func Startup(options ...rxp.Option) (err error) {
	execs, newErr := rxp.New(options...)
	if newErr != nil {
		err = newErr
		return
	}
	executors = execs
	runtime.SetFinalizer(executors, rxp.Executors.Close)
	return
}

// Shutdown closes the shared executors, waiting for running and already
// submitted tasks to finish. Bound the wait with rxp.WithCloseTimeout at
// Startup.
func Shutdown() error {
	runtime.SetFinalizer(executors, nil)
	return Executors().Close()
}

// Executors returns the shared executors, building the default instance on
// first use.
func Executors() rxp.Executors {
	executorsOnce.Do(func() {
		if executors == nil {
			execs, newErr := rxp.New()
			if newErr != nil {
				panic(newErr)
			}
			executors = execs
			runtime.SetFinalizer(executors, rxp.Executors.Close)
		}
	})
	return executors
}
