package system

import (
	"context"
	"errors"
	realsync "sync"
	"time"

	sync "github.com/bacalhau-project/golang-mutex-tracer"
	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog/log"
)

// CleanupManager collects teardown callbacks, such as closing transports and
// websocket routers, and runs them together before the process exits.
type CleanupManager struct {
	wg realsync.WaitGroup

	fnsMutex sync.Mutex
	fns      []func() error
	fnsDone  bool
}

// NewCleanupManager returns a new CleanupManager instance.
func NewCleanupManager() *CleanupManager {
	c := &CleanupManager{}
	c.fnsMutex.EnableTracerWithOpts(sync.Opts{
		Threshold: 10 * time.Millisecond,
		Id:        "CleanupManager.fnsMutex",
	})
	return c
}

// RegisterCallback registers a clean-up function.
func (cm *CleanupManager) RegisterCallback(fn func() error) {
	cm.fnsMutex.Lock()
	defer cm.fnsMutex.Unlock()

	if cm.fnsDone {
		log.Error().Msg("CleanupManager: RegisterCallback called after Cleanup")
		return
	}

	cm.wg.Add(1)
	cm.fns = append(cm.fns, fn)
}

// Cleanup runs all registered clean-up functions concurrently, waits for
// them to finish and returns their combined errors. Cancellation errors are
// ignored.
func (cm *CleanupManager) Cleanup() error {
	cm.fnsMutex.Lock()
	defer cm.fnsMutex.Unlock()

	if cm.fnsDone {
		log.Warn().Msg("CleanupManager: Cleanup called again after already called")
		return nil
	}

	var errsMu realsync.Mutex
	var result *multierror.Error
	for i := 0; i < len(cm.fns); i++ {
		go func(fn func() error) {
			defer cm.wg.Done()

			if err := fn(); err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Msg("Error during clean-up callback")
				errsMu.Lock()
				result = multierror.Append(result, err)
				errsMu.Unlock()
			}
		}(cm.fns[i])
	}

	cm.wg.Wait()
	cm.fnsDone = true
	return result.ErrorOrNil()
}
