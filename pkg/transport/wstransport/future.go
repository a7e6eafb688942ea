package wstransport

import "context"

// future is resolved exactly once, either with the raw response frame or
// with an error.
type future struct {
	done  chan struct{}
	frame []byte
	err   error
}

func newFuture() *future {
	return &future{done: make(chan struct{})}
}

// resolve must be called at most once, under the router lock.
func (f *future) resolve(frame []byte, err error) {
	f.frame = frame
	f.err = err
	close(f.done)
}

func (f *future) wait(ctx context.Context) ([]byte, error) {
	select {
	case <-f.done:
		return f.frame, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
