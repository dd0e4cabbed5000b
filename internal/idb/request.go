package idb

import "sync"

// Request is the pending result of one object-store operation. It
// completes exactly once, with a result or an error, on the owning
// transaction's worker.
type Request struct {
	exec func(t *Transaction) (any, error)

	mu       sync.Mutex
	done     chan struct{}
	finished bool
	result   any
	err      error
	handlers []func(result any, err error)
}

func newRequest(exec func(t *Transaction) (any, error)) *Request {
	return &Request{exec: exec, done: make(chan struct{})}
}

// Done is closed once the request has completed.
func (r *Request) Done() <-chan struct{} {
	return r.done
}

// Result waits for the request to complete and returns its outcome.
func (r *Request) Result() (any, error) {
	<-r.done
	return r.result, r.err
}

// OnComplete registers fn to run when the request completes. If it has
// already completed fn runs immediately on the calling goroutine;
// otherwise it runs on the transaction's worker before the transaction
// reaches its terminal signal.
func (r *Request) OnComplete(fn func(result any, err error)) {
	r.mu.Lock()
	if !r.finished {
		r.handlers = append(r.handlers, fn)
		r.mu.Unlock()
		return
	}
	result, err := r.result, r.err
	r.mu.Unlock()
	fn(result, err)
}

func (r *Request) complete(result any, err error) {
	r.mu.Lock()
	if r.finished {
		r.mu.Unlock()
		return
	}
	r.finished = true
	r.result, r.err = result, err
	handlers := r.handlers
	r.handlers = nil
	close(r.done)
	r.mu.Unlock()

	for _, fn := range handlers {
		fn(result, err)
	}
}
