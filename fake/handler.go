// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package fake

import (
	"bytes"
	"sync"
)

// Recorder is an api.Handler and api.Finalizer that records every call.
// Consume, when set, decides how many bytes each OnRead consumes.
type Recorder struct {
	Consume func(data []byte) int

	mu        sync.Mutex
	reads     [][]byte
	data      bytes.Buffer
	errs      []error
	finalized int
}

// NewRecorder returns a Recorder consuming all input.
func NewRecorder() *Recorder { return &Recorder{} }

// OnRead records a copy of data.
func (r *Recorder) OnRead(data []byte) int {
	n := len(data)
	if r.Consume != nil {
		n = r.Consume(data)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reads = append(r.reads, bytes.Clone(data))
	if n > 0 && n <= len(data) {
		r.data.Write(data[:n])
	}
	return n
}

// OnError records err.
func (r *Recorder) OnError(err error) {
	r.mu.Lock()
	r.errs = append(r.errs, err)
	r.mu.Unlock()
}

// OnFinalize counts finalization.
func (r *Recorder) OnFinalize() {
	r.mu.Lock()
	r.finalized++
	r.mu.Unlock()
}

// Reads returns the chunks passed to OnRead.
func (r *Recorder) Reads() [][]byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([][]byte, len(r.reads))
	copy(out, r.reads)
	return out
}

// Data returns the consumed bytes in order.
func (r *Recorder) Data() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.data.String()
}

// Errors returns the errors passed to OnError.
func (r *Recorder) Errors() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]error, len(r.errs))
	copy(out, r.errs)
	return out
}

// LastError returns the most recent error, or nil.
func (r *Recorder) LastError() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.errs) == 0 {
		return nil
	}
	return r.errs[len(r.errs)-1]
}

// Finalized returns how often OnFinalize ran.
func (r *Recorder) Finalized() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.finalized
}
