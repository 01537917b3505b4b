// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package signal

import (
	"runtime"
	"sync"

	"code.hybscloud.com/spin"

	"github.com/rocr-go/aqlqueue/internal/taskqueue"
)

// Outcome is what a HandlerFunc asks the dispatcher to do once it returns.
type Outcome struct {
	// Rearm requests the handler be registered again with a (possibly new)
	// wait condition, instead of unarming. Spec.md §4.4 step 8.
	Rearm bool
	Cond  Condition
	Value uint64
}

// Keep is the outcome meaning "stay armed, waiting on cond against value".
func Keep(cond Condition, value uint64) Outcome {
	return Outcome{Rearm: true, Cond: cond, Value: value}
}

// Unarm is the outcome meaning "do not re-register".
func Unarm() Outcome { return Outcome{Rearm: false} }

// HandlerFunc is an async signal handler. It receives the signal value
// observed at wakeup and returns what the dispatcher should do next.
type HandlerFunc func(value uint64) Outcome

type wakeup struct {
	sig    *Signal
	cond   Condition
	target uint64
	value  uint64
	fn     HandlerFunc
}

// pool is the process-wide dispatcher worker pool. A completed signal wait
// enqueues its callback here instead of running it on the waiter goroutine,
// matching spec.md §5's "the signal subsystem dispatches handler callbacks
// on its own worker thread(s)" — plural, decoupled from however many signals
// happen to be armed.
var pool *dispatchPool

func init() {
	pool = newDispatchPool(dispatchWorkers())
}

func dispatchWorkers() int {
	n := runtime.GOMAXPROCS(0)
	if n < 2 {
		return 2
	}
	return n
}

type dispatchPool struct {
	q *taskqueue.Queue[wakeup]
}

func newDispatchPool(workers int) *dispatchPool {
	p := &dispatchPool{q: taskqueue.New[wakeup](64)}
	for i := 0; i < workers; i++ {
		go p.worker()
	}
	return p
}

func (p *dispatchPool) worker() {
	sw := spin.Wait{}
	for {
		w, err := p.q.Dequeue()
		if err != nil {
			sw.Once()
			continue
		}
		sw = spin.Wait{}
		run(w)
	}
}

func (p *dispatchPool) submit(w wakeup) {
	sw := spin.Wait{}
	for p.q.Enqueue(&w) != nil {
		sw.Once()
	}
}

var waiterWG sync.WaitGroup

// SetAsyncSignalHandler registers a single-shot wait on sig: once cond(value,
// target) holds, a dedicated waiter goroutine hands the wakeup to the
// dispatcher worker pool, which runs fn. Depending on fn's Outcome the
// handler either re-registers with a new condition or stops watching the
// signal.
func SetAsyncSignalHandler(sig *Signal, cond Condition, target uint64, fn HandlerFunc) {
	waiterWG.Add(1)
	go func() {
		defer waiterWG.Done()
		v := sig.WaitRelaxed(cond, target)
		pool.submit(wakeup{sig: sig, cond: cond, target: target, value: v, fn: fn})
	}()
}

func run(w wakeup) {
	out := w.fn(w.value)
	if out.Rearm {
		SetAsyncSignalHandler(w.sig, out.Cond, out.Value, w.fn)
	}
}
