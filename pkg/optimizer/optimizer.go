// Package optimizer adapts the canonical optimization request/response model
// to concrete optimization servers. The EOS backend passes the canonical
// schema through; the EVopt backend translates to and from the EVopt
// charge-schedule schema.
package optimizer

import (
	"context"
	"sync"

	"github.com/eosconnect/eosconnect/pkg/types"
)

// Backend is a single optimization server. Optimize returns the response,
// the trailing average runtime of the last successful calls in seconds, and
// an error when the run produced no usable response. On failure the
// response's Error field is set so the persisted artifact carries it.
type Backend interface {
	Name() string
	Optimize(ctx context.Context, req types.OptimizeRequest) (types.OptimizeResponse, float64, error)
}

const runtimeRingSize = 5

// runtimeRing tracks the last few successful optimization runtimes. The
// first measurement seeds every slot so the average is meaningful from the
// start; failed runs are never recorded.
type runtimeRing struct {
	mu       sync.Mutex
	runtimes [runtimeRingSize]float64
	next     int
}

func (r *runtimeRing) Record(seconds float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	empty := true
	for _, v := range r.runtimes {
		if v != 0 {
			empty = false
			break
		}
	}
	if empty {
		for i := range r.runtimes {
			r.runtimes[i] = seconds
		}
		return
	}
	r.runtimes[r.next] = seconds
	r.next = (r.next + 1) % runtimeRingSize
}

func (r *runtimeRing) Average() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	var sum float64
	for _, v := range r.runtimes {
		sum += v
	}
	return sum / runtimeRingSize
}
