package keyer

import (
	"math"

	"github.com/ddirect/container/fifo"
	"golang.org/x/exp/constraints"
)

// Number is any sample type the window can hold
type Number interface {
	constraints.Integer | constraints.Float
}

// Window keeps the most recent samples and their running mean and standard deviation
type Window[T Number] struct {
	samples fifo.Fifo[T]
	size    int
	sum     float64
	sum2    float64
}

// NewWindow creates a window holding at most size samples
func NewWindow[T Number](size int) *Window[T] {
	if size < 1 {
		size = 1
	}
	return &Window[T]{size: size}
}

// Add appends x, evicting the oldest sample when full
func (w *Window[T]) Add(x T) {
	if w.samples.Len() >= w.size {
		if old, ok := w.samples.Dequeue(); ok {
			v := float64(old)
			w.sum -= v
			w.sum2 -= v * v
		}
	}

	v := float64(x)
	w.sum += v
	w.sum2 += v * v
	w.samples.Enqueue(x)
}

// Len returns the number of samples held
func (w *Window[T]) Len() int {
	return w.samples.Len()
}

// Mean returns the mean of the held samples, 0 when empty
func (w *Window[T]) Mean() float64 {
	n := w.samples.Len()
	if n == 0 {
		return 0
	}
	return w.sum / float64(n)
}

// StdDev returns the sample standard deviation, 0 with fewer than two samples
func (w *Window[T]) StdDev() float64 {
	n := float64(w.samples.Len())
	if n < 2 {
		return 0
	}
	variance := (w.sum2 - w.sum*w.sum/n) / (n - 1)
	if variance < 0 {
		// rounding on constant input
		return 0
	}
	return math.Sqrt(variance)
}
