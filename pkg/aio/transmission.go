package aio

import (
	"time"
)

// Curve maps recent completion throughput to how long the engine loop is
// willing to sleep before rechecking: light load sleeps long, heavy load
// polls tight.
type Curve []struct {
	N       uint32
	Timeout time.Duration
}

var defaultCurve = Curve{
	{1, 15 * time.Second},
	{8, 500 * time.Microsecond},
	{16, 100 * time.Microsecond},
}

func NewCurveTransmission(curve Curve) *CurveTransmission {
	if len(curve) == 0 {
		curve = defaultCurve
	}
	return &CurveTransmission{curve: curve, size: len(curve)}
}

type CurveTransmission struct {
	curve Curve
	size  int
}

func (tran *CurveTransmission) Match(n uint32) (uint32, time.Duration) {
	if n == 0 || tran.size == 1 {
		return tran.curve[0].N, tran.curve[0].Timeout
	}
	for i := 1; i < tran.size; i++ {
		ln := tran.curve[i-1]
		rn := tran.curve[i]
		if ln.N <= n && n < rn.N {
			return ln.N, ln.Timeout
		}
	}
	tail := tran.curve[tran.size-1]
	return tail.N, tail.Timeout
}
