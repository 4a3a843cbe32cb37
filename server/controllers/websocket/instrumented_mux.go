package websocket

import (
	"net/http"
	"sync/atomic"

	"github.com/uber-go/tally/v4"
)

// InstrumentedMultiplexor tracks the number of open websocket connections.
type InstrumentedMultiplexor struct {
	Multiplexor

	numWsConnections int64
	NumWsConnections tally.Gauge
}

func NewInstrumentedMultiplexor(multiplexor Multiplexor, statsScope tally.Scope) Multiplexor {
	return &InstrumentedMultiplexor{
		Multiplexor:      multiplexor,
		NumWsConnections: statsScope.SubScope("websocket").Gauge("connections"),
	}
}

func (i *InstrumentedMultiplexor) Handle(w http.ResponseWriter, r *http.Request) error {
	i.NumWsConnections.Update(float64(atomic.AddInt64(&i.numWsConnections, 1)))
	defer func() {
		i.NumWsConnections.Update(float64(atomic.AddInt64(&i.numWsConnections, -1)))
	}()

	return i.Multiplexor.Handle(w, r)
}
