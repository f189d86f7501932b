// Package dispatch routes decoded server frames to in-flight requests.
//
// The game server tags frames with category sequence numbers, not request
// ids, so frames cannot be matched to requests directly. Correlation is by
// time instead: every frame that arrives while a collector is open belongs to
// that collector. Callers open a collector just before sending a command and
// harvest whatever arrived once the response has gone quiet.
package dispatch

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/gmbridge-project/gmbridge/internal/protocol"
	"github.com/gmbridge-project/gmbridge/internal/util"
)

// ArrivalSlack widens each collector's window backwards. A frame that hit the
// socket just before the collector was registered still answers the request
// that triggered it, because the read loop and the registering goroutine race.
const ArrivalSlack = 100 * time.Millisecond

type collector struct {
	createdAt time.Time
	frames    []protocol.Frame
	first     chan struct{} // closed when the first frame lands
	signalled bool
}

type seqWaiter struct {
	seqNo int
	ch    chan protocol.Frame
}

// Dispatcher fans incoming frames out to open collectors and to one-shot
// sequence-number waiters. All methods are safe for concurrent use.
type Dispatcher struct {
	mu         sync.Mutex
	collectors map[string]*collector
	waiters    map[string]seqWaiter
	logger     zerolog.Logger
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{
		collectors: make(map[string]*collector),
		waiters:    make(map[string]seqWaiter),
		logger:     util.ComponentLogger("dispatch"),
	}
}

// RegisterCollector opens a collection window under the given id and returns
// a channel that is closed when the first frame arrives. The id must be
// released with TakeFrames or CancelCollector.
func (d *Dispatcher) RegisterCollector(id string) <-chan struct{} {
	c := &collector{
		createdAt: time.Now(),
		first:     make(chan struct{}),
	}
	d.mu.Lock()
	d.collectors[id] = c
	d.mu.Unlock()
	return c.first
}

// TakeFrames closes the collector and returns everything it gathered.
func (d *Dispatcher) TakeFrames(id string) []protocol.Frame {
	d.mu.Lock()
	defer d.mu.Unlock()
	c, ok := d.collectors[id]
	if !ok {
		return nil
	}
	delete(d.collectors, id)
	return c.frames
}

// CancelCollector discards the collector and anything it gathered.
func (d *Dispatcher) CancelCollector(id string) {
	d.mu.Lock()
	delete(d.collectors, id)
	d.mu.Unlock()
}

// RegisterSeqWaiter returns a channel that receives the next frame carrying
// the given sequence number. Only the login handshake uses this path; its ok
// and failure frames are the two sequence numbers with fixed meaning.
func (d *Dispatcher) RegisterSeqWaiter(id string, seqNo int) <-chan protocol.Frame {
	ch := make(chan protocol.Frame, 1)
	d.mu.Lock()
	d.waiters[id] = seqWaiter{seqNo: seqNo, ch: ch}
	d.mu.Unlock()
	return ch
}

// CancelSeqWaiter removes the waiter registered under id.
func (d *Dispatcher) CancelSeqWaiter(id string) {
	d.mu.Lock()
	delete(d.waiters, id)
	d.mu.Unlock()
}

// Dispatch offers a frame to every open collector and every matching waiter.
// Frames that match nothing are dropped; the server pushes unsolicited
// notices and those have no consumer here.
func (d *Dispatcher) Dispatch(frame protocol.Frame) {
	if frame.ArrivedAt.IsZero() {
		frame.ArrivedAt = time.Now()
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	delivered := 0
	for _, c := range d.collectors {
		if frame.ArrivedAt.Before(c.createdAt.Add(-ArrivalSlack)) {
			continue
		}
		c.frames = append(c.frames, frame)
		if !c.signalled {
			c.signalled = true
			close(c.first)
		}
		delivered++
	}
	for id, w := range d.waiters {
		if w.seqNo != frame.SeqNo {
			continue
		}
		w.ch <- frame
		delete(d.waiters, id)
		delivered++
	}

	if delivered == 0 {
		d.logger.Debug().Int("seq_no", frame.SeqNo).Msg("unsolicited frame dropped")
	}
}

// OpenCollectors reports how many collection windows are currently open.
func (d *Dispatcher) OpenCollectors() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.collectors)
}
