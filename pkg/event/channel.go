package event

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"advoid/pkg/logging"
)

// DropCounter counts events discarded because a queue was full.
// prometheus.Counter satisfies it; the interface avoids coupling this
// package to the telemetry wiring.
type DropCounter interface {
	Inc()
}

// Options configure a channel sink.
type Options struct {
	BatchSize int
	Interval  time.Duration
	// QueueSize bounds each event channel; zero derives it from BatchSize.
	QueueSize int
	Logger    *logging.Logger
	Dropped   DropCounter
}

func (o *Options) defaults() {
	if o.BatchSize <= 0 {
		o.BatchSize = 1000
	}
	if o.Interval <= 0 {
		o.Interval = time.Second
	}
	if o.QueueSize <= 0 {
		o.QueueSize = 16 * o.BatchSize
	}
	if o.Logger == nil {
		o.Logger = logging.Global()
	}
}

// channelSink fans events out to two workers, one per event kind, over
// bounded channels. Enqueue never blocks: when a queue is full the newest
// event is dropped and counted.
type channelSink struct {
	requests  chan Request
	responses chan Response
	uploader  Uploader
	logger    *logging.Logger
	dropped   DropCounter
	nDropped  atomic.Uint64
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// newChannelSink starts the two batch workers over the uploader. Workers
// exit when Close drains the channels; a panicked worker is logged and
// restarted.
func newChannelSink(up Uploader, opts Options) *channelSink {
	opts.defaults()

	s := &channelSink{
		requests:  make(chan Request, opts.QueueSize),
		responses: make(chan Response, opts.QueueSize),
		uploader:  up,
		logger:    opts.Logger,
		dropped:   opts.Dropped,
	}

	s.wg.Add(2)
	go s.loop(kindRequest, func() {
		runWorker(s.requests, kindRequest, up, opts.BatchSize, opts.Interval, s.logger)
	})
	go s.loop(kindResponse, func() {
		runWorker(s.responses, kindResponse, up, opts.BatchSize, opts.Interval, s.logger)
	})

	return s
}

func (s *channelSink) loop(kind string, run func()) {
	defer s.wg.Done()
	for !runGuarded(kind, s.logger, run) {
	}
}

func (s *channelSink) Request(client net.Addr, name string, qclass, qtype uint16) ID {
	id := NewID()
	ev := Request{
		ID:     id,
		Time:   time.Now().UTC(),
		Client: addrString(client),
		Name:   name,
		Class:  qclass,
		Type:   qtype,
	}

	select {
	case s.requests <- ev:
	default:
		s.drop(kindRequest)
	}
	return id
}

func (s *channelSink) Response(requestID ID, outcome Outcome, rcode int, answers int) {
	ev := Response{
		ID:        NewID(),
		RequestID: requestID,
		Time:      time.Now().UTC(),
		Outcome:   outcome,
		Rcode:     uint8(rcode),
		Answers:   uint16(answers),
	}

	select {
	case s.responses <- ev:
	default:
		s.drop(kindResponse)
	}
}

func (s *channelSink) drop(kind string) {
	if s.dropped != nil {
		s.dropped.Inc()
	}
	s.logger.Warn("Event queue full, dropping event",
		"kind", kind,
		"dropped", s.nDropped.Add(1))
}

// Close stops accepting events, lets the workers drain and flush their
// queues, and closes the uploader if it holds resources. It returns early
// with the context's error if draining outlasts the deadline.
func (s *channelSink) Close(ctx context.Context) error {
	s.closeOnce.Do(func() {
		close(s.requests)
		close(s.responses)
	})

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	if c, ok := s.uploader.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}

func addrString(a net.Addr) string {
	if a == nil {
		return "unknown"
	}
	return a.String()
}
