package ingest

import (
	"context"
	"errors"
	"io"
	"log"
	"sync"
	"sync/atomic"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/suPer8Hu/chat-batch-worker/internal/chat"
)

type State int32

const (
	StateInitializing State = iota
	StateRunning
	StateDraining
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// ErrDeliveriesClosed is reported on Err when the broker closes the subscription under a running worker.
var ErrDeliveriesClosed = errors.New("delivery channel closed")

// Source is a queue subscription in manual-ack mode.
type Source interface {
	Deliveries() <-chan amqp.Delivery
	// Cancel stops new deliveries without closing the channel that settles buffered ones.
	Cancel() error
}

// Worker buffers deliveries from a Source and commits them in batches on a fixed interval.
type Worker struct {
	source   Source
	proc     *Processor
	buf      *Buffer
	interval time.Duration
	closers  []io.Closer

	state    atomic.Int32
	running  atomic.Bool
	stop     chan struct{}
	errs     chan error
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewWorker builds a worker in the Initializing state. closers are released, in order,
// once the final flush on shutdown is done.
func NewWorker(source Source, proc *Processor, interval time.Duration, closers ...io.Closer) *Worker {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Worker{
		source:   source,
		proc:     proc,
		buf:      NewBuffer(),
		interval: interval,
		closers:  closers,
		stop:     make(chan struct{}),
		errs:     make(chan error, 1),
	}
}

func (w *Worker) State() State {
	return State(w.state.Load())
}

// Buffered returns how many deliveries wait for the next flush.
func (w *Worker) Buffered() int {
	return w.buf.Len()
}

// Err reports a failure that stops ingestion, such as the broker closing the subscription.
func (w *Worker) Err() <-chan error {
	return w.errs
}

// Start launches the consumer loop and the flush scheduler and returns immediately.
// ctx is used for the store and counter calls made by scheduled flushes.
func (w *Worker) Start(ctx context.Context) {
	if !w.state.CompareAndSwap(int32(StateInitializing), int32(StateRunning)) {
		return
	}
	w.running.Store(true)

	w.wg.Add(2)
	go w.consume()
	go w.flushLoop(ctx)

	log.Printf("worker running, flush_interval=%s", w.interval)
}

// Shutdown stops consuming, flushes whatever is still buffered and releases the closers.
// It waits for an in-flight batch to finish; it does not interrupt it.
func (w *Worker) Shutdown(ctx context.Context) {
	w.stopOnce.Do(func() {
		prev := State(w.state.Swap(int32(StateDraining)))
		w.running.Store(false)
		log.Printf("worker draining, buffered=%d", w.buf.Len())

		if prev == StateRunning {
			if err := w.source.Cancel(); err != nil {
				log.Printf("consumer cancel: %v", err)
			}
		}
		close(w.stop)
		w.wg.Wait()

		n := w.Flush(ctx)

		for _, c := range w.closers {
			if err := c.Close(); err != nil {
				log.Printf("close: %v", err)
			}
		}

		w.state.Store(int32(StateStopped))
		log.Printf("worker stopped, final_flush=%d", n)
	})
}

// Flush drains the buffer and processes the batch. It returns the batch size; an empty
// buffer touches neither the store, the counter nor the broker.
func (w *Worker) Flush(ctx context.Context) int {
	batch := w.buf.Drain()
	bufferedDeliveries.Set(0)
	if len(batch) == 0 {
		return 0
	}
	log.Printf("flushing batch of %d messages", len(batch))
	_ = w.proc.Process(ctx, batch)
	return len(batch)
}

func (w *Worker) consume() {
	defer w.wg.Done()

	deliveries := w.source.Deliveries()
	for {
		select {
		case <-w.stop:
			return
		case d, ok := <-deliveries:
			if !ok {
				if w.running.Load() {
					log.Printf("delivery channel closed")
					w.fail(ErrDeliveriesClosed)
				}
				return
			}
			w.handleDelivery(d)
		}
	}
}

func (w *Worker) handleDelivery(d amqp.Delivery) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("unexpected error handling delivery tag=%d: %v", d.DeliveryTag, r)
			w.drop(d)
		}
	}()

	m, err := chat.DecodeIncoming(d.Body)
	if err != nil {
		log.Printf("bad message tag=%d body=%q err=%v", d.DeliveryTag, truncate(d.Body, 256), err)
		w.drop(d)
		return
	}

	n := w.buf.Append(BufferedDelivery{Payload: m, Delivery: d})
	bufferedDeliveries.Set(float64(n))
}

// drop rejects a delivery for good; redelivering it would fail the same way.
func (w *Worker) drop(d amqp.Delivery) {
	if err := d.Reject(false); err != nil {
		log.Printf("reject failed tag=%d err=%v", d.DeliveryTag, err)
		deliveriesTotal.WithLabelValues(outcomeSettleFailed).Inc()
		return
	}
	deliveriesTotal.WithLabelValues(outcomeDropped).Inc()
}

func (w *Worker) flushLoop(ctx context.Context) {
	defer w.wg.Done()

	t := time.NewTicker(w.interval)
	defer t.Stop()

	for {
		select {
		case <-w.stop:
			return
		case <-t.C:
			if w.running.Load() {
				w.Flush(ctx)
			}
		}
	}
}

func (w *Worker) fail(err error) {
	select {
	case w.errs <- err:
	default:
	}
}

func truncate(b []byte, n int) []byte {
	if len(b) <= n {
		return b
	}
	return b[:n]
}
