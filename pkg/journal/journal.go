package journal

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dd0wney/cluso-kvclient/pkg/cluster"
	"github.com/dd0wney/cluso-kvclient/pkg/logging"
	"github.com/dd0wney/cluso-kvclient/pkg/metrics"
)

// DefaultBufferSize is the event ring capacity used by New when the
// caller passes a non-positive size.
const DefaultBufferSize = 1024

// Sink receives every recorded event, typically for durable storage.
// Writes happen on a background goroutine so a slow sink never blocks
// the refresh or command paths.
type Sink interface {
	Write(ctx context.Context, event *Event) error
}

// Journal keeps recent topology and routing events in a circular buffer.
//
// It implements cluster.EventSink, so it can be handed straight to a
// topology provider, and it satisfies the executor's observer contract
// for redirect and node-error notifications.
type Journal struct {
	events     []*Event
	bufferSize int
	index      int
	count      int
	mu         sync.RWMutex

	sink    Sink
	forward chan *Event
	stopCh  chan struct{}
	wg      sync.WaitGroup

	logger  logging.Logger
	metrics *metrics.Registry
}

// New creates a journal holding up to bufferSize events. Older events
// are overwritten once the ring is full.
func New(bufferSize int) *Journal {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	return &Journal{
		events:     make([]*Event, bufferSize),
		bufferSize: bufferSize,
		logger:     logging.DefaultLogger().With(logging.Component("journal")),
		metrics:    metrics.DefaultRegistry(),
	}
}

// SetLogger replaces the journal's logger. Call before recording.
func (j *Journal) SetLogger(logger logging.Logger) {
	if logger != nil {
		j.logger = logger
	}
}

// SetSink attaches a durable sink and starts the forwarding worker.
// Call at most once, before the journal starts receiving events.
func (j *Journal) SetSink(sink Sink) {
	if sink == nil {
		return
	}
	j.sink = sink
	j.forward = make(chan *Event, j.bufferSize)
	j.stopCh = make(chan struct{})
	j.wg.Add(1)
	go j.forwardWorker()
}

// Record stores an event in the ring, filling in ID and timestamp when
// unset, and hands it to the sink worker if one is attached.
func (j *Journal) Record(event *Event) {
	if event == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if event.ID == "" {
		event.ID = uuid.New().String()
	}

	j.mu.Lock()
	j.events[j.index] = event
	j.index = (j.index + 1) % j.bufferSize
	if j.count < j.bufferSize {
		j.count++
	}
	j.mu.Unlock()

	j.metrics.RecordJournalEvent(string(event.Type))

	if j.forward != nil {
		select {
		case j.forward <- event:
		default:
			// Sink is behind; losing a diagnostic event beats blocking
			// the refresh or command path.
			j.metrics.JournalDroppedTotal.Inc()
		}
	}
}

// Events retrieves journal events, oldest first, with optional filtering
func (j *Journal) Events(filter *Filter) []*Event {
	j.mu.RLock()
	defer j.mu.RUnlock()

	result := make([]*Event, 0, j.count)
	for i := 0; i < j.count; i++ {
		idx := (j.index - j.count + i + j.bufferSize) % j.bufferSize
		event := j.events[idx]
		if event == nil || !filter.matches(event) {
			continue
		}
		result = append(result, event)
	}
	return result
}

// Recent returns the n most recent events, newest first
func (j *Journal) Recent(n int) []*Event {
	j.mu.RLock()
	defer j.mu.RUnlock()

	if n > j.count {
		n = j.count
	}
	result := make([]*Event, 0, n)
	for i := 0; i < n; i++ {
		idx := (j.index - 1 - i + j.bufferSize) % j.bufferSize
		if j.events[idx] != nil {
			result = append(result, j.events[idx])
		}
	}
	return result
}

// Count returns the number of events currently stored
func (j *Journal) Count() int {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.count
}

// Clear removes all events from the ring
func (j *Journal) Clear() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.events = make([]*Event, j.bufferSize)
	j.index = 0
	j.count = 0
}

// Close stops the sink worker after draining queued events. The ring
// itself stays readable.
func (j *Journal) Close() {
	if j.forward == nil {
		return
	}
	close(j.stopCh)
	j.wg.Wait()
}

func (j *Journal) forwardWorker() {
	defer j.wg.Done()
	for {
		select {
		case event := <-j.forward:
			j.writeSink(event)
		case <-j.stopCh:
			for {
				select {
				case event := <-j.forward:
					j.writeSink(event)
				default:
					return
				}
			}
		}
	}
}

func (j *Journal) writeSink(event *Event) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := j.sink.Write(ctx, event); err != nil {
		j.metrics.JournalSinkErrorsTotal.Inc()
		j.logger.Warn("journal sink write failed",
			logging.String("event_id", event.ID),
			logging.String("type", string(event.Type)),
			logging.Error(err))
	}
}

// TopologySwapped implements cluster.EventSink
func (j *Journal) TopologySwapped(prev, next *cluster.Snapshot) {
	event := &Event{
		Type:    EventTopologySwap,
		Node:    next.Source.String(),
		Version: next.Version,
		Nodes:   next.Topology.Size(),
	}
	if prev != nil {
		event.Detail = "replaced version " + strconv.FormatUint(prev.Version, 10)
	}
	j.Record(event)
}

// TopologyRefreshFailed implements cluster.EventSink
func (j *Journal) TopologyRefreshFailed(err error) {
	j.Record(&Event{
		Type:   EventRefreshFailure,
		Detail: err.Error(),
	})
}

// CommandRedirected records a moved, ask, or unavailable redirect hop
func (j *Journal) CommandRedirected(node cluster.NodeAddress, kind string) {
	j.Record(&Event{
		Type:   EventRedirect,
		Node:   node.String(),
		Detail: kind,
	})
}

// NodeFailed records a command failure attributed to one node
func (j *Journal) NodeFailed(node cluster.NodeAddress, err error) {
	j.Record(&Event{
		Type:   EventNodeError,
		Node:   node.String(),
		Detail: err.Error(),
	})
}
