package exchange

import (
	"context"
	"net"
	"sync"
	"sync/atomic"

	"github.com/backkem/coap/pkg/message"
	"github.com/backkem/coap/pkg/messaging"
	"github.com/backkem/coap/pkg/resource"
	"github.com/backkem/coap/pkg/stats"
	"github.com/pion/logging"
	"golang.org/x/sync/semaphore"
)

// DefaultMaxWorkers bounds concurrent delayed provider executions.
const DefaultMaxWorkers = 16

// ManagerConfig configures the exchange Manager.
type ManagerConfig struct {
	// Router finds the provider for a request path. Required.
	Router resource.Router

	// Params are the transmission parameters. Zero fields get RFC 7252
	// defaults.
	Params TransmissionParameters

	// Random jitters the initial ACK timeout. Defaults to math/rand.
	Random RandomSource

	// Stats receives the protocol counters. A private instance is used
	// when nil.
	Stats *stats.Statistics

	// IDs and Tokens generate message IDs and tokens for responses.
	IDs    *message.IDGenerator
	Tokens *message.TokenSource

	// MaxWorkers bounds concurrent delayed provider executions.
	MaxWorkers int64

	// AcceptDestination, if set, limits the manager to messages that
	// arrived on matching local endpoints. Other messages are left to
	// the next handler.
	AcceptDestination func(net.Addr) bool

	// LoggerFactory for creating loggers. If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// Manager answers requests arriving on a Messaging instance.
// Register it with messaging.Messaging.Register.
//
// It owns the pending-ACK table, the duplicate-detection table and the
// set of live processors, so several managers can run side by side in one
// process.
type Manager struct {
	router resource.Router
	params TransmissionParameters
	random RandomSource
	stats  *stats.Statistics
	ids    *message.IDGenerator
	tokens *message.TokenSource
	accept func(net.Addr) bool
	log    logging.LeveledLogger

	acks  *AckTable
	dedup *DedupTable

	processors map[*Processor]struct{}
	mu         sync.Mutex

	workers *semaphore.Weighted
	wg      sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc
	closed atomic.Bool
}

// NewManager creates a manager.
func NewManager(config ManagerConfig) (*Manager, error) {
	if config.Router == nil {
		return nil, ErrNoRouter
	}
	params := config.Params.WithDefaults()
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if config.Random == nil {
		config.Random = DefaultRandomSource
	}
	if config.Stats == nil {
		config.Stats = stats.New()
	}
	if config.IDs == nil {
		config.IDs = message.NewIDGenerator(0)
	}
	if config.Tokens == nil {
		config.Tokens = message.NewTokenSource(0, params.TokenLength)
	}
	if config.MaxWorkers <= 0 {
		config.MaxWorkers = DefaultMaxWorkers
	}

	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		router:     config.Router,
		params:     params,
		random:     config.Random,
		stats:      config.Stats,
		ids:        config.IDs,
		tokens:     config.Tokens,
		accept:     config.AcceptDestination,
		acks:       NewAckTable(),
		dedup:      NewDedupTable(),
		processors: make(map[*Processor]struct{}),
		workers:    semaphore.NewWeighted(config.MaxWorkers),
		ctx:        ctx,
		cancel:     cancel,
	}
	if config.LoggerFactory != nil {
		m.log = config.LoggerFactory.NewLogger("coap-exchange")
	}
	return m, nil
}

// OnMessage implements messaging.Handler.
func (m *Manager) OnMessage(mctx *messaging.MessageContext) bool {
	if !m.admits(mctx) {
		return false
	}
	msg := mctx.Message
	key := newPeerKey(mctx.Source, msg.MessageID())

	switch {
	case msg.IsAck():
		if p := m.acks.Stop(key); p != nil {
			p.resume(StateAwaitingAck, StateAckReceived)
			return true
		}
		if msg.IsEmptyAck() && m.log != nil {
			m.log.Warnf("no response awaiting ACK %d from %v", msg.MessageID(), mctx.Source)
		}
		return false
	case msg.IsReset():
		if p := m.acks.Stop(key); p != nil {
			p.resume(StateAwaitingAck, StateResetReceived)
			return true
		}
	case msg.IsResponse():
		return false
	}

	p := m.register(mctx)
	p.run(StateMessageReceived)
	return true
}

// OnError implements messaging.Handler.
func (m *Manager) OnError(mctx *messaging.MessageContext) bool {
	if !m.admits(mctx) {
		return false
	}
	msg := mctx.Message
	if msg.IsAck() || msg.IsReset() {
		if m.log != nil {
			m.log.Debugf("ignoring bad %s from %v", msg.Type(), mctx.Source)
		}
		return false
	}

	p := m.register(mctx)
	if mctx.Error == message.ErrorOptionError {
		p.run(StateBadOptions)
	} else {
		p.run(StateError)
	}
	return true
}

func (m *Manager) admits(mctx *messaging.MessageContext) bool {
	if m.closed.Load() || mctx.Message == nil {
		return false
	}
	return m.accept == nil || m.accept(mctx.Destination)
}

func (m *Manager) register(mctx *messaging.MessageContext) *Processor {
	p := newProcessor(m, mctx)
	m.mu.Lock()
	m.processors[p] = struct{}{}
	m.mu.Unlock()
	return p
}

func (m *Manager) deregister(p *Processor) {
	m.mu.Lock()
	delete(m.processors, p)
	m.mu.Unlock()
}

func (m *Manager) builder() *message.Builder {
	return message.NewBuilder(m.ids, m.tokens)
}

// runWorker runs work on a pool goroutine. If the manager closes before a
// slot frees up, p is archived instead.
func (m *Manager) runWorker(p *Processor, work func(ctx context.Context)) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		if err := m.workers.Acquire(m.ctx, 1); err != nil {
			p.resume(StateDelayedProcessing, StateArchive)
			return
		}
		defer m.workers.Release(1)
		work(m.ctx)
	}()
}

// Outstanding returns the number of live processors.
func (m *Manager) Outstanding() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.processors)
}

// PendingAcks returns the number of responses awaiting an ACK.
func (m *Manager) PendingAcks() int { return m.acks.Count() }

// Remembered returns the number of message IDs kept for duplicate
// detection.
func (m *Manager) Remembered() int { return m.dedup.Count() }

// Stats returns the manager's counters.
func (m *Manager) Stats() *stats.Statistics { return m.stats }

// Params returns the effective transmission parameters.
func (m *Manager) Params() TransmissionParameters { return m.params }

// IDs returns the message ID generator.
func (m *Manager) IDs() *message.IDGenerator { return m.ids }

// Close stops all timers, cancels running providers and waits for the
// workers to finish.
func (m *Manager) Close() error {
	if !m.closed.CompareAndSwap(false, true) {
		return ErrManagerClosed
	}
	m.cancel()
	m.acks.Clear()
	m.dedup.Clear()
	m.wg.Wait()

	m.mu.Lock()
	m.processors = make(map[*Processor]struct{})
	m.mu.Unlock()
	return nil
}

var _ messaging.Handler = (*Manager)(nil)
