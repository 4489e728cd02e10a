package trampoline

import (
	"sync"

	"github.com/lightningnetwork/lnd/clock"
	"github.com/lightningnetwork/lnd/lntypes"
)

// Config bundles the node-level dependencies a Manager needs to spawn new
// RelayInstances: the node's own fee policy, the external collaborators
// every instance shares, and the factories used to construct the
// per-instance Aggregator and PaymentEngine handles. Using factories here
// (rather than handing Manager a single shared PaymentEngine/Aggregator)
// lets each relay instance get its own payment engine and aggregator
// without the Manager needing to know whether it's live or a test double.
type Config struct {
	FeePolicy          NodeFeePolicy
	MaxPaymentAttempts uint32

	Sender  PendingRelaySender
	Bus     EventBus
	Metrics MetricsSink
	Clock   clock.Clock

	CurrentBlockHeight func() uint32

	NewPaymentSecret func() ([32]byte, error)

	AggregatorFactory AggregatorFactory

	// NewPaymentEngine constructs the PaymentEngine used by a single
	// relay instance. Called once per instance, when NewRelay creates
	// the instance.
	NewPaymentEngine func() PaymentEngine
}

// Manager owns the set of live RelayInstances for a node, keyed by their
// assigned relay ID. One instance is created per incoming trampoline
// payment; Manager is purely node-wiring glue and holds no
// payment-processing logic of its own.
type Manager struct {
	cfg Config

	mu        sync.Mutex
	instances map[uint64]*RelayInstance
	nextID    uint64
}

// NewManager returns a Manager ready to spawn RelayInstances using cfg.
func NewManager(cfg Config) *Manager {
	return &Manager{
		cfg:       cfg,
		instances: make(map[uint64]*RelayInstance),
	}
}

// NewRelay creates, starts and registers a new RelayInstance for the given
// payment hash, returning it to the caller so the first IncomingPacket can
// be delivered. The caller is responsible for eventually calling Remove
// once the instance reaches its terminal state.
func (m *Manager) NewRelay(paymentHash lntypes.Hash) *RelayInstance {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	id := m.nextID

	dispatcher := NewDispatcher(
		m.cfg.NewPaymentEngine(), m.cfg.MaxPaymentAttempts,
		m.cfg.NewPaymentSecret,
	)

	instance := NewRelayInstance(
		id, paymentHash, m.cfg.FeePolicy, m.cfg.Sender, m.cfg.Bus,
		m.cfg.Metrics, m.cfg.Clock, m.cfg.CurrentBlockHeight,
		dispatcher, m.cfg.AggregatorFactory,
	)

	m.instances[id] = instance
	instance.Start()

	return instance
}

// Remove stops and forgets the relay instance with the given ID. Safe to
// call more than once; unknown IDs are a no-op.
func (m *Manager) Remove(id uint64) {
	m.mu.Lock()
	instance, ok := m.instances[id]
	if ok {
		delete(m.instances, id)
	}
	m.mu.Unlock()

	if ok {
		instance.Stop()
	}
}

// Lookup returns the live relay instance for the given ID, if any.
func (m *Manager) Lookup(id uint64) (*RelayInstance, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	instance, ok := m.instances[id]

	return instance, ok
}
