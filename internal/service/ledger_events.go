package service

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/noah-isme/tutorhub-api/internal/models"
	"github.com/noah-isme/tutorhub-api/internal/observability"
)

const ledgerEventBufferSize = 16

// LedgerEvent announces a committed ledger write to the affected student.
type LedgerEvent struct {
	Kind            string                 `json:"kind"`
	TransactionKind models.TransactionKind `json:"transaction_kind"`
	TransactionID   uint                   `json:"transaction_id"`
	StudentID       uint                   `json:"student_id"`
	PeriodID        uint                   `json:"period_id"`
	Amount          int64                  `json:"amount"`
	OccurredAt      time.Time              `json:"occurred_at"`
}

// LedgerEventPublisher fans ledger events out after a write commits.
type LedgerEventPublisher interface {
	Publish(ctx context.Context, event LedgerEvent)
}

// LedgerEventService broadcasts ledger events to local stream subscribers and, when a NATS
// connection is configured, to the other API nodes.
type LedgerEventService interface {
	LedgerEventPublisher
	Subscribe(studentID uint) (<-chan LedgerEvent, func())
	Start(ctx context.Context)
}

type ledgerEventService struct {
	nats        *nats.Conn
	natsSubject string
	logger      zerolog.Logger
	broker      *ledgerBroker
	nodeID      string
}

type ledgerEnvelope struct {
	Source string      `json:"source"`
	Event  LedgerEvent `json:"event"`
}

type ledgerBroker struct {
	mu          sync.RWMutex
	subscribers map[uint]map[chan LedgerEvent]struct{}
}

// NewLedgerEventService constructs the ledger event fan-out.
func NewLedgerEventService(natsConn *nats.Conn, channelBase string, logger zerolog.Logger) LedgerEventService {
	subject := ""
	if channelBase != "" {
		subject = strings.ReplaceAll(channelBase, ":", ".") + ".ledger"
	}

	return &ledgerEventService{
		nats:        natsConn,
		natsSubject: subject,
		logger:      logger.With().Str("component", "ledger_events").Logger(),
		broker: &ledgerBroker{
			subscribers: make(map[uint]map[chan LedgerEvent]struct{}),
		},
		nodeID: uuid.NewString(),
	}
}

func (s *ledgerEventService) Start(ctx context.Context) {
	if s.nats != nil && s.natsSubject != "" {
		s.consumeNATS(ctx)
	}
}

func (s *ledgerEventService) Publish(ctx context.Context, event LedgerEvent) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	s.broker.broadcast(event)

	if s.nats == nil || s.natsSubject == "" {
		return
	}

	payload, err := json.Marshal(ledgerEnvelope{Source: s.nodeID, Event: event})
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to encode ledger event")
		return
	}
	if err := s.nats.Publish(s.natsSubject, payload); err != nil {
		s.logger.Warn().Err(err).Str("subject", s.natsSubject).Msg("failed to publish ledger event")
	}
}

func (s *ledgerEventService) Subscribe(studentID uint) (<-chan LedgerEvent, func()) {
	channel := make(chan LedgerEvent, ledgerEventBufferSize)

	s.broker.subscribe(studentID, channel)
	observability.LedgerStreamClients().Inc()

	var once sync.Once
	cleanup := func() {
		once.Do(func() {
			s.broker.unsubscribe(studentID, channel)
			observability.LedgerStreamClients().Dec()
		})
	}

	return channel, cleanup
}

func (s *ledgerEventService) consumeNATS(ctx context.Context) {
	sub, err := s.nats.Subscribe(s.natsSubject, func(msg *nats.Msg) {
		s.handleEvent(msg.Data)
	})
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to subscribe to nats ledger subject")
		return
	}

	go func() {
		<-ctx.Done()
		if err := sub.Drain(); err != nil {
			s.logger.Warn().Err(err).Msg("failed to drain ledger nats subscription")
		}
	}()
}

func (s *ledgerEventService) handleEvent(payload []byte) {
	var envelope ledgerEnvelope
	if err := json.Unmarshal(payload, &envelope); err != nil {
		s.logger.Warn().Err(err).Msg("invalid ledger event payload")
		return
	}

	if envelope.Source == s.nodeID {
		return
	}

	s.broker.broadcast(envelope.Event)
}

func (b *ledgerBroker) subscribe(studentID uint, ch chan LedgerEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.subscribers[studentID]; !exists {
		b.subscribers[studentID] = make(map[chan LedgerEvent]struct{})
	}
	b.subscribers[studentID][ch] = struct{}{}
}

func (b *ledgerBroker) unsubscribe(studentID uint, ch chan LedgerEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if subscribers, ok := b.subscribers[studentID]; ok {
		delete(subscribers, ch)
		close(ch)
		if len(subscribers) == 0 {
			delete(b.subscribers, studentID)
		}
	}
}

func (b *ledgerBroker) broadcast(event LedgerEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for ch := range b.subscribers[event.StudentID] {
		select {
		case ch <- event:
		default:
		}
	}
}
