package orchestrator_test

import (
	"context"
	"sync"
	"time"

	"github.com/atelierops/fulfillment/internal/events"
	"github.com/atelierops/fulfillment/internal/models"
	"github.com/atelierops/fulfillment/pkg/shipping"
	"github.com/google/uuid"
)

// memStore is an in-memory Store enforcing one active label per order.
// Every method fails with the context error once ctx is done.
type memStore struct {
	mu     sync.Mutex
	labels []*models.Label
	orders map[string]*models.Order

	// beforeInsert runs before an insert takes the lock.
	beforeInsert func(l *models.Label)
	updateErr    error
	upserts      int
}

func newMemStore() *memStore {
	return &memStore{orders: make(map[string]*models.Order)}
}

func (s *memStore) putOrder(o *models.Order) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if o.OperationalStatus == "" {
		o.OperationalStatus = models.OrderStatusPending
	}
	if o.FulfillmentStatus == "" {
		o.FulfillmentStatus = models.FulfillmentStatusUnfulfilled
	}
	s.orders[o.OrgID+"/"+o.ID] = o
}

func (s *memStore) hasOrder(orgID, orderID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.orders[orgID+"/"+orderID]
	return ok
}

func (s *memStore) order(orgID, orderID string) models.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.orders[orgID+"/"+orderID]
}

func (s *memStore) allLabels() []models.Label {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Label, 0, len(s.labels))
	for _, l := range s.labels {
		out = append(out, *l)
	}
	return out
}

func (s *memStore) FindActiveLabel(ctx context.Context, orgID, orderID string) (*models.Label, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, l := range s.labels {
		if l.OrgID == orgID && l.OrderID == orderID && l.Status.IsActive() {
			cp := *l
			return &cp, nil
		}
	}
	return nil, shipping.ErrLabelNotFound
}

func (s *memStore) GetLabel(ctx context.Context, orgID, labelID string) (*models.Label, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, l := range s.labels {
		if l.OrgID == orgID && l.ID == labelID {
			cp := *l
			return &cp, nil
		}
	}
	return nil, shipping.ErrLabelNotFound
}

func (s *memStore) ListLabels(ctx context.Context, orgID, orderID string) ([]*models.Label, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Label
	for _, l := range s.labels {
		if l.OrgID == orgID && l.OrderID == orderID {
			cp := *l
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *memStore) InsertLabel(ctx context.Context, l *models.Label) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.beforeInsert != nil {
		hook := s.beforeInsert
		s.beforeInsert = nil
		hook(l)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if l.Status.IsActive() {
		for _, existing := range s.labels {
			if existing.OrgID == l.OrgID && existing.OrderID == l.OrderID && existing.Status.IsActive() {
				return shipping.ErrLabelConflict
			}
		}
	}
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	l.CreatedAt, l.UpdatedAt = now, now
	cp := *l
	s.labels = append(s.labels, &cp)
	return nil
}

func (s *memStore) MarkLabelCancelled(ctx context.Context, orgID, labelID string, entry models.CancellationEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, l := range s.labels {
		if l.OrgID == orgID && l.ID == labelID {
			at := entry.At
			l.Status = models.LabelStatusCancelled
			l.CancelledAt = &at
			l.CancellationTrail = append(l.CancellationTrail, entry)
			return nil
		}
	}
	return shipping.ErrLabelNotFound
}

func (s *memStore) AppendCancellationTrail(ctx context.Context, orgID, labelID string, entry models.CancellationEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, l := range s.labels {
		if l.OrgID == orgID && l.ID == labelID {
			l.CancellationTrail = append(l.CancellationTrail, entry)
			return nil
		}
	}
	return shipping.ErrLabelNotFound
}

func (s *memStore) GetOrder(ctx context.Context, orgID, orderID string) (*models.Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[orgID+"/"+orderID]
	if !ok {
		return nil, shipping.ErrOrderNotFound
	}
	cp := *o
	return &cp, nil
}

// UpsertOrder keeps the operational columns of an existing row, like pgstore.
func (s *memStore) UpsertOrder(ctx context.Context, o *models.Order) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upserts++
	cp := *o
	if prev, ok := s.orders[o.OrgID+"/"+o.ID]; ok {
		cp.OperationalStatus = prev.OperationalStatus
		cp.FulfillmentStatus = prev.FulfillmentStatus
		cp.ShippedAt, cp.ShippedBy = prev.ShippedAt, prev.ShippedBy
	}
	if cp.OperationalStatus == "" {
		cp.OperationalStatus = models.OrderStatusPending
	}
	if cp.FulfillmentStatus == "" {
		cp.FulfillmentStatus = models.FulfillmentStatusUnfulfilled
	}
	s.orders[o.OrgID+"/"+o.ID] = &cp
	return nil
}

func (s *memStore) UpdateOrderStatus(ctx context.Context, orgID, orderID string, upd models.OrderStatusUpdate) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.updateErr != nil {
		return s.updateErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[orgID+"/"+orderID]
	if !ok {
		return shipping.ErrOrderNotFound
	}
	o.OperationalStatus = upd.Status
	if upd.FulfillmentStatus != nil {
		o.FulfillmentStatus = *upd.FulfillmentStatus
	}
	switch {
	case upd.ClearShipped:
		o.ShippedAt, o.ShippedBy = nil, ""
	case upd.ShippedAt != nil:
		at := *upd.ShippedAt
		o.ShippedAt, o.ShippedBy = &at, upd.ShippedBy
	}
	return nil
}

// recordingPublisher keeps published events in order.
type recordingPublisher struct {
	mu     sync.Mutex
	events []events.ShipmentEvent
	err    error
}

func (p *recordingPublisher) PublishShipmentEvent(ctx context.Context, ev events.ShipmentEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return p.err
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, ev := range p.events {
		out = append(out, ev.Type)
	}
	return out
}

// recordingMetrics counts calls by label values.
type recordingMetrics struct {
	mu         sync.Mutex
	operations map[string]int
	upstream   map[string]int
	pending    map[string]int
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{
		operations: make(map[string]int),
		upstream:   make(map[string]int),
		pending:    make(map[string]int),
	}
}

func (m *recordingMetrics) ObserveOperation(operation, carrier, status string, d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.operations[operation+"/"+status]++
}

func (m *recordingMetrics) UpstreamError(system, kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.upstream[system+"/"+kind]++
}

func (m *recordingMetrics) PendingReconciliation(operation string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending[operation]++
}
