package service

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"ridepay/internal/domain"
	"ridepay/internal/events"
	"ridepay/internal/gateway"
	"ridepay/internal/repository"
)

// ──────────────────────────────────────────────
// MOCK USER REPOSITORY
// ──────────────────────────────────────────────

type MockUserRepository struct {
	mu    sync.RWMutex
	users map[string]*domain.User

	UpdateLocationCallCount int32
	GetError                error
}

func NewMockUserRepository() *MockUserRepository {
	return &MockUserRepository{users: make(map[string]*domain.User)}
}

func (m *MockUserRepository) AddUser(u *domain.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.ID] = u
}

func (m *MockUserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok || u.Deleted() {
		return nil, repository.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *MockUserRepository) GetByIDAndRole(ctx context.Context, id string, role domain.Role) (*domain.User, error) {
	u, err := m.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if u.Role != role {
		return nil, repository.ErrNotFound
	}
	return u, nil
}

func (m *MockUserRepository) UpdateLocation(ctx context.Context, id string, point *domain.Point, at time.Time) error {
	atomic.AddInt32(&m.UpdateLocationCallCount, 1)
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok || u.Role != domain.RoleDriver || u.Deleted() {
		return repository.ErrNotFound
	}
	if point == nil {
		u.Location = nil
	} else {
		p := *point
		u.Location = &p
	}
	u.LocationUpdatedAt = &at
	return nil
}

func (m *MockUserRepository) ListLocatedDrivers(ctx context.Context) ([]*domain.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []*domain.User
	for _, u := range m.users {
		if u.IsAvailableDriver() {
			cp := *u
			result = append(result, &cp)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (m *MockUserRepository) GetUser(id string) *domain.User {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.users[id]
}

// ──────────────────────────────────────────────
// MOCK RIDE REPOSITORY
// ──────────────────────────────────────────────

type rideClaim struct {
	token string
	at    time.Time
}

// MockRideRepository enforces the same guards as the Postgres schema: one
// in-progress ride per rider, and finish only under a held claim.
type MockRideRepository struct {
	mu     sync.RWMutex
	rides  map[string]*domain.Ride
	claims map[string]rideClaim

	CreateCallCount int32
	ClaimCallCount  int32
	FinishCallCount int32

	CreateError        error
	HasInProgressError error
}

func NewMockRideRepository() *MockRideRepository {
	return &MockRideRepository{
		rides:  make(map[string]*domain.Ride),
		claims: make(map[string]rideClaim),
	}
}

func (m *MockRideRepository) AddRide(r *domain.Ride) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rides[r.ID] = r
}

func (m *MockRideRepository) SetClaim(rideID, token string, at time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.claims[rideID] = rideClaim{token: token, at: at}
}

func (m *MockRideRepository) Create(ctx context.Context, ride *domain.Ride) error {
	atomic.AddInt32(&m.CreateCallCount, 1)
	if m.CreateError != nil {
		return m.CreateError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rides {
		if r.RiderID == ride.RiderID && r.Status == domain.RideStatusInProgress {
			return repository.ErrDuplicate
		}
	}
	cp := *ride
	m.rides[ride.ID] = &cp
	return nil
}

func (m *MockRideRepository) GetByID(ctx context.Context, id string) (*domain.Ride, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rides[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *MockRideRepository) HasInProgress(ctx context.Context, riderID string) (bool, error) {
	if m.HasInProgressError != nil {
		return false, m.HasInProgressError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, r := range m.rides {
		if r.RiderID == riderID && r.Status == domain.RideStatusInProgress {
			return true, nil
		}
	}
	return false, nil
}

func (m *MockRideRepository) ClaimFinish(ctx context.Context, rideID, token string, now time.Time, lease time.Duration) (bool, error) {
	atomic.AddInt32(&m.ClaimCallCount, 1)
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rides[rideID]
	if !ok || r.Status != domain.RideStatusInProgress {
		return false, nil
	}
	if c, held := m.claims[rideID]; held && !c.at.Before(now.Add(-lease)) {
		return false, nil
	}
	m.claims[rideID] = rideClaim{token: token, at: now}
	return true, nil
}

func (m *MockRideRepository) Finish(ctx context.Context, ride *domain.Ride, token string) error {
	atomic.AddInt32(&m.FinishCallCount, 1)
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.rides[ride.ID]
	if !ok || stored.Status != domain.RideStatusInProgress {
		return repository.ErrClaimLost
	}
	if c, held := m.claims[ride.ID]; !held || c.token != token {
		return repository.ErrClaimLost
	}
	cp := *ride
	m.rides[ride.ID] = &cp
	delete(m.claims, ride.ID)
	return nil
}

func (m *MockRideRepository) GetRide(id string) *domain.Ride {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.rides[id]
}

func (m *MockRideRepository) CountRides() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rides)
}

func (m *MockRideRepository) ClaimHeld(rideID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.claims[rideID]
	return ok
}

// ──────────────────────────────────────────────
// MOCK TRANSACTION REPOSITORY + SETTLEMENT
// ──────────────────────────────────────────────

type MockTransactionRepository struct {
	mu   sync.RWMutex
	txns []*domain.Transaction

	ListError error
}

func NewMockTransactionRepository() *MockTransactionRepository {
	return &MockTransactionRepository{}
}

func (m *MockTransactionRepository) Create(ctx context.Context, txn *domain.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.txns {
		if t.RideID == txn.RideID {
			return repository.ErrDuplicate
		}
	}
	cp := *txn
	m.txns = append(m.txns, &cp)
	return nil
}

func (m *MockTransactionRepository) GetByRideID(ctx context.Context, rideID string) (*domain.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, t := range m.txns {
		if t.RideID == rideID {
			cp := *t
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *MockTransactionRepository) ListFailedSince(ctx context.Context, since time.Time, limit int) ([]*domain.Transaction, error) {
	if m.ListError != nil {
		return nil, m.ListError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []*domain.Transaction
	for _, t := range m.txns {
		if t.Status == domain.TransactionStatusFailed && !t.CreatedAt.Before(since) && len(result) < limit {
			cp := *t
			result = append(result, &cp)
		}
	}
	return result, nil
}

func (m *MockTransactionRepository) remove(rideID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, t := range m.txns {
		if t.RideID == rideID {
			m.txns = append(m.txns[:i], m.txns[i+1:]...)
			return
		}
	}
}

func (m *MockTransactionRepository) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.txns)
}

// MockSettlement applies both writes and undoes the first if the second fails.
type MockSettlement struct {
	rides *MockRideRepository
	txns  *MockTransactionRepository

	SettleCallCount int32
	SettleError     error
}

func NewMockSettlement(rides *MockRideRepository, txns *MockTransactionRepository) *MockSettlement {
	return &MockSettlement{rides: rides, txns: txns}
}

func (m *MockSettlement) Settle(ctx context.Context, ride *domain.Ride, txn *domain.Transaction, token string) error {
	atomic.AddInt32(&m.SettleCallCount, 1)
	if m.SettleError != nil {
		return m.SettleError
	}
	if err := m.txns.Create(ctx, txn); err != nil {
		return err
	}
	if err := m.rides.Finish(ctx, ride, token); err != nil {
		m.txns.remove(txn.RideID)
		return err
	}
	return nil
}

// ──────────────────────────────────────────────
// MOCK PAYMENT METHOD REPOSITORY
// ──────────────────────────────────────────────

type MockPaymentMethodRepository struct {
	mu      sync.RWMutex
	methods []*domain.PaymentMethod

	CreateCallCount int32
	CreateError     error
	CountError      error
}

func NewMockPaymentMethodRepository() *MockPaymentMethodRepository {
	return &MockPaymentMethodRepository{}
}

func (m *MockPaymentMethodRepository) Create(ctx context.Context, method *domain.PaymentMethod) error {
	atomic.AddInt32(&m.CreateCallCount, 1)
	if m.CreateError != nil {
		return m.CreateError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *method
	m.methods = append(m.methods, &cp)
	return nil
}

func (m *MockPaymentMethodRepository) CountByUser(ctx context.Context, userID string) (int, error) {
	if m.CountError != nil {
		return 0, m.CountError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, pm := range m.methods {
		if pm.UserID == userID && !pm.Deleted() {
			n++
		}
	}
	return n, nil
}

func (m *MockPaymentMethodRepository) FindDefaultByUser(ctx context.Context, userID string) (*domain.PaymentMethod, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var best *domain.PaymentMethod
	for _, pm := range m.methods {
		if pm.UserID != userID || !pm.Default || pm.Deleted() {
			continue
		}
		if best == nil || !pm.CreatedAt.Before(best.CreatedAt) {
			best = pm
		}
	}
	if best == nil {
		return nil, nil
	}
	cp := *best
	return &cp, nil
}

func (m *MockPaymentMethodRepository) ForUser(userID string) []*domain.PaymentMethod {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []*domain.PaymentMethod
	for _, pm := range m.methods {
		if pm.UserID == userID {
			result = append(result, pm)
		}
	}
	return result
}

// ──────────────────────────────────────────────
// MOCK DRIVER LOCATOR
// ──────────────────────────────────────────────

type MockDriverLocator struct {
	Driver *domain.User
	Err    error

	CallCount int32
}

func (m *MockDriverLocator) FindNearestAvailableDriver(ctx context.Context, p domain.Point) (*domain.User, error) {
	atomic.AddInt32(&m.CallCount, 1)
	if m.Err != nil {
		return nil, m.Err
	}
	if m.Driver == nil {
		return nil, nil
	}
	cp := *m.Driver
	return &cp, nil
}

// ──────────────────────────────────────────────
// MOCK PAYMENT GATEWAY
// ──────────────────────────────────────────────

type MockGateway struct {
	mu       sync.Mutex
	charges  []gateway.ChargeRequest
	sources  []gateway.CreatePaymentSourceRequest
	nextID   int32
	lookupFn func(id string) (*gateway.TransactionDetails, error)
	byRefFn  func(ref string) ([]gateway.TransactionDetails, error)

	AcceptanceCallCount int32
	TokenizeCallCount   int32
	SourceCallCount     int32
	ChargeCallCount     int32

	AcceptanceError error
	TokenizeError   error
	SourceError     error
	ChargeError     error
	ChargeNoID      bool
	ChargeDelay     time.Duration
}

func NewMockGateway() *MockGateway {
	return &MockGateway{}
}

func (m *MockGateway) AcceptanceToken(ctx context.Context) (string, error) {
	atomic.AddInt32(&m.AcceptanceCallCount, 1)
	if m.AcceptanceError != nil {
		return "", m.AcceptanceError
	}
	return "acc_test_token", nil
}

func (m *MockGateway) TokenizeCard(ctx context.Context, card gateway.Card) (string, error) {
	atomic.AddInt32(&m.TokenizeCallCount, 1)
	if m.TokenizeError != nil {
		return "", m.TokenizeError
	}
	return "tok_test_" + card.Number[len(card.Number)-4:], nil
}

func (m *MockGateway) CreatePaymentSource(ctx context.Context, req gateway.CreatePaymentSourceRequest) (*gateway.PaymentSource, error) {
	atomic.AddInt32(&m.SourceCallCount, 1)
	if m.SourceError != nil {
		return nil, m.SourceError
	}
	m.mu.Lock()
	m.sources = append(m.sources, req)
	m.mu.Unlock()
	id := atomic.AddInt32(&m.nextID, 1)
	return &gateway.PaymentSource{
		ID:     strconv.Itoa(int(1000 + id)),
		Token:  req.Token,
		Type:   req.Type,
		Status: "AVAILABLE",
	}, nil
}

func (m *MockGateway) Charge(ctx context.Context, req gateway.ChargeRequest) (*gateway.ChargeResult, error) {
	atomic.AddInt32(&m.ChargeCallCount, 1)
	if m.ChargeDelay > 0 {
		time.Sleep(m.ChargeDelay)
	}
	m.mu.Lock()
	m.charges = append(m.charges, req)
	m.mu.Unlock()
	if m.ChargeError != nil {
		return nil, m.ChargeError
	}
	if m.ChargeNoID {
		return &gateway.ChargeResult{Status: "DECLINED"}, nil
	}
	return &gateway.ChargeResult{TransactionID: "wompi-" + req.Reference, Status: "APPROVED", Succeeded: true}, nil
}

func (m *MockGateway) GetTransaction(ctx context.Context, id string) (*gateway.TransactionDetails, error) {
	if m.lookupFn != nil {
		return m.lookupFn(id)
	}
	return nil, errors.New("not configured")
}

func (m *MockGateway) FindTransactionsByReference(ctx context.Context, ref string) ([]gateway.TransactionDetails, error) {
	if m.byRefFn != nil {
		return m.byRefFn(ref)
	}
	return nil, nil
}

func (m *MockGateway) Charges() []gateway.ChargeRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]gateway.ChargeRequest(nil), m.charges...)
}

func (m *MockGateway) SourceRequests() []gateway.CreatePaymentSourceRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]gateway.CreatePaymentSourceRequest(nil), m.sources...)
}


// ──────────────────────────────────────────────
// MOCK PUBLISHER, LOCKER, INDEX, SENDER
// ──────────────────────────────────────────────

type MockPublisher struct {
	mu     sync.Mutex
	events []events.Event

	PublishError error
	// Block makes Publish wait for ctx, like a dispatcher with a full queue.
	Block bool
}

func (m *MockPublisher) Publish(ctx context.Context, e events.Event) error {
	if m.Block {
		<-ctx.Done()
		return ctx.Err()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, e)
	return m.PublishError
}

func (m *MockPublisher) Named(name events.Name) []events.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []events.Event
	for _, e := range m.events {
		if e.Name == name {
			result = append(result, e)
		}
	}
	return result
}

type MockLocker struct {
	mu   sync.Mutex
	held map[string]string

	AcquireError     error
	AcquireCallCount int32
	ReleaseCallCount int32
}

func NewMockLocker() *MockLocker {
	return &MockLocker{held: make(map[string]string)}
}

func (m *MockLocker) AcquireProvisioningLock(ctx context.Context, riderID string, ttl time.Duration) (string, error) {
	atomic.AddInt32(&m.AcquireCallCount, 1)
	if m.AcquireError != nil {
		return "", m.AcquireError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.held[riderID]; ok {
		return "", nil
	}
	token := "lock-" + riderID
	m.held[riderID] = token
	return token, nil
}

func (m *MockLocker) ReleaseProvisioningLock(ctx context.Context, riderID, token string) error {
	atomic.AddInt32(&m.ReleaseCallCount, 1)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.held[riderID] == token {
		delete(m.held, riderID)
	}
	return nil
}

type MockLocationIndex struct {
	mu        sync.Mutex
	positions map[string]domain.Point

	UpdateError  error
	RebuildCount int32
}

func NewMockLocationIndex() *MockLocationIndex {
	return &MockLocationIndex{positions: make(map[string]domain.Point)}
}

func (m *MockLocationIndex) UpdateLocation(ctx context.Context, driverID string, p domain.Point) error {
	if m.UpdateError != nil {
		return m.UpdateError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.positions[driverID] = p
	return nil
}

func (m *MockLocationIndex) RemoveLocation(ctx context.Context, driverID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.positions, driverID)
	return nil
}

func (m *MockLocationIndex) Rebuild(ctx context.Context, drivers []*domain.User) error {
	atomic.AddInt32(&m.RebuildCount, 1)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.positions = make(map[string]domain.Point)
	for _, d := range drivers {
		if d.Location != nil {
			m.positions[d.ID] = *d.Location
		}
	}
	return nil
}

func (m *MockLocationIndex) Position(driverID string) (domain.Point, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.positions[driverID]
	return p, ok
}

type MockSender struct {
	mu   sync.Mutex
	sent []Notification
}

func (m *MockSender) Send(ctx context.Context, n Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, n)
	return nil
}

func (m *MockSender) Sent() []Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Notification(nil), m.sent...)
}
