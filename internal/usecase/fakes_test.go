package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"cinema-checkout/internal/data/entity"
	"cinema-checkout/internal/data/repository"
	"cinema-checkout/internal/dto/request"
	"cinema-checkout/internal/gateway"
	"cinema-checkout/internal/notification"
	"cinema-checkout/pkg/utils"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fakeSessionRepo struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]*entity.BookingSession
	// beforeUpdate runs outside the lock ahead of every Update.
	beforeUpdate func(session *entity.BookingSession)
}

func newFakeSessionRepo() *fakeSessionRepo {
	return &fakeSessionRepo{sessions: make(map[uuid.UUID]*entity.BookingSession)}
}

func cloneSession(s *entity.BookingSession) *entity.BookingSession {
	c := *s
	c.SeatHolds = append([]entity.SeatHold(nil), s.SeatHolds...)
	c.Combos = append([]entity.ComboLineItem(nil), s.Combos...)
	if s.Pricing != nil {
		p := *s.Pricing
		c.Pricing = &p
	}
	return &c
}

func (r *fakeSessionRepo) Create(_ context.Context, session *entity.BookingSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[session.ID] = cloneSession(session)
	return nil
}

func (r *fakeSessionRepo) FindByID(_ context.Context, id uuid.UUID) (*entity.BookingSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, nil
	}
	return cloneSession(s), nil
}

func (r *fakeSessionRepo) FindByOrderID(_ context.Context, orderID string) (*entity.BookingSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.sessions {
		if s.OrderID != nil && *s.OrderID == orderID {
			return cloneSession(s), nil
		}
	}
	return nil, nil
}

func (r *fakeSessionRepo) Update(_ context.Context, session *entity.BookingSession) error {
	if hook := r.beforeUpdate; hook != nil {
		hook(session)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.sessions[session.ID]
	if !ok || stored.Version != session.Version {
		return repository.ErrStaleWrite
	}
	session.Version++
	r.sessions[session.ID] = cloneSession(session)
	return nil
}

func (r *fakeSessionRepo) FindExpired(_ context.Context, now time.Time, limit int) ([]*entity.BookingSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*entity.BookingSession
	for _, s := range r.sessions {
		if !s.State.IsTerminal() && s.IsExpiredAt(now) {
			out = append(out, cloneSession(s))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		ai := out[i].State == entity.SessionStateAwaitingPayment
		aj := out[j].State == entity.SessionStateAwaitingPayment
		if ai != aj {
			return aj
		}
		return out[i].ExpiresAt.Before(out[j].ExpiresAt)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// bump simulates a write from another instance.
func (r *fakeSessionRepo) bump(id uuid.UUID, mutate func(*entity.BookingSession)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.sessions[id]
	mutate(s)
	s.Version++
}

func (r *fakeSessionRepo) get(id uuid.UUID) *entity.BookingSession {
	r.mu.Lock()
	defer r.mu.Unlock()
	return cloneSession(r.sessions[id])
}

type fakeCatalog struct {
	showtimes  map[uuid.UUID]*entity.Showtime
	seatPrices map[uuid.UUID]int64
	combos     map[uuid.UUID]int64
}

func (c *fakeCatalog) GetShowtime(_ context.Context, id uuid.UUID) (*entity.Showtime, error) {
	s, ok := c.showtimes[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return s, nil
}

func (c *fakeCatalog) GetSeat(_ context.Context, _, seatID uuid.UUID) (*entity.Seat, error) {
	if _, ok := c.seatPrices[seatID]; !ok {
		return nil, repository.ErrNotFound
	}
	return &entity.Seat{ID: seatID, SeatType: "standard"}, nil
}

func (c *fakeCatalog) GetSeatPrice(_ context.Context, _, seatID uuid.UUID) (int64, error) {
	price, ok := c.seatPrices[seatID]
	if !ok {
		return 0, repository.ErrNotFound
	}
	return price, nil
}

func (c *fakeCatalog) GetComboPrice(_ context.Context, id uuid.UUID) (int64, error) {
	price, ok := c.combos[id]
	if !ok {
		return 0, repository.ErrNotFound
	}
	return price, nil
}

type fakeVoucherRepo struct {
	mu         sync.Mutex
	vouchers   map[string]*entity.Voucher
	increments int
}

func (r *fakeVoucherRepo) GetVoucher(_ context.Context, code string) (*entity.Voucher, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.vouchers[code]
	if !ok {
		return nil, nil
	}
	c := *v
	return &c, nil
}

func (r *fakeVoucherRepo) IncrementUsage(_ context.Context, code string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.vouchers[code]
	if !ok {
		return repository.ErrNotFound
	}
	v.UsedCount++
	r.increments++
	return nil
}

type fakeOrderRepo struct {
	mu     sync.Mutex
	orders map[string]*entity.PaymentOrder
}

func (r *fakeOrderRepo) Create(_ context.Context, order *entity.PaymentOrder) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := *order
	r.orders[order.OrderID] = &c
	return nil
}

func (r *fakeOrderRepo) FindByOrderID(_ context.Context, orderID string) (*entity.PaymentOrder, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[orderID]
	if !ok {
		return nil, nil
	}
	c := *o
	return &c, nil
}

func (r *fakeOrderRepo) UpdateStatus(_ context.Context, orderID string, status entity.PaymentStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if o, ok := r.orders[orderID]; ok && o.Status == entity.PaymentStatusPending {
		o.Status = status
	}
	return nil
}

func (r *fakeOrderRepo) status(orderID string) entity.PaymentStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.orders[orderID].Status
}

type fakeAllocationRepo struct {
	mu    sync.Mutex
	sold  map[string]uuid.UUID
	calls int
}

func (r *fakeAllocationRepo) CreateBatch(_ context.Context, allocations []entity.SeatAllocation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	for _, a := range allocations {
		key := repository.SeatKey(a.ShowtimeID, a.SeatID)
		if owner, ok := r.sold[key]; ok && owner != a.SessionID {
			return repository.ErrSeatConflict
		}
	}
	for _, a := range allocations {
		r.sold[repository.SeatKey(a.ShowtimeID, a.SeatID)] = a.SessionID
	}
	return nil
}

func (r *fakeAllocationRepo) IsAllocated(_ context.Context, showtimeID, seatID uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.sold[repository.SeatKey(showtimeID, seatID)]
	return ok, nil
}

type fakeGateway struct {
	mu          sync.Mutex
	statuses    map[string]entity.PaymentStatus
	createCalls int
	expired     []string
	// down makes every call fail like an unreachable provider.
	down bool
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{statuses: make(map[string]entity.PaymentStatus)}
}

func (g *fakeGateway) CreateOrder(_ context.Context, req gateway.CreateOrderRequest) (*gateway.Order, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.down {
		return nil, fmt.Errorf("dial payos: connection refused")
	}
	g.createCalls++
	orderID := fmt.Sprintf("%d", 1000+g.createCalls)
	g.statuses[orderID] = entity.PaymentStatusPending
	return &gateway.Order{
		OrderID:     orderID,
		CheckoutURL: "https://pay.example.com/" + orderID,
		QRPayload:   "qr-" + orderID,
		Status:      entity.PaymentStatusPending,
	}, nil
}

func (g *fakeGateway) GetOrderStatus(_ context.Context, orderID string) (entity.PaymentStatus, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.down {
		return "", fmt.Errorf("dial payos: connection refused")
	}
	status, ok := g.statuses[orderID]
	if !ok {
		return "", fmt.Errorf("order %s not found", orderID)
	}
	return status, nil
}

func (g *fakeGateway) SetExpired(_ context.Context, orderID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.down {
		return fmt.Errorf("dial payos: connection refused")
	}
	g.expired = append(g.expired, orderID)
	if g.statuses[orderID] == entity.PaymentStatusPending {
		g.statuses[orderID] = entity.PaymentStatusCancelled
	}
	return nil
}

type fakeWebhook struct {
	OrderID string `json:"orderId"`
	Status  string `json:"status"`
	Amount  int64  `json:"amount"`
	Sig     string `json:"sig"`
}

func (g *fakeGateway) VerifyWebhook(body []byte) (*gateway.WebhookEvent, error) {
	var hook fakeWebhook
	if err := json.Unmarshal(body, &hook); err != nil || hook.Sig != "ok" {
		return nil, gateway.ErrInvalidSignature
	}
	return &gateway.WebhookEvent{OrderID: hook.OrderID, Status: entity.PaymentStatus(hook.Status), Amount: hook.Amount}, nil
}

func (g *fakeGateway) setStatus(orderID string, status entity.PaymentStatus) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.statuses[orderID] = status
}

func (g *fakeGateway) setDown(down bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.down = down
}

func (g *fakeGateway) creates() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.createCalls
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []notification.TicketIssued
}

func (n *fakeNotifier) SendTicket(_ context.Context, event notification.TicketIssued) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
	return nil
}

func (n *fakeNotifier) Close() error { return nil }

func (n *fakeNotifier) sent() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.events)
}

const (
	seatPrice    int64 = 60000
	vipSeatPrice int64 = 90000
	popcornPrice int64 = 50000
)

type fixture struct {
	clock       *fakeClock
	sessions    *fakeSessionRepo
	vouchers    *fakeVoucherRepo
	orders      *fakeOrderRepo
	allocations *fakeAllocationRepo
	store       *repository.MemoryReservationStore
	gw          *fakeGateway
	notifier    *fakeNotifier
	svc         *Service
	core        *sessionCore

	customer uuid.UUID
	showtime uuid.UUID
	seats    []uuid.UUID
	vipSeat  uuid.UUID
	popcorn  uuid.UUID
	cfg      utils.BookingConfig
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		clock:       &fakeClock{now: time.Date(2025, 6, 1, 18, 0, 0, 0, time.UTC)},
		sessions:    newFakeSessionRepo(),
		vouchers:    &fakeVoucherRepo{vouchers: make(map[string]*entity.Voucher)},
		orders:      &fakeOrderRepo{orders: make(map[string]*entity.PaymentOrder)},
		allocations: &fakeAllocationRepo{sold: make(map[string]uuid.UUID)},
		gw:          newFakeGateway(),
		notifier:    &fakeNotifier{},
		customer:    uuid.New(),
		showtime:    uuid.New(),
		vipSeat:     uuid.New(),
		popcorn:     uuid.New(),
	}
	f.store = repository.NewMemoryReservationStore(repository.WithClock(f.clock.Now))
	t.Cleanup(func() { _ = f.store.Close() })

	catalog := &fakeCatalog{
		showtimes: map[uuid.UUID]*entity.Showtime{
			f.showtime: {ID: f.showtime, StartsAt: f.clock.Now().Add(3 * time.Hour), BasePrice: seatPrice},
		},
		seatPrices: map[uuid.UUID]int64{f.vipSeat: vipSeatPrice},
		combos:     map[uuid.UUID]int64{f.popcorn: popcornPrice},
	}
	for i := 0; i < 4; i++ {
		seat := uuid.New()
		f.seats = append(f.seats, seat)
		catalog.seatPrices[seat] = seatPrice
	}

	f.vouchers.vouchers["SALE20"] = &entity.Voucher{
		Code:          "SALE20",
		DiscountType:  entity.DiscountTypePercent,
		DiscountValue: 20,
		ValidFrom:     f.clock.Now().Add(-24 * time.Hour),
		ValidTo:       f.clock.Now().Add(24 * time.Hour),
		UsageLimit:    100,
		IsActive:      true,
	}

	repo := &repository.Repository{
		Catalog:        catalog,
		Voucher:        f.vouchers,
		BookingSession: f.sessions,
		PaymentOrder:   f.orders,
		SeatAllocation: f.allocations,
		Reservation:    f.store,
	}

	f.cfg = utils.BookingConfig{
		SessionTTL:          10 * time.Minute,
		HoldGrace:           2 * time.Minute,
		PreviewStaleness:    5 * time.Minute,
		ComboSelectionLimit: 10,
		MaxSeatsPerSession:  8,
		SweepBatchSize:      50,
		GatewayTimeout:      time.Second,
	}
	config := &utils.Config{
		Booking: f.cfg,
		PayOS: utils.PayOSConfig{
			ReturnURL: "https://cinema.example.com/paid",
			CancelURL: "https://cinema.example.com/cancel",
		},
	}

	f.svc = NewService(repo, gateway.Registry{"payos": f.gw}, f.notifier, config, zap.NewNop(), WithClock(f.clock.Now))
	f.core = f.svc.Booking.(*bookingService).sessionCore
	return f
}

func (f *fixture) start(t *testing.T) uuid.UUID {
	t.Helper()
	resp, err := f.svc.Booking.StartSession(context.Background(), f.customer, &request.StartSessionRequest{ShowtimeID: f.showtime.String()})
	require.NoError(t, err)
	return uuid.MustParse(resp.ID)
}

func (f *fixture) hold(t *testing.T, sessionID uuid.UUID, seats ...uuid.UUID) {
	t.Helper()
	ids := make([]string, len(seats))
	for i, s := range seats {
		ids[i] = s.String()
	}
	_, err := f.svc.Booking.HoldSeats(context.Background(), f.customer, sessionID, &request.HoldSeatsRequest{SeatIDs: ids})
	require.NoError(t, err)
}

func (f *fixture) combos(t *testing.T, sessionID uuid.UUID, qty int) {
	t.Helper()
	_, err := f.svc.Booking.UpsertCombos(context.Background(), f.customer, sessionID, &request.UpsertCombosRequest{
		Items: []request.ComboItemRequest{{ServiceID: f.popcorn.String(), Quantity: qty}},
	})
	require.NoError(t, err)
}

func (f *fixture) preview(t *testing.T, sessionID uuid.UUID, voucher *string) {
	t.Helper()
	_, err := f.svc.Booking.PreviewPricing(context.Background(), f.customer, sessionID, &request.PreviewPricingRequest{VoucherCode: voucher})
	require.NoError(t, err)
}

// checkedOut drives a fresh session up to AwaitingPayment and returns it with its order id.
func (f *fixture) checkedOut(t *testing.T, voucher *string, seats ...uuid.UUID) (uuid.UUID, string) {
	t.Helper()
	id := f.start(t)
	f.hold(t, id, seats...)
	f.combos(t, id, 1)
	f.preview(t, id, voucher)
	resp, err := f.svc.Checkout.CreateCheckout(context.Background(), f.customer, id, &request.CreateCheckoutRequest{Provider: "payos"})
	require.NoError(t, err)
	return id, resp.OrderID
}

func strPtr(s string) *string { return &s }
