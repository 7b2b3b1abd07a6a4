package service

import (
    "context"
    "database/sql"
    "errors"
    "net/http"
    "sort"
    "strings"
    "sync"
    "time"

    "github.com/iliyamo/bus-charter-booking/internal/gateway"
    "github.com/iliyamo/bus-charter-booking/internal/model"
    "github.com/iliyamo/bus-charter-booking/internal/queue"
    "github.com/iliyamo/bus-charter-booking/internal/repository"
)

// memDB backs the in-memory stores used by the service tests.  The fake
// transaction runner does not roll back; rollback behaviour is covered
// against sqlmock in tx_test.go.
type memDB struct {
    mu           sync.Mutex
    seq          uint64
    failOn       map[string]error
    customers    map[uint64]*model.Customer
    reservations map[uint64]*model.Reservation
    refs         map[uint64]*model.BookingReference
    buses        map[uint64]*model.Bus
    fuel         []*model.FuelPrice
    costs        map[uint64]*model.CalculatedCost
    invoices     map[uint64]*model.Invoice
    refunds      map[uint64]*model.Refund
    busyBuses    map[uint64]bool
}

func newMemDB() *memDB {
    return &memDB{
        customers:    map[uint64]*model.Customer{},
        reservations: map[uint64]*model.Reservation{},
        refs:         map[uint64]*model.BookingReference{},
        buses:        map[uint64]*model.Bus{},
        costs:        map[uint64]*model.CalculatedCost{},
        invoices:     map[uint64]*model.Invoice{},
        refunds:      map[uint64]*model.Refund{},
        busyBuses:    map[uint64]bool{},
    }
}

func (db *memDB) next() uint64 { db.seq++; return db.seq }

// failing makes the named store method return err from now on.
func (db *memDB) failing(method string, err error) {
    db.mu.Lock()
    defer db.mu.Unlock()
    if db.failOn == nil {
        db.failOn = map[string]error{}
    }
    db.failOn[method] = err
}

func (db *memDB) injected(method string) error {
    db.mu.Lock()
    defer db.mu.Unlock()
    return db.failOn[method]
}

func (db *memDB) deps() Deps {
    return Deps{
        Tx:           memTx{},
        Customers:    memCustomers{db},
        Reservations: memReservations{db},
        References:   memRefs{db},
        Buses:        memBuses{db},
        FuelPrices:   memFuel{db},
        Costs:        memCosts{db},
        Invoices:     memInvoices{db},
        Refunds:      memRefunds{db},
        Now:          func() time.Time { return time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC) },
    }
}

type memTx struct{}

func (memTx) WithinTx(_ context.Context, fn func(*sql.Tx) error) error { return fn(nil) }

type memCustomers struct{ db *memDB }

func (m memCustomers) GetByID(_ context.Context, id uint64) (*model.Customer, error) {
    m.db.mu.Lock()
    defer m.db.mu.Unlock()
    c, ok := m.db.customers[id]
    if !ok {
        return nil, repository.ErrNotFound
    }
    cp := *c
    return &cp, nil
}

func (m memCustomers) UpsertByEmailTx(_ context.Context, _ *sql.Tx, c *model.Customer) error {
    m.db.mu.Lock()
    defer m.db.mu.Unlock()
    for _, ex := range m.db.customers {
        if ex.Email == c.Email {
            ex.Name, ex.Phone = c.Name, c.Phone
            if c.Address != nil {
                ex.Address = c.Address
            }
            c.ID = ex.ID
            return nil
        }
    }
    c.ID = m.db.next()
    cp := *c
    m.db.customers[c.ID] = &cp
    return nil
}

type memReservations struct{ db *memDB }

func (m memReservations) CreateTx(_ context.Context, _ *sql.Tx, res *model.Reservation) error {
    m.db.mu.Lock()
    defer m.db.mu.Unlock()
    res.ID = m.db.next()
    res.CancellationStatus = model.CancellationNone
    cp := *res
    m.db.reservations[res.ID] = &cp
    return nil
}

func (m memReservations) GetByID(_ context.Context, id uint64) (*model.Reservation, error) {
    m.db.mu.Lock()
    defer m.db.mu.Unlock()
    r, ok := m.db.reservations[id]
    if !ok {
        return nil, repository.ErrNotFound
    }
    cp := *r
    return &cp, nil
}

func (m memReservations) GetByIDForUpdateTx(ctx context.Context, _ *sql.Tx, id uint64) (*model.Reservation, error) {
    return m.GetByID(ctx, id)
}

func (m memReservations) List(_ context.Context, f repository.ReservationFilter) ([]model.Reservation, error) {
    m.db.mu.Lock()
    defer m.db.mu.Unlock()
    var out []model.Reservation
    for _, r := range m.db.reservations {
        if f.Status == "" || r.Status == f.Status {
            out = append(out, *r)
        }
    }
    sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
    return out, nil
}

func (m memReservations) update(id uint64, fn func(r *model.Reservation)) error {
    m.db.mu.Lock()
    defer m.db.mu.Unlock()
    r, ok := m.db.reservations[id]
    if !ok {
        return repository.ErrNotFound
    }
    fn(r)
    return nil
}

func (m memReservations) UpdateStatusTx(_ context.Context, _ *sql.Tx, id uint64, status string) error {
    if err := m.db.injected("Reservations.UpdateStatusTx"); err != nil {
        return err
    }
    return m.update(id, func(r *model.Reservation) { r.Status = status })
}

func (m memReservations) UpdateDistanceTx(_ context.Context, _ *sql.Tx, id uint64, km float64) error {
    return m.update(id, func(r *model.Reservation) { r.DistanceKm = &km })
}

func (m memReservations) AssignBusTx(_ context.Context, _ *sql.Tx, id, busID uint64) error {
    return m.update(id, func(r *model.Reservation) { r.BusID = &busID })
}

func (m memReservations) RequestCancellationTx(_ context.Context, _ *sql.Tx, id uint64, reason string, at time.Time) error {
    return m.update(id, func(r *model.Reservation) {
        r.CancellationStatus, r.CancellationReason, r.CancellationRequestedAt = model.CancellationPendingApproval, &reason, &at
    })
}

func (m memReservations) ApproveCancellationTx(_ context.Context, _ *sql.Tx, id uint64) error {
    return m.update(id, func(r *model.Reservation) {
        r.Status, r.CancellationStatus = model.ReservationCancelled, model.CancellationApproved
    })
}

func (m memReservations) RejectCancellationTx(_ context.Context, _ *sql.Tx, id uint64) error {
    return m.update(id, func(r *model.Reservation) {
        r.CancellationStatus, r.CancellationReason, r.CancellationRequestedAt = model.CancellationRejected, nil, nil
    })
}

func (m memReservations) Delete(_ context.Context, id uint64) error {
    m.db.mu.Lock()
    defer m.db.mu.Unlock()
    if _, ok := m.db.reservations[id]; !ok {
        return repository.ErrNotFound
    }
    delete(m.db.reservations, id)
    return nil
}

type memRefs struct{ db *memDB }

func (m memRefs) CodeExistsTx(_ context.Context, _ *sql.Tx, code string) (bool, error) {
    m.db.mu.Lock()
    defer m.db.mu.Unlock()
    for _, r := range m.db.refs {
        if r.Code == code {
            return true, nil
        }
    }
    return false, nil
}

func (m memRefs) CreateTx(ctx context.Context, tx *sql.Tx, reservationID uint64, code string) (*model.BookingReference, error) {
    if taken, _ := m.CodeExistsTx(ctx, tx, code); taken {
        return nil, repository.ErrDuplicate
    }
    m.db.mu.Lock()
    defer m.db.mu.Unlock()
    ref := &model.BookingReference{ID: m.db.next(), ReservationID: reservationID, Code: code}
    m.db.refs[ref.ID] = ref
    cp := *ref
    return &cp, nil
}

func (m memRefs) GetByCode(_ context.Context, code string) (*model.BookingReference, error) {
    m.db.mu.Lock()
    defer m.db.mu.Unlock()
    code = strings.ToUpper(strings.TrimSpace(code))
    for _, r := range m.db.refs {
        if r.Code == code {
            cp := *r
            return &cp, nil
        }
    }
    return nil, repository.ErrNotFound
}

func (m memRefs) GetByReservationID(_ context.Context, id uint64) (*model.BookingReference, error) {
    m.db.mu.Lock()
    defer m.db.mu.Unlock()
    for _, r := range m.db.refs {
        if r.ReservationID == id {
            cp := *r
            return &cp, nil
        }
    }
    return nil, repository.ErrNotFound
}

type memBuses struct{ db *memDB }

func (m memBuses) Create(_ context.Context, b *model.Bus) error {
    m.db.mu.Lock()
    defer m.db.mu.Unlock()
    b.PlateNumber = strings.ToUpper(b.PlateNumber)
    for _, ex := range m.db.buses {
        if ex.PlateNumber == b.PlateNumber {
            return repository.ErrDuplicate
        }
    }
    if b.Status == "" {
        b.Status = model.BusAvailable
    }
    b.ID = m.db.next()
    cp := *b
    m.db.buses[b.ID] = &cp
    return nil
}

func (m memBuses) GetByID(_ context.Context, id uint64) (*model.Bus, error) {
    m.db.mu.Lock()
    defer m.db.mu.Unlock()
    b, ok := m.db.buses[id]
    if !ok {
        return nil, repository.ErrNotFound
    }
    cp := *b
    return &cp, nil
}

func (m memBuses) List(_ context.Context) ([]model.Bus, error) {
    m.db.mu.Lock()
    defer m.db.mu.Unlock()
    var out []model.Bus
    for _, b := range m.db.buses {
        out = append(out, *b)
    }
    sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
    return out, nil
}

func (m memBuses) UpdateStatus(_ context.Context, id uint64, status string) error {
    m.db.mu.Lock()
    defer m.db.mu.Unlock()
    b, ok := m.db.buses[id]
    if !ok {
        return repository.ErrNotFound
    }
    b.Status = status
    return nil
}

func (m memBuses) AvailableOn(ctx context.Context, _ time.Time) ([]model.Bus, error) {
    all, _ := m.List(ctx)
    var out []model.Bus
    for _, b := range all {
        if b.Status == model.BusAvailable && !m.db.busyBuses[b.ID] {
            out = append(out, b)
        }
    }
    return out, nil
}

func (m memBuses) IsAvailableOnTx(_ context.Context, _ *sql.Tx, busID uint64, _ time.Time, _ uint64) (bool, error) {
    m.db.mu.Lock()
    defer m.db.mu.Unlock()
    b, ok := m.db.buses[busID]
    return ok && b.Status == model.BusAvailable && !m.db.busyBuses[busID], nil
}

type memFuel struct{ db *memDB }

func (m memFuel) Current(_ context.Context) (*model.FuelPrice, error) {
    m.db.mu.Lock()
    defer m.db.mu.Unlock()
    if len(m.db.fuel) == 0 {
        return nil, repository.ErrNotFound
    }
    cp := *m.db.fuel[len(m.db.fuel)-1]
    return &cp, nil
}

func (m memFuel) GetByID(_ context.Context, id uint64) (*model.FuelPrice, error) {
    m.db.mu.Lock()
    defer m.db.mu.Unlock()
    for _, f := range m.db.fuel {
        if f.ID == id {
            cp := *f
            return &cp, nil
        }
    }
    return nil, repository.ErrNotFound
}

func (m memFuel) Create(_ context.Context, price float64, effective time.Time) (*model.FuelPrice, error) {
    m.db.mu.Lock()
    defer m.db.mu.Unlock()
    fp := &model.FuelPrice{ID: m.db.next(), PricePerLiter: price, DateEffective: effective}
    m.db.fuel = append(m.db.fuel, fp)
    cp := *fp
    return &cp, nil
}

func (m memFuel) List(_ context.Context, _ int) ([]model.FuelPrice, error) {
    m.db.mu.Lock()
    defer m.db.mu.Unlock()
    out := make([]model.FuelPrice, 0, len(m.db.fuel))
    for i := len(m.db.fuel) - 1; i >= 0; i-- {
        out = append(out, *m.db.fuel[i])
    }
    return out, nil
}

type memCosts struct{ db *memDB }

func (m memCosts) GetByID(_ context.Context, id uint64) (*model.CalculatedCost, error) {
    m.db.mu.Lock()
    defer m.db.mu.Unlock()
    c, ok := m.db.costs[id]
    if !ok {
        return nil, repository.ErrNotFound
    }
    cp := *c
    return &cp, nil
}

func (m memCosts) GetByReservationID(_ context.Context, id uint64) (*model.CalculatedCost, error) {
    m.db.mu.Lock()
    defer m.db.mu.Unlock()
    for _, c := range m.db.costs {
        if c.ReservationID == id {
            cp := *c
            return &cp, nil
        }
    }
    return nil, repository.ErrNotFound
}

func (m memCosts) GetByReservationIDTx(ctx context.Context, _ *sql.Tx, id uint64) (*model.CalculatedCost, error) {
    return m.GetByReservationID(ctx, id)
}

func (m memCosts) Upsert(_ context.Context, c *model.CalculatedCost) error {
    m.db.mu.Lock()
    defer m.db.mu.Unlock()
    for _, ex := range m.db.costs {
        if ex.ReservationID == c.ReservationID {
            c.ID = ex.ID
            cp := *c
            m.db.costs[c.ID] = &cp
            return nil
        }
    }
    c.ID = m.db.next()
    cp := *c
    m.db.costs[c.ID] = &cp
    return nil
}

func (m memCosts) UpsertTx(ctx context.Context, _ *sql.Tx, c *model.CalculatedCost) error {
    return m.Upsert(ctx, c)
}

type memInvoices struct{ db *memDB }

func (m memInvoices) find(match func(*model.Invoice) bool) (*model.Invoice, error) {
    m.db.mu.Lock()
    defer m.db.mu.Unlock()
    var best *model.Invoice
    for _, inv := range m.db.invoices {
        if match(inv) && (best == nil || inv.ID > best.ID) {
            best = inv
        }
    }
    if best == nil {
        return nil, repository.ErrNotFound
    }
    cp := *best
    return &cp, nil
}

func (m memInvoices) GetByID(_ context.Context, id uint64) (*model.Invoice, error) {
    return m.find(func(i *model.Invoice) bool { return i.ID == id })
}

func (m memInvoices) GetByIDForUpdateTx(ctx context.Context, _ *sql.Tx, id uint64) (*model.Invoice, error) {
    return m.GetByID(ctx, id)
}

func (m memInvoices) GetByCostID(_ context.Context, id uint64) (*model.Invoice, error) {
    return m.find(func(i *model.Invoice) bool { return i.CalculatedCostID == id })
}

func (m memInvoices) GetByCostIDForUpdateTx(ctx context.Context, _ *sql.Tx, id uint64) (*model.Invoice, error) {
    return m.GetByCostID(ctx, id)
}

func (m memInvoices) GetByCheckoutID(_ context.Context, id string) (*model.Invoice, error) {
    return m.find(func(i *model.Invoice) bool { return i.CheckoutSessionID != nil && *i.CheckoutSessionID == id })
}

func (m memInvoices) GetByPaymentIntentID(_ context.Context, id string) (*model.Invoice, error) {
    return m.find(func(i *model.Invoice) bool { return i.PaymentIntentID != nil && *i.PaymentIntentID == id })
}

func (m memInvoices) GetByPaymentID(_ context.Context, id string) (*model.Invoice, error) {
    return m.find(func(i *model.Invoice) bool { return i.PaymentID != nil && *i.PaymentID == id })
}

func (m memInvoices) LatestAwaiting(_ context.Context) (*model.Invoice, error) {
    return m.find(func(i *model.Invoice) bool { return i.Status == model.InvoiceAwaitingPayment })
}

func (m memInvoices) CreateTx(_ context.Context, _ *sql.Tx, inv *model.Invoice) error {
    m.db.mu.Lock()
    defer m.db.mu.Unlock()
    for _, ex := range m.db.invoices {
        if ex.CalculatedCostID == inv.CalculatedCostID {
            return repository.ErrDuplicate
        }
    }
    if inv.Status == "" {
        inv.Status = model.InvoiceAwaitingPayment
    }
    inv.ID = m.db.next()
    cp := *inv
    m.db.invoices[inv.ID] = &cp
    return nil
}

func (m memInvoices) update(id uint64, fn func(*model.Invoice) error) error {
    m.db.mu.Lock()
    defer m.db.mu.Unlock()
    inv, ok := m.db.invoices[id]
    if !ok {
        return repository.ErrNotFound
    }
    return fn(inv)
}

func (m memInvoices) RefreshCheckoutTx(_ context.Context, _ *sql.Tx, id uint64, gw, checkoutID, url string, intentID *string, amount float64) error {
    return m.update(id, func(i *model.Invoice) error {
        if i.Status != model.InvoiceAwaitingPayment {
            return repository.ErrConflict
        }
        i.Gateway, i.CheckoutSessionID, i.CheckoutURL, i.PaymentIntentID, i.Amount = &gw, &checkoutID, &url, intentID, amount
        return nil
    })
}

func (m memInvoices) MarkPaidTx(_ context.Context, _ *sql.Tx, id uint64, intentID, paymentID *string, at time.Time) (bool, error) {
    changed := false
    err := m.update(id, func(i *model.Invoice) error {
        if i.Status != model.InvoiceAwaitingPayment {
            return nil
        }
        i.Status, i.PaidAt, changed = model.InvoicePaid, &at, true
        if intentID != nil {
            i.PaymentIntentID = intentID
        }
        if paymentID != nil {
            i.PaymentID = paymentID
        }
        return nil
    })
    return changed, err
}

func (m memInvoices) RecordManualPaymentTx(_ context.Context, _ *sql.Tx, id uint64, method string, amount float64, at time.Time) error {
    return m.update(id, func(i *model.Invoice) error {
        if i.Status != model.InvoiceAwaitingPayment {
            return repository.ErrConflict
        }
        i.Status, i.PaymentMethod, i.Amount, i.PaidAt = model.InvoicePaid, method, amount, &at
        return nil
    })
}

func (m memInvoices) ConfirmTx(_ context.Context, _ *sql.Tx, id uint64, at time.Time) error {
    return m.update(id, func(i *model.Invoice) error {
        if i.Status != model.InvoicePaid && i.Status != model.InvoicePending {
            return repository.ErrConflict
        }
        i.Status, i.ConfirmedAt = model.InvoiceConfirmed, &at
        return nil
    })
}

func (m memInvoices) MarkRefundedTx(_ context.Context, _ *sql.Tx, id uint64, at time.Time) error {
    return m.update(id, func(i *model.Invoice) error {
        i.Status, i.RefundedAt = model.InvoiceRefunded, &at
        return nil
    })
}

func (m memInvoices) SetRefundIDTx(_ context.Context, _ *sql.Tx, id uint64, refundID string) error {
    return m.update(id, func(i *model.Invoice) error {
        if i.Status != model.InvoiceRefunded {
            return repository.ErrConflict
        }
        i.RefundID = &refundID
        return nil
    })
}

type memRefunds struct{ db *memDB }

func (m memRefunds) CreateTx(_ context.Context, _ *sql.Tx, rf *model.Refund) error {
    m.db.mu.Lock()
    defer m.db.mu.Unlock()
    rf.ID = m.db.next()
    rf.Status = model.RefundPending
    cp := *rf
    m.db.refunds[rf.ID] = &cp
    return nil
}

func (m memRefunds) GetByID(_ context.Context, id uint64) (*model.Refund, error) {
    m.db.mu.Lock()
    defer m.db.mu.Unlock()
    rf, ok := m.db.refunds[id]
    if !ok {
        return nil, repository.ErrNotFound
    }
    cp := *rf
    return &cp, nil
}

func (m memRefunds) GetByIDForUpdateTx(ctx context.Context, _ *sql.Tx, id uint64) (*model.Refund, error) {
    return m.GetByID(ctx, id)
}

func (m memRefunds) HasActiveTx(_ context.Context, _ *sql.Tx, costID uint64) (bool, error) {
    m.db.mu.Lock()
    defer m.db.mu.Unlock()
    for _, rf := range m.db.refunds {
        if rf.CalculatedCostID == costID && (rf.Status == model.RefundPending || rf.Status == model.RefundApproved) {
            return true, nil
        }
    }
    return false, nil
}

func (m memRefunds) ListByCost(ctx context.Context, costID uint64) ([]model.Refund, error) {
    all, _ := m.List(ctx, "")
    out := []model.Refund{}
    for _, rf := range all {
        if rf.CalculatedCostID == costID {
            out = append(out, rf)
        }
    }
    return out, nil
}

func (m memRefunds) List(_ context.Context, status string) ([]model.Refund, error) {
    m.db.mu.Lock()
    defer m.db.mu.Unlock()
    out := []model.Refund{}
    for _, rf := range m.db.refunds {
        if status == "" || rf.Status == status {
            out = append(out, *rf)
        }
    }
    sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
    return out, nil
}

func (m memRefunds) DecideTx(_ context.Context, _ *sql.Tx, id uint64, status string, notes *string, at time.Time) error {
    if err := m.db.injected("Refunds.DecideTx"); err != nil {
        return err
    }
    m.db.mu.Lock()
    defer m.db.mu.Unlock()
    rf, ok := m.db.refunds[id]
    if !ok {
        return repository.ErrNotFound
    }
    if rf.Status != model.RefundPending {
        return repository.ErrConflict
    }
    rf.Status, rf.AdminNotes, rf.ProcessedAt = status, notes, &at
    return nil
}

func (m memRefunds) RecordGatewayResultTx(_ context.Context, _ *sql.Tx, id uint64, notes, externalID *string) error {
    if err := m.db.injected("Refunds.RecordGatewayResultTx"); err != nil {
        return err
    }
    m.db.mu.Lock()
    defer m.db.mu.Unlock()
    rf, ok := m.db.refunds[id]
    if !ok {
        return repository.ErrNotFound
    }
    if rf.Status != model.RefundApproved {
        return repository.ErrConflict
    }
    rf.AdminNotes = notes
    if externalID != nil {
        rf.ExternalRefundID = externalID
    }
    return nil
}

// fakeGateway records calls and returns canned answers.
type fakeGateway struct {
    mu          sync.Mutex
    checkouts   int
    nextID      string
    intentID    string
    createErr   error
    session     *gateway.Checkout
    refundErr   error
    refunds     []gateway.RefundRequest
    event       *gateway.WebhookEvent
    webhookErr  error
    lastRequest gateway.CheckoutRequest
}

func (g *fakeGateway) Name() string { return "fake" }

func (g *fakeGateway) CreateCheckout(_ context.Context, req gateway.CheckoutRequest) (*gateway.Checkout, error) {
    g.mu.Lock()
    defer g.mu.Unlock()
    g.lastRequest = req
    if g.createErr != nil {
        return nil, g.createErr
    }
    g.checkouts++
    id := g.nextID
    if id == "" {
        id = "cs_test_" + string(rune('0'+g.checkouts))
    }
    return &gateway.Checkout{ID: id, URL: "https://pay.example/" + id, Status: "active", PaymentIntentID: g.intentID}, nil
}

func (g *fakeGateway) GetCheckout(_ context.Context, id string) (*gateway.Checkout, error) {
    g.mu.Lock()
    defer g.mu.Unlock()
    if g.session == nil {
        return &gateway.Checkout{ID: id, Status: "open"}, nil
    }
    s := *g.session
    s.ID = id
    return &s, nil
}

func (g *fakeGateway) Refund(_ context.Context, req gateway.RefundRequest) (*gateway.RefundResult, error) {
    g.mu.Lock()
    defer g.mu.Unlock()
    g.refunds = append(g.refunds, req)
    if g.refundErr != nil {
        return nil, g.refundErr
    }
    return &gateway.RefundResult{ID: "re_1", Status: "succeeded"}, nil
}

func (g *fakeGateway) ParseWebhook(_ []byte, _ http.Header) (*gateway.WebhookEvent, error) {
    if g.webhookErr != nil {
        return nil, g.webhookErr
    }
    if g.event == nil {
        return nil, errors.New("no event")
    }
    return g.event, nil
}

// recorder collects published events.
type recorder struct {
    mu     sync.Mutex
    events []queue.Event
}

func (r *recorder) Publish(_ context.Context, ev queue.Event) error {
    r.mu.Lock()
    defer r.mu.Unlock()
    r.events = append(r.events, ev)
    return nil
}

func (r *recorder) types() []string {
    r.mu.Lock()
    defer r.mu.Unlock()
    out := make([]string, len(r.events))
    for i, ev := range r.events {
        out[i] = ev.Type
    }
    return out
}
