package services

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"repair_shop_backend/internal/models"
	"repair_shop_backend/internal/notifications"
	"repair_shop_backend/internal/repositories"
	"repair_shop_backend/internal/ticketcode"
	"repair_shop_backend/pkg/utils"

	"github.com/shopspring/decimal"
)

// memData is everything the fakes persist. It is copied wholesale for rollback.
type memData struct {
	tickets   map[int64]models.Ticket
	equipment map[int64][]models.Equipment
	parts     map[int64]models.Part
	usages    map[int64]models.PartUsage
	movements []models.StockMovement
	purchases map[int64]models.Purchase
	clients   map[int64]models.Client
	users     map[int64]models.User
	sequences map[string]int64
	refresh   map[int64]models.RefreshToken
	nextID    int64
}

func (d *memData) clone() *memData {
	c := &memData{
		tickets:   make(map[int64]models.Ticket, len(d.tickets)),
		equipment: make(map[int64][]models.Equipment, len(d.equipment)),
		parts:     make(map[int64]models.Part, len(d.parts)),
		usages:    make(map[int64]models.PartUsage, len(d.usages)),
		movements: append([]models.StockMovement(nil), d.movements...),
		purchases: make(map[int64]models.Purchase, len(d.purchases)),
		clients:   make(map[int64]models.Client, len(d.clients)),
		users:     make(map[int64]models.User, len(d.users)),
		sequences: make(map[string]int64, len(d.sequences)),
		refresh:   make(map[int64]models.RefreshToken, len(d.refresh)),
		nextID:    d.nextID,
	}
	for k, v := range d.refresh {
		c.refresh[k] = v
	}
	for k, v := range d.tickets {
		c.tickets[k] = v
	}
	for k, v := range d.equipment {
		c.equipment[k] = append([]models.Equipment(nil), v...)
	}
	for k, v := range d.parts {
		c.parts[k] = v
	}
	for k, v := range d.usages {
		c.usages[k] = v
	}
	for k, v := range d.purchases {
		v.Lines = append([]models.PurchaseLineItem(nil), v.Lines...)
		c.purchases[k] = v
	}
	for k, v := range d.clients {
		c.clients[k] = v
	}
	for k, v := range d.users {
		c.users[k] = v
	}
	for k, v := range d.sequences {
		c.sequences[k] = v
	}
	return c
}

// memStore backs every fake repository. Transactions are serialised by txMu,
// which gives the same outcome as row locks held until commit.
type memStore struct {
	txMu sync.Mutex
	mu   sync.Mutex
	data *memData

	// failSetQuantity makes SetQuantity fail for the given part.
	failSetQuantity map[int64]error
}

func newMemStore() *memStore {
	return &memStore{
		data: &memData{
			tickets:   map[int64]models.Ticket{},
			equipment: map[int64][]models.Equipment{},
			parts:     map[int64]models.Part{},
			usages:    map[int64]models.PartUsage{},
			purchases: map[int64]models.Purchase{},
			clients:   map[int64]models.Client{},
			users:     map[int64]models.User{},
			sequences: map[string]int64{},
			refresh:   map[int64]models.RefreshToken{},
		},
		failSetQuantity: map[int64]error{},
	}
}

func (s *memStore) id() int64 {
	s.data.nextID++
	return s.data.nextID
}

func (s *memStore) snapshot() *memData {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.clone()
}

func (s *memStore) restore(d *memData) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = d
}

// --- transactor ---

type memTransactor struct{ store *memStore }

func (t *memTransactor) WithinTx(ctx context.Context, fn func(tx repositories.SQLExecutor) error) error {
	t.store.txMu.Lock()
	defer t.store.txMu.Unlock()
	before := t.store.snapshot()
	if err := fn(nil); err != nil {
		t.store.restore(before)
		return err
	}
	return nil
}

func (t *memTransactor) Savepoint(ctx context.Context, tx repositories.SQLExecutor, name string, fn func() error) error {
	before := t.store.snapshot()
	if err := fn(); err != nil {
		t.store.restore(before)
		return err
	}
	return nil
}

// --- tickets ---

type memTicketRepo struct{ s *memStore }

func (r *memTicketRepo) Create(ctx context.Context, _ repositories.SQLExecutor, t *models.Ticket) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.data.tickets {
		if existing.Code == t.Code {
			return repositories.ErrDuplicateKey
		}
	}
	t.ID = r.s.id()
	t.CreatedAt = time.Now().UTC()
	t.UpdatedAt = t.CreatedAt
	eq := make([]models.Equipment, len(t.Equipment))
	for i, e := range t.Equipment {
		e.ID = r.s.id()
		e.TicketID = t.ID
		eq[i] = e
	}
	t.Equipment = eq
	r.s.data.equipment[t.ID] = eq
	stored := *t
	stored.Equipment, stored.Parts = nil, nil
	r.s.data.tickets[t.ID] = stored
	return nil
}

func (r *memTicketRepo) GetByID(ctx context.Context, _ repositories.SQLExecutor, id int64) (*models.Ticket, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.data.tickets[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return &t, nil
}

func (r *memTicketRepo) GetByIDForUpdate(ctx context.Context, tx repositories.SQLExecutor, id int64) (*models.Ticket, error) {
	return r.GetByID(ctx, tx, id)
}

func (r *memTicketRepo) GetByCode(ctx context.Context, _ repositories.SQLExecutor, code string) (*models.Ticket, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, t := range r.s.data.tickets {
		if t.Code == code {
			return &t, nil
		}
	}
	return nil, repositories.ErrNotFound
}

func (r *memTicketRepo) ExistsByCode(ctx context.Context, tx repositories.SQLExecutor, code string) (bool, error) {
	_, err := r.GetByCode(ctx, tx, code)
	if errors.Is(err, repositories.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (r *memTicketRepo) LatestCode(ctx context.Context, _ repositories.SQLExecutor, prefix string, day time.Time) (string, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	head := prefix + "-" + day.Format("20060102") + "-"
	latest := ""
	for _, t := range r.s.data.tickets {
		if !strings.HasPrefix(t.Code, head) {
			continue
		}
		if len(t.Code) > len(latest) || (len(t.Code) == len(latest) && t.Code > latest) {
			latest = t.Code
		}
	}
	return latest, nil
}

func (r *memTicketRepo) Update(ctx context.Context, _ repositories.SQLExecutor, t *models.Ticket) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.data.tickets[t.ID]; !ok {
		return repositories.ErrNotFound
	}
	t.UpdatedAt = time.Now().UTC()
	stored := *t
	stored.Equipment, stored.Parts = nil, nil
	r.s.data.tickets[t.ID] = stored
	return nil
}

func (r *memTicketRepo) List(ctx context.Context, f models.TicketFilters) ([]models.Ticket, int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []models.Ticket{}
	for _, t := range r.s.data.tickets {
		if f.State != nil && t.State != *f.State {
			continue
		}
		if f.ClientID != nil && t.ClientID != *f.ClientID {
			continue
		}
		if f.Active && (t.State == models.StateDelivered || t.State == models.StateCancelled) {
			continue
		}
		if f.Query != nil && !r.matches(t, strings.ToLower(*f.Query)) {
			continue
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, len(out), nil
}

func (r *memTicketRepo) CountActiveByClient(ctx context.Context, _ repositories.SQLExecutor, clientID int64) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	n := 0
	for _, t := range r.s.data.tickets {
		if t.ClientID == clientID && t.State != models.StateDelivered && t.State != models.StateCancelled {
			n++
		}
	}
	return n, nil
}

// matches is called with s.mu held.
func (r *memTicketRepo) matches(t models.Ticket, q string) bool {
	fields := []string{t.Code, t.ReportedFault, r.s.data.clients[t.ClientID].FullName}
	if t.Diagnosis != nil {
		fields = append(fields, *t.Diagnosis)
	}
	for _, e := range r.s.data.equipment[t.ID] {
		fields = append(fields, e.Type)
	}
	for _, f := range fields {
		if strings.Contains(strings.ToLower(f), q) {
			return true
		}
	}
	return false
}

func (r *memTicketRepo) ListEquipment(ctx context.Context, _ repositories.SQLExecutor, ticketID int64) ([]models.Equipment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return append([]models.Equipment{}, r.s.data.equipment[ticketID]...), nil
}

// --- parts ---

type memPartRepo struct{ s *memStore }

func (r *memPartRepo) Create(ctx context.Context, _ repositories.SQLExecutor, p *models.Part) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.data.parts {
		if existing.Code == p.Code {
			return repositories.ErrDuplicateKey
		}
	}
	p.ID = r.s.id()
	r.s.data.parts[p.ID] = *p
	return nil
}

func (r *memPartRepo) GetByID(ctx context.Context, _ repositories.SQLExecutor, id int64) (*models.Part, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.data.parts[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return &p, nil
}

func (r *memPartRepo) GetByIDForUpdate(ctx context.Context, tx repositories.SQLExecutor, id int64) (*models.Part, error) {
	return r.GetByID(ctx, tx, id)
}

func (r *memPartRepo) Update(ctx context.Context, _ repositories.SQLExecutor, p *models.Part) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	old, ok := r.s.data.parts[p.ID]
	if !ok {
		return repositories.ErrNotFound
	}
	p.Quantity = old.Quantity
	r.s.data.parts[p.ID] = *p
	return nil
}

func (r *memPartRepo) SetQuantity(ctx context.Context, _ repositories.SQLExecutor, id int64, quantity int) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.failSetQuantity[id]; err != nil {
		return err
	}
	p, ok := r.s.data.parts[id]
	if !ok {
		return repositories.ErrNotFound
	}
	if quantity < 0 {
		return repositories.ErrCheckViolation
	}
	p.Quantity = quantity
	r.s.data.parts[id] = p
	return nil
}

func (r *memPartRepo) UpdateUnitCost(ctx context.Context, _ repositories.SQLExecutor, id int64, cost decimal.Decimal) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.data.parts[id]
	if !ok {
		return repositories.ErrNotFound
	}
	p.UnitCost = cost
	r.s.data.parts[id] = p
	return nil
}

func (r *memPartRepo) filter(keep func(models.Part) bool) []models.Part {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []models.Part{}
	for _, p := range r.s.data.parts {
		if keep(p) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *memPartRepo) List(ctx context.Context, f models.PartFilters) ([]models.Part, int, error) {
	out := r.filter(func(p models.Part) bool {
		if f.ActiveOnly && !p.IsActive {
			return false
		}
		return f.Search == nil || strings.Contains(strings.ToLower(p.Name), strings.ToLower(*f.Search))
	})
	return out, len(out), nil
}

func (r *memPartRepo) ListLowStock(ctx context.Context) ([]models.Part, error) {
	return r.filter(func(p models.Part) bool { return p.IsActive && p.IsLowStock() }), nil
}

func (r *memPartRepo) ListOutOfStock(ctx context.Context) ([]models.Part, error) {
	return r.filter(func(p models.Part) bool { return p.IsActive && p.Quantity == 0 }), nil
}

// --- usages ---

type memUsageRepo struct{ s *memStore }

func (r *memUsageRepo) Create(ctx context.Context, _ repositories.SQLExecutor, u *models.PartUsage) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u.ID = r.s.id()
	r.s.data.usages[u.ID] = *u
	return nil
}

func (r *memUsageRepo) GetByID(ctx context.Context, _ repositories.SQLExecutor, id int64) (*models.PartUsage, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.data.usages[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return &u, nil
}

func (r *memUsageRepo) ListByTicket(ctx context.Context, _ repositories.SQLExecutor, ticketID int64) ([]models.PartUsage, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []models.PartUsage{}
	for _, u := range r.s.data.usages {
		if u.TicketID == ticketID {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].PartID != out[j].PartID {
			return out[i].PartID < out[j].PartID
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r *memUsageRepo) Update(ctx context.Context, _ repositories.SQLExecutor, u *models.PartUsage) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.data.usages[u.ID]; !ok {
		return repositories.ErrNotFound
	}
	r.s.data.usages[u.ID] = *u
	return nil
}

func (r *memUsageRepo) Delete(ctx context.Context, _ repositories.SQLExecutor, id int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.data.usages[id]; !ok {
		return repositories.ErrNotFound
	}
	delete(r.s.data.usages, id)
	return nil
}

// --- movements ---

type memMovementRepo struct{ s *memStore }

func (r *memMovementRepo) Create(ctx context.Context, _ repositories.SQLExecutor, m *models.StockMovement) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m.ID = r.s.id()
	m.CreatedAt = time.Now().UTC()
	r.s.data.movements = append(r.s.data.movements, *m)
	return nil
}

func (r *memMovementRepo) List(ctx context.Context, f models.MovementFilters) ([]models.StockMovement, int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []models.StockMovement{}
	for _, m := range r.s.data.movements {
		if f.PartID != nil && m.PartID != *f.PartID {
			continue
		}
		if f.TicketID != nil && (m.TicketID == nil || *m.TicketID != *f.TicketID) {
			continue
		}
		if f.Kind != nil && m.Kind != *f.Kind {
			continue
		}
		out = append(out, m)
	}
	return out, len(out), nil
}

// --- purchases ---

type memPurchaseRepo struct{ s *memStore }

func (r *memPurchaseRepo) Create(ctx context.Context, _ repositories.SQLExecutor, p *models.Purchase) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p.ID = r.s.id()
	for i := range p.Lines {
		p.Lines[i].ID = r.s.id()
		p.Lines[i].PurchaseID = p.ID
	}
	stored := *p
	stored.Lines = append([]models.PurchaseLineItem(nil), p.Lines...)
	r.s.data.purchases[p.ID] = stored
	return nil
}

func (r *memPurchaseRepo) GetByID(ctx context.Context, _ repositories.SQLExecutor, id int64) (*models.Purchase, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.data.purchases[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	p.Lines = append([]models.PurchaseLineItem(nil), p.Lines...)
	sort.Slice(p.Lines, func(i, j int) bool { return p.Lines[i].PartID < p.Lines[j].PartID })
	return &p, nil
}

func (r *memPurchaseRepo) GetByIDForUpdate(ctx context.Context, tx repositories.SQLExecutor, id int64) (*models.Purchase, error) {
	return r.GetByID(ctx, tx, id)
}

func (r *memPurchaseRepo) UpdateState(ctx context.Context, _ repositories.SQLExecutor, p *models.Purchase) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stored, ok := r.s.data.purchases[p.ID]
	if !ok {
		return repositories.ErrNotFound
	}
	stored.State = p.State
	stored.CancellationReason = p.CancellationReason
	stored.ReceivedAt = p.ReceivedAt
	r.s.data.purchases[p.ID] = stored
	return nil
}

func (r *memPurchaseRepo) List(ctx context.Context, f models.PurchaseFilters) ([]models.Purchase, int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []models.Purchase{}
	for _, p := range r.s.data.purchases {
		if f.State == nil || p.State == *f.State {
			out = append(out, p)
		}
	}
	return out, len(out), nil
}

// --- clients and users ---

type memClientRepo struct{ s *memStore }

func (r *memClientRepo) CreateClient(ctx context.Context, _ repositories.SQLExecutor, c *models.Client) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c.ID = r.s.id()
	r.s.data.clients[c.ID] = *c
	return nil
}

func (r *memClientRepo) GetClientByID(ctx context.Context, _ repositories.SQLExecutor, id int64) (*models.Client, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.data.clients[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return &c, nil
}

func (r *memClientRepo) GetClientByIDForUpdate(ctx context.Context, tx repositories.SQLExecutor, id int64) (*models.Client, error) {
	return r.GetClientByID(ctx, tx, id)
}

func (r *memClientRepo) UpdateClient(ctx context.Context, _ repositories.SQLExecutor, c *models.Client) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.data.clients[c.ID]; !ok {
		return repositories.ErrNotFound
	}
	for id, existing := range r.s.data.clients {
		if id != c.ID && c.DocumentNumber != nil && existing.DocumentNumber != nil && *existing.DocumentNumber == *c.DocumentNumber {
			return repositories.ErrDuplicateKey
		}
	}
	c.UpdatedAt = time.Now().UTC()
	r.s.data.clients[c.ID] = *c
	return nil
}

func (r *memClientRepo) SoftDeleteClient(ctx context.Context, _ repositories.SQLExecutor, id int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.data.clients[id]; !ok {
		return repositories.ErrNotFound
	}
	delete(r.s.data.clients, id)
	return nil
}

func (r *memClientRepo) ExistsByID(ctx context.Context, tx repositories.SQLExecutor, id int64) (bool, error) {
	_, err := r.GetClientByID(ctx, tx, id)
	return err == nil, nil
}

func (r *memClientRepo) GetClients(ctx context.Context, f models.ClientFilters) ([]models.Client, int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []models.Client{}
	for _, c := range r.s.data.clients {
		if f.Search != nil && !strings.Contains(strings.ToLower(c.FullName), strings.ToLower(*f.Search)) {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FullName < out[j].FullName })
	return out, len(out), nil
}

type memAuthRepo struct{ s *memStore }

func (r *memAuthRepo) CreateUser(ctx context.Context, _ repositories.SQLExecutor, u *models.User, hash string) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.data.users {
		if existing.Username == u.Username {
			return 0, repositories.ErrDuplicateKey
		}
	}
	u.ID = r.s.id()
	stored := *u
	stored.PasswordHash = hash
	r.s.data.users[u.ID] = stored
	return u.ID, nil
}

func (r *memAuthRepo) FindUserByUsername(ctx context.Context, username string) (*models.User, string, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, u := range r.s.data.users {
		if u.Username == username {
			hash := u.PasswordHash
			u.PasswordHash = ""
			return &u, hash, nil
		}
	}
	return nil, "", repositories.ErrNotFound
}

func (r *memAuthRepo) FindUserByID(ctx context.Context, _ repositories.SQLExecutor, id int64) (*models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.data.users[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	u.PasswordHash = ""
	return &u, nil
}

func (r *memAuthRepo) ListUsersByRole(ctx context.Context, role string, activeOnly bool) ([]models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []models.User{}
	for _, u := range r.s.data.users {
		if u.Role == role && (!activeOnly || u.IsActive) {
			u.PasswordHash = ""
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}

type memRefreshTokenRepo struct{ s *memStore }

func (r *memRefreshTokenRepo) Create(ctx context.Context, _ repositories.SQLExecutor, t *models.RefreshToken) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.data.refresh {
		if existing.TokenHash == t.TokenHash {
			return repositories.ErrDuplicateKey
		}
	}
	t.ID = r.s.id()
	t.CreatedAt = time.Now().UTC()
	r.s.data.refresh[t.ID] = *t
	return nil
}

func (r *memRefreshTokenRepo) GetByHashForUpdate(ctx context.Context, _ repositories.SQLExecutor, hash string) (*models.RefreshToken, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, t := range r.s.data.refresh {
		if t.TokenHash == hash {
			return &t, nil
		}
	}
	return nil, repositories.ErrNotFound
}

func (r *memRefreshTokenRepo) Revoke(ctx context.Context, _ repositories.SQLExecutor, id int64, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.data.refresh[id]
	if !ok {
		return repositories.ErrNotFound
	}
	if t.RevokedAt == nil {
		t.RevokedAt = &at
		r.s.data.refresh[id] = t
	}
	return nil
}

// memCounter is a per-prefix per-day counter kept in the store, so it rolls
// back with the transaction like the Postgres one.
type memCounter struct{ s *memStore }

func (c *memCounter) Next(ctx context.Context, _ repositories.SQLExecutor, prefix string, day time.Time) (int64, error) {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	key := prefix + "|" + day.Format("20060102")
	c.s.data.sequences[key]++
	return c.s.data.sequences[key], nil
}

func (c *memCounter) AdvanceTo(ctx context.Context, _ repositories.SQLExecutor, prefix string, day time.Time, value int64) error {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	key := prefix + "|" + day.Format("20060102")
	if c.s.data.sequences[key] < value {
		c.s.data.sequences[key] = value
	}
	return nil
}

// --- notifier ---

type recordingNotifier struct {
	mu     sync.Mutex
	events []notifications.Event
	err    error
}

func (n *recordingNotifier) Notify(_ context.Context, e notifications.Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, e)
	return n.err
}

func (n *recordingNotifier) kinds() []notifications.EventKind {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]notifications.EventKind, len(n.events))
	for i, e := range n.events {
		out[i] = e.Kind
	}
	return out
}

// --- fixture ---

type fixture struct {
	store     *memStore
	tickets   TicketService
	usages    PartUsageService
	purchases PurchaseService
	parts     PartService
	clients   ClientService
	auth      AuthService
	ledger    StockLedger
	notifier  *recordingNotifier
	ctx       context.Context

	clientID     int64
	technicianID int64
	clerkID      int64
}

func newFixture() *fixture {
	store := newMemStore()
	tx := &memTransactor{store: store}
	ticketRepo := &memTicketRepo{s: store}
	partRepo := &memPartRepo{s: store}
	usageRepo := &memUsageRepo{s: store}
	movementRepo := &memMovementRepo{s: store}
	clientRepo := &memClientRepo{s: store}
	authRepo := &memAuthRepo{s: store}

	ticketCodes, err := ticketcode.NewGenerator(ticketcode.DefaultTicketPrefix, &memCounter{s: store}, ticketRepo.ExistsByCode)
	if err != nil {
		panic(err)
	}
	ticketCodes.WithLatest(ticketRepo.LatestCode)
	purchaseCodes, err := ticketcode.NewGenerator(ticketcode.DefaultPurchasePrefix, &memCounter{s: store}, nil)
	if err != nil {
		panic(err)
	}

	ledger := NewStockLedger(partRepo, movementRepo, nil)
	usages := NewPartUsageService(tx, ticketRepo, partRepo, usageRepo, ledger, nil)
	notifier := &recordingNotifier{}

	f := &fixture{
		store:     store,
		ledger:    ledger,
		usages:    usages,
		tickets:   NewTicketService(tx, ticketRepo, clientRepo, authRepo, usageRepo, usages, ticketCodes, notifier, nil),
		purchases: NewPurchaseService(tx, &memPurchaseRepo{s: store}, partRepo, ledger, purchaseCodes),
		parts:     NewPartService(tx, partRepo, movementRepo, ledger),
		clients:   NewClientService(tx, clientRepo, ticketRepo),
		auth:      NewAuthService(tx, authRepo, &memRefreshTokenRepo{s: store}, time.Hour),
		notifier:  notifier,
	}

	client := &models.Client{FullName: "Ana Pérez"}
	_ = clientRepo.CreateClient(context.Background(), nil, client)
	f.clientID = client.ID

	tech := &models.User{Username: "tech", Role: models.RoleTechnician, IsActive: true}
	_, _ = authRepo.CreateUser(context.Background(), nil, tech, "x")
	f.technicianID = tech.ID

	clerk := &models.User{Username: "front", Role: models.RoleReceptionist, IsActive: true}
	_, _ = authRepo.CreateUser(context.Background(), nil, clerk, "x")
	f.clerkID = clerk.ID
	f.ctx = utils.ContextWithPrincipal(context.Background(), utils.Principal{
		UserID: clerk.ID, Username: clerk.Username, Role: clerk.Role,
	})
	return f
}

func (f *fixture) addPart(code string, qty int, price string) *models.Part {
	p := &models.Part{
		Code:      code,
		Name:      "Part " + code,
		UnitCost:  decimal.RequireFromString(price),
		SalePrice: decimal.RequireFromString(price),
		Quantity:  qty,
		IsActive:  true,
	}
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	p.ID = f.store.id()
	f.store.data.parts[p.ID] = *p
	return p
}

func (f *fixture) quantity(partID int64) int {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	return f.store.data.parts[partID].Quantity
}

func (f *fixture) movements(partID int64) []models.StockMovement {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	out := []models.StockMovement{}
	for _, m := range f.store.data.movements {
		if m.PartID == partID {
			out = append(out, m)
		}
	}
	return out
}

func (f *fixture) usage(id int64) (models.PartUsage, bool) {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	u, ok := f.store.data.usages[id]
	return u, ok
}

func (f *fixture) newTicket() *models.Ticket {
	t, err := f.tickets.CreateTicket(f.ctx, CreateTicketRequest{
		ClientID:      f.clientID,
		ReportedFault: "Does not power on",
		Equipment:     []models.Equipment{{Type: "Laptop"}},
	})
	if err != nil {
		panic(err)
	}
	return t
}

// quoted drives a new ticket to QUOTED with the given labor cost.
func (f *fixture) quoted(labor string) *models.Ticket {
	t := f.newTicket()
	if _, err := f.tickets.AssignTechnician(f.ctx, t.ID, f.technicianID); err != nil {
		panic(err)
	}
	q, err := f.tickets.RecordDiagnosis(f.ctx, t.ID, DiagnosisRequest{
		Diagnosis: "Broken power board",
		LaborCost: decimal.RequireFromString(labor),
	})
	if err != nil {
		panic(err)
	}
	return q
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }
