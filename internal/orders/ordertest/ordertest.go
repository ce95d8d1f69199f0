// Package ordertest provides in-memory implementations of the order
// collaborators for tests.
package ordertest

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"blazestride/internal/models"
	"blazestride/internal/notify"
	"blazestride/internal/orders"
)

/* =========================
   STORE
========================= */

type Store struct {
	mu     sync.Mutex
	orders map[primitive.ObjectID]models.Order

	InsertErr error
	DeleteErr error
	Deleted   []primitive.ObjectID
}

func NewStore() *Store {
	return &Store{orders: map[primitive.ObjectID]models.Order{}}
}

func (s *Store) Insert(ctx context.Context, order *models.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.InsertErr != nil {
		return s.InsertErr
	}
	if order.ID.IsZero() {
		order.ID = primitive.NewObjectID()
	}
	s.orders[order.ID] = cloneOrder(*order)
	return nil
}

func (s *Store) Delete(ctx context.Context, id primitive.ObjectID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.DeleteErr != nil {
		return s.DeleteErr
	}
	if _, ok := s.orders[id]; !ok {
		return orders.ErrNotFound
	}
	delete(s.orders, id)
	s.Deleted = append(s.Deleted, id)
	return nil
}

func (s *Store) FindByID(ctx context.Context, id primitive.ObjectID) (models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.orders[id]
	if !ok {
		return models.Order{}, orders.ErrNotFound
	}
	return cloneOrder(order), nil
}

func (s *Store) UpdateStatus(ctx context.Context, id primitive.ObjectID, status models.OrderStatus, at time.Time) (models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.orders[id]
	if !ok {
		return models.Order{}, orders.ErrNotFound
	}
	order.OrderStatus = status
	order.UpdatedAt = at
	s.orders[id] = order
	return cloneOrder(order), nil
}

func (s *Store) ListByUser(ctx context.Context, userID primitive.ObjectID) ([]models.Order, error) {
	return s.filter(func(o models.Order) bool { return o.User == userID }), nil
}

func (s *Store) List(ctx context.Context, filter orders.ListFilter) ([]models.Order, int64, error) {
	all := s.filter(func(o models.Order) bool {
		if filter.Status != "" && o.OrderStatus != filter.Status {
			return false
		}
		if !filter.User.IsZero() && o.User != filter.User {
			return false
		}
		return true
	})

	total := int64(len(all))
	start := (filter.Page - 1) * filter.Limit
	if start >= total {
		return []models.Order{}, total, nil
	}
	end := start + filter.Limit
	if end > total {
		end = total
	}
	return all[start:end], total, nil
}

// Len returns the number of stored orders.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.orders)
}

// Put stores order as is, assigning an id when missing.
func (s *Store) Put(order models.Order) models.Order {
	_ = s.Insert(context.Background(), &order)
	return order
}

func (s *Store) filter(keep func(models.Order) bool) []models.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Order, 0, len(s.orders))
	for _, o := range s.orders {
		if keep(o) {
			out = append(out, cloneOrder(o))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID.Hex() > out[j].ID.Hex()
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

func cloneOrder(o models.Order) models.Order {
	o.OrderItems = append([]models.OrderItem(nil), o.OrderItems...)
	return o
}

/* =========================
   CATALOG
========================= */

type Catalog struct {
	mu       sync.Mutex
	products map[primitive.ObjectID]models.Product
	held     map[hold]int

	FindErr      map[primitive.ObjectID]error
	DecrementErr map[primitive.ObjectID]error
	// LostAck makes DecrementStock apply the write and then fail, like a
	// store whose acknowledgement never arrives.
	LostAck    map[primitive.ObjectID]error
	RestoreErr error

	// BeforeDecrement runs outside the lock before each decrement.
	BeforeDecrement func(id primitive.ObjectID)

	Restored []primitive.ObjectID
}

type hold struct {
	product primitive.ObjectID
	order   primitive.ObjectID
	line    int
}

func NewCatalog(products ...models.Product) *Catalog {
	c := &Catalog{
		products:     map[primitive.ObjectID]models.Product{},
		held:         map[hold]int{},
		FindErr:      map[primitive.ObjectID]error{},
		DecrementErr: map[primitive.ObjectID]error{},
		LostAck:      map[primitive.ObjectID]error{},
	}
	for _, p := range products {
		c.products[p.ID] = p
	}
	return c
}

func (c *Catalog) FindProduct(ctx context.Context, id primitive.ObjectID) (models.Product, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.FindErr[id]; err != nil {
		return models.Product{}, err
	}
	p, ok := c.products[id]
	if !ok {
		return models.Product{}, orders.ErrNotFound
	}
	return p, nil
}

func (c *Catalog) DecrementStock(ctx context.Context, id primitive.ObjectID, res models.StockReservation) (bool, error) {
	if c.BeforeDecrement != nil {
		c.BeforeDecrement(id)
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.DecrementErr[id]; err != nil {
		return false, err
	}
	key := hold{product: id, order: res.Order, line: res.Line}
	p, ok := c.products[id]
	if _, dup := c.held[key]; !ok || dup || p.Stock < res.Quantity {
		return false, nil
	}
	p.Stock -= res.Quantity
	c.products[id] = p
	c.held[key] = res.Quantity

	if err := c.LostAck[id]; err != nil {
		return false, err
	}
	return true, nil
}

func (c *Catalog) RestoreStock(ctx context.Context, id primitive.ObjectID, res models.StockReservation) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.RestoreErr != nil {
		return false, c.RestoreErr
	}
	key := hold{product: id, order: res.Order, line: res.Line}
	qty, held := c.held[key]
	p, ok := c.products[id]
	if !ok || !held {
		return false, nil
	}
	delete(c.held, key)
	p.Stock += qty
	c.products[id] = p
	c.Restored = append(c.Restored, id)
	return true, nil
}

func (c *Catalog) ReleaseReservations(ctx context.Context, orderID primitive.ObjectID, products []primitive.ObjectID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.held {
		if key.order == orderID {
			delete(c.held, key)
		}
	}
	return nil
}

// Held counts the reservations recorded on id.
func (c *Catalog) Held(id primitive.ObjectID) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for key := range c.held {
		if key.product == id {
			n++
		}
	}
	return n
}

// SetStock overwrites the stock of a known product.
func (c *Catalog) SetStock(id primitive.ObjectID, stock int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if p, ok := c.products[id]; ok {
		p.Stock = stock
		c.products[id] = p
	}
}

// Stock returns the current stock of id, or -1 when it is unknown.
func (c *Catalog) Stock(id primitive.ObjectID) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.products[id]
	if !ok {
		return -1
	}
	return p.Stock
}

// Remove deletes a product, simulating a concurrent catalog delete.
func (c *Catalog) Remove(id primitive.ObjectID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.products, id)
}

/* =========================
   USERS
========================= */

type Users struct {
	mu       sync.Mutex
	contacts map[primitive.ObjectID]orders.Contact
	Err      error
}

func NewUsers() *Users {
	return &Users{contacts: map[primitive.ObjectID]orders.Contact{}}
}

func (u *Users) Add(id primitive.ObjectID, contact orders.Contact) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.contacts[id] = contact
}

func (u *Users) ResolveUserContact(ctx context.Context, userID primitive.ObjectID) (orders.Contact, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.Err != nil {
		return orders.Contact{}, u.Err
	}
	c, ok := u.contacts[userID]
	if !ok {
		return orders.Contact{}, orders.ErrNotFound
	}
	return c, nil
}

/* =========================
   NOTIFIER
========================= */

// Outbox records sent messages and can be told to fail.
type Outbox struct {
	mu   sync.Mutex
	sent []Sent
	Err  error
}

type Sent struct {
	To      string
	Subject string
	HTML    string
	Files   []string
}

func (o *Outbox) Send(ctx context.Context, msg notify.Message) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.Err != nil {
		return o.Err
	}
	files := make([]string, 0, len(msg.Attachments))
	for _, a := range msg.Attachments {
		files = append(files, a.Filename)
	}
	o.sent = append(o.sent, Sent{To: msg.To, Subject: msg.Subject, HTML: msg.HTML, Files: files})
	return nil
}

func (o *Outbox) Sent() []Sent {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]Sent(nil), o.sent...)
}
