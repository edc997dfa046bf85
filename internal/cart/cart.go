// Package cart keeps each customer's shopping cart in local storage.
package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/medcare-vn/medcare-mobile/internal/api"
	"github.com/medcare-vn/medcare-mobile/internal/kvstore"
	"github.com/medcare-vn/medcare-mobile/internal/observability/metrics"
	"github.com/medcare-vn/medcare-mobile/pkg/logging"
)

var (
	ErrInvalidQuantity = errors.New("cart: quantity must be at least 1")
	ErrLineNotFound    = errors.New("cart: line not found")
	ErrInvalidProduct  = errors.New("cart: invalid product")

	// ErrSessionExpired means the customer id could not be resolved. No cart
	// operation runs without one.
	ErrSessionExpired = errors.New("cart: session expired")
	// ErrExceedsStock is matched by *CapacityError.
	ErrExceedsStock = errors.New("cart: quantity exceeds stock")
)

// CapacityError explains a rejected add.
type CapacityError struct {
	ProductID int64
	Type      api.ProductType
	Name      string
	Stock     int
	InCart    int
	Requested int
}

func (e *CapacityError) Error() string {
	if e.InCart > 0 {
		return fmt.Sprintf("cart: only %d of %q in stock, %d already in cart, cannot add %d more", e.Stock, e.Name, e.InCart, e.Requested)
	}
	return fmt.Sprintf("cart: only %d of %q in stock, cannot add %d", e.Stock, e.Name, e.Requested)
}

func (e *CapacityError) Is(target error) bool {
	return target == ErrExceedsStock
}

// Line is one cart row with the product snapshot taken when it was added.
type Line struct {
	ProductID int64           `json:"id"`
	Type      api.ProductType `json:"type"`
	Quantity  int             `json:"quantity"`
	Name      string          `json:"name"`
	Price     api.Money       `json:"donGia"`
	Image     string          `json:"hinhAnh,omitempty"`
	Stock     int             `json:"soLuong"`
}

// Subtotal is price times quantity.
func (l Line) Subtotal() api.Money {
	return l.Price * api.Money(l.Quantity)
}

// Total sums price times quantity over lines.
func Total(lines []Line) api.Money {
	var sum api.Money
	for _, l := range lines {
		sum += l.Subtotal()
	}
	return sum
}

// CustomerResolver yields the signed-in customer's id.
type CustomerResolver interface {
	CustomerID(ctx context.Context) (int64, error)
}

// Store is the per-customer cart.
type Store struct {
	kv        kvstore.Store
	customers CustomerResolver
	metrics   *metrics.CartMetrics
	logger    *logging.Logger
	mu        sync.Mutex
}

// NewStore builds a cart store. m may be nil.
func NewStore(kv kvstore.Store, customers CustomerResolver, m *metrics.CartMetrics, logger *logging.Logger) *Store {
	if kv == nil || customers == nil {
		panic("cart: kv store and customer resolver required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Store{kv: kv, customers: customers, metrics: m, logger: logger}
}

// Key returns the storage key of a customer's cart.
func Key(customerID int64) string {
	return fmt.Sprintf("cart_%d", customerID)
}

func (s *Store) key(ctx context.Context) (string, error) {
	id, err := s.customers.CustomerID(ctx)
	if err != nil {
		s.metrics.ObserveRejection("session_expired")
		return "", fmt.Errorf("%w: %w", ErrSessionExpired, err)
	}
	if id == 0 {
		s.metrics.ObserveRejection("session_expired")
		return "", ErrSessionExpired
	}
	return Key(id), nil
}

func (s *Store) load(ctx context.Context, key string) ([]Line, error) {
	raw, err := s.kv.Get(ctx, key)
	if errors.Is(err, kvstore.ErrNotFound) {
		return []Line{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cart: load: %w", err)
	}
	var lines []Line
	if err := json.Unmarshal(raw, &lines); err != nil {
		return nil, fmt.Errorf("cart: decode: %w", err)
	}
	return lines, nil
}

func (s *Store) save(ctx context.Context, key string, lines []Line) error {
	raw, err := json.Marshal(lines)
	if err != nil {
		return fmt.Errorf("cart: encode: %w", err)
	}
	if err := s.kv.Set(ctx, key, raw); err != nil {
		return fmt.Errorf("cart: save: %w", err)
	}
	return nil
}

func find(lines []Line, id int64, t api.ProductType) int {
	for i, l := range lines {
		if l.ProductID == id && l.Type == t {
			return i
		}
	}
	return -1
}

// AddOrMerge adds qty of p. An existing (id, type) line grows by qty; the
// result may not exceed p.Stock. On rejection the stored cart is unchanged.
func (s *Store) AddOrMerge(ctx context.Context, p api.Product, qty int) (Line, error) {
	if qty < 1 {
		return Line{}, ErrInvalidQuantity
	}
	if p.ID == 0 || !p.Type.Valid() {
		return Line{}, fmt.Errorf("%w: id=%d type=%q", ErrInvalidProduct, p.ID, p.Type)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key, err := s.key(ctx)
	if err != nil {
		return Line{}, err
	}
	lines, err := s.load(ctx, key)
	if err != nil {
		return Line{}, err
	}

	inCart := 0
	idx := find(lines, p.ID, p.Type)
	if idx >= 0 {
		inCart = lines[idx].Quantity
	}
	if inCart+qty > p.Stock {
		s.metrics.ObserveRejection("exceeds_stock")
		return Line{}, &CapacityError{
			ProductID: p.ID, Type: p.Type, Name: p.Name,
			Stock: p.Stock, InCart: inCart, Requested: qty,
		}
	}

	line := Line{
		ProductID: p.ID,
		Type:      p.Type,
		Quantity:  inCart + qty,
		Name:      p.Name,
		Price:     p.Price,
		Image:     p.Image,
		Stock:     p.Stock,
	}
	if idx >= 0 {
		lines[idx] = line
	} else {
		lines = append(lines, line)
	}
	if err := s.save(ctx, key, lines); err != nil {
		return Line{}, err
	}
	s.logger.Info("cart line added", "product_id", p.ID, "type", p.Type, "quantity", line.Quantity)
	return line, nil
}

// SetQuantity sets a line's quantity clamped to [1, stock snapshot]. A line
// whose snapshot is sold out is removed and a *CapacityError returned.
func (s *Store) SetQuantity(ctx context.Context, id int64, t api.ProductType, qty int) (Line, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key, err := s.key(ctx)
	if err != nil {
		return Line{}, err
	}
	lines, err := s.load(ctx, key)
	if err != nil {
		return Line{}, err
	}
	idx := find(lines, id, t)
	if idx < 0 {
		return Line{}, fmt.Errorf("%w: %s %d", ErrLineNotFound, t, id)
	}
	line := lines[idx]
	if line.Stock < 1 {
		lines = append(lines[:idx], lines[idx+1:]...)
		if err := s.save(ctx, key, lines); err != nil {
			return Line{}, err
		}
		s.metrics.ObserveRejection("exceeds_stock")
		s.logger.Info("sold out cart line removed", "product_id", id, "type", t)
		return Line{}, &CapacityError{ProductID: id, Type: t, Name: line.Name, Requested: qty}
	}
	lines[idx].Quantity = clamp(qty, line.Stock)
	if err := s.save(ctx, key, lines); err != nil {
		return Line{}, err
	}
	return lines[idx], nil
}

// clamp bounds qty to [1, stock]; stock must be at least 1.
func clamp(qty, stock int) int {
	return max(1, min(qty, stock))
}

// Remove drops the (id, type) line. Missing lines are ignored.
func (s *Store) Remove(ctx context.Context, id int64, t api.ProductType) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key, err := s.key(ctx)
	if err != nil {
		return err
	}
	lines, err := s.load(ctx, key)
	if err != nil {
		return err
	}
	idx := find(lines, id, t)
	if idx < 0 {
		return nil
	}
	lines = append(lines[:idx], lines[idx+1:]...)
	return s.save(ctx, key, lines)
}

// Clear deletes the customer's whole cart record.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key, err := s.key(ctx)
	if err != nil {
		return err
	}
	if err := s.kv.Delete(ctx, key); err != nil {
		return fmt.Errorf("cart: clear: %w", err)
	}
	s.logger.Info("cart cleared")
	return nil
}

// Items returns the current lines.
func (s *Store) Items(ctx context.Context) ([]Line, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key, err := s.key(ctx)
	if err != nil {
		return nil, err
	}
	return s.load(ctx, key)
}

// Total recomputes the cart total from storage.
func (s *Store) Total(ctx context.Context) (api.Money, error) {
	lines, err := s.Items(ctx)
	if err != nil {
		return 0, err
	}
	return Total(lines), nil
}
