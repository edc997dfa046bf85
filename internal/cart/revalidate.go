package cart

import (
	"context"
	"errors"
	"fmt"

	"github.com/medcare-vn/medcare-mobile/internal/api"
)

// Catalog reads live product data.
type Catalog interface {
	GetProduct(ctx context.Context, t api.ProductType, id int64) (*api.Product, error)
}

// Discrepancy is a cart line whose snapshot no longer matches the catalog.
type Discrepancy struct {
	Line      Line
	LivePrice api.Money
	LiveStock int
	Missing   bool
}

// PriceChanged reports whether the live price differs from the snapshot.
func (d Discrepancy) PriceChanged() bool {
	return !d.Missing && d.LivePrice != d.Line.Price
}

// OutOfStock reports whether the live stock cannot cover the line.
func (d Discrepancy) OutOfStock() bool {
	return d.Missing || d.LiveStock < d.Line.Quantity
}

func (d Discrepancy) String() string {
	switch {
	case d.Missing:
		return fmt.Sprintf("%s %q is no longer sold", d.Line.Type, d.Line.Name)
	case d.OutOfStock() && d.PriceChanged():
		return fmt.Sprintf("%q: only %d left (wanted %d), price now %s (was %s)", d.Line.Name, d.LiveStock, d.Line.Quantity, d.LivePrice, d.Line.Price)
	case d.OutOfStock():
		return fmt.Sprintf("%q: only %d left (wanted %d)", d.Line.Name, d.LiveStock, d.Line.Quantity)
	default:
		return fmt.Sprintf("%q: price now %s (was %s)", d.Line.Name, d.LivePrice, d.Line.Price)
	}
}

// Revalidate compares every line with the live catalog and refreshes the
// stored snapshots. A quantity above the live stock is lowered to it; lines
// that are sold out or no longer sold are dropped. Every such change is
// reported as a discrepancy. It returns the lines kept.
func (s *Store) Revalidate(ctx context.Context, catalog Catalog) ([]Line, []Discrepancy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key, err := s.key(ctx)
	if err != nil {
		return nil, nil, err
	}
	lines, err := s.load(ctx, key)
	if err != nil {
		return nil, nil, err
	}

	var found []Discrepancy
	kept := make([]Line, 0, len(lines))
	for _, line := range lines {
		live, err := catalog.GetProduct(ctx, line.Type, line.ProductID)
		if errors.Is(err, api.ErrNotFound) {
			found = append(found, Discrepancy{Line: line, Missing: true})
			continue
		}
		if err != nil {
			return nil, nil, fmt.Errorf("cart: revalidate %s %d: %w", line.Type, line.ProductID, err)
		}
		d := Discrepancy{Line: line, LivePrice: live.Price, LiveStock: live.Stock}
		if d.PriceChanged() || d.OutOfStock() {
			found = append(found, d)
		}
		if live.Stock < 1 {
			continue
		}
		line.Price = live.Price
		line.Stock = live.Stock
		line.Quantity = min(line.Quantity, live.Stock)
		if live.Name != "" {
			line.Name = live.Name
		}
		kept = append(kept, line)
	}
	if err := s.save(ctx, key, kept); err != nil {
		return nil, nil, err
	}
	if len(found) > 0 {
		s.logger.Warn("cart snapshot is stale", "lines", len(kept), "dropped", len(lines)-len(kept), "discrepancies", len(found))
	}
	return kept, found, nil
}
