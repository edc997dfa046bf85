// Package addressbook manages the customer's saved addresses.
package addressbook

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/medcare-vn/medcare-mobile/internal/api"
	"github.com/medcare-vn/medcare-mobile/pkg/logging"
)

var (
	ErrInvalidAddress = errors.New("addressbook: street, ward, district and city are all required")
	ErrNoAddress      = errors.New("addressbook: no saved address")
)

// Compose joins the address parts the way the backend stores them.
func Compose(street, ward, district, city string) (string, error) {
	parts := []string{street, ward, district, city}
	for i, p := range parts {
		parts[i] = strings.TrimSpace(p)
		if parts[i] == "" {
			return "", ErrInvalidAddress
		}
	}
	return strings.Join(parts, ", "), nil
}

// HomeVisitEligible reports whether text lies in the city served by home
// visits.
func HomeVisitEligible(text, city string) bool {
	city = strings.TrimSpace(city)
	return city != "" && strings.Contains(text, city)
}

// Client is the slice of the API client the book uses.
type Client interface {
	ListAddresses(ctx context.Context) ([]api.Address, error)
	GetAddress(ctx context.Context, id int64) (*api.Address, error)
	CreateAddress(ctx context.Context, text string) error
	UpdateAddress(ctx context.Context, addr api.Address) error
	DeleteAddress(ctx context.Context, id int64) error
}

// Book is the customer's address list.
type Book struct {
	client        Client
	homeVisitCity string
	logger        *logging.Logger
}

func NewBook(client Client, homeVisitCity string, logger *logging.Logger) *Book {
	if logger == nil {
		logger = logging.Default()
	}
	return &Book{client: client, homeVisitCity: homeVisitCity, logger: logger}
}

// HomeVisitCity is the city home visits are limited to.
func (b *Book) HomeVisitCity() string {
	return b.homeVisitCity
}

func (b *Book) List(ctx context.Context) ([]api.Address, error) {
	return b.client.ListAddresses(ctx)
}

func (b *Book) Get(ctx context.Context, id int64) (*api.Address, error) {
	return b.client.GetAddress(ctx, id)
}

// ForHomeVisit lists the addresses a home visit may be booked at.
func (b *Book) ForHomeVisit(ctx context.Context) ([]api.Address, error) {
	all, err := b.client.ListAddresses(ctx)
	if err != nil {
		return nil, err
	}
	var out []api.Address
	for _, a := range all {
		if HomeVisitEligible(a.Text, b.homeVisitCity) {
			out = append(out, a)
		}
	}
	return out, nil
}

// Default returns the address flagged as default, or the first one.
func (b *Book) Default(ctx context.Context) (*api.Address, error) {
	all, err := b.client.ListAddresses(ctx)
	if err != nil {
		return nil, err
	}
	if len(all) == 0 {
		return nil, ErrNoAddress
	}
	for i := range all {
		if all[i].IsDefault {
			return &all[i], nil
		}
	}
	return &all[0], nil
}

// Create saves a new address composed from its parts.
func (b *Book) Create(ctx context.Context, street, ward, district, city string) (string, error) {
	text, err := Compose(street, ward, district, city)
	if err != nil {
		return "", err
	}
	if err := b.client.CreateAddress(ctx, text); err != nil {
		return "", fmt.Errorf("addressbook: create: %w", err)
	}
	b.logger.Info("address saved", "home_visit", HomeVisitEligible(text, b.homeVisitCity))
	return text, nil
}

// Update replaces the text of address id, keeping its default flag.
func (b *Book) Update(ctx context.Context, id int64, street, ward, district, city string) error {
	text, err := Compose(street, ward, district, city)
	if err != nil {
		return err
	}
	current, err := b.client.GetAddress(ctx, id)
	if err != nil {
		return fmt.Errorf("addressbook: update %d: %w", id, err)
	}
	current.Text = text
	if err := b.client.UpdateAddress(ctx, *current); err != nil {
		return fmt.Errorf("addressbook: update %d: %w", id, err)
	}
	return nil
}

func (b *Book) Delete(ctx context.Context, id int64) error {
	if err := b.client.DeleteAddress(ctx, id); err != nil {
		return fmt.Errorf("addressbook: delete %d: %w", id, err)
	}
	return nil
}
