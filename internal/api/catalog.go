package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
)

// Login exchanges credentials for a bearer token.
func (c *Client) Login(ctx context.Context, username, password string) (string, error) {
	body := map[string]string{"username": username, "password": password}
	var resp struct {
		Success bool   `json:"success"`
		Data    string `json:"data"`
		Message string `json:"message"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/api/Authentication/login", authNone, body, &resp); err != nil {
		return "", fmt.Errorf("login: %w", err)
	}
	if !resp.Success || resp.Data == "" {
		msg := resp.Message
		if msg == "" {
			msg = "credentials rejected"
		}
		return "", fmt.Errorf("login: %w: %s", ErrUnauthorized, msg)
	}
	return resp.Data, nil
}

// Register creates a customer account. The caller logs in afterwards.
func (c *Client) Register(ctx context.Context, reg Registration) error {
	if err := c.doJSON(ctx, http.MethodPost, "/api/Authentication/create-khach-hang", authNone, reg, nil); err != nil {
		return fmt.Errorf("register: %w", err)
	}
	return nil
}

// CurrentCustomer returns the customer behind the session token.
func (c *Client) CurrentCustomer(ctx context.Context) (*Customer, error) {
	var customer Customer
	if err := c.doJSON(ctx, http.MethodGet, "/api/KhachHang/get-tt-khach-hang", authRequired, nil, &customer); err != nil {
		return nil, fmt.Errorf("current customer: %w", err)
	}
	if customer.ID == 0 {
		return nil, fmt.Errorf("current customer: %w: no customer id in response", ErrUnauthorized)
	}
	return &customer, nil
}

// CustomerID satisfies the cart's customer resolver.
func (c *Client) CustomerID(ctx context.Context) (int64, error) {
	customer, err := c.CurrentCustomer(ctx)
	if err != nil {
		return 0, err
	}
	return customer.ID, nil
}

func (c *Client) ListDoctors(ctx context.Context) ([]Doctor, error) {
	var doctors []Doctor
	if err := c.doJSON(ctx, http.MethodGet, "/api/BacSi/get-all-bac-si", authOptional, nil, &doctors); err != nil {
		return nil, fmt.Errorf("list doctors: %w", err)
	}
	return doctors, nil
}

func (c *Client) SearchDoctors(ctx context.Context, searchKey string) ([]Doctor, error) {
	path := withQuery("/api/BacSi/search-bac-si", url.Values{"searchKey": []string{searchKey}})
	var doctors []Doctor
	if err := c.doJSON(ctx, http.MethodGet, path, authOptional, nil, &doctors); err != nil {
		return nil, fmt.Errorf("search doctors: %w", err)
	}
	return doctors, nil
}

func (c *Client) GetDoctor(ctx context.Context, id int64) (*Doctor, error) {
	path := withQuery("/api/BacSi/get-bac-si-by-id", idQuery("id", id))
	var doctor Doctor
	if err := c.doJSON(ctx, http.MethodGet, path, authOptional, nil, &doctor); err != nil {
		return nil, fmt.Errorf("get doctor %d: %w", id, err)
	}
	return &doctor, nil
}

func (c *Client) ListDoctorSpecialties(ctx context.Context) ([]DoctorSpecialty, error) {
	var links []DoctorSpecialty
	if err := c.doJSON(ctx, http.MethodGet, "/api/CTBacSi/get-all-ct-bac-si", authOptional, nil, &links); err != nil {
		return nil, fmt.Errorf("list doctor specialties: %w", err)
	}
	return links, nil
}

func (c *Client) ListSpecialties(ctx context.Context) ([]Specialty, error) {
	var specialties []Specialty
	if err := c.doJSON(ctx, http.MethodGet, "/api/ChuyenKhoa/get-all-chuyen-khoa", authOptional, nil, &specialties); err != nil {
		return nil, fmt.Errorf("list specialties: %w", err)
	}
	return specialties, nil
}

func (c *Client) GetService(ctx context.Context, id int64) (*Service, error) {
	path := withQuery("/api/DichVu/get-dich-vu-by-id", idQuery("id", id))
	var service Service
	if err := c.doJSON(ctx, http.MethodGet, path, authOptional, nil, &service); err != nil {
		return nil, fmt.Errorf("get service %d: %w", id, err)
	}
	if service.ID == 0 {
		return nil, fmt.Errorf("get service %d: %w", id, ErrNotFound)
	}
	return &service, nil
}

func (c *Client) ListServices(ctx context.Context) ([]Service, error) {
	var services []Service
	if err := c.doJSON(ctx, http.MethodGet, "/api/DichVu/get-all-dich-vu", authOptional, nil, &services); err != nil {
		return nil, fmt.Errorf("list services: %w", err)
	}
	return services, nil
}

// ListServicesByCategoryAndSpecialty filters services by delivery category and specialty.
func (c *Client) ListServicesByCategoryAndSpecialty(ctx context.Context, category ServiceCategory, specialtyID int64) ([]Service, error) {
	q := url.Values{}
	q.Set("loaiDichVuId", strconv.Itoa(int(category)))
	q.Set("chuyenKhoaId", strconv.FormatInt(specialtyID, 10))
	path := withQuery("/api/DichVu/get-all-dich-vu-theo-loai-theo-chuyen-khoa", q)
	var services []Service
	if err := c.doJSON(ctx, http.MethodGet, path, authOptional, nil, &services); err != nil {
		return nil, fmt.Errorf("list services by category: %w", err)
	}
	return services, nil
}

func (c *Client) SearchServices(ctx context.Context, searchKey string) ([]Service, error) {
	path := withQuery("/api/DichVu/search-dich-vu", url.Values{"searchKey": []string{searchKey}})
	var services []Service
	if err := c.doJSON(ctx, http.MethodGet, path, authOptional, nil, &services); err != nil {
		return nil, fmt.Errorf("search services: %w", err)
	}
	return services, nil
}

// GetServiceRating returns the aggregate rating. A service without reviews
// yields a zero summary.
func (c *Client) GetServiceRating(ctx context.Context, serviceID int64) (RatingSummary, error) {
	path := withQuery("/api/DanhGia/get-sao-danh-gia", idQuery("maDichVu", serviceID))
	var rows []RatingSummary
	if err := c.doJSON(ctx, http.MethodGet, path, authOptional, nil, &rows); err != nil {
		if errors.Is(err, ErrNotFound) {
			return RatingSummary{}, nil
		}
		return RatingSummary{}, fmt.Errorf("get service rating: %w", err)
	}
	if len(rows) == 0 {
		return RatingSummary{}, nil
	}
	return rows[0], nil
}

func (c *Client) ListWorkSchedules(ctx context.Context) ([]WorkSchedule, error) {
	var schedules []WorkSchedule
	if err := c.doJSON(ctx, http.MethodGet, "/api/LichLamViec/get-all-lich-lam-viec", authOptional, nil, &schedules); err != nil {
		return nil, fmt.Errorf("list work schedules: %w", err)
	}
	return schedules, nil
}

func productPaths(t ProductType) (byID, all string, err error) {
	switch t {
	case ProductDrug:
		return "/api/Thuoc/get-thuoc-by-id", "/api/Thuoc/get-all-thuoc", nil
	case ProductDevice:
		return "/api/ThietBiYTe/get-thiet-bi-y-te-by-id", "/api/ThietBiYTe/get-all-thiet-bi-y-te", nil
	default:
		return "", "", fmt.Errorf("unknown product type %q", t)
	}
}

// GetProduct fetches live price and stock for a drug or device.
func (c *Client) GetProduct(ctx context.Context, t ProductType, id int64) (*Product, error) {
	byID, _, err := productPaths(t)
	if err != nil {
		return nil, fmt.Errorf("get product: %w", err)
	}
	var wire productWire
	if err := c.doJSON(ctx, http.MethodGet, withQuery(byID, idQuery("id", id)), authOptional, nil, &wire); err != nil {
		return nil, fmt.Errorf("get %s %d: %w", t, id, err)
	}
	if wire.ID == 0 {
		return nil, fmt.Errorf("get %s %d: %w", t, id, ErrNotFound)
	}
	p := wire.product(t)
	return &p, nil
}

// ListProducts lists every drug or every device.
func (c *Client) ListProducts(ctx context.Context, t ProductType) ([]Product, error) {
	_, all, err := productPaths(t)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	var wires []productWire
	if err := c.doJSON(ctx, http.MethodGet, all, authOptional, nil, &wires); err != nil {
		return nil, fmt.Errorf("list %s: %w", t, err)
	}
	products := make([]Product, 0, len(wires))
	for _, w := range wires {
		products = append(products, w.product(t))
	}
	return products, nil
}
