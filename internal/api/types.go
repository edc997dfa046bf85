package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Money is an amount in whole Vietnamese dong.
type Money int64

func (m *Money) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		*m = 0
		return nil
	}
	raw := string(bytes.Trim(data, `"`))
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fmt.Errorf("money: %w", err)
	}
	if f < 0 {
		return fmt.Errorf("money: negative amount %s", raw)
	}
	*m = Money(math.Round(f))
	return nil
}

// String renders the amount the way the app shows prices, e.g. "1.250.000 đ".
func (m Money) String() string {
	digits := strconv.FormatInt(int64(m), 10)
	neg := strings.HasPrefix(digits, "-")
	digits = strings.TrimPrefix(digits, "-")

	var b strings.Builder
	for i, r := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(r)
	}
	out := b.String() + " đ"
	if neg {
		out = "-" + out
	}
	return out
}

// LocalTimeLayout is the naive local timestamp format the backend expects.
const LocalTimeLayout = "2006-01-02T15:04:05.000"

var localTimeLayouts = []string{
	LocalTimeLayout,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// LocalTime is a wall-clock timestamp without zone. The wall clock is kept in
// the UTC fields of the embedded time and is never converted.
type LocalTime struct {
	time.Time
}

// NewLocalTime captures the wall clock of t, dropping its zone.
func NewLocalTime(t time.Time) LocalTime {
	return LocalTime{Time: time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC)}
}

// ParseLocalTime parses one of the backend's naive timestamp shapes. Inputs
// carrying a zone keep their wall clock.
func ParseLocalTime(s string) (LocalTime, error) {
	s = strings.TrimSpace(s)
	for _, layout := range localTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return LocalTime{Time: t}, nil
		}
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return NewLocalTime(t), nil
	}
	return LocalTime{}, fmt.Errorf("local time: cannot parse %q", s)
}

// In attaches loc to the wall clock.
func (t LocalTime) In(loc *time.Location) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), loc)
}

// DateKey returns the calendar date as YYYY-MM-DD.
func (t LocalTime) DateKey() string {
	return t.Format("2006-01-02")
}

// Clock returns the HH:mm part.
func (t LocalTime) Clock() string {
	return t.Format("15:04")
}

func (t LocalTime) String() string {
	return t.Format(LocalTimeLayout)
}

func (t LocalTime) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.Format(LocalTimeLayout))
}

func (t *LocalTime) UnmarshalJSON(data []byte) error {
	var s *string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("local time: %w", err)
	}
	if s == nil || *s == "" {
		*t = LocalTime{}
		return nil
	}
	parsed, err := ParseLocalTime(*s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// FlexID decodes identifiers the backend sometimes sends as strings.
type FlexID int64

func (id *FlexID) UnmarshalJSON(data []byte) error {
	raw := strings.Trim(string(bytes.TrimSpace(data)), `"`)
	if raw == "" || raw == "null" {
		*id = 0
		return nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return fmt.Errorf("id: %w", err)
	}
	*id = FlexID(n)
	return nil
}

// Doctor is a practitioner record.
type Doctor struct {
	ID    int64  `json:"id"`
	Name  string `json:"tenBacSi"`
	Image string `json:"hinhAnh,omitempty"`
}

// DoctorSpecialty links a doctor to a specialty.
type DoctorSpecialty struct {
	DoctorID    int64 `json:"maBacSi"`
	SpecialtyID int64 `json:"maChuyenKhoa"`
}

// Specialty is a medical specialty.
type Specialty struct {
	ID   int64  `json:"id"`
	Name string `json:"tenChuyenKhoa"`
}

// ServiceCategory tags how a service is delivered.
type ServiceCategory int

const (
	CategoryHomeVisit ServiceCategory = 1
	CategoryOnline    ServiceCategory = 2
)

// RequiresAddress reports whether bookings need a visit address.
func (c ServiceCategory) RequiresAddress() bool {
	return c == CategoryHomeVisit
}

func (c ServiceCategory) String() string {
	switch c {
	case CategoryHomeVisit:
		return "home_visit"
	case CategoryOnline:
		return "online"
	default:
		return "unknown"
	}
}

// Service is a bookable medical service.
type Service struct {
	ID          int64           `json:"id"`
	Name        string          `json:"tenDichVu"`
	Description string          `json:"moTa,omitempty"`
	Price       Money           `json:"gia"`
	Image       string          `json:"hinhAnh,omitempty"`
	SpecialtyID int64           `json:"maChuyenKhoa"`
	Category    ServiceCategory `json:"maLoaiDichVu"`
}

// RatingSummary is the aggregate star rating of a service.
type RatingSummary struct {
	Average float64 `json:"soSaoTBDanhGia"`
	Count   int     `json:"soDanhGia"`
}

// Stars renders the average as full, half and empty stars out of five.
func (r RatingSummary) Stars() string {
	full := int(math.Floor(r.Average))
	if full > 5 {
		full = 5
	}
	if full < 0 {
		full = 0
	}
	half := full < 5 && r.Average-float64(full) >= 0.5
	var b strings.Builder
	b.WriteString(strings.Repeat("★", full))
	n := full
	if half {
		b.WriteString("½")
		n++
	}
	b.WriteString(strings.Repeat("☆", 5-n))
	return b.String()
}

// WorkSchedule marks a doctor as working on a date.
type WorkSchedule struct {
	ID       int64     `json:"id,omitempty"`
	DoctorID int64     `json:"maBacSi"`
	Date     LocalTime `json:"ngay"`
}

// AppointmentStatus is the backend's string-valued appointment state.
type AppointmentStatus string

const (
	StatusUnvisited AppointmentStatus = "Chưa khám"
	StatusVisited   AppointmentStatus = "Đã khám"
	StatusCancelled AppointmentStatus = "Đã hủy"
)

// Appointment is a booked visit. DoctorID is zero for online-only services.
type Appointment struct {
	ID          int64             `json:"id"`
	CustomerID  int64             `json:"maKhachHang,omitempty"`
	DoctorID    int64             `json:"maBacSi"`
	ServiceID   int64             `json:"maDichVu"`
	ScheduledAt LocalTime         `json:"thoiGianDuKien"`
	Status      AppointmentStatus `json:"trangThai"`
	Note        string            `json:"ghiChu"`
	Location    string            `json:"diaDiem"`
}

// CreateAppointmentRequest is the create-lich-hen body.
type CreateAppointmentRequest struct {
	Location    string    `json:"diaDiem"`
	ScheduledAt LocalTime `json:"thoiGianDuKien"`
	DoctorID    int64     `json:"maBacSi"`
	ServiceID   int64     `json:"maDichVu"`
	Note        string    `json:"ghiChu"`
}

// PaymentRecord is a confirmed appointment payment.
type PaymentRecord struct {
	TransactionID FlexID `json:"id"`
	PaymentMethod string `json:"paymentMethod"`
	OrderID       string `json:"orderId"`
}

func (p PaymentRecord) empty() bool {
	return p.TransactionID == 0 && p.PaymentMethod == "" && p.OrderID == ""
}

// Transaction returns the transaction id as text.
func (p PaymentRecord) Transaction() string {
	if p.TransactionID == 0 {
		return ""
	}
	return strconv.FormatInt(int64(p.TransactionID), 10)
}

// Address is a saved delivery or visit address.
type Address struct {
	ID        int64  `json:"id"`
	Text      string `json:"tenDiaChi"`
	IsDefault bool   `json:"macDinh"`
}

// Invoice is a pharmacy order.
type Invoice struct {
	ID          int64     `json:"id"`
	CustomerID  int64     `json:"maKhachHang,omitempty"`
	AddressID   int64     `json:"diaChi,omitempty"`
	Total       Money     `json:"tongTien"`
	PurchasedAt LocalTime `json:"ngayMua"`
	Status      string    `json:"trangThai"`
	Note        string    `json:"ghiChu,omitempty"`
}

// Paid reports the boolean-as-string payment flag.
func (i Invoice) Paid() bool {
	return strings.EqualFold(strings.TrimSpace(i.Status), "true")
}

// CreateInvoiceRequest is the create-hoa-don body.
type CreateInvoiceRequest struct {
	AddressID int64  `json:"diaChi"`
	Note      string `json:"ghiChu"`
	Total     Money  `json:"tongTien"`
}

// ProductType distinguishes drugs from medical devices.
type ProductType string

const (
	ProductDrug   ProductType = "thuoc"
	ProductDevice ProductType = "thietbi"
)

// Valid reports whether t is a known product type.
func (t ProductType) Valid() bool {
	return t == ProductDrug || t == ProductDevice
}

// Product is a drug or a medical device normalised to one shape.
type Product struct {
	ID    int64       `json:"id"`
	Type  ProductType `json:"type"`
	Name  string      `json:"name"`
	Price Money       `json:"donGia"`
	Stock int         `json:"soLuong"`
	Image string      `json:"hinhAnh,omitempty"`
}

type productWire struct {
	ID         int64  `json:"id"`
	DrugName   string `json:"tenThuoc"`
	DeviceName string `json:"tenThietBiYTe"`
	Price      Money  `json:"donGia"`
	Stock      int    `json:"soLuong"`
	Image      string `json:"hinhAnh"`
}

func (w productWire) product(t ProductType) Product {
	name := w.DrugName
	if t == ProductDevice {
		name = w.DeviceName
	}
	return Product{ID: w.ID, Type: t, Name: name, Price: w.Price, Stock: w.Stock, Image: w.Image}
}

// Customer is the signed-in account.
type Customer struct {
	ID   int64  `json:"maKhachHang"`
	Name string `json:"tenKhachHang,omitempty"`
}

// InvoiceItem is one product line of a placed order.
type InvoiceItem struct {
	ProductID int64  `json:"maSanPham"`
	Name      string `json:"tenSanPham"`
	Price     Money  `json:"donGia"`
	Quantity  int    `json:"soLuong"`
	Subtotal  Money  `json:"thanhTien"`
	Image     string `json:"hinhAnh,omitempty"`
}

// ServiceResult is the examination outcome recorded for a visited
// appointment.
type ServiceResult struct {
	ID            int64  `json:"id"`
	AppointmentID int64  `json:"maLichHen"`
	Description   string `json:"moTa"`
}

// Review is a customer's rating of a service, tied to one result.
type Review struct {
	ID        int64     `json:"id"`
	ResultID  int64     `json:"maKetQuaDichVu"`
	Stars     int       `json:"soSaoDanhGia"`
	Content   string    `json:"noiDungDanhGia"`
	Image     string    `json:"hinhAnh,omitempty"`
	CreatedBy int64     `json:"createBy,omitempty"`
	CreatedAt LocalTime `json:"createTimes"`
}

// CreateReviewRequest is the create-danh-gia form.
type CreateReviewRequest struct {
	ResultID int64
	Stars    int
	Content  string
}

// Registration is the create-khach-hang body.
type Registration struct {
	Name     string    `json:"tenKhachHang"`
	Email    string    `json:"email"`
	Password string    `json:"matKhau"`
	Phone    string    `json:"sdt"`
	IDNumber string    `json:"cmnd"`
	Birthday time.Time `json:"ngaySinh"`
	Gender   string    `json:"gioiTinh"`
}
