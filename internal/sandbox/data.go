package sandbox

import (
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/medcare-vn/medcare-mobile/internal/api"
	"github.com/medcare-vn/medcare-mobile/internal/availability"
)

var (
	errNotFound     = errors.New("not found")
	errForbidden    = errors.New("record belongs to another customer")
	errConflict     = errors.New("slot already taken")
	errBadRequest   = errors.New("bad request")
	errOutOfStock   = errors.New("not enough stock")
	errNotPending   = errors.New("already settled")
	errNotUnvisited = errors.New("only unvisited appointments can be cancelled")
	errDuplicate    = errors.New("already exists")
)

type account struct {
	ID       int64
	Name     string
	Username string
	Password string
}

type drug struct {
	ID    int64     `json:"id"`
	Name  string    `json:"tenThuoc"`
	Price api.Money `json:"donGia"`
	Stock int       `json:"soLuong"`
	Image string    `json:"hinhAnh,omitempty"`
}

type device struct {
	ID    int64     `json:"id"`
	Name  string    `json:"tenThietBiYTe"`
	Price api.Money `json:"donGia"`
	Stock int       `json:"soLuong"`
	Image string    `json:"hinhAnh,omitempty"`
}

type addressRow struct {
	api.Address
	customerID int64
}

type invoiceLine struct {
	Type      api.ProductType
	ProductID int64
	Name      string
	Price     api.Money
	Quantity  int
}

type invoiceRow struct {
	api.Invoice
	lines []invoiceLine
}

type resultRow struct {
	api.ServiceResult
	customerID int64
	serviceID  int64
}

type reviewRow struct {
	api.Review
	serviceID int64
	approved  bool
}

// Data is the sandbox's in-memory backend state.
type Data struct {
	mu sync.Mutex

	accounts     []account
	doctors      []api.Doctor
	specialties  []api.Specialty
	links        []api.DoctorSpecialty
	services     []api.Service
	ratings      map[int64]api.RatingSummary
	schedules    []api.WorkSchedule
	drugs        map[int64]*drug
	devices      map[int64]*device
	appointments map[int64]*api.Appointment
	payments     map[int64]*api.PaymentRecord
	addresses    map[int64]*addressRow
	invoices     map[int64]*invoiceRow
	results      map[int64]*resultRow
	reviews      []*reviewRow
	nextID       int64
}

// NewData seeds a backend whose doctors work on the days after today.
func NewData(today time.Time) *Data {
	d := &Data{
		accounts: []account{
			{ID: 1, Name: "Nguyễn Văn An", Username: "an", Password: "123456"},
			{ID: 2, Name: "Trần Thị Bình", Username: "binh", Password: "123456"},
		},
		doctors: []api.Doctor{
			{ID: 1, Name: "BS. Lê Minh Tuấn"},
			{ID: 2, Name: "BS. Phạm Thu Hà"},
			{ID: 3, Name: "BS. Hoàng Quốc Việt"},
		},
		specialties: []api.Specialty{
			{ID: 1, Name: "Nội tổng quát"},
			{ID: 2, Name: "Nhi khoa"},
		},
		links: []api.DoctorSpecialty{
			{DoctorID: 1, SpecialtyID: 1},
			{DoctorID: 2, SpecialtyID: 1},
			{DoctorID: 2, SpecialtyID: 2},
			{DoctorID: 3, SpecialtyID: 2},
		},
		services: []api.Service{
			{ID: 1, Name: "Khám nội tổng quát tại nhà", Description: "Bác sĩ đến khám tại nhà", Price: 500000, SpecialtyID: 1, Category: api.CategoryHomeVisit},
			{ID: 2, Name: "Tư vấn nội khoa trực tuyến", Description: "Gọi video với bác sĩ", Price: 200000, SpecialtyID: 1, Category: api.CategoryOnline},
			{ID: 3, Name: "Khám nhi tại nhà", Price: 450000, SpecialtyID: 2, Category: api.CategoryHomeVisit},
			{ID: 4, Name: "Tư vấn nhi khoa trực tuyến", Price: 180000, SpecialtyID: 2, Category: api.CategoryOnline},
		},
		ratings: map[int64]api.RatingSummary{
			1: {Average: 4.5, Count: 12},
			2: {Average: 4.0, Count: 5},
		},
		drugs: map[int64]*drug{
			1: {ID: 1, Name: "Paracetamol 500mg", Price: 25000, Stock: 120},
			2: {ID: 2, Name: "Amoxicillin 500mg", Price: 68000, Stock: 40},
			3: {ID: 3, Name: "Vitamin C 1000mg", Price: 95000, Stock: 5},
		},
		devices: map[int64]*device{
			1: {ID: 1, Name: "Máy đo huyết áp điện tử", Price: 650000, Stock: 8},
			2: {ID: 2, Name: "Nhiệt kế hồng ngoại", Price: 320000, Stock: 15},
		},
		appointments: map[int64]*api.Appointment{},
		payments:     map[int64]*api.PaymentRecord{},
		addresses:    map[int64]*addressRow{},
		invoices:     map[int64]*invoiceRow{},
		results:      map[int64]*resultRow{},
		nextID:       100,
	}

	day := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, time.UTC)
	for offset := 0; offset <= 7; offset++ {
		date := day.AddDate(0, 0, offset)
		for _, doc := range d.doctors {
			// doctor 3 only works on even offsets
			if doc.ID == 3 && offset%2 == 1 {
				continue
			}
			d.nextID++
			d.schedules = append(d.schedules, api.WorkSchedule{ID: d.nextID, DoctorID: doc.ID, Date: api.NewLocalTime(date)})
		}
	}

	d.nextID++
	d.addresses[d.nextID] = &addressRow{
		Address:    api.Address{ID: d.nextID, Text: "12 Nguyễn Trãi, Phường Bến Thành, Quận 1, Thành phố Hồ Chí Minh", IsDefault: true},
		customerID: 1,
	}
	d.nextID++
	d.addresses[d.nextID] = &addressRow{
		Address:    api.Address{ID: d.nextID, Text: "8 Tràng Tiền, Phường Tràng Tiền, Quận Hoàn Kiếm, Thành phố Hà Nội"},
		customerID: 1,
	}
	return d
}

func (d *Data) id() int64 {
	d.nextID++
	return d.nextID
}

func (d *Data) login(username, password string) (account, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, a := range d.accounts {
		if strings.EqualFold(a.Username, strings.TrimSpace(username)) && a.Password == password {
			return a, true
		}
	}
	return account{}, false
}

// register adds a customer account. The email doubles as the login name.
func (d *Data) register(reg api.Registration) (int64, error) {
	name := strings.TrimSpace(reg.Name)
	email := strings.ToLower(strings.TrimSpace(reg.Email))
	if name == "" || email == "" || len(reg.Password) < 6 {
		return 0, errBadRequest
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, a := range d.accounts {
		if a.Username == email {
			return 0, errDuplicate
		}
	}
	id := d.id()
	d.accounts = append(d.accounts, account{ID: id, Name: name, Username: email, Password: reg.Password})
	return id, nil
}

func (d *Data) customer(id int64) (api.Customer, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, a := range d.accounts {
		if a.ID == id {
			return api.Customer{ID: a.ID, Name: a.Name}, true
		}
	}
	return api.Customer{}, false
}

func matches(name, key string) bool {
	return strings.Contains(strings.ToLower(name), strings.ToLower(strings.TrimSpace(key)))
}

func (d *Data) listDoctors(search string) []api.Doctor {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := []api.Doctor{}
	for _, doc := range d.doctors {
		if search == "" || matches(doc.Name, search) {
			out = append(out, doc)
		}
	}
	return out
}

func (d *Data) doctor(id int64) (api.Doctor, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, doc := range d.doctors {
		if doc.ID == id {
			return doc, true
		}
	}
	return api.Doctor{}, false
}

func (d *Data) listLinks() []api.DoctorSpecialty {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]api.DoctorSpecialty{}, d.links...)
}

func (d *Data) listSpecialties() []api.Specialty {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]api.Specialty{}, d.specialties...)
}

func (d *Data) listServices(filter func(api.Service) bool) []api.Service {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := []api.Service{}
	for _, s := range d.services {
		if filter == nil || filter(s) {
			out = append(out, s)
		}
	}
	return out
}

func (d *Data) service(id int64) (api.Service, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.serviceLocked(id)
}

func (d *Data) serviceLocked(id int64) (api.Service, bool) {
	for _, s := range d.services {
		if s.ID == id {
			return s, true
		}
	}
	return api.Service{}, false
}

func (d *Data) rating(serviceID int64) []api.RatingSummary {
	d.mu.Lock()
	defer d.mu.Unlock()
	r, ok := d.ratings[serviceID]
	if !ok {
		return []api.RatingSummary{}
	}
	return []api.RatingSummary{r}
}

func (d *Data) listSchedules() []api.WorkSchedule {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]api.WorkSchedule{}, d.schedules...)
}

func (d *Data) listDrugs() []drug {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]drug, 0, len(d.drugs))
	for _, p := range d.drugs {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (d *Data) drug(id int64) (drug, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.drugs[id]
	if !ok {
		return drug{}, false
	}
	return *p, true
}

func (d *Data) listDevices() []device {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]device, 0, len(d.devices))
	for _, p := range d.devices {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (d *Data) device(id int64) (device, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.devices[id]
	if !ok {
		return device{}, false
	}
	return *p, true
}

func sortedAppointments(m map[int64]*api.Appointment, keep func(*api.Appointment) bool) []api.Appointment {
	out := []api.Appointment{}
	for _, a := range m {
		if keep(a) {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (d *Data) listAppointments(customerID int64) []api.Appointment {
	d.mu.Lock()
	defer d.mu.Unlock()
	return sortedAppointments(d.appointments, func(a *api.Appointment) bool {
		return customerID == 0 || a.CustomerID == customerID
	})
}

// createAppointment books a grid slot. The backend is the one place where
// two bookings of the same slot are told apart.
func (d *Data) createAppointment(customerID int64, req api.CreateAppointmentRequest) (int64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	svc, ok := d.serviceLocked(req.ServiceID)
	if !ok {
		return 0, errBadRequest
	}
	if req.ScheduledAt.IsZero() || !availability.IsGridSlot(req.ScheduledAt.Clock()) {
		return 0, errBadRequest
	}
	for _, a := range d.appointments {
		if a.DoctorID == req.DoctorID && a.ScheduledAt.Equal(req.ScheduledAt.Time) && a.Status != api.StatusCancelled {
			return 0, errConflict
		}
	}
	location := ""
	if svc.Category.RequiresAddress() {
		location = req.Location
	}
	id := d.id()
	d.appointments[id] = &api.Appointment{
		ID:          id,
		CustomerID:  customerID,
		DoctorID:    req.DoctorID,
		ServiceID:   req.ServiceID,
		ScheduledAt: req.ScheduledAt,
		Status:      api.StatusUnvisited,
		Note:        req.Note,
		Location:    location,
	}
	return id, nil
}

func (d *Data) ownedAppointment(customerID, id int64) (*api.Appointment, error) {
	a, ok := d.appointments[id]
	if !ok {
		return nil, errNotFound
	}
	if customerID != 0 && a.CustomerID != customerID {
		return nil, errForbidden
	}
	return a, nil
}

func (d *Data) cancelAppointment(customerID, id int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	a, err := d.ownedAppointment(customerID, id)
	if err != nil {
		return err
	}
	if a.Status != api.StatusUnvisited {
		return errNotUnvisited
	}
	a.Status = api.StatusCancelled
	return nil
}

func (d *Data) deleteAppointment(customerID, id int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, err := d.ownedAppointment(customerID, id); err != nil {
		return err
	}
	delete(d.appointments, id)
	delete(d.payments, id)
	return nil
}

// appointmentCharge returns the price of an appointment awaiting payment.
func (d *Data) appointmentCharge(customerID, id int64) (api.Money, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	a, err := d.ownedAppointment(customerID, id)
	if err != nil {
		return 0, err
	}
	svc, _ := d.serviceLocked(a.ServiceID)
	return svc.Price, nil
}

func (d *Data) appointmentPayment(customerID, id int64) (*api.PaymentRecord, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, err := d.ownedAppointment(customerID, id); err != nil {
		return nil, err
	}
	p, ok := d.payments[id]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (d *Data) payAppointment(id int64) (*api.PaymentRecord, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.appointments[id]; !ok {
		return nil, errNotFound
	}
	if _, paid := d.payments[id]; paid {
		return nil, errNotPending
	}
	rec := &api.PaymentRecord{
		TransactionID: api.FlexID(d.id()),
		PaymentMethod: "VNPAY",
		OrderID:       uuid.NewString(),
	}
	d.payments[id] = rec
	cp := *rec
	return &cp, nil
}

func (d *Data) listAddresses(customerID int64) []api.Address {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := []api.Address{}
	for _, a := range d.addresses {
		if a.customerID == customerID {
			out = append(out, a.Address)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (d *Data) ownedAddress(customerID, id int64) (*addressRow, error) {
	a, ok := d.addresses[id]
	if !ok {
		return nil, errNotFound
	}
	if a.customerID != customerID {
		return nil, errForbidden
	}
	return a, nil
}

func (d *Data) address(customerID, id int64) (api.Address, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	a, err := d.ownedAddress(customerID, id)
	if err != nil {
		return api.Address{}, err
	}
	return a.Address, nil
}

func (d *Data) clearDefaultLocked(customerID int64) {
	for _, a := range d.addresses {
		if a.customerID == customerID {
			a.IsDefault = false
		}
	}
}

func (d *Data) createAddress(customerID int64, text string) (int64, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return 0, errBadRequest
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	first := true
	for _, a := range d.addresses {
		if a.customerID == customerID {
			first = false
			break
		}
	}
	id := d.id()
	d.addresses[id] = &addressRow{Address: api.Address{ID: id, Text: text, IsDefault: first}, customerID: customerID}
	return id, nil
}

func (d *Data) updateAddress(customerID int64, addr api.Address) error {
	text := strings.TrimSpace(addr.Text)
	if text == "" {
		return errBadRequest
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	row, err := d.ownedAddress(customerID, addr.ID)
	if err != nil {
		return err
	}
	if addr.IsDefault {
		d.clearDefaultLocked(customerID)
	}
	row.Text = text
	row.IsDefault = addr.IsDefault
	return nil
}

func (d *Data) deleteAddress(customerID, id int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, err := d.ownedAddress(customerID, id); err != nil {
		return err
	}
	delete(d.addresses, id)
	return nil
}

func (d *Data) createInvoice(customerID int64, req api.CreateInvoiceRequest, now time.Time) (int64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, err := d.ownedAddress(customerID, req.AddressID); err != nil {
		return 0, errBadRequest
	}
	id := d.id()
	d.invoices[id] = &invoiceRow{Invoice: api.Invoice{
		ID:          id,
		CustomerID:  customerID,
		AddressID:   req.AddressID,
		Total:       req.Total,
		PurchasedAt: api.NewLocalTime(now),
		Status:      "False",
		Note:        req.Note,
	}}
	return id, nil
}

func (d *Data) ownedInvoice(customerID, id int64) (*invoiceRow, error) {
	inv, ok := d.invoices[id]
	if !ok {
		return nil, errNotFound
	}
	if customerID != 0 && inv.CustomerID != customerID {
		return nil, errForbidden
	}
	return inv, nil
}

// addInvoiceLine reserves stock for one purchase line.
func (d *Data) addInvoiceLine(customerID, invoiceID int64, t api.ProductType, productID int64, qty int) error {
	if qty <= 0 {
		return errBadRequest
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	inv, err := d.ownedInvoice(customerID, invoiceID)
	if err != nil {
		return err
	}
	line := invoiceLine{Type: t, ProductID: productID, Quantity: qty}
	var stock *int
	switch t {
	case api.ProductDrug:
		if p, ok := d.drugs[productID]; ok {
			stock = &p.Stock
			line.Name, line.Price = p.Name, p.Price
		}
	case api.ProductDevice:
		if p, ok := d.devices[productID]; ok {
			stock = &p.Stock
			line.Name, line.Price = p.Name, p.Price
		}
	}
	if stock == nil {
		return errNotFound
	}
	if *stock < qty {
		return errOutOfStock
	}
	*stock -= qty
	inv.lines = append(inv.lines, line)
	return nil
}

func (d *Data) listInvoices(customerID int64) []api.Invoice {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := []api.Invoice{}
	for _, inv := range d.invoices {
		if inv.CustomerID == customerID {
			out = append(out, inv.Invoice)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (d *Data) invoiceCharge(customerID, id int64) (api.Money, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	inv, err := d.ownedInvoice(customerID, id)
	if err != nil {
		return 0, err
	}
	return inv.Total, nil
}

func (d *Data) payInvoice(id int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	inv, err := d.ownedInvoice(0, id)
	if err != nil {
		return err
	}
	if inv.Paid() {
		return errNotPending
	}
	inv.Status = "True"
	return nil
}

// deleteInvoice removes an unpaid invoice and returns its reserved stock.
func (d *Data) deleteInvoice(customerID, id int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	inv, err := d.ownedInvoice(customerID, id)
	if err != nil {
		return err
	}
	if inv.Paid() {
		return errNotPending
	}
	for _, l := range inv.lines {
		switch l.Type {
		case api.ProductDrug:
			if p, ok := d.drugs[l.ProductID]; ok {
				p.Stock += l.Quantity
			}
		case api.ProductDevice:
			if p, ok := d.devices[l.ProductID]; ok {
				p.Stock += l.Quantity
			}
		}
	}
	delete(d.invoices, id)
	return nil
}

// invoiceItems lists the product lines of an invoice at the prices they were
// bought for.
func (d *Data) invoiceItems(customerID, id int64) ([]api.InvoiceItem, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	inv, err := d.ownedInvoice(customerID, id)
	if err != nil {
		return nil, err
	}
	out := make([]api.InvoiceItem, 0, len(inv.lines))
	for _, l := range inv.lines {
		out = append(out, api.InvoiceItem{
			ProductID: l.ProductID,
			Name:      l.Name,
			Price:     l.Price,
			Quantity:  l.Quantity,
			Subtotal:  l.Price * api.Money(l.Quantity),
		})
	}
	return out, nil
}

// recordResult stores the examination result of an appointment and marks
// it visited. An appointment takes one result.
func (d *Data) recordResult(appointmentID int64, description string) (int64, error) {
	description = strings.TrimSpace(description)
	if description == "" {
		return 0, errBadRequest
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	a, err := d.ownedAppointment(0, appointmentID)
	if err != nil {
		return 0, err
	}
	if a.Status == api.StatusCancelled {
		return 0, errBadRequest
	}
	for _, r := range d.results {
		if r.AppointmentID == appointmentID {
			return 0, errDuplicate
		}
	}
	a.Status = api.StatusVisited
	id := d.id()
	d.results[id] = &resultRow{
		ServiceResult: api.ServiceResult{ID: id, AppointmentID: appointmentID, Description: description},
		customerID:    a.CustomerID,
		serviceID:     a.ServiceID,
	}
	return id, nil
}

func (d *Data) listResults(customerID int64) []api.ServiceResult {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := []api.ServiceResult{}
	for _, r := range d.results {
		if r.customerID == customerID {
			out = append(out, r.ServiceResult)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (d *Data) listReviews(keep func(*reviewRow) bool) []api.Review {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := []api.Review{}
	for _, r := range d.reviews {
		if keep(r) {
			out = append(out, r.Review)
		}
	}
	return out
}

// createReview holds a review of a result for moderation.
func (d *Data) createReview(customerID, resultID int64, stars int, content string, now time.Time) (int64, error) {
	if stars < 1 || stars > 5 {
		return 0, errBadRequest
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	res, ok := d.results[resultID]
	if !ok {
		return 0, errNotFound
	}
	if res.customerID != customerID {
		return 0, errForbidden
	}
	for _, r := range d.reviews {
		if r.ResultID == resultID {
			return 0, errDuplicate
		}
	}
	id := d.id()
	d.reviews = append(d.reviews, &reviewRow{
		Review: api.Review{
			ID:        id,
			ResultID:  resultID,
			Stars:     stars,
			Content:   strings.TrimSpace(content),
			CreatedBy: customerID,
			CreatedAt: api.NewLocalTime(now),
		},
		serviceID: res.serviceID,
	})
	return id, nil
}

// approveReview publishes a pending review and folds it into the service's
// rating summary.
func (d *Data) approveReview(id int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, r := range d.reviews {
		if r.ID != id {
			continue
		}
		if r.approved {
			return errNotPending
		}
		r.approved = true
		sum := d.ratings[r.serviceID]
		total := sum.Average*float64(sum.Count) + float64(r.Stars)
		sum.Count++
		sum.Average = total / float64(sum.Count)
		d.ratings[r.serviceID] = sum
		return nil
	}
	return errNotFound
}
