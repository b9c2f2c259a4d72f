// Package memory holds an in-memory Repository used by tests and by the
// server when no DATABASE_URL is configured.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"bengkelinaja/internal/domain"
	"bengkelinaja/internal/store"
	"bengkelinaja/internal/xid"
)

type Store struct {
	mu           sync.RWMutex
	products     map[string]domain.Product
	customers    map[string]domain.Customer
	vehicles     map[string]domain.Vehicle
	appointments map[string]domain.Appointment
	jobsheets    map[string]domain.Jobsheet
	items        map[string]domain.JobsheetItem
	labor        map[string]domain.LaborEntry
	payments     map[string]domain.Payment
	users        map[string]domain.UserAccount
}

func New() *Store {
	return &Store{
		products:     make(map[string]domain.Product),
		customers:    make(map[string]domain.Customer),
		vehicles:     make(map[string]domain.Vehicle),
		appointments: make(map[string]domain.Appointment),
		jobsheets:    make(map[string]domain.Jobsheet),
		items:        make(map[string]domain.JobsheetItem),
		labor:        make(map[string]domain.LaborEntry),
		payments:     make(map[string]domain.Payment),
		users:        make(map[string]domain.UserAccount),
	}
}

// NewSeeded returns a store with a small workshop dataset so the server is
// usable out of the box in memory mode.
func NewSeeded() *Store {
	s := New()
	now := time.Now().UTC()

	for _, p := range []domain.Product{
		{ID: "prod-oli-10w40", SKU: "OLI-10W40", Name: "Oli Mesin 10W-40", Stock: 40, CostCents: 520000, SaleCents: 750000, CreatedAt: now},
		{ID: "prod-kampas-rem", SKU: "KMP-REM-AVZ", Name: "Kampas Rem Depan Avanza", Stock: 12, CostCents: 1800000, SaleCents: 2600000, CreatedAt: now},
		{ID: "prod-filter-udara", SKU: "FLT-UDR-BRV", Name: "Filter Udara Brio", Stock: 18, CostCents: 450000, SaleCents: 700000, CreatedAt: now},
		{ID: "prod-aki-ns40", SKU: "AKI-NS40Z", Name: "Aki Kering NS40Z", Stock: 6, CostCents: 5400000, SaleCents: 7200000, CreatedAt: now},
		{ID: "prod-busi-iridium", SKU: "BSI-IRD-K6A", Name: "Busi Iridium K6A", Stock: 24, CostCents: 850000, SaleCents: 1250000, CreatedAt: now},
	} {
		s.products[p.ID] = p
	}

	customer := domain.Customer{ID: "cus-budi", Name: "Budi Santoso", Phone: "081234567890", CreatedAt: now}
	s.customers[customer.ID] = customer

	vehicle := domain.Vehicle{ID: "veh-budi-avanza", CustomerID: customer.ID, Plate: "B 1075 KJT", Brand: "Toyota", Model: "Avanza", Year: 2019, CreatedAt: now}
	s.vehicles[vehicle.ID] = vehicle

	s.appointments["apt-budi-servis"] = domain.Appointment{
		ID:          "apt-budi-servis",
		CustomerID:  customer.ID,
		VehicleID:   vehicle.ID,
		ScheduledAt: now.Add(24 * time.Hour),
		Notes:       "Servis berkala 40.000 km",
		Status:      domain.AppointmentStatusScheduled,
		CreatedAt:   now,
	}

	return s
}

func (s *Store) ListProducts(_ context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		products = append(products, p)
	}
	sort.Slice(products, func(i, j int) bool { return products[i].Name < products[j].Name })
	return products, nil
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if product.ID == "" {
		product.ID = xid.New("prod")
	}
	if product.CreatedAt.IsZero() {
		product.CreatedAt = time.Now().UTC()
	}
	for _, existing := range s.products {
		if existing.SKU == product.SKU {
			return nil, store.ErrValidation
		}
	}
	s.products[product.ID] = product
	created := product
	return &created, nil
}

func (s *Store) GetProductByID(_ context.Context, id string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.products[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	found := p
	return &found, nil
}

func (s *Store) UpdateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.products[product.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	for id, existing := range s.products {
		if id != product.ID && existing.SKU == product.SKU {
			return nil, store.ErrValidation
		}
	}

	current.SKU = product.SKU
	current.Name = product.Name
	current.CostCents = product.CostCents
	current.SaleCents = product.SaleCents
	s.products[product.ID] = current
	updated := current
	return &updated, nil
}

func (s *Store) DeleteProduct(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.products[id]; !ok {
		return store.ErrNotFound
	}
	for _, item := range s.items {
		if item.ProductID == id {
			return store.ErrValidation
		}
	}
	delete(s.products, id)
	return nil
}

func (s *Store) ListCustomers(_ context.Context) ([]domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	customers := make([]domain.Customer, 0, len(s.customers))
	for _, c := range s.customers {
		customers = append(customers, c)
	}
	sort.Slice(customers, func(i, j int) bool { return customers[i].Name < customers[j].Name })
	return customers, nil
}

func (s *Store) CreateCustomer(_ context.Context, customer domain.Customer) (*domain.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if customer.ID == "" {
		customer.ID = xid.New("cus")
	}
	if customer.CreatedAt.IsZero() {
		customer.CreatedAt = time.Now().UTC()
	}
	s.customers[customer.ID] = customer
	created := customer
	return &created, nil
}

func (s *Store) GetCustomerByID(_ context.Context, id string) (*domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.customers[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	found := c
	return &found, nil
}

func (s *Store) UpdateCustomer(_ context.Context, customer domain.Customer) (*domain.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.customers[customer.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	current.Name = customer.Name
	current.Phone = customer.Phone
	current.Email = customer.Email
	s.customers[customer.ID] = current
	updated := current
	return &updated, nil
}

func (s *Store) DeleteCustomer(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.customers[id]; !ok {
		return store.ErrNotFound
	}
	for _, v := range s.vehicles {
		if v.CustomerID == id {
			return store.ErrValidation
		}
	}
	for _, js := range s.jobsheets {
		if js.CustomerID == id {
			return store.ErrValidation
		}
	}
	delete(s.customers, id)
	return nil
}

func (s *Store) ListVehicles(_ context.Context, customerID string) ([]domain.Vehicle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	vehicles := make([]domain.Vehicle, 0, len(s.vehicles))
	for _, v := range s.vehicles {
		if customerID != "" && v.CustomerID != customerID {
			continue
		}
		vehicles = append(vehicles, v)
	}
	sort.Slice(vehicles, func(i, j int) bool { return vehicles[i].CreatedAt.After(vehicles[j].CreatedAt) })
	return vehicles, nil
}

func (s *Store) CreateVehicle(_ context.Context, vehicle domain.Vehicle) (*domain.Vehicle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.customers[vehicle.CustomerID]; !ok {
		return nil, store.ErrNotFound
	}
	if vehicle.ID == "" {
		vehicle.ID = xid.New("veh")
	}
	if vehicle.CreatedAt.IsZero() {
		vehicle.CreatedAt = time.Now().UTC()
	}
	s.vehicles[vehicle.ID] = vehicle
	created := vehicle
	return &created, nil
}

func (s *Store) GetVehicleByID(_ context.Context, id string) (*domain.Vehicle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.vehicles[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	found := v
	return &found, nil
}

func (s *Store) UpdateVehicle(_ context.Context, vehicle domain.Vehicle) (*domain.Vehicle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.vehicles[vehicle.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	current.Plate = vehicle.Plate
	current.Brand = vehicle.Brand
	current.Model = vehicle.Model
	current.Year = vehicle.Year
	s.vehicles[vehicle.ID] = current
	updated := current
	return &updated, nil
}

func (s *Store) DeleteVehicle(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.vehicles[id]; !ok {
		return store.ErrNotFound
	}
	for _, js := range s.jobsheets {
		if js.VehicleID == id {
			return store.ErrValidation
		}
	}
	delete(s.vehicles, id)
	return nil
}

func (s *Store) CreateAppointment(_ context.Context, appointment domain.Appointment) (*domain.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.customers[appointment.CustomerID]; !ok {
		return nil, store.ErrNotFound
	}
	if _, ok := s.vehicles[appointment.VehicleID]; !ok {
		return nil, store.ErrNotFound
	}
	if appointment.ID == "" {
		appointment.ID = xid.New("apt")
	}
	if appointment.Status == "" {
		appointment.Status = domain.AppointmentStatusScheduled
	}
	if appointment.CreatedAt.IsZero() {
		appointment.CreatedAt = time.Now().UTC()
	}
	s.appointments[appointment.ID] = appointment
	created := appointment
	return &created, nil
}

func (s *Store) ListAppointments(_ context.Context, status string) ([]domain.Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	appointments := make([]domain.Appointment, 0, len(s.appointments))
	for _, a := range s.appointments {
		if status != "" && a.Status != status {
			continue
		}
		appointments = append(appointments, a)
	}
	sort.Slice(appointments, func(i, j int) bool { return appointments[i].ScheduledAt.Before(appointments[j].ScheduledAt) })
	return appointments, nil
}

func (s *Store) CancelAppointment(_ context.Context, id string) (*domain.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.appointments[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if a.Status != domain.AppointmentStatusScheduled {
		return nil, store.ErrValidation
	}
	a.Status = domain.AppointmentStatusCancelled
	s.appointments[id] = a
	cancelled := a
	return &cancelled, nil
}

func (s *Store) ConvertAppointment(_ context.Context, id string) (*domain.Jobsheet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.appointments[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if a.Status != domain.AppointmentStatusScheduled {
		return nil, store.ErrValidation
	}

	now := time.Now().UTC()
	jobsheet := domain.Jobsheet{
		ID:         xid.New("js"),
		CustomerID: a.CustomerID,
		VehicleID:  a.VehicleID,
		State:      domain.JobsheetStatePending,
		Notes:      a.Notes,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	s.jobsheets[jobsheet.ID] = jobsheet

	a.Status = domain.AppointmentStatusConverted
	a.JobsheetID = jobsheet.ID
	s.appointments[id] = a

	created := jobsheet
	return &created, nil
}

func (s *Store) CreateJobsheet(_ context.Context, jobsheet domain.Jobsheet) (*domain.Jobsheet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.customers[jobsheet.CustomerID]; !ok {
		return nil, store.ErrNotFound
	}
	if _, ok := s.vehicles[jobsheet.VehicleID]; !ok {
		return nil, store.ErrNotFound
	}
	if jobsheet.ID == "" {
		jobsheet.ID = xid.New("js")
	}
	if jobsheet.State == "" {
		jobsheet.State = domain.JobsheetStatePending
	}
	now := time.Now().UTC()
	if jobsheet.CreatedAt.IsZero() {
		jobsheet.CreatedAt = now
	}
	jobsheet.UpdatedAt = now
	jobsheet.TotalAmountCents = 0
	s.jobsheets[jobsheet.ID] = jobsheet
	created := jobsheet
	return &created, nil
}

func (s *Store) ListJobsheets(_ context.Context, state string) ([]domain.Jobsheet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	jobsheets := make([]domain.Jobsheet, 0, len(s.jobsheets))
	for _, js := range s.jobsheets {
		if state != "" && js.State != state {
			continue
		}
		jobsheets = append(jobsheets, js)
	}
	sort.Slice(jobsheets, func(i, j int) bool { return jobsheets[i].CreatedAt.After(jobsheets[j].CreatedAt) })
	return jobsheets, nil
}

func (s *Store) UpdateJobsheetState(_ context.Context, id string, state string) (*domain.Jobsheet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	js, ok := s.jobsheets[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	js.State = state
	js.UpdatedAt = time.Now().UTC()
	s.jobsheets[id] = js
	updated := js
	return &updated, nil
}

func (s *Store) GetJobsheetDetail(_ context.Context, id string) (*domain.JobsheetDetail, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	js, ok := s.jobsheets[id]
	if !ok {
		return nil, store.ErrNotFound
	}

	detail := domain.JobsheetDetail{
		Jobsheet: js,
		Items:    make([]domain.JobsheetItem, 0, 8),
		Labor:    make([]domain.LaborEntry, 0, 8),
		Payments: make([]domain.Payment, 0, 4),
	}

	for _, item := range s.items {
		if item.JobsheetID != id {
			continue
		}
		detail.Items = append(detail.Items, item)
		detail.TotalItemsCents += int64(item.Qty) * item.PriceCents
	}
	sort.Slice(detail.Items, func(i, j int) bool { return detail.Items[i].CreatedAt.Before(detail.Items[j].CreatedAt) })

	for _, entry := range s.labor {
		if entry.JobsheetID != id {
			continue
		}
		detail.Labor = append(detail.Labor, entry)
	}
	sort.Slice(detail.Labor, func(i, j int) bool { return detail.Labor[i].CreatedAt.Before(detail.Labor[j].CreatedAt) })

	for _, payment := range s.payments {
		if payment.JobsheetID != id {
			continue
		}
		detail.Payments = append(detail.Payments, payment)
		detail.TotalPaymentsCents += payment.AmountCents
	}
	sort.Slice(detail.Payments, func(i, j int) bool { return detail.Payments[i].PaymentDate.Before(detail.Payments[j].PaymentDate) })

	detail.BalanceCents = js.TotalAmountCents - detail.TotalPaymentsCents

	if customer, ok := s.customers[js.CustomerID]; ok {
		found := customer
		detail.Customer = &found
	}
	if vehicle, ok := s.vehicles[js.VehicleID]; ok {
		found := vehicle
		detail.Vehicle = &found
	}

	return &detail, nil
}

func (s *Store) DeleteJobsheet(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobsheets[id]; !ok {
		return store.ErrNotFound
	}

	for itemID, item := range s.items {
		if item.JobsheetID != id {
			continue
		}
		if p, ok := s.products[item.ProductID]; ok {
			p.Stock += item.Qty
			s.products[item.ProductID] = p
		}
		delete(s.items, itemID)
	}
	for laborID, entry := range s.labor {
		if entry.JobsheetID == id {
			delete(s.labor, laborID)
		}
	}
	for paymentID, payment := range s.payments {
		if payment.JobsheetID == id {
			delete(s.payments, paymentID)
		}
	}
	delete(s.jobsheets, id)
	return nil
}

func (s *Store) AddJobsheetItem(_ context.Context, item domain.JobsheetItem, priceProvided bool) (*domain.JobsheetItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobsheets[item.JobsheetID]; !ok {
		return nil, store.ErrNotFound
	}
	product, ok := s.products[item.ProductID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if product.Stock < item.Qty {
		return nil, store.ErrInsufficientStock
	}
	if !priceProvided {
		item.PriceCents = product.SaleCents
	}

	if item.ID == "" {
		item.ID = xid.New("itm")
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now().UTC()
	}

	product.Stock -= item.Qty
	s.products[item.ProductID] = product
	s.items[item.ID] = item
	s.recomputeTotalLocked(item.JobsheetID)

	created := item
	return &created, nil
}

func (s *Store) UpdateJobsheetItem(_ context.Context, itemID string, qty int, priceCents int64) (*domain.JobsheetItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.items[itemID]
	if !ok {
		return nil, store.ErrNotFound
	}

	diff := qty - item.Qty
	product, ok := s.products[item.ProductID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if diff > 0 && product.Stock < diff {
		return nil, store.ErrInsufficientStock
	}

	product.Stock -= diff
	s.products[item.ProductID] = product

	item.Qty = qty
	item.PriceCents = priceCents
	s.items[itemID] = item
	s.recomputeTotalLocked(item.JobsheetID)

	updated := item
	return &updated, nil
}

func (s *Store) DeleteJobsheetItem(_ context.Context, jobsheetID string, itemID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.items[itemID]
	if !ok || item.JobsheetID != jobsheetID {
		return store.ErrNotFound
	}
	if p, ok := s.products[item.ProductID]; ok {
		p.Stock += item.Qty
		s.products[item.ProductID] = p
	}
	delete(s.items, itemID)
	s.recomputeTotalLocked(item.JobsheetID)
	return nil
}

func (s *Store) AddLabor(_ context.Context, entry domain.LaborEntry) (*domain.LaborEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobsheets[entry.JobsheetID]; !ok {
		return nil, store.ErrNotFound
	}
	if entry.ID == "" {
		entry.ID = xid.New("lab")
	}
	now := time.Now().UTC()
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = now
	}
	if entry.IsCompleted && entry.CompletedAt == nil {
		entry.CompletedAt = &now
	}
	s.labor[entry.ID] = entry
	if entry.IsCompleted {
		s.recomputeTotalLocked(entry.JobsheetID)
	}
	created := entry
	return &created, nil
}

func (s *Store) UpdateLabor(_ context.Context, laborID string, req domain.LaborUpdateRequest) (*domain.LaborEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.labor[laborID]
	if !ok {
		return nil, store.ErrNotFound
	}

	updated := entry
	if req.Description != nil {
		updated.Description = *req.Description
	}
	if req.PriceCents != nil {
		updated.PriceCents = *req.PriceCents
	}
	if req.IsCompleted != nil {
		updated.IsCompleted = *req.IsCompleted
	}

	if updated.IsCompleted && updated.PriceCents <= 0 {
		return nil, store.ErrValidation
	}
	completionChanged := updated.IsCompleted != entry.IsCompleted
	if completionChanged && updated.IsCompleted && updated.CompletedAt == nil {
		now := time.Now().UTC()
		updated.CompletedAt = &now
	}

	s.labor[laborID] = updated
	if completionChanged || (updated.PriceCents != entry.PriceCents && updated.IsCompleted) {
		s.recomputeTotalLocked(updated.JobsheetID)
	}
	result := updated
	return &result, nil
}

func (s *Store) DeleteLabor(_ context.Context, jobsheetID string, laborID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.labor[laborID]
	if !ok || entry.JobsheetID != jobsheetID {
		return store.ErrNotFound
	}
	delete(s.labor, laborID)
	if entry.IsCompleted {
		s.recomputeTotalLocked(entry.JobsheetID)
	}
	return nil
}

func (s *Store) AddPayment(_ context.Context, payment domain.Payment) (*domain.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobsheets[payment.JobsheetID]; !ok {
		return nil, store.ErrNotFound
	}
	if payment.ID == "" {
		payment.ID = xid.New("pay")
	}
	now := time.Now().UTC()
	if payment.CreatedAt.IsZero() {
		payment.CreatedAt = now
	}
	if payment.PaymentDate.IsZero() {
		payment.PaymentDate = now
	}
	s.payments[payment.ID] = payment
	created := payment
	return &created, nil
}

func (s *Store) UpdatePayment(_ context.Context, paymentID string, req domain.PaymentUpdateRequest) (*domain.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	payment, ok := s.payments[paymentID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if req.AmountCents != nil {
		payment.AmountCents = *req.AmountCents
	}
	if req.Method != nil {
		payment.Method = *req.Method
	}
	if req.PaymentDate != nil {
		payment.PaymentDate = *req.PaymentDate
	}
	s.payments[paymentID] = payment
	updated := payment
	return &updated, nil
}

func (s *Store) DeletePayment(_ context.Context, jobsheetID string, paymentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	payment, ok := s.payments[paymentID]
	if !ok || payment.JobsheetID != jobsheetID {
		return store.ErrNotFound
	}
	delete(s.payments, paymentID)
	return nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if user.Username == "" || user.Password == "" {
		return store.ErrValidation
	}
	if _, exists := s.users[user.Username]; exists {
		return store.ErrValidation
	}
	if user.Role == "" {
		user.Role = "mechanic"
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	s.users[user.Username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.users))
	for _, user := range s.users {
		users = append(users, user)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Username < users[j].Username })
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if username == "" || password == "" {
		return store.ErrValidation
	}
	user, ok := s.users[username]
	if !ok {
		return store.ErrNotFound
	}
	user.Password = password
	s.users[username] = user
	return nil
}

// MustSeedUser hashes the password and inserts the account, panicking on
// failure. Intended for memory-mode bootstrap in main and for tests.
func (s *Store) MustSeedUser(username, password, role string) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		panic(err)
	}
	if err := s.CreateUser(context.Background(), domain.UserAccount{
		Username: username,
		Password: string(hash),
		Role:     role,
		Active:   true,
	}); err != nil {
		panic(err)
	}
}

// recomputeTotalLocked mirrors the SQL store's total recompute. Caller holds
// the write lock.
func (s *Store) recomputeTotalLocked(jobsheetID string) {
	js, ok := s.jobsheets[jobsheetID]
	if !ok {
		return
	}
	var total int64
	for _, item := range s.items {
		if item.JobsheetID == jobsheetID {
			total += int64(item.Qty) * item.PriceCents
		}
	}
	for _, entry := range s.labor {
		if entry.JobsheetID == jobsheetID && entry.IsCompleted {
			total += entry.PriceCents
		}
	}
	js.TotalAmountCents = total
	js.UpdatedAt = time.Now().UTC()
	s.jobsheets[jobsheetID] = js
}
