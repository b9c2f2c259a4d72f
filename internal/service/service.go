package service

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"bengkelinaja/internal/cache"
	"bengkelinaja/internal/domain"
	"bengkelinaja/internal/store"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Service struct {
	repo     store.Repository
	cache    cache.JobsheetCache
	cacheTTL time.Duration
}

func New(repo store.Repository, jobsheetCache cache.JobsheetCache, cacheTTL time.Duration) *Service {
	if jobsheetCache == nil {
		jobsheetCache = cache.NoopJobsheetCache{}
	}
	if cacheTTL <= 0 {
		cacheTTL = 30 * time.Second
	}

	return &Service{
		repo:     repo,
		cache:    jobsheetCache,
		cacheTTL: cacheTTL,
	}
}

func (s *Service) ListProducts(ctx context.Context) ([]domain.Product, error) {
	return s.repo.ListProducts(ctx)
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return domain.Product{}, fmt.Errorf("admin role required")
	}

	req.SKU = strings.ToUpper(strings.TrimSpace(req.SKU))
	req.Name = strings.TrimSpace(req.Name)

	if req.SKU == "" || req.Name == "" {
		return domain.Product{}, store.ErrValidation
	}
	if req.Stock < 0 || req.CostCents < 0 || req.SaleCents < 1 {
		return domain.Product{}, store.ErrValidation
	}

	created, err := s.repo.CreateProduct(ctx, domain.Product{
		SKU:       req.SKU,
		Name:      req.Name,
		Stock:     req.Stock,
		CostCents: req.CostCents,
		SaleCents: req.SaleCents,
	})
	if err != nil {
		return domain.Product{}, err
	}
	return *created, nil
}

func (s *Service) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	product, err := s.repo.GetProductByID(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}
	return *product, nil
}

func (s *Service) UpdateProduct(ctx context.Context, id string, req domain.ProductUpdateRequest) (domain.Product, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return domain.Product{}, fmt.Errorf("admin role required")
	}

	existing, err := s.repo.GetProductByID(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}

	updated := *existing
	if req.SKU != nil {
		sku := strings.ToUpper(strings.TrimSpace(*req.SKU))
		if sku == "" {
			return domain.Product{}, store.ErrValidation
		}
		updated.SKU = sku
	}
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.Product{}, store.ErrValidation
		}
		updated.Name = name
	}
	if req.CostCents != nil {
		if *req.CostCents < 0 {
			return domain.Product{}, store.ErrValidation
		}
		updated.CostCents = *req.CostCents
	}
	if req.SaleCents != nil {
		if *req.SaleCents < 1 {
			return domain.Product{}, store.ErrValidation
		}
		updated.SaleCents = *req.SaleCents
	}

	saved, err := s.repo.UpdateProduct(ctx, updated)
	if err != nil {
		return domain.Product{}, err
	}
	return *saved, nil
}

func (s *Service) DeleteProduct(ctx context.Context, id string) error {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return fmt.Errorf("admin role required")
	}
	return s.repo.DeleteProduct(ctx, id)
}

func (s *Service) ListCustomers(ctx context.Context) ([]domain.Customer, error) {
	return s.repo.ListCustomers(ctx)
}

func (s *Service) CreateCustomer(ctx context.Context, req domain.CustomerCreateRequest) (domain.Customer, error) {
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return domain.Customer{}, store.ErrValidation
	}

	created, err := s.repo.CreateCustomer(ctx, domain.Customer{
		Name:  req.Name,
		Phone: strings.TrimSpace(req.Phone),
		Email: strings.TrimSpace(req.Email),
	})
	if err != nil {
		return domain.Customer{}, err
	}
	return *created, nil
}

func (s *Service) GetCustomer(ctx context.Context, id string) (domain.Customer, error) {
	customer, err := s.repo.GetCustomerByID(ctx, id)
	if err != nil {
		return domain.Customer{}, err
	}
	return *customer, nil
}

func (s *Service) UpdateCustomer(ctx context.Context, id string, req domain.CustomerUpdateRequest) (domain.Customer, error) {
	existing, err := s.repo.GetCustomerByID(ctx, id)
	if err != nil {
		return domain.Customer{}, err
	}

	updated := *existing
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.Customer{}, store.ErrValidation
		}
		updated.Name = name
	}
	if req.Phone != nil {
		updated.Phone = strings.TrimSpace(*req.Phone)
	}
	if req.Email != nil {
		updated.Email = strings.TrimSpace(*req.Email)
	}

	saved, err := s.repo.UpdateCustomer(ctx, updated)
	if err != nil {
		return domain.Customer{}, err
	}
	return *saved, nil
}

func (s *Service) DeleteCustomer(ctx context.Context, id string) error {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return fmt.Errorf("admin role required")
	}
	return s.repo.DeleteCustomer(ctx, id)
}

func (s *Service) ListVehicles(ctx context.Context, customerID string) ([]domain.Vehicle, error) {
	return s.repo.ListVehicles(ctx, strings.TrimSpace(customerID))
}

func (s *Service) CreateVehicle(ctx context.Context, req domain.VehicleCreateRequest) (domain.Vehicle, error) {
	req.CustomerID = strings.TrimSpace(req.CustomerID)
	req.Plate = strings.ToUpper(strings.TrimSpace(req.Plate))
	req.Brand = strings.TrimSpace(req.Brand)
	req.Model = strings.TrimSpace(req.Model)

	if req.CustomerID == "" || req.Plate == "" || req.Brand == "" || req.Model == "" {
		return domain.Vehicle{}, store.ErrValidation
	}

	created, err := s.repo.CreateVehicle(ctx, domain.Vehicle{
		CustomerID: req.CustomerID,
		Plate:      req.Plate,
		Brand:      req.Brand,
		Model:      req.Model,
		Year:       req.Year,
	})
	if err != nil {
		return domain.Vehicle{}, err
	}
	return *created, nil
}

func (s *Service) GetVehicle(ctx context.Context, id string) (domain.Vehicle, error) {
	vehicle, err := s.repo.GetVehicleByID(ctx, id)
	if err != nil {
		return domain.Vehicle{}, err
	}
	return *vehicle, nil
}

func (s *Service) UpdateVehicle(ctx context.Context, id string, req domain.VehicleUpdateRequest) (domain.Vehicle, error) {
	existing, err := s.repo.GetVehicleByID(ctx, id)
	if err != nil {
		return domain.Vehicle{}, err
	}

	updated := *existing
	if req.Plate != nil {
		plate := strings.ToUpper(strings.TrimSpace(*req.Plate))
		if plate == "" {
			return domain.Vehicle{}, store.ErrValidation
		}
		updated.Plate = plate
	}
	if req.Brand != nil {
		updated.Brand = strings.TrimSpace(*req.Brand)
	}
	if req.Model != nil {
		updated.Model = strings.TrimSpace(*req.Model)
	}
	if req.Year != nil {
		updated.Year = *req.Year
	}

	saved, err := s.repo.UpdateVehicle(ctx, updated)
	if err != nil {
		return domain.Vehicle{}, err
	}
	return *saved, nil
}

func (s *Service) DeleteVehicle(ctx context.Context, id string) error {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return fmt.Errorf("admin role required")
	}
	return s.repo.DeleteVehicle(ctx, id)
}

func (s *Service) CreateAppointment(ctx context.Context, req domain.AppointmentCreateRequest) (domain.Appointment, error) {
	req.CustomerID = strings.TrimSpace(req.CustomerID)
	req.VehicleID = strings.TrimSpace(req.VehicleID)

	if req.CustomerID == "" || req.VehicleID == "" || req.ScheduledAt.IsZero() {
		return domain.Appointment{}, store.ErrValidation
	}

	created, err := s.repo.CreateAppointment(ctx, domain.Appointment{
		CustomerID:  req.CustomerID,
		VehicleID:   req.VehicleID,
		ScheduledAt: req.ScheduledAt.UTC(),
		Notes:       strings.TrimSpace(req.Notes),
		Status:      domain.AppointmentStatusScheduled,
	})
	if err != nil {
		return domain.Appointment{}, err
	}
	return *created, nil
}

func (s *Service) ListAppointments(ctx context.Context, status string) ([]domain.Appointment, error) {
	return s.repo.ListAppointments(ctx, strings.TrimSpace(status))
}

func (s *Service) CancelAppointment(ctx context.Context, id string) (domain.Appointment, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Appointment{}, store.ErrValidation
	}
	cancelled, err := s.repo.CancelAppointment(ctx, id)
	if err != nil {
		return domain.Appointment{}, err
	}
	return *cancelled, nil
}

func (s *Service) ConvertAppointment(ctx context.Context, id string) (domain.Jobsheet, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Jobsheet{}, store.ErrValidation
	}
	jobsheet, err := s.repo.ConvertAppointment(ctx, id)
	if err != nil {
		return domain.Jobsheet{}, err
	}
	return *jobsheet, nil
}

func (s *Service) CreateJobsheet(ctx context.Context, req domain.JobsheetCreateRequest) (domain.Jobsheet, error) {
	req.CustomerID = strings.TrimSpace(req.CustomerID)
	req.VehicleID = strings.TrimSpace(req.VehicleID)
	if req.CustomerID == "" || req.VehicleID == "" {
		return domain.Jobsheet{}, store.ErrValidation
	}

	created, err := s.repo.CreateJobsheet(ctx, domain.Jobsheet{
		CustomerID: req.CustomerID,
		VehicleID:  req.VehicleID,
		Notes:      strings.TrimSpace(req.Notes),
	})
	if err != nil {
		return domain.Jobsheet{}, err
	}
	return *created, nil
}

func (s *Service) ListJobsheets(ctx context.Context, state string) ([]domain.Jobsheet, error) {
	state = strings.TrimSpace(state)
	if state != "" && !domain.IsValidJobsheetState(state) {
		return nil, store.ErrValidation
	}
	return s.repo.ListJobsheets(ctx, state)
}

func (s *Service) UpdateJobsheetState(ctx context.Context, id string, req domain.JobsheetStateRequest) (domain.Jobsheet, error) {
	id = strings.TrimSpace(id)
	req.State = strings.TrimSpace(req.State)
	if id == "" || !domain.IsValidJobsheetState(req.State) {
		return domain.Jobsheet{}, store.ErrValidation
	}

	updated, err := s.repo.UpdateJobsheetState(ctx, id, req.State)
	if err != nil {
		return domain.Jobsheet{}, err
	}
	s.invalidateDetail(ctx, id)
	return *updated, nil
}

// GetJobsheetDetail serves the read view from cache when possible. The cache
// entry is dropped on every mutation, so staleness is bounded by the TTL.
func (s *Service) GetJobsheetDetail(ctx context.Context, id string) (domain.JobsheetDetail, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.JobsheetDetail{}, store.ErrValidation
	}

	if cached, hit, err := s.cache.Get(ctx, id); err != nil {
		log.Printf("[service] WARN: jobsheet cache get id=%s: %v", id, err)
	} else if hit {
		return *cached, nil
	}

	detail, err := s.repo.GetJobsheetDetail(ctx, id)
	if err != nil {
		return domain.JobsheetDetail{}, err
	}

	if err := s.cache.Set(ctx, id, detail, s.cacheTTL); err != nil {
		log.Printf("[service] WARN: jobsheet cache set id=%s: %v", id, err)
	}
	return *detail, nil
}

func (s *Service) DeleteJobsheet(ctx context.Context, id string) error {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return fmt.Errorf("admin role required")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return store.ErrValidation
	}

	if err := s.repo.DeleteJobsheet(ctx, id); err != nil {
		return err
	}
	s.invalidateDetail(ctx, id)
	return nil
}

func (s *Service) AddItem(ctx context.Context, req domain.ItemAddRequest) (domain.JobsheetItem, error) {
	req.JobsheetID = strings.TrimSpace(req.JobsheetID)
	req.ProductID = strings.TrimSpace(req.ProductID)
	if req.JobsheetID == "" || req.ProductID == "" {
		return domain.JobsheetItem{}, store.ErrValidation
	}
	if req.Qty < 1 {
		return domain.JobsheetItem{}, store.ErrValidation
	}

	item := domain.JobsheetItem{
		JobsheetID: req.JobsheetID,
		ProductID:  req.ProductID,
		Qty:        req.Qty,
	}
	priceProvided := req.PriceCents != nil
	if priceProvided {
		if *req.PriceCents < 1 {
			return domain.JobsheetItem{}, store.ErrValidation
		}
		item.PriceCents = *req.PriceCents
	}

	created, err := s.repo.AddJobsheetItem(ctx, item, priceProvided)
	if err != nil {
		return domain.JobsheetItem{}, err
	}
	s.invalidateDetail(ctx, req.JobsheetID)
	return *created, nil
}

func (s *Service) UpdateItem(ctx context.Context, itemID string, req domain.ItemUpdateRequest) (domain.JobsheetItem, error) {
	itemID = strings.TrimSpace(itemID)
	if itemID == "" || req.Qty < 1 || req.PriceCents < 1 {
		return domain.JobsheetItem{}, store.ErrValidation
	}

	updated, err := s.repo.UpdateJobsheetItem(ctx, itemID, req.Qty, req.PriceCents)
	if err != nil {
		return domain.JobsheetItem{}, err
	}
	s.invalidateDetail(ctx, updated.JobsheetID)
	return *updated, nil
}

func (s *Service) DeleteItem(ctx context.Context, jobsheetID string, itemID string) error {
	jobsheetID = strings.TrimSpace(jobsheetID)
	itemID = strings.TrimSpace(itemID)
	if jobsheetID == "" || itemID == "" {
		return store.ErrValidation
	}

	if err := s.repo.DeleteJobsheetItem(ctx, jobsheetID, itemID); err != nil {
		return err
	}
	s.invalidateDetail(ctx, jobsheetID)
	return nil
}

func (s *Service) AddLabor(ctx context.Context, req domain.LaborAddRequest) (domain.LaborEntry, error) {
	req.JobsheetID = strings.TrimSpace(req.JobsheetID)
	req.Description = strings.TrimSpace(req.Description)
	if req.JobsheetID == "" || req.Description == "" {
		return domain.LaborEntry{}, store.ErrValidation
	}
	if req.PriceCents < 0 {
		return domain.LaborEntry{}, store.ErrValidation
	}
	// A completed entry always carries a positive price.
	if req.IsCompleted && req.PriceCents < 1 {
		return domain.LaborEntry{}, store.ErrValidation
	}

	created, err := s.repo.AddLabor(ctx, domain.LaborEntry{
		JobsheetID:  req.JobsheetID,
		Description: req.Description,
		PriceCents:  req.PriceCents,
		IsCompleted: req.IsCompleted,
	})
	if err != nil {
		return domain.LaborEntry{}, err
	}
	s.invalidateDetail(ctx, req.JobsheetID)
	return *created, nil
}

func (s *Service) UpdateLabor(ctx context.Context, laborID string, req domain.LaborUpdateRequest) (domain.LaborEntry, error) {
	laborID = strings.TrimSpace(laborID)
	if laborID == "" {
		return domain.LaborEntry{}, store.ErrValidation
	}
	if req.Description != nil {
		trimmed := strings.TrimSpace(*req.Description)
		if trimmed == "" {
			return domain.LaborEntry{}, store.ErrValidation
		}
		req.Description = &trimmed
	}
	if req.PriceCents != nil && *req.PriceCents < 0 {
		return domain.LaborEntry{}, store.ErrValidation
	}

	updated, err := s.repo.UpdateLabor(ctx, laborID, req)
	if err != nil {
		return domain.LaborEntry{}, err
	}
	s.invalidateDetail(ctx, updated.JobsheetID)
	return *updated, nil
}

func (s *Service) DeleteLabor(ctx context.Context, jobsheetID string, laborID string) error {
	jobsheetID = strings.TrimSpace(jobsheetID)
	laborID = strings.TrimSpace(laborID)
	if jobsheetID == "" || laborID == "" {
		return store.ErrValidation
	}

	if err := s.repo.DeleteLabor(ctx, jobsheetID, laborID); err != nil {
		return err
	}
	s.invalidateDetail(ctx, jobsheetID)
	return nil
}

func (s *Service) AddPayment(ctx context.Context, req domain.PaymentAddRequest) (domain.Payment, error) {
	req.JobsheetID = strings.TrimSpace(req.JobsheetID)
	req.Method = strings.ToLower(strings.TrimSpace(req.Method))
	if req.JobsheetID == "" || req.AmountCents < 1 {
		return domain.Payment{}, store.ErrValidation
	}
	if !domain.IsValidPaymentMethod(req.Method) {
		return domain.Payment{}, store.ErrValidation
	}

	payment := domain.Payment{
		JobsheetID:  req.JobsheetID,
		AmountCents: req.AmountCents,
		Method:      req.Method,
	}
	if req.PaymentDate != nil {
		payment.PaymentDate = req.PaymentDate.UTC()
	}

	created, err := s.repo.AddPayment(ctx, payment)
	if err != nil {
		return domain.Payment{}, err
	}
	s.invalidateDetail(ctx, req.JobsheetID)
	return *created, nil
}

func (s *Service) UpdatePayment(ctx context.Context, paymentID string, req domain.PaymentUpdateRequest) (domain.Payment, error) {
	paymentID = strings.TrimSpace(paymentID)
	if paymentID == "" {
		return domain.Payment{}, store.ErrValidation
	}
	if req.AmountCents != nil && *req.AmountCents < 1 {
		return domain.Payment{}, store.ErrValidation
	}
	if req.Method != nil {
		method := strings.ToLower(strings.TrimSpace(*req.Method))
		if !domain.IsValidPaymentMethod(method) {
			return domain.Payment{}, store.ErrValidation
		}
		req.Method = &method
	}

	updated, err := s.repo.UpdatePayment(ctx, paymentID, req)
	if err != nil {
		return domain.Payment{}, err
	}
	s.invalidateDetail(ctx, updated.JobsheetID)
	return *updated, nil
}

func (s *Service) DeletePayment(ctx context.Context, jobsheetID string, paymentID string) error {
	jobsheetID = strings.TrimSpace(jobsheetID)
	paymentID = strings.TrimSpace(paymentID)
	if jobsheetID == "" || paymentID == "" {
		return store.ErrValidation
	}

	if err := s.repo.DeletePayment(ctx, jobsheetID, paymentID); err != nil {
		return err
	}
	s.invalidateDetail(ctx, jobsheetID)
	return nil
}

func (s *Service) invalidateDetail(ctx context.Context, jobsheetID string) {
	if jobsheetID == "" {
		return
	}
	if err := s.cache.Invalidate(ctx, jobsheetID); err != nil {
		log.Printf("[service] WARN: jobsheet cache invalidate id=%s: %v", jobsheetID, err)
	}
}
