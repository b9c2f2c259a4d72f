package store

import (
	"context"
	"errors"

	"bengkelinaja/internal/domain"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrValidation        = errors.New("validation failed")
)

// Repository is the persistence boundary. Every mutating ledger operation
// (item, labor, payment, jobsheet delete, appointment convert) maps to one
// database transaction inside the implementation: it either commits fully or
// rolls back fully, and stock locking happens on the product row within that
// transaction.
type Repository interface {
	ListProducts(ctx context.Context) ([]domain.Product, error)
	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	GetProductByID(ctx context.Context, id string) (*domain.Product, error)
	UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	DeleteProduct(ctx context.Context, id string) error

	ListCustomers(ctx context.Context) ([]domain.Customer, error)
	CreateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error)
	GetCustomerByID(ctx context.Context, id string) (*domain.Customer, error)
	UpdateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error)
	DeleteCustomer(ctx context.Context, id string) error

	ListVehicles(ctx context.Context, customerID string) ([]domain.Vehicle, error)
	CreateVehicle(ctx context.Context, vehicle domain.Vehicle) (*domain.Vehicle, error)
	GetVehicleByID(ctx context.Context, id string) (*domain.Vehicle, error)
	UpdateVehicle(ctx context.Context, vehicle domain.Vehicle) (*domain.Vehicle, error)
	DeleteVehicle(ctx context.Context, id string) error

	CreateAppointment(ctx context.Context, appointment domain.Appointment) (*domain.Appointment, error)
	ListAppointments(ctx context.Context, status string) ([]domain.Appointment, error)
	CancelAppointment(ctx context.Context, id string) (*domain.Appointment, error)
	ConvertAppointment(ctx context.Context, id string) (*domain.Jobsheet, error)

	CreateJobsheet(ctx context.Context, jobsheet domain.Jobsheet) (*domain.Jobsheet, error)
	ListJobsheets(ctx context.Context, state string) ([]domain.Jobsheet, error)
	UpdateJobsheetState(ctx context.Context, id string, state string) (*domain.Jobsheet, error)
	GetJobsheetDetail(ctx context.Context, id string) (*domain.JobsheetDetail, error)
	DeleteJobsheet(ctx context.Context, id string) error

	AddJobsheetItem(ctx context.Context, item domain.JobsheetItem, priceProvided bool) (*domain.JobsheetItem, error)
	UpdateJobsheetItem(ctx context.Context, itemID string, qty int, priceCents int64) (*domain.JobsheetItem, error)
	DeleteJobsheetItem(ctx context.Context, jobsheetID string, itemID string) error

	AddLabor(ctx context.Context, entry domain.LaborEntry) (*domain.LaborEntry, error)
	UpdateLabor(ctx context.Context, laborID string, req domain.LaborUpdateRequest) (*domain.LaborEntry, error)
	DeleteLabor(ctx context.Context, jobsheetID string, laborID string) error

	AddPayment(ctx context.Context, payment domain.Payment) (*domain.Payment, error)
	UpdatePayment(ctx context.Context, paymentID string, req domain.PaymentUpdateRequest) (*domain.Payment, error)
	DeletePayment(ctx context.Context, jobsheetID string, paymentID string) error

	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}
