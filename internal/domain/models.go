package domain

import "time"

type Product struct {
	ID        string    `json:"id"`
	SKU       string    `json:"sku"`
	Name      string    `json:"name"`
	Stock     int       `json:"stock"`
	CostCents int64     `json:"cost_cents"`
	SaleCents int64     `json:"sale_cents"`
	CreatedAt time.Time `json:"created_at"`
}

type ProductCreateRequest struct {
	SKU       string `json:"sku"`
	Name      string `json:"name"`
	Stock     int    `json:"stock"`
	CostCents int64  `json:"cost_cents"`
	SaleCents int64  `json:"sale_cents"`
}

type ProductUpdateRequest struct {
	SKU       *string `json:"sku,omitempty"`
	Name      *string `json:"name,omitempty"`
	CostCents *int64  `json:"cost_cents,omitempty"`
	SaleCents *int64  `json:"sale_cents,omitempty"`
}

type Customer struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone,omitempty"`
	Email     string    `json:"email,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type CustomerCreateRequest struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
	Email string `json:"email"`
}

type CustomerUpdateRequest struct {
	Name  *string `json:"name,omitempty"`
	Phone *string `json:"phone,omitempty"`
	Email *string `json:"email,omitempty"`
}

type Vehicle struct {
	ID         string    `json:"id"`
	CustomerID string    `json:"customer_id"`
	Plate      string    `json:"plate"`
	Brand      string    `json:"brand"`
	Model      string    `json:"model"`
	Year       int       `json:"year,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

type VehicleCreateRequest struct {
	CustomerID string `json:"customer_id"`
	Plate      string `json:"plate"`
	Brand      string `json:"brand"`
	Model      string `json:"model"`
	Year       int    `json:"year"`
}

type VehicleUpdateRequest struct {
	Plate *string `json:"plate,omitempty"`
	Brand *string `json:"brand,omitempty"`
	Model *string `json:"model,omitempty"`
	Year  *int    `json:"year,omitempty"`
}

type Appointment struct {
	ID          string    `json:"id"`
	CustomerID  string    `json:"customer_id"`
	VehicleID   string    `json:"vehicle_id"`
	ScheduledAt time.Time `json:"scheduled_at"`
	Notes       string    `json:"notes,omitempty"`
	Status      string    `json:"status"`
	JobsheetID  string    `json:"jobsheet_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

type AppointmentCreateRequest struct {
	CustomerID  string    `json:"customer_id"`
	VehicleID   string    `json:"vehicle_id"`
	ScheduledAt time.Time `json:"scheduled_at"`
	Notes       string    `json:"notes"`
}

// Jobsheet is the work order aggregate root. TotalAmountCents is derived and
// cached on the row: the store rewrites it after every item or completed-labor
// mutation and nothing else may edit it.
type Jobsheet struct {
	ID               string    `json:"id"`
	CustomerID       string    `json:"customer_id"`
	VehicleID        string    `json:"vehicle_id"`
	State            string    `json:"state"`
	Notes            string    `json:"notes,omitempty"`
	TotalAmountCents int64     `json:"total_amount_cents"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

type JobsheetCreateRequest struct {
	CustomerID string `json:"customer_id"`
	VehicleID  string `json:"vehicle_id"`
	Notes      string `json:"notes"`
}

type JobsheetStateRequest struct {
	State string `json:"state"`
}

// JobsheetItem reserves stock on its product for as long as it exists:
// inserting one decrements Product.Stock by Qty and deleting it restores it.
type JobsheetItem struct {
	ID         string    `json:"id"`
	JobsheetID string    `json:"jobsheet_id"`
	ProductID  string    `json:"product_id"`
	Qty        int       `json:"qty"`
	PriceCents int64     `json:"price_cents"`
	CreatedAt  time.Time `json:"created_at"`
}

type ItemAddRequest struct {
	JobsheetID string `json:"jobsheet_id"`
	ProductID  string `json:"product_id"`
	Qty        int    `json:"qty"`
	// PriceCents defaults to the product sale price when omitted.
	PriceCents *int64 `json:"price_cents,omitempty"`
}

type ItemUpdateRequest struct {
	Qty        int   `json:"qty"`
	PriceCents int64 `json:"price_cents"`
}

type LaborEntry struct {
	ID          string     `json:"id"`
	JobsheetID  string     `json:"jobsheet_id"`
	Description string     `json:"description"`
	PriceCents  int64      `json:"price_cents"`
	IsCompleted bool       `json:"is_completed"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

type LaborAddRequest struct {
	JobsheetID  string `json:"jobsheet_id"`
	Description string `json:"description"`
	PriceCents  int64  `json:"price_cents"`
	IsCompleted bool   `json:"is_completed"`
}

type LaborUpdateRequest struct {
	Description *string `json:"description,omitempty"`
	PriceCents  *int64  `json:"price_cents,omitempty"`
	IsCompleted *bool   `json:"is_completed,omitempty"`
}

type Payment struct {
	ID          string    `json:"id"`
	JobsheetID  string    `json:"jobsheet_id"`
	AmountCents int64     `json:"amount_cents"`
	Method      string    `json:"method"`
	PaymentDate time.Time `json:"payment_date"`
	CreatedAt   time.Time `json:"created_at"`
}

type PaymentAddRequest struct {
	JobsheetID  string     `json:"jobsheet_id"`
	AmountCents int64      `json:"amount_cents"`
	Method      string     `json:"method"`
	PaymentDate *time.Time `json:"payment_date,omitempty"`
}

type PaymentUpdateRequest struct {
	AmountCents *int64     `json:"amount_cents,omitempty"`
	Method      *string    `json:"method,omitempty"`
	PaymentDate *time.Time `json:"payment_date,omitempty"`
}

// JobsheetDetail is the presentation snapshot composed from independent
// queries. BalanceCents is computed at read time and never persisted.
type JobsheetDetail struct {
	Jobsheet           Jobsheet       `json:"jobsheet"`
	Customer           *Customer      `json:"customer,omitempty"`
	Vehicle            *Vehicle       `json:"vehicle,omitempty"`
	Items              []JobsheetItem `json:"items"`
	Labor              []LaborEntry   `json:"labor"`
	Payments           []Payment      `json:"payments"`
	TotalItemsCents    int64          `json:"total_items_cents"`
	TotalPaymentsCents int64          `json:"total_payments_cents"`
	BalanceCents       int64          `json:"balance_cents"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	Username string
	Role     string
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Username  string
	Password  string
	Role      string
	Active    bool
	CreatedAt time.Time
}

const (
	JobsheetStatePending    = "pending"
	JobsheetStateInProgress = "in_progress"
	JobsheetStateCompleted  = "completed"
	JobsheetStateCancelled  = "cancelled"
)

const (
	AppointmentStatusScheduled = "scheduled"
	AppointmentStatusConverted = "converted"
	AppointmentStatusCancelled = "cancelled"
)

const (
	PaymentMethodCash       = "cash"
	PaymentMethodCreditCard = "credit_card"
	PaymentMethodDebitCard  = "debit_card"
	PaymentMethodTransfer   = "transfer"
	PaymentMethodCheck      = "check"
	PaymentMethodOther      = "other"
)

func IsValidJobsheetState(state string) bool {
	switch state {
	case JobsheetStatePending, JobsheetStateInProgress, JobsheetStateCompleted, JobsheetStateCancelled:
		return true
	}
	return false
}

func IsValidPaymentMethod(method string) bool {
	switch method {
	case PaymentMethodCash, PaymentMethodCreditCard, PaymentMethodDebitCard,
		PaymentMethodTransfer, PaymentMethodCheck, PaymentMethodOther:
		return true
	}
	return false
}
