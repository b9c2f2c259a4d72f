package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"bengkelinaja/internal/domain"
	"bengkelinaja/internal/store"
	"bengkelinaja/internal/xid"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) ListProducts(ctx context.Context) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, sku, name, stock, cost_cents, sale_cents, created_at
		FROM products
		ORDER BY name ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 64)
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.SKU, &p.Name, &p.Stock, &p.CostCents, &p.SaleCents, &p.CreatedAt); err != nil {
			return nil, err
		}
		p.CreatedAt = p.CreatedAt.UTC()
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return products, nil
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.ID == "" {
		product.ID = xid.New("prod")
	}
	if product.CreatedAt.IsZero() {
		product.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO products (id, sku, name, stock, cost_cents, sale_cents, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, product.ID, product.SKU, product.Name, product.Stock, product.CostCents, product.SaleCents, product.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrValidation
		}
		return nil, err
	}

	created := product
	return &created, nil
}

func (s *Store) GetProductByID(ctx context.Context, id string) (*domain.Product, error) {
	var p domain.Product
	err := s.db.QueryRowContext(ctx, `
		SELECT id, sku, name, stock, cost_cents, sale_cents, created_at
		FROM products
		WHERE id = $1
	`, id).Scan(&p.ID, &p.SKU, &p.Name, &p.Stock, &p.CostCents, &p.SaleCents, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	p.CreatedAt = p.CreatedAt.UTC()
	return &p, nil
}

// UpdateProduct changes descriptive fields and prices only. Stock is owned by
// the item operations and is deliberately absent from the SET list.
func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE products
		SET sku = $2, name = $3, cost_cents = $4, sale_cents = $5
		WHERE id = $1
	`, product.ID, product.SKU, product.Name, product.CostCents, product.SaleCents)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrValidation
		}
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}
	updated := product
	return &updated, nil
}

func (s *Store) DeleteProduct(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		// Items referencing the product keep it alive.
		if isForeignKeyViolation(err) {
			return store.ErrValidation
		}
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) ListCustomers(ctx context.Context) ([]domain.Customer, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, COALESCE(phone,''), COALESCE(email,''), created_at
		FROM customers
		ORDER BY name ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	customers := make([]domain.Customer, 0, 64)
	for rows.Next() {
		var c domain.Customer
		if err := rows.Scan(&c.ID, &c.Name, &c.Phone, &c.Email, &c.CreatedAt); err != nil {
			return nil, err
		}
		c.CreatedAt = c.CreatedAt.UTC()
		customers = append(customers, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return customers, nil
}

func (s *Store) CreateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error) {
	if customer.ID == "" {
		customer.ID = xid.New("cus")
	}
	if customer.CreatedAt.IsZero() {
		customer.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO customers (id, name, phone, email, created_at)
		VALUES ($1,$2,$3,$4,$5)
	`, customer.ID, customer.Name, nullIfEmpty(customer.Phone), nullIfEmpty(customer.Email), customer.CreatedAt)
	if err != nil {
		return nil, err
	}
	created := customer
	return &created, nil
}

func (s *Store) GetCustomerByID(ctx context.Context, id string) (*domain.Customer, error) {
	var c domain.Customer
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, COALESCE(phone,''), COALESCE(email,''), created_at
		FROM customers
		WHERE id = $1
	`, id).Scan(&c.ID, &c.Name, &c.Phone, &c.Email, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	c.CreatedAt = c.CreatedAt.UTC()
	return &c, nil
}

func (s *Store) UpdateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE customers
		SET name = $2, phone = $3, email = $4
		WHERE id = $1
	`, customer.ID, customer.Name, nullIfEmpty(customer.Phone), nullIfEmpty(customer.Email))
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}
	updated := customer
	return &updated, nil
}

func (s *Store) DeleteCustomer(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM customers WHERE id = $1`, id)
	if err != nil {
		if isForeignKeyViolation(err) {
			return store.ErrValidation
		}
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) ListVehicles(ctx context.Context, customerID string) ([]domain.Vehicle, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, customer_id, plate, brand, model, COALESCE(year,0), created_at
		FROM vehicles
		WHERE ($1 = '' OR customer_id = $1)
		ORDER BY created_at DESC
	`, customerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	vehicles := make([]domain.Vehicle, 0, 32)
	for rows.Next() {
		var v domain.Vehicle
		if err := rows.Scan(&v.ID, &v.CustomerID, &v.Plate, &v.Brand, &v.Model, &v.Year, &v.CreatedAt); err != nil {
			return nil, err
		}
		v.CreatedAt = v.CreatedAt.UTC()
		vehicles = append(vehicles, v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return vehicles, nil
}

func (s *Store) CreateVehicle(ctx context.Context, vehicle domain.Vehicle) (*domain.Vehicle, error) {
	if vehicle.ID == "" {
		vehicle.ID = xid.New("veh")
	}
	if vehicle.CreatedAt.IsZero() {
		vehicle.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO vehicles (id, customer_id, plate, brand, model, year, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, vehicle.ID, vehicle.CustomerID, vehicle.Plate, vehicle.Brand, vehicle.Model, vehicle.Year, vehicle.CreatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	created := vehicle
	return &created, nil
}

func (s *Store) GetVehicleByID(ctx context.Context, id string) (*domain.Vehicle, error) {
	var v domain.Vehicle
	err := s.db.QueryRowContext(ctx, `
		SELECT id, customer_id, plate, brand, model, COALESCE(year,0), created_at
		FROM vehicles
		WHERE id = $1
	`, id).Scan(&v.ID, &v.CustomerID, &v.Plate, &v.Brand, &v.Model, &v.Year, &v.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	v.CreatedAt = v.CreatedAt.UTC()
	return &v, nil
}

func (s *Store) UpdateVehicle(ctx context.Context, vehicle domain.Vehicle) (*domain.Vehicle, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE vehicles
		SET plate = $2, brand = $3, model = $4, year = $5
		WHERE id = $1
	`, vehicle.ID, vehicle.Plate, vehicle.Brand, vehicle.Model, vehicle.Year)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}
	updated := vehicle
	return &updated, nil
}

func (s *Store) DeleteVehicle(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM vehicles WHERE id = $1`, id)
	if err != nil {
		if isForeignKeyViolation(err) {
			return store.ErrValidation
		}
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) CreateAppointment(ctx context.Context, appointment domain.Appointment) (*domain.Appointment, error) {
	if appointment.ID == "" {
		appointment.ID = xid.New("apt")
	}
	if appointment.Status == "" {
		appointment.Status = domain.AppointmentStatusScheduled
	}
	if appointment.CreatedAt.IsZero() {
		appointment.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO appointments (id, customer_id, vehicle_id, scheduled_at, notes, status, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, appointment.ID, appointment.CustomerID, appointment.VehicleID, appointment.ScheduledAt,
		appointment.Notes, appointment.Status, appointment.CreatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	created := appointment
	return &created, nil
}

func (s *Store) ListAppointments(ctx context.Context, status string) ([]domain.Appointment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, customer_id, vehicle_id, scheduled_at, COALESCE(notes,''), status, COALESCE(jobsheet_id,''), created_at
		FROM appointments
		WHERE ($1 = '' OR status = $1)
		ORDER BY scheduled_at ASC
	`, status)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	appointments := make([]domain.Appointment, 0, 32)
	for rows.Next() {
		var a domain.Appointment
		if err := rows.Scan(&a.ID, &a.CustomerID, &a.VehicleID, &a.ScheduledAt, &a.Notes, &a.Status, &a.JobsheetID, &a.CreatedAt); err != nil {
			return nil, err
		}
		a.ScheduledAt = a.ScheduledAt.UTC()
		a.CreatedAt = a.CreatedAt.UTC()
		appointments = append(appointments, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return appointments, nil
}

func (s *Store) CancelAppointment(ctx context.Context, id string) (*domain.Appointment, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var a domain.Appointment
	err = tx.QueryRowContext(ctx, `
		SELECT id, customer_id, vehicle_id, scheduled_at, COALESCE(notes,''), status, COALESCE(jobsheet_id,''), created_at
		FROM appointments
		WHERE id = $1
		FOR UPDATE
	`, id).Scan(&a.ID, &a.CustomerID, &a.VehicleID, &a.ScheduledAt, &a.Notes, &a.Status, &a.JobsheetID, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if a.Status != domain.AppointmentStatusScheduled {
		return nil, store.ErrValidation
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE appointments SET status = $2 WHERE id = $1
	`, id, domain.AppointmentStatusCancelled)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	a.Status = domain.AppointmentStatusCancelled
	a.ScheduledAt = a.ScheduledAt.UTC()
	a.CreatedAt = a.CreatedAt.UTC()
	return &a, nil
}

// ConvertAppointment creates a pending jobsheet for the appointment's customer
// and vehicle and marks the appointment converted, as one transaction. A
// second conversion of the same appointment fails validation.
func (s *Store) ConvertAppointment(ctx context.Context, id string) (*domain.Jobsheet, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var customerID, vehicleID, status, notes string
	err = tx.QueryRowContext(ctx, `
		SELECT customer_id, vehicle_id, status, COALESCE(notes,'')
		FROM appointments
		WHERE id = $1
		FOR UPDATE
	`, id).Scan(&customerID, &vehicleID, &status, &notes)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if status != domain.AppointmentStatusScheduled {
		return nil, store.ErrValidation
	}

	now := time.Now().UTC()
	jobsheet := domain.Jobsheet{
		ID:         xid.New("js"),
		CustomerID: customerID,
		VehicleID:  vehicleID,
		State:      domain.JobsheetStatePending,
		Notes:      notes,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO jobsheets (id, customer_id, vehicle_id, state, notes, total_amount_cents, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,0,$6,$7)
	`, jobsheet.ID, jobsheet.CustomerID, jobsheet.VehicleID, jobsheet.State, jobsheet.Notes, jobsheet.CreatedAt, jobsheet.UpdatedAt)
	if err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE appointments SET status = $2, jobsheet_id = $3 WHERE id = $1
	`, id, domain.AppointmentStatusConverted, jobsheet.ID)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &jobsheet, nil
}

func (s *Store) CreateJobsheet(ctx context.Context, jobsheet domain.Jobsheet) (*domain.Jobsheet, error) {
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

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO jobsheets (id, customer_id, vehicle_id, state, notes, total_amount_cents, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,0,$6,$7)
	`, jobsheet.ID, jobsheet.CustomerID, jobsheet.VehicleID, jobsheet.State, jobsheet.Notes, jobsheet.CreatedAt, jobsheet.UpdatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	created := jobsheet
	return &created, nil
}

func (s *Store) ListJobsheets(ctx context.Context, state string) ([]domain.Jobsheet, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, customer_id, vehicle_id, state, COALESCE(notes,''), total_amount_cents, created_at, updated_at
		FROM jobsheets
		WHERE ($1 = '' OR state = $1)
		ORDER BY created_at DESC
	`, state)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	jobsheets := make([]domain.Jobsheet, 0, 32)
	for rows.Next() {
		var js domain.Jobsheet
		if err := rows.Scan(&js.ID, &js.CustomerID, &js.VehicleID, &js.State, &js.Notes, &js.TotalAmountCents, &js.CreatedAt, &js.UpdatedAt); err != nil {
			return nil, err
		}
		js.CreatedAt = js.CreatedAt.UTC()
		js.UpdatedAt = js.UpdatedAt.UTC()
		jobsheets = append(jobsheets, js)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return jobsheets, nil
}

func (s *Store) UpdateJobsheetState(ctx context.Context, id string, state string) (*domain.Jobsheet, error) {
	var js domain.Jobsheet
	err := s.db.QueryRowContext(ctx, `
		UPDATE jobsheets
		SET state = $2, updated_at = now()
		WHERE id = $1
		RETURNING id, customer_id, vehicle_id, state, COALESCE(notes,''), total_amount_cents, created_at, updated_at
	`, id, state).Scan(&js.ID, &js.CustomerID, &js.VehicleID, &js.State, &js.Notes, &js.TotalAmountCents, &js.CreatedAt, &js.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	js.CreatedAt = js.CreatedAt.UTC()
	js.UpdatedAt = js.UpdatedAt.UTC()
	return &js, nil
}

// GetJobsheetDetail assembles the read view from independent queries. It is
// deliberately not transactional: concurrent writers may land between the
// queries and the result is a best-effort snapshot.
func (s *Store) GetJobsheetDetail(ctx context.Context, id string) (*domain.JobsheetDetail, error) {
	var js domain.Jobsheet
	err := s.db.QueryRowContext(ctx, `
		SELECT id, customer_id, vehicle_id, state, COALESCE(notes,''), total_amount_cents, created_at, updated_at
		FROM jobsheets
		WHERE id = $1
	`, id).Scan(&js.ID, &js.CustomerID, &js.VehicleID, &js.State, &js.Notes, &js.TotalAmountCents, &js.CreatedAt, &js.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	js.CreatedAt = js.CreatedAt.UTC()
	js.UpdatedAt = js.UpdatedAt.UTC()

	items, err := s.listItems(ctx, id)
	if err != nil {
		return nil, err
	}
	labor, err := s.listLabor(ctx, id)
	if err != nil {
		return nil, err
	}
	payments, err := s.listPayments(ctx, id)
	if err != nil {
		return nil, err
	}

	detail := domain.JobsheetDetail{
		Jobsheet: js,
		Items:    items,
		Labor:    labor,
		Payments: payments,
	}
	for _, item := range items {
		detail.TotalItemsCents += int64(item.Qty) * item.PriceCents
	}
	for _, payment := range payments {
		detail.TotalPaymentsCents += payment.AmountCents
	}
	detail.BalanceCents = js.TotalAmountCents - detail.TotalPaymentsCents

	// Customer and vehicle enrich presentation only; a missing row never
	// fails the detail read.
	if customer, err := s.GetCustomerByID(ctx, js.CustomerID); err == nil {
		detail.Customer = customer
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	if vehicle, err := s.GetVehicleByID(ctx, js.VehicleID); err == nil {
		detail.Vehicle = vehicle
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	return &detail, nil
}

// DeleteJobsheet restores stock for every item, then removes items, labor,
// payments and the jobsheet row, all in one transaction.
func (s *Store) DeleteJobsheet(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var exists string
	err = tx.QueryRowContext(ctx, `SELECT id FROM jobsheets WHERE id = $1 FOR UPDATE`, id).Scan(&exists)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.ErrNotFound
		}
		return err
	}

	itemRows, err := tx.QueryContext(ctx, `
		SELECT product_id, qty
		FROM jobsheet_items
		WHERE jobsheet_id = $1
	`, id)
	if err != nil {
		return err
	}
	type restore struct {
		productID string
		qty       int
	}
	restores := make([]restore, 0, 8)
	for itemRows.Next() {
		var r restore
		if err := itemRows.Scan(&r.productID, &r.qty); err != nil {
			_ = itemRows.Close()
			return err
		}
		restores = append(restores, r)
	}
	if err := itemRows.Err(); err != nil {
		_ = itemRows.Close()
		return err
	}
	_ = itemRows.Close()

	for _, r := range restores {
		_, err := tx.ExecContext(ctx, `
			UPDATE products SET stock = stock + $1 WHERE id = $2
		`, r.qty, r.productID)
		if err != nil {
			return err
		}
	}

	for _, stmt := range []string{
		`DELETE FROM jobsheet_items WHERE jobsheet_id = $1`,
		`DELETE FROM labor_entries WHERE jobsheet_id = $1`,
		`DELETE FROM payments WHERE jobsheet_id = $1`,
		`DELETE FROM jobsheets WHERE id = $1`,
	} {
		if _, err := tx.ExecContext(ctx, stmt, id); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// AddJobsheetItem locks the product row, verifies stock, inserts the item and
// decrements stock as one transaction. When priceProvided is false the unit
// price resolves to the product's current sale price.
func (s *Store) AddJobsheetItem(ctx context.Context, item domain.JobsheetItem, priceProvided bool) (*domain.JobsheetItem, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var jobsheetID string
	err = tx.QueryRowContext(ctx, `SELECT id FROM jobsheets WHERE id = $1`, item.JobsheetID).Scan(&jobsheetID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	var stock int
	var saleCents int64
	err = tx.QueryRowContext(ctx, `
		SELECT stock, sale_cents
		FROM products
		WHERE id = $1
		FOR UPDATE
	`, item.ProductID).Scan(&stock, &saleCents)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if stock < item.Qty {
		return nil, store.ErrInsufficientStock
	}
	if !priceProvided {
		item.PriceCents = saleCents
	}

	if item.ID == "" {
		item.ID = xid.New("itm")
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now().UTC()
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO jobsheet_items (id, jobsheet_id, product_id, qty, price_cents, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, item.ID, item.JobsheetID, item.ProductID, item.Qty, item.PriceCents, item.CreatedAt)
	if err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE products SET stock = stock - $1 WHERE id = $2
	`, item.Qty, item.ProductID)
	if err != nil {
		return nil, err
	}

	if err := recomputeJobsheetTotal(ctx, tx, item.JobsheetID); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	created := item
	return &created, nil
}

// UpdateJobsheetItem applies a new quantity and unit price. The stock delta is
// the difference against the current quantity: an increase must fit in the
// locked stock snapshot, a decrease hands stock back.
func (s *Store) UpdateJobsheetItem(ctx context.Context, itemID string, qty int, priceCents int64) (*domain.JobsheetItem, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var item domain.JobsheetItem
	err = tx.QueryRowContext(ctx, `
		SELECT id, jobsheet_id, product_id, qty, price_cents, created_at
		FROM jobsheet_items
		WHERE id = $1
		FOR UPDATE
	`, itemID).Scan(&item.ID, &item.JobsheetID, &item.ProductID, &item.Qty, &item.PriceCents, &item.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	diff := qty - item.Qty
	if diff > 0 {
		var stock int
		err = tx.QueryRowContext(ctx, `
			SELECT stock FROM products WHERE id = $1 FOR UPDATE
		`, item.ProductID).Scan(&stock)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, store.ErrNotFound
			}
			return nil, err
		}
		if stock < diff {
			return nil, store.ErrInsufficientStock
		}
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE jobsheet_items SET qty = $2, price_cents = $3 WHERE id = $1
	`, itemID, qty, priceCents)
	if err != nil {
		return nil, err
	}

	if diff != 0 {
		_, err = tx.ExecContext(ctx, `
			UPDATE products SET stock = stock - $1 WHERE id = $2
		`, diff, item.ProductID)
		if err != nil {
			return nil, err
		}
	}

	if err := recomputeJobsheetTotal(ctx, tx, item.JobsheetID); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	item.Qty = qty
	item.PriceCents = priceCents
	item.CreatedAt = item.CreatedAt.UTC()
	return &item, nil
}

func (s *Store) DeleteJobsheetItem(ctx context.Context, jobsheetID string, itemID string) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	// Scoped to the jobsheet so an item id from another jobsheet is not
	// deletable through it.
	var productID string
	var qty int
	err = tx.QueryRowContext(ctx, `
		SELECT product_id, qty
		FROM jobsheet_items
		WHERE id = $1 AND jobsheet_id = $2
		FOR UPDATE
	`, itemID, jobsheetID).Scan(&productID, &qty)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.ErrNotFound
		}
		return err
	}

	_, err = tx.ExecContext(ctx, `DELETE FROM jobsheet_items WHERE id = $1`, itemID)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE products SET stock = stock + $1 WHERE id = $2
	`, qty, productID)
	if err != nil {
		return err
	}

	if err := recomputeJobsheetTotal(ctx, tx, jobsheetID); err != nil {
		return err
	}

	return tx.Commit()
}

func (s *Store) AddLabor(ctx context.Context, entry domain.LaborEntry) (*domain.LaborEntry, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var jobsheetID string
	err = tx.QueryRowContext(ctx, `SELECT id FROM jobsheets WHERE id = $1`, entry.JobsheetID).Scan(&jobsheetID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
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

	_, err = tx.ExecContext(ctx, `
		INSERT INTO labor_entries (id, jobsheet_id, description, price_cents, is_completed, completed_at, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, entry.ID, entry.JobsheetID, entry.Description, entry.PriceCents, entry.IsCompleted, nullTime(entry.CompletedAt), entry.CreatedAt)
	if err != nil {
		return nil, err
	}

	// Pending labor does not contribute to the total, so no recompute needed.
	if entry.IsCompleted {
		if err := recomputeJobsheetTotal(ctx, tx, entry.JobsheetID); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	created := entry
	return &created, nil
}

func (s *Store) UpdateLabor(ctx context.Context, laborID string, req domain.LaborUpdateRequest) (*domain.LaborEntry, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var entry domain.LaborEntry
	var completedAt sql.NullTime
	err = tx.QueryRowContext(ctx, `
		SELECT id, jobsheet_id, description, price_cents, is_completed, completed_at, created_at
		FROM labor_entries
		WHERE id = $1
		FOR UPDATE
	`, laborID).Scan(&entry.ID, &entry.JobsheetID, &entry.Description, &entry.PriceCents, &entry.IsCompleted, &completedAt, &entry.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if completedAt.Valid {
		at := completedAt.Time.UTC()
		entry.CompletedAt = &at
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

	completionChanged := updated.IsCompleted != entry.IsCompleted
	priceChanged := updated.PriceCents != entry.PriceCents

	if completionChanged && updated.IsCompleted {
		if updated.PriceCents <= 0 {
			return nil, store.ErrValidation
		}
		// completed_at is set once, on the first false->true transition.
		if updated.CompletedAt == nil {
			now := time.Now().UTC()
			updated.CompletedAt = &now
		}
	}
	if updated.IsCompleted && updated.PriceCents <= 0 {
		return nil, store.ErrValidation
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE labor_entries
		SET description = $2, price_cents = $3, is_completed = $4, completed_at = $5
		WHERE id = $1
	`, laborID, updated.Description, updated.PriceCents, updated.IsCompleted, nullTime(updated.CompletedAt))
	if err != nil {
		return nil, err
	}

	if completionChanged || (priceChanged && updated.IsCompleted) {
		if err := recomputeJobsheetTotal(ctx, tx, updated.JobsheetID); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	updated.CreatedAt = updated.CreatedAt.UTC()
	return &updated, nil
}

func (s *Store) DeleteLabor(ctx context.Context, jobsheetID string, laborID string) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var wasCompleted bool
	err = tx.QueryRowContext(ctx, `
		SELECT is_completed
		FROM labor_entries
		WHERE id = $1 AND jobsheet_id = $2
		FOR UPDATE
	`, laborID, jobsheetID).Scan(&wasCompleted)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.ErrNotFound
		}
		return err
	}

	_, err = tx.ExecContext(ctx, `DELETE FROM labor_entries WHERE id = $1`, laborID)
	if err != nil {
		return err
	}

	// Entries that never completed never contributed to the total.
	if wasCompleted {
		if err := recomputeJobsheetTotal(ctx, tx, jobsheetID); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (s *Store) AddPayment(ctx context.Context, payment domain.Payment) (*domain.Payment, error) {
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

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO payments (id, jobsheet_id, amount_cents, method, payment_date, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, payment.ID, payment.JobsheetID, payment.AmountCents, payment.Method, payment.PaymentDate, payment.CreatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	created := payment
	return &created, nil
}

func (s *Store) UpdatePayment(ctx context.Context, paymentID string, req domain.PaymentUpdateRequest) (*domain.Payment, error) {
	var payment domain.Payment
	err := s.db.QueryRowContext(ctx, `
		SELECT id, jobsheet_id, amount_cents, method, payment_date, created_at
		FROM payments
		WHERE id = $1
	`, paymentID).Scan(&payment.ID, &payment.JobsheetID, &payment.AmountCents, &payment.Method, &payment.PaymentDate, &payment.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
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

	res, err := s.db.ExecContext(ctx, `
		UPDATE payments
		SET amount_cents = $2, method = $3, payment_date = $4
		WHERE id = $1
	`, paymentID, payment.AmountCents, payment.Method, payment.PaymentDate)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}
	payment.PaymentDate = payment.PaymentDate.UTC()
	payment.CreatedAt = payment.CreatedAt.UTC()
	return &payment, nil
}

func (s *Store) DeletePayment(ctx context.Context, jobsheetID string, paymentID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM payments WHERE id = $1 AND jobsheet_id = $2`, paymentID, jobsheetID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	if user.Username == "" || user.Password == "" {
		return store.ErrValidation
	}
	if user.Role == "" {
		user.Role = "mechanic"
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO app_users (username, password, role, active, created_at)
		VALUES ($1,$2,$3,$4,$5)
	`, user.Username, user.Password, user.Role, user.Active, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrValidation
		}
		return err
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password, role, active, created_at
		FROM app_users
		ORDER BY username ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		var user domain.UserAccount
		if err := rows.Scan(&user.Username, &user.Password, &user.Role, &user.Active, &user.CreatedAt); err != nil {
			return nil, err
		}
		user.CreatedAt = user.CreatedAt.UTC()
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	if username == "" || password == "" {
		return store.ErrValidation
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE app_users SET password = $2 WHERE username = $1
	`, username, password)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) listItems(ctx context.Context, jobsheetID string) ([]domain.JobsheetItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, jobsheet_id, product_id, qty, price_cents, created_at
		FROM jobsheet_items
		WHERE jobsheet_id = $1
		ORDER BY created_at ASC
	`, jobsheetID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.JobsheetItem, 0, 8)
	for rows.Next() {
		var item domain.JobsheetItem
		if err := rows.Scan(&item.ID, &item.JobsheetID, &item.ProductID, &item.Qty, &item.PriceCents, &item.CreatedAt); err != nil {
			return nil, err
		}
		item.CreatedAt = item.CreatedAt.UTC()
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) listLabor(ctx context.Context, jobsheetID string) ([]domain.LaborEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, jobsheet_id, description, price_cents, is_completed, completed_at, created_at
		FROM labor_entries
		WHERE jobsheet_id = $1
		ORDER BY created_at ASC
	`, jobsheetID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]domain.LaborEntry, 0, 8)
	for rows.Next() {
		var entry domain.LaborEntry
		var completedAt sql.NullTime
		if err := rows.Scan(&entry.ID, &entry.JobsheetID, &entry.Description, &entry.PriceCents, &entry.IsCompleted, &completedAt, &entry.CreatedAt); err != nil {
			return nil, err
		}
		if completedAt.Valid {
			at := completedAt.Time.UTC()
			entry.CompletedAt = &at
		}
		entry.CreatedAt = entry.CreatedAt.UTC()
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

func (s *Store) listPayments(ctx context.Context, jobsheetID string) ([]domain.Payment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, jobsheet_id, amount_cents, method, payment_date, created_at
		FROM payments
		WHERE jobsheet_id = $1
		ORDER BY payment_date ASC
	`, jobsheetID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	payments := make([]domain.Payment, 0, 4)
	for rows.Next() {
		var payment domain.Payment
		if err := rows.Scan(&payment.ID, &payment.JobsheetID, &payment.AmountCents, &payment.Method, &payment.PaymentDate, &payment.CreatedAt); err != nil {
			return nil, err
		}
		payment.PaymentDate = payment.PaymentDate.UTC()
		payment.CreatedAt = payment.CreatedAt.UTC()
		payments = append(payments, payment)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return payments, nil
}

// recomputeJobsheetTotal re-sums items and completed labor from scratch and
// writes the result onto the jobsheet row. It runs inside the transaction of
// the mutation that made it necessary, so a rollback discards both together.
func recomputeJobsheetTotal(ctx context.Context, tx *sql.Tx, jobsheetID string) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE jobsheets
		SET total_amount_cents =
			COALESCE((SELECT SUM(qty * price_cents) FROM jobsheet_items WHERE jobsheet_id = $1), 0)
			+ COALESCE((SELECT SUM(price_cents) FROM labor_entries WHERE jobsheet_id = $1 AND is_completed), 0),
			updated_at = now()
		WHERE id = $1
	`, jobsheetID)
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23503"
	}
	return false
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}

func nullTime(val *time.Time) any {
	if val == nil {
		return nil
	}
	return *val
}
