package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/showroomhq/testdrive-core/internal/domain"
)

// BookingRepo is the pgx-backed persistence collaborator for durable
// test-drive bookings. The hold manager treats it as external: its calls
// may block or fail independently and are never made under the hold store
// lock.
type BookingRepo struct{ pool *pgxpool.Pool }

func NewBookingRepo(pool *pgxpool.Pool) *BookingRepo { return &BookingRepo{pool: pool} }

const bookingCols = `id, showroom_id, slot_date, start_time, car_model_id,
customer_name, customer_email, customer_phone,
status, sales_exec_id, created_at`

func scanBooking(row pgx.Row) (domain.BookingSummary, error) {
	var (
		b          domain.BookingSummary
		email      string
		phone      string
		carModelID *string
		salesExec  *string
	)
	err := row.Scan(
		&b.ID, &b.Slot.ShowroomID, &b.Slot.Date, &b.Slot.StartTime, &carModelID,
		&b.CustomerName, &email, &phone,
		&b.Status, &salesExec, &b.CreatedAt,
	)
	if err != nil {
		return domain.BookingSummary{}, err
	}
	if carModelID != nil {
		b.Slot.CarModelID = *carModelID
	}
	if salesExec != nil {
		b.SalesExecID = *salesExec
	}
	return b, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func (r *BookingRepo) CreateBooking(ctx context.Context, slot domain.SlotKey, customer domain.CustomerInfo) (domain.BookingSummary, error) {
	const q = `INSERT INTO test_drive_bookings (
    id, showroom_id, slot_date, start_time, car_model_id,
    customer_name, customer_email, customer_phone, status
  ) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,'confirmed')
  RETURNING ` + bookingCols

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	row := r.pool.QueryRow(ctx, q, uuid.NewString(),
		slot.ShowroomID, slot.Date, slot.StartTime, nullable(slot.CarModelID),
		customer.Name, customer.Email, customer.Phone,
	)
	return scanBooking(row)
}

func (r *BookingRepo) CancelBooking(ctx context.Context, bookingID string) (domain.BookingSummary, error) {
	const q = `UPDATE test_drive_bookings
  SET status='canceled', updated_at=now()
  WHERE id=$1 AND status <> 'canceled'
  RETURNING ` + bookingCols

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	b, err := scanBooking(r.pool.QueryRow(ctx, q, bookingID))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.BookingSummary{}, fmt.Errorf("booking %s: %w", bookingID, domain.ErrNotFound)
	}
	return b, err
}

func (r *BookingRepo) UpdateStatus(ctx context.Context, bookingID string, status domain.BookingStatus) (domain.BookingSummary, error) {
	const q = `UPDATE test_drive_bookings
  SET status=$2, updated_at=now()
  WHERE id=$1
  RETURNING ` + bookingCols

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	b, err := scanBooking(r.pool.QueryRow(ctx, q, bookingID, status))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.BookingSummary{}, fmt.Errorf("booking %s: %w", bookingID, domain.ErrNotFound)
	}
	return b, err
}

func (r *BookingRepo) AssignSalesExec(ctx context.Context, bookingID, salesExecID string) (domain.BookingSummary, error) {
	const q = `UPDATE test_drive_bookings
  SET sales_exec_id=$2, status='assigned', updated_at=now()
  WHERE id=$1
  RETURNING ` + bookingCols

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	b, err := scanBooking(r.pool.QueryRow(ctx, q, bookingID, salesExecID))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.BookingSummary{}, fmt.Errorf("booking %s: %w", bookingID, domain.ErrNotFound)
	}
	return b, err
}

// SlotBooked reports whether an active booking already occupies the slot.
// The hold manager consults this on acquire to short-circuit slots that
// were durably booked before this process started.
func (r *BookingRepo) SlotBooked(ctx context.Context, slot domain.SlotKey) (bool, error) {
	const q = `SELECT EXISTS (
    SELECT 1 FROM test_drive_bookings
    WHERE showroom_id=$1 AND slot_date=$2 AND start_time=$3
      AND ($4::text IS NULL OR car_model_id=$4 OR car_model_id IS NULL)
      AND status <> 'canceled'
  )`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var exists bool
	err := r.pool.QueryRow(ctx, q,
		slot.ShowroomID, slot.Date, slot.StartTime, nullable(slot.CarModelID),
	).Scan(&exists)
	return exists, err
}
