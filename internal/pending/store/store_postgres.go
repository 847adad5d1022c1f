package store

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"enrollgate/internal/completeness"
	"enrollgate/internal/pending/models"
	"enrollgate/pkg/platform/sentinel"
)

// PostgresStore persists pending registrations in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
	tx *sql.Tx
}

// NewPostgres constructs a PostgreSQL-backed pending store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// NewPostgresTx constructs a PostgreSQL-backed pending store bound to a transaction.
func NewPostgresTx(tx *sql.Tx) *PostgresStore {
	return &PostgresStore{tx: tx}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *PostgresStore) execer() dbExecutor {
	if s.tx != nil {
		return s.tx
	}
	return s.db
}

const selectColumns = `
	SELECT national_id, first_name, last_name, email, phone, modality, plan_or_year, module,
	       documents, state, created_at, updated_at, expires_at, alarm_resets
	FROM pending_registrations`

func (s *PostgresStore) FindByNationalID(ctx context.Context, nationalID models.NationalID) (*models.Registration, error) {
	query := selectColumns + ` WHERE national_id = $1`
	reg, err := scanRegistration(s.execer().QueryRowContext(ctx, query, string(nationalID)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, classify("find pending registration", err)
	}
	return reg, nil
}

// Save upserts by national ID. The row keeps its insertion sequence on update.
func (s *PostgresStore) Save(ctx context.Context, reg *models.Registration) error {
	if reg == nil {
		return fmt.Errorf("pending registration is required")
	}
	documents, err := json.Marshal(reg.Documents)
	if err != nil {
		return fmt.Errorf("marshal documents: %w", err)
	}
	resets := reg.AlarmResets
	if resets == nil {
		resets = []models.AlarmReset{}
	}
	alarmResets, err := json.Marshal(resets)
	if err != nil {
		return fmt.Errorf("marshal alarm resets: %w", err)
	}

	query := `
		INSERT INTO pending_registrations (
			national_id, first_name, last_name, email, phone, modality, plan_or_year, module,
			documents, state, created_at, updated_at, expires_at, alarm_resets
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (national_id) DO UPDATE SET
			first_name = EXCLUDED.first_name,
			last_name = EXCLUDED.last_name,
			email = EXCLUDED.email,
			phone = EXCLUDED.phone,
			modality = EXCLUDED.modality,
			plan_or_year = EXCLUDED.plan_or_year,
			module = EXCLUDED.module,
			documents = EXCLUDED.documents,
			state = EXCLUDED.state,
			created_at = EXCLUDED.created_at,
			updated_at = EXCLUDED.updated_at,
			expires_at = EXCLUDED.expires_at,
			alarm_resets = EXCLUDED.alarm_resets
	`
	p := reg.Personal
	_, err = s.execer().ExecContext(ctx, query,
		string(reg.NationalID),
		p.FirstName,
		p.LastName,
		p.Email,
		p.Phone,
		p.Modality,
		p.PlanOrYear,
		p.Module,
		documents,
		string(reg.State),
		reg.CreatedAt,
		reg.UpdatedAt,
		reg.ExpiresAt,
		alarmResets,
	)
	if err != nil {
		return classify("save pending registration", err)
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, nationalID models.NationalID) (bool, error) {
	res, err := s.execer().ExecContext(ctx, `DELETE FROM pending_registrations WHERE national_id = $1`, string(nationalID))
	if err != nil {
		return false, classify("delete pending registration", err)
	}
	return affected(res)
}

// DeleteExpired deletes only when the row is still expired and not processed,
// so a concurrent resubmission or reset is never lost.
func (s *PostgresStore) DeleteExpired(ctx context.Context, nationalID models.NationalID, now time.Time) (bool, error) {
	query := `
		DELETE FROM pending_registrations
		WHERE national_id = $1 AND expires_at < $2 AND state <> $3
	`
	res, err := s.execer().ExecContext(ctx, query, string(nationalID), now, string(models.StateProcessed))
	if err != nil {
		return false, classify("delete expired registration", err)
	}
	return affected(res)
}

// ListAll returns every registration in insertion order.
func (s *PostgresStore) ListAll(ctx context.Context) ([]*models.Registration, error) {
	rows, err := s.execer().QueryContext(ctx, selectColumns+` ORDER BY seq`)
	if err != nil {
		return nil, classify("list pending registrations", err)
	}
	defer rows.Close()

	var out []*models.Registration
	for rows.Next() {
		reg, err := scanRegistration(rows)
		if err != nil {
			return nil, fmt.Errorf("scan pending registration: %w", err)
		}
		out = append(out, reg)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("iterate pending registrations", err)
	}
	return out, nil
}

func affected(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRegistration(row rowScanner) (*models.Registration, error) {
	var (
		reg         models.Registration
		nationalID  string
		state       string
		documents   []byte
		alarmResets []byte
	)
	p := &reg.Personal
	if err := row.Scan(
		&nationalID,
		&p.FirstName,
		&p.LastName,
		&p.Email,
		&p.Phone,
		&p.Modality,
		&p.PlanOrYear,
		&p.Module,
		&documents,
		&state,
		&reg.CreatedAt,
		&reg.UpdatedAt,
		&reg.ExpiresAt,
		&alarmResets,
	); err != nil {
		return nil, err
	}
	reg.NationalID = models.NationalID(nationalID)
	reg.State = models.State(state)
	reg.Documents = completeness.Refs{}
	if len(documents) > 0 {
		if err := json.Unmarshal(documents, &reg.Documents); err != nil {
			return nil, fmt.Errorf("unmarshal documents: %w", err)
		}
	}
	if len(alarmResets) > 0 {
		if err := json.Unmarshal(alarmResets, &reg.AlarmResets); err != nil {
			return nil, fmt.Errorf("unmarshal alarm resets: %w", err)
		}
	}
	if len(reg.AlarmResets) == 0 {
		reg.AlarmResets = nil
	}
	return &reg, nil
}

// classify marks connectivity and deadline failures as ErrUnavailable.
func classify(op string, err error) error {
	var netErr net.Error
	var connectErr *pgconn.ConnectError
	switch {
	case errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled),
		errors.Is(err, driver.ErrBadConn),
		errors.Is(err, sql.ErrConnDone),
		pgconn.Timeout(err),
		errors.As(err, &connectErr),
		errors.As(err, &netErr):
		return fmt.Errorf("%s: %w: %w", op, sentinel.ErrUnavailable, err)
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}
