// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/opensource-finance/casewatch/internal/domain"
)

var (
	ErrNotFound     = domain.ErrNotFound
	ErrInvalidInput = domain.ErrValidation
)

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (*SQLRepository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := NewWithDB(db, cfg.Driver)

	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

// NewWithDB wraps an already opened database without running migrations.
func NewWithDB(db *sql.DB, driver string) *SQLRepository {
	return &SQLRepository{db: db, driver: driver}
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

const complaintColumns = `
	id, victim_name, victim_phone, victim_email, victim_address, victim_device_token,
	fraud_type, amount, fraud_date, description,
	bank_name, account_number, transaction_ref,
	status, priority, fir_number, fir_date, created_at, updated_at`

// CreateComplaint allocates the next CF<year><seq> identifier and stores the
// complaint together with its first case update.
func (r *SQLRepository) CreateComplaint(ctx context.Context, c *domain.Complaint, initial *domain.CaseUpdate) error {
	if c == nil {
		return fmt.Errorf("%w: complaint is required", ErrInvalidInput)
	}
	if c.Amount <= 0 {
		return fmt.Errorf("%w: amount must be positive", ErrInvalidInput)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if c.ID == "" {
		year := c.CreatedAt.Year()
		var seq int64
		err := tx.QueryRowContext(ctx, r.rebind(`
			INSERT INTO complaint_sequences (year, last_value) VALUES (?, 1)
			ON CONFLICT(year) DO UPDATE SET last_value = complaint_sequences.last_value + 1
			RETURNING last_value
		`), year).Scan(&seq)
		if err != nil {
			return fmt.Errorf("failed to allocate complaint id: %w", err)
		}
		c.ID = domain.FormatComplaintID(year, seq)
	}

	var firDate sql.NullTime
	if c.FIRDate != nil {
		firDate = sql.NullTime{Time: *c.FIRDate, Valid: true}
	}

	query := `INSERT INTO complaints (` + complaintColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = tx.ExecContext(ctx, r.rebind(query),
		c.ID, c.Victim.Name, c.Victim.Phone, c.Victim.Email, c.Victim.Address, c.Victim.DeviceToken,
		string(c.FraudType), c.Amount, c.FraudDate, c.Description,
		c.Bank.BankName, c.Bank.AccountNumber, c.Bank.TransactionRef,
		string(c.Status), string(c.Priority), c.FIRNumber, firDate, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return err
	}

	if initial != nil {
		initial.ComplaintID = c.ID
		if err := r.insertCaseUpdate(ctx, tx, initial); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// GetComplaint retrieves a complaint by ID.
func (r *SQLRepository) GetComplaint(ctx context.Context, id string) (*domain.Complaint, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: complaint id is required", ErrInvalidInput)
	}
	return r.getComplaint(ctx, r.db, id)
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (r *SQLRepository) getComplaint(ctx context.Context, q queryer, id string) (*domain.Complaint, error) {
	query := `SELECT ` + complaintColumns + ` FROM complaints WHERE id = ?`

	c, err := scanComplaint(q.QueryRowContext(ctx, r.rebind(query), id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

// ListComplaints returns complaints matching the filter, newest first.
func (r *SQLRepository) ListComplaints(ctx context.Context, filter domain.ComplaintFilter) ([]*domain.Complaint, error) {
	var where []string
	var args []any

	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.FraudType != "" {
		where = append(where, "fraud_type = ?")
		args = append(args, string(filter.FraudType))
	}
	if filter.Priority != "" {
		where = append(where, "priority = ?")
		args = append(args, string(filter.Priority))
	}
	if filter.Phone != "" {
		where = append(where, "victim_phone = ?")
		args = append(args, filter.Phone)
	}
	if filter.Search != "" {
		like := "%" + strings.ToLower(filter.Search) + "%"
		where = append(where, "(LOWER(id) LIKE ? OR LOWER(victim_name) LIKE ? OR LOWER(description) LIKE ?)")
		args = append(args, like, like, like)
	}

	query := `SELECT ` + complaintColumns + ` FROM complaints`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC"

	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	query += " LIMIT ? OFFSET ?"
	args = append(args, limit, max(filter.Offset, 0))

	rows, err := r.db.QueryContext(ctx, r.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var complaints []*domain.Complaint
	for rows.Next() {
		c, err := scanComplaint(rows)
		if err != nil {
			return nil, err
		}
		complaints = append(complaints, c)
	}

	return complaints, rows.Err()
}

// CountComplaintsByPhone counts complaints filed from a phone since the given time.
func (r *SQLRepository) CountComplaintsByPhone(ctx context.Context, phone string, since time.Time) (int64, error) {
	var count int64
	err := r.db.QueryRowContext(ctx,
		r.rebind(`SELECT COUNT(*) FROM complaints WHERE victim_phone = ? AND created_at >= ?`),
		phone, since,
	).Scan(&count)
	return count, err
}

// ApplyStatusChange writes the new status and its case update in one
// transaction and returns the status the complaint held before it. If the
// complaint does not exist, ErrNotFound is returned and nothing is written.
func (r *SQLRepository) ApplyStatusChange(ctx context.Context, change domain.StatusChange) (*domain.Complaint, domain.Status, error) {
	if change.ComplaintID == "" || change.Update == nil {
		return nil, "", fmt.Errorf("%w: complaint id and update are required", ErrInvalidInput)
	}
	if !change.Status.Valid() {
		return nil, "", fmt.Errorf("%w: unknown status %q", ErrInvalidInput, change.Status)
	}

	clock := change.Clock
	if clock == nil {
		clock = time.Now
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, "", err
	}
	defer tx.Rollback()

	lock := `SELECT status FROM complaints WHERE id = ?`
	if r.driver == "postgres" {
		lock += ` FOR UPDATE`
	}
	var from string
	if err := tx.QueryRowContext(ctx, r.rebind(lock), change.ComplaintID).Scan(&from); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, "", ErrNotFound
		}
		return nil, "", err
	}

	at := clock().UTC()

	query := `UPDATE complaints SET status = ?, updated_at = ?`
	args := []any{string(change.Status), at}
	if change.FIR != nil {
		query += `, fir_number = ?, fir_date = ?`
		args = append(args, change.FIR.Number, change.FIR.Date)
	}
	query += ` WHERE id = ?`
	args = append(args, change.ComplaintID)

	result, err := tx.ExecContext(ctx, r.rebind(query), args...)
	if err != nil {
		return nil, "", err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, "", err
	}
	if affected == 0 {
		return nil, "", ErrNotFound
	}

	change.Update.ComplaintID = change.ComplaintID
	change.Update.Status = change.Status
	change.Update.CreatedAt = at
	if err := r.insertCaseUpdate(ctx, tx, change.Update); err != nil {
		return nil, "", err
	}

	complaint, err := r.getComplaint(ctx, tx, change.ComplaintID)
	if err != nil {
		return nil, "", err
	}

	if err := tx.Commit(); err != nil {
		return nil, "", err
	}
	return complaint, domain.Status(from), nil
}

func (r *SQLRepository) insertCaseUpdate(ctx context.Context, tx *sql.Tx, u *domain.CaseUpdate) error {
	query := `
		INSERT INTO case_updates (id, complaint_id, title, description, status, actor_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err := tx.ExecContext(ctx, r.rebind(query),
		u.ID, u.ComplaintID, u.Title, u.Description, string(u.Status), u.ActorID, u.CreatedAt,
	)
	return err
}

// ListCaseUpdates returns the audit trail of a complaint, oldest first.
func (r *SQLRepository) ListCaseUpdates(ctx context.Context, complaintID string) ([]*domain.CaseUpdate, error) {
	query := `
		SELECT id, complaint_id, title, description, status, actor_id, created_at
		FROM case_updates
		WHERE complaint_id = ?
		ORDER BY created_at ASC, id ASC
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), complaintID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var updates []*domain.CaseUpdate
	for rows.Next() {
		var u domain.CaseUpdate
		var status string
		if err := rows.Scan(&u.ID, &u.ComplaintID, &u.Title, &u.Description, &status, &u.ActorID, &u.CreatedAt); err != nil {
			return nil, err
		}
		u.Status = domain.Status(status)
		updates = append(updates, &u)
	}

	return updates, rows.Err()
}

// Aggregates returns group-by counts and sums for the dashboard.
func (r *SQLRepository) Aggregates(ctx context.Context) (*domain.Aggregates, error) {
	agg := &domain.Aggregates{}

	rows, err := r.db.QueryContext(ctx, `SELECT status, COUNT(*), COALESCE(SUM(amount), 0) FROM complaints GROUP BY status`)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var sc domain.StatusCount
		var status string
		if err := rows.Scan(&status, &sc.Count, &sc.Amount); err != nil {
			rows.Close()
			return nil, err
		}
		sc.Status = domain.Status(status)
		agg.ByStatus = append(agg.ByStatus, sc)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = r.db.QueryContext(ctx, `SELECT fraud_type, COUNT(*), COALESCE(SUM(amount), 0) FROM complaints GROUP BY fraud_type`)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var fc domain.FraudTypeCount
		var ft string
		if err := rows.Scan(&ft, &fc.Count, &fc.Amount); err != nil {
			rows.Close()
			return nil, err
		}
		fc.FraudType = domain.FraudType(ft)
		agg.ByFraudType = append(agg.ByFraudType, fc)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = r.db.QueryContext(ctx, `SELECT priority, COUNT(*) FROM complaints GROUP BY priority`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var pc domain.PriorityCount
		var p string
		if err := rows.Scan(&p, &pc.Count); err != nil {
			return nil, err
		}
		pc.Priority = domain.Priority(p)
		agg.ByPriority = append(agg.ByPriority, pc)
	}

	return agg, rows.Err()
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanComplaint(row rowScanner) (*domain.Complaint, error) {
	var c domain.Complaint
	var email, address, token, bankName, account, txRef, firNumber sql.NullString
	var fraudType, status, priority string
	var firDate sql.NullTime

	err := row.Scan(
		&c.ID, &c.Victim.Name, &c.Victim.Phone, &email, &address, &token,
		&fraudType, &c.Amount, &c.FraudDate, &c.Description,
		&bankName, &account, &txRef,
		&status, &priority, &firNumber, &firDate, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	c.Victim.Email = email.String
	c.Victim.Address = address.String
	c.Victim.DeviceToken = token.String
	c.Bank = domain.BankDetails{
		BankName:       bankName.String,
		AccountNumber:  account.String,
		TransactionRef: txRef.String,
	}
	c.FraudType = domain.FraudType(fraudType)
	c.Status = domain.Status(status)
	c.Priority = domain.Priority(priority)
	c.FIRNumber = firNumber.String
	if firDate.Valid {
		t := firDate.Time
		c.FIRDate = &t
	}

	return &c, nil
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	var b strings.Builder
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			n++
		} else {
			b.WriteByte(query[i])
		}
	}
	return b.String()
}
