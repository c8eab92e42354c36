package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/opensource-finance/casewatch/internal/domain"
)

// CreateOfficer stores a new officer account. Usernames are unique and
// compared case-insensitively.
func (r *SQLRepository) CreateOfficer(ctx context.Context, o *domain.Officer) error {
	if o == nil || o.ID == "" || o.Username == "" || o.PasswordHash == "" {
		return fmt.Errorf("%w: officer id, username and password hash are required", ErrInvalidInput)
	}

	active := 0
	if o.Active {
		active = 1
	}

	query := `
		INSERT INTO officers (id, username, display_name, rank, station, role, password_hash, active, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		o.ID, strings.ToLower(o.Username), o.DisplayName, o.Rank, o.Station,
		string(o.Role), o.PasswordHash, active, o.CreatedAt,
	)
	return err
}

// GetOfficerByUsername retrieves an officer for login.
func (r *SQLRepository) GetOfficerByUsername(ctx context.Context, username string) (*domain.Officer, error) {
	query := `
		SELECT id, username, display_name, rank, station, role, password_hash, active, created_at
		FROM officers
		WHERE username = ?
	`

	var o domain.Officer
	var rank, station sql.NullString
	var role string
	var active int

	err := r.db.QueryRowContext(ctx, r.rebind(query), strings.ToLower(username)).Scan(
		&o.ID, &o.Username, &o.DisplayName, &rank, &station, &role, &o.PasswordHash, &active, &o.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	o.Rank = rank.String
	o.Station = station.String
	o.Role = domain.Role(role)
	o.Active = active == 1
	return &o, nil
}
