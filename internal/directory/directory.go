package directory

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"campflow/internal/domain"
)

// Directory is the user lookup the validator and server consume. The
// core only asks two questions: is this user real and active, and
// which segments can they see. Segment enforcement itself stays
// outside the engine.
type Directory interface {
	UserExistsAndActive(ctx context.Context, userID string) (bool, error)
	UserSegments(ctx context.Context, userID string) ([]string, error)
}

var ErrNotFound = errors.New("user not found")

// SQL is a Directory backed by the workspace database.
type SQL struct {
	DB  *sql.DB
	Now func() time.Time
}

func (d SQL) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

func (d SQL) UserExistsAndActive(ctx context.Context, userID string) (bool, error) {
	var active int
	err := d.DB.QueryRowContext(ctx, `SELECT active FROM users WHERE id=?`, userID).Scan(&active)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return active != 0, nil
}

func (d SQL) UserSegments(ctx context.Context, userID string) ([]string, error) {
	rows, err := d.DB.QueryContext(ctx, `SELECT segment_id FROM user_segments WHERE user_id=? ORDER BY segment_id ASC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var segments []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		segments = append(segments, id)
	}
	return segments, rows.Err()
}

func (d SQL) GetUser(ctx context.Context, id string) (domain.User, error) {
	var u domain.User
	var active int
	err := d.DB.QueryRowContext(ctx, `SELECT id, COALESCE(name,''), active, created_at FROM users WHERE id=?`, id).
		Scan(&u.ID, &u.Name, &active, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return u, ErrNotFound
	}
	u.Active = active != 0
	return u, err
}

func (d SQL) ListUsers(ctx context.Context) ([]domain.User, error) {
	rows, err := d.DB.QueryContext(ctx, `SELECT id, COALESCE(name,''), active, created_at FROM users ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.User
	for rows.Next() {
		var u domain.User
		var active int
		if err := rows.Scan(&u.ID, &u.Name, &active, &u.CreatedAt); err != nil {
			return nil, err
		}
		u.Active = active != 0
		res = append(res, u)
	}
	return res, rows.Err()
}

// EnsureUser inserts a user if absent and updates name/active if present.
func (d SQL) EnsureUser(ctx context.Context, u domain.User) (domain.User, error) {
	if u.ID == "" {
		return u, errors.New("user id required")
	}
	if u.CreatedAt == "" {
		u.CreatedAt = d.now().UTC().Format(time.RFC3339)
	}
	active := 0
	if u.Active {
		active = 1
	}
	_, err := d.DB.ExecContext(ctx, `INSERT INTO users(id,name,active,created_at) VALUES (?,?,?,?)
ON CONFLICT(id) DO UPDATE SET name=excluded.name, active=excluded.active`, u.ID, u.Name, active, u.CreatedAt)
	return u, err
}

// SetActive flips the active flag.
func (d SQL) SetActive(ctx context.Context, id string, active bool) error {
	v := 0
	if active {
		v = 1
	}
	res, err := d.DB.ExecContext(ctx, `UPDATE users SET active=? WHERE id=?`, v, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// AddSegment grants a user visibility of a segment.
func (d SQL) AddSegment(ctx context.Context, userID, segmentID string) error {
	_, err := d.DB.ExecContext(ctx, `INSERT OR IGNORE INTO user_segments(user_id,segment_id) VALUES (?,?)`, userID, segmentID)
	return err
}
