package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"staffroster.org/internal/apperr"
	"staffroster.org/internal/auth"
	"staffroster.org/internal/ids"
)

const userColumns = `id, email, password_hash, full_name, phone_number, role, status, is_first_login, created_by_id, created_at, updated_at`

type userRepo struct {
	tx *sql.Tx
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*auth.Principal, error) {
	var (
		p         auth.Principal
		phone     sql.NullString
		createdBy sql.NullString
		role      string
		status    string
	)
	if err := row.Scan(&p.ID, &p.Email, &p.PasswordHash, &p.FullName, &phone, &role, &status,
		&p.IsFirstLogin, &createdBy, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	p.PhoneNumber = phone.String
	p.CreatedByID = createdBy.String
	p.Role = auth.Role(role)
	p.Status = auth.Status(status)
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	return &p, nil
}

func (r *userRepo) FindByID(ctx context.Context, id string) (*auth.Principal, error) {
	if !ids.ValidUUID(id) {
		return nil, apperr.NotFound("user", id)
	}
	row := r.tx.QueryRowContext(ctx, `select `+userColumns+` from users where id = $1`, id)
	p, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("user", id)
	}
	if err != nil {
		return nil, mapPgError(err)
	}
	return p, nil
}

func (r *userRepo) FindByEmail(ctx context.Context, email string) (*auth.Principal, error) {
	row := r.tx.QueryRowContext(ctx, `select `+userColumns+` from users where email = $1`, auth.NormalizeEmail(email))
	p, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("user", "")
	}
	if err != nil {
		return nil, mapPgError(err)
	}
	return p, nil
}

func (r *userRepo) EmailExists(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := r.tx.QueryRowContext(ctx, `select exists(select 1 from users where email = $1)`, auth.NormalizeEmail(email)).Scan(&exists)
	if err != nil {
		return false, mapPgError(err)
	}
	return exists, nil
}

func (r *userRepo) Save(ctx context.Context, p *auth.Principal) error {
	p.Email = auth.NormalizeEmail(p.Email)
	if p.ID == "" {
		return r.insert(ctx, p)
	}
	if !ids.ValidUUID(p.ID) {
		return apperr.NotFound("user", p.ID)
	}
	err := r.tx.QueryRowContext(ctx, `
		update users
		set email = $2, password_hash = $3, full_name = $4, phone_number = $5,
		    role = $6, status = $7, is_first_login = $8, updated_at = now()
		where id = $1
		returning created_at, updated_at
	`, p.ID, p.Email, p.PasswordHash, p.FullName, nullIfEmpty(p.PhoneNumber),
		string(p.Role), string(p.Status), p.IsFirstLogin,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return apperr.NotFound("user", p.ID)
	}
	if err != nil {
		return mapPgError(err)
	}
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	return nil
}

func (r *userRepo) insert(ctx context.Context, p *auth.Principal) error {
	id := ids.NewUUID()
	err := r.tx.QueryRowContext(ctx, `
		insert into users(id, email, password_hash, full_name, phone_number, role, status, is_first_login, created_by_id)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		returning created_at, updated_at
	`, id, p.Email, p.PasswordHash, p.FullName, nullIfEmpty(p.PhoneNumber),
		string(p.Role), string(p.Status), p.IsFirstLogin, nullIfEmpty(p.CreatedByID),
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return mapPgError(err)
	}
	p.ID = id
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	return nil
}

func (r *userRepo) List(ctx context.Context, f auth.UserFilter) ([]*auth.Principal, int, error) {
	f.Offset = max(f.Offset, 0)
	where, args := buildUserWhere(f)

	var total int
	if err := r.tx.QueryRowContext(ctx, `select count(*) from users`+where, args...).Scan(&total); err != nil {
		return nil, 0, mapPgError(err)
	}

	query := `select ` + userColumns + ` from users` + where + ` order by created_at asc, id asc`
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(" limit $%d", len(args))
	}
	if f.Offset > 0 {
		args = append(args, f.Offset)
		query += fmt.Sprintf(" offset $%d", len(args))
	}
	rows, err := r.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, mapPgError(err)
	}
	defer rows.Close()

	var out []*auth.Principal
	for rows.Next() {
		p, err := scanUser(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, mapPgError(err)
	}
	return out, total, nil
}

// buildUserWhere renders f as a where clause with positional arguments.
func buildUserWhere(f auth.UserFilter) (string, []any) {
	var (
		clauses []string
		args    []any
	)
	placeholders := func(values []string) string {
		marks := make([]string, len(values))
		for i, v := range values {
			args = append(args, v)
			marks[i] = fmt.Sprintf("$%d", len(args))
		}
		return strings.Join(marks, ",")
	}
	if len(f.Roles) > 0 {
		roles := make([]string, len(f.Roles))
		for i, r := range f.Roles {
			roles[i] = string(r)
		}
		clauses = append(clauses, "role in ("+placeholders(roles)+")")
	}
	if len(f.Statuses) > 0 {
		statuses := make([]string, len(f.Statuses))
		for i, s := range f.Statuses {
			statuses[i] = string(s)
		}
		clauses = append(clauses, "status in ("+placeholders(statuses)+")")
	}
	if f.FirstLoginOnly {
		clauses = append(clauses, "is_first_login")
	}
	if f.ExcludeID != "" && ids.ValidUUID(f.ExcludeID) {
		clauses = append(clauses, "id <> "+placeholders([]string{f.ExcludeID}))
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " where " + strings.Join(clauses, " and "), args
}

func (r *userRepo) CountByStatus(ctx context.Context) (map[auth.Status]int, error) {
	counts := make(map[auth.Status]int)
	err := r.groupCount(ctx, "status", func(key string, n int) { counts[auth.Status(key)] = n })
	return counts, err
}

func (r *userRepo) CountByRole(ctx context.Context) (map[auth.Role]int, error) {
	counts := make(map[auth.Role]int)
	err := r.groupCount(ctx, "role", func(key string, n int) { counts[auth.Role(key)] = n })
	return counts, err
}

// groupCount runs a count grouped by column. column is never user input.
func (r *userRepo) groupCount(ctx context.Context, column string, fn func(string, int)) error {
	rows, err := r.tx.QueryContext(ctx, `select `+column+`, count(*) from users group by `+column)
	if err != nil {
		return mapPgError(err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			key string
			n   int
		)
		if err := rows.Scan(&key, &n); err != nil {
			return err
		}
		fn(key, n)
	}
	return mapPgError(rows.Err())
}

func (r *userRepo) BulkUpdateStatus(ctx context.Context, idList []string, status auth.Status) (int, error) {
	valid := make([]string, 0, len(idList))
	seen := make(map[string]struct{}, len(idList))
	for _, id := range idList {
		if _, ok := seen[id]; ok || !ids.ValidUUID(id) {
			continue
		}
		seen[id] = struct{}{}
		valid = append(valid, id)
	}
	if len(valid) == 0 {
		return 0, nil
	}
	args := []any{string(status)}
	marks := make([]string, len(valid))
	for i, id := range valid {
		args = append(args, id)
		marks[i] = fmt.Sprintf("$%d", i+2)
	}
	res, err := r.tx.ExecContext(ctx,
		`update users set status = $1, updated_at = now() where id in (`+strings.Join(marks, ",")+`)`, args...)
	if err != nil {
		return 0, mapPgError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func nullIfEmpty(s string) sql.NullString {
	s = strings.TrimSpace(s)
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
