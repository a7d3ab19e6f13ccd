// Package memory is an in-process auth.Store used by tests and by the API
// server when no database is configured.
package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"staffroster.org/internal/apperr"
	"staffroster.org/internal/auth"
	"staffroster.org/internal/ids"
)

var _ auth.Store = (*Store)(nil)

var errClosed = errors.New("memory: unit of work already finished")

// Store keeps principals in a map guarded by a mutex. Each unit of work
// operates on a private snapshot that is merged back on Commit.
type Store struct {
	mu    sync.RWMutex
	users map[string]*auth.Principal
	now   func() time.Time
}

// New returns an empty store.
func New() *Store {
	return &Store{users: make(map[string]*auth.Principal), now: time.Now}
}

// WithClock overrides the timestamp source.
func (s *Store) WithClock(fn func() time.Time) *Store {
	if fn != nil {
		s.now = fn
	}
	return s
}

// Begin implements auth.Store.
func (s *Store) Begin(ctx context.Context) (auth.UnitOfWork, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	snapshot := make(map[string]*auth.Principal, len(s.users))
	for id, p := range s.users {
		snapshot[id] = clone(p)
	}
	s.mu.RUnlock()
	return &unit{store: s, users: snapshot, dirty: make(map[string]struct{})}, nil
}

// Ping always succeeds.
func (s *Store) Ping(context.Context) error { return nil }

type unit struct {
	store *Store
	users map[string]*auth.Principal
	dirty map[string]struct{}
	done  bool
}

func (u *unit) Users() auth.UserRepository { return (*userRepo)(u) }

func (u *unit) Commit() error {
	if u.done {
		return errClosed
	}
	u.done = true
	if len(u.dirty) == 0 {
		return nil
	}

	s := u.store
	s.mu.Lock()
	defer s.mu.Unlock()
	for id := range u.dirty {
		p := u.users[id]
		for otherID, other := range s.users {
			if otherID != id && other.Email == p.Email {
				return apperr.Duplicate("user", "email", p.Email)
			}
		}
	}
	for id := range u.dirty {
		s.users[id] = clone(u.users[id])
	}
	return nil
}

func (u *unit) Rollback() error {
	u.done = true
	return nil
}

type userRepo unit

func (r *userRepo) FindByID(ctx context.Context, id string) (*auth.Principal, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, ok := r.users[id]
	if !ok {
		return nil, apperr.NotFound("user", id)
	}
	return clone(p), nil
}

func (r *userRepo) FindByEmail(ctx context.Context, email string) (*auth.Principal, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	email = auth.NormalizeEmail(email)
	for _, p := range r.users {
		if p.Email == email {
			return clone(p), nil
		}
	}
	return nil, apperr.NotFound("user", "")
}

func (r *userRepo) EmailExists(ctx context.Context, email string) (bool, error) {
	_, err := r.FindByEmail(ctx, email)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, apperr.ErrNotFound) {
		return false, nil
	}
	return false, err
}

func (r *userRepo) Save(ctx context.Context, p *auth.Principal) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if r.done {
		return errClosed
	}
	p.Email = auth.NormalizeEmail(p.Email)
	now := r.store.now().UTC()
	if p.ID == "" {
		p.ID = ids.NewUUID()
		p.CreatedAt = now
	} else if existing, ok := r.users[p.ID]; ok {
		p.CreatedAt = existing.CreatedAt
	} else {
		return apperr.NotFound("user", p.ID)
	}
	for id, other := range r.users {
		if id != p.ID && other.Email == p.Email {
			return apperr.Duplicate("user", "email", p.Email)
		}
	}
	p.UpdatedAt = now
	r.users[p.ID] = clone(p)
	r.dirty[p.ID] = struct{}{}
	return nil
}

func (r *userRepo) List(ctx context.Context, f auth.UserFilter) ([]*auth.Principal, int, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	var matched []*auth.Principal
	for _, p := range r.users {
		if matches(p, f) {
			matched = append(matched, p)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID < matched[j].ID
		}
		return matched[i].CreatedAt.Before(matched[j].CreatedAt)
	})
	total := len(matched)

	start := max(f.Offset, 0)
	if start > total {
		start = total
	}
	end := total
	if f.Limit > 0 && f.Limit < end-start {
		end = start + f.Limit
	}
	out := make([]*auth.Principal, 0, end-start)
	for _, p := range matched[start:end] {
		out = append(out, clone(p))
	}
	return out, total, nil
}

func (r *userRepo) CountByStatus(ctx context.Context) (map[auth.Status]int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	counts := make(map[auth.Status]int)
	for _, p := range r.users {
		counts[p.Status]++
	}
	return counts, nil
}

func (r *userRepo) CountByRole(ctx context.Context) (map[auth.Role]int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	counts := make(map[auth.Role]int)
	for _, p := range r.users {
		counts[p.Role]++
	}
	return counts, nil
}

func (r *userRepo) BulkUpdateStatus(ctx context.Context, idList []string, status auth.Status) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	now := r.store.now().UTC()
	updated := 0
	seen := make(map[string]struct{}, len(idList))
	for _, id := range idList {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		p, ok := r.users[id]
		if !ok {
			continue
		}
		p.Status = status
		p.UpdatedAt = now
		r.dirty[id] = struct{}{}
		updated++
	}
	return updated, nil
}

func matches(p *auth.Principal, f auth.UserFilter) bool {
	if f.ExcludeID != "" && p.ID == f.ExcludeID {
		return false
	}
	if f.FirstLoginOnly && !p.IsFirstLogin {
		return false
	}
	if len(f.Roles) > 0 && !contains(f.Roles, p.Role) {
		return false
	}
	if len(f.Statuses) > 0 && !contains(f.Statuses, p.Status) {
		return false
	}
	return true
}

func contains[T comparable](list []T, v T) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

func clone(p *auth.Principal) *auth.Principal {
	cp := *p
	return &cp
}
