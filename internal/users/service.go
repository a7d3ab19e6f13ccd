// Package users implements employee account management on top of the auth
// store: registration, listing, updates, deactivation and statistics.
package users

import (
	"context"
	"errors"
	"math"
	"strings"

	"staffroster.org/internal/apperr"
	"staffroster.org/internal/auth"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
	maxBulkIDs      = 100
)

// Service manages principals on behalf of an authenticated actor.
type Service struct {
	store           auth.Store
	defaultPageSize int
	maxPageSize     int
}

// Option configures Service.
type Option func(*Service)

// WithPageSizes overrides the default and maximum page sizes.
func WithPageSizes(def, maxSize int) Option {
	return func(s *Service) {
		if def > 0 {
			s.defaultPageSize = def
		}
		if maxSize > 0 {
			s.maxPageSize = maxSize
		}
		if s.defaultPageSize > s.maxPageSize {
			s.defaultPageSize = s.maxPageSize
		}
	}
}

// NewService constructs Service.
func NewService(store auth.Store, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("users: store is required")
	}
	s := &Service{store: store, defaultPageSize: DefaultPageSize, maxPageSize: MaxPageSize}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// RegisterInput carries the fields of a new account.
type RegisterInput struct {
	Email           string `json:"email"`
	FullName        string `json:"full_name"`
	PhoneNumber     string `json:"phone_number"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
	Role            string `json:"role"`
}

// Register creates an account that must change its password on first login.
func (s *Service) Register(ctx context.Context, actor *auth.Principal, in RegisterInput) (*auth.Principal, error) {
	var errs fieldErrors
	p := &auth.Principal{
		Email:        normalizeEmail(&errs, in.Email),
		FullName:     normalizeFullName(&errs, in.FullName),
		PhoneNumber:  normalizePhone(&errs, in.PhoneNumber),
		Role:         parseRole(&errs, in.Role, auth.RoleWorker),
		Status:       auth.StatusPendingPasswordChange,
		IsFirstLogin: true,
	}
	if fe := auth.ValidatePassword("password", in.Password, in.ConfirmPassword); fe != nil {
		errs = append(errs, *fe)
	}
	if err := errs.err(); err != nil {
		return nil, err
	}
	if actor != nil {
		p.CreatedByID = actor.ID
	}
	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	p.PasswordHash = hash
	return s.create(ctx, p)
}

// CreateAdmin bootstraps an active administrator account.
func (s *Service) CreateAdmin(ctx context.Context, email, fullName, password string) (*auth.Principal, error) {
	var errs fieldErrors
	p := &auth.Principal{
		Email:    normalizeEmail(&errs, email),
		FullName: normalizeFullName(&errs, fullName),
		Role:     auth.RoleAdmin,
		Status:   auth.StatusActive,
	}
	if fe := auth.ValidatePassword("password", password, password); fe != nil {
		errs = append(errs, *fe)
	}
	if err := errs.err(); err != nil {
		return nil, err
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	p.PasswordHash = hash
	return s.create(ctx, p)
}

func (s *Service) create(ctx context.Context, p *auth.Principal) (*auth.Principal, error) {
	return auth.WithUnitOfWork(ctx, s.store, func(uow auth.UnitOfWork) (*auth.Principal, error) {
		exists, err := uow.Users().EmailExists(ctx, p.Email)
		if err != nil {
			return nil, err
		}
		if exists {
			return nil, apperr.Duplicate("user", "email", p.Email)
		}
		if err := uow.Users().Save(ctx, p); err != nil {
			return nil, err
		}
		return p, nil
	})
}

// Get returns a single principal.
func (s *Service) Get(ctx context.Context, id string) (*auth.Principal, error) {
	id = strings.TrimSpace(id)
	return auth.WithUnitOfWork(ctx, s.store, func(uow auth.UnitOfWork) (*auth.Principal, error) {
		return uow.Users().FindByID(ctx, id)
	})
}

// Query selects a page of principals.
type Query struct {
	Page           int
	PageSize       int
	Role           string
	Status         string
	FirstLoginOnly bool
}

// Page is one page of a listing.
type Page struct {
	Items    []*auth.Principal `json:"items"`
	Total    int               `json:"total"`
	Page     int               `json:"page"`
	PageSize int               `json:"page_size"`
	Pages    int               `json:"pages"`
}

// List returns principals matching q, oldest first.
func (s *Service) List(ctx context.Context, q Query) (Page, error) {
	var errs fieldErrors
	filter := auth.UserFilter{FirstLoginOnly: q.FirstLoginOnly}
	if strings.TrimSpace(q.Role) != "" {
		if r := parseRole(&errs, q.Role, ""); r != "" {
			filter.Roles = []auth.Role{r}
		}
	}
	if strings.TrimSpace(q.Status) != "" {
		if st := parseStatus(&errs, q.Status); st != "" {
			filter.Statuses = []auth.Status{st}
		}
	}
	page, size := q.Page, q.PageSize
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = s.defaultPageSize
	}
	if size > s.maxPageSize {
		errs.add("page_size", "less_than_equal", "page_size must be at most %d", s.maxPageSize)
	} else if page-1 > math.MaxInt/size {
		errs.add("page", "less_than_equal", "page must be at most %d", math.MaxInt/size+1)
	}
	if err := errs.err(); err != nil {
		return Page{}, err
	}
	filter.Limit = size
	filter.Offset = (page - 1) * size

	type result struct {
		items []*auth.Principal
		total int
	}
	res, err := auth.WithUnitOfWork(ctx, s.store, func(uow auth.UnitOfWork) (result, error) {
		items, total, err := uow.Users().List(ctx, filter)
		return result{items: items, total: total}, err
	})
	if err != nil {
		return Page{}, err
	}
	items := res.items
	if items == nil {
		items = []*auth.Principal{}
	}
	return Page{
		Items:    items,
		Total:    res.total,
		Page:     page,
		PageSize: size,
		Pages:    (res.total + size - 1) / size,
	}, nil
}

// Manageable lists active principals whose role actor administers.
func (s *Service) Manageable(ctx context.Context, actor *auth.Principal) ([]*auth.Principal, error) {
	roles := auth.HierarchicalRoles(actor.Role)
	if len(roles) > 0 {
		// HierarchicalRoles includes the actor's own tier first.
		roles = roles[1:]
	}
	if len(roles) == 0 {
		return []*auth.Principal{}, nil
	}
	filter := auth.UserFilter{
		Roles:     roles,
		Statuses:  auth.ActiveStatuses(),
		ExcludeID: actor.ID,
	}
	items, err := auth.WithUnitOfWork(ctx, s.store, func(uow auth.UnitOfWork) ([]*auth.Principal, error) {
		items, _, err := uow.Users().List(ctx, filter)
		return items, err
	})
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []*auth.Principal{}
	}
	return items, nil
}

// Statistics summarizes the account population.
type Statistics struct {
	Total             int                 `json:"total_users"`
	Active            int                 `json:"active_users"`
	PendingFirstLogin int                 `json:"pending_first_login"`
	ByStatus          map[auth.Status]int `json:"by_status"`
	ByRole            map[auth.Role]int   `json:"by_role"`
}

// Statistics counts principals by status and role.
func (s *Service) Statistics(ctx context.Context) (Statistics, error) {
	return auth.WithUnitOfWork(ctx, s.store, func(uow auth.UnitOfWork) (Statistics, error) {
		users := uow.Users()
		byStatus, err := users.CountByStatus(ctx)
		if err != nil {
			return Statistics{}, err
		}
		byRole, err := users.CountByRole(ctx)
		if err != nil {
			return Statistics{}, err
		}
		_, firstLogin, err := users.List(ctx, auth.UserFilter{FirstLoginOnly: true, Limit: 1})
		if err != nil {
			return Statistics{}, err
		}
		stats := Statistics{
			PendingFirstLogin: firstLogin,
			ByStatus:          make(map[auth.Status]int, len(auth.Statuses())),
			ByRole:            make(map[auth.Role]int, len(auth.Roles())),
		}
		for _, st := range auth.Statuses() {
			stats.ByStatus[st] = byStatus[st]
			stats.Total += byStatus[st]
			if st.IsActive() {
				stats.Active += byStatus[st]
			}
		}
		for _, r := range auth.Roles() {
			stats.ByRole[r] = byRole[r]
		}
		return stats, nil
	})
}

// UpdateInput holds a partial update. Nil fields are left unchanged.
type UpdateInput struct {
	Email       *string `json:"email"`
	FullName    *string `json:"full_name"`
	PhoneNumber *string `json:"phone_number"`
	Role        *string `json:"role"`
	Status      *string `json:"status"`
}

func (in UpdateInput) empty() bool {
	return in.Email == nil && in.FullName == nil && in.PhoneNumber == nil && in.Role == nil && in.Status == nil
}

// Update applies in to the principal id. Actors may edit their own name and
// phone number; every other change requires managing the target's current
// and requested role.
func (s *Service) Update(ctx context.Context, actor *auth.Principal, id string, in UpdateInput) (*auth.Principal, error) {
	if in.empty() {
		return nil, apperr.Validation(apperr.FieldError{Field: "body", Message: "At least one field must be provided", Type: "value_error"})
	}
	var errs fieldErrors
	var (
		email, fullName, phone string
		role                   auth.Role
		status                 auth.Status
	)
	if in.Email != nil {
		email = normalizeEmail(&errs, *in.Email)
	}
	if in.FullName != nil {
		fullName = normalizeFullName(&errs, *in.FullName)
	}
	if in.PhoneNumber != nil {
		phone = normalizePhone(&errs, *in.PhoneNumber)
	}
	if in.Role != nil {
		role = parseRole(&errs, *in.Role, "")
		if role == "" && len(errs) == 0 {
			errs.add("role", "missing", "Role cannot be empty")
		}
	}
	if in.Status != nil {
		status = parseStatus(&errs, *in.Status)
	}
	if err := errs.err(); err != nil {
		return nil, err
	}

	self := actor.ID == strings.TrimSpace(id)
	if self && (in.Email != nil || in.Role != nil || in.Status != nil) {
		return nil, apperr.New(apperr.KindAuthorizationDenied, "", "You can only change your own name and phone number")
	}

	return auth.WithUnitOfWork(ctx, s.store, func(uow auth.UnitOfWork) (*auth.Principal, error) {
		users := uow.Users()
		target, err := users.FindByID(ctx, strings.TrimSpace(id))
		if err != nil {
			return nil, err
		}
		if !self {
			if err := requireManage(actor, target.Role); err != nil {
				return nil, err
			}
			if role != "" {
				if err := requireManage(actor, role); err != nil {
					return nil, err
				}
			}
		}
		if in.Email != nil && email != target.Email {
			exists, err := users.EmailExists(ctx, email)
			if err != nil {
				return nil, err
			}
			if exists {
				return nil, apperr.Duplicate("user", "email", email)
			}
			target.Email = email
		}
		if in.FullName != nil {
			target.FullName = fullName
		}
		if in.PhoneNumber != nil {
			target.PhoneNumber = phone
		}
		if role != "" {
			target.Role = role
		}
		if status != "" {
			target.Status = status
		}
		if err := users.Save(ctx, target); err != nil {
			return nil, err
		}
		return target, nil
	})
}

// Deactivate sets the principal's status to INACTIVE. Accounts are never
// removed.
func (s *Service) Deactivate(ctx context.Context, actor *auth.Principal, id string) (*auth.Principal, error) {
	id = strings.TrimSpace(id)
	if actor.ID == id {
		return nil, apperr.New(apperr.KindAuthorizationDenied, "", "You cannot deactivate your own account")
	}
	return auth.WithUnitOfWork(ctx, s.store, func(uow auth.UnitOfWork) (*auth.Principal, error) {
		target, err := uow.Users().FindByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if err := requireManage(actor, target.Role); err != nil {
			return nil, err
		}
		target.Status = auth.StatusInactive
		if err := uow.Users().Save(ctx, target); err != nil {
			return nil, err
		}
		return target, nil
	})
}

// BulkStatusInput changes the status of several principals at once.
type BulkStatusInput struct {
	UserIDs []string `json:"user_ids"`
	Status  string   `json:"status"`
}

// BulkUpdateStatus applies a status to every listed principal the actor
// manages. It fails without changes if any target is not manageable.
func (s *Service) BulkUpdateStatus(ctx context.Context, actor *auth.Principal, in BulkStatusInput) (int, error) {
	var errs fieldErrors
	status := parseStatus(&errs, in.Status)
	idList := dedupe(in.UserIDs)
	switch {
	case len(idList) == 0:
		errs.add("user_ids", "missing", "At least one user id is required")
	case len(idList) > maxBulkIDs:
		errs.add("user_ids", "too_long", "At most %d user ids may be updated at once", maxBulkIDs)
	}
	if err := errs.err(); err != nil {
		return 0, err
	}
	for _, id := range idList {
		if id == actor.ID {
			return 0, apperr.New(apperr.KindAuthorizationDenied, "", "You cannot change your own status")
		}
	}

	return auth.WithUnitOfWork(ctx, s.store, func(uow auth.UnitOfWork) (int, error) {
		users := uow.Users()
		for _, id := range idList {
			target, err := users.FindByID(ctx, id)
			if err != nil {
				return 0, err
			}
			if err := requireManage(actor, target.Role); err != nil {
				return 0, err
			}
		}
		return users.BulkUpdateStatus(ctx, idList, status)
	})
}

func requireManage(actor *auth.Principal, target auth.Role) error {
	if auth.CanManage(actor.Role, target) {
		return nil
	}
	return apperr.New(apperr.KindAuthorizationDenied, "", "You don't have permission to manage this user").
		WithDetails(map[string]any{"actual_role": string(actor.Role), "target_role": string(target)})
}

func dedupe(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := set[v]; ok {
			continue
		}
		set[v] = struct{}{}
		result = append(result, v)
	}
	return result
}
