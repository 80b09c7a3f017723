// Package identity owns user accounts: registration, login, profile updates.
package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"campusconnect/internal/apperr"
	"campusconnect/internal/audit"
	"campusconnect/internal/auth"
	"campusconnect/internal/docstore"
	"campusconnect/internal/models"
)

// RegisterInput is the self-registration payload.
type RegisterInput struct {
	Email    string      `json:"email" validate:"required,email"`
	Password string      `json:"password" validate:"required,min=6"`
	Role     models.Role `json:"role" validate:"omitempty,oneof=student faculty core-committee admin"`
	models.Profile
}

// Session is the result of a successful register or login.
type Session struct {
	Token     string            `json:"token"`
	ExpiresAt time.Time         `json:"expiresAt"`
	User      models.PublicUser `json:"user"`
}

type Service struct {
	store    *docstore.Store
	signer   *auth.Signer
	audit    *audit.Log
	domains  []string
	validate *validator.Validate
	now      func() time.Time
}

// NewService creates the identity service. domains is the allow-list of
// e-mail domain suffixes that mark an account as verified.
func NewService(store *docstore.Store, signer *auth.Signer, log *audit.Log, domains []string) *Service {
	return &Service{
		store:    store,
		signer:   signer,
		audit:    log,
		domains:  domains,
		validate: validator.New(),
		now:      time.Now,
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// VerifiedDomain reports whether email's domain is, or is a subdomain of, an allowed suffix.
func VerifiedDomain(email string, allowed []string) bool {
	at := strings.LastIndex(email, "@")
	if at < 0 {
		return false
	}
	domain := strings.ToLower(email[at+1:])
	for _, d := range allowed {
		d = strings.ToLower(strings.TrimPrefix(d, "."))
		if domain == d || strings.HasSuffix(domain, "."+d) {
			return true
		}
	}
	return false
}

func describe(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apperr.Validation("invalid input")
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fmt.Sprintf("%s failed %s", strings.ToLower(fe.Field()), fe.Tag()))
	}
	return apperr.Validation("%s", strings.Join(parts, "; "))
}

// Register creates an account and returns a session for it.
// Duplicate e-mails are a Conflict. Every self-registered account is a
// student; other roles are granted through reviewed role requests.
func (s *Service) Register(ctx context.Context, in RegisterInput) (Session, error) {
	if in.Role != "" && in.Role != models.RoleStudent {
		return Session{}, apperr.Validation("only student accounts can self-register; request %s after signing up", in.Role)
	}
	u, err := s.create(ctx, in)
	if err != nil {
		return Session{}, err
	}
	return s.session(u)
}

// CreateAdmin provisions an admin account out of band.
func (s *Service) CreateAdmin(ctx context.Context, email, password, name string) (models.PublicUser, error) {
	u, err := s.create(ctx, RegisterInput{
		Email:    email,
		Password: password,
		Role:     models.RoleAdmin,
		Profile:  models.Profile{Name: name, Designation: "Administrator"},
	})
	if err != nil {
		return models.PublicUser{}, err
	}
	return u.Public(), nil
}

func (s *Service) create(ctx context.Context, in RegisterInput) (models.User, error) {
	in.Email = normalizeEmail(in.Email)
	if err := s.validate.Struct(in); err != nil {
		return models.User{}, describe(err)
	}
	if strings.TrimSpace(in.Name) == "" {
		return models.User{}, apperr.Validation("name is required")
	}
	if in.Role == "" {
		in.Role = models.RoleStudent
	}

	hash, err := auth.HashPassword(ctx, in.Password)
	if err != nil {
		return models.User{}, fmt.Errorf("hash password: %w", err)
	}

	user := models.User{
		ID:        uuid.NewString(),
		Email:     in.Email,
		Password:  hash,
		Role:      in.Role,
		Profile:   in.Profile,
		Verified:  VerifiedDomain(in.Email, s.domains),
		CreatedAt: s.now().UTC(),
	}
	err = docstore.Mutate(ctx, s.store, docstore.Users, func(users []models.User) ([]models.User, error) {
		for _, u := range users {
			if u.Email == user.Email {
				return nil, apperr.Conflict("user already exists")
			}
		}
		return append(users, user), nil
	})
	if err != nil {
		return models.User{}, err
	}

	s.audit.Record(ctx, models.AuditUserRegistered, user.ID, fmt.Sprintf("New %s account created", user.Role))
	return user, nil
}

// Login checks credentials and issues a token carrying the user's current role.
func (s *Service) Login(ctx context.Context, email, password string) (Session, error) {
	email = normalizeEmail(email)
	users, err := docstore.Load[models.User](ctx, s.store, docstore.Users)
	if err != nil {
		return Session{}, err
	}
	for _, u := range users {
		if u.Email != email {
			continue
		}
		if err := auth.CheckPassword(ctx, u.Password, password); err != nil {
			return Session{}, err
		}
		return s.session(u)
	}
	return Session{}, apperr.Authentication("invalid credentials")
}

func (s *Service) session(u models.User) (Session, error) {
	token, exp, err := s.signer.Issue(u)
	if err != nil {
		return Session{}, fmt.Errorf("issue token: %w", err)
	}
	return Session{Token: token, ExpiresAt: exp, User: u.Public()}, nil
}

// Get returns the stored user.
func (s *Service) Get(ctx context.Context, id string) (models.User, error) {
	users, err := docstore.Load[models.User](ctx, s.store, docstore.Users)
	if err != nil {
		return models.User{}, err
	}
	for _, u := range users {
		if u.ID == id {
			return u, nil
		}
	}
	return models.User{}, apperr.NotFound("user not found")
}

// List returns every stored user.
func (s *Service) List(ctx context.Context) ([]models.User, error) {
	return docstore.Load[models.User](ctx, s.store, docstore.Users)
}

// CurrentRole implements auth.RoleSource.
func (s *Service) CurrentRole(ctx context.Context, id string) (models.Role, error) {
	u, err := s.Get(ctx, id)
	if err != nil {
		return "", err
	}
	return u.Role, nil
}

// UpdateProfile merges patch into the user's profile. Only non-empty patch
// fields are applied; an empty string never clears a stored value.
func (s *Service) UpdateProfile(ctx context.Context, id string, patch models.Profile) (models.PublicUser, error) {
	var updated models.User
	err := docstore.Mutate(ctx, s.store, docstore.Users, func(users []models.User) ([]models.User, error) {
		for i := range users {
			if users[i].ID != id {
				continue
			}
			users[i].Profile.Merge(patch)
			now := s.now().UTC()
			users[i].UpdatedAt = &now
			updated = users[i]
			return users, nil
		}
		return nil, apperr.NotFound("user not found")
	})
	if err != nil {
		return models.PublicUser{}, err
	}
	return updated.Public(), nil
}
