package auth

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/opensource-finance/casewatch/internal/domain"
)

// minPasswordLength applies to officer accounts created through the API.
const minPasswordLength = 8

// Store persists officer accounts.
type Store interface {
	CreateOfficer(ctx context.Context, o *domain.Officer) error
	GetOfficerByUsername(ctx context.Context, username string) (*domain.Officer, error)
}

// Claims are the JWT claims of an officer session.
type Claims struct {
	Username    string      `json:"username"`
	DisplayName string      `json:"name,omitempty"`
	Role        domain.Role `json:"role"`
	jwt.RegisteredClaims
}

// Token is returned by Login.
type Token struct {
	AccessToken string          `json:"accessToken"`
	TokenType   string          `json:"tokenType"`
	ExpiresAt   time.Time       `json:"expiresAt"`
	Officer     *domain.Officer `json:"officer"`
}

// NewOfficer is the payload for creating an officer account.
type NewOfficer struct {
	Username    string `json:"username"`
	Password    string `json:"password"`
	DisplayName string `json:"displayName"`
	Rank        string `json:"rank,omitempty"`
	Station     string `json:"station,omitempty"`
	Role        string `json:"role"`
}

// Service issues and validates officer sessions.
type Service struct {
	store  Store
	secret []byte
	issuer string
	ttl    time.Duration
	cost   int
	now    func() time.Time
}

// NewService creates an auth service. An empty JWT secret is replaced with a
// random one, so tokens do not survive a restart.
func NewService(store Store, cfg domain.AuthConfig) (*Service, error) {
	secret := []byte(cfg.JWTSecret)
	if len(secret) == 0 {
		secret = make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			return nil, fmt.Errorf("generate jwt secret: %w", err)
		}
		slog.Warn("no JWT secret configured, using an ephemeral one")
	}

	cost := cfg.BcryptCost
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	issuer := cfg.Issuer
	if issuer == "" {
		issuer = "casewatch"
	}

	return &Service{
		store:  store,
		secret: secret,
		issuer: issuer,
		ttl:    ttl,
		cost:   cost,
		now:    time.Now,
	}, nil
}

// Login checks the credentials and issues a signed session token. Unknown
// users, wrong passwords and inactive accounts all return ErrUnauthorized.
func (s *Service) Login(ctx context.Context, username, password string) (*Token, error) {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || password == "" {
		return nil, fmt.Errorf("%w: username and password are required", domain.ErrValidation)
	}

	officer, err := s.store.GetOfficerByUsername(ctx, username)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("%w: invalid credentials", domain.ErrUnauthorized)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrDependency, err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(officer.PasswordHash), []byte(password)); err != nil {
		return nil, fmt.Errorf("%w: invalid credentials", domain.ErrUnauthorized)
	}
	if !officer.Active {
		return nil, fmt.Errorf("%w: account disabled", domain.ErrUnauthorized)
	}

	now := s.now()
	expires := now.Add(s.ttl)
	claims := Claims{
		Username:    officer.Username,
		DisplayName: officer.DisplayName,
		Role:        officer.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   officer.ID,
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
			ID:        uuid.NewString(),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return nil, fmt.Errorf("sign token: %w", err)
	}

	slog.InfoContext(ctx, "officer logged in", "officer_id", officer.ID, "role", officer.Role)
	return &Token{
		AccessToken: signed,
		TokenType:   "Bearer",
		ExpiresAt:   expires.UTC(),
		Officer:     officer,
	}, nil
}

// Authenticate validates a token and returns its session.
func (s *Service) Authenticate(ctx context.Context, token string) (*Session, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, fmt.Errorf("%w: missing token", domain.ErrUnauthorized)
	}

	var claims Claims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || !parsed.Valid {
		return nil, fmt.Errorf("%w: invalid or expired token", domain.ErrUnauthorized)
	}
	if _, err := domain.ParseRole(string(claims.Role)); err != nil {
		return nil, fmt.Errorf("%w: invalid role claim", domain.ErrUnauthorized)
	}

	return &Session{
		OfficerID:   claims.Subject,
		Username:    claims.Username,
		DisplayName: claims.DisplayName,
		Role:        claims.Role,
		ExpiresAt:   claims.ExpiresAt.Time.UTC(),
	}, nil
}

// CreateOfficer adds an officer account. Only admins may call it.
func (s *Service) CreateOfficer(ctx context.Context, actor *Session, req NewOfficer) (*domain.Officer, error) {
	if actor == nil {
		return nil, fmt.Errorf("%w: session required", domain.ErrUnauthorized)
	}
	if actor.Role != domain.RoleAdmin {
		return nil, fmt.Errorf("%w: only admins can create officers", domain.ErrForbidden)
	}
	return s.create(ctx, req)
}

// EnsureAdmin creates the bootstrap admin if it does not exist yet.
func (s *Service) EnsureAdmin(ctx context.Context, username, password string) error {
	if username == "" || password == "" {
		slog.InfoContext(ctx, "no bootstrap admin configured")
		return nil
	}

	_, err := s.store.GetOfficerByUsername(ctx, username)
	if err == nil {
		return nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("%w: %v", domain.ErrDependency, err)
	}

	officer, err := s.create(ctx, NewOfficer{
		Username:    username,
		Password:    password,
		DisplayName: "Administrator",
		Role:        string(domain.RoleAdmin),
	})
	if err != nil {
		return err
	}
	slog.InfoContext(ctx, "bootstrap admin created", "officer_id", officer.ID, "username", officer.Username)
	return nil
}

func (s *Service) create(ctx context.Context, req NewOfficer) (*domain.Officer, error) {
	username := strings.ToLower(strings.TrimSpace(req.Username))
	if username == "" {
		return nil, fmt.Errorf("%w: username is required", domain.ErrValidation)
	}
	if len(req.Password) < minPasswordLength {
		return nil, fmt.Errorf("%w: password must be at least %d characters", domain.ErrValidation, minPasswordLength)
	}
	role := domain.RoleOfficer
	if req.Role != "" {
		r, err := domain.ParseRole(req.Role)
		if err != nil {
			return nil, err
		}
		role = r
	}

	_, err := s.store.GetOfficerByUsername(ctx, username)
	if err == nil {
		return nil, fmt.Errorf("%w: username %q already exists", domain.ErrValidation, username)
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("%w: %v", domain.ErrDependency, err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.cost)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}

	displayName := strings.TrimSpace(req.DisplayName)
	if displayName == "" {
		displayName = username
	}
	officer := &domain.Officer{
		ID:           uuid.NewString(),
		Username:     username,
		DisplayName:  displayName,
		Rank:         strings.TrimSpace(req.Rank),
		Station:      strings.TrimSpace(req.Station),
		Role:         role,
		PasswordHash: string(hash),
		Active:       true,
		CreatedAt:    s.now().UTC(),
	}
	if err := s.store.CreateOfficer(ctx, officer); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrDependency, err)
	}
	return officer, nil
}
