package httpapi

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"

	"nurbuild/backend/internal/domain"
)

type userStoreStub struct {
	mu      sync.Mutex
	users   map[string]domain.UserAccount
	updates int
}

func (s *userStoreStub) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.users == nil {
		s.users = make(map[string]domain.UserAccount)
	}
	s.users[user.Username] = user
	return nil
}

func (s *userStoreStub) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.UserAccount, 0, len(s.users))
	for _, user := range s.users {
		out = append(out, user)
	}
	return out, nil
}

func (s *userStoreStub) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user := s.users[username]
	user.Password = password
	s.users[username] = user
	s.updates++
	return nil
}

func legacyAdminStore() *userStoreStub {
	return &userStoreStub{
		users: map[string]domain.UserAccount{
			"admin": {
				Username:  "admin",
				Password:  "admin123",
				Role:      domain.RoleAdmin,
				Active:    true,
				CreatedAt: time.Now().UTC(),
			},
		},
	}
}

func TestAuthManagerUpgradesLegacyPlainPassword(t *testing.T) {
	store := legacyAdminStore()

	manager := NewAuthManager(context.Background(), "test-secret", time.Hour, store)
	resp, err := manager.Login(context.Background(), domain.LoginRequest{
		Username: "admin",
		Password: "admin123",
	})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if resp.Role != domain.RoleAdmin {
		t.Fatalf("expected admin role, got %s", resp.Role)
	}

	users, err := store.ListUsers(context.Background())
	if err != nil {
		t.Fatalf("list users failed: %v", err)
	}
	if len(users) != 1 {
		t.Fatalf("expected 1 user, got %d", len(users))
	}
	if !strings.HasPrefix(users[0].Password, "$2") {
		t.Fatalf("expected bcrypt password hash, got %s", users[0].Password)
	}
}

func TestCreateUserStoresPasswordHashAndRole(t *testing.T) {
	store := legacyAdminStore()
	manager := NewAuthManager(context.Background(), "test-secret", time.Hour, store)

	user, err := manager.CreateUser(context.Background(), domain.UserCreateRequest{
		Username: "Yard-Lead",
		Password: "cement-2025",
		Role:     domain.RoleManager,
	})
	if err != nil {
		t.Fatalf("create user failed: %v", err)
	}
	if user.Username != "yard-lead" || user.Role != domain.RoleManager {
		t.Fatalf("unexpected user %+v", user)
	}

	stored := store.users["yard-lead"]
	if stored.Password == "cement-2025" || !strings.HasPrefix(stored.Password, "$2") {
		t.Fatalf("expected hashed password, got %s", stored.Password)
	}

	resp, err := manager.Login(context.Background(), domain.LoginRequest{Username: "yard-lead", Password: "cement-2025"})
	if err != nil {
		t.Fatalf("login with new user failed: %v", err)
	}
	actor, err := manager.ParseToken(resp.AccessToken)
	if err != nil {
		t.Fatalf("parse token: %v", err)
	}
	if actor.Username != "yard-lead" || actor.Role != domain.RoleManager {
		t.Fatalf("unexpected actor %+v", actor)
	}
}

func TestCreateUserValidation(t *testing.T) {
	manager := NewAuthManager(context.Background(), "test-secret", time.Hour, legacyAdminStore())

	cases := []struct {
		name string
		req  domain.UserCreateRequest
	}{
		{"short username", domain.UserCreateRequest{Username: "abc", Password: "long-enough"}},
		{"short password", domain.UserCreateRequest{Username: "loader", Password: "short"}},
		{"unknown role", domain.UserCreateRequest{Username: "loader", Password: "long-enough", Role: "cashier"}},
		{"duplicate", domain.UserCreateRequest{Username: "admin", Password: "long-enough"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := manager.CreateUser(context.Background(), tc.req)
			if !errors.Is(err, domain.ErrValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}

	user, err := manager.CreateUser(context.Background(), domain.UserCreateRequest{Username: "loader", Password: "long-enough"})
	if err != nil {
		t.Fatalf("create default-role user: %v", err)
	}
	if user.Role != domain.RoleWarehouseStaff {
		t.Fatalf("expected default role warehouse_staff, got %s", user.Role)
	}
}

func TestParseTokenRejectsForeignIssuer(t *testing.T) {
	manager := NewAuthManager(context.Background(), "test-secret", time.Hour, nil)

	claims := staffClaims{
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   "admin",
			Issuer:    "someone-else",
			ExpiresAt: jwtlib.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Role: domain.RoleAdmin,
	}
	token, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := manager.ParseToken(token); err == nil {
		t.Fatalf("expected token from another issuer to be rejected")
	}

	expired, err := manager.sign("admin", domain.RoleAdmin, time.Now().Add(-time.Minute))
	if err != nil {
		t.Fatalf("sign expired: %v", err)
	}
	if _, err := manager.ParseToken(expired); err == nil {
		t.Fatalf("expected expired token to be rejected")
	}
}

func TestLoginRejectsInactiveAccount(t *testing.T) {
	store := legacyAdminStore()
	user := store.users["admin"]
	user.Active = false
	store.users["admin"] = user

	manager := NewAuthManager(context.Background(), "test-secret", time.Hour, store)
	if _, err := manager.Login(context.Background(), domain.LoginRequest{Username: "admin", Password: "admin123"}); err == nil {
		t.Fatalf("expected inactive account to be rejected")
	}
	if _, err := manager.Login(context.Background(), domain.LoginRequest{Username: "ghost", Password: "admin123"}); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials, got %v", err)
	}
}
