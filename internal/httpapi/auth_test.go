package httpapi

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"bjbyte/backend/internal/apperror"
	"bjbyte/backend/internal/domain"
	"bjbyte/backend/internal/store"
)

type employeeStoreStub struct {
	mu        sync.Mutex
	employees map[string]domain.Employee
	updates   int
}

func (s *employeeStoreStub) GetEmployeeByEmail(_ context.Context, email string) (*domain.Employee, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	employee, ok := s.employees[email]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &employee, nil
}

func (s *employeeStoreStub) CreateEmployee(_ context.Context, employee domain.Employee) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.employees == nil {
		s.employees = make(map[string]domain.Employee)
	}
	if _, exists := s.employees[employee.Email]; exists {
		return store.ErrDuplicate
	}
	if employee.ID == "" {
		employee.ID = "emp-" + strings.Split(employee.Email, "@")[0]
	}
	s.employees[employee.Email] = employee
	return nil
}

func (s *employeeStoreStub) ListEmployees(_ context.Context) ([]domain.Employee, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Employee, 0, len(s.employees))
	for _, employee := range s.employees {
		out = append(out, employee)
	}
	return out, nil
}

func (s *employeeStoreStub) UpdateEmployeePassword(_ context.Context, email string, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	employee := s.employees[email]
	employee.PasswordHash = passwordHash
	s.employees[email] = employee
	s.updates++
	return nil
}

func TestAuthManagerUpgradesLegacyPlainPassword(t *testing.T) {
	stub := &employeeStoreStub{
		employees: map[string]domain.Employee{
			"admin@bjbyte.local": {
				ID:           "emp-admin",
				Name:         "Administrador",
				Email:        "admin@bjbyte.local",
				PasswordHash: "admin12345",
				Role:         domain.RoleAdmin,
				Active:       true,
			},
		},
	}

	manager := NewAuthManager("test-secret", time.Hour, stub)
	resp, err := manager.Login(context.Background(), domain.LoginRequest{
		Email:    "Admin@BJBYTE.local ",
		Password: "admin12345",
	})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if resp.Role != domain.RoleAdmin || resp.Name != "Administrador" {
		t.Fatalf("unexpected login response %+v", resp)
	}

	stored := stub.employees["admin@bjbyte.local"].PasswordHash
	if stored == "admin12345" || !strings.HasPrefix(stored, "$2") {
		t.Fatalf("expected password to be upgraded to bcrypt, got %s", stored)
	}
	if stub.updates != 1 {
		t.Fatalf("expected one password update, got %d", stub.updates)
	}

	if _, err := manager.Login(context.Background(), domain.LoginRequest{Email: "admin@bjbyte.local", Password: "admin12345"}); err != nil {
		t.Fatalf("login after upgrade failed: %v", err)
	}
}

func TestLoginRejectsWrongPasswordAndInactiveAccount(t *testing.T) {
	hash, err := hashPassword("vendedor123")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	stub := &employeeStoreStub{employees: map[string]domain.Employee{
		"ana@bjbyte.local":  {ID: "emp-ana", Email: "ana@bjbyte.local", PasswordHash: hash, Role: domain.RoleSeller, Active: true},
		"luis@bjbyte.local": {ID: "emp-luis", Email: "luis@bjbyte.local", PasswordHash: hash, Role: domain.RoleSeller, Active: false},
	}}
	manager := NewAuthManager("test-secret", time.Hour, stub)

	_, err = manager.Login(context.Background(), domain.LoginRequest{Email: "ana@bjbyte.local", Password: "wrong"})
	if !apperror.HasCode(err, apperror.CodeUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	_, err = manager.Login(context.Background(), domain.LoginRequest{Email: "nadie@bjbyte.local", Password: "vendedor123"})
	if !apperror.HasCode(err, apperror.CodeUnauthorized) {
		t.Fatalf("expected unauthorized for unknown email, got %v", err)
	}
	_, err = manager.Login(context.Background(), domain.LoginRequest{Email: "luis@bjbyte.local", Password: "vendedor123"})
	if !apperror.HasCode(err, apperror.CodeUnauthorized) {
		t.Fatalf("expected inactive account to be rejected, got %v", err)
	}
}

func TestTokenCarriesEmployeeIdentity(t *testing.T) {
	hash, _ := hashPassword("vendedor123")
	stub := &employeeStoreStub{employees: map[string]domain.Employee{
		"ana@bjbyte.local": {ID: "emp-ana", Name: "Ana Gomez", Email: "ana@bjbyte.local", PasswordHash: hash, Role: domain.RoleSeller, Active: true},
	}}
	manager := NewAuthManager("test-secret", time.Hour, stub)

	resp, err := manager.Login(context.Background(), domain.LoginRequest{Email: "ana@bjbyte.local", Password: "vendedor123"})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	actor, err := manager.ParseToken(resp.AccessToken)
	if err != nil {
		t.Fatalf("parse token: %v", err)
	}
	if actor.EmployeeID != "emp-ana" || actor.Name != "Ana Gomez" || actor.Role != domain.RoleSeller {
		t.Fatalf("unexpected actor %+v", actor)
	}

	other := NewAuthManager("another-secret", time.Hour, stub)
	if _, err := other.ParseToken(resp.AccessToken); err == nil {
		t.Fatalf("expected token signed with another secret to be rejected")
	}

	expired := NewAuthManager("test-secret", time.Hour, stub)
	expired.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	old, err := expired.Login(context.Background(), domain.LoginRequest{Email: "ana@bjbyte.local", Password: "vendedor123"})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if _, err := manager.ParseToken(old.AccessToken); err == nil {
		t.Fatalf("expected expired token to be rejected")
	}
}

func TestCreateEmployeeStoresPasswordHash(t *testing.T) {
	stub := &employeeStoreStub{employees: map[string]domain.Employee{}}
	manager := NewAuthManager("test-secret", time.Hour, stub)

	employee, err := manager.CreateEmployee(context.Background(), domain.EmployeeCreateRequest{
		Name:     "Luis Perez",
		Email:    "Luis@BJBYTE.local",
		Password: "pass12345",
	})
	if err != nil {
		t.Fatalf("create employee failed: %v", err)
	}
	if employee.Email != "luis@bjbyte.local" || employee.Role != domain.RoleSeller {
		t.Fatalf("unexpected employee %+v", employee)
	}
	if employee.PasswordHash == "pass12345" || !strings.HasPrefix(employee.PasswordHash, "$2") {
		t.Fatalf("expected bcrypt hash, got %s", employee.PasswordHash)
	}

	if _, err := manager.Login(context.Background(), domain.LoginRequest{Email: "luis@bjbyte.local", Password: "pass12345"}); err != nil {
		t.Fatalf("login with new employee failed: %v", err)
	}

	_, err = manager.CreateEmployee(context.Background(), domain.EmployeeCreateRequest{
		Name: "Otro", Email: "luis@bjbyte.local", Password: "pass12345",
	})
	if !apperror.HasCode(err, apperror.CodeConflict) {
		t.Fatalf("expected conflict for duplicate email, got %v", err)
	}
}

func TestCreateEmployeeValidation(t *testing.T) {
	manager := NewAuthManager("test-secret", time.Hour, &employeeStoreStub{})

	cases := map[string]domain.EmployeeCreateRequest{
		"missing name":   {Email: "a@b.co", Password: "pass12345"},
		"bad email":      {Name: "A", Email: "not-an-email", Password: "pass12345"},
		"short password": {Name: "A", Email: "a@b.co", Password: "short"},
		"unknown role":   {Name: "A", Email: "a@b.co", Password: "pass12345", Role: "cashier"},
	}
	for name, req := range cases {
		if _, err := manager.CreateEmployee(context.Background(), req); !apperror.HasCode(err, apperror.CodeValidation) {
			t.Fatalf("%s: expected validation error, got %v", name, err)
		}
	}
}
