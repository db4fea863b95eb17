package memory

import (
	"context"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"nurbuild/backend/internal/domain"
	"nurbuild/backend/internal/logger"
	"nurbuild/backend/internal/store"
)

type Store struct {
	mu              sync.RWMutex
	data            *state
	auditLogs       []domain.AuditLog
	usersByUsername map[string]domain.UserAccount
}

type state struct {
	customers map[string]domain.Customer
	materials map[string]domain.Material
	sales     map[string]domain.Sale
	debts     map[string]domain.Debt
	payments  map[string]domain.DebtPayment
	reminders map[string]domain.DebtReminder
}

func newState() *state {
	return &state{
		customers: make(map[string]domain.Customer),
		materials: make(map[string]domain.Material),
		sales:     make(map[string]domain.Sale),
		debts:     make(map[string]domain.Debt),
		payments:  make(map[string]domain.DebtPayment),
		reminders: make(map[string]domain.DebtReminder),
	}
}

func (st *state) clone() *state {
	out := newState()
	for k, v := range st.customers {
		out.customers[k] = v
	}
	for k, v := range st.materials {
		out.materials[k] = v
	}
	for k, v := range st.sales {
		out.sales[k] = copySale(v)
	}
	for k, v := range st.debts {
		out.debts[k] = v
	}
	for k, v := range st.payments {
		out.payments[k] = v
	}
	for k, v := range st.reminders {
		out.reminders[k] = v
	}
	return out
}

func copySale(sale domain.Sale) domain.Sale {
	sale.Items = append([]domain.SaleItem(nil), sale.Items...)
	return sale
}

// seedUsers builds the dev/demo accounts. Passwords come from
// SEED_ADMIN_PASSWORD, SEED_MANAGER_PASSWORD and SEED_STAFF_PASSWORD with
// hardcoded fallbacks; postgres deployments never use them.
func seedUsers() map[string]domain.UserAccount {
	log := logger.WithComponent("memory-store")
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	managerPwd := envOr("SEED_MANAGER_PASSWORD", "manager123")
	staffPwd := envOr("SEED_STAFF_PASSWORD", "staff123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_MANAGER_PASSWORD") == "" {
		log.Warn().Msg("using default dev credentials; set SEED_ADMIN_PASSWORD, SEED_MANAGER_PASSWORD and SEED_STAFF_PASSWORD to override")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"admin", adminPwd, domain.RoleAdmin},
		{"manager", managerPwd, domain.RoleManager},
		{"staff", staffPwd, domain.RoleWarehouseStaff},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatal().Err(err).Str("username", u.username).Msg("failed to hash seed password")
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func New() *Store {
	return &Store{
		data:            newState(),
		auditLogs:       make([]domain.AuditLog, 0, 128),
		usersByUsername: make(map[string]domain.UserAccount),
	}
}

func NewSeeded() *Store {
	s := New()
	s.usersByUsername = seedUsers()

	now := time.Now().UTC()
	materials := []domain.Material{
		{ID: "mat-cement-50kg", SKU: "CEM-50", Name: "Portland Cement 50kg", Category: "cement", Unit: "bag", QuantityInStock: decimal.NewFromInt(400), PricePerUnit: decimal.RequireFromString("8.50")},
		{ID: "mat-rebar-12mm", SKU: "RBR-12", Name: "Rebar 12mm x 12m", Category: "steel", Unit: "pcs", QuantityInStock: decimal.NewFromInt(250), PricePerUnit: decimal.RequireFromString("11.75")},
		{ID: "mat-sand-m3", SKU: "SND-M3", Name: "River Sand", Category: "aggregate", Unit: "m3", QuantityInStock: decimal.NewFromInt(80), PricePerUnit: decimal.RequireFromString("25.00")},
		{ID: "mat-block-6in", SKU: "BLK-6", Name: "Concrete Block 6in", Category: "masonry", Unit: "pcs", QuantityInStock: decimal.NewFromInt(3000), PricePerUnit: decimal.RequireFromString("0.65")},
		{ID: "mat-roof-sheet", SKU: "RFS-28G", Name: "Roofing Sheet 28 gauge", Category: "roofing", Unit: "sheet", QuantityInStock: decimal.NewFromInt(500), PricePerUnit: decimal.RequireFromString("7.20")},
		{ID: "mat-paint-20l", SKU: "PNT-20", Name: "Emulsion Paint 20L", Category: "finishing", Unit: "bucket", QuantityInStock: decimal.NewFromInt(60), PricePerUnit: decimal.RequireFromString("32.00")},
	}
	for _, m := range materials {
		m.CreatedAt = now
		s.data.materials[m.ID] = m
	}

	customers := []domain.Customer{
		{ID: "cus-walk-in", Name: "Walk-in Customer", CustomerType: domain.CustomerIndividual, Status: domain.CustomerActive},
		{ID: "cus-horn-builders", Name: "Horn Builders Ltd", CustomerType: domain.CustomerCompany, Phone: "+252610000001", CreditLimit: decimal.NewFromInt(5000), AllowDebt: true, Status: domain.CustomerActive},
		{ID: "cus-city-works", Name: "City Public Works", CustomerType: domain.CustomerGovernment, Phone: "+252610000002", CreditLimit: decimal.NewFromInt(20000), AllowDebt: true, Status: domain.CustomerActive},
	}
	for _, c := range customers {
		c.CreatedAt = now
		c.UpdatedAt = now
		s.data.customers[c.ID] = c
	}

	return s
}

// WithinTx holds the store lock for the whole callback and restores the
// previous state if the callback fails.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.data.clone()
	if err := fn(ctx, &memTx{st: s.data}); err != nil {
		s.data = snapshot
		return err
	}
	return nil
}

func (s *Store) GetCustomer(_ context.Context, id string) (*domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	customer, ok := s.data.customers[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &customer, nil
}

func (s *Store) ListCustomers(_ context.Context, filter domain.CustomerFilter) ([]domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	search := strings.ToLower(strings.TrimSpace(filter.Search))
	result := make([]domain.Customer, 0, len(s.data.customers))
	for _, c := range s.data.customers {
		if filter.Status != "" && c.Status != filter.Status {
			continue
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(c.Name), search) &&
			!strings.Contains(strings.ToLower(c.Phone), search) &&
			!strings.Contains(strings.ToLower(c.Email), search) {
			continue
		}
		result = append(result, c)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Name < result[j].Name
	})
	return result, nil
}

func (s *Store) GetMaterial(_ context.Context, id string) (*domain.Material, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	material, ok := s.data.materials[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &material, nil
}

func (s *Store) ListMaterials(_ context.Context) ([]domain.Material, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Material, 0, len(s.data.materials))
	for _, m := range s.data.materials {
		result = append(result, m)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Category == result[j].Category {
			return result[i].Name < result[j].Name
		}
		return result[i].Category < result[j].Category
	})
	return result, nil
}

func (s *Store) GetSale(_ context.Context, id string) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sale, ok := s.data.sales[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	copied := copySale(sale)
	return &copied, nil
}

func (s *Store) ListSales(_ context.Context, filter domain.SaleFilter) ([]domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Sale, 0, len(s.data.sales))
	for _, sale := range s.data.sales {
		if filter.CustomerID != "" && sale.CustomerID != filter.CustomerID {
			continue
		}
		if filter.PaymentMethod != "" && sale.PaymentMethod != filter.PaymentMethod {
			continue
		}
		result = append(result, copySale(sale))
	}
	sort.Slice(result, func(i, j int) bool {
		return newerFirst(result[i].CreatedAt, result[j].CreatedAt, result[i].ID, result[j].ID)
	})
	return result, nil
}

func (s *Store) GetDebt(_ context.Context, id string) (*domain.Debt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	debt, ok := s.data.debts[id]
	if !ok || debt.IsDeleted {
		return nil, store.ErrNotFound
	}
	return &debt, nil
}

func (s *Store) ListDebts(_ context.Context, filter domain.DebtFilter) ([]domain.Debt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Debt, 0, len(s.data.debts))
	for _, debt := range s.data.debts {
		if debt.IsDeleted {
			continue
		}
		if filter.CustomerID != "" && debt.CustomerID != filter.CustomerID {
			continue
		}
		if filter.Status != "" && debt.Status != filter.Status {
			continue
		}
		if filter.Priority != "" && debt.Priority != filter.Priority {
			continue
		}
		if filter.SaleLinked && debt.SaleID == "" {
			continue
		}
		result = append(result, debt)
	}
	sort.Slice(result, func(i, j int) bool {
		return newerFirst(result[i].CreatedAt, result[j].CreatedAt, result[i].ID, result[j].ID)
	})
	return result, nil
}

func (s *Store) GetDebtPayment(_ context.Context, id string) (*domain.DebtPayment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	payment, ok := s.data.payments[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &payment, nil
}

func (s *Store) ListDebtPayments(_ context.Context, filter domain.PaymentFilter) ([]domain.DebtPayment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.DebtPayment, 0, len(s.data.payments))
	for _, p := range s.data.payments {
		if filter.DebtID != "" && p.DebtID != filter.DebtID {
			continue
		}
		if filter.CustomerID != "" && p.CustomerID != filter.CustomerID {
			continue
		}
		if filter.Status != "" && p.Status != filter.Status {
			continue
		}
		if !filter.From.IsZero() && p.PaymentDate.Before(filter.From) {
			continue
		}
		if !filter.To.IsZero() && !p.PaymentDate.Before(filter.To) {
			continue
		}
		result = append(result, p)
	}
	sort.Slice(result, func(i, j int) bool {
		return newerFirst(result[i].CreatedAt, result[j].CreatedAt, result[i].ID, result[j].ID)
	})
	return result, nil
}

func (s *Store) GetDebtReminder(_ context.Context, id string) (*domain.DebtReminder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	reminder, ok := s.data.reminders[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &reminder, nil
}

func (s *Store) ListDebtReminders(_ context.Context, filter domain.ReminderFilter) ([]domain.DebtReminder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.DebtReminder, 0, len(s.data.reminders))
	for _, r := range s.data.reminders {
		if filter.DebtID != "" && r.DebtID != filter.DebtID {
			continue
		}
		if filter.Status != "" && r.Status != filter.Status {
			continue
		}
		if filter.ScheduledBy != nil && r.ScheduledDate.After(*filter.ScheduledBy) {
			continue
		}
		result = append(result, r)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].ScheduledDate.Equal(result[j].ScheduledDate) {
			return result[i].ID < result[j].ID
		}
		return result[i].ScheduledDate.Before(result[j].ScheduledDate)
	})
	return result, nil
}

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.AuditLog, 0, limit)
	for i := len(s.auditLogs) - 1; i >= 0; i-- {
		entry := s.auditLogs[i]
		if entry.CreatedAt.Before(from) || !entry.CreatedAt.Before(to) {
			continue
		}
		result = append(result, entry)
		if limit > 0 && len(result) >= limit {
			break
		}
	}
	return result, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user.Username = strings.ToLower(strings.TrimSpace(user.Username))
	if user.Username == "" {
		return domain.Invalid("username", "username is required")
	}
	if _, exists := s.usersByUsername[user.Username]; exists {
		return store.ErrDuplicate
	}
	s.usersByUsername[user.Username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, user := range s.usersByUsername {
		users = append(users, user)
	}
	sort.Slice(users, func(i, j int) bool {
		return users[i].Username < users[j].Username
	})
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.usersByUsername[username]
	if !ok {
		return store.ErrNotFound
	}
	user.Password = password
	s.usersByUsername[username] = user
	return nil
}

func newerFirst(a, b time.Time, idA, idB string) bool {
	if a.Equal(b) {
		return idA > idB
	}
	return a.After(b)
}
