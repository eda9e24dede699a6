package memory

import (
	"context"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"bjbyte/backend/internal/domain"
	"bjbyte/backend/internal/logger"
	"bjbyte/backend/internal/store"
	"bjbyte/backend/internal/xid"
)

type state struct {
	products  map[string]domain.Product
	suppliers map[string]domain.Supplier
	clients   map[string]domain.Client
	employees map[string]domain.Employee // keyed by lower-cased email
	stock     map[string]domain.StockLine
	sales     map[string]domain.Sale
}

func newState() state {
	return state{
		products:  make(map[string]domain.Product),
		suppliers: make(map[string]domain.Supplier),
		clients:   make(map[string]domain.Client),
		employees: make(map[string]domain.Employee),
		stock:     make(map[string]domain.StockLine),
		sales:     make(map[string]domain.Sale),
	}
}

func (st state) clone() state {
	dup := newState()
	for id, p := range st.products {
		dup.products[id] = cloneProduct(p)
	}
	for id, s := range st.suppliers {
		dup.suppliers[id] = s
	}
	for id, c := range st.clients {
		dup.clients[id] = c
	}
	for email, e := range st.employees {
		dup.employees[email] = e
	}
	for id, line := range st.stock {
		dup.stock[id] = line
	}
	for id, sale := range st.sales {
		dup.sales[id] = cloneSale(sale)
	}
	return dup
}

var _ store.Repository = (*Store)(nil)

// Store keeps everything in process memory. Transactions are serialized by txMu and work on
// a private copy of the data that replaces the committed state only on success.
type Store struct {
	txMu sync.Mutex
	mu   sync.RWMutex
	data state
	now  func() time.Time
}

type txKey struct{}

type txState struct {
	owner *Store
	data  state
}

func New() *Store {
	return &Store{data: newState(), now: func() time.Time { return time.Now().UTC() }}
}

// seedEmployees builds the dev login accounts. Passwords come from SEED_ADMIN_PASSWORD and
// SEED_SELLER_PASSWORD; the dev defaults are used with a warning when unset. PostgreSQL
// deployments never call this.
func seedEmployees(now time.Time) []domain.Employee {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin12345")
	sellerPwd := envOr("SEED_SELLER_PASSWORD", "vendedor123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_SELLER_PASSWORD") == "" {
		logger.Default().WithComponent("memory-store").Warn("using default dev credentials, set SEED_ADMIN_PASSWORD and SEED_SELLER_PASSWORD to override")
	}

	employees := make([]domain.Employee, 0, 2)
	for _, e := range []struct {
		id, name, email, password, role string
	}{
		{"emp-admin", "Administrador", "admin@bjbyte.local", adminPwd, domain.RoleAdmin},
		{"emp-vendedor", "Vendedor Mostrador", "vendedor@bjbyte.local", sellerPwd, domain.RoleSeller},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(e.password), bcrypt.DefaultCost)
		if err != nil {
			panic("memory-store: hash seed password: " + err.Error())
		}
		employees = append(employees, domain.Employee{
			ID:           e.id,
			Name:         e.name,
			Email:        e.email,
			PasswordHash: string(hash),
			Role:         e.role,
			Active:       true,
			CreatedAt:    now,
		})
	}
	return employees
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// NewSeeded returns a store with a small workshop catalog, stock and dev accounts.
func NewSeeded() *Store {
	s := New()
	now := s.now()

	s.data.suppliers["sup-motopartes"] = domain.Supplier{ID: "sup-motopartes", Name: "Motopartes del Valle", Phone: "3104567890", CreatedAt: now}
	s.data.suppliers["sup-lubricantes"] = domain.Supplier{ID: "sup-lubricantes", Name: "Lubricantes Andinos", Email: "ventas@lubriandinos.co", CreatedAt: now}

	products := []domain.Product{
		{ID: "prd-aceite-20w50", Name: "Aceite 20W50 1L", Price: domain.MustMoney("32000"), BasePrice: domain.MustMoney("24000"), SupplierIDs: []string{"sup-lubricantes"}},
		{ID: "prd-filtro-aire", Name: "Filtro de aire", Price: domain.MustMoney("18500"), BasePrice: domain.MustMoney("12000"), SupplierIDs: []string{"sup-motopartes"}},
		{ID: "prd-pastillas-freno", Name: "Pastillas de freno", Price: domain.MustMoney("45000"), BasePrice: domain.MustMoney("30000"), SupplierIDs: []string{"sup-motopartes"}},
		{ID: "prd-kit-arrastre", Name: "Kit de arrastre", Price: domain.MustMoney("160000"), BasePrice: domain.MustMoney("118000"), SupplierIDs: []string{"sup-motopartes", "sup-lubricantes"}},
		{ID: "prd-mano-obra", Name: "Mano de obra mantenimiento", Price: domain.MustMoney("40000"), BasePrice: domain.MustMoney("0"), Exempt: true},
	}
	for _, p := range products {
		p.Profit = p.Price.Sub(p.BasePrice)
		p.Active = true
		p.CreatedAt = now
		s.data.products[p.ID] = p
	}

	for _, line := range []domain.StockLine{
		{ID: "stk-aceite-bodega", ProductID: "prd-aceite-20w50", Location: "Bodega", Condition: "nuevo", Quantity: 40},
		{ID: "stk-filtro-bodega", ProductID: "prd-filtro-aire", Location: "Bodega", Condition: "nuevo", Quantity: 15},
		{ID: "stk-pastillas-vitrina", ProductID: "prd-pastillas-freno", Location: "Vitrina", Condition: "nuevo", Quantity: 10},
		{ID: "stk-kit-bodega", ProductID: "prd-kit-arrastre", Location: "Bodega", Condition: "nuevo", Quantity: 4},
		{ID: "stk-mano-obra", ProductID: "prd-mano-obra", Location: "Taller", Condition: "servicio", Quantity: 1000},
	} {
		line.UpdatedAt = now
		s.data.stock[line.ID] = line
	}

	s.data.clients["cli-mostrador"] = domain.Client{ID: "cli-mostrador", Name: "Carlos Ramirez", Document: "1017234567", Phone: "3001234567", Address: "Cra 45 #12-30", Email: "carlos@example.com", CreatedAt: now}

	for _, e := range seedEmployees(now) {
		s.data.employees[strings.ToLower(e.Email)] = e
	}
	return s
}

// SetClock replaces the time source used for created/updated stamps.
func (s *Store) SetClock(now func() time.Time) {
	s.now = now
}

func (s *Store) tx(ctx context.Context) *txState {
	tx, _ := ctx.Value(txKey{}).(*txState)
	if tx == nil || tx.owner != s {
		return nil
	}
	return tx
}

func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.tx(ctx) != nil {
		return fn(ctx)
	}

	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.RLock()
	tx := &txState{owner: s, data: s.data.clone()}
	s.mu.RUnlock()

	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		return err
	}

	s.mu.Lock()
	s.data = tx.data
	s.mu.Unlock()
	return nil
}

// write applies fn to the transaction's copy when ctx carries one. Otherwise it holds txMu so
// an open transaction cannot commit over the change.
func (s *Store) write(ctx context.Context, fn func(st *state) error) error {
	if tx := s.tx(ctx); tx != nil {
		return fn(&tx.data)
	}
	s.txMu.Lock()
	defer s.txMu.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(&s.data)
}

// read sees the transaction's own writes inside WithinTx and committed data everywhere else.
func (s *Store) read(ctx context.Context, fn func(st *state)) {
	if tx := s.tx(ctx); tx != nil {
		fn(&tx.data)
		return
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	fn(&s.data)
}

// Products

func (s *Store) ListProducts(ctx context.Context, nameContains string) ([]domain.Product, error) {
	needle := strings.ToLower(strings.TrimSpace(nameContains))
	var products []domain.Product
	s.read(ctx, func(st *state) {
		products = make([]domain.Product, 0, len(st.products))
		for _, p := range st.products {
			if needle != "" && !strings.Contains(strings.ToLower(p.Name), needle) {
				continue
			}
			products = append(products, cloneProduct(p))
		}
	})
	slices.SortFunc(products, func(a, b domain.Product) int {
		if c := strings.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name)); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return products, nil
}

func (s *Store) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	var (
		product domain.Product
		ok      bool
	)
	s.read(ctx, func(st *state) {
		product, ok = st.products[id]
		product = cloneProduct(product)
	})
	if !ok {
		return nil, store.ErrNotFound
	}
	return &product, nil
}

func (s *Store) GetProductsByIDs(ctx context.Context, ids []string) (map[string]domain.Product, error) {
	result := make(map[string]domain.Product, len(ids))
	s.read(ctx, func(st *state) {
		for _, id := range ids {
			if p, ok := st.products[id]; ok {
				result[id] = cloneProduct(p)
			}
		}
	})
	return result, nil
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if strings.TrimSpace(product.Name) == "" || product.Price.IsNegative() || product.BasePrice.IsNegative() {
		return nil, store.ErrInvalidInput
	}
	if product.ID == "" {
		product.ID = xid.New("prd")
	}
	if product.CreatedAt.IsZero() {
		product.CreatedAt = s.now()
	}
	err := s.write(ctx, func(st *state) error {
		if _, exists := st.products[product.ID]; exists {
			return store.ErrDuplicate
		}
		for _, supplierID := range product.SupplierIDs {
			if _, ok := st.suppliers[supplierID]; !ok {
				return store.ErrNotFound
			}
		}
		st.products[product.ID] = cloneProduct(product)
		return nil
	})
	if err != nil {
		return nil, err
	}
	created := cloneProduct(product)
	return &created, nil
}

func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if strings.TrimSpace(product.Name) == "" || product.Price.IsNegative() || product.BasePrice.IsNegative() {
		return nil, store.ErrInvalidInput
	}
	var updated domain.Product
	err := s.write(ctx, func(st *state) error {
		current, exists := st.products[product.ID]
		if !exists {
			return store.ErrNotFound
		}
		product.CreatedAt = current.CreatedAt
		product.SupplierIDs = slices.Clone(current.SupplierIDs)
		st.products[product.ID] = product
		updated = cloneProduct(product)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

func (s *Store) SetProductSuppliers(ctx context.Context, productID string, supplierIDs []string) error {
	return s.write(ctx, func(st *state) error {
		product, exists := st.products[productID]
		if !exists {
			return store.ErrNotFound
		}
		for _, supplierID := range supplierIDs {
			if _, ok := st.suppliers[supplierID]; !ok {
				return store.ErrNotFound
			}
		}
		product.SupplierIDs = slices.Clone(supplierIDs)
		st.products[productID] = product
		return nil
	})
}

// Suppliers and clients

func (s *Store) CreateSupplier(ctx context.Context, supplier domain.Supplier) (*domain.Supplier, error) {
	if strings.TrimSpace(supplier.Name) == "" {
		return nil, store.ErrInvalidInput
	}
	if supplier.ID == "" {
		supplier.ID = xid.New("sup")
	}
	if supplier.CreatedAt.IsZero() {
		supplier.CreatedAt = s.now()
	}
	err := s.write(ctx, func(st *state) error {
		if _, exists := st.suppliers[supplier.ID]; exists {
			return store.ErrDuplicate
		}
		st.suppliers[supplier.ID] = supplier
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &supplier, nil
}

func (s *Store) ListSuppliers(ctx context.Context) ([]domain.Supplier, error) {
	var suppliers []domain.Supplier
	s.read(ctx, func(st *state) {
		suppliers = make([]domain.Supplier, 0, len(st.suppliers))
		for _, supplier := range st.suppliers {
			suppliers = append(suppliers, supplier)
		}
	})
	slices.SortFunc(suppliers, func(a, b domain.Supplier) int {
		return strings.Compare(a.Name, b.Name)
	})
	return suppliers, nil
}

func (s *Store) CreateClient(ctx context.Context, client domain.Client) (*domain.Client, error) {
	if strings.TrimSpace(client.Name) == "" {
		return nil, store.ErrInvalidInput
	}
	if client.ID == "" {
		client.ID = xid.New("cli")
	}
	if client.CreatedAt.IsZero() {
		client.CreatedAt = s.now()
	}
	err := s.write(ctx, func(st *state) error {
		if _, exists := st.clients[client.ID]; exists {
			return store.ErrDuplicate
		}
		st.clients[client.ID] = client
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &client, nil
}

func (s *Store) GetClient(ctx context.Context, id string) (*domain.Client, error) {
	var (
		client domain.Client
		ok     bool
	)
	s.read(ctx, func(st *state) {
		client, ok = st.clients[id]
	})
	if !ok {
		return nil, store.ErrNotFound
	}
	return &client, nil
}

func (s *Store) ListClients(ctx context.Context) ([]domain.Client, error) {
	var clients []domain.Client
	s.read(ctx, func(st *state) {
		clients = make([]domain.Client, 0, len(st.clients))
		for _, client := range st.clients {
			clients = append(clients, client)
		}
	})
	slices.SortFunc(clients, func(a, b domain.Client) int {
		return strings.Compare(a.Name, b.Name)
	})
	return clients, nil
}

// Employees

func (s *Store) CreateEmployee(ctx context.Context, employee domain.Employee) error {
	email := strings.ToLower(strings.TrimSpace(employee.Email))
	if email == "" || strings.TrimSpace(employee.PasswordHash) == "" || strings.TrimSpace(employee.Name) == "" {
		return store.ErrInvalidInput
	}
	employee.Email = email
	if employee.ID == "" {
		employee.ID = xid.New("emp")
	}
	if employee.Role == "" {
		employee.Role = domain.RoleSeller
	}
	if employee.CreatedAt.IsZero() {
		employee.CreatedAt = s.now()
	}
	employee.Active = true
	return s.write(ctx, func(st *state) error {
		if _, exists := st.employees[email]; exists {
			return store.ErrDuplicate
		}
		st.employees[email] = employee
		return nil
	})
}

func (s *Store) GetEmployeeByEmail(ctx context.Context, email string) (*domain.Employee, error) {
	var (
		employee domain.Employee
		ok       bool
	)
	s.read(ctx, func(st *state) {
		employee, ok = st.employees[strings.ToLower(strings.TrimSpace(email))]
	})
	if !ok {
		return nil, store.ErrNotFound
	}
	return &employee, nil
}

func (s *Store) ListEmployees(ctx context.Context) ([]domain.Employee, error) {
	var employees []domain.Employee
	s.read(ctx, func(st *state) {
		employees = make([]domain.Employee, 0, len(st.employees))
		for _, employee := range st.employees {
			employees = append(employees, employee)
		}
	})
	slices.SortFunc(employees, func(a, b domain.Employee) int {
		return strings.Compare(a.Name, b.Name)
	})
	return employees, nil
}

func (s *Store) UpdateEmployeePassword(ctx context.Context, email string, passwordHash string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || strings.TrimSpace(passwordHash) == "" {
		return store.ErrInvalidInput
	}
	return s.write(ctx, func(st *state) error {
		employee, exists := st.employees[email]
		if !exists {
			return store.ErrNotFound
		}
		employee.PasswordHash = passwordHash
		st.employees[email] = employee
		return nil
	})
}

// Stock ledger

func (s *Store) GetStockLine(ctx context.Context, id string) (*domain.StockLine, error) {
	var (
		line domain.StockLine
		ok   bool
	)
	s.read(ctx, func(st *state) {
		line, ok = st.stock[id]
	})
	if !ok {
		return nil, store.ErrNotFound
	}
	return &line, nil
}

func (s *Store) ListStockLines(ctx context.Context) ([]domain.StockLine, error) {
	var lines []domain.StockLine
	s.read(ctx, func(st *state) {
		lines = make([]domain.StockLine, 0, len(st.stock))
		for _, line := range st.stock {
			lines = append(lines, line)
		}
	})
	slices.SortFunc(lines, func(a, b domain.StockLine) int {
		if c := strings.Compare(a.ProductID, b.ProductID); c != 0 {
			return c
		}
		if c := strings.Compare(a.Location, b.Location); c != 0 {
			return c
		}
		return strings.Compare(a.Condition, b.Condition)
	})
	return lines, nil
}

func (s *Store) ReserveStock(ctx context.Context, stockLineID string, qty int) error {
	if qty < 1 {
		return store.ErrInvalidInput
	}
	return s.write(ctx, func(st *state) error {
		line, ok := st.stock[stockLineID]
		if !ok {
			return store.ErrNotFound
		}
		if line.Quantity < qty {
			return store.ErrInsufficientStock
		}
		line.Quantity -= qty
		line.UpdatedAt = s.now()
		st.stock[stockLineID] = line
		return nil
	})
}

func (s *Store) ReleaseStock(ctx context.Context, stockLineID string, qty int) error {
	if qty < 1 {
		return store.ErrInvalidInput
	}
	return s.write(ctx, func(st *state) error {
		line, ok := st.stock[stockLineID]
		if !ok {
			return store.ErrNotFound
		}
		line.Quantity += qty
		line.UpdatedAt = s.now()
		st.stock[stockLineID] = line
		return nil
	})
}

func (s *Store) UpsertStock(ctx context.Context, intake domain.StockIntake) (*domain.StockLine, error) {
	if intake.ProductID == "" || strings.TrimSpace(intake.Location) == "" || strings.TrimSpace(intake.Condition) == "" || intake.Quantity < 1 {
		return nil, store.ErrInvalidInput
	}
	var result domain.StockLine
	err := s.write(ctx, func(st *state) error {
		if _, ok := st.products[intake.ProductID]; !ok {
			return store.ErrNotFound
		}
		for id, line := range st.stock {
			if line.ProductID != intake.ProductID || line.Location != intake.Location || line.Condition != intake.Condition {
				continue
			}
			line.Quantity += intake.Quantity
			line.Notes = store.AppendNotes(line.Notes, intake.Notes)
			line.UpdatedAt = s.now()
			st.stock[id] = line
			result = line
			return nil
		}
		result = domain.StockLine{
			ID:        xid.New("stk"),
			ProductID: intake.ProductID,
			Location:  intake.Location,
			Condition: intake.Condition,
			Quantity:  intake.Quantity,
			Notes:     strings.TrimSpace(intake.Notes),
			UpdatedAt: s.now(),
		}
		st.stock[result.ID] = result
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// Sales

func (s *Store) CreateSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error) {
	if len(sale.Lines) == 0 {
		return nil, store.ErrInvalidInput
	}
	if sale.ID == "" {
		sale.ID = xid.New("sal")
	}
	if sale.CreatedAt.IsZero() {
		sale.CreatedAt = s.now()
	}
	for i := range sale.Lines {
		sale.Lines[i].SaleID = sale.ID
		sale.Lines[i].Position = i + 1
		if sale.Lines[i].ID == "" {
			sale.Lines[i].ID = xid.New("sln")
		}
	}
	err := s.write(ctx, func(st *state) error {
		if _, exists := st.sales[sale.ID]; exists {
			return store.ErrDuplicate
		}
		st.sales[sale.ID] = cloneSale(sale)
		return nil
	})
	if err != nil {
		return nil, err
	}
	created := cloneSale(sale)
	return &created, nil
}

func (s *Store) GetSale(ctx context.Context, id string) (*domain.Sale, error) {
	var (
		sale domain.Sale
		ok   bool
	)
	s.read(ctx, func(st *state) {
		sale, ok = st.sales[id]
		sale = cloneSale(sale)
	})
	if !ok {
		return nil, store.ErrNotFound
	}
	return &sale, nil
}

func (s *Store) DeleteSale(ctx context.Context, id string) error {
	return s.write(ctx, func(st *state) error {
		if _, ok := st.sales[id]; !ok {
			return store.ErrNotFound
		}
		delete(st.sales, id)
		return nil
	})
}

func (s *Store) ListSales(ctx context.Context, filter domain.SaleFilter) ([]domain.Sale, error) {
	var sales []domain.Sale
	s.read(ctx, func(st *state) {
		sales = make([]domain.Sale, 0, len(st.sales))
		for _, sale := range st.sales {
			if matchesFilter(sale, filter) {
				sales = append(sales, cloneSale(sale))
			}
		}
	})
	sortNewestFirst(sales)
	return sales, nil
}

func (s *Store) ListSaleDates(ctx context.Context) ([]string, error) {
	seen := map[string]struct{}{}
	s.read(ctx, func(st *state) {
		for _, sale := range st.sales {
			seen[sale.CreatedAt.Format(time.DateOnly)] = struct{}{}
		}
	})
	dates := make([]string, 0, len(seen))
	for day := range seen {
		dates = append(dates, day)
	}
	slices.Sort(dates)
	slices.Reverse(dates)
	return dates, nil
}

func (s *Store) EmployeeTotals(ctx context.Context, day time.Time) ([]domain.EmployeeTotal, error) {
	today := day.Format(time.DateOnly)
	byID := map[string]*domain.EmployeeTotal{}
	s.read(ctx, func(st *state) {
		for _, e := range st.employees {
			byID[e.ID] = &domain.EmployeeTotal{EmployeeID: e.ID, EmployeeName: e.Name, Historical: domain.Money{}, Today: domain.Money{}}
		}
		for _, sale := range st.sales {
			total, ok := byID[sale.EmployeeID]
			if !ok {
				continue
			}
			total.Historical = total.Historical.Add(sale.Total)
			if sale.CreatedAt.Format(time.DateOnly) == today {
				total.Today = total.Today.Add(sale.Total)
			}
		}
	})
	totals := make([]domain.EmployeeTotal, 0, len(byID))
	for _, t := range byID {
		totals = append(totals, *t)
	}
	slices.SortFunc(totals, func(a, b domain.EmployeeTotal) int {
		if c := strings.Compare(a.EmployeeName, b.EmployeeName); c != 0 {
			return c
		}
		return strings.Compare(a.EmployeeID, b.EmployeeID)
	})
	return totals, nil
}

func matchesFilter(sale domain.Sale, filter domain.SaleFilter) bool {
	if filter.Employee != "" && !strings.EqualFold(sale.EmployeeName, strings.TrimSpace(filter.Employee)) {
		return false
	}
	if filter.Date != "" && sale.CreatedAt.Format(time.DateOnly) != filter.Date {
		return false
	}
	if filter.Product != "" {
		want := strings.TrimSpace(filter.Product)
		return slices.ContainsFunc(sale.Lines, func(line domain.SaleLine) bool {
			return strings.EqualFold(line.ProductName, want)
		})
	}
	return true
}

func sortNewestFirst(sales []domain.Sale) {
	slices.SortFunc(sales, func(a, b domain.Sale) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(b.ID, a.ID)
	})
}

func cloneProduct(src domain.Product) domain.Product {
	dup := src
	dup.SupplierIDs = slices.Clone(src.SupplierIDs)
	return dup
}

func cloneSale(src domain.Sale) domain.Sale {
	dup := src
	dup.Lines = slices.Clone(src.Lines)
	dup.SupplierIDs = slices.Clone(src.SupplierIDs)
	return dup
}
