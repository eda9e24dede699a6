package domain

import "time"

const (
	RoleAdmin  = "admin"
	RoleSeller = "seller"
)

// DefaultBuyerName is printed when a sale has no buyer name.
const DefaultBuyerName = "Cliente Final"

// UnassignedEmployee groups report rows whose employee name is empty.
const UnassignedEmployee = "(Sin asignar)"

type Product struct {
	ID          string    `json:"id" db:"id"`
	Name        string    `json:"name" db:"name"`
	Description string    `json:"description" db:"description"`
	Price       Money     `json:"price" db:"price"`
	BasePrice   Money     `json:"base_price" db:"base_price"`
	Profit      Money     `json:"profit" db:"profit"`
	Code        string    `json:"code,omitempty" db:"code"`
	Exempt      bool      `json:"exempt" db:"exempt"`
	Active      bool      `json:"active" db:"active"`
	SupplierIDs []string  `json:"supplier_ids" db:"-"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

type Supplier struct {
	ID        string    `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Phone     string    `json:"phone,omitempty" db:"phone"`
	Email     string    `json:"email,omitempty" db:"email"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type Client struct {
	ID        string    `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Document  string    `json:"document,omitempty" db:"document"`
	Phone     string    `json:"phone,omitempty" db:"phone"`
	Address   string    `json:"address,omitempty" db:"address"`
	Email     string    `json:"email,omitempty" db:"email"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Employee is both a staff record and a login account.
type Employee struct {
	ID           string    `json:"id" db:"id"`
	Name         string    `json:"name" db:"name"`
	Email        string    `json:"email" db:"email"`
	PasswordHash string    `json:"-" db:"password_hash"`
	Role         string    `json:"role" db:"role"`
	Active       bool      `json:"active" db:"active"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// Actor is the authenticated employee behind a request.
type Actor struct {
	EmployeeID string `json:"employee_id"`
	Name       string `json:"name"`
	Role       string `json:"role"`
}

type StockLine struct {
	ID        string    `json:"id" db:"id"`
	ProductID string    `json:"product_id" db:"product_id"`
	Location  string    `json:"location" db:"location"`
	Condition string    `json:"condition" db:"condition"`
	Quantity  int       `json:"quantity" db:"quantity"`
	Notes     string    `json:"notes" db:"notes"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// StockIntake adds quantity to the (product, location, condition) line, creating it if absent.
type StockIntake struct {
	ProductID string
	Location  string
	Condition string
	Quantity  int
	Notes     string
}

type Sale struct {
	ID            string     `json:"id" db:"id"`
	CreatedAt     time.Time  `json:"created_at" db:"created_at"`
	ClientID      string     `json:"client_id,omitempty" db:"client_id"`
	BuyerName     string     `json:"buyer_name" db:"buyer_name"`
	BuyerDocument string     `json:"buyer_document,omitempty" db:"buyer_document"`
	BuyerPhone    string     `json:"buyer_phone,omitempty" db:"buyer_phone"`
	BuyerAddress  string     `json:"buyer_address,omitempty" db:"buyer_address"`
	EmployeeID    string     `json:"employee_id" db:"employee_id"`
	EmployeeName  string     `json:"employee_name" db:"employee_name"`
	PaymentMethod string     `json:"payment_method" db:"payment_method"`
	Subtotal      Money      `json:"subtotal" db:"subtotal"`
	Tax           Money      `json:"tax" db:"tax"`
	Total         Money      `json:"total" db:"total"`
	Lines         []SaleLine `json:"lines" db:"-"`
	SupplierIDs   []string   `json:"supplier_ids" db:"-"`
}

type SaleLine struct {
	ID          string `json:"id" db:"id"`
	SaleID      string `json:"sale_id" db:"sale_id"`
	Position    int    `json:"position" db:"position"`
	StockLineID string `json:"stock_line_id" db:"stock_line_id"`
	ProductID   string `json:"product_id" db:"product_id"`
	ProductName string `json:"product_name" db:"product_name"`
	Quantity    int    `json:"quantity" db:"quantity"`
	UnitPrice   Money  `json:"unit_price" db:"unit_price"`
	Subtotal    Money  `json:"subtotal" db:"subtotal"`
	Tax         Money  `json:"tax" db:"tax"`
	Total       Money  `json:"total" db:"total"`
}

// SaleFilter narrows the sales listing. Empty fields match everything.
type SaleFilter struct {
	Product  string
	Employee string
	Date     string // yyyy-mm-dd
}

type EmployeeTotal struct {
	EmployeeID   string `json:"employee_id"`
	EmployeeName string `json:"employee_name"`
	Historical   Money  `json:"historical"`
	Today        Money  `json:"today"`
}

// Requests

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	Name        string `json:"name"`
	ExpiresAt   string `json:"expires_at"`
}

type Buyer struct {
	ClientID string `json:"client_id"`
	Name     string `json:"name" validate:"max=120"`
	Document string `json:"document" validate:"max=40"`
	Phone    string `json:"phone" validate:"max=40"`
	Address  string `json:"address" validate:"max=200"`
}

type SaleLineRequest struct {
	StockLineID string `json:"stock_line_id" validate:"required"`
	Quantity    int    `json:"quantity" validate:"gt=0"`
}

type RegisterSaleRequest struct {
	Buyer         Buyer             `json:"buyer"`
	PaymentMethod string            `json:"payment_method" validate:"required,max=40"`
	Lines         []SaleLineRequest `json:"lines" validate:"required,min=1,dive"`
}

type ProductCreateRequest struct {
	Name        string   `json:"name" validate:"required,max=120"`
	Description string   `json:"description" validate:"max=500"`
	Price       Money    `json:"price"`
	BasePrice   Money    `json:"base_price"`
	Profit      *Money   `json:"profit,omitempty"`
	Code        string   `json:"code" validate:"max=40"`
	Exempt      bool     `json:"exempt"`
	SupplierIDs []string `json:"supplier_ids"`
}

type ProductUpdateRequest struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
	Price       *Money  `json:"price,omitempty"`
	BasePrice   *Money  `json:"base_price,omitempty"`
	Code        *string `json:"code,omitempty"`
	Exempt      *bool   `json:"exempt,omitempty"`
	Active      *bool   `json:"active,omitempty"`
}

type ProductSuppliersRequest struct {
	SupplierIDs []string `json:"supplier_ids"`
}

type SupplierCreateRequest struct {
	Name  string `json:"name" validate:"required,max=120"`
	Phone string `json:"phone" validate:"max=40"`
	Email string `json:"email" validate:"omitempty,email"`
}

type ClientCreateRequest struct {
	Name     string `json:"name" validate:"required,max=120"`
	Document string `json:"document" validate:"max=40"`
	Phone    string `json:"phone" validate:"max=40"`
	Address  string `json:"address" validate:"max=200"`
	Email    string `json:"email" validate:"omitempty,email"`
}

type EmployeeCreateRequest struct {
	Name     string `json:"name" validate:"required,max=120"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
	Role     string `json:"role" validate:"omitempty,oneof=admin seller"`
}

type StockIntakeRequest struct {
	ProductID string `json:"product_id" validate:"required"`
	Location  string `json:"location" validate:"required,max=80"`
	Condition string `json:"condition" validate:"required,max=40"`
	Quantity  int    `json:"quantity" validate:"gt=0"`
	Notes     string `json:"notes" validate:"max=500"`
}

type EmailRequest struct {
	To      []string `json:"to" validate:"required,min=1,dive,email"`
	Subject string   `json:"subject" validate:"required,max=200"`
	Body    string   `json:"body" validate:"required"`
	Bulk    bool     `json:"bulk"`
}

type ImportResult struct {
	Format   string    `json:"format"`
	Imported int       `json:"imported"`
	Products []Product `json:"products"`
}

// ExchangeRates maps a currency code to the value of one COP in that currency.
type ExchangeRates struct {
	Rates     map[string]Money `json:"rates"`
	UpdatedAt time.Time        `json:"updated_at"`
}
