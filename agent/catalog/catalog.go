package catalog

import (
	"fmt"
	"sort"
	"strings"
)

// UnknownProduct is shown when a product id is missing from the catalog.
const UnknownProduct = "Unknown Product"

type Product struct {
	ID           int    `json:"product_id"`
	Name         string `json:"product_name"`
	AisleID      int    `json:"aisle_id"`
	DepartmentID int    `json:"department_id"`
	Aisle        string `json:"aisle"`
	Department   string `json:"department"`
}

// Document is the text indexed for similarity search.
func (p Product) Document() string {
	return fmt.Sprintf("%s, found in the %s aisle of the %s department.", p.Name, p.Aisle, p.Department)
}

type Order struct {
	ID     int
	UserID int
}

type OrderLine struct {
	OrderID        int
	ProductID      int
	AddToCartOrder int
	Reordered      bool
}

// Data is the raw tabular input a Catalog is built from.
type Data struct {
	Products    []Product
	Aisles      map[int]string
	Departments map[int]string
	Orders      []Order
	OrderLines  []OrderLine
}

// Stats aggregates one user's purchases of one product.
type Stats struct {
	Count          int
	Reordered      int
	AddToCartOrder float64
}

// Catalog is read-only after construction and safe for concurrent use.
type Catalog struct {
	products    []Product
	byID        map[int]int
	departments []string
	userOrders  map[int][]int
	orderLines  map[int][]OrderLine
	userIDs     []int
}

func New(data Data) *Catalog {
	c := &Catalog{
		products:   make([]Product, 0, len(data.Products)),
		byID:       make(map[int]int, len(data.Products)),
		userOrders: make(map[int][]int),
		orderLines: make(map[int][]OrderLine),
	}

	for _, p := range data.Products {
		if name, ok := data.Aisles[p.AisleID]; ok && p.Aisle == "" {
			p.Aisle = name
		}
		if name, ok := data.Departments[p.DepartmentID]; ok && p.Department == "" {
			p.Department = name
		}
		if _, dup := c.byID[p.ID]; dup {
			continue
		}
		c.byID[p.ID] = len(c.products)
		c.products = append(c.products, p)
	}

	seen := make(map[string]struct{}, len(data.Departments))
	for _, name := range data.Departments {
		if name = strings.TrimSpace(name); name != "" {
			seen[name] = struct{}{}
		}
	}
	for _, p := range c.products {
		if p.Department != "" {
			seen[p.Department] = struct{}{}
		}
	}
	for name := range seen {
		c.departments = append(c.departments, name)
	}
	sort.Strings(c.departments)

	for _, o := range data.Orders {
		c.userOrders[o.UserID] = append(c.userOrders[o.UserID], o.ID)
	}
	for uid := range c.userOrders {
		c.userIDs = append(c.userIDs, uid)
	}
	sort.Ints(c.userIDs)

	for _, line := range data.OrderLines {
		c.orderLines[line.OrderID] = append(c.orderLines[line.OrderID], line)
	}
	return c
}

func (c *Catalog) Product(id int) (Product, bool) {
	idx, ok := c.byID[id]
	if !ok {
		return Product{}, false
	}
	return c.products[idx], true
}

// ProductName never fails; unknown ids resolve to UnknownProduct.
func (c *Catalog) ProductName(id int) string {
	if c == nil {
		return UnknownProduct
	}
	if p, ok := c.Product(id); ok && p.Name != "" {
		return p.Name
	}
	return UnknownProduct
}

func (c *Catalog) Products() []Product {
	return append([]Product(nil), c.products...)
}

func (c *Catalog) Len() int {
	return len(c.products)
}

// Departments is the sorted set of department names.
func (c *Catalog) Departments() []string {
	return append([]string(nil), c.departments...)
}

func (c *Catalog) UserIDs() []int {
	return append([]int(nil), c.userIDs...)
}

// DefaultUserID is the lowest user id with order history.
func (c *Catalog) DefaultUserID() (int, bool) {
	if len(c.userIDs) == 0 {
		return 0, false
	}
	return c.userIDs[0], true
}

func (c *Catalog) HasOrders(userID int) bool {
	return len(c.userOrders[userID]) > 0
}

// History aggregates a user's prior order lines per product.
func (c *Catalog) History(userID int) map[int]Stats {
	type acc struct {
		count     int
		reordered int
		cartSum   int
	}
	accs := make(map[int]*acc)
	for _, orderID := range c.userOrders[userID] {
		for _, line := range c.orderLines[orderID] {
			a, ok := accs[line.ProductID]
			if !ok {
				a = &acc{}
				accs[line.ProductID] = a
			}
			a.count++
			a.cartSum += line.AddToCartOrder
			if line.Reordered {
				a.reordered++
			}
		}
	}

	out := make(map[int]Stats, len(accs))
	for pid, a := range accs {
		out[pid] = Stats{
			Count:          a.count,
			Reordered:      a.reordered,
			AddToCartOrder: float64(a.cartSum) / float64(a.count),
		}
	}
	return out
}
