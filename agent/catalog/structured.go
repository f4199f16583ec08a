package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
)

var ErrInvalidQuery = errors.New("invalid structured search query")

const (
	OrderByCount          = "count"
	OrderByAddToCartOrder = "add_to_cart_order"

	GroupByDepartment = "department"
	GroupByAisle      = "aisle"
)

// Query filters are conjunctive. History-only fields are ignored unless
// HistoryOnly is set.
type Query struct {
	ProductName string `json:"product_name,omitempty"`
	Department  string `json:"department,omitempty"`
	Aisle       string `json:"aisle,omitempty"`
	Reordered   *bool  `json:"reordered,omitempty"`
	MinOrders   int    `json:"min_orders,omitempty"`
	OrderBy     string `json:"order_by,omitempty"`
	Ascending   bool   `json:"ascending,omitempty"`
	TopK        int    `json:"top_k,omitempty"`
	GroupBy     string `json:"group_by,omitempty"`
	HistoryOnly bool   `json:"history_only,omitempty"`
}

func (c *Catalog) validate(q Query) error {
	if q.Department != "" {
		idx := sort.SearchStrings(c.departments, q.Department)
		if idx >= len(c.departments) || c.departments[idx] != q.Department {
			return fmt.Errorf("%w: department %q is not one of %v", ErrInvalidQuery, q.Department, c.departments)
		}
	}
	switch q.OrderBy {
	case "", OrderByCount, OrderByAddToCartOrder:
	default:
		return fmt.Errorf("%w: order_by must be %q or %q", ErrInvalidQuery, OrderByCount, OrderByAddToCartOrder)
	}
	switch q.GroupBy {
	case "", GroupByDepartment, GroupByAisle:
	default:
		return fmt.Errorf("%w: group_by must be %q or %q", ErrInvalidQuery, GroupByDepartment, GroupByAisle)
	}
	if q.TopK < 0 {
		return fmt.Errorf("%w: top_k must be >= 0", ErrInvalidQuery)
	}
	if q.MinOrders < 0 {
		return fmt.Errorf("%w: min_orders must be >= 0", ErrInvalidQuery)
	}
	return nil
}

type Row struct {
	Product
	Count          *int     `json:"count,omitempty"`
	Reordered      *int     `json:"reordered,omitempty"`
	AddToCartOrder *float64 `json:"add_to_cart_order,omitempty"`
}

type Group struct {
	By          string
	Name        string
	NumProducts int
}

func (g Group) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]any{
		g.By:           g.Name,
		"num_products": g.NumProducts,
	})
}

// Result is exactly one of: an error record, grouped counts, or product rows.
type Result struct {
	Error  string
	Groups []Group
	Rows   []Row
}

func (r Result) MarshalJSON() ([]byte, error) {
	switch {
	case r.Error != "":
		return json.Marshal([]map[string]string{{"error": r.Error}})
	case r.Groups != nil:
		return json.Marshal(r.Groups)
	case r.Rows != nil:
		return json.Marshal(r.Rows)
	default:
		return []byte("[]"), nil
	}
}

// Search runs a structured query. userID scopes history mode; a missing or
// unknown user yields an error record rather than an error.
func (c *Catalog) Search(q Query, userID *int) (Result, error) {
	if err := c.validate(q); err != nil {
		return Result{}, err
	}

	var history map[int]Stats
	if q.HistoryOnly {
		if userID == nil {
			return Result{Error: "No user_id set. Cannot filter by history."}, nil
		}
		if !c.HasOrders(*userID) {
			return Result{Error: fmt.Sprintf("No orders found for user ID: %d", *userID)}, nil
		}
		history = c.History(*userID)
	}

	name := strings.ToLower(q.ProductName)
	aisle := strings.ToLower(q.Aisle)

	rows := make([]Row, 0, 16)
	for _, p := range c.products {
		row := Row{Product: p}
		if q.HistoryOnly {
			st, ok := history[p.ID]
			if !ok {
				continue
			}
			count, reordered, cartOrder := st.Count, st.Reordered, st.AddToCartOrder
			row.Count, row.Reordered, row.AddToCartOrder = &count, &reordered, &cartOrder
		}
		if name != "" && !strings.Contains(strings.ToLower(p.Name), name) {
			continue
		}
		if q.Department != "" && p.Department != q.Department {
			continue
		}
		if aisle != "" && strings.ToLower(p.Aisle) != aisle {
			continue
		}
		if q.HistoryOnly {
			if q.Reordered != nil && *q.Reordered != (*row.Reordered > 0) {
				continue
			}
			if q.MinOrders > 0 && *row.Count < q.MinOrders {
				continue
			}
		}
		rows = append(rows, row)
	}

	if q.HistoryOnly && q.OrderBy != "" {
		sortRows(rows, q.OrderBy, q.Ascending)
	}
	if q.TopK > 0 && len(rows) > q.TopK {
		rows = rows[:q.TopK]
	}

	if q.GroupBy != "" {
		return Result{Groups: groupRows(rows, q.GroupBy)}, nil
	}
	return Result{Rows: rows}, nil
}

func sortRows(rows []Row, orderBy string, ascending bool) {
	key := func(r Row) float64 {
		if orderBy == OrderByAddToCartOrder {
			return *r.AddToCartOrder
		}
		return float64(*r.Count)
	}
	sort.SliceStable(rows, func(i, j int) bool {
		if ascending {
			return key(rows[i]) < key(rows[j])
		}
		return key(rows[i]) > key(rows[j])
	})
}

func groupRows(rows []Row, by string) []Group {
	counts := make(map[string]int)
	for _, r := range rows {
		k := r.Department
		if by == GroupByAisle {
			k = r.Aisle
		}
		counts[k]++
	}
	groups := make([]Group, 0, len(counts))
	for k, n := range counts {
		groups = append(groups, Group{By: by, Name: k, NumProducts: n})
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].Name < groups[j].Name })
	return groups
}
