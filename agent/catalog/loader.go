package catalog

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

const (
	productsFile    = "products.csv"
	aislesFile      = "aisles.csv"
	departmentsFile = "departments.csv"
	ordersFile      = "orders.csv"
	priorFile       = "order_products__prior.csv"
)

type Config struct {
	DataDir string `envconfig:"DATA_DIR" split_words:"true" default:"./dataset"`
	// SkipHistory avoids reading the order tables, which can be very large.
	SkipHistory bool `envconfig:"SKIP_HISTORY" split_words:"true" default:"false"`
}

// LoadDir reads the catalog tables from dir. The order tables are optional.
func LoadDir(dir string, withHistory bool) (*Catalog, error) {
	var data Data

	aisles, err := readLookup(filepath.Join(dir, aislesFile), "aisle_id", "aisle")
	if err != nil {
		return nil, err
	}
	departments, err := readLookup(filepath.Join(dir, departmentsFile), "department_id", "department")
	if err != nil {
		return nil, err
	}
	data.Aisles, data.Departments = aisles, departments

	if err := eachRow(filepath.Join(dir, productsFile), func(row csvRow) error {
		id, ok := row.num("product_id")
		if !ok {
			return nil
		}
		// rows with non-numeric aisle or department ids are dropped
		aisleID, okA := row.num("aisle_id")
		deptID, okD := row.num("department_id")
		if !okA || !okD {
			return nil
		}
		data.Products = append(data.Products, Product{
			ID:           id,
			Name:         row.str("product_name"),
			AisleID:      aisleID,
			DepartmentID: deptID,
		})
		return nil
	}); err != nil {
		return nil, err
	}

	if withHistory {
		if err := eachOptionalRow(filepath.Join(dir, ordersFile), func(row csvRow) error {
			id, okO := row.num("order_id")
			uid, okU := row.num("user_id")
			if okO && okU {
				data.Orders = append(data.Orders, Order{ID: id, UserID: uid})
			}
			return nil
		}); err != nil {
			return nil, err
		}
		if err := eachOptionalRow(filepath.Join(dir, priorFile), func(row csvRow) error {
			orderID, okO := row.num("order_id")
			productID, okP := row.num("product_id")
			if !okO || !okP {
				return nil
			}
			pos, _ := row.num("add_to_cart_order")
			reordered, _ := row.num("reordered")
			data.OrderLines = append(data.OrderLines, OrderLine{
				OrderID:        orderID,
				ProductID:      productID,
				AddToCartOrder: pos,
				Reordered:      reordered > 0,
			})
			return nil
		}); err != nil {
			return nil, err
		}
	}

	return New(data), nil
}

func readLookup(path, idCol, nameCol string) (map[int]string, error) {
	out := make(map[int]string)
	err := eachRow(path, func(row csvRow) error {
		if id, ok := row.num(idCol); ok {
			out[id] = row.str(nameCol)
		}
		return nil
	})
	return out, err
}

type csvRow struct {
	header map[string]int
	fields []string
}

func (r csvRow) str(col string) string {
	idx, ok := r.header[col]
	if !ok || idx >= len(r.fields) {
		return ""
	}
	return strings.TrimSpace(r.fields[idx])
}

func (r csvRow) num(col string) (int, bool) {
	v, err := strconv.Atoi(r.str(col))
	if err != nil {
		return 0, false
	}
	return v, true
}

func eachOptionalRow(path string, fn func(csvRow) error) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return eachRow(path, fn)
}

func eachRow(path string, fn func(csvRow) error) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", filepath.Base(path), err)
	}
	defer f.Close()
	return readRows(f, filepath.Base(path), fn)
}

func readRows(r io.Reader, name string, fn func(csvRow) error) error {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.ReuseRecord = true

	head, err := reader.Read()
	if err != nil {
		return fmt.Errorf("read %s header: %w", name, err)
	}
	header := make(map[string]int, len(head))
	for i, col := range head {
		header[strings.TrimSpace(strings.TrimPrefix(col, "\ufeff"))] = i
	}

	for {
		rec, err := reader.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read %s: %w", name, err)
		}
		if err := fn(csvRow{header: header, fields: rec}); err != nil {
			return err
		}
	}
}
