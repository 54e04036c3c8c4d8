package inventory

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/deliciasfueguinas/orderbot/pkg/logging"
)

// ProductRequest is one requested line item, as extracted from the message.
type ProductRequest struct {
	Name     string
	Quantity int
}

// VerifiedProduct is a line item confirmed against the inventory snapshot.
type VerifiedProduct struct {
	Name      string
	Quantity  int
	UnitPrice float64
	Subtotal  float64
}

// StockShortage names a product with less stock than requested.
type StockShortage struct {
	Product        string
	AvailableStock int
}

// OrderCheck partitions a request: every requested product lands in exactly
// one of Products, NotFound, or OutOfStock.
type OrderCheck struct {
	Products    []VerifiedProduct
	NotFound    []string
	OutOfStock  []StockShortage
	TotalAmount float64
}

// HasIssues reports whether any requested product could not be fulfilled.
func (c *OrderCheck) HasIssues() bool {
	return len(c.NotFound) > 0 || len(c.OutOfStock) > 0
}

// FlavorCheck partitions requested ice-cream flavors by availability.
type FlavorCheck struct {
	Available   []string
	Unavailable []string
}

// Checker verifies requests against CSV inventory snapshots. The files are
// re-read on every check so the staleness window is a single lookup.
type Checker struct {
	productsPath string
	flavorsPath  string
	logger       *logging.Logger
}

func NewChecker(productsPath, flavorsPath string, logger *logging.Logger) *Checker {
	if logger == nil {
		logger = logging.Default()
	}
	return &Checker{productsPath: productsPath, flavorsPath: flavorsPath, logger: logger}
}

type productRow struct {
	stock int
	price float64
}

// CheckOrder matches each request by case-insensitive exact name against the
// product snapshot. Pure function of its inputs and the snapshot.
func (c *Checker) CheckOrder(requests []ProductRequest) (*OrderCheck, error) {
	rows, err := c.loadProducts()
	if err != nil {
		return nil, err
	}

	result := &OrderCheck{
		Products:   []VerifiedProduct{},
		NotFound:   []string{},
		OutOfStock: []StockShortage{},
	}

	for _, req := range requests {
		name := strings.ToLower(strings.TrimSpace(req.Name))
		row, ok := rows[name]
		if !ok {
			result.NotFound = append(result.NotFound, name)
			continue
		}
		if row.stock < req.Quantity {
			result.OutOfStock = append(result.OutOfStock, StockShortage{Product: name, AvailableStock: row.stock})
			continue
		}
		subtotal := row.price * float64(req.Quantity)
		result.Products = append(result.Products, VerifiedProduct{
			Name:      name,
			Quantity:  req.Quantity,
			UnitPrice: row.price,
			Subtotal:  subtotal,
		})
		result.TotalAmount += subtotal
	}

	return result, nil
}

// CheckFlavors verifies requested flavors; a flavor with zero stock counts
// as unavailable.
func (c *Checker) CheckFlavors(flavors []string) (*FlavorCheck, error) {
	stock, err := c.loadFlavors()
	if err != nil {
		return nil, err
	}

	result := &FlavorCheck{Available: []string{}, Unavailable: []string{}}
	for _, flavor := range flavors {
		name := strings.ToLower(strings.TrimSpace(flavor))
		if stock[name] > 0 {
			result.Available = append(result.Available, name)
		} else {
			result.Unavailable = append(result.Unavailable, name)
		}
	}
	return result, nil
}

func (c *Checker) loadProducts() (map[string]productRow, error) {
	records, header, err := readCSV(c.productsPath)
	if err != nil {
		return nil, fmt.Errorf("inventory: read products: %w", err)
	}

	nameCol, stockCol, priceCol := columnIndex(header, "producto"), columnIndex(header, "stock"), columnIndex(header, "precio")
	if nameCol < 0 || stockCol < 0 || priceCol < 0 {
		return nil, fmt.Errorf("inventory: products file %s missing producto/stock/precio columns", c.productsPath)
	}

	rows := make(map[string]productRow, len(records))
	for _, rec := range records {
		name := strings.ToLower(strings.TrimSpace(rec[nameCol]))
		if name == "" {
			continue
		}
		stock, err := strconv.Atoi(strings.TrimSpace(rec[stockCol]))
		if err != nil {
			c.logger.Warn("skipping product with bad stock", "product", name, "value", rec[stockCol])
			continue
		}
		price, err := strconv.ParseFloat(strings.TrimSpace(rec[priceCol]), 64)
		if err != nil {
			c.logger.Warn("skipping product with bad price", "product", name, "value", rec[priceCol])
			continue
		}
		rows[name] = productRow{stock: stock, price: price}
	}
	return rows, nil
}

func (c *Checker) loadFlavors() (map[string]int, error) {
	records, header, err := readCSV(c.flavorsPath)
	if err != nil {
		return nil, fmt.Errorf("inventory: read flavors: %w", err)
	}

	nameCol, stockCol := columnIndex(header, "sabor"), columnIndex(header, "stock")
	if nameCol < 0 || stockCol < 0 {
		return nil, fmt.Errorf("inventory: flavors file %s missing sabor/stock columns", c.flavorsPath)
	}

	stockByFlavor := make(map[string]int, len(records))
	for _, rec := range records {
		name := strings.ToLower(strings.TrimSpace(rec[nameCol]))
		if name == "" {
			continue
		}
		stock, err := strconv.Atoi(strings.TrimSpace(rec[stockCol]))
		if err != nil {
			c.logger.Warn("skipping flavor with bad stock", "flavor", name, "value", rec[stockCol])
			continue
		}
		stockByFlavor[name] = stock
	}
	return stockByFlavor, nil
}

func readCSV(path string) (records [][]string, header []string, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.TrimLeadingSpace = true
	all, err := r.ReadAll()
	if err != nil {
		return nil, nil, err
	}
	if len(all) == 0 {
		return nil, nil, fmt.Errorf("%s is empty", path)
	}
	return all[1:], all[0], nil
}

func columnIndex(header []string, name string) int {
	for i, col := range header {
		if strings.EqualFold(strings.TrimSpace(col), name) {
			return i
		}
	}
	return -1
}
