package billing

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/dmitrymomot/entitlements/pkg/fault"
)

// Price is an allow-listed price. An empty Mode accepts either checkout mode.
type Price struct {
	ID      string       `yaml:"id"`
	Mode    CheckoutMode `yaml:"mode"`
	Product string       `yaml:"product"`
}

// Catalog is the server-side price allow-list.
type Catalog struct {
	prices map[string]Price
}

type catalogFile struct {
	Prices []Price `yaml:"prices"`
}

// NewCatalog builds a catalog from prices. Entries without an id are skipped.
func NewCatalog(prices ...Price) *Catalog {
	c := &Catalog{prices: make(map[string]Price, len(prices))}
	for _, p := range prices {
		p.ID = strings.TrimSpace(p.ID)
		if p.ID == "" {
			continue
		}
		c.prices[p.ID] = p
	}
	return c
}

// CatalogFromIDs builds a catalog that accepts any mode for the listed ids.
func CatalogFromIDs(ids []string) *Catalog {
	prices := make([]Price, 0, len(ids))
	for _, id := range ids {
		prices = append(prices, Price{ID: id})
	}
	return NewCatalog(prices...)
}

// LoadCatalog reads a YAML catalog:
//
//	prices:
//	  - id: price_monthly
//	    mode: subscription
//	    product: premium
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Join(fault.ErrConfiguration, fmt.Errorf("read price catalog: %w", err))
	}
	return ParseCatalog(data)
}

// ParseCatalog decodes YAML catalog content.
func ParseCatalog(data []byte) (*Catalog, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, errors.Join(fault.ErrConfiguration, fmt.Errorf("parse price catalog: %w", err))
	}
	for _, p := range f.Prices {
		if p.Mode != "" && !p.Mode.Valid() {
			return nil, errors.Join(fault.ErrConfiguration, ErrInvalidMode, fmt.Errorf("price %q: mode %q", p.ID, p.Mode))
		}
	}
	return NewCatalog(f.Prices...), nil
}

// Len returns the number of allowed prices.
func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.prices)
}

// Lookup returns the allowed price with id.
func (c *Catalog) Lookup(id string) (Price, bool) {
	if c == nil {
		return Price{}, false
	}
	p, ok := c.prices[id]
	return p, ok
}

// Check validates a checkout request against the allow-list.
func (c *Catalog) Check(priceID string, mode CheckoutMode) (Price, error) {
	if c.Len() == 0 {
		return Price{}, errors.Join(fault.ErrConfiguration, ErrEmptyCatalog)
	}
	if !mode.Valid() {
		return Price{}, errors.Join(fault.ErrValidation, ErrInvalidMode)
	}
	p, ok := c.Lookup(priceID)
	if !ok {
		return Price{}, errors.Join(fault.ErrValidation, ErrPriceNotAllowed)
	}
	if p.Mode != "" && p.Mode != mode {
		return Price{}, errors.Join(fault.ErrValidation, ErrModeMismatch)
	}
	return p, nil
}
