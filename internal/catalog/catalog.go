// Package catalog loads the product database and builds the catalog context
// injected ahead of the recommendation phase.
package catalog

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"strings"

	"github.com/tyrz939/dehum-assistant/internal/message"
	"github.com/tyrz939/dehum-assistant/internal/sizing"
)

//go:embed product_db.json
var defaultDB []byte

// Product is one dehumidifier model from the database.
type Product struct {
	SKU               string   `json:"sku"`
	Name              string   `json:"name"`
	Type              string   `json:"type"` // wall_mount, ducted, portable
	Technology        string   `json:"technology,omitempty"`
	CapacityLPD       *float64 `json:"capacity_lpd"`
	PerformanceFactor float64  `json:"performance_factor,omitempty"`
	PoolSafe          bool     `json:"pool_safe"`
	MaxPoolM2         *float64 `json:"max_pool_m2,omitempty"`
	MaxRoomM2         *float64 `json:"max_room_m2,omitempty"`
	MaxRoomM3         *float64 `json:"max_room_m3,omitempty"`
	PriceAUD          *float64 `json:"price_aud,omitempty"`
	URL               string   `json:"url,omitempty"`
}

// Entry is a catalog row with the pre-computed effective capacity.
type Entry struct {
	SKU                  string   `json:"sku"`
	Name                 string   `json:"name"`
	Type                 string   `json:"type"`
	EffectiveCapacityLPD float64  `json:"effective_capacity_lpd"`
	CapacityLPD          float64  `json:"capacity_lpd"`
	PerformanceFactor    float64  `json:"performance_factor"`
	MaxPoolM2            *float64 `json:"max_pool_m2"`
	PoolSafe             bool     `json:"pool_safe"`
	MaxRoomM2            *float64 `json:"max_room_m2"`
	MaxRoomM3            *float64 `json:"max_room_m3"`
	PriceAUD             *float64 `json:"price_aud"`
	URL                  string   `json:"url,omitempty"`
}

// LoadInfo is the load summary extracted from the most recent sizing result,
// used to scope and derate the catalog.
type LoadInfo struct {
	LatentLoadL24h float64
	RoomAreaM2     float64
	PoolAreaM2     float64
	PoolRequired   bool
	IndoorTemp     float64
	CurrentRH      float64
	TargetRH       float64
}

// Catalog is an immutable product database.
type Catalog struct {
	products []Product
}

// Load reads a product database from path, falling back to the embedded
// default when path is empty.
func Load(path string) (*Catalog, error) {
	data := defaultDB
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read product db: %w", err)
		}
		data = b
	}
	var products []Product
	if err := json.Unmarshal(data, &products); err != nil {
		return nil, fmt.Errorf("parse product db: %w", err)
	}
	return &Catalog{products: products}, nil
}

// Count returns the number of products loaded.
func (c *Catalog) Count() int { return len(c.products) }

// Products returns the raw product list.
func (c *Catalog) Products() []Product { return c.products }

// Effective returns catalog entries with effective capacity
// (rated capacity × performance factor), optionally restricted to pool-safe
// models. Entries without a rated capacity are skipped.
func (c *Catalog) Effective(poolSafeOnly bool) []Entry {
	var out []Entry
	for _, p := range c.products {
		if poolSafeOnly && !p.PoolSafe {
			continue
		}
		if p.CapacityLPD == nil {
			continue
		}
		pf := p.PerformanceFactor
		if pf == 0 {
			pf = 1.0
		}
		out = append(out, Entry{
			SKU:                  p.SKU,
			Name:                 nameOr(p),
			Type:                 p.Type,
			EffectiveCapacityLPD: *p.CapacityLPD * pf,
			CapacityLPD:          *p.CapacityLPD,
			PerformanceFactor:    pf,
			MaxPoolM2:            p.MaxPoolM2,
			PoolSafe:             p.PoolSafe,
			MaxRoomM2:            p.MaxRoomM2,
			MaxRoomM3:            p.MaxRoomM3,
			PriceAUD:             p.PriceAUD,
			URL:                  p.URL,
		})
	}
	return out
}

func nameOr(p Product) string {
	if p.Name != "" {
		return p.Name
	}
	return p.SKU
}

// DetectPreferredTypes scans user text for installation-type preferences.
func DetectPreferredTypes(text string) []string {
	lower := strings.ToLower(text)
	var types []string
	if strings.Contains(lower, "ducted") {
		types = append(types, "ducted")
	}
	if strings.Contains(lower, "wall") {
		types = append(types, "wall_mount")
	}
	if strings.Contains(lower, "portable") {
		types = append(types, "portable")
	}
	return types
}

// ContextMessage builds the system message that puts the derated catalog in
// front of the model before the recommendation phase. Effective capacities are
// derated for the target indoor conditions so the model compares like with
// like against the computed load.
func (c *Catalog) ContextMessage(load LoadInfo, preferredTypes []string) message.Message {
	entries := c.Effective(load.PoolRequired)
	if len(preferredTypes) > 0 {
		keep := entries[:0]
		for _, e := range entries {
			for _, t := range preferredTypes {
				if e.Type == t {
					keep = append(keep, e)
					break
				}
			}
		}
		entries = keep
	}

	derate := sizing.DerateFactor(load.IndoorTemp, load.TargetRH)
	for i := range entries {
		entries[i].EffectiveCapacityLPD = round1(entries[i].EffectiveCapacityLPD * derate)
	}

	payload := map[string]any{
		"required_load_lpd": load.LatentLoadL24h,
		"room_area_m2":      load.RoomAreaM2,
		"pool_area_m2":      load.PoolAreaM2,
		"pool_required":     load.PoolRequired,
		"preferred_types":   preferredTypes,
		"catalog":           entries,
	}
	data, _ := json.Marshal(payload)

	content := "AVAILABLE_PRODUCT_CATALOG_JSON = " + string(data) +
		"\nWhen recommending products, always include the 'url' field as a clickable link in the format: [View](url) for each product, as specified in the FORMAT section."
	return message.SystemMessage(content)
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
