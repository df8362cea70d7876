package tool

import (
	"context"
	"encoding/json"

	"github.com/tyrz939/dehum-assistant/internal/catalog"
	"github.com/tyrz939/dehum-assistant/internal/rag"
	"github.com/tyrz939/dehum-assistant/internal/session"
	"github.com/tyrz939/dehum-assistant/internal/sizing"
)

// Tool names.
const (
	NameCalculateLoad  = "calculate_dehum_load"
	NameProductCatalog = "get_product_catalog"
	NameRetrieveDocs   = "retrieve_relevant_docs"
)

// NewDehumRegistry builds the registry with the three assistant tools wired
// to the sizing, catalog, and retrieval implementations. Documentation
// retrieval is never cached: its query refinement depends on conversation
// context, so identical arguments can legitimately produce different results.
func NewDehumRegistry(cat *catalog.Catalog, retriever *rag.Retriever) *Registry {
	r := NewRegistry()

	_ = r.Register(Definition{
		Name: NameCalculateLoad,
		Description: "Calculate moisture load and recommend appropriate dehumidifier models based on room dimensions, " +
			"humidity levels, and environmental conditions. Use this when users need to determine what size or type of " +
			"dehumidifier is suitable for their specific space or application. DO NOT use for pricing queries.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"length":       map[string]any{"type": "number", "description": "Room length in meters"},
				"width":        map[string]any{"type": "number", "description": "Room width in meters"},
				"height":       map[string]any{"type": "number", "description": "Ceiling height in meters"},
				"currentRH":    map[string]any{"type": "number", "description": "Current relative humidity percentage"},
				"targetRH":     map[string]any{"type": "number", "description": "Target relative humidity percentage"},
				"indoorTemp":   map[string]any{"type": "number", "description": "Indoor temperature in Celsius"},
				"ach":          map[string]any{"type": "number", "description": "Air changes per hour (default 0.5)"},
				"peopleCount":  map[string]any{"type": "integer", "description": "Number of occupants (default 0)"},
				"usageHours":   map[string]any{"type": "number", "description": "Hours of use per day (default 24)"},
				"pool_area_m2": map[string]any{"type": "number", "description": "Pool surface area in m² if present"},
				"waterTempC":   map[string]any{"type": "number", "description": "Pool water temperature in Celsius (default 28)"},
			},
			"required": []string{"length", "width", "height", "currentRH", "targetRH", "indoorTemp"},
		},
		Cacheable: true,
		Handler:   calculateLoadHandler,
	})

	_ = r.Register(Definition{
		Name: NameProductCatalog,
		Description: "Get product catalog with prices and specifications for browsing, comparison, and pricing queries. " +
			"Use this when users ask about prices, costs, product listings, model comparisons, or want to browse " +
			"available products. DO NOT use for sizing calculations.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"capacity_min":    map[string]any{"type": "number", "description": "Minimum capacity in L/day (optional filter)"},
				"capacity_max":    map[string]any{"type": "number", "description": "Maximum capacity in L/day (optional filter)"},
				"product_type":    map[string]any{"type": "string", "enum": []string{"wall_mount", "ducted", "portable"}, "description": "Filter by product type (optional)"},
				"pool_safe_only":  map[string]any{"type": "boolean", "description": "Only return pool-safe models (optional)"},
				"price_range_max": map[string]any{"type": "number", "description": "Maximum price in AUD (optional filter)"},
			},
			"required": []string{},
		},
		Cacheable: true,
		Handler:   catalogHandler(cat),
	})

	_ = r.Register(Definition{
		Name: NameRetrieveDocs,
		Description: "Retrieve specific technical information from product manuals and documentation. Use this when users " +
			"need installation guidance, troubleshooting help, maintenance instructions, specifications, error codes, " +
			"warranty information, or other technical details about specific products. This provides authoritative, " +
			"accurate information directly from manufacturer documentation.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{"type": "string", "description": "Specific search query for documents (e.g., 'installation steps', 'troubleshooting unit not starting', 'filter maintenance', 'SP500C specifications')"},
				"k":     map[string]any{"type": "integer", "description": "Number of relevant chunks to retrieve (default 3)", "default": 3},
			},
			"required": []string{"query"},
		},
		Cacheable: false,
		Handler:   retrieveDocsHandler(retriever),
	})

	return r
}

func calculateLoadHandler(_ context.Context, args map[string]any, _ *session.Session) (any, error) {
	data, err := json.Marshal(args)
	if err != nil {
		return nil, err
	}
	var in sizing.LoadInput
	if err := json.Unmarshal(data, &in); err != nil {
		return &sizing.ToolError{
			Error:   "VALIDATION_ERROR",
			Message: "Missing or invalid required fields (length, width, height, currentRH, targetRH, indoorTemp)",
		}, nil
	}
	res, terr := sizing.CalculateLoad(in)
	if terr != nil {
		return terr, nil
	}
	return res, nil
}

func catalogHandler(cat *catalog.Catalog) Handler {
	return func(_ context.Context, args map[string]any, _ *session.Session) (any, error) {
		poolSafeOnly, _ := args["pool_safe_only"].(bool)
		entries := cat.Effective(poolSafeOnly)

		filtered := entries[:0]
		for _, e := range entries {
			if v, ok := toFloat(args["capacity_min"]); ok && e.CapacityLPD < v {
				continue
			}
			if v, ok := toFloat(args["capacity_max"]); ok && e.CapacityLPD > v {
				continue
			}
			if t, ok := args["product_type"].(string); ok && t != "" && e.Type != t {
				continue
			}
			if v, ok := toFloat(args["price_range_max"]); ok && e.PriceAUD != nil && *e.PriceAUD > v {
				continue
			}
			filtered = append(filtered, e)
		}
		return map[string]any{"catalog": filtered, "total_products": len(filtered)}, nil
	}
}

func retrieveDocsHandler(retriever *rag.Retriever) Handler {
	return func(_ context.Context, args map[string]any, sess *session.Session) (any, error) {
		query, _ := args["query"].(string)
		k := rag.DefaultK
		if v, ok := toFloat(args["k"]); ok && v > 0 {
			k = int(v)
		}

		refined := query
		if sess != nil {
			refined = rag.RefineQuery(query, sess.History)
		}
		chunks := retriever.Search(refined, k)
		return rag.FormatDocs(query, refined, chunks), nil
	}
}

// toFloat reads a JSON number from decoded arguments.
func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}
