package orchestrator

import (
	"embed"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/tyrz939/dehum-assistant/internal/catalog"
	"github.com/tyrz939/dehum-assistant/internal/message"
	"github.com/tyrz939/dehum-assistant/internal/session"
	"github.com/tyrz939/dehum-assistant/internal/tool"
)

//go:embed prompts/*.txt
var promptFS embed.FS

const toolGuidance = `
## Tool Selection Guidance

You have access to these tools:

**retrieve_relevant_docs**: Use when users need specific technical information, installation guidance, troubleshooting help, maintenance instructions, specifications, or other details from product manuals and documentation.

**calculate_dehum_load**: Use when users need to determine what size or type of dehumidifier is suitable for their space based on room dimensions, humidity levels, and environmental conditions.

**get_product_catalog**: Use for pricing, browsing, and model comparison queries that do not need a sizing calculation.

Use your contextual understanding to choose the most appropriate tool based on what the user is asking for. Tools can work together when needed.

`

func systemPrompt() string {
	data, err := promptFS.ReadFile("prompts/system_prompt.txt")
	if err != nil {
		// Embedded at build time; unreachable in a correct binary.
		return toolGuidance
	}
	return toolGuidance + string(data)
}

// prepareMessages builds the working prompt list for a non-streaming turn:
// system prompt, a summary of previously cached tool data, then the
// conversation history. The working list is a view; session history itself
// stays untouched.
func prepareMessages(sess *session.Session) []message.Message {
	msgs := []message.Message{message.SystemMessage(systemPrompt())}
	if summary := cacheSummary(sess); summary != "" {
		msgs = append(msgs, message.SystemMessage("PREVIOUS SESSION DATA:\n"+summary))
	}
	msgs = append(msgs, sess.History...)
	return msgs
}

// prepareStreamingMessages additionally appends the catalog context built
// from the most recent cached load, so follow-up turns that trigger no tool
// calls still answer against the previously computed load.
func prepareStreamingMessages(sess *session.Session, cat *catalog.Catalog) []message.Message {
	msgs := []message.Message{message.SystemMessage(systemPrompt())}
	msgs = append(msgs, sess.History...)

	if load, ok := latestLoadInfo(sess); ok {
		var userText []string
		for _, m := range sess.History {
			if m.Role == message.RoleUser {
				userText = append(userText, m.Content)
			}
		}
		preferred := catalog.DetectPreferredTypes(strings.Join(userText, " "))
		msgs = append(msgs, cat.ContextMessage(load, preferred))
	}
	return msgs
}

// cacheSummary renders prior load calculations so follow-up turns keep their
// sizing context without re-running tools.
func cacheSummary(sess *session.Session) string {
	type entry struct {
		seq  int64
		line string
	}
	var entries []entry
	for key, ce := range sess.ToolCache {
		name, rawArgs, ok := splitCacheKey(key)
		if !ok || name != tool.NameCalculateLoad {
			continue
		}
		var args struct {
			PoolAreaM2 float64 `json:"pool_area_m2"`
		}
		_ = json.Unmarshal([]byte(rawArgs), &args)

		var result struct {
			LatentLoadL24h *float64 `json:"latentLoad_L24h"`
		}
		load := "N/A"
		if json.Unmarshal(ce.Result, &result) == nil && result.LatentLoadL24h != nil {
			load = fmt.Sprintf("%g", *result.LatentLoadL24h)
		}
		entries = append(entries, entry{
			seq:  ce.Seq,
			line: fmt.Sprintf("Load Calc: Pool=%gm², Load=%sL/day", args.PoolAreaM2, load),
		})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].seq < entries[j].seq })

	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		lines = append(lines, e.line)
	}
	return strings.Join(lines, "\n")
}

// latestLoadInfo extracts the most recently cached load calculation, keyed by
// cache sequence so restarts preserve recency.
func latestLoadInfo(sess *session.Session) (catalog.LoadInfo, bool) {
	var (
		best    session.CacheEntry
		bestKey string
		found   bool
	)
	for key, ce := range sess.ToolCache {
		name, _, ok := splitCacheKey(key)
		if !ok || name != tool.NameCalculateLoad {
			continue
		}
		if !found || ce.Seq > best.Seq {
			best, bestKey, found = ce, key, true
		}
	}
	if !found {
		return catalog.LoadInfo{}, false
	}

	var result struct {
		LatentLoadL24h float64 `json:"latentLoad_L24h"`
		RoomAreaM2     float64 `json:"room_area_m2"`
		Volume         float64 `json:"volume"`
		Error          string  `json:"error"`
	}
	if json.Unmarshal(best.Result, &result) != nil || result.Error != "" {
		return catalog.LoadInfo{}, false
	}

	_, rawArgs, _ := splitCacheKey(bestKey)
	args := struct {
		PoolAreaM2 float64 `json:"pool_area_m2"`
		IndoorTemp float64 `json:"indoorTemp"`
		CurrentRH  float64 `json:"currentRH"`
		TargetRH   float64 `json:"targetRH"`
	}{IndoorTemp: 30.0, CurrentRH: 80.0, TargetRH: 60.0}
	_ = json.Unmarshal([]byte(rawArgs), &args)

	return catalog.LoadInfo{
		LatentLoadL24h: result.LatentLoadL24h,
		RoomAreaM2:     result.RoomAreaM2,
		PoolAreaM2:     args.PoolAreaM2,
		PoolRequired:   args.PoolAreaM2 > 0,
		IndoorTemp:     args.IndoorTemp,
		CurrentRH:      args.CurrentRH,
		TargetRH:       args.TargetRH,
	}, true
}

func splitCacheKey(key string) (name, rawArgs string, ok bool) {
	i := strings.Index(key, "|")
	if i < 0 {
		return "", "", false
	}
	return key[:i], key[i+1:], true
}

// productCount reads back the catalog size from a built context message for
// the catalog-prepared progress event.
func productCount(msg message.Message) int {
	const marker = "AVAILABLE_PRODUCT_CATALOG_JSON = "
	start := strings.Index(msg.Content, marker)
	if start < 0 {
		return 0
	}
	jsonPart := msg.Content[start+len(marker):]
	if end := strings.Index(jsonPart, "\nWhen recommending"); end >= 0 {
		jsonPart = jsonPart[:end]
	}
	var payload struct {
		Catalog []json.RawMessage `json:"catalog"`
	}
	if json.Unmarshal([]byte(strings.TrimSpace(jsonPart)), &payload) != nil {
		return 0
	}
	return len(payload.Catalog)
}
