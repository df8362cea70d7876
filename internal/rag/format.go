package rag

import (
	"fmt"
	"strings"
)

// Result is the retrieve_relevant_docs tool result. FormattedDocs is what the
// model reads; Chunks carries the raw text for callers that want it.
type Result struct {
	FormattedDocs string   `json:"formatted_docs"`
	Chunks        []string `json:"chunks"`
}

// FormatDocs renders retrieved chunks into the documentation block fed back
// to the model. The refined query is surfaced when it differs from what the
// model originally asked for.
func FormatDocs(query, refined string, chunks []string) Result {
	queryInfo := fmt.Sprintf("'%s'", query)
	if refined != query {
		queryInfo = fmt.Sprintf("'%s'", refined)
	}

	if len(chunks) == 0 {
		return Result{
			FormattedDocs: fmt.Sprintf(
				"No relevant documentation found for query %s. I don't have specific information about this topic in my available documentation.",
				queryInfo),
			Chunks: []string{},
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "RELEVANT DOCUMENTATION for query %s:\n\n", queryInfo)
	for i, chunk := range chunks {
		fmt.Fprintf(&b, "--- Document %d ---\n%s\n\n", i+1, chunk)
	}
	b.WriteString("END OF DOCUMENTATION\n\nPlease use this information to provide an accurate, specific answer.")
	return Result{FormattedDocs: b.String(), Chunks: chunks}
}
