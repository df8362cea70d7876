// Package rag retrieves product documentation chunks for the
// retrieve_relevant_docs tool. Documents are discovered under a corpus
// directory, split into chunks, and ranked by keyword overlap.
package rag

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

const (
	// DefaultK is the chunk count returned when the model does not ask for one.
	DefaultK = 3

	maxChunkChars = 1200
)

type chunk struct {
	source string
	text   string
	terms  map[string]int
}

// Retriever is an in-memory keyword index over a documentation corpus.
type Retriever struct {
	chunks []chunk
}

// Index builds a retriever from all markdown and text files under root,
// including nested directories. A missing root yields an empty retriever
// rather than an error so the tool degrades to "no documentation found".
func Index(root string) (*Retriever, error) {
	r := &Retriever{}
	if root == "" {
		return r, nil
	}
	if _, err := os.Stat(root); err != nil {
		if os.IsNotExist(err) {
			return r, nil
		}
		return nil, fmt.Errorf("stat corpus root: %w", err)
	}

	matches, err := doublestar.Glob(os.DirFS(root), "**/*.{md,txt}")
	if err != nil {
		return nil, fmt.Errorf("glob corpus: %w", err)
	}
	sort.Strings(matches)

	for _, rel := range matches {
		data, err := os.ReadFile(filepath.Join(root, rel))
		if err != nil {
			return nil, fmt.Errorf("read corpus file %s: %w", rel, err)
		}
		for _, text := range splitChunks(string(data)) {
			r.chunks = append(r.chunks, chunk{
				source: rel,
				text:   text,
				terms:  termFreq(text),
			})
		}
	}
	return r, nil
}

// Len returns the number of indexed chunks.
func (r *Retriever) Len() int { return len(r.chunks) }

// Search returns up to k chunk texts ranked by query term overlap. Chunks
// with no overlap are never returned.
func (r *Retriever) Search(query string, k int) []string {
	if k <= 0 {
		k = DefaultK
	}
	queryTerms := tokenize(query)
	if len(queryTerms) == 0 {
		return nil
	}

	type scored struct {
		idx   int
		score float64
	}
	var ranked []scored
	for i, c := range r.chunks {
		s := 0.0
		for _, term := range queryTerms {
			if n, ok := c.terms[term]; ok {
				s += 1.0 + float64(n)*0.1
			}
		}
		if s > 0 {
			ranked = append(ranked, scored{idx: i, score: s})
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })

	if len(ranked) > k {
		ranked = ranked[:k]
	}
	out := make([]string, 0, len(ranked))
	for _, s := range ranked {
		out = append(out, r.chunks[s.idx].text)
	}
	return out
}

// splitChunks breaks a document at blank lines, merging paragraphs until the
// chunk size cap is reached.
func splitChunks(doc string) []string {
	paragraphs := strings.Split(strings.ReplaceAll(doc, "\r\n", "\n"), "\n\n")
	var chunks []string
	var cur strings.Builder
	for _, p := range paragraphs {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if cur.Len() > 0 && cur.Len()+len(p) > maxChunkChars {
			chunks = append(chunks, cur.String())
			cur.Reset()
		}
		if cur.Len() > 0 {
			cur.WriteString("\n\n")
		}
		cur.WriteString(p)
	}
	if cur.Len() > 0 {
		chunks = append(chunks, cur.String())
	}
	return chunks
}

func tokenize(s string) []string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '-')
	})
	var out []string
	for _, f := range fields {
		if len(f) >= 2 {
			out = append(out, f)
		}
	}
	return out
}

func termFreq(s string) map[string]int {
	freq := make(map[string]int)
	for _, t := range tokenize(s) {
		freq[t]++
	}
	return freq
}
