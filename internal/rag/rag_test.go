package rag

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tyrz939/dehum-assistant/internal/message"
)

func writeCorpus(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "manuals"), 0o755))
	files := map[string]string{
		"manuals/sp500c.md": "# SP500C PRO\n\nThe SP500C PRO wall mount unit extracts 50 L/day.\n\nInstallation steps: mount the bracket, connect the drain hose, power on.",
		"manuals/idhr60.md": "# IDHR60\n\nThe Fairland IDHR60 is a ducted inverter dehumidifier rated for pool rooms.\n\nFilter maintenance: rinse the filter monthly.",
		"faq.txt":           "Troubleshooting: if the unit does not start, check the float switch and power supply.",
	}
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(root, name), []byte(content), 0o644))
	}
	return root
}

func TestIndexAndSearch(t *testing.T) {
	r, err := Index(writeCorpus(t))
	require.NoError(t, err)
	assert.Greater(t, r.Len(), 2)

	hits := r.Search("SP500C installation steps", 3)
	require.NotEmpty(t, hits)
	assert.Contains(t, hits[0], "SP500C")

	assert.Empty(t, r.Search("zzzznomatch", 3))
}

func TestIndexMissingRootIsEmpty(t *testing.T) {
	r, err := Index("/nonexistent/corpus/path")
	require.NoError(t, err)
	assert.Zero(t, r.Len())
	assert.Empty(t, r.Search("anything", 3))
}

func TestRefineQueryPrefersSpecificModel(t *testing.T) {
	history := []message.Message{
		message.UserMessage("I'm comparing Suntec units"),
		message.AssistantMessage("Sure, which model?", nil),
		message.UserMessage("the SP1000C looks right for my pool room"),
	}
	assert.Equal(t, "SP1000C installation steps", RefineQuery("installation steps", history))
}

func TestRefineQueryBrandOnly(t *testing.T) {
	history := []message.Message{message.UserMessage("tell me about fairland units")}
	assert.Equal(t, "Fairland warranty", RefineQuery("warranty", history))
}

func TestRefineQueryIgnoresOldAndAssistantMentions(t *testing.T) {
	history := []message.Message{
		message.UserMessage("what about the IDHR96?"), // pushed out of the window
		message.UserMessage("a"), message.UserMessage("b"),
		message.UserMessage("c"), message.UserMessage("d"),
		message.AssistantMessage("the SP1500C would suit", nil),
	}
	assert.Equal(t, "filter cleaning", RefineQuery("filter cleaning", history))

	assert.Equal(t, "specs", RefineQuery("specs", nil))
}

func TestFormatDocs(t *testing.T) {
	res := FormatDocs("install", "SP500C install", []string{"chunk one", "chunk two"})
	assert.Contains(t, res.FormattedDocs, "RELEVANT DOCUMENTATION for query 'SP500C install'")
	assert.Contains(t, res.FormattedDocs, "--- Document 1 ---")
	assert.Contains(t, res.FormattedDocs, "--- Document 2 ---")
	assert.Contains(t, res.FormattedDocs, "END OF DOCUMENTATION")
	assert.Len(t, res.Chunks, 2)

	empty := FormatDocs("install", "install", nil)
	assert.Contains(t, empty.FormattedDocs, "No relevant documentation found for query 'install'")
	assert.Empty(t, empty.Chunks)
}
