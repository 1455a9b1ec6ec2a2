package main

import (
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ChatHub/pkg/config"
	"ChatHub/pkg/logger"
	"ChatHub/pkg/services"
)

func TestParseQueries(t *testing.T) {
	qs, err := parseQueries([]byte(`["  first ", {"q": "second"}, {"other": 1}, ""]`))
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second"}, qs)

	_, err = parseQueries([]byte(`[]`))
	assert.Error(t, err)
	_, err = parseQueries([]byte(`{`))
	assert.Error(t, err)
}

func TestFilterQueries(t *testing.T) {
	qs := []string{"alpha one", "beta two", "gamma three"}
	assert.Equal(t, qs, filterQueries(qs, ""))
	assert.Equal(t, []string{"alpha one", "gamma three"}, filterQueries(qs, "3, 1"))
	assert.Equal(t, []string{"beta two"}, filterQueries(qs, "BETA"))
	assert.Equal(t, qs, filterQueries(qs, "nothing,42"))
}

func TestRunOnceWithLocalProvider(t *testing.T) {
	llm := config.LLM{Provider: config.ProviderLocal, Model: "local-echo"}
	proxy := services.NewChatProxy(llm, services.NewLocalGenerator(0), logger.Nop())

	res := runOnce(context.Background(), proxy, "how are you", time.Second)
	assert.Equal(t, "completed", res.State)
	assert.Empty(t, res.Error)
	assert.Greater(t, res.Fragments, 1)
	assert.Contains(t, res.Response, "how are you")
	assert.Equal(t, "local", res.Provider)
}

func TestRunOnceWithoutCredential(t *testing.T) {
	llm := config.LLM{Provider: config.ProviderGemini, Model: "gemini-test"}
	proxy := services.NewChatProxy(llm, services.NewLocalGenerator(0), logger.Nop())

	res := runOnce(context.Background(), proxy, "hi", time.Second)
	assert.Equal(t, "failed", res.State)
	assert.Contains(t, res.Error, "GEMINI_API_KEY")
}

func TestWriteCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv")
	require.NoError(t, writeCSV(path, []ResultItem{{Query: "q", State: "completed", Fragments: 2, Response: "a,b"}}))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "query", rows[0][0])
	assert.Equal(t, "a,b", rows[1][7])
}
