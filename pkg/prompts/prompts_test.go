package prompts

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dunelens/dunelens/pkg/dune"
	"github.com/dunelens/dunelens/pkg/models"
)

func strPtr(s string) *string { return &s }

func TestAnalysisTypeFor(t *testing.T) {
	assert.Equal(t, models.AnalysisTypeDataAnalysis, AnalysisTypeFor(models.ErrorKindNoResults))
	assert.Equal(t, models.AnalysisTypeErrorFix, AnalysisTypeFor(models.ErrorKindSyntax))
	assert.Equal(t, models.AnalysisTypeErrorFix, AnalysisTypeFor(models.ErrorKindUnknown))
}

func TestBuildFixPrompt_NoResultsTemplate(t *testing.T) {
	prompt := BuildFixPrompt(FixInput{
		OriginalSQL:  "SELECT * FROM dex.trades WHERE block_time > now()",
		ErrorMessage: "Query returned 0 rows",
		ErrorKind:    models.ErrorKindNoResults,
	}, DefaultSchema())

	assert.Contains(t, prompt, "returned no rows")
	assert.Contains(t, prompt, `"revisedSQL"`)
	assert.NotContains(t, prompt, `"fixedSQL"`)
	assert.Contains(t, prompt, "(not provided)")
	assert.Contains(t, prompt, "No related queries found.")
	assert.Contains(t, prompt, "No past fixes recorded.")
	assert.Contains(t, prompt, "### dex.trades")
}

func TestBuildFixPrompt_ErrorFixTemplate(t *testing.T) {
	prompt := BuildFixPrompt(FixInput{
		OriginalSQL:  "SELEC 1",
		ErrorMessage: "syntax error at or near SELEC",
		UserContext:  "daily uniswap volume",
		ErrorKind:    models.ErrorKindSyntax,
	}, DefaultSchema())

	assert.Contains(t, prompt, "failed with a syntax error")
	assert.Contains(t, prompt, `"fixedSQL"`)
	assert.Contains(t, prompt, `"confidence"`)
	assert.Contains(t, prompt, "daily uniswap volume")
	assert.Contains(t, prompt, "SELEC 1")
}

func TestBuildFixPrompt_EmbedsExemplars(t *testing.T) {
	prompt := BuildFixPrompt(FixInput{
		OriginalSQL:  "SELECT 1",
		ErrorMessage: "column foo does not exist",
		ErrorKind:    models.ErrorKindColumnNotFound,
		Exemplars: Exemplars{
			RelatedQueries: []models.RelatedQuery{{AnalyzedQuery: models.AnalyzedQuery{
				Title:        "Uniswap weekly volume",
				Summary:      "volume by week",
				RawSQL:       "SELECT raw",
				AnnotatedSQL: "-- annotated\nSELECT annotated",
			}}},
			PastFixes: []models.SQLErrorRecord{{
				OriginalSQL:    "SELECT foo FROM dex.trades",
				ErrorMessage:   "column foo does not exist",
				FixedSQL:       strPtr("SELECT amount_usd FROM dex.trades"),
				FixExplanation: strPtr("foo is not a column"),
			}},
		},
	}, DefaultSchema())

	assert.Contains(t, prompt, "Title: Uniswap weekly volume")
	assert.Contains(t, prompt, "SELECT annotated", "annotated SQL is preferred over raw")
	assert.NotContains(t, prompt, "SELECT raw")
	assert.Contains(t, prompt, "Fixed SQL: SELECT amount_usd FROM dex.trades")
	assert.NotContains(t, prompt, "No past fixes recorded.")
}

func TestWriteExemplars_TokenBudgetDropsTrailingSections(t *testing.T) {
	long := strings.Repeat("volume liquidity swap ", 200)
	ex := Exemplars{
		RelatedQueries: []models.RelatedQuery{
			{AnalyzedQuery: models.AnalyzedQuery{Title: "first", RawSQL: "SELECT 1"}},
			{AnalyzedQuery: models.AnalyzedQuery{Title: "second", RawSQL: long}},
		},
		PastFixes: []models.SQLErrorRecord{{OriginalSQL: "SELECT 2", ErrorMessage: "boom"}},
		// Enough for the first section only.
		TokenBudget: 50,
	}

	var b strings.Builder
	writeExemplars(&b, ex)
	out := b.String()

	assert.Contains(t, out, "Title: first")
	assert.NotContains(t, out, "Title: second")
	assert.Contains(t, out, "No past fixes recorded.")
}

func TestFitSections(t *testing.T) {
	sections := []string{"one two", "three four", "five six"}
	assert.Equal(t, 3, fitSections(sections, 0))
	assert.Equal(t, 3, fitSections(sections, 1000))
	assert.Equal(t, 0, fitSections(sections, 1))
}

func TestCountTokens(t *testing.T) {
	assert.Equal(t, 0, CountTokens(""))
	short := CountTokens("SELECT 1")
	long := CountTokens(strings.Repeat("SELECT amount_usd FROM dex.trades ", 20))
	assert.Positive(t, short)
	assert.Greater(t, long, short)
}

func TestBuildGenerationPrompt(t *testing.T) {
	prompt := BuildGenerationPrompt(GenerationInput{
		UserQuery:      "top uniswap pools this week",
		Blockchain:     "ethereum",
		Protocols:      []string{"uniswap"},
		AdditionalInfo: "exclude stablecoins",
	}, DefaultSchema())

	assert.Contains(t, prompt, `"top uniswap pools this week"`)
	assert.Contains(t, prompt, "- Blockchain: ethereum")
	assert.Contains(t, prompt, "- Timeframe: unspecified")
	assert.Contains(t, prompt, "- Protocols: uniswap")
	assert.Contains(t, prompt, "- Additional information: exclude stablecoins")
	assert.Contains(t, prompt, `"generatedSQL"`)
	assert.Contains(t, prompt, "### bridge.transfers")
}

func TestAppendAnswers(t *testing.T) {
	answers := []ClarificationAnswer{{QuestionID: "q1", Answer: "ethereum"}, {QuestionID: "q2", Answer: "7 days"}}

	assert.Equal(t, "base info", AppendAnswers("base info", nil))
	assert.Equal(t, "Clarifications: q1: ethereum; q2: 7 days", AppendAnswers("  ", answers))
	assert.Equal(t, "base info Clarifications: q1: ethereum; q2: 7 days", AppendAnswers("base info", answers))
}

func TestBuildAnalysisPrompt(t *testing.T) {
	prompt := BuildAnalysisPrompt(&dune.Query{
		QueryID:     3237721,
		Name:        "DEX volume",
		Description: "weekly dex volume",
		Tags:        []string{"dex", "volume"},
		QuerySQL:    "SELECT 1",
	})

	assert.Contains(t, prompt, "## Query 3237721: DEX volume")
	assert.Contains(t, prompt, "Description: weekly dex volume")
	assert.Contains(t, prompt, "Tags: dex, volume")
	assert.Contains(t, prompt, "```sql\nSELECT 1\n```")
	assert.Contains(t, prompt, `"annotatedSQL"`)
}

func TestSchema_UnknownTables(t *testing.T) {
	s := DefaultSchema()

	sql := `SELECT * FROM dex.trades t
		JOIN ethereum.core_transactions tx ON t.tx_hash = tx.hash
		LEFT JOIN Prices.USD p ON p.symbol = t.token_bought_symbol
		JOIN ethereum.core_transactions tx2 ON true`
	assert.Equal(t, []string{"ethereum.core_transactions"}, s.UnknownTables(sql))
	assert.Empty(t, s.UnknownTables("SELECT 1"))
	assert.Empty(t, s.UnknownTables("SELECT * FROM my_cte"))
}

func TestSchema_RenderListsEveryTable(t *testing.T) {
	s := DefaultSchema()
	rendered := s.Render()
	for _, name := range s.TableNames() {
		assert.Contains(t, rendered, "### "+name)
	}
	assert.Contains(t, rendered, "Time ranges:")
}

func TestFallbackSQL(t *testing.T) {
	tests := []struct {
		name       string
		query      string
		blockchain string
		wantTable  string
		wantChain  string
	}{
		{name: "nft", query: "top NFT collections", wantTable: "FROM nft.trades", wantChain: "'ethereum'"},
		{name: "lending", query: "aave borrow volume", blockchain: "polygon", wantTable: "FROM lending.borrow", wantChain: "'polygon'"},
		{name: "price", query: "WETH price history", wantTable: "FROM prices.usd", wantChain: "'ethereum'"},
		{name: "default dex", query: "weekly volume", blockchain: "arbitrum", wantTable: "FROM dex.trades", wantChain: "'arbitrum'"},
		{name: "quotes escaped", query: "weekly volume", blockchain: "o'hare", wantTable: "FROM dex.trades", wantChain: "'o''hare'"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sql := FallbackSQL(tt.query, tt.blockchain)
			require.NotEmpty(t, sql)
			assert.Contains(t, sql, tt.wantTable)
			assert.Contains(t, sql, "blockchain = "+tt.wantChain)
			assert.True(t, strings.HasPrefix(sql, "-- Starter query for: "))
		})
	}
}
