package prompts

import (
	"fmt"
	"strings"

	"github.com/dunelens/dunelens/pkg/models"
)

// Exemplars are the related queries and past fixes embedded in a prompt.
type Exemplars struct {
	RelatedQueries []models.RelatedQuery
	PastFixes      []models.SQLErrorRecord
	// TokenBudget caps the exemplar sections; zero disables trimming.
	TokenBudget int
}

// FixInput is everything the repair prompts embed.
type FixInput struct {
	OriginalSQL  string
	ErrorMessage string
	UserContext  string
	ErrorKind    models.ErrorKind
	Exemplars
}

// AnalysisTypeFor selects the repair template for an error kind.
// Empty results are analyzed as data problems; everything else is a structural fix.
func AnalysisTypeFor(kind models.ErrorKind) models.AnalysisType {
	if kind == models.ErrorKindNoResults {
		return models.AnalysisTypeDataAnalysis
	}
	return models.AnalysisTypeErrorFix
}

// BuildFixPrompt returns the prompt for in's error kind.
func BuildFixPrompt(in FixInput, schema *Schema) string {
	if AnalysisTypeFor(in.ErrorKind) == models.AnalysisTypeDataAnalysis {
		return buildNoResultsPrompt(in, schema)
	}
	return buildErrorFixPrompt(in, schema)
}

func buildNoResultsPrompt(in FixInput, schema *Schema) string {
	var prompt strings.Builder

	prompt.WriteString("You are a Dune Analytics data analysis expert.\n\n")
	prompt.WriteString("The user's SQL query ran successfully but returned no rows.\n\n")
	writeQueryAndError(&prompt, in, "Result")

	prompt.WriteString(`## Common Causes of Empty Results

1. **Time range**: the window is too recent or too old. Widen it (last 30 or 90 days).
2. **Filters too strict**: relax WHERE conditions one at a time.
3. **Table or protocol choice**: low-activity protocol or a secondary table. Prefer the main spell.
4. **JOIN conditions**: an INNER JOIN dropped rows. Try LEFT JOIN or check the keys.
5. **String matching**: case or exact-match failures. Use LOWER() or LIKE.
6. **Data availability**: the chain or protocol has little data. Try another source.

`)
	writeExemplars(&prompt, in.Exemplars)
	prompt.WriteString(schema.Render())

	prompt.WriteString(`
## Response Format

Respond with a single JSON object only:
{
  "revisedSQL": "improved SQL with broader conditions",
  "explanation": "likely reasons for the empty result and how the query was changed",
  "analysisSteps": ["step 1: widen the time range", "step 2: relax filters"],
  "alternativeQueries": ["alternative approach 1", "alternative approach 2"],
  "dataValidationSuggestions": ["how to verify the data exists"]
}
`)
	return prompt.String()
}

func buildErrorFixPrompt(in FixInput, schema *Schema) string {
	var prompt strings.Builder

	prompt.WriteString("You are a Dune Analytics SQL repair expert.\n\n")
	prompt.WriteString(fmt.Sprintf("The following SQL failed with a %s.\n\n", strings.ReplaceAll(string(in.ErrorKind), "_", " ")))
	writeQueryAndError(&prompt, in, "Dune Error")

	prompt.WriteString(`## Common Dune Errors

1. Wrong table name (ethereum.transactions vs ethereum.core.transactions)
2. Wrong column name (value vs value_eth)
3. Dialect differences (Dune runs Trino SQL)
4. Date literal formats
5. Aggregates without matching GROUP BY
6. JOIN conditions

`)
	writeExemplars(&prompt, in.Exemplars)
	prompt.WriteString(schema.Render())

	prompt.WriteString(`
## Response Format

Respond with a single JSON object only:
{
  "fixedSQL": "the corrected SQL",
  "explanation": "what was wrong and how it was fixed",
  "changes": ["change 1: cause and fix"],
  "commonMistakes": ["related mistakes to watch for"],
  "testingSuggestions": ["how to verify the fixed query"],
  "confidence": 0.9
}
`)
	return prompt.String()
}

func writeQueryAndError(prompt *strings.Builder, in FixInput, errorHeading string) {
	prompt.WriteString("## Original SQL\n\n```sql\n")
	prompt.WriteString(in.OriginalSQL)
	prompt.WriteString("\n```\n\n")
	prompt.WriteString(fmt.Sprintf("## %s\n\n```\n%s\n```\n\n", errorHeading, in.ErrorMessage))
	userContext := in.UserContext
	if strings.TrimSpace(userContext) == "" {
		userContext = "(not provided)"
	}
	prompt.WriteString(fmt.Sprintf("## User Intent\n\n%s\n\n", userContext))
}

// writeExemplars appends related queries then past fixes, dropping trailing
// entries once the token budget is spent.
func writeExemplars(prompt *strings.Builder, ex Exemplars) {
	var sections []string
	related := 0
	for _, q := range ex.RelatedQueries {
		sql := q.RawSQL
		if q.AnnotatedSQL != "" {
			sql = q.AnnotatedSQL
		}
		sections = append(sections, fmt.Sprintf("Title: %s\nSummary: %s\nSQL:\n%s\n---\n", q.Title, q.Summary, sql))
		related++
	}
	for _, f := range ex.PastFixes {
		fixed, explanation := "", ""
		if f.FixedSQL != nil {
			fixed = *f.FixedSQL
		}
		if f.FixExplanation != nil {
			explanation = *f.FixExplanation
		}
		sections = append(sections, fmt.Sprintf("Original SQL: %s\nError: %s\nFixed SQL: %s\nExplanation: %s\n---\n",
			f.OriginalSQL, f.ErrorMessage, fixed, explanation))
	}

	keep := fitSections(sections, ex.TokenBudget)

	prompt.WriteString("## Related Queries\n\n")
	if related == 0 || keep == 0 {
		prompt.WriteString("No related queries found.\n\n")
	} else {
		for _, s := range sections[:min(related, keep)] {
			prompt.WriteString(s)
		}
		prompt.WriteString("\n")
	}

	prompt.WriteString("## Past Fixes (avoid these mistakes)\n\n")
	if keep <= related {
		prompt.WriteString("No past fixes recorded.\n\n")
	} else {
		for _, s := range sections[related:keep] {
			prompt.WriteString(s)
		}
		prompt.WriteString("\n")
	}
}
