package prompts

import (
	"fmt"
	"strings"

	"github.com/dunelens/dunelens/pkg/dune"
)

// GenerationInput is everything the generation prompt embeds.
type GenerationInput struct {
	UserQuery      string
	Blockchain     string
	Timeframe      string
	Protocols      []string
	AdditionalInfo string
	Exemplars
}

// BuildGenerationPrompt asks for a Dune query answering a natural-language request.
func BuildGenerationPrompt(in GenerationInput, schema *Schema) string {
	var prompt strings.Builder

	prompt.WriteString("You are a Dune Analytics SQL expert. Write a query for the user's request ")
	prompt.WriteString("using only the tables and columns that actually exist.\n\n")
	prompt.WriteString(fmt.Sprintf("## Request\n\n%q\n\n", in.UserQuery))

	writeExemplars(&prompt, in.Exemplars)

	prompt.WriteString("## Context\n\n")
	prompt.WriteString(fmt.Sprintf("- Blockchain: %s\n", orUnspecified(in.Blockchain)))
	prompt.WriteString(fmt.Sprintf("- Timeframe: %s\n", orUnspecified(in.Timeframe)))
	prompt.WriteString(fmt.Sprintf("- Protocols: %s\n", orUnspecified(strings.Join(in.Protocols, ", "))))
	if in.AdditionalInfo != "" {
		prompt.WriteString(fmt.Sprintf("- Additional information: %s\n", in.AdditionalInfo))
	}
	prompt.WriteString("\n")

	prompt.WriteString(schema.Render())

	prompt.WriteString(`
## Rules

1. Use only the tables and columns listed above.
2. Never assume tables or columns that are not listed.
3. Express dates as current_date - interval '...'.
4. Make JOIN conditions explicit.
5. Use suitable aggregates (SUM, COUNT, AVG).
6. Add a LIMIT.

## Response Format

Respond with a single JSON object only, no markdown fences:
{
  "generatedSQL": "SELECT blockchain, project, SUM(amount_usd) AS volume FROM dex.trades WHERE block_time >= current_date - interval '7 days' GROUP BY blockchain, project ORDER BY volume DESC LIMIT 10",
  "explanation": "what the query computes",
  "assumptions": ["assumptions made"],
  "clarificationQuestions": ["questions whose answers would improve the query"],
  "confidence": 0.9,
  "suggestedImprovements": []
}
`)
	return prompt.String()
}

// ClarificationAnswer is a user's answer to a clarification question.
type ClarificationAnswer struct {
	QuestionID string `json:"questionId"`
	Answer     string `json:"answer"`
}

// AppendAnswers folds clarification answers into the additional-info context.
func AppendAnswers(additional string, answers []ClarificationAnswer) string {
	if len(answers) == 0 {
		return additional
	}
	parts := make([]string, 0, len(answers))
	for _, a := range answers {
		parts = append(parts, fmt.Sprintf("%s: %s", a.QuestionID, a.Answer))
	}
	joined := "Clarifications: " + strings.Join(parts, "; ")
	if strings.TrimSpace(additional) == "" {
		return joined
	}
	return additional + " " + joined
}

// BuildAnalysisPrompt asks for an annotated breakdown of an existing Dune query.
func BuildAnalysisPrompt(q *dune.Query) string {
	var prompt strings.Builder

	prompt.WriteString("You are a Dune Analytics expert. Analyze the following query so it can be reused ")
	prompt.WriteString("as a reference example for future SQL generation.\n\n")
	prompt.WriteString(fmt.Sprintf("## Query %d: %s\n\n", q.QueryID, q.Name))
	if q.Description != "" {
		prompt.WriteString(fmt.Sprintf("Description: %s\n\n", q.Description))
	}
	if len(q.Tags) > 0 {
		prompt.WriteString(fmt.Sprintf("Tags: %s\n\n", strings.Join(q.Tags, ", ")))
	}
	prompt.WriteString("```sql\n")
	prompt.WriteString(q.QuerySQL)
	prompt.WriteString("\n```\n")

	prompt.WriteString(`
## Response Format

Respond with a single JSON object only:
{
  "title": "short descriptive title",
  "summary": "what the query measures, in two sentences",
  "annotatedSQL": "the same SQL with a comment above each logical step",
  "keyFeatures": ["notable techniques or metrics"],
  "blockchainType": "ethereum | polygon | arbitrum | optimism | bnb | base | null",
  "projectName": "protocol name or null",
  "projectCategory": "dex_trading | nft | lending | staking | dao_governance | bridge | general",
  "tags": ["keywords"]
}
`)
	return prompt.String()
}

func orUnspecified(s string) string {
	if strings.TrimSpace(s) == "" {
		return "unspecified"
	}
	return s
}
