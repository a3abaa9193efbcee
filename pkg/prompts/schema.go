package prompts

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// Table describes one curated analytics table offered to the model.
type Table struct {
	Name        string
	Description string
	Columns     []string
	Examples    []string
}

// Schema is the reference block embedded in every prompt.
type Schema struct {
	Tables       []Table
	TimeRanges   []string
	Aggregations []string
	Filters      []string
}

// DefaultSchema returns the curated spellbook tables the generator may use.
func DefaultSchema() *Schema {
	return &Schema{
		Tables: []Table{
			{
				Name:        "dex.trades",
				Description: "DEX trades across all supported exchanges",
				Columns: []string{
					"blockchain", "project", "version", "block_time", "token_bought_address", "token_sold_address",
					"token_bought_symbol", "token_sold_symbol", "token_pair_address", "token_bought_amount",
					"token_sold_amount", "token_bought_amount_raw", "token_sold_amount_raw", "amount_usd",
					"tx_hash", "tx_from", "tx_to", "evt_index", "trace_address",
				},
				Examples: []string{
					"SELECT blockchain, project, SUM(amount_usd) AS volume FROM dex.trades WHERE block_time >= current_date - interval '7 days' GROUP BY blockchain, project",
					"SELECT token_bought_symbol, SUM(amount_usd) AS volume FROM dex.trades WHERE blockchain = 'ethereum' AND project = 'uniswap' GROUP BY token_bought_symbol ORDER BY volume DESC",
				},
			},
			{
				Name:        "tokens.erc20",
				Description: "ERC20 token metadata",
				Columns:     []string{"blockchain", "contract_address", "symbol", "name", "decimals", "total_supply"},
				Examples: []string{
					"SELECT symbol, name, total_supply FROM tokens.erc20 WHERE blockchain = 'ethereum' AND symbol = 'USDC'",
				},
			},
			{
				Name:        "prices.usd",
				Description: "Token prices by minute",
				Columns:     []string{"blockchain", "contract_address", "symbol", "minute", "price"},
				Examples: []string{
					"SELECT symbol, AVG(price) AS avg_price FROM prices.usd WHERE blockchain = 'ethereum' AND symbol = 'WETH' AND minute >= current_date - interval '7 days' GROUP BY symbol",
				},
			},
			{
				Name:        "lending.borrow",
				Description: "Lending protocol borrows",
				Columns:     []string{"blockchain", "project", "version", "block_time", "token_address", "token_symbol", "amount", "amount_usd", "tx_hash"},
				Examples: []string{
					"SELECT project, SUM(amount_usd) AS total_borrowed FROM lending.borrow WHERE blockchain = 'ethereum' AND block_time >= current_date - interval '30 days' GROUP BY project",
				},
			},
			{
				Name:        "lending.deposit",
				Description: "Lending protocol deposits",
				Columns:     []string{"blockchain", "project", "version", "block_time", "token_address", "token_symbol", "amount", "amount_usd", "tx_hash"},
				Examples: []string{
					"SELECT project, SUM(amount_usd) AS total_deposited FROM lending.deposit WHERE blockchain = 'ethereum' AND block_time >= current_date - interval '30 days' GROUP BY project",
				},
			},
			{
				Name:        "nft.trades",
				Description: "NFT marketplace trades",
				Columns:     []string{"blockchain", "project", "version", "block_time", "token_id", "collection", "amount_usd", "tx_hash"},
				Examples: []string{
					"SELECT collection, SUM(amount_usd) AS volume FROM nft.trades WHERE blockchain = 'ethereum' AND block_time >= current_date - interval '7 days' GROUP BY collection ORDER BY volume DESC",
				},
			},
			{
				Name:        "bridge.transfers",
				Description: "Cross-chain bridge transfers",
				Columns:     []string{"blockchain", "project", "version", "block_time", "token_address", "token_symbol", "amount", "amount_usd", "tx_hash"},
				Examples: []string{
					"SELECT project, SUM(amount_usd) AS total_volume FROM bridge.transfers WHERE block_time >= current_date - interval '7 days' GROUP BY project ORDER BY total_volume DESC",
				},
			},
		},
		TimeRanges: []string{
			"current_date - interval '1 day'",
			"current_date - interval '7 days'",
			"current_date - interval '30 days'",
			"current_date - interval '90 days'",
			"current_date - interval '1 year'",
		},
		Aggregations: []string{
			"SUM(amount_usd) AS total_volume",
			"COUNT(*) AS transaction_count",
			"AVG(amount_usd) AS avg_amount",
			"MAX(amount_usd) AS max_amount",
		},
		Filters: []string{
			"blockchain = 'ethereum'",
			"project = 'uniswap'",
			"token_symbol = 'WETH'",
			"block_time >= current_date - interval '7 days'",
		},
	}
}

// Render writes the schema reference block.
func (s *Schema) Render() string {
	var b strings.Builder
	b.WriteString("## Available Tables\n\n")
	for _, t := range s.Tables {
		b.WriteString(fmt.Sprintf("### %s\n", t.Name))
		b.WriteString(fmt.Sprintf("%s\n", t.Description))
		b.WriteString(fmt.Sprintf("Columns: %s\n", strings.Join(t.Columns, ", ")))
		if len(t.Examples) > 0 {
			b.WriteString("Examples:\n")
			for _, ex := range t.Examples {
				b.WriteString(fmt.Sprintf("  %s\n", ex))
			}
		}
		b.WriteString("\n")
	}
	b.WriteString("## Common Patterns\n\n")
	b.WriteString(fmt.Sprintf("Time ranges: %s\n", strings.Join(s.TimeRanges, ", ")))
	b.WriteString(fmt.Sprintf("Aggregations: %s\n", strings.Join(s.Aggregations, ", ")))
	b.WriteString(fmt.Sprintf("Filters: %s\n", strings.Join(s.Filters, ", ")))
	return b.String()
}

var qualifiedFromPattern = regexp.MustCompile(`(?i)\b(?:from|join)\s+([a-z_][a-z0-9_]*\.[a-z_][a-z0-9_]*)`)

// UnknownTables returns the schema-qualified tables in sql that are not part
// of the curated schema, sorted and de-duplicated.
func (s *Schema) UnknownTables(sql string) []string {
	known := make(map[string]bool, len(s.Tables))
	for _, t := range s.Tables {
		known[t.Name] = true
	}

	seen := map[string]bool{}
	var unknown []string
	for _, m := range qualifiedFromPattern.FindAllStringSubmatch(sql, -1) {
		name := strings.ToLower(m[1])
		if !known[name] && !seen[name] {
			seen[name] = true
			unknown = append(unknown, name)
		}
	}
	sort.Strings(unknown)
	return unknown
}

// TableNames lists the curated table names in schema order.
func (s *Schema) TableNames() []string {
	names := make([]string, 0, len(s.Tables))
	for _, t := range s.Tables {
		names = append(names, t.Name)
	}
	return names
}
