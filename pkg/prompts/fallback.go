package prompts

import (
	"fmt"
	"strings"
)

// FallbackSQL returns a deterministic starter query for a request when the
// model produced nothing usable. The template is picked by keyword and filtered
// by blockchain, which defaults to ethereum.
func FallbackSQL(userQuery, blockchain string) string {
	if blockchain == "" {
		blockchain = "ethereum"
	}
	blockchain = strings.ReplaceAll(blockchain, "'", "''")
	lower := strings.ToLower(userQuery)
	header := fmt.Sprintf("-- Starter query for: %s\n", strings.ReplaceAll(userQuery, "\n", " "))

	switch {
	case strings.Contains(lower, "nft") || strings.Contains(lower, "collection"):
		return header + fmt.Sprintf(`SELECT
  collection,
  SUM(amount_usd) AS volume_usd
FROM nft.trades
WHERE blockchain = '%s'
  AND block_time >= current_date - interval '7 days'
GROUP BY collection
ORDER BY volume_usd DESC
LIMIT 10`, blockchain)
	case strings.Contains(lower, "lending") || strings.Contains(lower, "borrow") || strings.Contains(lower, "deposit"):
		return header + fmt.Sprintf(`SELECT
  project,
  SUM(amount_usd) AS total_amount
FROM lending.borrow
WHERE blockchain = '%s'
  AND block_time >= current_date - interval '30 days'
GROUP BY project
ORDER BY total_amount DESC
LIMIT 10`, blockchain)
	case strings.Contains(lower, "price") || strings.Contains(lower, "token"):
		return header + fmt.Sprintf(`SELECT
  symbol,
  AVG(price) AS avg_price
FROM prices.usd
WHERE blockchain = '%s'
  AND minute >= current_date - interval '7 days'
GROUP BY symbol
ORDER BY avg_price DESC
LIMIT 10`, blockchain)
	default:
		return header + fmt.Sprintf(`SELECT
  project,
  SUM(amount_usd) AS volume_usd
FROM dex.trades
WHERE blockchain = '%s'
  AND block_time >= current_date - interval '7 days'
GROUP BY project
ORDER BY volume_usd DESC
LIMIT 10`, blockchain)
	}
}
