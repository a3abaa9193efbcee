package classifier

// Query categories recorded with SQL errors.
const (
	CategoryDexTrading    = "dex_trading"
	CategoryNFT           = "nft"
	CategoryLending       = "lending"
	CategoryStaking       = "staking"
	CategoryDAOGovernance = "dao_governance"
	CategoryBridge        = "bridge"
	CategoryGeneral       = "general"
)

// Table-prefix rules. "eth." also matches inside "ethereum." which is the
// same chain, so the overlap is harmless.
var sqlBlockchains = New("",
	Rule[string]{"ethereum", anyOf("ethereum.", "eth.")},
	Rule[string]{"polygon", anyOf("polygon.")},
	Rule[string]{"arbitrum", anyOf("arbitrum.")},
	Rule[string]{"optimism", anyOf("optimism.")},
	Rule[string]{"bnb", anyOf("bnb.", "bsc.")},
	Rule[string]{"base", anyOf("base.")},
)

var queryCategories = New(CategoryGeneral,
	Rule[string]{CategoryDexTrading, anyOf("dex", "swap", "trade")},
	Rule[string]{CategoryNFT, anyOf("nft")},
	Rule[string]{CategoryLending, anyOf("lend", "borrow", "aave", "compound")},
	Rule[string]{CategoryStaking, anyOf("stake", "staking")},
	Rule[string]{CategoryDAOGovernance, anyOf("governance", "vote", "proposal")},
	Rule[string]{CategoryBridge, anyOf("bridge")},
)

// DetectBlockchainFromSQL infers the chain from schema-qualified table names.
// It returns "" when nothing matches.
func DetectBlockchainFromSQL(sql string) string {
	return sqlBlockchains.Classify(sql)
}

// DetectQueryCategory infers a coarse category from the SQL and the user's
// stated intent.
func DetectQueryCategory(sql, intent string) string {
	return queryCategories.Classify(sql + " " + intent)
}
