package relevance

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Alias maps a canonical name to the substrings that identify it.
type Alias struct {
	Name  string   `yaml:"name"`
	Terms []string `yaml:"terms"`
}

// Vocabulary holds the stopwords and alias tables used by the Extractor.
// Alias order is significant: the first matching blockchain wins.
type Vocabulary struct {
	Stopwords   []string `yaml:"stopwords"`
	Blockchains []Alias  `yaml:"blockchains"`
	Protocols   []Alias  `yaml:"protocols"`
}

// DefaultVocabulary returns the built-in English stopwords and the
// blockchain/protocol alias tables.
func DefaultVocabulary() *Vocabulary {
	return &Vocabulary{
		Stopwords: []string{
			"the", "and", "or", "but", "in", "on", "at", "to", "for", "of", "with", "by",
			"a", "an", "is", "are", "was", "were", "be", "been", "have", "has", "had",
			"do", "does", "did", "will", "would", "could", "should", "may", "might", "can",
			"get", "find", "show", "give", "me", "i", "you", "we", "they",
		},
		Blockchains: []Alias{
			{Name: "ethereum", Terms: []string{"ethereum", "eth", "mainnet"}},
			{Name: "polygon", Terms: []string{"polygon", "matic"}},
			{Name: "arbitrum", Terms: []string{"arbitrum", "arb"}},
			{Name: "optimism", Terms: []string{"optimism", "op"}},
			{Name: "bnb", Terms: []string{"bnb", "bsc", "binance"}},
		},
		Protocols: []Alias{
			{Name: "uniswap", Terms: []string{"uniswap", "uni"}},
			{Name: "sushiswap", Terms: []string{"sushiswap", "sushi"}},
			{Name: "curve", Terms: []string{"curve", "crv"}},
			{Name: "compound", Terms: []string{"compound", "comp"}},
			{Name: "aave", Terms: []string{"aave"}},
			{Name: "maker", Terms: []string{"maker", "mkr", "dai"}},
			{Name: "lido", Terms: []string{"lido", "steth"}},
		},
	}
}

// LoadVocabulary reads a YAML vocabulary file. Sections missing from the
// file keep their built-in defaults.
func LoadVocabulary(path string) (*Vocabulary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read vocabulary file: %w", err)
	}

	var file Vocabulary
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse vocabulary file: %w", err)
	}

	v := DefaultVocabulary()
	if len(file.Stopwords) > 0 {
		v.Stopwords = file.Stopwords
	}
	if len(file.Blockchains) > 0 {
		v.Blockchains = file.Blockchains
	}
	if len(file.Protocols) > 0 {
		v.Protocols = file.Protocols
	}
	return v, nil
}
