package sql

import (
	"regexp"
	"sort"
)

// parameterRegex matches Dune's {{parameter_name}} placeholders. Dune allows
// spaces and dashes in names, e.g. {{Start Date}} or {{token-address}}.
var parameterRegex = regexp.MustCompile(`\{\{\s*([a-zA-Z_][\w \-]*?)\s*\}\}`)

// ExtractParameters finds all {{param}} placeholders in SQL and returns
// a deduplicated list of parameter names in order of first appearance.
//
//	sql := "SELECT * FROM dex.trades WHERE project = '{{project}}' AND block_time > {{start}}"
//	params := ExtractParameters(sql)
//	// params == []string{"project", "start"}
func ExtractParameters(sqlQuery string) []string {
	matches := parameterRegex.FindAllStringSubmatch(sqlQuery, -1)
	seen := make(map[string]bool)
	var params []string

	for _, match := range matches {
		name := match[1]
		if !seen[name] {
			seen[name] = true
			params = append(params, name)
		}
	}

	return params
}

// UnknownParameters returns the supplied parameter names that do not appear
// as a placeholder in sqlQuery, sorted.
func UnknownParameters(sqlQuery string, supplied map[string]any) []string {
	declared := make(map[string]bool)
	for _, name := range ExtractParameters(sqlQuery) {
		declared[name] = true
	}

	var unknown []string
	for name := range supplied {
		if !declared[name] {
			unknown = append(unknown, name)
		}
	}
	sort.Strings(unknown)
	return unknown
}
