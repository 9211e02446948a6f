// Package output renders dinegate-cli results.
//
// Results are printed as an aligned table (the default), JSON or YAML.
// Table output reads `json` tags for column names and honours
// `table:"-"` to hide a field and `table:"wide"` for columns shown only
// with --wide.
package output
