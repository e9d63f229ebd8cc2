package config

import "os"

// ExpandEnv expands ${VAR} and $VAR references in raw YAML bytes using the
// process environment, before the content is parsed. Missing variables
// expand to the empty string; validation is expected to catch any field
// that ends up empty as a result.
func ExpandEnv(data []byte) []byte {
	return []byte(os.ExpandEnv(string(data)))
}
