package archive

import (
	"encoding/hex"
	"fmt"
	"os"
	"strings"
)

// Keys holds console key material parsed from a prod.keys file. Inspection
// works without keys; they unlock deeper container reads and are surfaced
// by preflight so users learn early when the file is missing or malformed.
type Keys struct {
	values map[string]string
}

// LoadKeys parses an ini-style keys file. Each line is "name = hexvalue";
// blank lines and lines starting with '#' or ';' are ignored.
func LoadKeys(path string) (*Keys, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	values := make(map[string]string)
	for lineNo, line := range strings.Split(string(raw), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, ";") {
			continue
		}
		name, value, ok := strings.Cut(line, "=")
		if !ok {
			return nil, fmt.Errorf("%s line %d: missing '='", path, lineNo+1)
		}
		name = strings.ToLower(strings.TrimSpace(name))
		value = strings.ToLower(strings.TrimSpace(value))
		if name == "" || value == "" {
			return nil, fmt.Errorf("%s line %d: empty name or value", path, lineNo+1)
		}
		if _, err := hex.DecodeString(value); err != nil {
			return nil, fmt.Errorf("%s line %d: value for %s is not hex", path, lineNo+1, name)
		}
		values[name] = value
	}
	return &Keys{values: values}, nil
}

// Get returns the hex value for a key name.
func (k *Keys) Get(name string) (string, bool) {
	if k == nil {
		return "", false
	}
	value, ok := k.values[strings.ToLower(strings.TrimSpace(name))]
	return value, ok
}

// Len reports the number of keys loaded.
func (k *Keys) Len() int {
	if k == nil {
		return 0
	}
	return len(k.values)
}
