package archive

import (
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

var bracketTag = regexp.MustCompile(`\[(.*?)\]`)

// ParsedName holds the tokens recovered from a package filename such as
// "Some Game [0100ABCD00000000][v65536].nsp". A 16-hex-digit tag is the
// title ID, a v-prefixed number is the version, and everything outside
// the brackets forms the display stem.
type ParsedName struct {
	Stem    string
	TitleID string
	Version int
	Tags    []string
}

// ParseFilename extracts bracketed tokens from a package filename. It
// never fails; missing tokens leave zero values.
func ParseFilename(name string) ParsedName {
	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)

	var parsed ParsedName
	for _, match := range bracketTag.FindAllStringSubmatch(base, -1) {
		tag := match[1]
		if parsed.TitleID == "" && isHexTitleID(tag) {
			parsed.TitleID = strings.ToUpper(tag)
			continue
		}
		if version, ok := parseVersionTag(tag); ok && parsed.Version == 0 {
			parsed.Version = version
			continue
		}
		parsed.Tags = append(parsed.Tags, tag)
	}

	parsed.Stem = strings.TrimSpace(bracketTag.ReplaceAllString(base, ""))
	if parsed.Stem == "" {
		parsed.Stem = strings.TrimSpace(base)
	}
	return parsed
}

func parseVersionTag(tag string) (int, bool) {
	if !strings.HasPrefix(tag, "v") {
		return 0, false
	}
	version, err := strconv.Atoi(tag[1:])
	if err != nil || version < 0 {
		return 0, false
	}
	return version, true
}

func isHexTitleID(value string) bool {
	if len(value) != 16 {
		return false
	}
	for _, r := range value {
		switch {
		case r >= '0' && r <= '9':
		case r >= 'a' && r <= 'f':
		case r >= 'A' && r <= 'F':
		default:
			return false
		}
	}
	return true
}
