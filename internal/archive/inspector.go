package archive

import (
	"bufio"
	"context"
	"os"
	"path/filepath"
	"strings"

	"depot/internal/errs"
)

// Kind classifies a package by what it installs.
type Kind string

const (
	KindBase   Kind = "base"
	KindUpdate Kind = "update"
	KindDLC    Kind = "dlc"
)

// Info is the metadata recovered from a package file.
type Info struct {
	TitleID     string
	AltIDs      []string
	DisplayName string
	Version     int
	Kind        Kind
	Size        int64
}

// Option configures an Inspector.
type Option func(*Inspector)

// WithKeys supplies console key material loaded via LoadKeys.
func WithKeys(keys *Keys) Option {
	return func(ins *Inspector) {
		ins.keys = keys
	}
}

// WithSuffixes overrides the title ID suffixes used to classify packages
// as updates or base titles.
func WithSuffixes(update, base string) Option {
	return func(ins *Inspector) {
		if update = strings.ToLower(strings.TrimSpace(update)); update != "" {
			ins.updateSuffix = update
		}
		if base = strings.ToLower(strings.TrimSpace(base)); base != "" {
			ins.baseSuffix = base
		}
	}
}

// Inspector recovers title metadata from package files.
type Inspector struct {
	keys         *Keys
	updateSuffix string
	baseSuffix   string
}

// NewInspector constructs an Inspector with default suffix classification.
func NewInspector(opts ...Option) *Inspector {
	ins := &Inspector{updateSuffix: "800", baseSuffix: "000"}
	for _, opt := range opts {
		opt(ins)
	}
	return ins
}

// HasKeys reports whether key material was supplied.
func (ins *Inspector) HasKeys() bool {
	return ins.keys.Len() > 0
}

// Inspect reads the package at path and returns its metadata. NSP and NSZ
// containers are parsed for ticket entries; every format falls back to
// filename tokens when the container yields no title ID. A malformed
// container returns errs.DecodeError.
func (ins *Inspector) Inspect(ctx context.Context, path string) (Info, error) {
	if err := ctx.Err(); err != nil {
		return Info{}, err
	}

	stat, err := os.Stat(path)
	if err != nil {
		return Info{}, err
	}

	base := filepath.Base(path)
	ext := strings.ToLower(filepath.Ext(base))
	parsed := ParseFilename(base)

	out := Info{
		DisplayName: parsed.Stem,
		Version:     parsed.Version,
		Size:        stat.Size(),
	}

	switch ext {
	case ".nsp", ".nsz":
		ids, err := ins.containerTitleIDs(path)
		if err != nil {
			return Info{}, errs.NewDecode(path, "pfs0", err)
		}
		if len(ids) > 0 {
			out.TitleID = ids[0]
			out.AltIDs = ids[1:]
		}
	}

	if out.TitleID == "" {
		out.TitleID = parsed.TitleID
	}
	out.Kind = ins.classify(out.TitleID)
	return out, nil
}

func (ins *Inspector) containerTitleIDs(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	entries, err := ParsePFS0(bufio.NewReader(file))
	if err != nil {
		return nil, err
	}
	return ticketTitleIDs(entries), nil
}

// ticketTitleIDs collects title IDs from rights ticket entries. A ticket
// is named "<rights-id>.tik" where the first 16 hex digits are the title
// ID. Entries that do not fit that shape are skipped.
func ticketTitleIDs(entries []FileEntry) []string {
	var ids []string
	seen := make(map[string]struct{})
	for _, entry := range entries {
		if !strings.HasSuffix(strings.ToLower(entry.Name), ".tik") {
			continue
		}
		if len(entry.Name) < 16 {
			continue
		}
		candidate := entry.Name[:16]
		if !isHexTitleID(candidate) {
			continue
		}
		id := strings.ToUpper(candidate)
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids
}

func (ins *Inspector) classify(titleID string) Kind {
	if titleID == "" {
		return KindBase
	}
	id := strings.ToLower(titleID)
	switch {
	case strings.HasSuffix(id, ins.updateSuffix):
		return KindUpdate
	case strings.HasSuffix(id, ins.baseSuffix):
		return KindBase
	default:
		return KindDLC
	}
}
