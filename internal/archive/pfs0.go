package archive

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"unicode/utf8"
)

const pfs0Magic = "PFS0"

// Parse limits guarding against absurd headers in truncated or hostile
// files. Real packages hold at most a few dozen entries.
const (
	maxEntryCount      = 1 << 20
	maxStringTableSize = 1 << 26
)

type pfs0Header struct {
	Magic           [4]byte
	EntryCount      uint32
	StringTableSize uint32
	_               uint32
}

type pfs0Entry struct {
	DataOffset uint64
	DataSize   uint64
	NameOffset uint32
	_          uint32
}

// FileEntry describes one named file inside a PFS0 container.
type FileEntry struct {
	Name   string
	Offset uint64
	Size   uint64
}

// ParsePFS0 reads a PFS0 container header, entry table, and string table
// from r and returns the named entries. Offsets and sizes refer to the
// data region following the string table.
func ParsePFS0(r io.Reader) ([]FileEntry, error) {
	var header pfs0Header
	if err := binary.Read(r, binary.LittleEndian, &header); err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if string(header.Magic[:]) != pfs0Magic {
		return nil, fmt.Errorf("bad magic %q", header.Magic)
	}
	if header.EntryCount > maxEntryCount {
		return nil, fmt.Errorf("entry count %d out of range", header.EntryCount)
	}
	if header.StringTableSize > maxStringTableSize {
		return nil, fmt.Errorf("string table size %d out of range", header.StringTableSize)
	}

	entries := make([]pfs0Entry, header.EntryCount)
	for i := range entries {
		if err := binary.Read(r, binary.LittleEndian, &entries[i]); err != nil {
			return nil, fmt.Errorf("read entry %d: %w", i, err)
		}
	}

	table := make([]byte, header.StringTableSize)
	if _, err := io.ReadFull(r, table); err != nil {
		return nil, fmt.Errorf("read string table: %w", err)
	}

	files := make([]FileEntry, 0, len(entries))
	for i, entry := range entries {
		if int64(entry.NameOffset) >= int64(len(table)) {
			return nil, fmt.Errorf("entry %d: name offset %d beyond string table", i, entry.NameOffset)
		}
		name := table[entry.NameOffset:]
		if idx := bytes.IndexByte(name, 0); idx >= 0 {
			name = name[:idx]
		}
		if !utf8.Valid(name) {
			return nil, fmt.Errorf("entry %d: name is not valid UTF-8", i)
		}
		files = append(files, FileEntry{
			Name:   string(name),
			Offset: entry.DataOffset,
			Size:   entry.DataSize,
		})
	}
	return files, nil
}
