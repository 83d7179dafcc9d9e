package testsupport

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
)

// WriteFile fills the target path with the requested number of bytes using a
// simple repeating pattern. A size <= 0 writes a single byte.
func WriteFile(t testing.TB, path string, size int64) {
	t.Helper()

	if size <= 0 {
		size = 1
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	defer f.Close()

	const chunkSize = 32 * 1024
	buf := make([]byte, chunkSize)
	for i := range buf {
		buf[i] = 0x42
	}

	remaining := size
	for remaining > 0 {
		toWrite := int64(chunkSize)
		if remaining < toWrite {
			toWrite = remaining
		}
		if _, err := f.Write(buf[:toWrite]); err != nil {
			t.Fatalf("write %s: %v", path, err)
		}
		remaining -= toWrite
	}
}

// WritePFS0 writes a minimal PFS0 package containing the named entries.
// Each entry's payload is the entry name itself, which keeps offsets and
// sizes consistent for parser tests.
func WritePFS0(t testing.TB, path string, names ...string) {
	t.Helper()

	var table bytes.Buffer
	offsets := make([]uint32, len(names))
	for i, name := range names {
		offsets[i] = uint32(table.Len())
		table.WriteString(name)
		table.WriteByte(0)
	}

	var body bytes.Buffer
	body.WriteString("PFS0")
	mustWriteLE(t, &body, uint32(len(names)))
	mustWriteLE(t, &body, uint32(table.Len()))
	mustWriteLE(t, &body, uint32(0))

	var dataOffset uint64
	for i, name := range names {
		mustWriteLE(t, &body, dataOffset)
		mustWriteLE(t, &body, uint64(len(name)))
		mustWriteLE(t, &body, offsets[i])
		mustWriteLE(t, &body, uint32(0))
		dataOffset += uint64(len(name))
	}

	body.Write(table.Bytes())
	for _, name := range names {
		body.WriteString(name)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, body.Bytes(), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func mustWriteLE(t testing.TB, buf *bytes.Buffer, value any) {
	t.Helper()
	if err := binary.Write(buf, binary.LittleEndian, value); err != nil {
		t.Fatalf("encode pfs0 field: %v", err)
	}
}
