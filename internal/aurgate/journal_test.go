package aurgate

import (
	"bytes"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJournalRecordsAndFilters(t *testing.T) {
	j, err := OpenJournal(filepath.Join(t.TempDir(), "nested", "journal.db"))
	require.NoError(t, err)
	defer j.Close()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, j.Record(
		JournalEntry{Pkgbase: "bar", Split: "bar", File: "bar-1-1-any.pkg.tar.zst", Revision: "aaa1111", Size: 2048, AsDeps: true, InstalledAt: base},
		JournalEntry{Pkgbase: "foo", Split: "foo", File: "foo-1-1-any.pkg.tar.zst", Revision: "bbb2222", Size: 4096, InstalledAt: base},
	))
	require.NoError(t, j.Record(
		JournalEntry{Pkgbase: "foo", Split: "foo", File: "foo-2-1-any.pkg.tar.zst", Revision: "ccc3333", Size: 4096, InstalledAt: base.Add(time.Hour)},
	))

	all, err := j.History("")
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "bar-1-1-any.pkg.tar.zst", all[0].File)
	assert.Equal(t, "foo-2-1-any.pkg.tar.zst", all[2].File)

	foo, err := j.History("foo")
	require.NoError(t, err)
	require.Len(t, foo, 2)
	assert.Equal(t, []string{"bbb2222", "ccc3333"}, []string{foo[0].Revision, foo[1].Revision})
	assert.True(t, foo[1].InstalledAt.Equal(base.Add(time.Hour)))

	var out bytes.Buffer
	PrintHistory(&out, all)
	assert.Contains(t, out.String(), "bar-1-1-any.pkg.tar.zst  bar@aaa1111  dependency  2.0 kB")
	assert.Contains(t, out.String(), "foo@bbb2222  explicit")
}

func TestPrintHistoryEmpty(t *testing.T) {
	var out bytes.Buffer
	PrintHistory(&out, nil)
	assert.Contains(t, out.String(), "No installs recorded.")
}

func TestComputeChecksum(t *testing.T) {
	path := filepath.Join(t.TempDir(), "foo-1-1-any.pkg.tar.zst")
	writeFile(t, path, "")

	d, err := ComputeChecksum(path)
	require.NoError(t, err)
	assert.Equal(t, int64(0), d.Size)
	// BLAKE3 of the empty input.
	assert.Equal(t, "af1349b9f5f9a1a6a0404dea36dcc9499bcb25c9adc112b7cc9a93cae41f3262", d.Sum)
}
