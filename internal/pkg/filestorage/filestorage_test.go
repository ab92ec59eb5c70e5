package filestorage

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoredName(t *testing.T) {
	now := time.UnixMilli(1718000000123)

	assert.Equal(t, "1718000000123_report.pdf", StoredName(now, "report.pdf"))
	assert.Equal(t, "1718000000123_evil.txt", StoredName(now, "../../etc/evil.txt"))
	assert.Equal(t, "1718000000123_win.doc", StoredName(now, `C:\tmp\win.doc`))
	assert.Equal(t, "1718000000123_file", StoredName(now, ""))
}

func TestLocalStorageCreatesDirectoryOnFirstWrite(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "uploads")
	ls := NewLocalStorage(dir, "http://localhost:4000/")
	ctx := context.Background()

	_, err := os.Stat(dir)
	require.True(t, os.IsNotExist(err))

	payload := bytes.Repeat([]byte{'x'}, 500000)
	name := StoredName(time.Now(), "report.pdf")
	n, err := ls.Save(ctx, name, bytes.NewReader(payload), "application/pdf")
	require.NoError(t, err)
	assert.EqualValues(t, 500000, n)
	assert.Regexp(t, regexp.MustCompile(`^\d+_report\.pdf$`), name)

	ok, err := ls.Exists(ctx, name)
	require.NoError(t, err)
	assert.True(t, ok)

	u, err := ls.URL(ctx, name)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:4000/uploads/"+name, u)

	// second write into the existing directory
	_, err = ls.Save(ctx, "1_other.txt", bytes.NewReader([]byte("a")), "")
	require.NoError(t, err)
}

func TestLocalStorageDeleteIsIdempotent(t *testing.T) {
	ls := NewLocalStorage(t.TempDir(), "")
	ctx := context.Background()

	_, err := ls.Save(ctx, "1_a.txt", bytes.NewReader([]byte("a")), "")
	require.NoError(t, err)

	require.NoError(t, ls.Delete(ctx, "1_a.txt"))
	require.NoError(t, ls.Delete(ctx, "1_a.txt"))

	ok, err := ls.Exists(ctx, "1_a.txt")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLocalStorageRejectsTraversal(t *testing.T) {
	ls := NewLocalStorage(t.TempDir(), "")

	_, err := ls.Save(context.Background(), "../x", bytes.NewReader(nil), "")
	assert.ErrorIs(t, err, ErrInvalidName)
	_, err = ls.Exists(context.Background(), "a/b")
	assert.ErrorIs(t, err, ErrInvalidName)
}

func TestPlaceholder(t *testing.T) {
	assert.Equal(t, "File placeholder for report.pdf", string(Placeholder("report.pdf")))
}
