package restock

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/pizza-delivery/internal/domain/ingredient"
)

type memStore struct {
	mu       sync.Mutex
	stock    map[string]int
	receipts map[string]bool
	checks   int
	applies  int
	applyErr error
}

func newMemStore(stock map[string]int, applied ...string) *memStore {
	m := &memStore{stock: stock, receipts: make(map[string]bool)}
	for _, id := range applied {
		m.receipts[id] = true
	}
	return m
}

func (m *memStore) AppliedLineIDs(context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.receipts))
	for id := range m.receipts {
		ids = append(ids, id)
	}
	return ids, nil
}

func (m *memStore) Applied(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checks++
	return m.receipts[id], nil
}

func (m *memStore) Apply(_ context.Context, line Line) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.applies++
	if m.applyErr != nil {
		return false, m.applyErr
	}
	if m.receipts[line.ID] {
		return false, nil
	}
	if _, ok := m.stock[line.Ingredient]; !ok {
		return false, ingredient.ErrNotFound
	}
	m.receipts[line.ID] = true
	m.stock[line.Ingredient] += line.Quantity
	return true, nil
}

func gzipLines(t *testing.T, lines ...string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := pgzip.NewWriter(&buf)
	_, err := w.Write([]byte(strings.Join(lines, "\n") + "\n"))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func writeManifest(t *testing.T, dir, name string, lines ...string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, gzipLines(t, lines...), 0o600))
	return path
}

func TestIngestReader(t *testing.T) {
	store := newMemStore(map[string]int{"Mozzarella": 5, "Olives": 0})
	ing := NewIngester(store, 1)

	data := gzipLines(t,
		"line_id,ingredient,quantity",
		"L1,Mozzarella,10",
		"L2,Olives,4",
		"",
		"L1,Mozzarella,10",
		"L3,Anchovies,2",
		"L4,Olives,-1",
		"garbage",
	)

	report, err := ing.IngestReader(context.Background(), "test.gz", bytes.NewReader(data))
	require.NoError(t, err)

	assert.Equal(t, Report{Lines: 4, Applied: 2, Duplicates: 1, Unknown: 1, Invalid: 2}, report)
	assert.Equal(t, 15, store.stock["Mozzarella"])
	assert.Equal(t, 4, store.stock["Olives"])
}

func TestIngest_SkipsPreviouslyApplied(t *testing.T) {
	store := newMemStore(map[string]int{"Cheddar": 1}, "OLD")
	dir := t.TempDir()
	path := writeManifest(t, dir, "m1.gz", "OLD,Cheddar,100", "NEW,Cheddar,2")

	report, err := NewIngester(store, 2).Ingest(context.Background(), []string{path})
	require.NoError(t, err)

	assert.Equal(t, 1, report.Applied)
	assert.Equal(t, 1, report.Duplicates)
	assert.Equal(t, 3, store.stock["Cheddar"])
	assert.Equal(t, 1, store.applies, "known line never reaches Apply")
}

func TestIngest_ConcurrentFiles(t *testing.T) {
	store := newMemStore(map[string]int{"Onion": 0, "Capsicum": 0})
	dir := t.TempDir()
	files := []string{
		writeManifest(t, dir, "a.gz", "A1,Onion,1", "A2,Capsicum,2", "SHARED,Onion,5"),
		writeManifest(t, dir, "b.gz", "B1,Onion,3", "SHARED,Onion,5"),
		writeManifest(t, dir, "c.gz", "C1,Capsicum,4"),
	}

	report, err := NewIngester(store, 3).Ingest(context.Background(), files)
	require.NoError(t, err)

	assert.Equal(t, 6, report.Lines)
	assert.Equal(t, 5, report.Applied)
	assert.Equal(t, 1, report.Duplicates)
	assert.Equal(t, 9, store.stock["Onion"])
	assert.Equal(t, 6, store.stock["Capsicum"])
}

func TestIngest_StoreError(t *testing.T) {
	store := newMemStore(map[string]int{"Onion": 0})
	store.applyErr = errors.New("db down")
	dir := t.TempDir()
	path := writeManifest(t, dir, "a.gz", "A1,Onion,1")

	_, err := NewIngester(store, 1).Ingest(context.Background(), []string{path})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db down")
}

func TestIngest_MissingFile(t *testing.T) {
	store := newMemStore(map[string]int{})

	_, err := NewIngester(store, 1).Ingest(context.Background(), []string{filepath.Join(t.TempDir(), "nope.gz")})
	require.Error(t, err)
}

func TestParseLine(t *testing.T) {
	line, ok := parseLine(" L9 , Pesto , 12 ")
	require.True(t, ok)
	assert.Equal(t, Line{ID: "L9", Ingredient: "Pesto", Quantity: 12}, line)

	for _, bad := range []string{"", "a,b", "a,b,c", "a,b,0", ",b,1", "a,,1", "a,b,1,2"} {
		_, ok := parseLine(bad)
		assert.False(t, ok, bad)
	}
}
