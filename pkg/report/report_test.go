package report

import (
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pyneda/apifuzz/lib"
	"github.com/pyneda/apifuzz/pkg/api/core"
	"github.com/pyneda/apifuzz/pkg/corpus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func widgetOperation() core.Operation {
	return core.Operation{Method: "GET", Path: "/widgets/{id}", Responses: core.NewStatusSet(200, 404)}
}

func widgetRequest(id string) *core.Request {
	return &core.Request{
		Method:  "GET",
		Path:    "/widgets/" + id,
		Query:   url.Values{"verbose": []string{"true"}},
		Headers: map[string]string{"X-Trace": "abc"},
	}
}

func TestFindingStore_RecordsWidgetServerError(t *testing.T) {
	dir := t.TempDir()
	regressions := corpus.NewMemory()
	store, err := NewFindingStore(dir, regressions, "run-1")
	require.NoError(t, err)

	op := widgetOperation()
	req := widgetRequest("-1")
	finding := NewFinding(op, 1234, req, "http://localhost:8080/", 500, []byte("boom"))

	written, err := store.Record(finding)
	require.NoError(t, err)
	assert.True(t, written)

	path := store.Path(finding)
	assert.Equal(t, filepath.Join(dir, PathSlug("/widgets/{id}"), "GET", "500", finding.Hash[:16]+".json"), path)
	assert.Equal(t, lib.HashBytes(req.Payload()), finding.Hash)

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "GET /widgets/{id}", loaded.Operation)
	assert.Equal(t, "/widgets/-1", loaded.TargetPath)
	assert.Equal(t, "http://localhost:8080/widgets/-1?verbose=true", loaded.URL)
	assert.Equal(t, 500, loaded.Status)
	assert.Equal(t, uint64(1234), loaded.Seed)
	assert.Equal(t, "boom", loaded.ResponseBody)
	assert.Equal(t, "run-1", loaded.RunID)
	assert.Contains(t, loaded.Curl, "curl -X GET")
	assert.Equal(t, req.Payload(), loaded.Request().Payload())
	assert.Equal(t, "http://localhost:8080", loaded.BaseURL())

	assert.Equal(t, []corpus.Entry{{Operation: "GET /widgets/{id}", Seed: 1234}}, regressions.Entries("GET /widgets/{id}"))
}

func TestFindingStore_DedupIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFindingStore(dir, nil, "run-1")
	require.NoError(t, err)

	op := widgetOperation()
	first := NewFinding(op, 1, widgetRequest("7"), "http://localhost", 500, nil)
	again := NewFinding(op, 1, widgetRequest("7"), "http://localhost", 500, []byte("different body"))
	otherStatus := NewFinding(op, 1, widgetRequest("7"), "http://localhost", 502, nil)

	written, err := store.Record(first)
	require.NoError(t, err)
	assert.True(t, written)

	written, err = store.Record(again)
	require.NoError(t, err)
	assert.False(t, written)

	written, err = store.Record(otherStatus)
	require.NoError(t, err)
	assert.True(t, written)
	assert.Equal(t, 2, store.Written())

	before, err := os.ReadFile(store.Path(first))
	require.NoError(t, err)

	// A later run sees the file on disk and leaves it untouched.
	next, err := NewFindingStore(dir, nil, "run-2")
	require.NoError(t, err)
	written, err = next.Record(NewFinding(op, 1, widgetRequest("7"), "http://localhost", 500, nil))
	require.NoError(t, err)
	assert.False(t, written)

	after, err := os.ReadFile(store.Path(first))
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestFindingStore_ConcurrentRecords(t *testing.T) {
	store, err := NewFindingStore(t.TempDir(), nil, "")
	require.NoError(t, err)
	op := widgetOperation()

	var wg sync.WaitGroup
	results := make(chan bool, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			written, err := store.Record(NewFinding(op, 5, widgetRequest("5"), "http://localhost", 500, nil))
			assert.NoError(t, err)
			results <- written
		}()
	}
	wg.Wait()
	close(results)

	writes := 0
	for written := range results {
		if written {
			writes++
		}
	}
	assert.Equal(t, 1, writes)
}

func TestFindingStore_ManyDistinctFindings(t *testing.T) {
	store, err := NewFindingStore(t.TempDir(), nil, "")
	require.NoError(t, err)
	op := widgetOperation()

	assert.Same(t, store.keyLock("GET /widgets/{id}|500|abc"), store.keyLock("GET /widgets/{id}|500|abc"))

	const distinct = 200
	var wg sync.WaitGroup
	for i := 0; i < distinct; i++ {
		for dup := 0; dup < 2; dup++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, err := store.Record(NewFinding(op, uint64(i), widgetRequest(strconv.Itoa(i)), "http://localhost", 500, nil))
				assert.NoError(t, err)
			}(i)
		}
	}
	wg.Wait()
	assert.Equal(t, distinct, store.Written())
}

func TestFindingStore_BinaryBodyReplaysExactly(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFindingStore(dir, nil, "")
	require.NoError(t, err)

	op := core.Operation{Method: "POST", Path: "/notes"}
	sent := []byte{0xff, 0xfe, 'o', 'k'}
	f := NewFinding(op, 9, &core.Request{Method: "POST", Path: "/notes", Body: sent, ContentType: "text/plain"}, "http://h", 500, nil)
	_, err = store.Record(f)
	require.NoError(t, err)

	loaded, err := Load(store.Path(f))
	require.NoError(t, err)
	assert.Empty(t, loaded.Body)
	assert.Equal(t, sent, loaded.Request().Body)
	assert.Equal(t, f.Hash, lib.HashBytes(loaded.Request().Payload()))

	text := NewFinding(op, 9, &core.Request{Method: "POST", Path: "/notes", Body: []byte("héllo"), ContentType: "text/plain"}, "http://h", 500, nil)
	assert.Equal(t, "héllo", text.Body)
	assert.Nil(t, text.RawBody)
}

func TestFindingStore_RootPath(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFindingStore(dir, nil, "")
	require.NoError(t, err)

	op := core.Operation{Method: "post", Path: "/"}
	f := NewFinding(op, 2, &core.Request{Method: "POST", Path: "/", Body: []byte(`{"a":1}`), ContentType: "application/json"}, "http://h", 418, nil)
	assert.True(t, strings.HasPrefix(store.Path(f), filepath.Join(dir, PathSlug("/"), "POST", "418")))
}

func TestPathSlug(t *testing.T) {
	assert.True(t, strings.HasPrefix(PathSlug("/widgets/{id}"), "widgets-id-"))
	assert.True(t, strings.HasPrefix(PathSlug("/"), "root-"))
	assert.Equal(t, PathSlug("/widgets/{id}"), PathSlug("/widgets/{id}"))

	collisions := [][2]string{
		{"/widgets/{id}", "/widgets/id"},
		{"/a/b", "/a-b"},
	}
	for _, pair := range collisions {
		assert.NotEqual(t, PathSlug(pair[0]), PathSlug(pair[1]), "%s and %s", pair[0], pair[1])
	}
}

func TestTimings_WriteKeepsCollidingPathsApart(t *testing.T) {
	timings := NewTimings()
	timings.Observe(core.Operation{Method: "GET", Path: "/a/b"}, time.Millisecond)
	timings.Observe(core.Operation{Method: "GET", Path: "/a-b"}, 3*time.Millisecond)

	dir := t.TempDir()
	require.NoError(t, timings.Write(dir))
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestFindingStore_RejectsIncompleteFinding(t *testing.T) {
	store, err := NewFindingStore(t.TempDir(), nil, "")
	require.NoError(t, err)
	_, err = store.Record(&Finding{Operation: "GET /"})
	assert.Error(t, err)

	_, err = NewFindingStore("", nil, "")
	assert.Error(t, err)
}

func TestLoad_Errors(t *testing.T) {
	dir := t.TempDir()
	_, err := Load(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)

	broken := filepath.Join(dir, "broken.json")
	require.NoError(t, os.WriteFile(broken, []byte("{"), 0o644))
	_, err = Load(broken)
	assert.Error(t, err)

	empty := filepath.Join(dir, "empty.json")
	require.NoError(t, os.WriteFile(empty, []byte("{}"), 0o644))
	_, err = Load(empty)
	assert.Error(t, err)
}

func TestComputeStats(t *testing.T) {
	_, ok := ComputeStats(nil)
	assert.False(t, ok)

	stats, ok := ComputeStats([]time.Duration{2 * time.Millisecond, 4 * time.Millisecond, 4 * time.Millisecond, 4 * time.Millisecond, 5 * time.Millisecond, 5 * time.Millisecond, 7 * time.Millisecond, 9 * time.Millisecond})
	require.True(t, ok)
	assert.Equal(t, 8, stats.Count)
	assert.InDelta(t, 2.0, stats.Min, 1e-9)
	assert.InDelta(t, 9.0, stats.Max, 1e-9)
	assert.InDelta(t, 5.0, stats.Mean, 1e-9)
	assert.InDelta(t, 2.0, stats.StdDev, 1e-9)
}

func TestTimings_Write(t *testing.T) {
	timings := NewTimings()
	op := widgetOperation()
	timings.Observe(op, 10*time.Millisecond)
	timings.Observe(op, 30*time.Millisecond)
	timings.Observe(core.Operation{Method: "POST", Path: "/widgets"}, time.Millisecond)

	stats := timings.Stats()
	require.Len(t, stats, 2)
	assert.Equal(t, "GET /widgets/{id}", stats[0].Operation)
	assert.InDelta(t, 20.0, stats[0].Mean, 1e-9)

	dir := t.TempDir()
	require.NoError(t, timings.Write(dir))
	assert.FileExists(t, filepath.Join(dir, PathSlug("/widgets/{id}")+"-get.json"))
	assert.FileExists(t, filepath.Join(dir, PathSlug("/widgets")+"-post.json"))
}

func TestSummary_Render(t *testing.T) {
	summary := &Summary{Operations: []OperationSummary{
		{Operation: "GET /widgets/{id}", State: "Saturated", TestCases: 70, Expected: 68, Findings: 2, NewFindings: 1},
		{Operation: "POST /widgets", State: "BudgetExhausted", TestCases: 256, Expected: 250, Findings: 6, NewFindings: 6},
	}}
	assert.Equal(t, 8, summary.TotalFindings())
	assert.Equal(t, 7, summary.NewFindings())
	assert.Equal(t, 326, summary.TotalTestCases())

	table, err := summary.Render(lib.Table)
	require.NoError(t, err)
	assert.Contains(t, table, "GET /widgets/{id}")
	assert.Contains(t, table, "BudgetExhausted")

	yamlOut, err := summary.Render(lib.YAML)
	require.NoError(t, err)
	assert.Contains(t, yamlOut, "state: Saturated")

	pretty, err := summary.Render(lib.Pretty)
	require.NoError(t, err)
	assert.Contains(t, pretty, lib.Colorize("GET /widgets/{id}", lib.Blue))
	assert.Contains(t, pretty, lib.Colorize("2 (new: 1)", lib.Red))

	_, err = summary.Render(lib.FormatType("xml"))
	assert.Error(t, err)
}

func TestOperationSummary_FailureCategories(t *testing.T) {
	var o OperationSummary
	assert.Empty(t, o.MainFailureCategory())

	o.RecordTransportFailure("timeout")
	o.RecordTransportFailure("connection_refused")
	o.RecordTransportFailure("connection_refused")
	assert.Equal(t, 3, o.TransportFailures)
	assert.Equal(t, "connection_refused", o.MainFailureCategory())
	assert.Contains(t, o.Pretty(), "Transport failures: 3 (mostly connection_refused)")

	o.RecordTransportFailure("timeout")
	assert.Equal(t, "connection_refused", o.MainFailureCategory(), "ties go to the first name")
}
