package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/pyneda/apifuzz/lib"
	"github.com/pyneda/apifuzz/pkg/api/core"
	"github.com/pyneda/apifuzz/pkg/corpus"
	"github.com/rs/zerolog/log"
)

// maxStoredResponseBody bounds how much of a response is kept in a finding.
const maxStoredResponseBody = 64 * 1024

// Finding is an observed response whose status is outside the expected set.
type Finding struct {
	RunID        string            `json:"run_id,omitempty"`
	Operation    string            `json:"operation"`
	Method       string            `json:"method"`
	Path         string            `json:"path"`
	TargetPath   string            `json:"target_path"`
	URL          string            `json:"url"`
	Query        url.Values        `json:"query,omitempty"`
	Headers      map[string]string `json:"headers,omitempty"`
	Body         string            `json:"body,omitempty"`
	RawBody      []byte            `json:"body_base64,omitempty"`
	ContentType  string            `json:"content_type,omitempty"`
	Status       int               `json:"status"`
	ResponseBody string            `json:"response_body,omitempty"`
	Seed         uint64            `json:"seed"`
	Curl         string            `json:"curl"`
	Hash         string            `json:"hash"`
	CreatedAt    time.Time         `json:"created_at"`
}

// NewFinding captures everything needed to reproduce a request that got an
// unexpected status.
func NewFinding(op core.Operation, seed uint64, req *core.Request, baseURL string, status int, responseBody []byte) *Finding {
	if len(responseBody) > maxStoredResponseBody {
		responseBody = responseBody[:maxStoredResponseBody]
	}
	f := &Finding{
		Operation:    op.Identity(),
		Method:       strings.ToUpper(op.Method),
		Path:         op.Path,
		TargetPath:   req.Path,
		URL:          req.URL(baseURL),
		Query:        req.Query,
		Headers:      req.Headers,
		ContentType:  req.ContentType,
		Status:       status,
		ResponseBody: string(responseBody),
		Seed:         seed,
		Curl:         req.Curl(baseURL),
		Hash:         lib.HashBytes(req.Payload()),
		CreatedAt:    time.Now().UTC(),
	}
	// JSON strings cannot carry invalid UTF-8, so such bodies are kept as
	// base64 to replay byte for byte.
	if utf8.Valid(req.Body) {
		f.Body = string(req.Body)
	} else {
		f.RawBody = req.Body
	}
	return f
}

// Request rebuilds the request that produced the finding.
func (f *Finding) Request() *core.Request {
	req := &core.Request{
		Method:      f.Method,
		Path:        f.TargetPath,
		Query:       f.Query,
		Headers:     f.Headers,
		ContentType: f.ContentType,
	}
	switch {
	case len(f.RawBody) > 0:
		req.Body = f.RawBody
	case f.Body != "":
		req.Body = []byte(f.Body)
	}
	return req
}

// BaseURL returns the target the finding was sent to, without the request
// path and query.
func (f *Finding) BaseURL() string {
	base, _, _ := strings.Cut(f.URL, "?")
	return strings.TrimSuffix(base, f.TargetPath)
}

// Key identifies a finding for deduplication.
func (f *Finding) Key() string {
	return f.Operation + "|" + strconv.Itoa(f.Status) + "|" + f.Hash
}

func (f *Finding) shortHash() string {
	if len(f.Hash) > 16 {
		return f.Hash[:16]
	}
	return f.Hash
}

// Load reads a stored finding.
func Load(path string) (*Finding, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading finding: %w", err)
	}
	var f Finding
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decoding finding %s: %w", path, err)
	}
	if f.Method == "" || f.TargetPath == "" {
		return nil, fmt.Errorf("finding %s has no method or target path", path)
	}
	return &f, nil
}

// FindingStore writes one file per distinct finding and feeds the regression
// corpus.
type FindingStore struct {
	dir    string
	runID  string
	corpus corpus.Store

	mu      sync.Mutex
	stripes [lockStripes]sync.Mutex
	seen    map[string]struct{}
	written int
}

func NewFindingStore(dir string, store corpus.Store, runID string) (*FindingStore, error) {
	if dir == "" {
		return nil, errors.New("findings directory is required")
	}
	if store == nil {
		store = corpus.NewMemory()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating findings directory: %w", err)
	}
	return &FindingStore{
		dir:    dir,
		runID:  runID,
		corpus: store,
		seen:   make(map[string]struct{}),
	}, nil
}

func (s *FindingStore) Dir() string {
	return s.dir
}

// Written returns how many finding files this store created.
func (s *FindingStore) Written() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.written
}

// Path returns where f is stored.
func (s *FindingStore) Path(f *Finding) string {
	return filepath.Join(s.dir, PathSlug(f.Path), strings.ToUpper(f.Method), strconv.Itoa(f.Status), f.shortHash()+".json")
}

// Writes of the same finding key serialize on one of a fixed set of stripes.
const lockStripes = 64

func (s *FindingStore) keyLock(key string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return &s.stripes[h.Sum32()%lockStripes]
}

// Record stores f unless an identical finding was already recorded, and
// reports whether a new file was written. The seed is added to the corpus
// either way.
func (s *FindingStore) Record(f *Finding) (bool, error) {
	if f == nil || f.Operation == "" || f.Hash == "" {
		return false, errors.New("finding has no operation or hash")
	}
	if f.RunID == "" {
		f.RunID = s.runID
	}

	if _, err := s.corpus.Append(corpus.Entry{Operation: f.Operation, Seed: f.Seed}); err != nil {
		return false, fmt.Errorf("adding seed to corpus: %w", err)
	}

	key := f.Key()
	lock := s.keyLock(key)
	lock.Lock()
	defer lock.Unlock()

	s.mu.Lock()
	_, seen := s.seen[key]
	s.mu.Unlock()
	if seen {
		return false, nil
	}

	path := s.Path(f)
	if _, err := os.Stat(path); err == nil {
		s.markSeen(key, false)
		log.Debug().Str("path", path).Msg("Finding already stored")
		return false, nil
	}

	if err := writeJSONFile(path, f); err != nil {
		return false, err
	}
	s.markSeen(key, true)
	log.Info().Str("operation", f.Operation).Int("status", f.Status).Uint64("seed", f.Seed).Str("path", path).Msg("Recorded finding")
	return true, nil
}

func (s *FindingStore) markSeen(key string, written bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen[key] = struct{}{}
	if written {
		s.written++
	}
}

// Flush persists the corpus.
func (s *FindingStore) Flush() error {
	return s.corpus.Flush()
}

// PathSlug names the directory and stats file of an operation path. The
// short hash keeps paths apart whose slugs collide, like /a/b and /a-b.
func PathSlug(path string) string {
	s := lib.Slugify(path)
	if s == "" {
		s = "root"
	}
	return s + "-" + lib.HashBytes([]byte(path))[:8]
}

// writeJSONFile writes v through a temporary file so readers never see a
// partial document.
func writeJSONFile(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding %s: %w", path, err)
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*.json")
	if err != nil {
		return fmt.Errorf("creating temporary file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("closing %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("moving %s into place: %w", path, err)
	}
	return nil
}
