package corpus

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
)

// FileStore persists the corpus as JSON lines. The file is read fully on
// open and only appended to afterwards, it is never truncated or rewritten.
type FileStore struct {
	*index
	path   string
	file   *os.File
	closed bool
}

// Open loads the corpus at path, creating it when missing.
func Open(path string) (*FileStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating corpus directory: %w", err)
		}
	}

	s := &FileStore{index: newIndex(), path: path}
	needsNewline, err := s.load()
	if err != nil {
		return nil, err
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening corpus for append: %w", err)
	}
	if needsNewline {
		if _, err := file.WriteString("\n"); err != nil {
			file.Close()
			return nil, fmt.Errorf("terminating last corpus line: %w", err)
		}
	}
	s.file = file

	log.Debug().Str("path", path).Int("entries", s.Len()).Msg("Loaded regression corpus")
	return s, nil
}

// load reads existing entries and reports whether the last line lacks a
// trailing newline.
func (s *FileStore) load() (bool, error) {
	f, err := os.Open(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("opening corpus: %w", err)
	}
	defer f.Close()

	reader := bufio.NewReader(f)
	lineNumber := 0
	lastTerminated := true
	for {
		line, err := reader.ReadString('\n')
		if len(line) > 0 {
			lineNumber++
			lastTerminated = strings.HasSuffix(line, "\n")
			s.parseLine(strings.TrimSpace(line), lineNumber)
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return false, fmt.Errorf("reading corpus: %w", err)
		}
	}
	return !lastTerminated, nil
}

func (s *FileStore) parseLine(line string, lineNumber int) {
	if line == "" || strings.HasPrefix(line, "#") {
		return
	}
	var entry Entry
	if err := json.Unmarshal([]byte(line), &entry); err != nil || entry.Operation == "" {
		log.Warn().Str("path", s.path).Int("line", lineNumber).Msg("Skipping malformed corpus entry")
		return
	}
	s.add(entry)
}

func (s *FileStore) Path() string {
	return s.path
}

func (s *FileStore) Append(entry Entry) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false, errors.New("corpus is closed")
	}
	if _, ok := s.seen[entry]; ok {
		return false, nil
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return false, fmt.Errorf("encoding corpus entry: %w", err)
	}
	// One write per line so concurrent appenders never interleave.
	if _, err := s.file.Write(append(data, '\n')); err != nil {
		return false, fmt.Errorf("appending corpus entry: %w", err)
	}
	s.add(entry)
	return true, nil
}

func (s *FileStore) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	return s.file.Sync()
}

func (s *FileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if err := s.file.Sync(); err != nil {
		s.file.Close()
		return fmt.Errorf("syncing corpus: %w", err)
	}
	return s.file.Close()
}
