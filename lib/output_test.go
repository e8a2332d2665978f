package lib

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type mockRow struct {
	Name    string `json:"name" yaml:"name"`
	Content string `json:"content" yaml:"content"`
}

func (m mockRow) String() string {
	return m.Name
}

func (m mockRow) Pretty() string {
	return fmt.Sprintf("Name: %s | Content: %s", m.Name, m.Content)
}

func (m mockRow) TableHeaders() []string {
	return []string{"Name", "Content"}
}

func (m mockRow) TableRow() []string {
	return []string{m.Name, m.Content}
}

func TestFormatOutput(t *testing.T) {
	data := []mockRow{{Name: "Test", Content: "Sample Content"}, {Name: "Other", Content: "More"}}

	tests := []struct {
		format FormatType
		output string
		hasErr bool
	}{
		{Text, "Test\nOther", false},
		{Pretty, "Name: Test | Content: Sample Content\nName: Other | Content: More", false},
		{JSON, "[\n  {\n    \"name\": \"Test\",\n    \"content\": \"Sample Content\"\n  },\n  {\n    \"name\": \"Other\",\n    \"content\": \"More\"\n  }\n]", false},
		{FormatType("unknown"), "", true},
	}

	for _, tt := range tests {
		result, err := FormatOutput(data, tt.format)
		if (err != nil) != tt.hasErr {
			t.Errorf("%s: expected error %v, got %v", tt.format, tt.hasErr, err)
		}
		if result != tt.output {
			t.Errorf("%s: expected output %q, got %q", tt.format, tt.output, result)
		}
	}
}

func TestFormatOutputYAML(t *testing.T) {
	result, err := FormatOutput([]mockRow{{Name: "Test", Content: "Sample Content"}}, YAML)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(result, "name: Test") || !strings.Contains(result, "content: Sample Content") {
		t.Errorf("unexpected yaml %q", result)
	}
}

func TestFormatOutputTable(t *testing.T) {
	data := []mockRow{{Name: "GET /widgets/{id}", Content: "a long cell that must not be wrapped at all"}}
	result, err := FormatOutput(data, Table)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, want := range []string{"NAME", "CONTENT", "GET /widgets/{id}", "a long cell that must not be wrapped at all"} {
		if !strings.Contains(result, want) {
			t.Errorf("expected table to contain %q, got:\n%s", want, result)
		}
	}
}

func TestFormatSingleOutput(t *testing.T) {
	result, err := FormatSingleOutput(mockRow{Name: "Test", Content: "x"}, Text)
	if err != nil || result != "Test" {
		t.Errorf("unexpected result %q, %v", result, err)
	}
}

func TestFormatOutputToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.json")
	if err := FormatOutputToFile([]mockRow{{Name: "Test"}}, JSON, path); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"name": "Test"`) {
		t.Errorf("unexpected file content %s", data)
	}
}

func TestParseFormatType(t *testing.T) {
	for _, in := range []string{"pretty", "TEXT", "json", "Yaml", "table"} {
		if _, err := ParseFormatType(in); err != nil {
			t.Errorf("unexpected error for %q: %v", in, err)
		}
	}
	if _, err := ParseFormatType("xml"); err == nil {
		t.Error("expected an error for xml")
	}
}

func TestSlugifyAndHash(t *testing.T) {
	if got := Slugify("/widgets/{id}"); got != "widgets-id" {
		t.Errorf("unexpected slug %q", got)
	}
	if got := Slugify("/"); got != "" {
		t.Errorf("unexpected slug for root %q", got)
	}
	// sha256 of the empty input
	if got := HashBytes(nil); got != "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855" {
		t.Errorf("unexpected hash %q", got)
	}
}
