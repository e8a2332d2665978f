package fuzz

import (
	"encoding/base64"
	"fmt"
	"net/netip"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pyneda/apifuzz/pkg/api/core"
)

const (
	wordAlphabet   = "abcdefghijklmnopqrstuvwxyz"
	stringAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789-_. "
	// Strings never exceed this, whatever maxLength the schema declares.
	hardStringLimit = 64 * 1024
	// Upper bound of random timestamps, 2100-01-01.
	maxTimestamp = 4102444800
)

// exoticStrings probe encoding, escaping and injection handling.
var exoticStrings = []string{
	"\x00",
	"\x00null",
	"null",
	"undefined",
	"\r\n",
	"\t\b\f\v",
	"\u202eevil",
	"\ufeffbom",
	"ÄÖÜßéèà",
	"日本語テキスト",
	"😀🔥💯",
	strings.Repeat("\u0301", 64),
	"\xff\xfe",
	"' OR '1'='1",
	"\"; DROP TABLE users; --",
	"<script>alert(1)</script>",
	"../../../../etc/passwd",
	"%s%s%s%n",
	"${jndi:ldap://localhost/a}",
	"{{7*7}}",
	"-1",
	"0",
	"NaN",
	"Infinity",
	"true",
	"[]",
	"{}",
	"9999999999999999999999999999999999999999",
}

func (g *Generator) str(s *core.Schema, src *Source) string {
	b := g.opts.Bias
	c := s.Constraints

	r := src.Float64()
	threshold := b.EmptyString
	if r < threshold {
		return ""
	}
	threshold += b.MaxLength
	if r < threshold {
		return g.longString(c, src)
	}
	threshold += b.Exotic
	if r < threshold {
		return exoticStrings[src.Intn(len(exoticStrings))]
	}
	threshold += b.FormatViolate
	if r < threshold {
		return formatViolation(c)
	}
	threshold += b.HonorFormat
	if r < threshold {
		if v, ok := formatted(c.Format, src); ok {
			return v
		}
		if c.Pattern != "" {
			if v, ok := s.Default.(string); ok {
				return v
			}
			if v, ok := s.Example.(string); ok {
				return v
			}
		}
	}
	return g.randomString(c, src)
}

func (g *Generator) longString(c core.Constraints, src *Source) string {
	n := g.opts.MaxStringLength
	if c.MaxLength != nil && src.Chance(0.5) {
		n = *c.MaxLength + 1
	}
	if n > hardStringLimit {
		n = hardStringLimit
	}
	return strings.Repeat(string(stringAlphabet[src.Intn(52)]), n)
}

func (g *Generator) randomString(c core.Constraints, src *Source) string {
	lo, hi := 0, 32
	if c.MinLength != nil {
		lo = *c.MinLength
	}
	if c.MaxLength != nil {
		hi = *c.MaxLength
	} else if hi < lo {
		hi = lo + 32
	}
	if hi > g.opts.MaxStringLength {
		hi = g.opts.MaxStringLength
	}
	if lo > hi {
		lo = hi
	}

	n := src.Between(lo, hi)
	if src.Chance(g.opts.Bias.Boundary) {
		if lo > 0 && src.Chance(0.5) {
			n = lo - 1
		} else if c.MaxLength != nil {
			n = hi + 1
		}
	}

	var sb strings.Builder
	sb.Grow(n)
	for i := 0; i < n; i++ {
		sb.WriteByte(stringAlphabet[src.Intn(len(stringAlphabet))])
	}
	return sb.String()
}

func randomWord(src *Source, minLen, maxLen int) string {
	n := src.Between(minLen, maxLen)
	var sb strings.Builder
	sb.Grow(n)
	for i := 0; i < n; i++ {
		sb.WriteByte(wordAlphabet[src.Intn(len(wordAlphabet))])
	}
	return sb.String()
}

// formatted returns a value that honors format, when the format is known.
func formatted(format string, src *Source) (string, bool) {
	switch format {
	case "uuid":
		id, err := uuid.NewRandomFromReader(src)
		if err != nil {
			return "", false
		}
		return id.String(), true
	case "date-time":
		return time.Unix(int64(src.Intn(maxTimestamp)), 0).UTC().Format(time.RFC3339), true
	case "date":
		return time.Unix(int64(src.Intn(maxTimestamp)), 0).UTC().Format(time.DateOnly), true
	case "time":
		return time.Unix(int64(src.Intn(86400)), 0).UTC().Format("15:04:05Z"), true
	case "email":
		return randomWord(src, 1, 12) + "@" + randomWord(src, 1, 12) + ".com", true
	case "uri", "url":
		return "https://" + randomWord(src, 1, 12) + ".example.com/" + randomWord(src, 0, 12), true
	case "hostname":
		return randomWord(src, 1, 12) + ".example.com", true
	case "ipv4":
		return fmt.Sprintf("%d.%d.%d.%d", src.Intn(256), src.Intn(256), src.Intn(256), src.Intn(256)), true
	case "ipv6":
		var raw [16]byte
		_, _ = src.Read(raw[:])
		return netip.AddrFrom16(raw).String(), true
	case "byte":
		raw := make([]byte, src.Intn(48))
		_, _ = src.Read(raw)
		return base64.StdEncoding.EncodeToString(raw), true
	case "password":
		return randomWord(src, 8, 24), true
	}
	return "", false
}

// formatViolation returns a value that breaks the declared format or
// pattern.
func formatViolation(c core.Constraints) string {
	switch c.Format {
	case "email":
		return "not-an-email"
	case "uri", "url":
		return "not-a-valid-url"
	case "uuid":
		return "not-a-uuid"
	case "date", "date-time", "time":
		return "not-a-date"
	case "ipv4":
		return "999.999.999.999"
	case "ipv6":
		return "gggg::1"
	case "byte":
		return "!!not-base64!!"
	}
	return "INVALID_PATTERN_VALUE_12345!@#$%"
}

// mismatchedValue returns a value of the wrong JSON type for kind.
func mismatchedValue(kind core.SchemaKind, src *Source) (any, bool) {
	var candidates []any
	switch kind {
	case core.SchemaKindInteger:
		candidates = []any{"not_a_number", 3.14159, "9999999999999999999999999999"}
	case core.SchemaKindNumber:
		candidates = []any{"not_a_number", "NaN", "Infinity"}
	case core.SchemaKindBoolean:
		candidates = []any{"not_a_boolean", int64(2), "true"}
	case core.SchemaKindString:
		candidates = []any{int64(12345), true, []any{"array", "value"}, map[string]any{"key": "value"}}
	case core.SchemaKindArray:
		candidates = []any{"not_an_array", map[string]any{}}
	case core.SchemaKindObject:
		candidates = []any{"not_an_object", []any{}}
	default:
		return nil, false
	}
	return candidates[src.Intn(len(candidates))], true
}
