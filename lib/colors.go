package lib

// ANSI color codes used by the pretty output format
const (
	ResetColor = "\033[0m"

	Red    = "\033[31m"
	Green  = "\033[32m"
	Yellow = "\033[33m"
	Blue   = "\033[34m"
)

// Colorize wraps the text with the specified color and resets the color after.
func Colorize(text, color string) string {
	return color + text + ResetColor
}

// CountColor is green for zero, yellow when only warn is set and red when
// bad is set.
func CountColor(bad, warn bool) string {
	switch {
	case bad:
		return Red
	case warn:
		return Yellow
	default:
		return Green
	}
}
