package theme

import (
	"strings"

	"lattice/internal/infra/env"
)

// SymbolSet is one complete set of UI glyphs.
type SymbolSet struct {
	Success  string
	Error    string
	Warning  string
	Spinner  string
	ArrowR   string
	Bullet   string
	Ellipsis string
	User     string
}

var unicodeSymbols = SymbolSet{
	Success:  "✓",
	Error:    "✗",
	Warning:  "⚠",
	Spinner:  "⏳",
	ArrowR:   "→",
	Bullet:   "•",
	Ellipsis: "…",
	User:     "You",
}

var asciiSymbols = SymbolSet{
	Success:  "[OK]",
	Error:    "[ERR]",
	Warning:  "[!]",
	Spinner:  "[...]",
	ArrowR:   "->",
	Bullet:   "*",
	Ellipsis: "...",
	User:     "You",
}

// DetectUnicodeSupport reports whether the terminal likely renders Unicode.
// LATTICE_ASCII_SYMBOLS forces ASCII; otherwise a UTF-8 locale or no locale
// at all means yes.
func DetectUnicodeSupport() bool {
	if env.Bool("LATTICE_ASCII_SYMBOLS", false) {
		return false
	}
	for _, key := range []string{"LC_ALL", "LC_CTYPE", "LANG"} {
		val, ok := env.Read(key)
		if !ok {
			continue
		}
		val = strings.ToLower(val)
		if strings.Contains(val, "utf-8") || strings.Contains(val, "utf8") {
			return true
		}
		if val == "c" || val == "posix" {
			return false
		}
	}
	return true
}

// InitSymbols sets the Symbol* variables from the detected terminal support.
func InitSymbols() {
	set := unicodeSymbols
	if !DetectUnicodeSupport() {
		set = asciiSymbols
	}
	SymbolSuccess = set.Success
	SymbolError = set.Error
	SymbolWarning = set.Warning
	SymbolSpinner = set.Spinner
	SymbolArrowR = set.ArrowR
	SymbolBullet = set.Bullet
	SymbolEllipsis = set.Ellipsis
	SymbolUser = set.User
}

func init() {
	InitSymbols()
}
