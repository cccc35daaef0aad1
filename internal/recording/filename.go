// Package recording parses the object keys of uploaded meeting recordings.
//
// Recordings are expected under Prefix and named like
//
//	recordings/PG 05-06-2024-Jane Doe.mp3
//
// where the date and the trailing speaker name are both optional. Nothing
// here fails on a key that does not follow the convention; missing fields are
// reported through the ok results instead.
package recording

import (
	"errors"
	"path/filepath"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Prefix is the key prefix the bucket notification is scoped to.
const Prefix = "recordings/"

const (
	// MaxJobNameLength is the Transcribe limit on TranscriptionJobName.
	MaxJobNameLength = 200
	jobNamePrefix    = "job_"
)

// ErrNoObjectName is returned for keys with nothing left once the folder and
// extension are stripped.
var ErrNoObjectName = errors.New("key has no object name")

var (
	extensionRe  = regexp.MustCompile(`\.[^/.]+$`)
	jobNameBadRe = regexp.MustCompile(`[^a-zA-Z0-9._-]`)
	dateRe       = regexp.MustCompile(`PG (\d{2}-\d{2}-\d{4})`)
	speakerRe    = regexp.MustCompile(`-\s*([\w\s]+)\s*\.\w+$`)
)

// Fields are the tag values derived from a key.
type Fields struct {
	Date       string
	HasDate    bool
	Speaker    string // formatted, "Jane D."
	HasSpeaker bool
}

// HasPrefix reports whether key lies under the recordings folder.
func HasPrefix(key string) bool {
	return strings.HasPrefix(key, Prefix)
}

// JobName turns a key into a valid Transcribe job name: the base name without
// extension, restricted to [a-zA-Z0-9._-], starting alphanumeric and at most
// MaxJobNameLength long. Keys without a base name (folder markers such as
// "recordings/") return ErrNoObjectName.
func JobName(key string) (string, error) {
	base := key
	if i := strings.LastIndexByte(key, '/'); i >= 0 {
		base = key[i+1:]
	}
	base = extensionRe.ReplaceAllString(base, "")
	if base == "" {
		return "", ErrNoObjectName
	}

	name := jobNameBadRe.ReplaceAllString(base, "_")
	if c := name[0]; !isAlnum(c) {
		name = jobNamePrefix + name
	}
	if len(name) > MaxJobNameLength {
		name = name[:MaxJobNameLength]
	}
	return name, nil
}

func isAlnum(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9'
}

// ExtractDate returns the DD-MM-YYYY date following "PG ". The date is not
// checked against the calendar.
func ExtractDate(key string) (string, bool) {
	m := dateRe.FindStringSubmatch(key)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// ExtractSpeaker returns the raw name in a trailing "- <name>.<ext>".
func ExtractSpeaker(key string) (string, bool) {
	m := speakerRe.FindStringSubmatch(key)
	if m == nil {
		return "", false
	}
	name := strings.TrimSpace(m[1])
	return name, name != ""
}

// FormatName renders "jane doe" as "Jane D." and "jane" as "Jane".
func FormatName(raw string) string {
	first, rest, _ := strings.Cut(raw, " ")
	name := Capitalize(first)

	rest = strings.TrimSpace(rest)
	if rest == "" {
		return name
	}
	r, _ := utf8.DecodeRuneInString(rest)
	return name + " " + string(unicode.ToUpper(r)) + "."
}

// Capitalize upper-cases the first rune and lower-cases the rest.
func Capitalize(s string) string {
	if s == "" {
		return s
	}
	r, size := utf8.DecodeRuneInString(s)
	return string(unicode.ToUpper(r)) + strings.ToLower(s[size:])
}

// Parse extracts the date and the formatted speaker from a key.
func Parse(key string) Fields {
	var f Fields
	f.Date, f.HasDate = ExtractDate(key)
	if raw, ok := ExtractSpeaker(key); ok {
		f.Speaker, f.HasSpeaker = FormatName(raw), true
	}
	return f
}

// ObjectKey is the key an uploaded local file lands under.
func ObjectKey(filename string) string {
	return Prefix + filepath.Base(filename)
}
