package segment

import (
	"path"
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// UnknownStudent is used when a filename yields no usable name.
const UnknownStudent = "Unknown Student"

var separatorRun = regexp.MustCompile(`[_\-]+`)

// StudentName derives a display name from an answer sheet filename:
// "john_smith.pdf" becomes "John Smith".
func StudentName(filename string) string {
	name := path.Base(strings.ReplaceAll(filename, `\`, "/"))
	if i := strings.LastIndex(name, "."); i >= 0 {
		name = name[:i]
	}
	name = separatorRun.ReplaceAllString(name, " ")

	words := strings.Fields(name)
	if len(words) == 0 {
		return UnknownStudent
	}
	// Casers keep state, so each call gets its own.
	caser := cases.Title(language.Und)
	for i, w := range words {
		words[i] = caser.String(w)
	}
	return strings.Join(words, " ")
}
