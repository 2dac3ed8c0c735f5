package textutil

import (
	"regexp"
	"strings"
)

var whitespaceRegex = regexp.MustCompile(`\s+`)
var innerWhitespace = regexp.MustCompile(`\s\s+`)

func NormalizeName(name string) string {
	name = strings.ToLower(name)
	name = strings.Trim(name, " \n\t")
	name = whitespaceRegex.ReplaceAllString(name, "")
	return name
}

// collapses newlines and repeated whitespace into single spaces
func CollapseWhitespace(s string) string {
	s = strings.ReplaceAll(s, "\r\n", " ")
	s = strings.ReplaceAll(s, "\r", " ")
	s = strings.ReplaceAll(s, "\n", " ")
	s = innerWhitespace.ReplaceAllString(s, " ")
	return strings.Trim(s, " \t")
}

var slugReplacer = strings.NewReplacer(
	" ", "-",
	"å", "a",
	"ä", "a",
	"ö", "o",
)

// derives a url slug from a school display name the way the menu
// provider expects it: lowercased, spaces hyphenated, swedish vowels
// transliterated
func SchoolSlug(name string) string {
	return slugReplacer.Replace(strings.ToLower(name))
}

// splits a full name on the first space into first/last name, the last
// name is empty when there is no space
func SplitName(full string) (string, string) {
	i := strings.Index(full, " ")
	if i < 0 {
		return full, ""
	}
	return full[:i], full[i+1:]
}
