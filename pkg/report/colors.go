package report

import (
	"html"
	"strings"
)

// Minecraft formatting codes appear in server responses as § followed by
// one code character. The text renderer strips them; the HTML renderer
// turns color codes into styled spans.

var colorHex = map[byte]string{
	'0': "#000000", '1': "#0000aa", '2': "#00aa00", '3': "#00aaaa",
	'4': "#aa0000", '5': "#aa00aa", '6': "#ffaa00", '7': "#aaaaaa",
	'8': "#555555", '9': "#5555ff", 'a': "#55ff55", 'b': "#55ffff",
	'c': "#ff5555", 'd': "#ff55ff", 'e': "#ffff55", 'f': "#ffffff",
}

// StripColorCodes removes every §-code from s.
func StripColorCodes(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	runes := []rune(s)
	for i := 0; i < len(runes); i++ {
		if runes[i] == '§' && i+1 < len(runes) {
			i++
			continue
		}
		b.WriteRune(runes[i])
	}
	return b.String()
}

// ColorCodesToHTML converts §-codes to nested spans. The input is
// escaped; the output is safe to inject as HTML.
func ColorCodesToHTML(s string) string {
	var b strings.Builder
	openSpans := 0
	runes := []rune(s)
	plain := func(from, to int) {
		b.WriteString(html.EscapeString(string(runes[from:to])))
	}
	start := 0
	for i := 0; i < len(runes); i++ {
		if runes[i] != '§' || i+1 >= len(runes) {
			continue
		}
		plain(start, i)
		code := byte(strings.ToLower(string(runes[i+1]))[0])
		switch {
		case colorHex[code] != "":
			b.WriteString(`<span style="color:` + colorHex[code] + `">`)
			openSpans++
		case code == 'l':
			b.WriteString(`<span style="font-weight:bold">`)
			openSpans++
		case code == 'o':
			b.WriteString(`<span style="font-style:italic">`)
			openSpans++
		case code == 'n':
			b.WriteString(`<span style="text-decoration:underline">`)
			openSpans++
		case code == 'r':
			for ; openSpans > 0; openSpans-- {
				b.WriteString(`</span>`)
			}
		}
		i++
		start = i + 1
	}
	plain(start, len(runes))
	for ; openSpans > 0; openSpans-- {
		b.WriteString(`</span>`)
	}
	return b.String()
}
