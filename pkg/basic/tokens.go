// Package basic converts Commodore 64 BASIC V2 source text to the program
// image the ROM interpreter keeps in memory, and walks such images back into
// listings.
package basic

import "sort"

// DefaultBase is the address the C64 loads BASIC programs to.
const DefaultBase uint16 = 0x0801

// MaxLineNumber is the highest line number the interpreter accepts.
const MaxLineNumber = 63999

// Keyword pairs a BASIC V2 keyword with its token byte.
type Keyword struct {
	Text  string
	Token byte
}

// Keywords is the BASIC V2 token table in token order.
var Keywords = []Keyword{
	{"END", 0x80},
	{"FOR", 0x81},
	{"NEXT", 0x82},
	{"DATA", 0x83},
	{"INPUT#", 0x84},
	{"INPUT", 0x85},
	{"DIM", 0x86},
	{"READ", 0x87},
	{"LET", 0x88},
	{"GOTO", 0x89},
	{"RUN", 0x8A},
	{"IF", 0x8B},
	{"RESTORE", 0x8C},
	{"GOSUB", 0x8D},
	{"RETURN", 0x8E},
	{"REM", 0x8F},
	{"STOP", 0x90},
	{"ON", 0x91},
	{"WAIT", 0x92},
	{"LOAD", 0x93},
	{"SAVE", 0x94},
	{"VERIFY", 0x95},
	{"DEF", 0x96},
	{"POKE", 0x97},
	{"PRINT#", 0x98},
	{"PRINT", 0x99},
	{"CONT", 0x9A},
	{"LIST", 0x9B},
	{"CLR", 0x9C},
	{"CMD", 0x9D},
	{"SYS", 0x9E},
	{"OPEN", 0x9F},
	{"CLOSE", 0xA0},
	{"GET", 0xA1},
	{"NEW", 0xA2},
	{"TAB(", 0xA3},
	{"TO", 0xA4},
	{"FN", 0xA5},
	{"SPC(", 0xA6},
	{"THEN", 0xA7},
	{"NOT", 0xA8},
	{"STEP", 0xA9},
	{"+", 0xAA},
	{"-", 0xAB},
	{"*", 0xAC},
	{"/", 0xAD},
	{"^", 0xAE},
	{"AND", 0xAF},
	{"OR", 0xB0},
	{">", 0xB1},
	{"=", 0xB2},
	{"<", 0xB3},
	{"SGN", 0xB4},
	{"INT", 0xB5},
	{"ABS", 0xB6},
	{"USR", 0xB7},
	{"FRE", 0xB8},
	{"POS", 0xB9},
	{"SQR", 0xBA},
	{"RND", 0xBB},
	{"LOG", 0xBC},
	{"EXP", 0xBD},
	{"COS", 0xBE},
	{"SIN", 0xBF},
	{"TAN", 0xC0},
	{"ATN", 0xC1},
	{"PEEK", 0xC2},
	{"LEN", 0xC3},
	{"STR$", 0xC4},
	{"VAL", 0xC5},
	{"ASC", 0xC6},
	{"CHR$", 0xC7},
	{"LEFT$", 0xC8},
	{"RIGHT$", 0xC9},
	{"MID$", 0xCA},
	{"GO", 0xCB},
}

const (
	tokenData = 0x83
	tokenRem  = 0x8F
)

var (
	// longestFirst holds Keywords ordered for longest-match scanning.
	longestFirst []Keyword
	tokenText    [256]string
)

func init() {
	longestFirst = append([]Keyword(nil), Keywords...)
	sort.SliceStable(longestFirst, func(i, j int) bool {
		return len(longestFirst[i].Text) > len(longestFirst[j].Text)
	})
	for _, kw := range Keywords {
		tokenText[kw.Token] = kw.Text
	}
}

// TokenFor returns the token byte of an exact keyword.
func TokenFor(keyword string) (byte, bool) {
	for _, kw := range Keywords {
		if kw.Text == keyword {
			return kw.Token, true
		}
	}
	return 0, false
}

// KeywordFor returns the keyword text of a token byte.
func KeywordFor(token byte) (string, bool) {
	s := tokenText[token]
	return s, s != ""
}

// matchKeyword returns the longest keyword that prefixes s.
func matchKeyword(s string) (Keyword, bool) {
	for _, kw := range longestFirst {
		if len(s) >= len(kw.Text) && s[:len(kw.Text)] == kw.Text {
			return kw, true
		}
	}
	return Keyword{}, false
}
