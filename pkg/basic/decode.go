package basic

import (
	"fmt"
	"strings"

	"github.com/antibyte/c64mcp/pkg/petscii"
)

// Listing is a decoded program image.
type Listing struct {
	Base  uint16
	End   uint16 // address just past the 0x00 0x00 end marker
	Lines []Line
}

// String renders the listing the way LIST prints it.
func (l *Listing) String() string {
	var sb strings.Builder
	for _, ln := range l.Lines {
		fmt.Fprintf(&sb, "%d %s\n", ln.Number, ln.Text)
	}
	return sb.String()
}

// Decode follows the link chain of a program image that was loaded at base.
// A zero link ends the program. Links must move forward, stay inside data and
// land directly after the previous line's terminator.
func Decode(data []byte, base uint16) (*Listing, error) {
	listing := &Listing{Base: base}
	pos := 0
	addr := int(base)

	for {
		if pos+2 > len(data) {
			return nil, chainError(addr, "link pointer beyond end of data")
		}
		link := int(data[pos]) | int(data[pos+1])<<8
		if link == 0 {
			listing.End = uint16(addr + 2)
			return listing, nil
		}
		// a line needs at least link, number and terminator
		if link < addr+5 {
			return nil, chainError(addr, "link $%04X does not move forward", link)
		}
		next := link - int(base)
		if next+2 > len(data) {
			return nil, chainError(addr, "link $%04X points outside the image", link)
		}

		number := uint16(data[pos+2]) | uint16(data[pos+3])<<8
		term := pos + 4
		for term < next && data[term] != 0x00 {
			term++
		}
		if term != next-1 {
			return nil, chainError(addr, "line %d terminator does not precede link $%04X", number, link)
		}

		listing.Lines = append(listing.Lines, Line{Number: number, Text: Detokenize(data[pos+4 : term])})
		pos = next
		addr = link
	}
}

// listingRunes are the PETSCII codes the C64 shows as non-ASCII symbols
var listingRunes = map[byte]rune{
	0x5C: '£',
	0x5E: '↑',
	0x5F: '←',
}

// Detokenize expands the content bytes of one line back to source text.
func Detokenize(content []byte) string {
	var sb strings.Builder
	inQuote, inRem := false, false
	for _, b := range content {
		switch {
		case b == '"':
			inQuote = !inQuote
			sb.WriteByte('"')
		case b == petscii.Pi:
			sb.WriteRune('π')
		case listingRunes[b] != 0:
			sb.WriteRune(listingRunes[b])
		case b >= 0x20 && b <= 0x5F:
			sb.WriteByte(b)
		case b >= 0x80 && !inQuote && !inRem:
			if kw, ok := KeywordFor(b); ok {
				sb.WriteString(kw)
				if b == tokenRem {
					inRem = true
				}
				continue
			}
			sb.WriteString(petscii.Placeholder(b))
		default:
			sb.WriteString(petscii.Placeholder(b))
		}
	}
	return sb.String()
}
