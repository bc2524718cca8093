package markup

import (
	"fmt"
	"strings"
)

// Tagged-string prefixes used by Encode and Decode.
const (
	prefixParagraph  = "Paragraph:"
	prefixTitle      = "Title:"
	prefixASCII      = "ASCII:"
	prefixBulletList = "BulletList:"

	itemSep = "<>"
)

// Encode converts blocks to the tagged strings stored in description.json.
// AttachedImage blocks are not encoded; they are re-derived from the
// paragraph tags on load.
//
// BulletList items are joined with "<>", so an item containing that
// sequence splits into two on Decode.
func Encode(blocks []Block) []string {
	out := make([]string, 0, len(blocks))
	for _, blk := range blocks {
		switch b := blk.(type) {
		case Paragraph:
			out = append(out, prefixParagraph+b.escaped)
		case Title:
			out = append(out, prefixTitle+b.escaped)
		case ASCII:
			out = append(out, prefixASCII+b.Lines)
		case BulletList:
			out = append(out, prefixBulletList+strings.Join(b.Items, itemSep))
		}
	}
	return out
}

// Decode is the inverse of Encode.
func Decode(entries []string) ([]Block, error) {
	blocks := make([]Block, 0, len(entries))
	for i, e := range entries {
		switch {
		case strings.HasPrefix(e, prefixParagraph):
			blocks = append(blocks, Paragraph{escaped: e[len(prefixParagraph):]})
		case strings.HasPrefix(e, prefixTitle):
			blocks = append(blocks, Title{escaped: e[len(prefixTitle):]})
		case strings.HasPrefix(e, prefixASCII):
			blocks = append(blocks, ASCII{Lines: e[len(prefixASCII):]})
		case strings.HasPrefix(e, prefixBulletList):
			rest := e[len(prefixBulletList):]
			items := []string{}
			if rest != "" {
				items = strings.Split(rest, itemSep)
			}
			blocks = append(blocks, BulletList{Items: items})
		default:
			return nil, fmt.Errorf("markup: decode entry %d: unknown block tag in %q", i, e)
		}
	}
	return blocks, nil
}
