// Package markup implements the description markup: a line-based tag
// language with titles, bullet lists, ASCII blocks and image references.
//
// A description is parsed into an ordered sequence of blocks and can be
// rendered back to tag text (Text), to HTML (HTML) or to the tagged-string
// form persisted in description.json (Encode).
package markup

import (
	"html"
	"path/filepath"
	"strings"
)

// Kind identifies a block type.
type Kind int

const (
	KindParagraph Kind = iota
	KindTitle
	KindBulletList
	KindASCII
	KindAttachedImage
)

func (k Kind) String() string {
	switch k {
	case KindParagraph:
		return "Paragraph"
	case KindTitle:
		return "Title"
	case KindBulletList:
		return "BulletList"
	case KindASCII:
		return "ASCII"
	case KindAttachedImage:
		return "AttachedImage"
	}
	return "Unknown"
}

// Block is one structural unit of a description. The set of
// implementations is closed: Paragraph, Title, BulletList, ASCII and
// AttachedImage.
type Block interface {
	Kind() Kind
	block()
}

// Paragraph is escaped prose. Image tags inside it are kept in their
// canonical form.
type Paragraph struct {
	escaped string
}

// NewParagraph escapes text and wraps it in a Paragraph.
func NewParagraph(text string) Paragraph {
	return Paragraph{escaped: html.EscapeString(text)}
}

// Text returns the unescaped paragraph text.
func (p Paragraph) Text() string { return html.UnescapeString(p.escaped) }

// Escaped returns the stored, HTML-escaped text.
func (p Paragraph) Escaped() string { return p.escaped }

func (Paragraph) Kind() Kind { return KindParagraph }
func (Paragraph) block()     {}

// Title is a section heading.
type Title struct {
	escaped string
}

// NewTitle escapes text and wraps it in a Title.
func NewTitle(text string) Title {
	return Title{escaped: html.EscapeString(text)}
}

// Text returns the unescaped heading.
func (t Title) Text() string { return html.UnescapeString(t.escaped) }

// Escaped returns the stored, HTML-escaped heading.
func (t Title) Escaped() string { return t.escaped }

func (Title) Kind() Kind { return KindTitle }
func (Title) block()     {}

// BulletList is an unordered list of one-line items.
type BulletList struct {
	Items []string
}

func (BulletList) Kind() Kind { return KindBulletList }
func (BulletList) block()     {}

// ASCII is a preformatted block kept verbatim.
type ASCII struct {
	Lines string
}

func (ASCII) Kind() Kind { return KindASCII }
func (ASCII) block()     {}

// AttachedImage references an image file shown inside the description.
type AttachedImage struct {
	Path  string
	Title string
}

// NewAttachedImage builds an AttachedImage, defaulting the title to the
// file stem.
func NewAttachedImage(path, title string) AttachedImage {
	if title == "" {
		title = stem(filepath.Base(path))
	}
	return AttachedImage{Path: path, Title: title}
}

// Name returns the file name the image is keyed by.
func (a AttachedImage) Name() string { return filepath.Base(a.Path) }

func (AttachedImage) Kind() Kind { return KindAttachedImage }
func (AttachedImage) block()     {}

// Clone returns a deep copy of blocks.
func Clone(blocks []Block) []Block {
	if blocks == nil {
		return nil
	}
	out := make([]Block, len(blocks))
	for i, b := range blocks {
		if l, ok := b.(BulletList); ok {
			l.Items = append([]string(nil), l.Items...)
			b = l
		}
		out[i] = b
	}
	return out
}

func stem(name string) string {
	return strings.TrimSuffix(name, filepath.Ext(name))
}
