package markup

import (
	"fmt"
	"html"
	"path/filepath"
	"strings"

	"github.com/gosimple/slug"
)

// Text renders blocks back to tag text. Chunks are separated by one blank
// line. AttachedImage blocks emit nothing; their tag lives in the paragraph
// that mentions them.
func Text(blocks []Block) string {
	chunks := make([]string, 0, len(blocks))
	for _, blk := range blocks {
		switch b := blk.(type) {
		case Paragraph:
			chunks = append(chunks, b.Text())
		case Title:
			chunks = append(chunks, titleMark+b.Text()+titleMark)
		case BulletList:
			lines := append([]string{listStart}, b.Items...)
			chunks = append(chunks, strings.Join(append(lines, blockEnd), "\n"))
		case ASCII:
			chunks = append(chunks, asciiStart+"\n"+b.Lines+"\n"+blockEnd)
		case AttachedImage:
		default:
			panic(fmt.Sprintf("markup: unknown block %T", blk))
		}
	}
	return strings.Join(chunks, "\n\n")
}

// Anchors assigns an HTML element id to every attached image, in block
// order.
func Anchors(blocks []Block) map[string]string {
	anchors := make(map[string]string)
	n := 0
	for _, blk := range blocks {
		img, ok := blk.(AttachedImage)
		if !ok {
			continue
		}
		if _, seen := anchors[img.Name()]; seen {
			continue
		}
		n++
		id := fmt.Sprintf("img-%d", n)
		if s := slug.Make(stem(img.Name())); s != "" {
			id += "-" + s
		}
		anchors[img.Name()] = id
	}
	return anchors
}

// HTML renders blocks as an HTML fragment, without separators between
// elements. Image tags inside paragraphs become links to the image anchors.
func HTML(blocks []Block) string {
	anchors := Anchors(blocks)
	var b strings.Builder
	for _, blk := range blocks {
		switch v := blk.(type) {
		case Paragraph:
			b.WriteString("<p>")
			b.WriteString(paragraphHTML(v.Text(), anchors))
			b.WriteString("</p>")
		case Title:
			b.WriteString("<h3>" + v.Escaped() + "</h3>")
		case BulletList:
			b.WriteString("<ul>")
			for _, item := range v.Items {
				b.WriteString("<li>" + html.EscapeString(item) + "</li>")
			}
			b.WriteString("</ul>")
		case ASCII:
			b.WriteString("<pre>" + v.Lines + "</pre>")
		case AttachedImage:
			fmt.Fprintf(&b, `<div class="image" id="%s" style="text-align:center"><img src="%s" alt="%s"/><br/><span>%s</span></div>`,
				anchors[v.Name()],
				html.EscapeString(filepath.ToSlash(v.Path)),
				html.EscapeString(v.Title),
				html.EscapeString(v.Title))
		default:
			panic(fmt.Sprintf("markup: unknown block %T", blk))
		}
	}
	return b.String()
}

// ImageIndexHTML renders a list of links to every attached image.
func ImageIndexHTML(blocks []Block) string {
	anchors := Anchors(blocks)
	var b strings.Builder
	b.WriteString("<ul>")
	for _, blk := range blocks {
		if img, ok := blk.(AttachedImage); ok {
			fmt.Fprintf(&b, `<li><a href="#%s">%s</a></li>`, anchors[img.Name()], html.EscapeString(img.Title))
		}
	}
	b.WriteString("</ul>")
	return b.String()
}

func paragraphHTML(text string, anchors map[string]string) string {
	var b strings.Builder
	last := 0
	for _, m := range imgTagRe.FindAllStringSubmatchIndex(text, -1) {
		path, title, ok := tagArgs(text, m)
		if !ok {
			continue
		}
		id, ok := anchors[filepath.Base(path)]
		if !ok {
			continue
		}
		if title == "" {
			title = stem(filepath.Base(path))
		}
		b.WriteString(html.EscapeString(text[last:m[0]]))
		fmt.Fprintf(&b, `<a href="#%s">%s</a>`, id, html.EscapeString(title))
		last = m[1]
	}
	b.WriteString(html.EscapeString(text[last:]))
	return b.String()
}
