package markup

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"unicode"

	"github.com/starford/lexicon/internal/apperr"
)

const (
	listStart  = "##LIST##"
	asciiStart = "##ASCII##"
	blockEnd   = "##END##"
	titleMark  = "##"
)

// imgTagRe matches a well-formed image tag, whose quoted arguments may hold
// parentheses, and otherwise anything up to the first ")" so that broken
// tags can be reported.
var imgTagRe = regexp.MustCompile(`#img\((?:\s*"([^"]*)"\s*(?:,\s*"([^"]*)"\s*)?\)|[^)]*\))`)

// Context carries what the parser needs to resolve image references.
type Context struct {
	// Dir is the term directory bare file names are resolved against.
	Dir string
	// Known maps file names to images registered by an earlier parse of the
	// same description. A bare name found here resolves to the known path,
	// which keeps images that are not yet copied into Dir attached.
	Known map[string]AttachedImage
}

// Result is the output of Parse.
type Result struct {
	Blocks []Block
	// Images holds every attached image keyed by file name.
	Images map[string]AttachedImage
	// Skipped lists the image tags that were left untouched, one
	// apperr.ErrMalformedTag wrapped error per occurrence.
	Skipped []error
}

type parseState int

const (
	stateText parseState = iota
	stateList
	stateASCII
)

type parser struct {
	ctx     Context
	blocks  []Block
	images  map[string]AttachedImage
	skipped []error
}

// Parse converts tag text into blocks.
//
// Chunks are separated by blank lines. A chunk wrapped in ## on both ends is
// a Title. ##LIST## ... ##END## is a BulletList, ##ASCII## ... ##END## an
// ASCII block (a closing ##ASCII## line is accepted too). Everything else is
// a Paragraph, in which #img("path"[,"title"]) tags are resolved and
// rewritten to #img("name","title").
func Parse(text string, ctx Context) Result {
	p := &parser{ctx: ctx, images: make(map[string]AttachedImage)}

	var (
		state = stateText
		chunk []string
		items []string
		art   []string
	)
	flush := func() {
		if len(chunk) > 0 {
			p.chunk(strings.Join(chunk, "\n"))
			chunk = nil
		}
	}

	for _, line := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n") {
		marker := strings.TrimSpace(line)
		switch state {
		case stateList:
			switch {
			case marker == blockEnd:
				p.blocks = append(p.blocks, BulletList{Items: items})
				items = nil
				state = stateText
			case marker != "":
				items = append(items, strings.TrimRightFunc(line, unicode.IsSpace))
			}
		case stateASCII:
			if marker == blockEnd || marker == asciiStart {
				p.blocks = append(p.blocks, ASCII{Lines: strings.Join(art, "\n")})
				art = nil
				state = stateText
				continue
			}
			art = append(art, line)
		default:
			switch {
			case marker == listStart:
				flush()
				items = []string{}
				state = stateList
			case marker == asciiStart:
				flush()
				state = stateASCII
			case marker == "":
				flush()
			default:
				chunk = append(chunk, line)
			}
		}
	}

	// Unterminated blocks run to the end of the text.
	switch state {
	case stateList:
		p.blocks = append(p.blocks, BulletList{Items: items})
	case stateASCII:
		p.blocks = append(p.blocks, ASCII{Lines: strings.Join(art, "\n")})
	}
	flush()

	return Result{Blocks: p.blocks, Images: p.images, Skipped: p.skipped}
}

func (p *parser) chunk(text string) {
	if len(text) >= 2*len(titleMark) && strings.HasPrefix(text, titleMark) && strings.HasSuffix(text, titleMark) {
		p.blocks = append(p.blocks, NewTitle(text[len(titleMark):len(text)-len(titleMark)]))
		return
	}
	p.paragraph(text)
}

func (p *parser) paragraph(text string) {
	var b strings.Builder
	last := 0
	for _, m := range imgTagRe.FindAllStringSubmatchIndex(text, -1) {
		b.WriteString(text[last:m[0]])
		last = m[1]
		tag := text[m[0]:m[1]]

		img, err := p.resolve(tagArgs(text, m))
		if err != nil {
			p.skip(tag, err)
			b.WriteString(tag)
			continue
		}
		name := img.Name()
		if _, ok := p.images[name]; !ok {
			p.images[name] = img
			p.blocks = append(p.blocks, img)
		}
		b.WriteString(canonicalTag(name, img.Title))
	}
	b.WriteString(text[last:])
	p.blocks = append(p.blocks, NewParagraph(b.String()))
}

func (p *parser) resolve(path, title string, ok bool) (AttachedImage, error) {
	if !ok {
		return AttachedImage{}, fmt.Errorf("%w: no quoted path", apperr.ErrMalformedTag)
	}
	if filepath.Base(path) == path {
		if known, ok := p.ctx.Known[path]; ok {
			path = known.Path
		} else {
			path = filepath.Join(p.ctx.Dir, path)
		}
	}
	if _, err := os.Stat(path); err != nil {
		return AttachedImage{}, fmt.Errorf("%w: %s: %v", apperr.ErrMalformedTag, path, err)
	}
	return NewAttachedImage(path, title), nil
}

func (p *parser) skip(tag string, err error) {
	slog.Warn("markup: skipping image tag", slog.String("tag", tag), slog.String("error", err.Error()))
	p.skipped = append(p.skipped, fmt.Errorf("%s: %w", tag, err))
}

// tagArgs returns the path and title of the tag matched by m, a submatch
// index from imgTagRe. ok is false for a tag without a quoted path.
func tagArgs(text string, m []int) (path, title string, ok bool) {
	if m[2] < 0 {
		return "", "", false
	}
	path = text[m[2]:m[3]]
	if m[4] >= 0 {
		title = text[m[4]:m[5]]
	}
	return path, title, strings.TrimSpace(path) != ""
}

func canonicalTag(name, title string) string {
	return fmt.Sprintf(`#img("%s","%s")`, name, title)
}
