package term

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/starford/lexicon/internal/apperr"
	"github.com/starford/lexicon/internal/markup"
	"github.com/starford/lexicon/internal/storage"
)

// Description is the rich-text body of a term: an ordered sequence of
// markup blocks plus the images those blocks reference.
type Description struct {
	dir    string // absolute term directory, empty for an unsaved term
	blocks []markup.Block
	images map[string]markup.AttachedImage
}

// NewDescription returns an empty description whose bare image names
// resolve against dir.
func NewDescription(dir string) *Description {
	return &Description{dir: dir, images: make(map[string]markup.AttachedImage)}
}

// Text returns the description as tag text.
func (d *Description) Text() string {
	return markup.Text(d.blocks)
}

// SetText replaces the whole content by parsing text. The returned errors
// describe image tags that were skipped.
func (d *Description) SetText(text string) []error {
	return d.setText(text, nil)
}

// setText is SetText with linked, a map of file name to absolute path,
// as a further source for bare image names.
func (d *Description) setText(text string, linked map[string]string) []error {
	known := make(map[string]markup.AttachedImage, len(d.images)+len(linked))
	for name, path := range linked {
		known[name] = markup.NewAttachedImage(path, "")
	}
	for name, img := range d.images {
		known[name] = img
	}
	res := markup.Parse(text, markup.Context{Dir: d.dir, Known: known})
	d.blocks = res.Blocks
	d.images = res.Images
	return res.Skipped
}

// HTML renders the description.
func (d *Description) HTML() string {
	return markup.HTML(d.blocks)
}

// Blocks returns a copy of the content blocks.
func (d *Description) Blocks() []markup.Block {
	return markup.Clone(d.blocks)
}

// AttachedImages returns the images keyed by file name.
func (d *Description) AttachedImages() map[string]markup.AttachedImage {
	out := make(map[string]markup.AttachedImage, len(d.images))
	for k, v := range d.images {
		out[k] = v
	}
	return out
}

// AddedImagePaths returns the path of every attached image in block order.
func (d *Description) AddedImagePaths() []string {
	var paths []string
	for _, b := range d.blocks {
		if img, ok := b.(markup.AttachedImage); ok {
			paths = append(paths, img.Path)
		}
	}
	return paths
}

// LoadDescription reads dir/description.json from store.
func LoadDescription(store storage.Provider, dir string) (*Description, error) {
	data, err := store.Read(filepath.Join(dir, DescriptionFile))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", apperr.ErrNotFound, filepath.Join(dir, DescriptionFile))
		}
		return nil, err
	}
	var entries []string
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("term: decode %s: %w", DescriptionFile, err)
	}
	blocks, err := markup.Decode(entries)
	if err != nil {
		return nil, err
	}
	abs, err := store.Abs(dir)
	if err != nil {
		return nil, err
	}

	// Images are not persisted; a round trip through the parser re-derives
	// them from the paragraph tags.
	d := NewDescription(abs)
	d.SetText(markup.Text(blocks))
	return d, nil
}

// Save writes the content to dir/description.json. Image blocks are left out.
func (d *Description) Save(store storage.Provider, dir string) error {
	data, err := json.MarshalIndent(markup.Encode(d.blocks), "", "  ")
	if err != nil {
		return fmt.Errorf("term: encode %s: %w", DescriptionFile, err)
	}
	return store.Write(filepath.Join(dir, DescriptionFile), data)
}

// Delete removes dir/description.json. Referenced images are left alone.
func (d *Description) Delete(store storage.Provider, dir string) error {
	err := store.Delete(filepath.Join(dir, DescriptionFile))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func (d *Description) clone() *Description {
	return &Description{dir: d.dir, blocks: markup.Clone(d.blocks), images: d.AttachedImages()}
}

// rebase points the description at a new term directory. Images already
// present there are re-pointed to their copy.
func (d *Description) rebase(dir string) {
	d.dir = dir
	moved := func(img markup.AttachedImage) markup.AttachedImage {
		candidate := filepath.Join(dir, img.Name())
		if _, err := os.Stat(candidate); err == nil {
			img.Path = candidate
		}
		return img
	}
	for i, b := range d.blocks {
		if img, ok := b.(markup.AttachedImage); ok {
			d.blocks[i] = moved(img)
		}
	}
	for name, img := range d.images {
		d.images[name] = moved(img)
	}
}
