// Package collection manages the ordered set of images in one session and
// the bitmaps derived from them.
//
// Insertion order is load-bearing: it is the tile order of the printed
// sheet. A Collection is not safe for concurrent use; the owning session
// serializes access.
package collection

import (
	"errors"
	"fmt"
	"image"
	"log/slog"

	"github.com/lehigh-university-libraries/photosheet/internal/imageio"
	"github.com/lehigh-university-libraries/photosheet/internal/storage"
)

// Quantity bounds.
const (
	MinQuantity = 1
	MaxQuantity = 50
)

// Stage names the bitmap an entry must carry to be ready.
type Stage string

const (
	StageAdjusted  Stage = "adjusted"
	StageProcessed Stage = "processed"
)

var (
	ErrNotFound    = errors.New("image not found")
	ErrNotAdjusted = errors.New("image has not been adjusted")
)

// DimensionMismatchError is returned when a processed bitmap does not match
// the size of the adjusted bitmap it replaces.
type DimensionMismatchError struct {
	ImageID   string
	Want, Got image.Point
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("image %s: processed bitmap is %dx%d, adjusted is %dx%d",
		e.ImageID, e.Got.X, e.Got.Y, e.Want.X, e.Want.Y)
}

// ClampQuantity limits n to [MinQuantity, MaxQuantity].
func ClampQuantity(n int) int {
	return min(max(n, MinQuantity), MaxQuantity)
}

// Bitmap is a reference to an encoded PNG held in the blob store.
type Bitmap struct {
	Key    string
	Width  int
	Height int
}

// Size returns the bitmap dimensions.
func (b Bitmap) Size() image.Point { return image.Pt(b.Width, b.Height) }

// Raw is one decoded upload.
type Raw struct {
	Name  string
	Data  []byte
	Image image.Image
}

// Entry is one source image and its derived states.
type Entry struct {
	ID        string
	Name      string
	Raw       Bitmap
	Adjusted  *Bitmap
	Processed *Bitmap
	Quantity  int
}

// Ready reports whether e carries the bitmap required by stage.
func (e Entry) Ready(stage Stage) bool {
	switch stage {
	case StageProcessed:
		return e.Processed != nil
	default:
		return e.Adjusted != nil
	}
}

// Final returns the bitmap packed for stage, if any.
func (e Entry) Final(stage Stage) (Bitmap, bool) {
	if stage == StageProcessed {
		if e.Processed == nil {
			return Bitmap{}, false
		}
		return *e.Processed, true
	}
	if e.Adjusted == nil {
		return Bitmap{}, false
	}
	return *e.Adjusted, true
}

// Collection is the ordered list of entries for one session.
type Collection struct {
	blobs           storage.BlobStore
	defaultQuantity int

	next    int
	order   []string
	entries map[string]*Entry
	images  map[string]image.Image
}

// New returns an empty collection storing bitmaps in blobs. New entries get
// defaultQuantity copies (clamped).
func New(blobs storage.BlobStore, defaultQuantity int) *Collection {
	return &Collection{
		blobs:           blobs,
		defaultQuantity: ClampQuantity(defaultQuantity),
		entries:         make(map[string]*Entry),
		images:          make(map[string]image.Image),
	}
}

// Add appends raws in order and returns their new IDs. IDs are never reused
// within the collection's lifetime, even after Reset.
func (c *Collection) Add(raws ...Raw) ([]string, error) {
	ids := make([]string, 0, len(raws))
	for _, r := range raws {
		if r.Image == nil {
			return ids, &imageio.DecodeError{Name: r.Name, Err: errors.New("no decoded image")}
		}
		key, err := c.blobs.Put(r.Data)
		if err != nil {
			return ids, fmt.Errorf("failed to store %s: %w", r.Name, err)
		}
		c.next++
		id := fmt.Sprintf("img_%d", c.next)
		b := r.Image.Bounds()
		c.entries[id] = &Entry{
			ID:       id,
			Name:     r.Name,
			Raw:      Bitmap{Key: key, Width: b.Dx(), Height: b.Dy()},
			Quantity: c.defaultQuantity,
		}
		c.images[id] = r.Image
		c.order = append(c.order, id)
		ids = append(ids, id)
	}
	return ids, nil
}

// Remove deletes id and releases its blobs. Absent IDs are ignored.
func (c *Collection) Remove(id string) {
	e, ok := c.entries[id]
	if !ok {
		return
	}
	c.release(e.Raw.Key)
	if e.Adjusted != nil {
		c.release(e.Adjusted.Key)
	}
	if e.Processed != nil {
		c.release(e.Processed.Key)
	}
	delete(c.entries, id)
	delete(c.images, id)
	for i, v := range c.order {
		if v == id {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}

// SetAdjusted stores img as the adjusted bitmap of id. A previous adjusted
// bitmap is released, and so is any processed bitmap derived from it.
func (c *Collection) SetAdjusted(id string, img image.Image) error {
	e, ok := c.entries[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	bm, err := c.store(img)
	if err != nil {
		return err
	}
	if e.Adjusted != nil {
		c.release(e.Adjusted.Key)
	}
	if e.Processed != nil {
		c.release(e.Processed.Key)
		e.Processed = nil
	}
	e.Adjusted = &bm
	return nil
}

// SetProcessed stores img as the background-removed bitmap of id. img must
// have the same dimensions as the adjusted bitmap.
func (c *Collection) SetProcessed(id string, img image.Image) error {
	e, ok := c.entries[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if e.Adjusted == nil {
		return fmt.Errorf("%w: %s", ErrNotAdjusted, id)
	}
	got := img.Bounds().Size()
	if got != e.Adjusted.Size() {
		return &DimensionMismatchError{ImageID: id, Want: e.Adjusted.Size(), Got: got}
	}
	bm, err := c.store(img)
	if err != nil {
		return err
	}
	if e.Processed != nil {
		c.release(e.Processed.Key)
	}
	e.Processed = &bm
	return nil
}

// SetQuantity stores n clamped to [MinQuantity, MaxQuantity] and returns the
// stored value.
func (c *Collection) SetQuantity(id string, n int) (int, error) {
	e, ok := c.entries[id]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	e.Quantity = ClampQuantity(n)
	return e.Quantity, nil
}

// AllReady reports whether every entry carries the bitmap for stage. It is
// true for an empty collection.
func (c *Collection) AllReady(stage Stage) bool {
	for _, id := range c.order {
		if !c.entries[id].Ready(stage) {
			return false
		}
	}
	return true
}

// TotalCopies is the sum of all quantities.
func (c *Collection) TotalCopies() int {
	total := 0
	for _, id := range c.order {
		total += c.entries[id].Quantity
	}
	return total
}

// Len returns the number of entries.
func (c *Collection) Len() int { return len(c.order) }

// Get returns a copy of the entry for id.
func (c *Collection) Get(id string) (Entry, bool) {
	e, ok := c.entries[id]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// Entries returns copies of all entries in insertion order.
func (c *Collection) Entries() []Entry {
	out := make([]Entry, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, *c.entries[id])
	}
	return out
}

// Image returns the decoded raw image for id.
func (c *Collection) Image(id string) (image.Image, bool) {
	img, ok := c.images[id]
	return img, ok
}

// Blob returns the encoded bytes behind b.
func (c *Collection) Blob(b Bitmap) ([]byte, error) {
	return c.blobs.Get(b.Key)
}

// Reset removes every entry and releases all blobs.
func (c *Collection) Reset() {
	for _, id := range append([]string(nil), c.order...) {
		c.Remove(id)
	}
}

func (c *Collection) store(img image.Image) (Bitmap, error) {
	data, err := imageio.EncodePNG(img)
	if err != nil {
		return Bitmap{}, err
	}
	key, err := c.blobs.Put(data)
	if err != nil {
		return Bitmap{}, fmt.Errorf("failed to store bitmap: %w", err)
	}
	b := img.Bounds()
	return Bitmap{Key: key, Width: b.Dx(), Height: b.Dy()}, nil
}

func (c *Collection) release(key string) {
	if err := c.blobs.Delete(key); err != nil {
		slog.Warn("Failed to release blob", "key", key, "err", err)
	}
}
