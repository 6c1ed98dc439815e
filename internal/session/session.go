// Package session holds one user's run of the photo sheet wizard: the chosen
// format, the uploaded images and their editors, and the current step.
package session

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"log/slog"
	"sync"
	"time"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	"github.com/lehigh-university-libraries/photosheet/internal/background"
	"github.com/lehigh-university-libraries/photosheet/internal/collection"
	"github.com/lehigh-university-libraries/photosheet/internal/editor"
	"github.com/lehigh-university-libraries/photosheet/internal/formats"
	"github.com/lehigh-university-libraries/photosheet/internal/imageio"
	"github.com/lehigh-university-libraries/photosheet/internal/layout"
	"github.com/lehigh-university-libraries/photosheet/internal/manifest"
	"github.com/lehigh-university-libraries/photosheet/internal/models"
	"github.com/lehigh-university-libraries/photosheet/internal/salient"
	"github.com/lehigh-university-libraries/photosheet/internal/sheet"
	"github.com/lehigh-university-libraries/photosheet/internal/storage"
	"github.com/lehigh-university-libraries/photosheet/internal/transform"
	"github.com/lehigh-university-libraries/photosheet/internal/wizard"
)

var (
	ErrUnknownFormat = errors.New("unknown photo format")
	ErrWrongStep     = errors.New("operation not allowed on the current step")
	ErrUnknownKind   = errors.New("unknown bitmap kind")
)

// Bitmap kinds served by Bitmap.
const (
	KindRaw       = "raw"
	KindAdjusted  = "adjusted"
	KindProcessed = "processed"
)

// File is one uploaded file.
type File struct {
	Name string
	Data []byte
}

// Options wires a session to its collaborators. Zero values get defaults.
type Options struct {
	Catalog   *formats.Catalog
	DPI       int
	Flow      wizard.Flow
	Page      layout.Page
	Blobs     storage.BlobStore
	Detector  salient.Detector
	Segmenter background.Segmenter
}

func (o Options) withDefaults() Options {
	if o.Catalog == nil {
		o.Catalog = formats.Default()
	}
	if o.DPI <= 0 {
		o.DPI = formats.DefaultDPI
	}
	if o.Page == (layout.Page{}) {
		o.Page = layout.A4()
	}
	if o.Blobs == nil {
		o.Blobs = storage.NewMemoryBlobs()
	}
	if o.Detector == nil {
		o.Detector = salient.None{}
	}
	if o.Segmenter == nil {
		o.Segmenter = background.Passthrough{}
	}
	o.Segmenter = background.WithFallback(o.Segmenter)
	o.Flow.DefaultQuantity = collection.ClampQuantity(o.Flow.DefaultQuantity)
	return o
}

// Result is a generated sheet.
type Result struct {
	PDF      []byte
	Filename string
	Layout   *layout.Layout
	Manifest []manifest.Row
}

// Session is safe for concurrent use; its operations are serialized.
type Session struct {
	ID        string
	CreatedAt time.Time

	mu      sync.Mutex
	opts    Options
	machine *wizard.Machine
	format  *formats.Format
	images  *collection.Collection
	editors map[string]*editor.Controller
}

// NewID returns a fresh session ID.
func NewID() string { return uuid.NewString() }

func New(id string, opts Options) *Session {
	opts = opts.withDefaults()
	s := &Session{
		ID:        id,
		CreatedAt: time.Now(),
		opts:      opts,
		machine:   wizard.New(opts.Flow),
		images:    collection.New(opts.Blobs, opts.Flow.DefaultQuantity),
		editors:   make(map[string]*editor.Controller),
	}
	slog.Info("Session created", "session_id", id, "skip_background", opts.Flow.SkipBackgroundRemoval)
	return s
}

// Step returns the current wizard step.
func (s *Session) Step() wizard.Step {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.machine.Step()
}

// Format returns the selected format.
func (s *Session) Format() (formats.Format, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.format == nil {
		return formats.Format{}, false
	}
	return *s.format, true
}

func (s *Session) requireStep(op string, steps ...wizard.Step) error {
	cur := s.machine.Step()
	for _, st := range steps {
		if st == cur {
			return nil
		}
	}
	return fmt.Errorf("%w: %s on step %s", ErrWrongStep, op, cur)
}

func (s *Session) fire(ev wizard.Event) (wizard.Transition, error) {
	t, err := s.machine.Fire(ev, s.images)
	if err != nil {
		return t, err
	}
	if t.Reset {
		s.reset()
	}
	slog.Debug("Step changed", "session_id", s.ID, "event", ev, "from", t.From, "to", t.To)
	return t, nil
}

func (s *Session) reset() {
	s.images.Reset()
	s.editors = make(map[string]*editor.Controller)
	s.format = nil
}

// SelectFormat chooses the photo format. Choosing again starts the session
// over.
func (s *Session) SelectFormat(id string) (formats.Format, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, ok := s.opts.Catalog.Lookup(id)
	if !ok {
		return formats.Format{}, fmt.Errorf("%w: %s", ErrUnknownFormat, id)
	}
	if s.machine.Step() != wizard.StepSelectFormat {
		if _, err := s.fire(wizard.EventStartOver); err != nil {
			return formats.Format{}, err
		}
	}
	if _, err := s.fire(wizard.EventFormatSelected); err != nil {
		return formats.Format{}, err
	}
	s.format = &f
	slog.Info("Format selected", "session_id", s.ID, "format", f.ID)
	return f, nil
}

// Upload decodes and adds files. Files that fail to decode are reported in
// the result and do not stop the others.
func (s *Session) Upload(ctx context.Context, files ...File) (models.UploadResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := models.UploadResult{IDs: []string{}}
	if err := s.requireStep("upload", wizard.StepAdjust); err != nil {
		return result, err
	}
	for _, f := range files {
		img, err := decodeUpload(f)
		if err != nil {
			slog.Warn("Rejected upload", "session_id", s.ID, "name", f.Name, "err", err)
			result.Failures = append(result.Failures, models.UploadFailure{Name: f.Name, Error: err.Error()})
			continue
		}
		ids, err := s.images.Add(collection.Raw{Name: f.Name, Data: f.Data, Image: img})
		if err != nil {
			return result, err
		}
		s.openEditor(ctx, ids[0], img)
		result.IDs = append(result.IDs, ids...)
	}
	slog.Info("Images uploaded", "session_id", s.ID, "accepted", len(result.IDs), "rejected", len(result.Failures))
	return result, nil
}

func decodeUpload(f File) (image.Image, error) {
	if len(f.Data) > imageio.MaxUploadBytes {
		return nil, &imageio.DecodeError{Name: f.Name, Err: imageio.ErrTooLarge}
	}
	return imageio.DecodeBytes(f.Name, f.Data)
}

func (s *Session) openEditor(ctx context.Context, id string, img image.Image) *editor.Controller {
	var opts []editor.Option
	region, ok, err := s.opts.Detector.Detect(ctx, img)
	switch {
	case err != nil:
		slog.Warn("Salient region detection failed, centering image", "session_id", s.ID, "image_id", id, "err", err)
	case ok:
		slog.Debug("Salient region found", "session_id", s.ID, "image_id", id, "region", region)
		opts = append(opts, editor.WithSalientRegion(region))
	}
	c := editor.New(img, *s.format, s.opts.DPI, opts...)
	s.editors[id] = c
	return c
}

// editorFor returns the open editor for id, opening a fresh one when the
// previous edit was finalized.
func (s *Session) editorFor(ctx context.Context, id string) (*editor.Controller, error) {
	if c, ok := s.editors[id]; ok {
		return c, nil
	}
	img, ok := s.images.Image(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", collection.ErrNotFound, id)
	}
	return s.openEditor(ctx, id, img), nil
}

// Remove deletes an image and everything derived from it.
func (s *Session) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireStep("remove", wizard.StepAdjust, wizard.StepRemoveBackground, wizard.StepQuantities); err != nil {
		return err
	}
	if _, ok := s.images.Get(id); !ok {
		return fmt.Errorf("%w: %s", collection.ErrNotFound, id)
	}
	s.images.Remove(id)
	delete(s.editors, id)
	return nil
}

// Edit applies ops to the image's editor and returns the resulting state.
// Ops before a failing one stay applied.
func (s *Session) Edit(ctx context.Context, id string, ops ...editor.Op) (transform.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireStep("edit", wizard.StepAdjust); err != nil {
		return transform.State{}, err
	}
	c, err := s.editorFor(ctx, id)
	if err != nil {
		return transform.State{}, err
	}
	err = c.Apply(ops...)
	return c.State(), err
}

// Preview renders the image's current editor state as PNG.
func (s *Session) Preview(ctx context.Context, id string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireStep("preview", wizard.StepAdjust); err != nil {
		return nil, err
	}
	c, err := s.editorFor(ctx, id)
	if err != nil {
		return nil, err
	}
	img := c.Preview()
	if img == nil {
		return nil, editor.ErrNoSource
	}
	return imageio.EncodePNG(img)
}

// Finalize bakes the editor state into the adjusted bitmap and closes the
// editor.
func (s *Session) Finalize(ctx context.Context, id string) (collection.Bitmap, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireStep("finalize", wizard.StepAdjust); err != nil {
		return collection.Bitmap{}, err
	}
	c, err := s.editorFor(ctx, id)
	if err != nil {
		return collection.Bitmap{}, err
	}
	img, err := c.Finalize()
	if err != nil {
		return collection.Bitmap{}, err
	}
	if err := s.images.SetAdjusted(id, img); err != nil {
		return collection.Bitmap{}, err
	}
	delete(s.editors, id)

	e, _ := s.images.Get(id)
	slog.Info("Image adjusted", "session_id", s.ID, "image_id", id, "width", e.Adjusted.Width, "height", e.Adjusted.Height)
	return *e.Adjusted, nil
}

// AutoRemoveBackground runs the automatic segmenter over the adjusted
// bitmap. A failing segmenter leaves the adjusted photo as the result.
func (s *Session) AutoRemoveBackground(ctx context.Context, id string) (collection.Bitmap, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireStep("remove background", wizard.StepRemoveBackground); err != nil {
		return collection.Bitmap{}, err
	}
	adjusted, err := s.adjusted(id)
	if err != nil {
		return collection.Bitmap{}, err
	}
	out, err := s.opts.Segmenter.Segment(ctx, adjusted)
	if err != nil {
		return collection.Bitmap{}, err
	}
	return s.setProcessed(id, out)
}

// SetProcessed stores a manually prepared background-removed photo. It must
// have the dimensions of the adjusted bitmap.
func (s *Session) SetProcessed(id string, f File) (collection.Bitmap, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireStep("upload processed photo", wizard.StepRemoveBackground); err != nil {
		return collection.Bitmap{}, err
	}
	img, err := decodeUpload(f)
	if err != nil {
		return collection.Bitmap{}, err
	}
	return s.setProcessed(id, img)
}

func (s *Session) adjusted(id string) (image.Image, error) {
	e, ok := s.images.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", collection.ErrNotFound, id)
	}
	if e.Adjusted == nil {
		return nil, fmt.Errorf("%w: %s", collection.ErrNotAdjusted, id)
	}
	data, err := s.images.Blob(*e.Adjusted)
	if err != nil {
		return nil, err
	}
	return imageio.DecodeBytes(id, data)
}

func (s *Session) setProcessed(id string, img image.Image) (collection.Bitmap, error) {
	if err := s.images.SetProcessed(id, flatten(img)); err != nil {
		return collection.Bitmap{}, err
	}
	e, _ := s.images.Get(id)
	slog.Info("Background removed", "session_id", s.ID, "image_id", id)
	return *e.Processed, nil
}

// flatten composites img over white so cut-outs print on a white
// background.
func flatten(img image.Image) *image.NRGBA {
	b := img.Bounds()
	bg := imaging.New(b.Dx(), b.Dy(), color.White)
	return imaging.Overlay(bg, img, image.Pt(0, 0), 1.0)
}

// SetQuantity stores the copy count for id, clamped, and returns the
// stored value.
func (s *Session) SetQuantity(id string, n int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireStep("set quantity", wizard.StepAdjust, wizard.StepRemoveBackground, wizard.StepQuantities); err != nil {
		return 0, err
	}
	return s.images.SetQuantity(id, n)
}

func (s *Session) Continue() (wizard.Transition, error) { return s.step(wizard.EventContinue) }

func (s *Session) Back() (wizard.Transition, error) { return s.step(wizard.EventBack) }

// StartOver drops the format and every image.
func (s *Session) StartOver() (wizard.Transition, error) { return s.step(wizard.EventStartOver) }

func (s *Session) step(ev wizard.Event) (wizard.Transition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fire(ev)
}

// Generate packs every image onto pages and renders the PDF. It may be
// called again from the complete step to download the sheet again.
func (s *Session) Generate() (*Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireStep("generate", wizard.StepQuantities, wizard.StepComplete); err != nil {
		return nil, err
	}
	if !s.machine.Can(wizard.EventGenerated, s.images) {
		_, err := s.machine.Fire(wizard.EventGenerated, s.images)
		return nil, err
	}

	stage := s.machine.Flow().ReadyStage()
	entries := s.images.Entries()
	items := make([]sheet.Item, 0, len(entries))
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		bm, _ := e.Final(stage)
		data, err := s.images.Blob(bm)
		if err != nil {
			return nil, &sheet.GenerationError{ImageID: e.ID, Err: err}
		}
		items = append(items, sheet.Item{ID: e.ID, Data: data, Quantity: e.Quantity})
		ids = append(ids, e.ID)
	}

	f := *s.format
	g := sheet.New(s.opts.Page)
	g.Title = fmt.Sprintf("%s (%s)", f.Name, f.Dimensions)
	sh, err := g.Generate(items, f.WidthMm, f.HeightMm)
	if err != nil {
		slog.Error("Sheet generation failed", "session_id", s.ID, "err", err)
		return nil, err
	}
	if _, err := s.fire(wizard.EventGenerated); err != nil {
		return nil, err
	}
	slog.Info("PDF generated", "session_id", s.ID, "format", f.ID, "pages", sh.Layout.Pages, "photos", sh.Layout.Tiles())
	return &Result{
		PDF:      sh.PDF,
		Filename: Filename(f),
		Layout:   sh.Layout,
		Manifest: manifest.Rows(sh.Layout, ids),
	}, nil
}

// Filename is the download name of a sheet in format f.
func Filename(f formats.Format) string {
	return "photos-" + f.Slug() + ".pdf"
}

// Manifest plans the current layout without rendering it.
func (s *Session) Manifest() ([]manifest.Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.format == nil {
		return nil, fmt.Errorf("%w: manifest on step %s", ErrWrongStep, s.machine.Step())
	}
	entries := s.images.Entries()
	quantities := make([]int, len(entries))
	ids := make([]string, len(entries))
	for i, e := range entries {
		quantities[i] = e.Quantity
		ids[i] = e.ID
	}
	lay, err := layout.Plan(quantities, s.format.WidthMm, s.format.HeightMm, s.opts.Page)
	if err != nil {
		return nil, err
	}
	return manifest.Rows(lay, ids), nil
}

// Bitmap returns the stored bytes of one of an image's bitmaps.
func (s *Session) Bitmap(id, kind string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.images.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", collection.ErrNotFound, id)
	}
	var bm *collection.Bitmap
	switch kind {
	case KindRaw:
		bm = &e.Raw
	case KindAdjusted:
		bm = e.Adjusted
	case KindProcessed:
		bm = e.Processed
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}
	if bm == nil {
		return nil, fmt.Errorf("%w: %s has no %s bitmap", collection.ErrNotFound, id, kind)
	}
	return s.images.Blob(*bm)
}

// Snapshot describes the session for clients.
func (s *Session) Snapshot() models.Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := models.Session{
		ID:          s.ID,
		Step:        s.machine.Step(),
		Steps:       s.machine.Steps(),
		Images:      []models.ImageItem{},
		TotalCopies: s.images.TotalCopies(),
		CreatedAt:   s.CreatedAt,
	}
	if s.format != nil {
		f := *s.format
		out.Format = &f
		out.CanvasWidth, out.CanvasHeight = f.CanvasSize(s.opts.DPI)
	}
	stage := s.machine.Flow().ReadyStage()
	for _, e := range s.images.Entries() {
		item := models.ImageItem{
			ID:          e.ID,
			Name:        e.Name,
			ImageWidth:  e.Raw.Width,
			ImageHeight: e.Raw.Height,
			Quantity:    e.Quantity,
			Adjusted:    e.Adjusted != nil,
			Processed:   e.Processed != nil,
			Ready:       e.Ready(stage),
		}
		if c, ok := s.editors[e.ID]; ok {
			st := c.State()
			item.State = &st
		}
		out.Images = append(out.Images, item)
	}
	return out
}

// Close releases every blob held by the session.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reset()
	slog.Info("Session closed", "session_id", s.ID)
}
