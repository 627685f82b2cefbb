// Package slide is a read-only library for whole-slide microscopy images:
// gigapixel pyramids produced by pathology scanners and stored in one of
// several proprietary container formats layered on TIFF, DICOM, or raw
// JPEG (spec.md §1). Open probes a fixed, ordered list of vendor backends
// (internal/vendor) and returns an opaque Slide whose levels, associated
// images, properties, and ICC profile are populated by whichever backend
// recognized the file.
//
// A Slide is safe for concurrent reads from multiple goroutines; Open and
// Close must not race with any other call on the same Slide (spec.md §5).
package slide

import (
	"errors"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/openwsi/slide/internal/compositor"
	"github.com/openwsi/slide/internal/fileio"
	"github.com/openwsi/slide/internal/qhash"
	"github.com/openwsi/slide/internal/tifflike"
	"github.com/openwsi/slide/internal/tilecache"
	vendorpkg "github.com/openwsi/slide/internal/vendor"
)

// chunkSize is the side length of the square canvases ReadRegion carves a
// caller's request into, to stay inside the compositor's per-call surface
// budget (spec.md §4.5/§9).
const chunkSize = 4096

// maxPooledHandles bounds the number of concurrently open OS file
// descriptors per Slide (spec.md §5's file handle pool).
const maxPooledHandles = 16

// Slide is the opaque per-slide object (spec.md §3): an ordered level
// array, associated-image and property tables, an optional ICC profile, a
// mutable cache binding, and a sticky error cell. Created by Open,
// released by Close. Immutable after Open except for the error cell
// (write-once) and the cache binding.
type Slide struct {
	path string
	pool *fileio.Pool

	levels     []vendorpkg.Level
	associated map[string]vendorpkg.AssociatedImage
	properties map[string]string
	iccProfile []byte

	vendorClose func() error
	closeOnce   sync.Once

	cache   atomic.Pointer[tilecache.Cache]
	errCell atomic.Pointer[Error]
}

// DetectVendor reports the vendor name a backend's Detect recognizes
// filename as, or ("", false) if no backend recognizes it (spec.md §6's
// detect_vendor).
func DetectVendor(filename string) (string, bool) {
	pool := fileio.NewPool(filename, 1)
	defer pool.Close()

	tl, _ := tifflike.Open(pool)
	ctx := &vendorpkg.OpenContext{Path: filename, Source: pool, TL: tl}
	name := vendorpkg.DetectVendor(ctx)
	if name == "" {
		return "", false
	}
	return name, true
}

// openConfig holds Open's functional-option state, matching the teacher's
// Config-struct-plus-functional-option style (internal/tile.Config's
// Verbose field, threaded through cmd/geotiff2pmtiles's flag parsing)
// translated to a library API with no flag package involved.
type openConfig struct {
	verbose       bool
	cacheCapacity int64
}

// OpenOption configures a single Open call.
type OpenOption func(*openConfig)

// WithVerbose makes backends log.Printf diagnostics during Open.
func WithVerbose(v bool) OpenOption {
	return func(c *openConfig) { c.verbose = v }
}

// WithCacheCapacity overrides the tile cache's initial byte capacity
// (spec.md §4.1); the default is defaultCacheCapacity.
func WithCacheCapacity(n int64) OpenOption {
	return func(c *openConfig) { c.cacheCapacity = n }
}

// Open always returns a non-nil Slide when some backend recognizes
// filename's format; a failure while parsing that format is reported via
// the returned Slide's sticky error cell (GetError), not via the error
// return, which is reserved for "no backend recognized this file at all"
// (spec.md §6).
func Open(filename string, opts ...OpenOption) (*Slide, error) {
	cfg := openConfig{cacheCapacity: defaultCacheCapacity}
	for _, o := range opts {
		o(&cfg)
	}

	pool := fileio.NewPool(filename, maxPooledHandles)

	tl, _ := tifflike.Open(pool)
	ctx := &vendorpkg.OpenContext{
		Path:    filename,
		Source:  pool,
		TL:      tl,
		Hasher:  qhash.New(),
		Budget:  &qhash.Budget{},
		Verbose: cfg.verbose,
	}

	// A single vendorpkg.Open call both detects and opens; DetectVendor is
	// only consulted again (re-running the same Detect probes) on the rare
	// format-failure path below, where the vendor name is needed for the
	// error message but Open itself didn't return one.
	result, err := vendorpkg.Open(ctx)
	if err != nil {
		if errors.Is(err, vendorpkg.ErrNotASlide) {
			pool.Close()
			return nil, ErrNotASlide
		}
		s := &Slide{path: filename, pool: pool}
		s.cache.Store(tilecache.New(cfg.cacheCapacity))
		s.setError(wrapError(KindFormatFailure, err, "opening %q as %s", filename, vendorpkg.DetectVendor(ctx)))
		return s, nil
	}

	s := &Slide{path: filename, pool: pool}
	s.cache.Store(tilecache.New(cfg.cacheCapacity))
	s.adopt(result)
	return s, nil
}

// adopt copies a backend's OpenResult into the Slide's immutable fields.
func (s *Slide) adopt(r *vendorpkg.OpenResult) {
	s.levels = r.Levels
	s.associated = r.Associated
	if s.associated == nil {
		s.associated = map[string]vendorpkg.AssociatedImage{}
	}
	s.properties = r.Properties
	if s.properties == nil {
		s.properties = map[string]string{}
	}
	s.iccProfile = r.ICCProfile
	s.vendorClose = r.Close
}

// Close releases the Slide's file handles and backend-owned resources.
// Must not be called concurrently with any other operation on s.
func (s *Slide) Close() error {
	var err error
	s.closeOnce.Do(func() {
		if s.vendorClose != nil {
			err = s.vendorClose()
		}
		if cerr := s.pool.Close(); err == nil {
			err = cerr
		}
	})
	return err
}

// GetError returns the Slide's sticky error message, or "" if none has
// been set.
func (s *Slide) GetError() string {
	if e := s.errCell.Load(); e != nil {
		return e.Error()
	}
	return ""
}

func (s *Slide) setError(err *Error) {
	s.errCell.CompareAndSwap(nil, err)
}

func (s *Slide) errorOrNil() error {
	if e := s.errCell.Load(); e != nil {
		return e
	}
	return nil
}

// LevelCount returns the number of pyramid levels, or 0 if the sticky
// error cell is set.
func (s *Slide) LevelCount() int {
	if s.errorOrNil() != nil {
		return 0
	}
	return len(s.levels)
}

// LevelDimensions returns level's width and height in level pixels.
func (s *Slide) LevelDimensions(level int) (width, height int64, err error) {
	if e := s.errorOrNil(); e != nil {
		return 0, 0, e
	}
	if level < 0 || level >= len(s.levels) {
		return 0, 0, newError(KindInvalidArgument, "level %d out of range [0,%d)", level, len(s.levels))
	}
	lv := s.levels[level]
	return lv.Width, lv.Height, nil
}

// LevelDownsample returns level's downsample factor relative to level 0.
func (s *Slide) LevelDownsample(level int) (float64, error) {
	if e := s.errorOrNil(); e != nil {
		return 0, e
	}
	if level < 0 || level >= len(s.levels) {
		return 0, newError(KindInvalidArgument, "level %d out of range [0,%d)", level, len(s.levels))
	}
	return s.levels[level].Downsample, nil
}

// BestLevelForDownsample returns the largest level whose downsample is
// <= d; 0 if d is smaller than every level's downsample, or the last
// level if d is larger than every level's downsample (spec.md §6).
func (s *Slide) BestLevelForDownsample(d float64) int {
	if s.errorOrNil() != nil || len(s.levels) == 0 {
		return 0
	}
	for i := len(s.levels) - 1; i >= 0; i-- {
		if s.levels[i].Downsample <= d {
			return i
		}
	}
	return 0
}

// SetCache rebinds s to use c for tile caching in place of its current
// binding. Must not race with concurrent reads on s.
func (s *Slide) SetCache(c *Cache) {
	s.cache.Store(c.c)
}

func (s *Slide) currentCache() *tilecache.Cache {
	return s.cache.Load()
}

// ReadRegion writes w*h premultiplied BGRA words to dest, the rectangle
// [x, x+w) x [y, y+h) of level's coordinate space. x and y may be
// negative; pixels at level-space coordinates outside [0, levelWidth) x
// [0, levelHeight) are zero. Once w, h and len(dest) pass validation, dest
// is zeroed before anything else and left zeroed on any later failure; the
// two argument errors return with dest untouched (spec.md §4.5/§6/§8 item 8).
func (s *Slide) ReadRegion(dest []byte, x, y int64, level int, w, h int) error {
	if w < 0 || h < 0 {
		return newError(KindInvalidArgument, "negative region size %dx%d", w, h)
	}
	need := w * h * 4
	if need > 0 && len(dest) < need {
		return newError(KindInvalidArgument, "dest too small: need %d bytes, got %d", need, len(dest))
	}
	clear(dest[:need])

	if e := s.errorOrNil(); e != nil {
		return e
	}
	if level < 0 || level >= len(s.levels) {
		err := newError(KindInvalidArgument, "level %d out of range [0,%d)", level, len(s.levels))
		return err
	}
	if w == 0 || h == 0 {
		return nil
	}

	lvl := s.levels[level]
	cache := s.currentCache()
	destStride := w * 4

	for cy := 0; cy < h; cy += chunkSize {
		ch := chunkSize
		if h-cy < ch {
			ch = h - cy
		}
		for cx := 0; cx < w; cx += chunkSize {
			cw := chunkSize
			if w-cx < cw {
				cw = w - cx
			}

			levelX := int(x) + cx
			levelY := int(y) + cy
			canvas := compositor.NewCanvas(cw, ch, levelX, levelY)

			if err := lvl.Paint(canvas, levelX, levelY, cw, ch, cache); err != nil {
				wrapped := wrapError(KindDecodeFailure, err,
					"reading region (%d,%d) %dx%d at level %d", x, y, w, h, level)
				s.setError(wrapped)
				clear(dest[:need])
				return wrapped
			}

			// Only the part of the chunk inside the level is copied, so dest
			// stays zero where a backend painted a whole edge tile past the
			// level's right or bottom edge.
			colLo, colHi := 0, cw
			if levelX < 0 {
				colLo = min(-levelX, cw)
			}
			if rem := int(lvl.Width) - levelX; rem < colHi {
				colHi = max(rem, 0)
			}
			for row := 0; row < ch; row++ {
				ly := levelY + row
				if ly < 0 || int64(ly) >= lvl.Height || colLo >= colHi {
					continue
				}
				srcOff := row * canvas.Width * 4
				dstOff := (cy+row)*destStride + cx*4
				copy(dest[dstOff+colLo*4:dstOff+colHi*4], canvas.Pix[srcOff+colLo*4:srcOff+colHi*4])
			}
		}
	}
	return nil
}

// ICCProfileSize returns the byte length of the slide's embedded ICC
// profile, or 0 if it has none.
func (s *Slide) ICCProfileSize() int64 {
	if s.errorOrNil() != nil {
		return 0
	}
	return int64(len(s.iccProfile))
}

// ReadICCProfile copies the slide's ICC profile into dest.
func (s *Slide) ReadICCProfile(dest []byte) error {
	if e := s.errorOrNil(); e != nil {
		return e
	}
	copy(dest, s.iccProfile)
	return nil
}

// PropertyNames returns the slide's property names in sorted order.
func (s *Slide) PropertyNames() []string {
	if s.errorOrNil() != nil {
		return nil
	}
	names := make([]string, 0, len(s.properties))
	for k := range s.properties {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// PropertyValue returns the value of the named property, or ("", false)
// if it is absent.
func (s *Slide) PropertyValue(name string) (string, bool) {
	if s.errorOrNil() != nil {
		return "", false
	}
	v, ok := s.properties[name]
	return v, ok
}

// AssociatedImageNames returns the slide's associated-image names
// (label, macro, thumbnail, …) in sorted order.
func (s *Slide) AssociatedImageNames() []string {
	if s.errorOrNil() != nil {
		return nil
	}
	names := make([]string, 0, len(s.associated))
	for k := range s.associated {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// AssociatedImageDimensions returns the named associated image's width
// and height, or (0, 0, false) if it does not exist.
func (s *Slide) AssociatedImageDimensions(name string) (width, height int, ok bool) {
	if s.errorOrNil() != nil {
		return 0, 0, false
	}
	img, ok := s.associated[name]
	if !ok {
		return 0, 0, false
	}
	return img.Width, img.Height, true
}

// ReadAssociatedImage fully decodes the named associated image's
// premultiplied BGRA pixels into dest.
func (s *Slide) ReadAssociatedImage(name string, dest []byte) error {
	if e := s.errorOrNil(); e != nil {
		return e
	}
	img, ok := s.associated[name]
	if !ok {
		return newError(KindNoValue, "no associated image named %q", name)
	}
	if err := img.Decode(dest); err != nil {
		return wrapError(KindDecodeFailure, err, "reading associated image %q", name)
	}
	return nil
}

// AssociatedImageICCProfileSize returns the named associated image's ICC
// profile size, or (0, false) if it has none or does not exist.
func (s *Slide) AssociatedImageICCProfileSize(name string) (int64, bool) {
	if s.errorOrNil() != nil {
		return 0, false
	}
	img, ok := s.associated[name]
	if !ok || img.ICCSize == 0 {
		return 0, false
	}
	return int64(img.ICCSize), true
}

// ReadAssociatedImageICCProfile copies the named associated image's ICC
// profile into dest.
func (s *Slide) ReadAssociatedImageICCProfile(name string, dest []byte) error {
	if e := s.errorOrNil(); e != nil {
		return e
	}
	img, ok := s.associated[name]
	if !ok {
		return newError(KindNoValue, "no associated image named %q", name)
	}
	if img.ReadICC == nil {
		return newError(KindNoValue, "associated image %q has no ICC profile", name)
	}
	return img.ReadICC(dest)
}
