// Package source supplies frames to the ingestion loop.
package source

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/ironsheep/anpr-parking/internal/imaging"
)

// ErrEndOfStream is returned by Next when a source has no more frames.
var ErrEndOfStream = errors.New("end of stream")

// FrameSource is a pull-based frame producer.
type FrameSource interface {
	// Next returns the next frame or ErrEndOfStream.
	Next(ctx context.Context) (image.Image, error)
	// Restart rewinds to the first frame.
	Restart() error
	Close() error
}

// imageExtensions are the file types Directory picks up.
var imageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".bmp":  true,
	".tif":  true,
	".tiff": true,
}

// Directory plays the image files of a directory in name order, like the
// frames of a recorded clip.
type Directory struct {
	mu     sync.Mutex
	files  []string
	next   int
	closed bool
}

// NewDirectory lists the images in dir. It fails if there are none.
func NewDirectory(dir string) (*Directory, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read frame directory: %w", err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if imageExtensions[strings.ToLower(filepath.Ext(e.Name()))] {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no image files in %s", dir)
	}
	sort.Strings(files)
	return &Directory{files: files}, nil
}

// Len returns the number of frames.
func (d *Directory) Len() int {
	return len(d.files)
}

// Next loads the next file. A file that fails to decode is returned as an
// error without stopping the stream; the following call moves past it.
func (d *Directory) Next(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil, errors.New("frame source closed")
	}
	if d.next >= len(d.files) {
		d.mu.Unlock()
		return nil, ErrEndOfStream
	}
	path := d.files[d.next]
	d.next++
	d.mu.Unlock()

	return imaging.Load(path)
}

// Restart rewinds to the first file.
func (d *Directory) Restart() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return errors.New("frame source closed")
	}
	d.next = 0
	return nil
}

// Close stops the source. Further calls to Next fail.
func (d *Directory) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

// Single yields one in-memory frame, then ErrEndOfStream.
type Single struct {
	mu   sync.Mutex
	img  image.Image
	done bool
}

// NewSingle wraps img as a one-frame source.
func NewSingle(img image.Image) *Single {
	return &Single{img: img}
}

func (s *Single) Next(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done || s.img == nil {
		return nil, ErrEndOfStream
	}
	s.done = true
	return s.img, nil
}

func (s *Single) Restart() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.done = false
	return nil
}

func (s *Single) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.img = nil
	return nil
}
