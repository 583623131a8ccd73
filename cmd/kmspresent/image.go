package kmspresent

import (
	"fmt"
	"image"
	_ "image/jpeg" // register decoder
	_ "image/png"  // register decoder
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
	_ "golang.org/x/image/bmp"  // register decoder
	_ "golang.org/x/image/webp" // register decoder
)

const imageReloadDebounce = 100 * time.Millisecond

// loadImage decodes a PNG, JPEG, BMP or WebP file.
func loadImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return img, nil
}

// imageSource is the image drawn under the test pattern. It is decoded again
// whenever the file is rewritten.
type imageSource struct {
	path    string
	current atomic.Pointer[image.Image]
	watcher *fsnotify.Watcher
}

func watchImage(path string) (*imageSource, error) {
	path, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	img, err := loadImage(path)
	if err != nil {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	// Editors often replace the file, so watch the directory.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return nil, err
	}

	s := &imageSource{path: path, watcher: watcher}
	s.current.Store(&img)
	go s.watch()
	return s, nil
}

func (s *imageSource) watch() {
	var debounceTimer *time.Timer

	for {
		select {
		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if event.Name != s.path || !(event.Has(fsnotify.Write) || event.Has(fsnotify.Create)) {
				continue
			}
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(imageReloadDebounce, s.reload)
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			log.Warn().Err(err).Str("image", s.path).Msg("image watcher error")
		}
	}
}

func (s *imageSource) reload() {
	img, err := loadImage(s.path)
	if err != nil {
		log.Warn().Err(err).Str("image", s.path).Msg("keeping previous image")
		return
	}
	s.current.Store(&img)
	log.Info().Str("image", s.path).Stringer("bounds", img.Bounds()).Msg("reloaded image")
}

// Image returns the latest decoded image, or nil for a nil source.
func (s *imageSource) Image() image.Image {
	if s == nil {
		return nil
	}
	return *s.current.Load()
}

func (s *imageSource) Close() error {
	if s == nil {
		return nil
	}
	return s.watcher.Close()
}
