package stream

import (
	"context"
	"errors"
	"image"
	"io/ioutil"
	"log"
	"path/filepath"
	"sort"
	"strings"

	"github.com/tmpim/epaperify"
)

var imageExtensions = map[string]bool{
	".png":  true,
	".qoi":  true,
	".bmp":  true,
	".tif":  true,
	".tiff": true,
	".jpg":  true,
	".jpeg": true,
	".gif":  true,
	".webp": true,
}

// FileTitle returns the name of path without its directory or extension.
func FileTitle(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// DirectorySource lists the images of a directory in name order.
func DirectorySource(dir string) (*Metadata, []string, error) {
	entries, err := ioutil.ReadDir(dir)
	if err != nil {
		return nil, nil, err
	}

	var paths []string
	for _, entry := range entries {
		if entry.IsDir() || !imageExtensions[strings.ToLower(filepath.Ext(entry.Name()))] {
			continue
		}
		paths = append(paths, filepath.Join(dir, entry.Name()))
	}

	if len(paths) == 0 {
		return nil, nil, errors.New("epaperify stream: no images in " + dir)
	}

	sort.Strings(paths)

	return &Metadata{
		Title:  FileTitle(dir),
		Frames: len(paths),
	}, paths, nil
}

// LoadFrames decodes paths in order on a new goroutine. Files that cannot be
// read or decoded are logged and skipped. The channel is closed after the
// last file or once ctx is done.
func LoadFrames(ctx context.Context, paths []string, logger *log.Logger) <-chan image.Image {
	frames := make(chan image.Image, 2)

	go func() {
		defer close(frames)

		for _, path := range paths {
			data, err := ioutil.ReadFile(path)
			if err != nil {
				logger.Println("epaperify stream: skipping frame:", err)
				continue
			}

			img, _, err := epaperify.Decode(data)
			if err != nil {
				logger.Println("epaperify stream: skipping frame:", path+":", err)
				continue
			}

			select {
			case <-ctx.Done():
				return
			case frames <- img:
			}
		}
	}()

	return frames
}
