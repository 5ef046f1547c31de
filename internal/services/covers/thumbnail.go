package covers

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
	"golang.org/x/image/draw"
)

// ErrThumbnailsDisabled is returned when the service has no data directory.
var ErrThumbnailsDisabled = errors.New("cover thumbnails are disabled")

const maxCoverDimension = 4096

// Thumbnail returns the path of a cached PNG thumbnail for the library item,
// downloading and resizing the cover on first use.
func (s *Service) Thumbnail(ctx context.Context, itemID string) (string, error) {
	if s.thumbDir == "" {
		return "", ErrThumbnailsDisabled
	}
	name := safeFilename(itemID)
	if name == "" {
		return "", fmt.Errorf("invalid item id %q", itemID)
	}
	path := filepath.Join(s.thumbDir, name+".png")

	if _, err := os.Stat(path); err == nil {
		return path, nil
	}

	// Other callers may share this download, so it is bounded by its own timeout
	// rather than by the first caller's context.
	ch := s.group.DoChan("thumb:"+name, func() (any, error) {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), fetchTimeout)
		defer cancel()

		data, contentType, err := s.library.FetchCover(ctx, itemID)
		if err != nil {
			return nil, err
		}
		img, err := decodeImage(data, contentType)
		if err != nil {
			return nil, fmt.Errorf("decode cover %s: %w", itemID, err)
		}
		if err := s.writePNG(resizeToFit(img, thumbnailSize), path); err != nil {
			return nil, fmt.Errorf("store cover %s: %w", itemID, err)
		}
		log.Debug().Str("itemID", itemID).Str("path", path).Msg("Stored cover thumbnail")
		return path, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// writePNG encodes into a temp file next to path and renames it into place,
// so readers never see a partial thumbnail.
func (s *Service) writePNG(img image.Image, path string) (err error) {
	tmp, err := os.CreateTemp(s.thumbDir, ".thumb-*.png")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	if err = png.Encode(tmp, img); err != nil {
		return fmt.Errorf("encode png: %w", err)
	}
	if err = tmp.Chmod(0o644); err != nil {
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func safeFilename(id string) string {
	name := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '-' || r == '_':
			return r
		default:
			return '_'
		}
	}, strings.TrimSpace(id))
	return strings.Trim(name, "_-")
}

func decodeImage(data []byte, contentType string) (image.Image, error) {
	if strings.Contains(strings.ToLower(contentType), "svg") {
		return nil, fmt.Errorf("svg covers are not supported")
	}

	reader := bytes.NewReader(data)

	// Check dimensions before the full decode to avoid decompression bombs.
	cfg, _, err := image.DecodeConfig(reader)
	if err != nil {
		return nil, err
	}
	switch {
	case cfg.Width < 1 || cfg.Height < 1:
		return nil, fmt.Errorf("cover dimensions invalid: %dx%d", cfg.Width, cfg.Height)
	case cfg.Width > maxCoverDimension || cfg.Height > maxCoverDimension:
		return nil, fmt.Errorf("cover dimensions too large: %dx%d (max %d)", cfg.Width, cfg.Height, maxCoverDimension)
	}

	if _, err := reader.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("failed to reset reader: %w", err)
	}

	img, _, err := image.Decode(reader)
	return img, err
}

// resizeToFit scales src so its longer side is size, keeping the aspect ratio.
func resizeToFit(src image.Image, size int) image.Image {
	if src == nil {
		return nil
	}
	bounds := src.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w <= size && h <= size {
		return src
	}

	dw, dh := size, size
	if w > h {
		dh = max(1, h*size/w)
	} else if h > w {
		dw = max(1, w*size/h)
	}

	dst := image.NewNRGBA(image.Rect(0, 0, dw, dh))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, bounds, draw.Src, nil)
	return dst
}
