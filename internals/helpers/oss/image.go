package helper

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"math"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	"golang.org/x/image/draw"

	"fieldforce_backend/internals/configs"
)

// ErrUnsupportedImage is returned for anything that is not jpeg, png or webp.
var ErrUnsupportedImage = errors.New("unsupported image format")

/* =======================================================================
   WebP options (env driven)
======================================================================= */

type WebPOptions struct {
	MaxW     int     // keep-aspect bound
	MaxH     int
	Quality  float32 // used when TargetKB = 0 and as the search ceiling
	TargetKB int     // 0 = single encode at Quality
	MinQ     float32
}

func DefaultWebPOptions() WebPOptions {
	return WebPOptions{
		MaxW:     configs.GetEnvInt("IMAGE_WEBP_MAX_W", 1280),
		MaxH:     configs.GetEnvInt("IMAGE_WEBP_MAX_H", 1280),
		Quality:  float32(configs.GetEnvInt("IMAGE_WEBP_QUALITY", 80)),
		TargetKB: configs.GetEnvInt("IMAGE_WEBP_TARGET_KB", 0),
		MinQ:     float32(configs.GetEnvInt("IMAGE_WEBP_MIN_Q", 40)),
	}
}

/* =======================================================================
   Decode: sniff MIME, honour EXIF orientation (phone cameras)
======================================================================= */

func decodeImage(all []byte, filename string) (image.Image, error) {
	if len(all) == 0 {
		return nil, fmt.Errorf("empty file")
	}
	head := all
	if len(head) > 512 {
		head = head[:512]
	}
	ct := http.DetectContentType(head)
	ext := strings.ToLower(filepath.Ext(filename))

	switch {
	case strings.Contains(ct, "webp"), ext == ".webp" && !strings.HasPrefix(ct, "image/"):
		return webp.Decode(bytes.NewReader(all))
	case strings.Contains(ct, "jpeg"), strings.Contains(ct, "png"):
		return imaging.Decode(bytes.NewReader(all), imaging.AutoOrientation(true))
	default:
		return nil, fmt.Errorf("%w: %s / %s", ErrUnsupportedImage, ct, ext)
	}
}

/* =======================================================================
   Resize (keep aspect, CatmullRom)
======================================================================= */

func downscaleIfNeeded(src image.Image, maxW, maxH int) image.Image {
	if maxW <= 0 && maxH <= 0 {
		return src
	}
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	if (maxW <= 0 || w <= maxW) && (maxH <= 0 || h <= maxH) {
		return src
	}
	scale := 1.0
	if maxW > 0 {
		scale = math.Min(scale, float64(maxW)/float64(w))
	}
	if maxH > 0 {
		scale = math.Min(scale, float64(maxH)/float64(h))
	}
	nw := int(math.Max(1, math.Round(float64(w)*scale)))
	nh := int(math.Max(1, math.Round(float64(h)*scale)))
	dst := image.NewRGBA(image.Rect(0, 0, nw, nh))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Over, nil)
	return dst
}

/* =======================================================================
   Encode
======================================================================= */

func encodeWebP(img image.Image, q float32) ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := webp.Encode(buf, img, &webp.Options{Quality: q}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// encodeToWebP binary-searches quality when a target size is set.
func encodeToWebP(img image.Image, opt WebPOptions) ([]byte, error) {
	q := opt.Quality
	if q <= 0 {
		q = 80
	}
	if opt.TargetKB <= 0 {
		return encodeWebP(img, q)
	}

	target := opt.TargetKB * 1024
	low, high := opt.MinQ, q
	if low <= 0 || low > high {
		low = high / 2
	}
	var best []byte
	for i := 0; i < 7; i++ {
		mid := (low + high) / 2
		data, err := encodeWebP(img, mid)
		if err != nil {
			return nil, err
		}
		if len(data) <= target {
			best = data
			low = mid
		} else {
			high = mid
		}
	}
	if best == nil {
		return encodeWebP(img, low)
	}
	return best, nil
}

// ConvertToWebP decodes, auto-orients, downsizes and re-encodes an uploaded photo.
func ConvertToWebP(all []byte, filename string, opt WebPOptions) ([]byte, error) {
	img, err := decodeImage(all, filename)
	if err != nil {
		return nil, err
	}
	return encodeToWebP(downscaleIfNeeded(img, opt.MaxW, opt.MaxH), opt)
}
