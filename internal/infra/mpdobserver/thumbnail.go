package mpdobserver

import (
	"bytes"
	"image"
	_ "image/gif"  // GIF decoder
	"image/jpeg"
	_ "image/png" // PNG decoder

	"github.com/rs/zerolog/log"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp" // WebP decoder
)

// maxArtEdge bounds thumbnails fed to the image host; embedded pictures
// can be several megabytes of full-resolution artwork.
const maxArtEdge = 500

const jpegQuality = 85

// shrinkArt downscales raw embedded artwork to at most maxArtEdge on its
// longer side and re-encodes it as JPEG. Undecodable input is passed
// through untouched.
func shrinkArt(raw []byte) []byte {
	img, format, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		log.Debug().Err(err).Msg("Could not decode embedded artwork, using raw bytes")
		return raw
	}

	bounds := img.Bounds()
	srcW, srcH := bounds.Dx(), bounds.Dy()
	if srcW <= maxArtEdge && srcH <= maxArtEdge && format == "jpeg" {
		return raw
	}

	newW, newH := srcW, srcH
	if srcW > maxArtEdge || srcH > maxArtEdge {
		if srcW > srcH {
			newW = maxArtEdge
			newH = srcH * maxArtEdge / srcW
		} else {
			newH = maxArtEdge
			newW = srcW * maxArtEdge / srcH
		}
	}

	dst := image.NewRGBA(image.Rect(0, 0, newW, newH))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)

	var out bytes.Buffer
	if err := jpeg.Encode(&out, dst, &jpeg.Options{Quality: jpegQuality}); err != nil {
		log.Debug().Err(err).Msg("Could not re-encode embedded artwork, using raw bytes")
		return raw
	}

	log.Debug().
		Str("format", format).
		Int("from", len(raw)).
		Int("to", out.Len()).
		Msg("Shrunk embedded artwork")
	return out.Bytes()
}
