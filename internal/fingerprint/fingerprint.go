// Package fingerprint computes content fingerprints used to spot re-uploads of
// the same document. Images get a 64-bit difference hash that survives
// re-encoding and small resizes; PDFs get an exact hash of their text.
package fingerprint

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"image"
	"math/bits"
	"strconv"
	"strings"

	"github.com/disintegration/imaging"
)

const (
	dhashPrefix  = "dhash:"
	sha256Prefix = "sha256:"

	hashWidth  = 9
	hashHeight = 8
)

// ErrUnsupported is returned for content that cannot be fingerprinted.
var ErrUnsupported = errors.New("fingerprint: unsupported content")

// Compute returns the fingerprint of data.
func Compute(data []byte, mimeType, fileName string) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("%w: empty payload", ErrUnsupported)
	}
	switch kind := DetectKind(data, mimeType, fileName); kind {
	case KindPDF:
		return pdfFingerprint(data), nil
	case KindImage:
		img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
		if err != nil {
			return "", fmt.Errorf("%w: decode image: %v", ErrUnsupported, err)
		}
		return DHash(img), nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupported, mimeType)
	}
}

// DHash computes a 64-bit difference hash: the image is reduced to a 9x8
// grayscale grid and each bit records whether a pixel is brighter than its
// right-hand neighbour.
func DHash(img image.Image) string {
	small := imaging.Resize(imaging.Grayscale(img), hashWidth, hashHeight, imaging.Lanczos)
	var hash uint64
	for y := 0; y < hashHeight; y++ {
		row := small.Pix[y*small.Stride:]
		for x := 0; x < hashWidth-1; x++ {
			hash <<= 1
			if row[x*4] > row[(x+1)*4] {
				hash |= 1
			}
		}
	}
	return fmt.Sprintf("%s%016x", dhashPrefix, hash)
}

func sha256Fingerprint(b []byte) string {
	sum := sha256.Sum256(b)
	return sha256Prefix + hex.EncodeToString(sum[:])
}

// Distance returns how far apart two fingerprints are. Two difference hashes
// compare by Hamming distance; exact hashes are 0 when equal. ok is false when
// the fingerprints are not comparable.
func Distance(a, b string) (int, bool) {
	if a == "" || b == "" {
		return 0, false
	}
	ha, okA := parseDHash(a)
	hb, okB := parseDHash(b)
	if okA && okB {
		return bits.OnesCount64(ha ^ hb), true
	}
	if okA || okB {
		return 0, false
	}
	if a == b {
		return 0, true
	}
	return 0, false
}

// Similar reports whether a and b are within maxDistance of each other.
func Similar(a, b string, maxDistance int) bool {
	d, ok := Distance(a, b)
	return ok && d <= maxDistance
}

func parseDHash(fp string) (uint64, bool) {
	if !strings.HasPrefix(fp, dhashPrefix) {
		return 0, false
	}
	v, err := strconv.ParseUint(strings.TrimPrefix(fp, dhashPrefix), 16, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
