package lossy

import (
	"fmt"
	"math"

	"github.com/deepteams/webpcodec/internal/container"
	"github.com/deepteams/webpcodec/internal/lossless"
	"github.com/deepteams/webpcodec/internal/pool"
)

// FilterAuto lets EncodeAlpha pick the prediction filter.
const FilterAuto = -1

// AlphaOptions control the ALPH coder.
type AlphaOptions struct {
	// Quality 100 keeps alpha exact. Lower values quantize the plane to
	// fewer levels before coding.
	Quality int
	// Method 0 picks the filter from an entropy estimate; higher methods
	// compress with every filter and keep the smallest.
	Method int
	// Filter is FilterAuto or one of the container.AlphaFilter values.
	Filter int
	// Uncompressed stores the filtered plane raw.
	Uncompressed bool
}

// DefaultAlphaOptions returns exact, lossless-compressed alpha with an
// automatic filter.
func DefaultAlphaOptions() AlphaOptions {
	return AlphaOptions{Quality: 100, Method: 1, Filter: FilterAuto}
}

// EncodeAlpha codes a width x height alpha plane into an ALPH payload.
func EncodeAlpha(alpha []byte, width, height int, o AlphaOptions) ([]byte, error) {
	if width <= 0 || height <= 0 || len(alpha) < width*height {
		return nil, fmt.Errorf("alpha: %d bytes for a %dx%d plane", len(alpha), width, height)
	}
	if o.Filter < FilterAuto || o.Filter > container.AlphaFilterGradient {
		return nil, fmt.Errorf("alpha: unknown filter %d", o.Filter)
	}
	plane := make([]byte, width*height)
	copy(plane, alpha)

	hdr := container.AlphaHeader{Compression: container.AlphaLosslessCompression}
	if o.Uncompressed {
		hdr.Compression = container.AlphaNoCompression
	}
	if q := min(max(o.Quality, 0), 100); q < 100 {
		if quantizeLevels(plane, alphaLevels(q)) {
			hdr.PreProcessing = container.AlphaPreprocessedLevels
		}
	}

	var filters []int
	switch {
	case o.Filter != FilterAuto:
		filters = []int{o.Filter}
	case o.Method == 0 || o.Uncompressed:
		filters = []int{estimateFilter(plane, width, height)}
	default:
		filters = []int{
			container.AlphaFilterNone, container.AlphaFilterHorizontal,
			container.AlphaFilterVertical, container.AlphaFilterGradient,
		}
	}

	var best []byte
	filtered := pool.Get(len(plane))
	defer pool.Put(filtered)
	var argb []uint32
	if !o.Uncompressed {
		argb = pool.GetUint32(len(plane))
		defer pool.PutUint32(argb)
	}
	for _, f := range filters {
		filterAlpha(plane, filtered, width, height, f)
		hdr.Filter = f
		out := []byte{hdr.Byte()}
		if o.Uncompressed {
			out = append(out, filtered...)
		} else {
			for i, a := range filtered {
				argb[i] = 0xff000000 | uint32(a)<<8
			}
			lo := lossless.Options{Quality: 75, Method: min(max(o.Method, 0), 6), Exact: true, NoPalette: true}
			out = append(out, lossless.EncodeImageStream(argb, width, height, lo)...)
		}
		if best == nil || len(out) < len(best) {
			best = out
		}
	}
	return best, nil
}

// DecodeAlpha decodes an ALPH payload into a width x height plane.
func DecodeAlpha(payload []byte, width, height int) ([]byte, error) {
	hdr, err := container.ParseAlphaHeader(payload)
	if err != nil {
		return nil, err
	}
	n := width * height
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: alpha plane %dx%d", container.ErrInvalidBitstream, width, height)
	}
	plane := make([]byte, n)
	data := payload[1:]
	switch hdr.Compression {
	case container.AlphaNoCompression:
		if len(data) < n {
			return nil, fmt.Errorf("%w: alpha plane of %d bytes, want %d (%w)", container.ErrInvalidBitstream, len(data), n, container.ErrTruncated)
		}
		copy(plane, data)
	case container.AlphaLosslessCompression:
		argb, err := lossless.DecodeImageStream(data, width, height)
		if err != nil {
			return nil, err
		}
		for i, p := range argb {
			plane[i] = byte(p >> 8)
		}
	}
	unfilterAlpha(plane, width, height, hdr.Filter)
	return plane, nil
}

// alphaLevels maps a quality below 100 to the number of levels kept.
func alphaLevels(quality int) int {
	if quality <= 70 {
		return 2 + quality/5
	}
	return 16 + (quality-70)*8
}

func gradientPredictor(left, top, topLeft byte) byte {
	return byte(min(max(int(left)+int(top)-int(topLeft), 0), 255))
}

// alphaPredict returns the prediction for pixel (x, y) of plane. The first
// row predicts from the left and the first column from above.
func alphaPredict(plane []byte, x, y, width, filter int) byte {
	i := y*width + x
	switch {
	case filter == container.AlphaFilterNone || x == 0 && y == 0:
		return 0
	case y == 0:
		return plane[i-1]
	case x == 0:
		return plane[i-width]
	}
	switch filter {
	case container.AlphaFilterHorizontal:
		return plane[i-1]
	case container.AlphaFilterVertical:
		return plane[i-width]
	default:
		return gradientPredictor(plane[i-1], plane[i-width], plane[i-width-1])
	}
}

func filterAlpha(in, out []byte, width, height, filter int) {
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			i := y*width + x
			out[i] = in[i] - alphaPredict(in, x, y, width, filter)
		}
	}
}

// unfilterAlpha undoes filterAlpha in place. Predictions only reach back to
// pixels already restored.
func unfilterAlpha(plane []byte, width, height, filter int) {
	if filter == container.AlphaFilterNone {
		return
	}
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			plane[y*width+x] += alphaPredict(plane, x, y, width, filter)
		}
	}
}

// estimateFilter picks the filter whose residuals have the smallest
// entropy.
func estimateFilter(plane []byte, width, height int) int {
	best, bestBits := container.AlphaFilterNone, math.Inf(1)
	residuals := make([]byte, len(plane))
	for f := container.AlphaFilterNone; f <= container.AlphaFilterGradient; f++ {
		filterAlpha(plane, residuals, width, height, f)
		var hist [256]int
		for _, r := range residuals {
			hist[r]++
		}
		bits := 0.0
		for _, n := range hist {
			if n > 0 {
				p := float64(n) / float64(len(residuals))
				bits -= float64(n) * math.Log2(p)
			}
		}
		if bits < bestBits {
			best, bestBits = f, bits
		}
	}
	return best
}

// quantizeLevels reduces plane to at most levels distinct values with a
// one-dimensional k-means seeded uniformly over the value range. It reports
// whether the plane changed.
func quantizeLevels(plane []byte, levels int) bool {
	var freq [256]int
	lo, hi, distinct := 255, 0, 0
	for _, v := range plane {
		if freq[v] == 0 {
			distinct++
		}
		freq[v]++
		lo, hi = min(lo, int(v)), max(hi, int(v))
	}
	if distinct <= levels {
		return false
	}

	centers := make([]float64, levels)
	for i := range centers {
		centers[i] = float64(lo) + float64(hi-lo)*float64(i)/float64(levels-1)
	}
	var slotOf [256]int
	lastErr := math.Inf(1)
	for iter := 0; iter < 6; iter++ {
		sum := make([]float64, levels)
		count := make([]float64, levels)
		slot := 0
		for s := lo; s <= hi; s++ {
			for slot < levels-1 && 2*float64(s) > centers[slot]+centers[slot+1] {
				slot++
			}
			slotOf[s] = slot
			sum[slot] += float64(s * freq[s])
			count[slot] += float64(freq[s])
		}
		// The end levels stay at lo and hi.
		for i := 1; i < levels-1; i++ {
			if count[i] > 0 {
				centers[i] = sum[i] / count[i]
			}
		}
		err := 0.0
		for s := lo; s <= hi; s++ {
			d := float64(s) - centers[slotOf[s]]
			err += float64(freq[s]) * d * d
		}
		if lastErr-err < 1e-4*float64(len(plane)) {
			break
		}
		lastErr = err
	}

	var remap [256]byte
	for s := lo; s <= hi; s++ {
		remap[s] = byte(centers[slotOf[s]] + 0.5)
	}
	for i, v := range plane {
		plane[i] = remap[v]
	}
	return true
}
