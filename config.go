package webpcodec

import (
	"errors"

	"github.com/deepteams/webpcodec/animation"
	"github.com/deepteams/webpcodec/internal/container"
)

// Error kinds. Every error returned by the package wraps one of these and
// can be tested with errors.Is.
var (
	ErrTruncated          = container.ErrTruncated
	ErrMalformedContainer = container.ErrMalformed
	ErrInvalidBitstream   = container.ErrInvalidBitstream
	ErrTooLarge           = container.ErrTooLarge
	ErrDimensionMismatch  = animation.ErrDimensionMismatch
	ErrInvalidState       = animation.ErrInvalidState
	ErrInvalidHandle      = animation.ErrInvalidHandle
	ErrHandlesExhausted   = animation.ErrHandlesExhausted
	ErrNoFrames           = animation.ErrNoFrames
	ErrInvalidPixelBuffer = errors.New("webp: invalid pixel buffer")
)

// MaxDimension is the largest width or height of an image.
const MaxDimension = container.VP8LMaxDim

// Config controls one-shot encoding. The zero value is lossy at quality
// 0; use DefaultConfig for the usual settings.
type Config struct {
	// Lossless selects VP8L instead of VP8.
	Lossless bool `yaml:"lossless"`
	// Quality is 0 to 100. For lossy coding it sets the quantizer, for
	// lossless coding the effort spent searching for matches.
	Quality float32 `yaml:"quality"`
	// Method trades speed for size, 0 (fast) to 6 (small).
	Method int `yaml:"method"`
	// AlphaQuality is 0 to 100; below 100 the alpha plane of lossy
	// images is reduced to fewer levels.
	AlphaQuality int `yaml:"alpha_quality"`
	// Exact keeps the colour of fully transparent pixels in lossy images.
	// Lossless images always keep it.
	Exact bool `yaml:"exact"`
	// SharpYUV uses the slower, edge-preserving RGB to YUV conversion for
	// lossy coding.
	SharpYUV bool `yaml:"sharp_yuv"`
	// Segments, 1 to 4, groups lossy macroblocks of similar complexity
	// under their own quantizer. 0 means one segment.
	Segments int `yaml:"segments"`
	// SNSStrength, 0 to 100, quantizes flat segments more finely than
	// busy ones.
	SNSStrength int `yaml:"sns_strength"`
	// Partitions is the base-2 logarithm of the number of lossy token
	// partitions, 0 to 3.
	Partitions int `yaml:"partitions"`
	// NearLossless, 1 to 99, lets lossless images change by a few levels
	// per channel for smaller output; lower is lossier. 0 and 100 are
	// exact.
	NearLossless int `yaml:"near_lossless"`
}

// DefaultConfig returns lossy quality 75, method 4, lossless alpha, four
// segments and SNS strength 50.
func DefaultConfig() *Config {
	return &Config{
		Quality:      75,
		Method:       4,
		AlphaQuality: 100,
		Segments:     4,
		SNSStrength:  50,
	}
}

// Normalize clamps every field into its valid range. Out-of-range values
// are never rejected.
func (c Config) Normalize() Config {
	c.Quality = min(max(c.Quality, 0), 100)
	c.Method = min(max(c.Method, 0), 6)
	c.AlphaQuality = min(max(c.AlphaQuality, 0), 100)
	c.Segments = min(max(c.Segments, 0), 4)
	c.SNSStrength = min(max(c.SNSStrength, 0), 100)
	c.Partitions = min(max(c.Partitions, 0), 3)
	c.NearLossless = min(max(c.NearLossless, 0), 100)
	return c
}

func resolveConfig(c *Config) Config {
	if c == nil {
		return *DefaultConfig()
	}
	return c.Normalize()
}

// StreamOptions configure a streaming encoder session.
type StreamOptions = animation.StreamOptions

// DefaultStreamOptions returns quality 80, method 4, lossy frames, one
// keyframe, infinite looping.
func DefaultStreamOptions() StreamOptions {
	return animation.DefaultStreamOptions()
}
