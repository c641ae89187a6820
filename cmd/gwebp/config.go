package main

import (
	"bytes"
	"flag"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/deepteams/webpcodec"
)

// fileConfig is the layout of the -config YAML file.
type fileConfig struct {
	Encode webpcodec.Config        `yaml:"encode"`
	Stream webpcodec.StreamOptions `yaml:"stream"`
	// FrameDurationMs is the default display time of frames added by anim.
	FrameDurationMs int `yaml:"frame_duration_ms"`
}

func defaultFileConfig() *fileConfig {
	return &fileConfig{
		Encode:          *webpcodec.DefaultConfig(),
		Stream:          webpcodec.DefaultStreamOptions(),
		FrameDurationMs: 100,
	}
}

// loadConfig reads path over the defaults. Unknown keys are errors. An
// empty path returns the defaults.
func loadConfig(path string) (*fileConfig, error) {
	cfg := defaultFileConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && err != io.EOF {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c *fileConfig) validate() error {
	if c.FrameDurationMs < 0 {
		return fmt.Errorf("frame_duration_ms must not be negative, got %d", c.FrameDurationMs)
	}
	if c.Stream.Kmax > 0 && c.Stream.Kmin > c.Stream.Kmax {
		return fmt.Errorf("stream.kmin %d exceeds stream.kmax %d", c.Stream.Kmin, c.Stream.Kmax)
	}
	return nil
}

// codecFlags are the coding flags shared by enc, anim and config. They
// are bound to fresh variables so that only flags given on the command
// line override the file.
type codecFlags struct {
	config       string
	quality      float64
	lossless     bool
	method       int
	alphaQuality int
	exact        bool
	sharpYUV     bool
	segments     int
	sns          int
	partitions   int
	nearLossless int
	loop         int
	kmin, kmax   int
	minSize      bool
	mixed        bool
	duration     int
}

func (cf *codecFlags) register(fs *flag.FlagSet, animated bool) {
	d := defaultFileConfig()
	fs.StringVar(&cf.config, "config", "", "YAML config file")
	fs.Float64Var(&cf.quality, "q", float64(d.Encode.Quality), "quality 0-100")
	fs.BoolVar(&cf.lossless, "lossless", false, "lossless VP8L encoding")
	fs.IntVar(&cf.method, "m", d.Encode.Method, "compression effort 0-6")
	fs.IntVar(&cf.alphaQuality, "alpha_q", d.Encode.AlphaQuality, "alpha quality 0-100")
	fs.BoolVar(&cf.exact, "exact", false, "preserve RGB in transparent areas")
	fs.BoolVar(&cf.sharpYUV, "sharp_yuv", false, "sharper, slower RGB to YUV conversion")
	fs.IntVar(&cf.segments, "segments", d.Encode.Segments, "lossy segments 1-4")
	fs.IntVar(&cf.sns, "sns", d.Encode.SNSStrength, "spatial noise shaping 0-100")
	fs.IntVar(&cf.partitions, "partitions", 0, "log2 of lossy token partitions 0-3")
	fs.IntVar(&cf.nearLossless, "near_lossless", 0, "near-lossless level 1-99, 0 = exact")
	if !animated {
		return
	}
	fs.IntVar(&cf.loop, "loop", 0, "loop count, 0 = infinite")
	fs.IntVar(&cf.kmin, "kmin", 0, "minimum distance between keyframes")
	fs.IntVar(&cf.kmax, "kmax", 0, "maximum distance between keyframes, 0 = only the first")
	fs.BoolVar(&cf.minSize, "min_size", false, "search harder for the smallest frames")
	fs.BoolVar(&cf.mixed, "mixed", false, "pick lossy or lossless per frame")
	fs.IntVar(&cf.duration, "d", d.FrameDurationMs, "frame duration in milliseconds")
}

// resolve loads the config file and applies the flags that were set.
func (cf *codecFlags) resolve(fs *flag.FlagSet) (*fileConfig, error) {
	cfg, err := loadConfig(cf.config)
	if err != nil {
		return nil, err
	}
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "q":
			cfg.Encode.Quality = float32(cf.quality)
			cfg.Stream.Quality = float32(cf.quality)
		case "lossless":
			cfg.Encode.Lossless = cf.lossless
			cfg.Stream.Lossless = cf.lossless
		case "m":
			cfg.Encode.Method = cf.method
			cfg.Stream.Method = cf.method
		case "alpha_q":
			cfg.Encode.AlphaQuality = cf.alphaQuality
			cfg.Stream.AlphaQuality = cf.alphaQuality
		case "exact":
			cfg.Encode.Exact = cf.exact
		case "sharp_yuv":
			cfg.Encode.SharpYUV = cf.sharpYUV
			cfg.Stream.SharpYUV = cf.sharpYUV
		case "segments":
			cfg.Encode.Segments = cf.segments
		case "sns":
			cfg.Encode.SNSStrength = cf.sns
		case "partitions":
			cfg.Encode.Partitions = cf.partitions
		case "near_lossless":
			cfg.Encode.NearLossless = cf.nearLossless
		case "loop":
			cfg.Stream.LoopCount = cf.loop
		case "kmin":
			cfg.Stream.Kmin = cf.kmin
		case "kmax":
			cfg.Stream.Kmax = cf.kmax
		case "min_size":
			cfg.Stream.MinimizeSize = cf.minSize
		case "mixed":
			cfg.Stream.AllowMixed = cf.mixed
		case "d":
			cfg.FrameDurationMs = cf.duration
		}
	})
	cfg.Encode = cfg.Encode.Normalize()
	cfg.Stream = cfg.Stream.Normalize()
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// runConfig prints the effective configuration as YAML.
func runConfig(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("config", flag.ContinueOnError)
	var cf codecFlags
	cf.register(fs, true)
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, err := cf.resolve(fs)
	if err != nil {
		return err
	}
	enc := yaml.NewEncoder(stdout)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return err
	}
	return enc.Close()
}
