// Command gwebp encodes and decodes WebP images from the command line.
//
// Usage:
//
//	gwebp [-v] enc [options] <input>          PNG/JPEG/GIF/WebP to WebP ("-" for stdin)
//	gwebp [-v] dec [options] <input.webp>     WebP to PNG/JPEG, animations to GIF
//	gwebp [-v] anim [options] <frame>...      still images to an animated WebP
//	gwebp info <input.webp>                   display WebP features
//	gwebp config [options]                    print the effective YAML config
//
// The coding flags of enc, anim and config override the values of the
// file given with -config.
package main

import (
	"bytes"
	"errors"
	"flag"
	"fmt"
	"image"
	"image/color/palette"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	xdraw "golang.org/x/image/draw"

	"github.com/deepteams/webpcodec"
)

func main() {
	if err := run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			fmt.Fprintf(os.Stderr, "gwebp: %v\n", err)
		}
		os.Exit(1)
	}
}

// cli carries the streams and logger of one invocation.
type cli struct {
	stdin  io.Reader
	stdout io.Writer
	log    *slog.Logger
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	top := flag.NewFlagSet("gwebp", flag.ContinueOnError)
	top.SetOutput(stderr)
	verbose := top.Bool("v", false, "debug logging")
	top.Usage = func() { printUsage(stderr) }
	if err := top.Parse(args); err != nil {
		return err
	}
	args = top.Args()
	if len(args) < 1 {
		printUsage(stderr)
		return errors.New("missing command")
	}

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))
	webpcodec.SetLogger(logger)
	defer webpcodec.SetLogger(nil)

	c := &cli{stdin: stdin, stdout: stdout, log: logger}
	switch args[0] {
	case "enc":
		return c.runEnc(args[1:])
	case "dec":
		return c.runDec(args[1:])
	case "anim":
		return c.runAnim(args[1:])
	case "info":
		return c.runInfo(args[1:])
	case "config":
		return runConfig(args[1:], stdout)
	case "-h", "-help", "--help", "help":
		printUsage(stderr)
		return nil
	}
	printUsage(stderr)
	return fmt.Errorf("unknown command %q", args[0])
}

func printUsage(w io.Writer) {
	fmt.Fprintf(w, `Usage:
  gwebp [-v] enc [options] <input>        Encode PNG/JPEG/GIF/WebP to WebP
  gwebp [-v] dec [options] <input.webp>   Decode WebP to PNG or JPEG, animations to GIF
  gwebp [-v] anim [options] <frame>...    Build an animated WebP from still images
  gwebp info <input.webp>                 Display WebP features
  gwebp config [options]                  Print the effective configuration

Use "-" as input to read from stdin, "-o -" to write to stdout.

Run "gwebp <command> -h" for command-specific options.
`)
}

func (c *cli) readInput(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(c.stdin)
	}
	return os.ReadFile(path)
}

// writeOutput writes data to path, or to stdout for "-".
func (c *cli) writeOutput(path string, data []byte) error {
	if path == "-" {
		_, err := c.stdout.Write(data)
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		os.Remove(path)
		return err
	}
	return nil
}

// outputPath derives a default output name from the input.
func outputPath(out, in, ext string) string {
	if out != "" {
		return out
	}
	if in == "-" {
		return "output" + ext
	}
	return strings.TrimSuffix(filepath.Base(in), filepath.Ext(in)) + ext
}

// parseSize parses "WxH".
func parseSize(s string) (int, int, error) {
	ws, hs, ok := strings.Cut(strings.ToLower(s), "x")
	if !ok {
		return 0, 0, fmt.Errorf("size %q: want WxH", s)
	}
	w, err := strconv.Atoi(ws)
	if err != nil {
		return 0, 0, fmt.Errorf("size %q: %w", s, err)
	}
	h, err := strconv.Atoi(hs)
	if err != nil {
		return 0, 0, fmt.Errorf("size %q: %w", s, err)
	}
	if w <= 0 || h <= 0 {
		return 0, 0, fmt.Errorf("size %q: dimensions must be positive", s)
	}
	return w, h, nil
}

// scale resizes img to w x h. A zero size returns img unchanged.
func scale(img image.Image, w, h int) image.Image {
	if w == 0 || h == 0 || (img.Bounds().Dx() == w && img.Bounds().Dy() == h) {
		return img
	}
	dst := image.NewNRGBA(image.Rect(0, 0, w, h))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), img, img.Bounds(), xdraw.Src, nil)
	return dst
}

// --- enc ---

func (c *cli) runEnc(args []string) error {
	fs := flag.NewFlagSet("enc", flag.ContinueOnError)
	var cf codecFlags
	cf.register(fs, true)
	output := fs.String("o", "", `output path (default: <input>.webp, "-" for stdout)`)
	resize := fs.String("resize", "", "scale to WxH before encoding")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		return errors.New("enc: missing input file\nUsage: gwebp enc [options] <input>")
	}
	cfg, err := cf.resolve(fs)
	if err != nil {
		return fmt.Errorf("enc: %w", err)
	}
	var w, h int
	if *resize != "" {
		if w, h, err = parseSize(*resize); err != nil {
			return fmt.Errorf("enc: %w", err)
		}
	}
	in := fs.Arg(0)
	src, err := c.readInput(in)
	if err != nil {
		return err
	}

	var data []byte
	if g, err := gif.DecodeAll(bytes.NewReader(src)); err == nil && len(g.Image) > 1 {
		data, err = c.encodeGIF(g, cfg, w, h)
		if err != nil {
			return fmt.Errorf("enc: %w", err)
		}
	} else {
		img, format, err := image.Decode(bytes.NewReader(src))
		if err != nil {
			return fmt.Errorf("enc: decoding input: %w", err)
		}
		c.log.Debug("gwebp: input decoded", "format", format, "bounds", img.Bounds())
		var buf bytes.Buffer
		if err := webpcodec.Encode(&buf, scale(img, w, h), &cfg.Encode); err != nil {
			return fmt.Errorf("enc: %w", err)
		}
		data = buf.Bytes()
	}

	out := outputPath(*output, in, ".webp")
	if err := c.writeOutput(out, data); err != nil {
		return fmt.Errorf("enc: %w", err)
	}
	c.log.Info("gwebp: encoded", "input", in, "output", out, "bytes", len(data),
		"lossless", cfg.Encode.Lossless, "quality", cfg.Encode.Quality)
	return nil
}

// encodeGIF composites the GIF frames and streams the canvases into an
// animation session.
func (c *cli) encodeGIF(g *gif.GIF, cfg *fileConfig, w, h int) ([]byte, error) {
	cw, ch := g.Config.Width, g.Config.Height
	if cw == 0 || ch == 0 {
		cw, ch = g.Image[0].Bounds().Dx(), g.Image[0].Bounds().Dy()
	}
	if w == 0 {
		w, h = cw, ch
	}
	opts := cfg.Stream
	opts.LoopCount = webpLoopCount(g.LoopCount)
	sess, err := webpcodec.NewStreamEncoder(w, h, true, &opts)
	if err != nil {
		return nil, err
	}
	defer webpcodec.StreamDispose(sess)

	canvas := image.NewNRGBA(image.Rect(0, 0, cw, ch))
	for i, frame := range g.Image {
		b := frame.Bounds()
		var disposal byte
		if i < len(g.Disposal) {
			disposal = g.Disposal[i]
		}
		var saved *image.NRGBA
		if disposal == gif.DisposalPrevious {
			saved = image.NewNRGBA(b)
			xdraw.Draw(saved, b, canvas, b.Min, xdraw.Src)
		}
		xdraw.Draw(canvas, b, frame, b.Min, xdraw.Over)

		delay := cfg.FrameDurationMs
		if i < len(g.Delay) && g.Delay[i] > 0 {
			delay = g.Delay[i] * 10
		}
		pb := pixelBuffer(scale(canvas, w, h))
		if err := webpcodec.StreamAddFrame(sess, pb, delay); err != nil {
			return nil, fmt.Errorf("frame %d: %w", i, err)
		}

		switch disposal {
		case gif.DisposalBackground:
			xdraw.Draw(canvas, b, image.Transparent, image.Point{}, xdraw.Src)
		case gif.DisposalPrevious:
			xdraw.Draw(canvas, b, saved, b.Min, xdraw.Src)
		}
	}
	return webpcodec.StreamFinalize(sess)
}

// webpLoopCount maps a GIF loop count, the number of restarts, to the
// WebP number of plays.
func webpLoopCount(n int) int {
	switch {
	case n == 0:
		return 0
	case n < 0:
		return 1
	}
	return n + 1
}

func gifLoopCount(n int) int {
	switch n {
	case 0:
		return 0
	case 1:
		return -1
	}
	return n - 1
}

// pixelBuffer copies img into a packed RGBA buffer.
func pixelBuffer(img image.Image) *webpcodec.PixelBuffer {
	b := img.Bounds()
	n := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	xdraw.Draw(n, n.Bounds(), img, b.Min, xdraw.Src)
	return &webpcodec.PixelBuffer{Width: b.Dx(), Height: b.Dy(), Channels: 4, Pix: n.Pix}
}

// --- anim ---

func (c *cli) runAnim(args []string) error {
	fs := flag.NewFlagSet("anim", flag.ContinueOnError)
	var cf codecFlags
	cf.register(fs, true)
	output := fs.String("o", "", `output path ("-" for stdout)`)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		return errors.New("anim: missing frames\nUsage: gwebp anim [options] -o out.webp <frame>...")
	}
	if *output == "" {
		return errors.New("anim: missing -o")
	}
	cfg, err := cf.resolve(fs)
	if err != nil {
		return fmt.Errorf("anim: %w", err)
	}

	var (
		sess   webpcodec.Handle
		w, h   int
		opened bool
	)
	defer func() {
		if opened {
			webpcodec.StreamDispose(sess)
		}
	}()
	for i, path := range fs.Args() {
		src, err := c.readInput(path)
		if err != nil {
			return fmt.Errorf("anim: %w", err)
		}
		img, _, err := image.Decode(bytes.NewReader(src))
		if err != nil {
			return fmt.Errorf("anim: %s: %w", path, err)
		}
		if !opened {
			w, h = img.Bounds().Dx(), img.Bounds().Dy()
			if sess, err = webpcodec.NewStreamEncoder(w, h, true, &cfg.Stream); err != nil {
				return fmt.Errorf("anim: %w", err)
			}
			opened = true
		}
		if err := webpcodec.StreamAddFrame(sess, pixelBuffer(img), cfg.FrameDurationMs); err != nil {
			return fmt.Errorf("anim: frame %d (%s): %w", i, path, err)
		}
		c.log.Debug("gwebp: frame added", "index", i, "path", path)
	}
	data, err := webpcodec.StreamFinalize(sess)
	if err != nil {
		return fmt.Errorf("anim: %w", err)
	}
	if err := c.writeOutput(*output, data); err != nil {
		return fmt.Errorf("anim: %w", err)
	}
	c.log.Info("gwebp: animation written", "output", *output, "frames", fs.NArg(),
		"width", w, "height", h, "bytes", len(data))
	return nil
}

// --- dec ---

func (c *cli) runDec(args []string) error {
	fs := flag.NewFlagSet("dec", flag.ContinueOnError)
	output := fs.String("o", "", `output path (default: .png, or .gif for animations; "-" for stdout)`)
	fmtFlag := fs.String("fmt", "", "output format: png, jpeg (default from the extension)")
	resize := fs.String("resize", "", "scale to WxH after decoding")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		return errors.New("dec: missing input file\nUsage: gwebp dec [options] <input.webp>")
	}
	var w, h int
	var err error
	if *resize != "" {
		if w, h, err = parseSize(*resize); err != nil {
			return fmt.Errorf("dec: %w", err)
		}
	}
	in := fs.Arg(0)
	data, err := c.readInput(in)
	if err != nil {
		return err
	}
	feat, err := webpcodec.GetFeatures(data)
	if err != nil {
		return fmt.Errorf("dec: %w", err)
	}

	var buf bytes.Buffer
	var out string
	if feat.HasAnimation {
		out = outputPath(*output, in, ".gif")
		if err := decodeToGIF(&buf, data, feat, w, h); err != nil {
			return fmt.Errorf("dec: %w", err)
		}
	} else {
		format := detectOutputFormat(*fmtFlag, *output)
		ext := ".png"
		if format == "jpeg" {
			ext = ".jpg"
		}
		out = outputPath(*output, in, ext)
		img, err := webpcodec.Decode(bytes.NewReader(data))
		if err != nil {
			return fmt.Errorf("dec: %w", err)
		}
		if err := encodeImage(&buf, scale(img, w, h), format); err != nil {
			return fmt.Errorf("dec: %w", err)
		}
	}
	if err := c.writeOutput(out, buf.Bytes()); err != nil {
		return fmt.Errorf("dec: %w", err)
	}
	c.log.Info("gwebp: decoded", "input", in, "output", out, "frames", feat.FrameCount)
	return nil
}

// detectOutputFormat returns "png" or "jpeg" from the flag or extension.
func detectOutputFormat(fmtFlag, path string) string {
	if fmtFlag != "" {
		return strings.ToLower(fmtFlag)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg":
		return "jpeg"
	}
	return "png"
}

func encodeImage(w io.Writer, img image.Image, format string) error {
	switch format {
	case "jpeg", "jpg":
		return jpeg.Encode(w, img, &jpeg.Options{Quality: 90})
	case "png":
		return png.Encode(w, img)
	}
	return fmt.Errorf("unsupported output format %q", format)
}

// decodeToGIF converts an animation to a GIF of full-canvas frames.
func decodeToGIF(w io.Writer, data []byte, feat webpcodec.Features, sw, sh int) error {
	frames, err := webpcodec.DecodeAnimation(data, true)
	if err != nil {
		return err
	}
	g := &gif.GIF{LoopCount: gifLoopCount(feat.LoopCount)}
	for _, f := range frames {
		img := scale(f.Pixels.NRGBA(), sw, sh)
		p := image.NewPaletted(img.Bounds(), palette.Plan9)
		xdraw.FloydSteinberg.Draw(p, p.Bounds(), img, img.Bounds().Min)
		g.Image = append(g.Image, p)
		g.Delay = append(g.Delay, (f.DurationMs+5)/10)
		g.Disposal = append(g.Disposal, gif.DisposalNone)
	}
	return gif.EncodeAll(w, g)
}

// --- info ---

func (c *cli) runInfo(args []string) error {
	if len(args) < 1 {
		return errors.New("info: missing input file\nUsage: gwebp info <input.webp>")
	}
	in := args[0]
	data, err := c.readInput(in)
	if err != nil {
		return err
	}
	feat, err := webpcodec.GetFeatures(data)
	if err != nil {
		return fmt.Errorf("info: %w", err)
	}
	name := in
	if in == "-" {
		name = "<stdin>"
	}
	out := c.stdout
	fmt.Fprintf(out, "File:       %s\n", name)
	fmt.Fprintf(out, "Format:     %s\n", feat.Format)
	fmt.Fprintf(out, "Dimensions: %d x %d\n", feat.Width, feat.Height)
	fmt.Fprintf(out, "Alpha:      %v\n", feat.HasAlpha)
	fmt.Fprintf(out, "Extended:   %v\n", feat.Extended)
	fmt.Fprintf(out, "Animation:  %v\n", feat.HasAnimation)
	if feat.HasAnimation {
		fmt.Fprintf(out, "Frames:     %d\n", feat.FrameCount)
		loop := "infinite"
		if feat.LoopCount > 0 {
			loop = strconv.Itoa(feat.LoopCount)
		}
		fmt.Fprintf(out, "Loop count: %s\n", loop)
	}
	fmt.Fprintf(out, "File size:  %d bytes\n", len(data))
	return nil
}
