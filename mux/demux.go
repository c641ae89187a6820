package mux

import (
	"fmt"

	"github.com/deepteams/webpcodec/internal/container"
)

// FrameInfo is one picture of a demultiplexed file with its placement.
// Still images report a zero offset and duration.
type FrameInfo struct {
	Image
	FrameOptions
	Width, Height int
	Unknown       []container.Chunk // extra chunks nested in the ANMF payload
}

// Demuxer gives access to the parts of a WebP file. Returned byte slices
// alias the input.
type Demuxer struct {
	file *container.File
}

// NewDemuxer validates data and indexes its chunks.
func NewDemuxer(data []byte) (*Demuxer, error) {
	f, err := container.Parse(data)
	if err != nil {
		return nil, err
	}
	return &Demuxer{file: f}, nil
}

// Features describes the file.
func (d *Demuxer) Features() container.Features { return d.file.Features }

// NumFrames returns the number of pictures, 1 for still images.
func (d *Demuxer) NumFrames() int { return len(d.file.Frames) }

// Frame returns picture i in file order.
func (d *Demuxer) Frame(i int) (FrameInfo, error) {
	if i < 0 || i >= len(d.file.Frames) {
		return FrameInfo{}, fmt.Errorf("mux: frame %d of %d", i, len(d.file.Frames))
	}
	fr := &d.file.Frames[i]
	return FrameInfo{
		Image: Image{Bitstream: fr.Bitstream, Alpha: fr.Alpha, Lossless: fr.Lossless},
		FrameOptions: FrameOptions{
			X:        fr.X,
			Y:        fr.Y,
			Duration: fr.Duration,
			Dispose:  fr.Dispose,
			Blend:    fr.Blend,
		},
		Width:   fr.Width,
		Height:  fr.Height,
		Unknown: fr.Unknown,
	}, nil
}

// Frames returns every picture in file order.
func (d *Demuxer) Frames() []FrameInfo {
	out := make([]FrameInfo, len(d.file.Frames))
	for i := range out {
		out[i], _ = d.Frame(i)
	}
	return out
}

// ICCProfile returns the ICCP payload, or nil.
func (d *Demuxer) ICCProfile() []byte { return d.file.ICCP }

// EXIF returns the EXIF payload, or nil.
func (d *Demuxer) EXIF() []byte { return d.file.EXIF }

// XMP returns the XMP payload, or nil.
func (d *Demuxer) XMP() []byte { return d.file.XMP }

// Unknown returns the top-level chunks the container does not define.
func (d *Demuxer) Unknown() []container.Chunk { return d.file.Unknown }

// Muxer returns a Muxer holding everything in the file, ready to be
// modified and reassembled.
func (d *Demuxer) Muxer() (*Muxer, error) {
	m := NewMuxer()
	feat := d.file.Features
	m.iccp, m.exif, m.xmp = d.file.ICCP, d.file.EXIF, d.file.XMP
	for _, c := range d.file.Unknown {
		m.AddChunk(c.ID, c.Payload)
	}
	if !feat.HasAnimation {
		fi, _ := d.Frame(0)
		return m, m.SetImage(fi.Image)
	}
	m.SetCanvasSize(feat.Width, feat.Height)
	m.SetLoopCount(feat.LoopCount)
	m.SetBackgroundColor(feat.Background)
	for _, fi := range d.Frames() {
		if err := m.AddFrame(fi.Image, fi.FrameOptions); err != nil {
			return nil, err
		}
	}
	return m, nil
}
