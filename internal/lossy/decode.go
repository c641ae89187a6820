package lossy

import (
	"fmt"

	"github.com/deepteams/webpcodec/internal/bitio"
	"github.com/deepteams/webpcodec/internal/container"
)

func truncated(what string) error {
	return fmt.Errorf("%w: vp8 %s (%w)", container.ErrInvalidBitstream, what, container.ErrTruncated)
}

type segmentHeader struct {
	useSegment     bool
	updateMap      bool
	absoluteDelta  bool
	quantizer      [numSegments]int
	filterStrength [numSegments]int
}

type filterHeader struct {
	simple      bool
	level       int
	sharpness   int
	useLFDelta  bool
	refLFDelta  [numRefLFDelta]int
	modeLFDelta [numModeLFDelta]int
}

// filterInfo is the loop-filter setting of one macroblock.
type filterInfo struct {
	limit     int // 0 disables filtering
	ilevel    int
	hevThresh int
	inner     bool
}

// nzContext records which 4x4 blocks along a macroblock edge carried
// coefficients.
type nzContext struct {
	y  [4]uint8
	u  [2]uint8
	v  [2]uint8
	dc uint8
}

// Decoder holds the state of one VP8 key-frame decode.
type Decoder struct {
	width, height int
	mbW, mbH      int

	br    *bitio.BoolReader
	parts []*bitio.BoolReader

	segHdr       segmentHeader
	filterHdr    filterHeader
	filterType   int // 0 off, 1 simple, 2 normal
	segmentProbs [3]uint8
	coeffProbs   [numTypes][numBands][numCtx][numProbas]uint8
	useSkipProba bool
	skipProba    uint8

	dqm        [numSegments]quantMatrix
	fstrengths [numSegments][2]filterInfo

	intraT []uint8 // 4 sub-block modes per macroblock column
	intraL [4]uint8
	nzT    []nzContext
	nzL    nzContext
	finfo  []filterInfo // per macroblock, raster order

	img    *YUVImage
	ws     workspace
	coeffs [25 * 16]int16
}

// DecodeFrame decodes a VP8 key frame into a YUV image.
func DecodeFrame(data []byte) (*YUVImage, error) {
	dec := &Decoder{}
	if err := dec.parseHeaders(data); err != nil {
		return nil, err
	}
	if err := dec.decodeMacroblocks(); err != nil {
		return nil, err
	}
	dec.loopFilter()
	return dec.img, nil
}

// DecodeFrameConfig returns the dimensions stored in a VP8 frame header.
func DecodeFrameConfig(data []byte) (width, height int, err error) {
	return container.ParseVP8Header(data)
}

func (dec *Decoder) parseHeaders(data []byte) error {
	w, h, err := container.ParseVP8Header(data)
	if err != nil {
		return err
	}
	dec.width, dec.height = w, h
	partLen := int(container.ReadLE24(data) >> 5)
	dec.mbW = (dec.width + 15) >> 4
	dec.mbH = (dec.height + 15) >> 4

	buf := data[container.VP8FrameHeaderSize:]
	dec.br = bitio.NewBoolReader(buf[:partLen])
	br := dec.br

	br.GetBit(probUniform) // colour space
	br.GetBit(probUniform) // clamping type
	dec.parseSegmentHeader()
	dec.parseFilterHeader()
	if err := dec.parsePartitions(buf[partLen:]); err != nil {
		return err
	}
	dec.parseQuant()
	br.GetBit(probUniform) // refresh entropy probs, meaningless on key frames
	dec.parseProbas()
	if br.EOF() {
		return truncated("frame header")
	}

	dec.img = newYUVImage(dec.width, dec.height)
	dec.intraT = make([]uint8, 4*dec.mbW)
	dec.nzT = make([]nzContext, dec.mbW)
	dec.finfo = make([]filterInfo, dec.mbW*dec.mbH)
	dec.precomputeFilterStrengths()
	return nil
}

func (dec *Decoder) parseSegmentHeader() {
	br := dec.br
	hdr := &dec.segHdr
	hdr.absoluteDelta = true
	dec.segmentProbs = [3]uint8{probSegmentMap, probSegmentMap, probSegmentMap}
	hdr.useSegment = br.GetBit(probUniform) == 1
	if !hdr.useSegment {
		return
	}
	hdr.updateMap = br.GetBit(probUniform) == 1
	if br.GetBit(probUniform) == 1 {
		hdr.absoluteDelta = br.GetBit(probUniform) == 1
		for s := range hdr.quantizer {
			hdr.quantizer[s] = int(br.GetOptionalSigned(7))
		}
		for s := range hdr.filterStrength {
			hdr.filterStrength[s] = int(br.GetOptionalSigned(6))
		}
	}
	if hdr.updateMap {
		for s := range dec.segmentProbs {
			if br.GetBit(probUniform) == 1 {
				dec.segmentProbs[s] = uint8(br.GetLiteral(8))
			}
		}
	}
}

func (dec *Decoder) parseFilterHeader() {
	br := dec.br
	hdr := &dec.filterHdr
	hdr.simple = br.GetBit(probUniform) == 1
	hdr.level = int(br.GetLiteral(6))
	hdr.sharpness = int(br.GetLiteral(3))
	hdr.useLFDelta = br.GetBit(probUniform) == 1
	if hdr.useLFDelta && br.GetBit(probUniform) == 1 {
		for i := range hdr.refLFDelta {
			if br.GetBit(probUniform) == 1 {
				hdr.refLFDelta[i] = int(br.GetSigned(6))
			}
		}
		for i := range hdr.modeLFDelta {
			if br.GetBit(probUniform) == 1 {
				hdr.modeLFDelta[i] = int(br.GetSigned(6))
			}
		}
	}
	switch {
	case hdr.level == 0:
		dec.filterType = 0
	case hdr.simple:
		dec.filterType = 1
	default:
		dec.filterType = 2
	}
}

// parsePartitions splits the data after the first partition into token
// partitions. All but the last are prefixed by a 3-byte size.
func (dec *Decoder) parsePartitions(buf []byte) error {
	n := 1 << dec.br.GetLiteral(2)
	last := n - 1
	if len(buf) < 3*last {
		return truncated("partition sizes")
	}
	sizes := buf[:3*last]
	rest := buf[3*last:]
	dec.parts = make([]*bitio.BoolReader, n)
	for p := 0; p < last; p++ {
		size := min(int(container.ReadLE24(sizes[3*p:])), len(rest))
		dec.parts[p] = bitio.NewBoolReader(rest[:size])
		rest = rest[size:]
	}
	if len(rest) == 0 {
		return truncated("token partition")
	}
	dec.parts[last] = bitio.NewBoolReader(rest)
	return nil
}

func (dec *Decoder) parseQuant() {
	br := dec.br
	base := int(br.GetLiteral(7))
	dqY1DC := int(br.GetOptionalSigned(4))
	dqY2DC := int(br.GetOptionalSigned(4))
	dqY2AC := int(br.GetOptionalSigned(4))
	dqUVDC := int(br.GetOptionalSigned(4))
	dqUVAC := int(br.GetOptionalSigned(4))
	hdr := &dec.segHdr
	for s := range dec.dqm {
		q := base
		if hdr.useSegment {
			q = hdr.quantizer[s]
			if !hdr.absoluteDelta {
				q += base
			}
		} else if s > 0 {
			dec.dqm[s] = dec.dqm[0]
			continue
		}
		dec.dqm[s] = newQuantMatrix(q, dqY1DC, dqY2DC, dqY2AC, dqUVDC, dqUVAC)
	}
}

func (dec *Decoder) parseProbas() {
	br := dec.br
	for t := range dec.coeffProbs {
		for b := range dec.coeffProbs[t] {
			for c := range dec.coeffProbs[t][b] {
				for p := range dec.coeffProbs[t][b][c] {
					v := defaultCoeffProbs[t][b][c][p]
					if br.GetBit(coeffUpdateProbs[t][b][c][p]) == 1 {
						v = uint8(br.GetLiteral(8))
					}
					dec.coeffProbs[t][b][c][p] = v
				}
			}
		}
	}
	dec.useSkipProba = br.GetBit(probUniform) == 1
	if dec.useSkipProba {
		dec.skipProba = uint8(br.GetLiteral(8))
	}
}

func (dec *Decoder) precomputeFilterStrengths() {
	if dec.filterType == 0 {
		return
	}
	hdr := &dec.filterHdr
	for s := range dec.fstrengths {
		base := hdr.level
		if dec.segHdr.useSegment {
			base = dec.segHdr.filterStrength[s]
			if !dec.segHdr.absoluteDelta {
				base += hdr.level
			}
		}
		for i4 := 0; i4 <= 1; i4++ {
			info := &dec.fstrengths[s][i4]
			level := base
			if hdr.useLFDelta {
				level += hdr.refLFDelta[0]
				if i4 == 1 {
					level += hdr.modeLFDelta[0]
				}
			}
			level = min(max(level, 0), maxLFLevel)
			info.inner = i4 == 1
			if level == 0 {
				info.limit = 0
				continue
			}
			ilevel := level
			if hdr.sharpness > 0 {
				if hdr.sharpness > 4 {
					ilevel >>= 2
				} else {
					ilevel >>= 1
				}
				ilevel = min(ilevel, 9-hdr.sharpness)
			}
			ilevel = max(ilevel, 1)
			info.ilevel = ilevel
			info.limit = 2*level + ilevel
			switch {
			case level >= 40:
				info.hevThresh = 2
			case level >= 15:
				info.hevThresh = 1
			default:
				info.hevThresh = 0
			}
		}
	}
}
