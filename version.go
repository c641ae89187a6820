package webpcodec

import "fmt"

// Bitstream compatibility level, packed as 0xMMmmpp.
const (
	versionMajor = 1
	versionMinor = 4
	versionPatch = 0
)

const version = versionMajor<<16 | versionMinor<<8 | versionPatch

// EncoderVersion returns the encoder version packed as 0xMMmmpp.
func EncoderVersion() int { return version }

// DecoderVersion returns the decoder version packed as 0xMMmmpp.
func DecoderVersion() int { return version }

// VersionString formats a packed version as "major.minor.patch".
func VersionString(v int) string {
	return fmt.Sprintf("%d.%d.%d", v>>16&0xff, v>>8&0xff, v&0xff)
}
