// Package webpcodec is a pure Go encoder and decoder for WebP images and
// animations.
//
// It covers the RIFF container, lossy VP8 and lossless VP8L coding, the
// ALPH alpha plane, and animated files, both one-shot and through
// streaming encoder sessions addressed by opaque handles. Importing the
// package registers the "webp" format with the image package.
//
// Encoding raw pixels:
//
//	data, err := webpcodec.EncodeRGBA(pix, width, height, &webpcodec.Config{Lossless: true})
//
// Decoding to raw pixels:
//
//	pb, err := webpcodec.DecodePixels(data)
//
// Building an animation frame by frame:
//
//	h, err := webpcodec.NewStreamEncoder(width, height, true, nil)
//	err = webpcodec.StreamAddFrame(h, pb, 100)
//	data, err := webpcodec.StreamFinalize(h)
//	webpcodec.StreamDispose(h)
package webpcodec
