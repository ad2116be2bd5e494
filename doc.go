// Package watermark locates semi-transparent overlays composited onto
// photographs and reverses the compositing to recover the original pixels.
//
// Detect and RefinePosition search a base image for a known RGBA watermark
// with multi-scale masked template matching. RemoveWatermark inverts the
// "over" alpha compositing equation at a given placement, and GuessAlpha
// estimates the alpha strength to invert with. Extract reconstructs an
// unknown watermark from two samples composited over different flat
// backgrounds.
//
// Everything works in memory on decoded images; Decode and the byte/base64
// helpers cover the common codecs.
package watermark
