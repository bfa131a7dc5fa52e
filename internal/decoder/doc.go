// Package decoder turns source images into thumbnail-sized bitmaps.
//
// The engine depends only on the [Decoder] interface; codec work is done by
// existing libraries:
//
//   - [Imaging]: standard library codecs plus x/image (BMP, TIFF, WebP),
//     EXIF orientation via goexif, resizing via disintegration/imaging.
//     Oversized sources are reduced first (see MaxImageDimension and
//     MaxImagePixels) to bound memory use.
//   - [Vips]: libvips through govips, with decode-time shrinking and support
//     for HEIC, AVIF and SVG. Call InitVips at startup.
//   - [Filename]: draws the file name instead of decoding, for users who
//     prefer text thumbnails.
//
// Per-file failures are reported as *DecodeError (wrapping ErrUnsupported for
// unreadable formats). Context cancellation is returned unwrapped.
package decoder
