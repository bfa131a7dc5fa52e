// Package mediatypes provides shared image format definitions for the
// thumbnail engine.
//
// It has no dependencies beyond the standard library, so the decoder,
// directory listing and HTTP packages can all import it without cycles.
//
//	ext := mediatypes.Ext(path)
//	if mediatypes.IsSupported(ext, vipsEnabled) {
//	    // schedule a thumbnail
//	}
//
// ImageExtensions are handled by the pure-Go decoder. VipsExtensions (HEIC,
// AVIF, SVG and friends) are only listed when libvips is enabled.
package mediatypes
