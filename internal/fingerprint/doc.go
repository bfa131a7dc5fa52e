// Package fingerprint identifies versions of source image files.
//
// A fingerprint is the absolute path, byte size and modification time of a
// file, optionally extended with a blake2b-256 content digest. Cache entries
// record the fingerprint they were generated from; a lookup whose live
// fingerprint differs treats the entry as obsolete.
package fingerprint
