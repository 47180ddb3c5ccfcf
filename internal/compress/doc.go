// Package compress implements the value codecs of binary-mode stores.
//
// Every encoded value carries an 8-byte header:
//
//	[uncompressed size uint32][compressed size uint32][payload...]
//
// A compressed size of zero marks a payload that is stored raw because
// compression did not pay off (ratio above 0.9). The algorithm itself is a
// store-wide setting persisted in the layout manifest, so it is not repeated
// per value.
package compress
