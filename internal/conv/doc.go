// Package conv provides checked integer conversions.
//
// They guard values that cross a type boundary: lengths written to and read
// back from compressed block headers, and unsigned filter operands bound as
// SQLite INTEGER parameters.
package conv
