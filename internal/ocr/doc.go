// Package ocr turns preprocessed plate variants into a single plate reading.
//
// Recognition happens in two steps. A Generator runs an Engine over every
// OCR input derived from a VariantSet, once per segmentation mode, and
// returns the multiset of plausible readings. The scorer then normalizes
// those readings, rates each against the plate format and selects the best.
//
// # Engines
//
// Engine is the only dependency on a concrete recognizer. The tesseract
// subpackage provides a gosseract-backed implementation; tests use fakes.
//
// # Candidate Inputs
//
// For each plate, eight images are recognized in this order:
//   - gray, contrast
//   - A, deskewed A
//   - B, deskewed B
//   - C, deskewed C
//
// Each image is read in word, line and block mode with the uppercase
// alphanumeric whitelist, giving at most 24 readings. Readings shorter than
// four characters after cleaning are dropped.
//
// # Normalization and Scoring
//
// Plates are expected to start with two letters followed by digits. The
// confusable pairs 0/O, 1/I, 5/S, 8/B and 2/Z are corrected toward the class
// each position expects:
//   - positions 0-1: digit to letter
//   - positions 2+: letter to digit
//
// Scoring rewards the canonical shape (two letters, four digits) and typical
// plate lengths. Ranking is stable: equal scores keep discovery order.
//
// # Thread Safety
//
// Normalize, Score, Rank and Select are pure functions. A Generator may be
// shared across goroutines if its Engine is.
package ocr
