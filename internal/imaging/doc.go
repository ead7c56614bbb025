// Package imaging turns a detected plate region into images an OCR engine
// can read.
//
// The package covers the pixel-level half of plate recognition: cropping a
// detection out of a frame, enhancing it, deriving three binarized variants,
// and straightening skewed text. It also carries the small drawing and
// encoding helpers used to annotate frames and store plate snapshots.
// All operations work with standard Go image types and use a coordinate
// system where (0,0) is the top-left corner, X increases rightward, and Y
// increases downward.
//
// # Coordinate System
//
// Detection boxes arrive in center format (cx, cy, w, h) and are converted
// to corner format before cropping:
//   - (x1,y1) is inclusive (top-left), (x2,y2) is exclusive (bottom-right)
//   - Coordinates are truncated to whole pixels and clamped to the frame
//   - Crops are re-based so their bounds start at (0,0)
//
// # Variants
//
// Preprocess produces a VariantSet:
//   - Gray: grayscale of the resized crop
//   - Contrast: bilateral-denoised, CLAHE-enhanced gray
//   - A: Otsu global threshold of Contrast
//   - B: Gaussian adaptive threshold of Contrast
//   - C: Otsu threshold of sharpened Contrast
//
// Binary variants hold only the values 0 and 255. Dark pixels (below 128)
// are treated as ink by Deskew.
//
// # Backends
//
// Filtering, thresholding and rotation run on OpenCV through gocv when the
// package is built with cgo. Builds without cgo use pure-Go versions of the
// same operations, which agree to within a gray level or two.
//
// # Rotation Convention
//
// Angles are in degrees and positive angles rotate counter-clockwise as the
// image is displayed.
//
// # Thread Safety
//
// Every function is stateless and may be called concurrently on different
// images. Functions never mutate their inputs, except the drawing helpers,
// which write to the image passed to them.
//
// # Error Handling
//
// ExtractRegion and Preprocess return ErrEmptyRegion when a box or crop has
// no pixels. Deskew never fails; it falls back to the unrotated input.
package imaging
