// Package detection locates licence plates and parking spots in a frame.
//
// Detectors return center-format boxes (see anpr.DetectionBox) labelled as
// plate, free spot or occupied spot. Callers drop weak boxes with
// FilterConfident and separate the classes with Split.
//
// # Detectors
//
//   - Roboflow: posts the frame to a hosted inference model and maps its
//     class names to box classes.
//   - Heuristic: an offline plate finder based on edge density. It needs no
//     model and reports plates only.
//   - Multi: runs several detectors in turn, e.g. one model for plates and
//     another for parking spots.
//
// # Coordinate System
//
// All coordinates use the standard image convention:
//   - Origin (0, 0) at top-left corner
//   - X increases rightward
//   - Y increases downward
//
// Box centres and sizes are in pixels of the frame passed to Detect.
//
// # Confidence Scores
//
// Confidence is always in 0..1. The Roboflow service receives its filter as
// a percentage, as the hosted API expects.
package detection
