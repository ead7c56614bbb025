// Package server exposes the recognition service over HTTP.
//
// # Endpoints
//
//   - GET  /health: liveness
//   - POST /api/v1/upload: multipart form with an "image" file; runs one
//     recognition cycle and returns recognized plates and entry/exit
//     notifications
//   - GET  /api/v1/plates: vehicles currently present, newest first
//   - GET  /api/v1/state: open records and the parking spot table
//   - POST /api/v1/allocate: {"plate": "..."} assigns a spot from the most
//     recent frame's free spots
//   - GET  /api/v1/frame: the latest annotated frame as JPEG
//
// # Errors
//
// Errors are returned as {"error": "..."}. Invalid input maps to 400, an
// unknown plate to 404 and no free spot to 409.
package server
