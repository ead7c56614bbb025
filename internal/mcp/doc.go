// Package mcp exposes the recognition service as MCP (Model Context
// Protocol) tools.
//
// # Protocol
//
// The server communicates over stdio using JSON-RPC 2.0:
//   - Input: JSON-RPC requests on stdin (one per line)
//   - Output: JSON-RPC responses on stdout
//
// Supported MCP methods:
//   - initialize: Protocol handshake
//   - tools/list: Enumerate available tools
//   - tools/call: Execute a tool with arguments
//   - ping: Health check
//
// # Available Tools
//
//   - plate_recognize: Full recognition cycle on an image file
//   - plate_read: Read one plate region without recording anything
//   - parking_state: Vehicles present and the spot table
//   - parking_allocate: Assign a spot to a present vehicle
//   - parking_frame: Latest annotated frame as base64 JPEG
//
// # Error Handling
//
// Tool execution errors are returned as JSON-RPC error responses with:
//   - code: -32000 (tool execution failure) or standard JSON-RPC codes
//   - message: Human-readable error description
//   - data: Additional error details (typically the Go error string)
//
// parking_allocate reports "no spot available" as a normal result.
package mcp
