package mcp

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"image"

	"github.com/ironsheep/anpr-parking/internal/anpr"
	"github.com/ironsheep/anpr-parking/internal/imaging"
	"github.com/ironsheep/anpr-parking/internal/parking"
)

// ToolCallParams represents the parameters for a tools/call MCP request.
type ToolCallParams struct {
	// Name is the tool to invoke (e.g., "plate_recognize").
	Name string `json:"name"`

	// Arguments contains the tool-specific parameters as JSON.
	Arguments json.RawMessage `json:"arguments"`
}

// handleToolsCall processes a tools/call request and executes the specified tool.
//
// The response wraps the tool result in MCP's content format:
//
//	{
//	  "content": [{"type": "text", "text": "<JSON result>"}]
//	}
//
// Tool execution errors return a JSON-RPC error response with code -32000.
func (s *Server) handleToolsCall(ctx context.Context, req *MCPRequest) *MCPResponse {
	var params ToolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return s.errorResponse(req.ID, -32602, "Invalid params", err.Error())
	}

	result, err := s.executeTool(ctx, params.Name, params.Arguments)
	if err != nil {
		return s.errorResponse(req.ID, -32000, "Tool execution failed", err.Error())
	}

	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"content": []map[string]interface{}{
				{
					"type": "text",
					"text": mustMarshalJSON(result),
				},
			},
		},
	}
}

// executeTool dispatches tool execution to the appropriate handler function.
func (s *Server) executeTool(ctx context.Context, name string, args json.RawMessage) (interface{}, error) {
	switch name {
	case "plate_recognize":
		return s.handlePlateRecognize(ctx, args)
	case "plate_read":
		return s.handlePlateRead(ctx, args)
	case "parking_state":
		return s.svc.CurrentState(ctx)
	case "parking_allocate":
		return s.handleParkingAllocate(ctx, args)
	case "parking_frame":
		return s.handleParkingFrame()
	default:
		return nil, fmt.Errorf("unknown tool: %s", name)
	}
}

// errorResponse creates a JSON-RPC error response with the given details.
func (s *Server) errorResponse(id interface{}, code int, message, data string) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error: &MCPError{
			Code:    code,
			Message: message,
			Data:    data,
		},
	}
}

// mustMarshalJSON converts a value to pretty-printed JSON string.
// On marshal failure, returns an empty string.
func mustMarshalJSON(v interface{}) string {
	b, _ := json.MarshalIndent(v, "", "  ")
	return string(b)
}

type pathArgs struct {
	Path string `json:"path"`
}

func loadFrame(path string) (image.Image, error) {
	if path == "" {
		return nil, errors.New("path is required")
	}
	return imaging.Load(path)
}

func (s *Server) handlePlateRecognize(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a pathArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	frame, err := loadFrame(a.Path)
	if err != nil {
		return nil, err
	}
	return s.svc.ProcessFrame(ctx, frame)
}

type plateReadArgs struct {
	Path   string  `json:"path"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// plateReadResult is returned by plate_read. Text is empty when nothing
// plausible was read.
type plateReadResult struct {
	Text       string                `json:"text"`
	Candidates []anpr.PlateCandidate `json:"candidates"`
}

func (s *Server) handlePlateRead(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a plateReadArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	frame, err := loadFrame(a.Path)
	if err != nil {
		return nil, err
	}
	box := anpr.DetectionBox{
		CenterX:    a.X,
		CenterY:    a.Y,
		Width:      a.Width,
		Height:     a.Height,
		Confidence: 1,
		Class:      anpr.ClassPlate,
	}
	reading, ok, err := s.svc.ReadPlate(ctx, frame, box)
	if err != nil {
		return nil, err
	}
	if !ok {
		return plateReadResult{Candidates: []anpr.PlateCandidate{}}, nil
	}
	return plateReadResult{Text: reading.Text, Candidates: reading.Candidates}, nil
}

type parkingAllocateArgs struct {
	Plate string `json:"plate"`
	Path  string `json:"path"`
}

// allocateResult reports an allocation attempt. Running out of spots is a
// normal result, not a tool error.
type allocateResult struct {
	Allocated  bool             `json:"allocated"`
	Allocation *anpr.Allocation `json:"allocation,omitempty"`
	Reason     string           `json:"reason,omitempty"`
}

func (s *Server) handleParkingAllocate(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a parkingAllocateArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	var frame image.Image
	if a.Path != "" {
		img, err := imaging.Load(a.Path)
		if err != nil {
			return nil, err
		}
		frame = img
	}

	alloc, err := s.svc.Allocate(ctx, a.Plate, frame)
	if errors.Is(err, parking.ErrNoSpotAvailable) {
		return allocateResult{Reason: err.Error()}, nil
	}
	if err != nil {
		return nil, err
	}
	return allocateResult{Allocated: true, Allocation: alloc}, nil
}

type frameResult struct {
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Format string `json:"format"`
	Data   string `json:"data"`
}

func (s *Server) handleParkingFrame() (interface{}, error) {
	img := s.svc.CurrentFrame()
	if img == nil {
		return nil, errors.New("no frame processed yet")
	}
	data, err := imaging.EncodeJPEG(img, imaging.DefaultJPEGQuality)
	if err != nil {
		return nil, err
	}
	return frameResult{
		Width:  img.Bounds().Dx(),
		Height: img.Bounds().Dy(),
		Format: "jpeg",
		Data:   base64.StdEncoding.EncodeToString(data),
	}, nil
}
