package mcp

// Tool represents an MCP tool definition
type Tool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema"`
}

func pathProperty() map[string]interface{} {
	return map[string]interface{}{
		"type":        "string",
		"description": "Absolute path to the image file",
	}
}

// ToolDefinitions returns all available tools
func ToolDefinitions() []Tool {
	return []Tool{
		{
			Name:        "plate_recognize",
			Description: "Run one recognition cycle on a camera frame: detect plates and parking spots, read each plate, and record entries and exits. Returns the plates read, the entry/exit events and any spot allocations.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": pathProperty(),
				},
				"required": []string{"path"},
			},
		},
		{
			Name:        "plate_read",
			Description: "Read the plate text inside a region of an image without recording an entry or exit. Returns the selected text and every ranked candidate.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": pathProperty(),
					"x": map[string]interface{}{
						"type":        "number",
						"description": "Center X of the plate box in pixels",
					},
					"y": map[string]interface{}{
						"type":        "number",
						"description": "Center Y of the plate box in pixels",
					},
					"width": map[string]interface{}{
						"type":        "number",
						"description": "Box width in pixels",
					},
					"height": map[string]interface{}{
						"type":        "number",
						"description": "Box height in pixels",
					},
				},
				"required": []string{"path", "x", "y", "width", "height"},
			},
		},
		{
			Name:        "parking_state",
			Description: "List the vehicles currently present (newest first) and the parking spot table.",
			InputSchema: map[string]interface{}{
				"type":       "object",
				"properties": map[string]interface{}{},
			},
		},
		{
			Name:        "parking_allocate",
			Description: "Assign a free parking spot to a vehicle that is present. Spots come from the given frame, or from the most recent frame when no path is given.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"plate": map[string]interface{}{
						"type":        "string",
						"description": "Plate text of a vehicle currently present",
					},
					"path": map[string]interface{}{
						"type":        "string",
						"description": "Optional absolute path to a frame to detect free spots on",
					},
				},
				"required": []string{"plate"},
			},
		},
		{
			Name:        "parking_frame",
			Description: "Return the most recent frame, annotated with recognized plates and assigned spots, as base64-encoded JPEG.",
			InputSchema: map[string]interface{}{
				"type":       "object",
				"properties": map[string]interface{}{},
			},
		},
	}
}
