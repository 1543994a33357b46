package sessiontools

import (
	"context"
	"encoding/json"
	"os"
)

// ShowFileTool returns an empty content payload on success; the UI treats
// the tool invocation itself, not its return text, as the display
// directive for the named file.
type ShowFileTool struct{}

// NewShowFileTool constructs the show_file tool.
func NewShowFileTool() *ShowFileTool { return &ShowFileTool{} }

func (t *ShowFileTool) Name() string { return "show_file" }

func (t *ShowFileTool) Description() string {
	return "Display a file to the user with a preview card"
}

func (t *ShowFileTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"path": {"type": "string", "description": "Path to the file to display"}
		},
		"required": ["path"]
	}`)
}

type showFileParams struct {
	Path string `json:"path"`
}

func (t *ShowFileTool) Execute(ctx context.Context, params json.RawMessage) (*ToolResult, error) {
	var in showFileParams
	if err := json.Unmarshal(params, &in); err != nil {
		return errorResult("invalid parameters: %v", err), nil
	}
	if in.Path == "" {
		return errorResult("no file path provided"), nil
	}

	info, err := os.Stat(in.Path)
	if err != nil {
		return errorResult("file not found: %s", in.Path), nil
	}
	if info.IsDir() {
		return errorResult("path is not a file: %s", in.Path), nil
	}

	return successResult(""), nil
}
