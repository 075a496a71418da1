// ABOUTME: JSON-RPC 2.0 envelope types and the MCP wire payloads the engine produces/consumes

package mcpengine

import "encoding/json"

// Request is a single JSON-RPC 2.0 request or notification (ID is nil for
// notifications).
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// IsNotification reports whether this request expects no response.
func (r Request) IsNotification() bool { return len(r.ID) == 0 }

// Response is a single JSON-RPC 2.0 response.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Result  any             `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// RPCError is the JSON-RPC error object.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func errorResponse(id json.RawMessage, err *DispatchError) *Response {
	return &Response{
		JSONRPC: "2.0",
		ID:      id,
		Error:   &RPCError{Code: err.Kind.JSONRPCCode(), Message: err.Message},
	}
}

func resultResponse(id json.RawMessage, result any) *Response {
	return &Response{JSONRPC: "2.0", ID: id, Result: result}
}

// InitializeParams is the payload of the "initialize" method.
type InitializeParams struct {
	ProtocolVersion string         `json:"protocolVersion"`
	ClientInfo      map[string]any `json:"clientInfo"`
	Capabilities    map[string]any `json:"capabilities"`
}

// InitializeResult is the server's response to "initialize".
type InitializeResult struct {
	ProtocolVersion string         `json:"protocolVersion"`
	ServerInfo      map[string]any `json:"serverInfo"`
	Capabilities    map[string]any `json:"capabilities"`
}

// ServerCapabilities is the fixed capability set this server advertises.
var ServerCapabilities = map[string]any{
	"tools":     true,
	"prompts":   true,
	"resources": true,
}

// Tool is one tool descriptor returned by tools/list; name is the skill id.
type Tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"inputSchema"`
}

// ToolsListResult is the paginated response to tools/list.
type ToolsListResult struct {
	Tools      []Tool  `json:"tools"`
	NextCursor *string `json:"nextCursor,omitempty"`
}

// ToolsCallParams is the payload of tools/call.
type ToolsCallParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// ContentBlock is one block of a tools/call result.
type ContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// ToolsCallResult is the response to tools/call.
type ToolsCallResult struct {
	Content []ContentBlock `json:"content"`
	IsError bool           `json:"isError,omitempty"`
}

// Prompt is one prompt descriptor returned by prompts/list.
type Prompt struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// PromptsListResult is the response to prompts/list.
type PromptsListResult struct {
	Prompts    []Prompt `json:"prompts"`
	NextCursor *string  `json:"nextCursor,omitempty"`
}

// PromptsGetParams is the payload of prompts/get.
type PromptsGetParams struct {
	Name string `json:"name"`
}

// PromptsGetResult is the response to prompts/get.
type PromptsGetResult struct {
	Description string          `json:"description"`
	Messages    []PromptMessage `json:"messages"`
}

// PromptMessage is one message in a prompt's rendered conversation.
type PromptMessage struct {
	Role    string       `json:"role"`
	Content ContentBlock `json:"content"`
}

// Resource is one resource descriptor returned by resources/list.
type Resource struct {
	URI  string `json:"uri"`
	Name string `json:"name"`
}

// ResourcesListResult is the response to resources/list.
type ResourcesListResult struct {
	Resources  []Resource `json:"resources"`
	NextCursor *string    `json:"nextCursor,omitempty"`
}

// ResourcesReadParams is the payload of resources/read.
type ResourcesReadParams struct {
	URI string `json:"uri"`
}

// ResourceContents is one item in a resources/read response.
type ResourceContents struct {
	URI      string `json:"uri"`
	MIMEType string `json:"mimeType,omitempty"`
	Text     string `json:"text,omitempty"`
	Blob     string `json:"blob,omitempty"`
}

// ResourcesReadResult is the response to resources/read.
type ResourcesReadResult struct {
	Contents []ResourceContents `json:"contents"`
}

// CompletionCompleteParams is the payload of completion/complete.
type CompletionCompleteParams struct {
	Ref      map[string]any `json:"ref"`
	Argument map[string]any `json:"argument"`
}

// CompletionCompleteResult is the response to completion/complete.
type CompletionCompleteResult struct {
	Completion CompletionValues `json:"completion"`
}

// CompletionValues is the values block of a completion response.
type CompletionValues struct {
	Values  []string `json:"values"`
	HasMore bool     `json:"hasMore"`
}
