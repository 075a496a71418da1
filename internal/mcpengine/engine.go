// ABOUTME: Engine dispatches JSON-RPC requests by method against the Catalog/Registry/stores
// ABOUTME: tools/call is the hot path: dispatch, render, log, count, all on every outcome

package mcpengine

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/2389/skillserver/internal/catalog"
	"github.com/2389/skillserver/internal/invocationlog"
	"github.com/2389/skillserver/internal/metastore"
	"github.com/2389/skillserver/internal/objectstore"
	"github.com/2389/skillserver/internal/session"
	"github.com/2389/skillserver/internal/skillcatalog"
)

const listPageSize = 50

var tracer = otel.Tracer("mcpengine")

var dispatchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "mcp_dispatch_duration_seconds",
	Help:    "JSON-RPC dispatch latency by method.",
	Buckets: prometheus.DefBuckets,
}, []string{"method"})

// Engine dispatches JSON-RPC 2.0 requests against the skill catalog and
// session registry, recording invocation accounting as a side effect of
// tools/call.
type Engine struct {
	catalog    *skillcatalog.Catalog
	sessions   *session.Registry
	objects    objectstore.ObjectStore
	meta       metastore.MetadataStore
	logQueue   *invocationlog.Queue
	callTimeout time.Duration
	logger     *slog.Logger
	serverInfo map[string]any
}

// New creates an Engine over the given collaborators.
func New(cat *skillcatalog.Catalog, sessions *session.Registry, objects objectstore.ObjectStore, meta metastore.MetadataStore, logQueue *invocationlog.Queue, callTimeout time.Duration) *Engine {
	return &Engine{
		catalog:     cat,
		sessions:    sessions,
		objects:     objects,
		meta:        meta,
		logQueue:    logQueue,
		callTimeout: callTimeout,
		logger:      slog.Default().With("component", "mcpengine"),
		serverInfo:  map[string]any{"name": "skillserver", "version": "1.0.0"},
	}
}

// Dispatch handles one JSON-RPC request for a resolved session (nil for
// "initialize", the only method allowed without one). It always returns a
// non-nil *Response for requests; for notifications it returns nil.
func (e *Engine) Dispatch(ctx context.Context, sess *session.Session, req Request) *Response {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "mcp.dispatch")
	span.SetAttributes(attribute.String("mcp.method", req.Method))
	defer span.End()
	defer func() {
		dispatchDuration.WithLabelValues(req.Method).Observe(time.Since(start).Seconds())
	}()

	if sess != nil {
		sess.Touch()
	}

	var result any
	var derr *DispatchError

	switch req.Method {
	case "initialize":
		result, derr = e.handleInitialize(req.Params)
	case "initialized":
		derr = e.handleInitialized(sess)
	case "ping":
		result = map[string]any{}
	case "tools/list":
		result, derr = e.handleToolsList(req.Params)
	case "tools/call":
		result, derr = e.handleToolsCall(ctx, sess, req.Params)
	case "prompts/list":
		result, derr = e.handlePromptsList(req.Params)
	case "prompts/get":
		result, derr = e.handlePromptsGet(req.Params)
	case "resources/list":
		result, derr = e.handleResourcesList(ctx, req.Params)
	case "resources/read":
		result, derr = e.handleResourcesRead(ctx, req.Params)
	case "completion/complete":
		result, derr = e.handleCompletionComplete(req.Params)
	default:
		derr = newDispatchError(KindInternal, nil, fmt.Sprintf("unknown method %q", req.Method))
	}

	if req.IsNotification() {
		return nil
	}
	if derr != nil {
		span.SetAttributes(attribute.String("mcp.error_kind", string(derr.Kind)))
		return errorResponse(req.ID, derr)
	}
	return resultResponse(req.ID, result)
}

func (e *Engine) handleInitialize(raw json.RawMessage) (InitializeResult, *DispatchError) {
	var params InitializeParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return InitializeResult{}, newDispatchError(KindInternal, err, "invalid initialize params")
	}

	// Client offers a single protocolVersion; negotiate against our set.
	version, err := session.NegotiateProtocolVersion([]string{params.ProtocolVersion})
	if err != nil {
		return InitializeResult{}, newDispatchError(KindProtocolMismatch, ErrProtocolMismatch, "no mutually supported protocol version")
	}

	return InitializeResult{
		ProtocolVersion: version,
		ServerInfo:      e.serverInfo,
		Capabilities:    ServerCapabilities,
	}, nil
}

func (e *Engine) handleInitialized(sess *session.Session) *DispatchError {
	if sess == nil {
		return newDispatchError(KindSessionNotFound, ErrSessionNotFound, "no session for initialized notification")
	}
	if err := sess.Activate(); err != nil {
		return newDispatchError(KindInternal, err, "invalid session state for initialized")
	}
	return nil
}

func (e *Engine) handleToolsList(raw json.RawMessage) (ToolsListResult, *DispatchError) {
	var params struct {
		Cursor *string `json:"cursor"`
	}
	json.Unmarshal(raw, &params)

	var tools []Tool
	for _, s := range e.catalog.List() {
		if s.Status != catalog.StatusActive || !s.Manifest.IsUserInvocable() {
			continue
		}
		tools = append(tools, Tool{
			Name:        s.ID,
			Description: s.Manifest.Description,
			InputSchema: map[string]any{"type": "object"},
		})
	}

	page, next := paginate(tools, params.Cursor, listPageSize)
	return ToolsListResult{Tools: page, NextCursor: next}, nil
}

func (e *Engine) handleToolsCall(ctx context.Context, sess *session.Session, raw json.RawMessage) (ToolsCallResult, *DispatchError) {
	start := time.Now()

	var params ToolsCallParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return ToolsCallResult{}, newDispatchError(KindInternal, err, "invalid tools/call params")
	}

	ctx, cancel := context.WithTimeout(ctx, e.callTimeout)
	defer cancel()

	skill, err := e.catalog.Get(params.Name)
	if err != nil {
		e.recordInvocation(ctx, sess, params.Name, start, invocationlog.StatusError, "tool not found", params.Arguments)
		return ToolsCallResult{}, newDispatchError(KindToolNotFound, ErrToolNotFound, fmt.Sprintf("unknown tool %q", params.Name))
	}
	if !skill.Manifest.IsUserInvocable() {
		e.recordInvocation(ctx, sess, params.Name, start, invocationlog.StatusError, "tool not user-invocable", params.Arguments)
		return ToolsCallResult{}, newDispatchError(KindPermissionDenied, ErrPermissionDenied, fmt.Sprintf("tool %q is not user-invocable", params.Name))
	}

	if sess != nil && sess.Cancelled() {
		return ToolsCallResult{}, newDispatchError(KindCancelled, ErrCancelled, "request cancelled")
	}

	text := renderInstructions(skill.Instructions, params.Arguments)
	result := ToolsCallResult{Content: []ContentBlock{{Type: "text", Text: text}}}

	if ctx.Err() != nil {
		e.recordInvocation(ctx, sess, params.Name, start, invocationlog.StatusError, "timeout", params.Arguments)
		return ToolsCallResult{}, newDispatchError(KindTimeout, ErrTimeout, "tools/call deadline exceeded")
	}

	e.recordInvocation(ctx, sess, params.Name, start, invocationlog.StatusSuccess, "", params.Arguments)

	if err := e.catalog.RecordInvocation(context.Background(), params.Name, time.Now().UTC()); err != nil {
		e.logger.Warn("failed to increment invocation counter", "skill_id", params.Name, "error", err)
	}

	return result, nil
}

func (e *Engine) recordInvocation(ctx context.Context, sess *session.Session, skillID string, start time.Time, status invocationlog.Status, errMsg string, arguments map[string]any) {
	var sessionID string
	if sess != nil {
		sessionID = sess.ID
	}

	argsJSON, _ := json.Marshal(arguments)
	now := time.Now().UTC()
	e.logQueue.Append(invocationlog.Event{
		SkillID:       skillID,
		InvokedAt:     now,
		SortKey:       now.Format(time.RFC3339Nano) + "#" + uuid.NewString(),
		SessionID:     sessionID,
		Method:        "tools/call",
		DurationMS:    time.Since(start).Milliseconds(),
		Status:        status,
		ErrorMessage:  errMsg,
		ParamsExcerpt: invocationlog.TruncateParamsExcerpt(string(argsJSON)),
		ExpiresAt:     now.Add(30 * 24 * time.Hour),
	})
}

func (e *Engine) handlePromptsList(raw json.RawMessage) (PromptsListResult, *DispatchError) {
	var params struct {
		Cursor *string `json:"cursor"`
	}
	json.Unmarshal(raw, &params)

	var prompts []Prompt
	for _, s := range e.catalog.List() {
		if s.Status != catalog.StatusActive {
			continue
		}
		prompts = append(prompts, Prompt{Name: s.ID, Description: s.Manifest.Description})
	}

	page, next := paginate(prompts, params.Cursor, listPageSize)
	return PromptsListResult{Prompts: page, NextCursor: next}, nil
}

func (e *Engine) handlePromptsGet(raw json.RawMessage) (PromptsGetResult, *DispatchError) {
	var params PromptsGetParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return PromptsGetResult{}, newDispatchError(KindInternal, err, "invalid prompts/get params")
	}

	skill, err := e.catalog.Get(params.Name)
	if err != nil {
		return PromptsGetResult{}, newDispatchError(KindToolNotFound, ErrToolNotFound, fmt.Sprintf("unknown prompt %q", params.Name))
	}

	return PromptsGetResult{
		Description: skill.Manifest.Description,
		Messages: []PromptMessage{
			{Role: "user", Content: ContentBlock{Type: "text", Text: skill.Instructions}},
		},
	}, nil
}

func (e *Engine) handleResourcesList(ctx context.Context, raw json.RawMessage) (ResourcesListResult, *DispatchError) {
	var params struct {
		Cursor *string `json:"cursor"`
	}
	json.Unmarshal(raw, &params)

	var resources []Resource
	for _, s := range e.catalog.List() {
		if s.Status != catalog.StatusActive {
			continue
		}
		for _, list := range [][]catalog.FileEntry{s.Files.References, s.Files.Assets} {
			for _, f := range list {
				resources = append(resources, Resource{
					URI:  fmt.Sprintf("skill://%s/%s", s.ID, f.Path),
					Name: f.Path,
				})
			}
		}
	}

	page, next := paginate(resources, params.Cursor, listPageSize)
	return ResourcesListResult{Resources: page, NextCursor: next}, nil
}

func (e *Engine) handleResourcesRead(ctx context.Context, raw json.RawMessage) (ResourcesReadResult, *DispatchError) {
	var params ResourcesReadParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return ResourcesReadResult{}, newDispatchError(KindInternal, err, "invalid resources/read params")
	}

	skillID, path, err := parseSkillURI(params.URI)
	if err != nil {
		return ResourcesReadResult{}, newDispatchError(KindToolNotFound, ErrToolNotFound, err.Error())
	}

	skill, err := e.catalog.Get(skillID)
	if err != nil {
		return ResourcesReadResult{}, newDispatchError(KindToolNotFound, ErrToolNotFound, fmt.Sprintf("unknown skill %q", skillID))
	}

	tree, err := e.objects.GetVersion(ctx, skillID, skill.Version)
	if err != nil {
		return ResourcesReadResult{}, newDispatchError(KindStorageUnavailable, err, "fetching resource bytes")
	}
	data, ok := tree[path]
	if !ok {
		return ResourcesReadResult{}, newDispatchError(KindToolNotFound, ErrToolNotFound, fmt.Sprintf("unknown resource path %q", path))
	}

	return ResourcesReadResult{Contents: []ResourceContents{
		{URI: params.URI, MIMEType: "application/octet-stream", Blob: base64.StdEncoding.EncodeToString(data)},
	}}, nil
}

func (e *Engine) handleCompletionComplete(raw json.RawMessage) (CompletionCompleteResult, *DispatchError) {
	var params CompletionCompleteParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return CompletionCompleteResult{}, newDispatchError(KindInternal, err, "invalid completion/complete params")
	}
	// Best-effort: no argument history correlation implemented, so this
	// always returns an empty completion set rather than failing the call.
	return CompletionCompleteResult{Completion: CompletionValues{Values: []string{}, HasMore: false}}, nil
}

func parseSkillURI(uri string) (skillID, path string, err error) {
	const prefix = "skill://"
	if len(uri) <= len(prefix) || uri[:len(prefix)] != prefix {
		return "", "", fmt.Errorf("malformed skill URI %q", uri)
	}
	rest := uri[len(prefix):]
	for i := 0; i < len(rest); i++ {
		if rest[i] == '/' {
			return rest[:i], rest[i+1:], nil
		}
	}
	return "", "", fmt.Errorf("malformed skill URI %q", uri)
}

func paginate[T any](items []T, cursor *string, pageSize int) ([]T, *string) {
	offset := 0
	if cursor != nil {
		if n, err := strconv.Atoi(*cursor); err == nil && n > 0 {
			offset = n
		}
	}
	if offset >= len(items) {
		return []T{}, nil
	}
	end := offset + pageSize
	if end > len(items) {
		end = len(items)
	}
	page := items[offset:end]
	if end < len(items) {
		next := strconv.Itoa(end)
		return page, &next
	}
	return page, nil
}
