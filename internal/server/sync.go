package server

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"chimera/internal/api"
	"chimera/internal/dispatch"
	"chimera/internal/formatting"
	"chimera/pkg/logging"
)

// Reserved arguments handled by the wire layer and stripped before the
// engine sees the call.
const (
	argPersona = "_persona"
	argFormat  = "_format"
)

// syncCapabilities replaces the advertised tool, resource, and prompt sets
// with the engine's current view. Listings are taken for the default
// persona; per-call persona switching happens through the reserved
// `_persona` argument.
func (s *Server) syncCapabilities(ctx context.Context) error {
	s.mu.RLock()
	mcpSrv := s.server
	s.mu.RUnlock()
	if mcpSrv == nil {
		return nil
	}

	listings, err := s.engine.ListTools(ctx, api.DefaultPersona)
	if err != nil {
		return fmt.Errorf("listing tools: %w", err)
	}
	resources, err := s.engine.ListResources(ctx, api.DefaultPersona)
	if err != nil {
		return fmt.Errorf("listing resources: %w", err)
	}
	prompts, err := s.engine.ListPrompts(ctx, api.DefaultPersona)
	if err != nil {
		return fmt.Errorf("listing prompts: %w", err)
	}

	var tools []mcpserver.ServerTool
	newTools := make(map[string]bool, len(listings))
	for _, listing := range listings {
		newTools[listing.Name] = true
		tools = append(tools, mcpserver.ServerTool{
			Tool: mcp.Tool{
				Name:        listing.Name,
				Description: listing.Description,
				InputSchema: toMCPSchema(listing.InputSchema),
			},
			Handler: s.createToolHandler(listing.Name),
		})
	}

	var serverResources []mcpserver.ServerResource
	newResources := make(map[string]bool, len(resources))
	for _, rec := range resources {
		newResources[rec.URI] = true
		serverResources = append(serverResources, mcpserver.ServerResource{
			Resource: mcp.Resource{
				URI:         rec.URI,
				Name:        rec.Name,
				Description: rec.Description,
				MIMEType:    rec.MIMEType,
			},
			Handler: s.createResourceHandler(rec.URI),
		})
	}

	var serverPrompts []mcpserver.ServerPrompt
	newPrompts := make(map[string]bool, len(prompts))
	for _, rec := range prompts {
		newPrompts[rec.Name] = true
		args := make([]mcp.PromptArgument, 0, len(rec.Arguments))
		for _, a := range rec.Arguments {
			args = append(args, mcp.PromptArgument{
				Name:        a.Name,
				Description: a.Description,
				Required:    a.Required,
			})
		}
		serverPrompts = append(serverPrompts, mcpserver.ServerPrompt{
			Prompt: mcp.Prompt{
				Name:        rec.Name,
				Description: rec.Description,
				Arguments:   args,
			},
			Handler: s.createPromptHandler(rec.Name),
		})
	}

	s.mu.Lock()
	var staleTools, stalePrompts, staleResources []string
	for name := range s.activeTools {
		if !newTools[name] {
			staleTools = append(staleTools, name)
		}
	}
	for name := range s.activePrompts {
		if !newPrompts[name] {
			stalePrompts = append(stalePrompts, name)
		}
	}
	for uri := range s.activeResources {
		if !newResources[uri] {
			staleResources = append(staleResources, uri)
		}
	}
	s.activeTools = newTools
	s.activePrompts = newPrompts
	s.activeResources = newResources
	s.mu.Unlock()

	if len(staleTools) > 0 {
		mcpSrv.DeleteTools(staleTools...)
	}
	if len(stalePrompts) > 0 {
		mcpSrv.DeletePrompts(stalePrompts...)
	}
	// No batch removal for resources in the MCP library.
	for _, uri := range staleResources {
		mcpSrv.RemoveResource(uri)
	}

	if len(tools) > 0 {
		mcpSrv.AddTools(tools...)
	}
	if len(serverPrompts) > 0 {
		mcpSrv.AddPrompts(serverPrompts...)
	}
	if len(serverResources) > 0 {
		mcpSrv.AddResources(serverResources...)
	}

	logging.Debug(subsystem, "Advertising %d tools, %d resources, %d prompts",
		len(tools), len(serverResources), len(serverPrompts))
	return nil
}

// toMCPSchema converts a stored JSON schema into the MCP wire shape. A
// malformed schema degrades to an open object rather than breaking the
// listing.
func toMCPSchema(raw json.RawMessage) mcp.ToolInputSchema {
	schema := mcp.ToolInputSchema{Type: "object"}
	if len(raw) == 0 {
		return schema
	}
	if err := json.Unmarshal(raw, &schema); err != nil {
		logging.Warn(subsystem, "Stored input schema does not parse, advertising open object: %v", err)
		return mcp.ToolInputSchema{Type: "object"}
	}
	if schema.Type == "" {
		schema.Type = "object"
	}
	return schema
}

// createToolHandler adapts one engine tool to the MCP handler shape. The
// reserved `_persona` argument selects the namespace and `_format` the
// result rendering; both are stripped before dispatch.
func (s *Server) createToolHandler(toolName string) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := map[string]any{}
		if argsMap, ok := req.Params.Arguments.(map[string]any); ok {
			for k, v := range argsMap {
				args[k] = v
			}
		}

		if persona, ok := args[argPersona].(string); ok && persona != "" {
			ctx = dispatch.WithPersona(ctx, persona)
			delete(args, argPersona)
		}
		format := formatting.FormatJSON
		if requested, ok := args[argFormat].(string); ok {
			parsed, err := formatting.ParseFormat(requested)
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			format = parsed
			delete(args, argFormat)
		}

		result, err := s.engine.CallTool(ctx, toolName, args)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(formatting.Render(result, format)), nil
	}
}

// createResourceHandler adapts one engine resource to the MCP read shape.
func (s *Server) createResourceHandler(uri string) func(context.Context, mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		body, mimeType, err := s.engine.GetResource(ctx, uri)
		if err != nil {
			return nil, err
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      uri,
				MIMEType: mimeType,
				Text:     body,
			},
		}, nil
	}
}

// createPromptHandler adapts one engine prompt to the MCP get shape.
func (s *Server) createPromptHandler(name string) func(context.Context, mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	return func(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
		args := make(map[string]any, len(req.Params.Arguments))
		for k, v := range req.Params.Arguments {
			args[k] = v
		}
		rec, text, err := s.engine.GetPrompt(ctx, name, args)
		if err != nil {
			return nil, err
		}
		return mcp.NewGetPromptResult(rec.Description, []mcp.PromptMessage{
			mcp.NewPromptMessage(mcp.RoleUser, mcp.NewTextContent(text)),
		}), nil
	}
}
