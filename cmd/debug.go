package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/chzyer/readline"
	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/spf13/cobra"

	"chimera/internal/formatting"
	pkgstrings "chimera/pkg/strings"
)

var debugEndpoint string

var debugCmd = &cobra.Command{
	Use:   "debug",
	Short: "Interactive client for a running engine",
	Long: `Connects to a running chimera over SSE and opens a small REPL:
list tools, call them with JSON arguments, read resources, and render
prompts. Row results draw as tables.`,
	Args: cobra.NoArgs,
	RunE: runDebug,
}

func runDebug(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	mcpClient, err := client.NewSSEMCPClient(debugEndpoint)
	if err != nil {
		return fmt.Errorf("creating SSE client: %w", err)
	}
	if err := mcpClient.Start(ctx); err != nil {
		return fmt.Errorf("connecting to %s: %w", debugEndpoint, err)
	}
	defer mcpClient.Close()

	initReq := mcp.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcp.Implementation{Name: "chimera-debug", Version: rootCmd.Version}
	if _, err := mcpClient.Initialize(ctx, initReq); err != nil {
		return fmt.Errorf("MCP handshake failed: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "connected to %s; type 'help' for commands\n\n", debugEndpoint)

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "chimera> ",
		HistoryFile:     filepath.Join(os.TempDir(), ".chimera_debug_history"),
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return fmt.Errorf("creating readline instance: %w", err)
	}
	defer rl.Close()

	repl := &debugREPL{client: mcpClient, out: cmd.OutOrStdout()}
	for {
		line, err := rl.Readline()
		if err == readline.ErrInterrupt {
			continue
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("readline error: %w", err)
		}
		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}
		if input == "exit" || input == "quit" {
			return nil
		}
		if err := repl.execute(ctx, input); err != nil {
			fmt.Fprintf(cmd.OutOrStdout(), "error: %v\n", err)
		}
		fmt.Fprintln(cmd.OutOrStdout())
	}
}

type debugREPL struct {
	client client.MCPClient
	out    io.Writer
}

func (r *debugREPL) execute(ctx context.Context, input string) error {
	parts := strings.SplitN(input, " ", 3)
	switch parts[0] {
	case "help":
		fmt.Fprint(r.out, `commands:
  tools                      list tools
  call <tool> [json-args]    call a tool
  resources                  list resources
  read <uri>                 read a resource
  prompts                    list prompts
  prompt <name> [json-args]  render a prompt
  exit                       leave
`)
		return nil
	case "tools":
		return r.listTools(ctx)
	case "call":
		if len(parts) < 2 {
			return fmt.Errorf("usage: call <tool> [json-args]")
		}
		return r.callTool(ctx, parts[1], argOrEmpty(parts, 2))
	case "resources":
		return r.listResources(ctx)
	case "read":
		if len(parts) < 2 {
			return fmt.Errorf("usage: read <uri>")
		}
		return r.readResource(ctx, parts[1])
	case "prompts":
		return r.listPrompts(ctx)
	case "prompt":
		if len(parts) < 2 {
			return fmt.Errorf("usage: prompt <name> [json-args]")
		}
		return r.getPrompt(ctx, parts[1], argOrEmpty(parts, 2))
	default:
		return fmt.Errorf("unknown command %q (try 'help')", parts[0])
	}
}

func argOrEmpty(parts []string, i int) string {
	if len(parts) > i {
		return parts[i]
	}
	return ""
}

func (r *debugREPL) listTools(ctx context.Context) error {
	result, err := r.client.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return err
	}
	tools := result.Tools
	sort.Slice(tools, func(i, j int) bool { return tools[i].Name < tools[j].Name })
	for _, tool := range tools {
		fmt.Fprintf(r.out, "  %-32s %s\n", tool.Name,
			pkgstrings.TruncateDescription(tool.Description, pkgstrings.DefaultDescriptionMaxLen))
	}
	fmt.Fprintf(r.out, "%d tools\n", len(tools))
	return nil
}

func (r *debugREPL) callTool(ctx context.Context, name, rawArgs string) error {
	args := map[string]any{}
	if rawArgs != "" {
		if err := json.Unmarshal([]byte(rawArgs), &args); err != nil {
			return fmt.Errorf("arguments must be a JSON object: %w", err)
		}
	}

	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	s.Suffix = fmt.Sprintf(" calling %s...", name)
	s.Start()
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args
	result, err := r.client.CallTool(ctx, req)
	s.Stop()
	if err != nil {
		return err
	}

	text := firstText(result)
	if result.IsError {
		return fmt.Errorf("%s", text)
	}

	// Row sets draw as tables; everything else prints as returned.
	var rows []map[string]any
	if err := json.Unmarshal([]byte(text), &rows); err == nil && len(rows) > 0 {
		fmt.Fprintln(r.out, formatting.RenderRowsTable(rows))
		return nil
	}
	fmt.Fprintln(r.out, text)
	return nil
}

func (r *debugREPL) listResources(ctx context.Context) error {
	result, err := r.client.ListResources(ctx, mcp.ListResourcesRequest{})
	if err != nil {
		return err
	}
	for _, res := range result.Resources {
		fmt.Fprintf(r.out, "  %-40s %s\n", res.URI, res.Name)
	}
	fmt.Fprintf(r.out, "%d resources\n", len(result.Resources))
	return nil
}

func (r *debugREPL) readResource(ctx context.Context, uri string) error {
	req := mcp.ReadResourceRequest{}
	req.Params.URI = uri
	result, err := r.client.ReadResource(ctx, req)
	if err != nil {
		return err
	}
	for _, contents := range result.Contents {
		if text, ok := contents.(mcp.TextResourceContents); ok {
			fmt.Fprintln(r.out, text.Text)
		}
	}
	return nil
}

func (r *debugREPL) listPrompts(ctx context.Context) error {
	result, err := r.client.ListPrompts(ctx, mcp.ListPromptsRequest{})
	if err != nil {
		return err
	}
	for _, prompt := range result.Prompts {
		fmt.Fprintf(r.out, "  %-32s %s\n", prompt.Name,
			pkgstrings.TruncateDescription(prompt.Description, pkgstrings.DefaultDescriptionMaxLen))
	}
	fmt.Fprintf(r.out, "%d prompts\n", len(result.Prompts))
	return nil
}

func (r *debugREPL) getPrompt(ctx context.Context, name, rawArgs string) error {
	args := map[string]string{}
	if rawArgs != "" {
		if err := json.Unmarshal([]byte(rawArgs), &args); err != nil {
			return fmt.Errorf("arguments must be a JSON object of strings: %w", err)
		}
	}
	req := mcp.GetPromptRequest{}
	req.Params.Name = name
	req.Params.Arguments = args
	result, err := r.client.GetPrompt(ctx, req)
	if err != nil {
		return err
	}
	for _, msg := range result.Messages {
		if text, ok := msg.Content.(mcp.TextContent); ok {
			fmt.Fprintf(r.out, "[%s] %s\n", msg.Role, text.Text)
		}
	}
	return nil
}

// firstText pulls the first text content block out of a tool result.
func firstText(result *mcp.CallToolResult) string {
	for _, content := range result.Content {
		if text, ok := content.(mcp.TextContent); ok {
			return text.Text
		}
	}
	return ""
}

func init() {
	rootCmd.AddCommand(debugCmd)
	debugCmd.Flags().StringVar(&debugEndpoint, "endpoint", "http://localhost:8090/sse", "SSE endpoint of a running engine")
}
