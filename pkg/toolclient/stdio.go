package toolclient

import (
	"context"
	"os/exec"
	"strings"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/byerlikaya/smartrag/pkg/ragerr"
)

// StdioServer launches a local MCP server as a child process and speaks
// the protocol over its stdin/stdout, per the SDK's CommandTransport.
type StdioServer struct {
	name    string
	command string
	args    []string
	env     []string

	mu      sync.RWMutex
	session *mcp.ClientSession
}

// NewStdioServer constructs a server that runs command with args and env
// (in addition to the parent process's own environment).
func NewStdioServer(name, command string, args, env []string) *StdioServer {
	return &StdioServer{name: name, command: command, args: args, env: env}
}

func (s *StdioServer) Name() string { return s.name }

func (s *StdioServer) Start(ctx context.Context) error {
	s.mu.RLock()
	already := s.session != nil
	s.mu.RUnlock()
	if already {
		return nil
	}

	cmd := exec.CommandContext(ctx, s.command, s.args...)
	if len(s.env) > 0 {
		cmd.Env = append(cmd.Environ(), s.env...)
	}

	client := mcp.NewClient(&mcp.Implementation{Name: "smartrag", Version: "1.0.0"}, nil)
	session, err := client.Connect(ctx, &mcp.CommandTransport{Command: cmd}, nil)
	if err != nil {
		return ragerr.Wrap(ragerr.Transport, "start MCP command server "+s.command, err)
	}

	s.mu.Lock()
	s.session = session
	s.mu.Unlock()
	return nil
}

func (s *StdioServer) ListTools(ctx context.Context) ([]ToolInfo, error) {
	s.mu.RLock()
	session := s.session
	s.mu.RUnlock()
	if session == nil {
		return nil, ragerr.New(ragerr.Transport, "session not started")
	}

	var infos []ToolInfo
	for tool, err := range session.Tools(ctx, nil) {
		if err != nil {
			return nil, ragerr.Wrap(ragerr.Transport, "tools/list", err)
		}
		infos = append(infos, ToolInfo{ServerName: s.name, Name: tool.Name, Description: tool.Description})
	}
	return infos, nil
}

func (s *StdioServer) CallTool(ctx context.Context, name string, args map[string]any) (string, error) {
	s.mu.RLock()
	session := s.session
	s.mu.RUnlock()
	if session == nil {
		return "", ragerr.New(ragerr.Transport, "session not started")
	}

	result, err := session.CallTool(ctx, &mcp.CallToolParams{Name: name, Arguments: args})
	if err != nil {
		return "", ragerr.Wrap(ragerr.Transport, "tools/call "+name, err)
	}
	if result.IsError {
		return "", ragerr.New(ragerr.ProviderHTTP, "tool "+name+" reported an error")
	}

	var b strings.Builder
	for _, c := range result.Content {
		if tc, ok := c.(*mcp.TextContent); ok {
			if b.Len() > 0 {
				b.WriteString("\n")
			}
			b.WriteString(tc.Text)
		}
	}
	return b.String(), nil
}

func (s *StdioServer) Close(_ context.Context) error {
	s.mu.RLock()
	session := s.session
	s.mu.RUnlock()
	if session == nil {
		return nil
	}
	return session.Close()
}
