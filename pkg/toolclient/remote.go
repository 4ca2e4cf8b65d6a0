package toolclient

import (
	"context"
	"net/http"
	"strings"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/byerlikaya/smartrag/pkg/ragerr"
)

// RemoteServer connects to a remote MCP server over HTTP (streamable or
// SSE transport, per the teacher's remote MCP client). Unlike the
// teacher's variant it carries no OAuth or elicitation handling: the
// engine has no interactive user to elicit from.
type RemoteServer struct {
	name      string
	url       string
	transport string
	headers   map[string]string

	mu      sync.RWMutex
	session *mcp.ClientSession
}

// NewRemoteServer constructs a server targeting url over the given
// transport ("streamable" or "sse").
func NewRemoteServer(name, url, transport string, headers map[string]string) *RemoteServer {
	return &RemoteServer{name: name, url: url, transport: transport, headers: headers}
}

func (s *RemoteServer) Name() string { return s.name }

func (s *RemoteServer) Start(ctx context.Context) error {
	s.mu.RLock()
	already := s.session != nil
	s.mu.RUnlock()
	if already {
		return nil
	}

	httpClient := &http.Client{Transport: &headerTransport{base: http.DefaultTransport, headers: s.headers}}

	var tr mcp.Transport
	switch s.transport {
	case "sse":
		tr = &mcp.SSEClientTransport{Endpoint: s.url, HTTPClient: httpClient}
	case "", "streamable", "streamable-http":
		tr = &mcp.StreamableClientTransport{Endpoint: s.url, HTTPClient: httpClient}
	default:
		return ragerr.New(ragerr.ConfigMissing, "unsupported MCP transport: "+s.transport)
	}

	client := mcp.NewClient(&mcp.Implementation{Name: "smartrag", Version: "1.0.0"}, nil)
	session, err := client.Connect(ctx, tr, nil)
	if err != nil {
		return ragerr.Wrap(ragerr.Transport, "connect to MCP server "+s.url, err)
	}

	s.mu.Lock()
	s.session = session
	s.mu.Unlock()
	return nil
}

func (s *RemoteServer) ListTools(ctx context.Context) ([]ToolInfo, error) {
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

func (s *RemoteServer) CallTool(ctx context.Context, name string, args map[string]any) (string, error) {
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

func (s *RemoteServer) Close(_ context.Context) error {
	s.mu.RLock()
	session := s.session
	s.mu.RUnlock()
	if session == nil {
		return nil
	}
	return session.Close()
}

type headerTransport struct {
	base    http.RoundTripper
	headers map[string]string
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	for k, v := range t.headers {
		req.Header.Set(k, v)
	}
	return t.base.RoundTrip(req)
}
