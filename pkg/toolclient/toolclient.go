// Package toolclient is the External-tool Client (C11): it discovers tools
// exposed by remote MCP servers, caches the tool/list result with a TTL,
// scores tools against a query by keyword match, and invokes the
// top-scoring tools in parallel under a bounded timeout. Results come back
// as pseudo-chunks with SourceType=External and score 1.0, treated as
// authoritative unless a tool call itself reports an error.
//
// Grounded on the shape of the teacher's MCP toolset wrapper (Start/
// Initialize/ListTools/CallTool/Close over github.com/modelcontextprotocol/go-sdk/mcp,
// iter.Seq2 tool enumeration); the teacher's parallel stdio-transport
// implementation built on a second, unlisted MCP client library was left
// behind rather than adapted (see DESIGN.md).
package toolclient

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/kofalt/go-memoize"
	"golang.org/x/sync/errgroup"

	"github.com/byerlikaya/smartrag/pkg/concurrent"
	"github.com/byerlikaya/smartrag/pkg/ragerr"
	"github.com/byerlikaya/smartrag/pkg/ragmodel"
)

// ToolInfo is the discovery record for one remote tool, as returned by
// tools/list.
type ToolInfo struct {
	ServerName  string
	Name        string
	Description string
}

// Server is a single remote MCP tool server connection. A transport
// implements it (stdio command, HTTP/SSE, WebSocket); the client only
// depends on this contract.
type Server interface {
	Name() string
	Start(ctx context.Context) error
	ListTools(ctx context.Context) ([]ToolInfo, error)
	CallTool(ctx context.Context, name string, args map[string]any) (string, error)
	Close(ctx context.Context) error
}

// Client discovers and invokes tools across a fixed set of configured
// servers. tools/list results are memoized per server for cacheTTL so a
// busy query loop does not re-list on every call.
type Client struct {
	servers     []Server
	cache       *memoize.Memoizer
	callTimeout time.Duration
	topN        int
}

// Option configures a Client.
type Option func(*Client)

// WithCallTimeout bounds each individual tool invocation. Default 15s.
func WithCallTimeout(d time.Duration) Option {
	return func(c *Client) { c.callTimeout = d }
}

// WithTopN caps how many top-scoring tools are invoked per query. Default 3.
func WithTopN(n int) Option {
	return func(c *Client) { c.topN = n }
}

// WithListCacheTTL overrides the tools/list memoization TTL. Default 5m.
func WithListCacheTTL(ttl time.Duration) Option {
	return func(c *Client) { c.cache = memoize.NewMemoizer(ttl, ttl*2) }
}

// New constructs a Client over the given servers. Servers are not started
// here; Start does that lazily on first use.
func New(servers []Server, opts ...Option) *Client {
	c := &Client{
		servers:     servers,
		cache:       memoize.NewMemoizer(5*time.Minute, 10*time.Minute),
		callTimeout: 15 * time.Second,
		topN:        3,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// discover lists tools across all servers, starting any not yet started,
// and memoizes each server's result independently so one slow/broken
// server does not invalidate the others' cache entries.
func (c *Client) discover(ctx context.Context) ([]ToolInfo, error) {
	all := concurrent.NewSlice[ToolInfo]()

	g, ctx := errgroup.WithContext(ctx)
	for _, srv := range c.servers {
		srv := srv
		g.Go(func() error {
			if err := srv.Start(ctx); err != nil {
				slog.Warn("external tool server failed to start", "server", srv.Name(), "error", err)
				return nil
			}

			result, err, _ := c.cache.Memoize(srv.Name(), func() (any, error) {
				return srv.ListTools(ctx)
			})
			if err != nil {
				slog.Warn("external tool server failed to list tools", "server", srv.Name(), "error", err)
				return nil
			}

			tools, _ := result.([]ToolInfo)
			for _, t := range tools {
				all.Append(t)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return all.All(), nil
}

// score returns a keyword-match score for tool against query: the count of
// query tokens that appear (case-insensitively) in the tool's name or
// description, normalized to [0,1] by the query's token count.
func score(query string, t ToolInfo) float64 {
	tokens := strings.Fields(strings.ToLower(query))
	if len(tokens) == 0 {
		return 0
	}

	haystack := strings.ToLower(t.Name + " " + t.Description)
	var hits int
	for _, tok := range tokens {
		if len(tok) < 3 {
			continue
		}
		if strings.Contains(haystack, tok) {
			hits++
		}
	}
	return float64(hits) / float64(len(tokens))
}

// Retrieve discovers tools, scores them against query, invokes the top-N
// scoring tools (score > 0) in parallel with a bounded per-call timeout,
// and returns each successful call as a pseudo-chunk. A tool call that
// errors or times out is dropped silently rather than failing the whole
// retrieval; Retrieve only fails if discovery itself fails.
func (c *Client) Retrieve(ctx context.Context, query string) ([]ragmodel.RetrievalResult, error) {
	toolsFound, err := c.discover(ctx)
	if err != nil {
		return nil, ragerr.Wrap(ragerr.Transport, "external tool discovery failed", err)
	}

	type scored struct {
		tool  ToolInfo
		score float64
	}
	var candidates []scored
	for _, t := range toolsFound {
		if s := score(query, t); s > 0 {
			candidates = append(candidates, scored{t, s})
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].score > candidates[j].score })
	if len(candidates) > c.topN {
		candidates = candidates[:c.topN]
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	byName := make(map[string]Server, len(c.servers))
	for _, srv := range c.servers {
		byName[srv.Name()] = srv
	}

	results := make([]ragmodel.RetrievalResult, len(candidates))
	var wg sync.WaitGroup
	for i, cand := range candidates {
		i, cand := i, cand
		wg.Add(1)
		go func() {
			defer wg.Done()

			srv, ok := byName[cand.tool.ServerName]
			if !ok {
				return
			}

			callCtx, cancel := context.WithTimeout(ctx, c.callTimeout)
			defer cancel()

			out, err := srv.CallTool(callCtx, cand.tool.Name, map[string]any{"query": query})
			if err != nil {
				slog.Warn("external tool call failed", "server", srv.Name(), "tool", cand.tool.Name, "error", err)
				return
			}

			results[i] = ragmodel.RetrievalResult{
				ChunkID:    fmt.Sprintf("tool:%s:%s", srv.Name(), cand.tool.Name),
				DocumentID: srv.Name(),
				Content:    out,
				Score:      1.0,
				SourceType: ragmodel.SourceExternal,
				FileName:   cand.tool.Name,
			}
		}()
	}
	wg.Wait()

	nonEmpty := results[:0]
	for _, r := range results {
		if r.ChunkID != "" {
			nonEmpty = append(nonEmpty, r)
		}
	}
	return nonEmpty, nil
}

// Close shuts down every configured server connection.
func (c *Client) Close(ctx context.Context) error {
	var firstErr error
	for _, srv := range c.servers {
		if err := srv.Close(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
