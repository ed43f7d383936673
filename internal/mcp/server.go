// Package mcp exposes fleet scans to MCP clients over stdio.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	cache "github.com/Code-Hex/go-generics-cache"
	"github.com/girste/blueteam/internal/output"
	"github.com/girste/blueteam/internal/scan"
	"github.com/girste/blueteam/internal/util"
	mcpgo "github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"
)

// ResultTTL is how long a host result stays available to get_result.
const ResultTTL = 15 * time.Minute

// Server wraps the MCP server and the results of recent scans.
type Server struct {
	fleet   *scan.Fleet
	mcp     *server.MCPServer
	results *cache.Cache[string, *scan.HostResult]
	ttl     time.Duration
	logger  *zap.Logger
}

// NewServer registers the scan tools against fleet.
func NewServer(fleet *scan.Fleet, version string) *Server {
	s := &Server{
		fleet:   fleet,
		results: cache.New[string, *scan.HostResult](),
		ttl:     ResultTTL,
		logger:  util.GetLogger(),
	}

	s.mcp = server.NewMCPServer("blueteam", version, server.WithToolCapabilities(false))

	s.mcp.AddTool(mcpgo.NewTool("scan_hosts",
		mcpgo.WithDescription("Scan hosts for signs of compromise: sudoers grants, cron tables, "+
			"modified packaged files, extra root accounts, the process tree and unpackaged binaries. "+
			"Returns one JSON result per host, in the order given."),
		mcpgo.WithString("targets",
			mcpgo.Required(),
			mcpgo.Description("Comma-separated [user@]host[:port] targets, or \"local\""),
		),
		mcpgo.WithBoolean("ps_only",
			mcpgo.Description("Only collect packages and the process tree"),
		),
	), s.handleScanHosts)

	s.mcp.AddTool(mcpgo.NewTool("get_result",
		mcpgo.WithDescription("Return the most recent scan result for a host, if scanned in the last 15 minutes"),
		mcpgo.WithString("host",
			mcpgo.Required(),
			mcpgo.Description("Host label as reported in a scan result"),
		),
		mcpgo.WithBoolean("findings",
			mcpgo.Description("Return the flattened findings list instead of the full result"),
		),
	), s.handleGetResult)

	return s
}

// Serve blocks serving MCP over stdin/stdout.
func (s *Server) Serve() error {
	return server.ServeStdio(s.mcp)
}

func (s *Server) handleScanHosts(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	raw, err := req.RequireString("targets")
	if err != nil {
		return mcpgo.NewToolResultError(err.Error()), nil
	}
	targets := splitTargets(raw)
	if len(targets) == 0 {
		return mcpgo.NewToolResultError("no targets given"), nil
	}

	fleet := *s.fleet
	fleet.Options.PSOnly = req.GetBool("ps_only", false)

	results := make([]*scan.HostResult, 0, len(targets))
	fleet.Run(ctx, targets, func(res *scan.HostResult) {
		s.results.Set(res.Host, res, cache.WithExpiration(s.ttl))
		results = append(results, res)
	})
	s.logger.Info("MCP scan completed", zap.Strings("targets", targets))

	return jsonResult(results)
}

func (s *Server) handleGetResult(_ context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	host, err := req.RequireString("host")
	if err != nil {
		return mcpgo.NewToolResultError(err.Error()), nil
	}
	res, ok := s.results.Get(host)
	if !ok {
		return mcpgo.NewToolResultError(fmt.Sprintf("no recent result for %s", host)), nil
	}
	if req.GetBool("findings", false) {
		return jsonResult(output.Findings(res))
	}
	return jsonResult(res)
}

func jsonResult(v interface{}) (*mcpgo.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcpgo.NewToolResultError(fmt.Sprintf("failed to encode result: %v", err)), nil
	}
	return mcpgo.NewToolResultText(string(data)), nil
}

func splitTargets(raw string) []string {
	var targets []string
	for _, t := range strings.Split(raw, ",") {
		if t = strings.TrimSpace(t); t != "" {
			targets = append(targets, t)
		}
	}
	return targets
}
