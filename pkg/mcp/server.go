package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/chainscribe/chainscribe/pkg/models"
)

// Ledger reports the current day's spend.
type Ledger interface {
	DailyReport() models.DailyReport
}

// UsageHistory reports journaled per-day usage.
type UsageHistory interface {
	Days(ctx context.Context, since time.Time) ([]models.UsageDay, error)
}

// ChangeAnalyzer classifies an edit between two snapshots.
type ChangeAnalyzer interface {
	Analyze(ctx context.Context, req models.ChangeRequest) (models.ChangeRecord, error)
}

// History persists and lists change records.
type History interface {
	Append(ctx context.Context, rec models.ChangeRecord) error
	List(ctx context.Context, documentID string, limit int) ([]models.ChangeRecord, error)
}

// AuditSearcher queries the invocation audit log.
type AuditSearcher interface {
	Query(ctx context.Context, opts models.AuditQueryOpts) ([]models.AuditEntry, error)
}

// CacheStatter provides cache statistics without coupling to a concrete cache implementation.
type CacheStatter interface {
	Stats(ctx context.Context) (models.CacheStats, error)
}

// Deps are the components exposed as tools. Any of them may be nil; the
// matching tool then reports that it is not configured.
type Deps struct {
	Ledger  Ledger
	Usage   UsageHistory
	Changes ChangeAnalyzer
	History History
	Audit   AuditSearcher
	Cache   CacheStatter
}

// Server is a minimal MCP server that communicates over stdio using JSON-RPC 2.0.
type Server struct {
	deps    Deps
	version string
	logger  *slog.Logger
}

// New creates a new MCP Server.
func New(deps Deps, version string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{deps: deps, version: version, logger: logger}
}

// Run reads JSON-RPC requests from r line-by-line and writes responses to w.
// It blocks until r is closed or ctx is cancelled.
func (s *Server) Run(ctx context.Context, r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 1024*1024), 4*1024*1024)

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req Request
		if err := json.Unmarshal(line, &req); err != nil {
			s.writeResponse(w, *errResponse(nil, CodeParseError, "parse error"))
			continue
		}

		resp := s.dispatch(ctx, &req)
		if resp == nil {
			continue
		}
		s.writeResponse(w, *resp)
	}
	return scanner.Err()
}

func (s *Server) dispatch(ctx context.Context, req *Request) *Response {
	switch req.Method {
	case "initialize":
		return okResponse(req.ID, InitializeResult{
			ProtocolVersion: protocolVersion,
			ServerInfo:      ServerInfo{Name: "chainscribe", Version: s.version},
			Capabilities:    map[string]any{"tools": map[string]any{}},
		})
	case "ping":
		return okResponse(req.ID, map[string]any{})
	case "tools/list":
		return okResponse(req.ID, ToolsListResult{Tools: allTools})
	case "tools/call":
		return s.handleToolsCall(ctx, req)
	}
	if len(req.ID) == 0 {
		// notifications never get a response
		return nil
	}
	return errResponse(req.ID, CodeMethodNotFound, fmt.Sprintf("unknown method: %s", req.Method))
}

func (s *Server) handleToolsCall(ctx context.Context, req *Request) *Response {
	var params ToolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errResponse(req.ID, CodeInvalidParams, "invalid params")
	}

	handler, ok := toolHandlers[params.Name]
	if !ok {
		return okResponse(req.ID, errorResult(fmt.Sprintf("unknown tool: %s", params.Name)))
	}

	start := time.Now()
	res := handler(ctx, s, params.Arguments)
	s.logger.Debug("mcp tool call", "tool", params.Name, "error", res.IsError,
		"duration_ms", time.Since(start).Milliseconds())
	return okResponse(req.ID, res)
}

func (s *Server) writeResponse(w io.Writer, resp Response) {
	data, err := json.Marshal(resp)
	if err != nil {
		s.logger.Error("mcp marshal failed", "error", err)
		return
	}
	data = append(data, '\n')
	if _, err := w.Write(data); err != nil {
		s.logger.Error("mcp write failed", "error", err)
	}
}
