// Package handler exposes the request lifecycle as MCP tools so agents
// can work the queue on behalf of a user.
package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/helpinghand/helpinghand/internal/apperr"
	"github.com/helpinghand/helpinghand/internal/auth"
	"github.com/helpinghand/helpinghand/internal/db"
	"github.com/helpinghand/helpinghand/internal/manager"
)

// Tools acts for the holder of a single token. The token is verified on
// every call, so an expired token stops working mid-session.
type Tools struct {
	manager *manager.RequestManager
	issuer  *auth.Issuer
	token   string
	log     *slog.Logger
}

func New(m *manager.RequestManager, issuer *auth.Issuer, token string, log *slog.Logger) *Tools {
	if log == nil {
		log = slog.Default()
	}
	return &Tools{manager: m, issuer: issuer, token: token, log: log}
}

// NewServer returns an MCP server with every tool registered.
func NewServer(t *Tools, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"helpinghand",
		version,
		server.WithToolCapabilities(false),
	)
	s.AddTools(t.Definitions()...)
	return s
}

func idArg() mcp.ToolOption {
	return mcp.WithString("id",
		mcp.Required(),
		mcp.Description("The help request id"),
	)
}

func (t *Tools) Definitions() []server.ServerTool {
	return []server.ServerTool{
		{
			Tool: mcp.NewTool("list_pending_requests",
				mcp.WithDescription("List help requests waiting for a volunteer, newest first. Volunteers only."),
			),
			Handler: t.ListPending,
		},
		{
			Tool: mcp.NewTool("list_my_requests",
				mcp.WithDescription("List your own requests (help seekers) or the requests assigned to you (volunteers)."),
			),
			Handler: t.ListMine,
		},
		{
			Tool:    mcp.NewTool("accept_request", mcp.WithDescription("Accept a pending request as the assigned volunteer."), idArg()),
			Handler: t.transition(manager.EventAccepted),
		},
		{
			Tool:    mcp.NewTool("complete_request", mcp.WithDescription("Mark a request you accepted as completed."), idArg()),
			Handler: t.transition(manager.EventCompleted),
		},
		{
			Tool:    mcp.NewTool("unassign_request", mcp.WithDescription("Give back a request you accepted so another volunteer can take it."), idArg()),
			Handler: t.transition(manager.EventUnassigned),
		},
		{
			Tool:    mcp.NewTool("cancel_request", mcp.WithDescription("Cancel one of your own pending or accepted requests."), idArg()),
			Handler: t.transition(manager.EventCancelled),
		},
		{
			Tool: mcp.NewTool("create_request",
				mcp.WithDescription("Ask for help. Help seekers only."),
				mcp.WithString("title",
					mcp.Required(),
					mcp.Description("Short summary, at most 100 characters"),
				),
				mcp.WithString("description",
					mcp.Required(),
					mcp.Description("What you need, at most 1000 characters"),
				),
				mcp.WithString("category",
					mcp.Description("One of Groceries, Transport, Emotional Support, Errands, Other"),
				),
			),
			Handler: t.Create,
		},
	}
}

func (t *Tools) principal() (auth.Principal, error) {
	p, err := t.issuer.Verify(t.token)
	if err != nil {
		return auth.Principal{}, apperr.NotAuthorized("Token is not valid")
	}
	return p, nil
}

// result turns domain failures into tool errors the agent can read and
// reports store failures as protocol errors.
func (t *Tools) result(tool string, v any, err error) (*mcp.CallToolResult, error) {
	if err != nil {
		if apperr.KindOf(err) == apperr.KindInternal {
			t.log.Error("tool failed", "tool", tool, "error", err)
			return nil, fmt.Errorf("%s: %w", tool, err)
		}
		return mcp.NewToolResultError(apperr.Message(err)), nil
	}
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("%s: failed to encode result: %w", tool, err)
	}
	return mcp.NewToolResultText(string(out)), nil
}

func (t *Tools) ListPending(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	p, err := t.principal()
	if err != nil {
		return t.result("list_pending_requests", nil, err)
	}
	reqs, err := t.manager.ListPending(ctx, p)
	return t.result("list_pending_requests", reqs, err)
}

func (t *Tools) ListMine(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	p, err := t.principal()
	if err != nil {
		return t.result("list_my_requests", nil, err)
	}
	reqs, err := t.manager.ListMine(ctx, p)
	return t.result("list_my_requests", reqs, err)
}

func (t *Tools) transition(ev manager.EventType) server.ToolHandlerFunc {
	var (
		name string
		fn   func(context.Context, string, auth.Principal) (*manager.RequestView, error)
	)
	switch ev {
	case manager.EventAccepted:
		name, fn = "accept_request", t.manager.Accept
	case manager.EventCompleted:
		name, fn = "complete_request", t.manager.Complete
	case manager.EventUnassigned:
		name, fn = "unassign_request", t.manager.Unassign
	case manager.EventCancelled:
		name, fn = "cancel_request", t.manager.Cancel
	default:
		panic(fmt.Sprintf("no tool for event %q", ev))
	}
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := request.RequireString("id")
		if err != nil {
			return mcp.NewToolResultError("id is required"), nil
		}
		p, err := t.principal()
		if err != nil {
			return t.result(name, nil, err)
		}
		req, err := fn(ctx, id, p)
		return t.result(name, req, err)
	}
}

func (t *Tools) Create(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	title, err := request.RequireString("title")
	if err != nil {
		return mcp.NewToolResultError("title is required"), nil
	}
	description, err := request.RequireString("description")
	if err != nil {
		return mcp.NewToolResultError("description is required"), nil
	}
	p, err := t.principal()
	if err != nil {
		return t.result("create_request", nil, err)
	}
	req, err := t.manager.Create(ctx, p, manager.CreateInput{
		Title:       title,
		Description: description,
		Category:    db.Category(request.GetString("category", "")),
	})
	return t.result("create_request", req, err)
}
