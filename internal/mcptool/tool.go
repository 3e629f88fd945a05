// Package mcptool exposes the image resolver as the get_product_image_url MCP tool.
package mcptool

import (
	"context"
	"errors"
	"net/http"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/JakeFAU/echigo-image-server/internal/resolver"
)

const (
	// ServerName is advertised to MCP clients during initialization.
	ServerName = "EchigoSakeImageServer"

	// ToolName is the single callable operation.
	ToolName = "get_product_image_url"

	// ArgProductPageURL is the tool's only parameter.
	ArgProductPageURL = "product_page_url"

	toolDescription = "Return the main product image URL for an Echigo Sake Harasho " +
		"(echigo.sake-harasho.com) product page. The URL must start with " +
		resolver.AllowedPrefix + ". On failure the result text starts with \"Error:\"."
)

// ImageResolver is the part of resolver.Resolver the tool needs.
type ImageResolver interface {
	ResolveDetailed(ctx context.Context, productPageURL string) (resolver.Match, error)
}

// Tool adapts an ImageResolver to the MCP tool-call contract.
type Tool struct {
	resolver ImageResolver
	logger   *zap.Logger
}

// NewTool builds a Tool.
func NewTool(res ImageResolver, logger *zap.Logger) *Tool {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tool{resolver: res, logger: logger}
}

// Definition describes the tool's name and input schema.
func (t *Tool) Definition() mcp.Tool {
	return mcp.NewTool(ToolName,
		mcp.WithDescription(toolDescription),
		mcp.WithString(ArgProductPageURL,
			mcp.Required(),
			mcp.Description("Product page URL, e.g. "+resolver.AllowedPrefix+"12345"),
		),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(true),
	)
}

// Call resolves the page and returns the wire string: the image URL, or an
// "Error:" message. It never fails at the protocol level.
func (t *Tool) Call(ctx context.Context, productPageURL string) string {
	match, err := t.resolver.ResolveDetailed(ctx, productPageURL)
	if err == nil {
		t.logger.Info("tool call resolved",
			zap.String("url", productPageURL),
			zap.String("strategy", string(match.Strategy)),
		)
		return match.URL
	}

	var resErr *resolver.Error
	if errors.As(err, &resErr) {
		t.logger.Info("tool call failed",
			zap.String("url", productPageURL),
			zap.String("kind", string(resErr.Kind)),
		)
		return resErr.Message
	}
	t.logger.Error("tool call failed with unexpected error", zap.Error(err))
	return "Error: " + err.Error()
}

// Handle is the server.ToolHandlerFunc for the tool. A missing or non-string
// argument is treated as an empty URL, which fails the allow-list check.
func (t *Tool) Handle(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	productPageURL := request.GetString(ArgProductPageURL, "")
	return mcp.NewToolResultText(t.Call(ctx, productPageURL)), nil
}

// NewServer builds an MCP server with the tool registered.
func NewServer(tool *Tool, version string) *server.MCPServer {
	s := server.NewMCPServer(ServerName, version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
	)
	s.AddTool(tool.Definition(), tool.Handle)
	return s
}

// NewHTTPHandler serves s over the streamable HTTP transport at the root path.
func NewHTTPHandler(s *server.MCPServer) http.Handler {
	return server.NewStreamableHTTPServer(s, server.WithEndpointPath("/"))
}
