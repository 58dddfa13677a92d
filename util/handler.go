package util

import (
	"context"
	"fmt"
	"runtime/debug"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/sirupsen/logrus"
)

var logger = func() *logrus.Logger {
	l := logrus.New()
	l.SetFormatter(&logrus.JSONFormatter{})
	return l
}()

// ErrorGuard turns handler errors and panics into tool error results so a
// failing tool never tears down the MCP session.
func ErrorGuard(handler server.ToolHandlerFunc) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (result *mcp.CallToolResult, err error) {
		defer func() {
			if r := recover(); r != nil {
				logger.WithFields(logrus.Fields{
					"tool":  request.Params.Name,
					"panic": fmt.Sprint(r),
					"stack": string(debug.Stack()),
				}).Error("Tool handler panicked")
				result = mcp.NewToolResultError(fmt.Sprintf("internal error: %v", r))
				err = nil
			}
		}()

		result, err = handler(ctx, request)
		if err != nil {
			logger.WithError(err).WithField("tool", request.Params.Name).Warn("Tool handler failed")
			return mcp.NewToolResultError(err.Error()), nil
		}
		return result, nil
	}
}
