// Package learnserver exposes the catalog, job orchestrator, schedules and
// learning paths as MCP tools.
package learnserver

import (
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/anatolykoptev/go_learn/internal/engine/learning"
	"github.com/anatolykoptev/go_learn/internal/engine/scrape"
	"github.com/anatolykoptev/go_learn/internal/engine/store"
	"github.com/anatolykoptev/go_learn/internal/toolutil"
)

// Deps are the services the tools call into.
type Deps struct {
	Jobs        *scrape.Orchestrator
	Schedules   *scrape.Scheduler
	DB          *store.DB
	Paths       *learning.Generator
	Recommender *learning.Recommender
}

// ToolCount is the number of tools RegisterTools adds.
const ToolCount = 24

// RegisterTools registers every tool family on the given MCP server.
func RegisterTools(server *mcp.Server, d Deps) {
	registerJobTools(server, d)
	registerScheduleTools(server, d)
	registerVideoTools(server, d)
	registerPathTools(server, d)
	registerFeedbackTools(server, d)
}

// toolErr prefixes err with its kind so clients can tell bad input from failures.
func toolErr(err error) error {
	return fmt.Errorf("%s: %w", toolutil.ErrorKind(err), err)
}

// DeleteResult reports a delete operation.
type DeleteResult struct {
	Deleted int    `json:"deleted"`
	Message string `json:"message"`
}
