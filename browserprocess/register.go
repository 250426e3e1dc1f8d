// Package browserprocess keeps track of the browsers started by scenario
// runs so that they can be killed when the program is interrupted.
package browserprocess

import (
	"context"
	"os"
	"sort"
	"sync"

	"github.com/grafana/devtools-scenarios/log"
)

type processKey struct {
	runID string
	pid   int
}

var (
	browserProcessRegister   = map[processKey]struct{}{} //nolint:gochecknoglobals
	browserProcessRegisterMu = sync.Mutex{}              //nolint:gochecknoglobals
)

// Register records pid as a browser of the run found in ctx.
func Register(ctx context.Context, logger *log.Logger, pid int) {
	browserProcessRegisterMu.Lock()
	defer browserProcessRegisterMu.Unlock()

	rID := GetRunID(ctx)
	logger.Debugf("BrowserProcess:register", "registered BrowserProcess pid:%d runID:%q", pid, rID)

	browserProcessRegister[processKey{runID: rID, pid: pid}] = struct{}{}
}

// Unregister forgets pid once its browser has exited.
func Unregister(ctx context.Context, pid int) {
	browserProcessRegisterMu.Lock()
	defer browserProcessRegisterMu.Unlock()

	delete(browserProcessRegister, processKey{runID: GetRunID(ctx), pid: pid})
}

// Registered returns the registered PIDs of the run found in ctx, or of all
// runs if ctx carries no run ID.
func Registered(ctx context.Context) []int {
	browserProcessRegisterMu.Lock()
	defer browserProcessRegisterMu.Unlock()

	var pids []int
	rID := GetRunID(ctx)
	for k := range browserProcessRegister {
		if rID != "" && k.runID != rID {
			continue
		}
		pids = append(pids, k.pid)
	}
	sort.Ints(pids)

	return pids
}

// ForceProcessShutdown kills the browsers of the run found in ctx, or every
// registered browser if ctx carries no run ID. It should be called when the
// program is interrupted and teardown can't run.
func ForceProcessShutdown(ctx context.Context) {
	browserProcessRegisterMu.Lock()
	defer browserProcessRegisterMu.Unlock()

	rID := GetRunID(ctx)
	for k := range browserProcessRegister {
		if rID != "" && k.runID != rID {
			continue
		}
		Kill(k.pid)
		delete(browserProcessRegister, k)
	}
}

// Kill will look for and kill the process with the given pid. It's a
// variable so that tests can avoid killing real processes.
var Kill = func(pid int) { //nolint:gochecknoglobals
	p, err := os.FindProcess(pid)
	if err != nil {
		// optimistically continue and don't kill the process
		return
	}
	// no need to check the error since we're already dying.
	_ = p.Kill()
	_ = p.Release()
}
