/*
 *
 * xk6-browser - a browser automation extension for k6
 * Copyright (C) 2021 Load Impact
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU Affero General Public License as
 * published by the Free Software Foundation, either version 3 of the
 * License, or (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU Affero General Public License for more details.
 *
 * You should have received a copy of the GNU Affero General Public License
 * along with this program.  If not, see <http://www.gnu.org/licenses/>.
 *
 */


package common

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"time"

	"github.com/grafana/devtools-scenarios/log"
	"github.com/grafana/devtools-scenarios/storage"
)

const devToolsPrefix = "DevTools listening on "

// chromeErrorLine matches Chrome's logging prefix on error lines, e.g.
// [6497:6497:1013/103521.932979:ERROR:ozone_platform_x11.cc(247)] msg.
var chromeErrorLine = regexp.MustCompile(`^\[[^\]]*:ERROR:[^\]]*\] (.+)$`)

// BrowserProcess is a locally running browser speaking CDP.
type BrowserProcess struct {
	ctx    context.Context
	cancel context.CancelFunc

	// The process of the browser, if running locally.
	process *os.Process

	// Closed when the process has exited and its data directory is removed.
	processDone chan struct{}

	// Browser's WebSocket URL to speak CDP
	wsURL string

	// The directory where user data for the browser is stored.
	userDataDir *storage.Dir

	logger *log.Logger
}

// NewBrowserProcess starts the browser at path and waits up to timeout for
// it to report its DevTools URL. A zero timeout waits until ctx is done.
// The process is killed when ctx is done.
func NewBrowserProcess(
	ctx context.Context, path string, args, env []string, dataDir *storage.Dir,
	timeout time.Duration, logger *log.Logger,
) (*BrowserProcess, error) {
	ctx, cancel := context.WithCancel(ctx)

	cmd, err := execute(ctx, path, args, env, dataDir, logger)
	if err != nil {
		cancel()
		return nil, err
	}

	parseCtx, parseCancel := ctx, context.CancelFunc(func() {})
	if timeout > 0 {
		parseCtx, parseCancel = context.WithTimeout(ctx, timeout)
	}
	wsURL, err := parseDevToolsURL(parseCtx, cmd)
	parseCancel()
	if err != nil {
		cancel()
		<-cmd.done
		return nil, fmt.Errorf("getting DevTools URL: %w", err)
	}
	logger.Debugf("BrowserProcess:New", "pid:%d wsURL:%q", cmd.Process.Pid, wsURL)

	return &BrowserProcess{
		ctx:         ctx,
		cancel:      cancel,
		process:     cmd.Process,
		processDone: cmd.done,
		wsURL:       wsURL,
		userDataDir: dataDir,
		logger:      logger,
	}, nil
}

// Terminate kills the browser process and waits until it has exited.
func (p *BrowserProcess) Terminate() {
	p.logger.Debugf("BrowserProcess:Terminate", "pid:%d", p.Pid())
	p.cancel()
	<-p.processDone
}

// Done is closed when the browser process has exited.
func (p *BrowserProcess) Done() <-chan struct{} {
	return p.processDone
}

// WsURL returns the Websocket URL that the browser is listening on for CDP clients.
func (p *BrowserProcess) WsURL() string {
	return p.wsURL
}

// Pid returns the browser process ID.
func (p *BrowserProcess) Pid() int {
	return p.process.Pid
}

// UserDataDir returns the browser's user data directory.
func (p *BrowserProcess) UserDataDir() string {
	return p.userDataDir.Dir
}

type command struct {
	*exec.Cmd
	done   chan struct{}
	stderr io.Reader
	logger *log.Logger
}

func execute(
	ctx context.Context, path string, args, env []string, dataDir *storage.Dir,
	logger *log.Logger,
) (command, error) {
	cmd := exec.CommandContext(ctx, path, args...)
	killAfterParent(cmd)

	// Set up environment variable for process
	if len(env) > 0 {
		cmd.Env = append(os.Environ(), env...)
	}

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return command{}, fmt.Errorf("%w", err)
	}

	// We must start the cmd before calling cmd.Wait, as otherwise the two
	// can run into a data race.
	err = cmd.Start()
	if os.IsNotExist(err) {
		return command{}, fmt.Errorf("file does not exist: %s", path)
	}
	if err != nil {
		return command{}, fmt.Errorf("%w", err)
	}
	if ctx.Err() != nil {
		return command{}, fmt.Errorf("%w", ctx.Err())
	}

	done := make(chan struct{})
	go func() {
		defer func() {
			if err := dataDir.Cleanup(); err != nil {
				logger.Errorf("browser", "cleaning up the user data directory: %v", err)
			}
			close(done)
		}()

		if err := cmd.Wait(); err != nil && ctx.Err() == nil {
			logger.Errorf("browser",
				"process with PID %d unexpectedly ended: %v",
				cmd.Process.Pid, err)
		}
	}()

	return command{Cmd: cmd, done: done, stderr: stderr, logger: logger}, nil
}

// parseDevToolsURL reads the browser's stderr until the DevTools URL shows
// up. If stderr ends first, the last error Chrome logged is returned.
func parseDevToolsURL(ctx context.Context, cmd command) (string, error) {
	type result struct {
		devToolsURL string
		err         error
	}
	c := make(chan result, 1)

	go func() {
		var (
			scanner = bufio.NewScanner(cmd.stderr)
			lastErr string
			found   bool
		)
		for scanner.Scan() {
			line := scanner.Text()
			if found {
				cmd.logger.Tracef("browser:stderr", "%s", line)
				continue
			}
			if m := chromeErrorLine.FindStringSubmatch(line); m != nil {
				lastErr = m[1]
				continue
			}
			if strings.HasPrefix(line, devToolsPrefix) {
				found = true
				c <- result{strings.TrimSpace(strings.TrimPrefix(line, devToolsPrefix)), nil}
			}
		}
		if found {
			return
		}

		switch err := scanner.Err(); {
		case lastErr != "":
			c <- result{"", errors.New(lastErr)}
		case err != nil:
			c <- result{"", err}
		default:
			c <- result{"", errors.New("browser process ended unexpectedly")}
		}
	}()

	select {
	case r := <-c:
		return r.devToolsURL, r.err
	case <-cmd.done:
		return "", errors.New("browser process ended unexpectedly")
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
