// Command devtools-scenarios runs browser scenarios over the DevTools
// protocol and reports which of them pass.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
)

func main() {
	cmd := newRootCommand(os.Stdout, os.Stderr, os.LookupEnv)
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		if !errors.Is(err, errScenariosFailed) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(1)
	}
}
