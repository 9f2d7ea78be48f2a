package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rubiojr/cmsmirror/pkg/client"
	"github.com/rubiojr/cmsmirror/pkg/core"
	"github.com/urfave/cli/v3"
)

// LiveCommand creates the live command
func LiveCommand() *cli.Command {
	return &cli.Command{
		Name:  "live",
		Usage: "Search as you type: every stdin line is treated as the current input",
		Flags: append([]cli.Flag{
			&cli.DurationFlag{
				Name:  "debounce",
				Usage: "Quiet time before a query is sent",
				Value: client.DefaultDebounce,
			},
		}, searchFlags()...),
		Action: func(ctx context.Context, c *cli.Command) error {
			return liveSearch(ctx, c.String("config"), targetFromFlags(c), c.Duration("debounce"))
		},
	}
}

func liveSearch(ctx context.Context, configPath string, target searchTarget, delay time.Duration) error {
	searcher, cleanup, err := newSearcher(ctx, configPath, target)
	if err != nil {
		return err
	}
	defer cleanup()

	var mu sync.Mutex
	session := client.NewSession(searcher, client.SessionOptions{
		Delay: delay,
		Render: func(query string, results []core.Result) {
			mu.Lock()
			defer mu.Unlock()
			fmt.Println(headerStyle.Render("» " + query))
			fmt.Print(formatResults(results))
		},
		Clear: func() {
			mu.Lock()
			defer mu.Unlock()
			fmt.Println(noDataStyle.Render("(cleared)"))
		},
	})

	var last string
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		last = strings.TrimSpace(scanner.Text())
		session.Input(ctx, last)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading input: %w", err)
	}

	// Input ended: answer the final line now unless it is already on screen.
	session.Flush(ctx, last)
	return nil
}
