package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/user/wayfarer/internal/runtime"
	"github.com/user/wayfarer/internal/types"
)

var (
	askMode        string
	askDestination string
	askStart       string
	askEnd         string
)

func init() {
	askCmd.Flags().StringVarP(&askMode, "mode", "m", "ask", "conversation mode: ask or itinerary")
	askCmd.Flags().StringVarP(&askDestination, "destination", "d", "", "trip destination")
	askCmd.Flags().StringVar(&askStart, "start", "", "trip start date (YYYY-MM-DD)")
	askCmd.Flags().StringVar(&askEnd, "end", "", "trip end date (YYYY-MM-DD)")
	rootCmd.AddCommand(askCmd)
}

var askCmd = &cobra.Command{
	Use:   "ask <message>",
	Short: "Run a single chat turn and print its events",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		closeLog := setupLogging(cfg)
		defer closeLog()

		mode, err := types.ParseMode(askMode)
		if err != nil {
			return err
		}
		a, err := newApp(cfg)
		if err != nil {
			return err
		}

		var trip *types.TripContext
		if askDestination != "" || askStart != "" || askEnd != "" {
			trip = &types.TripContext{Destination: askDestination, StartDate: askStart, EndDate: askEnd}
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		events, err := a.runtime.StartTurn(ctx, runtime.TurnRequest{
			Message: strings.Join(args, " "),
			Mode:    mode,
			Trip:    trip,
		})
		if err != nil {
			return err
		}
		return printEvents(cmd.OutOrStdout(), cmd.ErrOrStderr(), events)
	},
}

// printEvents streams content to out and writes a summary of structured
// events to status. An error event is returned as an error after its
// fallback text is printed.
func printEvents(out, status io.Writer, events <-chan types.Event) error {
	var turnErr error
	for e := range events {
		switch e.Type {
		case types.EventToolCalls:
			for _, tc := range e.ToolCalls {
				outcome := "ok"
				if tc.Result != nil && !tc.Result.Success {
					outcome = "failed: " + tc.Result.Error
				}
				fmt.Fprintf(status, "→ %s %s (%s)\n", tc.Name, tc.Input, outcome)
			}
		case types.EventCards:
			fmt.Fprintf(status, "%d cards:\n", len(e.Cards))
			for _, c := range e.Cards {
				fmt.Fprintf(status, "  [%s] %s\n", c.Type, c.Name)
			}
		case types.EventVideos:
			for _, v := range e.Videos {
				fmt.Fprintf(status, "▶ %s %s\n", v.Title, v.WatchURL())
			}
		case types.EventVideoAnalysis:
			if e.VideoAnalysis != nil {
				fmt.Fprintf(status, "video %s: %s\n", e.VideoAnalysis.VideoID, e.VideoAnalysis.Summary)
			}
		case types.EventSmartVideoResult:
			if r := e.SmartVideoResult; r != nil {
				fmt.Fprintf(status, "answered from %d videos (topics: %s)\n", len(r.Videos), strings.Join(r.Topics, ", "))
			}
		case types.EventContent:
			fmt.Fprint(out, e.Content)
		case types.EventItinerary:
			if it := e.Itinerary; it != nil {
				fmt.Fprintf(status, "\nitinerary: %s (%d days)\n", it.TripSummary.Title, len(it.Days))
			}
		case types.EventDone:
			fmt.Fprintln(out)
			for _, c := range e.Citations {
				fmt.Fprintf(status, "source: %s %s\n", c.Title, c.URL)
			}
		case types.EventError:
			fmt.Fprintln(out)
			fmt.Fprintln(out, e.Fallback)
			turnErr = fmt.Errorf("turn failed: %s", e.Error)
		}
	}
	return turnErr
}
