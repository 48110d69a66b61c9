package main

import (
	"context"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"passviz/internal/runner"
	"passviz/internal/ui"
)

type runOutcome struct {
	result runner.Result
	err    error
}

func runWithUI(ctx context.Context, title string, files []string, req *runner.Request) (runner.Result, error) {
	if req == nil {
		return runner.Result{}, fmt.Errorf("missing run request")
	}
	events := make(chan runner.Event, 256)
	outcomeCh := make(chan runOutcome, 1)

	go func() {
		reqCopy := *req
		reqCopy.Progress = runner.ChannelSink{Ch: events}
		res, err := runner.Run(ctx, &reqCopy)
		outcomeCh <- runOutcome{result: res, err: err}
		close(events)
	}()

	model := ui.NewProgressModel(title, files, events)
	program := tea.NewProgram(model, tea.WithOutput(os.Stdout))
	_, uiErr := program.Run()
	if uiErr != nil {
		// keep draining so the runner never blocks on a full channel
		go func() {
			for range events {
			}
		}()
	}
	outcome := <-outcomeCh
	if uiErr != nil {
		return outcome.result, uiErr
	}
	return outcome.result, outcome.err
}
