package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"passviz/internal/trace"
)

// setupTracing reads the trace flags and attaches a tracer to the command
// context. The returned cleanup flushes and closes it.
func setupTracing(cmd *cobra.Command) (func(), error) {
	root := cmd.Root()

	traceOutput, err := root.PersistentFlags().GetString("trace")
	if err != nil {
		return nil, fmt.Errorf("failed to get trace flag: %w", err)
	}
	levelStr, err := root.PersistentFlags().GetString("trace-level")
	if err != nil {
		return nil, fmt.Errorf("failed to get trace-level flag: %w", err)
	}
	level, err := traceLevel(levelStr, traceOutput, root.PersistentFlags().Changed("trace-level"))
	if err != nil {
		return nil, err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if level == trace.LevelOff {
		cmd.SetContext(trace.WithTracer(ctx, trace.Nop))
		return func() {}, nil
	}

	tracer, err := trace.New(trace.Config{Level: level, OutputPath: traceOutput})
	if err != nil {
		return nil, fmt.Errorf("failed to create tracer: %w", err)
	}
	ctx = trace.WithTracer(ctx, tracer)
	cmd.SetContext(ctx)
	root.SetContext(ctx)

	return func() {
		if err := tracer.Flush(); err != nil {
			logger.Warn("trace flush failed", zap.Error(err))
		}
		if err := tracer.Close(); err != nil {
			logger.Warn("trace close failed", zap.Error(err))
		}
	}, nil
}

// traceLevel resolves the effective level. An output given without an
// explicit level traces sessions and passes; an explicit level always wins.
func traceLevel(levelStr, output string, explicit bool) (trace.Level, error) {
	level, err := trace.ParseLevel(levelStr)
	if err != nil {
		return trace.LevelOff, fmt.Errorf("invalid trace level: %w", err)
	}
	if !explicit && level == trace.LevelOff && output != "" {
		level = trace.LevelPass
	}
	return level, nil
}
