package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/xyproto/gcnasm/internal/amdcl2"
	"github.com/xyproto/gcnasm/internal/asm"
	"github.com/xyproto/gcnasm/internal/gcn"
)

// cli.go - command-line driver for gcnasm
//
//   gcnasm [flags] <file.s>...   assemble each file into a JSON binary model
//   gcnasm help                  show usage
//
// Several inputs are assembled in parallel, one assembler per file.

const helpText = `gcnasm - assembler for AMD OpenCL 2.0 GPU kernel binaries

Usage:
    gcnasm [flags] <file.s>...
    gcnasm help

With one input the binary model is written to -o, or stdout.
With several inputs each model is written next to its source as <name>.json.

Environment:
    GCNASM_DEVICE           default device
    GCNASM_64BIT            default to the 64-bit runtime
    GCNASM_DRIVER_VERSION   driver version used instead of detection
    GCNASM_AMDOCL_PATH      path of the AMD OpenCL library to probe
    NO_COLOR                disable colored diagnostics

Flags:
`

// CommandContext holds the execution context for a CLI command
type CommandContext struct {
	Inputs     []string
	OutputPath string
	Options    asm.Options
	Watch      bool
	Color      bool
	Stdout     io.Writer
	Stderr     io.Writer

	// serializes writes to Stderr during watch mode
	mu sync.Mutex
}

// buildResult is the outcome of assembling one input file
type buildResult struct {
	file   string
	ok     bool
	out    *amdcl2.Output
	log    string
	report string
}

// RunCLI is the main entry point of the CLI
func RunCLI(ctx *CommandContext) error {
	if len(ctx.Inputs) == 0 {
		return errors.New("no input files (run 'gcnasm help' for usage)")
	}
	if len(ctx.Inputs) == 1 && ctx.Inputs[0] == "help" {
		return cmdHelp(ctx)
	}
	if ctx.OutputPath != "" && len(ctx.Inputs) > 1 {
		return fmt.Errorf("-o can't be used with %d input files", len(ctx.Inputs))
	}
	if ctx.Watch {
		return cmdWatch(ctx)
	}
	return cmdBuild(ctx)
}

func cmdHelp(ctx *CommandContext) error {
	fmt.Fprint(ctx.Stdout, helpText)
	return nil
}

// cmdBuild assembles every input and writes the models in input order
func cmdBuild(ctx *CommandContext) error {
	results := make([]buildResult, len(ctx.Inputs))

	var g errgroup.Group
	g.SetLimit(runtime.NumCPU())
	for i, file := range ctx.Inputs {
		i, file := i, file
		g.Go(func() error {
			r, err := assembleFile(file, ctx.Options, ctx.Color)
			if err != nil {
				return err
			}
			results[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	failed := 0
	for _, r := range results {
		if err := ctx.finish(r); err != nil {
			return err
		}
		if !r.ok {
			failed++
		}
	}
	if failed > 0 {
		if len(results) == 1 {
			return fmt.Errorf("failed to assemble %s", results[0].file)
		}
		return fmt.Errorf("%d of %d files failed to assemble", failed, len(results))
	}
	return nil
}

// finish prints the diagnostics of r and writes its model on success
func (ctx *CommandContext) finish(r buildResult) error {
	ctx.mu.Lock()
	defer ctx.mu.Unlock()

	fmt.Fprint(ctx.Stderr, r.log)
	fmt.Fprint(ctx.Stderr, r.report)
	if !r.ok {
		return nil
	}

	data, err := json.MarshalIndent(r.out, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", r.file, err)
	}
	data = append(data, '\n')

	path := outputPathFor(r.file, ctx.OutputPath, len(ctx.Inputs))
	if path == "" {
		_, err = ctx.Stdout.Write(data)
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if ctx.Options.Verbose {
		fmt.Fprintf(ctx.Stderr, "wrote %s\n", path)
	}
	return nil
}

// outputPathFor returns where the model of file goes; empty means stdout
func outputPathFor(file, outputPath string, inputs int) string {
	if outputPath != "" {
		return outputPath
	}
	if inputs == 1 {
		return ""
	}
	return strings.TrimSuffix(file, filepath.Ext(file)) + ".json"
}

// assembleFile runs one assembler over file. Only I/O failures are
// returned as errors; diagnostics end up in the result.
func assembleFile(file string, opts asm.Options, color bool) (buildResult, error) {
	src, err := os.ReadFile(file)
	if err != nil {
		return buildResult{}, fmt.Errorf("failed to read %s: %w", file, err)
	}

	var log bytes.Buffer
	if opts.Verbose {
		opts.Log = &log
	}
	a := asm.New(opts, amdcl2.Factory, gcn.New(opts.Device.Architecture()))
	ok := a.Assemble(file, string(src))

	r := buildResult{file: file, ok: ok, log: log.String()}
	if a.Errors().ErrorCount()+a.Errors().WarningCount() > 0 {
		r.report = a.Errors().Report(color)
	}
	if h, isCL2 := a.Handler().(*amdcl2.Handler); isCL2 {
		r.out = h.Output()
	}
	return r, nil
}

// cmdWatch assembles all inputs and reassembles each one when it changes,
// until interrupted
func cmdWatch(ctx *CommandContext) error {
	if err := cmdBuild(ctx); err != nil {
		fmt.Fprintf(ctx.Stderr, "Error: %v\n", err)
	}

	watcher, err := NewFileWatcher(func(path string) {
		file := ctx.inputFor(path)
		r, err := assembleFile(file, ctx.Options, ctx.Color)
		if err != nil {
			ctx.mu.Lock()
			fmt.Fprintf(ctx.Stderr, "Error: %v\n", err)
			ctx.mu.Unlock()
			return
		}
		if err := ctx.finish(r); err != nil {
			ctx.mu.Lock()
			fmt.Fprintf(ctx.Stderr, "Error: %v\n", err)
			ctx.mu.Unlock()
		}
	})
	if err != nil {
		return err
	}
	defer watcher.Close()

	for _, file := range ctx.Inputs {
		if err := watcher.AddFile(file); err != nil {
			return err
		}
	}

	sigctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	fmt.Fprintf(ctx.Stderr, "watching %d file(s), press Ctrl+C to stop\n", len(ctx.Inputs))
	watcher.Watch(sigctx)
	return nil
}

// inputFor maps a watched absolute path back to the input as given
func (ctx *CommandContext) inputFor(path string) string {
	for _, file := range ctx.Inputs {
		if abs, err := filepath.Abs(file); err == nil && abs == path {
			return file
		}
	}
	return path
}
