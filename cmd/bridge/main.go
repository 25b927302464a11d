package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/term"
)

const usage = `Usage:
  bridge inspect -wasm <file.wasm>
  bridge pack -wasm <in.wasm> -meta <classes.toml> -o <out.wasm>
  bridge run -dir <plugins> [-call plugin.Method] [args...]
  bridge run -dir <plugins> -i  (interactive mode)`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "inspect":
		err = inspectCmd(os.Args[2:])
	case "pack":
		err = packCmd(os.Args[2:])
	case "run":
		err = runCmd(os.Args[2:])
	default:
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func inspectCmd(args []string) error {
	fs := flag.NewFlagSet("inspect", flag.ExitOnError)
	wasmFile := fs.String("wasm", "", "Path to guest wasm file")
	_ = fs.Parse(args)
	if *wasmFile == "" {
		return fmt.Errorf("-wasm is required")
	}
	return inspect(os.Stdout, *wasmFile)
}

func packCmd(args []string) error {
	fs := flag.NewFlagSet("pack", flag.ExitOnError)
	var (
		wasmFile = fs.String("wasm", "", "Path to guest wasm file")
		metaFile = fs.String("meta", "", "Class metadata manifest (TOML)")
		outFile  = fs.String("o", "", "Output file (default: overwrite -wasm)")
	)
	_ = fs.Parse(args)
	if *wasmFile == "" || *metaFile == "" {
		return fmt.Errorf("-wasm and -meta are required")
	}
	out := *outFile
	if out == "" {
		out = *wasmFile
	}
	return pack(*wasmFile, *metaFile, out)
}

func runCmd(args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	var (
		dir         = fs.String("dir", ".", "Directory with config.toml and plugin manifests")
		call        = fs.String("call", "", "Exported method to call (plugin.Method)")
		verbose     = fs.Bool("v", false, "Log to stderr")
		interactive = fs.Bool("i", false, "Interactive mode with TUI")
	)
	_ = fs.Parse(args)
	ctx := context.Background()

	if *interactive {
		if !term.IsTerminal(int(os.Stdout.Fd())) {
			return fmt.Errorf("interactive mode needs a terminal")
		}
		return runInteractive(ctx, *dir)
	}

	logger := zap.NewNop()
	if *verbose {
		l, err := zap.NewDevelopment()
		if err != nil {
			return err
		}
		logger = l
		defer func() { _ = logger.Sync() }()
	}

	s, err := openSession(ctx, *dir, logger, os.Stdout)
	if err != nil {
		return err
	}
	defer s.close(ctx)

	if *call == "" {
		fmt.Printf("Loaded %d plugin(s)\n\nExported methods:\n", len(s.plugins))
		for _, name := range s.names {
			fmt.Printf("  %s: %s\n", name, s.methods[name].desc.WIT())
		}
		return nil
	}

	fmt.Printf("Calling %s(%s)...\n", *call, strings.Join(fs.Args(), ", "))
	res, err := s.call(*call, fs.Args())
	if err != nil {
		return err
	}
	fmt.Printf("Result: %s\n", res)
	return nil
}
