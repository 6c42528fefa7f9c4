// Command autoparallel rewrites sequential Fortran-style loop nests into
// parallel map and reduction kernels.
//
// Usage:
//
//	autoparallel [options] <input.f>
//	cat input.f | autoparallel [options]
//
// Options:
//
//	-o <file>          Write emitted source to file (default: stdout)
//	--config <file>    Use specific config file
//	--no-config        Ignore config files
//	--no-fusion        Skip the kernel fusion passes
//	--list             Print pre- and post-fusion annotation listings
//	--tree             Print the annotated region structure
//	--version          Print version and exit
//	--help             Print help and exit
//
// Config file:
//
//	autoparallel looks for autoparallel.json or .autoparallelrc in the
//	current directory and parent directories. Environment variables
//	(AUTOPARALLEL_NAME, AUTOPARALLEL_TAB_WIDTH, AUTOPARALLEL_KERNEL_PREFIX)
//	override config file settings.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/KombuchaShroomz/AutoParallel-Fortran/internal/config"
	"github.com/KombuchaShroomz/AutoParallel-Fortran/internal/transformer"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Flags
	var (
		outputFile  string
		configFile  string
		noConfig    bool
		noFusion    bool
		list        bool
		tree        bool
		showVersion bool
		showHelp    bool
	)

	flag.StringVar(&outputFile, "o", "", "Write emitted source to `file`")
	flag.StringVar(&configFile, "config", "", "Use specific config `file`")
	flag.BoolVar(&noConfig, "no-config", false, "Ignore config files")
	flag.BoolVar(&noFusion, "no-fusion", false, "Skip the kernel fusion passes")
	flag.BoolVar(&list, "list", false, "Print pre- and post-fusion annotation listings")
	flag.BoolVar(&tree, "tree", false, "Print the annotated region structure")
	flag.BoolVar(&showVersion, "version", false, "Print version and exit")
	flag.BoolVar(&showHelp, "help", false, "Print help and exit")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "autoparallel - loop parallelizer v%s\n\n", version)
		fmt.Fprintf(os.Stderr, "Usage: autoparallel [options] <input.f>\n")
		fmt.Fprintf(os.Stderr, "       cat input.f | autoparallel [options]\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nConfig file:\n")
		fmt.Fprintf(os.Stderr, "  Searches for autoparallel.json or .autoparallelrc in current and parent directories.\n")
		fmt.Fprintf(os.Stderr, "  Environment variables override config file settings.\n")
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  autoparallel loops.f -o loops_par.f\n")
		fmt.Fprintf(os.Stderr, "  autoparallel --list --tree loops.f\n")
		fmt.Fprintf(os.Stderr, "  cat loops.f | autoparallel > loops_par.f\n")
	}

	flag.Parse()

	if showHelp {
		flag.Usage()
		return nil
	}

	if showVersion {
		fmt.Printf("autoparallel v%s (%s)\n", version, commit)
		return nil
	}

	// Read input
	var source []byte
	var err error
	path := "<stdin>"

	if flag.NArg() > 0 {
		path = flag.Arg(0)
		source, err = os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading input: %w", err)
		}
	} else {
		stat, _ := os.Stdin.Stat()
		if (stat.Mode() & os.ModeCharDevice) != 0 {
			flag.Usage()
			return fmt.Errorf("no input file specified")
		}
		source, err = io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("reading stdin: %w", err)
		}
	}

	// Load config file
	cfg := config.Default()
	if !noConfig {
		if configFile != "" {
			cfg, err = config.LoadFile(configFile)
			if err != nil {
				return fmt.Errorf("loading config file %s: %w", configFile, err)
			}
		} else {
			startDir, _ := os.Getwd()
			if flag.NArg() > 0 {
				startDir = filepath.Dir(flag.Arg(0))
			}
			cfg, _, err = config.Load(startDir)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
		}
	}
	if cfg.ListAnnotations != nil {
		list = list || *cfg.ListAnnotations
	}

	// Transform
	opts := transformer.DefaultOptions()
	opts.Config = cfg
	opts.Fuse = !noFusion

	t := transformer.New(opts)
	result := t.Transform(string(source), path)

	// Check for errors
	if len(result.Errors) > 0 {
		for _, e := range result.Errors {
			fmt.Fprintf(os.Stderr, "error: %d:%d: %s\n", e.Line, e.Column, e.Message)
		}
		return fmt.Errorf("parsing failed with %d error(s)", len(result.Errors))
	}

	if list {
		fmt.Fprintf(os.Stderr, "before fusion:\n%s", result.PreFusion)
		fmt.Fprintf(os.Stderr, "after fusion:\n%s", result.PostFusion)
	}
	if tree {
		fmt.Fprint(os.Stderr, result.Tree)
	}

	// Write output
	var output io.Writer = os.Stdout
	if outputFile != "" {
		f, err := os.Create(outputFile)
		if err != nil {
			return fmt.Errorf("creating output file: %w", err)
		}
		defer f.Close()
		output = f
	}

	if _, err := io.WriteString(output, result.Code); err != nil {
		return fmt.Errorf("writing output: %w", err)
	}

	// Print stats to stderr if output is to file
	if outputFile != "" {
		fmt.Fprintf(os.Stderr, "Parallelized: %d map, %d reduction, %d sequential\n",
			result.Stats.MapKernels, result.Stats.ReduceKernels, result.Stats.SequentialLoops)
	}

	return nil
}
