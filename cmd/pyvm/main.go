package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"

	"pyvm/internal/ast"
	"pyvm/internal/cache"
	"pyvm/internal/config"
	"pyvm/internal/errs"
	"pyvm/internal/ir"
	"pyvm/internal/modules"
	"pyvm/internal/runtime"
	"pyvm/internal/vm"
)

const version = "0.1.0"

var log = commonlog.GetLogger("pyvm.cli")

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	cmd := os.Args[1]

	var err error
	switch cmd {
	case "run":
		err = cmdRun(os.Args[2:])
	case "build":
		err = cmdBuild(os.Args[2:])
	case "disasm":
		err = cmdDisasm(os.Args[2:])
	case "ast":
		err = cmdAST(os.Args[2:])
	case "help", "-h", "--help":
		usage()
	case "version", "--version":
		fmt.Println("pyvm", version)
	default:
		// pyvm [-v]... script.py
		if strings.HasPrefix(cmd, "-") || filepath.Ext(cmd) != "" {
			err = cmdRun(os.Args[1:])
			break
		}
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", cmd)
		usage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", vm.Describe(err))
		os.Exit(exitCode(err))
	}
}

func usage() {
	fmt.Println(`pyvm: a bytecode VM for a Python subset

Usage:
  pyvm [-v]... <script.py>
  pyvm run [-v]... [-config file] <script.py|script.pyvc>
  pyvm build [-o out.pyvc] <script.py|dir>
  pyvm disasm <script.py|script.pyvc>
  pyvm ast <script.py>

Commands:
  version  pyvm version
  run      Compile+run .py source or run .pyvc bytecode
  build    Compile .py source into .pyvc files
  disasm   Print the bytecode listing
  ast      Print the parsed syntax tree

Flags (run):
  -v       Raise log verbosity; repeat for more (-v -v traces every instruction)
  -config  Settings file (default: pyvm.toml or pyvm.yaml next to the script)`)
}

// exitCode is 2 for defects in pyvm itself and 1 for everything else.
func exitCode(err error) int {
	if errs.IsInternal(err) {
		return 2
	}
	return 1
}

// verbosityFlag counts repeated -v flags.
type verbosityFlag int

func (v *verbosityFlag) String() string   { return strconv.Itoa(int(*v)) }
func (v *verbosityFlag) IsBoolFlag() bool { return true }

func (v *verbosityFlag) Set(s string) error {
	on, err := strconv.ParseBool(s)
	if err != nil {
		return err
	}
	if on {
		*v++
	}
	return nil
}

// -------------- RUN --------------

func cmdRun(args []string) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var verbosity verbosityFlag
	var configPath string

	fs.Var(&verbosity, "v", "raise log verbosity (repeatable)")
	fs.StringVar(&configPath, "config", "", "settings file")

	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		return fmt.Errorf("run: missing input file")
	}
	input := fs.Arg(0)

	cfg, err := loadConfig(configPath, input)
	if err != nil {
		return err
	}
	level := max(cfg.Log.Verbosity, int(verbosity))
	configureLogging(level, cfg.Log.File)

	ctx := context.Background()
	code, err := loadCode(ctx, input, cfg)
	if err != nil {
		return err
	}

	m := vm.New(runtime.DefaultEnv(), vm.Options{
		MaxCallDepth: cfg.VM.MaxCallDepth,
		Trace:        cfg.VM.Trace || level >= 2,
	})
	_, err = m.Evaluate(ctx, code)
	return err
}

func loadConfig(path, input string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}
	return config.FindAndLoad(filepath.Dir(input))
}

func configureLogging(verbosity int, file string) {
	if file == "" {
		commonlog.Configure(verbosity, nil)
		return
	}
	commonlog.Configure(verbosity, &file)
}

// loadCode turns a script into a code object, consulting the cache for
// source files when one is configured.
func loadCode(ctx context.Context, path string, cfg *config.Config) (*ir.CodeObject, error) {
	mod, loadErrs := modules.Load(path)
	if len(loadErrs) > 0 {
		return nil, reportErrors("loading", loadErrs)
	}
	if mod.Precompiled() {
		log.Infof("loaded %s (%s)", path, humanize.Bytes(uint64(len(mod.Source))))
		return mod.Code, nil
	}

	if cfg.Cache.Driver == "" {
		return compileModule(mod)
	}

	c, err := cache.Open(ctx, cfg.Cache.Driver, cfg.Cache.DSN)
	if err != nil {
		return nil, err
	}
	defer c.Close()

	key := cache.Key(mod.Source)
	if code, ok, err := c.Get(ctx, key); err != nil {
		log.Warningf("cache lookup failed: %v", err)
	} else if ok {
		log.Infof("%s: using cached code", path)
		return code, nil
	}

	code, err := compileModule(mod)
	if err != nil {
		return nil, err
	}
	if err := c.Put(ctx, key, code); err != nil {
		log.Warningf("cache store failed: %v", err)
	}
	return code, nil
}

func compileModule(mod *modules.Module) (*ir.CodeObject, error) {
	code, compileErrs := ir.Compile(mod.Prog)
	if len(compileErrs) > 0 {
		for i, e := range compileErrs {
			compileErrs[i] = fmt.Errorf("%s: %w", mod.FilePath, e)
		}
		return nil, reportErrors("compilation", compileErrs)
	}
	return code, nil
}

// reportErrors prints all but the last error and returns the last one, so
// a single failure keeps its kind for the exit code.
func reportErrors(stage string, list []error) error {
	if len(list) == 1 {
		return list[0]
	}
	for _, e := range list[:len(list)-1] {
		fmt.Fprintln(os.Stderr, vm.Describe(e))
	}
	last := list[len(list)-1]
	return fmt.Errorf("%s failed with %d errors; last: %w", stage, len(list), last)
}

// -------------- BUILD --------------

func cmdBuild(args []string) error {
	fs := flag.NewFlagSet("build", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var out string
	fs.StringVar(&out, "o", "", "output file (default: <input>.pyvc)")

	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		return fmt.Errorf("build: missing input file")
	}

	inputs, err := modules.SourceFiles(fs.Arg(0))
	if err != nil {
		return fmt.Errorf("build: %w", err)
	}
	if len(inputs) == 0 {
		return fmt.Errorf("build: no %s files in %s", modules.SourceExt, fs.Arg(0))
	}
	if out != "" && len(inputs) > 1 {
		return fmt.Errorf("build: -o needs a single input file")
	}

	for _, input := range inputs {
		if filepath.Ext(input) != modules.SourceExt {
			return fmt.Errorf("build: input must be %s source file", modules.SourceExt)
		}
		mod, loadErrs := modules.Load(input)
		if len(loadErrs) > 0 {
			return reportErrors("loading", loadErrs)
		}
		code, err := compileModule(mod)
		if err != nil {
			return err
		}

		dest := out
		if dest == "" {
			dest = modules.CodePath(input)
		}
		if err := ir.WriteCodeToFile(dest, code); err != nil {
			return fmt.Errorf("failed to write bytecode: %w", err)
		}
		if info, err := os.Stat(dest); err == nil {
			fmt.Printf("%s -> %s (%s)\n", input, dest, humanize.Bytes(uint64(info.Size())))
		}
	}
	return nil
}

// -------------- DISASM / AST --------------

func cmdDisasm(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("disasm: missing input file")
	}
	code, err := loadCode(context.Background(), args[0], config.Default())
	if err != nil {
		return err
	}
	fmt.Print(ir.Disassemble(code))
	return nil
}

func cmdAST(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("ast: missing input file")
	}
	mod, loadErrs := modules.Load(args[0])
	if len(loadErrs) > 0 {
		return reportErrors("loading", loadErrs)
	}
	if mod.Precompiled() {
		return errors.New("ast: input is a compiled code file")
	}
	fmt.Print(ast.Dump(mod.Prog))
	return nil
}
