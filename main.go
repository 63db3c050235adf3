package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"koa/builtin"
	"koa/compiler"
	"koa/koalog"
	"koa/object"
	"koa/replui"
	"koa/scanner"
	"koa/vm"
)

const version = "koa 0.1.0"

func main() {
	args := os.Args[1:]
	var file string
	printOnly := false

	for _, a := range args {
		switch a {
		case "-h", "--help":
			usage()
			return
		case "-v", "--version":
			fmt.Println(version)
			return
		case "-p", "--print":
			printOnly = true
		default:
			if strings.HasPrefix(a, "-") {
				fmt.Fprintf(os.Stderr, "unknown flag %q\n", a)
				os.Exit(1)
			}
			file = a
		}
	}

	koalog.SetVerbose(os.Getenv("KOA_VERBOSE") != "")

	if printOnly {
		if file == "" {
			fmt.Fprintln(os.Stderr, "-p/--print requires a file")
			os.Exit(1)
		}
		printDisassembly(file)
		return
	}

	if file == "" {
		runREPL()
		return
	}
	runFile(file)
}

func usage() {
	fmt.Println(version)
	fmt.Println("Usage:")
	fmt.Println("  koa [file.k]      run a script, or start the REPL with no argument")
	fmt.Println("  koa -p file.k     disassemble the compiled Code and exit")
	fmt.Println("  koa -h            show this help")
	fmt.Println("  koa -v            show the version")
}

func printDisassembly(file string) {
	src, err := os.ReadFile(file)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	c, cerr := compiler.Compile(scanner.New(string(src)), file, builtin.FuncsByName())
	if cerr != nil {
		fmt.Fprintln(os.Stderr, cerr.Error())
		os.Exit(1)
	}
	fmt.Print(c.Disassemble())
}

func runFile(file string) {
	src, err := os.ReadFile(file)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	c, cerr := compiler.Compile(scanner.New(string(src)), file, builtin.FuncsByName())
	if cerr != nil {
		fmt.Fprintln(os.Stderr, cerr.Error())
		os.Exit(1)
	}
	t := vm.NewThread()
	if _, rerr := t.Run(c); rerr != nil {
		fmt.Fprintln(os.Stderr, rerr.Error())
		fmt.Fprint(os.Stderr, t.Traceback())
		os.Exit(1)
	}
	if builtin.ExitCalled {
		os.Exit(builtin.ExitCode)
	}
}

// runREPL drives the line-oriented read-compile-execute loop (spec
// §6.5): each input compiles one statement against a persistent Code
// and runs immediately against a persistent Frame, so declared names
// stay visible to later inputs and a mid-statement error only rolls
// back that statement's effect.
func runREPL() {
	fmt.Println(version)
	builtins := builtin.FuncsByName()
	c := compiler.New(scanner.New(""), "<repl>", builtins)
	t := vm.NewThread()

	in := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print(replui.PS1())
		if !in.Scan() {
			fmt.Println()
			return
		}
		line := strings.TrimSpace(in.Text())
		if line == "" {
			continue
		}
		if !strings.HasSuffix(line, ";") && !strings.HasSuffix(line, "}") {
			line += ";"
		}

		before := len(c.Code().Opcodes)
		c.Reset(scanner.New(line))
		if err := compiler.CompileStatement(c); err != nil {
			c.Code().TruncateTo(before)
			fmt.Println(replui.Err.Render(err.Error()))
			continue
		}

		v, rerr := t.RunREPL(c.Code(), before)
		if rerr != nil {
			fmt.Println(replui.Err.Render(rerr.Error()))
			continue
		}
		if builtin.ExitCalled {
			os.Exit(builtin.ExitCode)
		}
		if v != nil && v.Kind() != object.KindVoid {
			fmt.Println(replui.Result.Render(v.Print()))
		}
	}
}
