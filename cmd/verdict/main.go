package main

import (
	"fmt"
	"os"
)

// Version is set at build time via ldflags
var Version = "dev"

const (
	pidFile = "verdictd.pid"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "init":
		err = cmdInit(os.Args[2:])
	case "run":
		err = cmdRun(os.Args[2:])
	case "verify":
		err = cmdVerify(os.Args[2:])
	case "validate":
		err = cmdValidate()
	case "exercise":
		err = cmdExercise(os.Args[2:])
	case "start":
		err = cmdStart()
	case "stop":
		err = cmdStop()
	case "status":
		err = cmdStatus()
	case "logs":
		err = cmdLogs()
	case "worker":
		err = cmdWorker()
	case "mcp":
		err = cmdMCP(os.Args[2:])
	case "help", "-h", "--help":
		printUsage()
	case "version", "-v", "--version":
		fmt.Printf("verdict %s\n", Version)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`Verdict - sandboxed test runner for web exercises

Usage:
  verdict <command> [arguments]

Grading Commands:
  run <exercise-id> <file>   Run a file against an exercise ("-" reads stdin)
  verify [exercise-id]       Check reference solutions pass (all when omitted)
  validate                   Validate the exercise catalog

Exercise Commands:
  exercise list              List available exercises
  exercise info <id>         Show exercise details

Daemon Commands:
  start           Start the verdict daemon
  stop            Stop the verdict daemon
  status          Show daemon status
  logs            View daemon logs

Integration Commands:
  worker          Grade jobs from the RabbitMQ run queue
  mcp             Start MCP server on stdio (--http <addr> for HTTP)

Other:
  init            Create ~/.verdict with a default config and exercises
  help            Show this help message
  version         Show version information

Examples:
  verdict run web-basics/js/sum sum.js
  verdict run --student ada web-basics/css/box box.css
  verdict verify
  verdict exercise list --type css`)
}
