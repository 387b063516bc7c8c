package main

import (
	"fmt"
	"os"
)

// Exit codes
const (
	ExitSuccess         = 0
	ExitGeneralError    = 1
	ExitInvalidArgs     = 2
	ExitOriginNotAccess = 3
	ExitStorageError    = 5
	ExitFilesFailed     = 6
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) == 0 {
		printUsage()
		return ExitInvalidArgs
	}

	command := args[0]
	cmdArgs := args[1:]

	switch command {
	case "transfer":
		return runTransfer(cmdArgs)
	case "plan":
		return runPlan(cmdArgs)
	case "check":
		return runCheck(cmdArgs)
	case "help", "-h", "--help":
		printUsage()
		return ExitSuccess
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		printUsage()
		return ExitInvalidArgs
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, `Usage: haul <command> [options]

Commands:
  transfer  Download archives from an HTTP origin, expand them and upload the
            contents to object storage
  plan      Resolve archive sizes and print the chunk plan of each
  check     Report which datasets are already present in the bucket

Run 'haul <command> -h' for command-specific help.`)
}
