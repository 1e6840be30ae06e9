package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/banshee-data/decode/internal/version"
)

func main() {
	flag.Usage = printUsage
	flag.Parse()

	if flag.NArg() < 1 {
		printUsage()
		os.Exit(1)
	}

	command := flag.Arg(0)
	args := flag.Args()[1:]

	var err error
	switch command {
	case "convert":
		err = runConvert(args)
	case "distribute":
		err = runDistribute(args)
	case "postprocess":
		err = runPostprocess(args)
	case "match":
		err = runMatch(args, os.Stdout)
	case "hist":
		err = runHist(args, os.Stdout)
	case "evals":
		err = runEvals(args, os.Stdout)
	case "migrate":
		err = runMigrate(args, os.Stdout)
	case "version":
		fmt.Printf("decode version %s\n", version.String())
	case "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`decode - emitter post-processing and evaluation tools

Usage: decode <command> [options]

Commands:
  convert      Convert an emitter file between .emb, .sqlite/.db and .csv
  distribute   Distribute loose emitters (CSV) onto frames
  postprocess  Turn a network output tensor (JSON) into emitters
  match        Match an output set against a target set and score it
  hist         Summarise detection fields, optionally plotting PNGs
  evals        List or delete stored evaluations
  migrate      Manage the evaluation database schema (up, down, version)
  version      Show decode version
  help         Show this help message

Common Flags:
  --config <file>   Tuning file (.json, .yaml, .yml); built-in defaults otherwise
  --db <file>       Evaluation database path

Examples:
  decode convert --in frames.csv --out frames.emb --compress zstd
  decode distribute --in loose.csv --out frames.emb --first 0 --last 1000
  decode match --out pred.emb --tar truth.emb --method nn --db evals.db --name run-a
  decode hist --in pred.emb --bins 40 --plot-dir plots
  decode evals --db evals.db --name run-a`)
}
