package main

import (
	"fmt"
	"os"
	"runtime"

	arg "github.com/alexflint/go-arg"
)

// Version is stamped at build time via -ldflags.
var Version = "dev"

type Arguments struct {
	Config         string `arg:"-c,--config" placeholder:"FILE" help:"path to YAML config"`
	Output         string `arg:"-o,--output" placeholder:"DIR" help:"local output directory (overrides config)"`
	Full           bool   `arg:"--full" help:"inspect every table, ignoring the prior snapshot"`
	SkipPartitions bool   `arg:"--skip-partitions" help:"skip partition enumeration"`
	Concurrency    int    `arg:"--concurrency" placeholder:"NUM" help:"parallel table fetches (overrides config)"`
	Verbose        bool   `arg:"-v,--verbose" help:"enable debug logging"`
}

func (Arguments) Description() string {
	return "Crawls a MaxCompute project's table metadata into versioned snapshot artifacts."
}

func (*Arguments) Version() string {
	return fmt.Sprintf("%s %s (%s-%s)", os.Args[0], Version, runtime.GOOS, runtime.GOARCH)
}

func ParseArgs() *Arguments {
	args := &Arguments{}
	arg.MustParse(args)
	return args
}
