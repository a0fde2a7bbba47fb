package cli

import (
	"io"
	"strings"

	flag "github.com/spf13/pflag"
)

// cliFlags is the set of flags Run accepts, mirroring every Config field
// plus --config/--help: a fresh FlagSet per invocation, ContinueOnError,
// output suppressed so Run controls error formatting.
type cliFlags struct {
	set *flag.FlagSet

	help       *bool
	config     *string
	memSize    *string
	parallel   *int
	maxWriters *int64
	maxRunIO   *int64
	tmpDir     *string
	maxElement *string
	locale     *string
	compress   *bool
	noCompress *bool
	output     *string
}

func newCLIFlags() *cliFlags {
	set := flag.NewFlagSet("fortsort", flag.ContinueOnError)
	set.SetInterspersed(true)
	set.Usage = func() {}
	set.SetOutput(io.Discard)

	f := &cliFlags{set: set}

	f.help = set.BoolP("help", "h", false, "show help")
	f.config = set.StringP("config", "c", "", "path to a fortsort.json config file")
	f.memSize = set.String("mem-size", "", "memory budget: bytes, 512M/4G-style suffix, or N% of free memory (default 95%)")
	f.parallel = set.IntP("parallel", "p", 0, "number of run-creation workers (default: host CPU count)")
	f.maxWriters = set.Int64("max-run-writers", 0, "maximum concurrent run-file writers (default 1)")
	f.maxRunIO = set.Int64("max-run-io", -1, "maximum combined concurrent reader+writer permits; 0 disables the cap (default 1)")
	f.tmpDir = set.String("tmp-dir", "", "directory for temporary run files (default: OS temp dir)")
	f.maxElement = set.String("max-element", "", "maximum record length, same grammar as --mem-size (default 16M)")
	f.locale = set.String("locale", "", "collation locale tag (e.g. de, sv); default is byte order")
	f.compress = set.Bool("compress", true, "compress run files with LZ4 (default true)")
	f.noCompress = set.Bool("no-compress", false, "disable run-file compression; shorthand for --compress=false")
	f.output = set.StringP("output", "o", "", "write sorted output atomically to this file instead of stdout")

	return f
}

func (f *cliFlags) parse(args []string) error {
	return f.set.Parse(args)
}

// overlay turns the flags the caller actually set into a Config usable
// with mergeConfig: unset flags leave their zero value, which mergeConfig
// treats as "no override".
func (f *cliFlags) overlay() Config {
	var cfg Config

	if f.set.Changed("mem-size") {
		cfg.MemSize = *f.memSize
	}

	if f.set.Changed("parallel") {
		cfg.Parallel = *f.parallel
	}

	if f.set.Changed("max-run-writers") {
		cfg.MaxRunWriters = *f.maxWriters
	}

	if f.set.Changed("max-run-io") {
		v := *f.maxRunIO
		cfg.MaxRunIO = &v
	}

	if f.set.Changed("tmp-dir") {
		cfg.TmpDir = *f.tmpDir
	}

	if f.set.Changed("max-element") {
		cfg.MaxElement = *f.maxElement
	}

	if f.set.Changed("locale") {
		cfg.Locale = *f.locale
	}

	if f.set.Changed("no-compress") && *f.noCompress {
		v := false
		cfg.Compress = &v
	} else if f.set.Changed("compress") {
		v := *f.compress
		cfg.Compress = &v
	}

	if f.set.Changed("output") {
		cfg.Output = *f.output
	}

	return cfg
}

const usageText = `fortsort - external sort for newline-delimited records

Reads newline-delimited records from stdin, sorts them (spilling to
temporary run files when the input exceeds the configured memory
budget), and writes the sorted records to stdout.

Usage: fortsort [flags] < input > output

Flags:
  -h, --help                 show this help
  -c, --config <file>        path to a fortsort.json config file
      --mem-size <size>      memory budget (default 95%)
  -p, --parallel <n>         run-creation worker count (default: CPU count)
      --max-run-writers <n>  concurrent run-file writers (default 1)
      --max-run-io <n>       combined reader+writer permit cap, 0=unbounded (default 1)
      --tmp-dir <dir>        directory for temporary run files
      --max-element <size>   maximum record length (default 16M)
      --locale <tag>         collation locale tag; default is byte order
      --compress              compress run files with LZ4 (default true)
      --no-compress           disable run-file compression
  -o, --output <file>        write sorted output atomically to this file
`

func printUsage(w io.Writer) {
	_, _ = io.WriteString(w, usageText)
}

// isUnknownFlagErr reports whether err came from pflag rejecting a flag it
// doesn't recognize, so Run can still print usage on a clean typo instead
// of just an opaque pflag error.
func isUnknownFlagErr(err error) bool {
	return err != nil && strings.Contains(err.Error(), "unknown flag")
}
