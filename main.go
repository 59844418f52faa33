package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/xyproto/env/v2"
	"github.com/xyproto/gcnasm/internal/asm"
	"github.com/xyproto/gcnasm/internal/gpu"
)

// An assembler for AMD OpenCL 2.0 GPU kernel binaries

const versionString = "gcnasm 0.9.1"

const (
	deviceEnv = "GCNASM_DEVICE"
	bitsEnv   = "GCNASM_64BIT"
)

// VerboseMode enables build messages on stderr
var VerboseMode bool

func main() {
	defaultDevice := env.Str(deviceEnv, "fiji")

	var deviceFlag = flag.String("device", defaultDevice, "target device ("+strings.Join(gpu.DeviceNames(), ", ")+")")
	var deviceShort = flag.String("d", defaultDevice, "shorthand for --device")
	var bits64 = flag.Bool("64", env.Bool(bitsEnv), "assemble for the 64-bit OpenCL runtime")
	var driverVersion = flag.Uint("driver-version", 0, "driver version (e.g. 203603); detected when 0")
	var outputFilenameFlag = flag.String("o", "", "output filename (JSON binary model); stdout when empty")
	var outputFilenameLongFlag = flag.String("output", "", "output filename (JSON binary model); stdout when empty")
	var forceSymbols = flag.Bool("S", false, "copy global symbols into the binary symbol tables")
	var forceSymbolsLong = flag.Bool("force-symbols", false, "copy global symbols into the binary symbol tables")
	var testRun = flag.Bool("test-run", false, "assemble without driver detection")
	var maxErrors = flag.Int("max-errors", 10, "stop after this many errors")
	var versionShort = flag.Bool("V", false, "print version information and exit")
	var version = flag.Bool("version", false, "print version information and exit")
	var verbose = flag.Bool("v", false, "verbose mode (show build messages)")
	var verboseLong = flag.Bool("verbose", false, "verbose mode (show build messages)")
	var watchFlag = flag.Bool("watch", false, "watch mode: reassemble on file changes")
	var watchShort = flag.Bool("w", false, "shorthand for --watch")
	flag.Usage = func() {
		fmt.Fprint(os.Stderr, helpText)
		flag.PrintDefaults()
	}
	flag.Parse()

	if *version || *versionShort {
		fmt.Println(versionString)
		os.Exit(0)
	}

	VerboseMode = *verbose || *verboseLong

	deviceName := *deviceFlag
	if *deviceShort != defaultDevice {
		deviceName = *deviceShort
	}
	device, err := gpu.ParseDeviceType(deviceName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	outputPath := *outputFilenameFlag
	if *outputFilenameLongFlag != "" {
		outputPath = *outputFilenameLongFlag
	}

	ctx := &CommandContext{
		Inputs:     flag.Args(),
		OutputPath: outputPath,
		Watch:      *watchFlag || *watchShort,
		Color:      useColor(os.Stderr),
		Stdout:     os.Stdout,
		Stderr:     os.Stderr,
		Options: asm.Options{
			Device:          device,
			Is64Bit:         *bits64,
			DriverVersion:   uint32(*driverVersion),
			ForceAddSymbols: *forceSymbols || *forceSymbolsLong,
			TestRun:         *testRun,
			Verbose:         VerboseMode,
			MaxErrors:       *maxErrors,
		},
	}

	if err := RunCLI(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
