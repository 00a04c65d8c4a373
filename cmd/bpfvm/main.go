package main

import (
	"bufio"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/slytechs-repos/bpfvm/pkg/asm"
	"github.com/slytechs-repos/bpfvm/pkg/flow"
	"github.com/slytechs-repos/bpfvm/pkg/inst"
	"github.com/slytechs-repos/bpfvm/pkg/vm"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "bpfvm",
		Short: "BPF virtual machine — verify, assemble, and run packet filters",
	}

	var configPath string
	var verbose bool
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "TOML config file with VM options")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")

	// asm command
	var asmFormat string
	var asmOut string

	asmCmd := &cobra.Command{
		Use:   "asm [program.txt]",
		Short: "Assemble a -d or -dd listing into program form",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			insns, err := readProgramText(args[0])
			if err != nil {
				return err
			}
			var out []byte
			switch asmFormat {
			case "dd":
				out = []byte(asm.DumpHex(insns))
			case "d":
				out = []byte(asm.DumpText(insns))
			case "bin":
				out = inst.EncodeBinary(insns)
			default:
				return fmt.Errorf("unknown format %q (want d, dd, or bin)", asmFormat)
			}
			if asmOut == "" || asmOut == "-" {
				_, err = os.Stdout.Write(out)
				return err
			}
			return os.WriteFile(asmOut, out, 0o644)
		},
	}
	asmCmd.Flags().StringVarP(&asmFormat, "format", "f", "dd", "Output format: d, dd, or bin")
	asmCmd.Flags().StringVarP(&asmOut, "output", "o", "", "Output file (default stdout)")

	// disasm command
	disasmCmd := &cobra.Command{
		Use:   "disasm [program]",
		Short: "Disassemble a program (binary, -d, or -dd input) to the -d listing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			prog, err := loadProgram(args[0])
			if err != nil {
				return err
			}
			fmt.Print(asm.DumpText(prog.Instructions()))
			return nil
		},
	}

	// verify command
	verifyCmd := &cobra.Command{
		Use:   "verify [program]",
		Short: "Run the static verifier on a program",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			prog, err := loadProgram(args[0])
			if err != nil {
				return err
			}
			if err := prog.Validate(); err != nil {
				color.Red("FAIL: %v", err)
				os.Exit(1)
			}
			color.Green("PASS: %d instructions", prog.Len())
			return nil
		},
	}

	// run command
	var packetHex string
	var packetFile string
	var trace bool

	runCmd := &cobra.Command{
		Use:   "run [program]",
		Short: "Execute a program against one packet",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger(verbose)
			defer logger.Sync()

			cfg, err := resolveConfig(configPath)
			if err != nil {
				return err
			}
			prog, err := loadProgram(args[0])
			if err != nil {
				return err
			}
			pkt, err := resolvePacket(packetHex, packetFile)
			if err != nil {
				return err
			}

			ctx := vm.NewContextWith(cfg)
			if trace {
				ctx.SetTracer(vm.TracerFunc(func(s vm.Step) {
					fmt.Printf("%s  A=0x%08x X=0x%08x\n",
						asm.FormatInstruction(s.PC, s.Insn), s.A, s.X)
				}))
			}
			if err := ctx.LoadPacket(pkt); err != nil {
				return err
			}

			result, err := ctx.Execute(prog)
			if err != nil {
				return err
			}
			logger.Debug("execution finished",
				zap.Uint32("result", result),
				zap.Uint64("status", ctx.Registers().Status()),
				zap.Int("packet_len", len(pkt)))

			fmt.Printf("result: %d (0x%08x)\n", result, result)
			if status := ctx.Registers().Status(); status != 0 {
				color.Yellow("status: %s", statusString(status))
			}
			return nil
		},
	}
	runCmd.Flags().StringVar(&packetHex, "packet-hex", "", "Packet bytes as a hex string")
	runCmd.Flags().StringVar(&packetFile, "packet", "", "File with packet bytes (raw or hex)")
	runCmd.Flags().BoolVar(&trace, "trace", false, "Print each executed instruction")

	// filter command
	var numWorkers int

	filterCmd := &cobra.Command{
		Use:   "filter [program] [packets.hex]",
		Short: "Run a program over many packets (one hex packet per line)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger(verbose)
			defer logger.Sync()

			cfg, err := resolveConfig(configPath)
			if err != nil {
				return err
			}
			prog, err := loadProgram(args[0])
			if err != nil {
				return err
			}
			packets, err := readPacketLines(args[1])
			if err != nil {
				return err
			}

			verdicts, err := vm.RunBatch(prog, packets, vm.BatchConfig{
				NumWorkers: numWorkers,
				Config:     cfg,
			})
			if err != nil {
				return err
			}

			accepted := 0
			for _, v := range verdicts {
				if v.Err != nil {
					color.Red("packet %d: %v", v.Index, v.Err)
					continue
				}
				if v.Result != 0 {
					accepted++
				}
				fmt.Printf("packet %d: %d\n", v.Index, v.Result)
			}
			logger.Info("batch finished",
				zap.Int("packets", len(packets)),
				zap.Int("accepted", accepted))
			return nil
		},
	}
	filterCmd.Flags().IntVar(&numWorkers, "workers", 0, "Number of workers (0 = NumCPU)")

	// analyze command
	var analyzeJSON bool

	analyzeCmd := &cobra.Command{
		Use:   "analyze [program]",
		Short: "Report unreachable instructions and redundant jumps",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			prog, err := loadProgram(args[0])
			if err != nil {
				return err
			}
			insns := prog.Instructions()
			report := flow.Analyze(insns)

			if analyzeJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(report)
			}

			unreachable := make(map[int]bool, len(report.Unreachable))
			for _, i := range report.Unreachable {
				unreachable[i] = true
			}
			redundant := make(map[int]bool, len(report.RedundantJumps))
			for _, i := range report.RedundantJumps {
				redundant[i] = true
			}

			table := tablewriter.NewWriter(os.Stdout)
			table.SetHeader([]string{"#", "Instruction", "Flags"})
			for i, in := range insns {
				var flags []string
				if unreachable[i] {
					flags = append(flags, "unreachable")
				}
				if redundant[i] {
					flags = append(flags, "redundant jump")
				}
				table.Append([]string{
					fmt.Sprintf("%03d", i),
					strings.TrimSpace(inst.Mnemonic(in.Op) + " " + asm.FormatOperands(i, in)),
					strings.Join(flags, ", "),
				})
			}
			table.Render()
			fmt.Printf("%d unreachable, %d redundant jumps\n", len(report.Unreachable), len(report.RedundantJumps))
			return nil
		},
	}
	analyzeCmd.Flags().BoolVar(&analyzeJSON, "json", false, "Emit the report as JSON")

	rootCmd.AddCommand(asmCmd, disasmCmd, verifyCmd, runCmd, filterCmd, analyzeCmd)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(verbose bool) *zap.Logger {
	if verbose {
		logger, _ := zap.NewDevelopment()
		return logger
	}
	logger, _ := zap.NewProduction()
	return logger
}

func resolveConfig(path string) (vm.Config, error) {
	if path == "" {
		return vm.DefaultConfig(), nil
	}
	return vm.LoadConfig(path)
}

// loadProgram reads a program file in any supported form: the 64-bit
// binary word stream, a -d listing, or -dd hex text.
func loadProgram(path string) (*vm.Program, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if looksTextual(data) {
		insns, err := asm.Parse(string(data))
		if err != nil {
			return nil, err
		}
		return vm.NewProgram(insns), nil
	}
	return vm.ProgramFromBinary(data)
}

func readProgramText(path string) ([]inst.Instruction, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return asm.Parse(string(data))
}

// looksTextual distinguishes listings from the binary word stream. Every
// encoded instruction carries a zero reserved byte, so any NUL means binary.
func looksTextual(data []byte) bool {
	for _, b := range data {
		if b == 0 {
			return false
		}
	}
	return true
}

func resolvePacket(hexStr, file string) ([]byte, error) {
	switch {
	case hexStr != "" && file != "":
		return nil, fmt.Errorf("use --packet-hex or --packet, not both")
	case hexStr != "":
		return decodeHexPacket(hexStr)
	case file != "":
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, err
		}
		if looksTextual(data) {
			return decodeHexPacket(string(data))
		}
		return data, nil
	}
	return nil, fmt.Errorf("a packet is required (--packet-hex or --packet)")
}

func decodeHexPacket(s string) ([]byte, error) {
	clean := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '\n', '\r', ':':
			return -1
		}
		return r
	}, s)
	return hex.DecodeString(clean)
}

func readPacketLines(path string) ([][]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var packets [][]byte
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 1024*1024), 4*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		pkt, err := decodeHexPacket(line)
		if err != nil {
			return nil, fmt.Errorf("packet %d: %w", len(packets), err)
		}
		packets = append(packets, pkt)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return packets, nil
}

func statusString(status uint64) string {
	var bits []string
	for _, s := range []struct {
		bit  uint64
		name string
	}{
		{vm.ErrBitCRC, "CRC"},
		{vm.ErrBitL3Checksum, "L3_CHECKSUM"},
		{vm.ErrBitL4Checksum, "L4_CHECKSUM"},
		{vm.ErrBitTruncated, "TRUNCATED"},
		{vm.ErrBitMalformed, "MALFORMED"},
	} {
		if status&s.bit != 0 {
			bits = append(bits, s.name)
		}
	}
	return strings.Join(bits, "|")
}
