package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/stikjit/jitstub/internal/rsp"
	"github.com/stikjit/jitstub/internal/trap"
)

var (
	inspectJSON    bool
	classifyMemory bool
	encodeImm      string
)

func init() {
	rootCmd.AddCommand(parseCmd)
	rootCmd.AddCommand(classifyCmd)

	parseCmd.Flags().BoolVar(&inspectJSON, "json", false, "Print as JSON")
	classifyCmd.Flags().BoolVar(&inspectJSON, "json", false, "Print as JSON")
	classifyCmd.Flags().BoolVar(&classifyMemory, "memory", false, "Arguments are memory read replies (target byte order) rather than instruction words")
	classifyCmd.Flags().StringVar(&encodeImm, "encode", "", "Print the BRK word for this immediate instead of classifying")
}

var parseCmd = &cobra.Command{
	Use:   "parse <stop-reply | ->",
	Short: "Decode a stop reply packet",
	Long: `Decode a stop reply the way the JIT loop sees it: exception type,
thread id and expedited registers. Pass "-" to read the reply from stdin.`,
	Example: `  jitstub parse 'T05thread:1a03;00:0000001000000000;01:0040000000000000;20:0080001000000000;metype:6;'`,
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := argOrStdin(args[0], cmd.InOrStdin())
		if err != nil {
			return err
		}
		reply := rsp.ParseStopReply(raw)
		if inspectJSON {
			return printJSON(cmd.OutOrStdout(), stopReplyView(reply))
		}
		printStopReply(cmd.OutOrStdout(), reply)
		return nil
	},
}

// stopReplyJSON is the --json shape of a parsed stop reply.
type stopReplyJSON struct {
	Exception *uint             `json:"exception,omitempty"`
	Thread    string            `json:"thread,omitempty"`
	Registers map[string]string `json:"registers"`
	Usable    bool              `json:"usable"`
}

func stopReplyView(r rsp.StopReply) stopReplyJSON {
	v := stopReplyJSON{
		Thread:    r.ThreadID,
		Registers: make(map[string]string, r.Registers.Len()),
		Usable:    r.Usable(),
	}
	if r.HasException {
		exc := r.Exception
		v.Exception = &exc
	}
	for _, idx := range r.Registers.Indices() {
		val, _ := r.Registers.Get(idx)
		v.Registers[registerName(idx)] = fmt.Sprintf("0x%x", val)
	}
	return v
}

func printStopReply(w io.Writer, r rsp.StopReply) {
	exc := "absent"
	if r.HasException {
		exc = strconv.FormatUint(uint64(r.Exception), 10)
		if r.Exception == 6 {
			exc += " (EXC_BREAKPOINT)"
		}
	}
	thread := "absent"
	if r.HasThread() {
		thread = r.ThreadID
	}

	fmt.Fprintf(w, "Exception: %s\n", exc)
	fmt.Fprintf(w, "Thread:    %s\n", thread)
	fmt.Fprintf(w, "Usable:    %v\n", r.Usable())
	fmt.Fprintf(w, "Registers: %d\n", r.Registers.Len())
	for _, idx := range r.Registers.Indices() {
		val, _ := r.Registers.Get(idx)
		fmt.Fprintf(w, "  %-5s 0x%016x\n", registerName(idx), val)
	}
}

// registerName maps debugserver arm64 register numbers to names.
func registerName(idx uint8) string {
	switch {
	case idx <= 28:
		return fmt.Sprintf("x%d", idx)
	case idx == 29:
		return "fp"
	case idx == 30:
		return "lr"
	case idx == 31:
		return "sp"
	case idx == rsp.RegPC:
		return "pc"
	case idx == 33:
		return "cpsr"
	default:
		return fmt.Sprintf("r%02x", idx)
	}
}

var classifyCmd = &cobra.Command{
	Use:   "classify <word>...",
	Short: "Classify ARM64 instruction words as JIT, debug or other traps",
	Long: `Classify one or more 32-bit instruction words the way the JIT loop
does after fetching the instruction at pc, and disassemble them.

Words are hex, with or without 0x. With --memory each argument is instead
the 8-hex-digit reply of an "m<pc>,4" read, in target byte order.`,
	Example: `  jitstub classify 0xd4200d20
  jitstub classify --memory 200d20d4
  jitstub classify --encode 0x70`,
	RunE: runClassify,
}

// classificationJSON is the --json shape of one classified word.
type classificationJSON struct {
	Word        string `json:"word"`
	Kind        string `json:"kind"`
	Immediate   string `json:"immediate,omitempty"`
	Description string `json:"description"`
	Disassembly string `json:"disassembly"`
}

func runClassify(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	if encodeImm != "" {
		imm, err := strconv.ParseUint(strings.TrimPrefix(strings.ToLower(encodeImm), "0x"), 16, 16)
		if err != nil {
			return fmt.Errorf("invalid immediate %q: %w", encodeImm, err)
		}
		word := trap.EncodeBRK(uint16(imm))
		fmt.Fprintf(out, "0x%08x  %s  (memory: %s)\n", word, trap.Disassemble(word), rsp.EncodeBigEndianWord(word))
		return nil
	}
	if len(args) == 0 {
		return fmt.Errorf("at least one word is required")
	}

	results := make([]classificationJSON, 0, len(args))
	for _, arg := range args {
		word, err := parseWord(arg, classifyMemory)
		if err != nil {
			return err
		}
		cl := trap.Classify(word)
		r := classificationJSON{
			Word:        fmt.Sprintf("0x%08x", word),
			Kind:        cl.Kind.String(),
			Description: trap.Describe(cl),
			Disassembly: trap.Disassemble(word),
		}
		if cl.IsBreakpoint() {
			r.Immediate = fmt.Sprintf("0x%x", cl.Immediate)
		}
		results = append(results, r)
	}

	if inspectJSON {
		return printJSON(out, results)
	}
	for _, r := range results {
		fmt.Fprintf(out, "%s  %-20s %-24s %s\n", r.Word, r.Kind, r.Disassembly, r.Description)
	}
	return nil
}

func parseWord(arg string, memory bool) (uint32, error) {
	if memory {
		return rsp.DecodeBigEndianWord(arg)
	}
	v, err := strconv.ParseUint(strings.TrimPrefix(strings.ToLower(arg), "0x"), 16, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid instruction word %q: %w", arg, err)
	}
	return uint32(v), nil
}

func argOrStdin(arg string, in io.Reader) (string, error) {
	if arg != "-" {
		return arg, nil
	}
	data, err := io.ReadAll(in)
	if err != nil {
		return "", fmt.Errorf("failed to read stdin: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

func printJSON(w io.Writer, v any) error {
	if w == nil {
		w = os.Stdout
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
