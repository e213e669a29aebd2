package cmd

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"

	"github.com/pkg/profile"
	"github.com/spf13/cobra"

	"github.com/cellsolve/gop2d/cellparams"
	"github.com/cellsolve/gop2d/mesh"
	"github.com/cellsolve/gop2d/p2d"
	"github.com/cellsolve/gop2d/props"
)

type simulateArgs struct {
	CellFile     string
	ProtocolFile string
	OutputFile   string
	NAnode       int
	NSeparator   int
	NCathode     int
	NShells      int
	Procs        int
	HardRange    bool
	Verbose      bool
	Profile      bool
}

// simulateCmd represents the simulate command
var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run a cell parameter set under a current/voltage protocol",
	Long: `
Runs the P2D solver: reads a cell parameter YAML and a protocol YAML,
integrates the coupled system and writes the accepted (time, current,
voltage) series as CSV.

gop2d simulate -c cell.yaml -p protocol.yaml -o run.csv`,
	Run: func(cmd *cobra.Command, args []string) {
		var sa simulateArgs
		sa.CellFile, _ = cmd.Flags().GetString("cellFile")
		sa.ProtocolFile, _ = cmd.Flags().GetString("protocolFile")
		sa.OutputFile, _ = cmd.Flags().GetString("output")
		sa.NAnode, _ = cmd.Flags().GetInt("nAnode")
		sa.NSeparator, _ = cmd.Flags().GetInt("nSeparator")
		sa.NCathode, _ = cmd.Flags().GetInt("nCathode")
		sa.NShells, _ = cmd.Flags().GetInt("nShells")
		sa.Procs, _ = cmd.Flags().GetInt("procs")
		sa.HardRange, _ = cmd.Flags().GetBool("hardRange")
		sa.Verbose, _ = cmd.Flags().GetBool("verbose")
		sa.Profile, _ = cmd.Flags().GetBool("profile")
		if sa.Profile {
			defer profile.Start().Stop()
		}
		if err := runSimulate(&sa); err != nil {
			fmt.Printf("error: %s\n", err.Error())
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(simulateCmd)
	simulateCmd.Flags().StringP("cellFile", "c", "", "cell parameter set in YAML format")
	simulateCmd.Flags().StringP("protocolFile", "p", "", "protocol segments in YAML format")
	simulateCmd.Flags().StringP("output", "o", "", "CSV output file (default stdout)")
	simulateCmd.Flags().Int("nAnode", mesh.DefaultResolution.NAnode, "finite-volume cells in the anode")
	simulateCmd.Flags().Int("nSeparator", mesh.DefaultResolution.NSeparator, "finite-volume cells in the separator")
	simulateCmd.Flags().Int("nCathode", mesh.DefaultResolution.NCathode, "finite-volume cells in the cathode")
	simulateCmd.Flags().Int("nShells", mesh.DefaultResolution.NShells, "radial shells per particle")
	simulateCmd.Flags().Int("procs", 0, "assembly workers, 0 = all cores")
	simulateCmd.Flags().Bool("hardRange", false, "fail instead of clamping out-of-range correlations")
	simulateCmd.Flags().BoolP("verbose", "v", false, "print step progress")
	simulateCmd.Flags().Bool("profile", false, "write a CPU profile for this run")
}

func runSimulate(sa *simulateArgs) error {
	if sa.CellFile == "" || sa.ProtocolFile == "" {
		return fmt.Errorf("must supply a cell file (-c, --cellFile) and a protocol file (-p, --protocolFile)")
	}
	data, err := os.ReadFile(sa.CellFile)
	if err != nil {
		return err
	}
	cfg := &cellparams.CellConfiguration{}
	if err = cfg.Parse(data); err != nil {
		return err
	}
	if err = cfg.ResolveOCPSources(filepath.Dir(sa.CellFile)); err != nil {
		return err
	}
	cfg.Print()
	fmt.Printf("%8.3f Ah\t\t= Nominal capacity (cathode)\n", cfg.NominalCapacityAh(&cfg.Cathode))

	pdata, err := os.ReadFile(sa.ProtocolFile)
	if err != nil {
		return err
	}
	protocol := p2d.Protocol{}
	if err = protocol.Parse(pdata); err != nil {
		return err
	}

	res := mesh.DefaultResolution
	res.NAnode, res.NSeparator, res.NCathode, res.NShells = sa.NAnode, sa.NSeparator, sa.NCathode, sa.NShells
	m, err := mesh.New(cfg, res)
	if err != nil {
		return err
	}

	opts := p2d.DefaultOptions()
	opts.ProcLimit = sa.Procs
	opts.Verbose = sa.Verbose
	if sa.HardRange {
		opts.RangePolicy = props.HardFail
	}

	out := os.Stdout
	if sa.OutputFile != "" {
		if out, err = os.Create(sa.OutputFile); err != nil {
			return err
		}
		defer out.Close()
	}
	sink, err := newCSVSink(out)
	if err != nil {
		return err
	}
	opts.Sink = sink
	defer sink.Flush()

	// Interrupt aborts between steps, keeping everything accepted so far.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	result, err := p2d.RunProtocol(ctx, cfg, m, protocol, opts)
	fmt.Printf("run finished: %d accepted steps", len(result.Steps))
	if len(result.Steps) > 0 {
		last := result.Last()
		fmt.Printf(", t = %.4g s, V = %.5f V", last.Time, last.Voltage)
	}
	fmt.Println()
	return err
}

// csvSink streams accepted steps as (time, current, voltage) rows: the
// results collaborator for the CLI.
type csvSink struct {
	w *csv.Writer
}

func newCSVSink(f *os.File) (*csvSink, error) {
	s := &csvSink{w: csv.NewWriter(f)}
	if err := s.w.Write([]string{"time_s", "current_A", "voltage_V"}); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *csvSink) Accept(step p2d.Step) error {
	return s.w.Write([]string{
		strconv.FormatFloat(step.Time, 'g', 10, 64),
		strconv.FormatFloat(step.Current, 'g', 10, 64),
		strconv.FormatFloat(step.Voltage, 'g', 10, 64),
	})
}

func (s *csvSink) Flush() { s.w.Flush() }
