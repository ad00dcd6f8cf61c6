/*
Copyright © 2020 NAME HERE <EMAIL ADDRESS>

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"

	perf "github.com/hodgesds/perf-utils"
	"github.com/pkg/profile"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/notargets/meshdist/comm"
	"github.com/notargets/meshdist/comm/netcomm"
	"github.com/notargets/meshdist/export"
	"github.com/notargets/meshdist/mesh"
	"github.com/notargets/meshdist/plot"
	"github.com/notargets/meshdist/redist"
)

type RunModel struct {
	MeshFile     string
	ParamsFile   string
	Profile      string
	Instructions bool
}

// RunCmd represents the run command
var RunCmd = &cobra.Command{
	Use:   "run",
	Short: "Partition and redistribute a mesh",
	Long: `
Reads a mesh on rank 0, spreads it naively over the ranks, partitions the
elements, moves them, assigns vertex ownership and moves the vertices.

Ranks run in this process unless --mpi-addr is given, in which case this
process is one rank of a TCP group:

meshdist run -F mesh.neu -I params.yaml --mpi-addr=:5000 --mpi-alladdr=:5000,:5001`,
	RunE: func(cmd *cobra.Command, args []string) error {
		rm := &RunModel{}
		rm.MeshFile, _ = cmd.Flags().GetString("meshFile")
		rm.ParamsFile, _ = cmd.Flags().GetString("inputParametersFile")
		rm.Profile, _ = cmd.Flags().GetString("profile")
		rm.Instructions, _ = cmd.Flags().GetBool("instructions")
		rp, err := processRunInput(rm)
		if err != nil {
			return err
		}
		var network bool
		if f := cmd.Flags().Lookup("mpi-addr"); f != nil && f.Value.String() != "" {
			network = true
		}
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()
		return Run(ctx, rm, rp, network)
	},
}

func init() {
	rootCmd.AddCommand(RunCmd)
	RunCmd.Flags().StringP("meshFile", "F", "", "Mesh file to read, Gambit (.neu) or usgdata format")
	RunCmd.Flags().StringP("inputParametersFile", "I", "", "YAML file for run parameters like:\n\t- Ranks\n\t- Partitioner")
	RunCmd.Flags().IntP("ranks", "n", 0, "number of in process ranks, overrides the parameters file")
	RunCmd.Flags().StringP("partitioner", "p", "", "metis, graphgrow or identity, overrides the parameters file")
	RunCmd.Flags().Bool("verify", false, "check the redistributed mesh against the input")
	RunCmd.Flags().Bool("dump", false, "print rank ordered listings after each phase")
	RunCmd.Flags().String("export", "", "SQLite file to write the redistributed mesh to")
	RunCmd.Flags().Bool("plot", false, "display the mesh coloured by owning rank")
	RunCmd.Flags().String("profile", "", "write a cpu or mem profile to the current directory")
	RunCmd.Flags().Bool("instructions", false, "count retired instructions per phase (Linux perf)")
	for _, key := range []string{"ranks", "partitioner", "verify", "dump", "export", "plot"} {
		_ = viper.BindPFlag(key, RunCmd.Flags().Lookup(key))
	}
}

// processRunInput loads the parameters file, if any, and lays flags,
// environment and config file values over it
func processRunInput(rm *RunModel) (*RunParameters, error) {
	if len(rm.MeshFile) == 0 {
		return nil, fmt.Errorf("must supply a mesh file (-F, --meshFile) in Gambit (.neu) or usgdata format")
	}
	rp := NewRunParameters()
	if len(rm.ParamsFile) != 0 {
		var err error
		if rp, err = ReadRunParameters(rm.ParamsFile); err != nil {
			fmt.Printf("Example File:%s\n", exampleParameters)
			return nil, err
		}
	}
	if viper.IsSet("ranks") && viper.GetInt("ranks") > 0 {
		rp.Ranks = viper.GetInt("ranks")
	}
	if viper.IsSet("partitioner") && viper.GetString("partitioner") != "" {
		rp.Partitioner = viper.GetString("partitioner")
	}
	if viper.IsSet("export") && viper.GetString("export") != "" {
		rp.Export = viper.GetString("export")
	}
	rp.Verify = rp.Verify || viper.GetBool("verify")
	rp.Dump = rp.Dump || viper.GetBool("dump")
	rp.Plot = rp.Plot || viper.GetBool("plot")
	if err := rp.Validate(); err != nil {
		return nil, err
	}
	return rp, nil
}

// Run drives the pipeline, in process or as one rank of a network group,
// and handles the output on rank 0
func Run(ctx context.Context, rm *RunModel, rp *RunParameters, network bool) error {
	switch strings.ToLower(rm.Profile) {
	case "":
	case "cpu":
		defer profile.Start(profile.CPUProfile, profile.ProfilePath("."), profile.NoShutdownHook).Stop()
	case "mem":
		defer profile.Start(profile.MemProfile, profile.ProfilePath("."), profile.NoShutdownHook).Stop()
	default:
		return fmt.Errorf("unknown profile %q, want cpu or mem", rm.Profile)
	}

	svc, err := rp.Service()
	if err != nil {
		return err
	}
	opts := redist.Options{
		Partitioner: svc,
		Analyze:     rp.Analyze,
		Verify:      rp.Verify,
		Gather:      rp.Export != "" || rp.Plot,
	}
	if rp.Dump {
		opts.Dump = os.Stdout
	}
	if rm.Instructions {
		opts.Counter = instructionCounter
	}

	var res *redist.Result
	if network {
		res, err = runNetwork(ctx, rm.MeshFile, opts)
	} else {
		var m *mesh.Mesh
		if m, err = mesh.ReadMeshFile(rm.MeshFile); err != nil {
			return err
		}
		rp.Print(os.Stdout)
		res, err = RunInProcess(ctx, m, rp.Ranks, opts)
	}
	if err != nil || res == nil {
		// res is nil on every rank but 0
		return err
	}
	return report(ctx, rp, res)
}

// RunInProcess runs every rank as a goroutine and returns rank 0's result
func RunInProcess(ctx context.Context, m *mesh.Mesh, ranks int, opts redist.Options) (*redist.Result, error) {
	w, err := comm.NewWorld(ranks)
	if err != nil {
		return nil, err
	}
	var root *redist.Result
	err = w.Run(ctx, func(ctx context.Context, c comm.Communicator) error {
		res, err := redist.Run(ctx, c, m, opts)
		if c.Rank() == comm.Root {
			root = res
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return root, nil
}

func runNetwork(ctx context.Context, meshFile string, opts redist.Options) (*redist.Result, error) {
	c, finalize, err := netcomm.Init()
	if err != nil {
		return nil, err
	}
	defer finalize()
	var m *mesh.Mesh
	if c.Rank() == comm.Root {
		if m, err = mesh.ReadMeshFile(meshFile); err != nil {
			c.Abort(err)
			return nil, err
		}
	}
	res, err := redist.Run(ctx, c, m, opts)
	if err != nil || c.Rank() != comm.Root {
		return nil, err
	}
	return res, nil
}

func report(ctx context.Context, rp *RunParameters, res *redist.Result) error {
	if err := res.Events.Fprint(os.Stdout); err != nil {
		return err
	}
	if rp.Export != "" {
		if err := export.SQLite(ctx, rp.Export, res.Snapshot); err != nil {
			return err
		}
	}
	if rp.Plot {
		plot.PartitionedMesh(res.Snapshot)
		log.Info().Msg("plotting, interrupt to exit")
		<-ctx.Done()
	}
	return nil
}

// instructionCounter counts the instructions retired while f runs. Without
// perf access f still runs, uncounted.
func instructionCounter(f func() error) (uint64, error) {
	var (
		ran  bool
		ferr error
	)
	pv, err := perf.CPUInstructions(func() error {
		ran = true
		ferr = f()
		return ferr
	})
	if !ran {
		log.Warn().Err(err).Msg("instruction counter unavailable")
		return 0, f()
	}
	if ferr != nil {
		return 0, ferr
	}
	if err != nil || pv == nil {
		return 0, nil
	}
	return pv.Value, nil
}
