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
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/notargets/meshdist/mesh"
	"github.com/notargets/meshdist/meshgen"
)

// GenerateCmd represents the generate command
var GenerateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Write a random Delaunay mesh of the unit square",
	Long: `
Jitters a lattice of points over the unit square, triangulates it and writes
the mesh in usgdata format.

meshdist generate -o square.usg --points 1000 --seed 3`,
	RunE: func(cmd *cobra.Command, args []string) error {
		out, _ := cmd.Flags().GetString("output")
		if len(out) == 0 {
			return fmt.Errorf("must supply an output file (-o, --output)")
		}
		n, _ := cmd.Flags().GetInt("points")
		seed, _ := cmd.Flags().GetInt64("seed")
		m, err := meshgen.Random(n, seed)
		if err != nil {
			return err
		}
		if err = mesh.WriteMeshFile(out, m); err != nil {
			return err
		}
		log.Info().Str("file", out).Int("n_vert", m.NVert).Int("n_ele", m.NEle).Msg("mesh written")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(GenerateCmd)
	GenerateCmd.Flags().StringP("output", "o", "", "usgdata file to write")
	GenerateCmd.Flags().Int("points", 400, "approximate number of vertices")
	GenerateCmd.Flags().Int64("seed", 1, "random seed")
}
