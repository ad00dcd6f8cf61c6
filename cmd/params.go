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
	"io"
	"os"
	"strings"

	"github.com/ghodss/yaml"

	"github.com/notargets/meshdist/partition"
	"github.com/notargets/meshdist/partition/metis"
)

// RunParameters are obtained from the YAML input file
type RunParameters struct {
	Title       string  `json:"Title"`
	Ranks       int     `json:"Ranks"`
	Partitioner string  `json:"Partitioner"` // metis, graphgrow or identity
	Objective   string  `json:"Objective"`   // METIS objective, cut or vol
	Imbalance   float32 `json:"Imbalance"`   // METIS load imbalance tolerance, 1.05 is 5%
	Analyze     bool    `json:"Analyze"`
	Verify      bool    `json:"Verify"`
	Dump        bool    `json:"Dump"`
	Export      string  `json:"Export"` // SQLite file for the redistributed mesh
	Plot        bool    `json:"Plot"`
}

const exampleParameters = `
########################################
Title: "Test Case"
Ranks: 4
Partitioner: metis # Can be "graphgrow" or "identity"
Objective: cut     # Can be "vol"
Imbalance: 1.05
Analyze: true
Verify: true
Dump: false
Export: partitioned.db
Plot: false
########################################
`

func NewRunParameters() *RunParameters {
	cfg := metis.DefaultConfig()
	return &RunParameters{
		Ranks:       1,
		Partitioner: "identity",
		Objective:   cfg.Objective,
		Imbalance:   cfg.ImbalanceFactor,
	}
}

func (rp *RunParameters) Parse(data []byte) error {
	return yaml.Unmarshal(data, rp)
}

// ReadRunParameters parses the YAML file over the defaults
func ReadRunParameters(filename string) (*RunParameters, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("unable to read input parameters: %w", err)
	}
	rp := NewRunParameters()
	if err = rp.Parse(data); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", filename, err)
	}
	return rp, nil
}

func (rp *RunParameters) Validate() error {
	if rp.Ranks < 1 {
		return fmt.Errorf("need at least one rank, got %d", rp.Ranks)
	}
	if _, err := rp.Service(); err != nil {
		return err
	}
	return nil
}

// Service returns the partitioner named by the parameters
func (rp *RunParameters) Service() (partition.Service, error) {
	switch strings.ToLower(rp.Partitioner) {
	case "metis":
		switch rp.Objective {
		case "", "cut", "vol":
		default:
			return nil, fmt.Errorf("unknown METIS objective %q", rp.Objective)
		}
		cfg := metis.DefaultConfig()
		cfg.Objective = rp.Objective
		cfg.ImbalanceFactor = rp.Imbalance
		return metis.New(cfg), nil
	case "graphgrow":
		return partition.GraphGrowing{}, nil
	case "identity", "":
		return partition.Identity{}, nil
	default:
		return nil, fmt.Errorf("unknown partitioner %q, want metis, graphgrow or identity", rp.Partitioner)
	}
}

func (rp *RunParameters) Print(w io.Writer) {
	fmt.Fprintf(w, "\"%s\"\t\t= Title\n", rp.Title)
	fmt.Fprintf(w, "[%d]\t\t\t= Ranks\n", rp.Ranks)
	fmt.Fprintf(w, "[%s]\t\t= Partitioner\n", rp.Partitioner)
	if strings.ToLower(rp.Partitioner) == "metis" {
		fmt.Fprintf(w, "[%s]\t\t\t= Objective\n", rp.Objective)
		fmt.Fprintf(w, "%8.5f\t\t= Imbalance\n", rp.Imbalance)
	}
	fmt.Fprintf(w, "[%v]\t\t\t= Verify\n", rp.Verify)
	if rp.Export != "" {
		fmt.Fprintf(w, "[%s]\t= Export\n", rp.Export)
	}
}
