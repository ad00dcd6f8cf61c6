package mesh

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
)

// ReadMeshFile reads a mesh, choosing the reader from the file extension:
// .neu is Gambit neutral, anything else is usgdata
func ReadMeshFile(filename string) (*Mesh, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("unable to open mesh file: %w", err)
	}
	defer file.Close()

	var m *Mesh
	switch ext := strings.ToLower(filepath.Ext(filename)); ext {
	case ".neu":
		m, err = ReadGambit2D(file)
	default:
		m, err = ReadUSG(file)
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", filename, err)
	}
	xmin, xmax, ymin, ymax := m.Bounds()
	log.Debug().Str("file", filename).Int("n_vert", m.NVert).Int("n_ele", m.NEle).
		Floats64("xrange", []float64{xmin, xmax}).Floats64("yrange", []float64{ymin, ymax}).
		Msg("mesh read")
	return m, nil
}

// WriteMeshFile writes m in usgdata format
func WriteMeshFile(filename string, m *Mesh) (err error) {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := file.Close(); err == nil {
			err = cerr
		}
	}()
	return WriteUSG(file, m)
}
