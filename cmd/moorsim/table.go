package main

import (
	"fmt"

	"github.com/ChristopherRabotin/moorsim"
	"github.com/spf13/viper"
	"gonum.org/v1/gonum/mat"
)

// tableFile is the on-disk layout of the strip theory coefficients, in JSON or TOML.
// Matrices are given row major, one row of 36 values per frequency. Transfer functions are indexed
// [heading][frequency][dof]. Frequencies are in rad/s and headings in degrees.
type tableFile struct {
	Frequencies  []float64     `mapstructure:"frequencies"`
	Headings     []float64     `mapstructure:"headings"`
	AddedMass    [][]float64   `mapstructure:"added_mass"`
	Damping      [][]float64   `mapstructure:"damping"`
	ExcitationRe [][][]float64 `mapstructure:"excitation_re"`
	ExcitationIm [][][]float64 `mapstructure:"excitation_im"`
	Drift        [][][]float64 `mapstructure:"drift"`
}

// loadTable reads a coefficient file with its own viper instance, so that it does not mix with the scenario.
func loadTable(path string) (*moorsim.HydrodynamicTable, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	var f tableFile
	if err := v.Unmarshal(&f); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	tbl, err := f.table()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return tbl, nil
}

func (f tableFile) table() (*moorsim.HydrodynamicTable, error) {
	nω := len(f.Frequencies)
	tbl := &moorsim.HydrodynamicTable{Frequencies: f.Frequencies, Headings: make([]float64, len(f.Headings))}
	for i, h := range f.Headings {
		tbl.Headings[i] = moorsim.Deg2rad(h)
	}
	var err error
	if tbl.AddedMass, err = matrices("added_mass", f.AddedMass, nω); err != nil {
		return nil, err
	}
	if tbl.Damping, err = matrices("damping", f.Damping, nω); err != nil {
		return nil, err
	}
	if f.ExcitationRe != nil {
		if len(f.ExcitationIm) != len(f.ExcitationRe) {
			return nil, fmt.Errorf("excitation has %d real and %d imaginary headings", len(f.ExcitationRe), len(f.ExcitationIm))
		}
		tbl.Excitation = make([][][6]complex128, len(f.ExcitationRe))
		for h := range f.ExcitationRe {
			re, err := transfer("excitation_re", f.ExcitationRe[h], nω)
			if err != nil {
				return nil, err
			}
			im, err := transfer("excitation_im", f.ExcitationIm[h], nω)
			if err != nil {
				return nil, err
			}
			tbl.Excitation[h] = make([][6]complex128, nω)
			for k := range re {
				for j := 0; j < 6; j++ {
					tbl.Excitation[h][k][j] = complex(re[k][j], im[k][j])
				}
			}
		}
	}
	if f.Drift != nil {
		tbl.Drift = make([][][6]float64, len(f.Drift))
		for h := range f.Drift {
			if tbl.Drift[h], err = transfer("drift", f.Drift[h], nω); err != nil {
				return nil, err
			}
		}
	}
	return tbl, tbl.Validate()
}

func matrices(key string, rows [][]float64, nω int) ([]*mat.Dense, error) {
	if len(rows) != nω {
		return nil, fmt.Errorf("%s has %d rows for %d frequencies", key, len(rows), nω)
	}
	m := make([]*mat.Dense, nω)
	for k, row := range rows {
		if len(row) != 36 {
			return nil, fmt.Errorf("%s row %d has %d values instead of 36", key, k, len(row))
		}
		m[k] = mat.NewDense(6, 6, append([]float64(nil), row...))
	}
	return m, nil
}

func transfer(key string, rows [][]float64, nω int) ([][6]float64, error) {
	if len(rows) != nω {
		return nil, fmt.Errorf("%s has %d rows for %d frequencies", key, len(rows), nω)
	}
	out := make([][6]float64, nω)
	for k, row := range rows {
		if len(row) != 6 {
			return nil, fmt.Errorf("%s row %d has %d values instead of 6", key, k, len(row))
		}
		copy(out[k][:], row)
	}
	return out, nil
}
