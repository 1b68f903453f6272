package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/ChristopherRabotin/moorsim"
	"github.com/spf13/viper"
)

type hullConf struct {
	Length       float64 `mapstructure:"length"`
	Beam         float64 `mapstructure:"beam"`
	DraughtBow   float64 `mapstructure:"draught_bow"`
	DraughtStern float64 `mapstructure:"draught_stern"`
	Displacement float64 `mapstructure:"displacement"`
	Propellers   int     `mapstructure:"propellers"`
	BulbousBow   bool    `mapstructure:"bulbous_bow"`
	TransomStern bool    `mapstructure:"transom_stern"`
}

func (h hullConf) hull() moorsim.Hull {
	return moorsim.Hull{
		Length:       h.Length,
		Beam:         h.Beam,
		DraughtBow:   h.DraughtBow,
		DraughtStern: h.DraughtStern,
		Displacement: h.Displacement,
		Propellers:   h.Propellers,
		BulbousBow:   h.BulbousBow,
		TransomStern: h.TransomStern,
	}
}

type channelConf struct {
	Depth        float64 `mapstructure:"depth"`
	WaterLevel   float64 `mapstructure:"water_level"`
	TrenchHeight float64 `mapstructure:"trench_height"`
	Width        float64 `mapstructure:"width"`
	BankSlope    float64 `mapstructure:"bank_slope"`
	Margin       float64 `mapstructure:"margin"`
}

type passingConf struct {
	Hull       hullConf     `mapstructure:"hull"`
	Speed      float64      `mapstructure:"speed"`
	Course     float64      `mapstructure:"course"`
	Separation float64      `mapstructure:"separation"`
	Stagger    float64      `mapstructure:"stagger"`
	Depth      float64      `mapstructure:"depth"`
	Channel    *channelConf `mapstructure:"channel"`
}

type elementConf struct {
	Kind         string    `mapstructure:"kind"`
	Label        string    `mapstructure:"label"`
	Vessel       []float64 `mapstructure:"vessel"`
	Fixed        []float64 `mapstructure:"fixed"`
	Length       float64   `mapstructure:"length"`
	Stiffness    float64   `mapstructure:"stiffness"`
	BreakingLoad float64   `mapstructure:"breaking_load"`
	Elongation   []float64 `mapstructure:"elongation"`
	Tension      []float64 `mapstructure:"tension"`
	Normal       []float64 `mapstructure:"normal"`
	Deflection   []float64 `mapstructure:"deflection"`
	Reaction     []float64 `mapstructure:"reaction"`
	Unloading    float64   `mapstructure:"unloading"`
	Limit        float64   `mapstructure:"limit"`
}

func (e elementConf) element() (moorsim.MooringElement, error) {
	var at moorsim.Attachment
	if err := point(e.Label+".vessel", e.Vessel, &at.Vessel); err != nil {
		return nil, err
	}
	if err := point(e.Label+".fixed", e.Fixed, &at.Fixed); err != nil {
		return nil, err
	}
	switch strings.ToLower(e.Kind) {
	case "line", "linear":
		return &moorsim.LinearLine{Attachment: at, Label: e.Label, Length: e.Length, Stiffness: e.Stiffness, BreakingLoad: e.BreakingLoad}, nil
	case "curve":
		return &moorsim.CurveLine{Attachment: at, Label: e.Label, Length: e.Length, Elongation: e.Elongation, Tension: e.Tension, BreakingLoad: e.BreakingLoad}, nil
	case "fender":
		f := &moorsim.Fender{Attachment: at, Label: e.Label, Deflection: e.Deflection, Reaction: e.Reaction, Unloading: e.Unloading}
		if err := point(e.Label+".normal", e.Normal, &f.Normal); err != nil {
			return nil, err
		}
		return f, nil
	case "link", "rigid":
		return &moorsim.RigidLink{Attachment: at, Label: e.Label, Length: e.Length, Stiffness: e.Stiffness, Limit: e.Limit}, nil
	}
	return nil, fmt.Errorf("%w: mooring element %q of unknown kind %q", moorsim.ErrInputValidation, e.Label, e.Kind)
}

type monitorConf struct {
	Name     string    `mapstructure:"name"`
	Position []float64 `mapstructure:"position"`
}

func point(key string, v []float64, dst *[3]float64) error {
	if len(v) != 3 {
		return fmt.Errorf("%w: %s needs three coordinates, got %d", moorsim.ErrInputValidation, key, len(v))
	}
	copy(dst[:], v)
	return nil
}

func dofs(v *viper.Viper, key string) (d [6]float64, err error) {
	if !v.IsSet(key) {
		return
	}
	var values []float64
	if err = v.UnmarshalKey(key, &values); err != nil {
		return
	}
	if len(values) != 6 {
		err = fmt.Errorf("%w: %s needs six values, got %d", moorsim.ErrInputValidation, key, len(values))
		return
	}
	copy(d[:], values)
	return
}

// coefficients reads a wind or current coefficient table from the directions and coefficients keys
// of a section.
func coefficients(v *viper.Viper, section string, density float64) (*moorsim.CoefficientTable, error) {
	if !v.IsSet(section + ".coefficients") {
		return nil, nil
	}
	var dirs []float64
	var rows [][]float64
	if err := v.UnmarshalKey(section+".directions", &dirs); err != nil {
		return nil, err
	}
	if err := v.UnmarshalKey(section+".coefficients", &rows); err != nil {
		return nil, err
	}
	for i := range dirs {
		dirs[i] = moorsim.Deg2rad(dirs[i])
	}
	c := &moorsim.CoefficientTable{Directions: dirs, Density: density}
	for i, row := range rows {
		if len(row) != 6 {
			return nil, fmt.Errorf("%w: %s.coefficients row %d has %d values", moorsim.ErrInputValidation, section, i, len(row))
		}
		var r [6]float64
		copy(r[:], row)
		c.Coefficients = append(c.Coefficients, r)
	}
	return c, c.Validate()
}

// readStudy builds the study described by the scenario. The coefficient table path is relative to the
// scenario file when the table flag is empty.
func readStudy(v *viper.Viper, table string) (*moorsim.Study, error) {
	if table == "" {
		table = v.GetString("study.table")
		if table != "" && !filepath.IsAbs(table) && v.ConfigFileUsed() != "" {
			table = filepath.Join(filepath.Dir(v.ConfigFileUsed()), table)
		}
	}
	if table == "" {
		return nil, fmt.Errorf("%w: no coefficient table", moorsim.ErrInputValidation)
	}
	tbl, err := loadTable(table)
	if err != nil {
		return nil, err
	}

	// Vessel
	var hc hullConf
	if err := v.UnmarshalKey("hull", &hc); err != nil {
		return nil, err
	}
	hull := hc.hull()
	if err := hull.Validate(); err != nil {
		return nil, err
	}
	restoring := hull.Restoring(v.GetFloat64("hull.gm_t"), v.GetFloat64("hull.gm_l"))
	mass := hull.Mass(v.GetFloat64("hull.kxx"), v.GetFloat64("hull.kyy"), v.GetFloat64("hull.kzz"))
	store, err := moorsim.NewCoefficientStore(tbl, mass, restoring)
	if err != nil {
		return nil, err
	}

	study := &moorsim.Study{
		Name:        v.GetString("study.name"),
		Store:       store,
		Parallelism: v.GetInt("study.parallelism"),
	}
	for _, seed := range v.GetIntSlice("study.seeds") {
		study.Seeds = append(study.Seeds, int64(seed))
	}
	if len(study.Seeds) == 0 {
		study.Seeds = []int64{1}
	}

	// Solver
	study.Solver = moorsim.DefaultSolverConfig(v.GetFloat64("solver.step"), v.GetFloat64("solver.duration"))
	if study.Solver.LinearDamping, err = dofs(v, "solver.linear_damping"); err != nil {
		return nil, err
	}
	if study.Solver.QuadraticDamping, err = dofs(v, "solver.quadratic_damping"); err != nil {
		return nil, err
	}
	var monitors []monitorConf
	if err := v.UnmarshalKey("solver.monitors", &monitors); err != nil {
		return nil, err
	}
	for _, m := range monitors {
		mp := moorsim.MonitorPoint{Name: m.Name}
		if err := point("monitor "+m.Name, m.Position, &mp.Position); err != nil {
			return nil, err
		}
		study.Solver.Monitors = append(study.Solver.Monitors, mp)
	}
	study.Solver.Export = moorsim.ExportConfig{
		Filename:  v.GetString("export.filename"),
		OutputDir: v.GetString("export.output_path"),
		AsCSV:     v.GetBool("export.csv"),
		Influx:    v.GetBool("export.influx"),
		Timestamp: v.GetBool("export.timestamp"),
		Every:     v.GetInt("export.every"),
	}
	if study.Solver.Export.Filename == "" {
		study.Solver.Export.Filename = study.Name
	}
	if v.IsSet("export.epoch") {
		study.Solver.Export.Epoch = v.GetTime("export.epoch")
	}

	// Kernel
	study.Kernel = moorsim.DefaultKernelConfig(study.Solver.TimeStep)
	if v.IsSet("kernel.max_duration") {
		study.Kernel.MaxDuration = v.GetFloat64("kernel.max_duration")
	}
	if v.IsSet("kernel.cutoff") {
		study.Kernel.Cutoff = v.GetFloat64("kernel.cutoff")
	}
	study.Kernel.AddedMassFloor = v.GetFloat64("kernel.added_mass_floor")
	study.Kernel.DampingFloor = v.GetFloat64("kernel.damping_floor")

	// Environment
	if v.IsSet("waves") {
		if study.Waves, err = readWaves(v); err != nil {
			return nil, err
		}
	}
	if v.IsSet("wind") {
		model, err := moorsim.ParseWindSpectrumModel(v.GetString("wind.model"))
		if err != nil {
			return nil, err
		}
		study.Wind = &moorsim.WindConfig{
			Mean:         v.GetFloat64("wind.mean"),
			Direction:    moorsim.Deg2rad(v.GetFloat64("wind.direction")),
			Model:        model,
			Height:       v.GetFloat64("wind.height"),
			DirectionStd: moorsim.Deg2rad(v.GetFloat64("wind.direction_std")),
			Components:   v.GetInt("wind.components"),
		}
		if study.WindCoefficients, err = coefficients(v, "wind", moorsim.AirDensity); err != nil {
			return nil, err
		}
	}
	if v.IsSet("current") {
		coeffs, err := coefficients(v, "current", moorsim.SeaWaterDensity)
		if err != nil {
			return nil, err
		}
		study.Current = &moorsim.CurrentConfig{Speed: v.GetFloat64("current.speed"), Direction: moorsim.Deg2rad(v.GetFloat64("current.direction")), Coefficients: coeffs}
	}
	var passing []passingConf
	if err := v.UnmarshalKey("passing", &passing); err != nil {
		return nil, err
	}
	for _, p := range passing {
		conf := moorsim.PassingShipConfig{
			Moored:     hull,
			Passing:    p.Hull.hull(),
			Speed:      p.Speed,
			Course:     moorsim.Deg2rad(p.Course),
			Separation: p.Separation,
			Stagger:    p.Stagger,
			Depth:      p.Depth,
		}
		if c := p.Channel; c != nil {
			conf.Channel = &moorsim.Channel{Depth: c.Depth, WaterLevel: c.WaterLevel, TrenchHeight: c.TrenchHeight, Width: c.Width, BankSlope: c.BankSlope}
			conf.Margin = c.Margin
		}
		study.Passing = append(study.Passing, conf)
	}

	// Mooring
	var elements []elementConf
	if err := v.UnmarshalKey("mooring", &elements); err != nil {
		return nil, err
	}
	mooring := make([]moorsim.MooringElement, len(elements))
	for i, e := range elements {
		if mooring[i], err = e.element(); err != nil {
			return nil, err
		}
	}
	if study.Mooring, err = moorsim.NewMooringSystem(mooring...); err != nil {
		return nil, err
	}

	study.PostProcessor = moorsim.ResultsPostProcessor{
		Skip:     v.GetFloat64("post.skip"),
		Spectral: v.GetBool("post.spectral"),
		Window:   v.GetFloat64("post.window"),
	}
	return study, nil
}

func readWaves(v *viper.Viper) (*moorsim.WaveConfig, error) {
	conf := &moorsim.WaveConfig{
		Heading:      moorsim.Deg2rad(v.GetFloat64("waves.heading")),
		Components:   v.GetInt("waves.components"),
		SumFrequency: v.GetBool("waves.sum_frequency"),
	}
	var err error
	if conf.Drift, err = moorsim.ParseDriftPolicy(v.GetString("waves.drift")); err != nil {
		return nil, err
	}
	if v.IsSet("waves.regular") {
		conf.Regular = &moorsim.RegularWave{
			Height: v.GetFloat64("waves.regular.height"),
			Period: v.GetFloat64("waves.regular.period"),
			Phase:  v.GetFloat64("waves.regular.phase"),
		}
		return conf, nil
	}
	model, err := moorsim.ParseSpectrumModel(v.GetString("waves.model"))
	if err != nil {
		return nil, err
	}
	conf.Sea = moorsim.SeaState{
		Hs:      v.GetFloat64("waves.hs"),
		Tp:      v.GetFloat64("waves.tp"),
		Model:   model,
		Gamma:   v.GetFloat64("waves.gamma"),
		Shape:   v.GetFloat64("waves.shape"),
		SwellHs: v.GetFloat64("waves.swell_hs"),
		SwellTp: v.GetFloat64("waves.swell_tp"),
	}
	method := v.GetString("waves.method")
	if method == "" {
		method = "random-phase"
	}
	if conf.Method, err = moorsim.ParseSynthesisMethod(method); err != nil {
		return nil, err
	}
	return conf, nil
}
