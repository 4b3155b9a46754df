package gencomo

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/viper"
)

// Scenario is a simulation described in a configuration file, e.g.:
//
//	[graph]
//	file = "chain.dot"
//	[simulation]
//	name = "chain"
//	start = 0
//	end = 30
//	precedence = "clamp-overrides-current"
//	[integrator]
//	method = "euler" # or "rk4", "dopri"
//	dt = 0.01
//	[parameters]
//	g_na = 120
//	[stimuli.0]
//	compartment = "c0"
//	start = 10
//	duration = 5
//	amplitude = 50
//	kind = "current"
//	[export]
//	filename = "chain"
//	directory = "."
type Scenario struct {
	Name       string
	GraphFile  string // Relative to the scenario file.
	Start, End float64
	Precedence ClampPrecedence
	// Integrator settings.
	MethodName     string
	Dt             float64
	AbsTol, RelTol float64
	OutputDt       float64
	MaxStep        float64
	Parameters     map[string]float64
	Stimuli        []Stimulus
	Export         ExportConfig
	OutputDir      string
}

// LoadScenario reads a scenario file; its format is deduced from the extension.
func LoadScenario(path string) (*Scenario, error) {
	v := viper.New()
	v.SetConfigFile(path)
	setScenarioDefaults(v)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("gencomo: reading scenario %s: %w", path, err)
	}
	sc, err := parseScenario(v)
	if err != nil {
		return nil, err
	}
	dir := filepath.Dir(path)
	if sc.GraphFile != "" && !filepath.IsAbs(sc.GraphFile) {
		sc.GraphFile = filepath.Join(dir, sc.GraphFile)
	}
	if !filepath.IsAbs(sc.OutputDir) {
		sc.OutputDir = filepath.Join(dir, sc.OutputDir)
	}
	return sc, nil
}

// ReadScenario reads a scenario in the given format (e.g. "toml").
func ReadScenario(r io.Reader, format string) (*Scenario, error) {
	v := viper.New()
	v.SetConfigType(format)
	setScenarioDefaults(v)
	if err := v.ReadConfig(r); err != nil {
		return nil, fmt.Errorf("gencomo: reading scenario: %w", err)
	}
	return parseScenario(v)
}

func setScenarioDefaults(v *viper.Viper) {
	v.SetDefault("simulation.name", "gencomo")
	v.SetDefault("simulation.start", 0.0)
	v.SetDefault("integrator.method", "euler")
	v.SetDefault("integrator.dt", 0.01)
	v.SetDefault("integrator.atol", 1e-6)
	v.SetDefault("integrator.rtol", 1e-4)
	v.SetDefault("export.directory", ".")
}

func parseScenario(v *viper.Viper) (*Scenario, error) {
	sc := &Scenario{
		Name:       v.GetString("simulation.name"),
		GraphFile:  v.GetString("graph.file"),
		Start:      v.GetFloat64("simulation.start"),
		End:        v.GetFloat64("simulation.end"),
		MethodName: v.GetString("integrator.method"),
		Dt:         v.GetFloat64("integrator.dt"),
		AbsTol:     v.GetFloat64("integrator.atol"),
		RelTol:     v.GetFloat64("integrator.rtol"),
		OutputDt:   v.GetFloat64("integrator.output_dt"),
		MaxStep:    v.GetFloat64("integrator.max_step"),
		Parameters: make(map[string]float64),
		Export: ExportConfig{
			Filename:  v.GetString("export.filename"),
			Gating:    v.GetBool("export.gating"),
			Timestamp: v.GetBool("export.timestamp"),
		},
		OutputDir: v.GetString("export.directory"),
	}
	if !v.IsSet("simulation.end") {
		return nil, fmt.Errorf("gencomo: scenario has no simulation.end")
	}
	var err error
	if sc.Precedence, err = ParseClampPrecedence(v.GetString("simulation.precedence")); err != nil {
		return nil, err
	}
	if _, err := sc.Method(); err != nil {
		return nil, err
	}

	keys := make([]string, 0)
	for key := range v.GetStringMap("parameters") {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		val, ok := toFloat(v.Get("parameters." + key))
		if !ok {
			return nil, fmt.Errorf("gencomo: parameter %q: not a number: %v", key, v.Get("parameters."+key))
		}
		sc.Parameters[key] = val
	}

	for stimNo := 0; v.IsSet(fmt.Sprintf("stimuli.%d", stimNo)); stimNo++ {
		prefix := fmt.Sprintf("stimuli.%d.", stimNo)
		kind, err := ParseStimulusKind(v.GetString(prefix + "kind"))
		if err != nil {
			return nil, fmt.Errorf("gencomo: stimulus %d: %w", stimNo, err)
		}
		sc.Stimuli = append(sc.Stimuli, Stimulus{
			Compartment: v.GetString(prefix + "compartment"),
			Start:       v.GetFloat64(prefix + "start"),
			Duration:    v.GetFloat64(prefix + "duration"),
			Amplitude:   v.GetFloat64(prefix + "amplitude"),
			Kind:        kind,
		})
	}
	return sc, nil
}

// Method returns the integration method of the scenario.
func (sc *Scenario) Method() (Method, error) {
	m, err := ParseMethod(sc.MethodName, sc.Dt, sc.AbsTol, sc.RelTol)
	if err != nil {
		return nil, err
	}
	if dp, ok := m.(DormandPrince); ok {
		dp.OutputDt, dp.MaxStep = sc.OutputDt, sc.MaxStep
		m = dp
	}
	return m, nil
}

// ReadGraph reads the DOT segment graph of the scenario.
func (sc *Scenario) ReadGraph() (*SegmentGraph, error) {
	if sc.GraphFile == "" {
		return nil, fmt.Errorf("gencomo: scenario %s has no graph.file", sc.Name)
	}
	f, err := os.Open(sc.GraphFile)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadSegmentGraph(f)
}

// Apply sets the parameters, precedence and stimuli of the scenario on the system.
func (sc *Scenario) Apply(sys *ODESystem) error {
	if len(sc.Parameters) > 0 {
		if err := sys.SetParameters(sc.Parameters); err != nil {
			return err
		}
	}
	sys.SetClampPrecedence(sc.Precedence)
	for _, st := range sc.Stimuli {
		if err := sys.AddStimulus(st.Compartment, st.Start, st.Duration, st.Amplitude, st.Kind); err != nil {
			return err
		}
	}
	return nil
}

// System reads the graph of the scenario and returns the configured system.
func (sc *Scenario) System() (*ODESystem, error) {
	g, err := sc.ReadGraph()
	if err != nil {
		return nil, err
	}
	sys, err := NewODESystem(sc.Name, g)
	if err != nil {
		return nil, err
	}
	if err := sc.Apply(sys); err != nil {
		return nil, err
	}
	return sys, nil
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	default:
		return 0, false
	}
}
