package gencomo

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Parameters are the biophysical constants shared by every compartment.
type Parameters struct {
	GNa                  float64 `param:"g_na" validate:"gte=0"`                 // mS/cm²
	GK                   float64 `param:"g_k" validate:"gte=0"`                  // mS/cm²
	GLeak                float64 `param:"g_leak" validate:"gte=0"`               // mS/cm²
	ENa                  float64 `param:"e_na"`                                  // mV
	EK                   float64 `param:"e_k"`                                   // mV
	ELeak                float64 `param:"e_leak"`                                // mV
	Cm                   float64 `param:"c_m" validate:"gt=0"`                   // µF/cm²
	Temperature          float64 `param:"temperature" validate:"gt=0"`           // K
	ReferenceTemperature float64 `param:"reference_temperature" validate:"gt=0"` // K
	Q10                  float64 `param:"q10" validate:"gt=0"`
}

// DefaultParameters returns the squid giant axon constants of Hodgkin and Huxley (1952) at 6.3 °C.
func DefaultParameters() Parameters {
	return Parameters{
		GNa:                  120,
		GK:                   36,
		GLeak:                0.3,
		ENa:                  50,
		EK:                   -77,
		ELeak:                -54.387,
		Cm:                   1,
		Temperature:          279.45,
		ReferenceTemperature: 279.45,
		Q10:                  3,
	}
}

// paramFields maps each parameter key to its struct field index, in declaration order.
var paramFields = func() map[string]int {
	m := make(map[string]int)
	t := reflect.TypeOf(Parameters{})
	for i := 0; i < t.NumField(); i++ {
		m[t.Field(i).Tag.Get("param")] = i
	}
	return m
}()

var paramValidate = func() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		return fld.Tag.Get("param")
	})
	return v
}()

// ParameterKeys returns the parameter keys in their documented order.
func ParameterKeys() []string {
	t := reflect.TypeOf(Parameters{})
	keys := make([]string, t.NumField())
	for i := range keys {
		keys[i] = t.Field(i).Tag.Get("param")
	}
	return keys
}

// Get returns the value of the named parameter.
func (p Parameters) Get(key string) (float64, error) {
	i, ok := paramFields[key]
	if !ok {
		return 0, &UnknownParameterError{Key: key}
	}
	return reflect.ValueOf(p).Field(i).Float(), nil
}

// Map returns the parameters keyed by name.
func (p Parameters) Map() map[string]float64 {
	m := make(map[string]float64, len(paramFields))
	v := reflect.ValueOf(p)
	for key, i := range paramFields {
		m[key] = v.Field(i).Float()
	}
	return m
}

// TemperatureFactor returns the Q10 scaling of the gating rate constants.
func (p Parameters) TemperatureFactor() float64 {
	return math.Pow(p.Q10, (p.Temperature-p.ReferenceTemperature)/10)
}

// Validate returns a *ParameterRangeError for the first parameter out of its valid range.
func (p Parameters) Validate() error {
	v := reflect.ValueOf(p)
	for _, key := range ParameterKeys() {
		if val := v.Field(paramFields[key]).Float(); !isFinite(val) {
			return &ParameterRangeError{Key: key, Value: val, Constraint: "finite"}
		}
	}
	err := paramValidate.Struct(p)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err
	}
	fe := verrs[0]
	return &ParameterRangeError{Key: fe.Field(), Value: v.Field(paramFields[fe.Field()]).Float(), Constraint: constraint(fe)}
}

func (p Parameters) String() string {
	parts := make([]string, 0, len(paramFields))
	for _, key := range ParameterKeys() {
		val, _ := p.Get(key)
		parts = append(parts, fmt.Sprintf("%s=%s", key, formatFloat(val)))
	}
	return strings.Join(parts, " ")
}

// constraint formats a validator tag as a readable constraint.
func constraint(fe validator.FieldError) string {
	switch fe.Tag() {
	case "gte":
		return ">= " + fe.Param()
	case "gt":
		return "> " + fe.Param()
	default:
		return fe.Tag() + "=" + fe.Param()
	}
}

// ParameterStore holds the active parameter snapshot of a system.
type ParameterStore struct {
	active Parameters
}

// NewParameterStore returns a store holding the default parameters.
func NewParameterStore() *ParameterStore {
	return &ParameterStore{active: DefaultParameters()}
}

// Snapshot returns a copy of the active parameters.
func (s *ParameterStore) Snapshot() Parameters {
	return s.active
}

// Set applies the overrides all at once: if any key is unknown or any value is out of range,
// an error is returned and the active snapshot is left untouched.
func (s *ParameterStore) Set(overrides map[string]float64) error {
	keys := make([]string, 0, len(overrides))
	for key := range overrides {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if _, ok := paramFields[key]; !ok {
			return &UnknownParameterError{Key: key}
		}
	}
	next := s.active
	v := reflect.ValueOf(&next).Elem()
	for _, key := range keys {
		v.Field(paramFields[key]).SetFloat(overrides[key])
	}
	if err := next.Validate(); err != nil {
		return err
	}
	s.active = next
	return nil
}

// Reset restores the default parameters.
func (s *ParameterStore) Reset() {
	s.active = DefaultParameters()
}
