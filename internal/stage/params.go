package stage

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand/v2"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/lucasnoah/variantfactory/internal/config"
)

type validator interface {
	Validate() []config.ValidationError
}

// decodeParams strictly decodes node into out (unknown keys are errors) and
// runs out's Validate. Defaults must be set on out beforehand.
func decodeParams(stage string, node *yaml.Node, out any) error {
	if node != nil && node.Kind != 0 && node.ShortTag() != "!!null" {
		data, err := yaml.Marshal(node)
		if err != nil {
			return fmt.Errorf("stage %s: encoding parameters: %w", stage, err)
		}
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(out); err != nil && !errors.Is(err, io.EOF) {
			return &ParamError{Stage: stage, Errors: []config.ValidationError{{Field: "parameters", Message: err.Error()}}}
		}
	}
	if v, ok := out.(validator); ok {
		if errs := v.Validate(); len(errs) > 0 {
			return &ParamError{Stage: stage, Errors: errs}
		}
	}
	return nil
}

// Number is a numeric parameter that remembers whether it was written as an integer.
type Number struct {
	Value float64
	IsInt bool
}

// UnmarshalYAML accepts any int or float scalar.
func (n *Number) UnmarshalYAML(node *yaml.Node) error {
	if i, err := strconv.ParseInt(node.Value, 0, 64); err == nil && node.ShortTag() == "!!int" {
		n.Value, n.IsInt = float64(i), true
		return nil
	}
	var f float64
	if err := node.Decode(&f); err != nil {
		return fmt.Errorf("line %d: %q is not a number", node.Line, node.Value)
	}
	n.Value, n.IsInt = f, false
	return nil
}

// MarshalYAML writes the number back in its original form.
func (n Number) MarshalYAML() (any, error) {
	if n.IsInt {
		return int64(n.Value), nil
	}
	return n.Value, nil
}

type problems []config.ValidationError

func (p *problems) add(field, format string, args ...any) {
	*p = append(*p, config.ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
}

func (p *problems) require(ok bool, field, msg string) {
	if !ok {
		p.add(field, "%s", msg)
	}
}

// newRNG returns the generator used for every seeded draw. Each task owns one.
func newRNG(seed int64) *rand.Rand {
	s := uint64(seed)
	return rand.New(rand.NewPCG(s, s^0x9e3779b97f4a7c15))
}

// roundInt rounds half to even.
func roundInt(v float64) int64 {
	return int64(math.RoundToEven(v))
}

// intBetween draws an integer in [lo, hi] inclusive. Fractional bounds are
// truncated toward zero first, so min 1.9 reads as 1.
func intBetween(rng *rand.Rand, lo, hi float64) int {
	a, b := int(lo), int(hi)
	return a + rng.IntN(b-a+1)
}
