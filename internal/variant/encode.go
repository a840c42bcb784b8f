package variant

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// outputDoc is the persisted form: working state is stripped.
type outputDoc struct {
	Name   string         `yaml:"name"`
	Config map[string]any `yaml:"config"`
}

// EncodeOutput writes configs as a multi-document YAML stream with only name and config keys.
// No configs produce an empty stream.
func EncodeOutput(w io.Writer, configs []Config) error {
	if len(configs) == 0 {
		return nil
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	for _, c := range configs {
		params := c.Params
		if params == nil {
			params = map[string]any{}
		}
		if err := enc.Encode(outputDoc{Name: c.Name, Config: params}); err != nil {
			return fmt.Errorf("encoding config %q: %w", c.Name, err)
		}
	}
	return enc.Close()
}

// DecodeOutput reads a multi-document stream written by EncodeOutput.
func DecodeOutput(r io.Reader) ([]Config, error) {
	dec := yaml.NewDecoder(r)
	var out []Config
	for {
		var doc outputDoc
		err := dec.Decode(&doc)
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("decoding configs: %w", err)
		}
		c := New(doc.Name)
		if doc.Config != nil {
			c.Params = doc.Config
		}
		out = append(out, c)
	}
}

// MarshalCache encodes configs including working state, for cache artifacts.
func MarshalCache(configs []Config) ([]byte, error) {
	if configs == nil {
		configs = []Config{}
	}
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(configs); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// UnmarshalCache is the inverse of MarshalCache.
func UnmarshalCache(data []byte) ([]Config, error) {
	var out []Config
	if err := yaml.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decoding cached configs: %w", err)
	}
	for i := range out {
		if out[i].Params == nil {
			out[i].Params = map[string]any{}
		}
	}
	return out, nil
}
