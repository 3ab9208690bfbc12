package models

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
)

// Field is one key|value line of the handshake payload.
type Field struct {
	Key   string `yaml:"key" json:"key"`
	Value string `yaml:"value" json:"value"`
}

// Handshake is the ordered list of fields sent as the probe payload.
type Handshake []Field

// DefaultHandshake mimics a login request with throwaway credentials.
func DefaultHandshake() Handshake {
	return Handshake{
		{Key: "requestedName", Value: "test"},
		{Key: "tankIDName", Value: "test"},
		{Key: "tankIDPass", Value: "test"},
	}
}

// Payload renders each field as "key|value\n".
func (h Handshake) Payload() []byte {
	var buf bytes.Buffer
	for _, f := range h {
		buf.WriteString(f.Key)
		buf.WriteByte('|')
		buf.WriteString(f.Value)
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}

// Validate rejects fields that would break the line format.
func (h Handshake) Validate() error {
	if len(h) == 0 {
		return errors.New("handshake must define at least one field")
	}
	for i, f := range h {
		if f.Key == "" {
			return fmt.Errorf("handshake field %d is missing key", i)
		}
		if strings.ContainsAny(f.Key, "|\n") {
			return fmt.Errorf("handshake key %q must not contain '|' or newline", f.Key)
		}
		if strings.Contains(f.Value, "\n") {
			return fmt.Errorf("handshake value for %q must not contain newline", f.Key)
		}
	}
	return nil
}
