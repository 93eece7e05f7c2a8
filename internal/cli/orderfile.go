package cli

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/fiscalstream/emissor/internal/builder"
	"github.com/fiscalstream/emissor/internal/document"
	"github.com/fiscalstream/emissor/internal/workflow"
)

// orderFile is the on-disk shape of an emission request. Exactly one of
// order/service must be present, and it must match type.
type orderFile struct {
	Type    document.Type         `yaml:"type"`
	Order   *builder.Order        `yaml:"order"`
	Service *builder.ServiceOrder `yaml:"service"`
}

// loadOrderFile reads an order file and converts it to a submission input.
func loadOrderFile(path string) (workflow.SubmitInput, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return workflow.SubmitInput{}, fmt.Errorf("reading order file: %w", err)
	}

	var of orderFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&of); err != nil {
		return workflow.SubmitInput{}, fmt.Errorf("decoding order file: %w", err)
	}

	switch of.Type {
	case document.TypePointOfSale:
		if of.Order == nil {
			return workflow.SubmitInput{}, fmt.Errorf("order file: type %q requires an order block", of.Type)
		}
		if of.Service != nil {
			return workflow.SubmitInput{}, fmt.Errorf("order file: type %q does not take a service block", of.Type)
		}
	case document.TypeService:
		if of.Service == nil {
			return workflow.SubmitInput{}, fmt.Errorf("order file: type %q requires a service block", of.Type)
		}
		if of.Order != nil {
			return workflow.SubmitInput{}, fmt.Errorf("order file: type %q does not take an order block", of.Type)
		}
	default:
		return workflow.SubmitInput{}, fmt.Errorf("order file: unknown type %q", of.Type)
	}

	return workflow.SubmitInput{Type: of.Type, POS: of.Order, Service: of.Service}, nil
}
