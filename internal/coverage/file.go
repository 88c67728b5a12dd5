package coverage

import (
	"fmt"
	"os"
	"strings"

	"github.com/atelierops/fulfillment/internal/models"
	"github.com/atelierops/fulfillment/pkg/shipping"
	"go.yaml.in/yaml/v4"
)

// File is the YAML layout of a coverage import:
//
//	coverage:
//	  - municipality: Bogotá
//	    department: DC
//	    coordinadora: true
//	    priority_carrier: coordinadora
//	    postal_code: "110111"
type File struct {
	Coverage []models.Coverage `yaml:"coverage"`
}

// LoadFile reads a coverage YAML file and assigns every row to orgID.
func LoadFile(path, orgID string) ([]models.Coverage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read coverage file: %w", err)
	}
	return Parse(data, orgID)
}

// Parse decodes and validates coverage YAML.
func Parse(data []byte, orgID string) ([]models.Coverage, error) {
	if strings.TrimSpace(orgID) == "" {
		return nil, fmt.Errorf("coverage import: organization id is required")
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to unmarshal coverage YAML: %w", err)
	}

	seen := make(map[string]int, len(f.Coverage))
	rows := make([]models.Coverage, 0, len(f.Coverage))
	for i, row := range f.Coverage {
		row.OrgID = orgID
		row.Municipality = strings.TrimSpace(row.Municipality)
		row.Department = strings.TrimSpace(row.Department)
		if row.Municipality == "" {
			return nil, fmt.Errorf("coverage row %d: municipality is required", i+1)
		}

		if row.PriorityCarrier != "" {
			carrier := shipping.ParseCarrier(row.PriorityCarrier)
			if !carrier.IsKnown() {
				return nil, fmt.Errorf("coverage row %d: unknown priority carrier %q", i+1, row.PriorityCarrier)
			}
			row.PriorityCarrier = carrier.String()
		}

		key := Normalize(row.Municipality) + "|" + Normalize(row.Department)
		if prev, ok := seen[key]; ok {
			return nil, fmt.Errorf("coverage row %d: duplicates row %d (%s, %s)", i+1, prev, row.Municipality, row.Department)
		}
		seen[key] = i + 1
		rows = append(rows, row)
	}
	return rows, nil
}
