package schema

// config.go loads optional auto-mapping rule extensions from a YAML file,
// letting operators teach the mapper new vendor header spellings without
// a rebuild. Compiled-in rules always run first; extensions only catch
// headers the defaults miss.

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/dealpage/importer/internal/engine"
)

// rulesFile is the YAML layout:
//
//	flows:
//	  listings:
//	    rules:
//	      - field: revenue
//	        contains: [turnover]
//	        exclude: [projected]
type rulesFile struct {
	Flows map[string]struct {
		Rules []ruleSpec `yaml:"rules"`
	} `yaml:"flows"`
}

type ruleSpec struct {
	Field    string   `yaml:"field"`
	Contains []string `yaml:"contains"`
	Exclude  []string `yaml:"exclude"`
}

// Register installs both import flows into the engine registry. path, if
// non-empty, names a YAML rules file extending the compiled-in heuristics.
func Register(path string) error {
	extra, err := loadRules(path)
	if err != nil {
		return err
	}

	listings := listingsFlow(extra["listings"])
	pnl := pnlFlow(extra["pnl"])

	if err := validateRules(listings); err != nil {
		return err
	}
	if err := validateRules(pnl); err != nil {
		return err
	}

	engine.Register(listings)
	engine.Register(pnl)
	return nil
}

// loadRules parses the extension file. A missing path is not an error;
// the compiled defaults apply.
func loadRules(path string) (map[string][]engine.MatchRule, error) {
	if path == "" {
		return nil, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read mapping rules: %w", err)
	}

	var f rulesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse mapping rules: %w", err)
	}

	out := make(map[string][]engine.MatchRule, len(f.Flows))
	for flowKey, flow := range f.Flows {
		for _, r := range flow.Rules {
			if r.Field == "" || len(r.Contains) == 0 {
				return nil, fmt.Errorf("mapping rules: flow %s has a rule without field or contains", flowKey)
			}
			out[flowKey] = append(out[flowKey], engine.MatchRule{
				Field:    r.Field,
				Contains: r.Contains,
				Exclude:  r.Exclude,
			})
		}
	}
	return out, nil
}

// validateRules rejects rules that point at fields the schema does not
// have, which would otherwise bind silently into nothing.
func validateRules(flow engine.FlowDefinition) error {
	for _, rule := range flow.Rules {
		if _, ok := flow.Field(rule.Field); !ok {
			return fmt.Errorf("flow %s: rule targets unknown field %q", flow.Info.Key, rule.Field)
		}
	}
	return nil
}
