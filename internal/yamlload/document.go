package yamlload

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// document mirrors the YAML definition. Mappings whose order matters (jobs,
// matrix axes) are decoded from yaml.Node to keep document order.
type document struct {
	Name              string                       `yaml:"name"`
	On                events                       `yaml:"on"`
	Env               map[string]string            `yaml:"env"`
	Lookups           map[string]map[string]string `yaml:"lookups"`
	Required          []string                     `yaml:"required"`
	ProtectedBranches []string                     `yaml:"protected_branches"`
	Jobs              jobs                         `yaml:"jobs"`
}

type namedJob struct {
	Name string
	Job  jobDoc
}

type jobDoc struct {
	RunsOn         string            `yaml:"runs-on"`
	Needs          needs             `yaml:"needs"`
	If             string            `yaml:"if"`
	Env            map[string]string `yaml:"env"`
	Secrets        []string          `yaml:"secrets"`
	Timeout        string            `yaml:"timeout"`
	TimeoutMinutes int               `yaml:"timeout-minutes"`
	Strategy       struct {
		Matrix axes `yaml:"matrix"`
	} `yaml:"strategy"`
	Steps []stepDoc `yaml:"steps"`
}

type stepDoc struct {
	Name            string               `yaml:"name"`
	Run             string               `yaml:"run"`
	Uses            string               `yaml:"uses"`
	With            map[string]yaml.Node `yaml:"with"`
	If              string               `yaml:"if"`
	Env             map[string]string    `yaml:"env"`
	Secrets         []string             `yaml:"secrets"`
	Timeout         string               `yaml:"timeout"`
	TimeoutMinutes  int                  `yaml:"timeout-minutes"`
	Retries         int                  `yaml:"retries"`
	ContinueOnError bool                 `yaml:"continue-on-error"`
}

type needDoc struct {
	Job       string `yaml:"job"`
	Policy    string `yaml:"policy"`
	OnSkipped string `yaml:"on_skipped"`
}

type axis struct {
	Name   string
	Values []string
}

// events accepts `on: push`, `on: [push, pull_request]` and the mapping form
// `on: {push: {...}}`, keeping only the event names.
type events []string

func (e *events) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		*e = events{node.Value}
	case yaml.SequenceNode:
		var list []string
		if err := node.Decode(&list); err != nil {
			return err
		}
		*e = list
	case yaml.MappingNode:
		for i := 0; i < len(node.Content); i += 2 {
			*e = append(*e, node.Content[i].Value)
		}
	default:
		return fmt.Errorf("line %d: unsupported `on` value", node.Line)
	}
	return nil
}

type jobs []namedJob

func (j *jobs) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: jobs must be a mapping", node.Line)
	}
	for i := 0; i < len(node.Content); i += 2 {
		var job jobDoc
		if err := node.Content[i+1].Decode(&job); err != nil {
			return fmt.Errorf("job %s: %w", node.Content[i].Value, err)
		}
		*j = append(*j, namedJob{Name: node.Content[i].Value, Job: job})
	}
	return nil
}

type needs []needDoc

func (n *needs) UnmarshalYAML(node *yaml.Node) error {
	items := []*yaml.Node{node}
	if node.Kind == yaml.SequenceNode {
		items = node.Content
	}
	for _, item := range items {
		var need needDoc
		switch item.Kind {
		case yaml.ScalarNode:
			need.Job = item.Value
		case yaml.MappingNode:
			if err := item.Decode(&need); err != nil {
				return err
			}
		default:
			return fmt.Errorf("line %d: unsupported needs entry", item.Line)
		}
		*n = append(*n, need)
	}
	return nil
}

type axes []axis

func (a *axes) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: matrix must be a mapping", node.Line)
	}
	for i := 0; i < len(node.Content); i += 2 {
		values := node.Content[i+1]
		if values.Kind != yaml.SequenceNode {
			return fmt.Errorf("line %d: matrix axis %q must be a list", values.Line, node.Content[i].Value)
		}
		ax := axis{Name: node.Content[i].Value}
		for _, v := range values.Content {
			// Scalars keep their source text, so `1.20` stays "1.20".
			ax.Values = append(ax.Values, v.Value)
		}
		*a = append(*a, ax)
	}
	return nil
}
