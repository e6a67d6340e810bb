package hclload

import "github.com/hashicorp/hcl/v2"

// fileRoot is used to decode all possible top-level blocks from any file.
type fileRoot struct {
	Workflows []*workflowBlock `hcl:"workflow,block"`
	Lookups   []*lookupBlock   `hcl:"lookup,block"`
	Jobs      []*jobBlock      `hcl:"job,block"`
}

type workflowBlock struct {
	Name              string         `hcl:"name,label"`
	On                []string       `hcl:"on,optional"`
	Required          []string       `hcl:"required,optional"`
	ProtectedBranches []string       `hcl:"protected_branches,optional"`
	Env               hcl.Expression `hcl:"env,optional"`
}

type lookupBlock struct {
	Name   string            `hcl:"name,label"`
	Values map[string]string `hcl:"values"`
}

type jobBlock struct {
	Name    string         `hcl:"name,label"`
	RunsOn  string         `hcl:"runs_on,optional"`
	Needs   []string       `hcl:"needs,optional"`
	Need    []*needBlock   `hcl:"need,block"`
	Matrix  *matrixBlock   `hcl:"matrix,block"`
	If      hcl.Expression `hcl:"if,optional"`
	Env     hcl.Expression `hcl:"env,optional"`
	Secrets []string       `hcl:"secrets,optional"`
	Timeout string         `hcl:"timeout,optional"`
	Steps   []*stepBlock   `hcl:"step,block"`
}

type needBlock struct {
	Job       string `hcl:"job,label"`
	Policy    string `hcl:"policy,optional"`
	OnSkipped string `hcl:"on_skipped,optional"`
}

type matrixBlock struct {
	Axes []*axisBlock `hcl:"axis,block"`
}

type axisBlock struct {
	Name   string   `hcl:"name,label"`
	Values []string `hcl:"values"`
}

type stepBlock struct {
	Name            string         `hcl:"name,label"`
	Run             hcl.Expression `hcl:"run,optional"`
	Uses            string         `hcl:"uses,optional"`
	With            hcl.Expression `hcl:"with,optional"`
	If              hcl.Expression `hcl:"if,optional"`
	Env             hcl.Expression `hcl:"env,optional"`
	Secrets         []string       `hcl:"secrets,optional"`
	Timeout         string         `hcl:"timeout,optional"`
	Retries         int            `hcl:"retries,optional"`
	ContinueOnError bool           `hcl:"continue_on_error,optional"`
}
