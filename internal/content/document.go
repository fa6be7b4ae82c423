package content

import (
	"fmt"

	"github.com/pathwise-learning/pathwise/internal/domain"
)

// Kind declares the shape of a content document.
type Kind string

const (
	KindQuestionBank Kind = "question_bank"
	KindTemplateSet  Kind = "template_set"
	KindNarrative    Kind = "narrative_tree"
)

// QuestionCode is one question in a bank, addressed by theme and code.
type QuestionCode struct {
	Code    string          `yaml:"code" json:"code"`
	Prompt  string          `yaml:"prompt" json:"prompt"`
	Options []domain.Option `yaml:"options" json:"options"`
	Domain  string          `yaml:"domain,omitempty" json:"domain,omitempty"`
}

// Theme groups related question codes.
type Theme struct {
	Name  string         `yaml:"name" json:"name"`
	Codes []QuestionCode `yaml:"codes" json:"codes"`
}

// QuestionBank is the source document for assessment scenarios.
type QuestionBank struct {
	Themes []Theme `yaml:"themes" json:"themes"`
}

// TemplateSet is the source document for PBL scenarios: an ordered list of
// task templates.
type TemplateSet struct {
	Templates []domain.TaskTemplate `yaml:"templates" json:"templates"`
}

// NarrativeNode is one step of a discovery exploration tree.
type NarrativeNode struct {
	ID       string   `yaml:"id" json:"id"`
	Prompt   string   `yaml:"prompt" json:"prompt"`
	Domain   string   `yaml:"domain,omitempty" json:"domain,omitempty"`
	Children []string `yaml:"children,omitempty" json:"children,omitempty"`
}

// NarrativeTree is the source document for discovery scenarios.
type NarrativeTree struct {
	Root  string                   `yaml:"root" json:"root"`
	Nodes map[string]NarrativeNode `yaml:"nodes" json:"nodes"`
}

// Document is a validated, immutable content document tagged by Kind.
type Document struct {
	Key          string
	Language     string
	Version      string
	Kind         Kind
	QuestionBank *QuestionBank
	Templates    *TemplateSet
	Narrative    *NarrativeTree
}

// Validate performs the structural checks appropriate to the document's
// declared kind. A structurally invalid document is a hard error, never a
// partial result.
func (d *Document) Validate() error {
	switch d.Kind {
	case KindQuestionBank:
		return validateQuestionBank(d.QuestionBank)
	case KindTemplateSet:
		return validateTemplateSet(d.Templates)
	case KindNarrative:
		return validateNarrative(d.Narrative)
	default:
		return fmt.Errorf("%w: unknown document kind %q", domain.ErrValidation, d.Kind)
	}
}

func validateQuestionBank(b *QuestionBank) error {
	if b == nil || len(b.Themes) == 0 {
		return fmt.Errorf("%w: question bank must have at least one theme", domain.ErrValidation)
	}
	for _, theme := range b.Themes {
		if theme.Name == "" {
			return fmt.Errorf("%w: question bank theme missing name", domain.ErrValidation)
		}
		if len(theme.Codes) == 0 {
			return fmt.Errorf("%w: theme %q has no codes", domain.ErrValidation, theme.Name)
		}
		for _, code := range theme.Codes {
			if code.Code == "" || code.Prompt == "" {
				return fmt.Errorf("%w: theme %q has a code without code or prompt", domain.ErrValidation, theme.Name)
			}
		}
	}
	return nil
}

func validateTemplateSet(s *TemplateSet) error {
	if s == nil || len(s.Templates) == 0 {
		return fmt.Errorf("%w: template set must have at least one template", domain.ErrValidation)
	}
	for i, tmpl := range s.Templates {
		if !tmpl.Type.Valid() {
			return fmt.Errorf("%w: template %d has unknown type %q", domain.ErrValidation, i, tmpl.Type)
		}
		if tmpl.Prompt == "" {
			return fmt.Errorf("%w: template %d has no prompt", domain.ErrValidation, i)
		}
	}
	return nil
}

func validateNarrative(n *NarrativeTree) error {
	if n == nil || len(n.Nodes) == 0 {
		return fmt.Errorf("%w: narrative tree must have nodes", domain.ErrValidation)
	}
	if _, ok := n.Nodes[n.Root]; !ok {
		return fmt.Errorf("%w: narrative root %q not found", domain.ErrValidation, n.Root)
	}
	for id, node := range n.Nodes {
		for _, child := range node.Children {
			if _, ok := n.Nodes[child]; !ok {
				return fmt.Errorf("%w: node %q references unknown child %q", domain.ErrValidation, id, child)
			}
		}
	}
	// Reject cycles reachable from the root; discovery programs walk the
	// tree and must terminate.
	state := map[string]int{} // 0 unvisited, 1 in progress, 2 done
	var visit func(id string) error
	visit = func(id string) error {
		switch state[id] {
		case 1:
			return fmt.Errorf("%w: narrative cycle through node %q", domain.ErrValidation, id)
		case 2:
			return nil
		}
		state[id] = 1
		for _, child := range n.Nodes[id].Children {
			if err := visit(child); err != nil {
				return err
			}
		}
		state[id] = 2
		return nil
	}
	return visit(n.Root)
}
