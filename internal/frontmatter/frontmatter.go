// Package frontmatter parses and re-emits the "---\nYAML\n---\nbody" file
// shape shared by agent CLAUDE.md and skill SKILL.md definitions, adapted
// from the skill parser's split-then-unmarshal approach into a two-way
// (read and write) helper.
package frontmatter

import (
	"bufio"
	"bytes"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Delimiter marks the beginning and end of the YAML frontmatter block.
const Delimiter = "---"

// Split separates YAML frontmatter from the markdown body. Returns
// (frontmatter, body, error).
func Split(data []byte) ([]byte, []byte, error) {
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	if !scanner.Scan() {
		return nil, nil, fmt.Errorf("frontmatter: empty file")
	}
	if strings.TrimSpace(scanner.Text()) != Delimiter {
		return nil, nil, fmt.Errorf("frontmatter: missing opening delimiter")
	}

	var fmLines []string
	closed := false
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == Delimiter {
			closed = true
			break
		}
		fmLines = append(fmLines, line)
	}
	if !closed {
		return nil, nil, fmt.Errorf("frontmatter: missing closing delimiter")
	}

	var bodyLines []string
	for scanner.Scan() {
		bodyLines = append(bodyLines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, fmt.Errorf("frontmatter: scan: %w", err)
	}

	return []byte(strings.Join(fmLines, "\n")), []byte(strings.Join(bodyLines, "\n")), nil
}

// Parse splits data and unmarshals the frontmatter into out, trimming the
// body. List fields given as a comma-separated scalar string (e.g.
// "tags: foo, bar") are coerced into lists before unmarshal so both forms
// round-trip through the same struct.
func Parse(data []byte, out any) (body string, err error) {
	fm, rawBody, err := Split(data)
	if err != nil {
		return "", err
	}
	coerced, err := coerceListScalars(fm)
	if err != nil {
		return "", fmt.Errorf("frontmatter: coerce lists: %w", err)
	}
	if err := yaml.Unmarshal(coerced, out); err != nil {
		return "", fmt.Errorf("frontmatter: unmarshal: %w", err)
	}
	return strings.TrimSpace(string(rawBody)), nil
}

// coerceListScalars rewrites frontmatter YAML so that any mapping value
// holding a plain comma-separated scalar under a key the struct tags as a
// list gets rewritten as a flow sequence before unmarshal. Unlike the
// source parser, which only ever reads arrays, agent/skill frontmatter
// written by hand in the field commonly uses "tags: foo, bar" — this keeps
// that lenient form working without a second schema.
func coerceListScalars(fm []byte) ([]byte, error) {
	var node yaml.Node
	if len(bytes.TrimSpace(fm)) == 0 {
		return fm, nil
	}
	if err := yaml.Unmarshal(fm, &node); err != nil {
		return nil, err
	}
	if node.Kind != yaml.DocumentNode || len(node.Content) == 0 {
		return fm, nil
	}
	mapping := node.Content[0]
	if mapping.Kind != yaml.MappingNode {
		return fm, nil
	}
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		key := mapping.Content[i]
		val := mapping.Content[i+1]
		if val.Kind != yaml.ScalarNode || val.Tag != "!!str" {
			continue
		}
		if !isListKey(key.Value) {
			continue
		}
		if !strings.Contains(val.Value, ",") {
			continue
		}
		items := splitCommaList(val.Value)
		seq := &yaml.Node{Kind: yaml.SequenceNode, Style: yaml.FlowStyle}
		for _, item := range items {
			seq.Content = append(seq.Content, &yaml.Node{Kind: yaml.ScalarNode, Value: item})
		}
		mapping.Content[i+1] = seq
	}
	out, err := yaml.Marshal(&node)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// isListKey names the frontmatter keys that are lists in either the agent
// or skill schema, so a lenient comma-separated scalar is coerced for
// either file kind.
func isListKey(key string) bool {
	switch key {
	case "tags", "skills", "allowed_tools", "allowed_mcps":
		return true
	default:
		return false
	}
}

func splitCommaList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Render marshals fm (the frontmatter struct) back into
// "---\nYAML\n---\n\nbody" form, always emitting list fields in YAML flow
// style ([a, b]) regardless of how they were originally read.
func Render(fm any, body string) ([]byte, error) {
	node := yaml.Node{}
	if err := node.Encode(fm); err != nil {
		return nil, fmt.Errorf("frontmatter: encode: %w", err)
	}
	flowListStyle(&node)

	yamlBytes, err := yaml.Marshal(&node)
	if err != nil {
		return nil, fmt.Errorf("frontmatter: marshal: %w", err)
	}

	var buf bytes.Buffer
	buf.WriteString(Delimiter)
	buf.WriteByte('\n')
	buf.Write(yamlBytes)
	buf.WriteString(Delimiter)
	buf.WriteString("\n\n")
	buf.WriteString(strings.TrimSpace(body))
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

// flowListStyle walks a mapping node and forces every sequence value to
// flow style, so "tags: [a, b]" is emitted instead of a block list.
func flowListStyle(node *yaml.Node) {
	if node.Kind == yaml.DocumentNode {
		for _, c := range node.Content {
			flowListStyle(c)
		}
		return
	}
	if node.Kind != yaml.MappingNode {
		return
	}
	for _, v := range node.Content {
		if v.Kind == yaml.SequenceNode {
			v.Style = yaml.FlowStyle
		}
	}
}
