package promptset

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Node is a prompt or a named group of prompts. A node with nil Children is a
// prompt; a non-nil (possibly empty) Children slice makes it a group.
type Node struct {
	Key      string
	Text     string
	Children []*Node
}

// Entry is a flattened prompt addressed by its dotted key path.
type Entry struct {
	Key  string `json:"key"`
	Text string `json:"text"`
}

// Set is an ordered prompt bundle.
type Set struct {
	Process string
	Source  string
	Nodes   []*Node
}

func (s *Set) add(key, text string) {
	s.Nodes = append(s.Nodes, &Node{Key: key, Text: text})
}

// Flatten walks the set depth first and returns every prompt with a dotted
// key ("premises_evaluation_prompts.execution"). Empty groups yield nothing.
func (s *Set) Flatten() []Entry {
	var out []Entry
	for _, n := range s.Nodes {
		out = flattenNode(out, n, "")
	}
	return out
}

func flattenNode(out []Entry, n *Node, prefix string) []Entry {
	key := n.Key
	if prefix != "" {
		key = prefix + "." + n.Key
	}
	if n.Children == nil {
		if key == "" {
			key = "prompt"
		}
		return append(out, Entry{Key: key, Text: n.Text})
	}
	for _, c := range n.Children {
		out = flattenNode(out, c, key)
	}
	return out
}

// Keys returns the dotted keys of Flatten in order.
func (s *Set) Keys() []string {
	entries := s.Flatten()
	keys := make([]string, len(entries))
	for i, e := range entries {
		keys[i] = e.Key
	}
	return keys
}

// Get returns the prompt at a dotted key.
func (s *Set) Get(key string) (string, bool) {
	for _, e := range s.Flatten() {
		if e.Key == key {
			return e.Text, true
		}
	}
	return "", false
}

// MarshalJSON encodes the set as a nested object keeping bundle order.
func (s *Set) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := writeNodes(&buf, s.Nodes); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeNodes(buf *bytes.Buffer, nodes []*Node) error {
	buf.WriteByte('{')
	for i, n := range nodes {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(n.Key)
		if err != nil {
			return err
		}
		buf.Write(key)
		buf.WriteByte(':')
		if n.Children != nil {
			if err := writeNodes(buf, n.Children); err != nil {
				return err
			}
			continue
		}
		text, err := json.Marshal(n.Text)
		if err != nil {
			return err
		}
		buf.Write(text)
	}
	buf.WriteByte('}')
	return nil
}

const premisesToken = KeyPremiseEvaluations

// CleanLabel drops the premises_evaluation_prompts prefix from a key so the
// premise id is shown on its own.
func CleanLabel(key string) string {
	if strings.HasPrefix(key, premisesToken+".") {
		return key[len(premisesToken)+1:]
	}
	if key == premisesToken {
		return ""
	}
	key = strings.ReplaceAll(key, premisesToken+".", "")
	key = strings.ReplaceAll(key, premisesToken, "")
	return strings.Trim(key, ".")
}

// DisplayLabel is CleanLabel falling back to the raw key.
func DisplayLabel(key string) string {
	if l := CleanLabel(key); l != "" {
		return l
	}
	return key
}

// Label widths used by the prompt viewer and the compact dashboard.
const (
	LabelWidth        = 52
	CompactLabelWidth = 26
)

// ShortLabel truncates s to maxLen runes, ending with an ellipsis when cut.
func ShortLabel(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen || maxLen < 1 {
		return s
	}
	return string(r[:maxLen-1]) + "…"
}

var filenameReplacer = strings.NewReplacer(
	" ", "_",
	"/", "_",
	"\\", "_",
	":", "_",
	"|", "_",
	"•", "_",
	".", "_",
)

// SafeFilename lowercases s and replaces path and punctuation characters with
// underscores, collapsing runs of underscores.
func SafeFilename(s string) string {
	s = filenameReplacer.Replace(strings.ToLower(strings.TrimSpace(s)))
	for strings.Contains(s, "__") {
		s = strings.ReplaceAll(s, "__", "_")
	}
	return s
}

// FileStub is the download name (without extension) of one prompt.
func FileStub(process, source, key string) string {
	return SafeFilename(process + "__" + source + "__" + DisplayLabel(key))
}
