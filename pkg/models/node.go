package models

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mitchellh/mapstructure"
)

// NodeType is the discriminator of the node union as stored on the wire.
type NodeType string

const (
	NodeTypeMessage     NodeType = "MESSAGE"
	NodeTypeDelay       NodeType = "DELAY"
	NodeTypeConditional NodeType = "CONDITIONAL"
)

var (
	// ErrUnknownNodeType is returned when decoding a node with an unrecognised type tag.
	ErrUnknownNodeType = errors.New("unknown node type")

	// ErrInvalidNode is returned when a node document cannot be decoded.
	ErrInvalidNode = errors.New("invalid node")
)

// Node is one step of a journey. The set of implementations is closed:
// MessageNode, DelayNode and ConditionalNode.
type Node interface {
	NodeID() string
	Type() NodeType

	sealed()
}

// MessageNode emits a message and then continues to NextNodeID, or completes the run when it is nil.
type MessageNode struct {
	ID         string  `json:"id"           mapstructure:"id"`
	Message    string  `json:"message"      mapstructure:"message"`
	NextNodeID *string `json:"next_node_id" mapstructure:"next_node_id"`
}

func (n *MessageNode) NodeID() string { return n.ID }
func (n *MessageNode) Type() NodeType { return NodeTypeMessage }
func (n *MessageNode) sealed()        {}

func (n *MessageNode) MarshalJSON() ([]byte, error) {
	type plain MessageNode

	return json.Marshal(struct {
		Type NodeType `json:"type"`
		*plain
	}{NodeTypeMessage, (*plain)(n)})
}

// DelayNode suspends the run for DelaySeconds before continuing to NextNodeID.
type DelayNode struct {
	ID           string  `json:"id"            mapstructure:"id"`
	DelaySeconds float64 `json:"delay_seconds" mapstructure:"delay_seconds"`
	NextNodeID   *string `json:"next_node_id"  mapstructure:"next_node_id"`
}

func (n *DelayNode) NodeID() string { return n.ID }
func (n *DelayNode) Type() NodeType { return NodeTypeDelay }
func (n *DelayNode) sealed()        {}

func (n *DelayNode) MarshalJSON() ([]byte, error) {
	type plain DelayNode

	return json.Marshal(struct {
		Type NodeType `json:"type"`
		*plain
	}{NodeTypeDelay, (*plain)(n)})
}

// Condition compares the context value at Field with Value using Operator.
type Condition struct {
	Field    string `json:"field"    mapstructure:"field"`
	Operator string `json:"operator" mapstructure:"operator"`
	Value    any    `json:"value"    mapstructure:"value"`
}

// ConditionalNode branches to TrueNodeID or FalseNodeID. A nil branch completes the run.
type ConditionalNode struct {
	ID          string    `json:"id"            mapstructure:"id"`
	Condition   Condition `json:"condition"     mapstructure:"condition"`
	TrueNodeID  *string   `json:"true_node_id"  mapstructure:"true_node_id"`
	FalseNodeID *string   `json:"false_node_id" mapstructure:"false_node_id"`
}

func (n *ConditionalNode) NodeID() string { return n.ID }
func (n *ConditionalNode) Type() NodeType { return NodeTypeConditional }
func (n *ConditionalNode) sealed()        {}

func (n *ConditionalNode) MarshalJSON() ([]byte, error) {
	type plain ConditionalNode

	return json.Marshal(struct {
		Type NodeType `json:"type"`
		*plain
	}{NodeTypeConditional, (*plain)(n)})
}

// Successors returns every node id the node may transition to.
func Successors(node Node) []string {
	var ids []*string

	switch n := node.(type) {
	case *MessageNode:
		ids = []*string{n.NextNodeID}
	case *DelayNode:
		ids = []*string{n.NextNodeID}
	case *ConditionalNode:
		ids = []*string{n.TrueNodeID, n.FalseNodeID}
	}

	successors := make([]string, 0, len(ids))

	for _, id := range ids {
		if id != nil {
			successors = append(successors, *id)
		}
	}

	return successors
}

// DecodeNode builds a typed node from its generic document form, as produced by
// encoding/json or yaml.v3 when decoding into map[string]any.
func DecodeNode(raw map[string]any) (Node, error) {
	tag, _ := raw["type"].(string)

	var node Node

	switch NodeType(tag) {
	case NodeTypeMessage:
		node = &MessageNode{}
	case NodeTypeDelay:
		node = &DelayNode{}
	case NodeTypeConditional:
		node = &ConditionalNode{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownNodeType, tag)
	}

	if err := mapstructure.Decode(raw, node); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidNode, err)
	}

	// Empty references behave like null ones: the run completes.
	switch n := node.(type) {
	case *MessageNode:
		n.NextNodeID = normalizeRef(n.NextNodeID)
	case *DelayNode:
		n.NextNodeID = normalizeRef(n.NextNodeID)
	case *ConditionalNode:
		// Older documents name the branches on_true_next_node_id/on_false_next_node_id.
		if n.TrueNodeID == nil {
			n.TrueNodeID = optionalString(raw["on_true_next_node_id"])
		}

		if n.FalseNodeID == nil {
			n.FalseNodeID = optionalString(raw["on_false_next_node_id"])
		}

		n.TrueNodeID = normalizeRef(n.TrueNodeID)
		n.FalseNodeID = normalizeRef(n.FalseNodeID)
	}

	return node, nil
}

func optionalString(v any) *string {
	s, ok := v.(string)
	if !ok {
		return nil
	}

	return &s
}

func normalizeRef(ref *string) *string {
	if ref == nil || *ref == "" {
		return nil
	}

	return ref
}

// NodeList is the JSON-serialisable list of a journey's nodes.
type NodeList []Node

func (l *NodeList) UnmarshalJSON(data []byte) error {
	var raw []map[string]any

	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	nodes, err := DecodeNodes(raw)
	if err != nil {
		return err
	}

	*l = nodes

	return nil
}

// DecodeNodes decodes every node document, reporting the index of the first failure.
func DecodeNodes(raw []map[string]any) (NodeList, error) {
	nodes := make(NodeList, 0, len(raw))

	for i, doc := range raw {
		node, err := DecodeNode(doc)
		if err != nil {
			return nil, fmt.Errorf("node at index %d: %w", i, err)
		}

		nodes = append(nodes, node)
	}

	return nodes, nil
}

// StringPtr is a helper for building optional node references.
func StringPtr(s string) *string {
	return &s
}
