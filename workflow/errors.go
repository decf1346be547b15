package workflow

import (
	"errors"
	"fmt"
)

// ErrUnknownNodeType is returned by Registry.New for unregistered type names.
var ErrUnknownNodeType = errors.New("unknown node type")

// BuildError wraps any failure during transactional graph construction. No
// partial graph survives a build failure.
type BuildError struct {
	Err error
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("graph construction failed: %v", e.Err)
}

func (e *BuildError) Unwrap() error { return e.Err }

// ConnectionError reports an invalid connection: a missing endpoint node or
// port, or incompatible port types.
type ConnectionError struct {
	Conn   Connection
	Reason string
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("invalid connection %s.%s -> %s.%s: %s",
		e.Conn.FromNode, e.Conn.FromPort, e.Conn.ToNode, e.Conn.ToPort, e.Reason)
}

// CycleError reports a cycle discovered while computing the execution order.
type CycleError struct {
	NodeID string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("workflow graph contains a cycle through node %q", e.NodeID)
}

// MissingInputError reports a required input port with no value and no
// default at execution time.
type MissingInputError struct {
	NodeID   string
	NodeType string
	Port     string
}

func (e *MissingInputError) Error() string {
	return fmt.Sprintf("required input %q is missing for node %s[%s]", e.Port, e.NodeType, e.NodeID)
}

// NodeError wraps a failure raised while executing a node. A node failure
// aborts the whole workflow execution.
type NodeError struct {
	NodeID string
	Err    error
}

func (e *NodeError) Error() string {
	return fmt.Sprintf("node %s: %v", e.NodeID, e.Err)
}

func (e *NodeError) Unwrap() error { return e.Err }
