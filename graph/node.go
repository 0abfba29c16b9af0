package graph

// Node is a vertex entity. Nodes are created through Model.NewNode and always
// carry at least one outgoing isa edge (to the root node type when no other
// type is given).
type Node struct {
	entity
}

func (n *Node) IsRelation() bool { return false }

func (n *Node) top() Entity {
	t := n.model.TopNode()
	if t == nil {
		return nil
	}
	return t
}

func (n *Node) String() string {
	return "(" + n.IDString() + " \"" + n.Label() + "\")"
}
