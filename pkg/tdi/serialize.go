package tdi

type stringWriter interface {
	WriteString(s string) (int, error)
}

// serialize writes the nodes in top and their subtrees. Hidden elements
// contribute their content only; removed nodes contribute nothing.
func serialize(w stringWriter, nodes []nodeData, top []int) error {
	for _, idx := range top {
		if err := writeNode(w, nodes, idx); err != nil {
			return err
		}
	}
	return nil
}

func writeNode(w stringWriter, nodes []nodeData, idx int) error {
	n := &nodes[idx]
	if n.removed {
		return nil
	}
	switch n.kind {
	case RootNode:
		return serialize(w, nodes, n.children)
	case ElementNode:
		if !n.hidden {
			if _, err := w.WriteString(n.head); err != nil {
				return err
			}
			for _, a := range n.attrs {
				if _, err := w.WriteString(a.Raw); err != nil {
					return err
				}
			}
			if _, err := w.WriteString(n.tail); err != nil {
				return err
			}
		}
		if err := serialize(w, nodes, n.children); err != nil {
			return err
		}
		if !n.hidden {
			if _, err := w.WriteString(n.endRaw); err != nil {
				return err
			}
		}
		return nil
	default:
		_, err := w.WriteString(n.raw)
		return err
	}
}
