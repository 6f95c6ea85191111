package workitem

import "regexp"

// Filter selects which nodes of the test tree are materialized as work items
type Filter interface {
	Pass(n *Node) bool
}

// FilterFunc adapts a function to Filter
type FilterFunc func(n *Node) bool

func (f FilterFunc) Pass(n *Node) bool {
	return f(n)
}

// AllFilter passes every node
var AllFilter Filter = FilterFunc(func(*Node) bool { return true })

// PathFilter passes nodes whose full name matches re
func PathFilter(re *regexp.Regexp) Filter {
	return FilterFunc(func(n *Node) bool {
		return re.MatchString(n.FullName())
	})
}

// GateFilter passes the gate with the given ID
func GateFilter(gateID string) Filter {
	return FilterFunc(func(n *Node) bool {
		return n.Kind == KindGate && n.ID == gateID
	})
}

// AndFilter passes nodes passed by every filter. Nil filters are ignored.
func AndFilter(filters ...Filter) Filter {
	return FilterFunc(func(n *Node) bool {
		for _, f := range filters {
			if f != nil && !f.Pass(n) {
				return false
			}
		}
		return true
	})
}
