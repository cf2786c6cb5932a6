package tdi

// Context is the render context of a repeated node: the item it was
// cloned for, its index and the context of the enclosing repetition.
// Contexts are immutable; the nil *Context is the empty root context.
type Context struct {
	Index  int
	Item   any
	parent *Context
	depth  int
}

// Push returns a new context nested in c.
func (c *Context) Push(index int, item any) *Context {
	return &Context{Index: index, Item: item, parent: c, depth: c.Depth() + 1}
}

// Parent returns the enclosing context, or nil.
func (c *Context) Parent() *Context {
	if c == nil {
		return nil
	}
	return c.parent
}

// Depth returns the number of nested repetitions.
func (c *Context) Depth() int {
	if c == nil {
		return 0
	}
	return c.depth
}

// First reports whether c is the first item of its repetition.
func (c *Context) First() bool {
	return c != nil && c.Index == 0
}
