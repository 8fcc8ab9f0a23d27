// Package analysis folds a program's loop nests into per-loop performance
// metrics: floating-point operation counts, register-resident variable
// traffic, streaming array traffic, working sets, and cache-aware memory
// traffic.
package analysis

// Metric is a value with an identity that can be summed with another value
// of the same identity and scaled by a non-negative weight.
type Metric[T any] interface {
	Key() string
	Combine(T) (T, error)
	Scale(float64) T
}

// Collection keeps one value per identity in first-seen order. Adding a
// value whose identity is already present combines the two.
type Collection[T Metric[T]] struct {
	order []string
	items map[string]T
}

// NewCollection returns an empty collection.
func NewCollection[T Metric[T]]() *Collection[T] {
	return &Collection[T]{items: make(map[string]T)}
}

// Add folds v into the collection.
func (c *Collection[T]) Add(v T) error {
	k := v.Key()
	cur, ok := c.items[k]
	if !ok {
		c.order = append(c.order, k)
		c.items[k] = v
		return nil
	}
	sum, err := cur.Combine(v)
	if err != nil {
		return err
	}
	c.items[k] = sum
	return nil
}

// Merge folds every value of o into c.
func (c *Collection[T]) Merge(o *Collection[T]) error {
	for _, v := range o.Items() {
		if err := c.Add(v); err != nil {
			return err
		}
	}
	return nil
}

// Items returns the values in first-seen order.
func (c *Collection[T]) Items() []T {
	out := make([]T, 0, len(c.order))
	for _, k := range c.order {
		out = append(out, c.items[k])
	}
	return out
}

// Get returns the value stored under key.
func (c *Collection[T]) Get(key string) (T, bool) {
	v, ok := c.items[key]
	return v, ok
}

func (c *Collection[T]) Len() int { return len(c.order) }
