package render

import (
	"errors"
	"fmt"
	"html/template"
)

var (
	ErrMissingContainer = errors.New("render: container not found")
	ErrContainerExists  = errors.New("render: container already exists")
	ErrStaleControl     = errors.New("render: stale control")
	ErrUnknownControl   = errors.New("render: unknown control")
)

// Action is what a bound control does when dispatched.
type Action func() error

// Controls maps control names to actions for one container generation.
type Controls map[string]Action

// Container is a named region of the document. Generation changes on every
// Replace and is never reused within a document, so controls from an older
// paint never fire.
type Container struct {
	ID         string
	Content    template.HTML
	Generation uint64
	controls   Controls
}

// Document is the server-side model of one rendered page. It is not safe for
// concurrent use.
type Document struct {
	containers map[string]*Container
	order      []string
	seq        uint64
}

func NewDocument(ids ...string) *Document {
	d := &Document{containers: map[string]*Container{}}
	for _, id := range ids {
		d.containers[id] = &Container{ID: id}
		d.order = append(d.order, id)
	}
	return d
}

// Replace swaps the whole content of a container and binds controls to the
// new generation, which it returns.
func (d *Document) Replace(id string, content template.HTML, controls Controls) (uint64, error) {
	c, ok := d.containers[id]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrMissingContainer, id)
	}
	d.seq++
	c.Content = content
	c.Generation = d.seq
	c.controls = controls
	return c.Generation, nil
}

// Update rewrites content in place; bound controls stay valid.
func (d *Document) Update(id string, content template.HTML) error {
	c, ok := d.containers[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrMissingContainer, id)
	}
	c.Content = content
	return nil
}

// Append adds a container at the end of the body.
func (d *Document) Append(id string, content template.HTML, controls Controls) error {
	if _, ok := d.containers[id]; ok {
		return fmt.Errorf("%w: %s", ErrContainerExists, id)
	}
	d.seq++
	d.containers[id] = &Container{ID: id, Content: content, Generation: d.seq, controls: controls}
	d.order = append(d.order, id)
	return nil
}

// Remove drops a container and every control bound in it.
func (d *Document) Remove(id string) error {
	if _, ok := d.containers[id]; !ok {
		return fmt.Errorf("%w: %s", ErrMissingContainer, id)
	}
	delete(d.containers, id)
	for i, o := range d.order {
		if o == id {
			d.order = append(d.order[:i], d.order[i+1:]...)
			break
		}
	}
	return nil
}

func (d *Document) Has(id string) bool {
	_, ok := d.containers[id]
	return ok
}

// Container returns a copy of the container without its controls.
func (d *Document) Container(id string) (Container, bool) {
	c, ok := d.containers[id]
	if !ok {
		return Container{}, false
	}
	return Container{ID: c.ID, Content: c.Content, Generation: c.Generation}, true
}

// Containers lists the containers in body order.
func (d *Document) Containers() []Container {
	out := make([]Container, 0, len(d.order))
	for _, id := range d.order {
		c, _ := d.Container(id)
		out = append(out, c)
	}
	return out
}

// Bind resolves a control of the given generation without firing it.
func (d *Document) Bind(id string, generation uint64, control string) (Action, error) {
	c, ok := d.containers[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissingContainer, id)
	}
	if generation != c.Generation {
		return nil, fmt.Errorf("%w: %s generation %d, current %d", ErrStaleControl, id, generation, c.Generation)
	}
	a, ok := c.controls[control]
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", ErrUnknownControl, id, control)
	}
	return a, nil
}

// Dispatch fires a control if it belongs to the current generation.
func (d *Document) Dispatch(id string, generation uint64, control string) error {
	a, err := d.Bind(id, generation, control)
	if err != nil {
		return err
	}
	return a()
}
