package server

import (
	"errors"
	"fmt"
	"math"
	"net/url"
	"slices"
	"strconv"
	"strings"
)

const (
	// maxFormDepth bounds bracket nesting; deeper segments stay one literal key.
	maxFormDepth = 5
	// maxFormArrayIndex is the largest explicit index still read as an array slot.
	maxFormArrayIndex = 20
	// maxFormParams caps the key=value pairs read from one body.
	maxFormParams = 1000
)

var errTooManyParams = errors.New("too many parameters")

// parseNestedForm decodes an urlencoded body with bracket nesting:
//
//	a[b]=1        {"a":{"b":"1"}}
//	a[]=1&a[]=2   {"a":["1","2"]}
//	a[1]=x&a[0]=y {"a":["y","x"]}
//	a=1&a=2       {"a":["1","2"]}
func parseNestedForm(body string) (map[string]any, error) {
	if countFormParams(body) > maxFormParams {
		return nil, errTooManyParams
	}
	values, err := url.ParseQuery(body)
	if err != nil {
		return nil, fmt.Errorf("malformed form body: %w", err)
	}

	keys := make([]string, 0, len(values))
	for k := range values {
		if k != "" {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)

	root := newFormObject()
	for _, k := range keys {
		segs := splitFormKey(k)
		for _, v := range values[k] {
			root.set(segs, v)
		}
	}
	return root.object(), nil
}

func countFormParams(body string) int {
	n := 0
	for _, pair := range strings.Split(body, "&") {
		if pair != "" {
			n++
		}
	}
	return n
}

// splitFormKey turns "a[b][]" into ["a", "b", ""].
func splitFormKey(key string) []string {
	open := strings.IndexByte(key, '[')
	if open < 0 {
		return []string{key}
	}
	var segs []string
	if open > 0 {
		segs = append(segs, key[:open])
	}
	rest := key[open:]
	for depth := 0; depth < maxFormDepth && strings.HasPrefix(rest, "["); depth++ {
		end := strings.IndexByte(rest, ']')
		if end < 0 {
			break
		}
		segs = append(segs, rest[1:end])
		rest = rest[end+1:]
	}
	if rest != "" {
		segs = append(segs, rest)
	}
	return segs
}

// formObject holds string leaves, []any leaf lists, or nested *formObject.
// next is one past the largest numeric key, so a push never rescans values.
type formObject struct {
	values map[string]any
	next   int
	pushed bool
}

func newFormObject() *formObject {
	return &formObject{values: make(map[string]any)}
}

func (o *formObject) put(key string, v any) {
	o.values[key] = v
	if i, err := strconv.Atoi(key); err == nil && i >= o.next && i < math.MaxInt {
		o.next = i + 1
	}
}

func (o *formObject) push(v any) string {
	key := strconv.Itoa(o.next)
	o.put(key, v)
	o.pushed = true
	return key
}

func (o *formObject) set(segs []string, val string) {
	key := segs[0]
	if len(segs) > 1 {
		if key == "" {
			c := newFormObject()
			o.push(c)
			c.set(segs[1:], val)
			return
		}
		o.child(key).set(segs[1:], val)
		return
	}
	if key == "" {
		o.push(val)
		return
	}
	switch cur := o.values[key].(type) {
	case nil:
		o.put(key, val)
	case string:
		o.values[key] = []any{cur, val}
	case []any:
		o.values[key] = append(cur, val)
	case *formObject:
		cur.push(val)
	}
}

// child returns the object stored at key, promoting a leaf into one. A
// promoted leaf keeps its position as index 0, so "a=1&a[b]=2" reads as
// {"a":{"0":"1","b":"2"}}.
func (o *formObject) child(key string) *formObject {
	switch cur := o.values[key].(type) {
	case *formObject:
		return cur
	case string:
		c := newFormObject()
		c.put("0", cur)
		o.values[key] = c
		return c
	case []any:
		c := newFormObject()
		for i, v := range cur {
			c.put(strconv.Itoa(i), v)
		}
		o.values[key] = c
		return c
	}
	c := newFormObject()
	o.put(key, c)
	return c
}

// indexes returns the numeric keys in order, or false if o is not list-shaped.
func (o *formObject) indexes() ([]int, bool) {
	if len(o.values) == 0 {
		return nil, false
	}
	idx := make([]int, 0, len(o.values))
	for k := range o.values {
		i, err := strconv.Atoi(k)
		if err != nil || i < 0 || strconv.Itoa(i) != k {
			return nil, false
		}
		if i > maxFormArrayIndex && !o.pushed {
			return nil, false
		}
		idx = append(idx, i)
	}
	slices.Sort(idx)
	return idx, true
}

func (o *formObject) object() map[string]any {
	out := make(map[string]any, len(o.values))
	for k, v := range o.values {
		out[k] = formValue(v)
	}
	return out
}

// value renders o as a compacted list when its keys are all indexes.
func (o *formObject) value() any {
	idx, ok := o.indexes()
	if !ok {
		return o.object()
	}
	list := make([]any, 0, len(idx))
	for _, i := range idx {
		list = append(list, formValue(o.values[strconv.Itoa(i)]))
	}
	return list
}

func formValue(v any) any {
	if obj, ok := v.(*formObject); ok {
		return obj.value()
	}
	return v
}
