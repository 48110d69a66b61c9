// Package jsonw implements a streaming JSON writer.
//
// A Writer emits a document incrementally into an in-memory buffer. It never
// materialises a tree of values; it only tracks the kinds of the containers
// that are currently open. Callers are expected to pair every Begin with its
// End. The scoped helpers (Array, Object, AttributeArray, AttributeObject)
// close their container on every exit path and should be preferred.
package jsonw

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// DefaultIndent is the indentation step used by New.
const DefaultIndent = 2

type scope uint8

const (
	scopeArray scope = iota + 1
	scopeObject
	scopeAttribute
)

type frame struct {
	scope scope
	count int // elements, attributes or values written in this scope
}

// Writer is a streaming JSON emitter. The zero value writes compact JSON.
type Writer struct {
	buf    bytes.Buffer
	indent int
	level  int
	stack  []frame
}

// New returns a Writer indenting by DefaultIndent spaces per nesting level.
func New() *Writer {
	return NewIndent(DefaultIndent)
}

// NewIndent returns a Writer indenting by step spaces per nesting level.
// A step of zero (or less) produces compact output.
func NewIndent(step int) *Writer {
	if step < 0 {
		step = 0
	}
	return &Writer{indent: step}
}

// ArrayBegin opens an array.
func (w *Writer) ArrayBegin() {
	w.valueBegin()
	w.buf.WriteByte('[')
	w.push(scopeArray)
}

// ArrayEnd closes the innermost array.
func (w *Writer) ArrayEnd() {
	w.pop(']')
}

// ObjectBegin opens an object.
func (w *Writer) ObjectBegin() {
	w.valueBegin()
	w.buf.WriteByte('{')
	w.push(scopeObject)
}

// ObjectEnd closes the innermost object.
func (w *Writer) ObjectEnd() {
	w.pop('}')
}

// AttributeBegin writes the key of a member of the current object. Exactly one
// value (scalar or container) must follow before AttributeEnd.
func (w *Writer) AttributeBegin(name string) {
	if top := w.top(); top != nil {
		if top.count > 0 {
			w.buf.WriteByte(',')
		}
		top.count++
	}
	w.newline()
	w.writeString(name)
	w.buf.WriteByte(':')
	if w.indent > 0 {
		w.buf.WriteByte(' ')
	}
	w.stack = append(w.stack, frame{scope: scopeAttribute})
}

// AttributeEnd finishes the member opened by AttributeBegin.
func (w *Writer) AttributeEnd() {
	if n := len(w.stack); n > 0 && w.stack[n-1].scope == scopeAttribute {
		w.stack = w.stack[:n-1]
	}
}

// Attribute writes a named scalar member of the current object.
func (w *Writer) Attribute(name string, v any) {
	w.AttributeBegin(name)
	w.Value(v)
	w.AttributeEnd()
}

// Value writes a scalar: an array element, an attribute value or a
// top-level document. Unsupported types are written as null.
func (w *Writer) Value(v any) {
	w.valueBegin()
	w.writeScalar(v)
}

// Array writes an array whose elements are produced by fn.
func (w *Writer) Array(fn func()) {
	w.ArrayBegin()
	defer w.ArrayEnd()
	fn()
}

// Object writes an object whose members are produced by fn.
func (w *Writer) Object(fn func()) {
	w.ObjectBegin()
	defer w.ObjectEnd()
	fn()
}

// AttributeArray writes a member holding an array whose elements are produced by fn.
func (w *Writer) AttributeArray(name string, fn func()) {
	w.AttributeBegin(name)
	defer w.AttributeEnd()
	w.Array(fn)
}

// AttributeObject writes a member holding an object whose members are produced by fn.
func (w *Writer) AttributeObject(name string, fn func()) {
	w.AttributeBegin(name)
	defer w.AttributeEnd()
	w.Object(fn)
}

// Depth reports the number of open arrays and objects.
func (w *Writer) Depth() int {
	return w.level
}

// Bytes returns the buffered document. The slice aliases the buffer.
func (w *Writer) Bytes() []byte {
	return w.buf.Bytes()
}

// String returns the buffered document.
func (w *Writer) String() string {
	return w.buf.String()
}

// Len returns the number of buffered bytes.
func (w *Writer) Len() int {
	return w.buf.Len()
}

func (w *Writer) top() *frame {
	if len(w.stack) == 0 {
		return nil
	}
	return &w.stack[len(w.stack)-1]
}

func (w *Writer) push(s scope) {
	w.stack = append(w.stack, frame{scope: s})
	w.level++
}

func (w *Writer) pop(closing byte) {
	n := len(w.stack)
	if n == 0 {
		return
	}
	f := w.stack[n-1]
	w.stack = w.stack[:n-1]
	w.level--
	if f.count > 0 {
		w.newline()
	}
	w.buf.WriteByte(closing)
}

// valueBegin positions the buffer for a new value in the current scope.
func (w *Writer) valueBegin() {
	top := w.top()
	if top == nil {
		return
	}
	switch top.scope {
	case scopeArray:
		if top.count > 0 {
			w.buf.WriteByte(',')
		}
		w.newline()
	case scopeAttribute, scopeObject:
		// the key has already been written
	}
	top.count++
}

func (w *Writer) newline() {
	if w.indent == 0 {
		return
	}
	w.buf.WriteByte('\n')
	w.buf.WriteString(strings.Repeat(" ", w.level*w.indent))
}

func (w *Writer) writeScalar(v any) {
	switch x := v.(type) {
	case nil:
		w.buf.WriteString("null")
	case string:
		w.writeString(x)
	case bool:
		w.buf.WriteString(strconv.FormatBool(x))
	case int:
		w.buf.WriteString(strconv.FormatInt(int64(x), 10))
	case int8:
		w.buf.WriteString(strconv.FormatInt(int64(x), 10))
	case int16:
		w.buf.WriteString(strconv.FormatInt(int64(x), 10))
	case int32:
		w.buf.WriteString(strconv.FormatInt(int64(x), 10))
	case int64:
		w.buf.WriteString(strconv.FormatInt(x, 10))
	case uint:
		w.buf.WriteString(strconv.FormatUint(uint64(x), 10))
	case uint8:
		w.buf.WriteString(strconv.FormatUint(uint64(x), 10))
	case uint16:
		w.buf.WriteString(strconv.FormatUint(uint64(x), 10))
	case uint32:
		w.buf.WriteString(strconv.FormatUint(uint64(x), 10))
	case uint64:
		w.buf.WriteString(strconv.FormatUint(x, 10))
	case float32:
		w.writeFloat(float64(x), 32)
	case float64:
		w.writeFloat(x, 64)
	default:
		w.buf.WriteString("null")
	}
}

func (w *Writer) writeFloat(f float64, bits int) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		w.buf.WriteString("null")
		return
	}
	w.buf.WriteString(strconv.FormatFloat(f, 'g', -1, bits))
}

func (w *Writer) writeString(s string) {
	// Marshal of a string cannot fail.
	data, _ := json.Marshal(s) //nolint:errcheck
	w.buf.Write(data)
}
