package jsonw_test

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"passviz/internal/jsonw"
)

func TestWriter_EmptyArray(t *testing.T) {
	w := jsonw.New()
	w.ArrayBegin()
	w.ArrayEnd()
	if got := w.String(); got != "[]" {
		t.Fatalf("empty array: got %q", got)
	}
	if w.Depth() != 0 {
		t.Fatalf("depth after close: %d", w.Depth())
	}
}

func TestWriter_IndentedReport(t *testing.T) {
	w := jsonw.New()
	w.Array(func() {
		w.Object(func() {
			w.Attribute("passName", "Canonicalize")
			w.AttributeArray("dialectOpCounts", func() {
				w.Object(func() {
					w.Attribute("dialectName", "arith")
					w.Attribute("opCount", 2)
				})
			})
		})
	})

	want := `[
  {
    "passName": "Canonicalize",
    "dialectOpCounts": [
      {
        "dialectName": "arith",
        "opCount": 2
      }
    ]
  }
]`
	if diff := cmp.Diff(want, w.String()); diff != "" {
		t.Fatalf("indented output mismatch (-want +got):\n%s", diff)
	}
}

func TestWriter_Compact(t *testing.T) {
	w := jsonw.NewIndent(0)
	w.Array(func() {
		w.Value(1)
		w.Value("two")
		w.Value(true)
		w.Value(nil)
		w.Object(func() {
			w.AttributeObject("inner", func() {
				w.Attribute("x", 1.5)
			})
			w.AttributeArray("empty", func() {})
		})
	})
	want := `[1,"two",true,null,{"inner":{"x":1.5},"empty":[]}]`
	if got := w.String(); got != want {
		t.Fatalf("compact output:\n got %s\nwant %s", got, want)
	}
}

func TestWriter_EscapesStrings(t *testing.T) {
	w := jsonw.New()
	w.Object(func() {
		w.Attribute("na\"me", "line\nbreak\t\\")
	})
	var got map[string]string
	if err := json.Unmarshal(w.Bytes(), &got); err != nil {
		t.Fatalf("output is not valid JSON: %v\n%s", err, w.String())
	}
	if got["na\"me"] != "line\nbreak\t\\" {
		t.Fatalf("round trip mismatch: %#v", got)
	}
}

func TestWriter_ScopedHelpersCloseOnPanic(t *testing.T) {
	w := jsonw.New()
	errBoom := errors.New("boom")
	func() {
		defer func() {
			if r := recover(); r != errBoom {
				t.Fatalf("unexpected recover value: %v", r)
			}
		}()
		w.Array(func() {
			w.Object(func() {
				w.Attribute("ok", true)
				panic(errBoom)
			})
		})
	}()
	if w.Depth() != 0 {
		t.Fatalf("containers left open after panic: depth=%d", w.Depth())
	}
	var v []map[string]bool
	if err := json.Unmarshal(w.Bytes(), &v); err != nil {
		t.Fatalf("output is not valid JSON after panic: %v\n%s", err, w.String())
	}
}

func TestWriter_NonFiniteFloatsAreNull(t *testing.T) {
	w := jsonw.NewIndent(0)
	zero := 0.0
	w.Array(func() {
		w.Value(zero / zero)
		w.Value(float32(0.25))
		w.Value(uint64(7))
		w.Value(struct{}{})
	})
	if got, want := w.String(), `[null,0.25,7,null]`; got != want {
		t.Fatalf("got %s, want %s", got, want)
	}
}
