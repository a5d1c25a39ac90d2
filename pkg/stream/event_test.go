package stream

import (
	"reflect"
	"strings"
	"testing"
)

func TestMarshalUnmarshal_AllVariants(t *testing.T) {
	count := 2
	events := []Event{
		Status{Stage: "search", Message: "Running vector search..."},
		Metadata{
			Results: []Hit{{ID: "p1", Score: 0.93, Payload: map[string]any{"title": "BRCA1"}}},
			Trace: []TraceStep{{
				Name:        "Vector retrieval",
				Status:      StepComplete,
				Duration:    42,
				ResultCount: &count,
			}},
			Extra: map[string]any{"collection": "biomedical_papers"},
		},
		Content{Text: "BRCA1 "},
		Done{},
		Error{Message: "search failed"},
	}

	for _, ev := range events {
		data, err := Marshal(ev)
		if err != nil {
			t.Fatalf("Marshal(%T): %v", ev, err)
		}
		back, err := Unmarshal(data)
		if err != nil {
			t.Fatalf("Unmarshal(%T): %v", ev, err)
		}
		if reflect.TypeOf(back) != reflect.TypeOf(ev) {
			t.Errorf("round-trip changed type: %T -> %T", ev, back)
		}
	}
}

func TestUnmarshal_UnknownType(t *testing.T) {
	if _, err := Unmarshal([]byte(`{"type":"bogus"}`)); err == nil {
		t.Fatal("expected error for unknown event type")
	}
}

func TestMarshal_MetadataKeepsEmptySlices(t *testing.T) {
	data, err := Marshal(Metadata{})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	got := string(data)
	want := `{"type":"metadata","results":[],"trace":[]}`
	if got != want {
		t.Errorf("metadata wire shape:\ngot:  %s\nwant: %s", got, want)
	}
}

func TestMarshal_NonMetadataOmitsResultKeys(t *testing.T) {
	for _, e := range []Event{Status{Stage: "search"}, Content{Text: "x"}, Done{}, Error{Message: "nope"}} {
		data, err := Marshal(e)
		if err != nil {
			t.Fatalf("Marshal %s: %v", Type(e), err)
		}
		if strings.Contains(string(data), `"results"`) || strings.Contains(string(data), `"trace"`) {
			t.Errorf("%s event grew result keys: %s", Type(e), data)
		}
	}
}

func TestIsTerminal(t *testing.T) {
	if !IsTerminal(Done{}) || !IsTerminal(Error{}) {
		t.Error("done and error must be terminal")
	}
	if IsTerminal(Status{}) || IsTerminal(Metadata{}) || IsTerminal(Content{}) {
		t.Error("non-terminal events reported terminal")
	}
}
