package ai

import "testing"

type sampleOut struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestUnmarshalFlexibleStandard(t *testing.T) {
	var out sampleOut
	if err := UnmarshalFlexible(`{"name": "mill", "count": 2}`, &out); err != nil {
		t.Fatal(err)
	}
	if out.Name != "mill" || out.Count != 2 {
		t.Errorf("unexpected result: %+v", out)
	}
}

func TestUnmarshalFlexibleDoubleEncoded(t *testing.T) {
	var out sampleOut
	if err := UnmarshalFlexible(`"{\"name\": \"mill\", \"count\": 2}"`, &out); err != nil {
		t.Fatal(err)
	}
	if out.Name != "mill" || out.Count != 2 {
		t.Errorf("unexpected result: %+v", out)
	}
}

func TestUnmarshalFlexibleRepairsMalformed(t *testing.T) {
	var out sampleOut
	if err := UnmarshalFlexible(`{name: "mill", count: 2,}`, &out); err != nil {
		t.Fatal(err)
	}
	if out.Name != "mill" || out.Count != 2 {
		t.Errorf("unexpected result: %+v", out)
	}
}

func TestUnmarshalFlexibleDuplicateBrace(t *testing.T) {
	var out sampleOut
	if err := UnmarshalFlexible(`{ {"name": "mill", "count": 2}`, &out); err != nil {
		t.Fatal(err)
	}
	if out.Name != "mill" {
		t.Errorf("unexpected result: %+v", out)
	}
}

func TestGenerateSchemaFromPointer(t *testing.T) {
	schema := GenerateSchema(&sampleOut{})
	if schema == nil {
		t.Fatal("expected schema")
	}
	schema2 := GenerateSchema(sampleOut{})
	if schema2 == nil {
		t.Fatal("expected schema from value type")
	}
}
