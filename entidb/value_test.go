package entidb

import "testing"

func TestEncodeDecodeValueRoundtrip(t *testing.T) {
	v := Map([]MapEntry{
		{Key: Text("name"), Value: Text("widget")},
		{Key: Text("qty"), Value: Int(7)},
	})
	data, err := EncodeValue(v)
	if err != nil {
		t.Fatalf("EncodeValue: %v", err)
	}
	got, err := DecodeValue(data)
	if err != nil {
		t.Fatalf("DecodeValue: %v", err)
	}
	if !Equal(got, v) {
		t.Fatalf("got %s, want %s", got, v)
	}
}
