package artifact

import "testing"

func BenchmarkEncode(b *testing.B) {
	table := stockEODTable(b, 1024)
	for b.Loop() {
		out, _ := Encode(table)
		_ = out
	}
}

func BenchmarkDecode(b *testing.B) {
	data, err := Encode(stockEODTable(b, 1024))
	if err != nil {
		b.Fatalf("encode: %v", err)
	}
	for b.Loop() {
		t, _ := Decode(data)
		_ = t
	}
}
