// Copyright (c) 2022 The rcproxy Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package hashkit

import "testing"

func Test_Crc16(t *testing.T) {
	if v := Hash("jiofiejjkeofijo"); v != 14761 {
		t.Fatalf("crc16 hash error, need: %d got: %d", 14761, v)
	}
	if v := Hash(""); v != 0 {
		t.Fatalf("crc16 hash error, need: %d got: %d", 0, v)
	}
}

func Test_Crc16HashTag(t *testing.T) {
	cases := []struct {
		key  string
		want uint16
	}{
		{"{jio}fiejjkeofijo", 12369},
		{"jioj{jio}fiejjkeofijo", 12369},
		{"fiejjkeofijo{jio}", 12369},
		{"fiejjkeofijo{jio}{abc}", 12369},
	}
	for _, c := range cases {
		if v := Hash(c.key); v != c.want {
			t.Fatalf("crc16 hash tag error for %q, need: %d got: %d", c.key, c.want, v)
		}
	}
}

func Test_Crc16EmptyTagFallsThrough(t *testing.T) {
	// "{}" is an empty tag and must be ignored; the whole key hashes.
	want := crc16([]byte("{}abc")) % NumSlots
	got := Hash("{}abc")
	if want != got {
		t.Fatalf("empty hash tag should fall back to whole key, got %d want %d", got, want)
	}
}

func Test_TagScannerMatchesHash(t *testing.T) {
	keys := []string{
		"jiofiejjkeofijo",
		"{jio}fiejjkeofijo",
		"jioj{jio}fiejjkeofijo",
		"fiejjkeofijo{jio}",
		"fiejjkeofijo{jio}{abc}",
		"{}abc",
		"plainkey",
	}
	for _, k := range keys {
		s := NewTagScanner()
		for i := 0; i < len(k); i++ {
			s.Feed(k[i])
		}
		if got, want := s.Slot(), Hash(k); got != want {
			t.Fatalf("scanner slot mismatch for %q: got %d want %d", k, got, want)
		}
	}
}

func Test_SlotOfMatchesHashAndReusesScanner(t *testing.T) {
	keys := []string{
		"jiofiejjkeofijo",
		"{jio}fiejjkeofijo",
		"{}abc",
		"plainkey",
	}
	for _, k := range keys {
		if got, want := SlotOf([]byte(k)), Hash(k); got != want {
			t.Fatalf("SlotOf mismatch for %q: got %d want %d", k, got, want)
		}
	}
	// A scanner returned to the pool mid-tag must come back Reset, not
	// carrying the previous key's tag state into the next call.
	if got, want := SlotOf([]byte("{tag}rest")), Hash("{tag}rest"); got != want {
		t.Fatalf("SlotOf after pool reuse mismatch: got %d want %d", got, want)
	}
}

func BenchmarkCrc16(b *testing.B) {
	for i := 0; i < b.N; i++ {
		Hash("jiofiejjkeofijo")
	}
}
