// Copyright 2019 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package dts

import "testing"

func TestBooleanValue(t *testing.T) {
	tests := []struct {
		in      string
		want    bool
		wantErr bool
	}{
		{in: "", want: true},
		{in: "y", want: true},
		{in: "yes", want: true},
		{in: "on", want: true},
		{in: "okay", want: true},
		{in: "n", want: false},
		{in: "off", want: false},
		{in: "disabled", want: false},
		{in: "0", want: false},
		{in: "1", want: true},
		{in: "0x2", want: true},
		{in: "bogus", wantErr: true},
	}
	for _, tt := range tests {
		got, err := BooleanValue(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("BooleanValue(%q) = nil error, want error", tt.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("BooleanValue(%q) = error %v, want %v", tt.in, err, tt.want)
			continue
		}
		if got != tt.want {
			t.Errorf("BooleanValue(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestIntegerValue(t *testing.T) {
	tests := []struct {
		in      string
		width   int
		want    uint64
		wantErr bool
	}{
		{in: "down", width: 4, want: 1},
		{in: "up", width: 4, want: 2},
		{in: "none", width: 4, want: 0},
		{in: "0x10", width: 1, want: 0x10},
		{in: "0x110", width: 1, want: 0x10},
		{in: "-1", width: 1, want: 0xff},
		{in: "&foo", width: 4, wantErr: true},
		{in: "bogus", width: 4, wantErr: true},
	}
	for _, tt := range tests {
		got, err := IntegerValue(tt.in, tt.width)
		if tt.wantErr {
			if err == nil {
				t.Errorf("IntegerValue(%q, %d) = %v, nil, want error", tt.in, tt.width, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("IntegerValue(%q, %d) = error %v", tt.in, tt.width, err)
			continue
		}
		if got != tt.want {
			t.Errorf("IntegerValue(%q, %d) = 0x%x, want 0x%x", tt.in, tt.width, got, tt.want)
		}
	}
}

func TestMask(t *testing.T) {
	tests := []struct {
		n     int64
		width int
		want  uint64
	}{
		{n: -1, width: 1, want: 0xff},
		{n: -1, width: 2, want: 0xffff},
		{n: -1, width: 4, want: 0xffffffff},
		{n: -1, width: 8, want: 0xffffffffffffffff},
		{n: 256, width: 1, want: 0},
	}
	for _, tt := range tests {
		if got := mask(tt.n, tt.width); got != tt.want {
			t.Errorf("mask(%d, %d) = 0x%x, want 0x%x", tt.n, tt.width, got, tt.want)
		}
	}
}
