package cli

import (
	"bytes"
	"strings"
	"testing"
)

func TestParseMode(t *testing.T) {
	cases := []struct {
		args []string
		mode string
		rest []string
	}{
		{[]string{"--mode=tracker", "--max-concurrent=8"}, ModeTracker, []string{"--max-concurrent=8"}},
		{[]string{"tail"}, ModeMirrorTail, nil},
		{[]string{"route-info", "--save"}, ModeRouteInfo, []string{"--save"}},
		{[]string{"--mode=t"}, ModeTracker, nil},
	}
	for _, tc := range cases {
		mode, rest, err := ParseMode(tc.args)
		if err != nil {
			t.Fatalf("%v: %v", tc.args, err)
		}
		if mode != tc.mode || strings.Join(rest, " ") != strings.Join(tc.rest, " ") {
			t.Errorf("%v: got %q %v, want %q %v", tc.args, mode, rest, tc.mode, tc.rest)
		}
	}
}

func TestParseModeRequiresMode(t *testing.T) {
	if _, _, err := ParseMode([]string{"--save"}); err == nil {
		t.Fatal("expected an error without a mode")
	}
}

func TestUsageListsModes(t *testing.T) {
	var buf bytes.Buffer
	PrintUsage(&buf)
	for _, mode := range []string{ModeTracker, ModeRouteInfo, ModeMirrorTail} {
		if !strings.Contains(buf.String(), mode) {
			t.Errorf("usage is missing %s", mode)
		}
	}
}
