package routeinfo

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"campus-transport/internal/domain/route"
)

func TestWriteText(t *testing.T) {
	var buf bytes.Buffer
	if err := writeText(&buf, route.Campus()); err != nil {
		t.Fatal(err)
	}
	first := strings.SplitN(buf.String(), "\n", 2)[0]
	if !strings.HasPrefix(first, "route "+route.CampusVersion+":") {
		t.Fatalf("header = %q", first)
	}
	if !strings.Contains(buf.String(), "segment common") {
		t.Fatalf("missing trunk segment:\n%s", buf.String())
	}
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := writeJSON(&buf, route.Campus()); err != nil {
		t.Fatal(err)
	}
	var out struct {
		Version  string `json:"version"`
		Stops    []any  `json:"stops"`
		Segments []struct {
			Label string `json:"label"`
		} `json:"segments"`
	}
	if err := json.Unmarshal(buf.Bytes(), &out); err != nil {
		t.Fatal(err)
	}
	if out.Version != route.CampusVersion || len(out.Stops) != len(route.Campus().Stops()) {
		t.Fatalf("json = %+v", out)
	}
	if len(out.Segments) != len(route.Campus().Segments()) {
		t.Fatalf("segments = %d", len(out.Segments))
	}
}
