package fleet

import "strings"

// Buggy is a route shuttle (vehicle kind B). Route is a branch label such as "red".
type Buggy struct {
	ID    string   `json:"id"`
	Lat   *float64 `json:"lat,omitempty"`
	Lng   *float64 `json:"lng,omitempty"`
	Route string   `json:"route,omitempty"`
}

func (buggy Buggy) EntityID() string               { return buggy.ID }
func (buggy Buggy) Kind() Kind                     { return KindBuggy }
func (buggy Buggy) Position() (*float64, *float64) { return buggy.Lat, buggy.Lng }

// Validate checks the fields a complete buggy update must carry.
func (buggy Buggy) Validate() error {
	if strings.TrimSpace(buggy.ID) == "" {
		return ErrEmptyID
	}
	return nil
}
