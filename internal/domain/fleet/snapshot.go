package fleet

// Snapshot is the full tracked state at one point in time.
type Snapshot struct {
	Autos   map[string]Auto
	Buggies map[string]Buggy
	Riders  map[string]Rider
}

// EmptySnapshot returns a snapshot with all mappings allocated.
func EmptySnapshot() Snapshot {
	return Snapshot{
		Autos:   map[string]Auto{},
		Buggies: map[string]Buggy{},
		Riders:  map[string]Rider{},
	}
}

// Clone deep-copies the mappings and the optional fields of every entity.
func (snapshot Snapshot) Clone() Snapshot {
	out := Snapshot{
		Autos:   make(map[string]Auto, len(snapshot.Autos)),
		Buggies: make(map[string]Buggy, len(snapshot.Buggies)),
		Riders:  make(map[string]Rider, len(snapshot.Riders)),
	}
	for id, auto := range snapshot.Autos {
		auto.Lat, auto.Lng = copyFloat(auto.Lat), copyFloat(auto.Lng)
		if auto.PassengerCount != nil {
			n := *auto.PassengerCount
			auto.PassengerCount = &n
		}
		out.Autos[id] = auto
	}
	for id, buggy := range snapshot.Buggies {
		buggy.Lat, buggy.Lng = copyFloat(buggy.Lat), copyFloat(buggy.Lng)
		out.Buggies[id] = buggy
	}
	for id, rider := range snapshot.Riders {
		rider.Lat, rider.Lng = copyFloat(rider.Lat), copyFloat(rider.Lng)
		out.Riders[id] = rider
	}
	return out
}

// Len returns the number of entities of kind.
func (snapshot Snapshot) Len(kind Kind) int {
	switch kind {
	case KindAuto:
		return len(snapshot.Autos)
	case KindBuggy:
		return len(snapshot.Buggies)
	case KindRider:
		return len(snapshot.Riders)
	}
	return 0
}

func copyFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
