package main

import "fmt"

type benchSpec struct {
	name              string
	freshWALByDefault bool
	useReads          bool
}

func benchSpecFor(name string) (benchSpec, error) {
	switch name {
	case "appendseq", "appendsync", "unitops", "checkpoint":
		return benchSpec{name: name, freshWALByDefault: true}, nil
	case "replay":
		return benchSpec{name: name, useReads: true}, nil
	default:
		return benchSpec{}, fmt.Errorf("unknown benchmark %q", name)
	}
}
