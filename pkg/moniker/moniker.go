// SPDX-License-Identifier: Apache-2.0

// Package moniker generates human-friendly replica names, the way
// container runtimes mint friendly names for containers that have none.
package moniker

import (
	"fmt"

	"github.com/google/uuid"
)

var colors = []string{
	"amber", "azure", "coral", "crimson", "ebony", "emerald", "fuchsia",
	"ginger", "hazel", "indigo", "ivory", "jade", "lilac", "maroon",
	"mauve", "ochre", "olive", "onyx", "pearl", "russet", "sienna",
	"slate", "tawny", "teal", "umber", "violet",
}

var animals = []string{
	"badger", "bison", "civet", "condor", "cougar", "coyote", "egret",
	"falcon", "gecko", "heron", "ibis", "jackal", "kestrel", "lemur",
	"lynx", "marten", "newt", "ocelot", "otter", "panther", "quokka",
	"raven", "serval", "tapir", "vole", "wombat",
}

// Name returns a pseudo-random three-token name, colors x animals x a
// decimal suffix, seeded from a fresh random UUID so it needs no external
// entropy source. exists reports whether a candidate is already taken (for
// example by a name in a Block's replica list); Name draws up to 8
// candidates and, if all collide, returns a raw UUID string instead.
func Name(exists func(string) bool) string {
	for attempt := 0; attempt < 8; attempt++ {
		id := uuid.New()
		sum := 0
		for _, b := range id {
			sum += int(b)
		}
		c := colors[sum%len(colors)]
		a := animals[(sum/len(colors))%len(animals)]
		n := fmt.Sprintf("%s-%s-%d", c, a, id[0]%100)
		if exists == nil || !exists(n) {
			return n
		}
	}
	// Collision storm (practically unreachable): fall back to the raw
	// UUID so the caller always gets a unique name.
	return uuid.New().String()
}
