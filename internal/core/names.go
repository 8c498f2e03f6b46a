package core

import (
	"math/rand"

	nanoid "github.com/jaevor/go-nanoid"
)

var adjectives = []string{
	"amber", "bold", "brave", "bright", "calm", "clever", "cosmic", "crisp", "curious", "dapper",
	"eager", "fancy", "fierce", "gentle", "glad", "golden", "grand", "happy", "hidden", "humble",
	"icy", "jolly", "keen", "kind", "lively", "lucky", "mellow", "merry", "misty", "noble",
	"odd", "proud", "quick", "quiet", "rapid", "rusty", "shy", "silent", "silver", "sleepy",
	"sly", "snowy", "solar", "steady", "sunny", "swift", "tidy", "vivid", "wild", "witty",
}

var nouns = []string{
	"badger", "bear", "beaver", "bison", "crane", "crow", "deer", "dingo", "dolphin", "eagle",
	"falcon", "ferret", "finch", "fox", "gecko", "heron", "hare", "ibis", "jackal", "koala",
	"lark", "lemur", "lynx", "marten", "mole", "moose", "newt", "otter", "owl", "panda",
	"parrot", "puffin", "quail", "raven", "robin", "salmon", "seal", "shrew", "sparrow", "stoat",
	"swan", "tapir", "tiger", "toad", "trout", "viper", "walrus", "weasel", "wolf", "yak",
}

// RandomName returns an adjective-noun pair such as "swift-fox".
func RandomName() string {
	return adjectives[rand.Intn(len(adjectives))] + "-" + nouns[rand.Intn(len(nouns))]
}

// numericSuffix generates the disambiguating tail appended after repeated collisions.
var numericSuffix = mustSuffixGenerator()

func mustSuffixGenerator() func() string {
	gen, err := nanoid.CustomASCII("0123456789", 4)
	if err != nil {
		panic(err)
	}
	return gen
}
