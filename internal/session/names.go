package session

import (
	"crypto/rand"
	"math/big"
	"strings"
)

var ornaments = []string{
	"bauble", "tinsel", "garland", "wreath", "bell", "star", "angel", "ribbon", "candle", "lantern",
	"snowglobe", "stocking", "mistletoe", "holly", "pinecone", "icicle", "sleigh", "chimney", "nutcracker", "sparkler",
}

var treats = []string{
	"gingerbread", "cocoa", "eggnog", "fudge", "toffee", "strudel", "stollen", "panettone", "marzipan", "cinnamon",
	"pudding", "candycane", "macaron", "shortbread", "truffle", "chestnut", "biscotti", "pretzel", "muffin", "cookie",
}

var creatures = []string{
	"reindeer", "penguin", "polarbear", "owl", "fox", "robin", "hare", "moose", "seal", "husky",
	"otter", "snowyowl", "lynx", "puffin", "ermine", "squirrel", "badger", "walrus", "yak", "elk",
}

var moods = []string{
	"jolly", "merry", "cozy", "frosty", "snowy", "sparkly", "twinkly", "sleepy", "gleaming", "festive",
	"shiny", "glowing", "toasty", "wintry", "bright", "fluffy", "silent", "golden", "velvet", "crisp",
}

// NewSessionID returns a memorable word-word-word-word id that is not in
// use, one word from each list in random order.
func (r *Registry) NewSessionID() string {
	pools := [][]string{moods, ornaments, treats, creatures}
	for {
		words := make([]string, len(pools))
		order := permutation(len(pools))
		for i, p := range order {
			words[i] = pools[p][randomIndex(len(pools[p]))]
		}
		id := strings.Join(words, "-")
		if _, ok := r.sessions[id]; !ok {
			return id
		}
	}
}

func permutation(n int) []int {
	p := make([]int, n)
	for i := range p {
		p[i] = i
	}
	for i := n - 1; i > 0; i-- {
		j := randomIndex(i + 1)
		p[i], p[j] = p[j], p[i]
	}
	return p
}

// randomIndex returns a cryptographically secure random index in [0, max).
func randomIndex(max int) int {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(max)))
	if err != nil {
		panic("session: random source failed: " + err.Error())
	}
	return int(n.Int64())
}
