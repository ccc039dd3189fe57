package ngram

import (
	"encoding/binary"
	"strings"
)

// Default sentinels used to bracket every password sequence
const (
	DefaultStartToken = "\x00"
	DefaultEndToken   = "\x03"
)

// Sentinels holds the start and end tokens of a model
type Sentinels struct {
	Start string `json:"start_chr" yaml:"start_chr"`
	End   string `json:"end_chr" yaml:"end_chr"`
}

// DefaultSentinels returns the sentinels used when none are configured
func DefaultSentinels() Sentinels {
	return Sentinels{Start: DefaultStartToken, End: DefaultEndToken}
}

// Sequence is a tokenized password bracketed by the start and end sentinels
type Sequence []string

// NewSequence brackets tokens with the sentinels
func NewSequence(s Sentinels, tokens []string) Sequence {
	seq := make(Sequence, 0, len(tokens)+2)
	seq = append(seq, s.Start)
	seq = append(seq, tokens...)
	seq = append(seq, s.End)
	return seq
}

// NGram represents an n-gram (sequence of n tokens)
type NGram []string

// String returns the n-gram as a space-separated string
func (ng NGram) String() string {
	return strings.Join(ng, " ")
}

// Context returns the context (all tokens except the last one)
func (ng NGram) Context() NGram {
	if len(ng) <= 1 {
		return NGram{}
	}
	return ng[:len(ng)-1]
}

// LastToken returns the last token in the n-gram
func (ng NGram) LastToken() string {
	if len(ng) == 0 {
		return ""
	}
	return ng[len(ng)-1]
}

// Key encodes the n-gram into a map key. Every token is length-prefixed so
// tokens containing arbitrary bytes never collide.
func (ng NGram) Key() string {
	var b strings.Builder
	var lenBuf [binary.MaxVarintLen64]byte
	for _, tok := range ng {
		n := binary.PutUvarint(lenBuf[:], uint64(len(tok)))
		b.Write(lenBuf[:n])
		b.WriteString(tok)
	}
	return b.String()
}

// ParseKey decodes a key produced by NGram.Key
func ParseKey(key string) (NGram, bool) {
	ng := NGram{}
	data := []byte(key)
	for len(data) > 0 {
		l, n := binary.Uvarint(data)
		if n <= 0 || uint64(len(data)-n) < l {
			return nil, false
		}
		data = data[n:]
		ng = append(ng, string(data[:l]))
		data = data[l:]
	}
	return ng, true
}
