package ngram

// Vocabulary interns tokens to IDs and keeps their raw occurrence counts
type Vocabulary struct {
	tokenToID map[string]uint32 // String to token ID mapping
	idToToken []string          // Token ID to string reverse mapping
	counts    []int64           // Token ID -> occurrences in the corpus
	maxLen    int               // Longest token in bytes
}

// NewVocabulary creates an empty vocabulary
func NewVocabulary() *Vocabulary {
	return &Vocabulary{
		tokenToID: make(map[string]uint32),
	}
}

// intern converts a token string to its ID, creating a new ID if needed
func (v *Vocabulary) intern(token string) uint32 {
	if id, exists := v.tokenToID[token]; exists {
		return id
	}

	id := uint32(len(v.idToToken))
	v.tokenToID[token] = id
	v.idToToken = append(v.idToToken, token)
	v.counts = append(v.counts, 0)
	if len(token) > v.maxLen {
		v.maxLen = len(token)
	}
	return id
}

func (v *Vocabulary) add(token string, count int64) uint32 {
	id := v.intern(token)
	v.counts[id] += count
	return id
}

// ID returns the ID of a token
func (v *Vocabulary) ID(token string) (uint32, bool) {
	id, ok := v.tokenToID[token]
	return id, ok
}

// Token returns the token string for a given ID
func (v *Vocabulary) Token(id uint32) string {
	if int(id) < len(v.idToToken) {
		return v.idToToken[id]
	}
	return ""
}

// Count returns how often a token occurred in training
func (v *Vocabulary) Count(token string) int64 {
	id, ok := v.tokenToID[token]
	if !ok {
		return 0
	}
	return v.counts[id]
}

// Size returns the number of unique tokens
func (v *Vocabulary) Size() int {
	return len(v.idToToken)
}

// MaxTokenLen returns the byte length of the longest token
func (v *Vocabulary) MaxTokenLen() int {
	return v.maxLen
}

func (v *Vocabulary) clone() *Vocabulary {
	c := &Vocabulary{
		tokenToID: make(map[string]uint32, len(v.tokenToID)),
		idToToken: append([]string(nil), v.idToToken...),
		counts:    append([]int64(nil), v.counts...),
		maxLen:    v.maxLen,
	}
	for tok, id := range v.tokenToID {
		c.tokenToID[tok] = id
	}
	return c
}
