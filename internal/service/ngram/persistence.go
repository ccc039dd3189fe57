package ngram

import (
	"encoding/gob"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// FormatVersion identifies the persisted model layout
const FormatVersion = "1"

// SerializableModel is a serializable representation of a frozen model
type SerializableModel struct {
	Version   string    // Format version
	ID        string    // Model ID
	CreatedAt time.Time // When the model was frozen
	Config    Config    // Training configuration

	Tokens      []string // Token ID -> token
	TokenCounts []int64  // Token ID -> occurrences

	Nodes []SerializableNode // Flattened context trie, parents before children

	Lines   int64 // Training sequences seen
	Longest int   // Longest bracketed sequence
}

// SerializableNode represents a serialized trie node
type SerializableNode struct {
	ID       int                // Node ID in serialized form
	ParentID int                // Parent node ID (-1 for root)
	TokenID  uint32             // Oldest token of the context
	Counts   map[uint32]int64   // Raw counts, nil for routing nodes
	Probs    map[uint32]float64 // Smoothed probabilities, nil if dropped
}

// Encode writes a model to w using gob encoding
func Encode(w io.Writer, m *Model) error {
	sm := &SerializableModel{
		Version:     FormatVersion,
		ID:          m.id.String(),
		CreatedAt:   m.createdAt,
		Config:      m.config,
		Tokens:      m.vocab.idToToken,
		TokenCounts: m.vocab.counts,
		Nodes:       flattenTrie(m.trie),
		Lines:       m.lines,
		Longest:     m.longest,
	}
	if err := gob.NewEncoder(w).Encode(sm); err != nil {
		return errors.Wrap(err, "failed to encode model")
	}
	return nil
}

// Decode reads a model written by Encode, validating every field
func Decode(r io.Reader) (*Model, error) {
	var sm SerializableModel
	if err := gob.NewDecoder(r).Decode(&sm); err != nil {
		return nil, errors.Wrapf(ErrCorruptModel, "gob decode: %v", err)
	}
	return sm.toModel()
}

func corrupt(format string, args ...interface{}) error {
	return errors.Wrapf(ErrCorruptModel, format, args...)
}

func (sm *SerializableModel) toModel() (*Model, error) {
	if sm.Version != FormatVersion {
		return nil, corrupt("field Version: unsupported %q", sm.Version)
	}
	id, err := uuid.Parse(sm.ID)
	if err != nil {
		return nil, corrupt("field ID: %v", err)
	}
	if err := sm.Config.Validate(); err != nil {
		return nil, corrupt("field Config: %v", err)
	}
	if len(sm.TokenCounts) != len(sm.Tokens) {
		return nil, corrupt("field TokenCounts: %d entries for %d tokens", len(sm.TokenCounts), len(sm.Tokens))
	}
	if sm.Lines < 0 || sm.Longest < 0 {
		return nil, corrupt("field Lines/Longest: negative value %d/%d", sm.Lines, sm.Longest)
	}

	vocab := NewVocabulary()
	for i, tok := range sm.Tokens {
		if tok == "" {
			return nil, corrupt("field Tokens[%d]: empty token", i)
		}
		if _, dup := vocab.ID(tok); dup {
			return nil, corrupt("field Tokens[%d]: duplicate token %q", i, tok)
		}
		if sm.TokenCounts[i] < 0 {
			return nil, corrupt("field TokenCounts[%d]: negative count %d", i, sm.TokenCounts[i])
		}
		vocab.add(tok, sm.TokenCounts[i])
	}
	if _, ok := vocab.ID(sm.Config.Sentinels.Start); !ok {
		return nil, corrupt("field Tokens: start sentinel missing")
	}

	trie, err := reconstructTrie(sm.Nodes, uint32(len(sm.Tokens)), sm.Config.MaxOrder)
	if err != nil {
		return nil, err
	}
	return newModel(id, sm.CreatedAt, sm.Config, vocab, trie, sm.Lines, sm.Longest), nil
}

// flattenTrie converts the trie to a flat array in depth-first order
func flattenTrie(trie *ContextTrie) []SerializableNode {
	var nodes []SerializableNode
	ids := make(map[*TrieNode]int)
	trie.Walk(func(node *TrieNode) {
		id := len(nodes)
		ids[node] = id
		parentID := -1
		if node.parent != nil {
			parentID = ids[node.parent]
		}
		nodes = append(nodes, SerializableNode{
			ID:       id,
			ParentID: parentID,
			TokenID:  node.tokenID,
			Counts:   node.counts,
			Probs:    node.probs,
		})
	})
	return nodes
}

// reconstructTrie rebuilds the trie from serialized nodes
func reconstructTrie(nodes []SerializableNode, vocabSize uint32, maxOrder int) (*ContextTrie, error) {
	if len(nodes) == 0 {
		return nil, corrupt("field Nodes: missing root")
	}
	if nodes[0].ParentID != -1 {
		return nil, corrupt("field Nodes[0].ParentID: root has parent %d", nodes[0].ParentID)
	}

	trie := NewContextTrie()
	built := make([]*TrieNode, len(nodes))
	for i, sn := range nodes {
		if sn.ID != i {
			return nil, corrupt("field Nodes[%d].ID: got %d", i, sn.ID)
		}

		var node *TrieNode
		if i == 0 {
			node = trie.root
		} else {
			if sn.ParentID < 0 || sn.ParentID >= i {
				return nil, corrupt("field Nodes[%d].ParentID: invalid parent %d", i, sn.ParentID)
			}
			if sn.TokenID >= vocabSize {
				return nil, corrupt("field Nodes[%d].TokenID: %d outside vocabulary", i, sn.TokenID)
			}
			parent := built[sn.ParentID]
			if _, dup := parent.children[sn.TokenID]; dup {
				return nil, corrupt("field Nodes[%d].TokenID: duplicate child %d", i, sn.TokenID)
			}
			node = NewTrieNode(sn.TokenID, parent)
			if node.depth > maxOrder-1 {
				return nil, corrupt("field Nodes[%d]: context length %d exceeds max order", i, node.depth)
			}
			parent.children[sn.TokenID] = node
		}

		if sn.Counts != nil {
			for id, cnt := range sn.Counts {
				if id >= vocabSize || cnt <= 0 {
					return nil, corrupt("field Nodes[%d].Counts: invalid entry %d=%d", i, id, cnt)
				}
			}
			node.counts = sn.Counts
			trie.contexts++
		}
		if sn.Probs != nil {
			if sn.Counts == nil || len(sn.Probs) == 0 {
				return nil, corrupt("field Nodes[%d].Probs: probabilities without counts", i)
			}
			for id, p := range sn.Probs {
				if id >= vocabSize || !(p > 0 && p <= 1) || math.IsNaN(p) {
					return nil, corrupt("field Nodes[%d].Probs: invalid entry %d=%v", i, id, p)
				}
			}
			node.probs = sn.Probs
			node.buildSamplingTable()
		}
		built[i] = node
	}
	return trie, nil
}

// Persistence stores named models in a directory
type Persistence struct {
	outputDir string
	logger    *zap.Logger
}

// NewPersistence creates a new persistence manager
func NewPersistence(outputDir string, logger *zap.Logger) (*Persistence, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	return &Persistence{
		outputDir: outputDir,
		logger:    logger,
	}, nil
}

// GetModelPath returns the file path of a named model
func (p *Persistence) GetModelPath(name string) string {
	return filepath.Join(p.outputDir, fmt.Sprintf("%s_ngram.gob", name))
}

// Save writes a model under the given name
func (p *Persistence) Save(m *Model, name string) error {
	path := p.GetModelPath(name)
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create model file: %w", err)
	}
	defer file.Close()

	if err := Encode(file, m); err != nil {
		return fmt.Errorf("failed to save model: %w", err)
	}

	var size uint64
	if info, err := file.Stat(); err == nil {
		size = uint64(info.Size())
	}
	p.logger.Info("Saved n-gram model",
		zap.String("name", name),
		zap.String("path", path),
		zap.String("model_id", m.id.String()),
		zap.String("size", humanize.Bytes(size)))
	return nil
}

// Load reads the model stored under the given name
func (p *Persistence) Load(name string) (*Model, error) {
	path := p.GetModelPath(name)
	return p.LoadFile(path)
}

// LoadFile reads a model from an explicit path
func (p *Persistence) LoadFile(path string) (*Model, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("no saved model found at %s", path)
		}
		return nil, fmt.Errorf("failed to open model file: %w", err)
	}
	defer file.Close()

	m, err := Decode(file)
	if err != nil {
		return nil, fmt.Errorf("failed to load model from %s: %w", path, err)
	}
	p.logger.Info("Loaded n-gram model",
		zap.String("path", path),
		zap.String("model_id", m.id.String()),
		zap.Int("vocab_size", m.vocab.Size()),
		zap.Bool("empty", m.Empty()))
	return m, nil
}

// Exists checks whether a named model has been saved
func (p *Persistence) Exists(name string) bool {
	_, err := os.Stat(p.GetModelPath(name))
	return err == nil
}

// Delete removes a saved model
func (p *Persistence) Delete(name string) error {
	if err := os.Remove(p.GetModelPath(name)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete model: %w", err)
	}
	p.logger.Info("Deleted n-gram model", zap.String("name", name))
	return nil
}
