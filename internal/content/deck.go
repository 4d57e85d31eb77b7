// Package content loads board decks from YAML or CUE files.
//
// A deck names its module, the board side and exactly side² items, each a
// term and the definition the player is prompted with. CUE decks are unified
// with the embedded #Deck schema before decoding; YAML decks are decoded
// strictly and checked by the same Go validation.
package content

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"gopkg.in/yaml.v3"

	"github.com/roach88/playledger/internal/board"
	"github.com/roach88/playledger/internal/errs"
)

//go:embed deck.cue
var deckSchema string

const op = "content.load"

// Deck is the content of one board module.
type Deck struct {
	Module   string          `json:"module" yaml:"module"`
	Title    string          `json:"title,omitempty" yaml:"title,omitempty"`
	Side     int             `json:"side" yaml:"side"`
	FreeCell *int            `json:"free_cell,omitempty" yaml:"free_cell,omitempty"`
	Items    []board.Payload `json:"items" yaml:"items"`
}

// Validate checks the deck against the board it will be laid out on.
func (d Deck) Validate() error {
	if strings.TrimSpace(d.Module) == "" {
		return errs.Validation(op, "deck module is required")
	}
	if d.Side < 1 {
		return errs.Validation(op, "deck %s: side must be positive, got %d", d.Module, d.Side)
	}
	if want := d.Side * d.Side; len(d.Items) != want {
		return errs.Validation(op, "deck %s: %dx%d board needs %d items, got %d", d.Module, d.Side, d.Side, want, len(d.Items))
	}
	if d.FreeCell != nil && (*d.FreeCell < 0 || *d.FreeCell >= len(d.Items)) {
		return errs.Validation(op, "deck %s: free cell %d out of range", d.Module, *d.FreeCell)
	}
	for i, it := range d.Items {
		if strings.TrimSpace(it.Definition) == "" {
			return errs.Validation(op, "deck %s: item %d has an empty definition", d.Module, i)
		}
	}
	return nil
}

// Load reads a deck file, choosing the decoder by extension:
// .cue for CUE, .yaml, .yml or .json for YAML.
func Load(path string) (*Deck, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read deck: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".cue":
		return ParseCUE(path, data)
	case ".yaml", ".yml", ".json":
		return ParseYAML(data)
	default:
		return nil, errs.Validation(op, "unsupported deck format %q", filepath.Ext(path))
	}
}

// ParseYAML decodes a YAML deck. Unknown fields are rejected and a missing
// side defaults to 5.
func ParseYAML(data []byte) (*Deck, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var d Deck
	if err := dec.Decode(&d); err != nil {
		return nil, errs.Validation(op, "decode yaml deck: %v", err)
	}
	if d.Side == 0 {
		d.Side = 5
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return &d, nil
}

// ParseCUE compiles a CUE deck, unifies it with #Deck and decodes it.
// filename is used in error positions only.
func ParseCUE(filename string, data []byte) (*Deck, error) {
	ctx := cuecontext.New()

	schema := ctx.CompileString(deckSchema, cue.Filename("deck.cue"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("compile deck schema: %w", err)
	}
	def := schema.LookupPath(cue.ParsePath("#Deck"))

	v := ctx.CompileBytes(data, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return nil, errs.Validation(op, "%s", formatCUEError(err))
	}

	unified := def.Unify(v)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return nil, errs.Validation(op, "%s", formatCUEError(err))
	}

	var d Deck
	if err := unified.Decode(&d); err != nil {
		return nil, errs.Validation(op, "decode cue deck: %v", err)
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return &d, nil
}

// formatCUEError flattens a CUE error list into one line per error.
func formatCUEError(err error) string {
	var list cueerrors.Error
	if !errors.As(err, &list) {
		return err.Error()
	}
	var lines []string
	for _, e := range cueerrors.Errors(list) {
		lines = append(lines, strings.TrimSpace(cueerrors.Details(e, nil)))
	}
	return strings.Join(lines, "; ")
}
