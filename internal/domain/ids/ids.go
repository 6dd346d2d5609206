package ids

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/bwmarrin/snowflake"
)

// Epoch is the reference instant all identifiers count milliseconds from.
var Epoch = time.Date(2022, time.July, 24, 0, 0, 0, 0, time.UTC)

// MaxNodeID is the largest node id a Generator accepts (10 node bits).
const MaxNodeID = 1<<10 - 1

var ErrInvalidID = errors.New("invalid identifier")

func init() {
	snowflake.Epoch = Epoch.UnixMilli()
}

// Generator mints time-ordered identifiers for a single node. Ids are unique
// within a deployment as long as every process runs with a distinct node id.
type Generator struct {
	node *snowflake.Node
}

// NewGenerator creates a Generator for the given node id.
func NewGenerator(nodeID int64) (*Generator, error) {
	if nodeID < 0 || nodeID > MaxNodeID {
		return nil, fmt.Errorf("node id %d out of range [0,%d]", nodeID, MaxNodeID)
	}
	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		return nil, fmt.Errorf("create snowflake node: %w", err)
	}
	return &Generator{node: node}, nil
}

// New returns a fresh identifier as a decimal string.
func (g *Generator) New() string {
	return g.node.Generate().String()
}

// Valid reports whether value is a canonical identifier: a positive decimal
// int64 with no sign, padding or surrounding whitespace.
func Valid(value string) bool {
	if value == "" || value[0] == '0' {
		return false
	}
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil || n <= 0 {
		return false
	}
	return strconv.FormatInt(n, 10) == value
}

// Validate returns ErrInvalidID when value is not a canonical identifier.
func Validate(value string) error {
	if !Valid(value) {
		return ErrInvalidID
	}
	return nil
}

// Time returns the creation instant encoded in an identifier.
func Time(value string) (time.Time, error) {
	if !Valid(value) {
		return time.Time{}, ErrInvalidID
	}
	id, err := snowflake.ParseString(value)
	if err != nil {
		return time.Time{}, ErrInvalidID
	}
	return time.UnixMilli(id.Time()).UTC(), nil
}
