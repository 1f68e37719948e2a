// Package actions defines the fixed catalog of atomic memory mutations:
// add, update, link, cluster, delete. Every change to the store flows
// through exactly one named action invocation, which makes mutations
// attributable, auditable, and replayable.
//
// The catalog doubles as the function-calling surface of the memory
// agent: Catalog() renders it as tool schemas, Parse() maps a tool call
// back to a typed action, and unknown names are rejected with a typed
// error before anything executes.
package actions

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cogents/memu-go/core"
	"github.com/cogents/memu-go/index"
	"github.com/cogents/memu-go/llm"
	"github.com/cogents/memu-go/store"
)

// Action names as exposed to the model.
const (
	NameAdd     = "add_memory"
	NameUpdate  = "update_memory"
	NameLink    = "link_memories"
	NameCluster = "cluster_memories"
	NameDelete  = "delete_memory"
)

// Deps is everything an action needs to execute. SourceRef identifies
// the conversation a run is processing; Add stamps it on new records
// for audit.
type Deps struct {
	Store     *store.Store
	Index     *index.Index
	SourceRef string
	Logger    *zap.Logger
}

// Result summarizes one applied action. Summary is phrased for the
// model's next reasoning turn.
type Result struct {
	// InvocationID uniquely identifies this application for audit.
	InvocationID string
	Action       string
	Summary      string
	// RecordID is the primary record touched, when there is one.
	RecordID string
}

// Action is one member of the closed catalog. The unexported apply
// method keeps the variant set sealed: no action can be defined outside
// this package.
type Action interface {
	Name() string
	Validate() error
	apply(ctx context.Context, deps *Deps) (*Result, error)
}

// Parse maps a tool call to a typed action. A name outside the catalog
// fails with UnknownActionError; malformed arguments fail before any
// store access.
func Parse(name string, arguments json.RawMessage) (Action, error) {
	var act Action
	switch name {
	case NameAdd:
		act = &Add{}
	case NameUpdate:
		act = &Update{}
	case NameLink:
		act = &Link{}
	case NameCluster:
		act = &Cluster{}
	case NameDelete:
		act = &Delete{}
	default:
		return nil, &core.UnknownActionError{Name: name}
	}
	if len(arguments) > 0 {
		if err := json.Unmarshal(arguments, act); err != nil {
			return nil, fmt.Errorf("decode %s arguments: %w", name, err)
		}
	}
	if err := act.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return act, nil
}

// Apply executes one action against the store, synchronously dropping
// the similarity-index entry of every touched identifier so the next
// query re-repairs from the store.
func Apply(ctx context.Context, deps *Deps, act Action) (*Result, error) {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	res, err := act.apply(ctx, deps)
	if err != nil {
		deps.Logger.Debug("action failed",
			zap.String("action", act.Name()),
			zap.Error(err))
		return nil, err
	}
	res.InvocationID = uuid.New().String()
	res.Action = act.Name()
	deps.Logger.Info("action applied",
		zap.String("action", res.Action),
		zap.String("record", res.RecordID),
		zap.String("invocation", res.InvocationID))
	return res, nil
}

// Catalog renders the action set as tool schemas, exactly as the
// orchestrator exposes it to the model.
func Catalog() []llm.Tool {
	categories := make([]string, 0, 4)
	for _, c := range core.Categories() {
		categories = append(categories, string(c))
	}

	return []llm.Tool{
		{
			Name:        NameAdd,
			Description: "Store a new long-term memory. Use markdown sections (Task Aim, Steps, Alternatives, Notes) for procedural memories, free text otherwise. Fails if identical content is already stored in the category.",
			Properties: map[string]interface{}{
				"topic":    stringProperty("Short topic the identifier is derived from, e.g. 'Alice intro' or 'Nasdaq historical data'"),
				"category": enumProperty("Memory category", categories...),
				"body":     stringProperty("Full markdown body of the memory"),
			},
			Required: []string{"topic", "category", "body"},
		},
		{
			Name:        NameUpdate,
			Description: "Replace one named section of an existing memory. The section is created if absent and replaced if present.",
			Properties: map[string]interface{}{
				"category":   enumProperty("Category of the target memory", categories...),
				"identifier": stringProperty("Identifier of the memory to update"),
				"section":    stringProperty("Section name, e.g. 'Notes' or 'Alternatives'"),
				"text":       stringProperty("New content of the section"),
			},
			Required: []string{"category", "identifier", "section", "text"},
		},
		{
			Name:        NameLink,
			Description: "Record a directed relation between two existing memories in the same category. Linking twice is a no-op.",
			Properties: map[string]interface{}{
				"source": stringProperty("Identifier of the memory the link starts from"),
				"target": stringProperty("Identifier of the memory the link points to"),
			},
			Required: []string{"source", "target"},
		},
		{
			Name:        NameCluster,
			Description: "Group two or more existing memories of one category under a named cluster. Extends the cluster if the label already exists.",
			Properties: map[string]interface{}{
				"label":   stringProperty("Cluster label, e.g. 'stock research'"),
				"members": arrayProperty("Identifiers of the member memories (at least two)", stringProperty("Memory identifier")),
			},
			Required: []string{"label", "members"},
		},
		{
			Name:        NameDelete,
			Description: "Soft-delete a memory: the identifier survives as a tombstone, the content and all links are removed.",
			Properties: map[string]interface{}{
				"category":   enumProperty("Category of the target memory", categories...),
				"identifier": stringProperty("Identifier of the memory to delete"),
			},
			Required: []string{"category", "identifier"},
		},
	}
}

// findRecord resolves an identifier with no category hint by scanning
// categories in canonical order. Used by link and cluster, whose
// arguments carry bare identifiers.
func findRecord(ctx context.Context, deps *Deps, id string) (*core.Record, error) {
	for _, category := range core.Categories() {
		rec, err := deps.Store.Get(ctx, category, id)
		if err == nil {
			return rec, nil
		}
		if !core.IsNotFound(err) {
			return nil, err
		}
	}
	return nil, &core.NotFoundError{ID: id}
}
