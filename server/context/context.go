package context

import (
	"context"
)

// Key is a typed context key whose value is attached to log output when a
// context-aware logger method is used.
type Key string

func (k Key) String() string {
	return string(k)
}

const (
	ErrKey        Key = "err"
	RepositoryKey Key = "repository"
	RevisionKey   Key = "revision"
	WorkflowKey   Key = "workflow"
	JobKey        Key = "job"
	RunIDKey      Key = "run-id"
	PullNumKey    Key = "pull-num"
	TriggerKey    Key = "trigger"
	BranchKey     Key = "branch"
	StepKey       Key = "step"
)

// fields the loggers know how to extract.
var keys = []Key{
	ErrKey,
	RepositoryKey,
	RevisionKey,
	WorkflowKey,
	JobKey,
	RunIDKey,
	PullNumKey,
	TriggerKey,
	BranchKey,
	StepKey,
}

// ExtractFields returns all known field values set on the context, keyed by
// field name.
func ExtractFields(ctx context.Context) map[string]interface{} {
	fields := make(map[string]interface{})
	for _, k := range keys {
		if v := ctx.Value(k); v != nil {
			fields[k.String()] = v
		}
	}
	return fields
}

// ExtractFieldsAsList returns the known field values set on the context as an
// alternating key/value list, the shape variadic structured loggers take.
func ExtractFieldsAsList(ctx context.Context) []interface{} {
	var kvs []interface{}
	for k, v := range ExtractFields(ctx) {
		kvs = append(kvs, k, v)
	}
	return kvs
}

// CopyFields copies all known fields set on from onto a fresh child of to.
// Used when handing work off to a goroutine whose parent request context is
// about to be canceled.
func CopyFields(to context.Context, from context.Context) context.Context {
	for _, k := range keys {
		if v := from.Value(k); v != nil {
			to = context.WithValue(to, k, v)
		}
	}
	return to
}
