package event

import (
	"fmt"
	"sort"
)

// Type is the closed set of event kinds understood by the factory.
// The string value is the name sent on the wire.
type Type string

const (
	LoadJob           Type = "Load job"
	SaveJob           Type = "Save job"
	RestoreJob        Type = "Restore job"
	UploadAnnotations Type = "Upload annotations"
	SendUserActivity  Type = "Send user activity"
	SendException     Type = "Send exception"
	SendTaskInfo      Type = "Send task info"

	DrawObject      Type = "Draw object"
	PasteObject     Type = "Paste object"
	CopyObject      Type = "Copy object"
	PropagateObject Type = "Propagate object"
	DragObject      Type = "Drag object"
	ResizeObject    Type = "Resize object"
	DeleteObject    Type = "Delete object"
	LockObject      Type = "Lock object"
	MergeObjects    Type = "Merge objects"
	ChangeAttribute Type = "Change attribute"
	ChangeLabel     Type = "Change label"

	ChangeFrame Type = "Change frame"
	MoveImage   Type = "Move image"
	ZoomImage   Type = "Zoom image"
	FitImage    Type = "Fit image"
	RotateImage Type = "Rotate image"

	UndoAction    Type = "Undo action"
	RedoAction    Type = "Redo action"
	PressShortcut Type = "Press shortcut"
	DebugInfo     Type = "Debug info"
)

// policy is the validation applied to a payload before a Record of the type exists.
type policy struct {
	desc  string
	check func(t Type, p map[string]any) error
}

var (
	noExtra = policy{desc: "no extra validation", check: func(Type, map[string]any) error { return nil }}

	positiveCount = policy{
		desc: `"count" integer >= 1`,
		check: func(t Type, p map[string]any) error {
			return requireInt(t, p, "count", 1, "it must be a positive integer")
		},
	}

	signedCount = policy{
		desc: `"count" integer`,
		check: func(t Type, p map[string]any) error {
			if _, ok := asInt(p["count"]); !ok {
				return fieldError(t, "count", "it must be an integer")
			}
			return nil
		},
	}

	objectsInfo = policy{
		desc:  "object counters: \"frame count\" >= 1, track/object/box/polygon/polyline/points counts >= 0",
		check: checkObjectsInfo,
	}

	workingTime = policy{
		desc: `"working_time" number > 0`,
		check: func(t Type, p map[string]any) error {
			n, ok := asNumber(p["working_time"])
			if !ok || n <= 0 {
				return fieldError(t, "working_time", "it must be a number greater than 0")
			}
			return nil
		},
	}

	exceptionInfo = policy{
		desc:  `"message", "filename" strings and "line" integer; optional "stack" string and "column" integer`,
		check: checkException,
	}
)

// policies is the dispatch table. A type is known exactly when it has an entry,
// so there is no recognized type without a rule.
var policies = map[Type]policy{
	DeleteObject:      positiveCount,
	SendTaskInfo:      objectsInfo,
	LoadJob:           objectsInfo,
	MergeObjects:      signedCount,
	CopyObject:        signedCount,
	PropagateObject:   signedCount,
	UndoAction:        signedCount,
	RedoAction:        signedCount,
	SendUserActivity:  workingTime,
	SendException:     exceptionInfo,
	SaveJob:           noExtra,
	RestoreJob:        noExtra,
	UploadAnnotations: noExtra,
	DrawObject:        noExtra,
	PasteObject:       noExtra,
	DragObject:        noExtra,
	ResizeObject:      noExtra,
	LockObject:        noExtra,
	ChangeAttribute:   noExtra,
	ChangeLabel:       noExtra,
	ChangeFrame:       noExtra,
	MoveImage:         noExtra,
	ZoomImage:         noExtra,
	FitImage:          noExtra,
	RotateImage:       noExtra,
	PressShortcut:     noExtra,
	DebugInfo:         noExtra,
}

// Known reports whether t has an entry in the rule table. Unknown types are
// still built, with no extra validation.
func Known(t Type) bool {
	_, ok := policies[t]
	return ok
}

// Types returns every known type sorted by wire name.
func Types() []Type {
	out := make([]Type, 0, len(policies))
	for t := range policies {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Rule returns a human readable description of the payload rule for t.
func Rule(t Type) string {
	if p, ok := policies[t]; ok {
		return p.desc
	}
	return ""
}

// Validate runs the type-specific payload rule without building a Record.
// Types outside the table get a generic record and pass unchecked.
func Validate(t Type, payload map[string]any) error {
	p, ok := policies[t]
	if !ok {
		return nil
	}
	return p.check(t, payload)
}

func requireInt(t Type, p map[string]any, field string, min int64, constraint string) error {
	n, ok := asInt(p[field])
	if !ok || n < min {
		return fieldError(t, field, constraint)
	}
	return nil
}

// Checked in this order; the first failing field is reported.
var objectCounters = []struct {
	field string
	min   int64
}{
	{"track count", 0},
	{"frame count", 1},
	{"object count", 0},
	{"box count", 0},
	{"polygon count", 0},
	{"polyline count", 0},
	{"points count", 0},
}

func checkObjectsInfo(t Type, p map[string]any) error {
	for _, c := range objectCounters {
		if err := requireInt(t, p, c.field, c.min, fmt.Sprintf("it must be an integer not less than %d", c.min)); err != nil {
			return err
		}
	}
	return nil
}

func checkException(t Type, p map[string]any) error {
	for _, f := range []string{"message", "filename"} {
		if _, ok := p[f].(string); !ok {
			return fieldError(t, f, "it must be a string")
		}
	}
	if _, ok := asInt(p["line"]); !ok {
		return fieldError(t, "line", "it must be an integer")
	}
	if v, ok := p["stack"]; ok && v != nil {
		if _, ok := v.(string); !ok {
			return fieldError(t, "stack", "it must be a string when present")
		}
	}
	if v, ok := p["column"]; ok && v != nil {
		if _, ok := asInt(v); !ok {
			return fieldError(t, "column", "it must be an integer when present")
		}
	}
	return nil
}
