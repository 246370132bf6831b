package core

import "fmt"

// =============================================================================
// TaskTraits: immutable scheduling metadata for tasks and sequences
// =============================================================================

// ExtensionPayloadSize is the fixed capacity of an extension payload.
const ExtensionPayloadSize = 8

// Extension ids live in [1, MaxExtensionID]; 0 means "no extension".
const (
	ExtensionIDNone  uint8 = 0
	ExtensionIDFirst uint8 = 1
	MaxExtensionID   uint8 = 4
)

// TraitsExtension is an embedder-defined tagged blob carried by TaskTraits.
// Exactly one extension id is active at a time; the payload is opaque to the
// scheduling core and interpreted only by the embedder that registered the
// id (see ExtensionRegistry).
type TraitsExtension struct {
	ID      uint8
	Payload [ExtensionPayloadSize]byte
}

// MakeTraitsExtension builds a TraitsExtension from a raw payload.
// Panics if id is outside [1, MaxExtensionID] or payload exceeds
// ExtensionPayloadSize bytes.
func MakeTraitsExtension(id uint8, payload []byte) TraitsExtension {
	if id < ExtensionIDFirst || id > MaxExtensionID {
		panic(fmt.Sprintf("TraitsExtension: id %d outside valid range [%d, %d]", id, ExtensionIDFirst, MaxExtensionID))
	}
	if len(payload) > ExtensionPayloadSize {
		panic(fmt.Sprintf("TraitsExtension: payload %d bytes exceeds %d", len(payload), ExtensionPayloadSize))
	}
	ext := TraitsExtension{ID: id}
	copy(ext.Payload[:], payload)
	return ext
}

// ExtensionCodec is implemented by typed extension values so they can be
// round-tripped through the fixed-size payload. Embedders define one codec
// type per registered extension id.
type ExtensionCodec[T any] interface {
	// ExtensionID returns the id statically associated with T.
	ExtensionID() uint8

	// DecodePayload reconstructs a T from a raw payload.
	DecodePayload(payload [ExtensionPayloadSize]byte) T
}

// ExtensionOf decodes the typed extension value carried by traits.
// Panics if traits carries no extension or its id does not match T's id;
// asking for the wrong extension type is a contract violation.
func ExtensionOf[T ExtensionCodec[T]](traits TaskTraits) T {
	var codec T
	if traits.extension.ID != codec.ExtensionID() {
		panic(fmt.Sprintf("ExtensionOf: traits carries extension id %d, want %d",
			traits.extension.ID, codec.ExtensionID()))
	}
	return codec.DecodePayload(traits.extension.Payload)
}

// TaskTraits describes a task's scheduling requirements: priority, shutdown
// behavior, blocking characteristics and an optional embedder extension.
// The value is small, copyable and immutable after construction.
type TaskTraits struct {
	priority    TaskPriority
	prioritySet bool

	shutdownBehavior    ShutdownBehavior
	shutdownBehaviorSet bool

	mayBlock           bool
	usesSyncPrimitives bool

	extension TraitsExtension
}

// TraitsOption configures one trait during NewTaskTraits. Supplying two
// options of the same kind is a contract violation and panics.
type TraitsOption func(*traitsBuilder)

type traitsBuilder struct {
	traits TaskTraits

	sawPriority  bool
	sawShutdown  bool
	sawMayBlock  bool
	sawSyncPrims bool
	sawExtension bool
}

func (b *traitsBuilder) sawTwice(kind string) {
	panic(fmt.Sprintf("NewTaskTraits: duplicate %s option", kind))
}

// WithPriority sets the priority explicitly.
func WithPriority(p TaskPriority) TraitsOption {
	if !isValidPriority(p) {
		panic(fmt.Sprintf("WithPriority: invalid priority %d", p))
	}
	return func(b *traitsBuilder) {
		if b.sawPriority {
			b.sawTwice("priority")
		}
		b.sawPriority = true
		b.traits.priority = p
		b.traits.prioritySet = true
	}
}

// WithShutdownBehavior sets the shutdown behavior explicitly.
func WithShutdownBehavior(sb ShutdownBehavior) TraitsOption {
	if !isValidShutdownBehavior(sb) {
		panic(fmt.Sprintf("WithShutdownBehavior: invalid behavior %d", sb))
	}
	return func(b *traitsBuilder) {
		if b.sawShutdown {
			b.sawTwice("shutdown behavior")
		}
		b.sawShutdown = true
		b.traits.shutdownBehavior = sb
		b.traits.shutdownBehaviorSet = true
	}
}

// WithMayBlock marks tasks that may block on IO.
func WithMayBlock() TraitsOption {
	return func(b *traitsBuilder) {
		if b.sawMayBlock {
			b.sawTwice("may-block")
		}
		b.sawMayBlock = true
		b.traits.mayBlock = true
	}
}

// WithSyncPrimitives marks tasks that wait on synchronization primitives.
func WithSyncPrimitives() TraitsOption {
	return func(b *traitsBuilder) {
		if b.sawSyncPrims {
			b.sawTwice("sync-primitives")
		}
		b.sawSyncPrims = true
		b.traits.usesSyncPrimitives = true
	}
}

// WithExtension attaches an embedder extension.
func WithExtension(ext TraitsExtension) TraitsOption {
	if ext.ID < ExtensionIDFirst || ext.ID > MaxExtensionID {
		panic(fmt.Sprintf("WithExtension: id %d outside valid range [%d, %d]", ext.ID, ExtensionIDFirst, MaxExtensionID))
	}
	return func(b *traitsBuilder) {
		if b.sawExtension {
			b.sawTwice("extension")
		}
		b.sawExtension = true
		b.traits.extension = ext
	}
}

// NewTaskTraits constructs traits from an unordered option list. Options not
// supplied fall back to the documented defaults: UserVisible priority,
// SkipOnShutdown, not blocking, no sync primitives, no extension.
func NewTaskTraits(opts ...TraitsOption) TaskTraits {
	b := traitsBuilder{traits: TaskTraits{
		priority:         TaskPriorityUserVisible,
		shutdownBehavior: SkipOnShutdown,
	}}
	for _, opt := range opts {
		opt(&b)
	}
	return b.traits
}

// DefaultTaskTraits returns traits with every field at its default.
func DefaultTaskTraits() TaskTraits {
	return NewTaskTraits()
}

func TraitsUserBlocking() TaskTraits {
	return NewTaskTraits(WithPriority(TaskPriorityUserBlocking))
}

func TraitsBestEffort() TaskTraits {
	return NewTaskTraits(WithPriority(TaskPriorityBestEffort))
}

func TraitsUserVisible() TaskTraits {
	return NewTaskTraits(WithPriority(TaskPriorityUserVisible))
}

// Override merges two traits. Priority and shutdown behavior take the
// override's value iff the override set them explicitly, otherwise the
// base's; the "set explicitly" flags OR. MayBlock and UsesSyncPrimitives OR.
// The extension is taken wholesale from override when present, else from
// base; partial extension merging is never attempted.
//
// Override is not commutative when both sides set the same field explicitly.
func Override(base, override TaskTraits) TaskTraits {
	merged := base

	if override.prioritySet {
		merged.priority = override.priority
	}
	merged.prioritySet = base.prioritySet || override.prioritySet

	if override.shutdownBehaviorSet {
		merged.shutdownBehavior = override.shutdownBehavior
	}
	merged.shutdownBehaviorSet = base.shutdownBehaviorSet || override.shutdownBehaviorSet

	merged.mayBlock = base.mayBlock || override.mayBlock
	merged.usesSyncPrimitives = base.usesSyncPrimitives || override.usesSyncPrimitives

	if override.extension.ID != ExtensionIDNone {
		merged.extension = override.extension
	}

	return merged
}

func (t TaskTraits) Priority() TaskPriority { return t.priority }

// PrioritySetExplicitly reports whether the priority was supplied at
// construction rather than defaulted.
func (t TaskTraits) PrioritySetExplicitly() bool { return t.prioritySet }

func (t TaskTraits) ShutdownBehavior() ShutdownBehavior { return t.shutdownBehavior }

func (t TaskTraits) ShutdownBehaviorSetExplicitly() bool { return t.shutdownBehaviorSet }

func (t TaskTraits) MayBlock() bool { return t.mayBlock }

func (t TaskTraits) UsesSyncPrimitives() bool { return t.usesSyncPrimitives }

// Extension returns the attached extension, if any.
func (t TaskTraits) Extension() (TraitsExtension, bool) {
	return t.extension, t.extension.ID != ExtensionIDNone
}

// withPriority returns a copy with the priority replaced. Used internally
// for priority propagation into a sequence's own traits copy; TaskTraits
// held by callers are never mutated.
func (t TaskTraits) withPriority(p TaskPriority) TaskTraits {
	t.priority = p
	t.prioritySet = true
	return t
}
