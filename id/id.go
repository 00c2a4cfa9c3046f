// Package id mints and checks the identifiers batchgen hands out.
//
// Identifiers are TypeIDs: a short entity prefix, an underscore and a
// base32 UUIDv7 suffix ("job_01h2xcejqtf2nbrexx3vqjhp41"). They sort by
// creation time and contain only [a-z0-9_], so they double as the file
// names of status and batch records.
package id

import (
	"fmt"

	"go.jetify.com/typeid/v2"
)

// Prefix names the kind of entity an identifier belongs to.
type Prefix string

const (
	PrefixJob    Prefix = "job"
	PrefixBatch  Prefix = "batch"
	PrefixWorker Prefix = "wkr"
)

// ID is a parsed identifier. The zero value is Nil.
type ID struct {
	tid typeid.TypeID
	set bool
}

// Nil is the empty ID.
var Nil ID

// New mints an ID for prefix. The prefixes above are always valid, so an
// error here is a programming mistake and panics.
func New(prefix Prefix) ID {
	tid, err := typeid.Generate(string(prefix))
	if err != nil {
		panic(fmt.Sprintf("id: mint %q: %v", prefix, err))
	}
	return ID{tid: tid, set: true}
}

func NewJobID() ID    { return New(PrefixJob) }
func NewBatchID() ID  { return New(PrefixBatch) }
func NewWorkerID() ID { return New(PrefixWorker) }

// Parse reads s as an identifier of kind want. An empty want accepts any
// prefix.
func Parse(s string, want Prefix) (ID, error) {
	if s == "" {
		return Nil, fmt.Errorf("id: empty identifier")
	}
	tid, err := typeid.Parse(s)
	if err != nil {
		return Nil, fmt.Errorf("id: %q is not a valid identifier: %w", s, err)
	}
	if want != "" && Prefix(tid.Prefix()) != want {
		return Nil, fmt.Errorf("id: %q is not a %s identifier", s, want)
	}
	return ID{tid: tid, set: true}, nil
}

// ParseJobID parses a job identifier.
func ParseJobID(s string) (ID, error) { return Parse(s, PrefixJob) }

// ParseBatchID parses a batch identifier.
func ParseBatchID(s string) (ID, error) { return Parse(s, PrefixBatch) }

func (i ID) String() string {
	if !i.set {
		return ""
	}
	return i.tid.String()
}

func (i ID) Prefix() Prefix {
	if !i.set {
		return ""
	}
	return Prefix(i.tid.Prefix())
}

func (i ID) IsNil() bool { return !i.set }
