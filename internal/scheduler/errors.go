package scheduler

import "github.com/pingcap/errors"

// Typed errors raised at the API boundary (§7.2). These are never returned
// for conditions the core considers transient (§7.3) — those are absorbed
// silently — and never used for invariant violations (§7.1), which abort
// the process via log.Fatalf instead.
var (
	// ErrDuplicatePosition is returned by AsyncLog.Insert when the
	// position is already occupied.
	ErrDuplicatePosition = errors.New("log position already taken")
	// ErrNoNext is returned by AsyncLog.Next when HasNext is false.
	ErrNoNext = errors.New("next item does not exist")
	// ErrEmptyMasterMetadata is returned by NewTxn when a transaction
	// arrives with no master metadata at all. spec.md's open question
	// notes the original silently defaulted to replica 0 with a log
	// warning; this reimplementation treats it as a hard error since
	// production transactions must always carry metadata.
	ErrEmptyMasterMetadata = errors.New("transaction has no master metadata")
)
