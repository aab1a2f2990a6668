package group

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/nbd-wtf/go-nostr"

	"github.com/marmot-go/marmotgroup/internal/envelope"
	"github.com/marmot-go/marmotgroup/internal/marmoterr"
	"github.com/marmot-go/marmotgroup/internal/mls"
)

// ResultKind classifies one outcome of an Ingest batch.
type ResultKind string

const (
	ResultApplication ResultKind = "application_message"
	ResultCommit      ResultKind = "commit_applied"
	ResultProposal    ResultKind = "proposal"
	ResultUnreadable  ResultKind = "unreadable"
	ResultError       ResultKind = "error"
)

// Result is one outcome of an Ingest batch. Which of Rumor, NewEpoch, or
// ProposalRef is meaningful depends on Kind; Err is set for Unreadable
// and Error.
type Result struct {
	Kind        ResultKind
	Event       *nostr.Event
	Rumor       *nostr.Event
	NewEpoch    uint64
	ProposalRef mls.ProposalRef
	Err         error
}

type classifiedEvent struct {
	event *nostr.Event
	wm    mls.WireMessage
}

// Ingest is the commit resolver (§4.9): it decrypts and classifies every
// event in the batch, applies standalone proposals, applies at most one
// commit per epoch (by the total order epoch asc, created_at asc, event
// id lex asc), emits decoded application messages, and persists once if
// the batch changed the state. The result order is: unreadable events (in
// batch order), then proposals, then commits, then application messages —
// matching the processing order, not the batch's arrival order.
// Envelope-decryption failures and
// per-event protocol errors are collected as results rather than
// returned as an error; only a persistence failure after a successful
// mutation is fatal.
func (e *Engine) Ingest(ctx context.Context, events []*nostr.Event) ([]Result, error) {
	if err := e.ensureActive(); err != nil {
		return nil, err
	}

	var results []Result
	var proposals, commits, applications []classifiedEvent

	for _, ev := range events {
		plaintext, err := envelope.Open(e.state, ev)
		if err != nil {
			results = append(results, Result{Kind: ResultUnreadable, Event: ev, Err: err})
			continue
		}
		wm, err := mls.DecodeWireMessage(plaintext)
		if err != nil {
			results = append(results, Result{Kind: ResultUnreadable, Event: ev, Err: err})
			continue
		}
		switch wm.Type {
		case mls.WireProposal:
			proposals = append(proposals, classifiedEvent{event: ev, wm: wm})
		case mls.WireCommit:
			commits = append(commits, classifiedEvent{event: ev, wm: wm})
		case mls.WireApplication:
			applications = append(applications, classifiedEvent{event: ev, wm: wm})
		default:
			results = append(results, Result{Kind: ResultUnreadable, Event: ev, Err: marmoterr.MLSProtocolError("unknown wire message type", nil)})
		}
	}

	changed := false

	for _, p := range proposals {
		ref, err := e.state.ApplyProposalMessage(p.wm.Payload)
		if err != nil {
			results = append(results, Result{Kind: ResultError, Event: p.event, Err: err})
			continue
		}
		changed = true
		results = append(results, Result{Kind: ResultProposal, Event: p.event, ProposalRef: ref})
	}

	sort.SliceStable(commits, func(i, j int) bool {
		ei, erri := mls.InnerEpoch(commits[i].wm.Payload)
		ej, errj := mls.InnerEpoch(commits[j].wm.Payload)
		if erri != nil || errj != nil {
			// Undecodable commits sort last; they'll surface as
			// per-event errors below rather than disturb real ordering.
			return erri == nil
		}
		if ei != ej {
			return ei < ej
		}
		if commits[i].event.CreatedAt != commits[j].event.CreatedAt {
			return commits[i].event.CreatedAt < commits[j].event.CreatedAt
		}
		return commits[i].event.ID < commits[j].event.ID
	})

	for _, c := range commits {
		innerEpoch, err := mls.InnerEpoch(c.wm.Payload)
		if err != nil {
			results = append(results, Result{Kind: ResultError, Event: c.event, Err: err})
			continue
		}
		if innerEpoch != e.state.Epoch {
			// Either this epoch's winner already applied and advanced
			// the state past this commit (it lost the race), or this
			// commit targets an epoch this state hasn't reached yet.
			// Either way it is silently discarded, not an error.
			continue
		}
		if err := e.state.ApplyCommit(c.wm.Payload); err != nil {
			results = append(results, Result{Kind: ResultError, Event: c.event, Err: err})
			continue
		}
		changed = true
		results = append(results, Result{Kind: ResultCommit, Event: c.event, NewEpoch: e.state.Epoch})
	}

	for _, a := range applications {
		var rumor nostr.Event
		if err := json.Unmarshal(a.wm.Payload, &rumor); err != nil {
			results = append(results, Result{Kind: ResultError, Event: a.event, Err: marmoterr.MLSProtocolError("cannot decode inner rumor", err)})
			continue
		}
		e.state.RotateApplicationSecret()
		changed = true
		results = append(results, Result{Kind: ResultApplication, Event: a.event, Rumor: &rumor})
	}

	if changed {
		if err := e.persist(); err != nil {
			return results, err
		}
	}
	return results, nil
}
