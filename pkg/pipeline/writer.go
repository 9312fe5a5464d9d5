package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/tripforge/tripforge/pkg/agent"
	"github.com/tripforge/tripforge/pkg/models"
	"github.com/tripforge/tripforge/pkg/store"
)

// maxPersistAttempts bounds the optimistic write loop. Conflicts come from
// concurrent user edits; more than a handful in a row means something is
// spinning and the unit is better abandoned.
const maxPersistAttempts = 5

// applyFunc mutates a freshly read document in place. It returns false when
// there is nothing left to apply (for example the target node got locked),
// which ends the persist loop without a write.
type applyFunc func(doc *models.Itinerary) (bool, error)

// docWriter serializes durable mutations for one itinerary using optimistic
// concurrency: read fresh, re-apply the unit's change, write conditioned on
// the version read. Pipeline results never overwrite concurrent user edits
// wholesale; every write re-applies only its own unit onto current state.
type docWriter struct {
	store       store.Store
	statuses    *agent.StatusBook
	itineraryID string
}

// persist runs the read/apply/write loop. On success it returns the document
// as persisted, carrying the new version. applied is false when the apply
// function declined every attempt.
func (w *docWriter) persist(ctx context.Context, apply applyFunc) (doc *models.Itinerary, applied bool, err error) {
	for attempt := 1; attempt <= maxPersistAttempts; attempt++ {
		doc, err = w.store.Get(ctx, w.itineraryID)
		if err != nil {
			return nil, false, fmt.Errorf("failed to read itinerary: %w", err)
		}

		ok, err := apply(doc)
		if err != nil {
			return nil, false, err
		}
		if !ok {
			return doc, false, nil
		}

		doc.Agents = w.statuses.Snapshot()

		err = w.store.Update(ctx, doc, doc.Version)
		if errors.Is(err, store.ErrVersionConflict) {
			continue
		}
		if err != nil {
			return nil, false, fmt.Errorf("failed to write itinerary: %w", err)
		}
		return doc, true, nil
	}
	return nil, false, agent.E(agent.KindConflict, "The itinerary is being edited too actively to update right now.")
}

// applyDay replaces a day's generated content, preserving any node in the
// stored day that is locked or booked.
func applyDay(produced *models.Day) applyFunc {
	return func(doc *models.Itinerary) (bool, error) {
		target := doc.DayByNumber(produced.DayNumber)
		if target == nil {
			return false, nil
		}

		merged := produced.Clone()
		kept := make(map[string]bool, len(merged.Nodes))
		for i := range merged.Nodes {
			kept[merged.Nodes[i].ID] = true
		}
		// Carry protected stored nodes forward, and prefer the stored copy of
		// any node that got locked or booked since the snapshot was taken.
		for i := range target.Nodes {
			n := &target.Nodes[i]
			if !n.Locked && n.BookingRef == "" {
				continue
			}
			if kept[n.ID] {
				for j := range merged.Nodes {
					if merged.Nodes[j].ID == n.ID {
						merged.Nodes[j] = *n.Clone()
						break
					}
				}
			} else {
				merged.Nodes = append(merged.Nodes, *n.Clone())
			}
		}

		*target = *merged
		return true, nil
	}
}

// applyNode replaces a single node by id, skipping it when the stored copy
// is locked or booked or has disappeared.
func applyNode(produced *models.Node) applyFunc {
	return func(doc *models.Itinerary) (bool, error) {
		_, target := doc.NodeByID(produced.ID)
		if target == nil || target.Locked || target.BookingRef != "" {
			return false, nil
		}
		*target = *produced.Clone()
		return true, nil
	}
}

// applyNodes applies a batch of node replacements in one write. Applied is
// true if at least one node went through; skipped nodes are dropped from the
// batch silently because a lock appearing mid-flight is not an error.
func applyNodes(produced []*models.Node) applyFunc {
	return func(doc *models.Itinerary) (bool, error) {
		any := false
		for _, n := range produced {
			_, target := doc.NodeByID(n.ID)
			if target == nil || target.Locked || target.BookingRef != "" {
				continue
			}
			*target = *n.Clone()
			any = true
		}
		return any, nil
	}
}

// applySkeleton installs the generated day structure and summary fields.
// Skeleton runs first, before user edits exist, so it may replace Days
// outright; protected nodes are still carried over if any are present.
func applySkeleton(produced *models.Itinerary) applyFunc {
	return func(doc *models.Itinerary) (bool, error) {
		doc.Summary = produced.Summary
		if produced.Currency != "" {
			doc.Currency = produced.Currency
		}

		days := make([]models.Day, len(produced.Days))
		for i := range produced.Days {
			days[i] = *produced.Days[i].Clone()
		}
		for d := range doc.Days {
			for n := range doc.Days[d].Nodes {
				node := &doc.Days[d].Nodes[n]
				if !node.Locked && node.BookingRef == "" {
					continue
				}
				for i := range days {
					if days[i].DayNumber == doc.Days[d].DayNumber {
						days[i].Nodes = append(days[i].Nodes, *node.Clone())
						break
					}
				}
			}
		}
		doc.Days = days
		return true, nil
	}
}

// applyCosts copies per-node cost estimates and day totals from the agent's
// snapshot onto the stored document, node by node so locks are honored.
func applyCosts(produced *models.Itinerary) applyFunc {
	return func(doc *models.Itinerary) (bool, error) {
		if produced.Currency != "" && doc.Currency == "" {
			doc.Currency = produced.Currency
		}
		any := false
		for d := range produced.Days {
			src := &produced.Days[d]
			target := doc.DayByNumber(src.DayNumber)
			if target == nil {
				continue
			}
			for n := range src.Nodes {
				sn := &src.Nodes[n]
				if sn.Cost == nil {
					continue
				}
				for t := range target.Nodes {
					tn := &target.Nodes[t]
					if tn.ID != sn.ID || tn.Locked || tn.BookingRef != "" {
						continue
					}
					c := *sn.Cost
					tn.Cost = &c
					tn.UpdatedBy = sn.UpdatedBy
					any = true
				}
			}
			if src.Totals != nil {
				target.Totals = src.Totals
				any = true
			}
		}
		return any, nil
	}
}

// applyStatusOnly persists nothing but the agent status snapshot.
func applyStatusOnly() applyFunc {
	return func(doc *models.Itinerary) (bool, error) {
		return true, nil
	}
}
