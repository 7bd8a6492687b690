package engine

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/fitpulse/studio-automation/internal/rules"
	"github.com/fitpulse/studio-automation/internal/store"
)

// Resolver turns a rule's audience definition into concrete recipients.
type Resolver struct {
	entities EntityReader
}

// Resolve produces the recipient set for one fired rule. Recipients that
// lack every address the rule's action needs are silently excluded; the
// invocation is still recorded with whatever count remains, including zero.
//
// When the event context already names a subject matching the rule's
// natural scope (a client for the broadcast audiences, a trainer for the
// trainers audience), the audience narrows to that single subject instead
// of a broadcast. A "specific" audience is never narrowed: its explicit
// target_ids are the audience regardless of the event subject.
func (r *Resolver) Resolve(ctx context.Context, rule *rules.Rule, ec EventContext, ents *entityBundle) ([]Recipient, error) {
	if ents.client != nil && (rule.Audience == rules.AudienceAll || rule.Audience == rules.AudienceClients) {
		return filterByChannels([]Recipient{clientRecipient(ents.client)}, rule.ActionType), nil
	}
	if ents.trainer != nil && rule.Audience == rules.AudienceTrainers {
		return filterByChannels([]Recipient{trainerRecipient(ents.trainer)}, rule.ActionType), nil
	}

	var recipients []Recipient
	switch rule.Audience {
	case rules.AudienceClients, rules.AudienceAll:
		clients, err := r.entities.ListClients(ctx, rule.TargetFilters)
		if err != nil {
			return nil, fmt.Errorf("resolve clients: %w", err)
		}
		for i := range clients {
			recipients = append(recipients, clientRecipient(&clients[i]))
		}
		if rule.Audience == rules.AudienceAll {
			trainers, err := r.entities.ListTrainers(ctx, rule.TargetFilters)
			if err != nil {
				return nil, fmt.Errorf("resolve trainers: %w", err)
			}
			for i := range trainers {
				recipients = append(recipients, trainerRecipient(&trainers[i]))
			}
		}

	case rules.AudienceTrainers:
		trainers, err := r.entities.ListTrainers(ctx, rule.TargetFilters)
		if err != nil {
			return nil, fmt.Errorf("resolve trainers: %w", err)
		}
		for i := range trainers {
			recipients = append(recipients, trainerRecipient(&trainers[i]))
		}

	case rules.AudienceSpecific:
		for _, id := range rule.TargetIDs {
			rcpt, err := r.lookupByID(ctx, id)
			if err != nil {
				return nil, fmt.Errorf("resolve target %s: %w", id, err)
			}
			if rcpt != nil {
				recipients = append(recipients, *rcpt)
			}
		}

	default:
		return nil, fmt.Errorf("unknown audience %q", rule.Audience)
	}

	return filterByChannels(recipients, rule.ActionType), nil
}

// lookupByID resolves an explicit target id against clients first, then
// trainers. A deleted target returns (nil, nil) and is skipped.
func (r *Resolver) lookupByID(ctx context.Context, id uuid.UUID) (*Recipient, error) {
	client, err := r.entities.Client(ctx, id)
	if err != nil {
		return nil, err
	}
	if client != nil {
		rcpt := clientRecipient(client)
		return &rcpt, nil
	}
	trainer, err := r.entities.Trainer(ctx, id)
	if err != nil {
		return nil, err
	}
	if trainer != nil {
		rcpt := trainerRecipient(trainer)
		return &rcpt, nil
	}
	return nil, nil
}

func clientRecipient(c *store.Client) Recipient {
	return Recipient{
		Kind:        "client",
		SourceID:    c.ID,
		DisplayName: c.Name,
		Email:       c.Email,
		Phone:       c.Phone,
	}
}

func trainerRecipient(t *store.Trainer) Recipient {
	return Recipient{
		Kind:        "trainer",
		SourceID:    t.ID,
		DisplayName: t.Name,
		Email:       t.Email,
		Phone:       t.Phone,
	}
}

// filterByChannels drops recipients missing an address the action
// requires, so the dispatcher only ever sees addressable deliveries.
func filterByChannels(recipients []Recipient, action rules.ActionType) []Recipient {
	kept := recipients[:0]
	for _, rcpt := range recipients {
		if action.NeedsEmail() && rcpt.Email == "" {
			continue
		}
		if action.NeedsSMS() && rcpt.Phone == "" {
			continue
		}
		kept = append(kept, rcpt)
	}
	return kept
}
