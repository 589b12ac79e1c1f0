package service

import (
	"context"
	"fmt"
	"sort"

	"github.com/kursadbilgin/report-dispatch/internal/domain"
)

// DocumentCatalog lists the documents produced for a cohort and period.
// Implemented by the report card production subsystem.
type DocumentCatalog interface {
	DocumentsInScope(ctx context.Context, scope domain.DistributionScope) ([]domain.Document, error)
}

// RecipientDirectory resolves the external recipients of one subject.
// Implemented by the sponsorship subsystem.
type RecipientDirectory interface {
	RecipientsForSubject(ctx context.Context, subjectID string) ([]domain.Recipient, error)
}

// RecipientGroup is one recipient and every document they are entitled to.
// One group becomes one consolidated queue entry.
type RecipientGroup struct {
	Recipient domain.Recipient
	Documents []domain.Document
}

// GroupingResult is the grouper's full output for one scope.
type GroupingResult struct {
	Groups         []RecipientGroup
	Unreachable    []domain.Document
	TotalDocuments int
}

// RecipientGrouper computes the (recipient, documents) pairs a distribution
// run has to contact. Pure computation over the two directories, no side
// effects; the orchestrator calls it for both preview and initiate.
type RecipientGrouper struct {
	catalog   DocumentCatalog
	directory RecipientDirectory
	eligible  func(domain.Document) bool
}

func NewRecipientGrouper(
	catalog DocumentCatalog,
	directory RecipientDirectory,
	eligible func(domain.Document) bool,
) (*RecipientGrouper, error) {
	if catalog == nil {
		return nil, fmt.Errorf("document catalog is required")
	}
	if directory == nil {
		return nil, fmt.Errorf("recipient directory is required")
	}
	if eligible == nil {
		eligible = func(d domain.Document) bool { return d.Finalized }
	}

	return &RecipientGrouper{
		catalog:   catalog,
		directory: directory,
		eligible:  eligible,
	}, nil
}

// Group resolves the scope into recipient groups, keyed by recipient address.
// A subject with several active recipients yields one group per recipient,
// each carrying that recipient's full document set. Output ordering is
// deterministic: groups by address, documents by id.
func (g *RecipientGrouper) Group(ctx context.Context, scope domain.DistributionScope) (*GroupingResult, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}

	docs, err := g.catalog.DocumentsInScope(ctx, scope)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents for scope %s: %w", scope, err)
	}

	byAddress := make(map[string]*RecipientGroup)
	seenDoc := make(map[string]map[string]bool)
	recipientCache := make(map[string][]domain.Recipient)

	result := &GroupingResult{}

	for i := range docs {
		doc := docs[i]
		if !g.eligible(doc) {
			continue
		}
		result.TotalDocuments++

		recipients, ok := recipientCache[doc.SubjectID]
		if !ok {
			recipients, err = g.directory.RecipientsForSubject(ctx, doc.SubjectID)
			if err != nil {
				return nil, fmt.Errorf("failed to resolve recipients for subject %s: %w", doc.SubjectID, err)
			}
			recipientCache[doc.SubjectID] = recipients
		}

		active := 0
		for _, r := range recipients {
			if !r.Active || r.Address == "" {
				continue
			}
			active++

			group, ok := byAddress[r.Address]
			if !ok {
				group = &RecipientGroup{Recipient: r}
				byAddress[r.Address] = group
				seenDoc[r.Address] = make(map[string]bool)
			}
			if seenDoc[r.Address][doc.ID] {
				continue
			}
			seenDoc[r.Address][doc.ID] = true
			group.Documents = append(group.Documents, doc)
		}

		if active == 0 {
			result.Unreachable = append(result.Unreachable, doc)
		}
	}

	addresses := make([]string, 0, len(byAddress))
	for addr := range byAddress {
		addresses = append(addresses, addr)
	}
	sort.Strings(addresses)

	result.Groups = make([]RecipientGroup, 0, len(addresses))
	for _, addr := range addresses {
		group := byAddress[addr]
		sort.Slice(group.Documents, func(i, j int) bool {
			return group.Documents[i].ID < group.Documents[j].ID
		})
		result.Groups = append(result.Groups, *group)
	}

	return result, nil
}
