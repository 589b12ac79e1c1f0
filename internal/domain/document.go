package domain

import (
	"fmt"
	"strings"
)

// Document is a finalized report card as seen by the distribution engine:
// an opaque id plus a stable content locator. Production status and signing
// belong to the upstream subsystem.
type Document struct {
	ID         string
	SubjectID  string
	StorageKey string
	Title      string
	Finalized  bool
}

// RecipientKind classifies an external recipient.
type RecipientKind string

const (
	RecipientKindSponsor  RecipientKind = "SPONSOR"
	RecipientKindGuardian RecipientKind = "GUARDIAN"
	RecipientKindStaff    RecipientKind = "STAFF"
)

func (k RecipientKind) String() string { return string(k) }

func (k RecipientKind) IsValid() bool {
	switch k {
	case RecipientKindSponsor, RecipientKindGuardian, RecipientKindStaff:
		return true
	}
	return false
}

func ParseRecipientKindFromString(s string) (RecipientKind, error) {
	k := RecipientKind(strings.ToUpper(strings.TrimSpace(s)))
	if !k.IsValid() {
		return "", fmt.Errorf("%w: invalid recipient kind %q", ErrValidation, s)
	}
	return k, nil
}

// Recipient is an external party entitled to receive documents for a subject.
type Recipient struct {
	Address     string
	DisplayName string
	Kind        RecipientKind
	Active      bool
}

// DistributionScope identifies the cohort and reporting period a run covers.
type DistributionScope struct {
	CohortID string
	PeriodID string
}

func (s DistributionScope) Validate() error {
	if strings.TrimSpace(s.CohortID) == "" {
		return fmt.Errorf("%w: cohort id is required", ErrValidation)
	}
	if strings.TrimSpace(s.PeriodID) == "" {
		return fmt.Errorf("%w: period id is required", ErrValidation)
	}
	return nil
}

func (s DistributionScope) String() string {
	return fmt.Sprintf("%s/%s", s.CohortID, s.PeriodID)
}
