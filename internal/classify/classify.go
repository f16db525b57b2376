// Package classify implements the eligibility rules that decide whether an email
// is a candidate for question mining.
package classify

import (
	"regexp"
	"strings"

	"faqminer/internal/models"
)

var replyPrefixPattern = regexp.MustCompile(`(?i)^(re|fwd?|fw)\s*:\s*`)

// NormalizeSubject strips reply/forward prefixes, trims and lowercases a subject
// so replies without thread ids can still be matched to their thread
func NormalizeSubject(subject string) string {
	normalized := strings.TrimSpace(subject)
	for {
		stripped := replyPrefixPattern.ReplaceAllString(normalized, "")
		if stripped == normalized {
			break
		}
		normalized = stripped
	}
	return strings.ToLower(strings.TrimSpace(normalized))
}

// Result carries the four email fields the classifier owns
type Result struct {
	Direction       models.Direction
	HasResponse     bool
	FilteringStatus models.FilteringStatus
	FilteringReason string
}

// Classifier decides eligibility from normalized fields and thread context only.
// Classification is pure and idempotent; re-running it with unchanged thread data
// yields the same result.
type Classifier struct {
	accounts map[string]struct{}
}

// New creates a classifier for the given connected business account addresses
func New(connectedAccounts []string) *Classifier {
	accounts := make(map[string]struct{}, len(connectedAccounts))
	for _, addr := range connectedAccounts {
		accounts[strings.ToLower(strings.TrimSpace(addr))] = struct{}{}
	}
	return &Classifier{accounts: accounts}
}

// DirectionOf reports whether a sender address belongs to a connected account
func (c *Classifier) DirectionOf(senderEmail string) models.Direction {
	if _, ok := c.accounts[strings.ToLower(strings.TrimSpace(senderEmail))]; ok {
		return models.DirectionOutbound
	}
	return models.DirectionInbound
}

// Classify evaluates one email against the other messages in its thread.
//
// An email is qualified exactly when it is inbound and some outbound email exists
// in the same thread with a strictly later timestamp. Threads are matched by
// thread id when present, otherwise by normalized subject.
func (c *Classifier) Classify(email *models.Email, threadPeers []models.Email) Result {
	result := Result{
		Direction: c.DirectionOf(email.SenderEmail),
	}

	if result.Direction == models.DirectionOutbound {
		result.FilteringStatus = models.FilteringFilteredOut
		result.FilteringReason = models.ReasonFromBusinessAccount
		return result
	}

	result.HasResponse = c.hasLaterOutbound(email, threadPeers)

	if result.HasResponse {
		result.FilteringStatus = models.FilteringQualified
		result.FilteringReason = ""
	} else {
		result.FilteringStatus = models.FilteringFilteredOut
		result.FilteringReason = models.ReasonNoBusinessResponse
	}

	return result
}

func (c *Classifier) hasLaterOutbound(email *models.Email, peers []models.Email) bool {
	normalizedSubject := email.NormalizedSubject
	if normalizedSubject == "" {
		normalizedSubject = NormalizeSubject(email.Subject)
	}

	for i := range peers {
		peer := &peers[i]
		if c.DirectionOf(peer.SenderEmail) != models.DirectionOutbound {
			continue
		}
		if !peer.ReceivedAt.After(email.ReceivedAt) {
			continue
		}

		// Same thread id, or normalized-subject fallback when either side has none
		if email.ThreadID != nil && peer.ThreadID != nil {
			if *email.ThreadID == *peer.ThreadID {
				return true
			}
			continue
		}

		peerSubject := peer.NormalizedSubject
		if peerSubject == "" {
			peerSubject = NormalizeSubject(peer.Subject)
		}
		if peerSubject != "" && peerSubject == normalizedSubject {
			return true
		}
	}

	return false
}
