package github

import (
	"fmt"
	"path"
	"strings"

	gh "github.com/google/go-github/v80/github"

	"github.com/custodia-labs/knowledge-server/internal/core/domain"
)

// Webhook headers.
const (
	HeaderSignature = "X-Hub-Signature-256"
	HeaderEvent     = "X-GitHub-Event"
	HeaderDelivery  = "X-GitHub-Delivery"
)

const signaturePrefix = "sha256="

var (
	excludedPrefixes = []string{"tools/", "templates/", ".obsidian/", ".github/"}
	excludedFiles    = map[string]bool{
		"README.md":       true,
		"LICENSE.md":      true,
		"CONTRIBUTING.md": true,
	}
)

// IsSyncable reports whether a repository path belongs in the corpus:
// markdown only, outside tooling directories, and not a repository
// boilerplate file in any directory.
func IsSyncable(p string) bool {
	if !strings.HasSuffix(p, ".md") {
		return false
	}
	for _, prefix := range excludedPrefixes {
		if strings.HasPrefix(p, prefix) {
			return false
		}
	}
	return !excludedFiles[path.Base(p)]
}

// VerifySignature checks the sha256 HMAC of body against the signature
// header. It fails when the secret or header is empty.
func VerifySignature(secret, body []byte, header string) error {
	if len(secret) == 0 {
		return fmt.Errorf("%w: no secret configured", domain.ErrInvalidSignature)
	}
	if !strings.HasPrefix(header, signaturePrefix) {
		return fmt.Errorf("%w: expected %s<hex>", domain.ErrInvalidSignature, signaturePrefix)
	}
	if err := gh.ValidateSignature(header, body, secret); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidSignature, err)
	}
	return nil
}

// ParsePush converts a push payload into sync params. ok is false when
// the event is not a push to branch or the push removed the branch.
func ParsePush(eventType string, payload []byte, branch string) (params domain.SyncParams, ok bool, err error) {
	if eventType != "push" {
		return domain.SyncParams{}, false, nil
	}
	event, err := gh.ParseWebHook(eventType, payload)
	if err != nil {
		return domain.SyncParams{}, false, &domain.ValidationError{Field: "payload", Reason: err.Error()}
	}
	push, isPush := event.(*gh.PushEvent)
	if !isPush {
		return domain.SyncParams{}, false, nil
	}
	if push.GetRef() != "refs/heads/"+branch || push.GetDeleted() {
		return domain.SyncParams{}, false, nil
	}

	changes := newChangeSet()
	for _, commit := range push.Commits {
		for _, p := range commit.Added {
			changes.change(p)
		}
		for _, p := range commit.Modified {
			changes.change(p)
		}
		for _, p := range commit.Removed {
			changes.remove(p)
		}
	}
	return changes.params(push.GetAfter()), true, nil
}

// changeSet folds an ordered stream of file changes. The last change to a
// path wins, so a file modified and then removed ends up removed.
type changeSet struct {
	order   []string
	removed map[string]bool
}

func newChangeSet() *changeSet {
	return &changeSet{removed: make(map[string]bool)}
}

func (s *changeSet) record(p string, removed bool) {
	if !IsSyncable(p) {
		return
	}
	if _, seen := s.removed[p]; !seen {
		s.order = append(s.order, p)
	}
	s.removed[p] = removed
}

func (s *changeSet) change(p string) { s.record(p, false) }
func (s *changeSet) remove(p string) { s.record(p, true) }

func (s *changeSet) params(sha string) domain.SyncParams {
	params := domain.SyncParams{CommitSHA: sha}
	for _, p := range s.order {
		if s.removed[p] {
			params.DeletedFiles = append(params.DeletedFiles, p)
		} else {
			params.ChangedFiles = append(params.ChangedFiles, p)
		}
	}
	return params
}
