package inventory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
)

// References render as <prefix>-<yyyymmddHHMMSS>-<seq>.
const referenceTimeLayout = "20060102150405"

func sequentialReference(prefix string, at time.Time, seq int) string {
	return fmt.Sprintf("%s-%s-%02d", prefix, at.UTC().Format(referenceTimeLayout), seq)
}

func randomReference(prefix string, at time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:10])
	return fmt.Sprintf("%s-%s-%s", prefix, at.UTC().Format(referenceTimeLayout), suffix)
}

// withReference calls insert with sequential human references until one is
// accepted. Once the bounded attempts are spent it falls back to a random
// suffix instead of failing the workflow. insert must report collisions as
// errReferenceTaken and leave the transaction usable.
func (s *Service) withReference(ctx context.Context, prefix string, at time.Time, insert func(ref string) (int64, error)) (int64, string, error) {
	for attempt := 1; attempt <= s.refAttempts; attempt++ {
		ref := sequentialReference(prefix, at, attempt)
		id, err := insert(ref)
		if err == nil {
			return id, ref, nil
		}
		if !errors.Is(err, errReferenceTaken) {
			return 0, "", err
		}
	}
	s.logger.Warn("inventory reference fallback",
		slog.String("prefix", prefix),
		slog.Int("attempts", s.refAttempts),
		slog.Any("error", ErrReferenceExhausted))
	ref := randomReference(prefix, at)
	id, err := insert(ref)
	if err != nil {
		if errors.Is(err, errReferenceTaken) {
			return 0, "", fmt.Errorf("%w: %s", ErrReferenceExhausted, ref)
		}
		return 0, "", err
	}
	return id, ref, nil
}
